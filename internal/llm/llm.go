package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/maltedev/catalog-enricher/internal/models"
	"github.com/maltedev/catalog-enricher/internal/retry"
)

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 60 * time.Second
)

var (
	ErrAPIKeyNotSet = errors.New("LLM API key not set")
	ErrNoChoices    = errors.New("no completion choices returned")
	ErrInvalidReply = errors.New("reply is not a JSON object")
)

// Completer sends one prompt and returns the text of the reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAICompleter is a Completer backed by the chat completions API.
type OpenAICompleter struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
}

type ClientOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

func NewOpenAICompleter(opts ClientOptions) (*OpenAICompleter, error) {
	if opts.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &OpenAICompleter{
		client:      openai.NewClient(reqOpts...),
		model:       model,
		temperature: opts.Temperature,
		timeout:     timeout,
	}, nil
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrNoChoices
	}
	return completion.Choices[0].Message.Content, nil
}

// Backend looks products up by asking a language model for the record
// directly. It satisfies scraper.Lookuper.
type Backend struct {
	completer Completer
	policy    retry.Policy
	logger    *slog.Logger
}

func NewBackend(completer Completer, policy retry.Policy, logger *slog.Logger) *Backend {
	return &Backend{
		completer: completer,
		policy:    policy,
		logger:    logger.With("component", "llm_backend"),
	}
}

const promptTemplate = `You are a product catalog assistant for the Indian market (amazon.in).
Return details for the product named below as a single JSON object inside a
` + "```json" + ` fenced block. Use exactly these keys:
%s
Every value is a string except "image_urls", which is a list of up to 5 image
URLs. Use "NA" for anything you do not know. "discontinued" is "Yes" or "No".
"unspsc_code" is the 8 digit UNSPSC commodity code.

Product name: %s`

var recordKeys = []string{
	"title", "description", "price", "image", "image_urls", "composition",
	"discontinued", "dimensions", "weight", "manufacturer", "asin",
	"model_number", "country_of_origin", "date_first_available",
	"included_components", "generic_name", "product_details", "url", "unspsc_code",
}

func BuildPrompt(itemName string) string {
	return fmt.Sprintf(promptTemplate, strings.Join(recordKeys, ", "), itemName)
}

// Lookup retries both API and parse failures. The record of the last attempt
// is returned; a reply that never parsed keeps its raw text for diagnosis.
func (b *Backend) Lookup(ctx context.Context, itemName string) models.AttributeRecord {
	logger := b.logger.With("item", itemName)

	policy := b.policy
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		logger.Warn("retrying completion", "attempt", attempt, "wait", wait, "error", err)
	}

	rec := models.NewAttributeRecord()
	var lastErr error

	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		reply, err := b.completer.Complete(ctx, BuildPrompt(itemName))
		if err != nil {
			lastErr = err
			return err
		}

		parsed, err := ParseReply(reply)
		if err != nil {
			rec = models.NewAttributeRecord()
			rec.RawResponse = reply
			lastErr = err
			return err
		}

		rec = parsed
		return nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		rec.Error = lastErr.Error()
		logger.Error("llm lookup failed", "attempts", policy.Attempts(), "error", err)
		return rec
	}

	logger.Info("llm lookup completed", "title", rec.Title)
	return rec
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// ParseReply decodes the first fenced JSON block of a reply, or the whole
// reply when it has no fence.
func ParseReply(reply string) (models.AttributeRecord, error) {
	body := strings.TrimSpace(reply)
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		body = m[1]
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return models.AttributeRecord{}, fmt.Errorf("%w: %w", ErrInvalidReply, err)
	}

	rec := models.NewAttributeRecord()
	for _, key := range recordKeys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if key == "image_urls" {
			rec.ImageURLs = toStrings(v)
			continue
		}
		*fieldFor(&rec, key) = toString(v)
	}
	rec.Normalize()
	return rec, nil
}

func fieldFor(r *models.AttributeRecord, key string) *string {
	switch key {
	case "title":
		return &r.Title
	case "description":
		return &r.Description
	case "price":
		return &r.Price
	case "image":
		return &r.Image
	case "composition":
		return &r.Composition
	case "discontinued":
		return &r.Discontinued
	case "dimensions":
		return &r.Dimensions
	case "weight":
		return &r.Weight
	case "manufacturer":
		return &r.Manufacturer
	case "asin":
		return &r.ASIN
	case "model_number":
		return &r.ModelNumber
	case "country_of_origin":
		return &r.CountryOfOrigin
	case "date_first_available":
		return &r.DateFirstAvailable
	case "included_components":
		return &r.IncludedComponents
	case "generic_name":
		return &r.GenericName
	case "product_details":
		return &r.ProductDetails
	case "url":
		return &r.URL
	case "unspsc_code":
		return &r.UnspscCode
	}
	panic("unknown record key " + key)
}

// toString accepts the loosely typed values models tend to return, e.g. a
// number for price or a list for product_details.
func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case []any:
		return strings.Join(toStrings(t), "\n")
	case map[string]any:
		data, _ := json.Marshal(t)
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if item != nil {
				out = append(out, toString(item))
			}
		}
		return out
	case string:
		return []string{t}
	}
	return nil
}
