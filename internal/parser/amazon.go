package parser

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/maltedev/catalog-enricher/internal/models"
)

// MaxGalleryImages caps the thumbnails collected per product.
const MaxGalleryImages = 5

var (
	titleSelectors = []string{"#productTitle", "#title"}

	galleryContainers = []string{"#altImages img", "#imageBlock img", ".imageThumbnail img"}

	detailTableRows = []string{
		"table.a-keyvalue tr",
		"#productDetails_techSpec_section_1 tr",
		"#productDetails_detailBullets_sections1 tr",
	}

	discontinuedPhrases = []string{
		"currently unavailable",
		"we don't know when or if this item will be back in stock",
	}

	pricePattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

	// bidi marks Amazon puts around the colon of detail bullets
	invisibleRunes = strings.NewReplacer("\u200e", "", "\u200f", "", "\u00a0", " ")
)

// labelRule copies a detail value into a record field when the lower-cased
// label matches.
type labelRule struct {
	match func(label string) bool
	field func(r *models.AttributeRecord) *string
}

// labelRules is evaluated in order and the first matching rule wins, so
// "item model number" lands in model_number and never reaches a later rule.
var labelRules = []labelRule{
	{containsAll("asin"), func(r *models.AttributeRecord) *string { return &r.ASIN }},
	{containsAll("manufacturer"), func(r *models.AttributeRecord) *string { return &r.Manufacturer }},
	{containsAll("country of origin"), func(r *models.AttributeRecord) *string { return &r.CountryOfOrigin }},
	{containsAll("date first available"), func(r *models.AttributeRecord) *string { return &r.DateFirstAvailable }},
	{containsAll("model", "number"), func(r *models.AttributeRecord) *string { return &r.ModelNumber }},
	{containsAll("weight"), func(r *models.AttributeRecord) *string { return &r.Weight }},
	{containsAll("dimension"), func(r *models.AttributeRecord) *string { return &r.Dimensions }},
	{containsAll("included", "component"), func(r *models.AttributeRecord) *string { return &r.IncludedComponents }},
	{containsAll("generic name"), func(r *models.AttributeRecord) *string { return &r.GenericName }},
	{containsAny("composition", "ingredients"), func(r *models.AttributeRecord) *string { return &r.Composition }},
}

func containsAll(subs ...string) func(string) bool {
	return func(label string) bool {
		for _, s := range subs {
			if !strings.Contains(label, s) {
				return false
			}
		}
		return true
	}
}

func containsAny(subs ...string) func(string) bool {
	return func(label string) bool {
		for _, s := range subs {
			if strings.Contains(label, s) {
				return true
			}
		}
		return false
	}
}

// AmazonParser extracts an AttributeRecord from an amazon.in product page.
type AmazonParser struct {
	logger *slog.Logger
}

func NewAmazonParser(logger *slog.Logger) *AmazonParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &AmazonParser{
		logger: logger.With("component", "parser"),
	}
}

// Extract never fails: every field is extracted independently and a field
// that cannot be read stays NA.
func (p *AmazonParser) Extract(page Page) models.AttributeRecord {
	rec := models.NewAttributeRecord()

	p.guard("url", func() {
		if u := strings.TrimSpace(page.URL()); u != "" {
			rec.URL = u
		}
	})
	p.guard("title", func() { rec.Title = firstText(page, titleSelectors...) })
	p.guard("price", func() { rec.Price = p.extractPrice(page) })
	p.guard("image", func() { rec.Image = firstAttr(page, "src", "#landingImage") })
	p.guard("image_urls", func() { rec.ImageURLs = extractGallery(page) })
	p.guard("description", func() { rec.Description = extractDescription(page) })
	p.guard("details_table", func() { p.extractDetailTable(page, &rec) })
	p.guard("detail_bullets", func() { p.extractDetailBullets(page, &rec) })
	p.guard("discontinued", func() { rec.Discontinued = p.extractDiscontinued(page) })

	return rec
}

func (p *AmazonParser) guard(field string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("field extraction failed", "field", field, "panic", r)
		}
	}()
	fn()
}

func (p *AmazonParser) extractPrice(page Page) string {
	if price := firstText(page, ".a-price .a-offscreen"); price != models.NA {
		return price
	}

	whole := firstText(page, ".a-price-whole")
	if whole == models.NA {
		p.logger.Debug("price not found")
		return models.NA
	}

	candidate := strings.TrimSuffix(whole, ".")
	if fraction := firstText(page, ".a-price-fraction"); fraction != models.NA {
		candidate += "." + fraction
	}

	if match := pricePattern.FindString(candidate); match != "" {
		return match
	}
	return models.NA
}

func extractGallery(page Page) []string {
	seen := make(map[string]bool)
	var urls []string

	for _, selector := range galleryContainers {
		for _, img := range page.Find(selector) {
			if len(urls) == MaxGalleryImages {
				return urls
			}
			src, ok := img.Attr("src")
			src = strings.TrimSpace(src)
			if !ok || src == "" || strings.HasPrefix(src, "data:") || seen[src] {
				continue
			}
			seen[src] = true
			urls = append(urls, src)
		}
	}

	if len(urls) == 0 {
		return []string{models.NA}
	}
	return urls
}

func extractDescription(page Page) string {
	if desc := firstText(page, "#productDescription"); desc != models.NA {
		return desc
	}

	var bullets []string
	for _, item := range page.Find("#feature-bullets .a-list-item") {
		if text := cleanText(item.Text()); text != "" {
			bullets = append(bullets, text)
		}
	}
	if len(bullets) == 0 {
		return models.NA
	}
	return strings.Join(bullets, "\n")
}

func (p *AmazonParser) extractDetailTable(page Page, rec *models.AttributeRecord) {
	for _, selector := range detailTableRows {
		for _, row := range page.Find(selector) {
			th := row.Find("th")
			td := row.Find("td")
			if len(th) == 0 || len(td) == 0 {
				continue
			}
			label := strings.ToLower(collapse(th[0].Text()))
			value := collapse(td[0].Text())
			if value == "" {
				continue
			}
			applyLabel(rec, label, value, false)
		}
	}
}

// extractDetailBullets keeps the bullet list verbatim and fills fields the
// keyed table left at NA from "label : value" bullets.
func (p *AmazonParser) extractDetailBullets(page Page, rec *models.AttributeRecord) {
	var lines []string
	for _, item := range page.Find("#detailBullets_feature_div li") {
		line := collapse(item.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)

		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		label = strings.ToLower(strings.TrimSpace(label))
		value = strings.TrimSpace(value)
		if value != "" {
			applyLabel(rec, label, value, true)
		}
	}

	if len(lines) == 0 {
		if text := firstText(page, "#detailBullets_feature_div"); text != models.NA {
			rec.ProductDetails = text
		}
		return
	}
	rec.ProductDetails = strings.Join(lines, "\n")
}

func (p *AmazonParser) extractDiscontinued(page Page) string {
	text, err := page.BodyText()
	if err != nil {
		p.logger.Debug("page text unavailable", "error", err)
		return models.NA
	}

	lower := strings.ToLower(text)
	for _, phrase := range discontinuedPhrases {
		if strings.Contains(lower, phrase) {
			return "Yes"
		}
	}
	return "No"
}

// applyLabel returns true when a rule matched the label.
func applyLabel(rec *models.AttributeRecord, label, value string, onlyIfNA bool) bool {
	for _, rule := range labelRules {
		if !rule.match(label) {
			continue
		}
		field := rule.field(rec)
		if !onlyIfNA || *field == models.NA {
			*field = value
		}
		return true
	}
	return false
}

func firstText(page Page, selectors ...string) string {
	for _, selector := range selectors {
		for _, n := range page.Find(selector) {
			if text := cleanText(n.Text()); text != "" {
				return text
			}
		}
	}
	return models.NA
}

func firstAttr(page Page, attr string, selectors ...string) string {
	for _, selector := range selectors {
		for _, n := range page.Find(selector) {
			if v, ok := n.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return models.NA
}

// collapse folds all whitespace, newlines included, into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(invisibleRunes.Replace(s)), " ")
}

// cleanText collapses whitespace inside each line and drops blank lines.
func cleanText(s string) string {
	s = invisibleRunes.Replace(s)
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
