package parser

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-enricher/internal/models"
)

const productPage = `<html><body>
<span id="productTitle">
   Dettol Original Liquid Handwash Refill, 750ml
</span>
<div class="a-price"><span class="a-offscreen">₹99.00</span><span class="a-price-whole">99.</span></div>
<div id="imgTagWrapperId"><img id="landingImage" src="https://m.media-amazon.com/images/I/main.jpg"></div>
<div id="altImages">
  <img src="https://m.media-amazon.com/images/I/a.jpg">
  <img src="https://m.media-amazon.com/images/I/b.jpg">
  <img src="https://m.media-amazon.com/images/I/a.jpg">
  <img src="data:image/gif;base64,R0lGOD">
</div>
<div id="imageBlock"><img src="https://m.media-amazon.com/images/I/c.jpg"></div>
<div id="productDescription"><p>Protects from 100 illness causing germs.</p></div>
<table class="a-keyvalue">
  <tr><th> ASIN </th><td>B07F3RVHZ4</td></tr>
  <tr><th>Manufacturer</th><td>Reckitt Benckiser</td></tr>
  <tr><th>Item model number</th><td>RB-750</td></tr>
  <tr><th>Item Weight</th><td>780 g</td></tr>
  <tr><th>Product Dimensions</th><td>8 x 6 x 20 cm</td></tr>
  <tr><th>Country of Origin</th><td>India</td></tr>
  <tr><th>Ingredients</th><td>Chloroxylenol, Pine oil</td></tr>
  <tr><th>Colour</th><td>Green</td></tr>
</table>
<div id="detailBullets_feature_div"><ul>
  <li><span>Date First Available &#x200f; : &#x200e; 1 July 2018</span></li>
  <li><span>Manufacturer &#x200f; : &#x200e; Someone Else</span></li>
  <li><span>Generic Name : Liquid Handwash</span></li>
</ul></div>
<div id="availability">In stock</div>
</body></html>`

func mustDocument(t *testing.T, html string) *Document {
	t.Helper()
	doc, err := NewDocument(html, "https://www.amazon.in/dp/B07F3RVHZ4")
	require.NoError(t, err)
	return doc
}

func TestAmazonParser_Extract(t *testing.T) {
	p := NewAmazonParser(nil)
	rec := p.Extract(mustDocument(t, productPage))

	assert.Equal(t, "Dettol Original Liquid Handwash Refill, 750ml", rec.Title)
	assert.Equal(t, "₹99.00", rec.Price)
	assert.Equal(t, "https://m.media-amazon.com/images/I/main.jpg", rec.Image)
	assert.Equal(t, []string{
		"https://m.media-amazon.com/images/I/a.jpg",
		"https://m.media-amazon.com/images/I/b.jpg",
		"https://m.media-amazon.com/images/I/c.jpg",
	}, rec.ImageURLs)
	assert.Equal(t, "Protects from 100 illness causing germs.", rec.Description)
	assert.Equal(t, "B07F3RVHZ4", rec.ASIN)
	assert.Equal(t, "Reckitt Benckiser", rec.Manufacturer, "detail bullets must not overwrite table values")
	assert.Equal(t, "RB-750", rec.ModelNumber)
	assert.Equal(t, "780 g", rec.Weight)
	assert.Equal(t, "8 x 6 x 20 cm", rec.Dimensions)
	assert.Equal(t, "India", rec.CountryOfOrigin)
	assert.Equal(t, "Chloroxylenol, Pine oil", rec.Composition)
	assert.Equal(t, "1 July 2018", rec.DateFirstAvailable)
	assert.Equal(t, "Liquid Handwash", rec.GenericName)
	assert.Equal(t, models.NA, rec.IncludedComponents)
	assert.Equal(t, models.NA, rec.UnspscCode)
	assert.Equal(t, "No", rec.Discontinued)
	assert.Equal(t, "https://www.amazon.in/dp/B07F3RVHZ4", rec.URL)
	assert.Contains(t, rec.ProductDetails, "Date First Available : 1 July 2018")
	assert.Empty(t, rec.Error)
}

func TestAmazonParser_MissingFieldsAreNA(t *testing.T) {
	p := NewAmazonParser(nil)
	rec := p.Extract(mustDocument(t, `<html><body><h1>Something else</h1></body></html>`))

	assert.Equal(t, models.NA, rec.Title)
	assert.Equal(t, models.NA, rec.Price)
	assert.Equal(t, models.NA, rec.Image)
	assert.Equal(t, []string{models.NA}, rec.ImageURLs)
	assert.Equal(t, models.NA, rec.Description)
	assert.Equal(t, models.NA, rec.ProductDetails)
	assert.Equal(t, "No", rec.Discontinued)
}

func TestAmazonParser_AllKeysPresent(t *testing.T) {
	p := NewAmazonParser(nil)

	for _, html := range []string{productPage, `<html></html>`} {
		rec := p.Extract(mustDocument(t, html))

		data, err := json.Marshal(rec)
		require.NoError(t, err)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(data, &fields))

		for _, key := range []string{
			"title", "description", "price", "image", "image_urls", "composition",
			"discontinued", "dimensions", "weight", "manufacturer", "asin",
			"model_number", "country_of_origin", "date_first_available",
			"included_components", "generic_name", "product_details", "url", "unspsc_code",
		} {
			require.Contains(t, fields, key)
			if key == "image_urls" {
				assert.NotEmpty(t, fields[key])
				continue
			}
			assert.NotEmpty(t, fields[key], key)
		}
	}
}

func TestAmazonParser_Idempotent(t *testing.T) {
	p := NewAmazonParser(nil)
	doc := mustDocument(t, productPage)

	assert.Equal(t, p.Extract(doc), p.Extract(doc))
}

func TestAmazonParser_TitleFallback(t *testing.T) {
	p := NewAmazonParser(nil)
	rec := p.Extract(mustDocument(t, `<div id="title"> Fallback title </div>`))
	assert.Equal(t, "Fallback title", rec.Title)
}

func TestAmazonParser_PriceFallback(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "whole and fraction",
			html: `<span class="a-price-whole">1,299.</span><span class="a-price-fraction">50</span>`,
			want: "1,299.50",
		},
		{
			name: "whole only",
			html: `<span class="a-price-whole">249</span>`,
			want: "249",
		},
		{
			name: "no digits",
			html: `<span class="a-price-whole">n/a</span>`,
			want: models.NA,
		},
	}

	p := NewAmazonParser(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := p.Extract(mustDocument(t, tt.html))
			assert.Equal(t, tt.want, rec.Price)
		})
	}
}

func TestAmazonParser_GalleryCapped(t *testing.T) {
	html := `<div id="altImages">
		<img src="1.jpg"><img src="2.jpg"><img src="3.jpg">
		<img src="4.jpg"><img src="5.jpg"><img src="6.jpg">
	</div>`

	rec := NewAmazonParser(nil).Extract(mustDocument(t, html))
	assert.Equal(t, []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg"}, rec.ImageURLs)
}

func TestAmazonParser_DescriptionFromFeatureBullets(t *testing.T) {
	html := `<div id="feature-bullets"><ul>
		<li><span class="a-list-item"> Kills 99.9% germs </span></li>
		<li><span class="a-list-item">pH balanced</span></li>
	</ul></div>`

	rec := NewAmazonParser(nil).Extract(mustDocument(t, html))
	assert.Equal(t, "Kills 99.9% germs\npH balanced", rec.Description)
}

func TestLabelRules_FirstMatchWins(t *testing.T) {
	tests := []struct {
		label string
		want  func(r models.AttributeRecord) string
	}{
		{"item model number", func(r models.AttributeRecord) string { return r.ModelNumber }},
		{"manufacturer weight", func(r models.AttributeRecord) string { return r.Manufacturer }},
		{"package dimensions & weight", func(r models.AttributeRecord) string { return r.Weight }},
		{"included components", func(r models.AttributeRecord) string { return r.IncludedComponents }},
		{"ingredients", func(r models.AttributeRecord) string { return r.Composition }},
		{"material composition", func(r models.AttributeRecord) string { return r.Composition }},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			rec := models.NewAttributeRecord()
			require.True(t, applyLabel(&rec, tt.label, "value", false))
			assert.Equal(t, "value", tt.want(rec))
		})
	}

	rec := models.NewAttributeRecord()
	assert.False(t, applyLabel(&rec, "colour", "green", false))
	assert.Equal(t, models.NewAttributeRecord(), rec)
}

func TestAmazonParser_Discontinued(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"currently unavailable", `<div id="availability">Currently unavailable.</div>`, "Yes"},
		{"back in stock", `<p>We don't know when or if this item will be back in stock.</p>`, "Yes"},
		{"in stock", `<div id="availability">In stock</div>`, "No"},
	}

	p := NewAmazonParser(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Extract(mustDocument(t, tt.html)).Discontinued)
		})
	}
}

type unreadablePage struct {
	*Document
}

func (unreadablePage) BodyText() (string, error) {
	return "", errors.New("target closed")
}

func TestAmazonParser_DiscontinuedUnknownWhenTextUnreadable(t *testing.T) {
	rec := NewAmazonParser(nil).Extract(unreadablePage{mustDocument(t, productPage)})

	assert.Equal(t, models.NA, rec.Discontinued)
	assert.Equal(t, "Dettol Original Liquid Handwash Refill, 750ml", rec.Title)
}

type panickingPage struct {
	*Document
}

func (panickingPage) URL() string {
	panic("page crashed")
}

func TestAmazonParser_FieldPanicIsContained(t *testing.T) {
	rec := NewAmazonParser(nil).Extract(panickingPage{mustDocument(t, productPage)})

	assert.Equal(t, models.NA, rec.URL)
	assert.Equal(t, "B07F3RVHZ4", rec.ASIN)
}
