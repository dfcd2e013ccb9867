package models

import (
	"strings"
)

// NA marks a field that could not be found. It is never replaced by an empty
// string or an absent key.
const NA = "NA"

// ProductQuery is one row of the uploaded table.
type ProductQuery struct {
	RowIndex int    `json:"row_index"`
	ItemName string `json:"item_name"`
	SrNo     string `json:"sr_no,omitempty"`
	ItemCode string `json:"item_code,omitempty"`
}

// AttributeRecord is the structured result of one product lookup.
type AttributeRecord struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Price              string   `json:"price"`
	Image              string   `json:"image"`
	ImageURLs          []string `json:"image_urls"`
	Composition        string   `json:"composition"`
	Discontinued       string   `json:"discontinued"`
	Dimensions         string   `json:"dimensions"`
	Weight             string   `json:"weight"`
	Manufacturer       string   `json:"manufacturer"`
	ASIN               string   `json:"asin"`
	ModelNumber        string   `json:"model_number"`
	CountryOfOrigin    string   `json:"country_of_origin"`
	DateFirstAvailable string   `json:"date_first_available"`
	IncludedComponents string   `json:"included_components"`
	GenericName        string   `json:"generic_name"`
	ProductDetails     string   `json:"product_details"`
	URL                string   `json:"url"`
	UnspscCode         string   `json:"unspsc_code"`
	Error              string   `json:"error,omitempty"`
	RawResponse        string   `json:"raw_response,omitempty"`
}

// NewAttributeRecord returns a record with every field set to NA.
func NewAttributeRecord() AttributeRecord {
	return AttributeRecord{
		Title:              NA,
		Description:        NA,
		Price:              NA,
		Image:              NA,
		ImageURLs:          []string{NA},
		Composition:        NA,
		Discontinued:       NA,
		Dimensions:         NA,
		Weight:             NA,
		Manufacturer:       NA,
		ASIN:               NA,
		ModelNumber:        NA,
		CountryOfOrigin:    NA,
		DateFirstAvailable: NA,
		IncludedComponents: NA,
		GenericName:        NA,
		ProductDetails:     NA,
		URL:                NA,
		UnspscCode:         NA,
	}
}

// Normalize replaces blank fields with NA and drops blank or duplicate image
// URLs. It is used on records decoded from sources that may omit keys.
func (r *AttributeRecord) Normalize() {
	for _, f := range r.stringFields() {
		if strings.TrimSpace(*f) == "" {
			*f = NA
		} else {
			*f = strings.TrimSpace(*f)
		}
	}

	seen := make(map[string]bool, len(r.ImageURLs))
	urls := make([]string, 0, len(r.ImageURLs))
	for _, u := range r.ImageURLs {
		u = strings.TrimSpace(u)
		if u == "" || u == NA || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		urls = []string{NA}
	}
	r.ImageURLs = urls
}

func (r *AttributeRecord) stringFields() []*string {
	return []*string{
		&r.Title, &r.Description, &r.Price, &r.Image, &r.Composition,
		&r.Discontinued, &r.Dimensions, &r.Weight, &r.Manufacturer, &r.ASIN,
		&r.ModelNumber, &r.CountryOfOrigin, &r.DateFirstAvailable,
		&r.IncludedComponents, &r.GenericName, &r.ProductDetails, &r.URL,
		&r.UnspscCode,
	}
}

// ResultRow is one row of the output table.
type ResultRow struct {
	SrNo               string
	ItemCode           string
	ItemName           string
	Title              string
	Composition        string
	Price              string
	ProductDetails     string
	ImageURL           string
	ImageURLs          []string
	SourceURL          string
	Discontinued       string
	UnspscCode         string
	Dimensions         string
	Weight             string
	Manufacturer       string
	ASIN               string
	ModelNumber        string
	CountryOfOrigin    string
	DateFirstAvailable string
	IncludedComponents string
	GenericName        string
	Error              string
}

// NewResultRow maps a lookup result and the identifiers carried by its input
// row into an output row.
func NewResultRow(q ProductQuery, rec AttributeRecord) ResultRow {
	composition := rec.Description
	if composition == "" || composition == NA {
		composition = rec.Composition
	}

	return ResultRow{
		SrNo:               orNA(q.SrNo),
		ItemCode:           orNA(q.ItemCode),
		ItemName:           q.ItemName,
		Title:              rec.Title,
		Composition:        composition,
		Price:              rec.Price,
		ProductDetails:     rec.ProductDetails,
		ImageURL:           rec.Image,
		ImageURLs:          rec.ImageURLs,
		SourceURL:          rec.URL,
		Discontinued:       rec.Discontinued,
		UnspscCode:         rec.UnspscCode,
		Dimensions:         rec.Dimensions,
		Weight:             rec.Weight,
		Manufacturer:       rec.Manufacturer,
		ASIN:               rec.ASIN,
		ModelNumber:        rec.ModelNumber,
		CountryOfOrigin:    rec.CountryOfOrigin,
		DateFirstAvailable: rec.DateFirstAvailable,
		IncludedComponents: rec.IncludedComponents,
		GenericName:        rec.GenericName,
		Error:              rec.Error,
	}
}

// EmbeddableImages returns the row's image URLs without sentinels, capped at max.
func (r ResultRow) EmbeddableImages(max int) []string {
	var urls []string
	for _, u := range r.ImageURLs {
		if u == "" || u == NA {
			continue
		}
		if len(urls) == max {
			break
		}
		urls = append(urls, u)
	}
	return urls
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return NA
	}
	return s
}
