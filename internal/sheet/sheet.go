// Package sheet reads the uploaded product tables and writes the enriched
// result tables.
package sheet

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/maltedev/catalog-enricher/internal/models"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrMissingNameColumn = errors.New("missing 'Item Name' column")
	ErrImageTooLarge     = errors.New("image dimensions exceed pixel budget")
)

type Format string

const (
	FormatXLSX Format = ".xlsx"
	FormatCSV  Format = ".csv"
)

// DetectFormat looks at the extension only.
func DetectFormat(fileName string) (Format, error) {
	switch Format(strings.ToLower(filepath.Ext(fileName))) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(fileName))
}

const (
	ColumnSrNo     = "SrNo"
	ColumnItemCode = "Item Code"
	ColumnItemName = "Item Name"
	ColumnImages   = "Embedded Images"
)

// Layout says which optional identifier columns the input carried.
type Layout struct {
	HasSrNo     bool
	HasItemCode bool
}

// Table is a parsed input table. Total counts every data row, including
// rows whose item name is blank.
type Table struct {
	Layout  Layout
	Queries []models.ProductQuery
}

func (t *Table) Total() int {
	return len(t.Queries)
}

// Columns returns the output header in its fixed order.
func Columns(layout Layout) []string {
	var cols []string
	if layout.HasSrNo {
		cols = append(cols, ColumnSrNo)
	}
	if layout.HasItemCode {
		cols = append(cols, ColumnItemCode)
	}
	return append(cols,
		ColumnItemName,
		"Title",
		"Composition_on_amazon.in",
		"Price",
		"Product Details as on amazon.in",
		"Image URL",
		"Image URLs",
		"Amazon URL",
		"Is Discontinued",
		"UNSPSC Code",
		"Product Dimensions",
		"Item Weight",
		"Manufacturer",
		"ASIN",
		"Model Number",
		"Country of Origin",
		"Date First Available",
		"Included Components",
		"Generic Name",
		"Error",
	)
}

// Values renders a result row in Columns order.
func Values(layout Layout, r models.ResultRow) []string {
	var vals []string
	if layout.HasSrNo {
		vals = append(vals, r.SrNo)
	}
	if layout.HasItemCode {
		vals = append(vals, r.ItemCode)
	}
	return append(vals,
		r.ItemName,
		r.Title,
		r.Composition,
		r.Price,
		r.ProductDetails,
		r.ImageURL,
		strings.Join(r.ImageURLs, "\n"),
		r.SourceURL,
		r.Discontinued,
		r.UnspscCode,
		r.Dimensions,
		r.Weight,
		r.Manufacturer,
		r.ASIN,
		r.ModelNumber,
		r.CountryOfOrigin,
		r.DateFirstAvailable,
		r.IncludedComponents,
		r.GenericName,
		r.Error,
	)
}
