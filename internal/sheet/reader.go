package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/maltedev/catalog-enricher/internal/models"
)

// Read parses the input table at path, choosing the parser by extension.
func Read(path string) (*Table, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatXLSX:
		return ReadXLSX(f)
	default:
		return ReadCSV(f)
	}
}

// ReadXLSX reads the first worksheet of a workbook.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return fromRows(rows)
}

func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: table is empty", ErrMissingNameColumn)
	}

	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	nameCol := findColumn(header, ColumnItemName)
	if nameCol < 0 {
		return nil, ErrMissingNameColumn
	}
	srCol := findColumn(header, ColumnSrNo)
	codeCol := findColumn(header, ColumnItemCode)

	table := &Table{
		Layout: Layout{HasSrNo: srCol >= 0, HasItemCode: codeCol >= 0},
	}

	for i, row := range rows[1:] {
		table.Queries = append(table.Queries, models.ProductQuery{
			RowIndex: i,
			ItemName: cell(row, nameCol),
			SrNo:     cell(row, srCol),
			ItemCode: cell(row, codeCol),
		})
	}
	return table, nil
}

func findColumn(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
