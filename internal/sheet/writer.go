package sheet

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/maltedev/catalog-enricher/internal/models"
)

const (
	resultSheet = "Results"
	imageGap    = 5
)

// Writer renders result rows into the output formats.
type Writer struct {
	fetcher   ImageFetcher
	maxImages int
	logger    *slog.Logger
}

// NewWriter returns a writer that embeds up to maxImages pictures per xlsx
// row. A nil fetcher disables embedding.
func NewWriter(fetcher ImageFetcher, maxImages int, logger *slog.Logger) *Writer {
	return &Writer{
		fetcher:   fetcher,
		maxImages: maxImages,
		logger:    logger.With("component", "sheet_writer"),
	}
}

func (w *Writer) Write(ctx context.Context, out io.Writer, format Format, layout Layout, rows []models.ResultRow) error {
	switch format {
	case FormatXLSX:
		return w.WriteXLSX(ctx, out, layout, rows)
	case FormatCSV:
		return WriteCSV(out, layout, rows)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func WriteCSV(out io.Writer, layout Layout, rows []models.ResultRow) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(Columns(layout)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(Values(layout, r)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (w *Writer) WriteXLSX(ctx context.Context, out io.Writer, layout Layout, rows []models.ResultRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := Columns(layout)
	embed := w.fetcher != nil && w.maxImages > 0
	if embed {
		header = append(header, ColumnImages)
	}

	if err := setRow(f, 1, header); err != nil {
		return err
	}

	imageCol := len(header)
	widest := 0

	for i, r := range rows {
		rowNum := i + 2
		if err := setRow(f, rowNum, Values(layout, r)); err != nil {
			return err
		}
		if !embed {
			continue
		}
		if width := w.embedImages(ctx, f, rowNum, imageCol, r); width > widest {
			widest = width
		}
	}

	if widest > 0 {
		colName, _ := excelize.ColumnNumberToName(imageCol)
		// ~7 pixels per character unit
		if err := f.SetColWidth(resultSheet, colName, colName, float64(widest)/7+2); err != nil {
			return fmt.Errorf("failed to size image column: %w", err)
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// embedImages places the row's thumbnails side by side in one cell and
// returns the total pixel width used. Every failure is per image.
func (w *Writer) embedImages(ctx context.Context, f *excelize.File, rowNum, col int, r models.ResultRow) int {
	cellName, _ := excelize.CoordinatesToCellName(col, rowNum)
	offsetX := 0

	for _, url := range r.EmbeddableImages(w.maxImages) {
		if ctx.Err() != nil {
			break
		}

		data, err := w.fetcher.Fetch(ctx, url)
		if err != nil {
			w.logger.Warn("skipping image", "item", r.ItemName, "url", url, "error", err)
			continue
		}

		thumb, size, err := Thumbnail(data)
		if err != nil {
			w.logger.Warn("skipping image", "item", r.ItemName, "url", url, "error", err)
			continue
		}

		if err := f.AddPictureFromBytes(resultSheet, cellName, &excelize.Picture{
			Extension: ".png",
			File:      thumb,
			Format: &excelize.GraphicOptions{
				OffsetX:         offsetX,
				OffsetY:         2,
				Positioning:     "oneCell",
				LockAspectRatio: true,
			},
		}); err != nil {
			w.logger.Warn("failed to embed image", "item", r.ItemName, "url", url, "error", err)
			continue
		}
		offsetX += size.X + imageGap
	}

	if offsetX > 0 {
		// points are 3/4 of a pixel
		if err := f.SetRowHeight(resultSheet, rowNum, float64(ThumbnailHeight+4)*0.75); err != nil {
			w.logger.Warn("failed to set row height", "row", rowNum, "error", err)
		}
	}
	return offsetX
}

func setRow(f *excelize.File, rowNum int, values []string) error {
	cellName, _ := excelize.CoordinatesToCellName(1, rowNum)
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(resultSheet, cellName, &row); err != nil {
		return fmt.Errorf("failed to write row %d: %w", rowNum, err)
	}
	return nil
}
