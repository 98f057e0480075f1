package httpapi

import (
	"bytes"
	"fmt"
	"time"

	"cuida-monitor/internal/index"

	"github.com/xuri/excelize/v2"
)

const eventsSheet = "Events"

var eventsExportHeaders = []string{"key", "time", "kind", "latitude", "longitude", "acceleration_label"}

// GenerateEventsExport renders entries (ascending) as an xlsx workbook.
// Times are formatted in loc.
func GenerateEventsExport(entries []index.Entry, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()

	sheetIndex, err := f.NewSheet(eventsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(sheetIndex)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range eventsExportHeaders {
		if err := setCellValue(f, eventsSheet, col+1, 1, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header: %w", err)
		}
	}
	if err := f.SetCellStyle(eventsSheet, "A1", "F1", headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, e := range entries {
		row := i + 2
		values := []any{
			e.Key,
			time.Unix(e.Key, 0).In(loc).Format("2006-01-02 15:04:05"),
			string(e.Data.Kind),
			e.Data.Latitude,
			e.Data.Longitude,
			e.Data.AccelerationLabel,
		}
		for col, v := range values {
			if err := setCellValue(f, eventsSheet, col+1, row, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(eventsSheet, "A", "A", 14)
	_ = f.SetColWidth(eventsSheet, "B", "B", 22)
	_ = f.SetColWidth(eventsSheet, "C", "F", 18)

	if err := f.SetPanes(eventsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	// the file must stay open while writing
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func setCellValue(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}
