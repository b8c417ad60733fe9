package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// XLSXExporter renders sheets into an Excel workbook.
type XLSXExporter struct {
	ColumnWidth float64
}

// NewXLSXExporter builds a workbook exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{ColumnWidth: 16}
}

// Render writes every sheet, styled header first, and returns the workbook bytes.
func (e *XLSXExporter) Render(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one sheet")
	}
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	keepDefault := false
	for i, sheet := range sheets {
		name := sheet.Name
		if name == "" {
			name = fmt.Sprintf("Sheet%d", i+1)
		}
		if name == defaultSheet {
			keepDefault = true
		}
		idx, err := f.NewSheet(name)
		if err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err := e.writeSheet(f, name, sheet, headerStyle); err != nil {
			return nil, err
		}
	}
	if !keepDefault {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return nil, fmt.Errorf("drop default sheet: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *XLSXExporter) writeSheet(f *excelize.File, name string, sheet Sheet, headerStyle int) error {
	if len(sheet.Headers) > 0 {
		last, _ := excelize.ColumnNumberToName(len(sheet.Headers))
		if err := f.SetColWidth(name, "A", last, e.ColumnWidth); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	for col, header := range sheet.Headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(name, cell, header); err != nil {
			return fmt.Errorf("write header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(name, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header %s: %w", cell, err)
		}
	}
	for r, row := range sheet.Rows {
		for col, value := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
			if err := f.SetCellValue(name, cell, value); err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
	}
	return nil
}
