package excel

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// WriteWorkbook writes each sheet in order. Cells that parse as numbers are
// stored as numbers so they sort and filter in a spreadsheet.
func WriteWorkbook(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets to write")
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sh.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", sh.Name, err)
		}
		for r, row := range sh.Rows {
			for c, cell := range row {
				ref, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					return err
				}
				var v interface{} = cell
				if r > 0 {
					if num, err := strconv.ParseFloat(cell, 64); err == nil {
						v = num
					}
				}
				if err := f.SetCellValue(sh.Name, ref, v); err != nil {
					return err
				}
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}
