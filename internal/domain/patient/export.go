package patient

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Patients"

// ExportHeader is the first row of a patient list export.
var ExportHeader = []string{
	"ID", "Family Name", "Given Names", "Date of Birth", "Sex", "Working Group", "Registries", "Active",
}

var exportWidths = []float64{38, 24, 24, 14, 6, 24, 30, 8}

// WriteXLSX writes patients as a single-sheet workbook to w.
func WriteXLSX(w io.Writer, patients []*Patient) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for col, h := range ExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header %s: %w", cell, err)
		}
		colName, _ := excelize.ColumnNumberToName(col + 1)
		if err := f.SetColWidth(exportSheet, colName, colName, exportWidths[col]); err != nil {
			return err
		}
	}

	for i, p := range patients {
		row := []interface{}{
			p.ID.String(),
			p.FamilyName,
			p.GivenNames,
			formatDate(p.DateOfBirth),
			p.Sex,
			p.WorkingGroupName,
			registryCodes(p),
			p.Active,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func registryCodes(p *Patient) string {
	codes := make([]string, 0, len(p.Registries))
	for _, r := range p.Registries {
		codes = append(codes, r.Code)
	}
	return strings.Join(codes, ", ")
}
