// Package export renders stored document records as spreadsheets.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"docintake/internal/model"
)

const SheetName = "Documents"

// ContentTypeXLSX is the MIME type of the workbook returned by WriteXLSX.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{
	"Name",
	"Aadhaar Number",
	"Date of Birth",
	"Address",
	"Gender",
	"Phone Number",
	"Created At",
}

// WriteXLSX returns a workbook with one header row and one row per record,
// in the order given. All values are written as text.
func WriteXLSX(records []model.DocumentRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for i, r := range records {
		row := i + 2
		values := []string{
			r.Name,
			r.AadhaarNumber,
			r.DOB,
			r.Address,
			r.Gender,
			r.PhoneNumber,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellStr(SheetName, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 24) // name
	_ = f.SetColWidth(SheetName, "B", "B", 18) // aadhaar
	_ = f.SetColWidth(SheetName, "C", "C", 14) // dob
	_ = f.SetColWidth(SheetName, "D", "D", 60) // address
	_ = f.SetColWidth(SheetName, "E", "F", 14)
	_ = f.SetColWidth(SheetName, "G", "G", 22) // created

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
