package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"
)

// Row is one line of an exported report.
type Row struct {
	Date        string `json:"date"`
	Client      string `json:"client"`
	Project     string `json:"project"`
	Description string `json:"description"`
	Hours       string `json:"hours"`
	Status      string `json:"status"`
}

var header = []string{"Date", "Client", "Project", "Description", "Hours", "Status"}

// ExportRows converts entries to table rows, preserving order.
func ExportRows(entries []Entry) []Row {
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, Row{
			Date:        e.Date.Format(dateLayout),
			Client:      e.ClientName,
			Project:     e.ProjectName,
			Description: e.Description,
			Hours:       e.Hours.StringFixed(2),
			Status:      e.Status,
		})
	}
	return rows
}

func (r Row) fields() []string {
	return []string{r.Date, r.Client, r.Project, r.Description, r.Hours, r.Status}
}

func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.fields()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const sheetName = "Hours"

func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return errors.Wrap(err, "xlsx: rename sheet")
	}

	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &headerRow); err != nil {
		return errors.Wrap(err, "xlsx: header")
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{r.Date, r.Client, r.Project, r.Description, numeric(r.Hours), r.Status}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return errors.Wrapf(err, "xlsx: row %d", i+1)
		}
	}

	if err := f.SetColWidth(sheetName, "D", "D", 50); err != nil {
		return errors.Wrap(err, "xlsx: column width")
	}

	_, err := f.WriteTo(w)
	return err
}

func numeric(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
