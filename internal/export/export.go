// Package export renders registrations and campus ambassador applications as
// CSV or XLSX downloads.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"utshob.org/internal/ca"
	"utshob.org/internal/registration"
)

const (
	// Leading BOM so spreadsheet tools detect UTF-8 in CSV downloads.
	utf8BOM = "\xEF\xBB\xBF"

	timeLayout = "2006-01-02 15:04:05"

	maxColumnWidth = 50
)

// MIME types and filenames for the download endpoints.
const (
	CSVContentType  = "text/csv; charset=utf-8"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var registrationHeader = []string{
	"ID", "Full Name", "Email", "Institution", "Segment", "Category",
	"Submission Link", "CA Ref", "Payment Number", "Transaction ID",
	"Verified", "Registration Date", "Verified At", "Subject ID", "IP Address",
}

func registrationRow(r *registration.Registration) []string {
	return []string{
		r.ID, r.FullName, r.Email, r.Institution, r.SegmentName, r.Category,
		r.SubmissionLink, r.CARef, r.PaymentNumber, r.TransactionID,
		yesNo(r.Verified), formatTime(r.RegisteredAt), formatTimePtr(r.VerifiedAt),
		r.SubjectID, r.IPAddress,
	}
}

var applicationHeader = []string{
	"ID", "CA Code", "Profile", "Full Name", "Email", "Institution", "Class",
	"Phone Number", "Status", "Motivation", "Registration Date", "Subject ID",
	"IP Address",
}

func applicationRow(a *ca.Application) []string {
	return []string{
		a.ID, a.Code, a.ProfilePicture, a.FullName, a.Email, a.Institution,
		a.ClassYear, a.Phone, string(a.Status), a.Motivation,
		formatTime(a.AppliedAt), a.SubjectID, a.IPAddress,
	}
}

// RegistrationsCSV renders registrations as BOM-prefixed UTF-8 CSV.
func RegistrationsCSV(regs []registration.Registration) ([]byte, error) {
	rows := make([][]string, 0, len(regs))
	for i := range regs {
		rows = append(rows, registrationRow(&regs[i]))
	}
	return writeCSV(registrationHeader, rows)
}

// RegistrationsXLSX renders registrations as an XLSX workbook.
func RegistrationsXLSX(regs []registration.Registration) ([]byte, error) {
	rows := make([][]string, 0, len(regs))
	for i := range regs {
		rows = append(rows, registrationRow(&regs[i]))
	}
	return writeXLSX("Registrations", registrationHeader, rows)
}

// ApplicationsCSV renders CA applications as BOM-prefixed UTF-8 CSV.
func ApplicationsCSV(apps []ca.Application) ([]byte, error) {
	rows := make([][]string, 0, len(apps))
	for i := range apps {
		rows = append(rows, applicationRow(&apps[i]))
	}
	return writeCSV(applicationHeader, rows)
}

// ApplicationsXLSX renders CA applications as an XLSX workbook.
func ApplicationsXLSX(apps []ca.Application) ([]byte, error) {
	rows := make([][]string, 0, len(apps))
	for i := range apps {
		rows = append(rows, applicationRow(&apps[i]))
	}
	return writeXLSX("CA Applications", applicationHeader, rows)
}

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeXLSX(sheet string, header []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	widths := make([]int, len(header))
	writeRow := func(rowNum int, cells []string) error {
		for col, val := range cells {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(sheet, cell, val); err != nil {
				return err
			}
			if l := len(val); col < len(widths) && l > widths[col] {
				widths[col] = l
			}
		}
		return nil
	}

	if err := writeRow(1, header); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if err := writeRow(i+2, row); err != nil {
			return nil, err
		}
	}

	for col, w := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, err
		}
		width := w + 2
		if width > maxColumnWidth {
			width = maxColumnWidth
		}
		if err := f.SetColWidth(sheet, name, name, float64(width)); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Filename stamps a download name like "registrations_2026-03-01.csv".
func Filename(prefix, ext string, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, at.UTC().Format("2006-01-02"), ext)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
