// Package exportsvc renders promotion data as XLSX workbooks.
package exportsvc

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/academia/core/promotion"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	dataSheet   = "Sheet1"
	summary     = "Summary"
	dateFmt     = "2006-01-02 15:04"
)

var (
	reportHeaders    = []interface{}{"Student PAN", "Pass", "Outcome", "From class", "To class", "Fees added", "Reason"}
	promotionHeaders = []interface{}{"Student PAN", "From class", "Decision", "To class", "Status", "Graduated", "Remarks", "Executed at"}
)

type XLSXWriter struct{}

var _ promotion.ReportWriter = XLSXWriter{}

func NewXLSXWriter() XLSXWriter {
	return XLSXWriter{}
}

// WriteReport writes the per-student outcomes of a rollover run, plus a summary sheet with the counts.
func (XLSXWriter) WriteReport(w io.Writer, r promotion.Report) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cErr := f.Close(); err == nil {
			err = cErr
		}
	}()

	if err = setRow(f, dataSheet, 1, reportHeaders); err != nil {
		return err
	}
	for i, o := range r.Outcomes {
		row := []interface{}{o.StudentPAN, string(o.Pass), string(o.Outcome), o.FromClass, o.ToClass, o.FeesAdded, o.Reason}
		if err = setRow(f, dataSheet, i+2, row); err != nil {
			return err
		}
	}
	if err = f.SetColWidth(dataSheet, "A", "E", 16); err != nil {
		return errors.Wrap(err, "setting column width")
	}
	if err = f.SetColWidth(dataSheet, "G", "G", 60); err != nil {
		return errors.Wrap(err, "setting column width")
	}

	if _, err = f.NewSheet(summary); err != nil {
		return errors.Wrap(err, "creating summary sheet")
	}
	counts := [][]interface{}{
		{"Run", r.RunID.String()},
		{"From session", r.FromSession},
		{"To session", r.ToSession},
		{"Started at", r.StartedAt.Format(dateFmt)},
		{"Finished at", r.FinishedAt.Format(dateFmt)},
		{"Promoted", r.Promoted},
		{"Detained", r.Detained},
		{"Graduated", r.Graduated},
		{"Carried forward", r.CarriedForward},
		{"Skipped", r.Skipped},
		{"Failed", r.Failed},
		{"Total", r.Total()},
	}
	for i, row := range counts {
		if err = setRow(f, summary, i+1, row); err != nil {
			return err
		}
	}

	return errors.Wrap(f.Write(w), "writing workbook")
}

// WritePromotions writes one row per promotion record. classNames maps class IDs to their names.
func (XLSXWriter) WritePromotions(w io.Writer, promos []promotion.Promotion, classNames map[int64]string) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cErr := f.Close(); err == nil {
			err = cErr
		}
	}()

	if err = setRow(f, dataSheet, 1, promotionHeaders); err != nil {
		return err
	}
	for i, p := range promos {
		var toClass, executedAt string
		if p.ToClassID != nil {
			toClass = className(classNames, *p.ToClassID)
		}
		if p.ExecutedAt != nil {
			executedAt = p.ExecutedAt.Format(dateFmt)
		}
		row := []interface{}{
			p.StudentPAN, className(classNames, p.FromClassID), string(p.Decision), toClass,
			string(p.Status), p.IsGraduated, p.Remarks, executedAt,
		}
		if err = setRow(f, dataSheet, i+2, row); err != nil {
			return err
		}
	}
	if err = f.SetColWidth(dataSheet, "A", "F", 16); err != nil {
		return errors.Wrap(err, "setting column width")
	}

	return errors.Wrap(f.Write(w), "writing workbook")
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return errors.Wrap(err, "computing cell name")
	}
	return errors.Wrapf(f.SetSheetRow(sheet, cell, &values), "writing row %d", row)
}

func className(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}
