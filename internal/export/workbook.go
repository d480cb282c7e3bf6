// Package export renders proposal summaries as xlsx workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/backend-proposal/internal/money"
	"github.com/noah-isme/backend-proposal/internal/pricing"
)

// Sheet names in the exported workbook.
const (
	SheetSummary  = "Summary"
	SheetLines    = "Lines"
	SheetSchedule = "Schedule"
)

// ContentType is the MIME type of the exported workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Meta is printed on the summary sheet.
type Meta struct {
	AgentID     string
	AgentName   string
	GeneratedAt time.Time
}

var (
	lineHeader = []any{"#", "類別", "項目", "付款方式", "數量", "原價", "優惠價", "折扣",
		"管理費", "頭期款", "管理費頭期款", "期數", "每期金額", "每期管理費"}
	scheduleHeader = []any{"期別", "起", "迄", "每期應繳", "產品", "管理費"}
)

// Workbook builds the proposal workbook for s.
func Workbook(s pricing.Summary, meta Meta) (*excelize.File, error) {
	f := excelize.NewFile()
	w := &writer{f: f}

	w.rename(f.GetSheetName(0), SheetSummary)
	w.newSheet(SheetLines)
	w.newSheet(SheetSchedule)

	amount, err := f.NewStyle(&excelize.Style{NumFmt: 3})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	generated := meta.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	summaryRows := [][]any{
		{"業務", fmt.Sprintf("%s %s", meta.AgentID, meta.AgentName)},
		{"產生時間", generated.Format("2006-01-02 15:04")},
		{"價目表版本", s.CatalogVersion},
		{"幣別", s.Currency},
		{"原價總計", num(s.TotalOriginal)},
		{"優惠價總計", num(s.TotalDiscounted)},
		{"折扣", money.FormatPercent(s.DiscountRate)},
		{"管理費總計", num(s.TotalManagementFee)},
		{"總金額", num(s.FinalTotal)},
		{"簽約應繳", num(s.DueAtSigning)},
		{"最長期數", s.Terms},
	}
	for i, row := range summaryRows {
		w.row(SheetSummary, i+1, row)
	}
	w.style(SheetSummary, "B5", "B10", amount)

	w.row(SheetLines, 1, lineHeader)
	for i, l := range s.Lines {
		row := []any{l.Index + 1, l.Category, l.Variant, l.Label(), l.Quantity,
			num(l.OriginalPrice), num(l.DiscountedPrice), money.FormatPercent(l.DiscountRate),
			num(l.ManagementFee), num(l.ProductDownPayment), num(l.ManagementDownPayment)}
		if l.Amortized() {
			row = append(row, l.Terms, num(l.MonthlyProduct.Decimal), num(l.MonthlyManagement.Decimal))
		}
		w.row(SheetLines, i+2, row)
	}
	if n := len(s.Lines); n > 0 {
		w.style(SheetLines, "F2", fmt.Sprintf("N%d", n+1), amount)
	}

	w.row(SheetSchedule, 1, scheduleHeader)
	for i, b := range s.Schedule {
		w.row(SheetSchedule, i+2, []any{b.Label(), b.Start, b.End, num(b.Total), num(b.Product), num(b.Management)})
	}
	if n := len(s.Schedule); n > 0 {
		w.style(SheetSchedule, "D2", fmt.Sprintf("F%d", n+1), amount)
	}

	if w.err != nil {
		_ = f.Close()
		return nil, w.err
	}
	return f, nil
}

// Write streams the workbook for s to out.
func Write(out io.Writer, s pricing.Summary, meta Meta) error {
	f, err := Workbook(s, meta)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()
	return f.Write(out)
}

// num converts to float64 for the cell value; the exact amount is kept in the JSON quote.
func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// writer records the first excelize error so the layout code stays linear.
type writer struct {
	f   *excelize.File
	err error
}

func (w *writer) rename(from, to string) {
	if w.err == nil {
		w.err = w.f.SetSheetName(from, to)
	}
}

func (w *writer) newSheet(name string) {
	if w.err == nil {
		_, w.err = w.f.NewSheet(name)
	}
}

func (w *writer) row(sheet string, n int, values []any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(sheet, cell, &values)
}

func (w *writer) style(sheet, from, to string, style int) {
	if w.err == nil {
		w.err = w.f.SetCellStyle(sheet, from, to, style)
	}
}
