// Package pricing turns a selection of catalog line items into a reconciled payment proposal.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-proposal/internal/catalog"
	"github.com/noah-isme/backend-proposal/internal/money"
)

// LineItem references one catalog variant selected for a proposal.
type LineItem struct {
	Category string               `json:"category"`
	Variant  string               `json:"variant"`
	Mode     catalog.PurchaseMode `json:"mode"`
	Quantity int                  `json:"quantity"`
}

// Selection is the ordered list of line items for one computation.
type Selection []LineItem

// LineDetail holds the derived amounts for one line item.
type LineDetail struct {
	Index    int                  `json:"index"`
	Category string               `json:"category"`
	Variant  string               `json:"variant"`
	Mode     catalog.PurchaseMode `json:"mode"`
	Quantity int                  `json:"quantity"`

	OriginalPrice         decimal.Decimal `json:"original_price"`
	DiscountedPrice       decimal.Decimal `json:"discounted_price"`
	DiscountRate          decimal.Decimal `json:"discount_rate"`
	ManagementFeePerUnit  decimal.Decimal `json:"management_fee_per_unit"`
	ManagementFee         decimal.Decimal `json:"management_fee"`
	ProductDownPayment    decimal.Decimal `json:"product_down_payment"`
	ManagementDownPayment decimal.Decimal `json:"management_down_payment"`

	// Terms is zero for lines that are not amortized.
	Terms int `json:"terms,omitempty"`
	// Monthly amounts are invalid (not applicable) for lines that are not amortized.
	MonthlyProduct    decimal.NullDecimal `json:"monthly_product"`
	MonthlyManagement decimal.NullDecimal `json:"monthly_management"`
}

// Amortized reports whether the line contributes to the payment schedule.
func (d LineDetail) Amortized() bool {
	return d.Terms > 0 && d.MonthlyProduct.Valid && d.MonthlyManagement.Valid
}

// Total is the discounted price plus management fee of the line.
func (d LineDetail) Total() decimal.Decimal {
	return d.DiscountedPrice.Add(d.ManagementFee)
}

// DownPayment is the amount of the line due at signing.
func (d LineDetail) DownPayment() decimal.Decimal {
	return d.ProductDownPayment.Add(d.ManagementDownPayment)
}

// Label is the display name of the purchase mode including the term count.
func (d LineDetail) Label() string {
	return d.Mode.LabelWithTerms(d.Terms)
}

// Summary is the reconciled proposal over every line item.
type Summary struct {
	CatalogVersion string `json:"catalog_version"`
	Currency       string `json:"currency"`

	TotalOriginal              decimal.Decimal `json:"total_original"`
	TotalDiscounted            decimal.Decimal `json:"total_discounted"`
	TotalManagementFee         decimal.Decimal `json:"total_management_fee"`
	TotalDownPayment           decimal.Decimal `json:"total_down_payment"`
	TotalManagementDownPayment decimal.Decimal `json:"total_management_down_payment"`
	DiscountRate               decimal.Decimal `json:"discount_rate"`
	FinalTotal                 decimal.Decimal `json:"final_total"`
	// DueAtSigning is the period-0 lump sum reported apart from the banded schedule.
	DueAtSigning decimal.Decimal `json:"due_at_signing"`
	// Terms is the longest installment term across the lines, zero without installments.
	Terms int `json:"terms"`

	Lines    []LineDetail `json:"lines"`
	Schedule []Band       `json:"schedule"`
}

// Compute resolves every line against the catalog and aggregates the proposal.
// The computation is atomic: the first failing line aborts it and no summary is returned.
func Compute(sel Selection, cat *catalog.Catalog) (Summary, error) {
	if cat == nil {
		return Summary{}, ErrNoCatalog
	}
	lines := make([]LineDetail, 0, len(sel))
	for i, item := range sel {
		detail, err := computeLine(i, item, cat)
		if err != nil {
			return Summary{}, lineError(i, item, err)
		}
		lines = append(lines, detail)
	}
	summary := aggregate(lines)
	summary.CatalogVersion = cat.Version()
	summary.Currency = cat.Currency()
	return summary, nil
}

func computeLine(index int, item LineItem, cat *catalog.Catalog) (LineDetail, error) {
	if !item.Mode.Valid() {
		return LineDetail{}, fmt.Errorf("%w: %q", ErrUnknownPurchaseMode, item.Mode)
	}
	if item.Quantity < 1 {
		return LineDetail{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, item.Quantity)
	}
	variant, ok := cat.Variant(item.Category, item.Variant)
	if !ok {
		return LineDetail{}, ErrUnknownVariant
	}

	detail := LineDetail{
		Index:    index,
		Category: item.Category,
		Variant:  item.Variant,
		Mode:     item.Mode,
		Quantity: item.Quantity,
	}
	if err := resolvePrice(&detail, variant); err != nil {
		return LineDetail{}, err
	}
	if err := resolveDownPayment(&detail, variant); err != nil {
		return LineDetail{}, err
	}
	amortize(&detail, variant)
	return detail, nil
}

func resolvePrice(d *LineDetail, v *catalog.Variant) error {
	unit, ok := v.PricePoint(d.Mode)
	if !ok {
		return ErrMissingPricePoint
	}
	qty := decimal.NewFromInt(int64(d.Quantity))
	d.DiscountedPrice = unit.Mul(qty)
	d.OriginalPrice = v.ListPrice.Mul(qty)
	d.DiscountRate = discountRate(d.OriginalPrice, d.DiscountedPrice)
	d.ManagementFeePerUnit = v.FeePerUnit(d.Mode)
	d.ManagementFee = d.ManagementFeePerUnit.Mul(qty)
	return nil
}

func resolveDownPayment(d *LineDetail, v *catalog.Variant) error {
	if d.Mode.IsCash() {
		d.ProductDownPayment = d.DiscountedPrice
		d.ManagementDownPayment = d.ManagementFee
		return nil
	}
	dp, ok := v.DownPayment(d.Mode)
	if !ok {
		return fmt.Errorf("%w: %w", ErrMissingDownPayment, catalog.ErrIntegrityGap)
	}
	qty := decimal.NewFromInt(int64(d.Quantity))
	d.ProductDownPayment = dp.Product.Mul(qty)
	d.ManagementDownPayment = dp.Management.Mul(qty)
	return nil
}

func amortize(d *LineDetail, v *catalog.Variant) {
	if !d.Mode.IsInstallment() {
		return
	}
	terms, ok := v.Terms()
	if !ok {
		return
	}
	n := decimal.NewFromInt(int64(terms))
	d.Terms = terms
	d.MonthlyProduct = decimal.NewNullDecimal(d.DiscountedPrice.Sub(d.ProductDownPayment).Div(n))
	d.MonthlyManagement = decimal.NewNullDecimal(d.ManagementFee.Sub(d.ManagementDownPayment).Div(n))
}

func aggregate(lines []LineDetail) Summary {
	s := Summary{
		TotalOriginal:              decimal.Zero,
		TotalDiscounted:            decimal.Zero,
		TotalManagementFee:         decimal.Zero,
		TotalDownPayment:           decimal.Zero,
		TotalManagementDownPayment: decimal.Zero,
		Lines:                      lines,
		Schedule:                   []Band{},
	}
	for _, l := range lines {
		s.TotalOriginal = s.TotalOriginal.Add(l.OriginalPrice)
		s.TotalDiscounted = s.TotalDiscounted.Add(l.DiscountedPrice)
		s.TotalManagementFee = s.TotalManagementFee.Add(l.ManagementFee)
		s.TotalDownPayment = s.TotalDownPayment.Add(l.ProductDownPayment)
		s.TotalManagementDownPayment = s.TotalManagementDownPayment.Add(l.ManagementDownPayment)
	}
	s.DiscountRate = discountRate(s.TotalOriginal, s.TotalDiscounted)
	s.FinalTotal = s.TotalDiscounted.Add(s.TotalManagementFee)
	s.DueAtSigning = money.Sum(s.TotalDownPayment, s.TotalManagementDownPayment)

	series := PeriodSeries(lines)
	s.Terms = series.Len()
	s.Schedule = CompressSchedule(series)
	return s
}

func discountRate(original, discounted decimal.Decimal) decimal.Decimal {
	if !original.IsPositive() {
		return decimal.Zero
	}
	return original.Sub(discounted).Div(original)
}
