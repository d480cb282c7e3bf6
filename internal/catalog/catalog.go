// Package catalog holds the immutable price reference tables consulted by the pricing engine.
//
// All stored amounts are per unit. Consumers multiply by quantity; nothing in this package
// does.
package catalog

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Kind distinguishes the product lines of a category.
type Kind string

const (
	KindCemetery Kind = "cemetery"
	KindMemorial Kind = "memorial"
)

// DownPayment is the flat per-unit amount due at signing for an installment mode.
type DownPayment struct {
	Product    decimal.Decimal
	Management decimal.Decimal
}

// Variant is one purchasable configuration of a category.
type Variant struct {
	Category         string
	Name             string
	ListPrice        decimal.Decimal
	ManagementFee    decimal.Decimal
	InstallmentTerms int

	pricePoints  map[PurchaseMode]decimal.Decimal
	feeOverrides map[Family]decimal.Decimal
	downPayments map[PurchaseMode]DownPayment
}

// PricePoint returns the per-unit price for the mode and whether the mode is offered.
func (v *Variant) PricePoint(m PurchaseMode) (decimal.Decimal, bool) {
	price, ok := v.pricePoints[m]
	return price, ok
}

// FeePerUnit resolves the management fee for the mode, honouring a family override.
func (v *Variant) FeePerUnit(m PurchaseMode) decimal.Decimal {
	if fee, ok := v.feeOverrides[m.Family()]; ok {
		return fee
	}
	return v.ManagementFee
}

// FeeOverride returns the override configured for a family, if any.
func (v *Variant) FeeOverride(f Family) (decimal.Decimal, bool) {
	fee, ok := v.feeOverrides[f]
	return fee, ok
}

// Terms returns the installment term count when the variant has an installment offering.
func (v *Variant) Terms() (int, bool) {
	if v.InstallmentTerms <= 0 {
		return 0, false
	}
	return v.InstallmentTerms, true
}

// DownPayment returns the tabulated per-unit down payment for an installment mode.
func (v *Variant) DownPayment(m PurchaseMode) (DownPayment, bool) {
	dp, ok := v.downPayments[m]
	return dp, ok
}

// OfferedModes lists the modes with a price point in presentation order.
func (v *Variant) OfferedModes() []PurchaseMode {
	out := make([]PurchaseMode, 0, len(v.pricePoints))
	for m := range v.pricePoints {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return modeOrder(out[i]) < modeOrder(out[j]) })
	return out
}

// Category groups variants of one product line.
type Category struct {
	Name     string
	Kind     Kind
	Variants []*Variant
}

type variantKey struct {
	category string
	variant  string
}

// Catalog is a read-only snapshot of every category and variant.
type Catalog struct {
	version     string
	currency    string
	fingerprint string
	categories  []*Category
	index       map[variantKey]*Variant
	warnings    []error
}

// Version returns the document version label.
func (c *Catalog) Version() string { return c.version }

// Currency returns the ISO currency code of every amount in the catalog.
func (c *Catalog) Currency() string { return c.currency }

// Fingerprint is a content hash that changes whenever any amount changes.
func (c *Catalog) Fingerprint() string { return c.fingerprint }

// Warnings lists integrity gaps found at load time that did not block loading.
func (c *Catalog) Warnings() []error {
	out := make([]error, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Categories returns categories in document order.
func (c *Catalog) Categories() []*Category {
	out := make([]*Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Variant looks up a variant by category and variant name.
func (c *Catalog) Variant(category, name string) (*Variant, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.index[variantKey{category: category, variant: name}]
	return v, ok
}

// VariantCount returns the number of variants across all categories.
func (c *Catalog) VariantCount() int {
	return len(c.index)
}
