package proposal

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-proposal/internal/catalog"
	"github.com/noah-isme/backend-proposal/internal/money"
	"github.com/noah-isme/backend-proposal/internal/pricing"
)

// QuoteView is the quote response: the raw summary plus display strings.
type QuoteView struct {
	pricing.Summary
	Display SummaryDisplay `json:"display"`
}

// SummaryDisplay carries the formatted totals shown on the proposal sheet.
type SummaryDisplay struct {
	TotalOriginal      string        `json:"total_original"`
	TotalDiscounted    string        `json:"total_discounted"`
	TotalManagementFee string        `json:"total_management_fee"`
	DiscountRate       string        `json:"discount_rate"`
	FinalTotal         string        `json:"final_total"`
	DueAtSigning       string        `json:"due_at_signing"`
	Lines              []LineDisplay `json:"lines"`
	Schedule           []BandDisplay `json:"schedule"`
}

// LineDisplay is one formatted line.
type LineDisplay struct {
	Label           string `json:"label"`
	OriginalPrice   string `json:"original_price"`
	DiscountedPrice string `json:"discounted_price"`
	DiscountRate    string `json:"discount_rate"`
	ManagementFee   string `json:"management_fee"`
	DownPayment     string `json:"down_payment"`
	Monthly         string `json:"monthly,omitempty"`
}

// BandDisplay is one formatted schedule band.
type BandDisplay struct {
	Label      string `json:"label"`
	Periods    int    `json:"periods"`
	Total      string `json:"total"`
	Product    string `json:"product"`
	Management string `json:"management"`
}

// NewQuoteView formats s for presentation.
func NewQuoteView(s pricing.Summary) QuoteView {
	d := SummaryDisplay{
		TotalOriginal:      money.Format(s.TotalOriginal),
		TotalDiscounted:    money.Format(s.TotalDiscounted),
		TotalManagementFee: money.Format(s.TotalManagementFee),
		DiscountRate:       money.FormatPercent(s.DiscountRate),
		FinalTotal:         money.Format(s.FinalTotal),
		DueAtSigning:       money.Format(s.DueAtSigning),
		Lines:              make([]LineDisplay, 0, len(s.Lines)),
		Schedule:           make([]BandDisplay, 0, len(s.Schedule)),
	}
	for _, l := range s.Lines {
		ld := LineDisplay{
			Label:           l.Label(),
			OriginalPrice:   money.Format(l.OriginalPrice),
			DiscountedPrice: money.Format(l.DiscountedPrice),
			DiscountRate:    money.FormatPercent(l.DiscountRate),
			ManagementFee:   money.Format(l.ManagementFee),
			DownPayment:     money.Format(l.DownPayment()),
		}
		if l.Amortized() {
			ld.Monthly = money.Format(l.MonthlyProduct.Decimal.Add(l.MonthlyManagement.Decimal))
		}
		d.Lines = append(d.Lines, ld)
	}
	for _, b := range s.Schedule {
		d.Schedule = append(d.Schedule, BandDisplay{
			Label:      b.Label(),
			Periods:    b.Periods(),
			Total:      money.Format(b.Total),
			Product:    money.Format(b.Product),
			Management: money.Format(b.Management),
		})
	}
	return QuoteView{Summary: s, Display: d}
}

// CatalogView lists what an agent can select.
type CatalogView struct {
	Version    string         `json:"version"`
	Currency   string         `json:"currency"`
	Categories []CategoryView `json:"categories"`
}

// CategoryView is one category of the catalog listing.
type CategoryView struct {
	Name     string        `json:"name"`
	Kind     catalog.Kind  `json:"kind"`
	Variants []VariantView `json:"variants"`
}

// VariantView is one variant with its offered modes.
type VariantView struct {
	Name          string          `json:"name"`
	ListPrice     decimal.Decimal `json:"list_price"`
	ManagementFee decimal.Decimal `json:"management_fee"`
	Terms         int             `json:"installment_terms,omitempty"`
	Modes         []ModeView      `json:"modes"`
}

// ModeView is one offered purchase mode of a variant.
type ModeView struct {
	Mode                  catalog.PurchaseMode `json:"mode"`
	Label                 string               `json:"label"`
	UnitPrice             decimal.Decimal      `json:"unit_price"`
	ManagementFee         decimal.Decimal      `json:"management_fee"`
	ProductDownPayment    *decimal.Decimal     `json:"product_down_payment,omitempty"`
	ManagementDownPayment *decimal.Decimal     `json:"management_down_payment,omitempty"`
}

// NewCatalogView flattens a catalog snapshot for the selection UI.
func NewCatalogView(cat *catalog.Catalog) CatalogView {
	view := CatalogView{Version: cat.Version(), Currency: cat.Currency()}
	for _, c := range cat.Categories() {
		cv := CategoryView{Name: c.Name, Kind: c.Kind, Variants: make([]VariantView, 0, len(c.Variants))}
		for _, v := range c.Variants {
			terms, _ := v.Terms()
			vv := VariantView{
				Name:          v.Name,
				ListPrice:     v.ListPrice,
				ManagementFee: v.ManagementFee,
				Terms:         terms,
			}
			for _, m := range v.OfferedModes() {
				price, _ := v.PricePoint(m)
				mv := ModeView{
					Mode:          m,
					Label:         m.LabelWithTerms(terms),
					UnitPrice:     price,
					ManagementFee: v.FeePerUnit(m),
				}
				if dp, ok := v.DownPayment(m); ok {
					product, management := dp.Product, dp.Management
					mv.ProductDownPayment = &product
					mv.ManagementDownPayment = &management
				}
				vv.Modes = append(vv.Modes, mv)
			}
			cv.Variants = append(cv.Variants, vv)
		}
		view.Categories = append(view.Categories, cv)
	}
	return view
}
