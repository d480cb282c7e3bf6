package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-proposal/internal/money"
)

// Band is a maximal run of periods sharing the same aggregate monthly payment.
type Band struct {
	Start      int             `json:"start_period"`
	End        int             `json:"end_period"`
	Total      decimal.Decimal `json:"total_amount"`
	Product    decimal.Decimal `json:"product_amount"`
	Management decimal.Decimal `json:"management_amount"`
}

// Periods returns the number of periods covered by the band.
func (b Band) Periods() int { return b.End - b.Start + 1 }

// Label renders the period range, e.g. "第1-18期" or "第19期".
func (b Band) Label() string {
	if b.Start == b.End {
		return fmt.Sprintf("第%d期", b.Start)
	}
	return fmt.Sprintf("第%d-%d期", b.Start, b.End)
}

// Series holds per-period amounts; index 0 is period 1.
type Series struct {
	Product    []decimal.Decimal
	Management []decimal.Decimal
	Total      []decimal.Decimal
}

// Len is the number of periods, which equals the longest term.
func (s Series) Len() int { return len(s.Total) }

// PeriodSeries superposes every amortized line over its own term window.
func PeriodSeries(lines []LineDetail) Series {
	maxTerm := 0
	for _, l := range lines {
		if l.Amortized() && l.Terms > maxTerm {
			maxTerm = l.Terms
		}
	}
	s := Series{
		Product:    make([]decimal.Decimal, maxTerm),
		Management: make([]decimal.Decimal, maxTerm),
		Total:      make([]decimal.Decimal, maxTerm),
	}
	for p := 0; p < maxTerm; p++ {
		s.Product[p] = decimal.Zero
		s.Management[p] = decimal.Zero
	}
	for _, l := range lines {
		if !l.Amortized() {
			continue
		}
		for p := 0; p < l.Terms; p++ {
			s.Product[p] = s.Product[p].Add(l.MonthlyProduct.Decimal)
			s.Management[p] = s.Management[p].Add(l.MonthlyManagement.Decimal)
		}
	}
	for p := 0; p < maxTerm; p++ {
		s.Total[p] = s.Product[p].Add(s.Management[p])
	}
	return s
}

// CompressSchedule run-length encodes the total series into bands. A period joins the
// current band while its total is within one currency unit of the band's first period.
func CompressSchedule(s Series) []Band {
	bands := []Band{}
	n := s.Len()
	for start := 0; start < n; {
		head := s.Total[start]
		end := start
		for end+1 < n && money.Within(s.Total[end+1], head, money.Unit) {
			end++
		}
		bands = append(bands, Band{
			Start:      start + 1,
			End:        end + 1,
			Total:      head,
			Product:    at(s.Product, start),
			Management: at(s.Management, start),
		})
		start = end + 1
	}
	return bands
}

// ExpandBands rebuilds the per-period series from bands.
func ExpandBands(bands []Band) Series {
	n := 0
	for _, b := range bands {
		if b.End > n {
			n = b.End
		}
	}
	s := Series{
		Product:    make([]decimal.Decimal, n),
		Management: make([]decimal.Decimal, n),
		Total:      make([]decimal.Decimal, n),
	}
	for _, b := range bands {
		for p := b.Start; p <= b.End; p++ {
			s.Product[p-1] = b.Product
			s.Management[p-1] = b.Management
			s.Total[p-1] = b.Total
		}
	}
	return s
}

func at(values []decimal.Decimal, i int) decimal.Decimal {
	if i < len(values) {
		return values[i]
	}
	return decimal.Zero
}
