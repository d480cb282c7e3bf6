package catalog

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCatalog marks a hard validation failure that blocks loading.
	ErrInvalidCatalog = errors.New("invalid catalog")
	// ErrIntegrityGap marks a data gap that is tolerated at load time but fails the affected
	// lines at compute time.
	ErrIntegrityGap = errors.New("catalog integrity gap")
)

const defaultCurrency = "TWD"

//go:embed data/greengarden.json
var defaultFS embed.FS

// Document is the on-disk representation of a catalog.
type Document struct {
	Version    string        `json:"version"`
	Currency   string        `json:"currency,omitempty"`
	Categories []CategoryDoc `json:"categories"`
}

// CategoryDoc describes one category inside a Document.
type CategoryDoc struct {
	Name     string       `json:"name"`
	Kind     string       `json:"kind"`
	Variants []VariantDoc `json:"variants"`
}

// VariantDoc describes one variant. A null price point means the mode is not offered.
type VariantDoc struct {
	Name             string                      `json:"name"`
	ListPrice        decimal.Decimal             `json:"list_price"`
	PricePoints      map[string]*decimal.Decimal `json:"price_points"`
	ManagementFee    decimal.Decimal             `json:"management_fee"`
	FeeOverrides     map[string]decimal.Decimal  `json:"fee_overrides,omitempty"`
	InstallmentTerms int                         `json:"installment_terms,omitempty"`
	DownPayments     map[string]DownPaymentDoc   `json:"down_payments,omitempty"`
}

// DownPaymentDoc is the per-unit down payment for one installment mode.
type DownPaymentDoc struct {
	Product    decimal.Decimal `json:"product"`
	Management decimal.Decimal `json:"management"`
}

// Report collects validation findings for a Document.
type Report struct {
	Errors   []error
	Warnings []error
}

// Err joins hard errors, or returns nil when the document can be loaded.
func (r Report) Err() error {
	return errors.Join(r.Errors...)
}

func (r *Report) fail(category, variant, format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Errorf("%w: %s", ErrInvalidCatalog, where(category, variant)+fmt.Sprintf(format, args...)))
}

func (r *Report) warn(category, variant, format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Errorf("%w: %s", ErrIntegrityGap, where(category, variant)+fmt.Sprintf(format, args...)))
}

func where(category, variant string) string {
	switch {
	case category == "":
		return ""
	case variant == "":
		return category + ": "
	default:
		return category + "/" + variant + ": "
	}
}

// Validate checks a document against the uniform per-unit conventions.
func Validate(doc Document) Report {
	r, _ := validate(doc)
	return r
}

// variantTables holds a variant's tables keyed by canonical mode and family tags.
type variantTables struct {
	pricePoints  map[PurchaseMode]decimal.Decimal
	feeOverrides map[Family]decimal.Decimal
	downPayments map[PurchaseMode]DownPayment
}

func validate(doc Document) (Report, map[variantKey]variantTables) {
	var r Report
	tables := map[variantKey]variantTables{}
	if len(doc.Categories) == 0 {
		r.fail("", "", "no categories")
	}
	seenCategory := map[string]struct{}{}
	for _, cat := range doc.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			r.fail("", "", "category name is required")
			continue
		}
		if _, dup := seenCategory[name]; dup {
			r.fail(name, "", "duplicate category")
		}
		seenCategory[name] = struct{}{}
		switch Kind(cat.Kind) {
		case KindCemetery, KindMemorial:
		default:
			r.fail(name, "", "unknown kind %q", cat.Kind)
		}
		seenVariant := map[string]struct{}{}
		for _, v := range cat.Variants {
			vname := strings.TrimSpace(v.Name)
			if vname == "" {
				r.fail(name, "", "variant name is required")
				continue
			}
			if _, dup := seenVariant[vname]; dup {
				r.fail(name, vname, "duplicate variant")
			}
			seenVariant[vname] = struct{}{}
			tables[variantKey{category: name, variant: vname}] = validateVariant(&r, name, v)
		}
	}
	return r, tables
}

func sortedTags[V any](m map[string]V) []string {
	tags := make([]string, 0, len(m))
	for tag := range m {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func validateVariant(r *Report, category string, v VariantDoc) variantTables {
	name := strings.TrimSpace(v.Name)
	t := variantTables{
		pricePoints:  map[PurchaseMode]decimal.Decimal{},
		feeOverrides: map[Family]decimal.Decimal{},
		downPayments: map[PurchaseMode]DownPayment{},
	}
	if v.ListPrice.IsNegative() {
		r.fail(category, name, "negative list price")
	}
	if v.ManagementFee.IsNegative() {
		r.fail(category, name, "negative management fee")
	}
	if v.InstallmentTerms < 0 {
		r.fail(category, name, "negative installment terms")
	}
	for _, tag := range sortedTags(v.FeeOverrides) {
		fee := v.FeeOverrides[tag]
		f, err := ParseFamily(tag)
		if err != nil {
			r.fail(category, name, "%v", err)
			continue
		}
		if _, dup := t.feeOverrides[f]; dup {
			r.fail(category, name, "duplicate %s fee override %q", f, tag)
			continue
		}
		if fee.IsNegative() {
			r.fail(category, name, "negative %s fee override", f)
		}
		t.feeOverrides[f] = fee
	}
	// Null price points still claim their mode so a second spelling cannot slip in.
	seenMode := map[PurchaseMode]struct{}{}
	for _, tag := range sortedTags(v.PricePoints) {
		price := v.PricePoints[tag]
		m, err := ParsePurchaseMode(tag)
		if err != nil {
			r.fail(category, name, "%v", err)
			continue
		}
		if _, dup := seenMode[m]; dup {
			r.fail(category, name, "duplicate %s price point %q", m, tag)
			continue
		}
		seenMode[m] = struct{}{}
		if price == nil {
			continue
		}
		if price.IsNegative() {
			r.fail(category, name, "negative %s price", m)
		}
		t.pricePoints[m] = *price
		if m.IsInstallment() && v.InstallmentTerms <= 0 {
			r.fail(category, name, "%s offered without installment terms", m)
		}
	}
	for _, tag := range sortedTags(v.DownPayments) {
		dp := v.DownPayments[tag]
		m, err := ParsePurchaseMode(tag)
		if err != nil {
			r.fail(category, name, "%v", err)
			continue
		}
		if _, dup := t.downPayments[m]; dup {
			r.fail(category, name, "duplicate %s down payment %q", m, tag)
			continue
		}
		if !m.IsInstallment() {
			r.fail(category, name, "down payment defined for cash mode %s", m)
			continue
		}
		price, ok := t.pricePoints[m]
		if !ok {
			r.fail(category, name, "down payment defined for %s which has no price point", m)
			continue
		}
		if dp.Product.IsNegative() || dp.Management.IsNegative() {
			r.fail(category, name, "negative %s down payment", m)
		}
		if dp.Product.GreaterThan(price) {
			r.fail(category, name, "%s product down payment exceeds price", m)
		}
		fee := v.ManagementFee
		if override, ok := t.feeOverrides[m.Family()]; ok {
			fee = override
		}
		if dp.Management.GreaterThan(fee) {
			r.fail(category, name, "%s management down payment exceeds fee", m)
		}
		t.downPayments[m] = DownPayment(dp)
	}
	for _, m := range Modes() {
		if _, offered := t.pricePoints[m]; !offered || !m.IsInstallment() {
			continue
		}
		if _, ok := t.downPayments[m]; !ok {
			r.warn(category, name, "%s has no down payment entry", m)
		}
	}
	return t
}

// Build validates the document and constructs an immutable Catalog.
func Build(doc Document) (*Catalog, error) {
	report, tables := validate(doc)
	if err := report.Err(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("fingerprint catalog: %w", err)
	}
	sum := sha256.Sum256(raw)

	c := &Catalog{
		version:     strings.TrimSpace(doc.Version),
		currency:    strings.ToUpper(strings.TrimSpace(doc.Currency)),
		fingerprint: hex.EncodeToString(sum[:]),
		index:       map[variantKey]*Variant{},
		warnings:    report.Warnings,
	}
	if c.currency == "" {
		c.currency = defaultCurrency
	}
	if c.version == "" {
		c.version = c.fingerprint[:12]
	}
	for _, cd := range doc.Categories {
		cat := &Category{Name: strings.TrimSpace(cd.Name), Kind: Kind(cd.Kind)}
		for _, vd := range cd.Variants {
			key := variantKey{category: cat.Name, variant: strings.TrimSpace(vd.Name)}
			t := tables[key]
			v := &Variant{
				Category:         key.category,
				Name:             key.variant,
				ListPrice:        vd.ListPrice,
				ManagementFee:    vd.ManagementFee,
				InstallmentTerms: vd.InstallmentTerms,
				pricePoints:      t.pricePoints,
				feeOverrides:     t.feeOverrides,
				downPayments:     t.downPayments,
			}
			cat.Variants = append(cat.Variants, v)
			c.index[key] = v
		}
		c.categories = append(c.categories, cat)
	}
	return c, nil
}

// Parse decodes a JSON document and builds the catalog.
func Parse(r io.Reader) (*Catalog, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return Build(doc)
}

// LoadFile reads and builds the catalog stored at path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Default returns the embedded Green Garden reference catalog.
func Default() (*Catalog, error) {
	data, err := defaultFS.ReadFile("data/greengarden.json")
	if err != nil {
		return nil, fmt.Errorf("read embedded catalog: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Load returns the catalog at path, or the embedded catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	return LoadFile(path)
}
