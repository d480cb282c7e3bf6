package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPurchaseMode is returned when a purchase mode tag is not part of the enumeration.
var ErrUnknownPurchaseMode = errors.New("unknown purchase mode")

// PurchaseMode is the pricing plan selected for a line.
type PurchaseMode string

const (
	ModeCash              PurchaseMode = "cash"
	ModePreorderCash      PurchaseMode = "preorder_cash"
	ModeImmediateCash     PurchaseMode = "immediate_cash"
	ModeAddonCash         PurchaseMode = "addon_cash"
	ModeSingleCash        PurchaseMode = "single_cash"
	ModeGroupCash         PurchaseMode = "group_cash"
	ModeInstallment       PurchaseMode = "installment"
	ModeSingleInstallment PurchaseMode = "single_installment"
	ModeGroupInstallment  PurchaseMode = "group_installment"
)

// Settlement tells whether a mode is paid up front or amortized.
type Settlement string

const (
	SettlementCash        Settlement = "cash"
	SettlementInstallment Settlement = "installment"
)

// Family groups modes that share fee overrides.
type Family string

const (
	FamilyStandard Family = "standard"
	FamilyAddon    Family = "addon"
	FamilySingle   Family = "single"
	FamilyGroup    Family = "group"
)

type modeInfo struct {
	mode       PurchaseMode
	settlement Settlement
	family     Family
	label      string
}

// modeTable is ordered the way offered modes are presented.
var modeTable = []modeInfo{
	{ModeCash, SettlementCash, FamilyStandard, "現金價"},
	{ModePreorderCash, SettlementCash, FamilyStandard, "預購-現金價"},
	{ModeInstallment, SettlementInstallment, FamilyStandard, "分期價"},
	{ModeImmediateCash, SettlementCash, FamilyStandard, "馬上使用-現金價"},
	{ModeAddonCash, SettlementCash, FamilyAddon, "加購-現金價"},
	{ModeSingleCash, SettlementCash, FamilySingle, "單購-現金價"},
	{ModeSingleInstallment, SettlementInstallment, FamilySingle, "單購-分期價"},
	{ModeGroupCash, SettlementCash, FamilyGroup, "團購-現金價"},
	{ModeGroupInstallment, SettlementInstallment, FamilyGroup, "團購-分期價"},
}

var families = map[Family]struct{}{
	FamilyStandard: {},
	FamilyAddon:    {},
	FamilySingle:   {},
	FamilyGroup:    {},
}

func lookupMode(m PurchaseMode) (modeInfo, bool) {
	for _, info := range modeTable {
		if info.mode == m {
			return info, true
		}
	}
	return modeInfo{}, false
}

// ParsePurchaseMode normalises and validates a purchase mode tag.
func ParsePurchaseMode(value string) (PurchaseMode, error) {
	m := PurchaseMode(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := lookupMode(m); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPurchaseMode, value)
	}
	return m, nil
}

// ParseFamily validates a fee-override family tag.
func ParseFamily(value string) (Family, error) {
	f := Family(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := families[f]; !ok {
		return "", fmt.Errorf("unknown purchase mode family %q", value)
	}
	return f, nil
}

// Modes returns every purchase mode in presentation order.
func Modes() []PurchaseMode {
	out := make([]PurchaseMode, 0, len(modeTable))
	for _, info := range modeTable {
		out = append(out, info.mode)
	}
	return out
}

// Valid reports whether m is part of the enumeration.
func (m PurchaseMode) Valid() bool {
	_, ok := lookupMode(m)
	return ok
}

// Settlement returns whether the mode is a cash or installment plan.
func (m PurchaseMode) Settlement() Settlement {
	info, _ := lookupMode(m)
	return info.settlement
}

// IsInstallment reports whether the mode belongs to the installment family.
func (m PurchaseMode) IsInstallment() bool {
	return m.Settlement() == SettlementInstallment
}

// IsCash reports whether the mode belongs to the cash family.
func (m PurchaseMode) IsCash() bool {
	return m.Settlement() == SettlementCash
}

// Family returns the fee-override family of the mode.
func (m PurchaseMode) Family() Family {
	info, _ := lookupMode(m)
	return info.family
}

// Label returns the display name printed on proposals.
func (m PurchaseMode) Label() string {
	info, ok := lookupMode(m)
	if !ok {
		return string(m)
	}
	return info.label
}

// LabelWithTerms appends the term count for installment lines, e.g. "分期價-24期".
func (m PurchaseMode) LabelWithTerms(terms int) string {
	if !m.IsInstallment() || terms <= 0 {
		return m.Label()
	}
	return fmt.Sprintf("%s-%d期", m.Label(), terms)
}

func modeOrder(m PurchaseMode) int {
	for i, info := range modeTable {
		if info.mode == m {
			return i
		}
	}
	return len(modeTable)
}
