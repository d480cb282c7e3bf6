package pricing

import (
	"errors"
	"fmt"

	"github.com/noah-isme/backend-proposal/internal/catalog"
)

var (
	// ErrMissingPricePoint is returned when the requested mode is not offered for the variant.
	ErrMissingPricePoint = errors.New("missing price point")
	// ErrMissingDownPayment is returned when an installment mode has no tabulated down payment.
	ErrMissingDownPayment = errors.New("missing down payment entry")
	// ErrUnknownVariant is returned when the category/variant pair is not in the catalog.
	ErrUnknownVariant = errors.New("unknown catalog variant")
	// ErrInvalidQuantity is returned for quantities below one.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrUnknownPurchaseMode is returned for purchase modes outside the enumeration.
	ErrUnknownPurchaseMode = catalog.ErrUnknownPurchaseMode
	// ErrNoCatalog is returned when Compute is called without a catalog snapshot.
	ErrNoCatalog = errors.New("catalog is required")
)

// LineError names the line item that aborted a computation.
type LineError struct {
	// Index is the zero-based position of the line in the selection.
	Index    int
	Category string
	Variant  string
	Mode     catalog.PurchaseMode
	Err      error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (%s/%s, %s): %v", e.Index+1, e.Category, e.Variant, e.Mode, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

func lineError(index int, item LineItem, err error) error {
	return &LineError{
		Index:    index,
		Category: item.Category,
		Variant:  item.Variant,
		Mode:     item.Mode,
		Err:      err,
	}
}
