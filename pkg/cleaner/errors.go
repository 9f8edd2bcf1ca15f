// pkg/cleaner/errors.go
package cleaner

import (
	"errors"
	"fmt"

	"github.com/David-Botos/experiment-cleaning/pkg/model"
)

var (
	// ErrDuplicateColumn is returned when two headers normalize to the same name
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrNilTable is returned when an input table is missing altogether
	ErrNilTable = errors.New("table cannot be nil")
	// ErrNotIntegral is returned for metric values that are not whole numbers
	ErrNotIntegral = errors.New("value is not an integral number")
	// ErrMissingValue is returned for missing cells in columns that require a value
	ErrMissingValue = errors.New("missing value")
	// ErrTimestampFormat is returned for timestamps that do not match the layout
	ErrTimestampFormat = errors.New("timestamp does not match layout")
	// ErrUnsupportedType is returned when a cell holds a type that cannot be coerced
	ErrUnsupportedType = errors.New("unsupported value type")
)

// ErrorCategory classifies cleaning failures
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	// Input tables lack expected columns or have conflicting headers
	ErrorCategoryShape
	// Text could not be parsed into the target type
	ErrorCategoryParse
	// A value could not be represented in the target type
	ErrorCategoryConversion
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryShape:
		return "Shape"
	case ErrorCategoryParse:
		return "Parse"
	case ErrorCategoryConversion:
		return "Conversion"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// CoercionError reports a cell that could not be coerced to its column type
type CoercionError struct {
	Category ErrorCategory
	Table    string
	Column   string
	Row      int
	Value    model.Value
	Err      error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("[%s] %s.%s row %d: cannot coerce %q: %v",
		e.Category, e.Table, e.Column, e.Row, e.Value.String(), e.Err)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

// CategorizeError determines the category of an error returned by the cleaner
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	var coercionErr *CoercionError
	if errors.As(err, &coercionErr) {
		return coercionErr.Category
	}

	if errors.Is(err, model.ErrMissingColumn) ||
		errors.Is(err, ErrDuplicateColumn) ||
		errors.Is(err, ErrNilTable) ||
		errors.Is(err, model.ErrRowArity) {
		return ErrorCategoryShape
	}

	return ErrorCategoryNone
}
