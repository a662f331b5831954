// Package coltype validates abstract column types and renders them as
// dialect DDL type strings.
package coltype

import (
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

const (
	MaxNVarCharLength = 4000
	MaxVarCharLength  = 8000
	MaxPrecision      = 38

	// FallbackLength bounds the text type used for labels outside the enumeration.
	FallbackLength = 255
)

// Renderer turns an already-validated abstract type into a dialect type string.
type Renderer interface {
	ColumnType(t models.ColumnType, length, precision, scale *int) string
}

// MapType validates the bounds of t and returns the DDL type string for r.
// Labels outside the enumeration are not an error; they render as the
// dialect's bounded text fallback.
func MapType(t models.ColumnType, length, precision, scale *int, r Renderer) (string, error) {
	if err := Validate(t, length, precision, scale); err != nil {
		return "", err
	}
	length, precision, scale = Normalize(t, length, precision, scale)
	return r.ColumnType(t, length, precision, scale), nil
}

// Validate applies the per-type bound rules.
func Validate(t models.ColumnType, length, precision, scale *int) error {
	switch t {
	case "":
		return apperrors.Validationf("data type is required")
	case models.ColumnTypeNVarChar:
		return checkLength(t, length, MaxNVarCharLength)
	case models.ColumnTypeVarChar, models.ColumnTypeChar:
		return checkLength(t, length, MaxVarCharLength)
	case models.ColumnTypeDecimal, models.ColumnTypeNumeric:
		if precision == nil {
			return apperrors.Validationf("%s requires a precision", t)
		}
		if *precision < 1 || *precision > MaxPrecision {
			return apperrors.Validationf("%s precision must be between 1 and %d", t, MaxPrecision)
		}
		if scale != nil && (*scale < 0 || *scale > *precision) {
			return apperrors.Validationf("%s scale must be between 0 and the precision (%d)", t, *precision)
		}
	}
	return nil
}

func checkLength(t models.ColumnType, length *int, max int) error {
	if length == nil {
		return apperrors.Validationf("%s requires a length", t)
	}
	if *length < 1 || *length > max {
		return apperrors.Validationf("%s length must be between 1 and %d", t, max)
	}
	return nil
}

// Normalize drops the bounds that do not apply to t, so that NULL encodes
// "not applicable or unbounded" the same way for every dialect.
func Normalize(t models.ColumnType, length, precision, scale *int) (*int, *int, *int) {
	switch t {
	case models.ColumnTypeNVarChar, models.ColumnTypeVarChar, models.ColumnTypeChar:
		return copyBound(length), nil, nil
	case models.ColumnTypeDecimal, models.ColumnTypeNumeric:
		return nil, copyBound(precision), copyBound(scale)
	case models.ColumnTypeInt, models.ColumnTypeBigInt, models.ColumnTypeBit, models.ColumnTypeDateTime,
		models.ColumnTypeFloat, models.ColumnTypeImage:
		return nil, nil, nil
	default:
		return copyBound(length), copyBound(precision), copyBound(scale)
	}
}

func copyBound(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// IsTextual reports whether t stores character data.
func IsTextual(t models.ColumnType) bool {
	switch t {
	case models.ColumnTypeNVarChar, models.ColumnTypeVarChar, models.ColumnTypeChar, models.ColumnTypeImage:
		return true
	}
	return !t.IsKnown()
}

// IsNumeric reports whether t stores a number (bit included).
func IsNumeric(t models.ColumnType) bool {
	switch t {
	case models.ColumnTypeInt, models.ColumnTypeBigInt, models.ColumnTypeBit, models.ColumnTypeFloat,
		models.ColumnTypeDecimal, models.ColumnTypeNumeric:
		return true
	}
	return false
}
