package main

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/wizard"
)

// numeric is a request field that may be sent as a JSON number or string.
// It is kept raw so the parse helpers can report the offending field.
type numeric string

func (n *numeric) UnmarshalJSON(b []byte) error {
	*n = numeric(strings.TrimSpace(strings.Trim(string(b), `"`)))
	return nil
}

func fieldError(field, msg string) error {
	return &wizard.ValidationError{Field: field, Message: msg}
}

func parseDecimal(raw numeric, field string) (decimal.Decimal, error) {
	if raw == "" || raw == "null" {
		return decimal.Zero, fieldError(field, "is required")
	}
	value, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, fieldError(field, "must be numeric")
	}
	return value, nil
}

func parseNonNegativeDecimal(raw numeric, field string) (decimal.Decimal, error) {
	value, err := parseDecimal(raw, field)
	if err != nil {
		return decimal.Zero, err
	}
	if value.IsNegative() {
		return decimal.Zero, fieldError(field, "must be greater than or equal to 0")
	}
	return value, nil
}

// parseOptionalNonNegativeDecimal returns nil when the field was left out.
func parseOptionalNonNegativeDecimal(raw numeric, field string) (*decimal.Decimal, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	value, err := parseNonNegativeDecimal(raw, field)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func parsePercent(raw numeric, field string) (decimal.Decimal, error) {
	value, err := parseNonNegativeDecimal(raw, field)
	if err != nil {
		return decimal.Zero, err
	}
	if value.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fieldError(field, "must be between 0 and 100")
	}
	return value, nil
}

func parseID(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fieldError(field, "must be an integer")
	}
	if id <= 0 {
		return 0, fieldError(field, "must be greater than 0")
	}
	return id, nil
}
