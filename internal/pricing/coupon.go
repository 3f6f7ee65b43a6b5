package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidCoupon means the code is unknown or carries no usable discount.
var ErrInvalidCoupon = errors.New("invalid coupon code")

// CouponValidator looks up the discount percentage of a coupon code.
type CouponValidator interface {
	ValidateCoupon(ctx context.Context, code string) (decimal.Decimal, error)
}

// ResolveDiscount returns the discount percentage for code. Any failure,
// including a percentage outside (0, 100], yields zero together with an
// error so a previously applied discount is never kept.
func ResolveDiscount(ctx context.Context, v CouponValidator, code string) (decimal.Decimal, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return decimal.Zero, ErrInvalidCoupon
	}

	pct, err := v.ValidateCoupon(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("validate coupon %q: %w", code, err)
	}
	if !pct.IsPositive() || pct.GreaterThan(hundred) {
		return decimal.Zero, ErrInvalidCoupon
	}
	return pct, nil
}
