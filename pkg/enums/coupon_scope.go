package enums

import "fmt"

// CouponScope maps to the coupon_scope enum in Postgres. It determines
// which callers may apply a coupon.
type CouponScope string

const (
	CouponScopeGlobal CouponScope = "global"
	CouponScopeUser   CouponScope = "user"
	CouponScopePhone  CouponScope = "phone"
)

var validCouponScopes = []CouponScope{
	CouponScopeGlobal,
	CouponScopeUser,
	CouponScopePhone,
}

// IsValid reports whether the value matches the canonical coupon scope enum.
func (s CouponScope) IsValid() bool {
	for _, candidate := range validCouponScopes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCouponScope converts raw input into CouponScope.
func ParseCouponScope(value string) (CouponScope, error) {
	for _, candidate := range validCouponScopes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid coupon scope %q", value)
}
