package coupons

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mercaline/storefront-backend/pkg/db/models"
	dbtypes "github.com/mercaline/storefront-backend/pkg/db/types"
	"github.com/mercaline/storefront-backend/pkg/enums"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
)

// Identity is the caller the evaluator judges eligibility for.
type Identity struct {
	UserID uuid.UUID
	Phone  *string
}

// Decision is the immutable record Apply produces. Checkout feeds it into the
// pricing engine; it is never cached across requests.
type Decision struct {
	CouponID         uuid.UUID        `json:"coupon_id"`
	Code             string           `json:"code"`
	Type             enums.CouponType `json:"type"`
	Value            int64            `json:"value"`
	MaxDiscountCents int64            `json:"max_discount_cents"`
}

// Offer is one entry in the eligible-coupon listing.
type Offer struct {
	CouponID            uuid.UUID        `json:"coupon_id"`
	Code                string           `json:"code"`
	Type                enums.CouponType `json:"type"`
	Value               int64            `json:"value"`
	MaxDiscountCents    int64            `json:"max_discount_cents,omitempty"`
	MinOrderAmountCents int64            `json:"min_order_amount_cents,omitempty"`
	ValidUntil          time.Time        `json:"valid_until"`
}

// UsageChecker reports whether a user has already consumed a coupon. The
// ledger repository implements it; usage is derived from posted entries, not
// from a counter on the coupon row.
type UsageChecker interface {
	HasCouponUse(ctx context.Context, userID, couponID uuid.UUID) (bool, error)
}

// Service evaluates coupon eligibility.
type Service interface {
	ListEligible(ctx context.Context, identity Identity, subtotalCents int64) ([]Offer, error)
	Apply(ctx context.Context, identity Identity, code string, subtotalCents int64) (*Decision, error)
	Create(ctx context.Context, input CreateCouponInput) (*models.Coupon, error)
}

type service struct {
	repo  Repository
	usage UsageChecker
	now   func() time.Time
}

// NewService wires the coupon evaluator.
func NewService(repo Repository, usage UsageChecker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupons repository required")
	}
	if usage == nil {
		return nil, fmt.Errorf("usage checker required")
	}
	return &service{repo: repo, usage: usage, now: time.Now}, nil
}

func (s *service) ListEligible(ctx context.Context, identity Identity, subtotalCents int64) ([]Offer, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	now := s.now()
	coupons, err := s.repo.ListActive(ctx, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing coupons")
	}

	offers := make([]Offer, 0, len(coupons))
	for i := range coupons {
		coupon := &coupons[i]
		if !scopeMatches(coupon, identity) {
			continue
		}
		if coupon.MinOrderAmountCents > 0 && subtotalCents < coupon.MinOrderAmountCents {
			continue
		}
		if coupon.UsageLimit == 1 {
			used, err := s.usage.HasCouponUse(ctx, identity.UserID, coupon.ID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking coupon usage")
			}
			if used {
				continue
			}
		}
		offers = append(offers, Offer{
			CouponID:            coupon.ID,
			Code:                coupon.Code,
			Type:                coupon.Type,
			Value:               coupon.Value,
			MaxDiscountCents:    coupon.MaxDiscountCents,
			MinOrderAmountCents: coupon.MinOrderAmountCents,
			ValidUntil:          coupon.ValidUntil,
		})
	}
	return offers, nil
}

// Apply re-validates everything from scratch. Callers must invoke it again at
// order-commit time even if ListEligible ran earlier; the final guard against
// a double-spent single-use coupon is the unique index the ledger insert hits.
func (s *service) Apply(ctx context.Context, identity Identity, code string, subtotalCents int64) (*Decision, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	code = strings.TrimSpace(strings.ToUpper(code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up coupon")
	}
	if coupon == nil || !coupon.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "coupon not found or inactive")
	}

	now := s.now()
	if now.Before(coupon.ValidFrom) || now.After(coupon.ValidUntil) {
		return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "coupon is outside its validity window")
	}
	if !scopeMatches(coupon, identity) {
		return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "coupon is not available for this account")
	}
	if coupon.MinOrderAmountCents > 0 && subtotalCents < coupon.MinOrderAmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "order does not meet the coupon minimum").
			WithDetails(map[string]any{"min_order_amount_cents": coupon.MinOrderAmountCents})
	}
	if coupon.UsageLimit == 1 {
		used, err := s.usage.HasCouponUse(ctx, identity.UserID, coupon.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking coupon usage")
		}
		if used {
			return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "coupon already used")
		}
	}

	return &Decision{
		CouponID:         coupon.ID,
		Code:             coupon.Code,
		Type:             coupon.Type,
		Value:            coupon.Value,
		MaxDiscountCents: coupon.MaxDiscountCents,
	}, nil
}

// CreateCouponInput is the admin-facing coupon definition.
type CreateCouponInput struct {
	Code                string      `json:"code" validate:"required"`
	Type                string      `json:"type" validate:"required,oneof=fixed percentage"`
	Value               int64       `json:"value" validate:"required,gt=0"`
	Scope               string      `json:"scope" validate:"omitempty,oneof=global user phone"`
	UserID              *uuid.UUID  `json:"user_id,omitempty"`
	Phone               *string     `json:"phone,omitempty" validate:"omitempty,e164"`
	AllowedUserIDs      []uuid.UUID `json:"allowed_user_ids,omitempty"`
	UsageLimit          int         `json:"usage_limit" validate:"gte=0"`
	MinOrderAmountCents int64       `json:"min_order_amount_cents" validate:"gte=0"`
	MaxDiscountCents    int64       `json:"max_discount_cents" validate:"gte=0"`
	ValidFrom           time.Time   `json:"valid_from"`
	ValidUntil          time.Time   `json:"valid_until" validate:"required"`
}

func (s *service) Create(ctx context.Context, input CreateCouponInput) (*models.Coupon, error) {
	couponType, err := enums.ParseCouponType(input.Type)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coupon type")
	}
	scope := enums.CouponScopeGlobal
	if input.Scope != "" {
		scope, err = enums.ParseCouponScope(input.Scope)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coupon scope")
		}
	}
	if scope == enums.CouponScopeUser && input.UserID == nil && len(input.AllowedUserIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user-scoped coupon needs a user id or allow list")
	}
	if scope == enums.CouponScopePhone && input.Phone == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone-scoped coupon needs a phone number")
	}
	if couponType == enums.CouponTypePercentage && input.Value > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentage value must not exceed 100")
	}

	validFrom := input.ValidFrom
	if validFrom.IsZero() {
		validFrom = s.now()
	}
	if !input.ValidUntil.After(validFrom) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "valid_until must be after valid_from")
	}

	coupon := &models.Coupon{
		Code:                strings.TrimSpace(strings.ToUpper(input.Code)),
		Type:                couponType,
		Value:               input.Value,
		Scope:               scope,
		UserID:              input.UserID,
		Phone:               input.Phone,
		AllowedUserIDs:      dbtypes.UUIDArray(input.AllowedUserIDs),
		Active:              true,
		UsageLimit:          input.UsageLimit,
		MinOrderAmountCents: input.MinOrderAmountCents,
		MaxDiscountCents:    input.MaxDiscountCents,
		ValidFrom:           validFrom,
		ValidUntil:          input.ValidUntil,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating coupon")
	}
	return coupon, nil
}

func scopeMatches(coupon *models.Coupon, identity Identity) bool {
	switch coupon.Scope {
	case enums.CouponScopeGlobal:
		return true
	case enums.CouponScopeUser:
		if coupon.UserID != nil && *coupon.UserID == identity.UserID {
			return true
		}
		return coupon.AllowedUserIDs.Contains(identity.UserID)
	case enums.CouponScopePhone:
		return coupon.Phone != nil && identity.Phone != nil && *coupon.Phone == *identity.Phone
	default:
		return false
	}
}
