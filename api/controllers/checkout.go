package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mercaline/storefront-backend/api/middleware"
	"github.com/mercaline/storefront-backend/api/responses"
	"github.com/mercaline/storefront-backend/api/validators"
	checkoutsvc "github.com/mercaline/storefront-backend/internal/checkout"
	"github.com/mercaline/storefront-backend/internal/pricing"
	"github.com/mercaline/storefront-backend/pkg/enums"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/logger"
)

type checkoutLineRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,gt=0"`
}

type checkoutRequest struct {
	Lines          []checkoutLineRequest `json:"lines" validate:"required,min=1,dive"`
	ShippingMethod string                `json:"shipping_method" validate:"required,oneof=standard express"`
	CouponCode     string                `json:"coupon_code,omitempty"`
	RedeemPoints   int64                 `json:"redeem_points,omitempty" validate:"gte=0"`
	TaxCents       int64                 `json:"tax_cents,omitempty" validate:"gte=0"`
	Currency       string                `json:"currency,omitempty"`
}

func (req checkoutRequest) toInput(userID uuid.UUID) checkoutsvc.PlaceOrderInput {
	lines := make([]pricing.LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, pricing.LineInput{ProductID: line.ProductID, Qty: line.Qty})
	}
	return checkoutsvc.PlaceOrderInput{
		UserID:         userID,
		Lines:          lines,
		ShippingMethod: enums.ShippingMethod(req.ShippingMethod),
		CouponCode:     req.CouponCode,
		RedeemPoints:   req.RedeemPoints,
		TaxCents:       req.TaxCents,
		Currency:       req.Currency,
	}
}

// PlaceCODOrder submits a cash-on-delivery checkout. The order comes back
// already confirmed with its ledger postings applied.
func PlaceCODOrder(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PlaceCODOrder(r.Context(), payload.toInput(userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// PlaceGatewayOrder submits a gateway checkout. The order comes back pending
// alongside the payment intent id the client completes payment against.
func PlaceGatewayOrder(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PlaceGatewayOrder(r.Context(), payload.toInput(userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
