package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mercaline/storefront-backend/api/middleware"
	"github.com/mercaline/storefront-backend/api/responses"
	"github.com/mercaline/storefront-backend/api/validators"
	"github.com/mercaline/storefront-backend/internal/coupons"
	"github.com/mercaline/storefront-backend/internal/users"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/logger"
)

// ListEligibleCoupons returns the offers the caller could apply at the given
// cart subtotal. The list is advisory; eligibility is re-checked at checkout.
func ListEligibleCoupons(svc coupons.Service, userSvc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		subtotal, err := validators.ParseQueryInt(r, "subtotal_cents", 0, 0, 1<<31-1)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := userSvc.GetProfile(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offers, err := svc.ListEligible(r.Context(), coupons.Identity{UserID: user.ID, Phone: user.Phone}, int64(subtotal))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"coupons": offers})
	}
}

// AdminCreateCoupon registers a new coupon.
func AdminCreateCoupon(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload coupons.CreateCouponInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Create(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, coupon)
	}
}
