package webhooks

import (
	"context"
	"net/http"

	"github.com/mercaline/storefront-backend/api/responses"
	"github.com/mercaline/storefront-backend/api/validators"
	"github.com/mercaline/storefront-backend/internal/payments"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/logger"
)

type paymentCallbackGuard interface {
	CheckAndMark(ctx context.Context, paymentID string) (bool, error)
	Delete(ctx context.Context, paymentID string) error
}

// PaymentCallback handles the gateway's signed completion callback. The
// redis guard short-circuits retries cheaply; if it is down the handler still
// behaves correctly because the ledger refuses duplicate references.
func PaymentCallback(svc payments.Service, guard paymentCallbackGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var payload payments.CallbackInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if guard != nil {
			alreadyProcessed, err := guard.CheckAndMark(ctx, payload.PaymentID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if alreadyProcessed {
				responses.WriteSuccess(w, map[string]string{"status": "already processed"})
				return
			}
		}

		order, err := svc.VerifyCallback(ctx, payload)
		if err != nil {
			if guard != nil {
				_ = guard.Delete(ctx, payload.PaymentID)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithOrderNumber(ctx, order.OrderNumber), "payment callback processed")
		}
		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}
