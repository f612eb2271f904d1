package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mercaline/storefront-backend/api/controllers"
	webhookcontrollers "github.com/mercaline/storefront-backend/api/controllers/webhooks"
	"github.com/mercaline/storefront-backend/api/middleware"
	"github.com/mercaline/storefront-backend/internal/catalog"
	checkoutsvc "github.com/mercaline/storefront-backend/internal/checkout"
	"github.com/mercaline/storefront-backend/internal/coupons"
	"github.com/mercaline/storefront-backend/internal/ledger"
	"github.com/mercaline/storefront-backend/internal/notifications"
	"github.com/mercaline/storefront-backend/internal/orders"
	"github.com/mercaline/storefront-backend/internal/payments"
	"github.com/mercaline/storefront-backend/internal/users"
	"github.com/mercaline/storefront-backend/pkg/config"
	"github.com/mercaline/storefront-backend/pkg/db"
	"github.com/mercaline/storefront-backend/pkg/logger"
	"github.com/mercaline/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	pubsubP controllers.Pinger,
	catalogRepo catalog.Repository,
	userService users.Service,
	couponService coupons.Service,
	ledgerService ledger.Service,
	orderService orders.Service,
	checkoutService checkoutsvc.Service,
	notificationRepo notifications.Repository,
	paymentService payments.Service,
	callbackGuard *payments.CallbackGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	readiness := map[string]controllers.Pinger{
		"database": dbP,
		"redis":    redisClient,
	}
	if pubsubP != nil {
		readiness["pubsub"] = pubsubP
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payment", webhookcontrollers.PaymentCallback(paymentService, callbackGuard, logg))
	})

	r.Get("/api/v1/products", controllers.ListProducts(catalogRepo, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/cod", controllers.PlaceCODOrder(checkoutService, logg))
			r.Post("/gateway", controllers.PlaceGatewayOrder(checkoutService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(orderService, logg))
			r.Get("/{orderID}", controllers.GetOrder(orderService, logg))
		})

		r.Get("/coupons", controllers.ListEligibleCoupons(couponService, userService, logg))

		r.Route("/rewards", func(r chi.Router) {
			r.Get("/balance", controllers.GetRewardsBalance(ledgerService, logg))
			r.Get("/history", controllers.ListRewardsHistory(ledgerService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationRepo, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(notificationRepo, logg))
		})

		r.Route("/me", func(r chi.Router) {
			r.Get("/", controllers.GetProfile(userService, logg))
			r.Put("/shipping-address", controllers.UpdateShippingAddress(userService, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))

			r.Post("/coupons", controllers.AdminCreateCoupon(couponService, logg))
			r.Route("/orders/{orderID}", func(r chi.Router) {
				r.Get("/", controllers.AdminGetOrder(orderService, logg))
				r.Post("/status", controllers.AdminUpdateOrderStatus(orderService, logg))
			})
		})
	})

	return r
}
