// Package httpapi exposes the cart and pricing operations over HTTP.
package httpapi

import (
	"context"

	"reservationservice/internal/config"
	"reservationservice/internal/inventory"
	"reservationservice/internal/platform/observability"
	"reservationservice/internal/pricing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// PriceQuoter is what the price endpoint needs. *pricing.Engine implements it.
type PriceQuoter interface {
	ComputePrice(ctx context.Context, itemID int64, quantity int, pc pricing.PriceContext) (pricing.Quote, error)
}

// Server owns the fiber app and the services behind it.
type Server struct {
	app          *fiber.App
	reservations *inventory.ReservationService
	checkouts    *inventory.CheckoutService
	pricer       PriceQuoter
	logger       observability.Logger
}

// NewServer wires routes and middleware. rateLimit is requests per minute per IP;
// zero disables limiting.
func NewServer(
	reservations *inventory.ReservationService,
	checkouts *inventory.CheckoutService,
	pricer PriceQuoter,
	logger observability.Logger,
	tracer observability.Tracer,
	rateLimit int,
) *Server {
	s := &Server{
		reservations: reservations,
		checkouts:    checkouts,
		pricer:       pricer,
		logger:       logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               config.ServiceName,
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          errorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(Tracing(tracer))
	app.Use(RequestLogger(logger))

	app.Get("/healthz", s.health)

	api := app.Group("/api")
	if rateLimit > 0 {
		api.Use(RateLimit(rateLimit))
	}
	api.Post("/cart/add", s.addToCart)
	api.Post("/cart/checkout", s.checkout)
	api.Get("/variants/:variantId/price", s.price)

	s.app = app
	return s
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
