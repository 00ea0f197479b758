package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"reservationservice/internal/domain"
	"reservationservice/internal/inventory"
	"reservationservice/internal/pricing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ownerID accepts a user id sent either as a JSON string or a JSON number.
type ownerID string

func (o *ownerID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = ownerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*o = ownerID(n.String())
	return nil
}

type addToCartRequest struct {
	VariantID int64   `json:"variantId"`
	Quantity  int     `json:"quantity"`
	UserID    ownerID `json:"userId"`
}

type addToCartResponse struct {
	Success       bool             `json:"success"`
	Message       string           `json:"message,omitempty"`
	ReservationID string           `json:"reservationId,omitempty"`
	ExpiresAt     *time.Time       `json:"expiresAt,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unitPrice,omitempty"`
	PriceSnapshot *decimal.Decimal `json:"priceSnapshot,omitempty"`
	Available     *int             `json:"available,omitempty"`
}

type checkoutRequest struct {
	UserID ownerID `json:"userId"`
}

type checkoutResponse struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	ItemsSold   int             `json:"itemsSold"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

func (s *Server) addToCart(c *fiber.Ctx) error {
	var req addToCartRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.VariantID == 0 || req.Quantity == 0 {
		return badRequest(c, "Missing variantId or quantity")
	}

	result, err := s.reservations.Reserve(c.UserContext(), inventory.ReserveRequest{
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		UserID:    string(req.UserID),
	})
	if err != nil {
		return s.serviceError(c, err)
	}

	if !result.Success {
		available := result.Available
		return c.Status(fiber.StatusConflict).JSON(addToCartResponse{
			Success:   false,
			Message:   result.Message,
			Available: &available,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(addToCartResponse{
		Success:       true,
		ReservationID: result.ReservationID,
		ExpiresAt:     &result.ExpiresAt,
		UnitPrice:     &result.UnitPrice,
		PriceSnapshot: &result.PriceSnapshot,
	})
}

func (s *Server) checkout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "Missing userId")
	}

	result, err := s.checkouts.Checkout(c.UserContext(), string(req.UserID))
	if err != nil {
		return s.serviceError(c, err)
	}

	return c.JSON(checkoutResponse{
		Success:     true,
		Message:     "Checkout successful",
		ItemsSold:   result.ItemsSold,
		TotalAmount: result.TotalAmount,
	})
}

// price quotes a variant. Missing or unparsable quantity means 1, missing tier means standard.
func (s *Server) price(c *fiber.Ctx) error {
	variantID, err := strconv.ParseInt(c.Params("variantId"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid variantId")
	}

	quantity, err := strconv.Atoi(c.Query("quantity"))
	if err != nil || quantity == 0 {
		quantity = 1
	}
	tier := c.Query("tier", pricing.TierStandard)

	quote, err := s.pricer.ComputePrice(c.UserContext(), variantID, quantity, pricing.PriceContext{Tier: tier})
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": quote})
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// serviceError maps core errors onto HTTP statuses.
func (s *Server) serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		return badRequest(c, err.Error())
	case errors.Is(err, domain.ErrEmptyCart):
		return badRequest(c, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	s.logger.Error("Request failed", zap.Error(err), zap.String("path", c.Path()))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": msg})
}
