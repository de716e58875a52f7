package payments

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/caplatform/backend/internal/auth"
	"github.com/caplatform/backend/pkg/validation"
)

/* ================================ DTOs ================================= */

type VerifyRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

/* ============================== Handler ================================= */

type Handler struct {
	rec *Reconciler
}

func NewHandler(rec *Reconciler) *Handler { return &Handler{rec: rec} }

func pathIDs(c *fiber.Ctx) (caseID, clientID uuid.UUID, err error) {
	caseID, err = uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid case id")
	}
	clientID, _ = uuid.Parse(auth.MustUserID(c))
	return caseID, clientID, nil
}

/* ============================ Simulated pay ============================= */

// Pay settles the case immediately without a gateway round trip.
func (h *Handler) Pay(c *fiber.Ctx) error {
	caseID, clientID, err := pathIDs(c)
	if err != nil {
		return err
	}

	p, err := h.rec.Pay(c.Context(), caseID, clientID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

/* ============================ Hosted checkout =========================== */

// CreateOrder returns the gateway order the frontend needs to open checkout.
func (h *Handler) CreateOrder(c *fiber.Ctx) error {
	caseID, clientID, err := pathIDs(c)
	if err != nil {
		return err
	}

	order, err := h.rec.CreateOrder(c.Context(), caseID, clientID)
	if err != nil {
		return err
	}
	return c.JSON(order)
}

// Verify settles the case from the checkout callback parameters.
func (h *Handler) Verify(c *fiber.Ctx) error {
	caseID, clientID, err := pathIDs(c)
	if err != nil {
		return err
	}

	var in VerifyRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	p, err := h.rec.Verify(c.Context(), caseID, clientID, in.OrderID, in.PaymentID, in.Signature)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

/* =============================== Webhook ================================ */

// Webhook receives gateway events. The signature covers the raw body, so it
// is read before any parsing. Always answers 200 for verified events to stop
// gateway redelivery; processing failures are retried internally.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	sig := c.Get("X-Signature")
	if sig == "" {
		sig = c.Get("X-Razorpay-Signature")
	}

	if err := h.rec.HandleWebhook(c.Body(), sig); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
