package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/services"
)

const paymentSignatureHeader = "X-Payment-Signature"

// PaymentWebhookHandlers receives payment gateway callbacks. Authenticity is established by
// the callback signature, not by caller identity.
type PaymentWebhookHandlers struct {
	checkout services.CheckoutService
}

// NewPaymentWebhookHandlers constructs the callback receiver.
func NewPaymentWebhookHandlers(checkout services.CheckoutService) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{checkout: checkout}
}

// Routes registers /webhooks/payments/callback.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/callback", h.paymentCallback)
}

type paymentCallbackRequest struct {
	IntentID          string `json:"intent_id"`
	ExternalPaymentID string `json:"external_payment_id"`
	Signature         string `json:"signature"`
}

type paymentCallbackResponse struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

func (h *PaymentWebhookHandlers) paymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeUnavailable(ctx, w, "checkout")
		return
	}

	var req paymentCallbackRequest
	if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	signature := strings.TrimSpace(req.Signature)
	if signature == "" {
		signature = strings.TrimSpace(r.Header.Get(paymentSignatureHeader))
	}

	order, err := h.checkout.HandlePaymentCallback(ctx, services.PaymentCallbackCommand{
		IntentID:          strings.TrimSpace(req.IntentID),
		ExternalPaymentID: strings.TrimSpace(req.ExternalPaymentID),
		Signature:         signature,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidSignature) {
			requestctx.Logger(ctx).Warn("payment callback rejected",
				zap.String("intentID", req.IntentID),
				zap.String("orderID", order.ID),
			)
		}
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentCallbackResponse{
		OrderID:       order.ID,
		Status:        string(order.Status),
		PaymentStatus: string(order.Payment.Status),
	})
}
