package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

func webhookRouter(h *PaymentWebhookHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/webhooks", h.Routes)
	return r
}

func TestPaymentWebhookHandlers_Callback(t *testing.T) {
	var captured services.PaymentCallbackCommand
	checkout := &stubCheckoutService{callbackFunc: func(_ context.Context, cmd services.PaymentCallbackCommand) (services.Order, error) {
		captured = cmd
		order := sampleOrder("ord_1")
		order.Payment.Status = domain.PaymentStatusCompleted
		return order, nil
	}}
	router := webhookRouter(NewPaymentWebhookHandlers(checkout))

	t.Run("signature in body", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/webhooks/payments/callback",
			`{"intent_id":"pi_1","external_payment_id":"ch_1","signature":"abc"}`, ""))

		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, services.PaymentCallbackCommand{IntentID: "pi_1", ExternalPaymentID: "ch_1", Signature: "abc"}, captured)
		body := decodeBody(t, rr)
		require.Equal(t, "ord_1", body["order_id"])
		require.Equal(t, "completed", body["payment_status"])
	})

	t.Run("signature header fallback", func(t *testing.T) {
		req := newAuthedRequest(http.MethodPost, "/webhooks/payments/callback", `{"intent_id":"pi_1","external_payment_id":"ch_1"}`, "")
		req.Header.Set("X-Payment-Signature", "from-header")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "from-header", captured.Signature)
	})
}

func TestPaymentWebhookHandlers_InvalidSignature(t *testing.T) {
	checkout := &stubCheckoutService{callbackFunc: func(context.Context, services.PaymentCallbackCommand) (services.Order, error) {
		order := sampleOrder("ord_1")
		order.Payment.Status = domain.PaymentStatusFailed
		return order, services.ErrInvalidSignature
	}}

	rr := httptest.NewRecorder()
	webhookRouter(NewPaymentWebhookHandlers(checkout)).ServeHTTP(rr,
		newAuthedRequest(http.MethodPost, "/webhooks/payments/callback", `{"intent_id":"pi_1","external_payment_id":"ch_1","signature":"forged"}`, ""))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_signature", decodeBody(t, rr)["error"])
}

func TestPaymentWebhookHandlers_UnknownIntent(t *testing.T) {
	checkout := &stubCheckoutService{callbackFunc: func(context.Context, services.PaymentCallbackCommand) (services.Order, error) {
		return services.Order{}, services.ErrNotFound
	}}

	rr := httptest.NewRecorder()
	webhookRouter(NewPaymentWebhookHandlers(checkout)).ServeHTTP(rr,
		newAuthedRequest(http.MethodPost, "/webhooks/payments/callback", `{"intent_id":"pi_x","external_payment_id":"ch_1","signature":"abc"}`, ""))

	require.Equal(t, http.StatusNotFound, rr.Code)
}
