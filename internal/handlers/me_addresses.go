package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// AddressHandlers exposes the address book used by checkout.
type AddressHandlers struct {
	authn     *auth.Authenticator
	addresses services.AddressService
}

// NewAddressHandlers constructs address book handlers.
func NewAddressHandlers(authn *auth.Authenticator, addresses services.AddressService) *AddressHandlers {
	return &AddressHandlers{authn: authn, addresses: addresses}
}

// Routes wires the /me/addresses endpoints.
func (h *AddressHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listAddresses)
	r.Post("/", h.createAddress)
	r.Put("/{addressID}", h.updateAddress)
}

type addressRequest struct {
	Recipient  string  `json:"recipient"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2"`
	City       string  `json:"city"`
	State      *string `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone"`
	IsDefault  bool    `json:"is_default"`
}

func (req addressRequest) toAddress() services.Address {
	return services.Address{
		Recipient:  req.Recipient,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Phone:      req.Phone,
		IsDefault:  req.IsDefault,
	}
}

type addressListResponse struct {
	Items []addressPayload `json:"items"`
}

type addressResponse struct {
	Address addressPayload `json:"address"`
}

func (h *AddressHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		writeUnavailable(ctx, w, "address")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	list, err := h.addresses.ListAddresses(ctx, userID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := addressListResponse{Items: make([]addressPayload, 0, len(list))}
	for _, addr := range list {
		resp.Items = append(resp.Items, buildAddressPayload(addr))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AddressHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	h.saveAddress(w, r, "")
}

func (h *AddressHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	addressID := strings.TrimSpace(chi.URLParam(r, "addressID"))
	if addressID == "" {
		writeInvalidRequest(r.Context(), w, "address id is required")
		return
	}
	h.saveAddress(w, r, addressID)
}

func (h *AddressHandlers) saveAddress(w http.ResponseWriter, r *http.Request, addressID string) {
	ctx := r.Context()
	if h.addresses == nil {
		writeUnavailable(ctx, w, "address")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	var req addressRequest
	if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	saved, err := h.addresses.UpsertAddress(ctx, services.UpsertAddressCommand{
		UserID:    userID,
		AddressID: addressID,
		Address:   req.toAddress(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCreatedOrOK(w, addressID == "", addressResponse{Address: buildAddressPayload(saved)})
}

func writeCreatedOrOK(w http.ResponseWriter, created bool, payload any) {
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, payload)
}
