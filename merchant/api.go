package merchant

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alovak/cardflow-3ds/internal/auth"
	"github.com/alovak/cardflow-3ds/internal/httpx"
	"github.com/alovak/cardflow-3ds/internal/models"
	"github.com/go-chi/chi/v5"
)

// API is a HTTP API for the merchant backend
type API struct {
	merchant *Service
	signer   *auth.CallbackSigner
}

func NewAPI(merchant *Service, signer *auth.CallbackSigner) *API {
	return &API{
		merchant: merchant,
		signer:   signer,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Post("/checkout", a.checkout)
	r.Post("/payment-callback", a.paymentCallback)
	r.Get("/payments/{token}", a.getPayment)
}

func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(models.CodeMissingField), err.Error(), nil)
		return
	}

	payment, err := a.merchant.Checkout(r.Context(), req)
	if err != nil {
		httpx.WriteJSON(w, httpx.RelayStatus(err), payment)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, payment)
}

func (a *API) paymentCallback(w http.ResponseWriter, r *http.Request) {
	var note models.CallbackNotification
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		http.Error(w, "invalid callback body", http.StatusBadRequest)
		return
	}
	if note.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	if _, err := a.signer.Verify(r.Header.Get("Authorization"), note.Token, note.IsSuccessful); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	payment, err := a.merchant.HandleCallback(note)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrConflict):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, payment)
}

func (a *API) getPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := a.merchant.GetPayment(chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, payment)
}
