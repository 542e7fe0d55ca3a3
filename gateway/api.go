package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/alovak/cardflow-3ds/internal/httpx"
	"github.com/alovak/cardflow-3ds/internal/models"
	"github.com/go-chi/chi/v5"
)

// API is a HTTP API for the gateway service
type API struct {
	gateway *Service
}

func NewAPI(gateway *Service) *API {
	return &API{
		gateway: gateway,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Post("/initiate-payment", a.initiatePayment)
}

func (a *API) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req models.AuthorizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteRelayError(w, models.WrapError(models.CodeMissingField, err, "decoding request"))
		return
	}

	ref, err := a.gateway.Initiate(r.Context(), req)
	if err != nil {
		httpx.WriteRelayError(w, models.WithHop(err, "gateway"))
		return
	}

	httpx.WriteLine(w, http.StatusOK, ref.String())
}
