package acquirer

import (
	"encoding/json"
	"net/http"

	"github.com/alovak/cardflow-3ds/internal/httpx"
	"github.com/alovak/cardflow-3ds/internal/models"
	"github.com/go-chi/chi/v5"
)

// API is a HTTP API for the acquirer service
type API struct {
	router *Router
}

func NewAPI(router *Router) *API {
	return &API{
		router: router,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Post("/authorize", a.authorize)
}

func (a *API) authorize(w http.ResponseWriter, r *http.Request) {
	var req models.AuthorizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteRelayError(w, models.WrapError(models.CodeMissingField, err, "decoding request"))
		return
	}

	ref, err := a.router.Route(r.Context(), req)
	if err != nil {
		httpx.WriteRelayError(w, models.WithHop(err, "acquirer"))
		return
	}

	httpx.WriteLine(w, http.StatusOK, ref.String())
}
