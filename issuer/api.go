package issuer

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"github.com/alovak/cardflow-3ds/internal/httpx"
	"github.com/alovak/cardflow-3ds/internal/models"
	"github.com/go-chi/chi/v5"
)

// API is the cardholder facing HTTP channel of the issuer
type API struct {
	issuer *Service
}

func NewAPI(issuer *Service) *API {
	return &API{
		issuer: issuer,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Get("/challenge", a.challenge)
	r.Get("/login", a.loginForm)
	r.Post("/login", a.login)
	r.Post("/decide", a.decide)
	r.Get("/payment-failed", a.paymentFailed)
	r.Get("/transactions/{token}", a.getTransaction)
}

type loginRequest struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Card     string `json:"card"`
}

type decideRequest struct {
	Token  string                 `json:"token"`
	Action models.ChallengeAction `json:"action"`
}

func (a *API) challenge(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	challenge, err := a.issuer.AccessChallenge(token)
	if err != nil {
		writeError(w, err)
		return
	}
	if challenge.LoginRequired {
		http.Redirect(w, r, "/login?token="+url.QueryEscape(token), http.StatusSeeOther)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, struct {
		Challenge
		Actions []models.ChallengeAction `json:"actions"`
	}{challenge, []models.ChallengeAction{models.ActionConfirm, models.ActionCancel}})
}

func (a *API) loginForm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, string(models.CodeMissingField), "token is required", nil)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"token":  token,
		"action": "/login",
		"fields": []string{"name", "password", "card"},
	})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeRequest(r, &req, func(v url.Values) {
		req = loginRequest{Token: v.Get("token"), Name: v.Get("name"), Password: v.Get("password"), Card: v.Get("card")}
	}); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(models.CodeMissingField), err.Error(), nil)
		return
	}
	if req.Token == "" {
		httpx.WriteError(w, http.StatusBadRequest, string(models.CodeMissingField), "token is required", nil)
		return
	}

	result, err := a.issuer.Login(r.Context(), req.Token, req.Name, req.Password, req.Card)
	if err != nil {
		writeError(w, err)
		return
	}
	if !result.Authenticated {
		httpx.WriteJSON(w, http.StatusUnauthorized, result)
		return
	}

	http.Redirect(w, r, "/challenge?token="+url.QueryEscape(req.Token), http.StatusSeeOther)
}

func (a *API) decide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := decodeRequest(r, &req, func(v url.Values) {
		req = decideRequest{Token: v.Get("token"), Action: models.ChallengeAction(v.Get("action"))}
	}); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(models.CodeMissingField), err.Error(), nil)
		return
	}

	status, err := a.issuer.Decide(r.Context(), req.Token, req.Action)
	if err != nil {
		writeError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"token":  req.Token,
		"status": status,
	})
}

// paymentFailed explains a rejected payment to the cardholder.
func (a *API) paymentFailed(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	message := "The payment could not be processed."
	if reason == "unknown_card" {
		message = "The card details were not recognized by the issuer."
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"token":   r.URL.Query().Get("token"),
		"reason":  reason,
		"message": message,
	})
}

func (a *API) getTransaction(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	record, err := a.issuer.GetTransaction(token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, record)
}

// decodeRequest reads a JSON body into v, or hands the parsed form to
// fromForm for any other content type.
func decodeRequest(r *http.Request, v any, fromForm func(url.Values)) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			return fmt.Errorf("decoding body: %w", err)
		}
		return nil
	}

	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parsing form: %w", err)
	}
	fromForm(r.PostForm)
	return nil
}

func statusFor(err error) int {
	switch models.CodeOf(err) {
	case models.CodeNoActiveTransaction:
		return http.StatusNotFound
	case models.CodeTooManyAttempts:
		return http.StatusForbidden
	case models.CodeInvalidOrExpired:
		return http.StatusGone
	case models.CodeCallbackFailed:
		return http.StatusBadGateway
	case models.CodeMissingField:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError gives the cardholder the specific reason, never a bare failure.
func writeError(w http.ResponseWriter, err error) {
	code := models.CodeOf(err)
	message := "processing error"
	switch code {
	case models.CodeNoActiveTransaction:
		message = "there is no active transaction for this token"
	case models.CodeTooManyAttempts:
		message = "too many failed login attempts, the transaction was cancelled"
	case models.CodeInvalidOrExpired:
		message = "this challenge is invalid or has expired"
	case models.CodeCallbackFailed:
		message = "the merchant could not be notified, please submit your decision again"
	case models.CodeMissingField:
		message = err.Error()
	}
	httpx.WriteError(w, statusFor(err), string(code), message, nil)
}
