package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alovak/cardflow-3ds/internal/auth"
	"github.com/alovak/cardflow-3ds/internal/models"
)

// Notifier delivers the final outcome of a transaction to the merchant.
// One call is one delivery attempt; retrying is up to the caller.
type Notifier interface {
	Notify(ctx context.Context, merchantRef string, n models.CallbackNotification) error
}

// HTTPNotifier posts the outcome as JSON with a signed bearer token.
type HTTPNotifier struct {
	client     *http.Client
	defaultURL string
	endpoints  map[string]string
	signer     *auth.CallbackSigner
}

func NewHTTPNotifier(config *Config, client *http.Client) *HTTPNotifier {
	if client == nil {
		client = &http.Client{Timeout: config.CallbackTimeout}
	}

	// config keys arrive lower-cased from the loader
	endpoints := make(map[string]string, len(config.MerchantCallbacks))
	for ref, u := range config.MerchantCallbacks {
		endpoints[strings.ToLower(ref)] = u
	}

	return &HTTPNotifier{
		client:     client,
		defaultURL: config.CallbackURL,
		endpoints:  endpoints,
		signer:     auth.NewCallbackSigner(config.CallbackSecret, 5*time.Minute),
	}
}

// Endpoint resolves the callback URL for a merchant reference. Only
// configured URLs are ever called.
func (n *HTTPNotifier) Endpoint(merchantRef string) string {
	if u, ok := n.endpoints[strings.ToLower(merchantRef)]; ok {
		return u
	}
	return n.defaultURL
}

func (n *HTTPNotifier) Notify(ctx context.Context, merchantRef string, note models.CallbackNotification) error {
	target := n.Endpoint(merchantRef)
	if target == "" {
		return models.NewError(models.CodeCallbackFailed, "no callback endpoint for merchant %q", merchantRef)
	}

	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshaling callback: %w", err)
	}
	signed, err := n.signer.Sign(note.Token, note.IsSuccessful)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return models.WrapError(models.CodeCallbackFailed, err, "building callback request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signed)

	resp, err := n.client.Do(req)
	if err != nil {
		return models.WrapError(models.CodeCallbackFailed, err, "posting callback")
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return models.NewError(models.CodeCallbackFailed, "HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
