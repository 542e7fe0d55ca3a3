package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alovak/cardflow-3ds/internal/models"
)

// Client posts an AuthorizationRequest to the next hop and reads back the
// one-line answer: a challenge reference or "ERROR:<code>".
type Client struct {
	Base string
	Path string
	HTTP *http.Client

	// Unreachable is the code reported when the hop cannot be reached.
	Unreachable models.ErrorCode
}

func New(base, path string, unreachable models.ErrorCode, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		Base:        strings.TrimRight(base, "/"),
		Path:        path,
		HTTP:        hc,
		Unreachable: unreachable,
	}
}

func (c *Client) Authorize(ctx context.Context, req models.AuthorizationRequest) (models.ChallengeReference, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+c.Path, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", models.WrapError(c.Unreachable, err, "posting to %s", c.Base).WithToken(req.Token)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", models.WrapError(c.Unreachable, err, "reading response").WithToken(req.Token)
	}
	line := strings.TrimSpace(string(body))

	if pe := models.ParseErrorLine(line); pe != nil {
		return "", pe.WithToken(req.Token)
	}
	if resp.StatusCode/100 != 2 {
		return "", models.NewError(c.Unreachable, "status=%d body=%s", resp.StatusCode, line).WithToken(req.Token)
	}
	if line == "" {
		return "", models.NewError(models.CodeInternal, "empty response").WithToken(req.Token)
	}
	return models.ChallengeReference(line), nil
}
