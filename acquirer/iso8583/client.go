package iso8583

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moov-io/iso8583"
	connection "github.com/moov-io/iso8583-connection"
	"golang.org/x/exp/slog"

	cardiso "github.com/alovak/cardflow-3ds/internal/iso8583"
	"github.com/alovak/cardflow-3ds/internal/models"
)

// Client sends authorization requests to one issuer over a single
// persistent connection, dialled on first use and again after a failure.
type Client struct {
	addr    string
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	conn *connection.Connection
}

func NewClient(logger *slog.Logger, addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		addr:    addr,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "iso8583-client"), slog.String("issuer_addr", addr)),
	}
}

func (c *Client) connect() (*connection.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	conn, err := connection.New(
		c.addr,
		cardiso.Spec,
		cardiso.ReadMessageLength,
		cardiso.WriteMessageLength,
		connection.SendTimeout(c.timeout),
		connection.ConnectTimeout(c.timeout),
		connection.InboundMessageHandler(c.handleLateReply),
	)
	if err != nil {
		return nil, fmt.Errorf("creating connection: %w", err)
	}
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.addr, err)
	}
	c.logger.Info("connected to issuer")

	c.conn = conn
	return conn, nil
}

// handleLateReply receives 0110s that arrive after their request timed out.
func (c *Client) handleLateReply(_ *connection.Connection, message *iso8583.Message) {
	stan, _ := message.GetString(cardiso.FieldSTAN)
	c.logger.Warn("discarding late issuer reply", slog.String("stan", stan))
}

// drop closes conn unless another caller already replaced it.
func (c *Client) drop(conn *connection.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
	}
	if err := conn.Close(); err != nil {
		c.logger.Debug("closing connection", slog.Any("err", err))
	}
}

// Authorize relays req as an 0100 and decodes the 0110. A request that
// cannot be encoded is a validation error and never reaches the connection.
// Transport failures become ISSUER_UNREACHABLE; declines keep the issuer's code.
func (c *Client) Authorize(ctx context.Context, req models.AuthorizationRequest) (models.ChallengeReference, error) {
	msg, err := cardiso.EncodeAuthorizationRequest(req)
	if err != nil {
		var pe *models.Error
		if errors.As(err, &pe) {
			return "", pe.WithToken(req.Token)
		}
		return "", fmt.Errorf("encoding request: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", models.WrapError(models.CodeIssuerUnreachable, err, "request abandoned").WithToken(req.Token)
	}

	conn, err := c.connect()
	if err != nil {
		return "", models.WrapError(models.CodeIssuerUnreachable, err, "issuer %s", c.addr).WithToken(req.Token)
	}

	resp, err := conn.Send(msg)
	if err != nil {
		// a late reply is discarded by the connection, which stays usable
		// for the other requests in flight
		if errors.Is(err, connection.ErrSendTimeout) {
			return "", models.WrapError(models.CodeIssuerUnreachable, err, "issuer %s timed out", c.addr).WithToken(req.Token)
		}
		c.drop(conn)
		return "", models.WrapError(models.CodeIssuerUnreachable, err, "sending to issuer %s", c.addr).WithToken(req.Token)
	}

	ref, err := cardiso.DecodeAuthorizationResponse(resp)
	if err != nil {
		var pe *models.Error
		if errors.As(err, &pe) {
			return "", err
		}
		return "", fmt.Errorf("decoding issuer response: %w", err)
	}
	return ref, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
