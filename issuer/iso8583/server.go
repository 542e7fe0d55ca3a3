package iso8583

import (
	"context"
	"fmt"
	"time"

	"github.com/moov-io/iso8583"
	connection "github.com/moov-io/iso8583-connection"
	"github.com/moov-io/iso8583-connection/server"
	"golang.org/x/exp/slog"

	"github.com/alovak/cardflow-3ds/internal/cardgen"
	cardiso "github.com/alovak/cardflow-3ds/internal/iso8583"
	"github.com/alovak/cardflow-3ds/internal/models"
)

// Authorizer is the part of the issuer service the server needs.
type Authorizer interface {
	Authorize(ctx context.Context, req models.AuthorizationRequest) (models.ChallengeReference, error)
}

// Server accepts 0100 authorization requests from acquirers and answers
// each with an 0110.
type Server struct {
	// Addr is the bound address once the server started.
	Addr string

	listenAddr string
	logger     *slog.Logger
	issuer     Authorizer
	timeout    time.Duration
	server     *server.Server
}

// NewServer listens on listenAddr once started. timeout bounds each
// authorization; zero means 10s.
func NewServer(logger *slog.Logger, listenAddr string, issuer Authorizer, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Server{
		listenAddr: listenAddr,
		logger:     logger.With(slog.String("component", "iso8583-server")),
		issuer:     issuer,
		timeout:    timeout,
	}
}

func (s *Server) Start() error {
	s.server = server.New(
		cardiso.Spec,
		cardiso.ReadMessageLength,
		cardiso.WriteMessageLength,
		connection.InboundMessageHandler(s.handleMessage),
	)

	if err := s.server.Start(s.listenAddr); err != nil {
		return fmt.Errorf("starting iso8583 server: %w", err)
	}
	s.Addr = s.server.Addr
	s.logger.Info("iso8583 server started", slog.String("addr", s.Addr))

	return nil
}

func (s *Server) Close() error {
	if s.server != nil {
		s.server.Close()
	}
	return nil
}

func (s *Server) handleMessage(c *connection.Connection, message *iso8583.Message) {
	mti, err := message.GetMTI()
	if err != nil {
		s.logger.Error("reading mti", slog.Any("err", err))
		return
	}
	if mti != cardiso.MTIAuthorizationRequest {
		s.logger.Error("unsupported message", slog.String("mti", mti))
		return
	}

	var ref models.ChallengeReference
	req, authErr := cardiso.DecodeAuthorizationRequest(message)
	if authErr == nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		ref, authErr = s.issuer.Authorize(ctx, req)
		cancel()
	}

	if authErr != nil {
		s.logger.Info("authorization declined",
			slog.String("token", req.Token),
			slog.String("card", cardgen.MaskPAN(req.CardNumber)),
			slog.String("code", string(models.CodeOf(authErr))),
		)
	}

	response, err := cardiso.EncodeAuthorizationResponse(message, ref, authErr)
	if err != nil {
		s.logger.Error("building authorization response", slog.Any("err", err))
		return
	}
	if err := c.Reply(response); err != nil {
		s.logger.Error("replying to authorization request", slog.Any("err", err))
	}
}
