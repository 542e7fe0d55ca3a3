package acquirer

import (
	"context"

	"github.com/alovak/cardflow-3ds/internal/cardgen"
	"github.com/alovak/cardflow-3ds/internal/metrics"
	"github.com/alovak/cardflow-3ds/internal/models"
	"golang.org/x/exp/slog"
)

// Authorizer forwards an authorization request to one issuer.
type Authorizer interface {
	Authorize(ctx context.Context, req models.AuthorizationRequest) (models.ChallengeReference, error)
}

// Router picks the issuer of a card by BIN and relays the request to it
// unchanged.
type Router struct {
	logger  *slog.Logger
	table   *RoutingTable
	issuers map[string]Authorizer
}

func NewRouter(logger *slog.Logger, table *RoutingTable, issuers map[string]Authorizer) *Router {
	return &Router{
		logger:  logger,
		table:   table,
		issuers: issuers,
	}
}

// Route validates the card number, selects the issuer and returns its answer
// as is. Issuer errors pass through with their code intact.
func (r *Router) Route(ctx context.Context, req models.AuthorizationRequest) (models.ChallengeReference, error) {
	if !cardgen.Plausible(req.CardNumber) {
		metrics.Routes.WithLabelValues("", string(models.CodeInvalidCardFormat)).Inc()
		return "", models.NewError(models.CodeInvalidCardFormat, "card number must be 13 to 19 digits").WithToken(req.Token)
	}

	issuerID, ok := r.table.Lookup(req.CardNumber)
	if !ok {
		metrics.Routes.WithLabelValues("", string(models.CodeUnsupportedIssuer)).Inc()
		return "", models.NewError(models.CodeUnsupportedIssuer, "no issuer for %s", cardgen.MaskPAN(req.CardNumber)).WithToken(req.Token)
	}
	issuer, ok := r.issuers[issuerID]
	if !ok {
		metrics.Routes.WithLabelValues(issuerID, string(models.CodeUnsupportedIssuer)).Inc()
		return "", models.NewError(models.CodeUnsupportedIssuer, "issuer %s is not connected", issuerID).WithToken(req.Token)
	}

	r.logger.Info("routing authorization",
		slog.String("token", req.Token),
		slog.String("card", cardgen.MaskPAN(req.CardNumber)),
		slog.String("issuer", issuerID),
	)

	ref, err := issuer.Authorize(ctx, req)
	if err != nil {
		metrics.Routes.WithLabelValues(issuerID, string(models.CodeOf(err))).Inc()
		return "", err
	}
	metrics.Routes.WithLabelValues(issuerID, "approved").Inc()
	return ref, nil
}
