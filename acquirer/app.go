package acquirer

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	acquirer8583 "github.com/alovak/cardflow-3ds/acquirer/iso8583"
	"github.com/alovak/cardflow-3ds/internal/metrics"
	"github.com/alovak/cardflow-3ds/internal/middleware"
)

// App is the main application, it contains all the components of the acquirer service
// and is responsible for starting and stopping them.
type App struct {
	srv     *http.Server
	wg      *sync.WaitGroup
	Addr    string
	logger  *slog.Logger
	clients []io.Closer
	config  *Config
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "acquirer"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:     &sync.WaitGroup{},
		logger: logger,
		config: config,
	}
}

func (a *App) Start() error {
	a.logger.Info("starting app...")

	issuers := a.config.Issuers
	var table *RoutingTable
	var err error
	if a.config.RoutingFile != "" {
		issuers, table, err = LoadRoutingFile(a.config.RoutingFile)
	} else {
		table, err = NewRoutingTable(a.config.BINRoutes)
	}
	if err != nil {
		return fmt.Errorf("loading routing table: %w", err)
	}

	authorizers := make(map[string]Authorizer, len(issuers))
	for id, addr := range issuers {
		client := acquirer8583.NewClient(a.logger, addr, a.config.IssuerTimeout)
		authorizers[id] = client
		a.clients = append(a.clients, client)
	}

	metrics.Init()

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.NewStructuredLogger(a.logger))
	router.Use(middleware.Recover(a.logger))
	router.Use(middleware.HTTPMetrics("acquirer"))

	api := NewAPI(NewRouter(a.logger, table, authorizers))
	api.AppendRoutes(router)

	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Handle("/metrics", metrics.Handler())

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}

	a.Addr = l.Addr().String()

	a.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.srv.Shutdown(ctx)

	for _, c := range a.clients {
		if err := c.Close(); err != nil {
			a.logger.Error("closing issuer connection", "err", err)
		}
	}

	a.wg.Wait()

	a.logger.Info("app stopped")
}
