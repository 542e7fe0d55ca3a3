package issuer

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

	"github.com/alovak/cardflow-3ds/internal/metrics"
	"github.com/alovak/cardflow-3ds/internal/middleware"
	issuer8583 "github.com/alovak/cardflow-3ds/issuer/iso8583"
)

// App is the main application, it contains all the components of the issuer service
// and is responsible for starting and stopping them.
type App struct {
	srv               *http.Server
	wg                *sync.WaitGroup
	Addr              string
	ISO8583ServerAddr string
	logger            *slog.Logger
	iso8583Server     io.Closer
	journal           Journal
	config            *Config

	// Service is available once the app started.
	Service *Service
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "issuer"))

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

	directory, err := NewDirectory(a.config)
	if err != nil {
		return fmt.Errorf("loading cardholder directory: %w", err)
	}

	var journal Journal = NewMemoryJournal()
	if a.config.JournalDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pg, err := OpenPGJournal(ctx, a.config.JournalDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		journal = pg
	}
	a.journal = journal

	// bind first so challenge references can point at the real address
	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}
	a.Addr = l.Addr().String()

	notifier := NewHTTPNotifier(a.config, nil)
	iss := NewService(a.logger, NewStore(), directory, notifier, journal, a.config)
	if iss.ChallengeBaseURL == "" {
		iss.ChallengeBaseURL = "http://" + a.Addr
	}
	a.Service = iss

	iso8583Server := issuer8583.NewServer(a.logger, a.config.ISO8583Addr, iss, a.config.AuthorizeTimeout)
	if err := iso8583Server.Start(); err != nil {
		l.Close()
		return fmt.Errorf("starting iso8583 server: %w", err)
	}
	a.ISO8583ServerAddr = iso8583Server.Addr
	a.iso8583Server = iso8583Server

	metrics.Init()

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.NewStructuredLogger(a.logger))
	router.Use(middleware.Recover(a.logger))
	router.Use(middleware.HTTPMetrics("issuer"))

	api := NewAPI(iss)
	api.AppendRoutes(router)

	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := iss.Ready(ctx); err != nil {
			http.Error(w, "journal not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", metrics.Handler())

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

	err := a.iso8583Server.Close()
	if err != nil {
		a.logger.Error("closing iso8583 server", "err", err)
	}

	if c, ok := a.journal.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Error("closing journal", "err", err)
		}
	}

	a.wg.Wait()

	a.logger.Info("app stopped")
}
