package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/api"
	"github.com/iris-network/iris/internal/app/account"
	"github.com/iris-network/iris/internal/app/classify"
	"github.com/iris-network/iris/internal/app/multimodal"
	"github.com/iris-network/iris/internal/app/orchestrate"
	"github.com/iris-network/iris/internal/app/token"
	"github.com/iris-network/iris/internal/gateway"
	"github.com/iris-network/iris/internal/health"
	"github.com/iris-network/iris/internal/infra/breaker"
	"github.com/iris-network/iris/internal/infra/metrics"
	"github.com/iris-network/iris/internal/infra/registry"
	"github.com/iris-network/iris/internal/infra/reputation"
	"github.com/iris-network/iris/internal/infra/sqlite"
	"github.com/iris-network/iris/internal/infra/stream"
	"github.com/iris-network/iris/internal/log"
	"github.com/iris-network/iris/internal/protocol"
	"github.com/iris-network/iris/internal/security"
)

// gaugeInterval paces the worker-pool gauge refresh.
const gaugeInterval = 15 * time.Second

// decayInterval spaces reputation decay runs.
const decayInterval = 7 * 24 * time.Hour

// Daemon is the Iris coordinator runtime. It wires together all services.
type Daemon struct {
	Config Config

	DB           *sqlite.DB
	Keypair      *security.Keypair
	Registry     *registry.Registry
	Selector     *registry.Selector
	Breakers     *breaker.Manager
	Reputation   *reputation.Engine
	Hub          *stream.Hub
	Accounts     *account.Service
	Tokens       *token.Service
	Orchestrator *orchestrate.Orchestrator
	Gateway      *gateway.Gateway
	Server       *api.Server
	Health       *health.Checker

	cancel context.CancelFunc
	logger zerolog.Logger
}

// New loads configuration and wires a coordinator.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig wires a coordinator with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	log.Init(log.Config{Level: cfg.Logging.Level, JSON: cfg.Logging.JSON})

	dataDir := cfg.Coordinator.DataDir
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sqlite.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	kp, err := security.LoadOrCreateKeypair(dataDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load keypair: %w", err)
	}

	reg := registry.New()
	brk := breaker.NewManager()
	sel := registry.NewSelector(reg, brk, time.Now().UnixNano())
	rep := reputation.NewEngine(db)
	hub := stream.NewHub()
	accounts := account.NewService(db)
	tokens := token.NewService(db)

	lexical := classify.NewLexical()
	summarizer := multimodal.NewSummarizer(cfg.Multimodal.Endpoint, cfg.Multimodal.APIKey, cfg.Multimodal.Model)

	orc := orchestrate.New(db, reg, sel, brk, rep, hub, lexical, summarizer, kp)
	gw := gateway.New(db, reg, sel, brk, rep, accounts, tokens, orc, kp)

	// The worker-backed classifier needs the gateway, so it is bound after
	// both exist. The llm mode talks to a local llama.cpp sidecar.
	switch cfg.Classifier.Mode {
	case "llm":
		orc.SetClassifier(classify.NewLLM(cfg.Classifier.LLMEndpoint, lexical))
	case "worker":
		orc.SetClassifier(classify.NewWorker(gw, lexical))
	}

	checker := health.NewChecker(db, reg, hub, dataDir)

	srv := api.NewServer(db, accounts, tokens, orc, reg, brk, rep, hub, checker)
	srv.SetWorkerHandler(gw.HandleWorker)
	srv.SetAdminKey(cfg.Coordinator.AdminKey)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:       cfg,
		DB:           db,
		Keypair:      kp,
		Registry:     reg,
		Selector:     sel,
		Breakers:     brk,
		Reputation:   rep,
		Hub:          hub,
		Accounts:     accounts,
		Tokens:       tokens,
		Orchestrator: orc,
		Gateway:      gw,
		Server:       srv,
		Health:       checker,
		logger:       log.WithComponent("daemon"),
	}, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)
	go d.sweepLoop(ctx)
	go d.decayLoop(ctx)
	go d.gaugeLoop(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     d.Server.Handler(),
		ReadTimeout: 30 * time.Second,
		// Writes stay open for SSE streams and worker sockets.
		IdleTimeout: 2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		d.logger.Info().Msg("shutting down")
		d.disconnectWorkers()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	d.logger.Info().
		Str("addr", addr).
		Str("public_key", d.Keypair.PublicKey()).
		Bool("metrics", d.Config.Telemetry.Prometheus).
		Msg("iris coordinator serving")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// disconnectWorkers says goodbye to the pool so workers reconnect elsewhere
// instead of timing out.
func (d *Daemon) disconnectWorkers() {
	frame, err := protocol.NewFrame(protocol.MsgDisconnect, protocol.DisconnectPayload{
		Reason: "coordinator shutting down",
	})
	if err != nil {
		return
	}
	d.Registry.Broadcast(frame)
}

func (d *Daemon) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(stream.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.Hub.Sweep(); n > 0 {
				d.logger.Debug().Int("sessions", n).Msg("swept stale stream sessions")
			}
		}
	}
}

func (d *Daemon) decayLoop(ctx context.Context) {
	ticker := time.NewTicker(decayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Reputation.WeeklyDecay()
		}
	}
}

func (d *Daemon) gaugeLoop(ctx context.Context) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connected, online := d.Registry.Counts()
			metrics.NodesConnected.Set(float64(connected))
			metrics.NodesOnline.Set(float64(online))
			metrics.StreamSessions.Set(float64(d.Hub.Len()))
			metrics.BreakersOpen.Set(float64(d.Breakers.Stats()[breaker.Open]))
		}
	}
}
