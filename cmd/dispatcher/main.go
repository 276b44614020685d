// cmd/dispatcher/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	http_api "provider-dispatch/internal/api/http"
	"provider-dispatch/internal/config"
	"provider-dispatch/internal/dispatch"
	"provider-dispatch/internal/domain"
	amqp_infra "provider-dispatch/internal/infra/amqp"
	"provider-dispatch/internal/infra/etcd"
	"provider-dispatch/internal/infra/postgres"
	"provider-dispatch/internal/infra/whatsapp"
	"provider-dispatch/internal/scheduler"
	"provider-dispatch/internal/tracing"
	"provider-dispatch/internal/usecase"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Initialize logger and tracer
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer("provider-dispatch")
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	log.Println("Starting provider dispatch node...")

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	nodeID := uuid.New().String()
	log.Printf("Node ID: %s", nodeID)

	// 3. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Setup graceful shutdown
	setupGracefulShutdown(cancel)

	// 5. Connect the session store
	db, err := postgres.NewDB(postgres.Config{
		Host:       cfg.PostgresHost,
		Port:       cfg.PostgresPort,
		User:       cfg.PostgresUser,
		Password:   cfg.PostgresPassword,
		DBName:     cfg.PostgresDB,
		InitScript: cfg.PostgresInitScript,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to session store: %v", err)
	}
	defer db.Close()

	// 6. Init etcd client (batch lock + leader election)
	etcdClient, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
	if err != nil {
		log.Fatalf("Failed to create etcd client: %v", err)
	}
	defer etcdClient.Close()
	log.Println("Connected to etcd.")

	// 7. Instantiate components
	notifier, cleanup, err := newNotifier(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create notifier: %v", err)
	}
	defer cleanup()

	sessionRepo := postgres.NewSessionRepository(db, logger)
	resolver := postgres.NewCandidateResolver(db, logger)
	locker := etcd.NewEtcdLocker(etcdClient)

	dispatcher := dispatch.NewDispatcher(sessionRepo, resolver, notifier, locker,
		cfg.DispatchBatchSize, cfg.NotifySendTimeout, logger)
	correlator := dispatch.NewCorrelator(sessionRepo, notifier, cfg.NotifySendTimeout, logger)

	dispatchScheduler := scheduler.NewCronScheduler(dispatcher, cfg.DispatchInterval, logger)
	leaderManager := etcd.NewEtcdLeaderElectionManager(etcdClient, nodeID, cfg.LeaderElectionTTL, logger)
	schedulerService := usecase.NewSchedulerService(leaderManager, dispatchScheduler, nodeID, logger)
	sessionService := usecase.NewSessionService(sessionRepo, logger)

	sessionHandler := http_api.NewSessionHandler(sessionService, logger)
	webhookHandler := http_api.NewWebhookHandler(correlator, logger)

	// 8. Register routes and metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	sessionHandler.RegisterRoutes(mux)
	webhookHandler.RegisterRoutes(mux)
	registerOpsRoutes(mux, db, dispatcher, logger)

	// 9. Start SchedulerService (dispatch loop runs on the leader only)
	go func() {
		if err := schedulerService.Start(rootCtx); err != nil && err != context.Canceled {
			log.Fatalf("SchedulerService stopped with error: %v", err)
		}
	}()

	// 10. Start HTTP API server
	log.Printf("Starting HTTP API server on %s", cfg.HttpListenAddr)
	server := &http.Server{
		Addr:    cfg.HttpListenAddr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 11. Block until shutdown
	<-rootCtx.Done()
	log.Println("Shutting down application gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP server shutdown failed: %v", err)
	}

	log.Println("Application shut down.")
}

// newNotifier builds the configured outbound channel. The returned cleanup
// is a no-op for channels without a persistent connection.
func newNotifier(cfg *config.Config, logger *slog.Logger) (domain.Notifier, func(), error) {
	switch cfg.Notifier {
	case "whatsapp":
		n := whatsapp.NewNotifier(whatsapp.Config{
			AccountSID:  cfg.WhatsApp.AccountSID,
			AuthToken:   cfg.WhatsApp.AuthToken,
			From:        cfg.WhatsApp.From,
			TemplateSID: cfg.WhatsApp.TemplateSID,
			APIBase:     cfg.WhatsApp.APIBase,
			Timeout:     cfg.NotifySendTimeout,
		}, logger)
		return n, func() {}, nil
	case "amqp":
		p, err := amqp_infra.NewPublisher(cfg.AmqpURL, cfg.AmqpExchange, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown notifier %q", cfg.Notifier)
	}
}

// registerOpsRoutes wires the liveness, health and manual-trigger endpoints.
func registerOpsRoutes(mux *http.ServeMux, db *postgres.DB, dispatcher domain.Dispatcher, logger *slog.Logger) {
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("Provider dispatch service is running."))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	// Manual trigger for one dispatch batch, useful during operations.
	mux.HandleFunc("/dispatch/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := dispatcher.RunBatch(r.Context()); err != nil {
			logger.Error("manual dispatch run failed", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("dispatch batch executed"))
	})
}

func setupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v. Initiating graceful shutdown...", sig)
		cancel()
	}()
}
