package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/Phat0101/AI-classifier/classification"
	"github.com/Phat0101/AI-classifier/classifying"
	"github.com/Phat0101/AI-classifier/config"
	"github.com/Phat0101/AI-classifier/database"
	"github.com/Phat0101/AI-classifier/debug"
	"github.com/Phat0101/AI-classifier/deployment"
	"github.com/Phat0101/AI-classifier/handlers"
	"github.com/Phat0101/AI-classifier/jobs"
	"github.com/Phat0101/AI-classifier/metrics"
	"github.com/Phat0101/AI-classifier/scheduler"
	"github.com/Phat0101/AI-classifier/tariff"
)

// version is stamped by the release build; local builds report dev.
var version = "dev"

type componentInfo struct {
	Component string `json:"component"`
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// classifierInfo satisfies the info interfaces of the handlers and
// metrics packages from a single place.
type classifierInfo struct {
	ip string // resolved once at startup
}

func newClassifierInfo() *classifierInfo {
	return &classifierInfo{ip: outboundIP()}
}

func (c *classifierInfo) GetInfo() interface{} {
	hostname, _ := os.Hostname()
	return componentInfo{
		Component: "ai-classifier",
		Version:   version,
		Hostname:  hostname,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

func (c *classifierInfo) GetDeploymentName() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "localhost"
}

func (c *classifierInfo) GetVersion() string { return version }

func (c *classifierInfo) GetDeploymentIP() string { return c.ip }

// outboundIP reports the local address the kernel routes external
// traffic through. A UDP dial sends no packets, it only resolves
// the route.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		log.Printf("Warning: failed to determine primary outbound IP: %v", err)
		return ""
	}
	addr := conn.LocalAddr().(*net.UDPAddr)
	if err := conn.Close(); err != nil {
		log.Printf("Warning: failed to close connection: %v", err)
	}
	return addr.IP.String()
}

// logTee mirrors log output into the server log file when its directory
// is writable. Otherwise logging stays on stdout alone.
func logTee() *os.File {
	path := filepath.Join("/var/log/ai-classifier", "server.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("Warning: could not open log file %s: %v (logging to stdout only)", path, err)
		return nil
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return f
}

// registerJobs adds the enabled background jobs to sched. It reports
// whether the refresh job made it onto the schedule, since the startup
// sync should only fire when it did.
func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, syncer *tariff.Syncer, db *database.DB, engine *classification.Engine, queue *classifying.Queue) bool {
	refreshScheduled := false

	if cfg.JobsRefreshEnabled && syncer != nil {
		// Jitter spreads the syncs of a deployment fleet over a tenth
		// of the interval.
		err := sched.AddJob(
			jobs.NewRefreshReferenceJob(syncer, db, engine, queue),
			scheduler.NewIntervalScheduleWithJitter(cfg.JobsRefreshInterval, cfg.JobsRefreshInterval/10),
			scheduler.JobConfig{Enabled: true, Timeout: cfg.JobsRefreshTimeout},
		)
		if err != nil {
			log.Fatalf("Failed to add refresh reference job: %v", err)
		}
		refreshScheduled = true
		log.Printf("Scheduled refresh-reference job (interval: %v, timeout: %v)", cfg.JobsRefreshInterval, cfg.JobsRefreshTimeout)
	}

	if cfg.JobsCleanupEnabled {
		err := sched.AddJob(
			jobs.NewCleanupHistoryJob(db, cfg.HistoryRetention),
			scheduler.NewIntervalSchedule(cfg.JobsCleanupInterval),
			scheduler.JobConfig{Enabled: true, Timeout: cfg.JobsCleanupTimeout},
		)
		if err != nil {
			log.Fatalf("Failed to add cleanup history job: %v", err)
		}
		log.Printf("Scheduled cleanup-history job (interval: %v, timeout: %v, retention: %v)", cfg.JobsCleanupInterval, cfg.JobsCleanupTimeout, cfg.HistoryRetention)
	}

	return refreshScheduled
}

// startOTELExporter brings up the OTLP push exporter when configured.
// Returns nil when disabled or when initialization fails; metrics stay
// available on the pull endpoint either way.
func startOTELExporter(ctx context.Context, cfg *config.Config, info metrics.InfoProvider, deploymentUUID string, db *database.DB, queue *classifying.Queue, collectorConfig metrics.CollectorConfig) *metrics.OTELExporter {
	if !cfg.OTELMetricsEnabled {
		return nil
	}

	log.Printf("Initializing OpenTelemetry metrics exporter (endpoint: %s, protocol: %s, interval: %v)",
		cfg.OTELMetricsEndpoint, cfg.OTELMetricsProtocol, cfg.OTELMetricsPushInterval)

	exporter, err := metrics.NewOTELExporter(ctx, info, deploymentUUID, db, queue, collectorConfig, metrics.OTELConfig{
		Endpoint:     cfg.OTELMetricsEndpoint,
		Protocol:     metrics.OTELProtocol(cfg.OTELMetricsProtocol),
		PushInterval: cfg.OTELMetricsPushInterval,
		Insecure:     cfg.OTELMetricsInsecure,
	})
	if err != nil {
		log.Printf("Warning: Failed to initialize OTEL exporter: %v (continuing without OTEL)", err)
		return nil
	}

	exporter.Start()
	log.Println("OpenTelemetry metrics exporter started")
	return exporter
}

func main() {
	if f := logTee(); f != nil {
		defer func() { _ = f.Close() }()
	}

	cfg, err := config.LoadConfigWithDefaults()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugConfig := debug.NewDebugConfig(cfg.DebugEnabled)
	if debugConfig.IsEnabled() {
		log.Println("Debug mode ENABLED - /debug endpoints available")
	}

	log.Printf("ai-classifier v%s starting", version)
	log.Printf("Configuration: listen=%s, db_path=%s, debug=%v", cfg.ListenAddr(), cfg.DBPath, cfg.DebugEnabled)

	// The deployment UUID lives next to the database so both survive
	// container restarts together.
	deploymentUUID, err := deployment.NewUUID(filepath.Dir(cfg.DBPath))
	if err != nil {
		log.Fatalf("Failed to initialize deployment UUID: %v", err)
	}
	log.Printf("Deployment UUID: %s", deploymentUUID)

	db, err := database.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	// Upstream tariff API client, rate limited on our side
	client := tariff.NewClient(tariff.ClientConfig{
		BaseURL:   cfg.TariffBaseURL,
		BookRef:   cfg.ConcessionBookRef,
		Timeout:   cfg.TariffTimeout,
		RateLimit: cfg.TariffRateLimit,
		RateBurst: cfg.TariffRateBurst,
	})

	// Without a cache directory there is no schedule syncing, but data
	// from earlier syncs still serves.
	syncer, err := tariff.NewSyncer(client, db, cfg.CacheDir)
	if err != nil {
		log.Printf("Warning: failed to create tariff syncer: %v (reference refresh disabled)", err)
		syncer = nil
	}

	// The classification engine starts from whatever schedule the
	// database holds; on a fresh deployment that is nothing until the
	// first sync lands.
	idx, err := jobs.LoadReferenceIndex(db)
	if err != nil {
		log.Printf("Warning: failed to load reference index: %v (starting empty)", err)
		idx = classification.NewIndex(nil)
	}
	engine := classification.NewEngine(idx, client)
	if engine.Ready() {
		log.Printf("Reference index loaded with %d tariff lines", engine.ReferenceSize())
	} else {
		log.Println("Reference index empty, waiting for first tariff sync")
	}

	queue := classifying.NewQueue(db, engine, classifying.Config{
		MaxDepth:     cfg.QueueMaxDepth,
		FullBehavior: cfg.QueueFullBehavior,
	})
	defer queue.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(db)
	schedulerStarted := false
	if cfg.JobsEnabled {
		refreshScheduled := registerJobs(sched, cfg, syncer, db, engine, queue)

		if err := sched.Start(ctx); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
		schedulerStarted = true
		log.Println("Scheduler started")

		// Sync right away rather than waiting out the first interval.
		// The job no-ops when the upstream schedule has not changed.
		if refreshScheduled {
			if err := sched.RunJobNow("refresh-reference"); err != nil {
				log.Printf("Warning: failed to trigger initial tariff sync: %v", err)
			}
		}
	}

	info := newClassifierInfo()

	mux := http.NewServeMux()
	handlers.RegisterHandlers(mux, info, engine)
	handlers.RegisterClassificationHandlers(mux, engine, db, queue)
	handlers.RegisterReferenceHandlers(mux, db)
	handlers.RegisterDebugHandlers(mux, db, debugConfig, queue)
	handlers.RegisterJobsHandlers(mux, sched, db)

	collectorConfig := metrics.CollectorConfig{
		DeploymentEnabled:     cfg.MetricsDeploymentEnabled,
		ResultsEnabled:        cfg.MetricsResultsEnabled,
		RequestsEnabled:       cfg.MetricsRequestsEnabled,
		ReferenceLinesEnabled: cfg.MetricsReferenceEnabled,
		QueueDepthEnabled:     cfg.MetricsQueueEnabled,
	}

	// Series that stop being reported get a staleness marker on the
	// next scrape instead of silently vanishing
	tracker := metrics.NewMetricTracker(metrics.MetricTrackerConfig{Store: db})
	log.Printf("Metric staleness tracking enabled (window: %v)", tracker.GetStalenessWindow())

	collector := metrics.NewCollector(info, deploymentUUID.String(), db, queue, collectorConfig)
	collector.SetTracker(tracker)
	metrics.RegisterMetricsHandler(mux, collector)

	otelExporter := startOTELExporter(ctx, cfg, info, deploymentUUID.String(), db, queue, collectorConfig)

	var handler http.Handler = mux
	if debugConfig.IsEnabled() {
		handler = debug.LoggingMiddleware(debugConfig, mux)
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: handler,
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("ai-classifier listening on %s", cfg.ListenAddr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sig
	log.Println("Shutdown signal received, shutting down gracefully...")

	// Stop background work first so nothing writes during teardown
	cancel()

	if otelExporter != nil {
		log.Println("Shutting down OpenTelemetry exporter...")
		if err := otelExporter.Shutdown(); err != nil {
			log.Printf("Error shutting down OTEL exporter: %v", err)
		}
	}

	if schedulerStarted {
		if err := sched.Stop(); err != nil {
			log.Printf("Error stopping scheduler: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("ai-classifier stopped")
}
