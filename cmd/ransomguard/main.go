package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ransomguard/internal/alert"
	"ransomguard/internal/api"
	"ransomguard/internal/auth"
	"ransomguard/internal/detect"
	"ransomguard/internal/metrics"
	"ransomguard/internal/pipeline"
	"ransomguard/internal/storage"
	"ransomguard/internal/utils"
	"ransomguard/internal/watch"

	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configFile = flag.String("config", "configs/ransomguard.yaml", "Configuration file path (YAML)")
		port       = flag.String("port", "", "API server port (overrides config)")
	)
	flag.Parse()

	config, err := utils.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load YAML config %s: %v\n", *configFile, err)
		fmt.Println("Using default configuration...")
		config = utils.GetDefaultConfig()
	} else {
		fmt.Printf("Loaded configuration from %s\n", *configFile)
	}
	if *port != "" {
		config.Application.APIPort = *port
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)

	fmt.Println("RansomGuard")
	fmt.Printf("Watching paths: %s\n", strings.Join(config.Watch.Paths, ", "))
	fmt.Printf("Poll interval: %ds | Burst window: %ds\n",
		config.Watch.PollIntervalSeconds, config.Detection.WindowSeconds)
	fmt.Println("")

	store, err := storage.Open(config.Application.DatabasePath)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	exporter, err := metrics.NewExporter(config.Application.MetricsPort, logger)
	if err != nil {
		fmt.Printf("Failed to create metrics exporter: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := exporter.Start(ctx); err != nil {
			logger.Errorf("Metrics exporter error: %v", err)
		}
	}()

	engine := detect.NewEngine(detect.Config{
		WindowSize:           time.Duration(config.Detection.WindowSeconds) * time.Second,
		BurstMultiplier:      config.Detection.BurstMultiplier,
		SampleSize:           config.Detection.SampleSize,
		HighEntropy:          config.Detection.HighEntropy,
		MediumEntropy:        config.Detection.MediumEntropy,
		RapidEntropy:         config.Detection.RapidEntropy,
		RaaSEntropy:          config.Detection.RaaSEntropy,
		RaaSRecentPaths:      config.Detection.RaaSRecentPaths,
		RaaSMinHighEntropy:   config.Detection.RaaSMinHighEntropy,
		SuspiciousExtensions: config.Detection.SuspiciousExtensions,
	}, logger, exporter.GetMetrics())

	registerAlertNotifiers(engine, config, logger)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	hub := api.NewHub(logger)
	processor := pipeline.NewProcessor(engine, store, hub, hostname, logger)

	watcher := watch.New(
		config.Watch.Paths,
		time.Duration(config.Watch.PollIntervalSeconds)*time.Second,
		processor,
		logger,
		exporter.GetMetrics(),
	)

	retention := storage.NewRetentionManager(store, storage.RetentionPolicy{
		FileEvents:     time.Duration(config.Retention.FileEventDays) * 24 * time.Hour,
		Alerts:         time.Duration(config.Retention.AlertDays) * 24 * time.Hour,
		CriticalAlerts: time.Duration(config.Retention.CriticalAlertDays) * 24 * time.Hour,
		SweepInterval:  time.Duration(config.Retention.SweepIntervalHours) * time.Hour,
	}, logger)
	retention.Start()
	defer retention.Stop()

	if config.Application.AutoStart {
		if err := watcher.Start(); err != nil {
			logger.Errorf("Failed to start file monitoring: %v", err)
		}
	}

	go consumeAlerts(ctx, engine)

	authMgr := auth.NewManager(config.Auth.JWTSecret,
		time.Duration(config.Auth.TokenExpiryMinutes)*time.Minute)
	stopTimeout := time.Duration(config.Watch.StopTimeoutSeconds) * time.Second

	handlers := api.NewHandlers(store, watcher, engine, processor, retention, authMgr, hub, stopTimeout, logger)
	router := api.NewRouter(handlers)

	srv := &http.Server{
		Addr:              ":" + config.Application.APIPort,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
	}

	logger.Infof("API server starting on port %s", config.Application.APIPort)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down...")

		if err := watcher.Stop(stopTimeout); err != nil {
			logger.Errorf("Watcher shutdown error: %v", err)
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}

func registerAlertNotifiers(engine *detect.Engine, config *utils.Config, logger *logrus.Logger) {
	if !config.Alerting.Enabled {
		return
	}

	if config.Alerting.Channels.Log {
		logNotifier := alert.NewLogAlertNotifier(logger)
		engine.RegisterNotifier(logNotifier)
	}

	if config.Alerting.Channels.Telegram && config.Alerting.Telegram.Enabled {
		telegramNotifier := alert.NewTelegramNotifierWithTemplate(
			config.Alerting.Telegram.BotToken,
			config.Alerting.Telegram.ChatID,
			config.Alerting.Telegram.ParseMode,
			config.Alerting.Telegram.Enabled,
			config.Alerting.Telegram.MessageTemplate,
			logger,
		)
		engine.RegisterNotifier(telegramNotifier)
	}
}

// consumeAlerts drains the engine's alert channel to the console so emits
// never block even with no other consumer attached.
func consumeAlerts(ctx context.Context, engine *detect.Engine) {
	alertChannel := engine.GetAlertChannel()
	for {
		select {
		case a := <-alertChannel:
			timestamp := a.CreatedAt.Format("2006-01-02 15:04:05")
			fmt.Printf("\n[%s] %s %s - %s (fme=%.3f abt=%.2f)\n",
				timestamp, strings.ToUpper(string(a.Severity)), a.Category, a.Path, a.FME, a.ABT)
		case <-ctx.Done():
			return
		}
	}
}
