package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/panelsense/internal/adapter/actor"
	"github.com/berfenger/panelsense/internal/adapter/appinfo"
	"github.com/berfenger/panelsense/internal/adapter/cron"
	"github.com/berfenger/panelsense/internal/adapter/store"
	"github.com/berfenger/panelsense/internal/config"
	"github.com/berfenger/panelsense/internal/core/actor"
	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/service"
	"github.com/berfenger/panelsense/internal/core/stream"
	"github.com/berfenger/panelsense/internal/metric"
	"github.com/berfenger/panelsense/internal/server"
	"github.com/berfenger/panelsense/internal/util/actorutil"
	"github.com/berfenger/panelsense/pkg/panelsense_ws"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)

	defer logger.Sync()

	sessionStore, err := store.NewYAMLStore(cfg.DataDir)
	if err != nil {
		panic(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := metric.NewMetrics(reg)
	hubs := stream.NewHubs(metrics, logger)

	repo, err := service.NewRepository(as, components(cfg, hubs, metrics, sessionStore, logger), logger)
	if err != nil {
		panic(err)
	}

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	if cfg.Server.AutoLogin() {
		go autoLogin(appCtx, repo, cfg, logger)
	}

	if cfg.MQTT.Enable {
		version := appinfo.VersionInfo{Code: cfg.Client.VersionCode}.VersionName()
		_, err := repo.AttachComponent(appCtx, domain.ACTOR_ID_MQTT, func() pactor.Actor {
			return adactor.NewMQTTActor(cfg, adactor.PahoClientFactory(cfg), repo, repo, version, logger)
		})
		if err != nil {
			panic(err)
		}
	}

	if interval := cfg.Session.ResyncInterval(); interval > 0 {
		if _, err := cron.StartResync(appCtx, interval, repo, logger); err != nil {
			panic(err)
		}
	}

	server := server.NewServer(*cfg, repo, reg, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	cancelApp()
	if err := repo.Close(); err != nil {
		logger.Warn("actor tree did not stop cleanly", zap.Error(err))
	}
	as.Shutdown()
}

func components(cfg *config.Config, hubs *stream.Hubs, metrics *metric.Metrics, sessionStore *store.YAMLStore,
	logger *zap.Logger) actor.Components {

	dialer := panelsense_ws.WebsocketDialer{
		Path:             cfg.Server.Path,
		Secure:           cfg.Server.Secure,
		HandshakeTimeout: cfg.Server.ConnectTimeout(),
		Logger:           logger,
	}

	components := actor.Components{
		Hubs:    hubs,
		Metrics: metrics,
		Store:   sessionStore,
		Version: appinfo.VersionInfo{Code: cfg.Client.VersionCode},
		AppData: sessionStore,
		Transport: func(router *pactor.PID) pactor.Actor {
			return adactor.NewTransportActor(dialer, router, hubs.ConnectionStates, metrics, cfg.Server.ConnectTimeout(), logger)
		},
		Session: actor.SessionSettingsFromConfig(*cfg),
	}
	if cfg.Reconnect.Enable {
		components.ReconnectPolicy = service.ExponentialBackoffPolicy{
			InitialDelay: cfg.Reconnect.InitialDelay(),
			MaxDelay:     cfg.Reconnect.MaxDelay(),
			MaxAttempts:  cfg.Reconnect.MaxAttempts,
			Jitter:       0.2,
		}
	}
	return components
}

// autoLogin retries the configured login until it succeeds or credentials are rejected.
func autoLogin(ctx context.Context, repo *service.Repository, cfg *config.Config, logger *zap.Logger) {
	data := domain.ServerConnectionData{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		Username:    cfg.Server.Username,
		Password:    cfg.Server.Password,
		AccessToken: cfg.Server.AccessToken,
	}
	policy := service.ExponentialBackoffPolicy{
		InitialDelay: cfg.Reconnect.InitialDelay(),
		MaxDelay:     cfg.Reconnect.MaxDelay(),
		Jitter:       0.2,
	}
	for attempt := 0; ; attempt++ {
		err := repo.Login(ctx, data)
		if err == nil {
			logger.Info("logged in", zap.String("address", data.Address()))
			return
		}
		if errors.Is(err, domain.ErrAuthRejected) || ctx.Err() != nil {
			logger.Error("auto login stopped", zap.Error(err))
			return
		}
		delay, _ := policy.NextDelay(attempt)
		logger.Warn("auto login failed, retrying", zap.Error(err), zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func initConfig() (*config.Config, error) {

	// alias PORT => PANELSENSE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("PANELSENSE_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("panelsense")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("server.port", 8099)
	viper.SetDefault("server.path", panelsense_ws.DEFAULT_PATH)
	viper.SetDefault("server.secure", false)
	viper.SetDefault("server.connect_timeout_millis", 5000)
	viper.SetDefault("client.name", "panelsense")
	viper.SetDefault("client.version_code", 1)
	viper.SetDefault("session.auth_timeout_millis", 10000)
	viper.SetDefault("session.request_state_delay_millis", 500)
	viper.SetDefault("session.resync_interval_seconds", 0)
	viper.SetDefault("reconnect.enable", true)
	viper.SetDefault("reconnect.initial_delay_millis", 1000)
	viper.SetDefault("reconnect.max_delay_millis", 60000)
	viper.SetDefault("reconnect.max_attempts", 0)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "panelsense")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("data_dir", "data")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.Server.Password = "*redacted*"
	if cfg.Server.AccessToken != "" {
		cfg.Server.AccessToken = "*redacted*"
	}
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
