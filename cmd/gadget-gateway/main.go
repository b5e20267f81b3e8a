package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"zigbee-gadgets/internal/automation"
	"zigbee-gadgets/internal/coordinator"
	"zigbee-gadgets/internal/gadget"
	"zigbee-gadgets/internal/ncp"
	"zigbee-gadgets/internal/store"
	"zigbee-gadgets/internal/web"
	"zigbee-gadgets/internal/zcl"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type RuleConfig struct {
	Trigger string `yaml:"trigger"` // "Pir" or "Humidity"
	Target  struct {
		Address  string `yaml:"address"`
		Endpoint int    `yaml:"endpoint"`
		Type     string `yaml:"type"`
	} `yaml:"target"`
}

type Config struct {
	NCP struct {
		Port           string        `yaml:"port"`
		Baud           int           `yaml:"baud"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"ncp"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path       string `yaml:"path"`
		JournalMax int    `yaml:"journal_max"`
	} `yaml:"store"`
	MQTT struct {
		Enabled         bool   `yaml:"enabled"`
		Broker          string `yaml:"broker"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		TopicPrefix     string `yaml:"topic_prefix"`
		DiscoveryPrefix string `yaml:"discovery_prefix"`
	} `yaml:"mqtt"`
	InfluxDB struct {
		Enabled       bool          `yaml:"enabled"`
		URL           string        `yaml:"url"`
		Token         string        `yaml:"token"`
		Org           string        `yaml:"org"`
		Bucket        string        `yaml:"bucket"`
		BatchSize     int           `yaml:"batch_size"`
		FlushInterval time.Duration `yaml:"flush_interval"`
	} `yaml:"influxdb"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Automation struct {
		Rules             []RuleConfig  `yaml:"rules"`
		HumidityThreshold float64       `yaml:"humidity_threshold"`
		CommandTimeout    time.Duration `yaml:"command_timeout"`
	} `yaml:"automation"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	if c.NCP.Port == "" {
		return fmt.Errorf("ncp.port is required")
	}
	if c.NCP.Baud <= 0 {
		return fmt.Errorf("ncp.baud must be positive, got %d", c.NCP.Baud)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		return fmt.Errorf("influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}
	if t := c.Automation.HumidityThreshold; t <= 0 || t > 100 {
		return fmt.Errorf("automation.humidity_threshold must be in (0, 100], got %v", t)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// coordinatorConfig converts the YAML settings. Rule validation happens
// in automation.New.
func (c *Config) coordinatorConfig() coordinator.Config {
	rules := make([]automation.Rule, 0, len(c.Automation.Rules))
	for _, r := range c.Automation.Rules {
		rules = append(rules, automation.Rule{
			Trigger: gadget.Type(r.Trigger),
			Target: automation.Selector{
				Address:  r.Target.Address,
				Endpoint: r.Target.Endpoint,
				Type:     gadget.Type(r.Target.Type),
			},
		})
	}
	return coordinator.Config{
		Automation: automation.Config{
			Rules:             rules,
			HumidityThreshold: c.Automation.HumidityThreshold,
			CommandTimeout:    c.Automation.CommandTimeout,
		},
		CommandTimeout: c.Automation.CommandTimeout,
		RequestTimeout: c.NCP.RequestTimeout,
	}
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg *Config) error {
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("gadget-gateway starting", "version", version)

	registry := zcl.NewDefaultRegistry(logger)
	logger.Info("ZCL registry initialized", "clusters", len(registry.All()))

	db, err := store.NewBoltStore(cfg.Store.Path, cfg.Store.JournalMax)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	link, err := ncp.OpenSerial(cfg.NCP.Port, cfg.NCP.Baud, registry, logger.With("component", "ncp"),
		ncp.Options{RequestTimeout: cfg.NCP.RequestTimeout})
	if err != nil {
		return err
	}
	logger.Info("serial adapter opened", "port", cfg.NCP.Port, "baud", cfg.NCP.Baud)

	events := coordinator.NewEventBus(logger)
	coord, err := coordinator.New(link, db, events, cfg.coordinatorConfig(), logger)
	if err != nil {
		link.Close()
		return fmt.Errorf("create coordinator: %w", err)
	}

	// Subscribers attach before Start so they see the first ready.
	telemetry := initTelemetry(coord, cfg, logger)
	mqtt := initMQTT(coord, cfg, logger)
	scripts, scriptOpts := initScripting(coord, cfg, logger)

	webOpts := []web.ServerOption{
		web.WithRegistry(registry),
		web.WithVersion(version),
	}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, scriptOpts...)
	webServer := web.NewServer(coord, logger, webOpts...)

	stopAll := func() {
		webServer.Stop()
		scripts.Stop()
		mqtt.Stop()
		coord.Stop()
		telemetry.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = coord.Start(ctx)
	cancel()
	if err != nil {
		stopAll()
		return fmt.Errorf("start coordinator: %w", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	stopAll()

	logger.Info("goodbye")
	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:3030"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "gadgets.db"
	}
	if cfg.NCP.Baud == 0 {
		cfg.NCP.Baud = 115200
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "gadgets"
	}
	if cfg.Automation.HumidityThreshold == 0 {
		cfg.Automation.HumidityThreshold = automation.DefaultHumidityThreshold
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
