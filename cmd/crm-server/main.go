// Package main provides the CRM server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/audit"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/contractstatus"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/logging"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/tenancy"
)

var version = "dev"

// serverConfig is resolved from flags, STELLA_* env vars and an optional config file.
type serverConfig struct {
	Listen           string         `mapstructure:"listen"`
	DBType           string         `mapstructure:"db-type"`
	DBDSN            string         `mapstructure:"db-dsn"`
	EngineConfig     string         `mapstructure:"engine-config"`
	CatalogSeed      string         `mapstructure:"catalog-seed"`
	TenancyMode      string         `mapstructure:"tenancy-mode"`
	DefaultNamespace string         `mapstructure:"default-namespace"`
	ShutdownTimeout  time.Duration  `mapstructure:"shutdown-timeout"`
	CatalogCacheTTL  time.Duration  `mapstructure:"catalog-cache-ttl"`
	CatalogCacheSize int            `mapstructure:"catalog-cache-size"`
	Log              logging.Config `mapstructure:"log"`
	Audit            audit.Config   `mapstructure:"audit"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:     "crm-server",
		Short:   "Serve the CRM transition and audit API",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return nil
			}
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServerConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a server config file")
	addServerFlags(cmd.Flags())
	bindConfig(v, cmd.Flags())

	return cmd
}

func addServerFlags(flags *pflag.FlagSet) {
	flags.String("listen", ":8080", "Address to listen on")
	flags.String("db-type", "postgres", "Database type (postgres, mysql or sqlite)")
	flags.String("db-dsn", "", "Database connection string")
	flags.String("engine-config", "", "Path to the engine config YAML")
	flags.String("catalog-seed", "", "Path to the state catalog seed YAML")
	flags.String("tenancy-mode", string(tenancy.ModeSingle), "Tenancy mode (single or namespace)")
	flags.String("default-namespace", tenancy.DefaultNamespace, "Namespace used in single tenancy mode")
	flags.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	flags.Duration("catalog-cache-ttl", 30*time.Second, "How long state catalogs stay cached (0 disables the cache)")
	flags.Int("catalog-cache-size", 256, "Maximum number of cached state catalogs")
	flags.String("log-level", "info", "Log level")
	flags.String("log-format", "json", "Log format (json or console)")
	flags.Bool("audit-enabled", true, "Record mutating API calls in the audit trail")
	flags.Int("audit-retention-days", 90, "Days of audit events to keep (0 keeps everything)")
	flags.Bool("audit-log-rejected", true, "Also audit requests rejected with a 4xx")
}

// bindConfig makes flags, STELLA_* env vars and the config file one source,
// in that order of precedence.
func bindConfig(v *viper.Viper, flags *pflag.FlagSet) {
	_ = v.BindPFlags(flags)
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindPFlag("audit.enabled", flags.Lookup("audit-enabled"))
	_ = v.BindPFlag("audit.retention-days", flags.Lookup("audit-retention-days"))
	_ = v.BindPFlag("audit.log-rejected", flags.Lookup("audit-log-rejected"))
	v.SetEnvPrefix("STELLA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

func loadServerConfig(v *viper.Viper) (*serverConfig, error) {
	cfg := &serverConfig{Log: logging.DefaultConfig(), Audit: audit.DefaultConfig()}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DBDSN == "" {
		return nil, errors.New("database DSN is required (use --db-dsn or STELLA_DB_DSN)")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *serverConfig) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	mode, err := tenancy.ParseMode(cfg.TenancyMode)
	if err != nil {
		return err
	}

	engineCfg, err := pipeline.LoadEngineConfig(cfg.EngineConfig)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg.DBType, cfg.DBDSN)
	if err != nil {
		return err
	}
	store := pipeline.NewGormStore(db)
	if err := prepareDatabase(ctx, db, store, cfg.CatalogSeed, logger); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	opts := []pipeline.Option{
		pipeline.WithLogger(logger.Named("engine")),
		pipeline.WithMetrics(pipeline.NewMetrics(reg)),
	}
	if cfg.CatalogCacheTTL > 0 {
		opts = append(opts, pipeline.WithCatalogCache(cfg.CatalogCacheTTL, cfg.CatalogCacheSize))
	}
	engine := pipeline.NewEngine(store, engineCfg, opts...)
	contracts := contractstatus.NewService(engine)

	auditStore := audit.NewStore(db)
	cfg.Audit.SystemActor = engineCfg.SystemActor
	if cfg.Audit.Enabled {
		go audit.NewRetentionWorker(auditStore, cfg.Audit.RetentionDays, logger.Named("audit")).Run(ctx)
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler: newHandler(handlerDeps{
			engine:           engine,
			contracts:        contracts,
			audit:            auditStore,
			auditCfg:         cfg.Audit,
			db:               db,
			registry:         reg,
			mode:             mode,
			defaultNamespace: cfg.DefaultNamespace,
			logger:           logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("crm server ready", zap.String("listen", cfg.Listen), zap.String("tenancy", string(mode)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	logger.Info("crm server stopped")
	return nil
}
