// cmd/bridge-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"erpnext-bridge/internal/autofill"
	"erpnext-bridge/internal/bulk"
	"erpnext-bridge/internal/common/config"
	"erpnext-bridge/internal/common/logger"
	"erpnext-bridge/internal/common/observability"
	"erpnext-bridge/internal/erpnext"
	"erpnext-bridge/internal/retry"
	"erpnext-bridge/internal/schema"
	"erpnext-bridge/internal/tools"
	"erpnext-bridge/pkg/skilldef"
)

var version = "1.0.0"

func main() {
	root := &cobra.Command{
		Use:   "bridge-server",
		Short: "MCP bridge exposing an ERPNext-compatible document store to automated callers",
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newSkillsCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bridge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("erpnext-bridge %s\n", version)
		},
	}
}

func newServeCmd() *cobra.Command {
	var configFile string
	var transport string
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			if transport != "" {
				cfg.Server.Transport = transport
			}
			if address != "" {
				cfg.Server.Address = address
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a config file")
	cmd.Flags().StringVar(&transport, "transport", "", "tool transport: stdio or sse")
	cmd.Flags().StringVar(&address, "address", "", "listen address for the sse transport")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func serve(cfg *config.Config) error {
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting bridge server",
		zap.String("version", version),
		zap.String("transport", cfg.Server.Transport),
		zap.String("store", cfg.ERPNext.BaseURL),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := erpnext.NewClient(
		cfg.ERPNext.BaseURL,
		cfg.ERPNext.APIKey,
		cfg.ERPNext.APISecret,
		config.GetDuration(cfg.ERPNext.Timeout),
		log,
	)
	pingStore(ctx, client, zapLog)

	cacheOpts := []schema.CacheOption{}
	if cfg.SchemaCache.Redis.Enabled {
		redisClient, err := schema.NewRedisClient(ctx, cfg.SchemaCache.Redis.Address, cfg.SchemaCache.Redis.Password, cfg.SchemaCache.Redis.DB)
		if err != nil {
			return fmt.Errorf("schema snapshot store: %w", err)
		}
		defer redisClient.Close()
		cacheOpts = append(cacheOpts, schema.WithSnapshotStore(schema.NewRedisSnapshotStore(redisClient, log)))
		zapLog.Info("schema snapshot store connected", zap.String("address", cfg.SchemaCache.Redis.Address))
	}
	cache := schema.NewCache(client, config.GetDuration(cfg.SchemaCache.TTL), log, cacheOpts...)

	engine := autofill.NewEngine()
	policy := retry.NewPolicy(
		cfg.Retry.MaxRetries,
		config.GetDuration(cfg.Retry.BaseDelay),
		config.GetDuration(cfg.Retry.MaxDelay),
		log,
	)
	executor := bulk.NewExecutor(client, cache, engine, policy, cfg.Bulk.Workers, cfg.Bulk.ProgressBuffer, log)

	loader, catalog, err := loadSkills(cfg.Skills.Dir, log, zapLog)
	if err != nil {
		return err
	}

	server := tools.NewServer(version, client, cache, engine, policy, executor, loader, catalog, log, tools.WithRecorder(obs))

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Address, zapLog)
	}

	switch cfg.Server.Transport {
	case "sse":
		return server.ServeSSE(ctx, cfg.Server.Address, cfg.Server.BasePath)
	default:
		errCh := make(chan error, 1)
		go func() { errCh <- server.ServeStdio() }()
		select {
		case <-ctx.Done():
			zapLog.Info("shutdown signal received")
			return nil
		case err := <-errCh:
			return err
		}
	}
}

// pingStore verifies connectivity with a short retry loop; the bridge still
// starts when the store is down since every operation retries on its own.
func pingStore(ctx context.Context, client *erpnext.Client, zapLog *zap.Logger) {
	delay := 2 * time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		err := client.Ping(ctx)
		if err == nil {
			zapLog.Info("remote store reachable")
			return
		}
		zapLog.Warn("remote store ping failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("nextRetryIn", delay),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
	zapLog.Warn("remote store unreachable at startup, continuing anyway")
}

func loadSkills(dir string, log logger.Logger, zapLog *zap.Logger) (*skilldef.Loader, map[string]*skilldef.Skill, error) {
	loader, err := skilldef.NewLoader(dir, log)
	if err != nil {
		return nil, nil, err
	}
	if dir == "" {
		return loader, nil, nil
	}

	catalog, err := loader.Load()
	if err != nil {
		zapLog.Warn("skills directory unavailable", zap.String("dir", dir), zap.Error(err))
		return loader, nil, nil
	}
	zapLog.Info("skills loaded", zap.Int("count", len(catalog)))
	return loader, catalog, nil
}

func serveMetrics(address string, zapLog *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	zapLog.Info("metrics endpoint listening", zap.String("address", address))
	if err := http.ListenAndServe(address, mux); err != nil {
		zapLog.Error("metrics endpoint failed", zap.Error(err))
	}
}

func newSkillsCmd() *cobra.Command {
	skillsCmd := &cobra.Command{
		Use:   "skills",
		Short: "Work with skill definitions",
	}

	validateCmd := &cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate every skill definition in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateSkillsDir(cmd, args[0])
		},
	}

	skillsCmd.AddCommand(validateCmd)
	return skillsCmd
}

func validateSkillsDir(cmd *cobra.Command, dir string) error {
	loader, err := skilldef.NewLoader(dir, logger.NewNoOpLogger())
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	invalid := 0
	for _, name := range names {
		skill, err := loader.LoadFile(filepath.Join(dir, name))
		if err != nil {
			invalid++
			cmd.Printf("FAIL %s: %v\n", name, err)
			continue
		}
		cmd.Printf("ok   %s (%s, %d steps)\n", name, skill.Name, len(skill.Workflow.Steps))
	}

	cmd.Printf("%d definitions checked, %d invalid\n", len(names), invalid)
	if invalid > 0 {
		return fmt.Errorf("%d invalid skill definitions", invalid)
	}
	return nil
}
