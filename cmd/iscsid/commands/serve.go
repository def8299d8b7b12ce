package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/coregate/iscsid/internal/config"
	"github.com/coregate/iscsid/internal/iscsi/adminapi"
	"github.com/coregate/iscsid/internal/iscsi/auth"
	iscsimetrics "github.com/coregate/iscsid/internal/iscsi/metrics"
	"github.com/coregate/iscsid/internal/iscsi/registry"
	"github.com/coregate/iscsid/internal/iscsi/target"
	"github.com/coregate/iscsid/internal/logger"
	"github.com/coregate/iscsid/internal/telemetry"
	"github.com/coregate/iscsid/pkg/device"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the iSCSI target daemon in the foreground",
	Long: `Run the iSCSI target daemon.

Loads configuration from --config (or the default location), starts the
iSCSI listener and the read-only admin HTTP surface, and serves until an
interrupt or terminate signal requests a graceful shutdown.

Examples:
  # Serve with the default config location
  iscsid serve

  # Serve with a custom config file
  iscsid serve --config /etc/iscsid/config.yaml

  # Override a setting via environment variable
  ISCSID_LOGGING_LEVEL=DEBUG iscsid serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))

	promReg := prometheus.NewRegistry()
	metrics := iscsimetrics.New(promReg)

	telemetryShutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "iscsid",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()
	if cfg.Telemetry.Enabled {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint)
	}

	var badgerDB *badger.DB
	lunRegistry, credStore, err := buildRegistry(cfg, &badgerDB)
	if err != nil {
		return err
	}
	if badgerDB != nil {
		defer badgerDB.Close()
	}

	if err := seedLUNs(cmd.Context(), lunRegistry, cfg); err != nil {
		return fmt.Errorf("failed to seed configured LUNs: %w", err)
	}

	srv := target.New(target.Config{
		BindAddress:     cfg.Target.BindAddress,
		Port:            cfg.Target.Port,
		TargetName:      cfg.Target.Name,
		RequireCHAP:     cfg.Target.RequireCHAP,
		CredentialStore: credStore,
		LUNs:            lunRegistry,
		MaxConnections:  cfg.Target.MaxConnections,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Metrics:         metrics,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Run(ctx)
	}()

	var adminSrv *adminapi.Server
	if cfg.AdminAPI.IsEnabled() {
		adminSrv = adminapi.NewServer(adminapi.Config{
			Enabled:      cfg.AdminAPI.Enabled,
			Port:         cfg.AdminAPI.Port,
			JWTSecret:    cfg.AdminAPI.JWTSecret,
			TokenTTL:     cfg.AdminAPI.TokenTTL,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			Target:       srv,
			Catalog:      lunRegistry,
			Registry:     promReg,
		})
		go func() {
			if err := adminSrv.Start(ctx); err != nil {
				logger.Error("admin api error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := adminSrv.Stop(shutdownCtx); err != nil {
				logger.Error("admin api shutdown error", "error", err)
			}
		}()
		logger.Info("admin api enabled", "port", cfg.AdminAPI.Port, "auth", cfg.AdminAPI.JWTSecret != "")
	} else {
		logger.Info("admin api disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("iscsid is running", "target", cfg.Target.Name, "addr", fmt.Sprintf("%s:%d", cfg.Target.BindAddress, cfg.Target.Port))

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, draining connections")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
		defer shutdownCancel()
		if err := srv.ShutdownGracefully(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
			return err
		}
		<-serverDone
		logger.Info("iscsid stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("target server error", "error", err)
			return err
		}
		logger.Info("iscsid stopped")
	}

	return nil
}

// buildRegistry constructs the LUN registry and CHAP credential store
// selected by cfg.Storage.Backend. For the badger backend, both share one
// database handle, which is returned via dbOut so the caller can close it
// on shutdown.
func buildRegistry(cfg *config.Config, dbOut **badger.DB) (registry.Registry, auth.CredentialStore, error) {
	switch cfg.Storage.Backend {
	case "badger":
		opts := badger.DefaultOptions(cfg.Storage.BadgerPath)
		opts.Logger = nil
		db, err := badger.Open(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger database at %s: %w", cfg.Storage.BadgerPath, err)
		}
		*dbOut = db
		return registry.NewBadgerRegistry(db, defaultDeviceResolver(cfg)), auth.NewBadgerCredentialStore(db), nil
	default:
		return registry.NewMemRegistry(), auth.NewMemCredentialStore(), nil
	}
}

// defaultDeviceResolver backs every badger-registered LUN with an
// in-memory device sized from the configured LUN entries; a deployment
// that needs durable block storage supplies a different resolver wired in
// the same place.
func defaultDeviceResolver(cfg *config.Config) registry.DeviceResolver {
	sizes := make(map[uint64]struct {
		capacity  uint64
		blockSize uint32
	})
	for _, lun := range cfg.Storage.LUNs {
		blockSize := uint32(lun.BlockSize)
		if blockSize == 0 {
			blockSize = 512
		}
		sizes[lun.Number] = struct {
			capacity  uint64
			blockSize uint32
		}{capacity: uint64(lun.SizeBytes) / uint64(blockSize), blockSize: blockSize}
	}
	return func(ctx context.Context, targetName string, lun uint64) (device.BlockDevice, error) {
		sz, ok := sizes[lun]
		if !ok {
			return device.NewMemDevice(2097152, 512), nil // 1 GiB default
		}
		return device.NewMemDevice(sz.capacity, sz.blockSize), nil
	}
}

// seedLUNs registers cfg.Target.Name with its configured LUNs in reg if
// the target doesn't already exist (a badger-backed registry persists
// across restarts, so this is a no-op after the first run).
func seedLUNs(ctx context.Context, reg registry.Registry, cfg *config.Config) error {
	existing, err := reg.Targets(ctx)
	if err != nil {
		return err
	}
	for _, name := range existing {
		if name == cfg.Target.Name {
			return nil
		}
	}

	entries := make([]registry.LUNEntry, 0, len(cfg.Storage.LUNs))
	for _, lun := range cfg.Storage.LUNs {
		blockSize := uint32(lun.BlockSize)
		if blockSize == 0 {
			blockSize = 512
		}
		entries = append(entries, registry.LUNEntry{
			Number: lun.Number,
			Device: device.NewMemDevice(uint64(lun.SizeBytes)/uint64(blockSize), blockSize),
		})
	}
	return reg.AddTarget(ctx, cfg.Target.Name, entries)
}

func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.DefaultConfigPath()
	}
	return "defaults"
}
