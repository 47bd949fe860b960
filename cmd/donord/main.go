package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/wotori/solana-donations/config"
	"github.com/wotori/solana-donations/core"
	"github.com/wotori/solana-donations/core/state"
	"github.com/wotori/solana-donations/native/donations"
	"github.com/wotori/solana-donations/observability"
	"github.com/wotori/solana-donations/observability/logging"
	telemetry "github.com/wotori/solana-donations/observability/otel"
	"github.com/wotori/solana-donations/rpc"
	"github.com/wotori/solana-donations/storage"
)

const serviceName = "donord"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the configuration")
	allowMigrate := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	logger := logging.Setup(serviceName, cfg.Environment, logging.Options{
		Level:     parseLevel(cfg.Logging.Level),
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	programID, err := cfg.ProgramKey()
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	st := state.NewManager(db)
	_, stamped, err := st.StateVersion()
	if err != nil {
		return fmt.Errorf("read state version: %w", err)
	}
	if err := st.EnsureStateVersion(*allowMigrate); err != nil {
		return err
	}

	runtime := core.NewRuntime(st)
	runtime.SetLogger(logger)
	runtime.SetEmitter(observability.Events())
	if err := runtime.Register(donations.NewProgram(programID)); err != nil {
		return err
	}

	if !stamped {
		if err := applyGenesis(runtime, cfg, logger); err != nil {
			return err
		}
	}

	server := rpc.NewServer(runtime, programID, rpc.ServerConfig{
		AuthToken:         cfg.RPCToken,
		EnableFaucet:      cfg.EnableFaucet,
		FaucetMaxLamports: cfg.FaucetMaxLamports,
		FaucetPerMinute:   cfg.FaucetPerMinute,
		FaucetBurst:       cfg.FaucetBurst,
		TxTimeout:         time.Duration(cfg.TxTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.RPCReadHeaderTimeout) * time.Second,
	})
	server.SetLogger(logger)

	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.RPCAddress, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("donations node starting",
		slog.String("program", programID.String()),
		slog.String("data_dir", cfg.DataDir),
		slog.Bool("faucet", cfg.EnableFaucet))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(listener)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("donations node stopped")
	return nil
}

// applyGenesis credits the configured allocations into a freshly created
// data directory.
func applyGenesis(runtime *core.Runtime, cfg *config.Config, logger *slog.Logger) error {
	accounts, err := cfg.GenesisAccounts()
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		if _, err := runtime.Airdrop(context.Background(), acc.Address, acc.Lamports); err != nil {
			return fmt.Errorf("genesis allocation %s: %w", acc.Address, err)
		}
		logger.Info("genesis allocation applied",
			slog.String("address", acc.Address.String()),
			slog.Uint64("lamports", acc.Lamports))
	}
	return nil
}

func parseLevel(raw string) slog.Leveler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}
