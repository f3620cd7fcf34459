package main

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/defindex/internal/auth"
	"github.com/elys-network/defindex/internal/config"
	"github.com/elys-network/defindex/internal/gateway"
	"github.com/elys-network/defindex/internal/keeper"
	"github.com/elys-network/defindex/internal/logger"
	"github.com/elys-network/defindex/internal/planner"
	"github.com/elys-network/defindex/internal/sim"
	"github.com/elys-network/defindex/internal/state"
	"github.com/elys-network/defindex/internal/store"
	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/vault"
	"github.com/elys-network/defindex/internal/web"
)

const (
	STORE_NAME       = "defindex"
	CONFIG_VERSION   = 1
	SHUTDOWN_TIMEOUT = 10 * time.Second
)

// main is the entry point for the vault daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var logWriters []io.Writer
	if path := os.Getenv("LOG_FILE"); path != "" {
		fileWriter, err := logger.FileWriter(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to open log file")
		}
		logWriters = append(logWriters, fileWriter)
	}
	logger.Initialize(config.LogLevel, config.LogFormat, logWriters...)
	log.Info().Str("vault", config.VaultAddress).Str("mode", config.VaultMode).Msg("DeFindex vault starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap, err := config.LoadBootstrap(config.VaultConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load vault bootstrap file")
	}
	params := bootstrap.InitParams()

	// Initialize the journal database when configured
	var recorder vault.Recorder
	var journal web.JournalReader
	var runRecorder keeper.RunRecorder
	dbCfg, dbEnabled, err := config.LoadDBConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}
	if dbEnabled {
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}

		// Load the active vault config, saving the bootstrap definition when none exists
		stored, version, err := state.LoadActiveVaultConfig(ctx, config.VaultAddress)
		if err != nil {
			if !errors.Is(err, state.ErrNoActiveConfig) {
				log.Fatal().Err(err).Msg("Failed to load active vault config")
			}
			log.Warn().Msg("No active vault config stored, saving the bootstrap definition.")
			if err := state.SaveVaultConfig(ctx, config.VaultAddress, CONFIG_VERSION, params, true); err != nil {
				log.Fatal().Err(err).Msg("Failed to save initial vault config")
			}
		} else {
			log.Info().Int("version", version).Msg("Using stored vault config")
			params = stored
		}

		recorder = state.NewJournal(config.VaultAddress)
		journal = state.JournalReader{VaultAddress: config.VaultAddress}
		runRecorder = keeper.RunRecorderFunc(state.RecordJobRun)
	} else {
		log.Warn().Msg("DB_NAME not set, operation journal disabled")
	}

	// --- 2. Vault state and collaborators ---
	db, err := store.OpenDB(STORE_NAME, config.StoreBackend, config.StoreDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open vault store")
	}
	svc := store.NewService(db)
	defer svc.Close()

	authorizer := auth.Authorizer{}
	clock := types.SystemClock{}
	var resolver types.ContractResolver
	var host *sim.Host

	switch config.VaultMode {
	case config.ModeRemote:
		client, err := gateway.Dial(config.NodeGRPC)
		if err != nil {
			log.Fatal().Err(err).Msg("gRPC connection error")
		}
		defer client.Close()
		log.Info().Str("endpoint", config.NodeGRPC).Msg("gRPC connected")
		resolver = client
	default:
		log.Warn().Msg("Running against the in-process simulation host. No real funds are moved.")
		host = sim.NewHost(svc, authorizer, clock)
		resolver = host
	}

	v, err := vault.New(vault.Config{
		Address:    config.VaultAddress,
		Store:      svc,
		Resolver:   resolver,
		Authorizer: authorizer,
		Clock:      clock,
		Recorder:   recorder,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault")
	}

	_, err = v.Metadata(ctx)
	fresh := errors.Is(err, vault.ErrNotInitialized)
	if err != nil && !fresh {
		log.Fatal().Err(err).Msg("Failed to read vault state")
	}
	if host != nil {
		if err := bootstrap.SeedHost(ctx, host, fresh); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed simulation host")
		}
	}
	if fresh {
		if err := v.Initialize(ctx, params); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize vault")
		}
		log.Info().Str("name", params.Name).Str("symbol", params.Symbol).Msg("Vault initialized")
	}

	// --- 3. Services ---
	g, ctx := errgroup.WithContext(ctx)

	webServer := web.NewWebServer(config.WebPort, v, journal)
	g.Go(func() error {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting vault web API")
		return webServer.Start()
	})

	var gatewayServer *gateway.Server
	if host != nil && config.GRPCListenAddr != "" {
		gatewayServer, err = gateway.NewServer(gateway.ServerConfig{Resolver: host, Authorizer: authorizer, Store: svc})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create gateway server")
		}
		lis, err := net.Listen("tcp", config.GRPCListenAddr)
		if err != nil {
			log.Fatal().Err(err).Str("address", config.GRPCListenAddr).Msg("Failed to listen for gateway")
		}
		g.Go(func() error {
			return gatewayServer.Serve(lis)
		})
	}

	var k *keeper.Keeper
	if config.OperatorAddress != "" {
		k, err = keeper.New(keeper.Config{
			Vault:    v,
			Operator: config.OperatorAddress,
			Recorder: runRecorder,
			Targets:  planner.Targets(bootstrap.Vault.Targets),
			PlanOptions: planner.Options{
				MinMove:      config.RebalanceMinMove,
				MaxUnwindBps: config.RebalanceMaxUnwindBps,
			},
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create keeper")
		}
		if err := k.Schedule(keeper.Schedules{
			Harvest:    config.HarvestSchedule,
			LockFees:   config.LockFeesSchedule,
			Collect:    config.CollectSchedule,
			Distribute: config.DistributeSchedule,
			Rebalance:  config.RebalanceSchedule,
		}); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule keeper jobs")
		}
		k.Start()
	} else {
		log.Warn().Msg("OPERATOR_ADDRESS not set, keeper disabled")
	}

	// --- 4. Graceful shutdown ---
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
		defer cancel()
		if k != nil {
			k.Stop(shutdownCtx)
		}
		if gatewayServer != nil {
			gatewayServer.Stop()
		}
		return webServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Vault daemon stopped with error")
		return
	}
	log.Info().Msg("Vault daemon stopped")
}
