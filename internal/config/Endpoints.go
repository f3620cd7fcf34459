package config

import (
	"errors"

	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// NodeGRPC is the gRPC endpoint of the contract host in remote mode.
	NodeGRPC string
	// GRPCListenAddr, when set, exposes the local sim host over gRPC.
	GRPCListenAddr string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	NodeGRPC = getEnvOrDefault("NODE_GRPC", "")
	if VaultMode == ModeRemote && NodeGRPC == "" {
		return errors.New("environment variable NODE_GRPC is required in remote mode")
	}

	GRPCListenAddr = getEnvOrDefault("GRPC_LISTEN_ADDR", "")

	log.Debug().
		Str("NodeGRPC", NodeGRPC).
		Str("GRPCListenAddr", GRPCListenAddr).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
