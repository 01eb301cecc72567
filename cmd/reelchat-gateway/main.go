// ABOUTME: Entry point for reelchat-gateway, the messaging server
// ABOUTME: Serves the HTTP API and push channel and provides setup and token commands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/reelchat/internal/config"
	"github.com/2389/reelchat/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
            _      _           _
 _ __ ___  ___| | ___| |__   __ _| |_
| '__/ _ \/ _ \ |/ __| '_ \ / _' | __|
| | |  __/  __/ | (__| | | | (_| | |_
|_|  \___|\___|_|\___|_| |_|\__,_|\__|
`

// getConfigPath returns the config file to use. An existing file found by
// config.DefaultPath wins; otherwise the per-user default location.
func getConfigPath() string {
	if p := config.DefaultPath(); p != "" {
		return p
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "reelchat", "gateway.yaml")
}

func main() {
	// A .env file is optional; values there feed ${VAR} expansion in the config.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: reelchat-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                          Start the gateway server")
		fmt.Println("  init                           Write a config file with a fresh JWT secret")
		fmt.Println("  health                         Check gateway health")
		fmt.Println("  token --user ID [--role ROLE]  Issue a token for a user")
		fmt.Println("  user add --id ID [--name NAME] Create or update a user")
		fmt.Println("  version                        Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "token":
		err = runToken(os.Args[2:])
	case "user":
		err = runUser(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (string, *config.Config, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return configPath, nil, fmt.Errorf("no config at %s (run reelchat-gateway init)", configPath)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return configPath, nil, fmt.Errorf("loading config: %w", err)
	}
	return configPath, cfg, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	configPath, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	if cfg.Server.GRPCAddr != "" {
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	} else {
		fmt.Print("gRPC:      ")
		gray.Println("disabled")
	}
	green.Print("    ▶ ")
	fmt.Printf("Store:     %s\n", storeLabel(cfg.Database))

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting reelchat-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"driver", cfg.Database.Driver,
	)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func storeLabel(db config.DatabaseConfig) string {
	if db.Driver == config.DriverMongo {
		return fmt.Sprintf("mongo (%s)", db.MongoDatabase)
	}
	return fmt.Sprintf("sqlite (%s)", db.Path)
}
