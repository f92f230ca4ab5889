// ABOUTME: Entry point for the agentpool service and its operator commands
// ABOUTME: Serves the agent pool over HTTP and talks to a running instance

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/agentpool/internal/config"
	"github.com/2389/agentpool/internal/pool"
	"github.com/2389/agentpool/internal/server"
	"github.com/2389/agentpool/internal/store"
)

// version is set at build time.
var version = "dev"

const banner = `
                        _                     _
  __ _  __ _  ___ _ __ | |_ _ __   ___   ___ | |
 / _' |/ _' |/ _ \ '_ \| __| '_ \ / _ \ / _ \| |
| (_| | (_| |  __/ | | | |_| |_) | (_) | (_) | |
 \__,_|\__, |\___|_| |_|\__| .__/ \___/ \___/|_|
       |___/               |_|
`

// getConfigPath returns the path to the service config file.
// Priority: AGENTPOOL_CONFIG env var > XDG_CONFIG_HOME/agentpool/pool.yaml > ~/.config/agentpool/pool.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AGENTPOOL_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "pool.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "agentpool", "pool.yaml")
}

// getDataPath returns the path to the agentpool data directory.
// Priority: XDG_DATA_HOME/agentpool > ~/.local/share/agentpool
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "agentpool")
}

func usage() {
	fmt.Println("Usage: agentpool <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                     Start the agent pool server")
	fmt.Println("  init                      Create a config and agents file interactively")
	fmt.Println("  health                    Check server health")
	fmt.Println("  agents [prefix]           List agents and their state")
	fmt.Println("  reload                    Reload the agents file")
	fmt.Println("  logoff <id> [--soft]      Log an agent off")
	fmt.Println("  token --subject NAME      Issue an admin token")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin)
	case "health":
		err = runHealth(ctx)
	case "agents":
		err = runAgents(ctx, args)
	case "reload":
		err = runReload(ctx)
	case "logoff":
		err = runLogoff(ctx, args)
	case "token":
		err = runToken(args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Agents:    %s", cfg.Agents.File)
	if cfg.Agents.Watch {
		yellow.Print(" [watching]")
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting agentpool",
		"config", configPath,
		"agents_file", cfg.Agents.File,
		"http_addr", cfg.Server.HTTPAddr,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	p, err := pool.New(pool.Options{
		AgentsFile:      cfg.Agents.File,
		Store:           st,
		Metrics:         cfg.Metrics.Enabled,
		AttemptWindow:   cfg.Agents.AttemptWindow,
		AttemptCapacity: cfg.Agents.AttemptCapacity,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("creating pool: %w", err)
	}
	defer p.Close()

	if _, err := p.Reload(ctx, pool.TriggerStartup); err != nil {
		return fmt.Errorf("loading agents: %w", err)
	}

	srv, err := server.New(cfg, p, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}
