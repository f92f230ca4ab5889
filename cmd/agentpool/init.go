// ABOUTME: Interactive setup that writes a starter config and agents file
// ABOUTME: Generates a random JWT secret for the admin endpoints

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const sampleAgents = `# Agent definitions. Edit and save to reload when agents.watch is enabled.

[defaults]
acceptdtmf = "#"
enddtmf = "*"
musiconhold = "default"
maxlogintries = 3
wrapuptime = 0

[[agent]]
id = "1001"
fullname = "First Agent"
password = "1234"
group = "1"

[[agent]]
id = "1002"
fullname = "Second Agent"
group = "1,2"
`

// initOptions are the answers gathered by runInit.
type initOptions struct {
	ConfigPath string
	AgentsPath string
	HTTPAddr   string
	DBPath     string
	Watch      bool
	Metrics    bool
	LogLevel   string
	LogFormat  string
	JWTSecret  string
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("agentpool configuration setup")
	fmt.Println("=============================")
	fmt.Println()

	opts := initOptions{}
	opts.ConfigPath = prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(opts.ConfigPath); err == nil {
		if !isYes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	opts.HTTPAddr = prompt(reader, "HTTP address", "localhost:8080")
	opts.DBPath = prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "agentpool.db"))

	fmt.Println("\n--- Agents ---")
	opts.AgentsPath = prompt(reader, "Agents file path", filepath.Join(filepath.Dir(opts.ConfigPath), "agents.toml"))
	opts.Watch = isYes(prompt(reader, "Reload automatically when the file changes?", "yes"))

	fmt.Println("\n--- Observability ---")
	opts.Metrics = isYes(prompt(reader, "Enable Prometheus metrics?", "no"))
	opts.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	opts.LogFormat = prompt(reader, "Log format (text/json)", "text")

	secret, err := generateSecret()
	if err != nil {
		return err
	}
	opts.JWTSecret = secret

	wroteAgents, err := writeInitFiles(opts)
	if err != nil {
		return err
	}

	fmt.Printf("\nConfig written to %s\n", opts.ConfigPath)
	if wroteAgents {
		fmt.Printf("Sample agents written to %s\n", opts.AgentsPath)
	}
	fmt.Println("\nTo start the server:")
	fmt.Println("  agentpool serve")
	fmt.Println("To issue an admin token:")
	fmt.Println("  agentpool token --subject <name>")

	return nil
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func renderConfig(opts initOptions) string {
	var cfg strings.Builder
	cfg.WriteString("# agentpool configuration\n")
	cfg.WriteString("# Generated by agentpool init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", opts.HTTPAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", opts.DBPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", opts.JWTSecret))
	cfg.WriteString("\n")

	cfg.WriteString("agents:\n")
	cfg.WriteString(fmt.Sprintf("  file: %q\n", opts.AgentsPath))
	cfg.WriteString(fmt.Sprintf("  watch: %t\n", opts.Watch))
	cfg.WriteString("  reload_debounce: \"250ms\"\n")
	cfg.WriteString("  attempt_window: \"5m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", opts.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", opts.LogFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", opts.Metrics))
	cfg.WriteString("  path: \"/metrics\"\n")

	return cfg.String()
}

// writeInitFiles writes the config and, if it does not exist yet, a sample
// agents file. Reports whether the agents file was written.
func writeInitFiles(opts initOptions) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(opts.ConfigPath), 0755); err != nil {
		return false, fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(opts.ConfigPath, []byte(renderConfig(opts)), 0600); err != nil {
		return false, fmt.Errorf("writing config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.DBPath), 0755); err != nil {
		return false, fmt.Errorf("creating data directory: %w", err)
	}

	if _, err := os.Stat(opts.AgentsPath); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.AgentsPath), 0755); err != nil {
		return false, fmt.Errorf("creating agents directory: %w", err)
	}
	if err := os.WriteFile(opts.AgentsPath, []byte(sampleAgents), 0600); err != nil {
		return false, fmt.Errorf("writing agents file: %w", err)
	}
	return true, nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
