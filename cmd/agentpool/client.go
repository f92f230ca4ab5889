// ABOUTME: Operator commands that talk to a running agentpool server over HTTP
// ABOUTME: health, agents, reload, logoff and token issuance

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/agentpool/internal/auth"
	"github.com/2389/agentpool/internal/config"
)

const defaultTokenTTL = 30 * 24 * time.Hour

// client is a thin HTTP client for the agentpool API.
type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient(cfg *config.Config, token string) *client {
	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return &client{
		baseURL: "http://" + addr,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func loadClient() (*client, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newClient(cfg, readToken(configPath)), nil
}

// getTokenPath returns the admin token file stored next to the config.
func getTokenPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "token")
}

// readToken returns AGENTPOOL_TOKEN, or the saved token file contents.
func readToken(configPath string) string {
	if token := os.Getenv("AGENTPOOL_TOKEN"); token != "" {
		return token
	}
	data, err := os.ReadFile(getTokenPath(configPath))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// do sends a request and decodes a JSON response into out when out is non-nil.
func (c *client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func runHealth(ctx context.Context) error {
	c, err := loadClient()
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodGet, "/health/ready", nil); err != nil {
		return fmt.Errorf("unhealthy: %w", err)
	}
	fmt.Println("healthy")
	return nil
}

type agentRow struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	State   string `json:"state"`
	Session string `json:"session"`
	Dead    bool   `json:"dead"`
}

func runAgents(ctx context.Context, args []string) error {
	var prefix string
	switch len(args) {
	case 0:
	case 1:
		prefix = args[0]
	default:
		return fmt.Errorf("usage: agentpool agents [prefix]")
	}

	c, err := loadClient()
	if err != nil {
		return err
	}

	var resp struct {
		Agents []agentRow `json:"agents"`
	}
	path := "/api/agents"
	if prefix != "" {
		path += "?prefix=" + prefix
	}
	if err := c.do(ctx, http.MethodGet, path, &resp); err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}

	printAgents(os.Stdout, resp.Agents)
	return nil
}

func printAgents(w io.Writer, agents []agentRow) {
	if len(agents) == 0 {
		fmt.Fprintln(w, "no agents")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tSESSION")
	for _, a := range agents {
		state := a.State
		switch {
		case a.Dead:
			state = color.YellowString(state + " (removed)")
		case a.State == "LOGGED_IN":
			state = color.GreenString(state)
		}
		session := a.Session
		if len(session) > 8 {
			session = session[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.ID, a.Name, state, session)
	}
	_ = tw.Flush()
}

func runReload(ctx context.Context) error {
	c, err := loadClient()
	if err != nil {
		return err
	}

	var result struct {
		Definitions int      `json:"definitions"`
		Added       int      `json:"added"`
		Kept        int      `json:"kept"`
		Resurrected int      `json:"resurrected"`
		Removed     int      `json:"removed"`
		Deferred    int      `json:"deferred"`
		Skipped     []string `json:"skipped"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/reload", &result); err != nil {
		return fmt.Errorf("reloading agents: %w", err)
	}

	color.Green("  ✓ Reloaded %d definitions", result.Definitions)
	fmt.Printf("    added %d, kept %d, resurrected %d, removed %d, pending removal %d\n",
		result.Added, result.Kept, result.Resurrected, result.Removed, result.Deferred)
	if len(result.Skipped) > 0 {
		color.Yellow("    skipped: %s", strings.Join(result.Skipped, ", "))
	}
	return nil
}

func runLogoff(ctx context.Context, args []string) error {
	var id string
	var soft bool
	for _, arg := range args {
		switch {
		case arg == "--soft" || arg == "-s":
			soft = true
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		case id == "":
			id = arg
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	if id == "" {
		return fmt.Errorf("usage: agentpool logoff <id> [--soft]")
	}

	c, err := loadClient()
	if err != nil {
		return err
	}

	path := "/api/agents/" + id + "/logoff"
	if soft {
		path += "?soft=true"
	}
	if err := c.do(ctx, http.MethodPost, path, nil); err != nil {
		return fmt.Errorf("logging off agent %s: %w", id, err)
	}

	color.Green("  ✓ Logged off agent %s", id)
	return nil
}

// tokenArgs are the parsed flags of the token command.
type tokenArgs struct {
	subject string
	ttl     time.Duration
}

// parseTokenArgs supports both "--flag value" and "--flag=value" forms.
func parseTokenArgs(args []string) (tokenArgs, error) {
	out := tokenArgs{ttl: defaultTokenTTL}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--subject", "-s", "--ttl":
		default:
			if strings.HasPrefix(arg, "-") {
				return out, fmt.Errorf("unknown flag: %s", arg)
			}
			return out, fmt.Errorf("unexpected argument: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return out, fmt.Errorf("%s requires a value", name)
			}
			value = args[i+1]
			i++
		}

		if name == "--ttl" {
			ttl, err := time.ParseDuration(value)
			if err != nil || ttl <= 0 {
				return out, fmt.Errorf("invalid --ttl %q", value)
			}
			out.ttl = ttl
			continue
		}
		out.subject = strings.TrimSpace(value)
	}

	if out.subject == "" {
		return out, fmt.Errorf("--subject flag is required")
	}
	return out, nil
}

func runToken(args []string) error {
	parsed, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured in %s", configPath)
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(parsed.subject, parsed.ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	tokenPath := getTokenPath(configPath)
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	color.Green("  ✓ Saved token: %s", tokenPath)
	fmt.Printf("    subject %s, expires %s\n", parsed.subject, time.Now().Add(parsed.ttl).UTC().Format("Jan 02, 2006"))
	return nil
}
