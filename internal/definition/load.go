// ABOUTME: TOML loader for the agents file with [defaults] inheritance and option validation
// ABOUTME: Produces a Snapshot or a typed error; never returns a partially built snapshot

package definition

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Built-in option defaults.
const (
	DefaultMaxLoginTries = 3
	DefaultAcceptDTMF    = "#"
	DefaultEndDTMF       = "*"
	DefaultMusicOnHold   = "default"
	DefaultRecordFormat  = "wav"
	DefaultBeepSound     = "beep"
)

// options holds every per-agent key. Pointers distinguish "unset" from zero values.
type options struct {
	Password         *string `toml:"password"`
	FullName         *string `toml:"fullname"`
	AcceptDTMF       *string `toml:"acceptdtmf"`
	EndDTMF          *string `toml:"enddtmf"`
	CustomBeep       *string `toml:"custom_beep"`
	MusicOnHold      *string `toml:"musiconhold"`
	SaveCallsIn      *string `toml:"savecallsin"`
	RecordFormat     *string `toml:"recordformat"`
	Group            *string `toml:"group"`
	MaxLoginTries    *int64  `toml:"maxlogintries"`
	AutoLogoff       *int64  `toml:"autologoff"`
	WrapupTime       *int64  `toml:"wrapuptime"`
	AckCall          *bool   `toml:"ackcall"`
	EndCall          *bool   `toml:"endcall"`
	RecordAgentCalls *bool   `toml:"recordagentcalls"`
}

type agentTable struct {
	ID string `toml:"id"`
	options
}

type agentsFile struct {
	Defaults options      `toml:"defaults"`
	Agents   []agentTable `toml:"agent"`
}

// Load reads and parses the agents file at path.
// Environment variables in the format ${VAR_NAME} are expanded first.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agents file: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes agents file content. source is recorded on the snapshot.
func Parse(source string, data []byte) (*Snapshot, error) {
	var file agentsFile
	md, err := toml.Decode(expandEnvVars(string(data)), &file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		key := undecoded[0].String()
		return nil, &FieldError{Field: key, Value: "", Reason: "unknown option"}
	}

	agents := make([]*Agent, 0, len(file.Agents))
	for i := range file.Agents {
		a, err := buildAgent(&file.Agents[i], &file.Defaults)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}

	return NewSnapshot(source, agents)
}

// buildAgent resolves agent value, then [defaults], then the built-in default for each option.
func buildAgent(t *agentTable, defaults *options) (*Agent, error) {
	id := strings.TrimSpace(t.ID)
	if id == "" {
		return nil, &FieldError{Field: "id", Value: t.ID, Reason: "agent id is required"}
	}

	a := &Agent{
		ID:           id,
		Password:     pickString(t.Password, defaults.Password, ""),
		FullName:     pickString(t.FullName, defaults.FullName, ""),
		AcceptDTMF:   pickString(t.AcceptDTMF, defaults.AcceptDTMF, DefaultAcceptDTMF),
		EndDTMF:      pickString(t.EndDTMF, defaults.EndDTMF, DefaultEndDTMF),
		MusicOnHold:  pickString(t.MusicOnHold, defaults.MusicOnHold, DefaultMusicOnHold),
		RecordFormat: pickString(t.RecordFormat, defaults.RecordFormat, DefaultRecordFormat),
		SaveCallsIn:  normalizeDir(pickString(t.SaveCallsIn, defaults.SaveCallsIn, "")),
		AckCall:      pickBool(t.AckCall, defaults.AckCall, false),
		EndCall:      pickBool(t.EndCall, defaults.EndCall, true),
		RecordCalls:  pickBool(t.RecordAgentCalls, defaults.RecordAgentCalls, false),
	}

	beep := pickString(t.CustomBeep, defaults.CustomBeep, DefaultBeepSound)
	if beep == "" {
		return nil, &FieldError{AgentID: id, Field: "custom_beep", Value: beep, Reason: "must not be empty"}
	}
	a.BeepSound = beep

	groups, err := ParseGroups(pickString(t.Group, defaults.Group, ""))
	if err != nil {
		return nil, &FieldError{AgentID: id, Field: "group", Value: pickString(t.Group, defaults.Group, ""), Reason: err.Error()}
	}
	a.Groups = groups

	if a.MaxLoginTries, err = pickUint(id, "maxlogintries", t.MaxLoginTries, defaults.MaxLoginTries, DefaultMaxLoginTries); err != nil {
		return nil, err
	}
	if a.AutoLogoff, err = pickUint(id, "autologoff", t.AutoLogoff, defaults.AutoLogoff, 0); err != nil {
		return nil, err
	}
	if a.WrapupTime, err = pickUint(id, "wrapuptime", t.WrapupTime, defaults.WrapupTime, 0); err != nil {
		return nil, err
	}

	return a, nil
}

func pickString(v, def *string, builtin string) string {
	if v != nil {
		return *v
	}
	if def != nil {
		return *def
	}
	return builtin
}

func pickBool(v, def *bool, builtin bool) bool {
	if v != nil {
		return *v
	}
	if def != nil {
		return *def
	}
	return builtin
}

func pickUint(agentID, field string, v, def *int64, builtin uint) (uint, error) {
	raw := v
	if raw == nil {
		raw = def
	}
	if raw == nil {
		return builtin, nil
	}
	if *raw < 0 {
		return 0, &FieldError{AgentID: agentID, Field: field, Value: strconv.FormatInt(*raw, 10), Reason: "must not be negative"}
	}
	return uint(*raw), nil
}

// normalizeDir makes a non-empty directory start and end with "/".
func normalizeDir(dir string) string {
	if dir == "" {
		return ""
	}
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return dir
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}
