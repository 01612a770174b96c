// Package config loads the auditor's settings from environment
// variables via Viper and validates them at startup, matching the
// netbox_agent Python agent's pydantic Settings model.
package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds every externally configurable value the auditor
// needs. All fields are read once at startup; nothing here changes
// for the life of the process.
type Settings struct {
	NetBoxURL       string
	NetBoxToken     string
	NetBoxVerifySSL bool

	SwitchesSelector string

	PollInterval    time.Duration
	MoveConfirmRuns int

	SNMPCommunity string
	SNMPVersion   string
	SNMPTimeout   time.Duration
	SNMPRetries   int

	SNMPv3Username       string
	SNMPv3AuthProtocol   string
	SNMPv3AuthPassphrase string
	SNMPv3PrivProtocol   string
	SNMPv3PrivPassphrase string
	SNMPv3SecurityLevel  string

	UplinkPorts    []string
	UplinkPatterns []string
	MlagGroups     map[string][]string

	StateDBPath string
	RemindAfter time.Duration
	MoveTagName string

	LogLevel  string
	LogFormat string
}

var durationPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseSuffixedDuration parses a string of the form `\d+[smhd]` into a
// time.Duration, matching the format accepted by config.py's
// parse_duration and by the REMIND_AFTER / comparable settings.
func ParseSuffixedDuration(value string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q: want format like \"6h\", \"30m\", \"300s\", \"1d\"", value)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	unit := map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
	}[m[2]]
	return time.Duration(n) * unit, nil
}

// Selector is a parsed SWITCHES_SELECTOR value.
type Selector struct {
	Kind  string // "role", "tag", or "site"
	Value string
}

// ParseSelector splits a selector string of the form "role:X",
// "tag:Y", or "site:Z" on its first colon.
func ParseSelector(selector string) (Selector, error) {
	parts := strings.SplitN(selector, ":", 2)
	if len(parts) != 2 {
		return Selector{}, fmt.Errorf("invalid selector %q: want \"role:X\", \"tag:Y\", or \"site:Z\"", selector)
	}
	kind, value := parts[0], parts[1]
	switch kind {
	case "role", "tag", "site":
		return Selector{Kind: kind, Value: value}, nil
	default:
		return Selector{}, fmt.Errorf("invalid selector kind %q: want one of role, tag, site", kind)
	}
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads settings from the environment (and, if present, a
// config file at path) and validates them. Validation failures are
// the "Configuration" error kind from the error-handling taxonomy:
// they are fatal at startup, never retried.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("NETBOX_VERIFY_SSL", true)
	v.SetDefault("SWITCHES_SELECTOR", "role:switch")
	v.SetDefault("POLL_INTERVAL", 300)
	v.SetDefault("MOVE_CONFIRM_RUNS", 2)
	v.SetDefault("SNMP_COMMUNITY", "public")
	v.SetDefault("SNMP_VERSION", "2c")
	v.SetDefault("SNMP_TIMEOUT", 5)
	v.SetDefault("SNMP_RETRIES", 2)
	v.SetDefault("SNMP_V3_SECURITY_LEVEL", "authPriv")
	v.SetDefault("UPLINK_PORTS", "")
	v.SetDefault("UPLINK_PATTERNS", "uplink,trunk,lag,po")
	v.SetDefault("MLAG_GROUPS", "{}")
	v.SetDefault("STATE_DB_PATH", "./state.db")
	v.SetDefault("REMIND_AFTER", "6h")
	v.SetDefault("MOVE_TAG_NAME", "ipmi-moved")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	s := &Settings{
		NetBoxURL:            v.GetString("NETBOX_URL"),
		NetBoxToken:          v.GetString("NETBOX_TOKEN"),
		NetBoxVerifySSL:      v.GetBool("NETBOX_VERIFY_SSL"),
		SwitchesSelector:     v.GetString("SWITCHES_SELECTOR"),
		MoveConfirmRuns:      v.GetInt("MOVE_CONFIRM_RUNS"),
		SNMPCommunity:        v.GetString("SNMP_COMMUNITY"),
		SNMPVersion:          v.GetString("SNMP_VERSION"),
		SNMPRetries:          v.GetInt("SNMP_RETRIES"),
		SNMPv3Username:       v.GetString("SNMP_V3_USERNAME"),
		SNMPv3AuthProtocol:   v.GetString("SNMP_V3_AUTH_PROTOCOL"),
		SNMPv3AuthPassphrase: v.GetString("SNMP_V3_AUTH_PASSPHRASE"),
		SNMPv3PrivProtocol:   v.GetString("SNMP_V3_PRIV_PROTOCOL"),
		SNMPv3PrivPassphrase: v.GetString("SNMP_V3_PRIV_PASSPHRASE"),
		SNMPv3SecurityLevel:  v.GetString("SNMP_V3_SECURITY_LEVEL"),
		UplinkPorts:          splitCSV(v.GetString("UPLINK_PORTS")),
		UplinkPatterns:       splitCSV(v.GetString("UPLINK_PATTERNS")),
		StateDBPath:          v.GetString("STATE_DB_PATH"),
		MoveTagName:          v.GetString("MOVE_TAG_NAME"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogFormat:            v.GetString("LOG_FORMAT"),
		PollInterval:         time.Duration(v.GetInt("POLL_INTERVAL")) * time.Second,
		SNMPTimeout:          time.Duration(v.GetInt("SNMP_TIMEOUT")) * time.Second,
	}

	if s.NetBoxURL == "" {
		return nil, fmt.Errorf("NETBOX_URL is required")
	}
	if s.NetBoxToken == "" {
		return nil, fmt.Errorf("NETBOX_TOKEN is required")
	}
	if s.PollInterval < 60*time.Second {
		return nil, fmt.Errorf("POLL_INTERVAL must be >= 60 seconds, got %s", s.PollInterval)
	}
	if s.MoveConfirmRuns < 1 {
		return nil, fmt.Errorf("MOVE_CONFIRM_RUNS must be >= 1, got %d", s.MoveConfirmRuns)
	}
	if _, err := ParseSelector(s.SwitchesSelector); err != nil {
		return nil, fmt.Errorf("SWITCHES_SELECTOR: %w", err)
	}

	remindAfter, err := ParseSuffixedDuration(v.GetString("REMIND_AFTER"))
	if err != nil {
		return nil, fmt.Errorf("REMIND_AFTER: %w", err)
	}
	s.RemindAfter = remindAfter

	groups := map[string][]string{}
	if err := json.Unmarshal([]byte(v.GetString("MLAG_GROUPS")), &groups); err != nil {
		return nil, fmt.Errorf("MLAG_GROUPS: invalid JSON: %w", err)
	}
	s.MlagGroups = groups

	return s, nil
}
