package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	defaultPollInterval  = time.Second
	defaultSweepInterval = 30 * time.Second
	defaultStracePath    = "strace"
	envPollInterval      = "TRACEWATCH_POLL_INTERVAL"
	envSweepInterval     = "TRACEWATCH_SWEEP_INTERVAL"

	// DefaultStraceOptions is used when the options file has no "options" key.
	DefaultStraceOptions = "-ff -tt -s 1024"
)

// DefaultExclude keeps the agent from tracing its own tooling. Entries of
// the exclude key are added to it, never substituted.
var DefaultExclude = []string{"strace", "tail"}

var requiredStraceKeys = []string{"process_regex", "first_match_only", "output_dir"}

// MissingKeysError reports required keys absent from an options file.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("missing required options: %s", strings.Join(e.Keys, ", "))
}

// StraceDocument is the on-disk shape of a strace options file.
type StraceDocument struct {
	ProcessRegex   string `json:"process_regex" yaml:"process_regex"`
	FirstMatchOnly bool   `json:"first_match_only" yaml:"first_match_only"`
	OutputDir      string `json:"output_dir" yaml:"output_dir"`
	Options        string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Strace is the trace agent's configuration.
type Strace struct {
	ProcessRegex   string
	Pattern        *regexp.Regexp
	FirstMatchOnly bool
	OutputDir      string
	Options        []string
	Exclude        []string
	StracePath     string
	PollInterval   time.Duration
	SweepInterval  time.Duration
}

// Command returns the trace binary followed by its options.
func (s Strace) Command() []string {
	return append([]string{s.StracePath}, s.Options...)
}

// LoadStrace reads a JSON or YAML options file plus environment overrides.
func LoadStrace(path string) (Strace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Strace{}, fmt.Errorf("load strace options %s: %w", path, err)
	}
	cfg, err := ParseStrace(data)
	if err != nil {
		return Strace{}, fmt.Errorf("load strace options %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// ParseStrace decodes an options document.
func ParseStrace(data []byte) (Strace, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Strace{}, fmt.Errorf("parse options: %w", err)
	}
	if len(raw) == 0 {
		return Strace{}, errors.New("options document is empty")
	}

	var missing []string
	for _, key := range requiredStraceKeys {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Strace{}, &MissingKeysError{Keys: missing}
	}

	cfg := Strace{
		StracePath:    defaultStracePath,
		PollInterval:  defaultPollInterval,
		SweepInterval: defaultSweepInterval,
		Exclude:       append([]string(nil), DefaultExclude...),
	}

	var err error
	if cfg.ProcessRegex, err = stringValue(raw, "process_regex"); err != nil {
		return Strace{}, err
	}
	if cfg.ProcessRegex == "" {
		return Strace{}, errors.New("process_regex must not be empty")
	}
	if cfg.Pattern, err = regexp.Compile(cfg.ProcessRegex); err != nil {
		return Strace{}, fmt.Errorf("compile process_regex: %w", err)
	}
	first, ok := raw["first_match_only"].(bool)
	if !ok {
		return Strace{}, fmt.Errorf("first_match_only must be a boolean, got %T", raw["first_match_only"])
	}
	cfg.FirstMatchOnly = first
	if cfg.OutputDir, err = stringValue(raw, "output_dir"); err != nil {
		return Strace{}, err
	}
	if cfg.OutputDir == "" {
		return Strace{}, errors.New("output_dir must not be empty")
	}

	if cfg.Options, err = argsValue(raw["options"], DefaultStraceOptions); err != nil {
		return Strace{}, fmt.Errorf("options: %w", err)
	}
	if v, ok := raw["exclude"]; ok {
		extra, err := stringList(v)
		if err != nil {
			return Strace{}, fmt.Errorf("exclude: %w", err)
		}
		cfg.Exclude = appendMissing(cfg.Exclude, extra...)
	}
	if _, ok := raw["strace_path"]; ok {
		if cfg.StracePath, err = stringValue(raw, "strace_path"); err != nil {
			return Strace{}, err
		}
	}
	if v, ok := raw["poll_interval"]; ok {
		if cfg.PollInterval, err = durationValue(v); err != nil {
			return Strace{}, fmt.Errorf("poll_interval: %w", err)
		}
	}
	if v, ok := raw["sweep_interval"]; ok {
		if cfg.SweepInterval, err = durationValue(v); err != nil {
			return Strace{}, fmt.Errorf("sweep_interval: %w", err)
		}
	}
	return cfg, nil
}

// Tracker configures the interval trackers.
type Tracker struct {
	Interval time.Duration
}

// LoadTracker reads an optional tracker options file. An empty path yields
// the default interval.
func LoadTracker(path string, def time.Duration) (Tracker, error) {
	cfg := Tracker{Interval: def}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load tracker options %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("load tracker options %s: %w", path, err)
	}
	if len(raw) == 0 {
		return cfg, fmt.Errorf("load tracker options %s: document is empty", path)
	}
	if v, ok := raw["interval"]; ok {
		if cfg.Interval, err = durationValue(v); err != nil {
			return cfg, fmt.Errorf("interval: %w", err)
		}
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Strace) {
	if v := os.Getenv(envPollInterval); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
			cfg.PollInterval = dur
		} else {
			logrus.WithField("value", v).Warnf("invalid %s", envPollInterval)
		}
	}
	if v := os.Getenv(envSweepInterval); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
			cfg.SweepInterval = dur
		} else {
			logrus.WithField("value", v).Warnf("invalid %s", envSweepInterval)
		}
	}
}

func stringValue(raw map[string]any, key string) (string, error) {
	s, ok := raw[key].(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, raw[key])
	}
	return strings.TrimSpace(s), nil
}

// argsValue accepts a shell-like string or a list of strings.
func argsValue(v any, def string) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return shlex.Split(def)
	case string:
		return shlex.Split(t)
	default:
		return stringList(v)
	}
}

func stringList(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected strings, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

// durationValue accepts seconds as a number or a Go duration string.
func durationValue(v any) (time.Duration, error) {
	var d time.Duration
	switch t := v.(type) {
	case int:
		d = time.Duration(t) * time.Second
	case float64:
		d = time.Duration(t * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return 0, err
		}
		d = parsed
	default:
		return 0, fmt.Errorf("unsupported duration %v (%T)", v, v)
	}
	if d <= 0 {
		return 0, errors.New("must be > 0")
	}
	return d, nil
}

func appendMissing(dst []string, values ...string) []string {
	for _, v := range values {
		if v != "" && !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
