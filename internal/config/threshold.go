package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Threshold is a "count in window" firing condition, written in YAML as a
// string like "5 in 2s", "3 in 500ms", "10 in 1m" or "100 in 1h".
type Threshold struct {
	Count  int
	Window time.Duration
}

// ParseThreshold parses the "N in W" syntax. Accepted window units are
// ms, s, m and h. Extra whitespace is tolerated.
func ParseThreshold(s string) (Threshold, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 || fields[1] != "in" {
		return Threshold{}, fmt.Errorf("threshold %q: want \"<count> in <window>\"", s)
	}

	count, err := strconv.Atoi(fields[0])
	if err != nil || count < 1 {
		return Threshold{}, fmt.Errorf("threshold %q: invalid count %q", s, fields[0])
	}

	window, err := parseWindow(fields[2])
	if err != nil {
		return Threshold{}, fmt.Errorf("threshold %q: %w", s, err)
	}

	return Threshold{Count: count, Window: window}, nil
}

func parseWindow(s string) (time.Duration, error) {
	var unit time.Duration
	var digits string
	switch {
	case strings.HasSuffix(s, "ms"):
		unit, digits = time.Millisecond, strings.TrimSuffix(s, "ms")
	case strings.HasSuffix(s, "s"):
		unit, digits = time.Second, strings.TrimSuffix(s, "s")
	case strings.HasSuffix(s, "m"):
		unit, digits = time.Minute, strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "h"):
		unit, digits = time.Hour, strings.TrimSuffix(s, "h")
	default:
		return 0, fmt.Errorf("invalid window %q: unit must be ms, s, m or h", s)
	}

	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid window %q", s)
	}
	return time.Duration(n) * unit, nil
}

// String renders the threshold back into the "N in W" syntax.
func (t Threshold) String() string {
	return fmt.Sprintf("%d in %s", t.Count, formatWindow(t.Window))
}

func formatWindow(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

// UnmarshalYAML implements yaml.Unmarshaler for the "N in W" string form.
func (t *Threshold) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseThreshold(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t Threshold) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}
