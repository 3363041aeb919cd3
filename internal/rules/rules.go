// Package rules compiles configured pattern rules and evaluates them
// against log lines. Regex rules match case-insensitively unless the
// pattern carries its own inline flags; text rules are literal byte-for-byte
// containment and never interpret metacharacters.
package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/event"
	"github.com/pulseguard/pulseguard/internal/limiter"
)

// Rule is one compiled rule plus its firing state. The state is shared by
// every source the rule watches.
type Rule struct {
	Name      string
	Sinks     []string
	Cooldown  time.Duration
	Threshold *limiter.Threshold

	re    *regexp.Regexp
	text  string
	scope *config.RuleSources

	state limiter.State
}

// Compile builds a Rule from its configuration. An invalid regex is a hard
// error so a bad rule is caught at startup, not at match time.
func Compile(rc config.Rule) (*Rule, error) {
	r := &Rule{
		Name:     rc.Name,
		Sinks:    rc.Sinks,
		Cooldown: rc.CooldownOrDefault(),
		text:     rc.Text,
		scope:    rc.Sources,
	}
	if rc.Threshold != nil {
		r.Threshold = &limiter.Threshold{
			Count:  rc.Threshold.Count,
			Window: rc.Threshold.Window,
		}
	}
	if rc.Pattern != "" {
		pattern := rc.Pattern
		if !strings.HasPrefix(pattern, "(?") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: compile pattern: %w", rc.Name, err)
		}
		r.re = re
	}
	return r, nil
}

// Matches reports whether the line triggers this rule's pattern or text.
func (r *Rule) Matches(line string) bool {
	if r.re != nil {
		return r.re.MatchString(line)
	}
	return strings.Contains(line, r.text)
}

// MatchSpan returns the byte offsets of the first match in line. For text
// rules the span covers the literal occurrence.
func (r *Rule) MatchSpan(line string) (start, end int, ok bool) {
	if r.re != nil {
		loc := r.re.FindStringIndex(line)
		if loc == nil {
			return 0, 0, false
		}
		return loc[0], loc[1], true
	}
	i := strings.Index(line, r.text)
	if i < 0 {
		return 0, 0, false
	}
	return i, i + len(r.text), true
}

// InScope reports whether the rule applies to the given source. A rule
// without a sources block applies everywhere. With a sources block the rule
// applies only to sources listed under the matching kind; a kind with no
// list excludes that kind entirely.
func (r *Rule) InScope(kind event.SourceKind, sourceID string) bool {
	if r.scope == nil {
		return true
	}
	var ids []string
	switch kind {
	case event.KindFile:
		ids = r.scope.Files
	case event.KindContainer:
		ids = r.scope.Containers
	case event.KindStream:
		ids = r.scope.Streams
	}
	for _, id := range ids {
		if id == sourceID {
			return true
		}
	}
	return false
}

// Observe runs the firing gate for a match seen at now: the threshold window
// and the cooldown. It returns true when an alert should be dispatched.
func (r *Rule) Observe(now time.Time) bool {
	return r.state.Observe(now, r.Threshold, r.Cooldown)
}

// Set is an ordered collection of compiled rules.
type Set struct {
	Rules []*Rule
}

// CompileSet compiles every configured rule, failing on the first error.
func CompileSet(rcs []config.Rule) (*Set, error) {
	s := &Set{Rules: make([]*Rule, 0, len(rcs))}
	for _, rc := range rcs {
		r, err := Compile(rc)
		if err != nil {
			return nil, err
		}
		s.Rules = append(s.Rules, r)
	}
	return s, nil
}
