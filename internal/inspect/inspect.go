// Package inspect provides the one-shot tooling behind rule dry runs: pull
// recent lines from a source and report which rules would match where.
// Nothing here touches rule firing state, so inspecting never consumes a
// cooldown or a threshold window.
package inspect

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pulseguard/pulseguard/internal/event"
	"github.com/pulseguard/pulseguard/internal/rules"
)

// Match is one rule hit found by Scan. Start and End are byte offsets of
// the matched span within Line.
type Match struct {
	Rule  string
	Line  string
	Start int
	End   int
}

// Scan evaluates every line against every rule in order and returns all
// hits. Scope is ignored: a dry run answers "would this pattern match",
// not "would this source be watched".
func Scan(lines []string, set *rules.Set) []Match {
	var out []Match
	for _, line := range lines {
		for _, r := range set.Rules {
			start, end, ok := r.MatchSpan(line)
			if !ok {
				continue
			}
			out = append(out, Match{Rule: r.Name, Line: line, Start: start, End: end})
		}
	}
	return out
}

// Recent returns up to n of the most recent lines from a source. Streams
// have no history to read, so they are not supported.
func Recent(ctx context.Context, kind event.SourceKind, id string, n int) ([]string, error) {
	switch kind {
	case event.KindFile:
		return tailFile(id, n)
	case event.KindContainer:
		return containerTail(ctx, id, n)
	default:
		return nil, fmt.Errorf("inspect: source kind %q has no readable history", kind)
	}
}

// tailFile reads the last n lines of a file, scanning backward in blocks so
// large logs are not read in full.
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("inspect: open %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("inspect: stat %q: %w", path, err)
	}

	const blockSize = 32 * 1024
	var (
		buf  []byte
		pos  = info.Size()
		want = n + 1 // one extra newline bounds the nth line
	)
	for pos > 0 && bytes.Count(buf, []byte{'\n'}) < want {
		step := int64(blockSize)
		if pos < step {
			step = pos
		}
		pos -= step
		block := make([]byte, step)
		if _, err := f.ReadAt(block, pos); err != nil && err != io.EOF {
			return nil, fmt.Errorf("inspect: read %q: %w", path, err)
		}
		buf = append(block, buf...)
	}

	lines := splitTrim(string(buf))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// containerTail shells out to docker for the container's recent lines.
// Docker interleaves application output across stdout and stderr, so both
// are captured.
func containerTail(ctx context.Context, name string, n int) ([]string, error) {
	cmd := exec.CommandContext(ctx, "docker", "logs", "--tail", strconv.Itoa(n), name)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("inspect: docker logs %q: %w", name, err)
	}

	lines := splitTrim(out.String())
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func splitTrim(s string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
