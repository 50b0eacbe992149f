// Package logs analyses dbt log files: it splits a log into per-invocation
// sections, lets the caller pick one, asks the completion backend to
// extract what went wrong, and renders the findings for the console.
package logs

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// ErrNoSections is returned for logs without any recognizable content.
var ErrNoSections = errors.New("no log sections found")

// Section is the log output of one dbt invocation.
type Section struct {
	// ID is the dbt invocation id; empty for text before the first banner.
	ID string
	// Timestamp is when the invocation started, as written in the log.
	Timestamp string
	Lines     []string
}

// Label identifies the section for display.
func (s Section) Label() string {
	switch {
	case s.Timestamp != "" && s.ID != "":
		return s.Timestamp + " | " + s.ID
	case s.ID != "":
		return s.ID
	default:
		return s.Timestamp
	}
}

// Text returns the section's lines joined by newlines.
func (s Section) Text() string {
	return strings.Join(s.Lines, "\n")
}

// ErrorCount counts lines that mention an error.
func (s Section) ErrorCount() int {
	n := 0
	for _, l := range s.Lines {
		if strings.Contains(strings.ToLower(l), "error") {
			n++
		}
	}
	return n
}

// banner matches the line dbt writes at the start of every invocation in
// its text log, e.g.
// ============================== 2024-01-02 10:00:00.000000 | 5d1c... ==============================
var banner = regexp.MustCompile(`^=+\s+(.+?)\s+\|\s+(\S+)\s+=+\s*$`)

// jsonEvent covers both the dbt >= 1.5 layout (fields under "info") and the
// older flat layout.
type jsonEvent struct {
	Info *struct {
		InvocationID string `json:"invocation_id"`
		TS           string `json:"ts"`
		Level        string `json:"level"`
		Msg          string `json:"msg"`
	} `json:"info"`
	InvocationID string `json:"invocation_id"`
	TS           string `json:"ts"`
	Level        string `json:"level"`
	Msg          string `json:"msg"`
}

func (e jsonEvent) fields() (id, ts, level, msg string) {
	if e.Info != nil {
		return e.Info.InvocationID, e.Info.TS, e.Info.Level, e.Info.Msg
	}
	return e.InvocationID, e.TS, e.Level, e.Msg
}

// ParseFile opens and parses the log at path.
func ParseFile(path string) ([]Section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	sections, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sections, nil
}

// Parse splits a dbt log into sections, in the order they appear. Structured
// (JSON lines) and text logs are both accepted, and may even be mixed.
func Parse(r io.Reader) ([]Section, error) {
	var sections []*Section
	byID := make(map[string]*Section)
	var current *Section

	start := func(id, ts string) *Section {
		s := &Section{ID: id, Timestamp: ts}
		sections = append(sections, s)
		if id != "" {
			byID[id] = s
		}
		return s
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(line, "{") {
			var ev jsonEvent
			if err := json.Unmarshal([]byte(line), &ev); err == nil {
				id, ts, level, msg := ev.fields()
				if msg == "" {
					continue
				}
				s, ok := byID[id]
				if !ok {
					s = start(id, ts)
				}
				if level != "" {
					msg = "[" + level + "] " + msg
				}
				s.Lines = append(s.Lines, msg)
				continue
			}
		}

		if m := banner.FindStringSubmatch(line); m != nil {
			current = start(m[2], m[1])
			continue
		}

		if current == nil {
			current = start("", "")
		}
		current.Lines = append(current.Lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		if len(s.Lines) > 0 {
			out = append(out, *s)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoSections
	}
	return out, nil
}
