package logs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrNoSuchSection is returned when a selection matches no section.
var ErrNoSuchSection = errors.New("no matching log section")

// Selector picks one section out of a parsed log.
type Selector interface {
	Select(sections []Section) (int, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(sections []Section) (int, error)

// Select implements Selector.
func (f SelectorFunc) Select(sections []Section) (int, error) {
	return f(sections)
}

// Latest selects the last section, i.e. the most recent invocation.
func Latest() Selector {
	return SelectorFunc(func(sections []Section) (int, error) {
		if len(sections) == 0 {
			return 0, ErrNoSections
		}
		return len(sections) - 1, nil
	})
}

// ByKey selects a section by 1-based position, by invocation id, or by a
// prefix of its timestamp. When a timestamp prefix matches several
// sections the latest one wins.
func ByKey(key string) Selector {
	return SelectorFunc(func(sections []Section) (int, error) {
		return find(sections, key)
	})
}

func find(sections []Section, key string) (int, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, fmt.Errorf("%w: empty selection", ErrNoSuchSection)
	}

	if n, err := strconv.Atoi(key); err == nil {
		if n < 1 || n > len(sections) {
			return 0, fmt.Errorf("%w: %d is out of range 1-%d", ErrNoSuchSection, n, len(sections))
		}
		return n - 1, nil
	}

	for i, s := range sections {
		if s.ID != "" && s.ID == key {
			return i, nil
		}
	}

	for i := len(sections) - 1; i >= 0; i-- {
		if sections[i].Timestamp != "" && strings.HasPrefix(sections[i].Timestamp, key) {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrNoSuchSection, key)
}

// Prompt asks the user to choose a section. It reads answers from In and
// writes the menu to Out, so it works with any terminal or a scripted input.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// Select implements Selector. An empty answer picks the latest section;
// invalid answers are asked again until In is exhausted.
func (p Prompt) Select(sections []Section) (int, error) {
	if len(sections) == 0 {
		return 0, ErrNoSections
	}

	fmt.Fprintln(p.Out, "📋 Log sections:")
	for i, s := range sections {
		fmt.Fprintf(p.Out, "  [%d] %s (%d lines, %d mentioning errors)\n", i+1, s.Label(), len(s.Lines), s.ErrorCount())
	}

	reader := bufio.NewReader(p.In)
	for {
		fmt.Fprintf(p.Out, "Select a section by number, invocation id or timestamp [%d]: ", len(sections))

		answer, err := reader.ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer == "" && err == nil {
			return len(sections) - 1, nil
		}
		if answer != "" {
			idx, findErr := find(sections, answer)
			if findErr == nil {
				return idx, nil
			}
			fmt.Fprintf(p.Out, "❌ %v\n", findErr)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, fmt.Errorf("%w: no selection made", ErrNoSuchSection)
			}
			return 0, fmt.Errorf("failed to read selection: %w", err)
		}
	}
}
