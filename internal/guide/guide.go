package guide

import (
	"bufio"
	"fmt"
	"os"

	"github.com/localrivet/meosbackup/pkg/naming"
)

const (
	header = "======== HOW TO RESTORE LOST RACES ========\n\n"
	footer = "\nNote:  to restore the former versions of any races, simply use a previous date!\n"
)

// Guide writes the HOW_TO_RESTORE.txt file of one backup cycle.
type Guide struct {
	path    string
	f       *os.File
	w       *bufio.Writer
	entries int
	closed  bool
}

// Create truncates (or creates) the guide inside folder.
func Create(folder string) (*Guide, error) {
	path := naming.GuidePath(folder)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create restore guide: %w", err)
	}

	return &Guide{
		path: path,
		f:    f,
		w:    bufio.NewWriter(f),
	}, nil
}

func (g *Guide) Path() string {
	return g.path
}

// Entries is the number of restore commands written so far.
func (g *Guide) Entries() int {
	return g.entries
}

// AddMain records how to restore the list of races.
func (g *Guide) AddMain(command string) error {
	return g.write(header +
		"To restore the latest __list__ of races, run:\n\n" +
		"    " + command + "\n\n")
}

// AddEvent records how to restore one race.
func (g *Guide) AddEvent(name, command string) error {
	return g.write(fmt.Sprintf("\nTo restore the latest race called '%s'\n\n    %s\n\n", name, command))
}

// Close appends the closing note and flushes the file. Subsequent calls
// are no-ops.
func (g *Guide) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true

	_, werr := g.w.WriteString(footer)
	ferr := g.w.Flush()
	cerr := g.f.Close()

	switch {
	case werr != nil:
		return fmt.Errorf("write restore guide: %w", werr)
	case ferr != nil:
		return fmt.Errorf("flush restore guide: %w", ferr)
	case cerr != nil:
		return fmt.Errorf("close restore guide: %w", cerr)
	}
	return nil
}

func (g *Guide) write(s string) error {
	if g.closed {
		return fmt.Errorf("write restore guide: already closed")
	}
	if _, err := g.w.WriteString(s); err != nil {
		return fmt.Errorf("write restore guide: %w", err)
	}
	g.entries++
	return nil
}
