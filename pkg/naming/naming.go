package naming

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// MainDatabase is the MeOS schema holding the list of all events.
	MainDatabase = "meosmain"

	GuideFileName   = "HOW_TO_RESTORE.txt"
	DumpSuffix      = ".dump.sql"
	TimestampFormat = "2006-01-02_15-04-05"

	labelSeparator = "___"
)

var (
	spacesAndDashes = regexp.MustCompile(`[ -]+`)
	separatorName   = regexp.MustCompile(`^[-_]+$`)
)

// Normalize replaces every run of spaces and hyphens with a single underscore.
func Normalize(name string) string {
	return spacesAndDashes.ReplaceAllString(name, "_")
}

// IsSeparator reports whether an event name is only a visual separator in
// the MeOS event list (e.g. "---" or "___").
func IsSeparator(name string) bool {
	return separatorName.MatchString(name)
}

// Label builds the file label of an event from its name and optional annotation.
func Label(name, annotation string) string {
	label := Normalize(name)
	if annotation != "" {
		label += labelSeparator + Normalize(annotation)
	}
	return stripPathSeparators(label)
}

// BuildFileName returns <folder>/<timestamp>___<label>.dump.sql, the
// timestamp being formatted in local time.
func BuildFileName(label, folder string, at time.Time) string {
	stamp := at.Local().Format(TimestampFormat)
	return filepath.Join(folder, stamp+labelSeparator+label+DumpSuffix)
}

// GuidePath returns the location of the restore guide inside folder.
func GuidePath(folder string) string {
	return filepath.Join(folder, GuideFileName)
}

func stripPathSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == filepath.Separator {
			return '_'
		}
		return r
	}, s)
}
