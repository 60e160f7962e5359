package backup

import "time"

const (
	KindMain  = "main"
	KindEvent = "event"
)

// Target is one database dumped during a cycle.
type Target struct {
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	Annotation string `json:"annotation,omitempty"`
	Database   string `json:"database"`
	Label      string `json:"label"`
	Path       string `json:"path"`
}

type TargetResult struct {
	Target Target `json:"target"`
	OK     bool   `json:"ok"`
	Err    error  `json:"-"`
}

// Report is the outcome of one backup cycle.
type Report struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Folder     string         `json:"folder"`
	GuidePath  string         `json:"guide_path"`
	DryRun     bool           `json:"dry_run"`
	Main       *TargetResult  `json:"main,omitempty"`
	Events     []TargetResult `json:"events"`
	Skipped    int            `json:"skipped_separators"`
}

// MainOK reports whether meosmain was dumped.
func (r *Report) MainOK() bool {
	return r != nil && r.Main != nil && r.Main.OK
}

// Failed returns the event dumps that did not succeed, in cycle order.
func (r *Report) Failed() []TargetResult {
	if r == nil {
		return nil
	}
	var failed []TargetResult
	for _, res := range r.Events {
		if !res.OK {
			failed = append(failed, res)
		}
	}
	return failed
}

// Degraded is a cycle that dumped meosmain but lost at least one event.
func (r *Report) Degraded() bool {
	return r.MainOK() && len(r.Failed()) > 0
}

func (r *Report) Duration() time.Duration {
	if r == nil || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded returns every target whose dump completed, meosmain first.
func (r *Report) Succeeded() []Target {
	if r == nil {
		return nil
	}
	var out []Target
	if r.MainOK() {
		out = append(out, r.Main.Target)
	}
	for _, res := range r.Events {
		if res.OK {
			out = append(out, res.Target)
		}
	}
	return out
}
