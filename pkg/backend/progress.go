package backend

import (
	"slices"
	"sync"
)

// UpdateType tags a [ProgressUpdate].
type UpdateType string

const (
	UpdateProgress        UpdateType = "progress"
	UpdateSegmentComplete UpdateType = "segment_complete"
	UpdateError           UpdateType = "error"
	UpdateComplete        UpdateType = "complete"
)

// StageGenerationFailed is the stage reported by locally synthesised error
// updates.
const StageGenerationFailed = "generation_failed"

// ParseFailureMessage is the error text of the update appended when an event
// payload cannot be decoded.
const ParseFailureMessage = "Failed to parse server update"

// ProgressCounts is the numeric progress of an audio job.
type ProgressCounts struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// AudioSegment is one synthesised segment listed in a complete update.
type AudioSegment struct {
	Speaker  string  `json:"speaker"`
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}

// ProgressUpdate is one event of an audio generation stream.
type ProgressUpdate struct {
	Type        UpdateType     `json:"type"`
	Stage       string         `json:"stage"`
	Message     string         `json:"message,omitempty"`
	Speaker     string         `json:"speaker,omitempty"`
	SegmentPath string         `json:"segment_path,omitempty"`
	Duration    float64        `json:"duration,omitempty"`
	Error       string         `json:"error,omitempty"`
	Progress    ProgressCounts `json:"progress"`
	Segments    []AudioSegment `json:"segments,omitempty"`
}

// Terminal reports whether u ends a stream.
func (u ProgressUpdate) Terminal() bool {
	return u.Type == UpdateComplete || u.Type == UpdateError
}

// ErrorUpdate builds the update appended for failures detected on the
// client side: undecodable payloads and transport errors.
func ErrorUpdate(msg string) ProgressUpdate {
	return ProgressUpdate{
		Type:  UpdateError,
		Stage: StageGenerationFailed,
		Error: msg,
	}
}

// Progress accumulates every update of one audio job in arrival order.
// Updates are never modified or dropped. It is safe for concurrent use so a
// display can poll it while the stream is consumed.
type Progress struct {
	mu      sync.RWMutex
	updates []ProgressUpdate
}

// NewProgress returns a Progress holding updates, for replaying a recorded
// job.
func NewProgress(updates ...ProgressUpdate) *Progress {
	return &Progress{updates: slices.Clone(updates)}
}

func (p *Progress) append(u ProgressUpdate) {
	p.mu.Lock()
	p.updates = append(p.updates, u)
	p.mu.Unlock()
}

// Updates returns a copy of all updates so far.
func (p *Progress) Updates() []ProgressUpdate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.updates)
}

// Len returns the number of updates received.
func (p *Progress) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.updates)
}

// Latest returns the most recent update.
func (p *Progress) Latest() (ProgressUpdate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.updates) == 0 {
		return ProgressUpdate{}, false
	}
	return p.updates[len(p.updates)-1], true
}

// HasError reports whether any error update has been seen.
func (p *Progress) HasError() bool { return p.any(UpdateError) }

// IsComplete reports whether any complete update has been seen.
func (p *Progress) IsComplete() bool { return p.any(UpdateComplete) }

// Terminated reports whether a terminal update has been seen.
func (p *Progress) Terminated() bool { return p.HasError() || p.IsComplete() }

// CompletedSegments returns all segment_complete updates in order.
func (p *Progress) CompletedSegments() []ProgressUpdate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []ProgressUpdate
	for _, u := range p.updates {
		if u.Type == UpdateSegmentComplete {
			out = append(out, u)
		}
	}
	return out
}

// FirstError returns the first error update.
func (p *Progress) FirstError() (ProgressUpdate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, u := range p.updates {
		if u.Type == UpdateError {
			return u, true
		}
	}
	return ProgressUpdate{}, false
}

func (p *Progress) any(t UpdateType) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.ContainsFunc(p.updates, func(u ProgressUpdate) bool { return u.Type == t })
}
