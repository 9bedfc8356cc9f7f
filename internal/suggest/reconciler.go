// Package suggest holds AI-proposed task strings until the user promotes or
// dismisses them. The buffer is session state, never persisted.
package suggest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"taskpilot-backend/internal/ai"
)

// Generator produces task strings for a goal prompt.
type Generator interface {
	GenerateTasks(ctx context.Context, prompt string) ([]string, error)
}

// Creator is the task store's create path; a promoted suggestion becomes a
// task through it like any user-typed one.
type Creator interface {
	Create(ctx context.Context, text string) error
}

// Error kinds surfaced to the caller. The most recent unresolved condition
// is kept; a later successful generation clears it.
const (
	ErrKindFailed = "generation_failed"
	ErrKindFormat = "generation_format_error"
)

type State struct {
	Prompt      string   `json:"prompt"`
	Suggestions []string `json:"suggestions"`
	InFlight    bool     `json:"in_flight"`
	ErrorKind   string   `json:"error_kind,omitempty"`
	ErrorMsg    string   `json:"error_message,omitempty"`
}

type Reconciler struct {
	gen   Generator
	store Creator

	mu       sync.Mutex
	inflight bool
	prompt   string
	buffer   []string
	errKind  string
	errMsg   string
}

func NewReconciler(gen Generator, store Creator) *Reconciler {
	return &Reconciler{gen: gen, store: store}
}

// Generate replaces the buffer with fresh suggestions for prompt. Blank
// prompts and concurrent generations are no-ops. The buffer is emptied
// before the call so a failed generation never leaves stale suggestions.
func (r *Reconciler) Generate(ctx context.Context, prompt string) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return
	}

	r.mu.Lock()
	if r.inflight {
		r.mu.Unlock()
		return
	}
	r.inflight = true
	r.prompt = prompt
	r.buffer = nil
	r.mu.Unlock()

	suggestions, err := r.gen.GenerateTasks(ctx, prompt)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight = false

	if err != nil {
		var formatErr *ai.FormatError
		if errors.As(err, &formatErr) {
			r.errKind = ErrKindFormat
		} else {
			r.errKind = ErrKindFailed
		}
		r.errMsg = err.Error()
		return
	}

	r.errKind = ""
	r.errMsg = ""
	r.buffer = suggestions
}

// Promote removes the first text-equal suggestion and creates a task from
// it. The suggestion leaves the buffer either way; the create error, if any,
// is the caller's to surface.
func (r *Reconciler) Promote(ctx context.Context, text string) error {
	r.mu.Lock()
	for i, s := range r.buffer {
		if s == text {
			r.buffer = append(r.buffer[:i], r.buffer[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	return r.store.Create(ctx, text)
}

// DismissAll resets the whole workflow: buffer, error state and prompt.
func (r *Reconciler) DismissAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = nil
	r.errKind = ""
	r.errMsg = ""
	r.prompt = ""
}

// ClearBuffer drops the suggestions but keeps the prompt and any error, for
// the "clear all but keep the dialog open" action.
func (r *Reconciler) ClearBuffer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = nil
}

func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := make([]string, len(r.buffer))
	copy(buf, r.buffer)

	return State{
		Prompt:      r.prompt,
		Suggestions: buf,
		InFlight:    r.inflight,
		ErrorKind:   r.errKind,
		ErrorMsg:    r.errMsg,
	}
}
