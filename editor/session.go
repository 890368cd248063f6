// Package editor holds the authoring side of a workflow: a draft/publish
// session, a bounded undo/redo history and a canvas that binds both to the
// node/edge graph.
package editor

import (
	"context"
	"sync"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/workflow"
)

// Mode of an editing session.
type Mode string

const (
	ModeView Mode = "VIEW"
	ModeEdit Mode = "EDIT"
)

// SaveFunc persists a definition. PublishDraft only settles the session
// after it returns nil.
type SaveFunc func(ctx context.Context, def *workflow.Definition) error

// Session tracks a published definition and an optional independent draft.
type Session struct {
	mu        sync.Mutex
	published *workflow.Definition
	draft     *workflow.Definition
	mode      Mode
	logger    stepflow.Logger
	canvases  map[*Canvas]struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(l stepflow.Logger) SessionOption {
	return func(s *Session) {
		s.logger = stepflow.NormalizeLogger(l)
	}
}

// NewSession starts in VIEW mode over a private copy of published, which may
// be nil.
func NewSession(published *workflow.Definition, opts ...SessionOption) *Session {
	s := &Session{
		published: published.Clone(),
		mode:      ModeView,
		logger:    stepflow.NormalizeLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Mode returns the current mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// IsReadOnly is true in VIEW mode.
func (s *Session) IsReadOnly() bool {
	return s.Mode() == ModeView
}

// HasChanges is true while a draft exists.
func (s *Session) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft != nil
}

// Published returns a copy of the published definition.
func (s *Session) Published() *workflow.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published.Clone()
}

// Draft returns a copy of the draft, or nil.
func (s *Session) Draft() *workflow.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// Active returns a copy of the draft when editing, else of the published
// definition.
func (s *Session) Active() *workflow.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft != nil {
		return s.draft.Clone()
	}
	return s.published.Clone()
}

// EnterEditMode switches to EDIT, seeding the draft from the published
// definition or, when that is missing or malformed, from an empty skeleton.
// An existing draft is kept.
func (s *Session) EnterEditMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		if s.published.IsWellFormed() {
			s.draft = s.published.Clone()
		} else {
			s.logger.Warn("published definition is malformed, starting from an empty skeleton")
			s.draft = workflow.NewSkeleton()
		}
	}
	s.mode = ModeEdit
}

// UpdateDraft replaces the draft. The session takes ownership of def; the
// caller must not mutate it afterwards.
func (s *Session) UpdateDraft(def *workflow.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeEdit {
		return stepflow.NewError(stepflow.ErrReadOnly, "cannot update draft in VIEW mode", nil, nil)
	}
	if def == nil {
		return stepflow.NewError(stepflow.ErrInvalidDefinition, "draft definition is required", nil, nil)
	}
	s.draft = def
	return nil
}

// DiscardChanges drops the draft and returns to VIEW.
func (s *Session) DiscardChanges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = nil
	s.mode = ModeView
}

// PublishDraft validates the draft and hands a copy to save. Canvas edits
// still waiting for their quiet period are written into the draft first.
// Only when save succeeds does the copy become the published definition; the
// draft is then cleared and the session returns to VIEW unless the draft
// changed while save was running.
func (s *Session) PublishDraft(ctx context.Context, save SaveFunc) error {
	s.flushCanvases()

	s.mu.Lock()
	draft := s.draft
	s.mu.Unlock()

	if draft == nil {
		return stepflow.NewError(stepflow.ErrNoDraft, "", nil, nil)
	}
	if err := workflow.Check(draft); err != nil {
		return err
	}
	candidate := draft.Clone()
	if save != nil {
		if err := save(ctx, candidate.Clone()); err != nil {
			s.logger.Warn("publish failed, draft kept: %v", err)
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = candidate
	if s.draft == draft {
		s.draft = nil
		s.mode = ModeView
	}
	s.logger.Info("workflow %q published", candidate.ID)
	return nil
}

// Source renders the active definition as indented JSON.
func (s *Session) Source() ([]byte, error) {
	return workflow.MarshalIndent(s.Active())
}

// ApplySource replaces the draft with a hand edited document. A document
// that does not parse or lacks a required top level key is rejected and the
// draft is left untouched.
func (s *Session) ApplySource(src []byte) error {
	if s.IsReadOnly() {
		return stepflow.NewError(stepflow.ErrReadOnly, "cannot apply source in VIEW mode", nil, nil)
	}
	def, err := workflow.ParseStrict(src)
	if err != nil {
		return err
	}
	return s.UpdateDraft(def)
}

func (s *Session) attach(c *Canvas) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canvases == nil {
		s.canvases = map[*Canvas]struct{}{}
	}
	s.canvases[c] = struct{}{}
}

func (s *Session) detach(c *Canvas) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.canvases, c)
}

// flushCanvases runs pending serializations outside s.mu; they call
// UpdateDraft.
func (s *Session) flushCanvases() {
	s.mu.Lock()
	canvases := make([]*Canvas, 0, len(s.canvases))
	for c := range s.canvases {
		canvases = append(canvases, c)
	}
	s.mu.Unlock()
	for _, c := range canvases {
		c.serial.Flush()
	}
}
