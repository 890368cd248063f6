package editor

import (
	"context"
	"sync"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/service"
	"github.com/goliatone/go-stepflow/workflow"
)

// Entry is one published workflow known to the library.
type Entry struct {
	Key        service.DefinitionKey
	Definition *workflow.Definition
}

// Library is the local list of published workflows. It only changes after
// the backend accepted the corresponding change.
type Library struct {
	mu      sync.Mutex
	defs    service.DefinitionService
	entries []Entry
	logger  stepflow.Logger
}

// NewLibrary builds an empty library over defs.
func NewLibrary(defs service.DefinitionService, logger stepflow.Logger) *Library {
	return &Library{defs: defs, logger: stepflow.NormalizeLogger(logger)}
}

// Refresh reloads every definition. On error the previous entries stay.
func (l *Library) Refresh(ctx context.Context) error {
	keys, err := l.defs.ListDefinitions(ctx)
	if err != nil {
		return err
	}
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		def, err := l.defs.FetchDefinition(ctx, key)
		if err != nil {
			return stepflow.NewError(stepflow.ErrDefinitionFetch, "", err, map[string]any{"key": key.String()})
		}
		entries = append(entries, Entry{Key: key, Definition: def})
	}
	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	return nil
}

// Entries returns copies of the known workflows.
func (l *Library) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = Entry{Key: e.Key, Definition: e.Definition.Clone()}
	}
	return out
}

// Open starts an editing session over the stored definition.
func (l *Library) Open(key service.DefinitionKey, opts ...SessionOption) (*Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Key == key {
			return NewSession(e.Definition, opts...), true
		}
	}
	return nil, false
}

// Publish saves the session draft, including canvas edits still in their
// quiet period, under key and records it locally once the backend accepted
// it.
func (l *Library) Publish(ctx context.Context, key service.DefinitionKey, s *Session) error {
	err := s.PublishDraft(ctx, func(ctx context.Context, def *workflow.Definition) error {
		return l.defs.SaveDefinition(ctx, key, def)
	})
	if err != nil {
		return err
	}
	l.upsert(key, s.Published())
	return nil
}

// Delete removes a workflow from the backend and then from the local list.
// A rejection, such as the workflow being in use, leaves the entry in place.
func (l *Library) Delete(ctx context.Context, key service.DefinitionKey) error {
	if err := l.defs.DeleteDefinition(ctx, key); err != nil {
		l.logger.Warn("delete of %s rejected: %v", key, err)
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.Key == key {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			break
		}
	}
	return nil
}

func (l *Library) upsert(key service.DefinitionKey, def *workflow.Definition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.Key == key {
			l.entries[i].Definition = def
			return
		}
	}
	l.entries = append(l.entries, Entry{Key: key, Definition: def})
}
