// Package wizard runs a published workflow for an end user: one step at a
// time, with a persisted snapshot for recovery and either a sandbox or a
// live commit at the terminal step.
package wizard

import (
	"strings"
	"time"

	"github.com/goliatone/go-stepflow/workflow"
)

// CommitMode decides whether the terminal step mutates records.
type CommitMode string

const (
	CommitSandbox CommitMode = "sandbox"
	CommitLive    CommitMode = "live"
)

// RecordMode decides whether a live commit creates or updates a record.
type RecordMode string

const (
	RecordCreate RecordMode = "create"
	RecordUpdate RecordMode = "update"
)

// HostContext describes where the run was launched from.
type HostContext struct {
	Production bool
	Route      string
	RecordID   string
}

var sandboxRouteMarkers = []string{"preview", "builder", "sandbox"}

// ResolveModes derives the commit and record modes once, at session start.
// Live requires a production host outside preview and builder routes; update
// requires a bound record id.
func ResolveModes(host HostContext) (CommitMode, RecordMode) {
	commit := CommitSandbox
	if host.Production && !isSandboxRoute(host.Route) {
		commit = CommitLive
	}
	record := RecordCreate
	if strings.TrimSpace(host.RecordID) != "" {
		record = RecordUpdate
	}
	return commit, record
}

func isSandboxRoute(route string) bool {
	route = strings.ToLower(route)
	for _, marker := range sandboxRouteMarkers {
		if strings.Contains(route, marker) {
			return true
		}
	}
	return false
}

// Key addresses a persisted session snapshot.
type Key struct {
	Namespace string
	Mode      CommitMode
	Domain    string
	Scope     string
	RecordID  string
}

// String renders <namespace>_<commitMode>_<domain>_<scope>[_<recordId>].
func (k Key) String() string {
	parts := []string{k.Namespace, string(k.Mode), k.Domain, k.Scope}
	if id := strings.TrimSpace(k.RecordID); id != "" {
		parts = append(parts, id)
	}
	return strings.Join(parts, "_")
}

// Snapshot is the persisted form of a run.
type Snapshot struct {
	Step      string         `json:"step"`
	Data      map[string]any `json:"data"`
	History   []string       `json:"history"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Step:      s.Step,
		Data:      workflow.CloneMap(s.Data),
		History:   append([]string(nil), s.History...),
		UpdatedAt: s.UpdatedAt,
	}
}

// State is a read-only view of a run.
type State struct {
	Key        string
	RunID      string
	Step       string
	Data       map[string]any
	History    []string
	CommitMode CommitMode
	RecordMode RecordMode
	RecordID   string
	Ready      bool
	Busy       bool
	Completed  bool
	Closed     bool
}
