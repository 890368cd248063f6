package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EventNext is the only event the wizard runtime follows.
	EventNext = "NEXT"
	// FallbackStep is used when a definition names no steps at all.
	FallbackStep = "start"
)

// StateType classifies a step.
type StateType string

const (
	StateAtomic  StateType = "atomic"
	StateFinal   StateType = "final"
	StateInitial StateType = "initial"
)

// Definition is the workflow document: a graph of steps keyed by StepKey.
type Definition struct {
	ID      string                 `json:"id" yaml:"id"`
	Initial string                 `json:"initial" yaml:"initial"`
	States  OrderedMap[*StateNode] `json:"states" yaml:"states"`
}

// StateNode is one step of the workflow.
type StateNode struct {
	Type StateType              `json:"type,omitempty" yaml:"type,omitempty"`
	Meta Meta                   `json:"meta" yaml:"meta"`
	On   OrderedMap[Transition] `json:"on" yaml:"on"`
}

// Meta carries layout and presentation data for a step.
type Meta struct {
	X           *float64       `json:"x,omitempty" yaml:"x,omitempty"`
	Y           *float64       `json:"y,omitempty" yaml:"y,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Color       string         `json:"color,omitempty" yaml:"color,omitempty"`
	FormSchema  []FieldSpec    `json:"form_schema,omitempty" yaml:"form_schema,omitempty"`
	JobConfig   map[string]any `json:"job_config,omitempty" yaml:"job_config,omitempty"`
	NodeType    string         `json:"nodeType,omitempty" yaml:"nodeType,omitempty"`
}

// HasPosition reports whether both coordinates are persisted.
func (m Meta) HasPosition() bool {
	return m.X != nil && m.Y != nil
}

// Position returns the persisted coordinates, zero when missing.
func (m Meta) Position() (float64, float64) {
	var x, y float64
	if m.X != nil {
		x = *m.X
	}
	if m.Y != nil {
		y = *m.Y
	}
	return x, y
}

// SetPosition stores coordinates.
func (m *Meta) SetPosition(x, y float64) {
	m.X = &x
	m.Y = &y
}

// Transition is an edge to Target, optionally guarded. Documents may spell a
// transition as a bare target key.
type Transition struct {
	Target  string   `json:"target" yaml:"target"`
	Guard   string   `json:"guard,omitempty" yaml:"guard,omitempty"`
	Actions []string `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// IsBare reports whether the transition carries only a target.
func (t Transition) IsBare() bool {
	return strings.TrimSpace(t.Guard) == "" && len(t.Actions) == 0
}

type transitionObject struct {
	Target  string `json:"target" yaml:"target"`
	Guard   string `json:"guard,omitempty" yaml:"guard,omitempty"`
	Actions any    `json:"actions,omitempty" yaml:"actions,omitempty"`
}

func (t *Transition) fromObject(obj transitionObject) error {
	t.Target = obj.Target
	t.Guard = obj.Guard
	actions, err := decodeActions(obj.Actions)
	if err != nil {
		return err
	}
	t.Actions = actions
	return nil
}

func decodeActions(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("actions must be strings, got %T", item)
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	default:
		return nil, fmt.Errorf("actions must be a string or a list, got %T", raw)
	}
}

// UnmarshalYAML accepts a bare target or a transition object.
func (t *Transition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*t = Transition{Target: node.Value}
		return nil
	}
	var obj transitionObject
	if err := node.Decode(&obj); err != nil {
		return err
	}
	return t.fromObject(obj)
}

// UnmarshalJSON accepts a bare target or a transition object.
func (t *Transition) UnmarshalJSON(data []byte) error {
	var target string
	if err := json.Unmarshal(data, &target); err == nil {
		*t = Transition{Target: target}
		return nil
	}
	var obj transitionObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	return t.fromObject(obj)
}

// MarshalJSON emits the bare form when nothing but the target is set.
func (t Transition) MarshalJSON() ([]byte, error) {
	if t.IsBare() {
		return json.Marshal(t.Target)
	}
	return json.Marshal(transitionObject{Target: t.Target, Guard: t.Guard, Actions: t.Actions})
}

// MarshalYAML emits the bare form when nothing but the target is set.
func (t Transition) MarshalYAML() (any, error) {
	if t.IsBare() {
		return t.Target, nil
	}
	obj := transitionObject{Target: t.Target, Guard: t.Guard}
	if len(t.Actions) > 0 {
		obj.Actions = t.Actions
	}
	return obj, nil
}

// NewSkeleton returns the minimal valid document used when nothing better
// is available.
func NewSkeleton() *Definition {
	return &Definition{Initial: FallbackStep}
}

// Step returns the node for key.
func (d *Definition) Step(key string) (*StateNode, bool) {
	if d == nil {
		return nil, false
	}
	node, ok := d.States.Get(key)
	return node, ok && node != nil
}

// HasStep reports whether key names a step.
func (d *Definition) HasStep(key string) bool {
	_, ok := d.Step(key)
	return ok
}

// StartStep resolves where a run begins: the declared initial step, else
// the first step, else FallbackStep.
func (d *Definition) StartStep() string {
	if d == nil {
		return FallbackStep
	}
	if initial := strings.TrimSpace(d.Initial); initial != "" {
		return initial
	}
	if keys := d.States.Keys(); len(keys) > 0 {
		return keys[0]
	}
	return FallbackStep
}

// Next returns the NEXT transition of key, if any.
func (d *Definition) Next(key string) (Transition, bool) {
	node, ok := d.Step(key)
	if !ok {
		return Transition{}, false
	}
	tr, ok := node.On.Get(EventNext)
	if !ok || strings.TrimSpace(tr.Target) == "" {
		return Transition{}, false
	}
	return tr, true
}

// IsTerminal reports whether key ends the run: a final step or a step with
// no NEXT transition.
func (d *Definition) IsTerminal(key string) bool {
	node, ok := d.Step(key)
	if !ok {
		return true
	}
	if node.Type == StateFinal {
		return true
	}
	_, hasNext := d.Next(key)
	return !hasNext
}

// IsWellFormed reports whether the document can seed an editing draft.
func (d *Definition) IsWellFormed() bool {
	if d == nil {
		return false
	}
	if strings.TrimSpace(d.Initial) == "" {
		return false
	}
	if d.States.Len() == 0 {
		return true
	}
	return d.HasStep(d.Initial)
}

// HasCoordinates reports whether any step carries persisted coordinates.
func (d *Definition) HasCoordinates() bool {
	found := false
	d.States.Range(func(_ string, node *StateNode) bool {
		if node != nil && node.Meta.HasPosition() {
			found = true
			return false
		}
		return true
	})
	return found
}
