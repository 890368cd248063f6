package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/workflow"
)

// Op names a Memory operation for failure injection and call counting.
type Op string

const (
	OpFetchDefinition  Op = "fetch_definition"
	OpSaveDefinition   Op = "save_definition"
	OpDeleteDefinition Op = "delete_definition"
	OpGetRecord        Op = "get_record"
	OpCreateRecord     Op = "create_record"
	OpUpdateRecord     Op = "update_record"
	OpDeleteRecord     Op = "delete_record"
	OpIsUnique         Op = "is_unique"
)

// Memory implements every service contract in process. It backs tests and
// the sandbox CLI.
type Memory struct {
	mu          sync.Mutex
	definitions map[DefinitionKey]*workflow.Definition
	inUse       map[DefinitionKey]int
	records     map[string]map[string]map[string]any
	failures    map[Op]error
	calls       map[Op]int
	newID       func() string
}

var (
	_ DefinitionService = (*Memory)(nil)
	_ RecordService     = (*Memory)(nil)
	_ UniquenessChecker = (*Memory)(nil)
)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		definitions: make(map[DefinitionKey]*workflow.Definition),
		inUse:       make(map[DefinitionKey]int),
		records:     make(map[string]map[string]map[string]any),
		failures:    make(map[Op]error),
		calls:       make(map[Op]int),
		newID:       func() string { return uuid.NewString() },
	}
}

// Fail makes every later call of op return err. A nil err clears it.
func (m *Memory) Fail(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns how many times op was invoked.
func (m *Memory) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Acquire marks a definition as used by a running session; deletes are
// rejected until every Acquire is matched by Release.
func (m *Memory) Acquire(key DefinitionKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inUse[key]++
}

// Release undoes one Acquire.
func (m *Memory) Release(key DefinitionKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inUse[key] <= 1 {
		delete(m.inUse, key)
		return
	}
	m.inUse[key]--
}

func (m *Memory) enter(op Op) error {
	m.calls[op]++
	return m.failures[op]
}

func (m *Memory) FetchDefinition(_ context.Context, key DefinitionKey) (*workflow.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpFetchDefinition); err != nil {
		return nil, err
	}
	def, ok := m.definitions[key]
	if !ok {
		return nil, stepflow.NewError(stepflow.ErrRemote,
			fmt.Sprintf("definition %s not found", key), nil, map[string]any{"status": 404})
	}
	return def.Clone(), nil
}

func (m *Memory) SaveDefinition(_ context.Context, key DefinitionKey, def *workflow.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpSaveDefinition); err != nil {
		return err
	}
	if def == nil {
		return stepflow.NewError(stepflow.ErrInvalidDefinition, "definition is required", nil, nil)
	}
	m.definitions[key] = def.Clone()
	return nil
}

func (m *Memory) DeleteDefinition(_ context.Context, key DefinitionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpDeleteDefinition); err != nil {
		return err
	}
	if m.inUse[key] > 0 {
		return stepflow.NewError(stepflow.ErrDefinitionInUse,
			fmt.Sprintf("definition %s is used by %d running session(s)", key, m.inUse[key]),
			nil, map[string]any{"sessions": m.inUse[key]})
	}
	delete(m.definitions, key)
	return nil
}

func (m *Memory) ListDefinitions(context.Context) ([]DefinitionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]DefinitionKey, 0, len(m.definitions))
	for k := range m.definitions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func (m *Memory) GetRecord(_ context.Context, domain, id string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpGetRecord); err != nil {
		return nil, err
	}
	rec, ok := m.records[domain][id]
	if !ok {
		return nil, stepflow.NewError(stepflow.ErrRemote,
			fmt.Sprintf("record %s/%s not found", domain, id), nil, map[string]any{"status": 404})
	}
	return workflow.CloneMap(rec), nil
}

func (m *Memory) CreateRecord(_ context.Context, domain string, data map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpCreateRecord); err != nil {
		return "", err
	}
	id := m.newID()
	if m.records[domain] == nil {
		m.records[domain] = make(map[string]map[string]any)
	}
	m.records[domain][id] = workflow.CloneMap(data)
	return id, nil
}

func (m *Memory) UpdateRecord(_ context.Context, domain, id string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpUpdateRecord); err != nil {
		return err
	}
	if _, ok := m.records[domain][id]; !ok {
		return stepflow.NewError(stepflow.ErrRemote,
			fmt.Sprintf("record %s/%s not found", domain, id), nil, map[string]any{"status": 404})
	}
	m.records[domain][id] = workflow.CloneMap(data)
	return nil
}

func (m *Memory) DeleteRecord(_ context.Context, domain, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpDeleteRecord); err != nil {
		return err
	}
	delete(m.records[domain], id)
	return nil
}

// PutRecord seeds a record with a known id.
func (m *Memory) PutRecord(domain, id string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[domain] == nil {
		m.records[domain] = make(map[string]map[string]any)
	}
	m.records[domain][id] = workflow.CloneMap(data)
}

func (m *Memory) IsUnique(_ context.Context, domain, field string, value any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpIsUnique); err != nil {
		return false, err
	}
	for _, rec := range m.records[domain] {
		if existing, ok := rec[field]; ok && fmt.Sprint(existing) == fmt.Sprint(value) {
			return false, nil
		}
	}
	return true, nil
}
