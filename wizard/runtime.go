package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/expr"
	"github.com/goliatone/go-stepflow/render"
	"github.com/goliatone/go-stepflow/service"
	"github.com/goliatone/go-stepflow/workflow"
)

const (
	// DefaultNamespace prefixes snapshot keys.
	DefaultNamespace = "stepflow"
	// DefaultSandboxDelay simulates the terminal submission in sandbox mode.
	DefaultSandboxDelay = time.Second
)

// Outcome reports what GoNext did.
type Outcome string

const (
	// OutcomeAdvanced moved to the NEXT step.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeCompleted committed the run.
	OutcomeCompleted Outcome = "completed"
	// OutcomeStayed kept the current step; the returned error says why.
	OutcomeStayed Outcome = "stayed"
	// OutcomeIgnored means a submission was in flight or the run had already
	// completed.
	OutcomeIgnored Outcome = "ignored"
)

// Config identifies the workflow a run executes and where it was launched.
type Config struct {
	Namespace string
	Domain    string
	Scope     string
	Host      HostContext
}

// Observer receives lifecycle callbacks outside the runtime lock. Any field
// may be nil.
type Observer struct {
	OnStepEntered func(step string)
	OnCompleted   func(state State)
	OnFailed      func(step string, err error)
}

func (o Observer) stepEntered(step string) {
	if o.OnStepEntered != nil {
		o.OnStepEntered(step)
	}
}

func (o Observer) completed(state State) {
	if o.OnCompleted != nil {
		o.OnCompleted(state)
	}
}

func (o Observer) failed(step string, err error) {
	if o.OnFailed != nil {
		o.OnFailed(step, err)
	}
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithDefinition runs def instead of fetching it.
func WithDefinition(def *workflow.Definition) Option {
	return func(r *Runtime) {
		r.def = def.Clone()
	}
}

// WithDefinitionService fetches the definition by domain and scope.
func WithDefinitionService(defs service.DefinitionService) Option {
	return func(r *Runtime) {
		r.defs = defs
	}
}

// WithRecordService sets the service used for hydration and live commits.
func WithRecordService(records service.RecordService) Option {
	return func(r *Runtime) {
		r.records = records
	}
}

// WithUniquenessChecker sets the service behind CheckUnique.
func WithUniquenessChecker(unique service.UniquenessChecker) Option {
	return func(r *Runtime) {
		r.unique = unique
	}
}

// WithSnapshotStore enables persistence and recovery.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(r *Runtime) {
		r.store = store
	}
}

// WithLogger sets the runtime logger.
func WithLogger(logger stepflow.Logger) Option {
	return func(r *Runtime) {
		r.logger = stepflow.NormalizeLogger(logger)
	}
}

// WithObserver sets lifecycle callbacks.
func WithObserver(o Observer) Option {
	return func(r *Runtime) {
		r.observer = o
	}
}

// WithSandboxDelay overrides the simulated submission delay.
func WithSandboxDelay(d time.Duration) Option {
	return func(r *Runtime) {
		if d >= 0 {
			r.sandboxDelay = d
		}
	}
}

// WithRegistry sets the widget registry used to render steps.
func WithRegistry(reg render.Registry) Option {
	return func(r *Runtime) {
		r.registry = reg
	}
}

// WithEvaluator shares an expression evaluator.
func WithEvaluator(e *expr.Evaluator) Option {
	return func(r *Runtime) {
		if e != nil {
			r.eval = e
		}
	}
}

// WithClock overrides time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) {
		if now != nil {
			r.now = now
		}
	}
}

// Runtime drives one end user through a workflow.
type Runtime struct {
	cfg        Config
	key        string
	runID      string
	commitMode CommitMode
	recordMode RecordMode

	defs         service.DefinitionService
	records      service.RecordService
	unique       service.UniquenessChecker
	store        SnapshotStore
	writer       *writer
	registry     render.Registry
	renderer     *render.Renderer
	eval         *expr.Evaluator
	observer     Observer
	logger       stepflow.Logger
	sandboxDelay time.Duration
	now          func() time.Time

	mu        sync.Mutex
	def       *workflow.Definition
	current   string
	data      map[string]any
	history   []string
	deps      expr.DependencyIndex
	recordID  string
	started   bool
	ready     bool
	busy      bool
	completed bool
	closed    bool
}

// New builds a runtime. Modes are resolved from cfg.Host here and never
// change afterwards.
func New(cfg Config, opts ...Option) *Runtime {
	if strings.TrimSpace(cfg.Namespace) == "" {
		cfg.Namespace = DefaultNamespace
	}
	commit, record := ResolveModes(cfg.Host)
	r := &Runtime{
		cfg:          cfg,
		runID:        uuid.NewString(),
		commitMode:   commit,
		recordMode:   record,
		recordID:     strings.TrimSpace(cfg.Host.RecordID),
		eval:         expr.NewEvaluator(),
		logger:       stepflow.NormalizeLogger(nil),
		sandboxDelay: DefaultSandboxDelay,
		now:          time.Now,
		data:         map[string]any{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.key = Key{
		Namespace: cfg.Namespace,
		Mode:      commit,
		Domain:    cfg.Domain,
		Scope:     cfg.Scope,
		RecordID:  r.recordID,
	}.String()
	r.logger = stepflow.WithLoggerFields(r.logger, map[string]any{"session": r.key, "run": r.runID})
	r.renderer = render.NewRenderer(r.registry, render.WithEvaluator(r.eval), render.WithLogger(r.logger))
	r.writer = newWriter(r.store, r.key, r.logger)
	return r
}

// Key returns the snapshot key of this run.
func (r *Runtime) Key() string {
	return r.key
}

// Start loads the definition, hydrates record values on update runs and
// restores a snapshot whose step still exists. Ready reports false until all
// of that has finished.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return closedError("start")
	}
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	injected := r.def
	r.mu.Unlock()

	def, err := r.loadDefinition(ctx, injected)
	if err != nil {
		r.logger.Error("definition unavailable: %v", err)
		r.resetStart()
		return err
	}

	data := r.hydrate(ctx)

	step := def.StartStep()
	if !def.HasStep(step) {
		r.resetStart()
		return stepflow.NewError(stepflow.ErrStepNotFound,
			fmt.Sprintf("start step %q is not defined", step), nil, map[string]any{"step": step})
	}
	history := []string(nil)
	if snap := r.restore(ctx, def); snap != nil {
		step = snap.Step
		for k, v := range snap.Data {
			data[k] = v
		}
		for _, prev := range snap.History {
			if def.HasStep(prev) {
				history = append(history, prev)
			}
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return closedError("start")
	}
	r.def = def
	r.data = data
	r.current = step
	r.history = history
	r.deps = render.Dependencies(r.fieldsLocked())
	r.ready = true
	r.mu.Unlock()

	r.logger.Info("run started at %s (%s/%s)", step, r.commitMode, r.recordMode)
	r.observer.stepEntered(step)
	return nil
}

func (r *Runtime) resetStart() {
	r.mu.Lock()
	r.started = false
	r.mu.Unlock()
}

func (r *Runtime) loadDefinition(ctx context.Context, injected *workflow.Definition) (*workflow.Definition, error) {
	if injected != nil {
		return injected, nil
	}
	key := service.DefinitionKey{Domain: r.cfg.Domain, Scope: r.cfg.Scope}
	if r.defs == nil {
		return nil, stepflow.NewError(stepflow.ErrDefinitionFetch, "no definition source configured", nil,
			map[string]any{"key": key.String()})
	}
	def, err := r.defs.FetchDefinition(ctx, key)
	if err != nil {
		return nil, stepflow.NewError(stepflow.ErrDefinitionFetch, "", err, map[string]any{"key": key.String()})
	}
	if def == nil {
		return nil, stepflow.NewError(stepflow.ErrDefinitionFetch, "definition is empty", nil,
			map[string]any{"key": key.String()})
	}
	return def, nil
}

// hydrate returns the bound record's values, or an empty map when there is
// nothing to hydrate or hydration fails.
func (r *Runtime) hydrate(ctx context.Context) map[string]any {
	data := map[string]any{}
	if r.recordMode != RecordUpdate || r.records == nil {
		return data
	}
	values, err := r.records.GetRecord(ctx, r.cfg.Domain, r.recordID)
	if err != nil {
		r.logger.Warn("hydration failed for record %s, continuing with defaults: %v", r.recordID, err)
		return data
	}
	for k, v := range values {
		data[k] = v
	}
	return data
}

// restore returns a snapshot whose step exists in def. A stale snapshot is
// deleted.
func (r *Runtime) restore(ctx context.Context, def *workflow.Definition) *Snapshot {
	if r.store == nil {
		return nil
	}
	snap, err := r.store.Load(ctx, r.key)
	if err != nil {
		r.logger.Warn("snapshot load failed: %v", err)
		return nil
	}
	if snap == nil {
		return nil
	}
	if def.HasStep(snap.Step) {
		return snap
	}
	r.logger.Warn("discarding stale snapshot at removed step %q", snap.Step)
	if err := r.store.Delete(ctx, r.key); err != nil {
		r.logger.Warn("stale snapshot delete failed: %v", err)
	}
	return nil
}

// Ready reports whether the run can be presented.
func (r *Runtime) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready && !r.closed
}

// GoNext merges stepData and either moves along the NEXT transition or, on
// a terminal step, commits the run. A step is terminal when it is final, has
// no NEXT transition, or its NEXT guard is false for the current data.
//
// While a commit is in flight further calls return OutcomeIgnored. A failed
// commit keeps the step, data and snapshot; nothing is retried.
func (r *Runtime) GoNext(ctx context.Context, stepData map[string]any) (Outcome, error) {
	r.mu.Lock()
	if err := r.usableLocked("next"); err != nil {
		r.mu.Unlock()
		return OutcomeStayed, err
	}
	if r.busy || r.completed {
		r.mu.Unlock()
		r.logger.Debug("next ignored: submission in flight or run completed")
		return OutcomeIgnored, nil
	}
	for k, v := range stepData {
		r.data[k] = v
	}
	r.persistLocked()
	step := r.current

	if missing := r.missingLocked(); len(missing) > 0 {
		r.mu.Unlock()
		return OutcomeStayed, stepflow.NewError(stepflow.ErrValidationFailed,
			fmt.Sprintf("required fields missing: %s", strings.Join(missing, ", ")),
			nil, map[string]any{"step": step, "fields": missing})
	}

	target, terminal, err := r.nextLocked(step)
	if err != nil {
		r.mu.Unlock()
		return OutcomeStayed, err
	}
	if !terminal {
		r.history = append(r.history, step)
		r.current = target
		r.deps = render.Dependencies(r.fieldsLocked())
		r.persistLocked()
		r.mu.Unlock()
		r.observer.stepEntered(target)
		return OutcomeAdvanced, nil
	}

	r.busy = true
	payload := workflow.CloneMap(r.data)
	recordID := r.recordID
	r.mu.Unlock()

	committedID, err := r.commit(ctx, payload, recordID)

	r.mu.Lock()
	r.busy = false
	if err == nil {
		// The record exists now; a snapshot left behind would commit it twice.
		r.writer.delete()
	}
	if r.closed {
		r.mu.Unlock()
		return OutcomeStayed, closedError("next")
	}
	if err != nil {
		r.mu.Unlock()
		wrapped := stepflow.NewError(stepflow.ErrSubmitFailed, "", err,
			map[string]any{"step": step, "mode": string(r.commitMode)})
		r.logger.Error("submission failed at %s: %v", step, err)
		r.observer.failed(step, wrapped)
		return OutcomeStayed, wrapped
	}
	r.completed = true
	r.recordID = committedID
	state := r.stateLocked()
	r.mu.Unlock()

	r.logger.Info("run completed record=%s", committedID)
	r.observer.completed(state)
	return OutcomeCompleted, nil
}

func (r *Runtime) nextLocked(step string) (string, bool, error) {
	node, ok := r.def.Step(step)
	if !ok {
		return "", false, stepflow.NewError(stepflow.ErrStepNotFound, "", nil, map[string]any{"step": step})
	}
	if node.Type == workflow.StateFinal {
		return "", true, nil
	}
	tr, ok := r.def.Next(step)
	if !ok {
		return "", true, nil
	}
	if guard := strings.TrimSpace(tr.Guard); guard != "" {
		pass, err := r.eval.Check(guard, r.data)
		if err != nil {
			return "", false, stepflow.NewError(stepflow.ErrGuardRejected, "", err,
				map[string]any{"step": step, "guard": guard})
		}
		if !pass {
			r.logger.Debug("guard %q closed NEXT of %s", guard, step)
			return "", true, nil
		}
	}
	if !r.def.HasStep(tr.Target) {
		return "", false, stepflow.NewError(stepflow.ErrStepNotFound,
			fmt.Sprintf("NEXT of %q targets unknown step %q", step, tr.Target), nil,
			map[string]any{"step": step, "target": tr.Target})
	}
	return tr.Target, false, nil
}

func (r *Runtime) commit(ctx context.Context, payload map[string]any, recordID string) (string, error) {
	if r.commitMode == CommitSandbox {
		timer := time.NewTimer(r.sandboxDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if recordID == "" {
			recordID = "sandbox-" + uuid.NewString()
		}
		return recordID, nil
	}
	if r.records == nil {
		return "", errors.New("no record service configured for live commit")
	}
	if r.recordMode == RecordUpdate && recordID != "" {
		if err := r.records.UpdateRecord(ctx, r.cfg.Domain, recordID, payload); err != nil {
			return "", err
		}
		return recordID, nil
	}
	return r.records.CreateRecord(ctx, r.cfg.Domain, payload)
}

// GoBack returns to the previous step. Entered data is kept. It does nothing
// while a submission is in flight or after completion.
func (r *Runtime) GoBack() error {
	r.mu.Lock()
	if err := r.usableLocked("back"); err != nil {
		r.mu.Unlock()
		return err
	}
	if r.busy || r.completed {
		r.mu.Unlock()
		return nil
	}
	if len(r.history) == 0 {
		r.mu.Unlock()
		return stepflow.NewError(stepflow.ErrNoHistory, "", nil, map[string]any{"step": r.current})
	}
	prev := r.history[len(r.history)-1]
	r.history = r.history[:len(r.history)-1]
	r.current = prev
	r.deps = render.Dependencies(r.fieldsLocked())
	r.persistLocked()
	r.mu.Unlock()
	r.observer.stepEntered(prev)
	return nil
}

// SetField stores one value and returns the fields of the current step
// whose rules read it.
func (r *Runtime) SetField(name string, value any) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usableLocked("set"); err != nil {
		return nil, err
	}
	if r.completed {
		return nil, nil
	}
	r.data[name] = value
	r.persistLocked()
	return r.deps.Dependents(name), nil
}

// CheckUnique asks the uniqueness service whether value is unused for
// field. Without a service every value is unique.
func (r *Runtime) CheckUnique(ctx context.Context, field string, value any) (bool, error) {
	if r.unique == nil {
		return true, nil
	}
	return r.unique.IsUnique(ctx, r.cfg.Domain, field, value)
}

// View renders the current step.
func (r *Runtime) View() (render.View, error) {
	r.mu.Lock()
	if err := r.usableLocked("view"); err != nil {
		r.mu.Unlock()
		return render.View{}, err
	}
	fields := r.fieldsLocked()
	data := workflow.CloneMap(r.data)
	r.mu.Unlock()
	return r.renderer.Render(fields, data)
}

// State returns a copy of the run state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

// Flush waits for pending snapshot writes.
func (r *Runtime) Flush(ctx context.Context) error {
	return r.writer.flush(ctx)
}

// Close stops driving the run. A submission already in flight is not
// aborted and its completion no longer changes the run state, though a
// successful commit still clears the snapshot. Otherwise the snapshot stays
// for recovery.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.ready = false
}

// Cancel closes the run and discards its snapshot.
func (r *Runtime) Cancel(ctx context.Context) error {
	r.Close()
	r.writer.delete()
	return r.writer.flush(ctx)
}

func (r *Runtime) usableLocked(op string) error {
	if r.closed {
		return closedError(op)
	}
	if !r.ready {
		return stepflow.NewError(stepflow.ErrNotReady, "", nil, map[string]any{"op": op})
	}
	return nil
}

func (r *Runtime) fieldsLocked() []workflow.FieldSpec {
	node, ok := r.def.Step(r.current)
	if !ok {
		return nil
	}
	return node.Meta.FormSchema
}

func (r *Runtime) missingLocked() []string {
	view, err := r.renderer.Render(r.fieldsLocked(), r.data)
	if err != nil {
		r.logger.Debug("rendering %s for validation: %v", r.current, err)
	}
	return view.MissingRequired()
}

func (r *Runtime) persistLocked() {
	r.writer.save(Snapshot{
		Step:      r.current,
		Data:      workflow.CloneMap(r.data),
		History:   append([]string(nil), r.history...),
		UpdatedAt: r.now(),
	})
}

func (r *Runtime) stateLocked() State {
	return State{
		Key:        r.key,
		RunID:      r.runID,
		Step:       r.current,
		Data:       workflow.CloneMap(r.data),
		History:    append([]string(nil), r.history...),
		CommitMode: r.commitMode,
		RecordMode: r.recordMode,
		RecordID:   r.recordID,
		Ready:      r.ready,
		Busy:       r.busy,
		Completed:  r.completed,
		Closed:     r.closed,
	}
}

func closedError(op string) error {
	return stepflow.NewError(stepflow.ErrSessionClosed, "", nil, map[string]any{"op": op})
}
