package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/render"
	"github.com/goliatone/go-stepflow/service"
	"github.com/goliatone/go-stepflow/wizard"
	"github.com/goliatone/go-stepflow/workflow"
)

const (
	cmdBack   = ":back"
	cmdQuit   = ":quit"
	cmdCancel = ":cancel"
)

type runCmd struct {
	File         string        `arg:"" help:"Definition file (YAML or JSON)." type:"existingfile"`
	Domain       string        `help:"Record domain." default:"records"`
	Scope        string        `help:"Session scope. Defaults to the definition id or file name."`
	Live         bool          `help:"Commit to the in-process record service instead of simulating."`
	Record       string        `help:"Id of an existing record to update."`
	Seed         string        `help:"Values of the record being updated, as a YAML or JSON object." default:"{}"`
	State        string        `help:"SQLite file that keeps progress between invocations." type:"path"`
	MaxAge       time.Duration `help:"Discard saved progress older than this." default:"168h"`
	SandboxDelay time.Duration `help:"Simulated submission time in sandbox mode." default:"0s"`
}

func (c *runCmd) Run(env *environment) error {
	ctx := context.Background()
	def, err := loadDefinition(c.File)
	if err != nil {
		return err
	}
	scope := c.Scope
	if scope == "" {
		scope = def.ID
	}
	if scope == "" {
		scope = strings.TrimSuffix(filepath.Base(c.File), filepath.Ext(c.File))
	}

	records := service.NewMemory()
	if c.Record != "" {
		seed := map[string]any{}
		if err := yaml.Unmarshal([]byte(c.Seed), &seed); err != nil {
			return stepflow.NewError(stepflow.ErrInvalidSource, "seed must be an object", err, nil)
		}
		records.PutRecord(c.Domain, c.Record, seed)
	}

	store, closeStore, err := c.openStore(ctx, env)
	if err != nil {
		return err
	}
	defer closeStore()

	rt := wizard.New(wizard.Config{
		Namespace: "cli",
		Domain:    c.Domain,
		Scope:     scope,
		Host:      wizard.HostContext{Production: c.Live, Route: "/cli/run", RecordID: c.Record},
	},
		wizard.WithDefinition(def),
		wizard.WithRecordService(records),
		wizard.WithUniquenessChecker(records),
		wizard.WithSnapshotStore(store),
		wizard.WithLogger(env.logger),
		wizard.WithSandboxDelay(c.SandboxDelay),
		wizard.WithObserver(wizard.Observer{
			OnStepEntered: func(step string) { fmt.Fprintf(env.out, "\n== %s ==\n", step) },
		}),
	)
	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer rt.Close()

	p := &prompter{env: env, in: bufio.NewScanner(env.in), rt: rt, unique: uniqueFields(def)}
	for {
		done, err := p.step(ctx)
		if err != nil || done {
			flushErr := rt.Flush(ctx)
			if err != nil {
				return err
			}
			return flushErr
		}
		if !p.completed {
			continue
		}
		state := rt.State()
		fmt.Fprintf(env.out, "completed (%s) record=%s\n", state.CommitMode, state.RecordID)
		if state.CommitMode == wizard.CommitLive {
			rec, err := records.GetRecord(ctx, c.Domain, state.RecordID)
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Fprintln(env.out, string(out))
		}
		return rt.Flush(ctx)
	}
}

// openStore returns the snapshot store. With --state it is a SQLite file
// pruned on open and then on a schedule while the run is going.
func (c *runCmd) openStore(ctx context.Context, env *environment) (wizard.SnapshotStore, func(), error) {
	if c.State == "" {
		return wizard.NewMemoryStore(), func() {}, nil
	}
	store, err := wizard.OpenSQLiteStore(ctx, c.State)
	if err != nil {
		return nil, nil, err
	}
	janitor := wizard.NewJanitor(store,
		wizard.WithMaxAge(c.MaxAge),
		wizard.WithJanitorLogger(env.logger),
	)
	if _, err := janitor.RunOnce(ctx); err != nil {
		env.logger.Warn("initial prune failed: %v", err)
	}
	if err := janitor.Start(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, func() {
		janitor.Stop()
		if err := store.Close(); err != nil {
			env.logger.Warn("closing state store: %v", err)
		}
	}, nil
}

type prompter struct {
	env       *environment
	in        *bufio.Scanner
	rt        *wizard.Runtime
	unique    map[string]bool
	completed bool
}

// step prompts for every editable field of the current step and then moves
// on. It reports done when the user quits, cancels or input ends.
func (p *prompter) step(ctx context.Context) (bool, error) {
	view, err := p.rt.View()
	if err != nil {
		return true, err
	}
	asked := 0
	for _, field := range flatten(view.Fields) {
		if field.Kind == render.KindResult {
			fmt.Fprintf(p.env.out, "%s: %v\n", labelOf(field), field.Value)
			continue
		}
		if field.Kind != render.KindPrimitive || field.Disabled {
			continue
		}
		asked++
		line, ok := p.ask(field)
		if !ok {
			fmt.Fprintln(p.env.out, "progress saved")
			return true, nil
		}
		switch line {
		case "":
			continue
		case cmdQuit:
			fmt.Fprintln(p.env.out, "progress saved")
			return true, nil
		case cmdCancel:
			fmt.Fprintln(p.env.out, "run discarded")
			return true, p.rt.Cancel(ctx)
		case cmdBack:
			if err := p.rt.GoBack(); err != nil {
				fmt.Fprintf(p.env.out, "! %v\n", err)
			}
			return false, nil
		}
		value := parseValue(line)
		if p.unique[field.Name] {
			ok, err := p.rt.CheckUnique(ctx, field.Name, value)
			if err != nil {
				p.env.logger.Warn("uniqueness check for %s failed: %v", field.Name, err)
			} else if !ok {
				fmt.Fprintf(p.env.out, "! %s %v is already taken\n", field.Name, value)
				continue
			}
		}
		deps, err := p.rt.SetField(field.Name, value)
		if err != nil {
			return true, err
		}
		if len(deps) > 0 {
			// Dependent rules may have changed; re-render first.
			return false, nil
		}
	}

	outcome, err := p.rt.GoNext(ctx, nil)
	switch {
	case err == nil:
		p.completed = outcome == wizard.OutcomeCompleted
		return false, nil
	case asked == 0 && stepflow.HasCode(err, stepflow.ErrCodeValidationFailed):
		// Nothing left to ask on this step.
		return true, err
	case stepflow.HasCode(err, stepflow.ErrCodeValidationFailed), stepflow.HasCode(err, stepflow.ErrCodeSubmitFailed):
		fmt.Fprintf(p.env.out, "! %v\n", err)
		return false, nil
	default:
		return true, err
	}
}

func (p *prompter) ask(field render.FieldView) (string, bool) {
	var hint []string
	if field.Required {
		hint = append(hint, "required")
	}
	for _, opt := range field.Options {
		hint = append(hint, fmt.Sprint(opt.Value))
	}
	prompt := labelOf(field)
	if len(hint) > 0 {
		prompt += " (" + strings.Join(hint, "|") + ")"
	}
	if field.Value != nil {
		prompt += fmt.Sprintf(" [%v]", field.Value)
	}
	fmt.Fprintf(p.env.out, "%s: ", prompt)
	if !p.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.in.Text()), true
}

func labelOf(field render.FieldView) string {
	if field.Label != "" {
		return field.Label
	}
	return field.Name
}

// flatten lists visible fields depth first, entering groups.
func flatten(fields []render.FieldView) []render.FieldView {
	var out []render.FieldView
	for _, f := range fields {
		if !f.Visible {
			continue
		}
		out = append(out, f)
		if f.Kind == render.KindGroup {
			out = append(out, flatten(f.Children)...)
		}
	}
	return out
}

// parseValue reads a scalar the way YAML would, so 42 is a number and true a
// bool. Anything that does not decode stays a string.
func parseValue(line string) any {
	var v any
	if err := yaml.Unmarshal([]byte(line), &v); err != nil || v == nil {
		return line
	}
	switch v.(type) {
	case map[string]any, []any:
		return line
	}
	return v
}

func uniqueFields(def *workflow.Definition) map[string]bool {
	out := map[string]bool{}
	var walk func(fields []workflow.FieldSpec, depth int)
	walk = func(fields []workflow.FieldSpec, depth int) {
		if depth > workflow.MaxFieldDepth {
			return
		}
		for _, f := range fields {
			for _, rule := range f.Rules {
				if v, ok := rule["unique"].(bool); ok && v {
					out[f.Name] = true
				}
			}
			walk(f.Columns, depth+1)
		}
	}
	def.States.Range(func(_ string, state *workflow.StateNode) bool {
		if state != nil {
			walk(state.Meta.FormSchema, 1)
		}
		return true
	})
	return out
}
