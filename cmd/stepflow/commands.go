package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/expr"
	"github.com/goliatone/go-stepflow/graph"
	"github.com/goliatone/go-stepflow/render"
	"github.com/goliatone/go-stepflow/workflow"
)

func loadDefinition(path string) (*workflow.Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return workflow.Parse(raw)
}

type validateCmd struct {
	File string `arg:"" help:"Definition file (YAML or JSON)." type:"existingfile"`
	JSON bool   `help:"Print diagnostics as JSON."`
}

func (c *validateCmd) Run(env *environment) error {
	def, err := loadDefinition(c.File)
	if err != nil {
		return err
	}
	diags := workflow.Validate(def)
	if c.JSON {
		enc := json.NewEncoder(env.out)
		enc.SetIndent("", "  ")
		if diags == nil {
			diags = []workflow.Diagnostic{}
		}
		if err := enc.Encode(diags); err != nil {
			return err
		}
	} else {
		for _, d := range diags {
			fmt.Fprintf(env.out, "%-7s %s %s: %s\n", d.Severity, d.Code, d.Path, d.Message)
		}
		if len(diags) == 0 {
			fmt.Fprintln(env.out, "ok")
		}
	}
	env.logger.Debug("validated %s: %d diagnostic(s)", c.File, len(diags))
	return workflow.Check(def)
}

type layoutCmd struct {
	File      string  `arg:"" help:"Definition file (YAML or JSON)." type:"existingfile"`
	Direction string  `help:"Rank direction." default:"TB" enum:"TB,LR,tb,lr"`
	RankSep   float64 `help:"Distance between ranks." default:"150"`
	NodeSep   float64 `help:"Distance between nodes of one rank." default:"250"`
	Force     bool    `help:"Ignore persisted coordinates."`
	Write     bool    `help:"Print the definition with computed coordinates instead of the graph."`
}

func (c *layoutCmd) Run(env *environment) error {
	def, err := loadDefinition(c.File)
	if err != nil {
		return err
	}
	dir, _ := graph.ParseDirection(c.Direction)
	opts := []graph.LayoutOption{
		graph.WithDirection(dir),
		graph.WithRankSeparation(c.RankSep),
		graph.WithNodeSeparation(c.NodeSep),
	}
	g := graph.ToGraph(def, opts...)
	if c.Force {
		graph.Layout(&g, opts...)
	}
	var out []byte
	if c.Write {
		out, err = workflow.MarshalIndent(graph.ToDefinition(g))
	} else {
		out, err = json.MarshalIndent(g, "", "  ")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(env.out, string(out))
	return err
}

type depsCmd struct {
	File string `arg:"" help:"Definition file (YAML or JSON)." type:"existingfile"`
	Step string `help:"Only report this step."`
}

func (c *depsCmd) Run(env *environment) error {
	def, err := loadDefinition(c.File)
	if err != nil {
		return err
	}
	if c.Step != "" && !def.HasStep(c.Step) {
		return stepflow.NewError(stepflow.ErrStepNotFound, "", nil, map[string]any{"step": c.Step})
	}
	def.States.Range(func(key string, state *workflow.StateNode) bool {
		if c.Step != "" && key != c.Step {
			return true
		}
		fmt.Fprintf(env.out, "%s:\n", key)
		if state == nil {
			return true
		}
		printIndex(env, render.Dependencies(state.Meta.FormSchema))
		state.On.Range(func(event string, tr workflow.Transition) bool {
			if guard := strings.TrimSpace(tr.Guard); guard != "" {
				fmt.Fprintf(env.out, "  %s guard -> %s\n", event, strings.Join(expr.ExtractDependencies(guard), ", "))
			}
			return true
		})
		return true
	})
	return nil
}

func printIndex(env *environment, idx expr.DependencyIndex) {
	fields := make([]string, 0, len(idx))
	for field := range idx {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(env.out, "  %s -> %s\n", field, strings.Join(idx.Dependents(field), ", "))
	}
}

type evalCmd struct {
	Expr string `arg:"" help:"Expression, for example 'host.age >= 18'."`
	Data string `help:"Form data as a YAML or JSON object." default:"{}"`
}

func (c *evalCmd) Run(env *environment) error {
	data := map[string]any{}
	if err := yaml.Unmarshal([]byte(c.Data), &data); err != nil {
		return stepflow.NewError(stepflow.ErrInvalidSource, "data must be an object", err, nil)
	}
	ok, err := expr.Check(c.Expr, data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(env.out, ok)
	return err
}
