package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	stepflow "github.com/goliatone/go-stepflow"
)

// Program is a parsed expression ready to run against any data map.
type Program struct {
	Source string
	Root   Node
}

// Compile parses src into a Program.
func Compile(src string) (*Program, error) {
	root, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return &Program{Source: src, Root: root}, nil
}

// Run evaluates the program. data is exposed as both host and formData and is
// never modified.
func (p *Program) Run(data map[string]any) (bool, error) {
	if p == nil || p.Root == nil {
		return true, nil
	}
	value, err := eval(p.Root, data)
	if err != nil {
		return false, stepflow.NewError(stepflow.ErrExprSyntax, "expression evaluation failed", err, map[string]any{
			"expression": p.Source,
		})
	}
	return truthy(value), nil
}

// Evaluator caches compiled programs by source text.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*compiled
}

type compiled struct {
	program *Program
	err     error
}

// NewEvaluator returns an evaluator with an empty program cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*compiled)}
}

var defaultEvaluator = NewEvaluator()

// Evaluate runs src against data using the package evaluator.
func Evaluate(src string, data map[string]any) bool {
	return defaultEvaluator.Evaluate(src, data)
}

// Check runs src against data using the package evaluator and reports errors.
func Check(src string, data map[string]any) (bool, error) {
	return defaultEvaluator.Check(src, data)
}

// Validate reports whether src compiles, without evaluating it.
func Validate(src string) error {
	_, err := defaultEvaluator.program(src)
	return err
}

// Evaluate returns true for blank expressions and false on any error.
func (e *Evaluator) Evaluate(src string, data map[string]any) bool {
	ok, err := e.Check(src, data)
	if err != nil {
		return false
	}
	return ok
}

// EvaluateOr is Evaluate with a caller chosen result for failures.
func (e *Evaluator) EvaluateOr(src string, data map[string]any, onError bool) bool {
	ok, err := e.Check(src, data)
	if err != nil {
		return onError
	}
	return ok
}

// Check compiles (or reuses) src and runs it against data.
func (e *Evaluator) Check(src string, data map[string]any) (bool, error) {
	if strings.TrimSpace(src) == "" {
		return true, nil
	}
	prog, err := e.program(src)
	if err != nil {
		return false, err
	}
	return prog.Run(data)
}

func (e *Evaluator) program(src string) (*Program, error) {
	if e == nil {
		return Compile(src)
	}
	e.mu.RLock()
	entry, ok := e.cache[src]
	e.mu.RUnlock()
	if ok {
		return entry.program, entry.err
	}
	prog, err := Compile(src)
	e.mu.Lock()
	if e.cache == nil {
		e.cache = make(map[string]*compiled)
	}
	e.cache[src] = &compiled{program: prog, err: err}
	e.mu.Unlock()
	return prog, err
}

func eval(n Node, data map[string]any) (any, error) {
	switch node := n.(type) {
	case Literal:
		return node.Value, nil
	case Path:
		return resolvePath(node, data)
	case Unary:
		v, err := eval(node.Operand, data)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	case Binary:
		switch node.Op {
		case "&&":
			left, err := eval(node.Left, data)
			if err != nil {
				return nil, err
			}
			if !truthy(left) {
				return false, nil
			}
			right, err := eval(node.Right, data)
			if err != nil {
				return nil, err
			}
			return truthy(right), nil
		case "||":
			left, err := eval(node.Left, data)
			if err != nil {
				return nil, err
			}
			if truthy(left) {
				return true, nil
			}
			right, err := eval(node.Right, data)
			if err != nil {
				return nil, err
			}
			return truthy(right), nil
		}
		left, err := eval(node.Left, data)
		if err != nil {
			return nil, err
		}
		right, err := eval(node.Right, data)
		if err != nil {
			return nil, err
		}
		return compare(node.Op, left, right)
	default:
		return nil, fmt.Errorf("unsupported node %T", n)
	}
}

func resolvePath(p Path, data map[string]any) (any, error) {
	if len(p.Segments) == 0 {
		return data, nil
	}
	var current any = data
	for i, seg := range p.Segments {
		if current == nil {
			return nil, fmt.Errorf("cannot read %q of undefined (%s.%s)", seg, p.Root, strings.Join(p.Segments[:i], "."))
		}
		switch typed := current.(type) {
		case map[string]any:
			current = typed[seg]
		case map[string]string:
			v, ok := typed[seg]
			if !ok {
				current = nil
				continue
			}
			current = v
		default:
			current = nil
		}
	}
	return current, nil
}

func compare(op string, left, right any) (bool, error) {
	switch op {
	case "===":
		return strictEqual(left, right), nil
	case "!==":
		return !strictEqual(left, right), nil
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	}

	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			switch op {
			case "<":
				return ls < rs, nil
			case ">":
				return ls > rs, nil
			case "<=":
				return ls <= rs, nil
			case ">=":
				return ls >= rs, nil
			}
		}
	}
	lf, lok := toNumber(left, true)
	rf, rok := toNumber(right, true)
	if !lok || !rok {
		return false, fmt.Errorf("cannot order %v %s %v", left, op, right)
	}
	if math.IsNaN(lf) || math.IsNaN(rf) {
		return false, nil
	}
	switch op {
	case "<":
		return lf < rf, nil
	case ">":
		return lf > rf, nil
	case "<=":
		return lf <= rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return false, fmt.Errorf("unknown operator %s", op)
}

func strictEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if lf, ok := toNumber(left, false); ok {
		rf, ok := toNumber(right, false)
		return ok && lf == rf
	}
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	}
	return false
}

func looseEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if strictEqual(left, right) {
		return true
	}
	_, lnum := toNumber(left, false)
	_, rnum := toNumber(right, false)
	_, lbool := left.(bool)
	_, rbool := right.(bool)
	if lnum || rnum || lbool || rbool {
		lf, lok := toNumber(left, true)
		rf, rok := toNumber(right, true)
		return lok && rok && lf == rf
	}
	return false
}

// toNumber converts numeric values. With coerce, numeric strings and
// booleans convert too.
func toNumber(v any, coerce bool) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		if !coerce {
			return 0, false
		}
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	case bool:
		if !coerce {
			return 0, false
		}
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := toNumber(v, false); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

func syntaxError(src string, err error) error {
	return stepflow.NewError(stepflow.ErrExprSyntax, fmt.Sprintf("invalid expression: %v", err), err, map[string]any{
		"expression": src,
	})
}

func disallowedError(src, name string) error {
	return stepflow.NewError(stepflow.ErrExprDisallowed, fmt.Sprintf("expression references disallowed token %q", name), nil, map[string]any{
		"expression": src,
		"token":      name,
	})
}
