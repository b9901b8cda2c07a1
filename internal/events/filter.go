package events

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL predicate over events. A nil *Filter matches
// everything.
//
// Variables: event, queue, key (strings), at_ms, now_ms (ints).
type Filter struct {
	expr string
	prog cel.Program
}

// NewFilter compiles expr. An empty expression yields a nil filter.
func NewFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("event", cel.StringType),
		cel.Variable("queue", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Variable("at_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, &FilterTypeError{Expr: expr, Got: ast.OutputType().String()}
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &Filter{expr: expr, prog: prog}, nil
}

// FilterTypeError reports an expression that does not yield a bool.
type FilterTypeError struct {
	Expr string
	Got  string
}

func (e *FilterTypeError) Error() string {
	return "events: filter " + e.Expr + " must evaluate to bool, got " + e.Got
}

// Expr returns the source expression.
func (f *Filter) Expr() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the filter. Evaluation errors count as no match.
func (f *Filter) Match(ev Event) bool {
	if f == nil {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"event":  string(ev.Event),
		"queue":  ev.QueueName,
		"key":    ev.ResourceKey,
		"at_ms":  ev.AtMs,
		"now_ms": time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
