// pkg/plan/expr.go
package plan

import (
	"errors"
	"fmt"
	"strings"

	"grizzly/pkg/schema"
	"grizzly/pkg/types"
)

var (
	ErrTypeError = errors.New("expression type error")
	ErrDivByZero = errors.New("division by zero")
)

// Expr is a predicate or projection expression. The engine never parses SQL
// text; a translator outside this module hands it fully-built trees.
type Expr interface {
	// Eval evaluates the expression against one row.
	Eval(s *schema.Schema, row []types.Value) (types.Value, error)
	// Columns adds every column name the expression references to set.
	Columns(set map[string]struct{})
	String() string
}

// Literal is a constant value.
type Literal struct {
	Value types.Value
}

func (e *Literal) Eval(*schema.Schema, []types.Value) (types.Value, error) {
	return e.Value, nil
}
func (e *Literal) Columns(map[string]struct{}) {}
func (e *Literal) String() string {
	if e.Value.Type() == types.Text {
		return fmt.Sprintf("'%s'", e.Value.Text())
	}
	return e.Value.String()
}

// ColumnRef references a column by name.
type ColumnRef struct {
	Name string
}

func (e *ColumnRef) Eval(s *schema.Schema, row []types.Value) (types.Value, error) {
	i, err := s.ColumnIndex(e.Name)
	if err != nil {
		return types.Value{}, err
	}
	return row[i], nil
}
func (e *ColumnRef) Columns(set map[string]struct{}) { set[e.Name] = struct{}{} }
func (e *ColumnRef) String() string                  { return e.Name }

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpEq BinaryOp = iota
	OpNotEq
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpBetween
)

func (op BinaryOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNotEq:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpBetween:
		return "BETWEEN"
	default:
		return "?"
	}
}

// Binary applies an operator to two sub-expressions. For OpBetween the
// right operand is a *Range.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// Range is the operand of BETWEEN: an inclusive [Low, High] interval.
type Range struct {
	Low  types.Value
	High types.Value
}

func (e *Range) Eval(*schema.Schema, []types.Value) (types.Value, error) {
	return types.Value{}, fmt.Errorf("%w: range is only valid under BETWEEN", ErrTypeError)
}
func (e *Range) Columns(map[string]struct{}) {}
func (e *Range) String() string {
	return fmt.Sprintf("%s AND %s", e.Low, e.High)
}

func (e *Binary) Eval(s *schema.Schema, row []types.Value) (types.Value, error) {
	if e.Op == OpBetween {
		return e.evalBetween(s, row)
	}

	left, err := e.Left.Eval(s, row)
	if err != nil {
		return types.Value{}, err
	}

	// Short-circuit logical operators.
	if e.Op == OpAnd || e.Op == OpOr {
		lb, err := asBool(left)
		if err != nil {
			return types.Value{}, err
		}
		if e.Op == OpAnd && !lb {
			return types.NewBool(false), nil
		}
		if e.Op == OpOr && lb {
			return types.NewBool(true), nil
		}
		right, err := e.Right.Eval(s, row)
		if err != nil {
			return types.Value{}, err
		}
		rb, err := asBool(right)
		if err != nil {
			return types.Value{}, err
		}
		return types.NewBool(rb), nil
	}

	right, err := e.Right.Eval(s, row)
	if err != nil {
		return types.Value{}, err
	}

	switch e.Op {
	case OpEq, OpNotEq, OpLt, OpLe, OpGt, OpGe:
		cmp, err := left.Compare(right)
		if err != nil {
			return types.Value{}, err
		}
		var out bool
		switch e.Op {
		case OpEq:
			out = cmp == 0
		case OpNotEq:
			out = cmp != 0
		case OpLt:
			out = cmp < 0
		case OpLe:
			out = cmp <= 0
		case OpGt:
			out = cmp > 0
		case OpGe:
			out = cmp >= 0
		}
		return types.NewBool(out), nil

	case OpAdd, OpSub, OpMul, OpDiv:
		return evalArith(e.Op, left, right)

	default:
		return types.Value{}, fmt.Errorf("%w: unknown operator %d", ErrTypeError, e.Op)
	}
}

func (e *Binary) evalBetween(s *schema.Schema, row []types.Value) (types.Value, error) {
	r, ok := e.Right.(*Range)
	if !ok {
		return types.Value{}, fmt.Errorf("%w: BETWEEN requires a range operand", ErrTypeError)
	}
	v, err := e.Left.Eval(s, row)
	if err != nil {
		return types.Value{}, err
	}
	lo, err := v.Compare(r.Low)
	if err != nil {
		return types.Value{}, err
	}
	hi, err := v.Compare(r.High)
	if err != nil {
		return types.Value{}, err
	}
	return types.NewBool(lo >= 0 && hi <= 0), nil
}

func (e *Binary) Columns(set map[string]struct{}) {
	e.Left.Columns(set)
	if e.Right != nil {
		e.Right.Columns(set)
	}
}

func (e *Binary) String() string {
	return fmt.Sprintf("%s %s %s", e.Left, e.Op, e.Right)
}

// evalArith applies an arithmetic operator. Both operands must be numeric;
// two integers produce Int64, any float widens the result to Float64.
func evalArith(op BinaryOp, left, right types.Value) (types.Value, error) {
	if !left.IsNumeric() || !right.IsNumeric() {
		return types.Value{}, fmt.Errorf("%w: %s needs numeric operands, got %s and %s",
			ErrTypeError, op, left.Type(), right.Type())
	}
	bothInt := isIntType(left.Type()) && isIntType(right.Type())
	if bothInt && op != OpDiv {
		a, _ := left.AsInt()
		b, _ := right.AsInt()
		switch op {
		case OpAdd:
			return types.NewInt64(a + b), nil
		case OpSub:
			return types.NewInt64(a - b), nil
		case OpMul:
			return types.NewInt64(a * b), nil
		}
	}
	a, _ := left.AsFloat()
	b, _ := right.AsFloat()
	switch op {
	case OpAdd:
		return types.NewFloat64(a + b), nil
	case OpSub:
		return types.NewFloat64(a - b), nil
	case OpMul:
		return types.NewFloat64(a * b), nil
	case OpDiv:
		if b == 0 {
			return types.Value{}, ErrDivByZero
		}
		return types.NewFloat64(a / b), nil
	}
	return types.Value{}, fmt.Errorf("%w: unknown arithmetic operator", ErrTypeError)
}

func isIntType(dt types.DataType) bool {
	return dt == types.Int32 || dt == types.Int64
}

func asBool(v types.Value) (bool, error) {
	if v.Type() != types.Bool {
		return false, fmt.Errorf("%w: expected bool, got %s", ErrTypeError, v.Type())
	}
	return v.Bool(), nil
}

// Call is a function-call expression. The only built-ins are the aggregate
// functions, which are valid only inside Aggregate plan nodes; evaluating
// one per-row is an error.
type Call struct {
	Name string // SUM, AVG, COUNT, MIN, MAX
	Args []Expr
}

func (e *Call) Eval(*schema.Schema, []types.Value) (types.Value, error) {
	return types.Value{}, fmt.Errorf("%w: %s is an aggregate and cannot be evaluated per row",
		ErrTypeError, e.Name)
}

func (e *Call) Columns(set map[string]struct{}) {
	for _, a := range e.Args {
		a.Columns(set)
	}
}

func (e *Call) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
}
