package filter

import (
	"fmt"

	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// SQLCondition represents a SQL WHERE clause fragment with parameters.
type SQLCondition struct {
	// Clause is the SQL WHERE clause (e.g., "actor = ?").
	Clause string
	// Params are the positional parameters for the clause.
	Params []any
}

// Empty reports whether the condition matches everything.
func (c SQLCondition) Empty() bool {
	return c.Clause == ""
}

// Columns maps filter field names to SQL column expressions.
type Columns map[string]string

// ToSQL translates a parsed filter expression into a WHERE fragment using
// columns to resolve field names. A nil expression yields an empty condition.
func ToSQL(e *expr.Expr, columns Columns) (SQLCondition, error) {
	if e == nil {
		return SQLCondition{}, nil
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr, columns)
	default:
		return SQLCondition{}, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func translateCall(call *expr.Expr_Call, columns Columns) (SQLCondition, error) {
	switch {
	case isAnd(call.Function):
		return translateBinary(call.Args, columns, "AND")
	case isOr(call.Function):
		return translateBinary(call.Args, columns, "OR")
	case isNot(call.Function):
		if len(call.Args) != 1 {
			return SQLCondition{}, fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := ToSQL(call.Args[0], columns)
		if err != nil {
			return SQLCondition{}, err
		}
		return SQLCondition{Clause: fmt.Sprintf("(NOT %s)", inner.Clause), Params: inner.Params}, nil
	}
	op, ok := operator(call.Function)
	if !ok {
		return SQLCondition{}, fmt.Errorf("unsupported function: %s", call.Function)
	}
	return translateComparison(call.Args, columns, op)
}

func translateBinary(args []*expr.Expr, columns Columns, joiner string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("%s requires 2 arguments", joiner)
	}

	left, err := ToSQL(args[0], columns)
	if err != nil {
		return SQLCondition{}, err
	}

	right, err := ToSQL(args[1], columns)
	if err != nil {
		return SQLCondition{}, err
	}

	params := make([]any, 0, len(left.Params)+len(right.Params))
	params = append(params, left.Params...)
	params = append(params, right.Params...)
	return SQLCondition{
		Clause: fmt.Sprintf("(%s %s %s)", left.Clause, joiner, right.Clause),
		Params: params,
	}, nil
}

func translateComparison(args []*expr.Expr, columns Columns, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("comparison requires 2 arguments")
	}

	field, err := extractFieldName(args[0])
	if err != nil {
		return SQLCondition{}, err
	}

	column, ok := columns[field]
	if !ok {
		return SQLCondition{}, fmt.Errorf("unknown field: %s", field)
	}

	value, err := extractValue(args[1])
	if err != nil {
		return SQLCondition{}, err
	}

	return SQLCondition{
		Clause: fmt.Sprintf("%s %s ?", column, op),
		Params: []any{value},
	}, nil
}
