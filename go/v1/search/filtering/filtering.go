// Copyright 2021 The Rode Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package filtering

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/overloads"
	"github.com/hashicorp/go-multierror"
	"github.com/rode/search-bridge/go/v1/search"
	"go.uber.org/zap"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Filterer compiles CEL filter expressions into predicates of a search scope.
type Filterer interface {
	ParseExpression(scope *search.IndexScope, filter string) (search.SearchPredicate, error)
}

type filterer struct {
	logger *zap.Logger
	env    *cel.Env
}

const nestedFilter = "nestedFilter"

// fieldPath is an identifier or a selection, relative to the enclosing nested filter.
type fieldPath string

func NewFilterer(logger *zap.Logger) (Filterer, error) {
	env, err := cel.NewEnv(
		cel.ClearMacros(),
		cel.Declarations(decls.NewFunction(
			nestedFilter, decls.NewOverload(nestedFilter, []*expr.Type{decls.Any}, decls.Any))),
	)
	if err != nil {
		return nil, err
	}

	return &filterer{
		logger: logger,
		env:    env,
	}, nil
}

// ParseExpression parses filter and builds the equivalent predicate with the builders of scope,
// converting constants to the value type of the field they are compared to.
func (f *filterer) ParseExpression(scope *search.IndexScope, filter string) (search.SearchPredicate, error) {
	log := f.logger.Named("ParseExpression").With(zap.String("filter", filter))

	parsedExpr, issues := f.env.Parse(filter)
	if issues != nil && len(issues.Errors()) > 0 {
		var errs *multierror.Error
		for _, e := range issues.Errors() {
			errs = multierror.Append(errs, fmt.Errorf("%s (%d:%d)", e.Message, e.Location.Line(), e.Location.Column()))
		}

		return nil, &search.SearchError{
			Kind:    search.ErrorKindInvalidArgument,
			Message: "error parsing filter",
			Context: search.EventContext{Indexes: scope.IndexNames()},
			Err:     errs.ErrorOrNil(),
		}
	}

	v := &visitor{scope: scope}
	result, err := v.visit(parsedExpr.Expr(), "")
	if err != nil {
		return nil, err
	}
	predicate, err := v.asPredicate(result, "")
	if err != nil {
		return nil, err
	}
	log.Debug("filter compiled")

	return predicate, nil
}

type visitor struct {
	scope *search.IndexScope
}

func (v *visitor) visit(expression *expr.Expr, depth string) (interface{}, error) {
	switch expression.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return fieldPath(expression.GetIdentExpr().Name), nil
	case *expr.Expr_ConstExpr:
		return v.visitConst(expression)
	case *expr.Expr_SelectExpr:
		return v.visitSelect(expression, depth)
	case *expr.Expr_CallExpr:
		return v.visitCall(expression, depth)
	default:
		return nil, search.NewError(search.ErrorKindInvalidArgument, "unrecognized expression: %v", expression)
	}
}

func (v *visitor) visitConst(expression *expr.Expr) (interface{}, error) {
	constantExpr := expression.GetConstExpr()

	switch constantExpr.ConstantKind.(type) {
	case *expr.Constant_BoolValue:
		return constantExpr.GetBoolValue(), nil
	case *expr.Constant_StringValue:
		return constantExpr.GetStringValue(), nil
	case *expr.Constant_Int64Value:
		return constantExpr.GetInt64Value(), nil
	case *expr.Constant_Uint64Value:
		return constantExpr.GetUint64Value(), nil
	case *expr.Constant_DoubleValue:
		return constantExpr.GetDoubleValue(), nil
	default:
		return nil, search.NewError(search.ErrorKindInvalidArgument, "unrecognized constant kind %T", constantExpr.ConstantKind)
	}
}

func (v *visitor) visitSelect(expression *expr.Expr, depth string) (interface{}, error) {
	selectExpr := expression.GetSelectExpr()

	operand, err := v.visit(selectExpr.Operand, depth)
	if err != nil {
		return nil, err
	}
	path, ok := operand.(fieldPath)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "cannot select '%s' from %v", selectExpr.Field, operand)
	}

	return path + "." + fieldPath(selectExpr.Field), nil
}

func (v *visitor) visitCall(expression *expr.Expr, depth string) (interface{}, error) {
	function := expression.GetCallExpr().Function
	switch function {
	case operators.LogicalAnd,
		operators.LogicalOr:
		return v.visitLogicalOperator(expression, depth)
	case operators.LogicalNot:
		return v.visitNot(expression, depth)
	case operators.Equals,
		operators.NotEquals,
		operators.Greater,
		operators.GreaterEquals,
		operators.Less,
		operators.LessEquals:
		return v.visitComparison(expression, depth)
	case overloads.Contains,
		overloads.StartsWith:
		return v.visitCallFunction(expression, depth)
	case nestedFilter:
		return v.visitNestedFilterCall(expression, depth)
	default:
		return nil, search.NewError(search.ErrorKindInvalidArgument, "unrecognized function: %s", function)
	}
}

func (v *visitor) visitLogicalOperator(expression *expr.Expr, depth string) (interface{}, error) {
	callExpr := expression.GetCallExpr()
	if len(callExpr.Args) != 2 {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "unexpected number of arguments to %s", callExpr.Function)
	}

	b := v.scope.Predicates().Bool()
	add := b.Must
	if callExpr.Function == operators.LogicalOr {
		add = b.Should
		b.MinimumShouldMatch(1)
	}
	for _, arg := range callExpr.Args {
		operand, err := v.visit(arg, depth)
		if err != nil {
			return nil, err
		}
		predicate, err := v.asPredicate(operand, depth)
		if err != nil {
			return nil, err
		}
		if err := add(predicate); err != nil {
			return nil, err
		}
	}

	return b.Build()
}

func (v *visitor) visitNot(expression *expr.Expr, depth string) (interface{}, error) {
	callExpr := expression.GetCallExpr()
	if len(callExpr.Args) != 1 {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "unexpected number of arguments to %s", callExpr.Function)
	}
	operand, err := v.visit(callExpr.Args[0], depth)
	if err != nil {
		return nil, err
	}
	predicate, err := v.asPredicate(operand, depth)
	if err != nil {
		return nil, err
	}

	return v.not(predicate)
}

func (v *visitor) not(predicate search.SearchPredicate) (search.SearchPredicate, error) {
	b := v.scope.Predicates().Bool()
	if err := b.Must(v.scope.Predicates().MatchAll()); err != nil {
		return nil, err
	}
	if err := b.MustNot(predicate); err != nil {
		return nil, err
	}

	return b.Build()
}

// mirrored gives the operator to use once the operands of a comparison are swapped.
var mirrored = map[string]string{
	operators.Equals:        operators.Equals,
	operators.NotEquals:     operators.NotEquals,
	operators.Greater:       operators.Less,
	operators.GreaterEquals: operators.LessEquals,
	operators.Less:          operators.Greater,
	operators.LessEquals:    operators.GreaterEquals,
}

func (v *visitor) visitComparison(expression *expr.Expr, depth string) (interface{}, error) {
	callExpr := expression.GetCallExpr()
	if len(callExpr.Args) != 2 {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "unexpected number of arguments to binary operator")
	}

	lhs, err := v.visit(callExpr.Args[0], depth)
	if err != nil {
		return nil, err
	}
	rhs, err := v.visit(callExpr.Args[1], depth)
	if err != nil {
		return nil, err
	}

	function := callExpr.Function
	path, isPath := lhs.(fieldPath)
	value := rhs
	if !isPath {
		path, isPath = rhs.(fieldPath)
		value = lhs
		function = mirrored[function]
	}
	if !isPath {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "expected a field on one side of %v %s %v", lhs, callExpr.Function, rhs)
	}
	if _, ok := value.(fieldPath); ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "cannot compare fields '%s' and '%s'", lhs, rhs)
	}
	if _, ok := value.(search.SearchPredicate); ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "cannot compare field '%s' to an expression", path)
	}

	absolutePath := addPath(depth, string(path))
	switch function {
	case operators.Equals:
		return v.match(absolutePath, value)
	case operators.NotEquals:
		predicate, err := v.match(absolutePath, value)
		if err != nil {
			return nil, err
		}
		return v.not(predicate)
	}

	field, err := v.scope.Field(absolutePath)
	if err != nil {
		return nil, err
	}
	bound, err := coerce(field, value)
	if err != nil {
		return nil, err
	}

	var r search.Range
	switch function {
	case operators.Greater:
		r = search.RangeGreaterThan(bound)
	case operators.GreaterEquals:
		r = search.RangeAtLeast(bound)
	case operators.Less:
		r = search.RangeLessThan(bound)
	case operators.LessEquals:
		r = search.RangeAtMost(bound)
	}

	return v.within(absolutePath, r)
}

func (v *visitor) match(absolutePath string, value interface{}) (search.SearchPredicate, error) {
	field, err := v.scope.Field(absolutePath)
	if err != nil {
		return nil, err
	}
	converted, err := coerce(field, value)
	if err != nil {
		return nil, err
	}
	b, err := v.scope.MatchPredicate(absolutePath, search.ValueConvertYes)
	if err != nil {
		return nil, err
	}
	if err := b.Value(converted); err != nil {
		return nil, err
	}

	return b.Build()
}

func (v *visitor) within(absolutePath string, r search.Range) (search.SearchPredicate, error) {
	b, err := v.scope.RangePredicate(absolutePath, search.ValueConvertYes)
	if err != nil {
		return nil, err
	}
	if err := b.Within(r); err != nil {
		return nil, err
	}

	return b.Build()
}

// maxRune sorts after every other character, so prefix+maxRune bounds every string starting with prefix.
const maxRune = "\U0010FFFF"

func (v *visitor) visitCallFunction(expression *expr.Expr, depth string) (interface{}, error) {
	callExpr := expression.GetCallExpr()
	if len(callExpr.Args) != 1 {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "invalid number of arguments to %s", callExpr.Function)
	}

	target, err := v.visit(callExpr.Target, depth)
	if err != nil {
		return nil, err
	}
	path, ok := target.(fieldPath)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "%s must be called on a field, not %v", callExpr.Function, target)
	}
	parsedArg, err := v.visit(callExpr.Args[0], depth)
	if err != nil {
		return nil, err
	}
	arg, ok := parsedArg.(string)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "expected %[1]v to have type string but was %[1]T", parsedArg)
	}

	absolutePath := addPath(depth, string(path))
	field, err := v.scope.Field(absolutePath)
	if err != nil {
		return nil, err
	}
	analyzed := field.Type().AnalyzerName() != ""

	switch callExpr.Function {
	case overloads.Contains:
		if !analyzed {
			return nil, search.NewFieldError(search.ErrorKindInvalidArgument, field.IndexNames(), absolutePath,
				"contains requires an analyzed text field; use == or startsWith instead")
		}
		return v.match(absolutePath, arg)
	case overloads.StartsWith:
		if analyzed {
			return nil, search.NewFieldError(search.ErrorKindInvalidArgument, field.IndexNames(), absolutePath,
				"startsWith requires a keyword field; use contains instead")
		}
		if arg == "" {
			b, err := v.scope.ExistsPredicate(absolutePath)
			if err != nil {
				return nil, err
			}
			return b.Build()
		}
		lower, err := coerce(field, arg)
		if err != nil {
			return nil, err
		}
		upper, err := coerce(field, arg+maxRune)
		if err != nil {
			return nil, err
		}
		return v.within(absolutePath, search.RangeCanonical(lower, upper))
	}

	return nil, search.NewError(search.ErrorKindInvalidArgument, "unrecognized function: %s", callExpr.Function)
}

func (v *visitor) visitNestedFilterCall(expression *expr.Expr, depth string) (interface{}, error) {
	callExpr := expression.GetCallExpr()
	if len(callExpr.Args) != 1 {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "invalid number of arguments to %s", nestedFilter)
	}

	target, err := v.visit(callExpr.Target, depth)
	if err != nil {
		return nil, err
	}
	path, ok := target.(fieldPath)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "%s must be called on an object field, not %v", nestedFilter, target)
	}
	newDepth := addPath(depth, string(path))

	maybeNestedQuery, err := v.visit(callExpr.Args[0], newDepth)
	if err != nil {
		return nil, err
	}
	nestedQuery, err := v.asPredicate(maybeNestedQuery, newDepth)
	if err != nil {
		return nil, err
	}

	return v.scope.Predicates().Nested(newDepth, nestedQuery)
}

// asPredicate accepts a bare boolean field as a shorthand for field == true.
func (v *visitor) asPredicate(value interface{}, depth string) (search.SearchPredicate, error) {
	switch value := value.(type) {
	case search.SearchPredicate:
		return value, nil
	case fieldPath:
		return v.match(addPath(depth, string(value)), true)
	default:
		return nil, search.NewError(search.ErrorKindInvalidArgument, "%v is not a filter expression", value)
	}
}

func addPath(path, field string) string {
	if path == "" || strings.HasPrefix(field, path+".") {
		return field
	}

	return path + "." + field
}
