package security

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common"
	"go.uber.org/zap"

	"github.com/datavirt/datavirt/pkg/logger"
)

// ExpressionAuthorizerOption configures an ExpressionAuthorizer.
type ExpressionAuthorizerOption func(*ExpressionAuthorizer)

// WithLogger sets the logger reporting evaluation failures.
func WithLogger(l logger.Logger) ExpressionAuthorizerOption {
	return func(a *ExpressionAuthorizer) {
		a.logger = l
	}
}

// ExpressionAuthorizer grants the permissions for which a CEL expression is true. The
// expression sees the string variables permission, datasource, table, variable and
// action, e.g.
//
//	action == "READ" && datasource == "cohort" && !table.startsWith("private")
//
// Permissions that do not parse, and evaluation failures, are denied.
type ExpressionAuthorizer struct {
	expression string
	program    cel.Program
	logger     logger.Logger
}

var _ Authorizer = (*ExpressionAuthorizer)(nil)

// NewExpressionAuthorizer compiles expression, which must be boolean.
func NewExpressionAuthorizer(expression string, opts ...ExpressionAuthorizerOption) (*ExpressionAuthorizer, error) {
	a := &ExpressionAuthorizer{expression: expression, logger: logger.NewNoopLogger()}
	for _, opt := range opts {
		opt(a)
	}

	env, err := cel.NewEnv(
		cel.Variable("permission", cel.StringType),
		cel.Variable("datasource", cel.StringType),
		cel.Variable("table", cel.StringType),
		cel.Variable("variable", cel.StringType),
		cel.Variable("action", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("authorization expression environment: %w", err)
	}

	ast, issues := env.CompileSource(common.NewStringSource(expression, "authorizer"))
	if issues != nil {
		if err := issues.Err(); err != nil {
			return nil, fmt.Errorf("compile authorization expression: %w", err)
		}
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, fmt.Errorf("expected a bool authorization expression output, but got '%s'", ast.OutputType())
	}

	a.program, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("authorization expression construction: %w", err)
	}
	return a, nil
}

func (a *ExpressionAuthorizer) IsPermitted(permission string) bool {
	p, err := ParsePermission(permission)
	if err != nil {
		a.logger.Debug("permission denied", zap.String("permission", permission), zap.Error(err))
		return false
	}

	out, _, err := a.program.Eval(map[string]any{
		"permission": permission,
		"datasource": p.Datasource,
		"table":      p.Table,
		"variable":   p.Variable,
		"action":     string(p.Action),
	})
	if err != nil {
		a.logger.Warn("failed to evaluate authorization expression",
			zap.String("expression", a.expression), zap.String("permission", permission), zap.Error(err))
		return false
	}

	allowed, ok := out.Value().(bool)
	return ok && allowed
}
