package filter

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/pkg/connector"
)

// Variables available to where expressions, in addition to metadata columns.
const (
	VarApp             = "app"
	VarName            = "name"
	VarCategory        = "category"
	VarRating          = "rating"
	VarRated           = "rated"
	VarReviews         = "reviews"
	VarReviewRows      = "review_rows"
	VarReviewCount     = "review_count"
	VarAvgPolarity     = "avg_polarity"
	VarAvgSubjectivity = "avg_subjectivity"
	VarPositive        = "positive_reviews"
	VarNeutral         = "neutral_reviews"
	VarNegative        = "negative_reviews"
)

// compileWhere compiles a where expression. An empty expression returns a nil
// program, which accepts every record.
func compileWhere(expression string) (*vm.Program, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	program, err := expr.Compile(expression, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, &errhandling.InvalidRangeError{
			Field:      FieldWhere,
			Value:      expression,
			Constraint: "a valid boolean expression",
			Err:        err,
		}
	}
	return program, nil
}

// whereEnv builds the expression environment for one joined record.
// Metadata columns are exposed by their normalized names and never shadow
// the computed variables.
func whereEnv(app *connector.TopApp) map[string]interface{} {
	env := make(map[string]interface{}, 13+len(app.Metadata))
	for k, v := range app.Metadata {
		env[k] = v
	}
	env[VarApp] = app.ID
	env[VarName] = app.Name
	env[VarCategory] = app.Category
	env[VarRating] = app.Rating
	env[VarRated] = app.Rated
	env[VarReviews] = app.Reviews
	env[VarReviewRows] = app.ReviewAggregate.Rows
	env[VarReviewCount] = app.ReviewAggregate.Count
	env[VarAvgPolarity] = floatOrNil(app.AvgPolarity)
	env[VarAvgSubjectivity] = floatOrNil(app.AvgSubjectivity)
	env[VarPositive] = app.Positive
	env[VarNeutral] = app.Neutral
	env[VarNegative] = app.Negative
	return env
}

// evalWhere runs program against app. Runtime errors and non-boolean results
// are reported as InvalidRangeError on the where field.
func evalWhere(program *vm.Program, expression string, app *connector.TopApp) (bool, error) {
	if program == nil {
		return true, nil
	}
	out, err := expr.Run(program, whereEnv(app))
	if err != nil {
		return false, &errhandling.InvalidRangeError{
			Field:      FieldWhere,
			Value:      expression,
			Constraint: "an expression that evaluates for every record",
			Err:        fmt.Errorf("app %q: %w", app.ID, err),
		}
	}
	pass, ok := out.(bool)
	if !ok {
		return false, &errhandling.InvalidRangeError{
			Field:      FieldWhere,
			Value:      expression,
			Constraint: "a boolean expression",
			Err:        fmt.Errorf("app %q: got %T", app.ID, out),
		}
	}
	return pass, nil
}

func floatOrNil(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
