// Package conditions evaluates task conditions against resolved field values.
//
// A condition holds when any of its rules holds, and a rule holds when all of its
// predicates hold. Evaluation is pure: the condition tree and the resolver are only read.
package conditions

import (
	"slices"
	"strconv"
	"strings"

	"github.com/dukex/flowdesk/pkg/models"
)

// Decision is the outcome of evaluating the conditions of one task.
type Decision string

const (
	DecisionNone        Decision = "none"
	DecisionSkip        Decision = "skip"
	DecisionEndWorkflow Decision = "end_workflow"
	DecisionStart       Decision = "start"
)

// Resolver gives access to the values a predicate may inspect.
type Resolver interface {
	// FieldValue returns the value of a kickoff or task output field.
	FieldValue(apiName string) (*models.FieldValue, bool)
	// TaskCompleted reports whether the task with the api name is completed.
	TaskCompleted(apiName string) bool
	// KickoffCompleted reports whether the kickoff form was submitted.
	KickoffCompleted() bool
}

// Result is the evaluation of a single condition.
type Result struct {
	APIName   string                 `json:"api_name"`
	Action    models.ConditionAction `json:"action"`
	Triggered bool                   `json:"triggered"`
}

// actionPriority orders condition evaluation: ending the workflow wins over skipping,
// skipping wins over starting.
var actionPriority = map[models.ConditionAction]int{
	models.ConditionActionEndWorkflow: 0,
	models.ConditionActionSkipTask:    1,
	models.ConditionActionStartTask:   2,
}

var actionDecision = map[models.ConditionAction]Decision{
	models.ConditionActionEndWorkflow: DecisionEndWorkflow,
	models.ConditionActionSkipTask:    DecisionSkip,
	models.ConditionActionStartTask:   DecisionStart,
}

// Evaluate returns the decision for a task. The first triggered condition in priority
// order decides, remaining conditions are not evaluated.
func Evaluate(conditions []models.ConditionTemplate, resolver Resolver) Decision {
	for _, condition := range prioritized(conditions) {
		if IsTriggered(condition, resolver) {
			return actionDecision[condition.Action]
		}
	}

	return DecisionNone
}

// EvaluateAll evaluates every condition in priority order.
func EvaluateAll(conditions []models.ConditionTemplate, resolver Resolver) []Result {
	ordered := prioritized(conditions)
	results := make([]Result, 0, len(ordered))

	for _, condition := range ordered {
		results = append(results, Result{
			APIName:   condition.APIName,
			Action:    condition.Action,
			Triggered: IsTriggered(condition, resolver),
		})
	}

	return results
}

// IsTriggered reports whether any rule of the condition holds.
func IsTriggered(condition models.ConditionTemplate, resolver Resolver) bool {
	for _, rule := range condition.Rules {
		if ruleHolds(rule, resolver) {
			return true
		}
	}

	return false
}

func prioritized(conditions []models.ConditionTemplate) []models.ConditionTemplate {
	ordered := slices.Clone(conditions)

	slices.SortStableFunc(ordered, func(a, b models.ConditionTemplate) int {
		if pa, pb := actionPriority[a.Action], actionPriority[b.Action]; pa != pb {
			return pa - pb
		}

		return a.Order - b.Order
	})

	return ordered
}

func ruleHolds(rule models.RuleTemplate, resolver Resolver) bool {
	if len(rule.Predicates) == 0 {
		return false
	}

	for _, predicate := range rule.Predicates {
		if !PredicateHolds(predicate, resolver) {
			return false
		}
	}

	return true
}

// PredicateHolds evaluates a single predicate.
func PredicateHolds(predicate models.PredicateTemplate, resolver Resolver) bool {
	switch predicate.FieldType {
	case models.PredicateFieldTask:
		return predicate.Operator == models.OperatorCompleted && resolver.TaskCompleted(predicate.Field)
	case models.PredicateFieldKickoff:
		return predicate.Operator == models.OperatorCompleted && resolver.KickoffCompleted()
	}

	value, ok := resolver.FieldValue(predicate.Field)
	present := ok && value != nil && !value.IsEmpty()

	switch predicate.Operator {
	case models.OperatorExist:
		return present
	case models.OperatorNotExist:
		return !present
	case models.OperatorEqual:
		return present && equals(models.FieldType(predicate.FieldType), value, predicateValue(predicate))
	case models.OperatorNotEqual:
		return !present || !equals(models.FieldType(predicate.FieldType), value, predicateValue(predicate))
	case models.OperatorContain:
		return present && contains(models.FieldType(predicate.FieldType), value, predicateValue(predicate))
	case models.OperatorNotContain:
		return !present || !contains(models.FieldType(predicate.FieldType), value, predicateValue(predicate))
	case models.OperatorMoreThan, models.OperatorLessThan:
		if !present {
			return false
		}

		cmp, ok := compareNumbers(value.Value, predicateValue(predicate))
		if !ok {
			return false
		}

		if predicate.Operator == models.OperatorMoreThan {
			return cmp > 0
		}

		return cmp < 0
	default:
		return false
	}
}

func predicateValue(predicate models.PredicateTemplate) string {
	if predicate.Value == nil {
		return ""
	}

	return strings.TrimSpace(*predicate.Value)
}

func equals(fieldType models.FieldType, value *models.FieldValue, want string) bool {
	switch fieldType {
	case models.FieldTypeCheckbox:
		return len(value.Selections) == 1 && value.Selections[0] == want
	case models.FieldTypeRadio, models.FieldTypeDropdown:
		return value.HasSelection(want)
	case models.FieldTypeNumber, models.FieldTypeDate:
		cmp, ok := compareNumbers(value.Value, want)

		return ok && cmp == 0
	default:
		return value.Value == want
	}
}

func contains(fieldType models.FieldType, value *models.FieldValue, want string) bool {
	if fieldType.IsSelection() {
		return value.HasSelection(want)
	}

	return strings.Contains(strings.ToLower(value.Value), strings.ToLower(want))
}

// compareNumbers returns -1, 0 or 1 and false when an operand is not a number.
func compareNumbers(a, b string) (int, bool) {
	x, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	y, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)

	switch {
	case errA != nil || errB != nil:
		return 0, false
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	default:
		return 0, true
	}
}
