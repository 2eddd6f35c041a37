package conditions

import (
	"slices"
	"strconv"

	"github.com/dukex/flowdesk/pkg/models"
)

var allowedOperators = map[models.PredicateFieldType][]models.PredicateOperator{
	pft(models.FieldTypeString): textOperators,
	pft(models.FieldTypeText):   textOperators,
	pft(models.FieldTypeURL):    textOperators,
	pft(models.FieldTypeNumber): {
		models.OperatorEqual, models.OperatorNotEqual, models.OperatorExist, models.OperatorNotExist,
		models.OperatorMoreThan, models.OperatorLessThan,
	},
	pft(models.FieldTypeDate):     presenceAndEquality,
	pft(models.FieldTypeUser):     presenceAndEquality,
	pft(models.FieldTypeGroup):    presenceAndEquality,
	pft(models.FieldTypeCheckbox): textOperators,
	pft(models.FieldTypeRadio):    textOperators,
	pft(models.FieldTypeDropdown): textOperators,
	pft(models.FieldTypeFile):     {models.OperatorExist, models.OperatorNotExist},
	models.PredicateFieldTask:     {models.OperatorCompleted},
	models.PredicateFieldKickoff:  {models.OperatorCompleted},
}

var textOperators = []models.PredicateOperator{
	models.OperatorEqual, models.OperatorNotEqual, models.OperatorExist, models.OperatorNotExist,
	models.OperatorContain, models.OperatorNotContain,
}

var presenceAndEquality = []models.PredicateOperator{
	models.OperatorEqual, models.OperatorNotEqual, models.OperatorExist, models.OperatorNotExist,
}

func pft(t models.FieldType) models.PredicateFieldType {
	return models.PredicateFieldType(t)
}

// ValidateTemplate checks the condition trees of every template task. It is run when a
// template is saved, never while a workflow is running.
func ValidateTemplate(template *models.Template) error {
	kickoffFields := template.Kickoff.Fields
	tasks := template.SortedTasks()

	for idx, task := range tasks {
		// Only fields of the kickoff and of tasks ordered before this one are reachable.
		reachable := slices.Clone(kickoffFields)
		ancestors := make(map[string]bool, idx)

		for _, previous := range tasks[:idx] {
			reachable = append(reachable, previous.Fields...)
			ancestors[previous.APIName] = previous.Number < task.Number
		}

		for _, condition := range task.Conditions {
			if err := validateCondition(condition, reachable, ancestors); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateCondition(condition models.ConditionTemplate, fields []models.FieldTemplate, ancestors map[string]bool) error {
	if _, ok := actionPriority[condition.Action]; !ok {
		return models.NewValidationError(condition.APIName, "unknown condition action %q", condition.Action)
	}

	if len(condition.Rules) == 0 {
		return models.NewValidationError(condition.APIName, "rules: this list may not be empty")
	}

	for _, rule := range condition.Rules {
		if len(rule.Predicates) == 0 {
			return models.NewValidationError(ruleName(condition, rule), "predicates: this list may not be empty")
		}

		for _, predicate := range rule.Predicates {
			if err := validatePredicate(predicate, fields, ancestors); err != nil {
				return err
			}
		}
	}

	return nil
}

func ruleName(condition models.ConditionTemplate, rule models.RuleTemplate) string {
	if rule.APIName != "" {
		return rule.APIName
	}

	return condition.APIName
}

// validatePredicate checks one predicate against the fields and tasks it may reference.
func validatePredicate(predicate models.PredicateTemplate, fields []models.FieldTemplate, ancestors map[string]bool) error {
	apiName := predicate.APIName
	if apiName == "" {
		apiName = predicate.Field
	}

	operators, ok := allowedOperators[predicate.FieldType]
	if !ok {
		return models.NewValidationError(apiName, "unknown predicate field type %q", predicate.FieldType)
	}

	if !slices.Contains(operators, predicate.Operator) {
		return models.NewValidationError(apiName, "operator %q is not allowed for %q fields", predicate.Operator, predicate.FieldType)
	}

	switch predicate.FieldType {
	case models.PredicateFieldKickoff:
		return nil
	case models.PredicateFieldTask:
		isAncestor, found := ancestors[predicate.Field]
		if !found || !isAncestor {
			return models.NewValidationError(apiName, "task %q must be one of the preceding tasks", predicate.Field)
		}

		return nil
	}

	idx := slices.IndexFunc(fields, func(f models.FieldTemplate) bool { return f.APIName == predicate.Field })
	if idx < 0 {
		return models.NewValidationError(apiName, "field %q not found in kickoff or preceding tasks", predicate.Field)
	}

	field := fields[idx]
	if pft(field.Type) != predicate.FieldType {
		return models.NewValidationError(apiName, "field %q is of type %q, not %q", field.APIName, field.Type, predicate.FieldType)
	}

	if predicate.Operator.IsUnary() {
		return nil
	}

	if predicate.Value == nil || *predicate.Value == "" {
		return models.NewValidationError(apiName, "value is required for operator %q", predicate.Operator)
	}

	value := *predicate.Value

	switch {
	case field.Type.IsSelection():
		if _, ok := field.Selection(value); !ok {
			return models.NewValidationError(apiName, "selection %q does not belong to field %q", value, field.APIName)
		}
	case field.Type == models.FieldTypeNumber, field.Type == models.FieldTypeDate:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return models.NewValidationError(apiName, "value %q is not a number", value)
		}
	case field.Type == models.FieldTypeUser, field.Type == models.FieldTypeGroup:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return models.NewValidationError(apiName, "value %q is not a valid id", value)
		}
	}

	return nil
}
