package models

// ConditionAction is what happens to a task when its condition is triggered.
type ConditionAction string

const (
	ConditionActionSkipTask    ConditionAction = "skip_task"
	ConditionActionEndWorkflow ConditionAction = "end_process"
	ConditionActionStartTask   ConditionAction = "start_task"
)

// PredicateFieldType is the type of the value a predicate inspects.
// It extends FieldType with task and kickoff completion checks.
type PredicateFieldType string

const (
	PredicateFieldTask    PredicateFieldType = "task"
	PredicateFieldKickoff PredicateFieldType = "kickoff"
)

// PredicateOperator is the comparison a predicate applies.
type PredicateOperator string

const (
	OperatorEqual      PredicateOperator = "equals"
	OperatorNotEqual   PredicateOperator = "not_equals"
	OperatorExist      PredicateOperator = "exists"
	OperatorNotExist   PredicateOperator = "not_exists"
	OperatorContain    PredicateOperator = "contains"
	OperatorNotContain PredicateOperator = "not_contains"
	OperatorMoreThan   PredicateOperator = "more_than"
	OperatorLessThan   PredicateOperator = "less_than"
	OperatorCompleted  PredicateOperator = "completed"
)

// IsUnary reports whether the operator ignores the predicate value.
func (o PredicateOperator) IsUnary() bool {
	return o == OperatorExist || o == OperatorNotExist || o == OperatorCompleted
}

// ConditionTemplate attaches an action to a task, triggered when any rule holds.
type ConditionTemplate struct {
	APIName string          `json:"api_name" validate:"required"`
	Action  ConditionAction `json:"action"   validate:"required,oneof=skip_task end_process start_task"`
	Order   int             `json:"order"`
	Rules   []RuleTemplate  `json:"rules"`
}

// RuleTemplate holds when all of its predicates hold.
type RuleTemplate struct {
	APIName    string              `json:"api_name"`
	Predicates []PredicateTemplate `json:"predicates"`
}

// PredicateTemplate compares one field, task or the kickoff against a value.
type PredicateTemplate struct {
	APIName   string             `json:"api_name"`
	FieldType PredicateFieldType `json:"field_type" validate:"required"`
	Field     string             `json:"field"` // Field or task api name, empty for kickoff
	Operator  PredicateOperator  `json:"operator"   validate:"required"`
	Value     *string            `json:"value,omitempty"`
}
