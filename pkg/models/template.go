package models

import (
	"slices"
	"time"
)

// OwnerType is the kind of a template owner.
type OwnerType string

const (
	OwnerTypeUser  OwnerType = "user"
	OwnerTypeGroup OwnerType = "group"
)

// TemplateOwner grants a user or a group edit rights on a template.
type TemplateOwner struct {
	Type    OwnerType `json:"type"               validate:"required,oneof=user group"`
	UserID  *int64    `json:"user_id,omitempty"`
	GroupID *int64    `json:"group_id,omitempty"`
}

// RawPerformerType tells how a template task performer is resolved at run time.
type RawPerformerType string

const (
	RawPerformerUser            RawPerformerType = "user"
	RawPerformerGroup           RawPerformerType = "group"
	RawPerformerField           RawPerformerType = "field"
	RawPerformerWorkflowStarter RawPerformerType = "workflow_starter"
)

// RawPerformer is a performer declaration on a template task.
type RawPerformer struct {
	Type         RawPerformerType `json:"type"                     validate:"required,oneof=user group field workflow_starter"`
	UserID       *int64           `json:"user_id,omitempty"`
	GroupID      *int64           `json:"group_id,omitempty"`
	FieldAPIName string           `json:"field_api_name,omitempty"`
}

// Kickoff is the form filled when a workflow is started.
type Kickoff struct {
	Description string          `json:"description,omitempty"`
	Fields      []FieldTemplate `json:"fields" validate:"dive"`
}

// TemplateTask is the blueprint of one workflow step.
type TemplateTask struct {
	APIName                string              `json:"api_name"                  validate:"required"`
	Number                 int                 `json:"number"                    validate:"min=1"`
	Name                   string              `json:"name"                      validate:"required"`
	Description            string              `json:"description,omitempty"`
	RequireCompletionByAll bool                `json:"require_completion_by_all"`
	Fields                 []FieldTemplate     `json:"fields,omitempty"          validate:"dive"`
	RawPerformers          []RawPerformer      `json:"raw_performers"            validate:"dive"`
	Conditions             []ConditionTemplate `json:"conditions,omitempty"      validate:"dive"`
	DueIn                  *time.Duration      `json:"due_in,omitempty"`
}

// Template is a reusable workflow blueprint.
type Template struct {
	ID           int64           `json:"id"`
	AccountID    int64           `json:"account_id"              validate:"required"`
	Name         string          `json:"name"                    validate:"required"`
	NameTemplate string          `json:"name_template,omitempty"`
	Description  string          `json:"description,omitempty"`
	IsActive     bool            `json:"is_active"`
	IsLegacy     bool            `json:"is_legacy"`
	Owners       []TemplateOwner `json:"owners"                  validate:"required,min=1,dive"`
	Kickoff      Kickoff         `json:"kickoff"`
	Tasks        []TemplateTask  `json:"tasks"                   validate:"required,min=1,dive"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SortedTasks returns the tasks ordered by number.
func (t *Template) SortedTasks() []TemplateTask {
	tasks := slices.Clone(t.Tasks)
	slices.SortFunc(tasks, func(a, b TemplateTask) int { return a.Number - b.Number })

	return tasks
}

// Task returns the template task with the given api name.
func (t *Template) Task(apiName string) (TemplateTask, bool) {
	for _, task := range t.Tasks {
		if task.APIName == apiName {
			return task, true
		}
	}

	return TemplateTask{}, false
}

// IsOwner reports whether the user owns the template directly or through a group.
func (t *Template) IsOwner(userID int64, groups []*Group) bool {
	for _, owner := range t.Owners {
		switch owner.Type {
		case OwnerTypeUser:
			if owner.UserID != nil && *owner.UserID == userID {
				return true
			}
		case OwnerTypeGroup:
			for _, group := range groups {
				if owner.GroupID != nil && group.ID == *owner.GroupID && group.HasMember(userID) {
					return true
				}
			}
		}
	}

	return false
}

// OwnerGroupIDs returns the ids of groups owning the template.
func (t *Template) OwnerGroupIDs() []int64 {
	ids := make([]int64, 0)

	for _, owner := range t.Owners {
		if owner.Type == OwnerTypeGroup && owner.GroupID != nil {
			ids = append(ids, *owner.GroupID)
		}
	}

	return ids
}
