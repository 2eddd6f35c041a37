// Package testutil provides test data builders and recording collaborators.
package testutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/persistence"
)

// NewUser creates an active account member with default values that can be overridden.
func NewUser(accountID int64, email string, overrides ...func(*models.User)) *models.User {
	first, _, _ := strings.Cut(email, "@")

	user := &models.User{
		AccountID:    accountID,
		Email:        email,
		FirstName:    strings.ToUpper(first[:1]) + first[1:],
		Type:         models.UserTypeUser,
		Status:       models.UserStatusActive,
		IsSubscribed: true,
	}

	for _, override := range overrides {
		override(user)
	}

	return user
}

// AsOwner makes the user the account owner.
func AsOwner() func(*models.User) {
	return func(u *models.User) {
		u.IsAccountOwner = true
	}
}

// AsAdmin makes the user an account admin.
func AsAdmin() func(*models.User) {
	return func(u *models.User) {
		u.IsAdmin = true
	}
}

// AsGuest makes the user a guest.
func AsGuest() func(*models.User) {
	return func(u *models.User) {
		u.Type = models.UserTypeGuest
	}
}

// WithStatus sets the membership status.
func WithStatus(status models.UserStatus) func(*models.User) {
	return func(u *models.User) {
		u.Status = status
	}
}

// WithTransferPending marks the user as moved from another account.
func WithTransferPending() func(*models.User) {
	return func(u *models.User) {
		u.TransferPending = true
	}
}

// WithName sets the first and last name.
func WithName(first, last string) func(*models.User) {
	return func(u *models.User) {
		u.FirstName = first
		u.LastName = last
	}
}

// NewTemplate creates an active template owned by the user.
func NewTemplate(accountID, ownerID int64, tasks ...models.TemplateTask) *models.Template {
	return &models.Template{
		AccountID: accountID,
		Name:      "Onboarding",
		IsActive:  true,
		Owners:    []models.TemplateOwner{{Type: models.OwnerTypeUser, UserID: &ownerID}},
		Tasks:     tasks,
	}
}

// NewTask creates a template task named after its number.
func NewTask(number int, apiName string, performers ...models.RawPerformer) models.TemplateTask {
	return models.TemplateTask{
		APIName:       apiName,
		Number:        number,
		Name:          fmt.Sprintf("Task %d", number),
		RawPerformers: performers,
	}
}

func UserPerformer(id int64) models.RawPerformer {
	return models.RawPerformer{Type: models.RawPerformerUser, UserID: &id}
}

func GroupPerformer(id int64) models.RawPerformer {
	return models.RawPerformer{Type: models.RawPerformerGroup, GroupID: &id}
}

func FieldPerformer(apiName string) models.RawPerformer {
	return models.RawPerformer{Type: models.RawPerformerField, FieldAPIName: apiName}
}

func StarterPerformer() models.RawPerformer {
	return models.RawPerformer{Type: models.RawPerformerWorkflowStarter}
}

// Field creates a field template named after its api name.
func Field(apiName string, fieldType models.FieldType, required bool, selections ...models.Selection) models.FieldTemplate {
	return models.FieldTemplate{
		APIName:    apiName,
		Name:       apiName,
		Type:       fieldType,
		IsRequired: required,
		Selections: selections,
	}
}

// Condition creates a condition with a single rule holding every predicate.
func Condition(apiName string, action models.ConditionAction, predicates ...models.PredicateTemplate) models.ConditionTemplate {
	return models.ConditionTemplate{
		APIName: apiName,
		Action:  action,
		Rules:   []models.RuleTemplate{{APIName: apiName + "-rule", Predicates: predicates}},
	}
}

// Predicate creates a predicate. An empty value is left unset.
func Predicate(fieldType models.PredicateFieldType, field string, operator models.PredicateOperator, value string) models.PredicateTemplate {
	predicate := models.PredicateTemplate{
		APIName:   field + "-" + string(operator),
		FieldType: fieldType,
		Field:     field,
		Operator:  operator,
	}

	if value != "" {
		predicate.Value = &value
	}

	return predicate
}

// Seed stores users, groups, templates and attachments in one transaction. IDs are
// assigned to the given entities.
func Seed(ctx context.Context, p persistence.Persistence, entities ...any) error {
	return p.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		for _, entity := range entities {
			var err error

			switch e := entity.(type) {
			case *models.User:
				err = tx.Users().Save(ctx, e)
			case *models.Group:
				err = tx.Groups().Save(ctx, e)
			case *models.Template:
				err = tx.Templates().Save(ctx, e)
			case *models.FileAttachment:
				err = tx.Attachments().Save(ctx, e)
			default:
				err = fmt.Errorf("cannot seed %T", entity)
			}

			if err != nil {
				return err
			}
		}

		return nil
	})
}
