package services

import (
	"context"
	"errors"

	"github.com/dukex/flowdesk/pkg/conditions"
	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/otelhelper"
	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
)

// Templates saves workflow blueprints.
type Templates struct {
	deps     Dependencies
	validate *validator.Validate
}

// NewTemplates returns the template service.
func NewTemplates(deps Dependencies) *Templates {
	return &Templates{
		deps:     deps.withDefaults("templates"),
		validate: validator.New(),
	}
}

// Save validates and stores the template. New templates may be created by account owners
// and admins, existing ones are also editable by their owners.
func (s *Templates) Save(ctx context.Context, rc RequestContext, tpl *models.Template) (*models.Template, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.deps.Tracer, "templates.save",
		attribute.Int64(otelhelper.TemplateIDKey, tpl.ID),
		attribute.Int64(otelhelper.AccountIDKey, rc.accountID()),
	)
	defer span.End()

	tpl.AccountID = rc.accountID()

	if err := s.Validate(tpl); err != nil {
		otelhelper.SetError(span, err)

		return nil, wrap("templates.save", err)
	}

	err := s.deps.Persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		now := rc.now()

		if tpl.ID == 0 {
			if !rc.User.IsAccountOwner && !rc.User.IsAdmin {
				return permission(ErrPermissionDenied)
			}

			tpl.CreatedAt = now
		} else {
			existing, err := s.editable(ctx, tx, rc, tpl.ID)
			if err != nil {
				return err
			}

			tpl.CreatedAt = existing.CreatedAt
		}

		tpl.UpdatedAt = now

		return tx.Templates().Save(ctx, tpl)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, wrap("templates.save", err)
	}

	s.deps.Logger.DebugContext(ctx, "Template saved", "template_id", tpl.ID, "tasks", len(tpl.Tasks))

	return tpl, nil
}

// Activate makes the template runnable, or stops new runs when active is false.
func (s *Templates) Activate(ctx context.Context, rc RequestContext, templateID int64, active bool) (*models.Template, error) {
	var tpl *models.Template

	err := s.deps.Persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error

		tpl, err = s.editable(ctx, tx, rc, templateID)
		if err != nil {
			return err
		}

		if active && tpl.IsLegacy {
			return conflict(ErrTemplateNotActive)
		}

		tpl.IsActive = active
		tpl.UpdatedAt = rc.now()

		return tx.Templates().Save(ctx, tpl)
	})
	if err != nil {
		return nil, wrap("templates.activate", err)
	}

	return tpl, nil
}

func (s *Templates) editable(ctx context.Context, tx persistence.Tx, rc RequestContext, templateID int64) (*models.Template, error) {
	tpl, err := tx.Templates().ByID(ctx, rc.accountID(), templateID)
	if persistence.IsNotFound(err) {
		return nil, notFound("template", templateID, err)
	}

	if err != nil {
		return nil, err
	}

	if rc.User.IsAccountOwner || rc.User.IsAdmin {
		return tpl, nil
	}

	groups, err := tx.Groups().ByMember(ctx, rc.accountID(), rc.User.ID)
	if err != nil {
		return nil, err
	}

	if !tpl.IsOwner(rc.User.ID, groups) {
		return nil, permission(ErrPermissionDenied)
	}

	return tpl, nil
}

// Validate checks the template structure, its performers and its condition trees.
func (s *Templates) Validate(tpl *models.Template) error {
	if err := s.validate.Struct(tpl); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			first := fieldErrors[0]

			return models.NewValidationError(first.Namespace(), "failed on the %q rule", first.Tag())
		}

		return err
	}

	if err := validateTasks(tpl); err != nil {
		return err
	}

	return conditions.ValidateTemplate(tpl)
}

func validateTasks(tpl *models.Template) error {
	apiNames := make(map[string]bool)
	numbers := make(map[int]bool)

	for _, field := range tpl.Kickoff.Fields {
		if apiNames[field.APIName] {
			return models.NewValidationError(field.APIName, "api name is used twice")
		}

		apiNames[field.APIName] = true
	}

	performerFields := performerFieldNames(tpl.Kickoff.Fields)

	for _, task := range tpl.SortedTasks() {
		if apiNames[task.APIName] {
			return models.NewValidationError(task.APIName, "api name is used twice")
		}

		if numbers[task.Number] {
			return models.NewValidationError(task.APIName, "task number %d is used twice", task.Number)
		}

		apiNames[task.APIName] = true
		numbers[task.Number] = true

		if len(task.RawPerformers) == 0 {
			return models.NewValidationError(task.APIName, "task needs at least one performer")
		}

		for _, raw := range task.RawPerformers {
			if err := validateRawPerformer(task.APIName, raw, performerFields); err != nil {
				return err
			}
		}

		for _, field := range task.Fields {
			if apiNames[field.APIName] {
				return models.NewValidationError(field.APIName, "api name is used twice")
			}

			apiNames[field.APIName] = true
		}

		for name := range performerFieldNames(task.Fields) {
			performerFields[name] = true
		}
	}

	return nil
}

func validateRawPerformer(taskAPIName string, raw models.RawPerformer, performerFields map[string]bool) error {
	switch raw.Type {
	case models.RawPerformerUser:
		if raw.UserID == nil {
			return models.NewValidationError(taskAPIName, "user performer needs a user id")
		}
	case models.RawPerformerGroup:
		if raw.GroupID == nil {
			return models.NewValidationError(taskAPIName, "group performer needs a group id")
		}
	case models.RawPerformerField:
		if !performerFields[raw.FieldAPIName] {
			return models.NewValidationError(taskAPIName,
				"performer field %q is not a user or group field of the kickoff or a previous task", raw.FieldAPIName)
		}
	case models.RawPerformerWorkflowStarter:
	default:
		return models.NewValidationError(taskAPIName, "unknown performer type %q", raw.Type)
	}

	return nil
}

func performerFieldNames(fields []models.FieldTemplate) map[string]bool {
	names := make(map[string]bool)

	for _, field := range fields {
		if field.Type == models.FieldTypeUser || field.Type == models.FieldTypeGroup {
			names[field.APIName] = true
		}
	}

	return names
}
