// Package fields coerces raw kickoff and task output values into typed field values.
package fields

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// Lookup resolves the entities a field value may reference. Implementations return a
// persistence not found error for entities outside of the caller's account.
type Lookup interface {
	User(ctx context.Context, id int64) (*models.User, error)
	Group(ctx context.Context, id int64) (*models.Group, error)
	Attachment(ctx context.Context, id int64) (*models.FileAttachment, error)
}

// Coercer turns raw values into field values.
type Coercer struct {
	validate *validator.Validate
}

func NewCoercer() *Coercer {
	return &Coercer{validate: validator.New()}
}

// CoerceAll coerces the values of every field. Keys without a matching field are ignored.
func (c *Coercer) CoerceAll(ctx context.Context, fields []models.FieldTemplate, raw map[string]any, lookup Lookup) (map[string]*models.FieldValue, error) {
	values := make(map[string]*models.FieldValue, len(fields))

	for _, field := range fields {
		value, err := c.Coerce(ctx, field, raw[field.APIName], lookup)
		if err != nil {
			return nil, err
		}

		if value != nil {
			values[field.APIName] = value
		}
	}

	return values, nil
}

// Coerce validates raw against the field type. It returns nil when an optional field
// was left empty.
func (c *Coercer) Coerce(ctx context.Context, field models.FieldTemplate, raw any, lookup Lookup) (*models.FieldValue, error) {
	if isBlank(raw) {
		if field.IsRequired {
			return nil, models.NewValidationError(field.APIName, "value is required")
		}

		return nil, nil
	}

	value := &models.FieldValue{APIName: field.APIName, Name: field.Name, Type: field.Type}

	var err error

	switch field.Type {
	case models.FieldTypeString, models.FieldTypeText:
		err = coerceText(value, raw)
	case models.FieldTypeURL:
		err = c.coerceURL(value, raw)
	case models.FieldTypeNumber:
		err = coerceNumber(value, raw)
	case models.FieldTypeDate:
		err = coerceDate(value, raw)
	case models.FieldTypeCheckbox, models.FieldTypeRadio, models.FieldTypeDropdown:
		err = coerceSelections(value, field, raw)
	case models.FieldTypeUser:
		err = coerceUser(ctx, value, raw, lookup)
	case models.FieldTypeGroup:
		err = coerceGroup(ctx, value, raw, lookup)
	case models.FieldTypeFile:
		err = coerceFiles(ctx, value, raw, lookup)
	default:
		err = invalidf("unsupported field type %q", field.Type)
	}

	if err != nil {
		if invalid, ok := models.AsValidationError(err); ok && invalid.APIName == "" {
			invalid.APIName = field.APIName
		}

		return nil, err
	}

	return value, nil
}

// invalidf builds a validation error; Coerce fills in the field api name.
func invalidf(format string, args ...any) error {
	return models.NewValidationError("", format, args...)
}

func isBlank(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case []int64:
		return len(v) == 0
	}

	return false
}

func coerceText(value *models.FieldValue, raw any) error {
	s, ok := raw.(string)
	if !ok {
		return invalidf("must be a string")
	}

	value.Value = s

	return nil
}

func (c *Coercer) coerceURL(value *models.FieldValue, raw any) error {
	s, ok := raw.(string)
	if !ok {
		return invalidf("must be a string")
	}

	if err := c.validate.Var(s, "url"); err != nil {
		return invalidf("%q is not a valid url", s)
	}

	value.Value = s

	return nil
}

func coerceNumber(value *models.FieldValue, raw any) error {
	n, ok := toFloat(raw)
	if !ok {
		return invalidf("%v is not a number", raw)
	}

	value.Value = strconv.FormatFloat(n, 'f', -1, 64)
	value.Display = value.Value

	return nil
}

// coerceDate accepts unix timestamps, numeric strings included.
func coerceDate(value *models.FieldValue, raw any) error {
	ts, ok := toFloat(raw)
	if !ok {
		return invalidf("%v is not a unix timestamp", raw)
	}

	value.Value = strconv.FormatInt(int64(math.Floor(ts)), 10)

	return nil
}

func coerceSelections(value *models.FieldValue, field models.FieldTemplate, raw any) error {
	var picked []string

	switch v := raw.(type) {
	case string:
		picked = []string{v}
	case []string:
		picked = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return invalidf("selection %v must be a string", item)
			}

			picked = append(picked, s)
		}
	default:
		return invalidf("must be a selection api name")
	}

	if field.Type != models.FieldTypeCheckbox && len(picked) > 1 {
		return invalidf("only one selection is allowed")
	}

	names := make([]string, 0, len(picked))

	for _, apiName := range picked {
		selection, ok := field.Selection(apiName)
		if !ok {
			return invalidf("selection %q does not belong to the field", apiName)
		}

		if value.HasSelection(apiName) {
			continue
		}

		value.Selections = append(value.Selections, apiName)
		names = append(names, selection.Value)
	}

	value.Display = strings.Join(names, ", ")
	value.Value = strings.Join(value.Selections, ",")

	return nil
}

func coerceUser(ctx context.Context, value *models.FieldValue, raw any, lookup Lookup) error {
	id, ok := toID(raw)
	if !ok {
		return invalidf("%v is not a valid user id", raw)
	}

	user, err := lookup.User(ctx, id)
	if persistence.IsNotFound(err) {
		return invalidf("user %d not found", id)
	}

	if err != nil {
		return err
	}

	if user.Status == models.UserStatusInactive {
		return invalidf("user %d is not active", id)
	}

	value.UserID = &user.ID
	value.Value = strconv.FormatInt(user.ID, 10)
	value.Display = user.FullName()

	return nil
}

func coerceGroup(ctx context.Context, value *models.FieldValue, raw any, lookup Lookup) error {
	id, ok := toID(raw)
	if !ok {
		return invalidf("%v is not a valid group id", raw)
	}

	group, err := lookup.Group(ctx, id)
	if persistence.IsNotFound(err) {
		return invalidf("group %d not found", id)
	}

	if err != nil {
		return err
	}

	value.GroupID = &group.ID
	value.Value = strconv.FormatInt(group.ID, 10)
	value.Display = group.Name

	return nil
}

func coerceFiles(ctx context.Context, value *models.FieldValue, raw any, lookup Lookup) error {
	var items []any

	switch v := raw.(type) {
	case []any:
		items = v
	case []int64:
		for _, id := range v {
			items = append(items, id)
		}
	default:
		items = []any{v}
	}

	names := make([]string, 0, len(items))
	links := make([]string, 0, len(items))

	for _, item := range items {
		id, ok := toID(item)
		if !ok {
			return invalidf("%v is not a valid attachment id", item)
		}

		attachment, err := lookup.Attachment(ctx, id)
		if persistence.IsNotFound(err) {
			return invalidf("attachment %d not found", id)
		}

		if err != nil {
			return err
		}

		if attachment.IsBound() {
			return invalidf("attachment %d is already in use", id)
		}

		value.AttachmentIDs = append(value.AttachmentIDs, attachment.ID)
		names = append(names, attachment.Name)
		links = append(links, fmt.Sprintf("[%s](%s)", attachment.Name, attachment.URL))
	}

	value.Display = strings.Join(names, ", ")
	value.Markdown = strings.Join(links, ", ")

	return nil
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}

	return 0, false
}

func toID(raw any) (int64, bool) {
	f, ok := toFloat(raw)
	if !ok || f <= 0 || f != math.Trunc(f) {
		return 0, false
	}

	return int64(f), true
}

// TxLookup resolves references through the repositories of a transaction.
type TxLookup struct {
	Tx        persistence.Tx
	AccountID int64
}

func (l TxLookup) User(ctx context.Context, id int64) (*models.User, error) {
	return l.Tx.Users().ByID(ctx, l.AccountID, id)
}

func (l TxLookup) Group(ctx context.Context, id int64) (*models.Group, error) {
	return l.Tx.Groups().ByID(ctx, l.AccountID, id)
}

func (l TxLookup) Attachment(ctx context.Context, id int64) (*models.FileAttachment, error) {
	return l.Tx.Attachments().ByID(ctx, l.AccountID, id)
}
