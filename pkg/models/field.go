package models

import (
	"slices"
	"strings"
)

// FieldType is the data type of a kickoff or task output field.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeText     FieldType = "text"
	FieldTypeURL      FieldType = "url"
	FieldTypeNumber   FieldType = "number"
	FieldTypeDate     FieldType = "date"
	FieldTypeCheckbox FieldType = "checkbox"
	FieldTypeRadio    FieldType = "radio"
	FieldTypeDropdown FieldType = "dropdown"
	FieldTypeUser     FieldType = "user"
	FieldTypeGroup    FieldType = "group"
	FieldTypeFile     FieldType = "file"
)

// FieldTypes lists every supported field type.
var FieldTypes = []FieldType{
	FieldTypeString,
	FieldTypeText,
	FieldTypeURL,
	FieldTypeNumber,
	FieldTypeDate,
	FieldTypeCheckbox,
	FieldTypeRadio,
	FieldTypeDropdown,
	FieldTypeUser,
	FieldTypeGroup,
	FieldTypeFile,
}

// IsSelection reports whether values of the type are picked from a selection set.
func (t FieldType) IsSelection() bool {
	return t == FieldTypeCheckbox || t == FieldTypeRadio || t == FieldTypeDropdown
}

// Selection is one option of a checkbox, radio or dropdown field.
type Selection struct {
	APIName string `json:"api_name" validate:"required"`
	Value   string `json:"value"    validate:"required"`
}

// FieldTemplate describes a field collected at kickoff or on task completion.
type FieldTemplate struct {
	APIName    string      `json:"api_name"             validate:"required"`
	Name       string      `json:"name"                 validate:"required"`
	Type       FieldType   `json:"type"                 validate:"required"`
	IsRequired bool        `json:"is_required"`
	Selections []Selection `json:"selections,omitempty" validate:"dive"`
}

// Selection returns the option with the given api name.
func (f *FieldTemplate) Selection(apiName string) (Selection, bool) {
	for _, s := range f.Selections {
		if s.APIName == apiName {
			return s, true
		}
	}

	return Selection{}, false
}

// FieldValue is a resolved, typed value of a field in a running workflow.
type FieldValue struct {
	APIName string    `json:"api_name"`
	Name    string    `json:"name"`
	Type    FieldType `json:"type"`

	// Value holds the canonical string form: text, formatted number, unix timestamp,
	// or the decimal id of a user or group.
	Value string `json:"value,omitempty"`

	// Display is the human readable form used for interpolation.
	Display string `json:"display,omitempty"`

	Selections    []string `json:"selections,omitempty"` // Selected option api names
	UserID        *int64   `json:"user_id,omitempty"`
	GroupID       *int64   `json:"group_id,omitempty"`
	AttachmentIDs []int64  `json:"attachment_ids,omitempty"`

	// Markdown is the markdown rendering of file fields, used in task descriptions.
	Markdown string `json:"markdown,omitempty"`
}

// IsEmpty reports whether the field holds no value.
func (v *FieldValue) IsEmpty() bool {
	return strings.TrimSpace(v.Value) == "" &&
		len(v.Selections) == 0 &&
		len(v.AttachmentIDs) == 0 &&
		v.UserID == nil &&
		v.GroupID == nil
}

// HasSelection reports whether the option is selected.
func (v *FieldValue) HasSelection(apiName string) bool {
	return slices.Contains(v.Selections, apiName)
}
