// Package template interpolates field values into workflow and task names and descriptions.
package template

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukex/flowdesk/pkg/models"
)

const (
	// DateToken renders the current date.
	DateToken = "date"
	// TemplateNameToken renders the name of the template the workflow was started from.
	TemplateNameToken = "template-name"

	// DefaultDateLayout is used when the context carries no layout.
	DefaultDateLayout = "Jan 02, 2006 03:04PM"

	ellipsis = "…"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_-]+)\s*\}\}`)

// Context carries everything a template may reference.
type Context struct {
	TemplateName string
	Now          time.Time
	Location     *time.Location
	DateLayout   string
	Values       map[string]*models.FieldValue

	// Markdown renders file fields as markdown links, used for task descriptions.
	Markdown bool
}

// Render substitutes {{field-api-name}} tokens and the system tokens. Unknown fields
// render as an empty string.
func Render(input string, ctx Context) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return tokenPattern.ReplaceAllStringFunc(input, func(token string) string {
		name := tokenPattern.FindStringSubmatch(token)[1]

		switch name {
		case DateToken:
			return formatDate(ctx, ctx.Now)
		case TemplateNameToken:
			return ctx.TemplateName
		}

		value, ok := ctx.Values[name]
		if !ok || value == nil {
			return ""
		}

		return renderValue(value, ctx)
	})
}

// NeedsRendering reports whether the input contains interpolation tokens.
func NeedsRendering(input string) bool {
	return tokenPattern.MatchString(input)
}

func renderValue(value *models.FieldValue, ctx Context) string {
	switch value.Type {
	case models.FieldTypeDate:
		ts, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return value.Value
		}

		return formatDate(ctx, time.Unix(int64(ts), 0))
	case models.FieldTypeFile:
		if ctx.Markdown && value.Markdown != "" {
			return value.Markdown
		}
	}

	if value.Display != "" {
		return value.Display
	}

	return value.Value
}

func formatDate(ctx Context, t time.Time) string {
	layout := ctx.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}

	if ctx.Location != nil {
		t = t.In(ctx.Location)
	} else {
		t = t.UTC()
	}

	return t.Format(layout)
}

// Truncate shortens s to at most limit runes, ending with an ellipsis. The cut is moved
// back to the last space when that keeps more than half of the allowed length.
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)
	cut := string(runes[:limit-1])

	if idx := strings.LastIndex(cut, " "); idx > 0 && utf8.RuneCountInString(cut[:idx]) > (limit-1)/2 {
		cut = cut[:idx]
	}

	return strings.TrimRight(cut, " ") + ellipsis
}
