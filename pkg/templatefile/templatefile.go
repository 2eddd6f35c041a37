// Package templatefile reads workflow templates exchanged as JSON documents.
package templatefile

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/flowdesk/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schema string

var ErrInvalidDocument = errors.New("invalid template document")

var schemaLoader = gojsonschema.NewStringLoader(schema)

// Load reads and parses the template document at path.
func Load(path string) (*models.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	return Parse(data)
}

// Parse checks the document against the template schema and decodes it. Durations are
// nanoseconds. The returned template has no id and no account.
func Parse(data []byte) (*models.Template, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(problems, "; "))
	}

	var tpl models.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return &tpl, nil
}
