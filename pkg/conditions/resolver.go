package conditions

import "github.com/dukex/flowdesk/pkg/models"

// MapResolver is a Resolver backed by plain maps.
type MapResolver struct {
	Fields         map[string]*models.FieldValue
	CompletedTasks map[string]bool
	Kickoff        bool
}

// NewMapResolver creates an empty resolver for a submitted kickoff.
func NewMapResolver() *MapResolver {
	return &MapResolver{
		Fields:         make(map[string]*models.FieldValue),
		CompletedTasks: make(map[string]bool),
		Kickoff:        true,
	}
}

// AddFields registers field values by api name.
func (r *MapResolver) AddFields(values map[string]*models.FieldValue) {
	for apiName, value := range values {
		r.Fields[apiName] = value
	}
}

func (r *MapResolver) FieldValue(apiName string) (*models.FieldValue, bool) {
	value, ok := r.Fields[apiName]

	return value, ok
}

func (r *MapResolver) TaskCompleted(apiName string) bool {
	return r.CompletedTasks[apiName]
}

func (r *MapResolver) KickoffCompleted() bool {
	return r.Kickoff
}
