// Package memory provides an in-process persistence implementation with serialized transactions.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dukex/flowdesk/pkg/persistence"
)

// CommitHook receives the serialized state of every committed transaction. A hook error
// aborts the commit.
type CommitHook func(ctx context.Context, snapshot []byte) error

// Persistence implements the persistence.Persistence interface in memory. Transactions
// run one at a time against a copy of the state that replaces it on commit, so a
// failed unit of work leaves nothing behind. WithTx must not be called from inside fn.
type Persistence struct {
	mu       sync.Mutex
	state    *state
	onCommit CommitHook
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{state: newState()}
}

// Restore creates a store from a snapshot produced by a CommitHook.
func Restore(snapshot []byte, hook CommitHook) (*Persistence, error) {
	s := newState()

	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, s); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}

		s.ensure()
	}

	return &Persistence{state: s, onCommit: hook}, nil
}

func (p *Persistence) WithTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	working := p.state.clone()

	if err := fn(ctx, &tx{state: working}); err != nil {
		return err
	}

	if p.onCommit != nil {
		snapshot, err := json.Marshal(working)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}

		if err := p.onCommit(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
	}

	p.state = working

	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

type table map[int64]json.RawMessage

type state struct {
	Users       table            `json:"users"`
	Groups      table            `json:"groups"`
	Templates   table            `json:"templates"`
	Workflows   table            `json:"workflows"`
	Tasks       table            `json:"tasks"`
	Performers  table            `json:"performers"`
	Events      table            `json:"events"`
	Attachments table            `json:"attachments"`
	Sequences   map[string]int64 `json:"sequences"`
}

func newState() *state {
	s := &state{}
	s.ensure()

	return s
}

func (s *state) ensure() {
	for _, t := range []*table{&s.Users, &s.Groups, &s.Templates, &s.Workflows, &s.Tasks, &s.Performers, &s.Events, &s.Attachments} {
		if *t == nil {
			*t = make(table)
		}
	}

	if s.Sequences == nil {
		s.Sequences = make(map[string]int64)
	}
}

// clone copies the maps only. Stored values are immutable encoded documents.
func (s *state) clone() *state {
	return &state{
		Users:       maps.Clone(s.Users),
		Groups:      maps.Clone(s.Groups),
		Templates:   maps.Clone(s.Templates),
		Workflows:   maps.Clone(s.Workflows),
		Tasks:       maps.Clone(s.Tasks),
		Performers:  maps.Clone(s.Performers),
		Events:      maps.Clone(s.Events),
		Attachments: maps.Clone(s.Attachments),
		Sequences:   maps.Clone(s.Sequences),
	}
}

func (s *state) next(name string) int64 {
	s.Sequences[name]++

	return s.Sequences[name]
}

func load[T any](t table, id int64) (*T, bool, error) {
	raw, ok := t[id]
	if !ok {
		return nil, false, nil
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, fmt.Errorf("failed to decode %d: %w", id, err)
	}

	return &v, true, nil
}

func store(t table, id int64, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %d: %w", id, err)
	}

	t[id] = raw

	return nil
}

// scan decodes the rows matching keep, ordered by id.
func scan[T any](t table, keep func(*T) bool) ([]*T, error) {
	ids := slices.Sorted(maps.Keys(t))
	result := make([]*T, 0)

	for _, id := range ids {
		v, _, err := load[T](t, id)
		if err != nil {
			return nil, err
		}

		if keep == nil || keep(v) {
			result = append(result, v)
		}
	}

	return result, nil
}

type tx struct {
	state *state
}

func (t *tx) Users() persistence.UserRepository             { return &userRepository{state: t.state} }
func (t *tx) Groups() persistence.GroupRepository           { return &groupRepository{state: t.state} }
func (t *tx) Templates() persistence.TemplateRepository     { return &templateRepository{state: t.state} }
func (t *tx) Workflows() persistence.WorkflowRepository     { return &workflowRepository{state: t.state} }
func (t *tx) Tasks() persistence.TaskRepository             { return &taskRepository{state: t.state} }
func (t *tx) Performers() persistence.PerformerRepository   { return &performerRepository{state: t.state} }
func (t *tx) Events() persistence.EventRepository           { return &eventRepository{state: t.state} }
func (t *tx) Attachments() persistence.AttachmentRepository { return &attachmentRepository{state: t.state} }
