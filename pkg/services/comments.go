package services

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dukex/flowdesk/pkg/markdown"
	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/notifications"
	"github.com/dukex/flowdesk/pkg/otelhelper"
	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/dukex/flowdesk/pkg/template"
	"go.opentelemetry.io/otel/attribute"
)

// CreateCommentRequest adds a comment to a task. AttachmentIDs are bound to the comment.
type CreateCommentRequest struct {
	TaskID        *int64
	Text          string
	AttachmentIDs []int64
}

// UpdateCommentRequest changes the text and attachments of a comment. Nil fields keep
// their current value, unless ForceSave is set and nil means cleared.
type UpdateCommentRequest struct {
	Text          *string
	AttachmentIDs *[]int64
	ForceSave     bool
}

// Comments manages comments on tasks, their reactions and watch marks.
type Comments struct {
	deps Dependencies
}

// NewComments returns the comment service.
func NewComments(deps Dependencies) *Comments {
	return &Comments{deps: deps.withDefaults("comments")}
}

// commentState is a comment loaded with its task for a mutation.
type commentState struct {
	*taskState
	event *models.WorkflowEvent
}

func (s *Comments) within(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context, tx persistence.Tx, fx *effects) (*models.WorkflowEvent, error)) (*models.WorkflowEvent, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.deps.Tracer, op, attrs...)
	defer span.End()

	var (
		fx    effects
		event *models.WorkflowEvent
	)

	err := s.deps.Persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		fx.reset()

		var err error

		event, err = fn(ctx, tx, &fx)

		return err
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, wrap(op, err)
	}

	fx.flush(ctx, s.deps.Logger)

	return event, nil
}

// Create adds a comment to an active task and notifies its performers. Mentioned users
// that do not perform the task receive a mention notification instead.
func (s *Comments) Create(ctx context.Context, rc RequestContext, req CreateCommentRequest) (*models.WorkflowEvent, error) {
	attrs := []attribute.KeyValue{attribute.Int64(otelhelper.UserIDKey, rc.User.ID)}

	return s.within(ctx, "comments.create", attrs, func(ctx context.Context, tx persistence.Tx, fx *effects) (*models.WorkflowEvent, error) {
		if req.TaskID == nil {
			return nil, invalid("task", ErrCommentedNotTask)
		}

		state, err := loadTaskForUpdate(ctx, tx, rc.accountID(), *req.TaskID)
		if err != nil {
			return nil, err
		}

		if err := validateCommentTarget(state); err != nil {
			return nil, err
		}

		text := strings.TrimSpace(req.Text)
		attachmentIDs := distinct(slices.Clone(req.AttachmentIDs))

		if text == "" && len(attachmentIDs) == 0 {
			return nil, invalid("text", ErrCommentTextRequired)
		}

		mentioned, err := s.mentionable(ctx, tx, rc, text)
		if err != nil {
			return nil, err
		}

		event := &models.WorkflowEvent{
			Type:             models.EventTypeComment,
			TaskID:           ptr(state.task.ID),
			UserID:           ptr(rc.User.ID),
			Text:             text,
			ClearText:        s.deps.Markdown.Clear(text),
			AttachmentIDs:    attachmentIDs,
			LinkedFileIDs:    markdown.ExtractAttachmentIDs(text),
			MentionedUserIDs: mentioned,
		}

		if err := recordEvent(ctx, tx, rc, state.workflow, event); err != nil {
			return nil, err
		}

		if err := bindAttachments(ctx, tx, rc.accountID(), event, nil); err != nil {
			return nil, err
		}

		state.task.ContainsComments = true

		if err := tx.Tasks().Save(ctx, state.task); err != nil {
			return nil, err
		}

		performers, err := newPerformerSet(ctx, tx, rc.accountID(), state.rows)
		if err != nil {
			return nil, err
		}

		mentionIDs, notifyIDs := newCommentRecipients(rc.User.ID, performers.userIDs(), mentioned)

		state.workflow.AddMembers(mentionIDs...)
		state.workflow.AddMembers(notifyIDs...)

		if err := tx.Workflows().Save(ctx, state.workflow); err != nil {
			return nil, err
		}

		if err := s.notifyComment(ctx, tx, rc, fx, &commentState{taskState: state, event: event}, notifications.KindMention, mentionIDs); err != nil {
			return nil, err
		}

		if err := s.notifyComment(ctx, tx, rc, fx, &commentState{taskState: state, event: event}, notifications.KindComment, notifyIDs); err != nil {
			return nil, err
		}

		fx.track(s.deps.Analytics, rc.analytics(notifications.AnalyticsCommentAdded, state.workflow.ID, map[string]any{
			"task_id":     state.task.ID,
			"text":        event.ClearText,
			"attachments": len(attachmentIDs),
		}))

		if len(mentionIDs) > 0 {
			fx.track(s.deps.Analytics, rc.analytics(notifications.AnalyticsMentionCreated, state.workflow.ID, map[string]any{
				"task_id":   state.task.ID,
				"mentioned": mentionIDs,
			}))
		}

		return event, nil
	})
}

// Update edits a comment of the acting user. Only users mentioned for the first time
// are notified.
func (s *Comments) Update(ctx context.Context, rc RequestContext, eventID int64, req UpdateCommentRequest) (*models.WorkflowEvent, error) {
	attrs := []attribute.KeyValue{attribute.Int64(otelhelper.EventIDKey, eventID)}

	return s.within(ctx, "comments.update", attrs, func(ctx context.Context, tx persistence.Tx, fx *effects) (*models.WorkflowEvent, error) {
		state, err := s.loadComment(ctx, tx, rc, eventID)
		if err != nil {
			return nil, err
		}

		if !state.event.IsAuthor(rc.User.ID) {
			return nil, permission(ErrNotAuthor)
		}

		event := state.event

		text := event.Text
		if req.Text != nil {
			text = strings.TrimSpace(*req.Text)
		} else if req.ForceSave {
			text = ""
		}

		explicit := event.AttachmentIDs
		if req.AttachmentIDs != nil {
			explicit = *req.AttachmentIDs
		} else if req.ForceSave {
			explicit = nil
		}

		attachmentIDs := distinct(slices.Clone(explicit))

		if text == "" && len(attachmentIDs) == 0 {
			return nil, invalid("text", ErrCommentTextRequired)
		}

		mentioned, err := s.mentionable(ctx, tx, rc, text)
		if err != nil {
			return nil, err
		}

		newly := slices.DeleteFunc(slices.Clone(mentioned), func(id int64) bool {
			return slices.Contains(event.MentionedUserIDs, id)
		})

		previous := event.AttachmentIDs
		now := rc.now()

		event.Text = text
		event.ClearText = s.deps.Markdown.Clear(text)
		event.AttachmentIDs = attachmentIDs
		event.LinkedFileIDs = markdown.ExtractAttachmentIDs(text)
		event.MentionedUserIDs = mentioned
		event.Status = models.EventStatusUpdated
		event.UpdatedAt = &now

		if err := bindAttachments(ctx, tx, rc.accountID(), event, previous); err != nil {
			return nil, err
		}

		if err := tx.Events().Save(ctx, event); err != nil {
			return nil, err
		}

		performers, err := newPerformerSet(ctx, tx, rc.accountID(), state.rows)
		if err != nil {
			return nil, err
		}

		mentionIDs, notifyIDs := newCommentRecipients(rc.User.ID, performers.userIDs(), newly)

		if len(mentionIDs) > 0 {
			state.workflow.AddMembers(mentionIDs...)

			if err := tx.Workflows().Save(ctx, state.workflow); err != nil {
				return nil, err
			}
		}

		if err := s.notifyComment(ctx, tx, rc, fx, state, notifications.KindMention, mentionIDs); err != nil {
			return nil, err
		}

		if err := s.pushUpdate(ctx, tx, rc, fx, state, notifyIDs); err != nil {
			return nil, err
		}

		fx.track(s.deps.Analytics, rc.analytics(notifications.AnalyticsCommentEdited, state.workflow.ID, map[string]any{
			"task_id":  state.task.ID,
			"event_id": event.ID,
			"text":     event.ClearText,
		}))

		if len(mentionIDs) > 0 {
			fx.track(s.deps.Analytics, rc.analytics(notifications.AnalyticsMentionCreated, state.workflow.ID, map[string]any{
				"task_id":   state.task.ID,
				"mentioned": mentionIDs,
			}))
		}

		return event, nil
	})
}

// Delete soft deletes a comment of the acting user and removes its attachments.
func (s *Comments) Delete(ctx context.Context, rc RequestContext, eventID int64) (*models.WorkflowEvent, error) {
	attrs := []attribute.KeyValue{attribute.Int64(otelhelper.EventIDKey, eventID)}

	return s.within(ctx, "comments.delete", attrs, func(ctx context.Context, tx persistence.Tx, fx *effects) (*models.WorkflowEvent, error) {
		state, err := s.loadComment(ctx, tx, rc, eventID)
		if err != nil {
			return nil, err
		}

		if !state.event.IsAuthor(rc.User.ID) {
			return nil, permission(ErrNotAuthor)
		}

		event := state.event

		attachments, err := tx.Attachments().ByEvent(ctx, event.ID)
		if err != nil {
			return nil, err
		}

		for _, attachment := range attachments {
			if err := tx.Attachments().Delete(ctx, attachment.ID); err != nil {
				return nil, err
			}
		}

		clearText := event.ClearText
		now := rc.now()

		event.Text = ""
		event.ClearText = ""
		event.AttachmentIDs = nil
		event.LinkedFileIDs = nil
		event.Status = models.EventStatusDeleted
		event.UpdatedAt = &now

		if err := tx.Events().Save(ctx, event); err != nil {
			return nil, err
		}

		fx.track(s.deps.Analytics, rc.analytics(notifications.AnalyticsCommentDeleted, state.workflow.ID, map[string]any{
			"task_id":  state.task.ID,
			"event_id": event.ID,
			"text":     clearText,
		}))

		return event, nil
	})
}

// CreateReaction records the reaction of the acting user. Reacting twice is a no-op.
// The author is notified unless reacting to their own comment.
func (s *Comments) CreateReaction(ctx context.Context, rc RequestContext, eventID int64, reaction string) (*models.WorkflowEvent, error) {
	attrs := []attribute.KeyValue{attribute.Int64(otelhelper.EventIDKey, eventID)}

	return s.within(ctx, "comments.create_reaction", attrs, func(ctx context.Context, tx persistence.Tx, fx *effects) (*models.WorkflowEvent, error) {
		reaction = strings.TrimSpace(reaction)
		if reaction == "" {
			return nil, invalid("reaction", ErrReactionRequired)
		}

		state, err := s.loadComment(ctx, tx, rc, eventID)
		if err != nil {
			return nil, err
		}

		event := state.event

		if !event.AddReaction(reaction, rc.User.ID) {
			return event, nil
		}

		if err := tx.Events().Save(ctx, event); err != nil {
			return nil, err
		}

		fx.track(s.deps.Analytics, rc.analytics(notifications.AnalyticsReactionAdded, state.workflow.ID, map[string]any{
			"task_id":  state.task.ID,
			"event_id": event.ID,
			"reaction": reaction,
		}))

		if err := s.pushActivity(ctx, tx, rc, fx, state); err != nil {
			return nil, err
		}

		if event.UserID == nil || event.IsAuthor(rc.User.ID) {
			return event, nil
		}

		authors, err := loadUsers(ctx, tx, rc.accountID(), []int64{*event.UserID})
		if err != nil {
			return nil, err
		}

		n := taskNotification(rc, notifications.KindReaction, state.workflow, state.task, notifiable(authors))
		n.EventID = event.ID
		n.Reaction = reaction
		n.Text = template.Truncate(event.ClearText, s.deps.Config.ReactionPreviewLength)
		fx.notify(s.deps.Notifier, n)

		return event, nil
	})
}

// DeleteReaction drops the reaction of the acting user. The reaction disappears once no
// user is left on it.
func (s *Comments) DeleteReaction(ctx context.Context, rc RequestContext, eventID int64, reaction string) (*models.WorkflowEvent, error) {
	attrs := []attribute.KeyValue{attribute.Int64(otelhelper.EventIDKey, eventID)}

	return s.within(ctx, "comments.delete_reaction", attrs, func(ctx context.Context, tx persistence.Tx, fx *effects) (*models.WorkflowEvent, error) {
		state, err := s.loadComment(ctx, tx, rc, eventID)
		if err != nil {
			return nil, err
		}

		event := state.event
		reaction = strings.TrimSpace(reaction)

		if !event.RemoveReaction(reaction, rc.User.ID) {
			return event, nil
		}

		if err := tx.Events().Save(ctx, event); err != nil {
			return nil, err
		}

		fx.track(s.deps.Analytics, rc.analytics(notifications.AnalyticsReactionDeleted, state.workflow.ID, map[string]any{
			"task_id":  state.task.ID,
			"event_id": event.ID,
			"reaction": reaction,
		}))

		if err := s.pushActivity(ctx, tx, rc, fx, state); err != nil {
			return nil, err
		}

		return event, nil
	})
}

// Watched marks the comment as seen by the acting user. Authors never watch their
// own comments and a user is recorded once.
func (s *Comments) Watched(ctx context.Context, rc RequestContext, eventID int64) (*models.WorkflowEvent, error) {
	attrs := []attribute.KeyValue{attribute.Int64(otelhelper.EventIDKey, eventID)}

	return s.within(ctx, "comments.watched", attrs, func(ctx context.Context, tx persistence.Tx, _ *effects) (*models.WorkflowEvent, error) {
		state, err := s.loadComment(ctx, tx, rc, eventID)
		if err != nil {
			return nil, err
		}

		event := state.event

		if event.IsAuthor(rc.User.ID) || event.HasWatched(rc.User.ID) {
			return event, nil
		}

		event.Watched = append(event.Watched, models.WatchedEntry{
			UserID: rc.User.ID,
			Date:   rc.now().Truncate(time.Minute),
		})

		if err := tx.Events().Save(ctx, event); err != nil {
			return nil, err
		}

		return event, nil
	})
}

// loadComment loads a comment and validates it can still be acted on.
func (s *Comments) loadComment(ctx context.Context, tx persistence.Tx, rc RequestContext, eventID int64) (*commentState, error) {
	event, err := tx.Events().ByID(ctx, rc.accountID(), eventID)
	if persistence.IsNotFound(err) {
		return nil, notFound("event", eventID, err)
	}

	if err != nil {
		return nil, err
	}

	if event.Type != models.EventTypeComment || event.TaskID == nil {
		return nil, invalid("event", ErrNotComment)
	}

	if event.Status == models.EventStatusDeleted {
		return nil, conflict(ErrCommentIsDeleted)
	}

	state, err := loadTaskForUpdate(ctx, tx, rc.accountID(), *event.TaskID)
	if err != nil {
		return nil, err
	}

	if err := validateCommentTarget(state); err != nil {
		return nil, err
	}

	return &commentState{taskState: state, event: event}, nil
}

func validateCommentTarget(state *taskState) error {
	if state.workflow.IsDone() {
		return conflict(ErrCommentedWorkflowNotRunning)
	}

	if !state.task.IsActive() {
		return conflict(ErrCommentedTaskNotActive)
	}

	return nil
}

// mentionable returns the mentioned users that are eligible account members.
func (s *Comments) mentionable(ctx context.Context, tx persistence.Tx, rc RequestContext, text string) ([]int64, error) {
	users, err := loadUsers(ctx, tx, rc.accountID(), markdown.MentionedUserIDs(text))
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(users))

	for _, user := range users {
		if user.IsEligible() {
			ids = append(ids, user.ID)
		}
	}

	return ids, nil
}

func (s *Comments) notifyComment(ctx context.Context, tx persistence.Tx, rc RequestContext, fx *effects, state *commentState, kind notifications.Kind, userIDs []int64) error {
	users, err := loadUsers(ctx, tx, rc.accountID(), userIDs)
	if err != nil {
		return err
	}

	n := taskNotification(rc, kind, state.workflow, state.task, notifiable(users))
	n.EventID = state.event.ID
	n.Text = state.event.ClearText
	fx.notify(s.deps.Notifier, n)

	return nil
}

func (s *Comments) pushUpdate(ctx context.Context, tx persistence.Tx, rc RequestContext, fx *effects, state *commentState, userIDs []int64) error {
	users, err := loadUsers(ctx, tx, rc.accountID(), userIDs)
	if err != nil {
		return err
	}

	n := taskNotification(rc, notifications.KindEventUpdated, state.workflow, state.task, users)
	n.EventID = state.event.ID
	n.Text = state.event.ClearText
	fx.push(s.deps.Notifier, n)

	return nil
}

// pushActivity refreshes the comment for the task performers and the comment author,
// the acting user included.
func (s *Comments) pushActivity(ctx context.Context, tx persistence.Tx, rc RequestContext, fx *effects, state *commentState) error {
	performers, err := newPerformerSet(ctx, tx, rc.accountID(), state.rows)
	if err != nil {
		return err
	}

	userIDs := performers.userIDs()
	if state.event.UserID != nil {
		userIDs = append(userIDs, *state.event.UserID)
	}

	return s.pushUpdate(ctx, tx, rc, fx, state, distinct(userIDs))
}

// newCommentRecipients splits the users to notify about a comment. Performers other than
// the author are notified. Mentioned users that do not perform the task and are not the
// author receive a mention. A user is never in both lists.
func newCommentRecipients(authorID int64, performerIDs, mentionedIDs []int64) ([]int64, []int64) {
	notified := make([]int64, 0, len(performerIDs))

	for _, id := range performerIDs {
		if id != authorID {
			notified = append(notified, id)
		}
	}

	mentioned := make([]int64, 0, len(mentionedIDs))

	for _, id := range mentionedIDs {
		if id != authorID && !slices.Contains(performerIDs, id) && !slices.Contains(mentioned, id) {
			mentioned = append(mentioned, id)
		}
	}

	return mentioned, notified
}

// bindAttachments binds the attachments of the event and deletes the previously bound
// ones it no longer references.
func bindAttachments(ctx context.Context, tx persistence.Tx, accountID int64, event *models.WorkflowEvent, previous []int64) error {
	for _, id := range event.AttachmentIDs {
		attachment, err := tx.Attachments().ByID(ctx, accountID, id)
		if persistence.IsNotFound(err) {
			return notFound("attachment", id, err)
		}

		if err != nil {
			return err
		}

		if attachment.EventID != nil && *attachment.EventID == event.ID {
			continue
		}

		if attachment.IsBound() {
			return invalid("attachments", ErrAttachmentInUse)
		}

		attachment.EventID = ptr(event.ID)
		attachment.WorkflowID = ptr(event.WorkflowID)

		if err := tx.Attachments().Save(ctx, attachment); err != nil {
			return err
		}
	}

	for _, id := range previous {
		if slices.Contains(event.AttachmentIDs, id) {
			continue
		}

		err := tx.Attachments().Delete(ctx, id)
		if err != nil && !persistence.IsNotFound(err) {
			return err
		}
	}

	return nil
}
