package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketService is the single authority for ticket state changes. Every
// mutation runs in one unit of work that writes the audit record before the
// ticket write it describes; events are published only after commit.
type TicketService struct {
	store                 repository.Store
	dispatcher            events.Dispatcher
	logger                *zap.Logger
	metrics               *observability.Metrics
	allowCommentsOnClosed bool
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Config     config.TicketsConfig
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		store:                 deps.Store,
		dispatcher:            deps.Dispatcher,
		logger:                logger,
		metrics:               deps.Metrics,
		allowCommentsOnClosed: deps.Config.AllowCommentsOnClosed,
	}
}

// List returns tickets visible to actor. Users only ever see their own tickets.
func (s *TicketService) List(ctx context.Context, actor domain.Actor, filter TicketListFilter, sort repository.TicketSort) (_ []domain.Ticket, err error) {
	defer s.observe(OpList, &err)

	rule, err := Authorize(OpList, actor)
	if err != nil {
		return nil, err
	}
	if err := filter.validate(); err != nil {
		return nil, err
	}
	repoFilter := filter.toRepository(sort)
	if rule.Ownership == OwnershipCreator {
		repoFilter.CreatedBy = &actor.ID
	}
	tickets, err := s.store.Repos().Tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// ListAssignedToMe returns tickets whose assigned agent is actor.
func (s *TicketService) ListAssignedToMe(ctx context.Context, actor domain.Actor) (_ []domain.Ticket, err error) {
	defer s.observe(OpListAssigned, &err)

	if _, err := Authorize(OpListAssigned, actor); err != nil {
		return nil, err
	}
	agent := actor.ID
	tickets, err := s.store.Repos().Tickets.List(ctx, repository.TicketFilter{AssignedAgent: &agent})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// Create files a new open, unassigned ticket on behalf of actor.
func (s *TicketService) Create(ctx context.Context, actor domain.Actor, input TicketCreateInput) (_ *domain.Ticket, err error) {
	defer s.observe(OpCreate, &err)

	if _, err := Authorize(OpCreate, actor); err != nil {
		return nil, err
	}
	if err := ValidateStruct(input); err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		Title:       input.Title,
		Description: input.Description,
		Status:      domain.TicketStatusOpen,
		Priority:    input.Priority,
		Category:    input.Category,
		CreatedBy:   actor.ID,
	}

	var created *domain.Ticket
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := s.audit(ctx, repos, ticket.ID, actor, domain.UpdateTypeNewTicket, input.auditFields()); err != nil {
			return err
		}
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		var err error
		created, err = s.resolve(ctx, repos, ticket.ID)
		return err
	})
	if err != nil {
		return nil, s.mapErr(err, ticket.ID)
	}

	s.logMutation(created.ID, actor, domain.UpdateTypeNewTicket)
	s.publish(ctx, events.EventTicketCreated, actor, created.ID, events.NewTicketPayload(created))
	return created, nil
}

// GetByID returns the ticket with its comments resolved.
func (s *TicketService) GetByID(ctx context.Context, actor domain.Actor, id string) (_ *domain.Ticket, err error) {
	defer s.observe(OpGet, &err)

	rule, err := Authorize(OpGet, actor)
	if err != nil {
		return nil, err
	}
	if err := checkTicketID(id); err != nil {
		return nil, err
	}
	repos := s.store.Repos()
	ticket, err := s.resolve(ctx, repos, id)
	if err != nil {
		return nil, s.mapErr(err, id)
	}
	if !rule.Permits(actor, ticket) {
		return nil, apperrors.NewForbidden("ticket belongs to another user")
	}
	return ticket, nil
}

// Update applies a partial change to title, description, priority or
// category. Status moves only through Claim and Resolve.
func (s *TicketService) Update(ctx context.Context, actor domain.Actor, id string, input TicketUpdateInput) (_ *domain.Ticket, err error) {
	defer s.observe(OpUpdate, &err)

	rule, err := Authorize(OpUpdate, actor)
	if err != nil {
		return nil, err
	}
	if err := checkTicketID(id); err != nil {
		return nil, err
	}
	if input.Status != nil {
		return nil, apperrors.NewValidationError("status changes go through claim and resolve",
			map[string]any{"status": "not_allowed"})
	}
	changes := input.changes()
	if changes.IsEmpty() {
		return nil, apperrors.NewValidationError("no fields to update", nil)
	}
	if err := ValidateStruct(input); err != nil {
		return nil, err
	}
	fields := input.auditFields()

	var updated *domain.Ticket
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		current, err := repos.Tickets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !rule.Permits(actor, current) {
			return apperrors.NewForbidden("ticket belongs to another user")
		}
		if err := s.audit(ctx, repos, id, actor, domain.UpdateTypeUpdateTicket, fields); err != nil {
			return err
		}
		if _, err := repos.Tickets.ConditionalUpdate(ctx, id, repository.TicketPredicate{}, changes); err != nil {
			return err
		}
		updated, err = s.resolve(ctx, repos, id)
		return err
	})
	if err != nil {
		return nil, s.mapErr(err, id)
	}

	s.logMutation(id, actor, domain.UpdateTypeUpdateTicket)
	payload := events.NewTicketPayload(updated)
	payload.Fields = sortedKeys(fields)
	s.publish(ctx, events.EventTicketUpdated, actor, id, payload)
	return updated, nil
}

// Claim assigns an open, unassigned ticket to actor and moves it to
// inProgress. Of several concurrent claims exactly one succeeds; the others
// get NotFound.
func (s *TicketService) Claim(ctx context.Context, actor domain.Actor, id string) (_ *domain.Ticket, err error) {
	defer s.observe(OpClaim, &err)

	if _, err := Authorize(OpClaim, actor); err != nil {
		return nil, err
	}
	if err := checkTicketID(id); err != nil {
		return nil, err
	}

	open := domain.TicketStatusOpen
	inProgress := domain.TicketStatusInProgress
	agent := actor.ID
	pred := repository.TicketPredicate{Status: &open, Unassigned: true}
	changes := repository.TicketChanges{Status: &inProgress, AssignedAgent: &agent}
	fields := map[string]any{"assignedAgent": agent, "status": string(inProgress)}

	var claimed *domain.Ticket
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := s.audit(ctx, repos, id, actor, domain.UpdateTypeAssignTicket, fields); err != nil {
			return err
		}
		if _, err := repos.Tickets.ConditionalUpdate(ctx, id, pred, changes); err != nil {
			return err
		}
		var err error
		claimed, err = s.resolve(ctx, repos, id)
		return err
	})
	if err != nil {
		return nil, s.mapErr(err, id)
	}

	s.logMutation(id, actor, domain.UpdateTypeAssignTicket)
	s.publish(ctx, events.EventTicketClaimed, actor, id, events.NewTicketPayload(claimed))
	return claimed, nil
}

// Reassign hands an inProgress ticket to another support agent or admin.
// Support agents may only reassign tickets they hold.
func (s *TicketService) Reassign(ctx context.Context, actor domain.Actor, id, newAgentID string) (_ *domain.Ticket, err error) {
	defer s.observe(OpReassign, &err)

	rule, err := Authorize(OpReassign, actor)
	if err != nil {
		return nil, err
	}
	if err := checkTicketID(id); err != nil {
		return nil, err
	}
	newAgentID = strings.TrimSpace(newAgentID)
	if _, err := uuid.Parse(newAgentID); err != nil {
		return nil, apperrors.NewValidationError("invalid agent id", map[string]any{"agentId": "uuid"})
	}

	inProgress := domain.TicketStatusInProgress
	pred := repository.TicketPredicate{Status: &inProgress, AssignedAgent: rule.assigneeFilter(actor)}
	changes := repository.TicketChanges{AssignedAgent: &newAgentID}

	var (
		reassigned *domain.Ticket
		previous   *string
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		agent, err := repos.Users.GetByID(ctx, newAgentID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewValidationError("agent not found", map[string]any{"agentId": newAgentID})
		}
		if err != nil {
			return err
		}
		if !agent.Role.IsStaff() {
			return apperrors.NewValidationError("agent must be a support or admin user",
				map[string]any{"agentId": newAgentID})
		}
		if before, err := repos.Tickets.GetByID(ctx, id); err == nil {
			previous = before.AssignedAgent
		}
		if err := s.audit(ctx, repos, id, actor, domain.UpdateTypeReassignTicket,
			map[string]any{"assignedAgent": newAgentID}); err != nil {
			return err
		}
		if _, err := repos.Tickets.ConditionalUpdate(ctx, id, pred, changes); err != nil {
			return err
		}
		reassigned, err = s.resolve(ctx, repos, id)
		return err
	})
	if err != nil {
		return nil, s.mapErr(err, id)
	}

	s.logMutation(id, actor, domain.UpdateTypeReassignTicket)
	s.publish(ctx, events.EventTicketReassigned, actor, id, events.TicketReassignedPayload{
		TicketPayload: events.NewTicketPayload(reassigned),
		PreviousAgent: previous,
	})
	return reassigned, nil
}

// Resolve closes an inProgress ticket. Support agents may only resolve
// tickets they hold.
func (s *TicketService) Resolve(ctx context.Context, actor domain.Actor, id string) (_ *domain.Ticket, err error) {
	defer s.observe(OpResolve, &err)

	rule, err := Authorize(OpResolve, actor)
	if err != nil {
		return nil, err
	}
	if err := checkTicketID(id); err != nil {
		return nil, err
	}

	inProgress := domain.TicketStatusInProgress
	closed := domain.TicketStatusClosed
	pred := repository.TicketPredicate{Status: &inProgress, AssignedAgent: rule.assigneeFilter(actor)}
	changes := repository.TicketChanges{Status: &closed}

	var resolved *domain.Ticket
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := s.audit(ctx, repos, id, actor, domain.UpdateTypeCloseTicket,
			map[string]any{"status": string(closed)}); err != nil {
			return err
		}
		if _, err := repos.Tickets.ConditionalUpdate(ctx, id, pred, changes); err != nil {
			return err
		}
		var err error
		resolved, err = s.resolve(ctx, repos, id)
		return err
	})
	if err != nil {
		return nil, s.mapErr(err, id)
	}

	s.logMutation(id, actor, domain.UpdateTypeCloseTicket)
	s.publish(ctx, events.EventTicketResolved, actor, id, events.NewTicketPayload(resolved))
	return resolved, nil
}

// AddComment appends a comment. The ticket must already be assigned.
func (s *TicketService) AddComment(ctx context.Context, actor domain.Actor, id, text string) (_ *domain.Ticket, err error) {
	defer s.observe(OpAddComment, &err)

	rule, err := Authorize(OpAddComment, actor)
	if err != nil {
		return nil, err
	}
	if err := checkTicketID(id); err != nil {
		return nil, err
	}
	if err := validateCommentText(text); err != nil {
		return nil, err
	}

	comment := &domain.Comment{
		ID:       uuid.NewString(),
		TicketID: id,
		Text:     text,
		Author:   actor.ID,
	}

	var commented *domain.Ticket
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := repos.Tickets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !ticket.IsAssigned() {
			return apperrors.NewConflict("ticket is not yet assigned", map[string]any{"ticket_id": id})
		}
		if !rule.Permits(actor, ticket) {
			return apperrors.NewForbidden("only the ticket owner or assigned agent may comment")
		}
		if ticket.Status == domain.TicketStatusClosed && !s.allowCommentsOnClosed {
			return apperrors.NewConflict("ticket is closed", map[string]any{"ticket_id": id})
		}
		if err := s.audit(ctx, repos, id, actor, domain.UpdateTypeComment, map[string]any{"comment": text}); err != nil {
			return err
		}
		if err := repos.Comments.Create(ctx, comment); err != nil {
			return err
		}
		commented, err = s.resolve(ctx, repos, id)
		return err
	})
	if err != nil {
		return nil, s.mapErr(err, id)
	}

	s.logMutation(id, actor, domain.UpdateTypeComment)
	s.publish(ctx, events.EventTicketCommented, actor, id, events.TicketCommentedPayload{
		TicketPayload: events.NewTicketPayload(commented),
		CommentID:     comment.ID,
		BodyPreview:   stringPreview(text, 120),
	})
	return commented, nil
}

// ListComments returns the ticket's comments in insertion order.
func (s *TicketService) ListComments(ctx context.Context, actor domain.Actor, id string) (_ []domain.Comment, err error) {
	defer s.observe(OpListComments, &err)

	repos := s.store.Repos()
	if _, err := s.visibleTicket(ctx, repos, OpListComments, actor, id); err != nil {
		return nil, err
	}
	comments, err := repos.Comments.ListByTicket(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return comments, nil
}

// ListHistory returns the ticket's audit records in insertion order.
func (s *TicketService) ListHistory(ctx context.Context, actor domain.Actor, id string) (_ []domain.AuditLog, err error) {
	defer s.observe(OpListHistory, &err)

	repos := s.store.Repos()
	if _, err := s.visibleTicket(ctx, repos, OpListHistory, actor, id); err != nil {
		return nil, err
	}
	history, err := repos.AuditLogs.ListByTicket(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return history, nil
}

// Delete removes the ticket with its comments and audit records and returns
// the removed snapshot with the creator resolved.
func (s *TicketService) Delete(ctx context.Context, actor domain.Actor, id string) (_ *domain.Ticket, err error) {
	defer s.observe(OpDelete, &err)

	rule, err := Authorize(OpDelete, actor)
	if err != nil {
		return nil, err
	}
	if err := checkTicketID(id); err != nil {
		return nil, err
	}
	pred := repository.TicketPredicate{AssignedAgent: rule.assigneeFilter(actor)}

	var (
		deleted                 *domain.Ticket
		commentCount, logCount int64
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		comments, err := repos.Comments.ListByTicket(ctx, id)
		if err != nil {
			return err
		}
		logs, err := repos.AuditLogs.ListByTicket(ctx, id)
		if err != nil {
			return err
		}
		if commentCount, err = repos.Comments.DeleteByTicket(ctx, id); err != nil {
			return err
		}
		if logCount, err = repos.AuditLogs.DeleteByTicket(ctx, id); err != nil {
			return err
		}
		if deleted, err = repos.Tickets.Delete(ctx, id, pred); err != nil {
			return err
		}
		// The cascade has already run, so the reference lists come from
		// the children captured above.
		deleted.Comments = comments
		deleted.CommentIDs = make([]string, 0, len(comments))
		for _, c := range comments {
			deleted.CommentIDs = append(deleted.CommentIDs, c.ID)
		}
		deleted.HistoryIDs = make([]string, 0, len(logs))
		for _, l := range logs {
			deleted.HistoryIDs = append(deleted.HistoryIDs, l.ID)
		}
		creator, err := repos.Users.GetByID(ctx, deleted.CreatedBy)
		switch {
		case err == nil:
			deleted.CreatedByUser = creator
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.mapErr(err, id)
	}

	s.logger.Info("ticket deleted",
		zap.String("ticket_id", id),
		zap.String("actor_id", actor.ID),
		zap.String("actor_role", string(actor.Role)),
		zap.Int64("comments_removed", commentCount),
		zap.Int64("audit_logs_removed", logCount))
	s.publish(ctx, events.EventTicketDeleted, actor, id, events.NewTicketPayload(deleted))
	return deleted, nil
}

// visibleTicket loads the ticket and applies op's ownership rule. Support
// agents are refused unassigned tickets because they cannot be the assignee.
func (s *TicketService) visibleTicket(ctx context.Context, repos repository.Repositories, op Operation, actor domain.Actor, id string) (*domain.Ticket, error) {
	rule, err := Authorize(op, actor)
	if err != nil {
		return nil, err
	}
	if err := checkTicketID(id); err != nil {
		return nil, err
	}
	ticket, err := repos.Tickets.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapErr(err, id)
	}
	if !rule.Permits(actor, ticket) {
		return nil, apperrors.NewForbidden("only the ticket owner or assigned agent may view this thread")
	}
	return ticket, nil
}

// resolve loads the ticket and fills in its comments.
func (s *TicketService) resolve(ctx context.Context, repos repository.Repositories, id string) (*domain.Ticket, error) {
	ticket, err := repos.Tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := repos.Comments.ListByTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	ticket.Comments = comments
	return ticket, nil
}

func (s *TicketService) audit(ctx context.Context, repos repository.Repositories, ticketID string, actor domain.Actor, kind domain.UpdateType, fields map[string]any) error {
	return repos.AuditLogs.Create(ctx, &domain.AuditLog{
		ID:           uuid.NewString(),
		TicketID:     ticketID,
		UserID:       actor.ID,
		UpdateType:   kind,
		UpdateFields: fields,
	})
}

// mapErr classifies repository failures. Absence and unmet predicates are
// both NotFound.
func (s *TicketService) mapErr(err error, ticketID string) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	s.logger.Error("ticket persistence failed", zap.String("ticket_id", ticketID), zap.Error(err))
	return apperrors.NewInternalError(err)
}

func (s *TicketService) observe(op Operation, errp *error) {
	outcome := "ok"
	if *errp != nil {
		outcome = apperrors.ToDomainError(*errp).Code
	}
	s.metrics.RecordTicketOperation(string(op), outcome)
}

func (s *TicketService) logMutation(ticketID string, actor domain.Actor, kind domain.UpdateType) {
	s.logger.Info("ticket mutated",
		zap.String("ticket_id", ticketID),
		zap.String("actor_id", actor.ID),
		zap.String("actor_role", string(actor.Role)),
		zap.String("update_type", string(kind)))
}

func (s *TicketService) publish(ctx context.Context, kind events.EventType, actor domain.Actor, ticketID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      kind,
		TicketID:  ticketID,
		Actor:     events.Actor{ID: actor.ID, Role: actor.Role},
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// checkTicketID rejects ids that cannot exist so they report NotFound
// rather than a storage error.
func checkTicketID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return nil
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
