package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
)

type Setup struct {
	Store    *memory.Store
	Service  *TicketService
	Metrics  *observability.Metrics
	Recorder *eventRecorder

	User1, User2       domain.Actor
	Support1, Support2 domain.Actor
	Admin              domain.Actor
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

var allEventTypes = []events.EventType{
	events.EventTicketCreated,
	events.EventTicketUpdated,
	events.EventTicketClaimed,
	events.EventTicketReassigned,
	events.EventTicketResolved,
	events.EventTicketCommented,
	events.EventTicketDeleted,
}

func NewSetup(t *testing.T, cfg config.TicketsConfig) *Setup {
	t.Helper()
	return newSetupWithStore(t, cfg, nil)
}

func newSetupWithStore(t *testing.T, cfg config.TicketsConfig, wrap func(*memory.Store) repository.Store) *Setup {
	t.Helper()

	s := &Setup{
		Store:    memory.NewStore(),
		Metrics:  observability.NewMetrics(),
		Recorder: &eventRecorder{},
	}
	s.User1 = s.newActor(t, "u1@example.com", domain.RoleUser)
	s.User2 = s.newActor(t, "u2@example.com", domain.RoleUser)
	s.Support1 = s.newActor(t, "s1@example.com", domain.RoleSupport)
	s.Support2 = s.newActor(t, "s2@example.com", domain.RoleSupport)
	s.Admin = s.newActor(t, "admin@example.com", domain.RoleAdmin)

	dispatcher := events.NewInMemoryDispatcher(nil)
	for _, eventType := range allEventTypes {
		dispatcher.Subscribe(eventType, s.Recorder.handle)
	}

	var store repository.Store = s.Store
	if wrap != nil {
		store = wrap(s.Store)
	}
	s.Service = NewTicketService(TicketDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    s.Metrics,
		Config:     cfg,
	})
	return s
}

func defaultConfig() config.TicketsConfig {
	return config.TicketsConfig{AllowCommentsOnClosed: true}
}

func (s *Setup) newActor(t *testing.T, email string, role domain.Role) domain.Actor {
	t.Helper()
	user := &domain.User{Email: email, Role: role, PasswordHash: "x"}
	require.NoError(t, s.Store.Repos().Users.Create(context.Background(), user))
	return domain.ActorFromUser(user)
}

func helloTicket() TicketCreateInput {
	return TicketCreateInput{
		Title:       "hello",
		Description: "world of coders",
		Priority:    domain.TicketPriorityHigh,
		Category:    domain.CategoryPerformance,
	}
}

// CreateTicket files the standard ticket as actor.
func (s *Setup) CreateTicket(t *testing.T, actor domain.Actor) *domain.Ticket {
	t.Helper()
	ticket, err := s.Service.Create(context.Background(), actor, helloTicket())
	require.NoError(t, err)
	return ticket
}

// ClaimedTicket files a ticket as User1 and claims it as Support1.
func (s *Setup) ClaimedTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket := s.CreateTicket(t, s.User1)
	claimed, err := s.Service.Claim(context.Background(), s.Support1, ticket.ID)
	require.NoError(t, err)
	return claimed
}

func (s *Setup) History(t *testing.T, ticketID string) []domain.AuditLog {
	t.Helper()
	logs, err := s.Store.Repos().AuditLogs.ListByTicket(context.Background(), ticketID)
	require.NoError(t, err)
	return logs
}

// failingAuditStore wraps a store so that audit writes inside transactions fail.
type failingAuditStore struct {
	*memory.Store
}

var errAuditDown = errors.New("audit store unavailable")

type failingAuditRepo struct {
	repository.AuditLogRepository
}

func (failingAuditRepo) Create(context.Context, *domain.AuditLog) error { return errAuditDown }

func (f failingAuditStore) WithinTx(ctx context.Context, fn func(context.Context, repository.Repositories) error) error {
	return f.Store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		repos.AuditLogs = failingAuditRepo{repos.AuditLogs}
		return fn(ctx, repos)
	})
}
