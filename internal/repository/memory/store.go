// Package memory is an in-process repository.Store. A write transaction holds
// the store lock for its whole duration and restores a snapshot of the state
// when the callback fails, so it behaves like a serializable database.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

type state struct {
	tickets     map[string]*domain.Ticket
	ticketOrder []string
	comments    map[string][]domain.Comment
	logs        map[string][]domain.AuditLog
	users       map[string]*domain.User
	userOrder   []string
}

func newState() *state {
	return &state{
		tickets:  make(map[string]*domain.Ticket),
		comments: make(map[string][]domain.Comment),
		logs:     make(map[string][]domain.AuditLog),
		users:    make(map[string]*domain.User),
	}
}

// clone returns a deep copy of the state.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.tickets {
		c.tickets[k] = v.Clone()
	}
	c.ticketOrder = slices.Clone(s.ticketOrder)
	for k, v := range s.comments {
		c.comments[k] = slices.Clone(v)
	}
	for k, v := range s.logs {
		entries := make([]domain.AuditLog, len(v))
		for i, e := range v {
			e.UpdateFields = cloneFields(e.UpdateFields)
			entries[i] = e
		}
		c.logs[k] = entries
	}
	for k, v := range s.users {
		u := *v
		c.users[k] = &u
	}
	c.userOrder = slices.Clone(s.userOrder)
	return c
}

// Store keeps every record in memory.
type Store struct {
	lock  sync.Mutex
	state *state
	now   func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Repos returns repositories that lock the store per call.
func (s *Store) Repos() repository.Repositories {
	return s.repos(false)
}

// WithinTx runs fn while holding the store lock. When fn fails, or leaves a
// comment or audit record pointing at a missing ticket, the state is restored.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	previous := s.state.clone()
	if err := fn(ctx, s.repos(true)); err != nil {
		s.state = previous
		return err
	}
	if err := s.state.checkReferences(); err != nil {
		s.state = previous
		return err
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) repos(inTx bool) repository.Repositories {
	v := &view{store: s, inTx: inTx}
	return repository.Repositories{
		Tickets:   ticketRepo{v},
		Comments:  commentRepo{v},
		AuditLogs: auditLogRepo{v},
		Users:     userRepo{v},
	}
}

func (s *state) checkReferences() error {
	for ticketID, comments := range s.comments {
		if _, ok := s.tickets[ticketID]; !ok && len(comments) > 0 {
			return fmt.Errorf("comment references missing ticket %s", ticketID)
		}
	}
	for ticketID, logs := range s.logs {
		if _, ok := s.tickets[ticketID]; !ok && len(logs) > 0 {
			return fmt.Errorf("audit log references missing ticket %s", ticketID)
		}
	}
	return nil
}

// view is shared by the repositories of one Repos or WithinTx call. Inside a
// transaction the lock is already held.
type view struct {
	store *Store
	inTx  bool
}

func (v *view) do(fn func(st *state) error) error {
	if !v.inTx {
		v.store.lock.Lock()
		defer v.store.lock.Unlock()
	}
	return fn(v.store.state)
}

// materialize returns a detached copy of the stored ticket with reference ids filled in.
func (s *state) materialize(t *domain.Ticket) *domain.Ticket {
	c := t.Clone()
	c.CommentIDs = make([]string, 0, len(s.comments[t.ID]))
	for _, comment := range s.comments[t.ID] {
		c.CommentIDs = append(c.CommentIDs, comment.ID)
	}
	c.HistoryIDs = make([]string, 0, len(s.logs[t.ID]))
	for _, entry := range s.logs[t.ID] {
		c.HistoryIDs = append(c.HistoryIDs, entry.ID)
	}
	return c
}

type ticketRepo struct{ v *view }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.v.do(func(st *state) error {
		if ticket.ID == "" {
			ticket.ID = uuid.NewString()
		}
		if _, exists := st.tickets[ticket.ID]; exists {
			return fmt.Errorf("ticket %s already exists", ticket.ID)
		}
		now := r.v.store.now()
		ticket.CreatedAt, ticket.UpdatedAt = now, now
		stored := ticket.Clone()
		stored.Comments, stored.CreatedByUser = nil, nil
		st.tickets[ticket.ID] = stored
		st.ticketOrder = append(st.ticketOrder, ticket.ID)
		return nil
	})
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.v.do(func(st *state) error {
		t, ok := st.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = st.materialize(t)
		return nil
	})
	return out, err
}

func (r ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.v.do(func(st *state) error {
		out = []domain.Ticket{}
		for _, id := range st.ticketOrder {
			t := st.tickets[id]
			if matchesFilter(t, filter) {
				out = append(out, *st.materialize(t))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortTickets(out, filter.Sort)
	return page(out, filter.Limit, filter.Offset), nil
}

func (r ticketRepo) ConditionalUpdate(_ context.Context, id string, pred repository.TicketPredicate, changes repository.TicketChanges) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.v.do(func(st *state) error {
		t, ok := st.tickets[id]
		if !ok || !pred.Matches(t) {
			return repository.ErrNotFound
		}
		changes.Apply(t)
		t.UpdatedAt = r.v.store.now()
		out = st.materialize(t)
		return nil
	})
	return out, err
}

func (r ticketRepo) Delete(_ context.Context, id string, pred repository.TicketPredicate) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.v.do(func(st *state) error {
		t, ok := st.tickets[id]
		if !ok || !pred.Matches(t) {
			return repository.ErrNotFound
		}
		out = st.materialize(t)
		delete(st.tickets, id)
		st.ticketOrder = slices.DeleteFunc(st.ticketOrder, func(v string) bool { return v == id })
		return nil
	})
	return out, err
}

func matchesFilter(t *domain.Ticket, f repository.TicketFilter) bool {
	if f.CreatedBy != nil && t.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.AssignedAgent != nil && !t.AssignedTo(*f.AssignedAgent) {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.Category != nil && t.Category != *f.Category {
		return false
	}
	if f.Assigned != nil && t.IsAssigned() != *f.Assigned {
		return false
	}
	return true
}

var (
	priorityRank = map[domain.TicketPriority]int{
		domain.TicketPriorityLow:    1,
		domain.TicketPriorityMedium: 2,
		domain.TicketPriorityHigh:   3,
	}
	statusRank = map[domain.TicketStatus]int{
		domain.TicketStatusOpen:       1,
		domain.TicketStatusInProgress: 2,
		domain.TicketStatusClosed:     3,
	}
)

func sortTickets(tickets []domain.Ticket, sort repository.TicketSort) {
	var cmp func(a, b domain.Ticket) int
	switch sort.Field {
	case repository.SortByCreatedAt:
		cmp = func(a, b domain.Ticket) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case repository.SortByUpdatedAt:
		cmp = func(a, b domain.Ticket) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	case repository.SortByTitle:
		cmp = func(a, b domain.Ticket) int { return strings.Compare(a.Title, b.Title) }
	case repository.SortByCategory:
		cmp = func(a, b domain.Ticket) int { return strings.Compare(string(a.Category), string(b.Category)) }
	case repository.SortByPriority:
		cmp = func(a, b domain.Ticket) int { return priorityRank[a.Priority] - priorityRank[b.Priority] }
	case repository.SortByStatus:
		cmp = func(a, b domain.Ticket) int { return statusRank[a.Status] - statusRank[b.Status] }
	default:
		return
	}
	if sort.Order == repository.SortDesc {
		asc := cmp
		cmp = func(a, b domain.Ticket) int { return asc(b, a) }
	}
	slices.SortStableFunc(tickets, cmp)
}

func page(tickets []domain.Ticket, limit, offset int) []domain.Ticket {
	if offset > 0 {
		if offset >= len(tickets) {
			return []domain.Ticket{}
		}
		tickets = tickets[offset:]
	}
	if limit > repository.MaxListLimit {
		limit = repository.MaxListLimit
	}
	if limit > 0 && limit < len(tickets) {
		tickets = tickets[:limit]
	}
	return tickets
}

type commentRepo struct{ v *view }

func (r commentRepo) Create(_ context.Context, comment *domain.Comment) error {
	return r.v.do(func(st *state) error {
		if comment.ID == "" {
			comment.ID = uuid.NewString()
		}
		comment.CreatedAt = r.v.store.now()
		st.comments[comment.TicketID] = append(st.comments[comment.TicketID], *comment)
		return nil
	})
}

func (r commentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Comment, error) {
	var out []domain.Comment
	err := r.v.do(func(st *state) error {
		out = append([]domain.Comment{}, st.comments[ticketID]...)
		return nil
	})
	return out, err
}

func (r commentRepo) DeleteByTicket(_ context.Context, ticketID string) (int64, error) {
	var n int64
	err := r.v.do(func(st *state) error {
		n = int64(len(st.comments[ticketID]))
		delete(st.comments, ticketID)
		return nil
	})
	return n, err
}

type auditLogRepo struct{ v *view }

func (r auditLogRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	return r.v.do(func(st *state) error {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.Timestamp = r.v.store.now()
		stored := *entry
		stored.UpdateFields = cloneFields(entry.UpdateFields)
		st.logs[entry.TicketID] = append(st.logs[entry.TicketID], stored)
		return nil
	})
}

func (r auditLogRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	err := r.v.do(func(st *state) error {
		out = make([]domain.AuditLog, 0, len(st.logs[ticketID]))
		for _, e := range st.logs[ticketID] {
			e.UpdateFields = cloneFields(e.UpdateFields)
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

func (r auditLogRepo) DeleteByTicket(_ context.Context, ticketID string) (int64, error) {
	var n int64
	err := r.v.do(func(st *state) error {
		n = int64(len(st.logs[ticketID]))
		delete(st.logs, ticketID)
		return nil
	})
	return n, err
}

type userRepo struct{ v *view }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	return r.v.do(func(st *state) error {
		for _, existing := range st.users {
			if strings.EqualFold(existing.Email, user.Email) {
				return repository.ErrDuplicate
			}
		}
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		now := r.v.store.now()
		user.CreatedAt, user.UpdatedAt = now, now
		stored := *user
		st.users[user.ID] = &stored
		st.userOrder = append(st.userOrder, user.ID)
		return nil
	})
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.v.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		c := *u
		out = &c
		return nil
	})
	return out, err
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	var out *domain.User
	err := r.v.do(func(st *state) error {
		for _, id := range st.userOrder {
			if u := st.users[id]; strings.EqualFold(u.Email, email) {
				c := *u
				out = &c
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r userRepo) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	var out []domain.User
	err := r.v.do(func(st *state) error {
		out = []domain.User{}
		for _, id := range st.userOrder {
			if u := st.users[id]; u.Role == role {
				out = append(out, *u)
			}
		}
		return nil
	})
	return out, err
}

func cloneFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
