package service

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// testPostgresDSNEnv names the database used by tests that need a real Postgres.
const testPostgresDSNEnv = "HELPDESK_TEST_POSTGRES_DSN"

// newPostgresTicketService migrates the test database and returns a service
// backed by it. The test is skipped when no database is configured.
func newPostgresTicketService(t *testing.T) (*TicketService, *persistence.Postgres, *observability.Metrics) {
	t.Helper()
	dsn := os.Getenv(testPostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testPostgresDSNEnv)
	}

	ctx := context.Background()
	pg, err := persistence.NewPostgres(ctx, config.PostgresConfig{DSN: dsn, MaxConns: 16}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	require.NoError(t, persistence.RunMigrations(ctx, pg.Pool, "../../migrations", zap.NewNop()))

	metrics := observability.NewMetrics()
	svc := NewTicketService(TicketDependencies{
		Store:      pg.Store(),
		Dispatcher: events.NewInMemoryDispatcher(nil),
		Metrics:    metrics,
		Config:     config.TicketsConfig{AllowCommentsOnClosed: true},
	})
	return svc, pg, metrics
}

func newPostgresActor(t *testing.T, pg *persistence.Postgres, role domain.Role) domain.Actor {
	t.Helper()
	ctx := context.Background()
	user := &domain.User{
		Email:        string(role) + "-" + uuid.NewString() + "@example.com",
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(t, pg.Store().Repos().Users.Create(ctx, user))
	t.Cleanup(func() {
		_, _ = pg.Pool.Exec(context.Background(), "DELETE FROM users WHERE id = $1", user.ID)
	})
	return domain.ActorFromUser(user)
}

func TestPostgresConcurrentClaimsHaveOneWinner(t *testing.T) {
	svc, pg, metrics := newPostgresTicketService(t)
	ctx := context.Background()

	// Cleanups run in reverse order, so users outlive the ticket deletion.
	creator := newPostgresActor(t, pg, domain.RoleUser)
	admin := newPostgresActor(t, pg, domain.RoleAdmin)
	agents := make([]domain.Actor, 0, 8)
	for i := 0; i < cap(agents); i++ {
		agents = append(agents, newPostgresActor(t, pg, domain.RoleSupport))
	}

	ticket, err := svc.Create(ctx, creator, helloTicket())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = svc.Delete(context.Background(), admin, ticket.ID)
	})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		notFounds int
		others    []error
	)
	start := make(chan struct{})
	for _, agent := range agents {
		agent := agent
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claimed, err := svc.Claim(ctx, agent, ticket.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, *claimed.AssignedAgent)
			case apperrors.IsNotFound(err):
				notFounds++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, others)
	require.Len(t, winners, 1)
	require.Equal(t, len(agents)-1, notFounds)

	final, err := svc.GetByID(ctx, admin, ticket.ID)
	require.NoError(t, err)
	require.True(t, final.AssignedTo(winners[0]))
	require.Equal(t, domain.TicketStatusInProgress, final.Status)

	history, err := svc.ListHistory(ctx, admin, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 2, "losing claims must roll back their audit records")
	require.Equal(t, domain.UpdateTypeAssignTicket, history[1].UpdateType)

	snap := metrics.Snapshot()
	require.Equal(t, int64(1), snap.TicketOperations["claim|ok"])
}

func TestPostgresDeleteCascades(t *testing.T) {
	svc, pg, _ := newPostgresTicketService(t)
	ctx := context.Background()

	creator := newPostgresActor(t, pg, domain.RoleUser)
	agent := newPostgresActor(t, pg, domain.RoleSupport)
	other := newPostgresActor(t, pg, domain.RoleSupport)

	ticket, err := svc.Create(ctx, creator, helloTicket())
	require.NoError(t, err)
	_, err = svc.Claim(ctx, agent, ticket.ID)
	require.NoError(t, err)
	_, err = svc.AddComment(ctx, creator, ticket.ID, "any news?")
	require.NoError(t, err)

	_, err = svc.Delete(ctx, other, ticket.ID)
	require.True(t, apperrors.IsNotFound(err))

	deleted, err := svc.Delete(ctx, agent, ticket.ID)
	require.NoError(t, err)
	require.Len(t, deleted.CommentIDs, 1)
	require.Len(t, deleted.HistoryIDs, 3)

	var remaining int
	require.NoError(t, pg.Pool.QueryRow(ctx,
		"SELECT (SELECT COUNT(*) FROM ticket_comments WHERE ticket_id = $1) + (SELECT COUNT(*) FROM ticket_audit_logs WHERE ticket_id = $1)",
		ticket.ID).Scan(&remaining))
	require.Zero(t, remaining)
}
