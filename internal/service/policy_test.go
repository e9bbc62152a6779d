package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

func TestPolicyTable(t *testing.T) {
	cases := []struct {
		op      Operation
		role    domain.Role
		allowed bool
		owner   Ownership
	}{
		{OpList, domain.RoleUser, true, OwnershipCreator},
		{OpList, domain.RoleSupport, true, OwnershipNone},
		{OpCreate, domain.RoleUser, true, OwnershipNone},
		{OpGet, domain.RoleUser, true, OwnershipCreator},
		{OpGet, domain.RoleSupport, true, OwnershipNone},
		{OpUpdate, domain.RoleUser, true, OwnershipCreator},
		{OpUpdate, domain.RoleAdmin, true, OwnershipNone},
		{OpClaim, domain.RoleUser, false, OwnershipNone},
		{OpClaim, domain.RoleSupport, true, OwnershipNone},
		{OpReassign, domain.RoleSupport, true, OwnershipAssignee},
		{OpReassign, domain.RoleAdmin, true, OwnershipNone},
		{OpResolve, domain.RoleUser, false, OwnershipNone},
		{OpResolve, domain.RoleSupport, true, OwnershipAssignee},
		{OpDelete, domain.RoleSupport, true, OwnershipAssignee},
		{OpDelete, domain.RoleAdmin, true, OwnershipNone},
		{OpAddComment, domain.RoleUser, true, OwnershipCreator},
		{OpAddComment, domain.RoleSupport, true, OwnershipAssignee},
		{OpAddComment, domain.RoleAdmin, true, OwnershipNone},
		{OpListComments, domain.RoleSupport, true, OwnershipAssignee},
		{OpListHistory, domain.RoleUser, true, OwnershipCreator},
		{OpListAssigned, domain.RoleUser, false, OwnershipNone},
		{OpListAssigned, domain.RoleSupport, true, OwnershipNone},
	}

	for _, tc := range cases {
		rule, err := Authorize(tc.op, domain.Actor{ID: "a", Role: tc.role})
		if !tc.allowed {
			assert.True(t, apperrors.IsForbidden(err), "%s/%s", tc.op, tc.role)
			continue
		}
		require.NoError(t, err, "%s/%s", tc.op, tc.role)
		assert.Equal(t, tc.owner, rule.Ownership, "%s/%s", tc.op, tc.role)
	}
}

func TestEveryOperationHasAPolicy(t *testing.T) {
	ops := []Operation{
		OpList, OpCreate, OpGet, OpUpdate, OpClaim, OpReassign, OpResolve,
		OpAddComment, OpListComments, OpDelete, OpListHistory, OpListAssigned,
	}
	for _, op := range ops {
		_, err := Authorize(op, domain.Actor{ID: "admin", Role: domain.RoleAdmin})
		assert.NoError(t, err, "admin should be allowed to %s", op)
	}
}

func TestAuthorizeRejectsUnknownRole(t *testing.T) {
	_, err := Authorize(OpList, domain.Actor{ID: "a", Role: "guest"})
	require.True(t, apperrors.IsForbidden(err))
}

func TestRulePermits(t *testing.T) {
	agent := "agent"
	ticket := &domain.Ticket{CreatedBy: "owner", AssignedAgent: &agent}

	assert.True(t, Rule{Ownership: OwnershipCreator}.Permits(domain.Actor{ID: "owner"}, ticket))
	assert.False(t, Rule{Ownership: OwnershipCreator}.Permits(domain.Actor{ID: "agent"}, ticket))
	assert.True(t, Rule{Ownership: OwnershipAssignee}.Permits(domain.Actor{ID: "agent"}, ticket))
	assert.False(t, Rule{Ownership: OwnershipAssignee}.Permits(domain.Actor{ID: "owner"}, ticket))
	assert.True(t, Rule{}.Permits(domain.Actor{ID: "anyone"}, ticket))

	assert.Nil(t, Rule{}.assigneeFilter(domain.Actor{ID: "x"}))
	require.NotNil(t, Rule{Ownership: OwnershipAssignee}.assigneeFilter(domain.Actor{ID: "x"}))
	assert.Equal(t, "assignee", OwnershipAssignee.String())
}
