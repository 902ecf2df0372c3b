package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStanding(t *testing.T) {
	cases := []struct {
		role   Role
		status Status
		want   Standing
	}{
		{RoleMember, StatusPending, StandingPendingMember},
		{RoleMember, StatusAccepted, StandingAcceptedMember},
		{RoleAdmin, StatusAccepted, StandingAcceptedAdmin},
		{RoleAdmin, StatusPending, StandingInvalid},
	}
	for _, tc := range cases {
		g := AccessGrant{Role: tc.role, Status: tc.status}
		assert.Equal(t, tc.want, g.Standing(), "%s/%s", tc.role, tc.status)
	}
	assert.True(t, AccessGrant{Role: RoleAdmin, Status: StatusAccepted}.IsAcceptedAdmin())
	assert.False(t, AccessGrant{Role: RoleMember, Status: StatusAccepted}.IsAcceptedAdmin())
}

func TestInviteCodeExpiredAtBoundary(t *testing.T) {
	exp := time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC)
	code := InviteCode{ExpiresAt: exp}

	assert.False(t, code.Expired(exp.Add(-time.Second)))
	assert.True(t, code.Expired(exp)) // now >= expiresAt
	assert.True(t, code.Expired(exp.Add(time.Second)))
}
