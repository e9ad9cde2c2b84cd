package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_Covers(t *testing.T) {
	assert.True(t, LevelRead.Covers(ModeRead))
	assert.False(t, LevelRead.Covers(ModeWrite))
	assert.True(t, LevelReadWrite.Covers(ModeRead))
	assert.True(t, LevelReadWrite.Covers(ModeWrite))
}

func TestScope_IsValid(t *testing.T) {
	assert.False(t, Scope{}.IsValid(), "empty scope grants nothing")
	assert.True(t, Scope{"lab_report", "xray"}.IsValid())
	assert.True(t, Scope{ScopeAll}.IsValid())
	assert.False(t, Scope{"lab_report", "diary"}.IsValid())
}

func TestScope_Covers(t *testing.T) {
	narrow := Scope{"lab_report", "xray"}
	assert.True(t, narrow.Covers("lab_report"))
	assert.False(t, narrow.Covers("prescription"))
	assert.False(t, narrow.Covers(ScopeAll), "whole-history access needs an explicit wildcard grant")

	wild := Scope{ScopeAll}
	assert.True(t, wild.Covers("prescription"))
	assert.True(t, wild.Covers(ScopeAll))
}

func newRequest(t *testing.T) *AccessRequest {
	t.Helper()
	return &AccessRequest{
		Reason:     "follow-up",
		Level:      LevelRead,
		Scope:      Scope{"lab_report"},
		ExpiryDays: 7,
		Status:     StatusPending,
		CreatedAt:  time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
}

func TestAccessRequest_Approve(t *testing.T) {
	r := newRequest(t)
	now := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.Approve(now, "take care"))

	assert.Equal(t, StatusApproved, r.Status)
	assert.Equal(t, "take care", r.ResponderNote)
	require.NotNil(t, r.RespondedAt)
	require.NotNil(t, r.ExpiresAt)
	assert.Equal(t, now.Add(7*24*time.Hour), *r.ExpiresAt)
}

func TestAccessRequest_TerminalStatesRejectTransitions(t *testing.T) {
	now := time.Now()

	denied := newRequest(t)
	require.NoError(t, denied.Deny(now, ""))
	assert.ErrorIs(t, denied.Approve(now, ""), ErrNotPending)
	assert.ErrorIs(t, denied.Revoke(now), ErrNotApproved)

	revoked := newRequest(t)
	require.NoError(t, revoked.Approve(now, ""))
	require.NoError(t, revoked.Revoke(now))
	assert.ErrorIs(t, revoked.Approve(now, ""), ErrNotPending)
	assert.ErrorIs(t, revoked.Expire(), ErrNotApproved)

	pending := newRequest(t)
	assert.ErrorIs(t, pending.Revoke(now), ErrNotApproved)
	assert.ErrorIs(t, pending.Expire(), ErrNotApproved)
}

func TestAccessRequest_Expire(t *testing.T) {
	r := newRequest(t)
	require.NoError(t, r.Approve(time.Now(), ""))
	require.NoError(t, r.Expire())
	assert.Equal(t, StatusExpired, r.Status)
	assert.True(t, r.Expired)
}

func TestAccessRequest_ActiveAt(t *testing.T) {
	r := newRequest(t)
	now := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)

	assert.False(t, r.ActiveAt(now), "pending requests grant nothing")

	require.NoError(t, r.Approve(now, ""))
	assert.True(t, r.ActiveAt(now.Add(time.Hour)))
	assert.True(t, r.ActiveAt(now.Add(7*24*time.Hour-time.Second)))
	assert.False(t, r.ActiveAt(now.Add(7*24*time.Hour)), "the expiry instant itself is no longer active")

	require.NoError(t, r.Revoke(now.Add(time.Hour)))
	assert.False(t, r.ActiveAt(now.Add(2*time.Hour)))
}

func TestAccessRequest_ResponseTimeHours(t *testing.T) {
	r := newRequest(t)
	assert.Zero(t, r.ResponseTimeHours())

	responded := r.CreatedAt.Add(36 * time.Hour)
	require.NoError(t, r.Approve(responded, ""))
	assert.Equal(t, 36.0, r.ResponseTimeHours())
}
