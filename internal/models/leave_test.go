package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextStatusParentDecisions(t *testing.T) {
	next, err := NextStatus(LeaveStatusPendingParent, LeaveEventParentApprove, ActorParent)
	require.NoError(t, err)
	require.Equal(t, LeaveStatusApprovedByParent, next)

	next, err = NextStatus(LeaveStatusPendingParent, LeaveEventParentReject, ActorParent)
	require.NoError(t, err)
	require.Equal(t, LeaveStatusRejectedByParent, next)

	// Migrated rows carrying the old pending marker behave the same.
	next, err = NextStatus(LeaveStatusLegacyPending, LeaveEventParentApprove, ActorParent)
	require.NoError(t, err)
	require.Equal(t, LeaveStatusApprovedByParent, next)
}

func TestNextStatusWardenRequiresParentApproval(t *testing.T) {
	next, err := NextStatus(LeaveStatusApprovedByParent, LeaveEventWardenApprove, ActorWarden)
	require.NoError(t, err)
	require.Equal(t, LeaveStatusApproved, next)

	for _, from := range []LeaveStatus{
		LeaveStatusPendingParent,
		LeaveStatusLegacyPending,
		LeaveStatusRejectedByParent,
		LeaveStatusApproved,
		LeaveStatusRejected,
		LeaveStatusCancelled,
	} {
		_, err := NextStatus(from, LeaveEventWardenApprove, ActorWarden)
		require.Error(t, err, "warden approve from %s", from)
		_, err = NextStatus(from, LeaveEventWardenReject, ActorWarden)
		require.Error(t, err, "warden reject from %s", from)
	}
}

func TestNextStatusCancelOnlyWhilePending(t *testing.T) {
	for _, from := range []LeaveStatus{LeaveStatusPendingParent, LeaveStatusLegacyPending} {
		next, err := NextStatus(from, LeaveEventCancel, ActorStudent)
		require.NoError(t, err)
		require.Equal(t, LeaveStatusCancelled, next)
	}

	for _, from := range []LeaveStatus{
		LeaveStatusApprovedByParent,
		LeaveStatusRejectedByParent,
		LeaveStatusApproved,
		LeaveStatusRejected,
		LeaveStatusCancelled,
	} {
		_, err := NextStatus(from, LeaveEventCancel, ActorStudent)
		require.Error(t, err, "cancel from %s", from)
	}
}

func TestNextStatusRejectsWrongActor(t *testing.T) {
	_, err := NextStatus(LeaveStatusPendingParent, LeaveEventParentApprove, ActorStudent)
	require.Error(t, err)

	_, err = NextStatus(LeaveStatusApprovedByParent, LeaveEventWardenApprove, ActorParent)
	require.Error(t, err)

	_, err = NextStatus(LeaveStatusPendingParent, LeaveEventCancel, ActorWarden)
	require.Error(t, err)
}

func TestNextStatusUnknownEvent(t *testing.T) {
	_, err := NextStatus(LeaveStatusPendingParent, LeaveEvent("ESCALATE"), ActorWarden)
	require.Error(t, err)
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	events := []struct {
		event LeaveEvent
		actor LeaveActor
	}{
		{LeaveEventParentApprove, ActorParent},
		{LeaveEventParentReject, ActorParent},
		{LeaveEventWardenApprove, ActorWarden},
		{LeaveEventWardenReject, ActorWarden},
		{LeaveEventCancel, ActorStudent},
	}
	for _, status := range []LeaveStatus{LeaveStatusApproved, LeaveStatusRejected, LeaveStatusRejectedByParent, LeaveStatusCancelled} {
		require.True(t, status.Terminal())
		for _, e := range events {
			_, err := NextStatus(status, e.event, e.actor)
			require.Error(t, err, "%s from %s", e.event, status)
		}
	}
}

func TestStatusHistoryAppendLeavesReceiverIntact(t *testing.T) {
	first := LeaveStatusChange{Status: LeaveStatusPendingParent, Role: ActorStudent, Timestamp: time.Now()}
	history := LeaveStatusHistory{first}

	grown := history.Append(LeaveStatusChange{Status: LeaveStatusApprovedByParent, Role: ActorParent})
	require.Len(t, history, 1)
	require.Len(t, grown, 2)
	require.Equal(t, LeaveStatusApprovedByParent, grown[1].Status)

	// A second branch from the same snapshot must not clobber the first.
	other := history.Append(LeaveStatusChange{Status: LeaveStatusCancelled, Role: ActorStudent})
	require.Equal(t, LeaveStatusApprovedByParent, grown[1].Status)
	require.Equal(t, LeaveStatusCancelled, other[1].Status)
}

func TestStatusHistoryScanRoundTrip(t *testing.T) {
	history := LeaveStatusHistory{{
		Status:    LeaveStatusPendingParent,
		Role:      ActorStudent,
		UpdatedBy: "student-1",
		Timestamp: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}}

	raw, err := history.Value()
	require.NoError(t, err)

	var decoded LeaveStatusHistory
	require.NoError(t, decoded.Scan(raw))
	require.Len(t, decoded, 1)
	require.Equal(t, "student-1", decoded[0].UpdatedBy)

	var fromNil LeaveStatusHistory
	require.NoError(t, fromNil.Scan(nil))
	require.Nil(t, fromNil)
}
