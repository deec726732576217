// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/clubsync/internal/bus"
	"github.com/ManuGH/clubsync/internal/connectivity"
	"github.com/ManuGH/clubsync/internal/domain"
	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/queue"
	"github.com/ManuGH/clubsync/internal/sandbox"
	"github.com/ManuGH/clubsync/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
)

func TestRetryCount_GrowsByOneAndFailsExactlyOnce(t *testing.T) {
	archiver := &recordingArchiver{}
	o, b := newReady(t, WithArchiver(archiver))
	ctx := context.Background()

	goOffline(t, o, b)
	_, err := o.Enroll(ctx, "couch-to-5k", weight(50))
	require.Error(t, err)

	b.Catalog.Fail("Enrollments", errBoom)
	b.SetNetwork(true)
	require.NoError(t, o.SetConnectivity(ctx, true, "test"))

	for want := 1; want < o.Settings().Retry.MaxRetries; want++ {
		pending := o.PendingOperations()
		require.Len(t, pending, 1)
		assert.Equal(t, want, pending[0].RetryCount)
		assert.Contains(t, pending[0].LastError, "boom")
		require.NoError(t, o.PerformFullSync(ctx))
	}

	assert.Empty(t, o.PendingOperations())
	failed := o.FailedOperations()
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].Operation.RetryCount)
	assert.Equal(t, queue.KindEnrollment, failed[0].Operation.Kind)

	var exhausted int
	for _, e := range o.CurrentErrors() {
		if e.Kind == OperationFailed {
			exhausted++
			assert.Equal(t, failed[0].Operation.ID.String(), e.OperationID)
		}
	}
	assert.Equal(t, 1, exhausted)
	require.Len(t, archiver.Records(), 1)
	assert.Equal(t, failed[0].Operation.ID.String(), archiver.Records()[0].ID)

	require.NoError(t, o.PerformFullSync(ctx))
	assert.Len(t, o.FailedOperations(), 1)
	assert.Len(t, archiver.Records(), 1)
}

func TestOffline_NothingIsDispatched(t *testing.T) {
	o, b := newReady(t)
	session := enrolled(t, o, "strength-basics")
	goOffline(t, o, b)
	ctx := context.Background()
	enrollCalls := b.Catalog.Calls("Enroll")

	last := 0
	steps := []func(){
		func() { _, _ = o.Enroll(ctx, "couch-to-5k", weight(50)) },
		func() { _, _ = o.RecordWorkout(ctx, workout("w1", time.Hour, time.Hour), session.ID) },
		func() { o.drainDue(ctx) },
		func() { _ = o.PerformFullSync(ctx) },
		func() { _ = o.SyncHealthBridge(ctx, session.ID) },
		func() { o.CheckHealth(ctx) },
		func() { _, _ = o.Enroll(ctx, "mobility-daily", weight(20)) },
	}
	for _, step := range steps {
		step()
		n := o.queue.Len()
		assert.GreaterOrEqual(t, n, last, "queue never shrinks while offline")
		last = n
	}

	assert.Equal(t, 4, last)
	assert.Equal(t, enrollCalls, b.Catalog.Calls("Enroll"))
	assert.Zero(t, b.Catalog.Calls("RecordWorkout"))
	for _, op := range o.PendingOperations() {
		assert.Zero(t, op.RetryCount)
	}

	err := o.PerformFullSync(ctx)
	require.ErrorIs(t, err, ErrOfflineMode)
	assert.True(t, o.Offline())
}

func TestReconnect_RunsExactlyOneFullSync(t *testing.T) {
	o, b := newReady(t)
	session := enrolled(t, o, "couch-to-5k")
	ctx := context.Background()
	goOffline(t, o, b)

	for i := range 3 {
		_, err := o.RecordWorkout(ctx, workout(string(rune('a'+i)), time.Hour, time.Hour), session.ID)
		require.Error(t, err)
	}
	require.Equal(t, 3, o.queue.Len())

	sub, err := o.Bus().Subscribe(ctx, TopicSyncChanged)
	require.NoError(t, err)
	defer sub.Close()

	goOnline(t, o, b)
	require.NoError(t, o.SetConnectivity(ctx, true, "duplicate notification"))

	assert.Equal(t, 1, b.Catalog.Calls("Refresh"))
	assert.Zero(t, o.queue.Len())
	workouts, err := b.Catalog.Workouts(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, workouts, 3)

	var syncing int
drain:
	for {
		select {
		case msg := <-sub.C():
			if msg.(SyncChanged).Current.State == SyncStateSyncing {
				syncing++
			}
		default:
			break drain
		}
	}
	assert.Equal(t, 1, syncing)
}

func TestHealthDrivenModeTransitions(t *testing.T) {
	o, b := newReady(t)
	session := enrolled(t, o, "couch-to-5k")
	ctx := context.Background()

	b.SetNetwork(false)
	snap := o.CheckHealth(ctx)
	assert.True(t, snap.Get(health.ServiceNetwork).IsError())
	require.True(t, o.Offline())
	assert.Equal(t, SyncStateOffline, o.SyncStatus().State)

	_, err := o.RecordWorkout(ctx, workout("w1", time.Hour, time.Hour), session.ID)
	require.ErrorIs(t, err, ErrWorkoutRecordFailed)
	require.Equal(t, 1, o.queue.Len())

	b.SetNetwork(true)
	snap = o.CheckHealth(ctx)
	assert.False(t, o.Offline())
	assert.True(t, snap.Get(health.ServiceNetwork).IsHealthy())
	assert.Equal(t, 1, b.Catalog.Calls("Refresh"))
	assert.Zero(t, o.queue.Len())
	assert.Equal(t, SyncStateCompleted, o.SyncStatus().State)

	o.CheckHealth(ctx)
	assert.Equal(t, 1, b.Catalog.Calls("Refresh"), "no sync without a transition")
}

func TestLostSession_GoesOfflineAndRecovers(t *testing.T) {
	o, b := newReady(t)

	b.Auth.SetAuthenticated(false)
	o.CheckHealth(context.Background())

	assert.True(t, o.Offline())
	assert.Equal(t, "offline", string(o.Mode()))
	assert.True(t, o.ServiceHealth().Get(health.ServiceAuth).IsError())
	assert.Zero(t, b.Auth.Calls("EstablishAnonymousSession"), "no restore on the pass that lost the session")

	o.CheckHealth(context.Background())

	assert.False(t, o.Offline(), "next pass re-establishes the session")
	assert.True(t, b.Auth.IsAuthenticated())
	assert.Equal(t, 1, b.Auth.Calls("EstablishAnonymousSession"))
	assert.True(t, o.ServiceHealth().Get(health.ServiceAuth).IsHealthy())
	assert.Equal(t, StatusReady, o.Status().State)
	assert.Equal(t, SyncStateCompleted, o.SyncStatus().State, "reconnect runs a full sync")
}

func TestLostSession_WaitsForNetworkBeforeRestoring(t *testing.T) {
	o, b := newReady(t)
	ctx := context.Background()
	b.Auth.SetAuthenticated(false)
	o.CheckHealth(ctx)
	require.True(t, o.Offline())

	b.Auth.Fail("EstablishAnonymousSession", domain.ErrNetworkUnavailable)
	o.CheckHealth(ctx)
	assert.True(t, o.Offline())
	assert.Equal(t, StatusReady, o.Status().State, "network loss is not critical")
	assert.Empty(t, o.CriticalErrors())

	b.Auth.Heal()
	o.CheckHealth(ctx)
	assert.False(t, o.Offline())
}

func TestLostSession_RestoreFailureEscalatesAndInitializeRecovers(t *testing.T) {
	o, b := newReady(t)
	ctx := context.Background()
	b.Auth.SetAuthenticated(false)
	o.CheckHealth(ctx)
	require.True(t, o.Offline())

	b.Auth.Fail("EstablishAnonymousSession", errBoom)
	o.CheckHealth(ctx)
	assert.True(t, o.Offline())
	assert.Equal(t, StatusFailed, o.Status().State)
	require.Len(t, o.CriticalErrors(), 1)
	assert.Equal(t, InitializationFailed, o.CriticalErrors()[0].Kind)

	b.Auth.Heal()
	require.NoError(t, o.Initialize(ctx))
	assert.False(t, o.Offline())
	assert.Equal(t, StatusReady, o.Status().State)
	assert.Empty(t, o.CriticalErrors())
}

func TestCheckHealth_IndependentServices(t *testing.T) {
	o, b := newReady(t)
	b.Challenges.Fail("Ping", errBoom)
	b.Bridge.SetAuthorized(false)
	b.Plan.SetGenerating(true)

	snap := o.CheckHealth(context.Background())

	assert.True(t, snap.Get(health.ServiceCatalog).IsHealthy())
	assert.True(t, snap.Get(health.ServiceChallenges).IsError())
	assert.Equal(t, health.StateDegraded, snap.Get(health.ServicePlanEngine).State)
	assert.Equal(t, health.StateDegraded, snap.Get(health.ServiceHealthBridge).State)
	assert.True(t, snap.Get(health.ServiceEntitlements).IsHealthy())
	assert.True(t, snap.Get(health.ServiceAuth).IsHealthy())
	assert.False(t, o.Offline(), "non-critical failures keep the system online")
}

func TestPerformFullSync_SessionFailureIsCritical(t *testing.T) {
	o, b := newReady(t)
	ctx := context.Background()
	b.Auth.SetAuthenticated(false)
	b.Auth.Fail("EstablishAnonymousSession", errBoom)

	err := o.PerformFullSync(ctx)
	require.ErrorIs(t, err, ErrSyncFailed)
	assert.True(t, o.Offline())
	assert.Equal(t, StatusFailed, o.Status().State)
	assert.Equal(t, SyncStateOffline, o.SyncStatus().State)
	require.Len(t, o.CriticalErrors(), 1)
	assert.Equal(t, CategoryCritical, o.CriticalErrors()[0].Category)

	require.ErrorIs(t, o.PerformFullSync(ctx), ErrOfflineMode)

	b.Auth.Heal()
	require.NoError(t, o.Initialize(ctx))
	assert.False(t, o.Offline())
	assert.Equal(t, StatusReady, o.Status().State)
	assert.Equal(t, SyncStateCompleted, o.SyncStatus().State)
}

func TestPerformFullSync_NetworkFailureGoesOffline(t *testing.T) {
	o, b := newReady(t)
	b.Catalog.Fail("Refresh", domain.ErrNetworkUnavailable)

	err := o.PerformFullSync(context.Background())
	require.ErrorIs(t, err, ErrSyncFailed)
	assert.True(t, o.Offline())
	assert.Equal(t, SyncStateOffline, o.SyncStatus().State)
}

func TestPerformFullSync_OtherFailure(t *testing.T) {
	o, b := newReady(t)
	b.Challenges.Fail("Refresh", errBoom)

	err := o.PerformFullSync(context.Background())
	require.ErrorIs(t, err, ErrSyncFailed)
	assert.False(t, o.Offline())
	assert.Equal(t, SyncStateFailed, o.SyncStatus().State)
	require.Len(t, o.CurrentErrors(), 1)
	assert.Equal(t, SyncFailed, o.CurrentErrors()[0].Kind)

	b.Challenges.Heal()
	require.NoError(t, o.PerformFullSync(context.Background()))
	st := o.SyncStatus()
	assert.Equal(t, SyncStateCompleted, st.State)
	assert.False(t, st.LastCompletedAt.IsZero())
}

func TestPerformFullSync_ReestablishesSession(t *testing.T) {
	o, b := newReady(t)
	b.Auth.SetAuthenticated(false)

	require.NoError(t, o.PerformFullSync(context.Background()))
	assert.True(t, b.Auth.IsAuthenticated())
	assert.Equal(t, 1, b.Auth.Calls("EstablishAnonymousSession"))
}

func TestModeChanges_ArePublished(t *testing.T) {
	o, b := newReady(t)
	ctx := context.Background()
	sub, err := o.Bus().Subscribe(ctx, TopicModeChanged)
	require.NoError(t, err)
	defer sub.Close()

	goOffline(t, o, b)

	select {
	case msg := <-sub.C():
		ev, ok := msg.(ModeChanged)
		require.True(t, ok)
		assert.Equal(t, connectivity.Online, ev.Transition.From)
		assert.Equal(t, connectivity.Offline, ev.Transition.To)
		assert.Equal(t, "test", ev.Transition.Reason)
	case <-time.After(time.Second):
		t.Fatal("mode change not published")
	}
}

func TestQueueChanges_ArePublishedOnSharedBus(t *testing.T) {
	shared := bus.NewMemoryBus(8)
	o, b := newReady(t, WithBus(shared))
	ctx := context.Background()
	sub, err := shared.Subscribe(ctx, TopicQueueChanged)
	require.NoError(t, err)
	defer sub.Close()

	goOffline(t, o, b)
	_, err = o.Enroll(ctx, "couch-to-5k", weight(50))
	require.Error(t, err)

	select {
	case msg := <-sub.C():
		assert.Equal(t, QueueChanged{Pending: 1}, msg)
	case <-time.After(time.Second):
		t.Fatal("queue change not published")
	}
}

func TestOperations_AreTraced(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	o, b := newReady(t, WithTracerProvider(tp))
	goOffline(t, o, b)
	_, err := o.Enroll(context.Background(), "couch-to-5k", weight(50))
	require.Error(t, err)

	var enroll sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		if s.Name() == "integration.Enroll" {
			enroll = s
		}
	}
	require.NotNil(t, enroll)
	attrs := map[string]string{}
	for _, kv := range enroll.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "couch-to-5k", attrs[telemetry.ProgramIDKey])
	assert.Equal(t, "true", attrs[telemetry.QueuedKey])
	assert.Equal(t, string(queue.KindEnrollment), attrs[telemetry.OperationKind])
	assert.Equal(t, string(EnrollmentFailed), attrs[telemetry.ErrorTypeKey])
}

func TestScheduler_DrainsInBackgroundAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := sandbox.NewDemoBackend()
	s := testSettings()
	s.SyncInterval = 10 * time.Millisecond
	s.HealthInterval = 20 * time.Millisecond
	o, err := New(collaborators(b), s)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, o.Initialize(ctx))

	b.Catalog.Fail("Enroll", errBoom)
	_, err = o.Enroll(ctx, "couch-to-5k", weight(50))
	require.ErrorIs(t, err, ErrEnrollmentFailed)
	b.Catalog.Heal()

	o.Start(ctx)
	o.Start(ctx)
	require.Eventually(t, func() bool { return o.queue.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, b.Catalog.EnrollmentCount("couch-to-5k"))

	s.SyncInterval = 15 * time.Millisecond
	require.NoError(t, o.ApplySettings(s))

	require.NoError(t, o.Close())
	require.NoError(t, o.Close())
}

func TestScheduler_PausedWhileOffline(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := sandbox.NewDemoBackend()
	s := testSettings()
	s.SyncInterval = 5 * time.Millisecond
	s.HealthInterval = time.Hour
	o, err := New(collaborators(b), s)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, o.Initialize(ctx))
	goOffline(t, o, b)
	_, err = o.Enroll(ctx, "couch-to-5k", weight(50))
	require.Error(t, err)

	o.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, o.queue.Len())
	assert.Zero(t, b.Catalog.Calls("Enrollments"))

	goOnline(t, o, b)
	assert.Zero(t, o.queue.Len())
	require.NoError(t, o.Close())
}

func TestScheduler_RetriesFailedInitialization(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := sandbox.NewBackend(sandbox.DemoPrograms()...)
	b.Auth.Fail("EstablishAnonymousSession", errBoom)
	s := testSettings()
	s.SyncInterval = time.Hour
	s.HealthInterval = 5 * time.Millisecond
	o, err := New(collaborators(b), s)
	require.NoError(t, err)
	ctx := context.Background()
	require.ErrorIs(t, o.Initialize(ctx), ErrInitializationFailed)

	o.Start(ctx)
	b.Auth.Heal()
	require.Eventually(t, func() bool { return o.Status().State == StatusReady }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, o.Offline())
	require.NoError(t, o.Close())
}
