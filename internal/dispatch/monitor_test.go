package dispatch

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"water-dispatch-backend/config"
	"water-dispatch-backend/internal/model"
	"water-dispatch-backend/internal/requestsvc"
	"water-dispatch-backend/internal/store"
)

func setLevels(t *testing.T, m *Monitor, levels ...int) Snapshot {
	t.Helper()
	var snap Snapshot
	for _, l := range levels {
		var err error
		snap, err = m.SetLevel(context.Background(), l)
		require.NoError(t, err)
	}
	return snap
}

func TestMonitor_CrossingCriticalSubmitsOnce(t *testing.T) {
	f := newFixture(t)

	snap := setLevels(t, f.monitor, 40, 30)

	created := f.svc.Created()
	require.Len(t, created, 1)
	req := created[0]
	assert.Equal(t, requestsvc.PriorityCritical, req.Priority)
	assert.Equal(t, "30%", req.WaterLevelAtRequest)
	assert.Equal(t, "branch-1", req.RequesterID)
	assert.Equal(t, "Branch One", req.RequesterLabel)
	assert.Equal(t, "Emergency Water Supply", req.RequestType)
	assert.Contains(t, req.Description, "30%")
	assert.Contains(t, req.Description, "35%")
	assert.True(t, testNow.Equal(req.CreatedAt))

	assert.Equal(t, 30, snap.Level)
	assert.True(t, snap.AutoRequestSent)
	assert.Equal(t, PhaseRequestSent, snap.Phase)
	require.Len(t, snap.Activity, 1)
	assert.Equal(t, model.ActivityAutoRequest, snap.Activity[0].Kind)
	assert.Equal(t, "Emergency Request Sent", snap.Activity[0].Title)
	assert.Equal(t, "req-a", snap.Activity[0].RequestID)
	assert.Equal(t, []string{"Emergency Request Sent"}, f.notifier.Titles())

	stored, ok := f.store.State("branch-1")
	require.True(t, ok)
	assert.Equal(t, store.MonitorState{UserID: "branch-1", Level: 30, AutoRequestSent: true}, stored)
}

func TestMonitor_SubmittedLocationIsEligible(t *testing.T) {
	f := newFixture(t)
	setLevels(t, f.monitor, 10)

	created := f.svc.Created()
	require.Len(t, created, 1)

	eligible := map[string]bool{}
	for _, loc := range f.catalog.Eligible() {
		eligible[loc.Label()] = true
	}
	assert.True(t, eligible[created[0].LocationLabel], "location %q is not an eligible candidate", created[0].LocationLabel)
}

func TestMonitor_FlagSequences(t *testing.T) {
	testCases := []struct {
		name     string
		levels   []int
		expected int
	}{
		{"further drop does not resubmit", []int{30, 20}, 1},
		{"recovery re-arms", []int{30, 60, 34}, 2},
		{"exactly critical triggers", []int{35}, 1},
		{"above critical never triggers", []int{36, 80, 40}, 0},
		{"recovery threshold itself does not re-arm", []int{30, 50, 30}, 1},
		{"just above recovery re-arms", []int{30, 51, 35}, 2},
		{"repeated crossings", []int{10, 90, 10, 90, 10}, 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			setLevels(t, f.monitor, tc.levels...)
			assert.Len(t, f.svc.Created(), tc.expected)
		})
	}
}

func TestMonitor_LevelIsClamped(t *testing.T) {
	f := newFixture(t)
	for l := -50; l <= 150; l += 7 {
		snap, err := f.monitor.SetLevel(context.Background(), l)
		require.NoError(t, err)

		want := l
		if want < 0 {
			want = 0
		}
		if want > 100 {
			want = 100
		}
		assert.Equal(t, want, snap.Level, "SetLevel(%d)", l)
	}
}

func TestMonitor_AdjustLevel(t *testing.T) {
	f := newFixture(t)

	snap, err := f.monitor.AdjustLevel(context.Background(), -70)
	require.NoError(t, err)
	assert.Equal(t, 30, snap.Level)
	assert.Len(t, f.svc.Created(), 1)

	snap, err = f.monitor.AdjustLevel(context.Background(), -45)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Level)

	snap, err = f.monitor.AdjustLevel(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, 100, snap.Level)
	assert.False(t, snap.AutoRequestSent)
}

func TestMonitor_AdjustLevelSaturates(t *testing.T) {
	f := newFixture(t)

	snap, err := f.monitor.AdjustLevel(context.Background(), math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 100, snap.Level)
	assert.False(t, snap.AutoRequestSent)
	assert.Empty(t, f.svc.Created())

	snap, err = f.monitor.AdjustLevel(context.Background(), math.MinInt)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Level)
	assert.Len(t, f.svc.Created(), 1)

	setLevels(t, f.monitor, 60)
	snap, err = f.monitor.AdjustLevel(context.Background(), math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 100, snap.Level)
	assert.Len(t, f.svc.Created(), 1)
}

func TestMonitor_FailedSubmissionRetriesOnNextChange(t *testing.T) {
	f := newFixture(t)
	f.svc.SetCreateErr(errUnavailable)

	snap, err := f.monitor.SetLevel(context.Background(), 30)
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, 30, snap.Level)
	assert.False(t, snap.AutoRequestSent)
	assert.Empty(t, snap.Activity)
	assert.Empty(t, f.notifier.Titles())

	f.svc.SetCreateErr(nil)
	snap, err = f.monitor.SetLevel(context.Background(), 29)
	require.NoError(t, err)
	assert.True(t, snap.AutoRequestSent)
	require.Len(t, f.svc.Created(), 1)
	assert.Equal(t, "29%", f.svc.Created()[0].WaterLevelAtRequest)
}

func TestMonitor_PersistFailureDoesNotBlockLevelChange(t *testing.T) {
	f := newFixture(t)
	f.store.saveErr = errors.New("disk full")

	snap, err := f.monitor.SetLevel(context.Background(), 70)
	require.NoError(t, err)
	assert.Equal(t, 70, snap.Level)
}

func TestMonitor_ActivityIsBounded(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		setLevels(t, f.monitor, 20, 90)
	}
	for i := 0; i < 3; i++ {
		_, err := f.monitor.SubmitManualRequest(context.Background(), EmergencyRequestDraft{
			Location: "Main St", Description: "low pressure", WaterLevel: "40", Urgency: UrgencyLow,
		})
		require.NoError(t, err)
	}

	snap := f.monitor.Snapshot()
	require.Len(t, snap.Activity, 5)
	for _, e := range snap.Activity[:3] {
		assert.Equal(t, model.ActivityManualRequest, e.Kind)
	}
	for _, e := range snap.Activity[3:] {
		assert.Equal(t, model.ActivityAutoRequest, e.Kind)
	}

	stored, err := f.store.RecentActivity(context.Background(), "branch-1", 0)
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func TestMonitor_LoadRestoresState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveState(context.Background(), store.MonitorState{UserID: "branch-1", Level: 20, AutoRequestSent: true}))
	require.NoError(t, f.store.AppendActivity(context.Background(), model.Activity{
		ID: "x", UserID: "branch-1", Kind: model.ActivityAutoRequest, Title: "Emergency Request Sent",
	}, 5))

	require.NoError(t, f.monitor.Load(context.Background()))
	snap := f.monitor.Snapshot()
	assert.Equal(t, 20, snap.Level)
	assert.True(t, snap.AutoRequestSent)
	require.Len(t, snap.Activity, 1)

	// the restored flag suppresses a second submission for the same crossing
	setLevels(t, f.monitor, 15)
	assert.Empty(t, f.svc.Created())
}

func TestMonitor_LoadWithoutStoredState(t *testing.T) {
	f := newFixture(t, func(c *config.DispatchConfig) { c.InitialLevel = 80 })
	require.NoError(t, f.monitor.Load(context.Background()))

	want := Snapshot{UserID: "branch-1", Level: 80, Phase: PhaseNormal, Activity: []model.Activity{}}
	if diff := cmp.Diff(want, f.monitor.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestMonitor_PollResetsOnRecentCompletion(t *testing.T) {
	f := newFixture(t)
	setLevels(t, f.monitor, 30)

	f.svc.SetList([]requestsvc.EmergencyRequest{
		{ID: "req-a", Status: requestsvc.StatusCompleted, CompletedAt: completedAt(5 * time.Minute), LocationLabel: "Kotte, Colombo"},
	})

	assert.True(t, f.monitor.PollForCompletion(context.Background()))
	snap := f.monitor.Snapshot()
	assert.Equal(t, 100, snap.Level)
	assert.False(t, snap.AutoRequestSent)
	assert.Equal(t, PhaseNormal, snap.Phase)
	require.NotEmpty(t, snap.Activity)
	assert.Equal(t, model.ActivityDeliveryCompleted, snap.Activity[0].Kind)
	assert.Equal(t, "Delivery Completed", snap.Activity[0].Title)
	assert.Contains(t, f.notifier.Titles(), "Delivery Completed")

	stored, _ := f.store.State("branch-1")
	assert.Equal(t, 100, stored.Level)
	assert.False(t, stored.AutoRequestSent)
}

func TestMonitor_PollIgnoresStaleOrOpenRequests(t *testing.T) {
	testCases := []struct {
		name    string
		request requestsvc.EmergencyRequest
	}{
		{"completed fifteen minutes ago", requestsvc.EmergencyRequest{ID: "r", Status: requestsvc.StatusCompleted, CompletedAt: completedAt(15 * time.Minute)}},
		{"completed without timestamp", requestsvc.EmergencyRequest{ID: "r", Status: requestsvc.StatusCompleted}},
		{"still in progress", requestsvc.EmergencyRequest{ID: "r", Status: requestsvc.StatusInProgress, CompletedAt: completedAt(time.Minute)}},
		{"approved and sent", requestsvc.EmergencyRequest{ID: "r", Status: requestsvc.StatusApprovedSent}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			setLevels(t, f.monitor, 30)
			f.svc.SetList([]requestsvc.EmergencyRequest{tc.request})

			assert.False(t, f.monitor.PollForCompletion(context.Background()))
			snap := f.monitor.Snapshot()
			assert.Equal(t, 30, snap.Level)
			assert.True(t, snap.AutoRequestSent)
		})
	}
}

func TestMonitor_PollAtWindowBoundary(t *testing.T) {
	f := newFixture(t)
	setLevels(t, f.monitor, 30)
	f.svc.SetList([]requestsvc.EmergencyRequest{
		{ID: "r", Status: requestsvc.StatusCompleted, CompletedAt: completedAt(10 * time.Minute)},
	})
	assert.True(t, f.monitor.PollForCompletion(context.Background()))
}

func TestMonitor_PollResetsWhileCompletionInWindow(t *testing.T) {
	f := newFixture(t)
	f.svc.SetList([]requestsvc.EmergencyRequest{
		{ID: "req-a", Status: requestsvc.StatusCompleted, CompletedAt: completedAt(2 * time.Minute)},
	})

	assert.True(t, f.monitor.PollForCompletion(context.Background()))
	setLevels(t, f.monitor, 40)

	assert.True(t, f.monitor.PollForCompletion(context.Background()))
	snap := f.monitor.Snapshot()
	assert.Equal(t, 100, snap.Level)
	assert.False(t, snap.AutoRequestSent)

	deliveries := func() int {
		n := 0
		for _, e := range f.monitor.Snapshot().Activity {
			if e.Kind == model.ActivityDeliveryCompleted {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 1, deliveries(), "one activity entry per completed request")
	assert.Equal(t, []string{"Delivery Completed"}, f.notifier.Titles())

	f.svc.SetList([]requestsvc.EmergencyRequest{
		{ID: "req-a", Status: requestsvc.StatusCompleted, CompletedAt: completedAt(2 * time.Minute)},
		{ID: "req-b", Status: requestsvc.StatusCompleted, CompletedAt: completedAt(time.Minute)},
	})
	setLevels(t, f.monitor, 20)
	assert.True(t, f.monitor.PollForCompletion(context.Background()))
	assert.Equal(t, 100, f.monitor.Snapshot().Level)
	assert.Equal(t, 2, deliveries())
}

func TestMonitor_PollStopsResettingOnceWindowCloses(t *testing.T) {
	f := newFixture(t)
	now := testNow
	deps := f.deps()
	deps.Now = func() time.Time { return now }
	f.monitor = NewMonitor(f.cfg, Requester{ID: "branch-1"}, deps)

	f.svc.SetList([]requestsvc.EmergencyRequest{
		{ID: "req-a", Status: requestsvc.StatusCompleted, CompletedAt: completedAt(time.Minute)},
	})
	assert.True(t, f.monitor.PollForCompletion(context.Background()))

	now = testNow.Add(10 * time.Minute)
	setLevels(t, f.monitor, 60)
	assert.False(t, f.monitor.PollForCompletion(context.Background()))
	assert.Equal(t, 60, f.monitor.Snapshot().Level)
}

func TestMonitor_PollErrorIsSwallowed(t *testing.T) {
	f := newFixture(t)
	setLevels(t, f.monitor, 30)
	f.svc.listErr = errUnavailable

	assert.False(t, f.monitor.PollForCompletion(context.Background()))
	snap := f.monitor.Snapshot()
	assert.Equal(t, 30, snap.Level)
	assert.True(t, snap.AutoRequestSent)
}

func TestMonitor_PollSkipsWhileInFlight(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.svc.listGate = gate

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.monitor.PollForCompletion(context.Background())
	}()

	require.Eventually(t, func() bool { return f.svc.ListCalls() == 1 }, time.Second, 5*time.Millisecond)

	assert.False(t, f.monitor.PollForCompletion(context.Background()))
	assert.Equal(t, 1, f.svc.ListCalls())

	close(gate)
	wg.Wait()

	f.monitor.PollForCompletion(context.Background())
	assert.Equal(t, 2, f.svc.ListCalls())
}

func TestMonitor_SubmitManualRequest(t *testing.T) {
	testCases := []struct {
		urgency  Urgency
		expected requestsvc.Priority
	}{
		{UrgencyHigh, requestsvc.PriorityHigh},
		{UrgencyMedium, requestsvc.PriorityMedium},
		{UrgencyLow, requestsvc.PriorityLow},
		{"  HIGH ", requestsvc.PriorityHigh},
	}

	for _, tc := range testCases {
		t.Run(string(tc.urgency), func(t *testing.T) {
			f := newFixture(t)
			created, err := f.monitor.SubmitManualRequest(context.Background(), EmergencyRequestDraft{
				Location:    "42 Lake Road",
				Description: "  tank valve broken  ",
				WaterLevel:  "45%",
				Urgency:     tc.urgency,
			})
			require.NoError(t, err)
			require.NotNil(t, created)

			sent := f.svc.Created()
			require.Len(t, sent, 1)
			assert.Equal(t, tc.expected, sent[0].Priority)
			assert.Equal(t, "45%", sent[0].WaterLevelAtRequest)
			assert.Equal(t, "tank valve broken", sent[0].Description)
			assert.NotEqual(t, "42 Lake Road", sent[0].LocationLabel)

			snap := f.monitor.Snapshot()
			assert.Equal(t, 100, snap.Level)
			assert.False(t, snap.AutoRequestSent)
			require.Len(t, snap.Activity, 1)
			assert.Equal(t, "Manual Request Sent", snap.Activity[0].Title)
		})
	}
}

func TestMonitor_SubmitManualRequestReportedLocation(t *testing.T) {
	f := newFixture(t, func(c *config.DispatchConfig) { c.ManualLocation = config.ManualLocationReported })

	_, err := f.monitor.SubmitManualRequest(context.Background(), EmergencyRequestDraft{
		Location: "42 Lake Road", Description: "dry", WaterLevel: "10", Urgency: UrgencyMedium,
	})
	require.NoError(t, err)

	sent := f.svc.Created()
	require.Len(t, sent, 1)
	assert.Equal(t, "42 Lake Road", sent[0].LocationLabel)
	assert.Equal(t, f.catalog.Reference().Coordinates, sent[0].Coordinates)
}

func TestMonitor_SubmitManualRequestValidation(t *testing.T) {
	testCases := []struct {
		name   string
		draft  EmergencyRequestDraft
		fields []string
	}{
		{"empty draft", EmergencyRequestDraft{}, []string{"description", "location", "urgency", "waterLevel"}},
		{"blank location", EmergencyRequestDraft{Location: "  ", Description: "d", WaterLevel: "10", Urgency: UrgencyLow}, []string{"location"}},
		{"level not a number", EmergencyRequestDraft{Location: "l", Description: "d", WaterLevel: "half", Urgency: UrgencyLow}, []string{"waterLevel"}},
		{"level out of range", EmergencyRequestDraft{Location: "l", Description: "d", WaterLevel: "120%", Urgency: UrgencyLow}, []string{"waterLevel"}},
		{"unknown urgency", EmergencyRequestDraft{Location: "l", Description: "d", WaterLevel: "10", Urgency: "critical"}, []string{"urgency"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.monitor.SubmitManualRequest(context.Background(), tc.draft)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			got := make([]string, 0, len(verr.Fields))
			for name := range verr.Fields {
				got = append(got, name)
			}
			assert.ElementsMatch(t, tc.fields, got)
			assert.Empty(t, f.svc.Created())
			assert.Empty(t, f.monitor.Snapshot().Activity)
		})
	}
}

func TestMonitor_SubmitManualRequestServiceFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.SetCreateErr(errUnavailable)

	_, err := f.monitor.SubmitManualRequest(context.Background(), EmergencyRequestDraft{
		Location: "l", Description: "d", WaterLevel: "10", Urgency: UrgencyHigh,
	})
	require.ErrorIs(t, err, errUnavailable)

	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
	assert.Empty(t, f.monitor.Snapshot().Activity)
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"urgency": "is required", "location": "is required"}}
	assert.Equal(t, "invalid emergency request: location is required, urgency is required", err.Error())
}
