package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"water-dispatch-backend/config"
	"water-dispatch-backend/internal/events"
	"water-dispatch-backend/internal/geo"
	"water-dispatch-backend/internal/model"
	"water-dispatch-backend/internal/parse"
	"water-dispatch-backend/internal/requestsvc"
	"water-dispatch-backend/internal/store"
)

// RequestService is the part of the external request service the monitor uses.
type RequestService interface {
	CreateRequest(ctx context.Context, req requestsvc.EmergencyRequest) (*requestsvc.EmergencyRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]requestsvc.EmergencyRequest, error)
}

// StateStore persists monitor state and the recent-activity log.
type StateStore interface {
	LoadState(ctx context.Context, userID string) (store.MonitorState, error)
	SaveState(ctx context.Context, state store.MonitorState) error
	AppendActivity(ctx context.Context, entry model.Activity, limit int) error
	RecentActivity(ctx context.Context, userID string, limit int) ([]model.Activity, error)
}

// Notifier delivers user-facing notices.
type Notifier interface {
	Notify(userID, title, body string)
}

// NopNotifier drops every notice.
type NopNotifier struct{}

func (NopNotifier) Notify(string, string, string) {}

// Requester identifies the user a monitor acts for.
type Requester struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Deps are the collaborators shared by every monitor.
type Deps struct {
	Service  RequestService
	Store    StateStore
	Catalog  *geo.Catalog
	Notifier Notifier
	Events   events.Publisher
	Log      *zap.Logger
	Now      func() time.Time
	// Rand is used for location synthesis. Monitors seed their own source when nil.
	Rand *rand.Rand
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Phase is the dispatch state of a monitor.
type Phase string

const (
	PhaseNormal      Phase = "normal"
	PhaseRequestSent Phase = "request_sent"
)

// Snapshot is a point-in-time copy of a monitor's state.
type Snapshot struct {
	UserID          string           `json:"userId"`
	Level           int              `json:"level"`
	AutoRequestSent bool             `json:"autoRequestSent"`
	Phase           Phase            `json:"phase"`
	Activity        []model.Activity `json:"activity"`
}

// Monitor is the emergency dispatch monitor of one user.
//
// Every operation runs under mu, so level changes, submissions and completion
// resets apply in a single order. autoRequestSent is the only guard against
// duplicate automatic submissions.
type Monitor struct {
	cfg       config.DispatchConfig
	requester Requester
	deps      Deps
	rnd       *rand.Rand
	log       *zap.Logger

	mu           sync.Mutex
	state        store.MonitorState
	activity     []model.Activity
	acknowledged map[string]time.Time

	polling atomic.Bool

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor at the configured initial level.
// Call Load to restore persisted state.
func NewMonitor(cfg config.DispatchConfig, requester Requester, deps Deps) *Monitor {
	deps = deps.withDefaults()
	rnd := deps.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Monitor{
		cfg:       cfg,
		requester: requester,
		deps:      deps,
		rnd:       rnd,
		log:       deps.Log.With(zap.String("user", requester.ID)),
		state: store.MonitorState{
			UserID: requester.ID,
			Level:  parse.Clamp(cfg.InitialLevel),
		},
		acknowledged: make(map[string]time.Time),
	}
}

// Requester returns the identity the monitor submits requests for.
func (m *Monitor) Requester() Requester {
	return m.requester
}

// Load restores persisted state and the recent-activity log. A user without
// stored state keeps the initial level.
func (m *Monitor) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.deps.Store.LoadState(ctx, m.requester.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load monitor state: %w", err)
	default:
		m.state = state
	}

	entries, err := m.deps.Store.RecentActivity(ctx, m.requester.ID, m.cfg.ActivityLimit)
	if err != nil {
		return fmt.Errorf("load recent activity: %w", err)
	}
	m.activity = entries
	tankLevel.WithLabelValues(m.requester.ID).Set(float64(m.state.Level))
	return nil
}

// Save persists the current state.
func (m *Monitor) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deps.Store.SaveState(ctx, m.state)
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Monitor) snapshot() Snapshot {
	phase := PhaseNormal
	if m.state.AutoRequestSent {
		phase = PhaseRequestSent
	}
	return Snapshot{
		UserID:          m.requester.ID,
		Level:           m.state.Level,
		AutoRequestSent: m.state.AutoRequestSent,
		Phase:           phase,
		Activity:        append([]model.Activity{}, m.activity...),
	}
}

// SetLevel clamps and stores a new tank level. Dropping to or below the
// critical threshold submits one automatic request per crossing; rising above
// the recovery threshold re-arms the trigger. The level change sticks even when
// the submission fails, in which case the submission error is returned.
func (m *Monitor) SetLevel(ctx context.Context, newLevel int) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLevel(ctx, newLevel)
}

// AdjustLevel applies a simulated increment or decrement. Deltas beyond a
// full tank are saturated.
func (m *Monitor) AdjustLevel(ctx context.Context, delta int) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLevel(ctx, m.state.Level+max(-100, min(delta, 100)))
}

func (m *Monitor) setLevel(ctx context.Context, newLevel int) (Snapshot, error) {
	level := parse.Clamp(newLevel)
	m.state.Level = level

	var submitErr error
	if level <= m.cfg.CriticalThreshold && !m.state.AutoRequestSent {
		submitErr = m.submitAutomaticRequest(ctx, level)
	}
	if level > m.cfg.RecoveryThreshold {
		m.state.AutoRequestSent = false
	}

	m.persist(ctx)
	tankLevel.WithLabelValues(m.requester.ID).Set(float64(level))
	return m.snapshot(), submitErr
}

// submitAutomaticRequest sends one Critical request for the current crossing.
// On failure autoRequestSent stays unset so the next qualifying change retries.
func (m *Monitor) submitAutomaticRequest(ctx context.Context, level int) error {
	loc := m.synthesizeLocation()
	req := requestsvc.EmergencyRequest{
		RequesterID:         m.requester.ID,
		RequesterLabel:      m.requester.Label,
		LocationLabel:       loc.Label(),
		Coordinates:         loc.Coordinates,
		RequestType:         m.cfg.RequestType,
		Priority:            requestsvc.PriorityCritical,
		WaterLevelAtRequest: parse.FormatLevel(level),
		Description: fmt.Sprintf("Automatic emergency request: tank water level dropped to %d%%, at or below the critical threshold of %d%%. Immediate water supply needed.",
			level, m.cfg.CriticalThreshold),
		CreatedAt: m.deps.Now().UTC(),
	}

	created, err := m.create(ctx, req, originAutomatic)
	if err != nil {
		m.log.Warn("automatic emergency request failed", zap.Int("level", level), zap.Error(err))
		return fmt.Errorf("automatic emergency request: %w", err)
	}

	m.state.AutoRequestSent = true
	m.log.Info("automatic emergency request submitted",
		zap.String("request", created.ID), zap.Int("level", level), zap.String("location", req.LocationLabel))

	msg := fmt.Sprintf("Critical request submitted at %s water level for %s", req.WaterLevelAtRequest, req.LocationLabel)
	m.record(ctx, model.ActivityAutoRequest, "Emergency Request Sent", msg, level, created.ID)
	m.deps.Notifier.Notify(m.requester.ID, "Emergency Request Sent", msg)
	m.publish(ctx, events.TypeRequestCreated, level, created.ID, string(requestsvc.PriorityCritical), true)
	return nil
}

// SubmitManualRequest validates and submits a user-filled request. Invalid
// drafts return a *ValidationError without contacting the service.
func (m *Monitor) SubmitManualRequest(ctx context.Context, draft EmergencyRequestDraft) (*requestsvc.EmergencyRequest, error) {
	valid, err := draft.validate()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		label  string
		coords geo.Coordinates
	)
	if m.cfg.ManualLocation == config.ManualLocationReported {
		label = valid.location
		coords = m.deps.Catalog.Reference().Coordinates
	} else {
		loc := m.synthesizeLocation()
		label = loc.Label()
		coords = loc.Coordinates
	}

	req := requestsvc.EmergencyRequest{
		RequesterID:         m.requester.ID,
		RequesterLabel:      m.requester.Label,
		LocationLabel:       label,
		Coordinates:         coords,
		RequestType:         m.cfg.RequestType,
		Priority:            valid.priority,
		WaterLevelAtRequest: parse.FormatLevel(valid.level),
		Description:         valid.description,
		CreatedAt:           m.deps.Now().UTC(),
	}

	created, err := m.create(ctx, req, originManual)
	if err != nil {
		m.log.Warn("manual emergency request failed", zap.Error(err))
		return nil, fmt.Errorf("manual emergency request: %w", err)
	}

	msg := fmt.Sprintf("%s priority request submitted at %s water level for %s", req.Priority, req.WaterLevelAtRequest, label)
	m.record(ctx, model.ActivityManualRequest, "Manual Request Sent", msg, valid.level, created.ID)
	m.deps.Notifier.Notify(m.requester.ID, "Manual Request Sent", msg)
	m.publish(ctx, events.TypeRequestCreated, valid.level, created.ID, string(req.Priority), false)
	return created, nil
}

func (m *Monitor) create(ctx context.Context, req requestsvc.EmergencyRequest, origin string) (*requestsvc.EmergencyRequest, error) {
	start := time.Now()
	created, err := m.deps.Service.CreateRequest(ctx, req)
	submitLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		requestsSubmitted.WithLabelValues(origin, resultFailure).Inc()
		return nil, err
	}
	requestsSubmitted.WithLabelValues(origin, resultSuccess).Inc()
	return created, nil
}

// PollForCompletion asks the service for this requester's requests and, while
// a delivery completed within the completion window exists, refills the tank
// and clears the dispatch flag. Every such poll resets; the activity entry,
// notification and event are emitted once per completed request.
// A poll started while another is in flight is skipped. Errors are logged and
// swallowed. It reports whether a reset happened.
func (m *Monitor) PollForCompletion(ctx context.Context) bool {
	if !m.polling.CompareAndSwap(false, true) {
		completionPolls.WithLabelValues(pollSkipped).Inc()
		return false
	}
	defer m.polling.Store(false)

	requests, err := m.deps.Service.ListByRequester(ctx, m.requester.ID)
	if err != nil {
		completionPolls.WithLabelValues(pollError).Inc()
		m.log.Warn("completion poll failed", zap.Error(err))
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.deps.Now()
	m.pruneAcknowledged(now)

	var qualifying, fresh []requestsvc.EmergencyRequest
	for _, r := range requests {
		if !r.Status.IsCompleted() || r.CompletedAt == nil {
			continue
		}
		if now.Sub(*r.CompletedAt) > m.cfg.CompletionWindow {
			continue
		}
		qualifying = append(qualifying, r)
		if _, seen := m.acknowledged[r.ID]; seen && r.ID != "" {
			continue
		}
		fresh = append(fresh, r)
	}
	if len(qualifying) == 0 {
		completionPolls.WithLabelValues(pollIdle).Inc()
		return false
	}

	m.state.Level = parse.Clamp(m.cfg.ResetLevel)
	m.state.AutoRequestSent = false
	m.persist(ctx)
	tankLevel.WithLabelValues(m.requester.ID).Set(float64(m.state.Level))
	completionPolls.WithLabelValues(pollCompleted).Inc()

	if len(fresh) == 0 {
		return true
	}
	for _, r := range fresh {
		if r.ID != "" {
			m.acknowledged[r.ID] = *r.CompletedAt
		}
	}

	first := fresh[0]
	msg := fmt.Sprintf("Water delivered to %s; tank refilled to %s", first.LocationLabel, parse.FormatLevel(m.state.Level))
	m.log.Info("delivery completed", zap.String("request", first.ID), zap.Int("completed", len(fresh)))
	m.record(ctx, model.ActivityDeliveryCompleted, "Delivery Completed", msg, m.state.Level, first.ID)
	m.deps.Notifier.Notify(m.requester.ID, "Delivery Completed", msg)
	m.publish(ctx, events.TypeDeliveryCompleted, m.state.Level, first.ID, string(first.Priority), false)
	return true
}

func (m *Monitor) pruneAcknowledged(now time.Time) {
	for id, completedAt := range m.acknowledged {
		if now.Sub(completedAt) > m.cfg.CompletionWindow {
			delete(m.acknowledged, id)
		}
	}
}

// synthesizeLocation picks an eligible catalog entry, falling back to the
// reference point when none is in range.
func (m *Monitor) synthesizeLocation() geo.CandidateLocation {
	loc, err := m.deps.Catalog.Pick(m.rnd)
	if err != nil {
		m.log.Warn("no eligible candidate location, using reference point", zap.Error(err))
		return m.deps.Catalog.Reference()
	}
	return loc
}

func (m *Monitor) persist(ctx context.Context) {
	if err := m.deps.Store.SaveState(ctx, m.state); err != nil {
		m.log.Warn("failed to persist monitor state", zap.Error(err))
	}
}

func (m *Monitor) record(ctx context.Context, kind model.ActivityKind, title, message string, level int, requestID string) {
	entry := model.Activity{
		ID:        uuid.NewString(),
		UserID:    m.requester.ID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Level:     level,
		RequestID: requestID,
		CreatedAt: m.deps.Now().UTC(),
	}

	m.activity = append([]model.Activity{entry}, m.activity...)
	if limit := m.cfg.ActivityLimit; limit > 0 && len(m.activity) > limit {
		m.activity = m.activity[:limit]
	}
	if err := m.deps.Store.AppendActivity(ctx, entry, m.cfg.ActivityLimit); err != nil {
		m.log.Warn("failed to persist activity", zap.Error(err))
	}
}

func (m *Monitor) publish(ctx context.Context, eventType string, level int, requestID, priority string, automatic bool) {
	e := events.NewEvent(eventType, m.requester.ID, level)
	e.RequestID = requestID
	e.Priority = priority
	e.Automatic = automatic
	if err := m.deps.Events.Publish(ctx, e); err != nil {
		m.log.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
