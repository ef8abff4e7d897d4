package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"teamline/internal/domain"
	"teamline/internal/metrics"
	"teamline/internal/repo"
)

const (
	defaultRelayInterval = 2 * time.Second
	defaultRelayBatch    = 100
)

// Publisher is the subset of *nats.Conn the relay needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Relay tails the events table and publishes each new event to NATS on
// <prefix>.<project>.<type>. Delivery stops at the first failure and resumes
// from the same event on the next tick.
type Relay struct {
	Repo     repo.Repo
	Conn     Publisher
	Prefix   string
	Logger   *zap.Logger
	Interval time.Duration
	Batch    int

	mu     sync.Mutex
	cursor int64
	seeked bool
}

// Message is the JSON body published for an event.
type Message struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

// Subject returns the NATS subject for an event.
func Subject(prefix string, evt domain.Event) string {
	if prefix == "" {
		prefix = "teamline"
	}
	project := evt.ProjectID
	if project == "" {
		project = "_"
	}
	return strings.Join([]string{prefix, project, evt.Type}, ".")
}

func (r *Relay) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Seek moves the cursor to the newest stored event so only events written
// after startup are relayed.
func (r *Relay) Seek(ctx context.Context) error {
	id, err := r.Repo.LatestEventID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cursor = id
	r.seeked = true
	r.mu.Unlock()
	return nil
}

// Cursor returns the id of the last relayed event.
func (r *Relay) Cursor() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	r.mu.Lock()
	seeked := r.seeked
	r.mu.Unlock()
	if !seeked {
		if err := r.Seek(ctx); err != nil {
			r.logger().Warn("relay: init cursor failed", zap.Error(err))
		}
	}
	interval := r.Interval
	if interval <= 0 {
		interval = defaultRelayInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger().Warn("relay: dispatch failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce publishes one batch of pending events and returns how many
// were delivered.
func (r *Relay) DispatchOnce(ctx context.Context) (int, error) {
	batch := r.Batch
	if batch <= 0 {
		batch = defaultRelayBatch
	}
	evts, err := r.Repo.EventsAfter(ctx, batch, r.Cursor())
	if err != nil {
		return 0, err
	}
	m := metrics.Get()
	sent := 0
	for _, evt := range evts {
		data, err := json.Marshal(toMessage(evt))
		if err != nil {
			return sent, err
		}
		if err := r.Conn.Publish(Subject(r.Prefix, evt), data); err != nil {
			m.RelayFailuresTotal.Inc()
			r.logger().Warn("relay: publish failed", zap.Int64("event_id", evt.ID), zap.String("type", evt.Type), zap.Error(err))
			return sent, err
		}
		m.RelayPublishedTotal.Inc()
		r.mu.Lock()
		r.cursor = evt.ID
		r.mu.Unlock()
		sent++
	}
	return sent, nil
}

func toMessage(evt domain.Event) Message {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return Message{
		ID:         evt.ID,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	}
}
