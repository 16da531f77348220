// Package simulator sends hand-crafted webhook payloads to the automation
// backend and keeps a bounded, timestamped log of what happened, so rule
// authors can exercise their triggers without waiting for the real platform
// to fire.
package simulator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/model"
)

// Kind classifies a log entry.
type Kind string

const (
	KindSent     Kind = "sent"
	KindResponse Kind = "response"
	KindError    Kind = "error"
	KindInfo     Kind = "info"
)

// Entry is one line of the simulator log.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Platform  string    `json:"platform,omitempty"`
	Message   string    `json:"message"`
	Status    int       `json:"status,omitempty"`
}

// Result is what a send attempt produced, for callers that want the
// backend's answer as well as the log side effect.
type Result struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Sender posts a raw webhook payload to the backend. *client.Client
// satisfies it.
type Sender interface {
	TriggerWebhook(ctx context.Context, platform string, rawBody []byte) (int, []byte, error)
}

// Simulator owns the bounded log and the delivery path. Safe for
// concurrent use.
type Simulator struct {
	mu       sync.Mutex
	sender   Sender
	catalog  *catalog.Catalog
	entries  []Entry
	start    int
	count    int
	capacity int
	subs     map[chan Entry]struct{}
}

// New creates a simulator with the given log capacity. Capacity below 1
// falls back to 256.
func New(sender Sender, cat *catalog.Catalog, capacity int) *Simulator {
	if capacity < 1 {
		capacity = 256
	}
	return &Simulator{
		sender:   sender,
		catalog:  cat,
		entries:  make([]Entry, capacity),
		capacity: capacity,
		subs:     make(map[chan Entry]struct{}),
	}
}

// SamplePayload returns the canned payload for a trigger platform, ready
// to paste into the payload box.
func (s *Simulator) SamplePayload(platform string) (string, error) {
	return s.catalog.SamplePayload(platform)
}

// Send validates the payload as JSON, posts it verbatim to the backend's
// webhook receiver for the platform, and logs both the attempt and the
// outcome. A payload that does not parse as JSON is refused before
// anything is sent.
func (s *Simulator) Send(ctx context.Context, platform, payload string) (Result, error) {
	if !s.catalog.IsTriggerPlatform(platform) {
		return Result{}, model.NewCatalogMissError(platform)
	}
	if !json.Valid([]byte(payload)) {
		return Result{}, model.NewJSONParseError("payload", "payload is not valid JSON")
	}

	s.append(Entry{Kind: KindSent, Platform: platform, Message: "webhook sent"})

	status, body, err := s.sender.TriggerWebhook(ctx, platform, []byte(payload))
	if err != nil {
		s.append(Entry{Kind: KindError, Platform: platform, Message: err.Error()})
		return Result{}, err
	}

	s.append(Entry{
		Kind:     KindResponse,
		Platform: platform,
		Message:  summarize(body),
		Status:   status,
	})

	return Result{Status: status, Body: json.RawMessage(body)}, nil
}

// Log appends a free-form info entry.
func (s *Simulator) Log(message string) {
	s.append(Entry{Kind: KindInfo, Message: message})
}

// Entries returns the log oldest first. The ring never holds more than
// the configured capacity; older entries are evicted.
func (s *Simulator) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, s.count)
	for i := 0; i < s.count; i++ {
		out = append(out, s.entries[(s.start+i)%s.capacity])
	}
	return out
}

// Clear empties the log.
func (s *Simulator) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = 0
	s.count = 0
}

// Subscribe returns a channel receiving every new entry from now on,
// plus a cancel function that must be called when done. Slow consumers
// drop entries rather than block the senders.
func (s *Simulator) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, 32)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Simulator) append(e Entry) {
	e.Timestamp = time.Now().UTC()

	s.mu.Lock()
	if s.count < s.capacity {
		s.entries[(s.start+s.count)%s.capacity] = e
		s.count++
	} else {
		s.entries[s.start] = e
		s.start = (s.start + 1) % s.capacity
	}
	for ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
	s.mu.Unlock()
}

// summarize compacts a backend response body into a single log line.
func summarize(body []byte) string {
	if len(body) == 0 {
		return "(empty response)"
	}
	var compact json.RawMessage
	if err := json.Unmarshal(body, &compact); err == nil {
		var buf []byte
		if buf, err = json.Marshal(compact); err == nil {
			body = buf
		}
	}
	msg := string(body)
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}
	return msg
}
