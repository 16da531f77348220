package simulator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/model"
)

// fakeSender records what was sent and returns a scripted response.
type fakeSender struct {
	platform string
	body     []byte
	status   int
	resp     []byte
	err      error
}

func (f *fakeSender) TriggerWebhook(_ context.Context, platform string, rawBody []byte) (int, []byte, error) {
	f.platform = platform
	f.body = rawBody
	return f.status, f.resp, f.err
}

func TestSend(t *testing.T) {
	sender := &fakeSender{status: 200, resp: []byte(`{"matched_rules": 1}`)}
	sim := New(sender, catalog.Default(), 16)

	result, err := sim.Send(context.Background(), "zendesk", `{"ticket": {"id": 1}}`)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.Status != 200 {
		t.Errorf("status = %d", result.Status)
	}
	if sender.platform != "zendesk" {
		t.Errorf("sender platform = %q", sender.platform)
	}
	if string(sender.body) != `{"ticket": {"id": 1}}` {
		t.Errorf("payload forwarded = %q, want verbatim", sender.body)
	}

	entries := sim.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want sent + response", len(entries))
	}
	if entries[0].Kind != KindSent || entries[1].Kind != KindResponse {
		t.Errorf("kinds = [%s %s]", entries[0].Kind, entries[1].Kind)
	}
	if entries[1].Status != 200 {
		t.Errorf("response status = %d", entries[1].Status)
	}
}

func TestSend_invalidPayloadRefusedBeforeSending(t *testing.T) {
	sender := &fakeSender{status: 200}
	sim := New(sender, catalog.Default(), 16)

	_, err := sim.Send(context.Background(), "zendesk", `{"ticket":`)
	if err == nil {
		t.Fatal("invalid JSON payload should be refused")
	}
	if ee, ok := err.(*model.ErrorEnvelope); !ok || ee.Code != model.ErrJSONParse {
		t.Errorf("error = %v, want JSON_PARSE_ERROR", err)
	}
	if sender.platform != "" {
		t.Error("nothing should reach the backend")
	}
	if len(sim.Entries()) != 0 {
		t.Errorf("entries = %v, refused sends are not logged", sim.Entries())
	}
}

func TestSend_unknownPlatform(t *testing.T) {
	sim := New(&fakeSender{}, catalog.Default(), 16)

	_, err := sim.Send(context.Background(), "slack", `{}`)
	if err == nil {
		t.Fatal("slack fires no triggers, Send should be refused")
	}
	if ee, ok := err.(*model.ErrorEnvelope); !ok || ee.Code != model.ErrCatalogMiss {
		t.Errorf("error = %v, want CATALOG_MISS", err)
	}
}

func TestSend_backendErrorLogged(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection refused")}
	sim := New(sender, catalog.Default(), 16)

	if _, err := sim.Send(context.Background(), "freshdesk", `{}`); err == nil {
		t.Fatal("sender error should propagate")
	}
	entries := sim.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want sent + error", len(entries))
	}
	if entries[1].Kind != KindError || entries[1].Message != "connection refused" {
		t.Errorf("error entry = %+v", entries[1])
	}
}

func TestRingEviction(t *testing.T) {
	sim := New(&fakeSender{}, catalog.Default(), 3)

	for i := 0; i < 5; i++ {
		sim.Log(fmt.Sprintf("entry %d", i))
	}
	entries := sim.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want capacity 3", len(entries))
	}
	for i, e := range entries {
		want := fmt.Sprintf("entry %d", i+2)
		if e.Message != want {
			t.Errorf("entry[%d] = %q, want %q", i, e.Message, want)
		}
	}
}

func TestClear(t *testing.T) {
	sim := New(&fakeSender{}, catalog.Default(), 8)
	sim.Log("one")
	sim.Log("two")

	sim.Clear()
	if got := sim.Entries(); len(got) != 0 {
		t.Errorf("entries after clear = %v", got)
	}
	sim.Log("three")
	if got := sim.Entries(); len(got) != 1 || got[0].Message != "three" {
		t.Errorf("entries = %v, ring should keep working after clear", got)
	}
}

func TestSubscribe(t *testing.T) {
	sim := New(&fakeSender{}, catalog.Default(), 8)
	ch, cancel := sim.Subscribe()
	defer cancel()

	sim.Log("hello")

	select {
	case e := <-ch:
		if e.Message != "hello" || e.Kind != KindInfo {
			t.Errorf("entry = %+v", e)
		}
		if e.Timestamp.IsZero() {
			t.Error("entry timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the entry")
	}
}

func TestSubscribe_cancelStopsDelivery(t *testing.T) {
	sim := New(&fakeSender{}, catalog.Default(), 8)
	ch, cancel := sim.Subscribe()
	cancel()
	// Cancel twice is safe.
	cancel()

	sim.Log("after cancel")
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
}

func TestSamplePayload(t *testing.T) {
	sim := New(&fakeSender{}, catalog.Default(), 8)

	payload, err := sim.SamplePayload("zendesk")
	if err != nil {
		t.Fatalf("SamplePayload() error = %v", err)
	}
	if payload == "" {
		t.Error("sample payload is empty")
	}
	if _, err := sim.SamplePayload("trello"); err == nil {
		t.Error("SamplePayload(trello) should fail")
	}
}

func TestSummarize(t *testing.T) {
	if got := summarize(nil); got != "(empty response)" {
		t.Errorf("summarize(nil) = %q", got)
	}
	if got := summarize([]byte("{\n  \"ok\": true\n}")); got != `{"ok":true}` {
		t.Errorf("summarize should compact JSON, got %q", got)
	}
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	if got := summarize(long); len(got) != 503 {
		t.Errorf("summarize long body length = %d, want truncation to 500+ellipsis", len(got))
	}
}
