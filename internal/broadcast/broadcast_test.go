package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/albapepper/scoracle-live/internal/match"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	id string
	mu sync.Mutex
	ms []Message
}

func (r *recorder) ID() string { return r.id }
func (r *recorder) Deliver(m Message, _ []byte) error {
	r.mu.Lock()
	r.ms = append(r.ms, m)
	r.mu.Unlock()
	return nil
}
func (r *recorder) types() []match.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]match.EventType, len(r.ms))
	for i, m := range r.ms {
		out[i] = m.Type
	}
	return out
}

type refusing struct{ id string }

func (r refusing) ID() string                   { return r.id }
func (r refusing) Deliver(Message, []byte) error { return ErrClosed }

type staticDir map[string][]Subscriber

func (d staticDir) Members(id string) []Subscriber { return d[id] }

type mirrorRec struct {
	mu sync.Mutex
	ms []Message
}

func (m *mirrorRec) Mirror(msg Message) {
	m.mu.Lock()
	m.ms = append(m.ms, msg)
	m.mu.Unlock()
}

func TestMessage_Envelope(t *testing.T) {
	ts := time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC)
	data, err := Encode(Message{
		Type:      match.ScoreUpdate,
		FixtureID: "fx1",
		Version:   7,
		Payload:   map[string]int{"homeScore": 1},
		SentAt:    ts,
	})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["event"] != "score-update" || got["fixtureId"] != "fx1" || got["ts"] != "2026-03-01T15:04:05Z" {
		t.Errorf("envelope = %s", data)
	}
	if got["version"] != float64(7) {
		t.Errorf("version = %v, want 7", got["version"])
	}
	if d, ok := got["data"].(map[string]any); !ok || d["homeScore"] != float64(1) {
		t.Errorf("data = %v", got["data"])
	}
}

func TestHub_PublishToRoomOnly(t *testing.T) {
	a, b, other := &recorder{id: "a"}, &recorder{id: "b"}, &recorder{id: "c"}
	mirror := &mirrorRec{}
	h := NewHub(staticDir{"fx1": {a, b}, "fx2": {other}}, discardLogger(), WithMirror(mirror))

	if n := h.Publish("fx1", 2, match.ScoreUpdate, nil); n != 2 {
		t.Errorf("delivered %d, want 2", n)
	}
	if len(a.types()) != 1 || len(b.types()) != 1 {
		t.Error("room members should each get one message")
	}
	if len(other.types()) != 0 {
		t.Error("other room must not receive fx1 events")
	}
	if len(mirror.ms) != 1 || mirror.ms[0].FixtureID != "fx1" {
		t.Errorf("mirror saw %d messages", len(mirror.ms))
	}
}

func TestHub_FailureIsIsolated(t *testing.T) {
	good := &recorder{id: "good"}
	h := NewHub(staticDir{"fx1": {refusing{id: "gone"}, good}}, discardLogger())

	if n := h.Publish("fx1", 2, match.MinuteUpdate, match.MinutePayload{CurrentMinute: 3}); n != 1 {
		t.Errorf("delivered %d, want 1", n)
	}
	if len(good.types()) != 1 {
		t.Error("healthy subscriber missed the message")
	}
}

func TestHub_PublishDeltaKeepsOrder(t *testing.T) {
	r := &recorder{id: "r"}
	h := NewHub(staticDir{"fx1": {r}}, discardLogger())

	var d match.Delta
	d.Add(match.SubstitutionUpdate, nil)
	d.Add(match.TimelineUpdate, nil)
	d.Add(match.LineupUpdate, nil)
	h.PublishDelta("fx1", 4, d)

	got := r.types()
	want := []match.EventType{match.SubstitutionUpdate, match.TimelineUpdate, match.LineupUpdate}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

// chanWriter hands every frame to a channel; block makes it hang until released.
type chanWriter struct {
	frames chan []byte
	block  chan struct{}
}

func (w *chanWriter) WriteFrame(data []byte, _ time.Time) error {
	if w.block != nil {
		<-w.block
	}
	w.frames <- data
	return nil
}

func TestOutbox_FIFO(t *testing.T) {
	w := &chanWriter{frames: make(chan []byte, 100)}
	o := NewOutbox("c1", 100, w, time.Second, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	for i := 0; i < 50; i++ {
		if err := o.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	for i := 0; i < 50; i++ {
		select {
		case got := <-w.frames:
			if got[0] != byte(i) {
				t.Fatalf("frame %d arrived at position %d", got[0], i)
			}
		case <-time.After(time.Second):
			t.Fatalf("frame %d not written", i)
		}
	}
}

func TestOutbox_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	slowW := &chanWriter{frames: make(chan []byte, 10), block: make(chan struct{})}
	fastW := &chanWriter{frames: make(chan []byte, 10)}
	slow := NewOutbox("slow", 1, slowW, time.Second, discardLogger())
	fast := NewOutbox("fast", 10, fastW, time.Second, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go slow.Run(ctx)
	go fast.Run(ctx)
	defer close(slowW.block)

	h := NewHub(staticDir{"fx1": {slow, fast}}, discardLogger())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Publish("fx1", int64(i+1), match.CheerUpdate, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	for i := 0; i < 5; i++ {
		select {
		case <-fastW.frames:
		case <-time.After(time.Second):
			t.Fatalf("fast subscriber got %d of 5 frames", i)
		}
	}
	if slow.Dropped() == 0 {
		t.Error("slow subscriber should have dropped frames")
	}
}

func TestOutbox_Closed(t *testing.T) {
	o := NewOutbox("c1", 4, &chanWriter{frames: make(chan []byte, 4)}, time.Second, discardLogger())
	o.Close()
	o.Close()
	if err := o.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
	select {
	case <-o.Done():
	default:
		t.Error("Done should be closed")
	}
}

type failingWriter struct{}

func (failingWriter) WriteFrame([]byte, time.Time) error { return errors.New("broken pipe") }

func TestOutbox_RunStopsOnWriteError(t *testing.T) {
	o := NewOutbox("c1", 4, failingWriter{}, time.Second, discardLogger())
	o.Send([]byte("x"))
	if err := o.Run(context.Background()); err == nil {
		t.Fatal("Run should return the write error")
	}
	if err := o.Send([]byte("y")); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed after Run exits", err)
	}
}

func TestMessage_AudienceFrameHasNoVersion(t *testing.T) {
	data, err := Encode(Message{Type: match.AudienceUpdate, FixtureID: "fx1", Payload: match.AudiencePayload{Count: 3}})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if _, ok := got["version"]; ok {
		t.Errorf("audience frame carries a version: %s", data)
	}
}
