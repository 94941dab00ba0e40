package subscription

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/albapepper/scoracle-live/internal/broadcast"
	"github.com/albapepper/scoracle-live/internal/match"
)

type conn struct {
	id string
	mu sync.Mutex
	ms []broadcast.Message
}

func (c *conn) ID() string { return c.id }
func (c *conn) Deliver(m broadcast.Message, _ []byte) error {
	c.mu.Lock()
	c.ms = append(c.ms, m)
	c.mu.Unlock()
	return nil
}

func (c *conn) audience() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []int
	for _, m := range c.ms {
		if m.Type == match.AudienceUpdate {
			out = append(out, m.Payload.(match.AudiencePayload).Count)
		}
	}
	return out
}

func newRegistry() *Registry {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestJoin_CountsAndIdempotent(t *testing.T) {
	r := newRegistry()
	a, b := &conn{id: "a"}, &conn{id: "b"}

	if n := r.Join(a, "fx1"); n != 1 {
		t.Errorf("first join count %d, want 1", n)
	}
	if n := r.Join(b, "fx1"); n != 2 {
		t.Errorf("second join count %d, want 2", n)
	}
	if n := r.Join(a, "fx1"); n != 2 {
		t.Errorf("repeat join count %d, want 2", n)
	}
	if got := a.audience(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("a saw audience %v, want [1 2]", got)
	}
}

func TestJoin_SwitchFixtures(t *testing.T) {
	r := newRegistry()
	watcherA, watcherB, mover := &conn{id: "wa"}, &conn{id: "wb"}, &conn{id: "m"}
	r.Join(watcherA, "A")
	r.Join(watcherB, "B")
	r.Join(mover, "A")

	if n := r.Join(mover, "B"); n != 2 {
		t.Errorf("count for B %d, want 2", n)
	}
	if r.CountFor("A") != 1 {
		t.Errorf("count for A %d, want 1", r.CountFor("A"))
	}
	if got := watcherA.audience(); got[len(got)-1] != 1 {
		t.Errorf("A watcher last audience %v, want 1", got)
	}
	if got := watcherB.audience(); got[len(got)-1] != 2 {
		t.Errorf("B watcher last audience %v, want 2", got)
	}
	if id, _ := r.FixtureOf("m"); id != "B" {
		t.Errorf("mover watches %q, want B", id)
	}
}

func TestLeave(t *testing.T) {
	r := newRegistry()
	a, b := &conn{id: "a"}, &conn{id: "b"}
	r.Join(a, "fx1")
	r.Join(b, "fx1")

	fixtureID, n := r.Leave("a")
	if fixtureID != "fx1" || n != 1 {
		t.Errorf("Leave = (%q, %d), want (fx1, 1)", fixtureID, n)
	}
	if fixtureID, n := r.Leave("a"); fixtureID != "" || n != 0 {
		t.Errorf("second Leave = (%q, %d), want empty", fixtureID, n)
	}
	if len(a.audience()) != 2 {
		t.Error("a should receive nothing after leaving")
	}
}

func TestDisconnect_WithoutJoin(t *testing.T) {
	r := newRegistry()
	r.Disconnect("never-joined")
	if len(r.Rooms()) != 0 {
		t.Error("disconnect of an unknown connection changed rooms")
	}
}

func TestDisconnect_EmptiesRoom(t *testing.T) {
	r := newRegistry()
	r.Join(&conn{id: "a"}, "fx1")
	r.Disconnect("a")
	if r.CountFor("fx1") != 0 {
		t.Errorf("count %d, want 0", r.CountFor("fx1"))
	}
	if _, ok := r.Rooms()["fx1"]; ok {
		t.Error("empty room should be removed")
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	r := newRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &conn{id: fmt.Sprintf("c%d", i)}
			r.Join(c, "fx1")
			if i%2 == 0 {
				r.Join(c, "fx2")
			}
			if i%4 == 0 {
				r.Disconnect(c.id)
			}
		}(i)
	}
	wg.Wait()

	if got := r.CountFor("fx1"); got != 50 {
		t.Errorf("fx1 count %d, want 50", got)
	}
	if got := r.CountFor("fx2"); got != 25 {
		t.Errorf("fx2 count %d, want 25", got)
	}
	if got := len(r.Members("fx1")); got != 50 {
		t.Errorf("fx1 members %d, want 50", got)
	}
}

func TestHubPublishesToRegistryMembers(t *testing.T) {
	r := newRegistry()
	a, b := &conn{id: "a"}, &conn{id: "b"}
	r.Join(a, "fx1")
	r.Join(b, "fx2")

	h := broadcast.NewHub(r, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if n := h.Publish("fx1", 2, match.ScoreUpdate, match.Result{HomeScore: 1}); n != 1 {
		t.Errorf("delivered %d, want 1", n)
	}
	a.mu.Lock()
	last := a.ms[len(a.ms)-1].Type
	a.mu.Unlock()
	if last != match.ScoreUpdate {
		t.Errorf("a last event %s, want score-update", last)
	}
}
