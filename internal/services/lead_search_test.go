package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paydesk/internal/models"
)

type fakeTimer struct {
	f       func()
	d       time.Duration
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f, d: d}
	c.timers = append(c.timers, t)
	return t
}

// fire runs every timer that has not been stopped.
func (c *fakeClock) fire() {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped {
			t.stopped = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type stubSearcher struct {
	mu      sync.Mutex
	queries []string
	results map[string][]models.LeadOrCustomerSummary
	err     error
	block   chan struct{}
}

func (s *stubSearcher) SearchLeads(ctx context.Context, q string) ([]models.LeadOrCustomerSummary, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	return s.results[q], s.err
}

func (s *stubSearcher) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func newTestSearch(api LeadSearcher) (*LeadSearch, *fakeClock) {
	clock := &fakeClock{}
	s := NewLeadSearch(context.Background(), api, 300*time.Millisecond, nil)
	s.afterFunc = clock.AfterFunc
	return s, clock
}

func leadRows() map[string][]models.LeadOrCustomerSummary {
	return map[string][]models.LeadOrCustomerSummary{
		"ann": {
			{ID: "10", SourceType: models.SourceLead, LeadID: "L-1", FullName: "Ann Lee"},
			{ID: "11", SourceType: models.SourceCustomer, CustomerID: "C-9", FullName: "Ann Tan"},
		},
	}
}

func TestLeadSearchDebounceOnlyLatestFires(t *testing.T) {
	api := &stubSearcher{results: leadRows()}
	s, clock := newTestSearch(api)

	s.Type("a")
	s.Type("an")
	s.Type("ann")
	clock.fire()

	if got := api.calls(); len(got) != 1 || got[0] != "ann" {
		t.Fatalf("searches = %v", got)
	}
	if clock.timers[0].d != 300*time.Millisecond {
		t.Fatalf("debounce = %v", clock.timers[0].d)
	}
	cur := s.Current()
	if cur.Pending || len(cur.Results) != 2 || cur.Query != "ann" {
		t.Fatalf("current = %+v", cur)
	}
}

func TestLeadSearchBlankClearsWithoutNetwork(t *testing.T) {
	api := &stubSearcher{results: leadRows()}
	s, clock := newTestSearch(api)
	s.Type("ann")
	clock.fire()

	s.Type("   ")
	clock.fire()

	if len(api.calls()) != 1 {
		t.Fatalf("blank query hit the network: %v", api.calls())
	}
	if len(s.Current().Results) != 0 {
		t.Fatal("results not cleared")
	}
}

func TestLeadSearchDiscardsStaleResponse(t *testing.T) {
	api := &stubSearcher{results: leadRows(), block: make(chan struct{})}
	s, clock := newTestSearch(api)

	s.Type("ann")
	done := make(chan struct{})
	go func() {
		clock.fire()
		close(done)
	}()
	for len(api.calls()) == 0 {
		time.Sleep(time.Millisecond)
	}

	// A newer keystroke supersedes the in-flight search.
	latest := s.Type("bob")
	close(api.block)
	<-done

	cur := s.Current()
	if cur.Seq != latest || cur.Query != "bob" || len(cur.Results) != 0 {
		t.Fatalf("stale result applied: %+v", cur)
	}
}

func TestLeadSearchLateTimerIgnored(t *testing.T) {
	api := &stubSearcher{results: leadRows()}
	s, clock := newTestSearch(api)
	s.Type("ann")
	first := clock.timers[0]
	s.Type("annx")

	// Simulate the superseded timer firing anyway.
	first.f()
	if len(api.calls()) != 0 {
		t.Fatalf("superseded search ran: %v", api.calls())
	}
}

func TestLeadSearchErrorAndSubscribe(t *testing.T) {
	api := &stubSearcher{err: errors.New("down")}
	s, clock := newTestSearch(api)
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Type("ann")
	clock.fire()

	select {
	case res := <-ch:
		if res.Error != "down" || res.Results == nil {
			t.Fatalf("result = %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("no result published")
	}
}

func TestLeadSearchFind(t *testing.T) {
	api := &stubSearcher{results: leadRows()}
	s, clock := newTestSearch(api)
	s.Type("ann")
	clock.fire()

	if r, ok := s.Find("L-1", models.SourceLead); !ok || r.FullName != "Ann Lee" {
		t.Fatalf("find lead = %+v, %v", r, ok)
	}
	if r, ok := s.Find("C-9", ""); !ok || r.FullName != "Ann Tan" {
		t.Fatalf("find customer = %+v, %v", r, ok)
	}
	if _, ok := s.Find("C-9", models.SourceLead); ok {
		t.Fatal("source type ignored")
	}
}

func TestLeadSearchCloseEndsSubscriptions(t *testing.T) {
	s, _ := newTestSearch(&stubSearcher{})
	ch, cancel := s.Subscribe()
	s.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open")
	}
	cancel()
}

func TestLeadSearchAfterClose(t *testing.T) {
	api := &stubSearcher{}
	s, clock := newTestSearch(api)
	s.Close()

	ch, cancel := s.Subscribe()
	defer cancel()
	if _, ok := <-ch; ok {
		t.Fatal("subscription after close should be closed")
	}
	s.Type("ann")
	clock.mu.Lock()
	scheduled := len(clock.timers)
	clock.mu.Unlock()
	if scheduled != 0 {
		t.Fatal("closed search scheduled a timer")
	}
}
