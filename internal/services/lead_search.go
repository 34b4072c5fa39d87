package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"paydesk/internal/models"
)

type LeadSearcher interface {
	SearchLeads(ctx context.Context, query string) ([]models.LeadOrCustomerSummary, error)
}

// SearchResult is the outcome of one issued search. Seq is the number the
// search was issued under.
type SearchResult struct {
	Seq     uint64                         `json:"seq"`
	Query   string                         `json:"query"`
	Results []models.LeadOrCustomerSummary `json:"results"`
	Pending bool                           `json:"pending"`
	Error   string                         `json:"error,omitempty"`
	Reload  bool                           `json:"reload,omitempty"`
}

// Timer is the part of *time.Timer the search needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc in production.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

const searchTimeout = 15 * time.Second

// LeadSearch debounces keystrokes into lead/customer searches. Every
// scheduled search gets a new sequence number and only results carrying the
// latest number are kept.
type LeadSearch struct {
	api       LeadSearcher
	ctx       context.Context
	delay     time.Duration
	afterFunc AfterFunc
	logger    *slog.Logger

	mu      sync.Mutex
	seq     uint64
	timer   Timer
	current SearchResult
	subs    map[int]chan SearchResult
	nextSub int
	closed  bool
}

func NewLeadSearch(ctx context.Context, api LeadSearcher, delay time.Duration, logger *slog.Logger) *LeadSearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeadSearch{
		api:       api,
		ctx:       ctx,
		delay:     delay,
		afterFunc: realAfterFunc,
		logger:    logger,
		current:   SearchResult{Results: []models.LeadOrCustomerSummary{}},
		subs:      make(map[int]chan SearchResult),
	}
}

// Type records a new query text. A blank query clears the results without a
// network call; anything else replaces the pending timer.
func (s *LeadSearch) Type(query string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimer()
	s.seq++
	seq := s.seq
	if s.closed {
		return seq
	}

	if strings.TrimSpace(query) == "" {
		s.current = SearchResult{Seq: seq, Query: query, Results: []models.LeadOrCustomerSummary{}}
		s.publish(s.current)
		return seq
	}

	s.current.Seq = seq
	s.current.Query = query
	s.current.Pending = true
	s.timer = s.afterFunc(s.delay, func() { s.run(seq, query) })
	return seq
}

func (s *LeadSearch) run(seq uint64, query string) {
	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, searchTimeout)
	defer cancel()
	results, err := s.api.SearchLeads(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		s.logger.Debug("discarding stale search result", "seq", seq, "latest", s.seq)
		return
	}
	res := SearchResult{Seq: seq, Query: query, Results: results}
	if err != nil {
		s.logger.Warn("lead search failed", "err", err)
		res.Error = err.Error()
		res.Reload = errors.Is(err, ErrSessionReset)
		res.Results = nil
	}
	if res.Results == nil {
		res.Results = []models.LeadOrCustomerSummary{}
	}
	s.current = res
	s.publish(res)
}

// Clear drops the query and results and supersedes any pending search.
func (s *LeadSearch) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimer()
	s.seq++
	s.current = SearchResult{Seq: s.seq, Results: []models.LeadOrCustomerSummary{}}
	s.publish(s.current)
}

func (s *LeadSearch) Current() SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Find looks id up among the current results, by reference id or row id.
func (s *LeadSearch) Find(id models.ID, sourceType string) (models.LeadOrCustomerSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.current.Results {
		if sourceType != "" && r.SourceType != sourceType {
			continue
		}
		if r.RefID() == id || r.ID == id {
			return r, true
		}
	}
	return models.LeadOrCustomerSummary{}, false
}

// Subscribe returns a channel of published results. Slow readers only see
// the newest result.
func (s *LeadSearch) Subscribe() (<-chan SearchResult, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan SearchResult, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Close stops the pending timer and closes all subscriptions.
func (s *LeadSearch) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimer()
	s.seq++
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *LeadSearch) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// publish must be called with mu held.
func (s *LeadSearch) publish(res SearchResult) {
	for _, ch := range s.subs {
		select {
		case ch <- res:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- res
		}
	}
}
