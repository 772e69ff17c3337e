package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"nftmarket/core/events"
	"nftmarket/observability"
)

const (
	defaultEventHistoryLimit = 2048
	subscriberBuffer         = 32
)

// EventUpdate is a committed event with its position in the stream.
type EventUpdate struct {
	Sequence   uint64            `json:"sequence"`
	Cursor     string            `json:"cursor"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"timestamp"`
}

// FormatCursor renders a sequence as a stream cursor.
func FormatCursor(seq uint64) string { return strconv.FormatUint(seq, 10) }

func cloneEventUpdate(update EventUpdate) EventUpdate {
	cloned := update
	if update.Attributes != nil {
		cloned.Attributes = make(map[string]string, len(update.Attributes))
		for k, v := range update.Attributes {
			cloned.Attributes[k] = v
		}
	}
	return cloned
}

type eventStream struct {
	mu      sync.Mutex
	seq     uint64
	limit   int
	history []EventUpdate
	subs    map[uint64]chan EventUpdate
	nextID  uint64
}

func newEventStream(limit int) *eventStream {
	if limit <= 0 {
		limit = defaultEventHistoryLimit
	}
	return &eventStream{limit: limit, subs: make(map[uint64]chan EventUpdate)}
}

// restore seeds the stream with previously persisted updates so cursors
// survive a restart.
func (s *eventStream) restore(updates []EventUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, update := range updates {
		if update.Sequence <= s.seq {
			continue
		}
		s.seq = update.Sequence
		s.appendLocked(cloneEventUpdate(update))
	}
}

func (s *eventStream) appendLocked(update EventUpdate) {
	s.history = append(s.history, update)
	if len(s.history) > s.limit {
		excess := len(s.history) - s.limit
		trimmed := make([]EventUpdate, s.limit)
		copy(trimmed, s.history[excess:])
		s.history = trimmed
	}
}

// publish sequences the committed events and fans them out. Slow
// subscribers miss updates rather than block the writer.
func (s *eventStream) publish(evts []events.Event, timestamp int64) []EventUpdate {
	if len(evts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventUpdate, 0, len(evts))
	for _, evt := range evts {
		rendered := events.Render(evt)
		if rendered == nil {
			continue
		}
		s.seq++
		update := EventUpdate{
			Sequence:   s.seq,
			Cursor:     FormatCursor(s.seq),
			Type:       rendered.Type,
			Attributes: rendered.Attributes,
			Timestamp:  timestamp,
		}
		s.appendLocked(cloneEventUpdate(update))
		for _, ch := range s.subs {
			select {
			case ch <- cloneEventUpdate(update):
			default:
			}
		}
		observability.Events().RecordPublished(update.Type)
		out = append(out, update)
	}
	return out
}

// since returns up to limit retained updates with a sequence above after.
func (s *eventStream) since(after uint64, limit int) []EventUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventUpdate, 0)
	for _, entry := range s.history {
		if entry.Sequence <= after {
			continue
		}
		out = append(out, cloneEventUpdate(entry))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (s *eventStream) subscribe(ctx context.Context, cursor string) (<-chan EventUpdate, func(), []EventUpdate, error) {
	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		since = parsed
	}
	updates := make(chan EventUpdate, subscriberBuffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = updates
	backlog := make([]EventUpdate, 0, len(s.history))
	for _, entry := range s.history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneEventUpdate(entry))
		}
	}
	s.mu.Unlock()
	observability.Events().AddSubscribers(1)

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			sub, ok := s.subs[id]
			if ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
			observability.Events().AddSubscribers(-1)
		})
	}
	if ctx == nil {
		return updates, release, backlog, nil
	}
	stop := context.AfterFunc(ctx, release)
	cancel := func() {
		stop()
		release()
	}
	return updates, cancel, backlog, nil
}
