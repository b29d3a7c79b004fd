// Package chatroomtest provides deterministic collaborators for exercising
// chatroom.Controller in tests.
package chatroomtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"geminichat/internal/microservices/chatroom"
)

// ManualScheduler records armed callbacks; tests fire them explicitly
type ManualScheduler struct {
	mu     sync.Mutex
	timers []*ManualTimer
}

type ManualTimer struct {
	Delay   time.Duration
	f       func()
	stopped bool
	fired   bool
	owner   *ManualScheduler
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) chatroom.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &ManualTimer{Delay: d, f: f, owner: s}
	s.timers = append(s.timers, t)
	return t
}

func (t *ManualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Pending returns timers that are neither fired nor stopped, in arming order
func (s *ManualScheduler) Pending() []*ManualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ManualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// Armed returns every timer ever armed, including stopped ones
func (s *ManualScheduler) Armed() []*ManualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ManualTimer(nil), s.timers...)
}

// Fire runs the callback even if the timer was stopped, which is how a
// runtime timer that already started racing with Stop behaves.
func (t *ManualTimer) Fire() {
	t.owner.mu.Lock()
	t.fired = true
	f := t.f
	t.owner.mu.Unlock()
	f()
}

// FireAll fires pending timers in arming order until none are left
func (s *ManualScheduler) FireAll() int {
	n := 0
	for {
		pending := s.Pending()
		if len(pending) == 0 {
			return n
		}
		pending[0].Fire()
		n++
	}
}

var ErrInjected = errors.New("injected store failure")

// Store is an in-memory chatroom.Store that keeps JSON blobs, so it shares
// nothing with callers, and can be told to fail.
type Store struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	FailLoad bool
	FailSave bool
	Saves    int
}

func NewStore() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

func (s *Store) Load(ctx context.Context, roomID string) ([]chatroom.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLoad {
		return nil, ErrInjected
	}
	blob, ok := s.blobs[roomID]
	if !ok {
		return nil, chatroom.ErrNotFound
	}
	var out []chatroom.Message
	if err := json.Unmarshal(blob, &out); err != nil {
		return nil, errors.Join(chatroom.ErrCorrupt, err)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, roomID string, messages []chatroom.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSave {
		return ErrInjected
	}
	blob, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	s.blobs[roomID] = blob
	s.Saves++
	return nil
}

// Put stores raw bytes for roomID, e.g. to simulate a corrupt entry
func (s *Store) Put(roomID string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[roomID] = raw
}

// Stored decodes what is currently persisted for roomID
func (s *Store) Stored(roomID string) []chatroom.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chatroom.Message
	_ = json.Unmarshal(s.blobs[roomID], &out)
	return out
}

// Clock is a settable time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// History builds n ordered messages one second apart ending at end
func History(n int, end time.Time) []chatroom.Message {
	out := make([]chatroom.Message, n)
	for i := range out {
		sender := chatroom.SenderUser
		if i%2 == 0 {
			sender = chatroom.SenderAssistant
		}
		out[i] = chatroom.Message{
			ID:        fmt.Sprintf("seed-%d", i+1),
			Seq:       int64(i + 1),
			Sender:    sender,
			Text:      "history",
			Timestamp: end.Add(-time.Duration(n-1-i) * time.Second),
		}
	}
	return out
}
