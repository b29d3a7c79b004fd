package storage

import (
	"context"
	"errors"
	"time"

	"geminichat/internal/metrics"
	"geminichat/internal/microservices/chatroom"
)

// Deleter is implemented by backends that can drop a room log
type Deleter interface {
	Delete(ctx context.Context, roomID string) error
}

// Pinger is implemented by backends behind a network connection
type Pinger interface {
	Ping(ctx context.Context) error
}

// Instrumented records latency and failures of every store call
type Instrumented struct {
	next    chatroom.Store
	backend string
}

func Instrument(next chatroom.Store, backend string) *Instrumented {
	return &Instrumented{next: next, backend: backend}
}

func (s *Instrumented) Load(ctx context.Context, roomID string) (messages []chatroom.Message, err error) {
	defer s.observe("load", time.Now(), &err)
	return s.next.Load(ctx, roomID)
}

func (s *Instrumented) Save(ctx context.Context, roomID string, messages []chatroom.Message) (err error) {
	defer s.observe("save", time.Now(), &err)
	return s.next.Save(ctx, roomID, messages)
}

func (s *Instrumented) Delete(ctx context.Context, roomID string) (err error) {
	d, ok := s.next.(Deleter)
	if !ok {
		return errors.ErrUnsupported
	}
	defer s.observe("delete", time.Now(), &err)
	return d.Delete(ctx, roomID)
}

// Ping checks the backend connection; in-process backends are always up
func (s *Instrumented) Ping(ctx context.Context) (err error) {
	p, ok := s.next.(Pinger)
	if !ok {
		return nil
	}
	defer s.observe("ping", time.Now(), &err)
	return p.Ping(ctx)
}

func (s *Instrumented) observe(op string, start time.Time, err *error) {
	metrics.StoreOperationLatency.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
	// a room that was never written is not a failure
	if *err != nil && !errors.Is(*err, chatroom.ErrNotFound) {
		metrics.StoreOperationErrors.WithLabelValues(s.backend, op).Inc()
	}
}
