package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"geminichat/internal/config"
	"geminichat/internal/metrics"
	"geminichat/internal/microservices/chatroom"
)

var (
	ErrInvalidRoomID   = errors.New("invalid chat room id")
	ErrSessionNotFound = errors.New("chat room session not found")
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// SessionService keeps at most one live view per chat room
type SessionService interface {
	// Open returns the live view of roomID, hydrating it on first use
	Open(ctx context.Context, roomID string) (*chatroom.Controller, error)
	Get(roomID string) (*chatroom.Controller, error)
	// Close tears the view down; pending replies are dropped
	Close(roomID string) error
	// Reset deletes the stored log and reopens the room with its seed
	Reset(ctx context.Context, roomID string) (*chatroom.Controller, error)
	CloseAll()
	Count() int
	// Subscribe attaches l to every view, current and future
	Subscribe(l chatroom.Listener)
}

type sessionService struct {
	store  chatroom.Store
	opts   chatroom.Options
	logger *slog.Logger

	mu        sync.Mutex
	sessions  map[string]*session
	listeners []chatroom.Listener
}

// session is a registered view; ready is closed once its hydration ended
type session struct {
	ctrl  *chatroom.Controller
	ready chan struct{}
	err   error
}

// NewSessionService opens views over store; opts is the template every view
// is built from, its Store field is overridden.
func NewSessionService(store chatroom.Store, opts chatroom.Options, logger *slog.Logger) SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	opts.Store = store
	opts.Logger = logger
	return &sessionService{
		store:    store,
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// ChatOptions maps the CHAT_* settings onto controller options
func ChatOptions(cfg *config.Config) chatroom.Options {
	seed := chatroom.WelcomeSeed(chatroom.WelcomeText)
	if cfg.ChatDemoHistory > 0 {
		seed = chatroom.DemoHistorySeed(cfg.ChatDemoHistory, chatroom.WelcomeText)
	}
	return chatroom.Options{
		Generator:      chatroom.NewReverseGenerator(cfg.ChatReplyPrefix),
		Seed:           seed,
		PageSize:       cfg.ChatPageSize,
		PageLoadDelay:  cfg.ChatPageLoadDelay,
		ReplyBaseDelay: cfg.ChatReplyBaseDelay,
		ReplyJitter:    cfg.ChatReplyJitter,
	}
}

func ValidateRoomID(roomID string) error {
	if !roomIDPattern.MatchString(roomID) {
		return fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	return nil
}

func (s *sessionService) Open(ctx context.Context, roomID string) (*chatroom.Controller, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	sess, ok := s.sessions[roomID]
	if !ok {
		sess = s.registerLocked(roomID)
	}
	s.mu.Unlock()

	if !ok {
		s.hydrate(ctx, roomID, sess)
	}
	return sess.wait(ctx)
}

// registerLocked reserves the slot of roomID so concurrent opens wait for
// one hydration instead of starting their own
func (s *sessionService) registerLocked(roomID string) *session {
	ctrl := chatroom.New(roomID, s.opts)
	for _, l := range s.listeners {
		ctrl.Subscribe(l)
	}
	sess := &session{ctrl: ctrl, ready: make(chan struct{})}
	s.sessions[roomID] = sess
	metrics.ActiveSessions.Inc()
	return sess
}

// hydrate runs without the service lock; the view is shared, so the
// caller's cancellation must not degrade it
func (s *sessionService) hydrate(ctx context.Context, roomID string, sess *session) {
	defer close(sess.ready)

	// a failing store still yields a usable, unsaved view
	if _, err := sess.ctrl.Hydrate(context.WithoutCancel(ctx)); err != nil {
		if errors.Is(err, chatroom.ErrClosed) {
			sess.err = err
			return
		}
		s.logger.Warn("chat_room_hydrate_degraded", "room_id", roomID, "error", err)
	}
	s.logger.Info("chat_room_session_opened", "room_id", roomID, "sessions", s.Count())
}

func (sess *session) wait(ctx context.Context) (*chatroom.Controller, error) {
	select {
	case <-sess.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if sess.err != nil {
		return nil, sess.err
	}
	return sess.ctrl, nil
}

func (s *sessionService) Get(roomID string) (*chatroom.Controller, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	sess, ok := s.sessions[roomID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	<-sess.ready
	if sess.err != nil {
		return nil, ErrSessionNotFound
	}
	return sess.ctrl, nil
}

// unregister removes roomID and hands back what was registered
func (s *sessionService) unregister(roomID string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[roomID]
	if ok {
		delete(s.sessions, roomID)
		metrics.ActiveSessions.Dec()
	}
	return sess, ok
}

func (s *sessionService) Close(roomID string) error {
	if err := ValidateRoomID(roomID); err != nil {
		return err
	}
	sess, ok := s.unregister(roomID)
	if !ok {
		return ErrSessionNotFound
	}
	sess.ctrl.Close()
	s.logger.Info("chat_room_session_closed", "room_id", roomID)
	return nil
}

type logDeleter interface {
	Delete(ctx context.Context, roomID string) error
}

func (s *sessionService) Reset(ctx context.Context, roomID string) (*chatroom.Controller, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	deleter, ok := s.store.(logDeleter)
	if !ok {
		return nil, errors.ErrUnsupported
	}

	// the fresh view is registered first so no open can see the old log
	s.mu.Lock()
	old, hadOld := s.sessions[roomID]
	if hadOld {
		delete(s.sessions, roomID)
		metrics.ActiveSessions.Dec()
	}
	sess := s.registerLocked(roomID)
	s.mu.Unlock()

	if hadOld {
		old.ctrl.Close()
	}
	if err := deleter.Delete(ctx, roomID); err != nil {
		err = fmt.Errorf("delete chat log: %w", err)
		if cur, ok := s.unregisterIf(roomID, sess); ok {
			cur.ctrl.Close()
		}
		sess.err = err
		close(sess.ready)
		return nil, err
	}
	s.logger.Info("chat_room_log_deleted", "room_id", roomID)

	s.hydrate(ctx, roomID, sess)
	return sess.wait(ctx)
}

// unregisterIf removes roomID only while it still maps to sess
func (s *sessionService) unregisterIf(roomID string, sess *session) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[roomID] != sess {
		return nil, false
	}
	delete(s.sessions, roomID)
	metrics.ActiveSessions.Dec()
	return sess, true
}

func (s *sessionService) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.ctrl.Close()
		metrics.ActiveSessions.Dec()
	}
	s.logger.Info("chat_room_sessions_closed", "count", len(sessions))
}

func (s *sessionService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *sessionService) Subscribe(l chatroom.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
	for _, sess := range s.sessions {
		sess.ctrl.Subscribe(l)
	}
}
