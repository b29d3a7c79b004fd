package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geminichat/internal/config"
	"geminichat/internal/microservices/chatroom"
	"geminichat/internal/microservices/chatroom/chatroomtest"
	"geminichat/internal/microservices/http-api/service"
	"geminichat/internal/microservices/storage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newService(t *testing.T, store chatroom.Store) (service.SessionService, *chatroomtest.ManualScheduler) {
	t.Helper()
	sched := chatroomtest.NewManualScheduler()
	svc := service.NewSessionService(store, chatroom.Options{
		Scheduler: sched,
		Jitter:    func() float64 { return 0 },
	}, quiet)
	t.Cleanup(svc.CloseAll)
	return svc, sched
}

func TestValidateRoomID(t *testing.T) {
	for _, id := range []string{"a", "room-1", "Room_2", strings.Repeat("x", 64)} {
		assert.NoError(t, service.ValidateRoomID(id), id)
	}
	for _, id := range []string{"", "has space", "../etc", "é", strings.Repeat("x", 65)} {
		assert.ErrorIs(t, service.ValidateRoomID(id), service.ErrInvalidRoomID, id)
	}
}

func TestSessionService_OpenReusesView(t *testing.T) {
	svc, _ := newService(t, storage.NewMemoryStore(8, 0))
	ctx := context.Background()

	first, err := svc.Open(ctx, "room-1")
	require.NoError(t, err)
	second, err := svc.Open(ctx, "room-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, svc.Count())
	assert.Equal(t, 1, first.State().Total, "hydrated with seed")

	got, err := svc.Get("room-1")
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestSessionService_OpenRejectsBadID(t *testing.T) {
	svc, _ := newService(t, storage.NewMemoryStore(8, 0))

	_, err := svc.Open(context.Background(), "bad id")
	assert.ErrorIs(t, err, service.ErrInvalidRoomID)
	assert.Zero(t, svc.Count())
}

func TestSessionService_CloseCancelsReplies(t *testing.T) {
	store := storage.NewMemoryStore(8, 0)
	svc, sched := newService(t, store)
	ctx := context.Background()

	ctrl, err := svc.Open(ctx, "room-1")
	require.NoError(t, err)
	_, err = ctrl.AppendUserMessage(ctx, "hi", nil)
	require.NoError(t, err)
	armed := sched.Armed()

	require.NoError(t, svc.Close("room-1"))
	armed[0].Fire()

	stored, err := store.Load(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2, "reply must not land after teardown")

	_, err = svc.Get("room-1")
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	assert.ErrorIs(t, svc.Close("room-1"), service.ErrSessionNotFound)
}

func TestSessionService_ReopenSeesPersistedLog(t *testing.T) {
	store := storage.NewMemoryStore(8, 0)
	svc, sched := newService(t, store)
	ctx := context.Background()

	ctrl, err := svc.Open(ctx, "room-1")
	require.NoError(t, err)
	_, err = ctrl.AppendUserMessage(ctx, "hi", nil)
	require.NoError(t, err)
	sched.FireAll()
	require.NoError(t, svc.Close("room-1"))

	reopened, err := svc.Open(ctx, "room-1")
	require.NoError(t, err)
	assert.NotSame(t, ctrl, reopened)
	log := reopened.Messages()
	require.Len(t, log, 3)
	assert.Equal(t, "Gemini: ih", log[2].Text)
}

func TestSessionService_Reset(t *testing.T) {
	store := storage.NewMemoryStore(8, 0)
	svc, _ := newService(t, store)
	ctx := context.Background()

	ctrl, err := svc.Open(ctx, "room-1")
	require.NoError(t, err)
	_, err = ctrl.AppendUserMessage(ctx, "hi", nil)
	require.NoError(t, err)

	fresh, err := svc.Reset(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.State().Total)
	assert.Equal(t, 1, svc.Count())

	_, err = ctrl.AppendUserMessage(ctx, "stale view", nil)
	assert.ErrorIs(t, err, chatroom.ErrClosed)
}

func TestSessionService_ResetUnsupported(t *testing.T) {
	svc, _ := newService(t, chatroomtest.NewStore())

	_, err := svc.Reset(context.Background(), "room-1")
	assert.True(t, errors.Is(err, errors.ErrUnsupported))
}

func TestSessionService_HydrateFailureStillOpens(t *testing.T) {
	store := chatroomtest.NewStore()
	store.FailLoad = true
	svc, _ := newService(t, store)

	ctrl, err := svc.Open(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, 1, ctrl.State().Total)
}

func TestSessionService_DegradedViewDoesNotClobberHistory(t *testing.T) {
	store := chatroomtest.NewStore()
	require.NoError(t, store.Save(context.Background(), "room-1", chatroomtest.History(100, time.Now().Add(-time.Hour))))
	store.FailLoad = true
	svc, _ := newService(t, store)

	ctrl, err := svc.Open(context.Background(), "room-1")
	require.NoError(t, err)
	store.FailLoad = false

	_, err = ctrl.AppendUserMessage(context.Background(), "hi", nil)
	require.NoError(t, err)

	stored := store.Stored("room-1")
	require.Len(t, stored, 101)
	assert.Equal(t, "seed-1", stored[0].ID)
	assert.Equal(t, 101, ctrl.State().Total)
}

// gatedStore holds Load of one room until gate is closed
type gatedStore struct {
	chatroom.Store
	room    string
	gate    chan struct{}
	entered chan struct{}

	mu    sync.Mutex
	loads int
}

func (s *gatedStore) Load(ctx context.Context, roomID string) ([]chatroom.Message, error) {
	if roomID == s.room {
		s.mu.Lock()
		s.loads++
		first := s.loads == 1
		s.mu.Unlock()
		if first {
			close(s.entered)
		}
		<-s.gate
	}
	return s.Store.Load(ctx, roomID)
}

func TestSessionService_SlowHydrateDoesNotBlockOtherRooms(t *testing.T) {
	store := &gatedStore{
		Store:   storage.NewMemoryStore(8, 0),
		room:    "slow",
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	svc, _ := newService(t, store)
	ctx := context.Background()

	opened := make(chan *chatroom.Controller, 2)
	for range 2 {
		go func() {
			ctrl, err := svc.Open(ctx, "slow")
			assert.NoError(t, err)
			opened <- ctrl
		}()
	}
	<-store.entered

	fast, err := svc.Open(ctx, "fast")
	require.NoError(t, err)
	assert.Equal(t, 1, fast.State().Total)
	assert.Equal(t, 2, svc.Count())

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = svc.Open(waitCtx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(store.gate)
	first, second := <-opened, <-opened
	assert.Same(t, first, second)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.loads, "concurrent opens share one hydration")
}

func TestSessionService_SubscribeReachesEveryView(t *testing.T) {
	svc, sched := newService(t, storage.NewMemoryStore(8, 0))
	ctx := context.Background()

	early, err := svc.Open(ctx, "early")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		rooms []string
	)
	svc.Subscribe(func(e chatroom.Event) {
		if e.Type != chatroom.EventMessageAppended {
			return
		}
		mu.Lock()
		rooms = append(rooms, e.RoomID)
		mu.Unlock()
	})

	late, err := svc.Open(ctx, "late")
	require.NoError(t, err)

	_, err = early.AppendUserMessage(ctx, "a", nil)
	require.NoError(t, err)
	_, err = late.AppendUserMessage(ctx, "b", nil)
	require.NoError(t, err)
	sched.FireAll()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"early", "late", "early", "late"}, rooms)
}

func TestSessionService_CloseAll(t *testing.T) {
	svc, _ := newService(t, storage.NewMemoryStore(8, 0))
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := svc.Open(ctx, id)
		require.NoError(t, err)
	}
	svc.CloseAll()
	assert.Zero(t, svc.Count())
}

func TestChatOptions(t *testing.T) {
	cfg := &config.Config{
		ChatPageSize:       10,
		ChatPageLoadDelay:  time.Millisecond,
		ChatReplyBaseDelay: 2 * time.Second,
		ChatReplyJitter:    0,
		ChatReplyPrefix:    "Bot: ",
		ChatDemoHistory:    30,
	}
	opts := service.ChatOptions(cfg)

	assert.Equal(t, 10, opts.PageSize)
	assert.Equal(t, 2*time.Second, opts.ReplyBaseDelay)
	reply, err := opts.Generator.Generate(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, "Bot: ko", reply)
	assert.Len(t, opts.Seed(time.Now()), 30)
}
