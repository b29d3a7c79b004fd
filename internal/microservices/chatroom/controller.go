package chatroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"geminichat/internal/metrics"
)

const (
	DefaultPageSize       = 20
	DefaultPageLoadDelay  = 600 * time.Millisecond
	DefaultReplyBaseDelay = 1200 * time.Millisecond
	DefaultReplyJitter    = 1000 * time.Millisecond

	fallbackReplyText = "Sorry, I could not come up with a reply."
)

// Options wires the controller to its collaborators. Zero values fall back
// to the defaults above, the wall clock and runtime timers.
type Options struct {
	Store     Store
	Generator ReplyGenerator
	Scheduler Scheduler // must never run f synchronously inside AfterFunc
	Seed      SeedFunc
	Clock     func() time.Time
	Jitter    func() float64 // returns a value in [0, 1)
	Logger    *slog.Logger

	PageSize       int
	PageLoadDelay  time.Duration
	ReplyBaseDelay time.Duration
	ReplyJitter    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Store == nil {
		o.Store = discardStore{}
	}
	if o.Generator == nil {
		o.Generator = NewReverseGenerator(DefaultReplyPrefix)
	}
	if o.Scheduler == nil {
		o.Scheduler = WallScheduler()
	}
	if o.Seed == nil {
		o.Seed = WelcomeSeed(WelcomeText)
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Jitter == nil {
		o.Jitter = rand.Float64
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.PageLoadDelay < 0 {
		o.PageLoadDelay = 0
	}
	if o.ReplyBaseDelay < 0 {
		o.ReplyBaseDelay = 0
	}
	if o.ReplyJitter < 0 {
		o.ReplyJitter = 0
	}
	return o
}

// ViewState is the snapshot the view renders its affordances from
type ViewState struct {
	RoomID            string `json:"room_id"`
	VisibleWindowSize int    `json:"visible_window_size"`
	Total             int    `json:"total"`
	HasMoreOlder      bool   `json:"has_more_older"`
	IsLoadingOlder    bool   `json:"is_loading_older"`
	IsAwaitingReply   bool   `json:"is_awaiting_reply"`
	PendingReplies    int    `json:"pending_replies"`
}

type replyState int

const (
	replyScheduled replyState = iota
	replyReady                // generated, waiting for earlier replies to land
	replyCancelled
)

// pendingReply is one slot of the per-room FIFO completion queue
type pendingReply struct {
	sourceID   string
	sourceText string
	state      replyState
	text       string
	timer      Timer
}

// Controller owns the ordered message log of one open chat room view.
// All mutations run under mu, one event at a time; deferred callbacks carry
// the epoch they were armed in and are dropped once the epoch moves on.
type Controller struct {
	roomID string
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	log       []Message
	window    int
	nextSeq   int64
	lastStamp time.Time
	epoch     uint64
	closed    bool

	// degraded is set while the stored log could not be read; the first
	// successful load merges what was appended since, until then nothing
	// is written over the unread log
	degraded bool
	seedLen  int

	loadingOlder bool
	pageDone     chan struct{}
	pageTimer    Timer

	replies []*pendingReply

	listeners    map[uint64]Listener
	nextListener uint64
	outbox       []Event
	dispatching  bool
}

// New creates a controller for roomID. Call Hydrate before use.
func New(roomID string, opts Options) *Controller {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		roomID:    roomID,
		opts:      opts,
		logger:    opts.Logger.With("room_id", roomID),
		ctx:       ctx,
		cancel:    cancel,
		nextSeq:   1,
		listeners: make(map[uint64]Listener),
	}
}

func (c *Controller) RoomID() string {
	return c.roomID
}

// Hydrate (re)loads the room log from the store and resets the view to the
// most recent page. Outstanding callbacks of a previous hydration are
// invalidated. A missing or corrupt entry is replaced by the seed; a failing
// store yields the seed too and an error wrapping ErrPersist, the returned
// state is usable either way.
func (c *Controller) Hydrate(ctx context.Context) (ViewState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ViewState{}, ErrClosed
	}
	c.resetLocked()

	var result error
	seeded, persistSeed := false, true

	loaded, err := c.opts.Store.Load(ctx, c.roomID)
	switch {
	case err == nil && !isOrdered(loaded):
		c.logger.Warn("stored_log_out_of_order", "messages", len(loaded))
		seeded = true
	case err == nil:
	case errors.Is(err, ErrNotFound):
		seeded = true
	case errors.Is(err, ErrCorrupt):
		c.logger.Warn("stored_log_corrupt", "error", err)
		seeded = true
	default:
		c.logger.Error("chat_log_load_failed", "error", err)
		seeded, persistSeed = true, false
		result = fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if seeded {
		loaded = c.opts.Seed(c.opts.Clock())
	}

	c.log = normalize(loaded)
	c.nextSeq = 1
	c.lastStamp = time.Time{}
	if n := len(c.log); n > 0 {
		c.nextSeq = c.log[n-1].Seq + 1
		c.lastStamp = c.log[n-1].Timestamp
	}
	c.window = min(c.opts.PageSize, len(c.log))
	c.degraded = seeded && !persistSeed
	c.seedLen = len(c.log)

	if seeded && persistSeed {
		if err := c.saveLocked(ctx); err != nil {
			result = err
		}
	}

	c.logger.Info("chat_room_hydrated",
		"messages", len(c.log),
		"window", c.window,
		"seeded", seeded,
	)
	return c.stateLocked(), result
}

// AppendUserMessage appends a user message, writes the log through to the
// store and schedules the simulated reply. Blank input without attachment
// is ignored and returns (nil, nil). A store failure returns the appended
// message together with an error wrapping ErrPersist.
func (c *Controller) AppendUserMessage(ctx context.Context, text string, attachment *Attachment) (*Message, error) {
	if !HasContent(text, attachment) {
		return nil, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	c.appendLocked(SenderUser, text, attachment)
	persisted, saveErr := c.persistLocked(ctx)
	// a recovering view may have renumbered the message
	msg := c.log[len(c.log)-1]
	events := append([]Event{{Type: EventMessageAppended, Message: eventMessage(msg)}}, persisted...)

	if c.scheduleReplyLocked(msg) {
		events = append(events, Event{Type: EventTypingStarted})
	}

	c.publishAndUnlock(events)
	return eventMessage(msg), saveErr
}

// scheduleReplyLocked reserves the next FIFO slot and arms its timer.
// It reports whether the room went from idle to awaiting.
func (c *Controller) scheduleReplyLocked(source Message) bool {
	wasIdle := len(c.replies) == 0
	slot := &pendingReply{
		sourceID:   source.ID,
		sourceText: source.Text,
		state:      replyScheduled,
	}
	c.replies = append(c.replies, slot)

	delay := c.opts.ReplyBaseDelay + time.Duration(c.opts.Jitter()*float64(c.opts.ReplyJitter))
	epoch := c.epoch
	slot.timer = c.opts.Scheduler.AfterFunc(delay, func() {
		c.completeReply(epoch, slot)
	})

	c.logger.Debug("reply_scheduled",
		"source_id", source.ID,
		"delay", delay,
		"pending", len(c.replies),
	)
	return wasIdle
}

// completeReply runs when a reply timer fires. The reply is generated outside
// the lock, then queued replies are appended strictly in send order.
func (c *Controller) completeReply(epoch uint64, slot *pendingReply) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		c.discardStale("reply")
		return
	}
	text := slot.sourceText
	c.mu.Unlock()

	reply, err := c.opts.Generator.Generate(c.ctx, text)
	if err != nil {
		c.logger.Warn("reply_generation_failed", "source_id", slot.sourceID, "error", err)
		reply = fallbackReplyText
	}

	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		c.discardStale("reply")
		return
	}
	slot.state = replyReady
	slot.text = reply
	c.publishAndUnlock(c.drainRepliesLocked())
}

func (c *Controller) drainRepliesLocked() []Event {
	var events []Event
	for len(c.replies) > 0 && c.replies[0].state == replyReady {
		slot := c.replies[0]
		c.replies[0] = nil
		c.replies = c.replies[1:]

		msg := c.appendLocked(SenderAssistant, slot.text, nil)
		metrics.RepliesCompleted.Inc()
		events = append(events, Event{Type: EventMessageAppended, Message: eventMessage(msg)})
		c.logger.Debug("reply_appended", "source_id", slot.sourceID, "message_id", msg.ID)
	}
	if len(events) == 0 {
		return nil
	}

	persisted, _ := c.persistLocked(c.ctx)
	events = append(events, persisted...)
	if len(c.replies) == 0 {
		events = append(events, Event{Type: EventTypingStopped})
	}
	return events
}

// LoadOlderPage reveals one more page of older messages after the simulated
// latency. The returned channel is closed once the page is visible or the
// view is torn down. While a load is in flight, or when nothing older
// exists, no new load is started.
func (c *Controller) LoadOlderPage() <-chan struct{} {
	c.mu.Lock()
	if c.closed || c.window >= len(c.log) {
		c.mu.Unlock()
		return closedChan()
	}
	if c.loadingOlder {
		done := c.pageDone
		c.mu.Unlock()
		return done
	}

	c.loadingOlder = true
	done := make(chan struct{})
	c.pageDone = done
	epoch := c.epoch
	c.pageTimer = c.opts.Scheduler.AfterFunc(c.opts.PageLoadDelay, func() {
		c.completePage(epoch, done)
	})

	c.publishAndUnlock([]Event{{Type: EventLoadingOlder}})
	return done
}

func (c *Controller) completePage(epoch uint64, done chan struct{}) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch || c.pageDone != done {
		c.mu.Unlock()
		c.discardStale("page")
		return
	}

	before := c.window
	c.window = min(c.window+c.opts.PageSize, len(c.log))
	c.loadingOlder = false
	c.pageDone = nil
	c.pageTimer = nil
	close(done)
	metrics.PageLoads.Inc()

	c.logger.Debug("older_page_loaded", "window_before", before, "window", c.window)
	c.publishAndUnlock([]Event{{Type: EventWindowExpanded, Window: c.windowLocked()}})
}

// Window returns the visible suffix of the log, oldest first
func (c *Controller) Window() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.windowLocked()
}

// Messages returns the full log, oldest first
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMessages(c.log)
}

func (c *Controller) State() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Subscribe registers l for subsequent events. The returned func removes it.
func (c *Controller) Subscribe(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close tears the view down. Scheduled replies and page loads are cancelled
// and any callback that still fires is discarded. The log itself is left
// untouched. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancelled := c.resetLocked()
	c.listeners = nil
	c.outbox = nil
	c.mu.Unlock()

	c.cancel()
	c.logger.Info("chat_room_view_closed", "cancelled_replies", cancelled)
}

// resetLocked moves to a new epoch and cancels everything armed in the old one
func (c *Controller) resetLocked() int {
	c.epoch++

	cancelled := len(c.replies)
	for _, slot := range c.replies {
		if slot.timer != nil {
			slot.timer.Stop()
		}
		slot.state = replyCancelled
		metrics.RepliesCancelled.Inc()
	}
	c.replies = nil

	if c.pageTimer != nil {
		c.pageTimer.Stop()
		c.pageTimer = nil
	}
	if c.pageDone != nil {
		close(c.pageDone)
		c.pageDone = nil
	}
	c.loadingOlder = false
	return cancelled
}

func (c *Controller) appendLocked(sender Sender, text string, attachment *Attachment) Message {
	msg := Message{
		ID:        newMessageID(),
		Seq:       c.nextSeq,
		Sender:    sender,
		Text:      text,
		Timestamp: c.stampLocked(),
	}
	if attachment != nil {
		att := *attachment
		att.Data = append([]byte(nil), attachment.Data...)
		msg.Attachment = &att
	}
	c.nextSeq++
	c.log = append(c.log, msg)
	// the window grows with the log so appends never push visible messages out
	c.window++
	metrics.MessagesAppended.WithLabelValues(string(sender)).Inc()
	return msg
}

// stampLocked returns the current time, never earlier than the last entry
func (c *Controller) stampLocked() time.Time {
	now := c.opts.Clock()
	if now.Before(c.lastStamp) {
		now = c.lastStamp
	}
	c.lastStamp = now
	return now
}

// persistLocked writes the log through to the store. A degraded view first
// re-reads the store and rebases its own appends onto the stored log; while
// that read keeps failing nothing is written.
func (c *Controller) persistLocked(ctx context.Context) ([]Event, error) {
	var events []Event
	if c.degraded {
		rebased, err := c.recoverLocked(ctx)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrPersist, err)
			return []Event{{Type: EventPersistFailed, Err: err}}, err
		}
		if rebased {
			events = append(events, Event{Type: EventWindowExpanded, Window: c.windowLocked()})
		}
	}
	if err := c.saveLocked(ctx); err != nil {
		return append(events, Event{Type: EventPersistFailed, Err: err}), err
	}
	return events, nil
}

// recoverLocked reloads the stored log of a degraded view. The fallback seed
// is dropped and messages appended after it are renumbered onto the end of
// the stored log. It reports whether the log was replaced.
func (c *Controller) recoverLocked(ctx context.Context) (bool, error) {
	loaded, err := c.opts.Store.Load(ctx, c.roomID)
	switch {
	case err == nil && isOrdered(loaded) && len(loaded) > 0:
	case err == nil, errors.Is(err, ErrNotFound), errors.Is(err, ErrCorrupt):
		// nothing worth keeping, the seeded log stands
		c.degraded = false
		c.logger.Info("chat_log_recovered", "stored", 0, "appended", len(c.log)-c.seedLen)
		return false, nil
	default:
		c.logger.Warn("chat_log_recovery_failed", "error", err)
		return false, err
	}

	appended := cloneMessages(c.log[c.seedLen:])
	base := normalize(loaded)
	c.log = base
	c.nextSeq = base[len(base)-1].Seq + 1
	c.lastStamp = base[len(base)-1].Timestamp
	for _, m := range appended {
		m.Seq = c.nextSeq
		c.nextSeq++
		if m.Timestamp.Before(c.lastStamp) {
			m.Timestamp = c.lastStamp
		}
		c.lastStamp = m.Timestamp
		c.log = append(c.log, m)
	}
	c.window = min(len(c.log), min(c.opts.PageSize, len(base))+len(appended))
	c.degraded = false

	c.logger.Info("chat_log_recovered", "stored", len(base), "appended", len(appended))
	return true, nil
}

func (c *Controller) saveLocked(ctx context.Context) error {
	if err := c.opts.Store.Save(ctx, c.roomID, c.log); err != nil {
		c.logger.Error("chat_log_save_failed", "messages", len(c.log), "error", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (c *Controller) windowLocked() []Message {
	return cloneMessages(c.log[len(c.log)-c.window:])
}

func (c *Controller) stateLocked() ViewState {
	return ViewState{
		RoomID:            c.roomID,
		VisibleWindowSize: c.window,
		Total:             len(c.log),
		HasMoreOlder:      c.window < len(c.log),
		IsLoadingOlder:    c.loadingOlder,
		IsAwaitingReply:   len(c.replies) > 0,
		PendingReplies:    len(c.replies),
	}
}

// publishAndUnlock queues events and releases mu. Whoever finds the
// dispatcher idle delivers the queue in FIFO order with mu released, so
// events reach listeners in the order their transitions happened.
func (c *Controller) publishAndUnlock(events []Event) {
	if len(events) > 0 && len(c.listeners) > 0 {
		state := c.stateLocked()
		for i := range events {
			events[i].RoomID = c.roomID
			events[i].State = state
		}
		c.outbox = append(c.outbox, events...)
	}
	if c.dispatching {
		c.mu.Unlock()
		return
	}

	c.dispatching = true
	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		listeners := c.listenerSnapshotLocked()
		c.mu.Unlock()

		for _, e := range batch {
			for _, l := range listeners {
				l(e)
			}
		}

		c.mu.Lock()
	}
	c.dispatching = false
	c.mu.Unlock()
}

func (c *Controller) listenerSnapshotLocked() []Listener {
	ids := slices.Sorted(maps.Keys(c.listeners))
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.listeners[id])
	}
	return out
}

func (c *Controller) discardStale(kind string) {
	metrics.StaleCallbacks.WithLabelValues(kind).Inc()
	c.logger.Debug("stale_callback_discarded", "kind", kind)
}

// normalize fills identifiers missing from logs written by older clients
func normalize(log []Message) []Message {
	renumber := false
	for i := range log {
		if log[i].ID == "" {
			log[i].ID = newMessageID()
		}
		if log[i].Seq == 0 {
			renumber = true
		}
	}
	if renumber {
		for i := range log {
			log[i].Seq = int64(i + 1)
		}
	}
	return log
}

func eventMessage(m Message) *Message {
	cp := cloneMessages([]Message{m})[0]
	return &cp
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// discardStore keeps nothing; used when no store is wired
type discardStore struct{}

func (discardStore) Load(context.Context, string) ([]Message, error) { return nil, ErrNotFound }

func (discardStore) Save(context.Context, string, []Message) error { return nil }
