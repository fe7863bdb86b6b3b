package ws

import (
	"context"
	"encoding/json"
	"sync"

	"petadopt/internal/model"
	"petadopt/internal/pubsub"

	"go.uber.org/zap"
)

type StreamEvent = pubsub.StreamEvent

// StreamsProvider keeps per-channel replay logs and per-user acknowledgments.
type StreamsProvider interface {
	GetLastSequence(ctx context.Context, channel, connectionID string) (int64, error)
	AcknowledgeSequence(ctx context.Context, channel, connectionID string, sequence int64) error
	ReplayEvents(ctx context.Context, channel string, sinceSeq, limit int64) ([]StreamEvent, error)
}

// Authorizer decides whether a session may listen on a channel.
type Authorizer interface {
	CanSubscribe(ctx context.Context, sess model.Session, channel string) error
}

type published struct {
	channel string
	event   map[string]interface{}
}

// Hub fans bus events out to the sockets subscribed to their channel.
type Hub struct {
	mu         sync.RWMutex
	conns      map[*Conn]struct{}
	subs       map[string]map[*Conn]struct{}
	publish    chan published
	log        *zap.Logger
	cmdHandler *CommandHandler
	streams    StreamsProvider
	authorizer Authorizer
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		conns:   make(map[*Conn]struct{}),
		subs:    make(map[string]map[*Conn]struct{}),
		publish: make(chan published, sendBufferSize),
		log:     log,
	}
}

func (h *Hub) SetCommandHandler(handler *CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmdHandler = handler
}

func (h *Hub) SetStreamsProvider(provider StreamsProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams = provider
}

// SetAuthorizer sets the channel authorizer. Without one every subscription
// is refused.
func (h *Hub) SetAuthorizer(a Authorizer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authorizer = a
}

func (h *Hub) commands() *CommandHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cmdHandler
}

func (h *Hub) replayLog() StreamsProvider {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.streams
}

// Run delivers published events until Close is called.
func (h *Hub) Run() {
	for p := range h.publish {
		targets := h.subscribers(p.channel)
		if len(targets) == 0 {
			continue
		}
		msg, err := json.Marshal(eventFrame(p.channel, seqOf(p.event), p.event))
		if err != nil {
			h.log.Warn("Failed to marshal event", zap.String("channel", p.channel), zap.Error(err))
			continue
		}
		for _, conn := range targets {
			if !h.deliver(conn, msg) {
				// Slow consumer: drop it, the client resumes from its last ack.
				h.unregister(conn)
			}
		}
	}
}

func (h *Hub) subscribers(channel string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.subs[channel]))
	for conn := range h.subs[channel] {
		out = append(out, conn)
	}
	return out
}

// deliver queues msg on conn and reports false when its buffer is full.
// A connection that is no longer registered silently swallows msg.
func (h *Hub) deliver(conn *Conn, msg []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.conns[conn]; !ok {
		return true
	}
	select {
	case conn.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops Run. Publish must not be called afterwards.
func (h *Hub) Close() {
	close(h.publish)
}

func (h *Hub) Register(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

func (h *Hub) unregister(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; !ok {
		return
	}
	delete(h.conns, conn)
	close(conn.send)
	conn.cancel()
	for channel := range conn.subs {
		h.dropSub(conn, channel)
	}
}

// dropSub must be called with mu held.
func (h *Hub) dropSub(conn *Conn, channel string) {
	if subs := h.subs[channel]; subs != nil {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.subs, channel)
		}
	}
	delete(conn.subs, channel)
}

// Subscribe adds conn to channel once the authorizer allows its session.
func (h *Hub) Subscribe(conn *Conn, channel string) error {
	h.mu.RLock()
	authorizer := h.authorizer
	h.mu.RUnlock()
	if authorizer == nil {
		return errNoAuthorizer
	}
	if err := authorizer.CanSubscribe(conn.ctx, conn.session, channel); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; !ok {
		return errClosed
	}
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*Conn]struct{})
	}
	h.subs[channel][conn] = struct{}{}
	conn.subs[channel] = true
	return nil
}

func (h *Hub) Unsubscribe(conn *Conn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropSub(conn, channel)
}

func (h *Hub) subscribed(conn *Conn, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return conn.subs[channel]
}

// Publish queues an event for the subscribers of channel. It never blocks;
// when the queue is full the event is dropped and reaches clients only
// through replay.
func (h *Hub) Publish(channel string, event map[string]interface{}) {
	select {
	case h.publish <- published{channel: channel, event: event}:
	default:
		h.log.Warn("Hub queue full, dropping event", zap.String("channel", channel))
	}
}

// Acknowledge stores the user's position in channel. Acks are keyed by user
// so they survive reconnects.
func (h *Hub) Acknowledge(conn *Conn, channel string, sequence int64) {
	streams := h.replayLog()
	if streams == nil {
		return
	}
	if err := streams.AcknowledgeSequence(conn.ctx, channel, conn.session.UserID, sequence); err != nil {
		h.log.Warn("Failed to acknowledge sequence",
			zap.String("channel", channel),
			zap.Int64("sequence", sequence),
			zap.Error(err),
		)
	}
}

func (h *Hub) lastAcked(conn *Conn, channel string) (int64, error) {
	streams := h.replayLog()
	if streams == nil {
		return 0, nil
	}
	return streams.GetLastSequence(conn.ctx, channel, conn.session.UserID)
}

// Resume replays up to replayLimit events of channel after sinceSeq.
func (h *Hub) Resume(conn *Conn, channel string, sinceSeq int64) {
	streams := h.replayLog()
	if streams == nil {
		conn.sendError("", "unavailable", "replay is disabled")
		return
	}

	events, err := streams.ReplayEvents(conn.ctx, channel, sinceSeq, replayLimit)
	if err != nil {
		h.log.Error("Failed to replay events",
			zap.String("channel", channel),
			zap.Int64("since", sinceSeq),
			zap.Error(err),
		)
		conn.sendError("", "internal_error", "replay failed")
		return
	}
	for _, event := range events {
		conn.enqueue(eventFrame(event.Channel, event.Sequence, event.Event))
	}

	h.log.Debug("Replayed events",
		zap.String("channel", channel),
		zap.String("user_id", conn.session.UserID),
		zap.Int64("since", sinceSeq),
		zap.Int("count", len(events)),
	)
}
