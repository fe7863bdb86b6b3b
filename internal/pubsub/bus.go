package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// Channel name prefixes. A channel is prefix + id.
const (
	OrganizationPrefix = "organization:"
	AdopterPrefix      = "adopter:"
	AdoptionPrefix     = "adoption:"
)

type Bus struct {
	rdb     *redis.Client
	log     *zap.Logger
	wsHub   WSHub
	streams *Streams
}

type WSHub interface {
	Publish(channel string, message map[string]interface{})
}

func New(rdb *redis.Client, log *zap.Logger) *Bus {
	return &Bus{
		rdb:     rdb,
		log:     log,
		streams: NewStreams(rdb, log),
	}
}

// SetWSHub sets the WebSocket hub for event broadcasting
func (b *Bus) SetWSHub(hub WSHub) {
	b.wsHub = hub
}

// GetStreams returns the streams provider
func (b *Bus) GetStreams() *Streams {
	return b.streams
}

// PublishOrganization publishes to the staff channel of an organization
func (b *Bus) PublishOrganization(organizationID string, event map[string]interface{}) error {
	return b.Publish(OrganizationPrefix+organizationID, event)
}

// PublishAdopter publishes to an adopter's personal channel
func (b *Bus) PublishAdopter(userID string, event map[string]interface{}) error {
	return b.Publish(AdopterPrefix+userID, event)
}

// PublishAdoptionRequest publishes to the channel of a single request
func (b *Bus) PublishAdoptionRequest(requestID string, event map[string]interface{}) error {
	return b.Publish(AdoptionPrefix+requestID, event)
}

// Publish publishes an event to a channel
func (b *Bus) Publish(channel string, event map[string]interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		b.log.Error("Failed to publish event", zap.String("channel", channel), zap.Error(err))
		return err
	}

	// Streams keep a replay log; a failure here only costs replay.
	seq, err := b.streams.PublishEvent(ctx, channel, event)
	if err != nil {
		b.log.Warn("Failed to publish to stream", zap.String("channel", channel), zap.Error(err))
	}

	if b.wsHub != nil {
		eventWithSeq := make(map[string]interface{}, len(event)+1)
		for k, v := range event {
			eventWithSeq[k] = v
		}
		eventWithSeq["seq"] = seq
		b.wsHub.Publish(channel, eventWithSeq)
	}

	b.log.Debug("Published event", zap.String("channel", channel), zap.Int64("seq", seq), zap.ByteString("event", data))
	return nil
}
