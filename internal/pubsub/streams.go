package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// maxStreamLen bounds each channel's replay log.
const maxStreamLen = 1000

// StreamEvent represents an event stored in Redis Streams
type StreamEvent struct {
	Channel   string
	Sequence  int64
	Event     map[string]interface{}
	Timestamp time.Time
}

// Streams keeps a per-channel replay log in Redis Streams. Entry ids are
// "0-<seq>" where seq is a per-channel counter, so a client that acked seq N
// resumes from entry 0-(N+1).
type Streams struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewStreams(rdb *redis.Client, log *zap.Logger) *Streams {
	return &Streams{rdb: rdb, log: log}
}

func streamKey(channel string) string { return "stream:" + channel }

// PublishEvent appends an event to the channel's stream and returns its sequence.
func (s *Streams) PublishEvent(ctx context.Context, channel string, event map[string]interface{}) (int64, error) {
	seq, err := s.rdb.Incr(ctx, "seq:"+channel).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(channel),
		ID:     fmt.Sprintf("0-%d", seq),
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":      string(eventData),
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to add to stream: %w", err)
	}

	s.log.Debug("Published event to stream", zap.String("channel", channel), zap.Int64("sequence", seq))
	return seq, nil
}

// GetLastSequence returns the last sequence a connection acknowledged on a channel.
func (s *Streams) GetLastSequence(ctx context.Context, channel, connectionID string) (int64, error) {
	seqStr, err := s.rdb.Get(ctx, ackKey(channel, connectionID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last sequence: %w", err)
	}
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse sequence: %w", err)
	}
	return seq, nil
}

// AcknowledgeSequence records an acknowledgment for a sequence number.
// Acks expire after a day.
func (s *Streams) AcknowledgeSequence(ctx context.Context, channel, connectionID string, sequence int64) error {
	if err := s.rdb.Set(ctx, ackKey(channel, connectionID), sequence, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge sequence: %w", err)
	}
	return nil
}

func ackKey(channel, connectionID string) string {
	return "ack:" + channel + ":" + connectionID
}

// ReplayEvents returns up to limit events with sequence greater than sinceSeq.
func (s *Streams) ReplayEvents(ctx context.Context, channel string, sinceSeq, limit int64) ([]StreamEvent, error) {
	msgs, err := s.rdb.XRangeN(ctx, streamKey(channel), fmt.Sprintf("0-%d", sinceSeq+1), "+", limit).Result()
	if errors.Is(err, redis.Nil) {
		return []StreamEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	events := make([]StreamEvent, 0, len(msgs))
	for _, msg := range msgs {
		seq, err := sequenceFromID(msg.ID)
		if err != nil {
			s.log.Warn("Skipping stream entry", zap.String("id", msg.ID), zap.Error(err))
			continue
		}
		data, _ := msg.Values["data"].(string)
		var event map[string]interface{}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			s.log.Warn("Failed to unmarshal event", zap.Error(err))
			continue
		}
		ts, _ := msg.Values["timestamp"].(string)
		timestamp, _ := time.Parse(time.RFC3339Nano, ts)

		events = append(events, StreamEvent{
			Channel:   channel,
			Sequence:  seq,
			Event:     event,
			Timestamp: timestamp,
		})
	}
	return events, nil
}

// sequenceFromID parses the sequence part of a "0-<seq>" stream id.
func sequenceFromID(id string) (int64, error) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 {
		return 0, fmt.Errorf("invalid stream ID %q", id)
	}
	return strconv.ParseInt(id[i+1:], 10, 64)
}
