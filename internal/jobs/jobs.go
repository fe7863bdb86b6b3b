package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/notify"
	"petadopt/internal/storage"
	"petadopt/internal/store"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeDecisionNotification = "adoption:notify_decision"
	TypeBlobCleanup          = "blobs:cleanup"
)

// Publisher is the part of the event bus the handlers use.
type Publisher interface {
	PublishAdopter(userID string, event map[string]interface{}) error
}

type JobServer struct {
	server   *asynq.Server
	client   *asynq.Client
	store    store.Store
	blobs    storage.Storage
	notifier notify.Notifier
	bus      Publisher
	log      *zap.Logger
}

func NewJobServer(redisAddr string, st store.Store, blobs storage.Storage, notifier notify.Notifier, bus Publisher, log *zap.Logger) (*JobServer, *asynq.Client) {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	client := asynq.NewClient(redisOpt)

	return &JobServer{
		server:   server,
		client:   client,
		store:    st,
		blobs:    blobs,
		notifier: notifier,
		bus:      bus,
		log:      log,
	}, client
}

func (js *JobServer) Start() error {
	mux := asynq.NewServeMux()

	mux.HandleFunc(TypeDecisionNotification, js.handleDecisionNotification)
	mux.HandleFunc(TypeBlobCleanup, js.handleBlobCleanup)

	return js.server.Start(mux)
}

func (js *JobServer) Stop() {
	js.server.Shutdown()
	js.client.Close()
}

// Job handlers

func (js *JobServer) handleDecisionNotification(ctx context.Context, t *asynq.Task) error {
	requestID := string(t.Payload())

	req, err := js.store.GetAdoptionRequest(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("adoption request %s: %w", requestID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("failed to get adoption request: %w", err)
	}

	// Only decided requests are notified
	if req.Status != model.RequestApproved && req.Status != model.RequestRejected {
		return nil
	}

	adopter, err := js.store.GetUserByID(ctx, req.AdopterID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("adopter %s: %w", req.AdopterID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("failed to get adopter: %w", err)
	}

	if err := js.notifier.Send(ctx, notify.DecisionMessage(req, adopter)); err != nil {
		return fmt.Errorf("failed to send decision email: %w", err)
	}

	_ = js.bus.PublishAdopter(req.AdopterID, map[string]interface{}{
		"type":      "adoption.notified",
		"requestId": req.ID,
		"status":    string(req.Status),
	})

	js.log.Info("Decision notification sent", zap.String("request_id", requestID), zap.String("status", string(req.Status)))
	return nil
}

type blobCleanupPayload struct {
	Objects []string `json:"objects"`
}

func (js *JobServer) handleBlobCleanup(ctx context.Context, t *asynq.Task) error {
	var p blobCleanupPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("invalid cleanup payload: %v: %w", err, asynq.SkipRetry)
	}

	var failed []string
	for _, name := range p.Objects {
		if err := js.blobs.Delete(ctx, name); err != nil {
			if errors.Is(err, storage.ErrInvalidObjectName) {
				js.log.Warn("Skipping invalid object name", zap.String("object", name))
				continue
			}
			js.log.Warn("Failed to delete object", zap.String("object", name), zap.Error(err))
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to delete %d of %d objects", len(failed), len(p.Objects))
	}

	js.log.Info("Objects cleaned up", zap.Int("count", len(p.Objects)))
	return nil
}

// Schedule jobs

func ScheduleDecisionNotification(client *asynq.Client, requestID string) error {
	task := asynq.NewTask(TypeDecisionNotification, []byte(requestID))
	_, err := client.Enqueue(task, asynq.Queue("default"), asynq.MaxRetry(5))
	return err
}

// ScheduleBlobCleanup deletes the named objects after delay.
func ScheduleBlobCleanup(client *asynq.Client, objectNames []string, delay time.Duration) error {
	if len(objectNames) == 0 {
		return nil
	}
	payload, err := json.Marshal(blobCleanupPayload{Objects: objectNames})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeBlobCleanup, payload)
	_, err = client.Enqueue(task, asynq.Queue("low"), asynq.ProcessIn(delay))
	return err
}
