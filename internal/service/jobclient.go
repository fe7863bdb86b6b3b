package service

import (
	"time"

	"petadopt/internal/jobs"

	"github.com/hibiken/asynq"
)

// JobClient interface for scheduling background jobs
type JobClient interface {
	ScheduleDecisionNotification(requestID string) error
	ScheduleBlobCleanup(objectNames []string, delay time.Duration) error
}

// AsynqJobClient implements JobClient using asynq
type AsynqJobClient struct {
	client *asynq.Client
}

func NewAsynqJobClient(client *asynq.Client) *AsynqJobClient {
	return &AsynqJobClient{client: client}
}

func (c *AsynqJobClient) ScheduleDecisionNotification(requestID string) error {
	return jobs.ScheduleDecisionNotification(c.client, requestID)
}

func (c *AsynqJobClient) ScheduleBlobCleanup(objectNames []string, delay time.Duration) error {
	return jobs.ScheduleBlobCleanup(c.client, objectNames, delay)
}
