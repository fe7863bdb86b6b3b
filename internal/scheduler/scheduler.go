package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"petadopt/internal/storage"
	"petadopt/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const tempPhotoPrefix = "adoption-requests/temp_"

// Sweeper removes temporary adoption photos that no request references,
// left behind when a submission failed between upload and persist.
type Sweeper struct {
	requests store.AdoptionRequests
	blobs    storage.Storage
	maxAge   time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewSweeper(requests store.AdoptionRequests, blobs storage.Storage, maxAge time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{requests: requests, blobs: blobs, maxAge: maxAge, log: log, now: time.Now}
}

// Sweep deletes orphaned temp photos older than maxAge and returns how many
// were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	objects, err := s.blobs.List(ctx, tempPhotoPrefix)
	if err != nil {
		return 0, fmt.Errorf("list temp photos: %w", err)
	}
	if len(objects) == 0 {
		return 0, nil
	}

	urls, err := s.requests.ListAdoptionPhotoURLs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list referenced photos: %w", err)
	}
	referenced := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if name, ok := s.blobs.ObjectName(u); ok {
			referenced[name] = struct{}{}
		}
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Name, tempPhotoPrefix) || obj.ModifiedAt.After(cutoff) {
			continue
		}
		if _, ok := referenced[obj.Name]; ok {
			continue
		}
		if err := s.blobs.Delete(ctx, obj.Name); err != nil {
			s.log.Warn("Failed to delete orphaned photo", zap.String("object", obj.Name), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	log     *zap.Logger
}

// NewScheduler registers the sweep under a standard five-field cron spec.
func NewScheduler(spec string, sweeper *Sweeper, log *zap.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithLocation(time.UTC))
	s := &Scheduler{cron: c, sweeper: sweeper, log: log}

	if _, err := c.AddFunc(spec, s.runSweep); err != nil {
		return nil, fmt.Errorf("register photo sweep %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	removed, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.log.Error("Photo sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.log.Info("Orphaned photos removed", zap.Int("count", removed))
	}
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	s.log.Info("Starting cron scheduler")
	s.cron.Start()
}

// Stop waits for a running sweep to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Cron scheduler stopped")
}
