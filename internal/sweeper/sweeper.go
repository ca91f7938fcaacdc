// Package sweeper prunes old read notifications on a schedule so the
// store file does not grow without bound.
package sweeper

import (
	"context"
	"fmt"
	"log"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/stellarlinkco/groupwatch/internal/config"
	"github.com/stellarlinkco/groupwatch/internal/store"
)

type Service struct {
	cfg           config.RetentionConfig
	notifications *store.NotificationStore
	cron          *rcron.Cron
	now           func() time.Time
}

func New(cfg config.RetentionConfig, ns *store.NotificationStore) *Service {
	return &Service{
		cfg:           cfg,
		notifications: ns,
		now:           time.Now,
	}
}

// Start schedules the sweep. Retention days <= 0 disables the service.
func (s *Service) Start(ctx context.Context) error {
	if s.cfg.Days <= 0 {
		return nil
	}

	s.cron = rcron.New(rcron.WithSeconds())
	if _, err := s.cron.AddFunc(s.cfg.SweepSpec, s.sweep); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.cfg.SweepSpec, err)
	}
	s.cron.Start()
	log.Printf("[sweeper] pruning read notifications older than %d days (%s)", s.cfg.Days, s.cfg.SweepSpec)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[sweeper] stop timeout waiting for running sweep")
	}
}

func (s *Service) sweep() {
	cutoff := s.now().AddDate(0, 0, -s.cfg.Days)
	removed, err := s.notifications.DeleteReadBefore(cutoff)
	if err != nil {
		log.Printf("[sweeper] sweep error: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("[sweeper] removed %d read notifications", removed)
	}
}
