// internal/activity/purge.go
package activity

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartPurgeJob schedules a daily retention sweep. The returned scheduler is
// already started; callers shut it down on exit.
func StartPurgeJob(rec *Recorder, retentionDays int, log *zap.SugaredLogger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = s.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			n, err := rec.PurgeOlderThan(ctx, retentionDays)
			if err != nil {
				log.Errorw("activity purge", "err", err)
				return
			}
			log.Infow("activity purge", "deleted", n, "retention_days", retentionDays)
		}),
	)
	if err != nil {
		return nil, err
	}
	s.Start()
	return s, nil
}
