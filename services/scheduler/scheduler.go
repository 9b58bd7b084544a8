// Package schedulersvc runs the periodic maintenance jobs of the API.
package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/iems/core"
)

const jobTimeout = 5 * time.Minute

// EventConcluder concludes the published events that are over.
type EventConcluder interface {
	ConcludePast(ctx context.Context, now time.Time) (int64, error)
}

type Scheduler struct {
	cron      *cron.Cron
	concluder EventConcluder
	logger    core.Logger
}

// New registers the jobs; nothing runs until Start.
func New(conf *core.Config, concluder EventConcluder, logger core.Logger) (*Scheduler, error) {
	cl := cronLogger{logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		concluder: concluder,
		logger:    logger,
	}
	if _, err := s.cron.AddFunc(conf.Scheduler.ConcludeSpec, s.concludeEvents); err != nil {
		return nil, errors.Wrapf(err, "scheduling event conclusion %q", conf.Scheduler.ConcludeSpec)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for the running ones, at most until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) concludeEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.concluder.ConcludePast(ctx, core.NowFunc())
	if err != nil {
		s.logger.Error("concluding past events", err)
		return
	}
	if n > 0 {
		s.logger.Info(fmt.Sprintf("concluded %d past event(s)", n))
	}
}

// cronLogger routes the cron's own messages to core.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvExtras(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, kvExtras(keysAndValues))
}

func kvExtras(kv []interface{}) map[string]interface{} {
	extras := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		extras[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return extras
}
