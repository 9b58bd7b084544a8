package schedulersvc

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/testutil"
)

type fakeConcluder struct {
	calls []time.Time
	n     int64
	err   error
	panic bool
}

func (c *fakeConcluder) ConcludePast(_ context.Context, now time.Time) (int64, error) {
	c.calls = append(c.calls, now)
	if c.panic {
		panic("boom")
	}
	return c.n, c.err
}

type logLine struct {
	level, msg string
}

type memLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *memLogger) log(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, logLine{level, msg})
	l.mu.Unlock()
}

func (l *memLogger) Debug(msg string, _ ...interface{}) { l.log("debug", msg) }
func (l *memLogger) Info(msg string, _ ...interface{})  { l.log("info", msg) }
func (l *memLogger) Warn(msg string, _ ...interface{})  { l.log("warn", msg) }
func (l *memLogger) Error(msg string, _ ...interface{}) { l.log("error", msg) }
func (l *memLogger) Fatal(msg string, _ ...interface{}) { l.log("fatal", msg) }

func (l *memLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line.level == level && line.msg == msg {
			return true
		}
	}
	return false
}

var _ core.Logger = (*memLogger)(nil)

func newScheduler(t *testing.T, concluder EventConcluder) (*Scheduler, *memLogger) {
	logger := new(memLogger)
	s, err := New(core.NewTestConfig(), concluder, logger)
	require.NoError(t, err)
	return s, logger
}

func TestNew(t *testing.T) {
	s, _ := newScheduler(t, new(fakeConcluder))
	assert.Len(t, s.cron.Entries(), 1)

	conf := core.NewTestConfig()
	conf.Scheduler.ConcludeSpec = "every now and then"
	_, err := New(conf, new(fakeConcluder), new(memLogger))
	assert.Error(t, err)
}

func TestScheduler_ConcludeJob(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	testutil.FreezeTime(t, now)

	tests := []struct {
		name      string
		concluder *fakeConcluder
		level     string
		msg       string
	}{
		{name: "concluded", concluder: &fakeConcluder{n: 3}, level: "info", msg: "concluded 3 past event(s)"},
		{name: "store error", concluder: &fakeConcluder{err: errors.New("db down")}, level: "error", msg: "concluding past events"},
		{name: "panic recovered", concluder: &fakeConcluder{panic: true}, level: "error", msg: "cron: panic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, logger := newScheduler(t, tt.concluder)
			entries := s.cron.Entries()
			require.Len(t, entries, 1)

			// the wrapped job, as the cron runs it
			entries[0].WrappedJob.Run()

			require.Len(t, tt.concluder.calls, 1)
			assert.Equal(t, now, tt.concluder.calls[0])
			assert.True(t, logger.has(tt.level, tt.msg), fmt.Sprintf("%+v", logger.lines))
		})
	}

	t.Run("nothing to conclude", func(t *testing.T) {
		s, logger := newScheduler(t, new(fakeConcluder))
		s.concludeEvents()
		assert.Empty(t, logger.lines)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	s, _ := newScheduler(t, new(fakeConcluder))
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
