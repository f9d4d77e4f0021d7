// Package sched triggers the bot's periodic tasks on cron schedules.
package sched

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"craftbot/pkg/logx"
)

type Config struct {
	// Timezone names the IANA location schedules run in. Empty means local.
	Timezone string
}

type Task struct {
	Name string
	// Spec is a cron expression or descriptor such as "@every 1m".
	Spec string
	Run  func(ctx context.Context) error
}

type taskState struct {
	task    Task
	running bool
}

// Service runs registered tasks. A task still running when its next trigger
// fires is skipped, not queued, so a slow log scan cannot pile up behind
// itself.
type Service struct {
	cfg    Config
	log    logx.Logger
	parser cron.Parser

	mu    sync.Mutex
	c     *cron.Cron
	tasks []*taskState
	wg    sync.WaitGroup
	ctx   context.Context

	cancel context.CancelFunc
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Register adds a task. Must be called before Start.
func (s *Service) Register(name, spec string, run func(ctx context.Context) error) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("task %s: bad spec %q: %w", name, spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return fmt.Errorf("task %s: scheduler already started", name)
	}
	s.tasks = append(s.tasks, &taskState{task: Task{Name: name, Spec: spec, Run: run}})
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("load timezone %q: %w", tz, err)
		}
		loc = l
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, ts := range s.tasks {
		ts := ts
		if _, err := s.c.AddFunc(ts.task.Spec, func() { s.trigger(ts) }); err != nil {
			return fmt.Errorf("task %s: %w", ts.task.Name, err)
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()), logx.Int("tasks", len(s.tasks)))
	return nil
}

func (s *Service) trigger(ts *taskState) {
	s.mu.Lock()
	if ts.running || s.c == nil {
		if ts.running {
			s.log.Warn("task still running, skipping trigger", logx.String("task", ts.task.Name))
		}
		s.mu.Unlock()
		return
	}
	ts.running = true
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("task panicked", logx.String("task", ts.task.Name), logx.Any("panic", r))
			}
			s.mu.Lock()
			ts.running = false
			s.mu.Unlock()
			s.wg.Done()
		}()
		if err := ts.task.Run(ctx); err != nil {
			s.log.Warn("task failed", logx.String("task", ts.task.Name),
				logx.Duration("took", time.Since(start)), logx.Err(err))
			return
		}
		s.log.Debug("task finished", logx.String("task", ts.task.Name),
			logx.Duration("took", time.Since(start)))
	}()
}

// Stop halts triggering and waits for in-flight tasks to finish or the
// context to expire.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	cancel := s.cancel
	s.mu.Unlock()
	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}
