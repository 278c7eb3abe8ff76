package reports

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wolfman30/guesthub/pkg/logging"
)

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// Job is one scheduled report.
type Job func(ctx context.Context) error

// Scheduler runs reports on cron specs in the reports time zone.
type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	logger  *logging.Logger
	timeout time.Duration
	entries map[string]cron.EntryID
}

// NewScheduler creates a scheduler evaluating specs in loc.
func NewScheduler(loc *time.Location, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		parser:  parser,
		logger:  logger.Component("reports-scheduler"),
		timeout: 2 * time.Minute,
		entries: make(map[string]cron.EntryID),
	}
}

// NormalizeSpec turns "HH:MM" into a daily cron spec and passes anything
// else through.
func NormalizeSpec(value string) string {
	value = strings.TrimSpace(value)
	if m := clockPattern.FindStringSubmatch(value); m != nil {
		return m[2] + " " + m[1] + " * * *"
	}
	return value
}

// Schedule registers job under name. An empty spec leaves the job disabled
// and reports false.
func (s *Scheduler) Schedule(name, spec string, job Job) (bool, error) {
	spec = NormalizeSpec(spec)
	if spec == "" {
		s.logger.Warn("report not scheduled, no time configured", "report", name)
		return false, nil
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return false, fmt.Errorf("reports: invalid schedule %q for %s: %w", spec, name, err)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return false, fmt.Errorf("reports: schedule %s: %w", name, err)
	}
	s.entries[name] = id
	s.logger.Info("report scheduled", "report", name, "spec", spec)
	return true, nil
}

// Next returns the next run time of a scheduled report.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler; the returned context is done once running jobs
// finish.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

func (s *Scheduler) run(name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled report panicked", "report", name, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("scheduled report failed", "report", name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("scheduled report finished", "report", name, "duration", time.Since(start))
}
