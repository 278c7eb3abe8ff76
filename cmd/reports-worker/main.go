// Command reports-worker posts the daily staff digests on schedule.
//
// Usage: reports-worker [morning|checkins]
//
// With an argument the named report is sent once and the process exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfman30/guesthub/internal/app/bootstrap"
	appconfig "github.com/wolfman30/guesthub/internal/config"
	"github.com/wolfman30/guesthub/internal/notify"
	"github.com/wolfman30/guesthub/internal/reports"
	"github.com/wolfman30/guesthub/pkg/logging"
)

const (
	jobMorningTasks  = "morning_tasks"
	jobTodayCheckins = "today_checkins"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := appconfig.Load()
	logger := logging.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat).Component("reports-worker")

	loc, err := time.LoadLocation(cfg.ReportsTimezone)
	if err != nil {
		logger.Error("invalid reports time zone", "tz", cfg.ReportsTimezone, "error", err)
		os.Exit(1)
	}

	svc, err := buildReports(cfg, loc, logger)
	if err != nil {
		logger.Error("failed to build reports", "error", err)
		os.Exit(1)
	}

	if len(os.Args) >= 2 {
		job, ok := jobs(svc)[os.Args[1]]
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown report %q (want morning or checkins)\n", os.Args[1])
			os.Exit(2)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := job(ctx); err != nil {
			logger.Error("report failed", "report", os.Args[1], "error", err)
			os.Exit(1)
		}
		return
	}

	scheduler := reports.NewScheduler(loc, logger)
	scheduled, err := scheduleAll(scheduler, svc, cfg)
	if err != nil {
		logger.Error("failed to schedule reports", "error", err)
		os.Exit(1)
	}
	if scheduled == 0 {
		logger.Warn("no report times configured; set DAILY_REPORT_TIME_ADMIN or DAILY_REPORT_TIME_CHECKINS")
	}
	scheduler.Start()
	for _, name := range []string{jobMorningTasks, jobTodayCheckins} {
		if next, ok := scheduler.Next(name); ok {
			logger.Info("next report run", "report", name, "at", next.In(loc).Format(time.RFC3339))
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("stopping reports worker...")
	select {
	case <-scheduler.Stop().Done():
	case <-time.After(2 * time.Minute):
		logger.Warn("timed out waiting for running reports")
	}
}

func buildReports(cfg *appconfig.Config, loc *time.Location, logger *logging.Logger) (*reports.Service, error) {
	tgSender, err := bootstrap.BuildTelegramSender(cfg, logger)
	if err != nil {
		return nil, err
	}
	var chat notify.ChatSender
	if tgSender != nil {
		chat = tgSender
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is not set; digests go to email only")
	}

	notifier := notify.NewService(chat, bootstrap.BuildEmailSender(cfg, logger), cfg.ReportEmailTo, logger)
	return reports.NewService(bootstrap.BuildPMSClient(cfg, logger), notifier, reports.Config{
		Property:       cfg.PropertyName,
		AdminChatID:    cfg.TelegramAdminChatID,
		CheckinsChatID: cfg.TelegramCheckinsChatID,
		Location:       loc,
	}, logger), nil
}

func jobs(svc *reports.Service) map[string]reports.Job {
	return map[string]reports.Job{
		"morning":  svc.SendMorningTasks,
		"checkins": svc.SendTodayCheckins,
	}
}

func scheduleAll(s *reports.Scheduler, svc *reports.Service, cfg *appconfig.Config) (int, error) {
	count := 0
	for _, entry := range []struct {
		name string
		spec string
		job  reports.Job
	}{
		{jobMorningTasks, cfg.DailyReportTimeAdmin, svc.SendMorningTasks},
		{jobTodayCheckins, cfg.DailyReportTimeCheckins, svc.SendTodayCheckins},
	} {
		ok, err := s.Schedule(entry.name, entry.spec, entry.job)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}
