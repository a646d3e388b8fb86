package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/meng-fucius/guardbot/internal/config"
	"github.com/meng-fucius/guardbot/internal/observability"
)

// ScanReport is the outcome of one reconciliation run.
type ScanReport struct {
	RunID    string
	Kicked   int
	Failures int
}

// Scanner periodically reconciles guild rosters against the blacklist:
// every blacklisted user still present in a guild gets kicked. Concurrent
// triggers (cron tick plus a manual /scan) collapse into a single run whose
// report is shared by all callers.
type Scanner struct {
	blacklist     *BlacklistService
	sessions      []Session
	schedule      string
	notifyAdminID int64
	messages      config.Messages

	cron  *cron.Cron
	group singleflight.Group
}

func NewScanner(blacklist *BlacklistService, sessions []Session, policy *config.Policy) *Scanner {
	return &Scanner{
		blacklist:     blacklist,
		sessions:      sessions,
		schedule:      policy.ScanSchedule,
		notifyAdminID: policy.NotifyAdminID,
		messages:      policy.Messages,
	}
}

func (s *Scanner) getLogEntry() *log.Entry {
	return log.WithField("context", "scanner")
}

func (s *Scanner) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Trigger(context.Background()); err != nil {
			s.getLogEntry().WithError(err).Error("scheduled scan failed")
		}
	})
	if err != nil {
		return errors.Wrap(err, "failed to schedule scan")
	}
	s.cron.Start()
	return nil
}

func (s *Scanner) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Trigger starts a scan, or joins one already in flight and returns its
// report.
func (s *Scanner) Trigger(ctx context.Context) (ScanReport, error) {
	v, err, _ := s.group.Do("scan", func() (interface{}, error) {
		return s.runScan(ctx)
	})
	if err != nil {
		return ScanReport{}, err
	}
	return v.(ScanReport), nil
}

func (s *Scanner) runScan(ctx context.Context) (ScanReport, error) {
	report := ScanReport{RunID: uuid.NewRandom().String()}
	entry := s.getLogEntry().WithField("run_id", report.RunID)

	ctx, span := otel.Tracer("scanner").Start(ctx, "reconciliation_scan")
	defer span.End()
	started := time.Now()
	defer func() {
		observability.ObserveScanDuration(time.Since(started).Seconds())
	}()

	snapshot, err := s.blacklist.Snapshot(ctx)
	if err != nil {
		return report, errors.Wrap(err, "failed to snapshot blacklist")
	}
	if len(snapshot) == 0 {
		entry.Debug("blacklist empty, nothing to reconcile")
		s.notify(ctx, report)
		return report, nil
	}

	for _, sess := range s.sessions {
		guilds, err := sess.ListGuilds(ctx)
		if err != nil {
			entry.WithError(err).WithField("session", sess.Name()).Warn("failed to list guilds")
			report.Failures++
			continue
		}
		for _, guild := range guilds {
			members, err := sess.ListMembers(ctx, guild.ID)
			if err != nil {
				entry.WithError(err).WithField("guild_id", guild.ID).Warn("failed to list members")
				report.Failures++
				continue
			}
			for _, userID := range members {
				if _, banned := snapshot[userID]; !banned {
					continue
				}
				if err := sess.Kick(ctx, guild.ID, userID); err != nil {
					entry.WithError(err).WithFields(log.Fields{
						"guild_id": guild.ID,
						"user_id":  userID,
					}).Warn("failed to kick blacklisted member")
					report.Failures++
					continue
				}
				report.Kicked++
				observability.RecordKick("reconciliation")
				observability.Audit.Info("kick",
					zap.Int64("guild_id", guild.ID),
					zap.Int64("user_id", userID),
					zap.String("reason", "reconciliation"),
					zap.String("run_id", report.RunID),
				)
			}
		}
	}

	entry.WithFields(log.Fields{
		"kicked":   report.Kicked,
		"failures": report.Failures,
	}).Info("scan finished")
	s.notify(ctx, report)
	return report, nil
}

func (s *Scanner) notify(ctx context.Context, report ScanReport) {
	if s.notifyAdminID == 0 || len(s.sessions) == 0 {
		return
	}
	text := s.messages.ScanSummary.Render(map[string]string{
		"run":      report.RunID,
		"kicked":   strconv.Itoa(report.Kicked),
		"failures": strconv.Itoa(report.Failures),
	})
	if err := s.sessions[0].SendDirect(ctx, s.notifyAdminID, text); err != nil {
		s.getLogEntry().WithError(err).Warn("failed to deliver scan summary")
	}
}
