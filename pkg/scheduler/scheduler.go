package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/korjavin/eventbot/pkg/logger"
	"github.com/korjavin/eventbot/pkg/models"
	"github.com/robfig/cron/v3"
)

// ErrDelivery marks a failed reminder send
var ErrDelivery = errors.New("reminder delivery failed")

// Notifier delivers reminders to users and groups
type Notifier interface {
	SendDirect(ctx context.Context, userID, text string) error
	SendGroup(ctx context.Context, groupID, text, mentionUserID string) error
}

// Releaser frees per-event resources held outside the store
type Releaser interface {
	ReleaseEvent(ctx context.Context, ev models.Event) error
}

// Composer renders the reminder text for an event in the reader's zone
type Composer interface {
	Reminder(ctx context.Context, ev models.Event, loc *time.Location) string
}

// Signups is the part of the signup registry the reminder pass needs
type Signups interface {
	Due(ctx context.Context, now time.Time) ([]models.DueSignup, error)
	MarkNotified(ctx context.Context, eventID int64, user string) error
}

// Purger finds and removes finished events
type Purger interface {
	QueryExpiredEvents(ctx context.Context, now time.Time) ([]models.Event, error)
	DeleteEvent(ctx context.Context, id int64) error
}

// ProposalSweeper drops expired proposals
type ProposalSweeper interface {
	SweepProposals() int
}

// Options configures a Service
type Options struct {
	Interval  time.Duration
	Timeout   time.Duration
	DryRun    bool
	Now       func() time.Time
	UserZone  func(ctx context.Context, userID string) *time.Location
	Releaser  Releaser
	Proposals ProposalSweeper
}

// Service runs the reminder and cleanup sweepers
type Service struct {
	signups   Signups
	purger    Purger
	notifier  Notifier
	composer  Composer
	releaser  Releaser
	proposals ProposalSweeper
	userZone  func(ctx context.Context, userID string) *time.Location

	interval time.Duration
	timeout  time.Duration
	dryRun   bool
	now      func() time.Time

	// reminderDone holds the latest finished reminder pass not yet consumed by cleanup
	reminderDone chan reminderEpoch

	cron   *cron.Cron
	cancel context.CancelFunc
	mu     sync.Mutex
	logger *logger.Logger
}

// New creates a new scheduler service
func New(signups Signups, purger Purger, notifier Notifier, composer Composer, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.UserZone == nil {
		opts.UserZone = func(context.Context, string) *time.Location { return time.UTC }
	}
	return &Service{
		signups:      signups,
		purger:       purger,
		notifier:     notifier,
		composer:     composer,
		releaser:     opts.Releaser,
		proposals:    opts.Proposals,
		userZone:     opts.UserZone,
		interval:     opts.Interval,
		timeout:      opts.Timeout,
		dryRun:       opts.DryRun,
		now:          opts.Now,
		reminderDone: make(chan reminderEpoch, 1),
		logger:       logger.New("scheduler"),
	}
}

// Start schedules both sweepers every interval. A pass that is still running
// when its next tick fires causes that tick to be skipped.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	cronLog := logger.CronLogger{L: s.logger}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	ctx, cancel := context.WithCancel(context.Background())

	schedule := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(schedule, func() { s.RunReminderPass(ctx, s.now()) }); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule reminder sweeper: %w", err)
	}
	if _, err := c.AddFunc(schedule, func() {
		if err := s.RunCleanupPass(ctx, s.now()); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("Cleanup pass failed: %v", err)
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule cleanup sweeper: %w", err)
	}

	s.cron, s.cancel = c, cancel
	c.Start()
	s.logger.Info("Started reminder and cleanup sweepers every %s", s.interval)
	return nil
}

// Stop stops scheduling and waits for running passes to return
func (s *Service) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	s.logger.Info("Stopping sweepers")
	cancel()
	<-c.Stop().Done()
}

// Tick runs one reminder pass followed by one cleanup pass
func (s *Service) Tick(ctx context.Context) error {
	now := s.now()
	s.RunReminderPass(ctx, now)
	return s.RunCleanupPass(ctx, now)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// reminderEpoch describes a finished reminder pass. Only a complete pass lets
// cleanup purge events that ended at or before its time.
type reminderEpoch struct {
	now      time.Time
	complete bool
}

// RunReminderPass delivers every due reminder and marks it notified whether
// or not the delivery succeeded. It always signals completion to the cleanup
// pass, flagging passes that could not evaluate every due reminder.
func (s *Service) RunReminderPass(ctx context.Context, now time.Time) {
	epoch := reminderEpoch{now: now}
	defer func() { s.signalReminderDone(epoch) }()

	queryCtx, cancel := s.withTimeout(ctx)
	due, err := s.signups.Due(queryCtx, now)
	cancel()
	if err != nil {
		s.logger.Error("Failed to query due reminders: %v", err)
		return
	}
	if len(due) > 0 {
		s.logger.Info("Sending %d due reminders", len(due))
	}

	for _, d := range due {
		if ctx.Err() != nil {
			return
		}
		if s.dryRun {
			s.logger.Info("[dry-run] Would remind user %s about event %d %q", d.UserID, d.Event.ID, d.Event.Name)
			continue
		}

		if err := s.deliver(ctx, d); err != nil {
			s.logger.Error("Reminder for event %d to user %s: %v", d.Event.ID, d.UserID, err)
		}

		markCtx, cancel := s.withTimeout(ctx)
		err := s.signups.MarkNotified(markCtx, d.Event.ID, d.UserID)
		cancel()
		if err != nil {
			s.logger.Error("Failed to mark reminder for event %d to user %s as sent: %v", d.Event.ID, d.UserID, err)
		}
	}
	epoch.complete = true
}

func (s *Service) deliver(ctx context.Context, d models.DueSignup) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	text := s.composer.Reminder(ctx, d.Event, s.userZone(ctx, d.UserID))
	var err error
	if d.Event.IsGroup() {
		err = s.notifier.SendGroup(ctx, d.Event.GroupID, text, d.UserID)
	} else {
		err = s.notifier.SendDirect(ctx, d.UserID, text)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

// signalReminderDone replaces any unconsumed epoch with the newest one
func (s *Service) signalReminderDone(epoch reminderEpoch) {
	for {
		select {
		case s.reminderDone <- epoch:
			return
		default:
		}
		select {
		case <-s.reminderDone:
		default:
		}
	}
}

// waitReminderDone blocks until a reminder pass has finished since the last
// cleanup pass and consumes its epoch.
func (s *Service) waitReminderDone(ctx context.Context) (reminderEpoch, error) {
	select {
	case epoch := <-s.reminderDone:
		return epoch, nil
	case <-ctx.Done():
		return reminderEpoch{}, ctx.Err()
	}
}

// clearReminderDone drops an epoch signalled while cleanup was running, so the
// next cleanup pass waits for a reminder pass that starts after this one.
func (s *Service) clearReminderDone() {
	select {
	case <-s.reminderDone:
	default:
	}
}

// RunCleanupPass waits for a reminder pass, then releases and deletes every
// event that ended at or before both now and the time that pass evaluated.
// Nothing is purged after an incomplete reminder pass. Expired proposals are
// dropped either way.
func (s *Service) RunCleanupPass(ctx context.Context, now time.Time) error {
	epoch, err := s.waitReminderDone(ctx)
	if err != nil {
		return err
	}
	defer s.clearReminderDone()

	if s.proposals != nil && !s.dryRun {
		if n := s.proposals.SweepProposals(); n > 0 {
			s.logger.Debug("Dropped %d expired proposals", n)
		}
	}

	if !epoch.complete {
		s.logger.Warn("Skipping event cleanup: the reminder pass at %s did not complete", epoch.now.Format(time.RFC3339))
		return nil
	}
	if epoch.now.Before(now) {
		now = epoch.now
	}

	queryCtx, cancel := s.withTimeout(ctx)
	expired, err := s.purger.QueryExpiredEvents(queryCtx, now)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to query expired events: %w", err)
	}

	for _, ev := range expired {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.dryRun {
			s.logger.Info("[dry-run] Would delete expired event %d %q", ev.ID, ev.Name)
			continue
		}
		s.purge(ctx, ev)
	}
	return nil
}

func (s *Service) purge(ctx context.Context, ev models.Event) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if s.releaser != nil {
		if err := s.releaser.ReleaseEvent(ctx, ev); err != nil {
			s.logger.Warn("Failed to release resources of event %d: %v", ev.ID, err)
		}
	}
	if err := s.purger.DeleteEvent(ctx, ev.ID); err != nil {
		s.logger.Error("Failed to delete expired event %d: %v", ev.ID, err)
		return
	}
	s.logger.Info("Deleted expired event %d %q", ev.ID, ev.Name)
}
