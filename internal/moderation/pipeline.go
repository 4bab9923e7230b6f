package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"podium/internal/middleware"
	"podium/internal/models"
	"podium/internal/observability"
	"podium/internal/repository"
	"podium/internal/service"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrQueueFull is returned when the job queue cannot accept more work.
var ErrQueueFull = errors.New("moderation: job queue full")

// errDropJob wraps handler errors that must not be retried, e.g. the target
// room or participant no longer exists.
type errDropJob struct{ err error }

func (e errDropJob) Error() string { return e.err.Error() }
func (e errDropJob) Unwrap() error { return e.err }

// Options tunes the pipeline's worker pool and retry behavior.
type Options struct {
	Workers      int
	JobRetries   int
	CheckTimeout time.Duration
	QueueSize    int
}

// Pipeline is the queue-driven moderation engine. Enqueue is non-blocking;
// N workers drain the queue until Stop.
type Pipeline struct {
	roomRepo   repository.RoomRepository
	msgRepo    repository.MessageRepository
	modRepo    repository.ModerationRepository
	membership *service.MembershipService
	publisher  EventPublisher
	profanity  ProfanityChecker

	opts   Options
	queue  chan Job
	jobLog *observability.JobLogger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewPipeline wires the moderation engine. A nil publisher disables event
// fan-out; a nil checker disables the profanity filter.
func NewPipeline(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	modRepo repository.ModerationRepository,
	membership *service.MembershipService,
	publisher EventPublisher,
	profanity ProfanityChecker,
	opts Options,
) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.JobRetries < 0 {
		opts.JobRetries = 0
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 5 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if profanity == nil {
		profanity = NewWordlistChecker()
	}
	return &Pipeline{
		roomRepo:   roomRepo,
		msgRepo:    msgRepo,
		modRepo:    modRepo,
		membership: membership,
		publisher:  publisher,
		profanity:  profanity,
		opts:       opts,
		queue:      make(chan Job, opts.QueueSize),
		jobLog:     observability.NewJobLogger(),
		stopped:    make(chan struct{}),
	}
}

// Start launches the worker pool. Workers exit when the context is
// cancelled or Stop is called.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	middleware.Logger.Info("moderation pipeline started",
		slog.Int("workers", p.opts.Workers),
		slog.Int("retries", p.opts.JobRetries))
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopped) })
	p.wg.Wait()
}

// EnqueueContentFilter queues a content screen for a freshly created message.
func (p *Pipeline) EnqueueContentFilter(job ContentFilterJob) error {
	return p.enqueue(Job{Kind: KindContentFilter, ContentFilter: &job})
}

// EnqueueAction queues a moderator-issued action.
func (p *Pipeline) EnqueueAction(job ActionJob) error {
	return p.enqueue(Job{Kind: KindModerationAction, Action: &job})
}

func (p *Pipeline) enqueue(job Job) error {
	select {
	case <-p.stopped:
		return ErrQueueFull
	default:
	}
	select {
	case p.queue <- job:
		observability.ModerationQueueDepth.Inc()
		return nil
	default:
		observability.ModerationJobsTotal.WithLabelValues(string(job.Kind), "rejected").Inc()
		return ErrQueueFull
	}
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopped:
			return
		case job := <-p.queue:
			observability.ModerationQueueDepth.Dec()
			p.process(ctx, job)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, job Job) {
	span, ctx := observability.TraceModerationJob(ctx, string(job.Kind), job.roomID())
	defer span.End()
	p.jobLog.LogStart(ctx, string(job.Kind), job.roomID())

	err := p.handle(ctx, job)
	var drop errDropJob
	switch {
	case err == nil:
		observability.ModerationJobsTotal.WithLabelValues(string(job.Kind), "ok").Inc()
		p.jobLog.LogOutcome(ctx, string(job.Kind), job.roomID(), "ok")
	case errors.As(err, &drop):
		// The target vanished; retrying cannot succeed.
		observability.ModerationJobsTotal.WithLabelValues(string(job.Kind), "dropped").Inc()
		p.jobLog.LogOutcome(ctx, string(job.Kind), job.roomID(), "dropped")
	case job.attempts < p.opts.JobRetries:
		span.SetError(err)
		observability.ModerationJobsTotal.WithLabelValues(string(job.Kind), "retried").Inc()
		p.jobLog.LogFailure(ctx, string(job.Kind), job.roomID(), job.attempts+1, err)
		job.attempts++
		if enqErr := p.enqueue(job); enqErr != nil {
			observability.ModerationJobsTotal.WithLabelValues(string(job.Kind), "failed").Inc()
			p.jobLog.LogOutcome(ctx, string(job.Kind), job.roomID(), "lost")
		}
	default:
		span.SetError(err)
		observability.ModerationJobsTotal.WithLabelValues(string(job.Kind), "failed").Inc()
		p.jobLog.LogFailure(ctx, string(job.Kind), job.roomID(), job.attempts+1, err)
	}
}

func (j Job) roomID() uint {
	switch j.Kind {
	case KindContentFilter:
		if j.ContentFilter != nil {
			return j.ContentFilter.RoomID
		}
	case KindModerationAction:
		if j.Action != nil {
			return j.Action.RoomID
		}
	}
	return 0
}

func (p *Pipeline) handle(ctx context.Context, job Job) error {
	switch job.Kind {
	case KindContentFilter:
		return p.handleContentFilter(ctx, *job.ContentFilter)
	case KindModerationAction:
		return p.handleAction(ctx, *job.Action)
	default:
		return errDropJob{fmt.Errorf("unknown job kind %q", job.Kind)}
	}
}

// runProfanityCheck bounds the pluggable checker with the configured
// timeout. A timeout or checker error reads as clean rather than blocking
// the pipeline on a slow external classifier.
func (p *Pipeline) runProfanityCheck(ctx context.Context, content string) []string {
	ctx, cancel := context.WithTimeout(ctx, p.opts.CheckTimeout)
	defer cancel()

	type result struct {
		categories []string
		err        error
	}
	ch := make(chan result, 1)
	go func() {
		cats, err := p.profanity.Check(ctx, content)
		ch <- result{cats, err}
	}()

	select {
	case <-ctx.Done():
		middleware.Logger.Warn("profanity check timed out, treating content as clean")
		return nil
	case r := <-ch:
		if r.err != nil {
			middleware.Logger.Warn("profanity check failed, treating content as clean",
				slog.String("error", r.err.Error()))
			return nil
		}
		return r.categories
	}
}

func (p *Pipeline) handleContentFilter(ctx context.Context, job ContentFilterJob) error {
	room, err := p.roomRepo.GetRoom(ctx, job.RoomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errDropJob{fmt.Errorf("room %d gone", job.RoomID)}
		}
		return err
	}
	if !room.AutoMod.Enabled {
		return nil
	}

	var categories []string
	if room.AutoMod.ProfanityFilter {
		categories = append(categories, p.runProfanityCheck(ctx, job.Content)...)
	}
	if room.AutoMod.SpamFilter && isSpam(job.Content) {
		categories = append(categories, "spam")
	}
	if room.AutoMod.LinkFilter && hasLink(job.Content) {
		categories = append(categories, "link")
	}
	if len(categories) == 0 {
		return nil
	}

	sort.Strings(categories)
	for _, c := range categories {
		observability.ContentFlagsTotal.WithLabelValues(c).Inc()
	}

	reason := "flagged categories: " + strings.Join(categories, ", ")
	entry := &models.ModerationLogEntry{
		ID:           uuid.NewString(),
		ChatRoomID:   job.RoomID,
		ModeratorID:  models.SystemModeratorID,
		TargetUserID: job.UserID,
		Action:       models.ActionFlag,
		Trigger:      models.TriggerAuto,
		Reason:       reason,
		MessageID:    &job.MessageID,
		CreatedAt:    time.Now(),
	}
	if err := p.modRepo.CreateEntry(ctx, entry); err != nil {
		return fmt.Errorf("write flag log: %w", err)
	}

	if err := p.publisher.PublishModerationEvent(ctx, Event{
		Type:         EventContentFlagged,
		RoomID:       job.RoomID,
		MessageID:    job.MessageID,
		TargetUserID: job.UserID,
		ModeratorID:  models.SystemModeratorID,
		Reason:       reason,
		Categories:   categories,
	}); err != nil {
		middleware.Logger.Warn("failed to publish content.flagged event",
			slog.String("error", err.Error()))
	}

	if room.AutoMod.AutoDelete {
		if err := p.msgRepo.MarkDeleted(ctx, job.MessageID, models.SystemModeratorID, reason); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errDropJob{fmt.Errorf("message %s gone", job.MessageID)}
			}
			return fmt.Errorf("auto-delete message: %w", err)
		}
		if err := p.publisher.PublishModerationEvent(ctx, Event{
			Type:        EventMessageDeleted,
			RoomID:      job.RoomID,
			MessageID:   job.MessageID,
			ModeratorID: models.SystemModeratorID,
			Reason:      reason,
		}); err != nil {
			middleware.Logger.Warn("failed to publish message.deleted event",
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// handleAction logs first, then applies. The log entry is never rolled back
// on effect failure: the audit trail may lead enforced state but never lag it.
func (p *Pipeline) handleAction(ctx context.Context, job ActionJob) error {
	if _, err := p.roomRepo.GetRoom(ctx, job.RoomID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errDropJob{fmt.Errorf("room %d gone", job.RoomID)}
		}
		return err
	}

	now := time.Now()
	entry := &models.ModerationLogEntry{
		ID:           uuid.NewString(),
		ChatRoomID:   job.RoomID,
		ModeratorID:  job.ModeratorID,
		TargetUserID: job.TargetUserID,
		Action:       job.Action,
		Trigger:      models.TriggerManual,
		Reason:       job.Reason,
		MessageID:    job.MessageID,
		CreatedAt:    now,
	}
	if job.Duration > 0 {
		entry.DurationMinutes = int(job.Duration / time.Minute)
		expires := now.Add(job.Duration)
		entry.ExpiresAt = &expires
	}
	if err := p.modRepo.CreateEntry(ctx, entry); err != nil {
		return fmt.Errorf("write action log: %w", err)
	}

	if err := p.applyEffect(ctx, job); err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return errDropJob{err}
		}
		return err
	}

	if err := p.publisher.PublishModerationEvent(ctx, Event{
		Type:         EventModerationAction,
		RoomID:       job.RoomID,
		TargetUserID: job.TargetUserID,
		ModeratorID:  job.ModeratorID,
		Action:       job.Action,
		Reason:       job.Reason,
		ExpiresAt:    entry.ExpiresAt,
	}); err != nil {
		middleware.Logger.Warn("failed to publish moderation.action event",
			slog.String("error", err.Error()))
	}
	return nil
}

func (p *Pipeline) applyEffect(ctx context.Context, job ActionJob) error {
	switch job.Action {
	case models.ActionBan:
		return p.membership.Ban(ctx, job.TargetUserID, job.RoomID, job.Reason)
	case models.ActionUnban:
		return p.membership.Unban(ctx, job.TargetUserID, job.RoomID)
	case models.ActionMute:
		return p.membership.Mute(ctx, job.TargetUserID, job.RoomID, job.Duration)
	case models.ActionUnmute:
		return p.membership.Unmute(ctx, job.TargetUserID, job.RoomID)
	case models.ActionDeleteMessage:
		if job.MessageID == nil {
			return errDropJob{errors.New("delete_message without message id")}
		}
		err := p.msgRepo.MarkDeleted(ctx, *job.MessageID, job.ModeratorID, job.Reason)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("message", *job.MessageID)
		}
		return err
	case models.ActionWarn, models.ActionFlag:
		// Log only.
		return nil
	default:
		return errDropJob{fmt.Errorf("unknown action %q", job.Action)}
	}
}

// GetRoomModerationStats aggregates per-action counts from the audit log.
func (p *Pipeline) GetRoomModerationStats(ctx context.Context, roomID uint) (map[models.ModerationAction]int64, error) {
	counts, err := p.modRepo.CountByAction(ctx, roomID)
	if err != nil {
		return nil, err
	}
	stats := make(map[models.ModerationAction]int64, len(counts))
	for _, c := range counts {
		stats[c.Action] = c.Count
	}
	return stats, nil
}

// ListLogs exposes filtered audit-log listing for the admin API.
func (p *Pipeline) ListLogs(ctx context.Context, roomID uint, q repository.LogQuery) ([]*models.ModerationLogEntry, error) {
	return p.modRepo.ListEntries(ctx, roomID, q)
}
