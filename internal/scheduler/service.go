package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"shorts-gen/internal"
	"shorts-gen/internal/audio"
	"shorts-gen/internal/logging"
	"shorts-gen/internal/model"
	"shorts-gen/internal/pipeline"
	"shorts-gen/internal/queue"
	"shorts-gen/internal/s3"
	"shorts-gen/internal/uploaders"
)

// dueGrace is how late a scheduled slot may still run after a restart.
const dueGrace = 10 * time.Minute

// BedSyncer refreshes the bed library.
type BedSyncer interface {
	EnsureBeds(ctx context.Context) error
}

// Notifier delivers a job result to a chat. v is nil when the job failed.
type Notifier func(chatID int64, text string, v *model.Video)

// Status is a snapshot of the worker.
type Status struct {
	Current      *queue.Job
	StartedAt    time.Time
	LastVideo    *model.Video
	LastError    string
	LastFinished time.Time
	Processed    int
	Failed       int
}

type Service struct {
	cfg  internal.Config
	s3c  s3.Client
	log  *logging.Logger
	cron *cron.Cron

	gen     *pipeline.Generator
	beds    BedSyncer
	queue   queue.Queue
	uploads *uploaders.Manager
	janitor *Janitor

	now   func() time.Time
	topic func(ctx context.Context) string

	scheduleMu sync.Mutex
	schedule   *DailySchedule

	cfgMu sync.Mutex

	statusMu sync.Mutex
	status   Status

	notifyMu sync.Mutex
	notify   Notifier
}

// NewService wires the scheduler around an existing generator and queue.
// beds and uploads may be nil.
func NewService(cfg internal.Config, s3c s3.Client, log *logging.Logger, gen *pipeline.Generator, q queue.Queue, beds BedSyncer, uploads *uploaders.Manager) *Service {
	s := &Service{
		cfg:     cfg,
		s3c:     s3c,
		log:     log,
		cron:    cron.New(cron.WithSeconds()),
		gen:     gen,
		beds:    beds,
		queue:   q,
		uploads: uploads,
		janitor: NewJanitor(gen, cfg.ScratchDir, cfg.MaxAge, log),
		now:     time.Now,
	}
	s.topic = func(ctx context.Context) string { return PickTopic(ctx, s3c, cfg) }
	return s
}

// BuildService wires every component from configuration.
func BuildService(ctx context.Context, cfg internal.Config, s3c s3.Client, log *logging.Logger) (*Service, error) {
	RestoreYouTubeCredentials(ctx, s3c, cfg, log)
	mgr := uploaders.NewManager(cfg, log)
	log.Infof("uploaders manager initialized with %d platforms", len(mgr.AvailablePlatforms()))

	gen, err := pipeline.Build(cfg, s3c, log, mgr)
	if err != nil {
		return nil, err
	}
	q, err := queue.Open(cfg.RedisURL, log)
	if err != nil {
		return nil, err
	}

	s := NewService(cfg, s3c, log, gen, q, audio.NewIndexer(cfg, s3c, log), mgr)
	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	if err := s.LoadPostsChatID(ctx); err != nil {
		log.Errorf("failed to load POSTS_CHAT_ID: %v", err)
	}
	return s, nil
}

func (s *Service) registerJobs() error {
	// Hourly bed library refresh (0 seconds, every hour)
	if s.beds != nil {
		if _, err := s.cron.AddFunc("0 0 * * * *", func() {
			s.log.Infof("cron: ensuring beds")
			if err := s.beds.EnsureBeds(context.Background()); err != nil {
				s.log.Errorf("cron ensure beds: %v", err)
			}
		}); err != nil {
			return err
		}
	}
	// Due check at the top of every minute
	if _, err := s.cron.AddFunc("0 * * * * *", func() {
		if err := s.CheckDue(context.Background()); err != nil {
			s.log.Errorf("cron due check: %v", err)
		}
	}); err != nil {
		return err
	}
	return nil
}

// Run starts cron, the janitor and the queue worker, and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.currentSchedule(ctx); err != nil {
		s.log.Errorf("failed to load schedule: %v", err)
	}
	s.cron.Start()
	s.janitor.Start(ctx)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := s.queue.Listen(ctx, s.handle); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Errorf("worker stopped: %v", err)
		}
	}()

	<-ctx.Done()

	s.janitor.Stop()
	<-workerDone

	ctxStop := s.cron.Stop()
	select {
	case <-ctxStop.Done():
		return nil
	case <-time.After(10 * time.Second):
		return errors.New("cron stop timeout")
	}
}

func (s *Service) Generator() *pipeline.Generator { return s.gen }

func (s *Service) Config() internal.Config {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.cfg
}

func (s *Service) SetNotifier(n Notifier) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.notify = n
}

func (s *Service) send(chatID int64, text string, v *model.Video) {
	s.notifyMu.Lock()
	n := s.notify
	s.notifyMu.Unlock()
	if n != nil && chatID != 0 {
		n(chatID, text, v)
	}
}

// Enqueue queues a generation. An empty topic is replaced by a random one.
func (s *Service) Enqueue(ctx context.Context, topic string, chatID int64, source string) (queue.Job, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = s.topic(ctx)
	}
	job := queue.NewJob(topic, chatID, source)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return job, fmt.Errorf("enqueue %q: %w", topic, err)
	}
	s.log.Infof("queued job %s (%s): %q", job.ID, source, topic)
	return job, nil
}

func (s *Service) QueueLen(ctx context.Context) int64 {
	n, err := s.queue.Len(ctx)
	if err != nil {
		s.log.Warnf("queue length: %v", err)
		return -1
	}
	return n
}

func (s *Service) handle(ctx context.Context, job queue.Job) error {
	started := s.now()
	s.statusMu.Lock()
	s.status.Current = &job
	s.status.StartedAt = started
	s.statusMu.Unlock()

	chatID := job.ChatID
	if chatID == 0 {
		chatID = s.Config().PostsChatID
	}

	v, err := s.gen.GenerateOne(ctx, job.Topic)

	s.statusMu.Lock()
	s.status.Current = nil
	s.status.LastFinished = s.now()
	if err != nil {
		s.status.Failed++
		s.status.LastError = err.Error()
	} else {
		s.status.Processed++
		s.status.LastVideo = v
		s.status.LastError = ""
	}
	s.statusMu.Unlock()

	if err != nil {
		s.send(chatID, fmt.Sprintf("❌ Generation failed for %q: %v", job.Topic, err), nil)
		return err
	}
	s.send(chatID, VideoSummary(v), v)
	return nil
}

func (s *Service) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status
	if st.Current != nil {
		j := *st.Current
		st.Current = &j
	}
	return st
}

// CheckDue enqueues a random topic for every slot of today's schedule whose
// time has come.
func (s *Service) CheckDue(ctx context.Context) error {
	now := s.now()
	s.scheduleMu.Lock()
	sched, err := s.scheduleFor(ctx, now)
	if err != nil {
		s.scheduleMu.Unlock()
		return err
	}
	due, missed := DueEntries(sched, now, dueGrace)
	if due+missed > 0 {
		if err := SaveSchedule(ctx, s.s3c, s.cfg.ScheduleJSONKey, sched); err != nil {
			s.log.Warnf("failed to save schedule: %v", err)
		}
	}
	s.scheduleMu.Unlock()

	if missed > 0 {
		s.log.Warnf("schedule: skipped %d slots missed by more than %s", missed, dueGrace)
	}
	var errs []error
	for range due {
		if _, err := s.Enqueue(ctx, "", s.Config().PostsChatID, "schedule"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// scheduleFor returns the plan for now's day. Callers hold scheduleMu.
func (s *Service) scheduleFor(ctx context.Context, now time.Time) (*DailySchedule, error) {
	if s.schedule != nil && s.schedule.Date == dayKey(now) {
		return s.schedule, nil
	}
	sched, err := GetOrCreateSchedule(ctx, s.s3c, s.cfg.ScheduleJSONKey, s.cfg.DailyGenerations, now)
	if err != nil {
		return nil, err
	}
	s.schedule = sched
	if len(sched.Entries) > 0 {
		s.log.Infof("loaded schedule for %s with %d entries", sched.Date, len(sched.Entries))
	}
	return sched, nil
}

func (s *Service) currentSchedule(ctx context.Context) (*DailySchedule, error) {
	s.scheduleMu.Lock()
	defer s.scheduleMu.Unlock()
	return s.scheduleFor(ctx, s.now())
}

// Schedule returns a copy of today's plan, nil if it is not loaded yet.
func (s *Service) Schedule() *DailySchedule {
	s.scheduleMu.Lock()
	defer s.scheduleMu.Unlock()
	if s.schedule == nil {
		return nil
	}
	cp := *s.schedule
	cp.Entries = append([]ScheduleEntry(nil), s.schedule.Entries...)
	return &cp
}

// RestoreYouTubeCredentials downloads the client secrets and token from
// <tokens>/ in the store when they are missing on disk.
func RestoreYouTubeCredentials(ctx context.Context, s3c s3.Client, cfg internal.Config, log *logging.Logger) {
	for key, path := range map[string]string{
		cfg.TokensPrefix + "client_secret.json": cfg.YouTubeClientSecrets,
		cfg.TokensPrefix + "token.json":         cfg.YouTubeToken,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := s3c.DownloadFile(ctx, key, path); err != nil {
			if !s3.IsNotExist(err) {
				log.Warnf("restore %s: %v", key, err)
			}
			continue
		}
		log.Infof("restored %s from %s", path, key)
	}
}

type storedConfig struct {
	PostsChatID int64 `json:"posts_chat_id"`
}

func (s *Service) SavePostsChatID(ctx context.Context, chatID int64) error {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.cfg.PostsChatID = chatID
	if s.uploads != nil {
		s.uploads.UpdateTelegramChatID(strconv.FormatInt(chatID, 10))
	}
	return s.s3c.WriteJSON(ctx, "config.json", &storedConfig{PostsChatID: chatID})
}

func (s *Service) LoadPostsChatID(ctx context.Context) error {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	var stored storedConfig
	found, err := s.s3c.ReadJSON(ctx, "config.json", &stored)
	if err != nil {
		return err
	}
	if found && stored.PostsChatID != 0 {
		s.cfg.PostsChatID = stored.PostsChatID
		if s.uploads != nil {
			s.uploads.UpdateTelegramChatID(strconv.FormatInt(stored.PostsChatID, 10))
		}
		s.log.Infof("loaded POSTS_CHAT_ID=%d from store", stored.PostsChatID)
	}
	return nil
}

// VideoSummary is the chat message sent when a video is ready.
func VideoSummary(v *model.Video) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ %s\n", v.Title)
	fmt.Fprintf(&b, "ID: %s\nTopic: %s\nDuration: %.1fs\n", v.ID, v.Topic, v.DurationS)
	if v.CaptionStrategy != "" {
		fmt.Fprintf(&b, "Captions: %s\n", v.CaptionStrategy)
	} else {
		b.WriteString("Captions: none\n")
	}
	if len(v.Degradations) > 0 {
		fmt.Fprintf(&b, "Degraded: %s\n", strings.Join(v.Degradations, "; "))
	}
	if len(v.Uploads) > 0 {
		platforms := make([]string, 0, len(v.Uploads))
		for _, p := range slices.Sorted(maps.Keys(v.Uploads)) {
			mark := "✗"
			if v.Uploads[p] {
				mark = "✓"
			}
			platforms = append(platforms, p+" "+mark)
		}
		fmt.Fprintf(&b, "Uploads: %s\n", strings.Join(platforms, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
