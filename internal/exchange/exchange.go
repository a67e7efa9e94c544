// Package exchange connects the store with the code protocol: it renders codes from
// live profile and activity state and applies processed results back to the store.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"

	"github.com/garnizeh/triad/internal/cache"
	"github.com/garnizeh/triad/internal/metrics"
	"github.com/garnizeh/triad/internal/payload"
	"github.com/garnizeh/triad/internal/processor"
	"github.com/garnizeh/triad/internal/qrcode"
	"github.com/garnizeh/triad/pkg/models"
	"github.com/garnizeh/triad/pkg/repository"
)

var ErrNoProfile = repository.ErrNoProfile

type Repo interface {
	repository.ProfileRepo
	repository.ContactRepo
	repository.ActivityRepo
	repository.SnapshotRepo
}

type Service struct {
	repo     Repo
	renderer *qrcode.Renderer
	proc     *processor.Processor
	cache    cache.Codes
	metrics  metrics.Recorder
	logger   *slog.Logger
	clock    func() time.Time
}

func New(repo Repo, renderer *qrcode.Renderer, proc *processor.Processor, c cache.Codes, m metrics.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Noop()
	}
	if c == nil {
		c = cache.New(0, 0, logger)
	}
	if proc == nil {
		proc = processor.New(0)
	}
	return &Service{
		repo:     repo,
		renderer: renderer,
		proc:     proc,
		cache:    c,
		metrics:  m,
		logger:   logger,
		clock:    time.Now,
	}
}

// WithClock replaces the time source used for payload timestamps and freshness checks.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) profile(ctx context.Context) (*models.UserProfile, error) {
	p, err := s.repo.GetProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return nil, ErrNoProfile
	}
	return p, nil
}

// Today returns the slot booleans for the current local date.
func (s *Service) Today(ctx context.Context) (models.DayProgress, error) {
	date := models.DateKey(s.clock())
	day, err := s.repo.GetDay(ctx, date)
	if err != nil {
		return models.DayProgress{}, fmt.Errorf("get today: %w", err)
	}
	return day.Progress(date), nil
}

// recent returns up to payload.MaxRecentDays days ending today, recorded days only.
func (s *Service) recent(ctx context.Context) ([]models.DayProgress, error) {
	all, err := s.repo.ListActivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	now := s.clock()
	var out []models.DayProgress
	for i := payload.MaxRecentDays - 1; i >= 0; i-- {
		date := models.DateKey(now.AddDate(0, 0, -i))
		if day, ok := all[date]; ok {
			out = append(out, day.Progress(date))
		}
	}
	return out, nil
}

// LinkCode renders a link code offering relation rel.
func (s *Service) LinkCode(ctx context.Context, rel models.Relation) (*qrcode.Code, error) {
	p, err := s.profile(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := payload.NewLink(p, rel, s.clock())
	if err != nil {
		return nil, err
	}
	return s.render(msg)
}

// SnapshotCode renders today's progress, with recent days attached.
func (s *Service) SnapshotCode(ctx context.Context) (*qrcode.Code, error) {
	p, err := s.profile(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	today, err := s.repo.GetDay(ctx, models.DateKey(now))
	if err != nil {
		return nil, fmt.Errorf("get today: %w", err)
	}
	recent, err := s.recent(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := payload.NewSnapshot(p, today, recent, now)
	if err != nil {
		return nil, err
	}
	return s.render(msg)
}

type cachedCode struct {
	Text string `json:"text"`
	PNG  []byte `json:"png"`
}

// contentKey identifies a message by everything except its timestamp, so a cached
// code is reused only while the content it shows is unchanged.
func contentKey(m payload.Message) string {
	b, err := json.Marshal(payload.Match(m,
		func(l *payload.Link) any {
			c := *l
			c.Timestamp = 0
			return c
		},
		func(sn *payload.Snapshot) any {
			c := *sn
			c.Timestamp = 0
			return c
		},
	))
	if err != nil {
		return ""
	}
	return string(b)
}

func (s *Service) render(msg payload.Message) (*qrcode.Code, error) {
	key := contentKey(msg)
	if b, ok := s.cache.Get(key); ok && key != "" {
		var c cachedCode
		if err := json.Unmarshal(b, &c); err == nil {
			s.metrics.IncCacheHits()
			return &qrcode.Code{Kind: msg.Kind(), Text: c.Text, PNG: c.PNG}, nil
		}
	}
	s.metrics.IncCacheMisses()

	code, err := s.renderer.RenderMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", msg.Kind(), err)
	}
	s.metrics.IncCodesRendered(string(msg.Kind()))

	if b, err := json.Marshal(cachedCode{Text: code.Text, PNG: code.PNG}); err == nil && key != "" {
		s.cache.Set(key, b)
	}
	return code, nil
}

// ProcessText validates text from a scan or manual paste and applies snapshot writes.
// Rejections are reported in the result; the error is for storage failures only.
func (s *Service) ProcessText(ctx context.Context, text string) (processor.Result, error) {
	return s.apply(ctx, s.proc.ProcessText(ctx, text, s.clock()))
}

// ProcessMessage is ProcessText for an already decoded message, as delivered by the scanner.
func (s *Service) ProcessMessage(ctx context.Context, msg payload.Message) (processor.Result, error) {
	return s.apply(ctx, s.proc.Process(msg, s.clock()))
}

func outcome(res processor.Result) string {
	if res.Accepted {
		return "accepted"
	}
	return string(res.Reason)
}

func (s *Service) apply(ctx context.Context, res processor.Result) (processor.Result, error) {
	s.metrics.IncPayloads(string(res.Kind), outcome(res))
	if !res.Accepted {
		s.logger.Warn("code rejected", "reason", string(res.Reason), "kind", string(res.Kind))
		return res, nil
	}
	if res.Snapshot == nil {
		return res, nil
	}

	w := res.Snapshot
	if err := s.repo.SetSnapshot(ctx, w.ContactID, &w.Snapshot); err != nil {
		s.logger.Error("store snapshot", "contact", w.ContactID, "error", err)
		return res, fmt.Errorf("store snapshot: %w", err)
	}

	c, err := s.repo.GetContact(ctx, w.ContactID)
	if err != nil {
		return res, fmt.Errorf("get contact: %w", err)
	}
	if c != nil {
		seen := s.clock().UnixMilli()
		c.LastSeenAt = &seen
		if err := s.repo.SetContact(ctx, c); err != nil {
			return res, fmt.Errorf("update contact: %w", err)
		}
	}

	s.logger.Info("snapshot stored", "contact", w.ContactID, "known_contact", c != nil)
	return res, nil
}

// AcceptLink validates a link code again and, when still fresh, stores the sender as a
// contact under the relation the scanning side holds. Nothing else creates contacts.
func (s *Service) AcceptLink(ctx context.Context, text string) (*models.Contact, processor.Result, error) {
	res := s.proc.ProcessText(ctx, text, s.clock())
	if res.Accepted && res.Link == nil {
		res = processor.Result{Reason: processor.ReasonInvalid, Kind: res.Kind, Message: "not a link code"}
	}
	s.metrics.IncPayloads(string(res.Kind), outcome(res))
	if !res.Accepted {
		return nil, res, nil
	}

	link := res.Link
	c, err := s.repo.GetContact(ctx, link.UserID)
	if err != nil {
		return nil, res, fmt.Errorf("get contact: %w", err)
	}
	if c == nil {
		c = &models.Contact{ID: link.UserID}
	}
	if link.UserName != payload.AnonymousName || c.Label == "" {
		c.Label = link.UserName
	}
	c.Relation = link.ContactRelation()
	seen := s.clock().UnixMilli()
	c.LastSeenAt = &seen

	if err := s.repo.SetContact(ctx, c); err != nil {
		s.logger.Error("store contact", "contact", c.ID, "error", err)
		return nil, res, fmt.Errorf("store contact: %w", err)
	}
	s.logger.Info("contact linked", "contact", c.ID, "relation", string(c.Relation))
	return c, res, nil
}
