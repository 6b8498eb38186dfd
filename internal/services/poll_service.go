package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"magicbag/internal/caching"
	"magicbag/internal/common"
	"magicbag/internal/models"
	"magicbag/internal/repositories"
)

const defaultNotifyTTL = 24 * time.Hour

// ItemSource returns every listing around origin.
type ItemSource interface {
	GetItems(ctx context.Context, origin models.Location, radius float64) ([]models.RawItem, error)
}

// Notifier delivers a message to one chat channel.
type Notifier interface {
	Send(ctx context.Context, channelID, message string) error
}

// PollReport summarizes one poll run.
type PollReport struct {
	RunID      uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Locations  int       `json:"locations"`
	Fetched    int       `json:"fetched"`
	Stored     int       `json:"stored"`
	Available  int       `json:"available"`
	Notified   int       `json:"notified"`
	Failures   []string  `json:"failures,omitempty"`
}

func (r *PollReport) fail(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

type PollService interface {
	PollOnce(ctx context.Context) (*PollReport, error)
}

type PollOptions struct {
	RadiusKM float64
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

type pollService struct {
	store    *repositories.PersistenceStore
	source   ItemSource
	notifier Notifier
	cache    caching.CacheService
	radius   float64
	now      func() time.Time
	logger   *slog.Logger
}

// NewPollService wires a poll run. notifier may be nil, in which case items
// are fetched and stored but nothing is sent.
func NewPollService(store *repositories.PersistenceStore, source ItemSource, notifier Notifier, cache caching.CacheService, opts PollOptions) PollService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &pollService{
		store:    store,
		source:   source,
		notifier: notifier,
		cache:    cache,
		radius:   opts.RadiusKM,
		now:      opts.Now,
		logger:   opts.Logger,
	}
}

// PollOnce fetches listings for every stored location, persists them and
// announces newly available ones. A failing location is recorded in the
// report and does not stop the others.
func (s *pollService) PollOnce(ctx context.Context) (*PollReport, error) {
	ctx, runID := common.WithRunID(ctx)
	logger := s.logger.With(slog.String("run_id", runID.String()))

	report := &PollReport{RunID: runID, StartedAt: s.now()}

	locations, err := s.store.Locations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	report.Locations = len(locations)

	var channels []*models.Channel
	if s.notifier != nil {
		channels, err = s.store.Channels.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list channels: %w", err)
		}
	}

	for _, location := range locations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.pollLocation(ctx, logger, location, channels, report)
	}

	report.FinishedAt = s.now()
	logger.Info("poll finished",
		slog.Int("locations", report.Locations),
		slog.Int("fetched", report.Fetched),
		slog.Int("stored", report.Stored),
		slog.Int("notified", report.Notified),
		slog.Int("failures", len(report.Failures)),
	)
	return report, nil
}

func (s *pollService) pollLocation(ctx context.Context, logger *slog.Logger, location *models.Location, channels []*models.Channel, report *PollReport) {
	logger = logger.With(slog.Int64("location_id", location.ID))

	raws, err := s.source.GetItems(ctx, *location, s.radius)
	if err != nil {
		logger.Error("failed to fetch items", slog.Any("error", err))
		report.fail("location %d: %v", location.ID, err)
		return
	}
	report.Fetched += len(raws)

	now := s.now()
	for _, raw := range raws {
		item, err := models.NewItemFromAPI(raw)
		if err != nil {
			logger.Warn("skipping unreadable item", slog.Any("error", err))
			report.fail("item %s: %v", raw.Item.ItemID, err)
			continue
		}

		if err := s.store.Items.Upsert(ctx, item); err != nil {
			logger.Error("failed to store item", slog.String("item_id", item.ID), slog.Any("error", err))
			report.fail("item %s: %v", item.ID, err)
			continue
		}
		report.Stored++

		if !item.IsAvailable(now) {
			continue
		}
		report.Available++

		if len(channels) == 0 {
			continue
		}

		fresh, err := s.cache.MarkNotified(ctx, notifyKey(item), notifyTTL(item, now))
		if err != nil {
			logger.Warn("dedupe lookup failed, skipping notification", slog.String("item_id", item.ID), slog.Any("error", err))
			continue
		}
		if !fresh {
			continue
		}

		message := FormatItemMessage(item)
		for _, channel := range channels {
			if err := s.notifier.Send(ctx, channel.ID, message); err != nil {
				logger.Error("failed to notify channel",
					slog.String("channel_id", channel.ID),
					slog.String("item_id", item.ID),
					slog.Any("error", err),
				)
				report.fail("channel %s: %v", channel.ID, err)
				continue
			}
			report.Notified++
		}
	}
}

// notifyKey identifies one offering of an item; a new pickup window is a new
// offering.
func notifyKey(item *models.Item) string {
	if item.PickupInterval == nil {
		return item.ID
	}
	return item.ID + "@" + item.PickupInterval.StartString()
}

func notifyTTL(item *models.Item, now time.Time) time.Duration {
	if item.PickupInterval != nil {
		if ttl := item.PickupInterval.End.Sub(now); ttl > 0 {
			return ttl
		}
	}
	return defaultNotifyTTL
}

// FormatItemMessage renders the chat announcement for an available item.
func FormatItemMessage(item *models.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** — %d left at %s", item.Title(), item.Amount, item.Price)
	if item.PickupInterval != nil {
		fmt.Fprintf(&b, "\nPickup: %s", item.PickupInterval)
	}
	if item.Store.Address != "" {
		fmt.Fprintf(&b, "\n%s", item.Store.Address)
	}
	return b.String()
}
