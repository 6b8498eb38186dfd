package services

import (
	"context"
	"fmt"
	"log/slog"

	"magicbag/internal/common"
	"magicbag/internal/geocoding"
	"magicbag/internal/models"
	"magicbag/internal/repositories"
)

type LocationService interface {
	Watch(ctx context.Context, text string) (*models.Location, error)
	List(ctx context.Context) ([]*models.Location, error)
}

type locationService struct {
	resolver  geocoding.Resolver
	locations repositories.LocationRepository
	logger    *slog.Logger
}

func NewLocationService(resolver geocoding.Resolver, locations repositories.LocationRepository, logger *slog.Logger) LocationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &locationService{resolver: resolver, locations: locations, logger: logger}
}

// Watch geocodes text and stores the result as a search origin.
func (s *locationService) Watch(ctx context.Context, text string) (*models.Location, error) {
	resolved, err := s.resolver.Resolve(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", text, err)
	}

	location := &resolved
	if err := s.locations.Add(ctx, location); err != nil {
		return nil, fmt.Errorf("failed to add location: %w", err)
	}

	attrs := []any{slog.Int64("location_id", location.ID), slog.String("address", location.FullAddress)}
	if channelID, ok := common.GetChannelIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String("channel_id", channelID))
	}
	s.logger.Info("watching location", attrs...)
	return location, nil
}

func (s *locationService) List(ctx context.Context) ([]*models.Location, error) {
	return s.locations.List(ctx)
}
