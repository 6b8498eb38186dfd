package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"magicbag/internal/common"
	"magicbag/internal/models"
)

type ChannelRepository interface {
	// Add registers a channel. created is false when it already existed.
	Add(ctx context.Context, channel *models.Channel) (created bool, err error)
	List(ctx context.Context) ([]*models.Channel, error)
	Remove(ctx context.Context, id string) error
}

const (
	insertChannelQuery = `INSERT INTO channels (id, name) VALUES ($1, $2)`
	listChannelsQuery  = `SELECT id, name FROM channels`
	deleteChannelQuery = `DELETE FROM channels WHERE id = $1`
)

type channelRepo struct {
	db     DB
	logger *slog.Logger
}

func NewChannelRepo(db DB, logger *slog.Logger) ChannelRepository {
	return &channelRepo{db: db, logger: logger}
}

func (r *channelRepo) Add(ctx context.Context, channel *models.Channel) (bool, error) {
	_, err := r.db.Exec(ctx, insertChannelQuery, channel.ID, channel.Name)
	if err != nil {
		if common.IsUniqueViolation(err) {
			r.logger.Info("channel already exists", slog.String("channel_id", channel.ID))
			return false, nil
		}
		return false, fmt.Errorf("insert channel %s: %w", channel.ID, err)
	}
	return true, nil
}

func (r *channelRepo) List(ctx context.Context) ([]*models.Channel, error) {
	rows, err := r.db.Query(ctx, listChannelsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		channel := &models.Channel{}
		if err := rows.Scan(&channel.ID, &channel.Name); err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

func (r *channelRepo) Remove(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, deleteChannelQuery, id)
	return err
}
