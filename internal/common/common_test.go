package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestRunID(t *testing.T) {
	_, ok := GetRunIDFromContext(context.Background())
	assert.False(t, ok)

	ctx, id := WithRunID(context.Background())
	got, ok := GetRunIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, id, got)
	assert.NotEqual(t, uuid.Nil, got)
}

func TestChannelID(t *testing.T) {
	_, ok := GetChannelIDFromContext(WithChannelID(context.Background(), ""))
	assert.False(t, ok)

	got, ok := GetChannelIDFromContext(WithChannelID(context.Background(), "c1"))
	assert.True(t, ok)
	assert.Equal(t, "c1", got)
}

func TestPostgresErrorCodes(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	fk := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"})

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(errors.New("plain")))
}
