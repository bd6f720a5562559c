package lifecycle

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"podpurifier/internal/models"
	"podpurifier/internal/test"
)

var allStatuses = []models.EpisodeStatus{
	models.StatusDiscovered,
	models.StatusQueued,
	models.StatusProcessing,
	models.StatusCleaned,
	models.StatusFailed,
	models.StatusIgnored,
}

func TestCanTransitionTable(t *testing.T) {
	legal := map[[2]models.EpisodeStatus]bool{
		{models.StatusDiscovered, models.StatusQueued}:  true,
		{models.StatusFailed, models.StatusQueued}:      true,
		{models.StatusDiscovered, models.StatusIgnored}: true,
		{models.StatusFailed, models.StatusIgnored}:     true,
		{models.StatusIgnored, models.StatusDiscovered}: true,
		{models.StatusQueued, models.StatusProcessing}:  true,
		{models.StatusQueued, models.StatusCleaned}:     true,
		{models.StatusProcessing, models.StatusCleaned}: true,
		{models.StatusQueued, models.StatusFailed}:      true,
		{models.StatusProcessing, models.StatusFailed}:  true,
	}

	// Every (from, to) pair outside the table must be rejected.
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			assert.Equal(t, legal[[2]models.EpisodeStatus{from, to}], CanTransition(from, to),
				"transition %s -> %s", from, to)
		}
	}
}

func episodeRows(id int, status models.EpisodeStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "feed_id", "guid", "status", "title", "audio_url", "created_at", "updated_at"}).
		AddRow(id, 1, "guid-1", status, "Episode", "http://example.com/a.mp3", time.Now(), time.Now())
}

func TestTransitionLegal(t *testing.T) {
	_, mock := test.NewMockDB(t)

	mock.ExpectQuery(`SET status = \$1, updated_at = NOW\(\)`).
		WithArgs(models.StatusQueued, 1, sqlmock.AnyArg()).
		WillReturnRows(episodeRows(1, models.StatusQueued))

	episode, err := Transition(1, models.StatusQueued)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusQueued, episode.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionIllegalLeavesStatusUnchanged(t *testing.T) {
	_, mock := test.NewMockDB(t)

	// The guarded update matches nothing because the episode is cleaned.
	mock.ExpectQuery(`SET status = \$1, updated_at = NOW\(\)`).
		WithArgs(models.StatusQueued, 1, sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(episodeRows(1, models.StatusCleaned))

	episode, err := Transition(1, models.StatusQueued)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, models.StatusCleaned, episode.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionUnknownEpisode(t *testing.T) {
	_, mock := test.NewMockDB(t)

	mock.ExpectQuery(`SET status = \$1, updated_at = NOW\(\)`).
		WithArgs(models.StatusFailed, 42, sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs(42).
		WillReturnError(sql.ErrNoRows)

	_, err := Transition(42, models.StatusFailed)
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSetsArtifactWithCleanedStatus(t *testing.T) {
	_, mock := test.NewMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "feed_id", "guid", "status", "title", "audio_url", "local_path", "created_at", "updated_at"}).
		AddRow(1, 2, "guid-1", models.StatusCleaned, "Episode", "http://example.com/a.mp3", "2/1_cleaned.mp3", time.Now(), time.Now())

	mock.ExpectQuery(`SET status = \$1, local_path = \$2`).
		WithArgs(models.StatusCleaned, "2/1_cleaned.mp3", 1, sqlmock.AnyArg()).
		WillReturnRows(rows)

	episode, err := Complete(1, "2/1_cleaned.mp3")
	assert.NoError(t, err)
	assert.Equal(t, models.StatusCleaned, episode.Status)
	if assert.NotNil(t, episode.LocalPath) {
		assert.Equal(t, "2/1_cleaned.mp3", *episode.LocalPath)
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRejectedForDiscoveredEpisode(t *testing.T) {
	_, mock := test.NewMockDB(t)

	mock.ExpectQuery(`SET status = \$1, local_path = \$2`).
		WithArgs(models.StatusCleaned, "1/1_a.mp3", 1, sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(episodeRows(1, models.StatusDiscovered))

	_, err := Complete(1, "1/1_a.mp3")
	assert.ErrorIs(t, err, ErrIllegalTransition)

	assert.NoError(t, mock.ExpectationsWereMet())
}
