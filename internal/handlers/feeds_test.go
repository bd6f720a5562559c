package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"podpurifier/internal/models"
	"podpurifier/internal/test"
)

func feedRows(id int, rssURL string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "rss_url", "auto_process", "created_at", "updated_at"}).
		AddRow(id, "Tech Talk (Purified)", rssURL, false, time.Now(), time.Now())
}

func TestCreateFeedRejectsDuplicateURL(t *testing.T) {
	app := newTestApp(t)
	_, mock := test.NewMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM feeds WHERE rss_url = \$1`).
		WithArgs("http://example.com/rss").
		WillReturnRows(feedRows(1, "http://example.com/rss"))

	req := httptest.NewRequest(http.MethodPost, "/api/feeds?rss_url=http%3A%2F%2Fexample.com%2Frss", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFeedDoesNotCreateRowWhenUnparsable(t *testing.T) {
	app := newTestApp(t)
	_, mock := test.NewMockDB(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "definitely not RSS")
	}))
	t.Cleanup(srv.Close)

	mock.ExpectQuery(`SELECT \* FROM feeds WHERE rss_url = \$1`).
		WithArgs(srv.URL).
		WillReturnError(sql.ErrNoRows)
	// No INSERT is expected: metadata extraction failed.

	req := httptest.NewRequest(http.MethodPost, "/api/feeds?rss_url="+srv.URL, nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFeedExtractsMetadataAndIngests(t *testing.T) {
	app := newTestApp(t)
	_, mock := test.NewMockDB(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?>
			<rss version="2.0"><channel>
			<title>Tech Talk</title>
			<description>A show about tech</description>
			</channel></rss>`)
	}))
	t.Cleanup(srv.Close)

	mock.ExpectQuery(`SELECT \* FROM feeds WHERE rss_url = \$1`).
		WithArgs(srv.URL).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO feeds`).
		WithArgs("Tech Talk (Purified)", srv.URL, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(feedRows(1, srv.URL))
	// Auto-ingest pass over an empty item list.
	mock.ExpectQuery(`SELECT \* FROM feeds WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(feedRows(1, srv.URL))

	req := httptest.NewRequest(http.MethodPost, "/api/feeds?rss_url="+srv.URL, nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var created models.Feed
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Tech Talk (Purified)", created.Title)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFeedCascades(t *testing.T) {
	app := newTestApp(t)
	_, mock := test.NewMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM feeds WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(feedRows(1, "http://example.com/rss"))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM episodes WHERE feed_id = \$1`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM feeds WHERE id = \$1`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodDelete, "/api/feeds/1", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted_episodes":3`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFeedRollsBackOnEpisodeDeleteFailure(t *testing.T) {
	app := newTestApp(t)
	_, mock := test.NewMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM feeds WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(feedRows(1, "http://example.com/rss"))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM episodes WHERE feed_id = \$1`).
		WithArgs(1).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	req := httptest.NewRequest(http.MethodDelete, "/api/feeds/1", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFeedNotFound(t *testing.T) {
	app := newTestApp(t)
	_, mock := test.NewMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM feeds WHERE id = \$1`).
		WithArgs(9).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodDelete, "/api/feeds/9", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFeedAutoProcess(t *testing.T) {
	app := newTestApp(t)
	_, mock := test.NewMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "title", "rss_url", "auto_process", "created_at", "updated_at"}).
		AddRow(1, "Tech Talk (Purified)", "http://example.com/rss", true, time.Now(), time.Now())
	mock.ExpectQuery(`SET auto_process = \$1, updated_at = NOW\(\)`).
		WithArgs(true, 1).
		WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodPatch, "/api/feeds/1/auto-process?auto_process=true", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var updated models.Feed
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.True(t, updated.AutoProcess)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRSSFeedContainsOnlyCleanedEpisodesWithArtifacts(t *testing.T) {
	app := newTestApp(t)
	_, mock := test.NewMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM feeds WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(feedRows(1, "http://example.com/rss"))

	episodeRows := sqlmock.NewRows([]string{"id", "feed_id", "guid", "status", "title", "audio_url", "local_path", "created_at", "updated_at"}).
		AddRow(5, 1, "a", models.StatusCleaned, "Alpha", "http://cdn.example.com/a.mp3", "1/5_cleaned.mp3", time.Now(), time.Now()).
		AddRow(6, 1, "b", models.StatusCleaned, "Beta", "http://cdn.example.com/b.mp3", nil, time.Now(), time.Now())
	mock.ExpectQuery(`WHERE feed_id = \$1 AND status = \$2`).
		WithArgs(1, models.StatusCleaned).
		WillReturnRows(episodeRows)

	req := httptest.NewRequest(http.MethodGet, "/feed/1", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/rss+xml", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "Alpha")
	assert.Contains(t, body, testBaseURL+"/files/1/5_cleaned.mp3")
	// The cleaned episode with no stored artifact is excluded defensively.
	assert.NotContains(t, body, "Beta")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRSSFeedNotFound(t *testing.T) {
	app := newTestApp(t)
	_, mock := test.NewMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM feeds WHERE id = \$1`).
		WithArgs(7).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/feed/7", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
