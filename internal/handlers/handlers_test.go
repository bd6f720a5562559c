package handlers

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/gorilla/mux"

	"podpurifier/internal/broadcast"
	"podpurifier/internal/dispatch"
	"podpurifier/internal/test"
)

const testBaseURL = "http://manager.example.com"

type testApp struct {
	handlers *Handlers
	enqueuer *test.MockTaskEnqueuer
	hub      *broadcast.Hub
	storage  string
	router   *mux.Router
}

func newTestApp(t *testing.T) *testApp {
	enqueuer := &test.MockTaskEnqueuer{}
	hub := broadcast.NewHub()
	storage := t.TempDir()
	h := New(dispatch.New(enqueuer, testBaseURL), hub, storage, testBaseURL)

	router := mux.NewRouter()
	router.HandleFunc("/api/feeds", h.CreateFeed).Methods(http.MethodPost)
	router.HandleFunc("/api/feeds", h.ListFeeds).Methods(http.MethodGet)
	router.HandleFunc("/api/feeds/{id}/auto-process", h.UpdateFeedAutoProcess).Methods(http.MethodPatch)
	router.HandleFunc("/api/feeds/{id}", h.DeleteFeed).Methods(http.MethodDelete)
	router.HandleFunc("/api/feeds/{id}/ingest", h.TriggerIngest).Methods(http.MethodPost)
	router.HandleFunc("/api/episodes", h.ListEpisodes).Methods(http.MethodGet)
	router.HandleFunc("/api/episodes/queue", h.QueueEpisodes).Methods(http.MethodPost)
	router.HandleFunc("/api/episodes/ignore", h.IgnoreEpisodes).Methods(http.MethodPost)
	router.HandleFunc("/api/episodes/unignore", h.UnignoreEpisodes).Methods(http.MethodPost)
	router.HandleFunc("/api/episodes/{id}/fail", h.FailEpisode).Methods(http.MethodPost)
	router.HandleFunc("/api/progress/{id}", h.PostProgress).Methods(http.MethodPost)
	router.HandleFunc("/api/upload/{id}", h.UploadCleanedAudio).Methods(http.MethodPost)
	router.HandleFunc("/ws/progress", h.WSProgress)
	router.HandleFunc("/feed/{id}", h.GetRSSFeed).Methods(http.MethodGet)

	return &testApp{handlers: h, enqueuer: enqueuer, hub: hub, storage: storage, router: router}
}

// recordingObserver collects published progress events.
type recordingObserver struct {
	events []broadcast.Event
}

func (o *recordingObserver) Send(event broadcast.Event) error {
	o.events = append(o.events, event)
	return nil
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write multipart data: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}
