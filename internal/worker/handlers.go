// Package worker implements the executor side of the pipeline: it consumes
// process-episode tasks, runs the (stubbed) ad-removal step and resolves
// each task back through the coordinator's callback endpoints.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"podpurifier/pkg/tasks"
)

// RetryPolicy bounds how often a task is re-attempted after a
// network-class failure. Non-network failures are never retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy gives every task three attempts with a fixed minute
// between them.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 60 * time.Second}

type TaskHandler struct {
	coordinatorURL  string
	tempDir         string
	processingDelay time.Duration

	// Transfers get a generous timeout; progress reports a short one,
	// since progress is advisory and must never stall the task.
	transferClient *http.Client
	reportClient   *http.Client
}

func NewTaskHandler(coordinatorURL, tempDir string, processingDelay time.Duration) *TaskHandler {
	return &TaskHandler{
		coordinatorURL:  strings.TrimRight(coordinatorURL, "/"),
		tempDir:         tempDir,
		processingDelay: processingDelay,
		transferClient:  &http.Client{Timeout: 5 * time.Minute},
		reportClient:    &http.Client{Timeout: 5 * time.Second},
	}
}

// netError tags failures of network-bound steps; only these are retried.
type netError struct{ err error }

func (e *netError) Error() string { return e.err.Error() }
func (e *netError) Unwrap() error { return e.err }

func isNetworkError(err error) bool {
	var ne *netError
	return errors.As(err, &ne)
}

// HandleProcessEpisodeTask runs one episode through download, processing
// and upload. The scratch file is released on every exit path. On a
// network-class error the task is left to asynq's retry machinery; once
// the attempts are exhausted (or on any non-network error) the episode is
// resolved failed at the coordinator.
func (h *TaskHandler) HandleProcessEpisodeTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.ProcessEpisodeTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("Starting processing for episode %d (audio: %s)", p.EpisodeID, p.AudioURL)

	tempPath := filepath.Join(h.tempDir, fmt.Sprintf("episode_%d.mp3", p.EpisodeID))
	defer func() {
		if err := os.Remove(tempPath); err == nil {
			log.Printf("Cleaned up temp file: %s", tempPath)
		}
	}()

	err := h.process(ctx, p, tempPath)
	if err == nil {
		h.reportProgress(p.EpisodeID, 100, "completed")
		log.Printf("Finished processing episode %d", p.EpisodeID)
		return nil
	}

	h.reportProgress(p.EpisodeID, 0, "failed")

	if !isNetworkError(err) {
		log.Printf("Error processing episode %d: %v", p.EpisodeID, err)
		h.resolveFailed(p.EpisodeID)
		return fmt.Errorf("processing episode %d: %v: %w", p.EpisodeID, err, asynq.SkipRetry)
	}

	log.Printf("Network error processing episode %d: %v", p.EpisodeID, err)
	if lastAttempt(ctx) {
		h.resolveFailed(p.EpisodeID)
	}
	return fmt.Errorf("processing episode %d: %w", p.EpisodeID, err)
}

func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	max, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= max
}

func (h *TaskHandler) process(ctx context.Context, p tasks.ProcessEpisodeTaskPayload, tempPath string) error {
	h.reportProgress(p.EpisodeID, 10, "downloading")
	if err := h.download(ctx, p.AudioURL, tempPath); err != nil {
		return err
	}
	h.reportProgress(p.EpisodeID, 30, "downloaded")

	// Placeholder for the ML ad-removal pipeline.
	h.reportProgress(p.EpisodeID, 50, "processing")
	select {
	case <-time.After(h.processingDelay):
	case <-ctx.Done():
		return &netError{err: ctx.Err()}
	}
	h.reportProgress(p.EpisodeID, 80, "processing")

	h.reportProgress(p.EpisodeID, 90, "uploading")
	return h.upload(ctx, p, tempPath)
}

func (h *TaskHandler) download(ctx context.Context, audioURL, tempPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := h.transferClient.Do(req)
	if err != nil {
		return &netError{err: fmt.Errorf("failed to download audio: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &netError{err: fmt.Errorf("audio download returned status %d", resp.StatusCode)}
	}

	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		out.Close()
		return &netError{err: fmt.Errorf("failed to read audio body: %w", err)}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	log.Printf("Downloaded %d bytes to %s", written, tempPath)
	return nil
}

func (h *TaskHandler) upload(ctx context.Context, p tasks.ProcessEpisodeTaskPayload, tempPath string) error {
	f, err := os.Open(tempPath)
	if err != nil {
		return fmt.Errorf("failed to open processed file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="episode_%d_cleaned.mp3"`, p.EpisodeID))
	header.Set("Content-Type", "audio/mpeg")

	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create multipart body: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to copy audio into multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.CallbackURL, &body)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.transferClient.Do(req)
	if err != nil {
		return &netError{err: fmt.Errorf("failed to upload cleaned audio: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &netError{err: fmt.Errorf("upload returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		// The coordinator rejected the artifact; retrying the same bytes
		// cannot help.
		return fmt.Errorf("upload rejected with status %d", resp.StatusCode)
	}

	log.Printf("Upload complete for episode %d", p.EpisodeID)
	return nil
}

// reportProgress tells the coordinator how far along this task is.
// Progress is best-effort telemetry; failures are logged and swallowed.
func (h *TaskHandler) reportProgress(episodeID, progress int, stage string) {
	url := fmt.Sprintf("%s/api/progress/%d?progress=%d&stage=%s", h.coordinatorURL, episodeID, progress, stage)
	resp, err := h.reportClient.Post(url, "application/json", nil)
	if err != nil {
		log.Printf("Failed to report progress for episode %d: %v", episodeID, err)
		return
	}
	resp.Body.Close()
}

// resolveFailed reports terminal failure for the episode so it does not
// stay queued forever. Best effort: if the coordinator is unreachable the
// episode stays queued until an operator re-queues it (known gap).
func (h *TaskHandler) resolveFailed(episodeID int) {
	url := fmt.Sprintf("%s/api/episodes/%d/fail", h.coordinatorURL, episodeID)
	resp, err := h.reportClient.Post(url, "application/json", nil)
	if err != nil {
		log.Printf("Failed to resolve episode %d as failed: %v", episodeID, err)
		return
	}
	resp.Body.Close()
}
