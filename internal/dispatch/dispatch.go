// Package dispatch turns a queue transition into a work message on the
// audio processing queue.
package dispatch

import (
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"podpurifier/internal/lifecycle"
	"podpurifier/internal/models"
	"podpurifier/pkg/tasks"
)

// MaxRetries is the number of retries after the first delivery, so a task
// gets three attempts in total before the worker gives up.
const MaxRetries = 2

type Dispatcher struct {
	client  tasks.TaskEnqueuer
	baseURL string
}

// New returns a Dispatcher that addresses callbacks relative to baseURL.
func New(client tasks.TaskEnqueuer, baseURL string) *Dispatcher {
	return &Dispatcher{client: client, baseURL: baseURL}
}

// Dispatch transitions the episode to QUEUED and places a self-contained
// work message for it on the audio processing queue, returning the task id.
// If the message cannot be enqueued the episode is reverted to FAILED so it
// is never stranded queued-but-undelivered.
func (d *Dispatcher) Dispatch(episodeID int, audioURL string) (string, error) {
	if _, err := lifecycle.Transition(episodeID, models.StatusQueued); err != nil {
		return "", err
	}

	callbackURL := fmt.Sprintf("%s/api/upload/%d", d.baseURL, episodeID)
	task, err := tasks.NewProcessEpisodeTask(episodeID, audioURL, callbackURL)
	if err != nil {
		d.revert(episodeID)
		return "", fmt.Errorf("failed to create process episode task: %w", err)
	}

	info, err := d.client.Enqueue(task,
		asynq.Queue(tasks.QueueAudioProcessing),
		asynq.MaxRetry(MaxRetries),
	)
	if err != nil {
		log.Printf("Failed to dispatch episode %d: %v", episodeID, err)
		d.revert(episodeID)
		return "", fmt.Errorf("failed to enqueue process episode task: %w", err)
	}

	log.Printf("Dispatched episode %d for processing, task_id=%s", episodeID, info.ID)
	return info.ID, nil
}

func (d *Dispatcher) revert(episodeID int) {
	if _, err := lifecycle.Transition(episodeID, models.StatusFailed); err != nil {
		log.Printf("Failed to revert episode %d after dispatch error: %v", episodeID, err)
	}
}
