package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TypeProcessEpisode  = "episode:process"
	TypeRefreshAllFeeds = "feeds:refresh"
)

// Queue names. Audio processing is consumed by the remote worker pool;
// maintenance tasks stay on the coordinator side.
const (
	QueueAudioProcessing = "audio_processing"
	QueueMaintenance     = "maintenance"
)

// ProcessEpisodeTaskPayload is self-contained: the worker operates from it
// alone and never queries the coordinator's database.
type ProcessEpisodeTaskPayload struct {
	EpisodeID   int    `json:"episode_id"`
	AudioURL    string `json:"audio_url"`
	CallbackURL string `json:"callback_url"`
}

func NewProcessEpisodeTask(episodeID int, audioURL, callbackURL string) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessEpisodeTaskPayload{
		EpisodeID:   episodeID,
		AudioURL:    audioURL,
		CallbackURL: callbackURL,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProcessEpisode, payload), nil
}

func NewRefreshAllFeedsTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeRefreshAllFeeds, nil, asynq.Queue(QueueMaintenance)), nil
}
