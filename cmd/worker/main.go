package main

import (
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"podpurifier/internal/worker"
	"podpurifier/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}

	coordinatorURL := os.Getenv("COORDINATOR_URL")
	if coordinatorURL == "" {
		coordinatorURL = "http://localhost:8080"
	}

	tempDir := os.Getenv("TEMP_DIR")
	if tempDir == "" {
		tempDir = "/tmp/podpurifier"
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}

	// Stub for the real ad-removal step.
	processingDelay := 5 * time.Second
	if v := os.Getenv("PROCESSING_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("Invalid PROCESSING_DELAY: %v", err)
		}
		processingDelay = d
	}

	policy := worker.DefaultRetryPolicy

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			// One task at a time; audio processing is resource-heavy and
			// horizontal scale comes from running more worker processes.
			Concurrency: 1,
			Queues: map[string]int{
				tasks.QueueAudioProcessing: 1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				log.Printf("Task %s failed %d times, retrying in %v", task.Type(), n+1, policy.Backoff)
				return policy.Backoff
			},
		},
	)

	mux := asynq.NewServeMux()
	taskHandler := worker.NewTaskHandler(coordinatorURL, tempDir, processingDelay)
	mux.HandleFunc(tasks.TypeProcessEpisode, taskHandler.HandleProcessEpisodeTask)

	log.Printf("Worker starting (commit: %s, max attempts: %d, backoff: %v)", CommitSHA, policy.MaxAttempts, policy.Backoff)
	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}
