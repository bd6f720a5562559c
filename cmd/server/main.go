package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"podpurifier/internal/broadcast"
	"podpurifier/internal/db"
	"podpurifier/internal/dispatch"
	"podpurifier/internal/handlers"
	"podpurifier/internal/maintenance"
	"podpurifier/internal/middleware"
	"podpurifier/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	db.InitDB()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}

	audioStoragePath := os.Getenv("AUDIO_STORAGE_PATH")
	if audioStoragePath == "" {
		audioStoragePath = "audio"
	}
	if err := os.MkdirAll(audioStoragePath, 0o755); err != nil {
		log.Fatalf("Failed to create audio storage directory: %v", err)
	}

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", port)
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer client.Close()

	hub := broadcast.NewHub()
	dispatcher := dispatch.New(client, baseURL)
	h := handlers.New(dispatcher, hub, audioStoragePath, baseURL)

	// Maintenance consumer for scheduled feed refreshes. Runs inside the
	// coordinator so the remote workers never need database access.
	maintSrv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 1,
			Queues:      map[string]int{tasks.QueueMaintenance: 1},
		},
	)
	maintMux := asynq.NewServeMux()
	maintMux.HandleFunc(tasks.TypeRefreshAllFeeds, maintenance.HandleRefreshAllFeedsTask)
	go func() {
		if err := maintSrv.Run(maintMux); err != nil {
			log.Fatalf("could not run maintenance consumer: %v", err)
		}
	}()

	limiter := middleware.NewRateLimiterMiddleware(rate.Limit(20), 50)

	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.Use(limiter.Middleware)
	api.HandleFunc("/feeds", h.CreateFeed).Methods(http.MethodPost)
	api.HandleFunc("/feeds", h.ListFeeds).Methods(http.MethodGet)
	api.HandleFunc("/feeds/{id:[0-9]+}/auto-process", h.UpdateFeedAutoProcess).Methods(http.MethodPatch)
	api.HandleFunc("/feeds/{id:[0-9]+}", h.DeleteFeed).Methods(http.MethodDelete)
	api.HandleFunc("/feeds/{id:[0-9]+}/ingest", h.TriggerIngest).Methods(http.MethodPost)
	api.HandleFunc("/episodes", h.ListEpisodes).Methods(http.MethodGet)
	api.HandleFunc("/episodes/queue", h.QueueEpisodes).Methods(http.MethodPost)
	api.HandleFunc("/episodes/ignore", h.IgnoreEpisodes).Methods(http.MethodPost)
	api.HandleFunc("/episodes/unignore", h.UnignoreEpisodes).Methods(http.MethodPost)
	api.HandleFunc("/episodes/{id:[0-9]+}/fail", h.FailEpisode).Methods(http.MethodPost)
	api.HandleFunc("/progress/{id:[0-9]+}", h.PostProgress).Methods(http.MethodPost)
	api.HandleFunc("/upload/{id:[0-9]+}", h.UploadCleanedAudio).Methods(http.MethodPost)

	router.HandleFunc("/ws/progress", h.WSProgress)
	router.HandleFunc("/feed/{id:[0-9]+}", h.GetRSSFeed).Methods(http.MethodGet)
	router.HandleFunc("/files/{feed:[0-9]+}/{filename}", h.ServeAudioFile).Methods(http.MethodGet)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	log.Printf("Starting server on :%s (commit: %s)", port, CommitSHA)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal(err)
	}
}
