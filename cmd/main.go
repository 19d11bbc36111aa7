package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"StoryLoom/server/internal/config"
	"StoryLoom/server/internal/engine"
	"StoryLoom/server/internal/game"
	"StoryLoom/server/internal/generators"
	"StoryLoom/server/internal/prompts"
	"StoryLoom/server/internal/rag"
	"StoryLoom/server/internal/storage"
	"StoryLoom/server/internal/tasks"
	"StoryLoom/server/internal/web"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.AI.OpenAI.APIKey == "" {
		log.Println("Warning: No OpenAI API key provided. Narration falls back to built-in text.")
	}

	// Session store. Redis is primary; without it sessions live in
	// process memory and do not survive restarts.
	var store storage.SessionStore
	redisStore, err := storage.NewRedisStore(cfg.Database.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis, using in-memory sessions: %v", err)
		store = storage.NewMemoryStore()
	} else {
		defer redisStore.Close()
		log.Println("Redis connected successfully")
		store = redisStore
	}

	// Archive store is optional.
	mysqlStore, err := storage.NewMySQLStore(cfg.Database.MySQL)
	if err != nil {
		log.Printf("Warning: Failed to connect to MySQL, archives disabled: %v", err)
		mysqlStore = nil
	} else {
		defer mysqlStore.Close()
		log.Println("MySQL connected successfully")
	}

	// Game master stack.
	promptEngine := prompts.NewEngine()
	gmClient := engine.NewGMClient(cfg.AI.OpenAI)
	narrator := engine.NewNarrator(gmClient, promptEngine)
	scenarios := engine.NewScenarioGenerator(gmClient, promptEngine)

	// Background task queue for round resolution, media and epilogues.
	queue := tasks.NewQueue(cfg.Queue.MaxWorkers, cfg.Queue.MaxQueueSize)

	svc := game.NewService(store, narrator, scenarios, queue, game.Options{
		RoomSize:   cfg.Game.RoomSize,
		LogTail:    cfg.Game.LogTail,
		MemoryHits: cfg.Game.MemoryHits,
	})

	if cfg.AI.OpenAI.APIKey != "" {
		svc.SetImageGenerator(generators.NewImageClient(cfg.AI.OpenAI))

		// Narrative memory needs both embeddings and Qdrant.
		embeddings := rag.NewEmbeddingService(cfg.AI.OpenAI)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		memoryStore, err := rag.NewMemoryStore(ctx, cfg.Database.Qdrant, embeddings)
		cancel()
		if err != nil {
			log.Printf("Warning: Failed to connect to Qdrant, narrative memory disabled: %v", err)
		} else {
			defer memoryStore.Close()
			log.Println("Qdrant connected successfully")
			svc.SetMemoryStore(memoryStore)
		}
	}

	if cfg.AI.Video.BaseURL != "" {
		svc.SetVideoGenerator(generators.NewVideoClient(cfg.AI.Video))
	}
	if mysqlStore != nil {
		svc.SetArchiver(mysqlStore)
	}

	hub := web.NewSessionHub()
	go hub.Run()
	svc.SetNotifier(hub)

	queueCtx, queueCancel := context.WithCancel(context.Background())
	defer queueCancel()
	queue.Start(queueCtx)

	auth := web.NewAuth(cfg.Auth)
	handlers := web.NewHandlers(svc, hub, auth, mysqlStore)
	router := web.NewRouter(handlers)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
