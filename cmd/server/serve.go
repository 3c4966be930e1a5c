package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/stacks-agent-crew/backend/api/handlers"
	"github.com/stacks-agent-crew/backend/internal/bridge"
	"github.com/stacks-agent-crew/backend/internal/config"
	"github.com/stacks-agent-crew/backend/internal/db"
	"github.com/stacks-agent-crew/backend/internal/metrics"
	"github.com/stacks-agent-crew/backend/internal/model"
	"github.com/stacks-agent-crew/backend/internal/pipeline"
	"github.com/stacks-agent-crew/backend/internal/repository"
	"github.com/stacks-agent-crew/backend/internal/schedule"
	"github.com/stacks-agent-crew/backend/internal/telegram"
	"github.com/stacks-agent-crew/backend/internal/ws"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestration server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.DBDriver == db.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DBDSN), 0755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	if cfg.TranscriptDir != "" {
		if err := os.MkdirAll(cfg.TranscriptDir, 0755); err != nil {
			return fmt.Errorf("create transcript directory: %w", err)
		}
	}

	database, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	jobs := repository.NewJobRepository(database)
	steps := repository.NewStepRepository(database)
	threads := repository.NewThreadRepository(database)
	agents := repository.NewAgentRepository(database)
	profiles := repository.NewProfileRepository(database)
	crews := repository.NewCrewRepository(database)
	tasks := repository.NewTaskRepository(database)
	telegramUsers := repository.NewTelegramUserRepository(database)

	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := ws.NewManager(m)
	defer manager.Close()
	go manager.Run(ctx, cfg.SweepInterval, cfg.ConnTTL)

	var pipe pipeline.Pipeline
	if cfg.OpenAIEndpoint != "" {
		pipe = pipeline.NewOpenAIPipeline(cfg.OpenAIEndpoint, cfg.OpenAIAPIKey, cfg.OpenAIModel)
		log.Printf("Pipeline provider: %s (model %s)", cfg.OpenAIEndpoint, cfg.OpenAIModel)
	} else {
		pipe = devPipeline()
		log.Println("No provider endpoint configured, using the scripted dev pipeline")
	}

	b := bridge.New(jobs, steps, threads, agents, pipe, manager.Jobs, m, bridge.Config{
		MaxConcurrent: cfg.MaxConcurrentJobs,
		RingSize:      cfg.EventRingSize,
		TranscriptDir: cfg.TranscriptDir,
	})

	if cfg.TelegramToken != "" {
		relay, err := telegram.New(cfg.TelegramToken, telegramUsers)
		if err != nil {
			return fmt.Errorf("start telegram relay: %w", err)
		}
		go relay.Start(ctx)
		b.OnComplete(func(job *model.Job) {
			go relay.NotifyJobComplete(ctx, job)
		})
		log.Println("Telegram relay enabled")
	}

	scheduler := schedule.New(tasks, func(ctx context.Context, task *model.Task) {
		job, err := b.StartJob(ctx, bridge.StartRequest{
			ThreadID:  task.ThreadID,
			ProfileID: task.ProfileID,
			AgentID:   task.AgentID,
			Input:     task.Prompt,
		})
		if err != nil {
			log.Printf("Failed to start scheduled job for task %q: %v", task.Name, err)
			return
		}
		if err := b.Stream(ctx, job.ID); err != nil {
			log.Printf("Scheduled job %s failed: %v", job.ID, err)
		}
	})
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	router := gin.Default()
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		handlers.NewChatHandler(b, manager, threads, crews, jobs, m).RegisterRoutes(api)
		handlers.NewThreadHandler(threads).RegisterRoutes(api)
		handlers.NewJobHandler(jobs, steps).RegisterRoutes(api)
		handlers.NewCrewHandler(crews, threads, jobs, b).RegisterRoutes(api)
		handlers.NewProfileHandler(profiles, agents).RegisterRoutes(api)
		handlers.NewTaskHandler(tasks, scheduler).RegisterRoutes(api)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Starting server on port %s", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// devPipeline replays a canned exchange so the full stack can be exercised
// without a provider.
func devPipeline() pipeline.Pipeline {
	return pipeline.NewScriptedPipeline(
		pipeline.Event{Type: pipeline.EventTypeToken, Role: "assistant", Content: "This is the scripted dev pipeline. "},
		pipeline.Event{Type: pipeline.EventTypeToken, Role: "assistant", Content: "Configure OPENAI_ENDPOINT to talk to a real provider."},
		pipeline.Event{Type: pipeline.EventTypeResult, Role: "assistant", Content: "This is the scripted dev pipeline. Configure OPENAI_ENDPOINT to talk to a real provider."},
		pipeline.Event{Type: pipeline.EventTypeEnd, Status: "end"},
	)
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
