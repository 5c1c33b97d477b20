package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nicolaor/chatflow"
	"github.com/nicolaor/chatflow/engine"
	"github.com/nicolaor/chatflow/example/assistant"
	"github.com/nicolaor/chatflow/schedule"
	"github.com/nicolaor/chatflow/store"
)

var wfEngine *engine.Engine

// MessageRequest is an inbound chat message
type MessageRequest struct {
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

func initializeApp() *schedule.Scheduler {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	catalog, err := assistant.NewCatalog()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build workflow catalog")
	}
	triggers := assistant.NewTriggers()

	wfEngine = engine.New(
		catalog,
		triggers,
		assistant.NewRegistry(),
		store.NewMemoryStore(),
		engine.WithLogger(log.Logger),
		engine.WithConfig(engine.Config{
			RetryBaseDelay:     500 * time.Millisecond,
			DefaultStepTimeout: 30 * time.Second,
		}),
	)

	scheduler := schedule.New(wfEngine, catalog, triggers,
		schedule.WithLogger(log.Logger))
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	log.Info().Msg("Workflow engine initialized successfully")
	return scheduler
}

func registerRoutes(app *fiber.App) {
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "chatflow-assistant",
			"version": "1.0.0",
		})
	})

	app.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service":     "Chatflow Assistant Server",
			"version":     "1.0.0",
			"description": "Conversational workflow demo",
			"endpoints": fiber.Map{
				"health":          "GET /health",
				"handleMessage":   "POST /api/v1/messages",
				"listWorkflows":   "GET /api/v1/workflows",
				"getExecution":    "GET /api/v1/executions/:executionId",
				"cancelExecution": "POST /api/v1/executions/:executionId/cancel",
			},
		})
	})

	v1 := app.Group("/api/v1")
	v1.Post("/messages", handleMessage)
	v1.Get("/workflows", handleListWorkflows)

	executions := v1.Group("/executions")
	executions.Get("/:executionId", handleGetExecution)
	executions.Post("/:executionId/cancel", handleCancelExecution)
}

// handleMessage runs the workflow matching an inbound message, if any
func handleMessage(c fiber.Ctx) error {
	var req MessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	exec, matched, err := wfEngine.HandleMessage(c.Context(), req.Message, req.Context)
	if err != nil {
		log.Error().Err(err).Msg("Failed to run workflow")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to run workflow",
		})
	}
	if !matched {
		return c.JSON(fiber.Map{
			"matched": false,
			"message": "No workflow triggered",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"matched":     true,
		"executionId": exec.ID,
		"workflowId":  exec.WorkflowID,
		"status":      exec.Status,
	})
}

func handleListWorkflows(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"workflows": wfEngine.AvailableWorkflows(),
	})
}

func handleGetExecution(c fiber.Ctx) error {
	executionID := c.Params("executionId")

	exec, err := wfEngine.GetExecution(c.Context(), executionID)
	if err != nil {
		log.Error().Err(err).Str("executionId", executionID).Msg("Failed to get execution")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Execution not found",
		})
	}
	return c.JSON(exec)
}

func handleCancelExecution(c fiber.Ctx) error {
	executionID := c.Params("executionId")

	ok, err := wfEngine.Cancel(c.Context(), executionID)
	if err != nil {
		log.Error().Err(err).Str("executionId", executionID).Msg("Failed to cancel execution")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to cancel execution",
		})
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Execution not found",
		})
	}

	return c.JSON(fiber.Map{
		"executionId": executionID,
		"status":      chatflow.ExecutionStatusCancelled,
		"message":     "Execution cancelled",
	})
}

func main() {
	scheduler := initializeApp()
	defer scheduler.Stop()

	app := fiber.New()
	registerRoutes(app)

	go func() {
		addr := ":3000"
		log.Info().Str("address", addr).Msg("Starting HTTP server")
		if err := app.Listen(addr); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
