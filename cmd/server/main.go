package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/atiohaidar/test-case-management/internal/aiclient"
	"github.com/atiohaidar/test-case-management/internal/config"
	"github.com/atiohaidar/test-case-management/internal/handler"
	"github.com/atiohaidar/test-case-management/internal/models"
	"github.com/atiohaidar/test-case-management/internal/repository"
	"github.com/atiohaidar/test-case-management/internal/service"
	"github.com/atiohaidar/test-case-management/internal/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.toml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Auto migrate models
	if err := db.AutoMigrate(
		&models.TestCase{},
		&models.TestCaseReference{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize repositories
	caseRepo := repository.NewTestCaseRepository(db)
	refRepo := repository.NewReferenceRepository(db)

	// Initialize AI client and WebSocket hub
	client := aiclient.NewClient(cfg.AI)
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize services
	embeddingService := service.NewEmbeddingService(client)
	refService := service.NewReferenceService(caseRepo, refRepo)
	testCaseService := service.NewTestCaseService(caseRepo, refService, embeddingService, client, hub)
	aiService := service.NewAIService(client, testCaseService, refService, cfg.AI)

	// Initialize handlers
	testCaseHandler := handler.NewTestCaseHandler(testCaseService, refService, aiService)
	wsHandler := handler.NewWebSocketHandler(hub)

	// Setup Gin router
	r := gin.Default()

	// Enable CORS
	r.Use(corsMiddleware())

	// Register routes
	testCaseHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "test-case-management",
		})
	})

	// Start server
	addr := cfg.Server.GetAddr()
	log.Printf("Starting test case management service on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.Database.Type {
	case "sqlite":
		// Ensure data directory exists
		dbPath := cfg.Database.DSN
		dbDir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
