package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/atiohaidar/test-case-management/internal/aiclient"
	"github.com/atiohaidar/test-case-management/internal/config"
	"github.com/atiohaidar/test-case-management/internal/models"
	"github.com/atiohaidar/test-case-management/internal/repository"
	"github.com/atiohaidar/test-case-management/internal/service"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to config file")
	dataPath := flag.String("data", "examples/sample-testcases.json", "Path to test case JSON file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.TestCase{},
		&models.TestCaseReference{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Read test case data
	data, err := os.ReadFile(*dataPath)
	if err != nil {
		log.Fatalf("Failed to read data file: %v", err)
	}

	var importData struct {
		TestCases []service.CreateTestCaseRequest `json:"testCases"`
	}
	if err := json.Unmarshal(data, &importData); err != nil {
		log.Fatalf("Failed to parse JSON: %v", err)
	}
	if len(importData.TestCases) == 0 {
		log.Fatalf("No test cases found in %s", *dataPath)
	}

	// Wire the same bulk create path the REST endpoint uses. Embeddings
	// degrade to empty vectors when the AI service is unreachable.
	caseRepo := repository.NewTestCaseRepository(db)
	refRepo := repository.NewReferenceRepository(db)
	client := aiclient.NewClient(cfg.AI)
	embeddingService := service.NewEmbeddingService(client)
	refService := service.NewReferenceService(caseRepo, refRepo)
	testCaseService := service.NewTestCaseService(caseRepo, refService, embeddingService, client, nil)

	fmt.Printf("Importing %d test cases from %s...\n", len(importData.TestCases), *dataPath)
	response, err := testCaseService.BulkCreate(importData.TestCases)
	if err != nil {
		log.Fatalf("Bulk create failed: %v", err)
	}

	for _, result := range response.Results {
		name := importData.TestCases[result.Index].Name
		if result.Success {
			fmt.Printf("  ✓ [%d] %s (%s)\n", result.Index, name, result.Data.ID)
		} else {
			fmt.Printf("  ✗ [%d] %s: %s\n", result.Index, name, result.Error)
		}
	}
	fmt.Printf("Done: %d succeeded, %d failed\n", response.SuccessCount, response.FailureCount)
}

func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.Database.Type {
	case "sqlite":
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
