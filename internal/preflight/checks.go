package preflight

import (
	"context"
	"fmt"
	"log"
	"time"
)

const checkTimeout = 5 * time.Second

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// RelationalStore is the relational database as seen by the checks
type RelationalStore interface {
	PingContext(ctx context.Context) error
	TableExists(tableName string) (bool, error)
}

// DocumentStore is the document database as seen by the checks
type DocumentStore interface {
	Ping(ctx context.Context) error
}

// Checker performs pre-flight checks before server starts
type Checker struct {
	db             RelationalStore
	requiredTables []string
	mongo          DocumentStore
	geminiAPIKey   string
}

// NewChecker creates a new preflight checker
func NewChecker(db RelationalStore, requiredTables []string, mongo DocumentStore, geminiAPIKey string) *Checker {
	return &Checker{
		db:             db,
		requiredTables: requiredTables,
		mongo:          mongo,
		geminiAPIKey:   geminiAPIKey,
	}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkDatabaseConnection(),
		c.checkDatabaseSchema(),
		c.checkDocumentStore(),
		c.checkLanguageModel(),
	}

	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

func (c *Checker) checkDatabaseConnection() CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return CheckResult{
			Name:    "Database Connection",
			Status:  "fail",
			Message: "Cannot connect to database",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "Database Connection",
		Status:  "pass",
		Message: "Database connection successful",
	}
}

// checkDatabaseSchema verifies the gamification and profile tables exist
func (c *Checker) checkDatabaseSchema() CheckResult {
	for _, table := range c.requiredTables {
		exists, err := c.db.TableExists(table)
		if err != nil || !exists {
			return CheckResult{
				Name:    "Database Schema",
				Status:  "fail",
				Message: fmt.Sprintf("Required table '%s' not found", table),
				Error:   err,
			}
		}
	}

	return CheckResult{
		Name:    "Database Schema",
		Status:  "pass",
		Message: fmt.Sprintf("All %d required tables exist", len(c.requiredTables)),
	}
}

// checkDocumentStore pings MongoDB, which holds project data and conversations
func (c *Checker) checkDocumentStore() CheckResult {
	if c.mongo == nil {
		return CheckResult{
			Name:    "Document Store",
			Status:  "fail",
			Message: "MongoDB is not configured",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	if err := c.mongo.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "Document Store",
			Status:  "fail",
			Message: "Cannot reach MongoDB",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "Document Store",
		Status:  "pass",
		Message: "MongoDB reachable",
	}
}

// checkLanguageModel only warns: without a key every answer is a fallback reply
func (c *Checker) checkLanguageModel() CheckResult {
	if c.geminiAPIKey == "" {
		return CheckResult{
			Name:    "Language Model",
			Status:  "warning",
			Message: "GEMINI_API_KEY not set: assistant will answer with fallback replies",
		}
	}

	return CheckResult{
		Name:    "Language Model",
		Status:  "pass",
		Message: "Gemini API key configured",
	}
}
