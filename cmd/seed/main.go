// Command seed prepares a local development environment: it applies the
// database schema and writes a small supply-chain import data set.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"graphplan-mcp/internal/config"
	"graphplan-mcp/internal/graphdb"
	"graphplan-mcp/internal/logging"
	"graphplan-mcp/internal/repository"
)

var demoFiles = map[string]string{
	"parts.csv": `part_id,part_name,unit_cost
P-100,M4 bolt,0.12
P-101,M4 nut,0.08
P-102,Bearing 608,1.40
P-103,Aluminum plate,7.25
`,
	"assemblies.csv": `assembly_id,assembly_name,part_id,quantity
A-1,Spindle,P-102,2
A-1,Spindle,P-100,8
A-2,Frame,P-103,4
A-2,Frame,P-100,16
A-2,Frame,P-101,16
`,
}

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.NewLogger(cfg.IsDev())
	defer logger.Sync()

	// 1. Demo import files.
	if err := os.MkdirAll(cfg.Import.Root, 0o755); err != nil {
		log.Fatalf("Failed to create import root: %v", err)
	}
	for name, content := range demoFiles {
		path := filepath.Join(cfg.Import.Root, name)
		if _, err := os.Stat(path); err == nil {
			logger.Info("Import file exists, skipping", "file", name)
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			log.Fatalf("Failed to write %s: %v", name, err)
		}
		logger.Info("Wrote import file", "file", name)
	}

	// 2. Database schema, when a database is configured.
	if cfg.DB.Host == "" {
		logger.Warn("No database configured; skipping schema")
		return
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	for _, schema := range []string{repository.Schema, graphdb.Schema} {
		if _, err := pool.Exec(ctx, schema); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
	}
	logger.Info("Database schema applied")
}
