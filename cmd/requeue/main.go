// cmd/requeue/main.go
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// requeue prints the distinct object keys that failed in a run, one per
// line, so they can be fed into another tool or inspected by hand. The
// actual re-ingestion lives in `ingest requeue`.
func main() {
	// Parse command line flags
	dbURL := flag.String("db-url", "", "Database connection string")
	runID := flag.Int64("run-id", 0, "Run whose failed keys to print")
	flag.Parse()

	if *dbURL == "" {
		log.Fatal("Database URL is required (use -db-url flag)")
	}
	if *runID <= 0 {
		log.Fatal("Run ID is required (use -run-id flag)")
	}

	// Initialize database connection
	db, err := sql.Open("pgx", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT object_key FROM ingest_objects WHERE run_id = $1 AND status = 'failed' ORDER BY object_key`,
		*runID)
	if err != nil {
		log.Fatalf("Failed to query failed keys: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			log.Fatalf("Failed to scan row: %v", err)
		}
		fmt.Println(key)
		count++
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Failed to read failed keys: %v", err)
	}

	log.Printf("run %d has %d failed keys", *runID, count)
}
