package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"quilt.news/quilt/internal/cli"
	"quilt.news/quilt/internal/config"
	"quilt.news/quilt/internal/db"
	"quilt.news/quilt/internal/dedup"
	"quilt.news/quilt/internal/ingest"
	"quilt.news/quilt/internal/logging"
	payloadschema "quilt.news/quilt/schema"
)

// runCheck classifies a payload against the stored candidate window and
// prints the duplicate report. It never writes to the database.
func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 20*time.Second, "Command timeout")
	payload := fs.String("payload", "", "News item payload JSON")
	payloadFile := fs.String("payload-file", "", "Path to payload JSON file (overrides --payload)")
	asJSON := fs.Bool("json", false, "Print the report as JSON")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	payloadJSON, err := loadJSONInput(*payload, *payloadFile, "payload")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	item, err := payloadschema.ValidateNewsItemPayload(payloadJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := ingest.NewService(pool, logger, cfg)
	matches, err := svc.Check(ctx, item)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
		return 1
	}

	report := dedup.BuildReport(matches)

	if *asJSON {
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Encode report failed: %v\n", err)
			return 1
		}
		fmt.Println(string(encoded))
		return 0
	}

	fmt.Printf("has_duplicates=%t count=%d\n", report.HasDuplicates, report.Count)
	for i, detail := range report.Details {
		fmt.Printf("match[%d] id=%s similarity=%d%% reasons=%v\n", i, detail.MatchedID, detail.SimilarityPercent, detail.Reasons)
	}
	return 0
}
