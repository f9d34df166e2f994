package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"quilt.news/quilt/internal/config"
	"quilt.news/quilt/internal/db"
	"quilt.news/quilt/internal/dedup"
	"quilt.news/quilt/internal/globaltime"
	payloadschema "quilt.news/quilt/schema"
)

// Decision labels persisted to news.dedup_events.
const (
	DecisionNew             = "new"
	DecisionMerged          = "merged"
	DecisionAlreadyIngested = "already_ingested"
)

// Service turns validated payloads into canonical records. It owns
// transactions and persistence only; every classification and merge
// decision is delegated to the dedup core.
type Service struct {
	pool       *db.Pool
	logger     zerolog.Logger
	classifier dedup.ClassifierConfig
	windowDays int
	windowCap  int
}

type Result struct {
	Decision    string       `json:"decision"`
	RecordID    string       `json:"record_id"`
	CanonicalID string       `json:"canonical_id,omitempty"`
	Report      dedup.Report `json:"report"`
}

// SweepResult summarizes one DedupPending run.
type SweepResult struct {
	Processed int
	Canonical int
	Merged    int
}

func NewService(pool *db.Pool, logger zerolog.Logger, cfg *config.Config) *Service {
	svc := &Service{
		pool:       pool,
		logger:     logger,
		classifier: dedup.DefaultClassifierConfig(),
		windowDays: 7,
		windowCap:  500,
	}
	if cfg != nil {
		svc.classifier = dedup.ClassifierConfig{
			SimilarityThreshold:      cfg.SimilarityThreshold,
			TitleSimilarityThreshold: cfg.TitleSimilarityThreshold,
			TimeProximityHours:       cfg.TimeProximityHours,
		}
		if cfg.WindowDays > 0 {
			svc.windowDays = cfg.WindowDays
		}
		if cfg.WindowLimit > 0 {
			svc.windowCap = cfg.WindowLimit
		}
	}
	return svc
}

// IngestOne records the payload in the arrival ledger, classifies the
// derived record against the candidate window and either merges it into
// the earliest matching canonical record or inserts it as a new canonical
// record. Replayed payloads (same content hash) short-circuit without
// touching the record store.
func (s *Service) IngestOne(ctx context.Context, item *payloadschema.NewsItem) (Result, error) {
	if s == nil || s.pool == nil {
		return Result{}, fmt.Errorf("ingest service is not initialized")
	}
	if item == nil {
		return Result{}, fmt.Errorf("payload is nil")
	}

	record := BuildRecord(item)

	rawPayload, err := json.Marshal(item)
	if err != nil {
		return Result{}, fmt.Errorf("marshal payload: %w", err)
	}
	payloadHash := sha256.Sum256(rawPayload)

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("begin ingest tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	inserted, err := insertArrivalTx(ctx, tx, record, rawPayload, payloadHash[:])
	if err != nil {
		return Result{}, err
	}
	if !inserted {
		if err := tx.Commit(ctx); err != nil {
			return Result{}, fmt.Errorf("commit replay tx: %w", err)
		}
		s.logger.Debug().
			Str("record_id", record.ID).
			Str("source", record.Source).
			Msg("payload already ingested, skipping classification")
		return Result{Decision: DecisionAlreadyIngested, RecordID: record.ID}, nil
	}

	result, err := s.classifyAndStoreTx(ctx, tx, record)
	if err != nil {
		return Result{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit ingest tx: %w", err)
	}

	s.logger.Info().
		Str("record_id", record.ID).
		Str("source", record.Source).
		Str("decision", result.Decision).
		Int("duplicates", result.Report.Count).
		Msg("ingest completed")

	return result, nil
}

// DedupPending processes records parked in status=pending, one per
// transaction so concurrent sweepers never fight over a row.
func (s *Service) DedupPending(ctx context.Context, limit int) (SweepResult, error) {
	if s == nil || s.pool == nil {
		return SweepResult{}, fmt.Errorf("ingest service is not initialized")
	}

	var result SweepResult
	for limit <= 0 || result.Processed < limit {
		tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
		if err != nil {
			return result, fmt.Errorf("begin dedup tx: %w", err)
		}

		record, pk, found, err := claimOnePendingTx(ctx, tx)
		if err != nil {
			_ = tx.Rollback(ctx)
			return result, err
		}
		if !found {
			if err := tx.Commit(ctx); err != nil {
				_ = tx.Rollback(ctx)
				return result, fmt.Errorf("commit empty dedup tx: %w", err)
			}
			break
		}

		decision, err := s.resolvePendingTx(ctx, tx, record, pk)
		if err != nil {
			_ = tx.Rollback(ctx)
			return result, err
		}

		if err := tx.Commit(ctx); err != nil {
			_ = tx.Rollback(ctx)
			return result, fmt.Errorf("commit dedup tx: %w", err)
		}

		result.Processed++
		switch decision {
		case DecisionNew:
			result.Canonical++
		case DecisionMerged:
			result.Merged++
		}
	}

	return result, nil
}

// Check classifies the record against the stored window without writing
// anything, returning the matches in window order.
func (s *Service) Check(ctx context.Context, item *payloadschema.NewsItem) ([]dedup.Match, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("ingest service is not initialized")
	}
	record := BuildRecord(item)

	window, err := s.loadWindow(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	return dedup.FindDuplicates(record, window, s.classifier), nil
}

// BuildRecord normalizes a validated payload into the core record shape.
func BuildRecord(item *payloadschema.NewsItem) dedup.Record {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)
	canonical := dedup.CanonicalizeLink(link)

	record := dedup.Record{
		ID:            dedup.RecordID(title, canonical),
		Title:         title,
		Description:   optionalString(item.Description),
		Link:          link,
		CanonicalLink: canonical,
		Source:        strings.TrimSpace(item.Source),
		Tags:          dedup.NewSet(trimAll(item.Tags)...),
	}

	if item.PublishedAt != nil {
		// Malformed timestamps were rejected by the schema layer; if one
		// slips through the record is simply never time-proximate.
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(*item.PublishedAt)); err == nil {
			record.PublishedAt = ts.UTC()
		}
	}

	return record
}

func (s *Service) classifyAndStoreTx(ctx context.Context, tx db.Tx, record dedup.Record) (Result, error) {
	window, err := loadWindowTx(ctx, tx, windowCutoff(s.windowDays), s.windowCap)
	if err != nil {
		return Result{}, err
	}

	matches := dedup.FindDuplicates(record, window, s.classifier)
	report := dedup.BuildReport(matches)

	if len(matches) == 0 {
		if err := insertRecordTx(ctx, tx, record, statusCanonical, nil); err != nil {
			return Result{}, err
		}
		if err := insertDedupEventTx(ctx, tx, record.ID, DecisionNew, nil); err != nil {
			return Result{}, err
		}
		return Result{Decision: DecisionNew, RecordID: record.ID, Report: report}, nil
	}

	canonicalID := matches[0].RecordID
	if err := s.mergeIntoCanonicalTx(ctx, tx, canonicalID, record); err != nil {
		return Result{}, err
	}
	if err := insertRecordTx(ctx, tx, record, statusMerged, &canonicalID); err != nil {
		return Result{}, err
	}
	if err := insertDedupEventTx(ctx, tx, record.ID, DecisionMerged, &matches[0]); err != nil {
		return Result{}, err
	}

	return Result{
		Decision:    DecisionMerged,
		RecordID:    record.ID,
		CanonicalID: canonicalID,
		Report:      report,
	}, nil
}

func (s *Service) resolvePendingTx(ctx context.Context, tx db.Tx, record dedup.Record, pk int64) (string, error) {
	window, err := loadWindowTx(ctx, tx, windowCutoff(s.windowDays), s.windowCap)
	if err != nil {
		return "", err
	}

	matches := dedup.FindDuplicates(record, window, s.classifier)
	if len(matches) == 0 {
		if err := promotePendingTx(ctx, tx, pk); err != nil {
			return "", err
		}
		if err := insertDedupEventTx(ctx, tx, record.ID, DecisionNew, nil); err != nil {
			return "", err
		}
		return DecisionNew, nil
	}

	canonicalID := matches[0].RecordID
	if err := s.mergeIntoCanonicalTx(ctx, tx, canonicalID, record); err != nil {
		return "", err
	}
	if err := markPendingMergedTx(ctx, tx, pk, canonicalID); err != nil {
		return "", err
	}
	if err := insertDedupEventTx(ctx, tx, record.ID, DecisionMerged, &matches[0]); err != nil {
		return "", err
	}
	return DecisionMerged, nil
}

func (s *Service) mergeIntoCanonicalTx(ctx context.Context, tx db.Tx, canonicalID string, incoming dedup.Record) error {
	canonical, found, err := lockCanonicalTx(ctx, tx, canonicalID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("canonical record %s disappeared during merge", canonicalID)
	}

	merged := dedup.Merge(canonical, incoming)
	return updateCanonicalTx(ctx, tx, merged)
}

func (s *Service) loadWindow(ctx context.Context, excludeID string) ([]dedup.Record, error) {
	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin window tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	window, err := loadWindowTx(ctx, tx, windowCutoff(s.windowDays), s.windowCap)
	if err != nil {
		return nil, err
	}

	if excludeID == "" {
		return window, nil
	}
	filtered := window[:0]
	for _, record := range window {
		if record.ID != excludeID {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}

func windowCutoff(days int) time.Time {
	return globaltime.UTC().AddDate(0, 0, -days)
}

const (
	statusPending   = "pending"
	statusCanonical = "canonical"
	statusMerged    = "merged"
)

func insertArrivalTx(ctx context.Context, tx db.Tx, record dedup.Record, rawPayload []byte, payloadHash []byte) (bool, error) {
	const q = `
INSERT INTO news.arrivals (
	source,
	link,
	published_at,
	raw_payload,
	payload_hash,
	fetched_at,
	created_at
)
VALUES ($1, $2, $3, $4::jsonb, $5, $6, $6)
ON CONFLICT (payload_hash) DO NOTHING
`
	now := globaltime.UTC()
	commandTag, err := tx.Exec(
		ctx,
		q,
		record.Source,
		nullableString(record.Link),
		nullableTime(record.PublishedAt),
		string(rawPayload),
		payloadHash,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("insert arrival for record %s: %w", record.ID, err)
	}
	return commandTag.RowsAffected() == 1, nil
}

// candidateWindowQuery orders the window by published_at (oldest first,
// records without a timestamp last) with record_pk as the tiebreaker, so
// the first duplicate match is always the earliest published canonical
// record.
const candidateWindowQuery = `
SELECT
	record_id,
	title,
	description,
	link,
	canonical_link,
	published_at,
	source,
	tags,
	alternative_links,
	sources,
	updated_at,
	last_duplicate_found
FROM news.records
WHERE status = 'canonical'
  AND (published_at IS NULL OR published_at >= $1)
ORDER BY published_at ASC NULLS LAST, record_pk ASC
LIMIT $2
`

func loadWindowTx(ctx context.Context, tx db.Tx, cutoff time.Time, limit int) ([]dedup.Record, error) {
	rows, err := tx.Query(ctx, candidateWindowQuery, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query candidate window: %w", err)
	}
	defer rows.Close()

	var window []dedup.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		window = append(window, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate window: %w", err)
	}
	return window, nil
}

func scanRecord(rows *db.Rows) (dedup.Record, error) {
	var (
		record             dedup.Record
		publishedAt        *time.Time
		updatedAt          *time.Time
		lastDuplicateFound *time.Time
		tagsJSON           []byte
		alternatesJSON     []byte
		sourcesJSON        []byte
	)
	if err := rows.Scan(
		&record.ID,
		&record.Title,
		&record.Description,
		&record.Link,
		&record.CanonicalLink,
		&publishedAt,
		&record.Source,
		&tagsJSON,
		&alternatesJSON,
		&sourcesJSON,
		&updatedAt,
		&lastDuplicateFound,
	); err != nil {
		return dedup.Record{}, fmt.Errorf("scan window record: %w", err)
	}

	if publishedAt != nil {
		record.PublishedAt = publishedAt.UTC()
	}
	if updatedAt != nil {
		record.UpdatedAt = updatedAt.UTC()
	}
	if lastDuplicateFound != nil {
		record.LastDuplicateFound = lastDuplicateFound.UTC()
	}
	for _, field := range []struct {
		raw []byte
		dst *dedup.Set
	}{
		{tagsJSON, &record.Tags},
		{alternatesJSON, &record.AlternativeLinks},
		{sourcesJSON, &record.Sources},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dst); err != nil {
			return dedup.Record{}, fmt.Errorf("decode record %s set field: %w", record.ID, err)
		}
	}
	return record, nil
}

func insertRecordTx(ctx context.Context, tx db.Tx, record dedup.Record, status string, mergedIntoID *string) error {
	const q = `
INSERT INTO news.records (
	record_id,
	title,
	description,
	link,
	canonical_link,
	published_at,
	source,
	tags,
	alternative_links,
	sources,
	status,
	merged_into_id,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10::jsonb, $11, $12, $13, $13)
`
	tags, alternates, sources, err := marshalSets(record)
	if err != nil {
		return err
	}

	now := globaltime.UTC()
	if _, err := tx.Exec(
		ctx,
		q,
		record.ID,
		record.Title,
		record.Description,
		record.Link,
		record.CanonicalLink,
		nullableTime(record.PublishedAt),
		record.Source,
		tags,
		alternates,
		sources,
		status,
		mergedIntoID,
		now,
	); err != nil {
		return fmt.Errorf("insert record %s: %w", record.ID, err)
	}
	return nil
}

func lockCanonicalTx(ctx context.Context, tx db.Tx, recordID string) (dedup.Record, bool, error) {
	const q = `
SELECT
	record_id,
	title,
	description,
	link,
	canonical_link,
	published_at,
	source,
	tags,
	alternative_links,
	sources,
	updated_at,
	last_duplicate_found
FROM news.records
WHERE status = 'canonical'
  AND record_id = $1
ORDER BY record_pk ASC
LIMIT 1
FOR UPDATE
`
	rows, err := tx.Query(ctx, q, recordID)
	if err != nil {
		return dedup.Record{}, false, fmt.Errorf("lock canonical record %s: %w", recordID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return dedup.Record{}, false, rows.Err()
	}
	record, err := scanRecord(rows)
	if err != nil {
		return dedup.Record{}, false, err
	}
	return record, true, nil
}

func updateCanonicalTx(ctx context.Context, tx db.Tx, record dedup.Record) error {
	const q = `
UPDATE news.records
SET
	description = $2,
	tags = $3::jsonb,
	alternative_links = $4::jsonb,
	sources = $5::jsonb,
	last_duplicate_found = $6,
	updated_at = $6
WHERE status = 'canonical'
  AND record_id = $1
`
	tags, alternates, sources, err := marshalSets(record)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(
		ctx,
		q,
		record.ID,
		record.Description,
		tags,
		alternates,
		sources,
		record.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update canonical record %s: %w", record.ID, err)
	}
	return nil
}

func claimOnePendingTx(ctx context.Context, tx db.Tx) (dedup.Record, int64, bool, error) {
	const q = `
SELECT
	record_pk,
	record_id,
	title,
	description,
	link,
	canonical_link,
	published_at,
	source,
	tags,
	alternative_links,
	sources
FROM news.records
WHERE status = 'pending'
ORDER BY record_pk ASC
LIMIT 1
FOR UPDATE SKIP LOCKED
`
	rows, err := tx.Query(ctx, q)
	if err != nil {
		return dedup.Record{}, 0, false, fmt.Errorf("claim pending record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return dedup.Record{}, 0, false, rows.Err()
	}

	var (
		record         dedup.Record
		pk             int64
		publishedAt    *time.Time
		tagsJSON       []byte
		alternatesJSON []byte
		sourcesJSON    []byte
	)
	if err := rows.Scan(
		&pk,
		&record.ID,
		&record.Title,
		&record.Description,
		&record.Link,
		&record.CanonicalLink,
		&publishedAt,
		&record.Source,
		&tagsJSON,
		&alternatesJSON,
		&sourcesJSON,
	); err != nil {
		return dedup.Record{}, 0, false, fmt.Errorf("scan pending record: %w", err)
	}
	if publishedAt != nil {
		record.PublishedAt = publishedAt.UTC()
	}
	for _, field := range []struct {
		raw []byte
		dst *dedup.Set
	}{
		{tagsJSON, &record.Tags},
		{alternatesJSON, &record.AlternativeLinks},
		{sourcesJSON, &record.Sources},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dst); err != nil {
			return dedup.Record{}, 0, false, fmt.Errorf("decode pending record %s set field: %w", record.ID, err)
		}
	}
	return record, pk, true, nil
}

func promotePendingTx(ctx context.Context, tx db.Tx, pk int64) error {
	const q = `
UPDATE news.records
SET status = 'canonical', updated_at = $2
WHERE record_pk = $1
`
	if _, err := tx.Exec(ctx, q, pk, globaltime.UTC()); err != nil {
		return fmt.Errorf("promote pending record pk=%d: %w", pk, err)
	}
	return nil
}

func markPendingMergedTx(ctx context.Context, tx db.Tx, pk int64, canonicalID string) error {
	const q = `
UPDATE news.records
SET status = 'merged', merged_into_id = $2, updated_at = $3
WHERE record_pk = $1
`
	if _, err := tx.Exec(ctx, q, pk, canonicalID, globaltime.UTC()); err != nil {
		return fmt.Errorf("mark pending record pk=%d merged: %w", pk, err)
	}
	return nil
}

func insertDedupEventTx(ctx context.Context, tx db.Tx, recordID, decision string, match *dedup.Match) error {
	const q = `
INSERT INTO news.dedup_events (
	record_id,
	decision,
	matched_record_id,
	title_similarity,
	content_jaccard,
	content_cosine,
	url_exact_match,
	time_proximate,
	reasons,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
`
	var (
		matchedRecordID *string
		titleSimilarity *float64
		contentJaccard  *float64
		contentCosine   *float64
		urlExactMatch   bool
		timeProximate   bool
		reasons         = []string{}
	)
	if match != nil {
		matchedRecordID = &match.RecordID
		titleSimilarity = &match.Result.TitleSimilarity
		contentJaccard = &match.Result.ContentJaccard
		contentCosine = &match.Result.ContentCosine
		urlExactMatch = match.Result.URLExactMatch
		timeProximate = match.Result.TimeProximate
		if match.Result.Reasons != nil {
			reasons = match.Result.Reasons
		}
	}

	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("marshal dedup event reasons: %w", err)
	}

	if _, err := tx.Exec(
		ctx,
		q,
		recordID,
		decision,
		matchedRecordID,
		titleSimilarity,
		contentJaccard,
		contentCosine,
		urlExactMatch,
		timeProximate,
		string(reasonsJSON),
		globaltime.UTC(),
	); err != nil {
		return fmt.Errorf("insert dedup event for record %s: %w", recordID, err)
	}
	return nil
}

func marshalSets(record dedup.Record) (tags, alternates, sources string, err error) {
	tagsJSON, err := json.Marshal(record.Tags)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal record %s tags: %w", record.ID, err)
	}
	alternatesJSON, err := json.Marshal(record.AlternativeLinks)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal record %s alternative links: %w", record.ID, err)
	}
	sourcesJSON, err := json.Marshal(record.Sources)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal record %s sources: %w", record.ID, err)
	}
	return string(tagsJSON), string(alternatesJSON), string(sourcesJSON), nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func optionalString(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
