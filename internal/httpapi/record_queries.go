package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quilt.news/quilt/internal/db"
)

func (s *Server) queryRecordList(ctx context.Context, filter recordListFilter) (int64, []recordListItem, error) {
	search := ""
	if filter.Query != "" {
		search = "%" + filter.Query + "%"
	}

	const countQuery = `
SELECT COUNT(*)
FROM news.records r
WHERE ($1 = '' OR LOWER(r.source) = $1)
  AND ($2 = '' OR r.status = $2)
  AND ($3 = '' OR r.title ILIKE $3 OR r.canonical_link ILIKE $3)
  AND ($4::timestamptz IS NULL OR r.published_at >= $4)
  AND ($5::timestamptz IS NULL OR r.published_at <= $5)
`

	var total int64
	if err := s.pool.QueryRow(ctx, countQuery, filter.Source, filter.Status, search, filter.From, filter.To).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("count records: %w", err)
	}

	offset := (filter.Page - 1) * filter.PageSize

	const rowsQuery = `
SELECT
	r.record_uuid::text,
	r.record_id,
	r.title,
	r.link,
	r.canonical_link,
	r.published_at,
	r.source,
	r.status,
	jsonb_array_length(r.sources) AS source_count,
	jsonb_array_length(r.alternative_links) AS alternative_count,
	r.last_duplicate_found,
	r.updated_at
FROM news.records r
WHERE ($1 = '' OR LOWER(r.source) = $1)
  AND ($2 = '' OR r.status = $2)
  AND ($3 = '' OR r.title ILIKE $3 OR r.canonical_link ILIKE $3)
  AND ($4::timestamptz IS NULL OR r.published_at >= $4)
  AND ($5::timestamptz IS NULL OR r.published_at <= $5)
ORDER BY r.updated_at DESC, r.record_pk DESC
LIMIT $6
OFFSET $7
`

	rows, err := s.pool.Query(ctx, rowsQuery, filter.Source, filter.Status, search, filter.From, filter.To, filter.PageSize, offset)
	if err != nil {
		return 0, nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	items := make([]recordListItem, 0, filter.PageSize)
	for rows.Next() {
		var row recordListItem
		if err := rows.Scan(
			&row.RecordUUID,
			&row.RecordID,
			&row.Title,
			&row.Link,
			&row.CanonicalLink,
			&row.PublishedAt,
			&row.Source,
			&row.Status,
			&row.SourceCount,
			&row.AlternativeCount,
			&row.LastDuplicateFound,
			&row.UpdatedAt,
		); err != nil {
			return 0, nil, fmt.Errorf("scan record row: %w", err)
		}
		items = append(items, row)
	}

	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("iterate record rows: %w", err)
	}

	return total, items, nil
}

func (s *Server) queryRecordDetail(ctx context.Context, recordUUID string) (*recordDetail, error) {
	const recordQuery = `
SELECT
	r.record_uuid::text,
	r.record_id,
	r.title,
	r.description,
	r.link,
	r.canonical_link,
	r.published_at,
	r.source,
	r.status,
	r.tags,
	r.alternative_links,
	r.sources,
	r.last_duplicate_found,
	r.updated_at
FROM news.records r
WHERE r.record_uuid = $1::uuid
`

	var (
		record         recordDetailItem
		tagsJSON       []byte
		alternatesJSON []byte
		sourcesJSON    []byte
	)
	if err := s.pool.QueryRow(ctx, recordQuery, recordUUID).Scan(
		&record.RecordUUID,
		&record.RecordID,
		&record.Title,
		&record.Description,
		&record.Link,
		&record.CanonicalLink,
		&record.PublishedAt,
		&record.Source,
		&record.Status,
		&tagsJSON,
		&alternatesJSON,
		&sourcesJSON,
		&record.LastDuplicateFound,
		&record.UpdatedAt,
	); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, errRecordNotFound
		}
		return nil, fmt.Errorf("query record: %w", err)
	}

	for _, field := range []struct {
		raw []byte
		dst *[]string
	}{
		{tagsJSON, &record.Tags},
		{alternatesJSON, &record.AlternativeLinks},
		{sourcesJSON, &record.Sources},
	} {
		*field.dst = []string{}
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dst); err != nil {
			return nil, fmt.Errorf("decode record %s set field: %w", record.RecordID, err)
		}
	}
	record.SourceCount = len(record.Sources)
	record.AlternativeCount = len(record.AlternativeLinks)

	const mergedQuery = `
SELECT
	m.record_uuid::text,
	m.record_id,
	m.title,
	m.link,
	m.source,
	m.published_at,
	m.updated_at
FROM news.records m
WHERE m.status = 'merged'
  AND m.merged_into_id = $1
ORDER BY m.updated_at DESC, m.record_pk DESC
`

	mergedRows, err := s.pool.Query(ctx, mergedQuery, record.RecordID)
	if err != nil {
		return nil, fmt.Errorf("query merged members: %w", err)
	}
	defer mergedRows.Close()

	merged := make([]mergedMemberItem, 0, 4)
	for mergedRows.Next() {
		var member mergedMemberItem
		if err := mergedRows.Scan(
			&member.RecordUUID,
			&member.RecordID,
			&member.Title,
			&member.Link,
			&member.Source,
			&member.PublishedAt,
			&member.MergedAt,
		); err != nil {
			return nil, fmt.Errorf("scan merged member: %w", err)
		}
		merged = append(merged, member)
	}
	if err := mergedRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merged members: %w", err)
	}

	const eventsQuery = `
SELECT
	e.decision,
	e.matched_record_id,
	e.title_similarity,
	e.content_jaccard,
	e.content_cosine,
	e.url_exact_match,
	e.time_proximate,
	e.reasons,
	e.created_at
FROM news.dedup_events e
WHERE e.record_id = $1
   OR e.matched_record_id = $1
ORDER BY e.created_at DESC
`

	eventRows, err := s.pool.Query(ctx, eventsQuery, record.RecordID)
	if err != nil {
		return nil, fmt.Errorf("query dedup events: %w", err)
	}
	defer eventRows.Close()

	events := make([]dedupEventItem, 0, 4)
	for eventRows.Next() {
		var (
			event       dedupEventItem
			reasonsJSON []byte
		)
		if err := eventRows.Scan(
			&event.Decision,
			&event.MatchedRecordID,
			&event.TitleSimilarity,
			&event.ContentJaccard,
			&event.ContentCosine,
			&event.URLExactMatch,
			&event.TimeProximate,
			&reasonsJSON,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan dedup event: %w", err)
		}
		event.Reasons = []string{}
		if len(reasonsJSON) > 0 {
			if err := json.Unmarshal(reasonsJSON, &event.Reasons); err != nil {
				return nil, fmt.Errorf("decode dedup event reasons: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := eventRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dedup events: %w", err)
	}

	return &recordDetail{
		Record: record,
		Merged: merged,
		Events: events,
	}, nil
}

func (s *Server) queryStats(ctx context.Context) (*statsResponse, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM news.arrivals) AS arrivals,
	(SELECT COUNT(*) FROM news.records) AS records,
	(SELECT COUNT(*) FROM news.records WHERE status = 'canonical') AS canonical_records,
	(SELECT COUNT(*) FROM news.records WHERE status = 'merged') AS merged_records,
	(SELECT COUNT(*) FROM news.records WHERE status = 'pending') AS pending_records,
	(SELECT COUNT(*) FROM news.dedup_events) AS dedup_events,
	(SELECT MAX(fetched_at) FROM news.arrivals) AS last_arrival_at,
	(SELECT MAX(updated_at) FROM news.records) AS last_record_update
`

	var stats statsResponse
	if err := s.pool.QueryRow(ctx, q).Scan(
		&stats.Arrivals,
		&stats.Records,
		&stats.CanonicalRecords,
		&stats.MergedRecords,
		&stats.PendingRecords,
		&stats.DedupEvents,
		&stats.LastArrivalAt,
		&stats.LastRecordUpdate,
	); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	const decisionQuery = `
SELECT decision, COUNT(*)::BIGINT
FROM news.dedup_events
GROUP BY decision
ORDER BY decision
`
	rows, err := s.pool.Query(ctx, decisionQuery)
	if err != nil {
		return nil, fmt.Errorf("query dedup decisions: %w", err)
	}
	defer rows.Close()

	stats.DedupDecisions = map[string]int64{}
	for rows.Next() {
		var decision string
		var count int64
		if err := rows.Scan(&decision, &count); err != nil {
			return nil, fmt.Errorf("scan dedup decision: %w", err)
		}
		stats.DedupDecisions[decision] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dedup decisions: %w", err)
	}

	return &stats, nil
}
