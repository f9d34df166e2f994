package db

import (
	"encoding/json"
	"time"
)

// Arrival maps news.arrivals, the raw ingest ledger. Every accepted payload
// lands here exactly once, keyed by its content hash.
type Arrival struct {
	ArrivalID   int64           `gorm:"column:arrival_id;primaryKey;autoIncrement"`
	ArrivalUUID string          `gorm:"column:arrival_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Source      string          `gorm:"column:source;type:text;not null"`
	Link        *string         `gorm:"column:link;type:text"`
	PublishedAt *time.Time      `gorm:"column:published_at;type:timestamptz"`
	RawPayload  json.RawMessage `gorm:"column:raw_payload;type:jsonb;not null"`
	PayloadHash []byte          `gorm:"column:payload_hash;type:bytea;not null;uniqueIndex:idx_arrivals_payload_hash"`
	FetchedAt   time.Time       `gorm:"column:fetched_at;type:timestamptz;not null;default:now()"`
	CreatedAt   time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Arrival) TableName() string { return "news.arrivals" }

// RecordRow maps news.records. Status moves pending -> canonical, or
// pending -> merged once the record has been folded into a canonical one.
type RecordRow struct {
	RecordPK           int64           `gorm:"column:record_pk;primaryKey;autoIncrement"`
	RecordUUID         string          `gorm:"column:record_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RecordID           string          `gorm:"column:record_id;type:text;not null;index:idx_records_record_id"`
	Title              string          `gorm:"column:title;type:text;not null"`
	Description        string          `gorm:"column:description;type:text;not null;default:''"`
	Link               string          `gorm:"column:link;type:text;not null"`
	CanonicalLink      string          `gorm:"column:canonical_link;type:text;not null"`
	PublishedAt        *time.Time      `gorm:"column:published_at;type:timestamptz"`
	Source             string          `gorm:"column:source;type:text;not null"`
	Tags               json.RawMessage `gorm:"column:tags;type:jsonb;not null;default:'[]'"`
	AlternativeLinks   json.RawMessage `gorm:"column:alternative_links;type:jsonb;not null;default:'[]'"`
	Sources            json.RawMessage `gorm:"column:sources;type:jsonb;not null;default:'[]'"`
	Status             string          `gorm:"column:status;type:text;not null;default:pending;index:idx_records_status"`
	MergedIntoID       *string         `gorm:"column:merged_into_id;type:text"`
	LastDuplicateFound *time.Time      `gorm:"column:last_duplicate_found;type:timestamptz"`
	CreatedAt          time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (RecordRow) TableName() string { return "news.records" }

// DedupEvent maps news.dedup_events, one row per classification decision.
type DedupEvent struct {
	DedupEventID    int64           `gorm:"column:dedup_event_id;primaryKey;autoIncrement"`
	RecordID        string          `gorm:"column:record_id;type:text;not null"`
	Decision        string          `gorm:"column:decision;type:text;not null"`
	MatchedRecordID *string         `gorm:"column:matched_record_id;type:text"`
	TitleSimilarity *float64        `gorm:"column:title_similarity;type:double precision"`
	ContentJaccard  *float64        `gorm:"column:content_jaccard;type:double precision"`
	ContentCosine   *float64        `gorm:"column:content_cosine;type:double precision"`
	URLExactMatch   bool            `gorm:"column:url_exact_match;not null;default:false"`
	TimeProximate   bool            `gorm:"column:time_proximate;not null;default:false"`
	Reasons         json.RawMessage `gorm:"column:reasons;type:jsonb;not null;default:'[]'"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (DedupEvent) TableName() string { return "news.dedup_events" }

func autoMigrateModels() []any {
	return []any{
		&Arrival{},
		&RecordRow{},
		&DedupEvent{},
	}
}
