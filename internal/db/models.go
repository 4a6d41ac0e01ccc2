package db

import (
	"encoding/json"
	"time"
)

// Keyword maps the scored vocabulary table.
type Keyword struct {
	KeywordID int64     `gorm:"column:keyword_id;primaryKey;autoIncrement"`
	Keyword   string    `gorm:"column:keyword;type:text;not null;unique"`
	Category  string    `gorm:"column:category;type:text;not null;default:general"`
	Weight    int       `gorm:"column:weight;type:integer;not null;default:5"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Keyword) TableName() string { return "keywords" }

// SeenPost maps the processed-post registry. The (source, native_id)
// pair is unique for the lifetime of the system; rows are written once
// on emission and removed only by retention cleanup.
type SeenPost struct {
	SeenPostID    int64      `gorm:"column:seen_post_id;primaryKey;autoIncrement"`
	Source        string     `gorm:"column:source;type:text;not null;uniqueIndex:idx_seen_posts_source_native,priority:1"`
	NativeID      string     `gorm:"column:native_id;type:text;not null;uniqueIndex:idx_seen_posts_source_native,priority:2"`
	Title         string     `gorm:"column:title;type:text;not null"`
	Author        string     `gorm:"column:author;type:text;not null;default:''"`
	URL           string     `gorm:"column:url;type:text;not null;default:''"`
	Score         int        `gorm:"column:score;type:integer;not null;default:0"`
	PostCreatedAt *time.Time `gorm:"column:post_created_at"`
	ProcessedAt   time.Time  `gorm:"column:processed_at;not null;index"`
}

func (SeenPost) TableName() string { return "seen_posts" }

// ScoreBreakdown maps per-emission scoring detail for audit.
type ScoreBreakdown struct {
	ScoreBreakdownID int64           `gorm:"column:score_breakdown_id;primaryKey;autoIncrement"`
	SeenPostID       int64           `gorm:"column:seen_post_id;type:bigint;not null;index"`
	MatchedKeywords  json.RawMessage `gorm:"column:matched_keywords;type:text"`
	BaseScore        int             `gorm:"column:base_score;type:integer;not null;default:0"`
	RecencyBonus     int             `gorm:"column:recency_bonus;type:integer;not null;default:0"`
	LinkPenalty      int             `gorm:"column:link_penalty;type:integer;not null;default:0"`
	FinalScore       int             `gorm:"column:final_score;type:integer;not null;default:0"`
	ScoredAt         time.Time       `gorm:"column:scored_at;not null"`
}

func (ScoreBreakdown) TableName() string { return "score_breakdowns" }

// ExecutionRecord maps the append-only run history.
type ExecutionRecord struct {
	ExecutionRecordID int64           `gorm:"column:execution_record_id;primaryKey;autoIncrement"`
	StartedAt         time.Time       `gorm:"column:started_at;not null;index"`
	FinishedAt        time.Time       `gorm:"column:finished_at;not null"`
	PostsSeen         int             `gorm:"column:posts_seen;type:integer;not null;default:0"`
	PostsScored       int             `gorm:"column:posts_scored;type:integer;not null;default:0"`
	PostsEmitted      int             `gorm:"column:posts_emitted;type:integer;not null;default:0"`
	DeadlineForced    bool            `gorm:"column:deadline_forced;not null;default:false"`
	Errors            json.RawMessage `gorm:"column:errors;type:text"`
	CreatedAt         time.Time       `gorm:"column:created_at;not null"`
}

func (ExecutionRecord) TableName() string { return "execution_records" }

func autoMigrateModels() []any {
	return []any{
		&Keyword{},
		&SeenPost{},
		&ScoreBreakdown{},
		&ExecutionRecord{},
	}
}
