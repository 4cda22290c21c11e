package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

type conversationRow struct {
	ID        string    `gorm:"primaryKey"`
	Topic     string
	Status    string    `gorm:"index"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
	Body      datatypes.JSON
}

func (conversationRow) TableName() string { return "conversations" }

type summaryRow struct {
	ID             string    `gorm:"primaryKey"`
	ConversationID string    `gorm:"index"`
	CreatedAt      time.Time `gorm:"index"`
	Body           datatypes.JSON
}

func (summaryRow) TableName() string { return "summaries" }

type videoScriptRow struct {
	ID        string    `gorm:"primaryKey"`
	SummaryID string    `gorm:"index"`
	CreatedAt time.Time `gorm:"index"`
	Body      datatypes.JSON
}

func (videoScriptRow) TableName() string { return "video_scripts" }

// SQLStore keeps records in SQLite or Postgres through gorm. Each row carries the JSON record
// in Body next to the columns used for lookups.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates the schema.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLStore(db)
}

// OpenPostgres connects with a postgres:// DSN and migrates the schema.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return NewSQLStore(db)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}
}

// NewSQLStore migrates the schema on an existing connection.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&conversationRow{}, &summaryRow{}, &videoScriptRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func upsert(ctx context.Context, db *gorm.DB, row any) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

func first(ctx context.Context, db *gorm.DB, row any, id string) error {
	err := db.WithContext(ctx).First(row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return err
}

func decodeRows[R any, T any](rows []R, body func(R) []byte) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		var v T
		if err := json.Unmarshal(body(r), &v); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *SQLStore) SaveConversation(ctx context.Context, c *Conversation) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	row := conversationRow{
		ID:        c.ID,
		Topic:     c.Topic,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Body:      body,
	}
	if err := upsert(ctx, s.db, &row); err != nil {
		return fmt.Errorf("save conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var row conversationRow
	if err := first(ctx, s.db, &row, id); err != nil {
		return nil, err
	}
	var c Conversation
	if err := json.Unmarshal(row.Body, &c); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return &c, nil
}

func (s *SQLStore) ListConversations(ctx context.Context, opts ListOptions) ([]Conversation, error) {
	q := s.db.WithContext(ctx).Order("created_at desc")
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var rows []conversationRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return decodeRows[conversationRow, Conversation](rows, func(r conversationRow) []byte { return r.Body })
}

func (s *SQLStore) DeleteConversation(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&conversationRow{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete conversation %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) SaveSummary(ctx context.Context, sum *Summary) error {
	body, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	row := summaryRow{ID: sum.ID, ConversationID: sum.ConversationID, CreatedAt: sum.CreatedAt, Body: body}
	if err := upsert(ctx, s.db, &row); err != nil {
		return fmt.Errorf("save summary %s: %w", sum.ID, err)
	}
	return nil
}

func (s *SQLStore) GetSummary(ctx context.Context, id string) (*Summary, error) {
	var row summaryRow
	if err := first(ctx, s.db, &row, id); err != nil {
		return nil, err
	}
	var sum Summary
	if err := json.Unmarshal(row.Body, &sum); err != nil {
		return nil, fmt.Errorf("decode summary %s: %w", id, err)
	}
	return &sum, nil
}

func (s *SQLStore) ListSummaries(ctx context.Context, conversationID string) ([]Summary, error) {
	q := s.db.WithContext(ctx).Order("created_at desc")
	if conversationID != "" {
		q = q.Where("conversation_id = ?", conversationID)
	}
	var rows []summaryRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return decodeRows[summaryRow, Summary](rows, func(r summaryRow) []byte { return r.Body })
}

func (s *SQLStore) SaveVideoScript(ctx context.Context, v *VideoScript) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal video script: %w", err)
	}
	row := videoScriptRow{ID: v.ID, SummaryID: v.SummaryID, CreatedAt: v.CreatedAt, Body: body}
	if err := upsert(ctx, s.db, &row); err != nil {
		return fmt.Errorf("save video script %s: %w", v.ID, err)
	}
	return nil
}

func (s *SQLStore) GetVideoScript(ctx context.Context, id string) (*VideoScript, error) {
	var row videoScriptRow
	if err := first(ctx, s.db, &row, id); err != nil {
		return nil, err
	}
	var v VideoScript
	if err := json.Unmarshal(row.Body, &v); err != nil {
		return nil, fmt.Errorf("decode video script %s: %w", id, err)
	}
	return &v, nil
}

func (s *SQLStore) ListVideoScripts(ctx context.Context, summaryID string) ([]VideoScript, error) {
	q := s.db.WithContext(ctx).Order("created_at desc")
	if summaryID != "" {
		q = q.Where("summary_id = ?", summaryID)
	}
	var rows []videoScriptRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list video scripts: %w", err)
	}
	return decodeRows[videoScriptRow, VideoScript](rows, func(r videoScriptRow) []byte { return r.Body })
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
