package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

var (
	ErrStateNotFound        = errors.New("request state not found")
	ErrConversationNotFound = errors.New("conversation state not found")
)

type PostgresConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"8"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"10s"`
}

type messageRow struct {
	bun.BaseModel `bun:"table:messages"`

	ID             string          `bun:"id,pk"`
	ConversationID string          `bun:"conversation_id,notnull"`
	UserID         string          `bun:"user_id"`
	Question       string          `bun:"question"`
	Content        string          `bun:"content"`
	Source         string          `bun:"source"`
	StateID        string          `bun:"state_id"`
	Files          json.RawMessage `bun:"files,type:jsonb,nullzero"`
	ResponseTimeMS int64           `bun:"response_time,nullzero"`
	CreatedAt      time.Time       `bun:"created_at,notnull,default:current_timestamp"`
}

type stateRow struct {
	bun.BaseModel `bun:"table:states"`

	ID        string          `bun:"id,pk"`
	Values    json.RawMessage `bun:"values,type:jsonb"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}

type conversationStateRow struct {
	bun.BaseModel `bun:"table:conversation_states"`

	ID        string          `bun:"id,pk"`
	Values    json.RawMessage `bun:"values,type:jsonb"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}

// PostgresStore is the durable storage collaborator. The state rows it
// writes are the sole channel through which the UI viewer reconstructs
// live progress, so every values write replaces the whole JSONB object
// in one statement.
type PostgresStore struct {
	db *bun.DB
}

var _ contractx.Store = (*PostgresStore)(nil)

func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn", contractx.ErrConfigMissing)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithReadTimeout(cfg.ReadTimeout),
	))
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)

	return &PostgresStore{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateMessage(ctx context.Context, m *contractx.Message) (*contractx.Message, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", contractx.ErrValidation)
	}
	if strings.TrimSpace(m.ConversationID) == "" {
		return nil, fmt.Errorf("%w: conversation id is empty", contractx.ErrValidation)
	}

	row := messageRow{
		ID:             uuid.NewString(),
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Question:       m.Question,
		Content:        m.Content,
		Source:         m.Source,
		StateID:        m.StateID,
		CreatedAt:      time.Now().UTC(),
	}
	if len(m.Files) > 0 {
		files, err := json.Marshal(m.Files)
		if err != nil {
			return nil, fmt.Errorf("marshal file metadata: %w", err)
		}
		row.Files = files
	}

	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	created := *m
	created.ID = row.ID
	created.CreatedAt = row.CreatedAt
	return &created, nil
}

func (s *PostgresStore) UpdateMessage(ctx context.Context, id string, patch contractx.MessagePatch) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: message id is empty", contractx.ErrValidation)
	}

	q := s.db.NewUpdate().Model((*messageRow)(nil)).Where("id = ?", id)
	touched := false
	if patch.Content != nil {
		q = q.Set("content = ?", *patch.Content)
		touched = true
	}
	if patch.ResponseTimeMS != nil {
		q = q.Set("response_time = ?", *patch.ResponseTimeMS)
		touched = true
	}
	if !touched {
		return nil
	}

	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]contractx.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, fmt.Errorf("%w: conversation id is empty", contractx.ErrValidation)
	}
	if limit <= 0 {
		limit = 5
	}

	var rows []messageRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	messages := make([]contractx.Message, 0, len(rows))
	for _, row := range rows {
		msg := contractx.Message{
			ID:             row.ID,
			ConversationID: row.ConversationID,
			UserID:         row.UserID,
			Question:       row.Question,
			Content:        row.Content,
			Source:         row.Source,
			StateID:        row.StateID,
			ResponseTimeMS: row.ResponseTimeMS,
			CreatedAt:      row.CreatedAt,
		}
		if len(row.Files) > 0 {
			_ = json.Unmarshal(row.Files, &msg.Files)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *PostgresStore) CreateState(ctx context.Context, st *contractx.State) error {
	if st == nil {
		return fmt.Errorf("%w: nil state", contractx.ErrValidation)
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}

	values, err := json.Marshal(st.Values)
	if err != nil {
		return fmt.Errorf("marshal state values: %w", err)
	}

	row := stateRow{ID: st.ID, Values: values, UpdatedAt: time.Now().UTC()}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert state: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateState(ctx context.Context, id string, values *contractx.StateValues) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: state id is empty", contractx.ErrValidation)
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal state values: %w", err)
	}

	res, err := s.db.NewUpdate().
		Model((*stateRow)(nil)).
		Set("values = ?", payload).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrStateNotFound
	}
	return nil
}

func (s *PostgresStore) GetConversationState(ctx context.Context, conversationID string) (*contractx.ConversationState, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, fmt.Errorf("%w: conversation id is empty", contractx.ErrValidation)
	}

	var row conversationStateRow
	err := s.db.NewSelect().
		Model(&row).
		Where("id = ?", conversationID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation state: %w", err)
	}

	cs := contractx.ConversationState{ID: row.ID}
	if len(row.Values) > 0 {
		if err := json.Unmarshal(row.Values, &cs.Values); err != nil {
			return nil, fmt.Errorf("unmarshal conversation values: %w", err)
		}
	}
	return &cs, nil
}

func (s *PostgresStore) UpdateConversationState(ctx context.Context, id string, values *contractx.ConversationValues) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: conversation state id is empty", contractx.ErrValidation)
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal conversation values: %w", err)
	}

	row := conversationStateRow{ID: id, Values: payload, UpdatedAt: time.Now().UTC()}
	_, err = s.db.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("values = EXCLUDED.values").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert conversation state: %w", err)
	}
	return nil
}
