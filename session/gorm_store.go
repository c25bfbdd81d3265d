package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oneagent/coordination/types"
)

// sessionRecord is the database projection of a session. Participants are
// stored as a JSON array to keep the schema to a single table.
type sessionRecord struct {
	ID           string `gorm:"primaryKey;size:64"`
	Topic        string `gorm:"size:512"`
	Participants string `gorm:"type:text"`
	CreatedBy    string `gorm:"size:128"`
	State        string `gorm:"size:16;index"`
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time `gorm:"index"`
}

func (sessionRecord) TableName() string {
	return "coordination_sessions"
}

// GormStore persists sessions in a relational database via GORM. Supports
// sqlite (embedded, pure Go) and postgres.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Store = (*GormStore)(nil)

// NewGormStore opens the database for the configured backend and migrates
// the session table.
func NewGormStore(config *StoreConfig, logger *zap.Logger) (*GormStore, error) {
	if config == nil {
		return nil, fmt.Errorf("store config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch config.Backend {
	case "sqlite":
		dsn := config.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		if config.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires a dsn")
		}
		dialector = postgres.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported session store backend: %s", config.Backend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect session database: %w", err)
	}
	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session table: %w", err)
	}

	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "session_store")),
	}, nil
}

// Save upserts a session record.
func (s *GormStore) Save(ctx context.Context, session *types.Session) error {
	if session == nil || session.ID == "" {
		return types.NewError(types.ErrInvalidArgument, "session id is required")
	}
	record, err := toRecord(session)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(record).Error
	if err != nil {
		return types.NewError(types.ErrInternal, "failed to save session").WithCause(err)
	}
	return nil
}

// Get returns the session or a NOT_FOUND error.
func (s *GormStore) Get(ctx context.Context, id string) (*types.Session, error) {
	var record sessionRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrNotFound, "session not found: %s", id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to load session").WithCause(err)
	}
	return fromRecord(&record)
}

// List returns all sessions ordered by creation time.
func (s *GormStore) List(ctx context.Context) ([]*types.Session, error) {
	var records []sessionRecord
	err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&records).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to list sessions").WithCause(err)
	}
	result := make([]*types.Session, 0, len(records))
	for i := range records {
		session, err := fromRecord(&records[i])
		if err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	return result, nil
}

// Delete removes a session record.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Delete(&sessionRecord{}, "id = ?", id).Error
	if err != nil {
		return types.NewError(types.ErrInternal, "failed to delete session").WithCause(err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(session *types.Session) (*sessionRecord, error) {
	participants, err := json.Marshal(session.Participants)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to encode participants").WithCause(err)
	}
	return &sessionRecord{
		ID:           session.ID,
		Topic:        session.Topic,
		Participants: string(participants),
		CreatedBy:    session.CreatedBy,
		State:        string(session.State),
		CreatedAt:    session.CreatedAt,
		LastActivity: session.LastActivity,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

func fromRecord(record *sessionRecord) (*types.Session, error) {
	var participants []string
	if record.Participants != "" {
		if err := json.Unmarshal([]byte(record.Participants), &participants); err != nil {
			return nil, types.NewError(types.ErrInternal, "failed to decode participants").WithCause(err)
		}
	}
	return &types.Session{
		ID:           record.ID,
		Topic:        record.Topic,
		Participants: participants,
		CreatedBy:    record.CreatedBy,
		State:        types.SessionState(record.State),
		CreatedAt:    record.CreatedAt,
		LastActivity: record.LastActivity,
		ExpiresAt:    record.ExpiresAt,
	}, nil
}
