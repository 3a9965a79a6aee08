package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/config"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/domain"
	"github.com/richharvestCC/ScoreBoard-sub001/pkg/log"
)

// MatchModel is the persisted live state of a match.
type MatchModel struct {
	ID           string `gorm:"primaryKey"`
	OwnerID      string
	Status       string
	HomeScore    int
	AwayScore    int
	LastSequence uint64
	UpdatedAt    time.Time
}

func (MatchModel) TableName() string { return "matches" }

// MatchEventModel is one persisted event log entry.
type MatchEventModel struct {
	MatchID       string `gorm:"primaryKey"`
	Sequence      uint64 `gorm:"primaryKey"`
	Type          string
	Payload       []byte
	ClientEventID string
	UserID        string
	Timestamp     time.Time
}

func (MatchEventModel) TableName() string { return "match_events" }

// GormMatchStore implements MatchStore on the relational store.
type GormMatchStore struct {
	db *gorm.DB
}

// Open connects to the configured database and returns a store.
func Open(cfg config.DatabaseConfig) (*GormMatchStore, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		)
		dialector = postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		})

	case "mysql":
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		)
		dialector = mysql.Open(dsn)

	case "sqlite":
		dialector = sqlite.Open(cfg.FilePath)

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewGormMatchStore(db), nil
}

// NewGormMatchStore creates a store on an existing GORM connection.
func NewGormMatchStore(db *gorm.DB) *GormMatchStore {
	return &GormMatchStore{db: db}
}

// LoadMatch retrieves a match and its event log ordered by sequence.
func (s *GormMatchStore) LoadMatch(ctx context.Context, matchID string) (*domain.MatchState, error) {
	l := log.Ctx(ctx)

	var model MatchModel
	result := s.db.WithContext(ctx).First(&model, "id = ?", matchID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldMatchID, matchID).Msg("failed to load match")
		return nil, result.Error
	}

	var eventModels []MatchEventModel
	if err := s.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("sequence ASC").
		Find(&eventModels).Error; err != nil {
		l.Error().Err(err).Str(log.FieldMatchID, matchID).Msg("failed to load match events")
		return nil, err
	}

	state := &domain.MatchState{
		MatchID:      model.ID,
		OwnerID:      model.OwnerID,
		Status:       domain.MatchStatus(model.Status),
		HomeScore:    model.HomeScore,
		AwayScore:    model.AwayScore,
		LastSequence: model.LastSequence,
		LastUpdate:   model.UpdatedAt,
	}
	for _, em := range eventModels {
		state.Events = append(state.Events, domain.MatchEvent{
			Sequence:      em.Sequence,
			Type:          em.Type,
			Payload:       json.RawMessage(em.Payload),
			ClientEventID: em.ClientEventID,
			UserID:        em.UserID,
			Timestamp:     em.Timestamp,
		})
		if em.Sequence > state.LastSequence {
			state.LastSequence = em.Sequence
		}
	}

	l.Debug().Str(log.FieldMatchID, matchID).Int("events", len(state.Events)).Msg("match hydrated from store")
	return state, nil
}

// FlushFinal writes the match row and any event log entries not yet
// persisted, in one transaction.
func (s *GormMatchStore) FlushFinal(ctx context.Context, state *domain.MatchState) error {
	l := log.Ctx(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := MatchModel{
			ID:           state.MatchID,
			OwnerID:      state.OwnerID,
			Status:       string(state.Status),
			HomeScore:    state.HomeScore,
			AwayScore:    state.AwayScore,
			LastSequence: state.LastSequence,
			UpdatedAt:    state.LastUpdate,
		}
		if err := tx.Save(&model).Error; err != nil {
			return err
		}

		var persisted uint64
		row := tx.Model(&MatchEventModel{}).
			Where("match_id = ?", state.MatchID).
			Select("COALESCE(MAX(sequence), 0)").
			Row()
		if err := row.Scan(&persisted); err != nil {
			return err
		}

		for _, ev := range state.Events {
			if ev.Sequence <= persisted {
				continue
			}
			em := MatchEventModel{
				MatchID:       state.MatchID,
				Sequence:      ev.Sequence,
				Type:          ev.Type,
				Payload:       []byte(ev.Payload),
				ClientEventID: ev.ClientEventID,
				UserID:        ev.UserID,
				Timestamp:     ev.Timestamp,
			}
			if err := tx.Create(&em).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldMatchID, state.MatchID).Msg("failed to flush match state")
		return fmt.Errorf("flush match %s: %w", state.MatchID, err)
	}

	l.Info().
		Str(log.FieldMatchID, state.MatchID).
		Str(log.FieldStatus, string(state.Status)).
		Uint64(log.FieldSequence, state.LastSequence).
		Msg("match state flushed")
	return nil
}
