package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Counter is the persisted row of one named counter.
type Counter struct {
	Name      string `gorm:"primaryKey;size:32"`
	Value     int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (Counter) TableName() string { return "win_counters" }

// SQLStore persists counters in a SQLite database through gorm.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLite opens or creates the database at path. An empty path selects a
// private in-memory database.
func OpenSQLite(path string) (*SQLStore, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open stats database: %w", err)
	}
	//1.- SQLite allows one writer; a single connection also keeps memory databases shared.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("stats database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Counter{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate stats database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Wins implements Store.
func (s *SQLStore) Wins(ctx context.Context) (Tally, error) {
	if s == nil || s.db == nil {
		return Tally{}, ErrClosed
	}
	return readTally(s.db.WithContext(ctx))
}

// RecordWin implements Store. The increment is a single upsert so concurrent
// hosts sharing the file never lose a win.
func (s *SQLStore) RecordWin(ctx context.Context, playerID int) (Tally, error) {
	if s == nil || s.db == nil {
		return Tally{}, ErrClosed
	}
	name, err := counterName(playerID)
	if err != nil {
		return Tally{}, err
	}
	var tally Tally
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := Counter{Name: name, Value: 1, UpdatedAt: time.Now().UTC()}
		result := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      gorm.Expr("win_counters.value + 1"),
				"updated_at": row.UpdatedAt,
			}),
		}).Create(&row)
		if result.Error != nil {
			return result.Error
		}
		tally, err = readTally(tx)
		return err
	})
	if err != nil {
		return Tally{}, fmt.Errorf("record win for player %d: %w", playerID, err)
	}
	return tally, nil
}

// Close releases the underlying connection.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}

func readTally(db *gorm.DB) (Tally, error) {
	var rows []Counter
	if err := db.Where("name IN ?", []string{CounterPlayer1, CounterPlayer2}).Find(&rows).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Tally{}, nil
		}
		return Tally{}, fmt.Errorf("read win counters: %w", err)
	}
	var tally Tally
	for _, row := range rows {
		switch row.Name {
		case CounterPlayer1:
			tally.Player1Wins = row.Value
		case CounterPlayer2:
			tally.Player2Wins = row.Value
		}
	}
	return tally, nil
}
