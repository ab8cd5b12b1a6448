package store

import (
	"bfbot/internal/models"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store archives candle windows so backtests can be replayed without hitting the feed again.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("Не задан путь к архиву свечей")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("Не удалось создать каталог архива: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("Не удалось открыть архив свечей: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS candles (
  pair TEXT NOT NULL,
  period_sec INTEGER NOT NULL,
  close_time INTEGER NOT NULL,
  open REAL NOT NULL,
  high REAL NOT NULL,
  low REAL NOT NULL,
  close REAL NOT NULL,
  volume REAL NOT NULL,
  quote_volume REAL NOT NULL,
  PRIMARY KEY (pair, period_sec, close_time)
);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("Ошибка миграции архива: %w", err)
		}
	}
	return nil
}

// SaveCandles upserts candles keyed by pair, period and close time.
func (s *Store) SaveCandles(ctx context.Context, pair string, period time.Duration, candles []models.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Не удалось начать транзакцию: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO candles (pair, period_sec, close_time, open, high, low, close, volume, quote_volume)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (pair, period_sec, close_time) DO UPDATE SET
  open = excluded.open,
  high = excluded.high,
  low = excluded.low,
  close = excluded.close,
  volume = excluded.volume,
  quote_volume = excluded.quote_volume;`)
	if err != nil {
		return fmt.Errorf("Не удалось подготовить запрос: %w", err)
	}
	defer stmt.Close()

	periodSec := int64(period / time.Second)
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, pair, periodSec, c.CloseTime.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume, c.QuoteVolume); err != nil {
			return fmt.Errorf("Не удалось сохранить свечу: %w", err)
		}
	}
	return tx.Commit()
}

// LoadCandles returns the archived candles oldest first; an empty slice means nothing was archived.
func (s *Store) LoadCandles(ctx context.Context, pair string, period time.Duration) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT close_time, open, high, low, close, volume, quote_volume
FROM candles
WHERE pair = ? AND period_sec = ?
ORDER BY close_time ASC;`, pair, int64(period/time.Second))
	if err != nil {
		return nil, fmt.Errorf("Не удалось прочитать архив свечей: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var (
			closeTime int64
			c         models.Candle
		)
		if err := rows.Scan(&closeTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.QuoteVolume); err != nil {
			return nil, fmt.Errorf("Не удалось разобрать свечу: %w", err)
		}
		c.CloseTime = time.Unix(closeTime, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}
