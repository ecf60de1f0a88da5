package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"HoopsCast/internal/domain/models"
	domrepo "HoopsCast/internal/domain/repository"
	pkgch "HoopsCast/pkg/clickhouse"
	applogger "HoopsCast/pkg/logger"
)

// CHFeatureStore implements FeatureStore backed by ClickHouse.
type CHFeatureStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

var _ domrepo.FeatureStore = (*CHFeatureStore)(nil)

func NewCHFeatureStore(ch *pkgch.Client, database string) *CHFeatureStore {
	return &CHFeatureStore{db: ch.DB(), database: database}
}

// SetLogger injects a structured logger.
func (s *CHFeatureStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHFeatureStore) table() string { return s.database + ".matchups" }

func (s *CHFeatureStore) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            run_id      String,
            game_id     Int64,
            date        Date,
            home_team   LowCardinality(String),
            away_team   LowCardinality(String),
            home_score  Float64,
            away_score  Float64,
            features    Map(String, Float64),
            inserted_at DateTime DEFAULT now()
        ) ENGINE = ReplacingMergeTree(inserted_at)
        ORDER BY (date, game_id)`, s.table()),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init matchups schema: %w", err)
		}
	}
	return nil
}

// SaveMatchups inserts rows in one batch. Re-running a day replaces rows of
// the same game on merge.
func (s *CHFeatureStore) SaveMatchups(ctx context.Context, runID string, rows []models.Matchup) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin matchups batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (run_id, game_id, date, home_team, away_team, home_score, away_score, features)", s.table()))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare matchups batch: %w", err)
	}
	defer stmt.Close()

	for _, m := range rows {
		if _, err := stmt.ExecContext(ctx, runID, m.ID, m.Date, m.HomeTeam, m.AwayTeam, m.HomeScore, m.AwayScore, m.Features); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append matchup %d: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse save_matchups error", applogger.Int("rows", len(rows)), applogger.Error(err))
		}
		return fmt.Errorf("commit matchups batch: %w", err)
	}

	if s.l != nil {
		s.l.Info("clickhouse save_matchups ok",
			applogger.String("run_id", runID),
			applogger.Int("rows", len(rows)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

// LatestMatchups returns the newest limit games in ascending date order.
func (s *CHFeatureStore) LatestMatchups(ctx context.Context, limit int) ([]models.Matchup, error) {
	start := time.Now()
	const qtpl = `
        SELECT game_id, date, home_team, away_team, home_score, away_score, features
        FROM %s FINAL
        ORDER BY date DESC, game_id DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table()), limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_matchups query error", applogger.Int("limit", limit), applogger.Error(err))
		}
		return nil, fmt.Errorf("latest matchups: %w", err)
	}
	defer rows.Close()

	out := make([]models.Matchup, 0, limit)
	for rows.Next() {
		var m models.Matchup
		if err := rows.Scan(&m.ID, &m.Date, &m.HomeTeam, &m.AwayTeam, &m.HomeScore, &m.AwayScore, &m.Features); err != nil {
			return nil, fmt.Errorf("scan matchup: %w", err)
		}
		m.Date = m.Date.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if s.l != nil {
		s.l.Info("clickhouse latest_matchups ok",
			applogger.Int("limit", limit),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}
