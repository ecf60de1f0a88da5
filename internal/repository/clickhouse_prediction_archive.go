package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"HoopsCast/internal/domain/models"
	domrepo "HoopsCast/internal/domain/repository"
	pkgch "HoopsCast/pkg/clickhouse"
)

// CHPredictionArchive stores prediction events for later scoring against
// final results.
type CHPredictionArchive struct {
	db       *sql.DB
	database string
}

var _ domrepo.PredictionArchive = (*CHPredictionArchive)(nil)

func NewCHPredictionArchive(ch *pkgch.Client, database string) *CHPredictionArchive {
	return &CHPredictionArchive{db: ch.DB(), database: database}
}

func (s *CHPredictionArchive) table() string { return s.database + ".predictions" }

func (s *CHPredictionArchive) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            run_id       String,
            game_id      Int64,
            date         Date,
            home_team    LowCardinality(String),
            away_team    LowCardinality(String),
            home_points  Float64,
            away_points  Float64,
            total        Float64,
            model        String,
            generated_at DateTime64(3)
        ) ENGINE = ReplacingMergeTree(generated_at)
        ORDER BY (date, game_id, run_id)`, s.table()),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init predictions schema: %w", err)
		}
	}
	return nil
}

func (s *CHPredictionArchive) StorePredictions(ctx context.Context, events []models.PredictionEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin predictions batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (run_id, game_id, date, home_team, away_team, home_points, away_points, total, model, generated_at)", s.table()))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare predictions batch: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		p := e.Prediction
		if _, err := stmt.ExecContext(ctx, e.RunID, p.GameID, p.Date, p.HomeTeam, p.AwayTeam,
			p.HomeScore, p.AwayScore, p.Total, e.Model, e.GeneratedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append prediction %d: %w", p.GameID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit predictions batch: %w", err)
	}
	return nil
}

func (s *CHPredictionArchive) QueryPredictions(ctx context.Context, from, to time.Time, limit int) ([]models.PredictionEvent, error) {
	q := fmt.Sprintf(`SELECT run_id, game_id, date, home_team, away_team, home_points, away_points, total, model, generated_at
        FROM %s FINAL
        WHERE generated_at >= ? AND generated_at <= ?
        ORDER BY generated_at DESC
        LIMIT ?`, s.table())
	rows, err := s.db.QueryContext(ctx, q, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []models.PredictionEvent
	for rows.Next() {
		var e models.PredictionEvent
		p := &e.Prediction
		if err := rows.Scan(&e.RunID, &p.GameID, &p.Date, &p.HomeTeam, &p.AwayTeam,
			&p.HomeScore, &p.AwayScore, &p.Total, &e.Model, &e.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.Match = p.HomeTeam + " vs " + p.AwayTeam
		out = append(out, e)
	}
	return out, rows.Err()
}
