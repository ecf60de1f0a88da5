package models

import "time"

// Prediction is the predicted final score of one upcoming game.
type Prediction struct {
	GameID    int64     `json:"game_id"`
	Date      time.Time `json:"date"`
	Match     string    `json:"match"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	HomeScore float64   `json:"home_points"`
	AwayScore float64   `json:"away_points"`
	Total     float64   `json:"sum_result"`
}

// PredictionReport is the output of one predictor run. RMSE is nil when
// validation was skipped.
type PredictionReport struct {
	Predictions    []Prediction `json:"predictions"`
	RMSE           *float64     `json:"rmse"`
	Model          string       `json:"model"`
	ModelTrainedAt time.Time    `json:"model_trained_at"`
	GeneratedAt    time.Time    `json:"generated_at"`
}

// PredictionEvent is the Kafka record for one prediction.
type PredictionEvent struct {
	RunID       string     `json:"run_id"`
	Prediction  Prediction `json:"prediction"`
	Model       string     `json:"model"`
	GeneratedAt time.Time  `json:"generated_at"`
}
