package service

import (
	"time"

	"HoopsCast/internal/domain/models"
)

// Regressor maps a feature matrix to one or more numeric targets.
type Regressor interface {
	Fit(X [][]float64, Y [][]float64) error
	Predict(X [][]float64) ([][]float64, error)
}

// Transformer turns raw game records into the training and prediction
// tables for a given run date.
type Transformer interface {
	Transform(records []models.Record, today time.Time) (*models.Partitions, error)
}
