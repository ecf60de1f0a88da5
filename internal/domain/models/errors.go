package models

import (
	"errors"

	"HoopsCast/pkg/objectstore"
)

var (
	ErrNoGames               = errors.New("no games returned by source")
	ErrBucketNotConfigured   = objectstore.ErrBucketNotConfigured
	ErrEmptyTable            = errors.New("table has no rows")
	ErrMissingColumn         = errors.New("missing column")
	ErrFeatureSchemaMismatch = errors.New("feature schema mismatch")
	ErrModelNotFound         = errors.New("model artifact not found")
	ErrDatasetNotFound       = errors.New("dataset not found")
	ErrPipelineBusy          = errors.New("pipeline already running")
)
