package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"HoopsCast/internal/domain/models"

	"github.com/klauspost/compress/zstd"
)

const ArtifactVersion = 1

// Artifact is a fitted model plus the schema it was trained on.
type Artifact struct {
	Version   int                `json:"version"`
	Features  []string           `json:"features"`
	Targets   []string           `json:"targets"`
	Metrics   map[string]float64 `json:"metrics"`
	TrainedAt time.Time          `json:"trained_at"`
	Rows      int                `json:"rows"`
	Model     *Model             `json:"model"`
}

func NewArtifact(m *Model, features, targets []string, metrics map[string]float64, rows int, trainedAt time.Time) *Artifact {
	return &Artifact{
		Version:   ArtifactVersion,
		Features:  append([]string(nil), features...),
		Targets:   append([]string(nil), targets...),
		Metrics:   finite(metrics),
		TrainedAt: trainedAt.UTC(),
		Rows:      rows,
		Model:     m,
	}
}

// finite drops NaN and infinite values, which JSON cannot carry.
func finite(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

// CheckSchema fails with ErrFeatureSchemaMismatch unless t carries every
// feature the model was trained on.
func (a *Artifact) CheckSchema(t *models.Table) error {
	if missing := t.MissingColumns(a.Features); len(missing) > 0 {
		return fmt.Errorf("%w: table lacks %v", models.ErrFeatureSchemaMismatch, missing)
	}
	return nil
}

// CheckTargets fails unless t carries every target column.
func (a *Artifact) CheckTargets(t *models.Table) error {
	if missing := t.MissingColumns(a.Targets); len(missing) > 0 {
		return fmt.Errorf("%w: table lacks targets %v", models.ErrFeatureSchemaMismatch, missing)
	}
	return nil
}

// Describe is a short identifier for logs and reports.
func (a *Artifact) Describe() string {
	return fmt.Sprintf("%s@%s", a.Model.Algorithm, a.TrainedAt.Format(time.RFC3339))
}

// Encode renders the artifact as zstd-compressed JSON.
func (a *Artifact) Encode() ([]byte, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func DecodeArtifact(b []byte) (*Artifact, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d", a.Version)
	}
	if a.Model == nil || !a.Model.Fitted() {
		return nil, fmt.Errorf("artifact: %w", ErrNotFitted)
	}
	return &a, nil
}
