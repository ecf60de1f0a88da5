package models

import "strconv"

// Requests for the pipeline HTTP endpoints and queue payloads.

type PredictionsRequest struct {
	Refresh  bool   `query:"refresh" json:"refresh"`
	Validate string `query:"validate" json:"validate" validate:"omitempty,oneof=true false 1 0"`
}

// ValidateFlag is nil when the caller left validation to config.
func (r PredictionsRequest) ValidateFlag() *bool {
	if r.Validate == "" {
		return nil
	}
	v, err := strconv.ParseBool(r.Validate)
	if err != nil {
		return nil
	}
	return &v
}

type ETLRequest struct {
	StartDate string `query:"start_date" json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `query:"end_date" json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Today     string `query:"today" json:"today" validate:"omitempty,datetime=2006-01-02"`
}

type TrainRequest struct {
	Search bool `query:"search" json:"search"`
}

type HistoryRequest struct {
	From  string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To    string `query:"to" validate:"omitempty,datetime=2006-01-02"`
	Limit int    `query:"limit" default:"100" validate:"min=1,max=1000"`
}

type MatchupsRequest struct {
	Limit int `query:"limit" default:"50" validate:"min=1,max=1000"`
}

type JobAccepted struct {
	JobID string `json:"job_id"`
	Type  string `json:"type"`
}
