package models

import "time"

// Record is one raw game as returned by the games API, possibly nested.
type Record map[string]any

// Game is a selected, typed game. A score of 0 means the game has not been
// played yet.
type Game struct {
	ID        int64
	Date      time.Time
	HomeTeam  string
	AwayTeam  string
	HomeScore float64
	AwayScore float64
}

// Completed reports whether both final scores are known.
func (g Game) Completed() bool {
	return g.HomeScore != 0 && g.AwayScore != 0
}

// TeamGame is one side of a game seen from that team's perspective.
// Rolling holds avg_last_{w}_{column} values keyed without the side prefix.
type TeamGame struct {
	GameID        int64
	Date          time.Time
	Team          string
	Opponent      string
	TeamScore     float64
	OpponentScore float64
	IsHome        bool
	Rolling       map[string]float64
}

// Value returns a numeric per-team column by name.
func (tg TeamGame) Value(column string) (float64, bool) {
	switch column {
	case "team_score":
		return tg.TeamScore, true
	case "opponent_score":
		return tg.OpponentScore, true
	}
	return 0, false
}

func (tg TeamGame) Completed() bool {
	return tg.TeamScore != 0 && tg.OpponentScore != 0
}
