package features

import (
    "fmt"
    "math"
)

// RollingKey names the trailing-mean column for a window and a per-team column.
func RollingKey(window int, column string) string {
    return fmt.Sprintf("avg_last_%d_%s", window, column)
}

// TrailingMean returns the mean of the last window values of history, or NaN
// when history is shorter than window.
func TrailingMean(history []float64, window int) float64 {
    if window <= 0 || len(history) < window {
        return math.NaN()
    }
    sum := 0.0
    for _, v := range history[len(history)-window:] {
        sum += v
    }
    return sum / float64(window)
}

// rollingState keeps the completed-game history of one team.
type rollingState struct {
    history map[string][]float64
}

func newRollingState() *rollingState {
    return &rollingState{history: make(map[string][]float64)}
}

// means computes every window/column mean from strictly earlier games.
func (s *rollingState) means(windows []int, columns []string) map[string]float64 {
    out := make(map[string]float64, len(windows)*len(columns))
    for _, w := range windows {
        for _, c := range columns {
            out[RollingKey(w, c)] = TrailingMean(s.history[c], w)
        }
    }
    return out
}

func (s *rollingState) push(column string, v float64) {
    s.history[column] = append(s.history[column], v)
}
