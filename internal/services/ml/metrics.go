package ml

import "math"

func MSE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	s := 0.0
	for i := range actual {
		d := actual[i] - predicted[i]
		s += d * d
	}
	return s / float64(len(actual))
}

func RMSE(actual, predicted []float64) float64 {
	return math.Sqrt(MSE(actual, predicted))
}

func MAE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	s := 0.0
	for i := range actual {
		s += math.Abs(actual[i] - predicted[i])
	}
	return s / float64(len(actual))
}

// R2 is the coefficient of determination. A constant actual series gives 0.
func R2(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	mean := 0.0
	for _, v := range actual {
		mean += v
	}
	mean /= float64(len(actual))

	var ssRes, ssTot float64
	for i, v := range actual {
		ssRes += (v - predicted[i]) * (v - predicted[i])
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// Flatten concatenates the columns of a row-major matrix.
func Flatten(m [][]float64) []float64 {
	var out []float64
	for _, row := range m {
		out = append(out, row...)
	}
	return out
}

// RowSums adds up the targets of each row.
func RowSums(m [][]float64) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		for _, v := range row {
			out[i] += v
		}
	}
	return out
}

// Score reports mse, rmse, mae and r2 over every target value.
func Score(actual, predicted [][]float64) map[string]float64 {
	a, p := Flatten(actual), Flatten(predicted)
	return map[string]float64{
		"mse":  MSE(a, p),
		"rmse": RMSE(a, p),
		"mae":  MAE(a, p),
		"r2":   R2(a, p),
	}
}
