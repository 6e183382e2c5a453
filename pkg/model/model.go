// Package model defines the inference interface of the processing stage and
// a dense softmax classifier that implements it.
package model

// Model maps a normalized input vector to a score vector.
type Model interface {
	Predict(input []float32) ([]float32, error)
}

// Func adapts an ordinary function to Model.
type Func func(input []float32) ([]float32, error)

// Predict calls f(input).
func (f Func) Predict(input []float32) ([]float32, error) {
	return f(input)
}
