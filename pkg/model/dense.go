package model

import (
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Weights is the on-disk form of a Dense model.
type Weights struct {
	Inputs  int         `yaml:"inputs"`
	Classes int         `yaml:"classes"`
	Weights [][]float64 `yaml:"weights"` // Classes rows of Inputs columns
	Bias    []float64   `yaml:"bias"`    // optional, Classes entries
}

// Dense is a single fully connected layer followed by softmax.
type Dense struct {
	w *mat.Dense
	b *mat.VecDense
}

var _ Model = (*Dense)(nil)

// NewZero returns a Dense model with all weights zero. It scores every class
// equally and stands in when no trained weights are configured.
func NewZero(inputs, classes int) (*Dense, error) {
	if inputs < 1 || classes < 1 {
		return nil, fmt.Errorf("invalid model shape %dx%d", classes, inputs)
	}
	return &Dense{
		w: mat.NewDense(classes, inputs, nil),
		b: mat.NewVecDense(classes, nil),
	}, nil
}

// NewDense builds a model from w.
func NewDense(w Weights) (*Dense, error) {
	if w.Inputs < 1 || w.Classes < 1 {
		return nil, fmt.Errorf("invalid model shape %dx%d", w.Classes, w.Inputs)
	}
	if len(w.Weights) != w.Classes {
		return nil, fmt.Errorf("expected %d weight rows, got %d", w.Classes, len(w.Weights))
	}

	data := make([]float64, 0, w.Classes*w.Inputs)
	for i, row := range w.Weights {
		if len(row) != w.Inputs {
			return nil, fmt.Errorf("weight row %d: expected %d columns, got %d", i, w.Inputs, len(row))
		}
		data = append(data, row...)
	}

	bias := make([]float64, w.Classes)
	if w.Bias != nil {
		if len(w.Bias) != w.Classes {
			return nil, fmt.Errorf("expected %d bias entries, got %d", w.Classes, len(w.Bias))
		}
		copy(bias, w.Bias)
	}

	return &Dense{
		w: mat.NewDense(w.Classes, w.Inputs, data),
		b: mat.NewVecDense(w.Classes, bias),
	}, nil
}

// LoadDense reads YAML weights from path.
func LoadDense(path string) (*Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model weights: %w", err)
	}
	var w Weights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse model weights: %w", err)
	}
	return NewDense(w)
}

// Inputs returns the expected input length.
func (d *Dense) Inputs() int {
	_, c := d.w.Dims()
	return c
}

// Classes returns the score vector length.
func (d *Dense) Classes() int {
	r, _ := d.w.Dims()
	return r
}

// Predict returns softmax(W·input + b).
func (d *Dense) Predict(input []float32) ([]float32, error) {
	if len(input) != d.Inputs() {
		return nil, fmt.Errorf("expected %d inputs, got %d", d.Inputs(), len(input))
	}

	x := mat.NewVecDense(len(input), nil)
	for i, v := range input {
		x.SetVec(i, float64(v))
	}

	var z mat.VecDense
	z.MulVec(d.w, x)
	z.AddVec(&z, d.b)

	return softmax(z.RawVector().Data), nil
}

func softmax(z []float64) []float32 {
	peak := math.Inf(-1)
	for _, v := range z {
		peak = math.Max(peak, v)
	}

	var sum float64
	exp := make([]float64, len(z))
	for i, v := range z {
		exp[i] = math.Exp(v - peak)
		sum += exp[i]
	}

	out := make([]float32, len(z))
	for i := range exp {
		out[i] = float32(exp[i] / sum)
	}
	return out
}
