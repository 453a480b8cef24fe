package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/goope/core/model"
	"github.com/YuminosukeSato/goope/pkg/errors"
)

// OneHotEncoder encodes integer-valued categorical columns as indicator
// columns. Each input column j expands to len(Categories[j]) outputs, in
// ascending category order.
type OneHotEncoder struct {
	state *model.StateManager

	// Categories holds the sorted category values per input column.
	Categories [][]float64

	// IgnoreUnknown encodes unseen categories as all-zero rows instead of
	// failing.
	IgnoreUnknown bool

	fixed bool
	index []map[float64]int
}

// NewOneHotEncoder returns an encoder that learns categories in Fit.
func NewOneHotEncoder() *OneHotEncoder {
	return &OneHotEncoder{state: model.NewStateManager()}
}

// NewOneHotEncoderWithCategories returns an encoder with fixed categories;
// Fit only checks the column count.
func NewOneHotEncoderWithCategories(categories [][]float64) *OneHotEncoder {
	e := &OneHotEncoder{state: model.NewStateManager(), fixed: true}
	e.Categories = make([][]float64, len(categories))
	for j, c := range categories {
		e.Categories[j] = append([]float64(nil), c...)
		sort.Float64s(e.Categories[j])
	}
	e.buildIndex()
	e.state.MarkFitted(len(categories), 0)
	return e
}

// IdentityActionContext returns the default (nActions, nActions) one-hot
// action representation.
func IdentityActionContext(nActions int) *mat.Dense {
	cats := make([]float64, nActions)
	col := mat.NewDense(nActions, 1, nil)
	for a := 0; a < nActions; a++ {
		cats[a] = float64(a)
		col.Set(a, 0, float64(a))
	}
	enc := NewOneHotEncoderWithCategories([][]float64{cats})
	out, err := enc.Transform(col)
	if err != nil {
		// categories cover every row by construction
		panic(err)
	}
	return out.(*mat.Dense)
}

// Fit learns the sorted unique values of each column.
func (e *OneHotEncoder) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	if e.fixed {
		return e.state.CheckFeatures("OneHotEncoder.Fit", c)
	}

	e.Categories = make([][]float64, c)
	for j := 0; j < c; j++ {
		seen := make(map[float64]struct{})
		for i := 0; i < r; i++ {
			v := X.At(i, j)
			if v != math.Trunc(v) {
				return errors.NewValidationError("X", fmt.Sprintf("column %d must be integer-valued", j), v)
			}
			seen[v] = struct{}{}
		}
		cats := make([]float64, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Float64s(cats)
		e.Categories[j] = cats
	}
	e.buildIndex()
	e.state.MarkFitted(c, r)
	return nil
}

func (e *OneHotEncoder) buildIndex() {
	e.index = make([]map[float64]int, len(e.Categories))
	for j, cats := range e.Categories {
		e.index[j] = make(map[float64]int, len(cats))
		for k, v := range cats {
			e.index[j][v] = k
		}
	}
}

// NOutputs returns the width of the encoded matrix.
func (e *OneHotEncoder) NOutputs() int {
	n := 0
	for _, c := range e.Categories {
		n += len(c)
	}
	return n
}

// Transform encodes X.
func (e *OneHotEncoder) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := e.state.RequireFitted("OneHotEncoder", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := e.state.CheckFeatures("OneHotEncoder.Transform", c); err != nil {
		return nil, err
	}

	out := mat.NewDense(r, e.NOutputs(), nil)
	offset := 0
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			v := X.At(i, j)
			k, ok := e.index[j][v]
			if !ok {
				if e.IgnoreUnknown {
					continue
				}
				return nil, errors.NewValueError("OneHotEncoder.Transform",
					fmt.Sprintf("unknown category %v in column %d", v, j))
			}
			out.Set(i, offset+k, 1)
		}
		offset += len(e.Categories[j])
	}
	return out, nil
}

// FitTransform はFitとTransformを同時に実行する
func (e *OneHotEncoder) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := e.Fit(X); err != nil {
		return nil, err
	}
	return e.Transform(X)
}

var _ model.Transformer = (*OneHotEncoder)(nil)
