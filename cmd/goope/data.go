package main

import (
	"encoding/json"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/goope/ope"
	"github.com/YuminosukeSato/goope/pkg/errors"
)

// feedbackDocument is the on-disk JSON layout of a logged dataset together
// with the evaluation policy.
type feedbackDocument struct {
	NRounds       int           `json:"n_rounds"`
	NActions      int           `json:"n_actions"`
	Context       [][]float64   `json:"context"`
	Action        []int         `json:"action"`
	Reward        []float64     `json:"reward"`
	Position      []int         `json:"position,omitempty"`
	PScore        []float64     `json:"pscore,omitempty"`
	ActionEmbed   [][]float64   `json:"action_embed"`
	PiB           [][][]float64 `json:"pi_b"`
	PEA           [][][]float64 `json:"p_e_a"`
	ActionContext [][]float64   `json:"action_context,omitempty"`
	ActionDist    [][][]float64 `json:"action_dist"`
}

// loadFeedback reads path and returns the bandit feedback and the
// evaluation policy action distribution.
func loadFeedback(path string) (*ope.BanditFeedback, *ope.Tensor3, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read data")
	}
	var doc feedbackDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, errors.Wrap(err, "parse data")
	}
	return doc.decode()
}

func (d *feedbackDocument) decode() (*ope.BanditFeedback, *ope.Tensor3, error) {
	fb := &ope.BanditFeedback{
		NRounds:  d.NRounds,
		NActions: d.NActions,
		Action:   d.Action,
		Reward:   d.Reward,
		Position: d.Position,
		PScore:   d.PScore,
	}
	var err error
	if fb.Context, err = toDense("context", d.Context); err != nil {
		return nil, nil, err
	}
	if fb.ActionEmbed, err = toDense("action_embed", d.ActionEmbed); err != nil {
		return nil, nil, err
	}
	if len(d.ActionContext) > 0 {
		if fb.ActionContext, err = toDense("action_context", d.ActionContext); err != nil {
			return nil, nil, err
		}
	}
	if fb.PiB, err = toTensor("pi_b", d.PiB); err != nil {
		return nil, nil, err
	}
	if fb.PEA, err = toTensor("p_e_a", d.PEA); err != nil {
		return nil, nil, err
	}
	dist, err := toTensor("action_dist", d.ActionDist)
	if err != nil {
		return nil, nil, err
	}
	return fb, dist, nil
}

func toDense(name string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.NewValidationError(name, "must be a non-empty matrix", nil)
	}
	r, c := len(rows), len(rows[0])
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, errors.NewInputShapeError("decode", name, []int{r, c}, []int{i, len(row)})
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}

func toTensor(name string, blocks [][][]float64) (*ope.Tensor3, error) {
	if len(blocks) == 0 || len(blocks[0]) == 0 || len(blocks[0][0]) == 0 {
		return nil, errors.NewValidationError(name, "must be a non-empty 3-d array", nil)
	}
	d0, d1, d2 := len(blocks), len(blocks[0]), len(blocks[0][0])
	data := make([]float64, 0, d0*d1*d2)
	for i, block := range blocks {
		if len(block) != d1 {
			return nil, errors.NewInputShapeError("decode", name, []int{d0, d1, d2}, []int{i, len(block)})
		}
		for j, row := range block {
			if len(row) != d2 {
				return nil, errors.NewInputShapeError("decode", name, []int{d0, d1, d2}, []int{i, j, len(row)})
			}
			data = append(data, row...)
		}
	}
	return ope.NewTensor3(d0, d1, d2, data), nil
}
