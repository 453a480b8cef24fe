package ope

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Tensor3 is a dense row-major rank-3 float64 tensor. It stores action
// distributions (n_rounds, n_actions, len_list), reward predictions of the
// same shape, and transition kernels (n_actions, n_values, d_e).
type Tensor3 struct {
	d0, d1, d2 int
	data       []float64
}

// NewTensor3 creates a tensor with the given dimensions. data is used as
// backing storage when non-nil and must have length d0*d1*d2.
func NewTensor3(d0, d1, d2 int, data []float64) *Tensor3 {
	if d0 < 0 || d1 < 0 || d2 < 0 {
		panic(fmt.Sprintf("ope: negative tensor dimension (%d, %d, %d)", d0, d1, d2))
	}
	if data == nil {
		data = make([]float64, d0*d1*d2)
	} else if len(data) != d0*d1*d2 {
		panic(fmt.Sprintf("ope: tensor data length %d does not match shape (%d, %d, %d)", len(data), d0, d1, d2))
	}
	return &Tensor3{d0: d0, d1: d1, d2: d2, data: data}
}

// Dims returns the tensor shape.
func (t *Tensor3) Dims() (int, int, int) { return t.d0, t.d1, t.d2 }

// Shape returns the tensor shape as a slice, for error messages.
func (t *Tensor3) Shape() []int { return []int{t.d0, t.d1, t.d2} }

func (t *Tensor3) offset(i, j, k int) int {
	if uint(i) >= uint(t.d0) || uint(j) >= uint(t.d1) || uint(k) >= uint(t.d2) {
		panic(fmt.Sprintf("ope: index (%d, %d, %d) out of range for shape (%d, %d, %d)", i, j, k, t.d0, t.d1, t.d2))
	}
	return (i*t.d1+j)*t.d2 + k
}

// At returns the element at (i, j, k).
func (t *Tensor3) At(i, j, k int) float64 { return t.data[t.offset(i, j, k)] }

// Set sets the element at (i, j, k).
func (t *Tensor3) Set(i, j, k int, v float64) { t.data[t.offset(i, j, k)] = v }

// Fiber copies t[i, :, k] into dst (allocated when nil) and returns it.
func (t *Tensor3) Fiber(dst []float64, i, k int) []float64 {
	if dst == nil {
		dst = make([]float64, t.d1)
	}
	for j := 0; j < t.d1; j++ {
		dst[j] = t.data[t.offset(i, j, k)]
	}
	return dst
}

// SetRow copies src[i, :, :] into t[row, :, :]. Both tensors must share
// the trailing dimensions.
func (t *Tensor3) SetRow(row int, src *Tensor3, i int) {
	n := t.d1 * t.d2
	copy(t.data[row*n:(row+1)*n], src.data[i*n:(i+1)*n])
}

// RawData returns the backing slice.
func (t *Tensor3) RawData() []float64 { return t.data }

// Clone returns a deep copy.
func (t *Tensor3) Clone() *Tensor3 {
	return NewTensor3(t.d0, t.d1, t.d2, append([]float64(nil), t.data...))
}

// SelectRows returns a new tensor holding t[idx, :, :].
func (t *Tensor3) SelectRows(idx []int) *Tensor3 {
	out := NewTensor3(len(idx), t.d1, t.d2, nil)
	for r, i := range idx {
		out.SetRow(r, t, i)
	}
	return out
}

// SelectLast returns a new tensor holding t[:, :, dims].
func (t *Tensor3) SelectLast(dims []int) *Tensor3 {
	out := NewTensor3(t.d0, t.d1, len(dims), nil)
	for i := 0; i < t.d0; i++ {
		for j := 0; j < t.d1; j++ {
			for k, d := range dims {
				out.Set(i, j, k, t.At(i, j, d))
			}
		}
	}
	return out
}

// EqualApprox reports whether both tensors have the same shape and all
// elements agree within tol.
func (t *Tensor3) EqualApprox(o *Tensor3, tol float64) bool {
	if t.d0 != o.d0 || t.d1 != o.d1 || t.d2 != o.d2 {
		return false
	}
	return floats.EqualApprox(t.data, o.data, tol)
}
