package metrics

import (
	"math"

	"github.com/YuminosukeSato/goope/pkg/errors"
)

// BinaryLogLoss は二値交差エントロピーを計算する。確率は [eps, 1-eps] に
// クリップされる。weights が nil の場合は均等重み。
func BinaryLogLoss(yTrue, prob, weights []float64) (float64, error) {
	const eps = 1e-15
	n := len(yTrue)
	if n == 0 {
		return 0, errors.NewValueError("BinaryLogLoss", "empty vector")
	}
	if len(prob) != n {
		return 0, errors.NewDimensionError("BinaryLogLoss", n, len(prob), 0)
	}
	if weights != nil && len(weights) != n {
		return 0, errors.NewDimensionError("BinaryLogLoss", n, len(weights), 0)
	}

	var loss, wsum float64
	for i := 0; i < n; i++ {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		p := errors.ClipValue(prob[i], eps, 1-eps)
		loss -= w * (yTrue[i]*math.Log(p) + (1-yTrue[i])*math.Log(1-p))
		wsum += w
	}
	if wsum == 0 {
		return 0, errors.NewValueError("BinaryLogLoss", "weights sum to zero")
	}
	return loss / wsum, nil
}
