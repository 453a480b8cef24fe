package ope

import (
	"strings"

	"github.com/YuminosukeSato/goope/pkg/errors"
)

// EstimatorKind tags the estimator variants a battery can hold.
type EstimatorKind int

const (
	KindIPS EstimatorKind = iota
	KindSNIPS
	KindDM
	KindDR
	KindSNDR
	KindSwitchDR
	KindDRos
	KindSubGaussianDR
	KindMIPS
	KindMDR
)

var kindNames = map[EstimatorKind]string{
	KindIPS:           "ipw",
	KindSNIPS:         "snipw",
	KindDM:            "dm",
	KindDR:            "dr",
	KindSNDR:          "sndr",
	KindSwitchDR:      "switch-dr",
	KindDRos:          "dr-os",
	KindSubGaussianDR: "sg-dr",
	KindMIPS:          "mips",
	KindMDR:           "mdr",
}

func (k EstimatorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseEstimatorKind accepts the kind names and a few common aliases
// ("ips", "snips").
func ParseEstimatorKind(s string) (EstimatorKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "ips":
		return KindIPS, nil
	case "snips":
		return KindSNIPS, nil
	case "switchdr", "switch_dr":
		return KindSwitchDR, nil
	case "dros", "dr_os":
		return KindDRos, nil
	case "sgdr", "sg_dr", "subgaussiandr":
		return KindSubGaussianDR, nil
	}
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, errors.NewValidationError("kind", "unknown estimator kind", s)
}

// EstimatorSpec is a flat, serializable description of one estimator.
type EstimatorSpec struct {
	Kind    EstimatorKind
	Name    string
	Lambda  float64
	Lambdas []float64
	// EmbeddingSelection and MinEmbDim apply to MIPS and MDR.
	EmbeddingSelection EmbeddingSelection
	MinEmbDim          int
}

// NewEstimator builds the estimator described by spec.
func NewEstimator(spec EstimatorSpec) (Estimator, error) {
	if spec.Lambda < 0 {
		return nil, errors.NewValidationError("lambda", "must be non-negative", spec.Lambda)
	}
	for _, l := range spec.Lambdas {
		if l < 0 {
			return nil, errors.NewValidationError("lambdas", "must be non-negative", l)
		}
	}
	mips := MIPS{Name: spec.Name, EmbeddingSelection: spec.EmbeddingSelection, MinEmbDim: spec.MinEmbDim}
	switch spec.Kind {
	case KindIPS:
		return IPS{Name: spec.Name, Clip: spec.Lambda}, nil
	case KindSNIPS:
		return SNIPS{Name: spec.Name}, nil
	case KindDM:
		return DM{Name: spec.Name}, nil
	case KindDR:
		return DR{Name: spec.Name, Clip: spec.Lambda}, nil
	case KindSNDR:
		return SNDR{Name: spec.Name}, nil
	case KindSwitchDR:
		return SwitchDR{Name: spec.Name, Lambda: spec.Lambda, Lambdas: spec.Lambdas}, nil
	case KindDRos:
		return DRos{Name: spec.Name, Lambda: spec.Lambda, Lambdas: spec.Lambdas}, nil
	case KindSubGaussianDR:
		if spec.Lambda > 1 {
			return nil, errors.NewValidationError("lambda", "must be in [0, 1] for sg-dr", spec.Lambda)
		}
		return SubGaussianDR{Name: spec.Name, Lambda: spec.Lambda, Lambdas: spec.Lambdas}, nil
	case KindMIPS:
		return mips, nil
	case KindMDR:
		mips.Name = ""
		return MDR{Name: spec.Name, MIPS: mips}, nil
	}
	return nil, errors.NewValidationError("kind", "unknown estimator kind", int(spec.Kind))
}

// DefaultBattery returns the estimators evaluated before MIPS and MDR are
// appended: IPS, DR, DM and MIPS, or with embedSelection the MIPS variants
// using all dimensions and greedy SLOPE pruning down to five dimensions.
func DefaultBattery(embedSelection bool) []Estimator {
	if embedSelection {
		return []Estimator{
			MIPS{Name: "MIPS (true)"},
			MIPS{Name: "MIPS (slope)", EmbeddingSelection: EmbedSelectGreedy, MinEmbDim: 5},
		}
	}
	return []Estimator{
		IPS{Name: "IPS"},
		DR{Name: "DR"},
		DM{Name: "DM"},
		MIPS{Name: "MIPS"},
	}
}
