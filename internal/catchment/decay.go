package catchment

import (
	"math"

	"github.com/sells-group/catchment-cli/internal/model"
)

var (
	expHalf  = math.Exp(-0.5)
	decayDen = 1 - expHalf
)

// GaussianWeight returns the normalized Gaussian decay weight of distance d
// within threshold t: 1 at d=0, 0 at d=t.
func GaussianWeight(d, t float64) (float64, error) {
	if err := checkThreshold(t); err != nil {
		return 0, err
	}
	return gaussian(d, t), nil
}

// Weigh attaches a decay weight to every record. Records are expected to have
// passed Filter with the same threshold.
func Weigh(records []model.ODRecord, t float64) ([]model.WeightedOD, error) {
	if err := checkThreshold(t); err != nil {
		return nil, err
	}
	out := make([]model.WeightedOD, len(records))
	for i, r := range records {
		out[i] = model.WeightedOD{ODRecord: r, Weight: gaussian(r.Distance, t)}
	}
	return out, nil
}

func checkThreshold(t float64) error {
	if !(t > 0) || math.IsInf(t, 1) {
		return &DomainError{Threshold: t}
	}
	return nil
}

func gaussian(d, t float64) float64 {
	r := d / t
	w := (math.Exp(-0.5*r*r) - expHalf) / decayDen
	// Rounding can push the endpoints a hair outside [0,1].
	switch {
	case w < 0:
		return 0
	case w > 1:
		return 1
	}
	return w
}
