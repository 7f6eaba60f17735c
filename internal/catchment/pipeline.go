package catchment

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/catchment-cli/internal/model"
)

// Input bundles the tables and distance threshold for one threshold run.
type Input struct {
	Label      string
	Threshold  float64
	OD         []model.ODRecord
	Facilities []model.Facility
	Population []model.Population
}

// Stats summarises one threshold run.
type Stats struct {
	InputRows           int     `json:"input_rows"`
	RetainedRows        int     `json:"retained_rows"`
	UnmatchedOrigins    int     `json:"unmatched_origins"`
	UnmatchedFacilities int     `json:"unmatched_facilities"`
	UndefinedRatios     int     `json:"undefined_ratios"`
	WeightSum           float64 `json:"weight_sum"`
	WeightMin           float64 `json:"weight_min"`
	WeightMax           float64 `json:"weight_max"`
}

// Result is the output of one threshold run.
type Result struct {
	Label       string                   `json:"label"`
	Threshold   float64                  `json:"threshold"`
	Facilities  []model.FacilityDemand   `json:"facilities"`
	Corrections []model.OriginCorrection `json:"corrections"`
	Stats       Stats                    `json:"stats"`
}

// Run executes filter, decay, demand aggregation and supply correction for a
// single threshold. Population origins with no surviving OD row receive a zero
// correction. When nothing survives the filter the correction table is empty.
func Run(ctx context.Context, in Input) (*Result, error) {
	if err := checkThreshold(in.Threshold); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "catchment: run cancelled")
	}

	log := zap.L().With(
		zap.String("component", "catchment"),
		zap.String("label", in.Label),
		zap.Float64("threshold", in.Threshold),
	)

	res := &Result{
		Label:     in.Label,
		Threshold: in.Threshold,
		Stats:     Stats{InputRows: len(in.OD)},
	}

	retained := Filter(in.OD, in.Threshold)
	res.Stats.RetainedRows = len(retained)
	if len(retained) == 0 {
		log.Info("no OD rows within threshold", zap.Int("input_rows", len(in.OD)))
		res.Facilities = []model.FacilityDemand{}
		res.Corrections = []model.OriginCorrection{}
		return res, nil
	}

	weighted, err := Weigh(retained, in.Threshold)
	if err != nil {
		return nil, err
	}
	res.Stats.WeightSum, res.Stats.WeightMin, res.Stats.WeightMax = weightSummary(weighted)

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "catchment: run cancelled")
	}

	pop := PopulationIndex(in.Population)
	demand := AggregateDemand(weighted, pop)
	corr := Correct(weighted, demand, FacilityIndex(in.Facilities))

	res.Stats.UnmatchedOrigins = demand.UnmatchedOrigins
	res.Stats.UnmatchedFacilities = corr.UnmatchedFacilities
	res.Stats.UndefinedRatios = corr.UndefinedRatios
	res.Facilities = corr.Facilities

	for id := range pop {
		if _, ok := corr.Origins[id]; !ok {
			corr.Origins[id] = &model.OriginCorrection{OriginID: id}
		}
	}
	res.Corrections = make([]model.OriginCorrection, 0, len(corr.Origins))
	for _, oc := range corr.Origins {
		res.Corrections = append(res.Corrections, *oc)
	}
	sortCorrections(res.Corrections)

	if res.Stats.UnmatchedOrigins > 0 || res.Stats.UnmatchedFacilities > 0 {
		log.Warn("OD rows without auxiliary match",
			zap.Int("unmatched_origins", res.Stats.UnmatchedOrigins),
			zap.Int("unmatched_facilities", res.Stats.UnmatchedFacilities),
		)
	}
	if res.Stats.UndefinedRatios > 0 {
		log.Warn("facilities with zero demand", zap.Int("undefined_ratios", res.Stats.UndefinedRatios))
	}
	log.Debug("threshold complete",
		zap.Int("retained_rows", res.Stats.RetainedRows),
		zap.Int("facilities", len(res.Facilities)),
		zap.Int("origins", len(res.Corrections)),
	)

	return res, nil
}

func weightSummary(weighted []model.WeightedOD) (sum, lo, hi float64) {
	ws := make([]float64, len(weighted))
	for i, w := range weighted {
		ws[i] = w.Weight
	}
	return floats.Sum(ws), floats.Min(ws), floats.Max(ws)
}
