package catchment

import (
	"sort"
	"strconv"

	"github.com/sells-group/catchment-cli/internal/model"
)

// LessID orders identifiers numerically when both parse as numbers and
// lexically otherwise, so "2" sorts before "10".
func LessID(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		if fa != fb {
			return fa < fb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

// SortIDs sorts identifiers in place using the same order as every exported table.
func SortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return LessID(ids[i], ids[j]) })
}

func sortFacilities(fs []model.FacilityDemand) {
	sort.Slice(fs, func(i, j int) bool { return LessID(fs[i].FacilityID, fs[j].FacilityID) })
}

func sortCorrections(cs []model.OriginCorrection) {
	sort.Slice(cs, func(i, j int) bool { return LessID(cs[i].OriginID, cs[j].OriginID) })
}
