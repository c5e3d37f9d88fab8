package samples

// Department labels.
const (
	DeptFresh          = "Fresh"
	DeptSmokingPacking = "Smoking + Packing"
	DeptUnmapped       = "Unmapped"
)

// Departments lists the department labels in process-flow order.
var Departments = []string{DeptFresh, DeptSmokingPacking, DeptUnmapped}

// FreshAreas are the sub-areas of the fresh fish department, in process-flow
// order.
var FreshAreas = []string{"PRODUCTION", "DEBONING", "DESKINNING", "INJECTOR", "WASHER"}

// SmokingPackingAreas are the sub-areas of the smoking and packing
// department, in process-flow order.
var SmokingPackingAreas = []string{"ENTRANCE", "LKPW1", "LKPW2", "CFS", "OTHER"}

// UnmappedArea is the sub-area label used for records with no sub-area.
const UnmappedArea = "Unmapped"

// areaTaxonomy drives both the department roll-up and the sub-area sort
// order. Extend it here rather than in the aggregation code.
var areaTaxonomy = []struct {
	department string
	areas      []string
}{
	{DeptFresh, FreshAreas},
	{DeptSmokingPacking, SmokingPackingAreas},
}

var (
	areaDepartment = map[string]string{}
	areaRank       = map[string]int{}
	deptRank       = map[string]int{}
)

func init() {
	rank := 0
	for _, entry := range areaTaxonomy {
		for _, area := range entry.areas {
			if _, dup := areaRank[area]; dup {
				continue
			}
			areaDepartment[area] = entry.department
			areaRank[area] = rank
			rank++
		}
	}
	for i, d := range Departments {
		deptRank[d] = i
	}
}

// DepartmentFor maps a sub-area onto its department. It is total: unknown
// and empty sub-areas map to DeptUnmapped.
func DepartmentFor(subArea string) string {
	if d, ok := areaDepartment[subArea]; ok {
		return d
	}
	return DeptUnmapped
}

// SubAreaRank returns the sort rank of a sub-area and whether it is part of
// the named taxonomy.
func SubAreaRank(subArea string) (int, bool) {
	r, ok := areaRank[subArea]
	return r, ok
}

// DepartmentRank returns the sort rank of a department label. Unknown labels
// sort after all known ones.
func DepartmentRank(dept string) int {
	if r, ok := deptRank[dept]; ok {
		return r
	}
	return len(Departments)
}

// FreshSmokedForSlug maps the facility-map URL slugs onto fresh_smoked values.
func FreshSmokedForSlug(slug string) (string, bool) {
	switch slug {
	case "fresh":
		return DeptFresh, true
	case "smoked":
		return DeptSmokingPacking, true
	}
	return "", false
}
