package stats

import (
	"sort"

	"github.com/banshee-data/listeria.report/internal/samples"
)

// DepartmentSeries is one department's detection rate per pivot date.
type DepartmentSeries struct {
	Department string    `json:"department"`
	Rates      []float64 `json:"rates"`
}

// DepartmentPivot is the date x department rate matrix behind the
// department trend chart.
type DepartmentPivot struct {
	Dates  []samples.Date     `json:"dates"`
	Series []DepartmentSeries `json:"series"`
}

// PivotDepartments turns ByDateDepartment summaries into one rate series per
// department. The Unmapped department is dropped and missing (date,
// department) cells are 0.
func PivotDepartments(summaries []Summary) DepartmentPivot {
	dateIdx := make(map[samples.Date]int)
	var dates []samples.Date
	depts := make(map[string]struct{})
	for _, s := range summaries {
		if s.Department == samples.DeptUnmapped || !s.Date.Valid() {
			continue
		}
		if _, ok := dateIdx[s.Date]; !ok {
			dateIdx[s.Date] = 0
			dates = append(dates, s.Date)
		}
		depts[s.Department] = struct{}{}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	for i, d := range dates {
		dateIdx[d] = i
	}

	names := make([]string, 0, len(depts))
	for d := range depts {
		names = append(names, d)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := samples.DepartmentRank(names[i]), samples.DepartmentRank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})

	pivot := DepartmentPivot{Dates: dates, Series: make([]DepartmentSeries, len(names))}
	seriesIdx := make(map[string]int, len(names))
	for i, name := range names {
		pivot.Series[i] = DepartmentSeries{Department: name, Rates: make([]float64, len(dates))}
		seriesIdx[name] = i
	}
	for _, s := range summaries {
		i, ok := seriesIdx[s.Department]
		if !ok || !s.Date.Valid() {
			continue
		}
		pivot.Series[i].Rates[dateIdx[s.Date]] = s.DetectionRatePercent
	}
	return pivot
}
