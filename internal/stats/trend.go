package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/listeria.report/internal/samples"
)

// Point is one (x, y) observation of a trend series.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// QuadraticFit holds y = A·x² + B·x + C and the fitted value at each input x.
type QuadraticFit struct {
	A      float64   `json:"a"`
	B      float64   `json:"b"`
	C      float64   `json:"c"`
	Fitted []float64 `json:"fitted"`
}

// At evaluates the fitted polynomial.
func (q QuadraticFit) At(x float64) float64 {
	return (q.A*x+q.B)*x + q.C
}

// InsufficientDataError is returned when a quadratic fit has fewer than three
// distinct x values to work with.
type InsufficientDataError struct {
	Distinct int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("quadratic trend needs at least 3 distinct x values, have %d", e.Distinct)
}

// FitQuadratic computes the degree-2 least-squares fit of points.
func FitQuadratic(points []Point) (QuadraticFit, error) {
	distinct := make(map[float64]struct{}, len(points))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		distinct[p.X] = struct{}{}
		lo = math.Min(lo, p.X)
		hi = math.Max(hi, p.X)
	}
	if len(distinct) < 3 {
		return QuadraticFit{}, &InsufficientDataError{Distinct: len(distinct)}
	}

	// Date ordinals are ~7e5; fitting against them directly makes the
	// Vandermonde matrix badly conditioned, so fit in u = (x-mid)/half.
	mid := (lo + hi) / 2
	half := (hi - lo) / 2

	n := len(points)
	a := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)
	for i, p := range points {
		u := (p.X - mid) / half
		a.Set(i, 0, u*u)
		a.Set(i, 1, u)
		a.Set(i, 2, 1)
		y.SetVec(i, p.Y)
	}

	var coef mat.VecDense
	if err := coef.SolveVec(a, y); err != nil {
		return QuadraticFit{}, fmt.Errorf("failed to solve quadratic fit: %w", err)
	}
	p2, p1, p0 := coef.AtVec(0), coef.AtVec(1), coef.AtVec(2)

	fit := QuadraticFit{
		A:      p2 / (half * half),
		B:      p1/half - 2*mid*p2/(half*half),
		C:      p2*mid*mid/(half*half) - p1*mid/half + p0,
		Fitted: make([]float64, n),
	}
	for i, p := range points {
		u := (p.X - mid) / half
		fit.Fitted[i] = (p2*u+p1)*u + p0
	}
	return fit, nil
}

// WeekTrendPoints maps week summaries onto (week number, detection rate).
func WeekTrendPoints(summaries []Summary) []Point {
	out := make([]Point, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, Point{X: float64(s.Week), Y: s.DetectionRatePercent})
	}
	return out
}

// DateTrendPoints maps date summaries onto (date ordinal, detection rate).
// Summaries without a valid date are dropped.
func DateTrendPoints(summaries []Summary) []Point {
	out := make([]Point, 0, len(summaries))
	for _, s := range summaries {
		if !s.Date.Valid() {
			continue
		}
		out = append(out, Point{X: float64(DateOrdinal(s.Date)), Y: s.DetectionRatePercent})
	}
	return out
}

// unixEpochOrdinal is the proleptic Gregorian ordinal of 1970-01-01.
const unixEpochOrdinal = 719163

// DateOrdinal returns the proleptic Gregorian day number of d, with
// 0001-01-01 as day 1.
func DateOrdinal(d samples.Date) int {
	secs := d.Time().Unix()
	days := secs / 86400
	if secs%86400 < 0 {
		days--
	}
	return int(days) + unixEpochOrdinal
}
