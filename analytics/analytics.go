package analytics

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"crimewatch/crime"
	"crimewatch/dataset"
	"crimewatch/pipeline"
)

// Dataset is the incident table behind the dashboard, loaded once.
type Dataset struct {
	records  []crime.Record
	loadedAt time.Time
}

// LoadDataset fetches and cleans the dashboard table. The result is read-only.
func LoadDataset(ctx context.Context, source dataset.Source, logger *zap.Logger) (*Dataset, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, err := source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dashboard data: %w", err)
	}
	records, issues := pipeline.NewDashboardCleaner(logger).Clean(raw)
	logger.Info("dashboard data loaded",
		zap.Int("records", len(records)),
		zap.Int("rejected", len(issues)))
	return NewDataset(records), nil
}

func NewDataset(records []crime.Record) *Dataset {
	return &Dataset{records: records, loadedAt: time.Now()}
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

func (d *Dataset) LoadedAt() time.Time {
	return d.loadedAt
}

// Select returns the records matching f. The returned slice must not be modified.
func (d *Dataset) Select(f Filter) []crime.Record {
	if d == nil {
		return nil
	}
	return f.Apply(d.records)
}

// Filter narrows records by column value. An empty list places no constraint.
type Filter struct {
	Districts     []string `json:"districts,omitempty"`
	OffenseGroups []string `json:"offense_groups,omitempty"`
	Years         []int    `json:"years,omitempty"`
	Months        []int    `json:"months,omitempty"`
}

func (f Filter) IsZero() bool {
	return len(f.Districts) == 0 && len(f.OffenseGroups) == 0 && len(f.Years) == 0 && len(f.Months) == 0
}

func (f Filter) Apply(records []crime.Record) []crime.Record {
	if f.IsZero() {
		return records
	}
	out := make([]crime.Record, 0, len(records))
	for _, r := range records {
		if f.match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f Filter) match(r crime.Record) bool {
	if len(f.Districts) > 0 && !slices.Contains(f.Districts, r.District) {
		return false
	}
	if len(f.OffenseGroups) > 0 && !slices.Contains(f.OffenseGroups, r.OffenseCodeGroup) {
		return false
	}
	if len(f.Years) > 0 && (r.Year == nil || !slices.Contains(f.Years, *r.Year)) {
		return false
	}
	if len(f.Months) > 0 && (r.Month == nil || !slices.Contains(f.Months, *r.Month)) {
		return false
	}
	return true
}

// Options are the distinct selector values, sorted.
type Options struct {
	Districts     []string `json:"districts"`
	OffenseGroups []string `json:"offense_groups"`
	Years         []int    `json:"years"`
	Months        []int    `json:"months"`
	Days          []string `json:"days"`
	Hours         []int    `json:"hours"`
}

func BuildOptions(records []crime.Record) Options {
	districts := map[string]struct{}{}
	groups := map[string]struct{}{}
	years := map[int]struct{}{}
	months := map[int]struct{}{}
	for _, r := range records {
		if r.District != "" {
			districts[r.District] = struct{}{}
		}
		if r.OffenseCodeGroup != "" {
			groups[r.OffenseCodeGroup] = struct{}{}
		}
		if r.Year != nil {
			years[*r.Year] = struct{}{}
		}
		if r.Month != nil {
			months[*r.Month] = struct{}{}
		}
	}
	hours := make([]int, 0, crime.MaxHour+1)
	for h := crime.MinHour; h <= crime.MaxHour; h++ {
		hours = append(hours, h)
	}
	return Options{
		Districts:     sortedStrings(districts),
		OffenseGroups: sortedStrings(groups),
		Years:         sortedInts(years),
		Months:        sortedInts(months),
		Days:          append([]string(nil), crime.Days...),
		Hours:         hours,
	}
}

// Stats are the headline numbers. Modes break ties toward the smaller value.
type Stats struct {
	TotalCrimes     int    `json:"total_crimes"`
	MostCommonCrime string `json:"most_common_crime,omitempty"`
	BusiestMonth    *int   `json:"busiest_month,omitempty"`
}

func Summarize(records []crime.Record) Stats {
	groups := map[string]int{}
	months := map[int]int{}
	for _, r := range records {
		if r.OffenseCodeGroup != "" {
			groups[r.OffenseCodeGroup]++
		}
		if r.Month != nil {
			months[*r.Month]++
		}
	}

	s := Stats{TotalCrimes: len(records)}
	best := 0
	for _, g := range sortedStrings(keysOf(groups)) {
		if groups[g] > best {
			best = groups[g]
			s.MostCommonCrime = g
		}
	}
	best = 0
	for _, m := range sortedInts(keysOf(months)) {
		if months[m] > best {
			best = months[m]
			month := m
			s.BusiestMonth = &month
		}
	}
	return s
}

type TrendPoint struct {
	Year  int       `json:"year"`
	Month int       `json:"month"`
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// Trend counts incidents per (year, month), oldest first. Records without
// a year or month are skipped.
func Trend(records []crime.Record) []TrendPoint {
	type ym struct{ year, month int }
	counts := map[ym]int{}
	for _, r := range records {
		if r.Year == nil || r.Month == nil {
			continue
		}
		counts[ym{*r.Year, *r.Month}]++
	}
	points := make([]TrendPoint, 0, len(counts))
	for k, n := range counts {
		points = append(points, TrendPoint{
			Year:  k.year,
			Month: k.month,
			Date:  time.Date(k.year, time.Month(k.month), 1, 0, 0, 0, 0, time.UTC),
			Count: n,
		})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Year != points[j].Year {
			return points[i].Year < points[j].Year
		}
		return points[i].Month < points[j].Month
	})
	return points
}

type Cell struct {
	Day   string `json:"day"`
	Hour  int    `json:"hour"`
	Count int    `json:"count"`
}

// HourDayMatrix is a day by hour crosstab, Monday first.
type HourDayMatrix struct {
	Days   []string `json:"days"`
	Hours  []int    `json:"hours"`
	Counts [][]int  `json:"counts"`
	Peak   *Cell    `json:"peak,omitempty"`
}

func HourDay(records []crime.Record) HourDayMatrix {
	m := HourDayMatrix{
		Days:   append([]string(nil), crime.Days...),
		Hours:  make([]int, crime.MaxHour+1),
		Counts: make([][]int, len(crime.Days)),
	}
	for h := range m.Hours {
		m.Hours[h] = h
	}
	for d := range m.Counts {
		m.Counts[d] = make([]int, crime.MaxHour+1)
	}
	dayIndex := make(map[string]int, len(crime.Days))
	for i, d := range crime.Days {
		dayIndex[d] = i
	}

	for _, r := range records {
		d, ok := dayIndex[r.DayOfWeek]
		if !ok || r.Hour == nil || *r.Hour < crime.MinHour || *r.Hour > crime.MaxHour {
			continue
		}
		m.Counts[d][*r.Hour]++
	}

	for d, row := range m.Counts {
		for h, n := range row {
			if n > 0 && (m.Peak == nil || n > m.Peak.Count) {
				m.Peak = &Cell{Day: m.Days[d], Hour: h, Count: n}
			}
		}
	}
	return m
}

type OffenseCount struct {
	Group string `json:"group"`
	Count int    `json:"count"`
}

// TopOffenses returns the n most frequent offense groups, ties by name.
func TopOffenses(records []crime.Record, n int) []OffenseCount {
	counts := map[string]int{}
	for _, r := range records {
		if r.OffenseCodeGroup != "" {
			counts[r.OffenseCodeGroup]++
		}
	}
	out := make([]OffenseCount, 0, len(counts))
	for g, c := range counts {
		out = append(out, OffenseCount{Group: g, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Group < out[j].Group
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

type Point struct {
	Lat         float64 `json:"lat"`
	Long        float64 `json:"long"`
	Group       string  `json:"group,omitempty"`
	Description string  `json:"description,omitempty"`
}

type Center struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// HeatmapPoints is the located subset of the records and its mean centre.
type HeatmapPoints struct {
	Points []Point `json:"points"`
	Center *Center `json:"center,omitempty"`
}

// Heatmap collects located records, up to limit points when limit > 0.
// The centre is computed over every located record.
func Heatmap(records []crime.Record, limit int) HeatmapPoints {
	var lats, longs []float64
	points := make([]Point, 0)
	for _, r := range records {
		if !r.HasLocation() {
			continue
		}
		lats = append(lats, *r.Lat)
		longs = append(longs, *r.Long)
		if limit <= 0 || len(points) < limit {
			points = append(points, Point{
				Lat:         *r.Lat,
				Long:        *r.Long,
				Group:       r.OffenseCodeGroup,
				Description: r.OffenseDescription,
			})
		}
	}
	h := HeatmapPoints{Points: points}
	if len(lats) > 0 {
		h.Center = &Center{Lat: stat.Mean(lats, nil), Long: stat.Mean(longs, nil)}
	}
	return h
}

func keysOf[K comparable](m map[K]int) map[K]struct{} {
	set := make(map[K]struct{}, len(m))
	for k := range m {
		set[k] = struct{}{}
	}
	return set
}

func sortedStrings(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
