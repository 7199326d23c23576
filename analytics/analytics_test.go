package analytics

import (
	"context"
	"math"
	"testing"

	"crimewatch/crime"
	"crimewatch/dataset"
)

func incident(district, group string, year, month int, day string, hour int) crime.Record {
	return crime.Record{
		District:         district,
		OffenseCodeGroup: group,
		Year:             crime.IntPtr(year),
		Month:            crime.IntPtr(month),
		DayOfWeek:        day,
		Hour:             crime.IntPtr(hour),
	}
}

func located(r crime.Record, lat, long float64) crime.Record {
	r.Lat = crime.FloatPtr(lat)
	r.Long = crime.FloatPtr(long)
	return r
}

func sample() []crime.Record {
	return []crime.Record{
		located(incident("A1", "Larceny", 2017, 6, "Monday", 9), 42.30, -71.10),
		located(incident("A1", "Larceny", 2017, 7, "Monday", 9), 42.40, -71.00),
		incident("B2", "Assault", 2018, 1, "Friday", 23),
		incident("B2", "Assault", 2017, 6, "Sunday", 0),
		incident("C11", "Vandalism", 2017, 7, "Monday", 10),
	}
}

func TestFilterApply(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"zero filter keeps everything", Filter{}, 5},
		{"district", Filter{Districts: []string{"B2"}}, 2},
		{"districts are ORed", Filter{Districts: []string{"A1", "C11"}}, 3},
		{"fields are ANDed", Filter{Districts: []string{"A1"}, Months: []int{7}}, 1},
		{"offense and year", Filter{OffenseGroups: []string{"Assault"}, Years: []int{2017}}, 1},
		{"no match", Filter{Districts: []string{"E18"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.filter.Apply(sample())); got != tt.want {
				t.Errorf("Apply() kept %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sample())
	if s.TotalCrimes != 5 {
		t.Errorf("total = %d", s.TotalCrimes)
	}
	// Larceny and Assault both occur twice; the smaller name wins.
	if s.MostCommonCrime != "Assault" {
		t.Errorf("most common = %q, want Assault", s.MostCommonCrime)
	}
	// months 6 and 7 both occur twice
	if s.BusiestMonth == nil || *s.BusiestMonth != 6 {
		t.Errorf("busiest month = %v, want 6", s.BusiestMonth)
	}

	empty := Summarize(nil)
	if empty.TotalCrimes != 0 || empty.MostCommonCrime != "" || empty.BusiestMonth != nil {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestTrendSortedByDate(t *testing.T) {
	points := Trend(sample())
	want := []struct{ year, month, count int }{
		{2017, 6, 2},
		{2017, 7, 2},
		{2018, 1, 1},
	}
	if len(points) != len(want) {
		t.Fatalf("got %d points, want %d", len(points), len(want))
	}
	for i, w := range want {
		p := points[i]
		if p.Year != w.year || p.Month != w.month || p.Count != w.count {
			t.Errorf("point %d = %+v, want %+v", i, p, w)
		}
		if p.Date.Year() != w.year || int(p.Date.Month()) != w.month || p.Date.Day() != 1 {
			t.Errorf("point %d date = %v", i, p.Date)
		}
	}
}

func TestHourDay(t *testing.T) {
	m := HourDay(sample())
	if len(m.Counts) != 7 || len(m.Counts[0]) != 24 {
		t.Fatalf("shape = %dx%d", len(m.Counts), len(m.Counts[0]))
	}
	if m.Days[0] != "Monday" || m.Days[6] != "Sunday" {
		t.Errorf("day order = %v", m.Days)
	}
	if m.Counts[0][9] != 2 || m.Counts[4][23] != 1 || m.Counts[6][0] != 1 {
		t.Errorf("unexpected counts")
	}
	if m.Peak == nil || m.Peak.Day != "Monday" || m.Peak.Hour != 9 || m.Peak.Count != 2 {
		t.Errorf("peak = %+v", m.Peak)
	}

	if HourDay(nil).Peak != nil {
		t.Error("empty matrix should have no peak")
	}
}

func TestTopOffenses(t *testing.T) {
	top := TopOffenses(sample(), 2)
	if len(top) != 2 {
		t.Fatalf("len = %d", len(top))
	}
	if top[0].Group != "Assault" || top[1].Group != "Larceny" || top[0].Count != 2 {
		t.Errorf("top = %+v", top)
	}
	if all := TopOffenses(sample(), 0); len(all) != 3 {
		t.Errorf("n=0 should return every group, got %d", len(all))
	}
}

func TestHeatmap(t *testing.T) {
	h := Heatmap(sample(), 0)
	if len(h.Points) != 2 {
		t.Fatalf("points = %d, want 2", len(h.Points))
	}
	if h.Center == nil {
		t.Fatal("missing centre")
	}
	if math.Abs(h.Center.Lat-42.35) > 1e-9 || math.Abs(h.Center.Long+71.05) > 1e-9 {
		t.Errorf("centre = %+v", h.Center)
	}

	limited := Heatmap(sample(), 1)
	if len(limited.Points) != 1 || math.Abs(limited.Center.Lat-42.35) > 1e-9 {
		t.Errorf("limited = %+v", limited)
	}

	none := Heatmap([]crime.Record{incident("A1", "Larceny", 2017, 6, "Monday", 9)}, 0)
	if none.Center != nil || len(none.Points) != 0 {
		t.Errorf("unlocated heatmap = %+v", none)
	}
}

func TestBuildOptions(t *testing.T) {
	o := BuildOptions(sample())
	if len(o.Districts) != 3 || o.Districts[0] != "A1" {
		t.Errorf("districts = %v", o.Districts)
	}
	if len(o.Years) != 2 || o.Years[0] != 2017 {
		t.Errorf("years = %v", o.Years)
	}
	if len(o.Months) != 3 || o.Months[0] != 1 {
		t.Errorf("months = %v", o.Months)
	}
	if len(o.Days) != 7 || len(o.Hours) != 24 {
		t.Errorf("days/hours = %d/%d", len(o.Days), len(o.Hours))
	}
}

func TestLoadDatasetDropsSentinelLocations(t *testing.T) {
	records := sample()
	records = append(records, located(incident("D4", "Larceny", 2018, 2, "Tuesday", 14), -1, -1))

	ds, err := LoadDataset(context.Background(), dataset.MemorySource{Records: records}, nil)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if ds.Len() != 6 {
		t.Fatalf("len = %d, want 6", ds.Len())
	}
	if got := len(Heatmap(ds.Select(Filter{}), 0).Points); got != 2 {
		t.Errorf("located points = %d, want 2", got)
	}
	if got := len(ds.Select(Filter{Districts: []string{"D4"}})); got != 1 {
		t.Errorf("D4 records = %d", got)
	}
}
