package pipeline

import (
	"testing"

	"crimewatch/crime"
)

func validRecord() crime.Record {
	return crime.Record{
		IncidentNumber:   "I1",
		OffenseCode:      crime.IntPtr(619),
		OffenseCodeGroup: "Larceny",
		District:         "D14",
		Month:            crime.IntPtr(9),
		DayOfWeek:        "Sunday",
		Hour:             crime.IntPtr(13),
	}
}

func TestRequiredFieldsRule(t *testing.T) {
	rule := NewRequiredFieldsRule(crime.ColumnDistrict, crime.ColumnHour)

	tests := []struct {
		name    string
		mutate  func(*crime.Record)
		wantErr bool
	}{
		{name: "complete record", mutate: func(*crime.Record) {}, wantErr: false},
		{name: "missing district", mutate: func(r *crime.Record) { r.District = "" }, wantErr: true},
		{name: "missing hour", mutate: func(r *crime.Record) { r.Hour = nil }, wantErr: true},
		{name: "hour zero is present", mutate: func(r *crime.Record) { r.Hour = crime.IntPtr(0) }, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(&r)
			_, err := rule.Apply(&r)
			if (err != nil) != tt.wantErr {
				t.Errorf("RequiredFieldsRule.Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHourRangeRule(t *testing.T) {
	rule := NewHourRangeRule()
	for _, tt := range []struct {
		hour    int
		wantErr bool
	}{
		{hour: 0}, {hour: 23}, {hour: -1, wantErr: true}, {hour: 24, wantErr: true},
	} {
		r := validRecord()
		r.Hour = crime.IntPtr(tt.hour)
		if _, err := rule.Apply(&r); (err != nil) != tt.wantErr {
			t.Errorf("hour %d: error = %v, wantErr %v", tt.hour, err, tt.wantErr)
		}
	}
}

func TestLocationRule(t *testing.T) {
	rule := NewLocationRule()
	tests := []struct {
		name      string
		lat, long *float64
		wantKept  bool
	}{
		{name: "valid", lat: crime.FloatPtr(42.35), long: crime.FloatPtr(-71.1), wantKept: true},
		{name: "sentinel", lat: crime.FloatPtr(-1), long: crime.FloatPtr(-1), wantKept: false},
		{name: "half missing", lat: crime.FloatPtr(42.35), long: nil, wantKept: false},
		{name: "out of range", lat: crime.FloatPtr(142), long: crime.FloatPtr(-71.1), wantKept: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			r.Lat, r.Long = tt.lat, tt.long
			got, err := rule.Apply(&r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.HasLocation() != tt.wantKept {
				t.Fatalf("expected kept=%v, got %+v", tt.wantKept, got)
			}
			if r.Lat != tt.lat {
				t.Fatalf("input record was modified")
			}
		})
	}
}

func TestDataCleaner_Clean(t *testing.T) {
	cleaner := NewTrainingCleaner(nil)

	padded := validRecord()
	padded.District = " B2 "
	noLabel := validRecord()
	noLabel.OffenseCodeGroup = ""
	noHour := validRecord()
	noHour.Hour = nil

	input := []crime.Record{validRecord(), padded, noLabel, noHour}
	cleaned, issues := cleaner.Clean(input)

	if len(cleaned) != 2 {
		t.Fatalf("expected 2 records, got %d", len(cleaned))
	}
	if cleaned[1].District != "B2" {
		t.Errorf("expected trimmed district, got %q", cleaned[1].District)
	}
	if input[1].District != " B2 " {
		t.Errorf("input slice was modified")
	}
	if len(issues) != 2 {
		t.Errorf("expected 2 issues, got %d", len(issues))
	}

	stats := cleaner.GetStats()
	if stats.TotalProcessed != 4 || stats.Passed != 2 || stats.Rejected != 2 || stats.Corrected != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.Issues["required_fields"] != 2 {
		t.Errorf("expected 2 required_fields issues, got %d", stats.Issues["required_fields"])
	}
	if got := cleaner.GetIssues(1); len(got) != 1 || got[0].Type != "required_fields" {
		t.Errorf("unexpected retained issues %+v", got)
	}
	cleaner.ClearIssues()
	if len(cleaner.GetIssues(0)) != 0 {
		t.Errorf("issues not cleared")
	}
}

func TestIngestionCleanerColumns(t *testing.T) {
	cleaner := NewIngestionCleaner(nil)
	noDistrict := validRecord()
	noDistrict.District = ""
	noMonth := validRecord()
	noMonth.Month = nil
	noCode := validRecord()
	noCode.OffenseCode = nil

	cleaned, _ := cleaner.Clean([]crime.Record{noDistrict, noMonth, noCode})
	if len(cleaned) != 1 || cleaned[0].District != "" {
		t.Fatalf("ingestion should keep rows without district only, got %+v", cleaned)
	}
}
