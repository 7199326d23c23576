package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleCSV = `INCIDENT_NUMBER,OFFENSE_CODE,OFFENSE_CODE_GROUP,OFFENSE_DESCRIPTION,DISTRICT,REPORTING_AREA,SHOOTING,OCCURRED_ON_DATE,YEAR,MONTH,DAY_OF_WEEK,HOUR,UCR_PART,STREET,Lat,Long,Location
I182070945,619,Larceny,LARCENY ALL OTHERS,D14,808,,2018-09-02 13:00:00,2018,9,Sunday,13,Part One,LINCOLN ST,42.35779134,-71.13937053,"(42.35779134, -71.13937053)"
I182070943,1402,Vandalism,VANDALISM,C11,347,Y,2018-08-21 00:00:00,2018,8,Tuesday,0.0,Part Two,HECLA ST,,,
I182070941,3410,Towed,TOWED MOTOR VEHICLE,,151,,2018-09-03 19:27:00,2018,9,Monday,,Part Three,CAZENOVE ST,42.34658879,-71.07242943,
`

func TestParseCSV(t *testing.T) {
	records, err := ParseCSV(context.Background(), []byte(sampleCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	first := records[0]
	if first.District != "D14" || first.OffenseCodeGroup != "Larceny" || *first.Hour != 13 || *first.OffenseCode != 619 {
		t.Fatalf("unexpected first record %+v", first)
	}
	want := time.Date(2018, 9, 2, 13, 0, 0, 0, time.UTC)
	if first.OccurredOn == nil || !first.OccurredOn.Equal(want) {
		t.Fatalf("unexpected occurred_on %v", first.OccurredOn)
	}
	if !first.HasLocation() || first.Shooting {
		t.Fatalf("unexpected location/shooting %+v", first)
	}

	second := records[1]
	if second.Hour == nil || *second.Hour != 0 {
		t.Fatalf("expected hour 0 from 0.0, got %v", second.Hour)
	}
	if !second.Shooting || second.HasLocation() {
		t.Fatalf("unexpected shooting/location %+v", second)
	}

	third := records[2]
	if third.Hour != nil || third.District != "" {
		t.Fatalf("missing cells should stay missing: %+v", third)
	}
}

func TestCSVSourceLatin1Fallback(t *testing.T) {
	content := "OFFENSE_CODE_GROUP,DISTRICT,DAY_OF_WEEK,HOUR,STREET\nLarceny,B2,Friday,22,CAF\xc9 ST\n"
	path := filepath.Join(t.TempDir(), "crime.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	records, err := NewCSVSource(path).Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].Street != "CAFÉ ST" {
		t.Fatalf("expected latin1 street, got %+v", records)
	}
}

func TestParseHelpers(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{in: "9", want: intp(9)},
		{in: "9.0", want: intp(9)},
		{in: "9.5", want: nil},
		{in: "nan", want: nil},
		{in: "", want: nil},
		{in: "x", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseInt(tt.in)
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Fatalf("parseInt(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCSVSourceMissingFile(t *testing.T) {
	if _, err := NewCSVSource(filepath.Join(t.TempDir(), "nope.csv")).Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func intp(v int) *int { return &v }
