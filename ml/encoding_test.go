package ml

import (
	"errors"
	"reflect"
	"testing"

	"crimewatch/crime"
)

func record(district, day string, hour int, group string) crime.Record {
	return crime.Record{District: district, DayOfWeek: day, Hour: crime.IntPtr(hour), OffenseCodeGroup: group}
}

func TestExpandQuery(t *testing.T) {
	got := ExpandQuery(crime.Query{District: "B2", DayOfWeek: "Monday", Hour: 9})
	want := Fragment{"DISTRICT_B2": 1, "DAY_OF_WEEK_Monday": 1, "HOUR_9": 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFitSchemaOrdering(t *testing.T) {
	records := []crime.Record{
		record("B2", "Tuesday", 10, "Larceny"),
		record("A1", "Monday", 9, "Larceny"),
		record("B2", "Monday", 2, "Assault"),
	}
	schema, err := FitSchema(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"DISTRICT_A1", "DISTRICT_B2",
		"DAY_OF_WEEK_Monday", "DAY_OF_WEEK_Tuesday",
		"HOUR_2", "HOUR_9", "HOUR_10",
	}
	if !reflect.DeepEqual(schema.Columns(), want) {
		t.Fatalf("expected %v, got %v", want, schema.Columns())
	}
}

func TestFitSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		records []crime.Record
	}{
		{name: "no records", records: nil},
		{name: "missing hour", records: []crime.Record{{District: "A1", DayOfWeek: "Monday"}}},
		{name: "missing district", records: []crime.Record{record("", "Monday", 1, "Larceny")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FitSchema(tt.records); !errors.Is(err, ErrDataQuality) {
				t.Fatalf("expected ErrDataQuality, got %v", err)
			}
		})
	}
}

func TestEncodeRecordsAndLabels(t *testing.T) {
	records := []crime.Record{
		record("A1", "Monday", 9, "Theft"),
		record("B2", "Sunday", 23, "Assault"),
	}
	schema, err := FitSchema(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matrix, err := EncodeRecords(records, schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// columns: DISTRICT_A1 DISTRICT_B2 DAY_OF_WEEK_Monday DAY_OF_WEEK_Sunday HOUR_9 HOUR_23
	want := [][]float64{
		{1, 0, 1, 0, 1, 0},
		{0, 1, 0, 1, 0, 1},
	}
	if !reflect.DeepEqual(matrix, want) {
		t.Fatalf("expected %v, got %v", want, matrix)
	}

	classes, labels, err := EncodeLabels(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(classes, []string{"Assault", "Theft"}) {
		t.Fatalf("unexpected classes %v", classes)
	}
	if !reflect.DeepEqual(labels, []int{1, 0}) {
		t.Fatalf("unexpected labels %v", labels)
	}
}

func TestEncodeLabelsMissingGroup(t *testing.T) {
	_, _, err := EncodeLabels([]crime.Record{record("A1", "Monday", 1, "")})
	if !errors.Is(err, ErrDataQuality) {
		t.Fatalf("expected ErrDataQuality, got %v", err)
	}
}
