package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"crimewatch/crime"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "nested", "crimewatch.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestInsertAndFetchRecords(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	occurred := time.Date(2018, 9, 2, 13, 0, 0, 0, time.UTC)
	records := []crime.Record{
		{
			IncidentNumber:   "I182070945",
			OffenseCode:      crime.IntPtr(619),
			OffenseCodeGroup: "Larceny",
			District:         "D14",
			OccurredOn:       &occurred,
			Year:             crime.IntPtr(2018),
			Month:            crime.IntPtr(9),
			DayOfWeek:        "Sunday",
			Hour:             crime.IntPtr(13),
			Lat:              crime.FloatPtr(42.35779134),
			Long:             crime.FloatPtr(-71.13937053),
		},
		{OffenseCodeGroup: "Vandalism", DayOfWeek: "Monday"},
	}
	n, err := d.InsertRecords(ctx, records)
	if err != nil || n != 2 {
		t.Fatalf("insert: n=%d err=%v", n, err)
	}

	got, err := d.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	first := got[0]
	if first.District != "D14" || *first.Hour != 13 || *first.OffenseCode != 619 {
		t.Fatalf("unexpected first record %+v", first)
	}
	if first.OccurredOn == nil || !first.OccurredOn.Equal(occurred) {
		t.Fatalf("occurred_on not preserved: %v", first.OccurredOn)
	}
	if !first.HasLocation() {
		t.Fatalf("expected location")
	}
	second := got[1]
	if second.Hour != nil || second.Year != nil || second.Lat != nil || second.District != "" {
		t.Fatalf("missing values should stay missing: %+v", second)
	}
}

func TestTrainingLog(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	older := TrainingLog{ModelVersion: "v1", ModelName: "random_forest", Accuracy: 0.2, TrainedAt: time.Now().Add(-time.Hour)}
	newer := TrainingLog{ModelVersion: "v2", ModelName: "random_forest", Accuracy: 0.3, TrainedAt: time.Now(), DataPoints: 80, TestPoints: 20}
	for _, l := range []TrainingLog{older, newer} {
		if err := d.SaveTrainingLog(ctx, l); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	logs, err := d.LoadTrainingLog(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(logs) != 2 || logs[0].ModelVersion != "v2" || logs[0].DataPoints != 80 {
		t.Fatalf("unexpected logs %+v", logs)
	}
}

func TestPredictionLog(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	p := PredictionLog{ModelVersion: "v1", District: "B2", DayOfWeek: "Friday", Hour: 22, Label: "Larceny", Confidence: 0.4, Timestamp: time.Now()}
	if err := d.SavePrediction(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	n, err := d.CountPredictions(ctx)
	if err != nil || n != 1 {
		t.Fatalf("count: n=%d err=%v", n, err)
	}
}

func TestBlobs(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	if _, err := d.LoadBlob(ctx, "model"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := d.SaveBlob(ctx, "model", []byte("one")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := d.SaveBlob(ctx, "model", []byte("two")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := d.LoadBlob(ctx, "model")
	if err != nil || string(data) != "two" {
		t.Fatalf("load: %q %v", data, err)
	}
}
