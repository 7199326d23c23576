package dataset

import (
	"context"
	"math"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"crimewatch/config"
	"crimewatch/crime"
)

func TestMemorySourceCopies(t *testing.T) {
	src := MemorySource{Records: []crime.Record{{District: "A1"}}}
	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got[0].District = "changed"
	if src.Records[0].District != "A1" {
		t.Fatalf("fetch leaked backing slice")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Fetch(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestDocumentToRecord(t *testing.T) {
	occurred := time.Date(2018, 9, 2, 13, 0, 0, 0, time.UTC)
	doc := bson.M{
		"INCIDENT_NUMBER":    "I1",
		"OFFENSE_CODE":       int64(619),
		"OFFENSE_CODE_GROUP": "Larceny",
		"DISTRICT":           "D14",
		"SHOOTING":           math.NaN(),
		"OCCURRED_ON_DATE":   primitive.NewDateTimeFromTime(occurred),
		"YEAR":               int32(2018),
		"MONTH":              9.0,
		"DAY_OF_WEEK":        "Sunday",
		"HOUR":               "13",
		"Lat":                math.NaN(),
		"Long":               -71.1,
	}
	r := documentToRecord(doc)
	if *r.OffenseCode != 619 || *r.Year != 2018 || *r.Month != 9 || *r.Hour != 13 {
		t.Fatalf("numeric coercion failed: %+v", r)
	}
	if r.Shooting {
		t.Fatalf("NaN shooting should be false")
	}
	if r.Lat != nil || r.Long == nil {
		t.Fatalf("NaN lat should be missing: %+v", r)
	}
	if r.OccurredOn == nil || !r.OccurredOn.Equal(occurred) {
		t.Fatalf("unexpected occurred_on %v", r.OccurredOn)
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Data.Source = "sqlite"
	if _, _, err := Open(ctx, cfg, nil); err == nil {
		t.Fatalf("expected error for sqlite without database")
	}
	cfg.Data.Source = "parquet"
	if _, _, err := Open(ctx, cfg, nil); err == nil {
		t.Fatalf("expected error for unknown source")
	}
	if _, _, err := OpenSink(ctx, "csv", cfg, nil); err == nil {
		t.Fatalf("expected error for unknown sink")
	}

	cfg.Data.Source = "csv"
	src, closeFn, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn()
	if _, ok := src.(*CSVSource); !ok {
		t.Fatalf("expected *CSVSource, got %T", src)
	}
}
