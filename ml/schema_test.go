package ml

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewFeatureSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
	}{
		{name: "empty", columns: nil},
		{name: "blank", columns: []string{"HOUR_1", ""}},
		{name: "duplicate", columns: []string{"HOUR_1", "HOUR_1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFeatureSchema(tt.columns); !errors.Is(err, ErrSchemaMismatch) {
				t.Fatalf("expected ErrSchemaMismatch, got %v", err)
			}
		})
	}
}

func TestFeatureSchemaFingerprint(t *testing.T) {
	a, _ := NewFeatureSchema([]string{"HOUR_1", "HOUR_2"})
	b, _ := NewFeatureSchema([]string{"HOUR_2", "HOUR_1"})
	c, _ := NewFeatureSchema([]string{"HOUR_1", "HOUR_2"})
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("reordered schema has same fingerprint")
	}
	if a.Fingerprint() != c.Fingerprint() || !a.Equal(c) {
		t.Fatalf("identical schemas differ")
	}
}

func TestFeatureSchemaJSON(t *testing.T) {
	schema, _ := NewFeatureSchema([]string{"DISTRICT_A", "HOUR_0"})
	data, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["DISTRICT_A","HOUR_0"]` {
		t.Fatalf("unexpected encoding %s", data)
	}
	var restored FeatureSchema
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !restored.Equal(schema) {
		t.Fatalf("expected %v, got %v", schema.Columns(), restored.Columns())
	}
	if err := json.Unmarshal([]byte(`["A","A"]`), &restored); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
