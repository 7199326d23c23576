package ml

import (
	"fmt"
	"sort"
	"strconv"

	"crimewatch/crime"
)

// FeatureFields are the categorical inputs, in column-block order.
var FeatureFields = []string{crime.ColumnDistrict, crime.ColumnDayOfWeek, crime.ColumnHour}

// Fragment is a sparse one-row design fragment keyed by column name.
type Fragment map[string]float64

// ColumnName builds the indicator column for one categorical value.
func ColumnName(field, value string) string {
	return field + "_" + value
}

// ExpandQuery one-hot expands a query with the same naming used at training time.
func ExpandQuery(q crime.Query) Fragment {
	f := make(Fragment, len(FeatureFields))
	f[ColumnName(crime.ColumnDistrict, q.District)] = 1
	f[ColumnName(crime.ColumnDayOfWeek, q.DayOfWeek)] = 1
	f[ColumnName(crime.ColumnHour, strconv.Itoa(q.Hour))] = 1
	return f
}

// ExpandRecord one-hot expands the feature fields of a historical record.
func ExpandRecord(r crime.Record) (Fragment, error) {
	q, err := queryOf(r)
	if err != nil {
		return nil, err
	}
	return ExpandQuery(q), nil
}

// FitSchema derives the feature schema from cleaned training records.
// Blocks follow FeatureFields; strings sort lexicographically, hours numerically.
func FitSchema(records []crime.Record) (FeatureSchema, error) {
	if len(records) == 0 {
		return FeatureSchema{}, fmt.Errorf("%w: no records to derive feature schema from", ErrDataQuality)
	}

	districts := make(map[string]struct{})
	days := make(map[string]struct{})
	hours := make(map[int]struct{})
	for i, r := range records {
		q, err := queryOf(r)
		if err != nil {
			return FeatureSchema{}, fmt.Errorf("record %d: %w", i, err)
		}
		districts[q.District] = struct{}{}
		days[q.DayOfWeek] = struct{}{}
		hours[q.Hour] = struct{}{}
	}

	columns := make([]string, 0, len(districts)+len(days)+len(hours))
	for _, v := range sortedKeys(districts) {
		columns = append(columns, ColumnName(crime.ColumnDistrict, v))
	}
	for _, v := range sortedKeys(days) {
		columns = append(columns, ColumnName(crime.ColumnDayOfWeek, v))
	}
	hourValues := make([]int, 0, len(hours))
	for h := range hours {
		hourValues = append(hourValues, h)
	}
	sort.Ints(hourValues)
	for _, h := range hourValues {
		columns = append(columns, ColumnName(crime.ColumnHour, strconv.Itoa(h)))
	}
	return NewFeatureSchema(columns)
}

// EncodeRecords builds the dense design matrix, aligning every row through Reconcile.
func EncodeRecords(records []crime.Record, schema FeatureSchema) ([][]float64, error) {
	matrix := make([][]float64, len(records))
	for i, r := range records {
		fragment, err := ExpandRecord(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rec, err := Reconcile(fragment, schema)
		if err != nil {
			return nil, err
		}
		matrix[i] = rec.Vector
	}
	return matrix, nil
}

// EncodeLabels maps offense groups to indices into the sorted class list.
func EncodeLabels(records []crime.Record) (classes []string, labels []int, err error) {
	seen := make(map[string]struct{})
	for i, r := range records {
		if r.OffenseCodeGroup == "" {
			return nil, nil, fmt.Errorf("%w: record %d has no %s", ErrDataQuality, i, crime.ColumnOffenseCodeGroup)
		}
		seen[r.OffenseCodeGroup] = struct{}{}
	}
	classes = sortedKeys(seen)
	if len(classes) == 0 {
		return nil, nil, fmt.Errorf("%w: no labels", ErrDataQuality)
	}
	lookup := make(map[string]int, len(classes))
	for i, c := range classes {
		lookup[c] = i
	}
	labels = make([]int, len(records))
	for i, r := range records {
		labels[i] = lookup[r.OffenseCodeGroup]
	}
	return classes, labels, nil
}

func queryOf(r crime.Record) (crime.Query, error) {
	for _, field := range FeatureFields {
		if !r.Has(field) {
			return crime.Query{}, fmt.Errorf("%w: missing %s", ErrDataQuality, field)
		}
	}
	return crime.Query{District: r.District, DayOfWeek: r.DayOfWeek, Hour: *r.Hour}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
