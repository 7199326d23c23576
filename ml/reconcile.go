package ml

import (
	"fmt"
	"sort"
)

// Reconciliation is a fragment mapped onto a feature schema.
type Reconciliation struct {
	// Vector has exactly one value per schema column, in schema order.
	Vector []float64
	// Dropped lists fragment columns the schema does not know, sorted.
	// They come from categorical values never seen during training.
	Dropped []string
}

// Reconcile inserts a zero for every schema column absent from the fragment,
// orders values by the schema and discards columns outside it. It never fails
// on unknown categorical values, only on an unusable schema.
func Reconcile(fragment Fragment, schema FeatureSchema) (Reconciliation, error) {
	if schema.Len() == 0 {
		return Reconciliation{}, fmt.Errorf("%w: cannot reconcile against an empty feature schema", ErrSchemaMismatch)
	}

	vector := make([]float64, schema.Len())
	var dropped []string
	for name, value := range fragment {
		idx, ok := schema.Index(name)
		if !ok {
			dropped = append(dropped, name)
			continue
		}
		vector[idx] = value
	}
	sort.Strings(dropped)

	return Reconciliation{Vector: vector, Dropped: dropped}, nil
}
