package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"crimewatch/artifact"
	"crimewatch/config"
	"crimewatch/db"
	"crimewatch/ml"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	key := flag.String("key", "", "override artifact key")
	top := flag.Int("top", 20, "number of feature importances to print (0 = all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *key != "" {
		cfg.Artifact.Key = *key
	}

	if err := run(context.Background(), cfg, *top); err != nil {
		fmt.Fprintf(os.Stderr, "inspect failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, top int) error {
	var sqlite *db.DB
	if cfg.Artifact.Store == "sqlite" {
		var err error
		sqlite, err = db.Open(cfg.Database.SQLitePath)
		if err != nil {
			return err
		}
		defer sqlite.Close()
	}
	store, closeStore, err := artifact.Open(ctx, cfg.Artifact, sqlite)
	if err != nil {
		return err
	}
	defer closeStore()

	a, err := ml.LoadArtifact(ctx, store, cfg.Artifact.Key)
	if err != nil {
		return err
	}

	fmt.Printf("Model type:     %s\n", a.ModelType)
	fmt.Printf("Version:        %s\n", a.Version)
	fmt.Printf("Created:        %s\n", a.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Schema columns: %d (fingerprint %s)\n", a.Schema.Len(), a.SchemaFingerprint)
	fmt.Printf("Classes:        %d\n", len(a.Classes))
	fmt.Printf("Rows:           train=%d test=%d\n", a.TrainRows, a.TestRows)
	if a.Metrics.Evaluated {
		fmt.Printf("Accuracy:       %.4f (macro precision %.4f, recall %.4f)\n",
			a.Metrics.Accuracy, a.Metrics.MacroPrecision, a.Metrics.MacroRecall)
	}

	type importance struct {
		column string
		value  float64
	}
	values := a.Classifier().FeatureImportances()
	ranked := make([]importance, 0, len(values))
	for i, v := range values {
		ranked = append(ranked, importance{a.Schema.Column(i), v})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].value > ranked[j].value })
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}
	fmt.Println("\nFeature importances:")
	for _, r := range ranked {
		fmt.Printf("  %-32s %.6f\n", r.column, r.value)
	}

	if forest, ok := a.Classifier().(*ml.RandomForest); ok {
		trees := forest.Estimators()
		fmt.Printf("\nNumber of estimators: %d\n", len(trees))
		if len(trees) > 0 {
			fmt.Printf("First estimator: %d nodes, depth %d\n", trees[0].NodeCount(), trees[0].Depth())
		}
	}
	if tree, ok := a.Classifier().(*ml.DecisionTree); ok {
		fmt.Printf("\nDecision tree: %d nodes, depth %d\n", tree.NodeCount(), tree.Depth())
	}
	return nil
}
