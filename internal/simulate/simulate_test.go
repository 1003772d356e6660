package simulate

import (
	"testing"

	"github.com/ricesearch/rice-deteriorate/internal/evaluation"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

func TestGenerate_Layouts(t *testing.T) {
	tests := []struct {
		layout   Layout
		wantNDCG float64
		wantP5   float64
	}{
		{LayoutIdeal, 1, 1},
		{LayoutReversed, -1, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.layout), func(t *testing.T) {
			run, qrels, err := Generate(Config{Topics: 3, Length: 20, Relevant: 5, Layout: tt.layout, Seed: 7})
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if len(run) != 3 || len(qrels) != 3 {
				t.Fatalf("topics = %d run, %d qrels, want 3", len(run), len(qrels))
			}

			for _, topic := range run.Topics() {
				ranking := run.Ranking(topic)
				if len(ranking) != 20 {
					t.Fatalf("topic %s has %d docs, want 20", topic, len(ranking))
				}
				if qrels.NumRelevant(topic) != 5 {
					t.Errorf("topic %s has %d relevant, want 5", topic, qrels.NumRelevant(topic))
				}
				for i, entry := range ranking {
					want := float64(20-i) / 20
					if entry.Score != want {
						t.Errorf("topic %s rank %d score = %v, want %v", topic, i+1, entry.Score, want)
					}
				}
			}

			ev, err := evaluation.NewEvaluator(qrels, "P_5", "ndcg")
			if err != nil {
				t.Fatalf("NewEvaluator() error = %v", err)
			}
			scores := ev.Evaluate(run)
			if got := scores.Mean("P_5"); got != tt.wantP5 {
				t.Errorf("P_5 = %v, want %v", got, tt.wantP5)
			}
			if tt.wantNDCG >= 0 && scores.Mean("ndcg") != tt.wantNDCG {
				t.Errorf("ndcg = %v, want %v", scores.Mean("ndcg"), tt.wantNDCG)
			}
		})
	}
}

func TestGenerate_Random(t *testing.T) {
	cfg := Config{Topics: 4, Length: 50, Relevant: 10, Layout: LayoutRandom, Seed: 42}
	a, aq, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	b, bq, _ := Generate(cfg)

	for _, topic := range a.Topics() {
		if aq.NumRelevant(topic) != 10 {
			t.Errorf("topic %s has %d relevant, want 10", topic, aq.NumRelevant(topic))
		}
		da, db := a.Ranking(topic).DocIDs(), b.Ranking(topic).DocIDs()
		for i := range da {
			if da[i] != db[i] || aq.Grade(topic, da[i]) != bq.Grade(topic, db[i]) {
				t.Fatalf("same seed gave different runs at topic %s rank %d", topic, i+1)
			}
		}
	}
}

func TestGenerate_UniqueIDs(t *testing.T) {
	run, _, err := Generate(Config{Topics: 5, Length: 100, Relevant: 0, Layout: LayoutIdeal, Seed: 3})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	seen := make(map[string]bool)
	for _, docs := range run {
		for id := range docs {
			if len(id) != 32 {
				t.Errorf("id %q is not 32 hex chars", id)
			}
			if seen[id] {
				t.Errorf("duplicate id %s", id)
			}
			seen[id] = true
		}
	}
	if len(seen) != 500 {
		t.Errorf("unique ids = %d, want 500", len(seen))
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Topics: 1, Length: 10, Relevant: 2, Layout: LayoutIdeal}, false},
		{"all relevant", Config{Topics: 1, Length: 10, Relevant: 10, Layout: LayoutRandom}, false},
		{"no topics", Config{Length: 10, Layout: LayoutIdeal}, true},
		{"no length", Config{Topics: 1, Layout: LayoutIdeal}, true},
		{"too many relevant", Config{Topics: 1, Length: 3, Relevant: 4, Layout: LayoutIdeal}, true},
		{"unknown layout", Config{Topics: 1, Length: 3, Layout: "sorted"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsValidation(err) {
				t.Errorf("Validate() error = %v, want validation error", err)
			}
		})
	}
}
