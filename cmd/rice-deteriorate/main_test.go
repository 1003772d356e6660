package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/ricesearch/rice-deteriorate/internal/bus"
	"github.com/ricesearch/rice-deteriorate/internal/config"
	"github.com/ricesearch/rice-deteriorate/internal/deteriorate"
	"github.com/ricesearch/rice-deteriorate/internal/evaluation"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
	"github.com/ricesearch/rice-deteriorate/internal/results"
	"github.com/ricesearch/rice-deteriorate/internal/simulate"
	"github.com/ricesearch/rice-deteriorate/internal/trec"
)

func TestGridConfig(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	gcfg, err := gridConfig(cfg)
	if err != nil {
		t.Fatalf("gridConfig() error = %v", err)
	}
	// source 1,10 gives a default max of 5
	if want := []int{0, 1, 2, 3, 4, 5}; !reflect.DeepEqual(gcfg.Values, want) {
		t.Errorf("Values = %v, want %v", gcfg.Values, want)
	}
	if !reflect.DeepEqual(gcfg.Modes, deteriorate.Modes()) {
		t.Errorf("Modes = %v, want all", gcfg.Modes)
	}

	cfg.Grid.Max = 4
	cfg.Grid.Step = 2
	cfg.Grid.Modes = []string{"Better"}
	gcfg, err = gridConfig(cfg)
	if err != nil {
		t.Fatalf("gridConfig() error = %v", err)
	}
	if want := []int{0, 2, 4}; !reflect.DeepEqual(gcfg.Values, want) {
		t.Errorf("Values = %v, want %v", gcfg.Values, want)
	}
	if len(gcfg.Modes) != 1 || gcfg.Modes[0] != deteriorate.ModeBetter {
		t.Errorf("Modes = %v, want [better]", gcfg.Modes)
	}
}

func TestOpenOutput(t *testing.T) {
	w, closeOut, err := openOutput("")
	if err != nil || w != os.Stdout {
		t.Fatalf("openOutput(\"\") = %v, %v", w, err)
	}
	if err := closeOut(); err != nil {
		t.Errorf("close stdout wrapper error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "out", "run.txt")
	w, closeOut, err = openOutput(path)
	if err != nil {
		t.Fatalf("openOutput() error = %v", err)
	}
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := closeOut(); err != nil {
		t.Fatalf("close error = %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "x" {
		t.Errorf("file content = %q", data)
	}
}

func TestPrintComparison(t *testing.T) {
	cmp := &evaluation.Comparison{
		Topics:    2,
		MeanKTU:   0.5,
		MeanRBO:   0.75,
		MeanMatch: 0.625,
		Original:  map[string]float64{"map": 0.4},
		Modified:  map[string]float64{"map": 0.3},
		RMSE:      map[string]float64{"map": 0.1},
		NRMSE:     map[string]float64{"map": 0.2},
		PValue:    map[string]float64{"map": 0.01},
	}

	var buf bytes.Buffer
	if err := printComparison(&buf, cmp, []string{"map"}); err != nil {
		t.Fatalf("printComparison() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"topics:  2", "ktu:     0.5000", "rbo:     0.7500", "match:   0.6250", "map", "0.4000", "0.01"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// writeInputs writes a simulated run and qrels into dir.
func writeInputs(t *testing.T, dir string) (runPath, qrelsPath string) {
	t.Helper()
	runPath = filepath.Join(dir, "input.run")
	qrelsPath = filepath.Join(dir, "input.qrels")

	run, qrels, err := simulate.Generate(simulate.Config{Topics: 3, Length: 30, Relevant: 8, Layout: simulate.LayoutIdeal, Seed: 5})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if err := trec.WriteRunFile(runPath, run, "sim"); err != nil {
		t.Fatal(err)
	}
	if err := trec.WriteQrelsFile(qrelsPath, qrels); err != nil {
		t.Fatal(err)
	}
	return runPath, qrelsPath
}

func TestGridCommand_WritesMetrics(t *testing.T) {
	dir := t.TempDir()
	runPath, qrelsPath := writeInputs(t, dir)
	outPath := filepath.Join(dir, "cells.json")
	metricsPath := filepath.Join(dir, "metrics", "grid.prom")

	root := newRootCmd()
	root.SetArgs([]string{
		"grid",
		"--run", runPath,
		"--qrels", qrelsPath,
		"--out", outPath,
		"--metrics", metricsPath,
		"--max", "1",
		"--modes", "worse",
		"--seed", "7",
	})
	if err := root.Execute(); err != nil {
		t.Fatalf("grid error = %v", err)
	}

	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `rice_deteriorate_cells_total{mode="worse"} 4`) {
		t.Errorf("metrics file = %s", data)
	}
	if info, err := os.Stat(outPath); err != nil || info.Size() == 0 {
		t.Errorf("snapshot not written: %v", err)
	}
}

func TestGridCommand_ResetStoreAndProgress(t *testing.T) {
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr()
	t.Setenv("RICE_DET_STORE_TYPE", "redis")
	t.Setenv("RICE_DET_REDIS_URL", url)
	t.Setenv("RICE_DET_STORE_PREFIX", "cli:")

	ctx := context.Background()
	stale := results.Key{Swaps: 9, Replacements: 9, Mode: deteriorate.ModeBetter}
	store, err := results.NewRedisStore(url, "cli:", 0)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()
	if err := store.Put(ctx, &results.Cell{Key: stale, Comparison: &evaluation.Comparison{}}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	dir := t.TempDir()
	runPath, qrelsPath := writeInputs(t, dir)
	var progress bytes.Buffer
	root := newRootCmd()
	root.SetErr(&progress)
	root.SetArgs([]string{
		"grid",
		"--run", runPath,
		"--qrels", qrelsPath,
		"--out", filepath.Join(dir, "cells.json"),
		"--max", "1",
		"--modes", "worse",
		"--reset-store",
		"--progress",
	})
	if err := root.Execute(); err != nil {
		t.Fatalf("grid error = %v", err)
	}

	if _, err := store.Get(ctx, stale); !errors.IsNotFound(err) {
		t.Errorf("stale cell survived --reset-store: %v", err)
	}
	cells, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(cells) != 4 {
		t.Errorf("store holds %d cells, want 4", len(cells))
	}

	out := progress.String()
	if got := strings.Count(out, "/4] "); got != 4 {
		t.Errorf("progress printed %d cell lines, want 4:\n%s", got, out)
	}
	for _, want := range []string{"[4/4]", "s=1/r=1/worse", "ktu="} {
		if !strings.Contains(out, want) {
			t.Errorf("progress missing %q:\n%s", want, out)
		}
	}
}

func TestEventsCommands(t *testing.T) {
	dir := t.TempDir()
	runPath, qrelsPath := writeInputs(t, dir)
	eventLog := filepath.Join(dir, "events", "grid.jsonl")
	t.Setenv("RICE_DET_EVENT_LOG", eventLog)

	execute := func(args ...string) (string, string) {
		t.Helper()
		var stdout, stderr bytes.Buffer
		root := newRootCmd()
		root.SetOut(&stdout)
		root.SetErr(&stderr)
		root.SetArgs(args)
		if err := root.Execute(); err != nil {
			t.Fatalf("%v error = %v", args, err)
		}
		return stdout.String(), stderr.String()
	}

	execute("grid", "--run", runPath, "--qrels", qrelsPath, "--out", filepath.Join(dir, "cells.json"),
		"--max", "1", "--modes", "better")

	listed, _ := execute("events", "list", "--format", "json")
	var events []bus.LoggedEvent
	if err := json.Unmarshal([]byte(listed), &events); err != nil {
		t.Fatalf("decode events: %v\n%s", err, listed)
	}
	if len(events) != 5 {
		t.Fatalf("logged %d events, want 4 cells and 1 grid", len(events))
	}
	if events[4].Topic != bus.TopicGridCompleted {
		t.Errorf("last event topic = %s, want %s", events[4].Topic, bus.TopicGridCompleted)
	}

	table, _ := execute("events", "list", "--limit", "2")
	if !strings.Contains(table, bus.TopicCellCompleted) || !strings.Contains(table, "2 events") {
		t.Errorf("list --limit 2 output:\n%s", table)
	}

	future, _ := execute("events", "list", "--since", time.Now().Add(time.Hour).Format(time.RFC3339))
	if !strings.Contains(future, "0 events") {
		t.Errorf("list --since future output:\n%s", future)
	}

	replayed, progress := execute("events", "replay", "--since", "1h", "--progress")
	if !strings.Contains(replayed, "replayed 5 events to memory bus") {
		t.Errorf("replay output = %q", replayed)
	}
	if strings.Count(progress, "/better ") != 4 || !strings.Contains(progress, "[4] ") {
		t.Errorf("replay progress:\n%s", progress)
	}

	again, _ := execute("events", "list", "--format", "json")
	if err := json.Unmarshal([]byte(again), &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 5 {
		t.Errorf("replay appended to the log: %d events", len(events))
	}
}

func TestEventsCommand_NoLog(t *testing.T) {
	t.Setenv("RICE_DET_EVENT_LOG", "")
	tests := []struct {
		name string
		args []string
	}{
		{"unset", []string{"events", "list"}},
		{"missing file", []string{"events", "list", "--event-log", filepath.Join(t.TempDir(), "none.jsonl")}},
		{"bad since", []string{"events", "replay", "--event-log", "x.jsonl", "--since", "yesterday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tt.args)
			if err := root.Execute(); err == nil {
				t.Error("Execute() error = nil")
			}
		})
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		value   string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"90m", now.Add(-90 * time.Minute), false},
		{"2024-04-30T08:00:00Z", time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC), false},
		{"-1h", time.Time{}, true},
		{"yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseSince(tt.value, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSince() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseSince() = %v, want %v", got, tt.want)
			}
		})
	}
}
