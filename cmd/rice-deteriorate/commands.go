package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-deteriorate/internal/bus"
	"github.com/ricesearch/rice-deteriorate/internal/config"
	"github.com/ricesearch/rice-deteriorate/internal/deteriorate"
	"github.com/ricesearch/rice-deteriorate/internal/evaluation"
	"github.com/ricesearch/rice-deteriorate/internal/grid"
	"github.com/ricesearch/rice-deteriorate/internal/metrics"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/security"
	"github.com/ricesearch/rice-deteriorate/internal/results"
	"github.com/ricesearch/rice-deteriorate/internal/simulate"
	"github.com/ricesearch/rice-deteriorate/internal/trec"
)

// inputFlags registers the run, qrels and output flags shared by several commands.
func inputFlags(cmd *cobra.Command) {
	cmd.Flags().String("run", "", "TREC run file (overrides config)")
	cmd.Flags().String("qrels", "", "TREC qrels file (overrides config)")
	cmd.Flags().StringP("out", "o", "", "output file (default stdout)")
}

func applyInputFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("run"); cmd.Flags().Changed("run") {
		cfg.Input.Run = v
	}
	if v, _ := cmd.Flags().GetString("qrels"); cmd.Flags().Changed("qrels") {
		cfg.Input.Qrels = v
	}
	if v, _ := cmd.Flags().GetString("out"); cmd.Flags().Changed("out") {
		cfg.Input.Output = v
	}
}

// deteriorationFlags registers the request flags shared by deteriorate and grid.
func deteriorationFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("ratio", 1, "fraction of topics to modify")
	cmd.Flags().String("source", "", `source interval, e.g. "1,10"`)
	cmd.Flags().String("destination", "", `destination interval, e.g. "11,20"`)
	cmd.Flags().Uint64("seed", 0, "random seed (0 = random)")
}

func applyDeteriorationFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetFloat64("ratio"); cmd.Flags().Changed("ratio") {
		cfg.Deterioration.Ratio = v
	}
	if v, _ := cmd.Flags().GetString("source"); cmd.Flags().Changed("source") {
		cfg.Deterioration.Source = v
	}
	if v, _ := cmd.Flags().GetString("destination"); cmd.Flags().Changed("destination") {
		cfg.Deterioration.Destination = v
	}
	if v, _ := cmd.Flags().GetUint64("seed"); cmd.Flags().Changed("seed") {
		cfg.Deterioration.Seed = v
	}
}

func readInputs(cfg *config.Config) (trec.Run, trec.Qrels, error) {
	if cfg.Input.Run == "" || cfg.Input.Qrels == "" {
		return nil, nil, fmt.Errorf("both a run and a qrels file are required (--run, --qrels)")
	}
	run, err := trec.ReadRunFile(cfg.Input.Run)
	if err != nil {
		return nil, nil, err
	}
	qrels, err := trec.ReadQrelsFile(cfg.Input.Qrels)
	if err != nil {
		return nil, nil, err
	}
	return run, qrels, nil
}

func deteriorateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deteriorate",
		Short: "Write one deteriorated copy of a run",
		Long: `Swap and replace documents in a TREC run and write the modified run.

Modes:
  worse        move relevant documents out of the source interval, replace with placeholders
  better       move non-relevant documents out, replace with unretrieved relevant documents
  worsebetter  swap relevant out, replace non-relevant with unretrieved relevant documents
  betterworse  swap non-relevant out, replace relevant with placeholders

Examples:
  rice-deteriorate deteriorate --run bm25.run --qrels qrels.txt --swaps 2 --mode worse
  rice-deteriorate deteriorate -c grid.yaml --replacements 3 --report report.json`,
		RunE: runDeteriorate,
	}

	inputFlags(cmd)
	deteriorationFlags(cmd)
	cmd.Flags().String("mode", "", "worse, better, worsebetter or betterworse")
	cmd.Flags().Int("swaps", 0, "swaps per selected topic")
	cmd.Flags().Int("replacements", 0, "replacements per selected topic")
	cmd.Flags().Bool("clamp", false, "reduce oversized quantities per topic instead of failing")
	cmd.Flags().String("tag", "", "run tag of the written run")
	cmd.Flags().String("report", "", "write the per-topic report as JSON to this file")

	return cmd
}

func runDeteriorate(cmd *cobra.Command, _ []string) error {
	cfg, log, closeLog, err := setup(cmd, func(cfg *config.Config) {
		applyInputFlags(cmd, cfg)
		applyDeteriorationFlags(cmd, cfg)
		if v, _ := cmd.Flags().GetString("mode"); cmd.Flags().Changed("mode") {
			cfg.Deterioration.Mode = v
		}
		if v, _ := cmd.Flags().GetInt("swaps"); cmd.Flags().Changed("swaps") {
			cfg.Deterioration.Swaps = v
		}
		if v, _ := cmd.Flags().GetInt("replacements"); cmd.Flags().Changed("replacements") {
			cfg.Deterioration.Replacements = v
		}
		if v, _ := cmd.Flags().GetBool("clamp"); cmd.Flags().Changed("clamp") {
			cfg.Deterioration.ClampQuantity = v
		}
		if v, _ := cmd.Flags().GetString("tag"); cmd.Flags().Changed("tag") {
			cfg.Input.Tag = v
		}
	})
	if err != nil {
		return err
	}
	defer closeLog()

	req, err := cfg.Deterioration.Request()
	if err != nil {
		return err
	}
	run, qrels, err := readInputs(cfg)
	if err != nil {
		return err
	}

	opts := []deteriorate.Option{
		deteriorate.WithLogger(log),
		deteriorate.WithVerbose(cfg.Deterioration.Verbose),
		deteriorate.WithQuantityClamp(cfg.Deterioration.ClampQuantity),
	}
	if cfg.Deterioration.Seed != 0 {
		opts = append(opts, deteriorate.WithSeed(cfg.Deterioration.Seed))
	}

	result, err := deteriorate.New(opts...).Deteriorate(run, qrels, req)
	if err != nil {
		return err
	}

	w, closeOut, err := openOutput(cfg.Input.Output)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	if err := trec.WriteRun(w, result.Run, cfg.Input.Tag); err != nil {
		closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}

	swaps, replacements := result.Totals()
	log.Info("Deterioration complete",
		"mode", req.Mode,
		"topics", len(result.Topics),
		"selected", len(result.Selected()),
		"swaps", swaps,
		"replacements", replacements,
	)

	if reportPath, _ := cmd.Flags().GetString("report"); reportPath != "" {
		return writeReport(reportPath, result)
	}
	return nil
}

type reportFile struct {
	Topics       []*deteriorate.TopicReport `json:"topics"`
	Selected     []string                   `json:"selected"`
	Swaps        int                        `json:"swaps"`
	Replacements int                        `json:"replacements"`
}

func writeReport(path string, result *deteriorate.Result) error {
	rf := reportFile{Selected: result.Selected()}
	rf.Swaps, rf.Replacements = result.Totals()
	for _, report := range result.Topics {
		rf.Topics = append(rf.Topics, report)
	}
	sort.Slice(rf.Topics, func(i, j int) bool { return rf.Topics[i].Topic < rf.Topics[j].Topic })

	w, closeOut, err := openOutput(path)
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rf); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

func gridCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Sweep swap and replacement counts across modes",
		Long: `Run the deterioration for every (swaps, replacements, mode) cell of a grid and
compare each modified run with the original. Cells run in parallel, are stored in the
configured result store (memory or redis) and announced on the configured bus.

The store snapshot is written as JSON to --out. With --metrics, grid metrics are
written in Prometheus text format to the given path when the run ends. --reset-store
deletes cells left in the store by earlier grids before the first cell runs, and
--progress prints a line per finished cell when the bus is local.`,
		RunE: runGrid,
	}

	inputFlags(cmd)
	deteriorationFlags(cmd)
	cmd.Flags().Int("max", 0, "largest swap and replacement count (0 = half the source interval)")
	cmd.Flags().Int("step", 1, "count step")
	cmd.Flags().Int("workers", 4, "cells computed in parallel")
	cmd.Flags().StringSlice("modes", nil, "modes to sweep (default all)")
	cmd.Flags().Int("trim", 1000, "trim run depth before deteriorating (0 = keep all)")
	cmd.Flags().StringSlice("measures", nil, "measures to compare (default P_10,P_20,map,ndcg,ndcg_cut_10,recall_1000,recip_rank)")
	cmd.Flags().String("metrics", "", "write Prometheus metrics to this file")
	cmd.Flags().Bool("reset-store", false, "delete stored cells before running")
	cmd.Flags().Bool("progress", false, "print each finished cell to stderr")

	return cmd
}

func runGrid(cmd *cobra.Command, _ []string) error {
	cfg, log, closeLog, err := setup(cmd, func(cfg *config.Config) {
		applyInputFlags(cmd, cfg)
		applyDeteriorationFlags(cmd, cfg)
		if v, _ := cmd.Flags().GetInt("max"); cmd.Flags().Changed("max") {
			cfg.Grid.Max = v
		}
		if v, _ := cmd.Flags().GetInt("step"); cmd.Flags().Changed("step") {
			cfg.Grid.Step = v
		}
		if v, _ := cmd.Flags().GetInt("workers"); cmd.Flags().Changed("workers") {
			cfg.Grid.Workers = v
		}
		if v, _ := cmd.Flags().GetStringSlice("modes"); cmd.Flags().Changed("modes") {
			cfg.Grid.Modes = v
		}
		if v, _ := cmd.Flags().GetInt("trim"); cmd.Flags().Changed("trim") {
			cfg.Grid.Trim = v
		}
		if v, _ := cmd.Flags().GetStringSlice("measures"); cmd.Flags().Changed("measures") {
			cfg.Grid.Measures = v
		}
	})
	if err != nil {
		return err
	}
	defer closeLog()

	gcfg, err := gridConfig(cfg)
	if err != nil {
		return err
	}
	run, qrels, err := readInputs(cfg)
	if err != nil {
		return err
	}

	store, err := results.NewStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer store.Close()
	if cfg.Store.Type == "redis" {
		log.Info("Using redis result store", "url", security.MaskURL(cfg.Store.RedisURL), "prefix", cfg.Store.KeyPrefix)
	}

	publisher, err := bus.NewPublisher(cfg.Bus, log)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer publisher.Close()

	progress, _ := cmd.Flags().GetBool("progress")
	if progress {
		if err := subscribeProgress(publisher, cmd.ErrOrStderr(), len(gcfg.Keys()), log); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if reset, _ := cmd.Flags().GetBool("reset-store"); reset {
		if err := store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to reset result store: %w", err)
		}
		log.Info("Result store cleared", "type", cfg.Store.Type)
	}

	var opts []grid.Option
	metricsPath, _ := cmd.Flags().GetString("metrics")
	if metricsPath != "" {
		m := metrics.New()
		opts = append(opts, grid.WithMetrics(m))
		defer func() {
			if err := m.WriteFile(metricsPath); err != nil {
				log.Warn("Failed to write metrics", "path", metricsPath, "error", err.Error())
			}
		}()
	}

	summary, err := grid.NewRunner(gcfg, store, publisher, log, opts...).Run(ctx, run, qrels)
	if err != nil {
		return err
	}
	if progress {
		drainProgress(publisher, log)
	}

	w, closeOut, err := openOutput(cfg.Input.Output)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	if err := results.Snapshot(ctx, store, w); err != nil {
		closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}

	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stderr).Encode(summary)
	}
	fmt.Fprintf(os.Stderr, "grid: %d cells in %s (seed %d, run %s)\n",
		summary.Cells, summary.Duration.Round(time.Millisecond), summary.Seed, summary.Fingerprint[:12])
	return nil
}

func gridConfig(cfg *config.Config) (grid.Config, error) {
	req, err := cfg.Deterioration.Request()
	if err != nil {
		return grid.Config{}, err
	}
	modes, err := cfg.Grid.ParsedModes()
	if err != nil {
		return grid.Config{}, err
	}

	limit := cfg.Grid.Max
	if limit == 0 {
		limit = grid.DefaultMax(req.Source)
	}

	return grid.Config{
		Ratio:       req.Ratio,
		Source:      req.Source,
		Destination: req.Destination,
		Modes:       modes,
		Values:      grid.Values(limit, cfg.Grid.Step),
		Workers:     cfg.Grid.Workers,
		Seed:        cfg.Deterioration.Seed,
		Trim:        cfg.Grid.Trim,
		Measures:    cfg.Grid.Measures,
	}, nil
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <original-run> <modified-run>",
		Short: "Compare a modified run with its original",
		Long: `Score both runs against the qrels and print the reproducibility measures:
Kendall's tau union, rank-biased overlap, Hamming distance, RMSE, nRMSE and the
paired t-test p-value per measure.`,
		Args: cobra.ExactArgs(2),
		RunE: runEvaluate,
	}

	cmd.Flags().String("qrels", "", "TREC qrels file (overrides config)")
	cmd.Flags().StringSlice("measures", nil, "measures to compare (default P_10,P_20,map,ndcg,ndcg_cut_10,recall_1000,recip_rank)")
	cmd.Flags().Int("trim", 0, "trim both runs to this depth first (0 = keep all)")

	return cmd
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, _, closeLog, err := setup(cmd, func(cfg *config.Config) {
		if v, _ := cmd.Flags().GetString("qrels"); cmd.Flags().Changed("qrels") {
			cfg.Input.Qrels = v
		}
		if v, _ := cmd.Flags().GetStringSlice("measures"); cmd.Flags().Changed("measures") {
			cfg.Grid.Measures = v
		}
	})
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Input.Qrels == "" {
		return fmt.Errorf("a qrels file is required (--qrels)")
	}
	qrels, err := trec.ReadQrelsFile(cfg.Input.Qrels)
	if err != nil {
		return err
	}
	orig, err := trec.ReadRunFile(args[0])
	if err != nil {
		return err
	}
	rep, err := trec.ReadRunFile(args[1])
	if err != nil {
		return err
	}
	if depth, _ := cmd.Flags().GetInt("trim"); depth > 0 {
		orig, rep = orig.Trim(depth), rep.Trim(depth)
	}

	evaluator, err := evaluation.NewEvaluator(qrels, cfg.Grid.Measures...)
	if err != nil {
		return err
	}
	cmp := evaluator.Compare(orig, rep, nil)

	if outputFormat(cmd) == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cmp)
	}
	return printComparison(os.Stdout, cmp, evaluator.Measures())
}

func printComparison(w io.Writer, cmp *evaluation.Comparison, measures []string) error {
	fmt.Fprintf(w, "topics:  %d\n", cmp.Topics)
	fmt.Fprintf(w, "ktu:     %.4f\n", cmp.MeanKTU)
	fmt.Fprintf(w, "rbo:     %.4f\n", cmp.MeanRBO)
	fmt.Fprintf(w, "hamming: %.4f\n", cmp.MeanHamming)
	fmt.Fprintf(w, "match:   %.4f\n\n", cmp.MeanMatch)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "measure\toriginal\tmodified\trmse\tnrmse\tp-value")
	for _, m := range measures {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4g\n",
			m, cmp.Original[m], cmp.Modified[m], cmp.RMSE[m], cmp.NRMSE[m], cmp.PValue[m])
	}
	return tw.Flush()
}

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic run and its qrels",
		Long: `Generate a run whose relevant documents sit at a known place in every ranking.

Layouts:
  ideal     relevant documents at the top
  reversed  relevant documents at the bottom
  random    relevant documents spread at random`,
		RunE: runSimulate,
	}

	cmd.Flags().Int("topics", 50, "number of topics")
	cmd.Flags().Int("length", 1000, "documents per topic")
	cmd.Flags().Int("relevant", 10, "relevant documents per topic")
	cmd.Flags().String("layout", string(simulate.LayoutRandom), "ideal, reversed or random")
	cmd.Flags().Uint64("seed", 0, "random seed (0 = random)")
	cmd.Flags().String("run-out", "", "run output file (default stdout)")
	cmd.Flags().String("qrels-out", "", "qrels output file")
	cmd.Flags().String("tag", "simulated", "run tag")
	_ = cmd.MarkFlagRequired("qrels-out")

	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	topics, _ := cmd.Flags().GetInt("topics")
	length, _ := cmd.Flags().GetInt("length")
	relevant, _ := cmd.Flags().GetInt("relevant")
	layout, _ := cmd.Flags().GetString("layout")
	seed, _ := cmd.Flags().GetUint64("seed")
	runOut, _ := cmd.Flags().GetString("run-out")
	qrelsOut, _ := cmd.Flags().GetString("qrels-out")
	tag, _ := cmd.Flags().GetString("tag")

	run, qrels, err := simulate.Generate(simulate.Config{
		Topics:   topics,
		Length:   length,
		Relevant: relevant,
		Layout:   simulate.Layout(layout),
		Seed:     seed,
	})
	if err != nil {
		return err
	}

	if err := trec.WriteQrelsFile(qrelsOut, qrels); err != nil {
		return err
	}
	if runOut != "" {
		return trec.WriteRunFile(runOut, run, tag)
	}
	return trec.WriteRun(os.Stdout, run, tag)
}
