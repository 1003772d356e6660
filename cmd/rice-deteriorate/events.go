package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-deteriorate/internal/bus"
	"github.com/ricesearch/rice-deteriorate/internal/config"
	"github.com/ricesearch/rice-deteriorate/internal/grid"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/logger"
)

const drainTimeout = 5 * time.Second

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect or replay the grid event log",
		Long: `Read the JSON lines event log written when bus.event_log is set.

'events list' prints logged events. 'events replay' publishes them again on the
configured bus, without appending to the log being read.`,
	}

	cmd.PersistentFlags().String("event-log", "", "event log path (default bus.event_log)")
	cmd.PersistentFlags().String("since", "", "only events logged after this time (RFC 3339) or this long ago (e.g. 2h)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print logged events",
		RunE:  runEventsList,
	}
	listCmd.Flags().Int("limit", 0, "print at most this many events (0 = all)")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Publish logged events again",
		RunE:  runEventsReplay,
	}
	replayCmd.Flags().Bool("progress", false, "print each replayed cell event (memory bus only)")

	cmd.AddCommand(listCmd, replayCmd)
	return cmd
}

// eventLog is an opened event log plus the settings it was opened with.
type eventLog struct {
	cfg    *config.Config
	log    *logger.Logger
	since  time.Time
	events *bus.EventLogger
}

func openEventLog(cmd *cobra.Command) (*eventLog, func(), error) {
	cfg, log, closeLog, err := setup(cmd, func(cfg *config.Config) {
		if v, _ := cmd.Flags().GetString("event-log"); cmd.Flags().Changed("event-log") {
			cfg.Bus.EventLog = v
		}
	})
	if err != nil {
		return nil, nil, err
	}

	sinceFlag, _ := cmd.Flags().GetString("since")
	since, err := parseSince(sinceFlag, time.Now())
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	path := cfg.Bus.EventLog
	if path == "" {
		closeLog()
		return nil, nil, errors.ValidationError("no event log configured, set --event-log or bus.event_log")
	}
	if _, err := os.Stat(path); err != nil {
		closeLog()
		return nil, nil, errors.IOError(path, err)
	}

	events, err := bus.NewEventLogger(path)
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	closer := func() {
		if err := events.Close(); err != nil {
			log.Warn("Failed to close event log", "path", path, "error", err.Error())
		}
		closeLog()
	}
	return &eventLog{cfg: cfg, log: log, since: since, events: events}, closer, nil
}

// parseSince accepts an RFC 3339 time or a duration counted back from now.
// An empty value means the beginning of the log.
func parseSince(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return time.Time{}, errors.Newf(errors.CodeValidation, "invalid --since %q: duration must not be negative", value)
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.Newf(errors.CodeValidation, "invalid --since %q: want RFC 3339 time or duration", value)
	}
	return t, nil
}

func runEventsList(cmd *cobra.Command, _ []string) error {
	el, closer, err := openEventLog(cmd)
	if err != nil {
		return err
	}
	defer closer()

	limit, _ := cmd.Flags().GetInt("limit")
	events, err := el.events.Events(el.since, limit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if outputFormat(cmd) == "json" {
		return json.NewEncoder(w).Encode(events)
	}
	return printEvents(w, events)
}

func printEvents(w io.Writer, events []bus.LoggedEvent) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOGGED\tTOPIC\tID\tDETAIL")
	for _, e := range events {
		detail := ""
		if ce, err := grid.DecodeCellEvent(e.Event); err == nil {
			detail = fmt.Sprintf("%s ktu=%.4f rbo=%.4f", ce.Key, ce.MeanKTU, ce.MeanRBO)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Topic, e.Event.ID, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d events\n", len(events))
	return err
}

func runEventsReplay(cmd *cobra.Command, _ []string) error {
	el, closer, err := openEventLog(cmd)
	if err != nil {
		return err
	}
	defer closer()

	target := el.cfg.Bus
	target.EventLog = ""
	publisher, err := bus.NewPublisher(target, el.log)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}

	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		if err := subscribeProgress(publisher, cmd.ErrOrStderr(), 0, el.log); err != nil {
			_ = publisher.Close()
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := bus.NewPublishStats()
	replayErr := el.events.Replay(ctx, bus.NewInstrumentedPublisher(publisher, stats), el.since)
	// Close drains local subscribers before the count is printed.
	if err := publisher.Close(); err != nil {
		el.log.Warn("Failed to close event publisher", "error", err.Error())
	}
	if replayErr != nil {
		return replayErr
	}

	snap := stats.Snapshot()
	if outputFormat(cmd) == "json" {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(snap)
	}
	total := 0
	for _, n := range snap.Published {
		total += n
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "replayed %d events to %s bus\n", total, busName(target))
	return err
}

func busName(cfg config.BusConfig) string {
	if cfg.Type == "" {
		return "memory"
	}
	return cfg.Type
}

// subscribeProgress prints one line per completed cell to w. total is the expected
// number of cells, or 0 when unknown. Publishers without a local bus get a warning.
func subscribeProgress(p bus.Publisher, w io.Writer, total int, log *logger.Logger) error {
	local, ok := bus.AsBus(p)
	if !ok {
		log.Warn("Progress needs a local bus, not printing progress")
		return nil
	}
	return local.Subscribe(context.Background(), bus.TopicCellCompleted, progressHandler(w, total))
}

func progressHandler(w io.Writer, total int) bus.Handler {
	var (
		mu   sync.Mutex
		done int
	)
	return func(_ context.Context, e bus.Event) error {
		ce, err := grid.DecodeCellEvent(e)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		done++
		count := fmt.Sprintf("[%d]", done)
		if total > 0 {
			count = fmt.Sprintf("[%d/%d]", done, total)
		}
		_, err = fmt.Fprintf(w, "%s %s swaps=%d replacements=%d ktu=%.4f rbo=%.4f\n",
			count, ce.Key, ce.Swaps, ce.Replacements, ce.MeanKTU, ce.MeanRBO)
		return err
	}
}

// drainProgress waits for progress lines still being printed.
func drainProgress(p bus.Publisher, log *logger.Logger) {
	local, ok := bus.AsBus(p)
	if !ok {
		return
	}
	d, ok := local.(interface{ DrainTimeout(time.Duration) bool })
	if ok && !d.DrainTimeout(drainTimeout) {
		log.Warn("Progress output still pending after drain timeout")
	}
}
