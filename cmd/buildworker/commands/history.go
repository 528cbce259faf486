package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/journal"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Attempt string        `short:"a" help:"Show every recorded event of one attempt"`
	Since   time.Duration `help:"Summarize attempts started within this window" default:"24h"`
	JSON    bool          `name:"json" help:"Print JSON instead of a table"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return errors.ConfigError("the attempt journal is disabled").
			WithContext("setting", "journal.enabled").
			Build()
	}
	jr, err := journal.Open(cfg.Journal.Path, clockwork.NewRealClock())
	if err != nil {
		return err
	}
	defer func() {
		if err := jr.Close(); err != nil {
			slog.Warn("Failed to close journal", logfields.Error(err))
		}
	}()

	ctx := context.Background()
	if h.Attempt != "" {
		entries, err := jr.History(ctx, h.Attempt)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return errors.ValidationError("no journal entries for attempt").WithContext("attempt_id", h.Attempt).Build()
		}
		return writeEntries(os.Stdout, entries, h.JSON)
	}

	entries, err := jr.Since(ctx, time.Now().Add(-h.Since))
	if err != nil {
		return err
	}
	return writeSummaries(os.Stdout, journal.Summarize(entries), h.JSON)
}

func writeEntries(w io.Writer, entries []journal.Entry, asJSON bool) error {
	if asJSON {
		return writeJSON(w, entries)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tEVENT\tDETAIL")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Timestamp.Local().Format(time.RFC3339), e.Type, formatDetail(e.Detail))
	}
	return tw.Flush()
}

func writeSummaries(w io.Writer, summaries []journal.Summary, asJSON bool) error {
	if asJSON {
		return writeJSON(w, summaries)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ATTEMPT\tSTATUS\tSTARTED\tDURATION\tRETRIES\tERROR")
	for _, s := range summaries {
		dur := "-"
		if s.FinishedAt != nil {
			dur = s.Duration.Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.AttemptID, s.Status, s.StartedAt.Local().Format(time.RFC3339), dur, s.Retries, firstLine(s.Error))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.InternalError("failed to encode history").WithCause(err).Build()
	}
	return nil
}

// formatDetail renders detail as sorted key=value pairs.
func formatDetail(detail map[string]string) string {
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+firstLine(detail[k]))
	}
	return strings.Join(parts, " ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
