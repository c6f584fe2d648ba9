package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/perimetra/gwadmin/pkg/bulk"
	"github.com/perimetra/gwadmin/pkg/checkpoint"
	"github.com/perimetra/gwadmin/pkg/search"
)

// Traffic index defaults. The search endpoint follows the platform's
// es-proxy layout; the sort is timestamp ascending with the unique
// correlation id as tiebreak.
const (
	DefaultSearchPath = "/api/es/traffic/_search"
	DefaultBulkPath   = "/api/es/traffic/_bulk"
	DefaultIndex      = "traffic"

	timestampField = "@timestamp"
	tiebreakField  = "correlationId"
)

func newTrafficCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traffic",
		Short: "Work with the traffic event index",
	}
	cmd.AddCommand(newTrafficExportCmd(), newTrafficPurgeCmd())
	return cmd
}

// trafficExportParams holds the options of "traffic export".
type trafficExportParams struct {
	path       string
	fromStr    string
	toStr      string
	services   []string
	status     int
	size       int
	maxPages   int
	checkpoint string
	noResume   bool
}

// newTrafficExportCmd creates the "traffic export" command: a cursor scan
// over the traffic index, written to stdout as NDJSON. With --checkpoint
// the continuation key is persisted to Redis after every page, so an
// interrupted export resumes where it stopped.
func newTrafficExportCmd() *cobra.Command {
	var params trafficExportParams

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export traffic events as NDJSON",
		Long: `Stream traffic events matching the given filters to stdout, one JSON
document per line. The scan pages through the index with a search_after
cursor and keeps fetching until the index returns an empty page.

With --checkpoint NAME the scan saves its continuation key to Redis after
every page. Rerunning with the same name resumes strictly after the last
exported document; --no-resume ignores a stored checkpoint and starts
over.`,
		Example: `  # All events of one service in a time window
  gwadmin traffic export --service orders --from 2026-08-01T00:00:00Z --to 2026-08-31T00:00:00Z

  # Resumable export of server errors
  gwadmin traffic export --status 500 --checkpoint errors-aug`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrafficExport(cmd, params)
		},
	}

	cmd.Flags().StringVar(&params.path, "path", DefaultSearchPath, "search endpoint path")
	cmd.Flags().StringVar(&params.fromStr, "from", "", "lower time bound (RFC 3339 or unix milliseconds)")
	cmd.Flags().StringVar(&params.toStr, "to", "", "upper time bound (RFC 3339 or unix milliseconds)")
	cmd.Flags().StringArrayVar(&params.services, "service", nil, "only events of this service (repeatable)")
	cmd.Flags().IntVar(&params.status, "status", 0, "only events with this HTTP status")
	cmd.Flags().IntVar(&params.size, "size", 0, "page size (default 500)")
	cmd.Flags().IntVar(&params.maxPages, "max-pages", 0, "stop after this many pages (0 = until empty)")
	cmd.Flags().StringVar(&params.checkpoint, "checkpoint", "", "checkpoint name for resumable exports")
	cmd.Flags().BoolVar(&params.noResume, "no-resume", false, "ignore a stored checkpoint and start over")

	return cmd
}

func runTrafficExport(cmd *cobra.Command, params trafficExportParams) error {
	ctx := cmd.Context()

	c, resolved, err := newClient(cmd)
	if err != nil {
		return err
	}

	query, err := buildTrafficQuery(params)
	if err != nil {
		return err
	}

	runID := ulid.Make().String()
	logger := log.With().Str("component", "export").Str("run_id", runID).Logger()

	var (
		store     *checkpoint.Store
		documents int64
	)
	if params.checkpoint != "" {
		rdb := redis.NewClient(&redis.Options{Addr: resolved.redisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("checkpoint redis %s: %w", resolved.redisAddr, err)
		}
		store = checkpoint.NewStore(rdb, 0)

		if !params.noResume {
			cursor, err := store.Load(ctx, params.checkpoint)
			switch {
			case errors.Is(err, checkpoint.ErrNotFound):
				logger.Warn().
					Str("checkpoint", params.checkpoint).
					Msg("No checkpoint found, starting from the beginning")
			case err != nil:
				return err
			default:
				query.After(cursor.SortKey)
				documents = cursor.Documents
				logger.Info().
					Str("checkpoint", params.checkpoint).
					Int64("documents", documents).
					Time("updated_at", cursor.UpdatedAt).
					Msg("Resuming export from checkpoint")
			}
		}
	}

	scanner, err := search.NewScanner(search.Config{
		Doer:     c,
		Query:    query,
		MaxPages: params.maxPages,
	})
	if err != nil {
		return err
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	start := time.Now()
	pages := 0
	for page, err := range scanner.Pages(ctx) {
		if err != nil {
			return fmt.Errorf("export aborted after %d documents: %w", documents, err)
		}
		for _, hit := range page.Hits {
			if _, err := out.Write(hit.Source); err != nil {
				return err
			}
			if err := out.WriteByte('\n'); err != nil {
				return err
			}
		}
		pages++
		documents += int64(len(page.Hits))

		if store != nil {
			cursor := checkpoint.Cursor{SortKey: page.After, Documents: documents, RunID: runID}
			if err := store.Save(ctx, params.checkpoint, cursor); err != nil {
				return err
			}
		}
	}
	if err := out.Flush(); err != nil {
		return err
	}

	// A finished export does not need its checkpoint anymore; the next run
	// with the same name starts fresh.
	if store != nil {
		if err := store.Clear(ctx, params.checkpoint); err != nil {
			logger.Warn().Err(err).Str("checkpoint", params.checkpoint).Msg("Clearing checkpoint failed")
		}
	}

	logger.Info().
		Int("pages", pages).
		Int64("documents", documents).
		Dur("duration", time.Since(start)).
		Msg("Export completed")

	return nil
}

// buildTrafficQuery turns the export options into a validated cursor query.
func buildTrafficQuery(params trafficExportParams) (*search.Query, error) {
	query := search.NewQuery(params.path).
		SortAsc(timestampField).
		Tiebreak(tiebreakField)

	if params.size > 0 {
		query.Size(params.size)
	}
	switch len(params.services) {
	case 0:
	case 1:
		query.Must(search.Term("service", params.services[0]))
	default:
		values := make([]any, len(params.services))
		for i, s := range params.services {
			values[i] = s
		}
		query.Must(search.Terms("service", values...))
	}
	if params.status > 0 {
		query.Must(search.Term("status", params.status))
	}

	from, err := parseTimeBound(params.fromStr)
	if err != nil {
		return nil, fmt.Errorf("--from: %w", err)
	}
	to, err := parseTimeBound(params.toStr)
	if err != nil {
		return nil, fmt.Errorf("--to: %w", err)
	}
	if from != nil || to != nil {
		query.Must(search.Range(timestampField, from, to))
	}

	return query, nil
}

// parseTimeBound accepts RFC 3339 or unix milliseconds and returns the
// bound as unix milliseconds. An empty string is an open bound.
func parseTimeBound(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%q is neither RFC 3339 nor unix milliseconds", s)
	}
	return t.UnixMilli(), nil
}

// trafficPurgeParams holds the options of "traffic purge".
type trafficPurgeParams struct {
	path        string
	index       string
	idsFile     string
	failFast    bool
	batchSize   int
	concurrency int
}

// newTrafficPurgeCmd creates the "traffic purge" command: bulk deletion of
// traffic documents by id.
func newTrafficPurgeCmd() *cobra.Command {
	var params trafficPurgeParams

	cmd := &cobra.Command{
		Use:   "purge [id...]",
		Short: "Bulk-delete traffic events by id",
		Long: `Delete traffic documents by id. The ids are aggregated into
newline-delimited bulk requests; each batch is one HTTP call whose
multi-status response is reported per id.

By default an upstream call failure is suppressed and reported as zero
outcomes, matching the lenient behavior of a single delete. --fail-fast
propagates it instead and stops the purge.`,
		Example: `  gwadmin traffic purge 01J3YV5E 01J3YV5F
  gwadmin traffic purge --ids-file doomed.txt --batch-size 1000 --concurrency 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrafficPurge(cmd, params, args)
		},
	}

	cmd.Flags().StringVar(&params.path, "path", DefaultBulkPath, "bulk endpoint path")
	cmd.Flags().StringVar(&params.index, "index", DefaultIndex, "index the documents live in")
	cmd.Flags().StringVar(&params.idsFile, "ids-file", "", "file with one id per line ('-' for stdin)")
	cmd.Flags().BoolVar(&params.failFast, "fail-fast", false, "propagate upstream failures instead of suppressing them")
	cmd.Flags().IntVar(&params.batchSize, "batch-size", 0, "ids per bulk call (default 500)")
	cmd.Flags().IntVar(&params.concurrency, "concurrency", 0, "batches in flight (default 1)")

	return cmd
}

func runTrafficPurge(cmd *cobra.Command, params trafficPurgeParams, args []string) error {
	ids, err := collectIDs(cmd, params.idsFile, args)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no ids given; pass them as arguments or through --ids-file")
	}

	c, _, err := newClient(cmd)
	if err != nil {
		return err
	}

	outcomes, err := bulk.DeleteAll(cmd.Context(), c, params.index, ids, bulk.Options{
		Path:        params.path,
		FailOnError: params.failFast,
		BatchSize:   params.batchSize,
		Concurrency: params.concurrency,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	deleted, failed := 0, 0
	for _, outcome := range outcomes {
		if outcome.OK() {
			deleted++
			fmt.Fprintf(out, "%s\t%s\n", outcome.ID, outcome.Result)
			continue
		}
		failed++
		fmt.Fprintf(out, "%s\tfailed\t%d\t%v\n", outcome.ID, outcome.Status, outcome.Err)
	}

	log.Info().
		Int("requested", len(ids)).
		Int("deleted", deleted).
		Int("failed", failed).
		Msg("Purge completed")

	if failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", failed, len(ids))
	}
	return nil
}

// collectIDs merges positional ids with the ones read from --ids-file.
func collectIDs(cmd *cobra.Command, idsFile string, args []string) ([]string, error) {
	ids := append([]string(nil), args...)
	if idsFile == "" {
		return ids, nil
	}

	var reader io.Reader
	if idsFile == "-" {
		reader = cmd.InOrStdin()
	} else {
		f, err := os.Open(idsFile)
		if err != nil {
			return nil, fmt.Errorf("read ids: %w", err)
		}
		defer f.Close()
		reader = f
	}

	sc := bufio.NewScanner(reader)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ids: %w", err)
	}
	return ids, nil
}
