package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/zonestore/internal/observability"
	"github.com/3leaps/zonestore/pkg/match"
	"github.com/3leaps/zonestore/pkg/output"
	"github.com/3leaps/zonestore/pkg/provider"
)

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List files under a prefix",
	Long: `List the files directly under a directory prefix (default "/").

Directories are not listed. Results are paged with --limit; pass the printed
cursor back with --cursor, or use --all to read every page.

--match and --exclude filter keys with globs (repeatable). Patterns without
a slash match the file name, patterns with a slash match the whole key.
--min-size, --max-size, --after and --before filter on file metadata and
turn on --metadata.

Examples:
  zonestore ls /images/
  zonestore ls /images/ --limit 100 --cursor 200
  zonestore ls /images/ --metadata --match '*.png'
  zonestore ls / --all --format json
  zonestore ls /logs/ --all --min-size 1MiB --after 2024-01-01`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var (
	lsLimit    int
	lsCursor   string
	lsAll      bool
	lsMetadata bool
	lsMatch    []string
	lsExclude  []string
	lsNoHidden bool
	lsFilter   match.FilterConfig
	lsFormat   string
)

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().IntVarP(&lsLimit, "limit", "n", 0, "Max entries per page (default all)")
	lsCmd.Flags().StringVar(&lsCursor, "cursor", "", "Resume from a previous page cursor")
	lsCmd.Flags().BoolVar(&lsAll, "all", false, "Follow cursors until the listing is exhausted")
	lsCmd.Flags().BoolVarP(&lsMetadata, "metadata", "l", false, "Include size, modification time and content type")
	lsCmd.Flags().StringArrayVar(&lsMatch, "match", nil, "Only show keys matching this glob (doublestar syntax, repeatable)")
	lsCmd.Flags().StringArrayVar(&lsExclude, "exclude", nil, "Hide keys matching this glob (repeatable)")
	lsCmd.Flags().BoolVar(&lsNoHidden, "no-hidden", false, "Hide keys with a path segment starting with '.'")
	lsCmd.Flags().StringVar(&lsFilter.MinSize, "min-size", "", "Minimum file size, e.g. 1KB or 10MiB")
	lsCmd.Flags().StringVar(&lsFilter.MaxSize, "max-size", "", "Maximum file size")
	lsCmd.Flags().StringVar(&lsFilter.After, "after", "", "Modified on or after this date (ISO 8601)")
	lsCmd.Flags().StringVar(&lsFilter.Before, "before", "", "Modified before this date (ISO 8601)")
	lsCmd.Flags().StringVar(&lsFilter.KeyRegex, "key-regex", "", "Only show keys matching this regular expression")
	lsCmd.Flags().StringVarP(&lsFormat, "format", "f", "table", "Output format: table, json, jsonl or yaml")
}

func runLs(cmd *cobra.Command, args []string) error {
	prefix := "/"
	if len(args) == 1 {
		prefix = args[0]
	}
	switch lsFormat {
	case "table", "json", "jsonl", "yaml":
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --format value", fmt.Errorf("expected table, json, jsonl or yaml, got %q", lsFormat))
	}
	matcher, err := match.New(match.Config{Includes: lsMatch, Excludes: lsExclude, ExcludeHidden: lsNoHidden})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --match or --exclude pattern", err)
	}
	filter, err := match.NewFilterFromConfig(lsFilter)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid filter", err)
	}

	opts := provider.ListOptions{
		Prefix:          prefix,
		Cursor:          lsCursor,
		IncludeMetadata: lsMetadata || filter.RequiresMetadata(),
	}
	if cmd.Flags().Changed("limit") {
		opts.Limit = provider.Limit(lsLimit)
	}

	store, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}

	start := time.Now()
	result := &provider.ListPage{Files: []provider.ListEntry{}}
	pages := 0
	for {
		page, err := store.List(cmd.Context(), opts)
		if err != nil {
			observability.CLILogger.Error("List failed", zap.String("prefix", prefix), zap.Error(err))
			return storeError("Failed to list objects", err)
		}
		pages++
		provider.ResolveKeys(store, page)
		result.Files = append(result.Files, filterEntries(page.Files, matcher, filter)...)
		result.Cursor = page.Cursor

		if !lsAll || page.Cursor == "" {
			break
		}
		opts.Cursor = page.Cursor
	}

	observability.CLILogger.Debug("Listed objects",
		zap.String("prefix", prefix),
		zap.Stringer("filter", filter),
		zap.Int("pages", pages),
		zap.Int("entries", len(result.Files)))

	if lsFormat == "jsonl" {
		return writeListingJSONL(cmd.Context(), output.NewJSONLWriter(cmd.OutOrStdout(), runID, cfg.Storage.Backend), result, time.Since(start))
	}
	return writeListing(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, lsFormat)
}

func writeListingJSONL(ctx context.Context, w *output.JSONLWriter, page *provider.ListPage, elapsed time.Duration) error {
	defer func() { _ = w.Close() }()
	for _, e := range page.Files {
		rec := &output.EntryRecord{Key: e.Key}
		if m := e.Metadata; m != nil {
			mod := m.ModTime()
			size := m.Size
			rec.Name = m.Name
			rec.Size = &size
			rec.LastModified = &mod
			rec.ContentType = m.ContentType
		}
		if err := w.WriteEntry(ctx, rec); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}
	if err := w.WriteSummary(ctx, &output.SummaryRecord{
		Op:       "ls",
		Count:    int64(len(page.Files)),
		Cursor:   page.Cursor,
		Duration: elapsed.String(),
	}); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

// filterEntries keeps the entries accepted by both m and f.
func filterEntries(entries []provider.ListEntry, m *match.Matcher, f *match.CompositeFilter) []provider.ListEntry {
	if m.IsZero() && f == nil {
		return entries
	}
	out := make([]provider.ListEntry, 0, len(entries))
	for _, e := range entries {
		if m.Match(e.Key) && f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

func writeListing(out, errOut io.Writer, page *provider.ListPage, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(page); err != nil {
			return err
		}
		return enc.Close()
	}

	if err := writeListingTable(out, page.Files); err != nil {
		return err
	}
	if page.Cursor != "" {
		_, err := fmt.Fprintf(errOut, "more entries: --cursor %s\n", page.Cursor)
		return err
	}
	return nil
}

func writeListingTable(out io.Writer, entries []provider.ListEntry) error {
	if len(entries) == 0 || entries[0].Metadata == nil {
		for _, e := range entries {
			if _, err := fmt.Fprintln(out, e.Key); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "KEY\tSIZE\tLAST_MODIFIED\tCONTENT_TYPE"); err != nil {
		return err
	}
	for _, e := range entries {
		m := e.Metadata
		if m == nil {
			m = &provider.FileMetadata{}
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Key,
			formatSize(m.Size),
			m.ModTime().Format("2006-01-02T15:04:05Z"),
			m.ContentType,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
