package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/3leaps/zonestore/internal/observability"
	"github.com/3leaps/zonestore/pkg/output"
	"github.com/3leaps/zonestore/pkg/provider"
)

var putCmd = &cobra.Command{
	Use:   "put <key> <file> | put --prefix <dir> <file>...",
	Short: "Upload files",
	Long: `Upload a local file to <key>, or several files under --prefix.

With --prefix every file is stored as <prefix>/<file name>. Uploads run
concurrently (--parallel) and can be paced with --rate (uploads per second).
Use "-" as the file to read from stdin.

Examples:
  zonestore put /notes/today.txt today.txt
  zonestore put --prefix /images/ *.png --parallel 8 --rate 20
  cat report.csv | zonestore put /reports/latest.csv -`,
	Args: validatePutArgs,
	RunE: runPut,
}

var (
	putPrefix   string
	putParallel int
	putRate     float64
	putJSONL    bool
)

func init() {
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().StringVar(&putPrefix, "prefix", "", "Upload every file under this directory prefix")
	putCmd.Flags().IntVar(&putParallel, "parallel", 4, "Max concurrent uploads")
	putCmd.Flags().Float64Var(&putRate, "rate", 0, "Max uploads per second (0 = unlimited)")
	putCmd.Flags().BoolVar(&putJSONL, "jsonl", false, "Emit one JSONL result record per file plus a summary")
}

func validatePutArgs(cmd *cobra.Command, args []string) error {
	prefix, _ := cmd.Flags().GetString("prefix")
	if prefix != "" {
		if len(args) == 0 {
			return fmt.Errorf("with --prefix, provide at least one <file>")
		}
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("requires exactly 2 arguments: <key> <file> (or use --prefix)")
	}
	return nil
}

// upload is one local file bound for a key.
type upload struct {
	Key  string
	Path string
}

// planUploads maps the arguments to uploads. Stdin ("-") can be read only
// once, so at most one upload may name it.
func planUploads(prefix string, args []string) ([]upload, error) {
	if prefix == "" {
		return []upload{{Key: args[0], Path: args[1]}}, nil
	}
	dir := provider.NormalizePrefix(prefix)
	out := make([]upload, 0, len(args))
	stdin := 0
	for _, p := range args {
		if p == "-" {
			if stdin++; stdin > 1 {
				return nil, fmt.Errorf("stdin (-) may be given only once")
			}
		}
		out = append(out, upload{Key: dir + filepath.Base(p), Path: p})
	}
	return out, nil
}

func runPut(cmd *cobra.Command, args []string) error {
	if IsReadOnly() {
		return exitError(foundry.ExitInvalidArgument, "readonly mode enabled: refusing put", fmt.Errorf("disable --readonly or unset %s", readOnlyEnv))
	}
	if putParallel < 1 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --parallel value", fmt.Errorf("parallel must be >= 1"))
	}
	if putRate < 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --rate value", fmt.Errorf("rate must be >= 0"))
	}

	uploads, err := planUploads(putPrefix, args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid arguments", err)
	}
	for _, u := range uploads {
		if provider.IsRootKey(u.Key) || strings.HasSuffix(u.Key, "/") {
			return exitError(foundry.ExitInvalidArgument, "Invalid key", fmt.Errorf("key %q does not name a file", u.Key))
		}
	}

	store, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	report := newReporter(cmd.OutOrStdout(), "put", cfg.Storage.Backend, putJSONL)

	var limiter *rate.Limiter
	if putRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(putRate), 1)
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(putParallel)
	for _, u := range uploads {
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
			}
			rec, err := putOne(ctx, store, cmd.InOrStdin(), u)
			if err != nil {
				report.fail(ctx, provider.NormalizeKey(u.Key), err)
				return err
			}
			return report.ok(ctx, rec)
		})
	}
	err = g.Wait()
	if cerr := report.close(cmd.Context()); err == nil {
		err = cerr
	}
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return storeError("Failed to upload", err)
	}

	observability.CLILogger.Debug("Upload complete",
		zap.Int("files", len(uploads)),
		zap.Int64("bytes", report.bytes.Load()))
	return nil
}

func putOne(ctx context.Context, store provider.Store, stdin io.Reader, u upload) (*output.ResultRecord, error) {
	var (
		data []byte
		err  error
	)
	if u.Path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(u.Path)
	}
	if err != nil {
		code := foundry.ExitFileReadError
		if os.IsNotExist(err) {
			code = foundry.ExitFileNotFound
		}
		return nil, exitError(code, "Failed to read "+u.Path, err)
	}

	file := &provider.File{
		Name:        provider.BaseName(u.Key),
		ContentType: contentTypeFor(u.Key),
		Data:        data,
	}
	if err := store.Set(ctx, u.Key, file); err != nil {
		observability.CLILogger.Error("Upload failed", zap.String("key", u.Key), zap.String("file", u.Path), zap.Error(err))
		return nil, err
	}

	sum := provider.Checksum(data)
	observability.CLILogger.Debug("Uploaded",
		zap.String("key", u.Key),
		zap.Int64("size", file.Size()),
		zap.String("checksum", sum))
	return &output.ResultRecord{
		Key:      provider.NormalizeKey(u.Key),
		Source:   u.Path,
		Size:     file.Size(),
		Checksum: sum,
	}, nil
}

func contentTypeFor(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
