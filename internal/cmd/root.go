// Package cmd implements the zonestore command line.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/zonestore/internal/config"
	"github.com/3leaps/zonestore/internal/observability"
)

const (
	appName = "zonestore"

	// readOnlyEnv enables --readonly from the environment.
	readOnlyEnv = "ZONESTORE_READONLY"
)

// versionInfo is set at build time through SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

var (
	verbose  bool
	readOnly bool
	cfgFile  string

	// runID tags every log line of one invocation.
	runID string

	storageFlags struct {
		backend   string
		zone      string
		endpoint  string
		baseDir   string
		bucket    string
		region    string
		profile   string
		timeout   time.Duration
		noVerify  bool
		allowRoot bool
	}
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Key/value file storage over a storage-zone API, local disk or S3",
	Long: `zonestore reads and writes files in a storage zone through one small
capability set: get, has, ls, put and rm. The same commands work against a
local directory or an S3 bucket, so scripts can swap backends without change.

Configuration is read from ./zonestore.yaml or
$XDG_CONFIG_HOME/zonestore/config.yaml, then ZONESTORE_* environment
variables, then flags.

Examples:
  ZONESTORE_ACCESS_KEY=... zonestore --zone media ls /images/
  zonestore --backend file --base-dir ./data put /notes/today.txt today.txt
  zonestore serve --port 8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		observability.InitCLILogger(appName, verbose)
		runID = uuid.NewString()
		observability.CLILogger = observability.CLILogger.With(zap.String("run_id", runID))
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging on stderr")
	pf.BoolVar(&readOnly, "readonly", false, "Refuse commands that modify storage (or "+readOnlyEnv+"=1)")
	pf.StringVar(&cfgFile, "config", "", "Config file (default ./zonestore.yaml, then $XDG_CONFIG_HOME/zonestore/config.yaml)")

	pf.StringVar(&storageFlags.backend, "backend", "", "Storage backend: zone, file or s3")
	pf.StringVar(&storageFlags.zone, "zone", "", "Storage zone name")
	pf.StringVar(&storageFlags.endpoint, "endpoint", "", "Storage API endpoint (zone) or custom S3 endpoint (s3)")
	pf.StringVar(&storageFlags.baseDir, "base-dir", "", "Base directory (file backend)")
	pf.StringVar(&storageFlags.bucket, "bucket", "", "S3 bucket (s3 backend)")
	pf.StringVarP(&storageFlags.region, "region", "r", "", "AWS region (s3 backend)")
	pf.StringVarP(&storageFlags.profile, "profile", "p", "", "AWS profile (s3 backend)")
	pf.DurationVar(&storageFlags.timeout, "timeout", 0, "Per-request timeout (default from config, 60s)")
	pf.BoolVar(&storageFlags.noVerify, "no-checksum", false, "Do not send upload checksums")
	pf.BoolVar(&storageFlags.allowRoot, "allow-root-delete", false, "Allow rm on the root key")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo records build metadata reported by the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// IsReadOnly reports whether mutating commands are disabled.
func IsReadOnly() bool {
	if readOnly {
		return true
	}
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(readOnlyEnv)))
	return err == nil && v
}

// loadConfig resolves configuration with the storage flags that were set on
// the command line applied as overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.LoadFile(cmd.Context(), cfgFile, storageOverrides(cmd))
}

func storageOverrides(cmd *cobra.Command) map[string]any {
	storage := map[string]any{}
	zone := map[string]any{}
	file := map[string]any{}
	s3 := map[string]any{}

	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("backend") {
		storage["backend"] = storageFlags.backend
	}
	if changed("timeout") {
		storage["timeout"] = storageFlags.timeout
	}
	if changed("no-checksum") {
		storage["generate_checksums"] = !storageFlags.noVerify
	}
	if changed("allow-root-delete") {
		storage["preserve_root"] = !storageFlags.allowRoot
	}
	if changed("zone") {
		zone["name"] = storageFlags.zone
	}
	if changed("endpoint") {
		zone["endpoint"] = storageFlags.endpoint
		s3["endpoint"] = storageFlags.endpoint
	}
	if changed("base-dir") {
		file["base_dir"] = storageFlags.baseDir
	}
	if changed("bucket") {
		s3["bucket"] = storageFlags.bucket
	}
	if changed("region") {
		s3["region"] = storageFlags.region
	}
	if changed("profile") {
		s3["profile"] = storageFlags.profile
	}

	for name, section := range map[string]map[string]any{"zone": zone, "file": file, "s3": s3} {
		if len(section) > 0 {
			storage[name] = section
		}
	}
	if len(storage) == 0 {
		return nil
	}
	return map[string]any{"storage": storage}
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode returns the exit code carried by err, 1 for any other error and
// 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
