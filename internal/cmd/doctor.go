package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/zonestore/internal/config"
	"github.com/3leaps/zonestore/internal/observability"
	"github.com/3leaps/zonestore/pkg/preflight"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment, the configuration and the
configured store, and suggest fixes for common issues.

The store check is a read-safe preflight: it lists the root directory and
tests for a random key, and never writes.

Examples:
  zonestore doctor
  zonestore doctor --offline
  zonestore --backend s3 --bucket media doctor`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var doctorOffline bool

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "Skip checks that contact the store")
}

// doctorReport prints numbered check lines.
type doctorReport struct {
	out    io.Writer
	n      int
	total  int
	failed bool
}

func (r *doctorReport) pass(check, detail string, fields ...zap.Field) {
	r.n++
	_, _ = fmt.Fprintf(r.out, "[%d/%d] Checking %s... ✅ %s\n", r.n, r.total, check, detail)
	observability.CLILogger.Debug("doctor check passed", append(fields, zap.String("check", check))...)
}

func (r *doctorReport) warn(check, detail string) {
	r.n++
	_, _ = fmt.Fprintf(r.out, "[%d/%d] Checking %s... ⚠️  %s\n", r.n, r.total, check, detail)
}

func (r *doctorReport) fail(check, detail string, err error) {
	r.n++
	r.failed = true
	_, _ = fmt.Fprintf(r.out, "[%d/%d] Checking %s... ❌ %s\n", r.n, r.total, check, detail)
	if err != nil {
		_, _ = fmt.Fprintf(r.out, "      %v\n", err)
	}
	observability.CLILogger.Debug("doctor check failed", zap.String("check", check), zap.Error(err))
}

func (r *doctorReport) line(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format+"\n", a...)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r := &doctorReport{out: cmd.OutOrStdout(), total: 5}

	cfg, cfgErr := loadConfig(cmd)
	if cfgErr == nil && !doctorOffline {
		r.total++
		if cfg.Storage.Backend == "s3" {
			r.total++
		}
	}

	r.line("=== %s doctor ===", appName)
	r.line("")

	goVersion := runtime.Version()
	if goVersion >= "go1.25" {
		r.pass("Go version", goVersion, zap.String("go_version", goVersion))
	} else {
		r.warn("Go version", goVersion+" (built with go1.25+ recommended)")
	}

	version := crucible.GetVersion()
	if version.Crucible != "" {
		r.pass("Crucible", "v"+version.Crucible, zap.String("crucible_version", version.Crucible))
	} else {
		r.warn("Crucible", "version not embedded")
	}
	if version.Gofulmen != "" {
		r.pass("Gofulmen", "v"+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
	} else {
		r.warn("Gofulmen", "version not embedded")
	}

	r.pass("environment", runtime.GOOS+"/"+runtime.GOARCH,
		zap.String("os", runtime.GOOS), zap.String("arch", runtime.GOARCH))

	switch {
	case cfgErr != nil:
		r.fail("configuration", "cannot load configuration", cfgErr)
	default:
		if err := cfg.Validate(); err != nil {
			r.fail("configuration", "invalid "+cfg.Storage.Backend+" configuration", err)
			printBackendHelp(r, cfg.Storage.Backend)
		} else {
			r.pass("configuration", "backend "+cfg.Storage.Backend+" "+storageLabel(cfg.Storage))
			if !doctorOffline {
				if cfg.Storage.Backend == "s3" {
					checkAWSCredentials(ctx, r, cfg.Storage.S3)
				}
				checkStore(ctx, r, cfg)
			}
		}
	}

	r.line("")
	if r.failed {
		r.line("⚠️  Some checks failed. Review the output above for details.")
		return exitError(foundry.ExitExternalServiceUnavailable, "doctor found problems", fmt.Errorf("%d checks run", r.n))
	}
	r.line("✅ All checks passed! Your %s installation is healthy.", appName)
	return nil
}

// storageLabel names the configured store without secrets.
func storageLabel(s config.StorageConfig) string {
	switch s.Backend {
	case "zone":
		return fmt.Sprintf("(zone %s, key %s)", s.Zone.Name, maskAccessKey(s.Zone.AccessKey))
	case "file":
		return "(" + s.File.BaseDir + ")"
	case "s3":
		return "(bucket " + s.S3.Bucket + ")"
	}
	return ""
}

func checkStore(ctx context.Context, r *doctorReport, cfg *config.Config) {
	store, err := newStore(ctx, cfg.Storage, observability.CLILogger)
	if err != nil {
		r.fail("store access", "cannot open store", err)
		return
	}
	rec, err := preflight.Check(ctx, store, preflight.Spec{Mode: preflight.ModeReadSafe, Prefix: "/"})
	if err != nil {
		r.fail("store access", "read-safe preflight failed", err)
		printBackendHelp(r, cfg.Storage.Backend)
		return
	}
	r.pass("store access", fmt.Sprintf("%d read-safe checks passed", len(rec.Results)))
}

func checkAWSCredentials(ctx context.Context, r *doctorReport, s3cfg config.S3Config) {
	if s3cfg.AccessKeyID != "" {
		r.pass("AWS credentials", "static key "+maskAccessKey(s3cfg.AccessKeyID)+" from configuration")
		return
	}

	var opts []func(*awsconfig.LoadOptions) error
	if s3cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s3cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		r.fail("AWS credentials", "cannot load AWS config", err)
		printAWSCredentialsHelp(r.out)
		return
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		r.fail("AWS credentials", "cannot retrieve credentials", err)
		if region, ok := instanceRegion(ctx, imds.NewFromConfig(awsCfg)); ok {
			r.line("      instance metadata reachable (region %s): attach an IAM role to this instance", region)
		}
		printAWSCredentialsHelp(r.out)
		return
	}
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	r.pass("AWS credentials", maskAccessKey(creds.AccessKeyID)+" via "+source,
		zap.String("credential_source", source))
}

// instanceRegion asks the EC2 instance metadata service for the region. It
// fails fast off AWS.
func instanceRegion(ctx context.Context, client *imds.Client) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	out, err := client.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil || out.Region == "" {
		return "", false
	}
	return out.Region, true
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printBackendHelp(r *doctorReport, backend string) {
	switch backend {
	case "zone":
		r.line("")
		r.line("To configure a storage zone:")
		r.line("  1. Set ZONESTORE_ZONE (or --zone) to the zone name")
		r.line("  2. Set ZONESTORE_ACCESS_KEY to the zone password")
		r.line("  3. Set ZONESTORE_ENDPOINT (or --endpoint) for a regional endpoint")
		r.line("")
	case "file":
		r.line("")
		r.line("Set --base-dir (or storage.file.base_dir) to a writable directory.")
		r.line("")
	case "s3":
		printAWSCredentialsHelp(r.out)
	}
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	for _, l := range []string{
		"",
		"To configure AWS credentials:",
		"  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or",
		"  2. Run 'aws configure' to set up a profile and pass --profile, or",
		"  3. Use an IAM role when running on AWS infrastructure",
		"",
		"For S3-compatible storage (MinIO, Wasabi, etc.), also set:",
		"  - --endpoint or storage.s3.endpoint",
		"",
	} {
		_, _ = fmt.Fprintln(w, l)
	}
}
