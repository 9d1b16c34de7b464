// Package manifest loads and validates zonestore sync manifests.
//
// A sync manifest is a YAML or JSON file describing one directory copy or
// move between two stores: the source and target connections, which files
// to match, how to treat existing targets and where to write the JSONL
// records.
//
// Manifests are validated against an embedded JSON Schema before they are
// parsed, so unknown fields and bad enum values are rejected up front.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	source:
//	  backend: zone
//	  zone: media
//	  prefix: /images/
//	target:
//	  backend: s3
//	  bucket: media-archive
//	  prefix: /images/
//	match:
//	  includes: ["*.jpg", "*.png"]
//	sync:
//	  mode: copy
//	  on_exists: skip
//	output:
//	  destination: file:/var/log/zonestore/sync.jsonl
package manifest

import (
	"fmt"
	"time"

	"github.com/3leaps/zonestore/pkg/match"
	"github.com/3leaps/zonestore/pkg/preflight"
	"github.com/3leaps/zonestore/pkg/transfer"
)

// Manifest is a validated sync manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version must be "1.0".
	Version string `json:"version" yaml:"version"`

	Source Connection   `json:"source" yaml:"source"`
	Target Connection   `json:"target" yaml:"target"`
	Match  MatchConfig  `json:"match,omitempty" yaml:"match,omitempty"`
	Sync   SyncConfig   `json:"sync,omitempty" yaml:"sync,omitempty"`
	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// Connection names a store and the directory used within it.
type Connection struct {
	// Backend is "zone", "file" or "s3".
	Backend string `json:"backend" yaml:"backend"`

	// Prefix is the directory synced. Empty means the root.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Timeout bounds each request, as a Go duration ("30s").
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Zone and AccessKeyEnv configure the zone backend. The access key is
	// read from the named environment variable so manifests hold no secrets.
	Zone         string `json:"zone,omitempty" yaml:"zone,omitempty"`
	AccessKeyEnv string `json:"access_key_env,omitempty" yaml:"access_key_env,omitempty"`

	// Endpoint is the zone API endpoint or a custom S3 endpoint.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	BaseDir string `json:"base_dir,omitempty" yaml:"base_dir,omitempty"`

	Bucket         string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Region         string `json:"region,omitempty" yaml:"region,omitempty"`
	Profile        string `json:"profile,omitempty" yaml:"profile,omitempty"`
	ForcePathStyle bool   `json:"force_path_style,omitempty" yaml:"force_path_style,omitempty"`
}

// TimeoutDuration parses Timeout. An empty value returns zero.
func (c Connection) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

// Label is a short description of the connection for logs.
func (c Connection) Label() string {
	switch c.Backend {
	case "zone":
		return "zone:" + c.Zone
	case "file":
		return "file:" + c.BaseDir
	case "s3":
		return "s3:" + c.Bucket
	}
	return c.Backend
}

// MatchConfig selects which source files are synced.
type MatchConfig struct {
	// Includes are glob patterns; a file must match at least one. Empty
	// matches every file.
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`

	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`

	// IncludeHidden keeps dot files. Default: false.
	IncludeHidden bool `json:"include_hidden,omitempty" yaml:"include_hidden,omitempty"`

	// Filters narrow the listing by metadata, with AND semantics.
	Filters *FilterConfig `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// FilterConfig holds metadata filters.
type FilterConfig struct {
	Size     *SizeFilterConfig `json:"size,omitempty" yaml:"size,omitempty"`
	Modified *DateFilterConfig `json:"modified,omitempty" yaml:"modified,omitempty"`
	KeyRegex string            `json:"key_regex,omitempty" yaml:"key_regex,omitempty"`
}

// SizeFilterConfig bounds the file size; "1KB", "100MiB" and raw byte
// counts are accepted.
type SizeFilterConfig struct {
	Min string `json:"min,omitempty" yaml:"min,omitempty"`
	Max string `json:"max,omitempty" yaml:"max,omitempty"`
}

// DateFilterConfig bounds the modification time. After is inclusive,
// Before exclusive.
type DateFilterConfig struct {
	After  string `json:"after,omitempty" yaml:"after,omitempty"`
	Before string `json:"before,omitempty" yaml:"before,omitempty"`
}

// Compile builds the matcher and filter. The filter is nil when no filters
// are configured.
func (m MatchConfig) Compile() (*match.Matcher, match.Filter, error) {
	matcher, err := match.New(match.Config{
		Includes:      m.Includes,
		Excludes:      m.Excludes,
		ExcludeHidden: !m.IncludeHidden,
	})
	if err != nil {
		return nil, nil, err
	}
	if m.Filters == nil {
		return matcher, nil, nil
	}

	var fc match.FilterConfig
	if s := m.Filters.Size; s != nil {
		fc.MinSize, fc.MaxSize = s.Min, s.Max
	}
	if d := m.Filters.Modified; d != nil {
		fc.After, fc.Before = d.After, d.Before
	}
	fc.KeyRegex = m.Filters.KeyRegex

	filter, err := match.NewFilterFromConfig(fc)
	if err != nil {
		return nil, nil, err
	}
	if filter == nil {
		return matcher, nil, nil
	}
	return matcher, filter, nil
}

// SyncConfig controls transfer behaviour.
type SyncConfig struct {
	// Mode is "copy" or "move". Default: copy.
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Concurrency is the number of files in flight. Range 1-64, default 4.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// OnExists is "skip", "overwrite" or "fail". Default: skip.
	OnExists string `json:"on_exists,omitempty" yaml:"on_exists,omitempty"`

	// Compare is "key" or "checksum" and applies when OnExists is skip.
	// Default: checksum.
	Compare string `json:"compare,omitempty" yaml:"compare,omitempty"`

	PathTemplate string `json:"path_template,omitempty" yaml:"path_template,omitempty"`

	// RateLimit caps files started per second; 0 is unlimited.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// ValidateSize checks each read against the listed size. Default: true.
	ValidateSize *bool `json:"validate_size,omitempty" yaml:"validate_size,omitempty"`

	Preflight PreflightConfig `json:"preflight,omitempty" yaml:"preflight,omitempty"`
}

// PreflightConfig controls the checks run before a sync.
//
//   - plan-only: no store calls
//   - read-safe: list and existence checks only (default)
//   - write-probe: also writes, reads back and removes one probe file in the
//     target under ProbePrefix
type PreflightConfig struct {
	Mode        string `json:"mode,omitempty" yaml:"mode,omitempty"`
	ProbePrefix string `json:"probe_prefix,omitempty" yaml:"probe_prefix,omitempty"`
}

// OutputConfig selects where JSONL records go: "stdout" or "file:<path>".
type OutputConfig struct {
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
}

// Defaults applied by ApplyDefaults.
const (
	DefaultVersion       = "1.0"
	DefaultMode          = transfer.ModeCopy
	DefaultConcurrency   = 4
	DefaultOnExists      = transfer.OnExistsSkip
	DefaultCompare       = transfer.CompareChecksum
	DefaultValidateSize  = true
	DefaultPreflightMode = string(preflight.ModeReadSafe)
	DefaultProbePrefix   = preflight.DefaultProbePrefix
	DefaultDestination   = "stdout"

	// DefaultAccessKeyEnv holds the zone access key when access_key_env is
	// not set.
	DefaultAccessKeyEnv = "ZONESTORE_ACCESS_KEY"
)

// ApplyDefaults fills in optional fields.
func (m *Manifest) ApplyDefaults() {
	if m.Sync.Mode == "" {
		m.Sync.Mode = DefaultMode
	}
	if m.Sync.Concurrency == 0 {
		m.Sync.Concurrency = DefaultConcurrency
	}
	if m.Sync.OnExists == "" {
		m.Sync.OnExists = DefaultOnExists
	}
	if m.Sync.Compare == "" {
		m.Sync.Compare = DefaultCompare
	}
	if m.Sync.ValidateSize == nil {
		v := DefaultValidateSize
		m.Sync.ValidateSize = &v
	}
	if m.Sync.Preflight.Mode == "" {
		m.Sync.Preflight.Mode = DefaultPreflightMode
	}
	if m.Sync.Preflight.ProbePrefix == "" {
		m.Sync.Preflight.ProbePrefix = DefaultProbePrefix
	}
	if m.Output.Destination == "" {
		m.Output.Destination = DefaultDestination
	}
	for _, c := range []*Connection{&m.Source, &m.Target} {
		if c.Backend == "zone" && c.AccessKeyEnv == "" {
			c.AccessKeyEnv = DefaultAccessKeyEnv
		}
	}
}

// TransferConfig converts the manifest into a transfer.Config. dryRun comes
// from the command line.
func (m *Manifest) TransferConfig(filter match.Filter, dryRun bool) transfer.Config {
	validate := DefaultValidateSize
	if m.Sync.ValidateSize != nil {
		validate = *m.Sync.ValidateSize
	}
	return transfer.Config{
		SourcePrefix: m.Source.Prefix,
		TargetPrefix: m.Target.Prefix,
		Mode:         m.Sync.Mode,
		OnExists:     m.Sync.OnExists,
		Compare:      m.Sync.Compare,
		PathTemplate: m.Sync.PathTemplate,
		Concurrency:  m.Sync.Concurrency,
		RateLimit:    m.Sync.RateLimit,
		ValidateSize: validate,
		DryRun:       dryRun,
		Filter:       filter,
	}
}
