package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	appName   = "zonestore"
	envPrefix = "ZONESTORE"

	// ConfigFileEnv names an explicit config file.
	ConfigFileEnv = envPrefix + "_CONFIG"
)

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// envSpec maps an environment variable onto a config path.
type envSpec struct {
	Name string
	Path string
}

// defaults are applied before any file, env or override. Every key that
// should be settable from the environment needs an entry here so viper can
// unmarshal it.
var defaults = map[string]any{
	"storage.backend":              "zone",
	"storage.timeout":              "60s",
	"storage.preserve_root":        true,
	"storage.generate_checksums":   true,
	"storage.zone.access_key":      "",
	"storage.zone.name":            "",
	"storage.zone.endpoint":        "https://storage.bunnycdn.com",
	"storage.file.base_dir":        "",
	"storage.s3.bucket":            "",
	"storage.s3.region":            "",
	"storage.s3.endpoint":          "",
	"storage.s3.profile":           "",
	"storage.s3.access_key_id":     "",
	"storage.s3.secret_access_key": "",
	"storage.s3.force_path_style":  false,
	"storage.s3.max_keys":          1000,

	"server.host":             "localhost",
	"server.port":             8080,
	"server.read_timeout":     "30s",
	"server.write_timeout":    "30s",
	"server.idle_timeout":     "120s",
	"server.shutdown_timeout": "10s",
	"server.max_upload_bytes": int64(100 << 20),

	"logging.level":   "info",
	"logging.profile": "structured",

	"metrics.enabled": true,
	"metrics.path":    "/metrics",
}

// shortEnv are the documented short aliases, in addition to the full
// ZONESTORE_<SECTION>_<KEY> form derived from every config path.
var shortEnv = []envSpec{
	{Name: envPrefix + "_BACKEND", Path: "storage.backend"},
	{Name: envPrefix + "_ACCESS_KEY", Path: "storage.zone.access_key"},
	{Name: envPrefix + "_ZONE", Path: "storage.zone.name"},
	{Name: envPrefix + "_ENDPOINT", Path: "storage.zone.endpoint"},
	{Name: envPrefix + "_BASE_DIR", Path: "storage.file.base_dir"},
	{Name: envPrefix + "_BUCKET", Path: "storage.s3.bucket"},
	{Name: envPrefix + "_HOST", Path: "server.host"},
	{Name: envPrefix + "_PORT", Path: "server.port"},
	{Name: envPrefix + "_READ_TIMEOUT", Path: "server.read_timeout"},
	{Name: envPrefix + "_WRITE_TIMEOUT", Path: "server.write_timeout"},
	{Name: envPrefix + "_SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
	{Name: envPrefix + "_LOG_LEVEL", Path: "logging.level"},
	{Name: envPrefix + "_LOG_PROFILE", Path: "logging.profile"},
	{Name: envPrefix + "_METRICS_ENABLED", Path: "metrics.enabled"},
}

// Load resolves configuration with precedence runtime overrides > env >
// config file > defaults, stores the result for GetConfig and returns it.
//
// Overrides are nested maps keyed like the YAML file, e.g.
// {"server": {"port": 9000}}.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile is Load with an explicit config file. An empty path falls back to
// ZONESTORE_CONFIG and the default search paths.
func LoadFile(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if path == "" {
		path = configFilePath()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, override := range overrides {
		for key, val := range flatten("", override) {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the configuration from the most recent Load, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// getEnvSpecs returns every environment binding: the short aliases plus one
// full-path variable per config key.
func getEnvSpecs() []envSpec {
	specs := make([]envSpec, 0, len(shortEnv)+len(defaults))
	specs = append(specs, shortEnv...)

	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		specs = append(specs, envSpec{
			Name: envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_")),
			Path: key,
		})
	}
	return specs
}

// configFilePath returns the explicit config file, or the first existing
// candidate from getUserConfigPaths, or "".
func configFilePath() string {
	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		return path
	}
	for _, candidate := range getUserConfigPaths() {
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate
		}
	}
	return ""
}

// getUserConfigPaths lists config file candidates in lookup order.
func getUserConfigPaths() []string {
	paths := []string{appName + ".yaml"}

	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".config")
		}
	}
	if base != "" {
		paths = append(paths, filepath.Join(base, appName, "config.yaml"))
	}
	return paths
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for key, val := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			for k, v := range flatten(full, nested) {
				out[k] = v
			}
			continue
		}
		out[full] = val
	}
	return out
}
