// Package config loads kernel configuration from the environment and
// resolves the on-disk layout of governance inputs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/axprotocol/core/pkg/directives"
)

// ProtocolVersion is the kernel's protocol revision. Coupling configs may
// declare a min_protocol; sessions refuse to start below the floor.
const ProtocolVersion = "2.3.0"

// Config holds all runtime settings. Every field has a working default so a
// bare environment starts a local kernel.
type Config struct {
	ConfigDir string
	LogsDir   string
	KeyDir    string
	Port      int

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	AllowHMAC  bool
	HMACSecret string

	RedisAddr   string
	DatabaseURL string
	APISecret   string

	RotateBytes  int64
	ArchiveS3URI string
	ArchiveGCS   string

	SentinelPort int
}

// fileConfig is the optional YAML overlay. Only the non-secret knobs live
// here; credentials and connection strings stay in the environment.
type fileConfig struct {
	ConfigDir    string `yaml:"config_dir"`
	LogsDir      string `yaml:"logs_dir"`
	KeyDir       string `yaml:"key_dir"`
	Port         int    `yaml:"port"`
	LLMBaseURL   string `yaml:"llm_base_url"`
	LLMModel     string `yaml:"llm_model"`
	LLMTimeout   string `yaml:"llm_timeout"`
	RotateBytes  int64  `yaml:"rotate_bytes"`
	SentinelPort int    `yaml:"sentinel_port"`
}

// Load resolves configuration in three layers: built-in defaults, an
// optional YAML file (AXP_CONFIG_FILE, default axp.yaml), then AXP_*
// environment variables. Environment always wins.
func Load() (*Config, error) {
	fc, err := loadFile(envStr("AXP_CONFIG_FILE", "axp.yaml"))
	if err != nil {
		return nil, err
	}

	defTimeout := 120 * time.Second
	if fc.LLMTimeout != "" {
		d, err := time.ParseDuration(fc.LLMTimeout)
		if err != nil {
			return nil, fmt.Errorf("config: bad llm_timeout %q: %w", fc.LLMTimeout, err)
		}
		defTimeout = d
	}

	cfg := &Config{
		ConfigDir:    envStr("AXP_CONFIG_DIR", orStr(fc.ConfigDir, "config")),
		LogsDir:      envStr("AXP_LOGS_DIR", orStr(fc.LogsDir, "logs")),
		KeyDir:       envStr("AXP_KEY_DIR", orStr(fc.KeyDir, "keys")),
		Port:         envInt("AXP_PORT", orInt(fc.Port, 8080)),
		LLMBaseURL:   envStr("AXP_LLM_BASE_URL", orStr(fc.LLMBaseURL, "https://api.openai.com/v1")),
		LLMAPIKey:    os.Getenv("AXP_LLM_API_KEY"),
		LLMModel:     envStr("AXP_LLM_MODEL", orStr(fc.LLMModel, "gpt-4o")),
		LLMTimeout:   envDuration("AXP_LLM_TIMEOUT", defTimeout),
		AllowHMAC:    envBool("AXP_ALLOW_HMAC", false),
		HMACSecret:   os.Getenv("AXP_HMAC_SECRET"),
		RedisAddr:    os.Getenv("AXP_REDIS_ADDR"),
		DatabaseURL:  os.Getenv("AXP_DATABASE_URL"),
		APISecret:    os.Getenv("AXP_API_SECRET"),
		RotateBytes:  envInt64("AXP_ROTATE_BYTES", orInt64(fc.RotateBytes, 64<<20)),
		ArchiveS3URI: os.Getenv("AXP_ARCHIVE_S3_URI"),
		ArchiveGCS:   os.Getenv("AXP_ARCHIVE_GCS_BUCKET"),
		SentinelPort: envInt("AXP_SENTINEL_PORT", orInt(fc.SentinelPort, 8090)),
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: invalid port %d", cfg.Port)
	}
	if cfg.RotateBytes < 1<<20 {
		return nil, fmt.Errorf("config: rotate threshold %d below 1 MiB", cfg.RotateBytes)
	}
	return cfg, nil
}

// CheckProtocolFloor validates a min_protocol constraint from the coupling
// config against the kernel's version. An empty floor always passes.
func CheckProtocolFloor(minProtocol string) error {
	if minProtocol == "" {
		return nil
	}
	floor, err := semver.NewVersion(minProtocol)
	if err != nil {
		return fmt.Errorf("config: bad min_protocol %q: %w", minProtocol, err)
	}
	current := semver.MustParse(ProtocolVersion)
	if current.LessThan(floor) {
		return fmt.Errorf("config: kernel protocol %s below required floor %s", ProtocolVersion, minProtocol)
	}
	return nil
}

// CouplingPath returns the path of the coupling configuration file.
func (c *Config) CouplingPath() string {
	return filepath.Join(c.ConfigDir, "coupling.json")
}

// RoleShapesPath returns the path of the banned-shape configuration.
func (c *Config) RoleShapesPath() string {
	return filepath.Join(c.ConfigDir, "role_shapes.json")
}

// TAESWeightsPath returns the path of the per-domain TAES weight table.
func (c *Config) TAESWeightsPath() string {
	return filepath.Join(c.ConfigDir, "taes_weights.json")
}

// DirectivesDir returns the directory of directive markdown files.
func (c *Config) DirectivesDir() string {
	return filepath.Join(c.ConfigDir, "directives")
}

// PromptsDir returns the directory of role prompt files.
func (c *Config) PromptsDir() string {
	return filepath.Join(c.ConfigDir, "prompts")
}

// LedgerPath returns the active ledger segment path.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.LogsDir, "audit.jsonl")
}

// SessionsDir returns the per-session artifact log directory.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.LogsDir, "sessions")
}

// IRDLogPath returns the rotating IRD CSV path.
func (c *Config) IRDLogPath() string {
	return filepath.Join(c.LogsDir, "ird_log.csv")
}

// ReportsDir returns where the sentinel writes verification reports.
func (c *Config) ReportsDir() string {
	return filepath.Join(c.LogsDir, "reports")
}

// FingerprintInputs lists the files pinned by the config fingerprint:
// coupling, role shapes, the TAES weight table, and the fixed directive
// corpus. The list never depends on what is on disk, so a deleted file
// participates as a missing-file sentinel instead of shrinking the
// fingerprint.
func (c *Config) FingerprintInputs() []string {
	inputs := []string{c.CouplingPath(), c.RoleShapesPath(), c.TAESWeightsPath()}
	for _, name := range directives.Files() {
		inputs = append(inputs, filepath.Join(c.DirectivesDir(), name))
	}
	return inputs
}

// loadFile reads the YAML overlay. A missing file is the normal case and
// yields an empty overlay; a present but unparseable file is an error.
func loadFile(path string) (*fileConfig, error) {
	fc := &fileConfig{}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, fc); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return fc, nil
}

func orStr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orInt64(v, def int64) int64 {
	if v != 0 {
		return v
	}
	return def
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
