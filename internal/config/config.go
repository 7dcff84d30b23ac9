package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for docverify.
type Config struct {
	InstanceID string           `toml:"instance_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Records    RecordsConfig    `toml:"records"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
	Notify     NotifyConfig     `toml:"notify"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Snapshot   SnapshotConfig   `toml:"snapshot"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// RecordsConfig selects the local record repository.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RecordsConfig struct {
	Type string `toml:"type"` // "memory", "file" or "redis"

	// File-specific fields (only used when Type == "file")
	Path string `toml:"path,omitempty"`

	// Redis-specific fields (only used when Type == "redis")
	RedisURL string `toml:"redis_url,omitempty"`
	RedisKey string `toml:"redis_key,omitempty"`
}

// LedgerConfig selects the ledger state backend and the account docverify
// acts as.
type LedgerConfig struct {
	Type            string `toml:"type"`               // "sqlite" or "memory"
	DataDir         string `toml:"data_dir,omitempty"` // only used for type=sqlite
	ContractAddress string `toml:"contract_address,omitempty"`
	Account         string `toml:"account"`
}

// EncryptionConfig holds paths to the age key pair used to seal snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for a snapshot vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible stores; enables path-style addressing

	// Static credentials; the default AWS credential chain is used when empty.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// NotifyConfig configures the Kafka change feed. Empty brokers disable it.
type NotifyConfig struct {
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `toml:"kafka_topic,omitempty"`
}

// MetricsConfig configures the Prometheus textfile export. An empty path
// disables it.
type MetricsConfig struct {
	TextfilePath string `toml:"textfile_path,omitempty"`
}

// SnapshotConfig controls snapshot pushes. With AutoPush set, every command
// that changes local records pushes a snapshot to the vaults when it finishes.
type SnapshotConfig struct {
	AutoPush bool `toml:"auto_push"`
}

// FilesystemConfig holds glob patterns of files that directory uploads skip.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Records: RecordsConfig{
			Type: "file",
			Path: filepath.Join(baseDir, "records.json"),
		},
		Ledger: LedgerConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "ledger"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "docverify.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "docverify.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// WriteToFile writes cfg to path, replacing any existing file.
func WriteToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := WriteToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
