// Package config loads the node's configuration from a TOML file, merged
// with environment variable overrides read through viper. No setting has
// a CLI flag override; the CLI only chooses the file.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config holds the node's recognized options, plus two additive options
// (NATSURL, OTELExporter) for the eventbus/telemetry wiring.
type Config struct {
	AllowSchemaIDs        []string `toml:"allow_schema_ids" mapstructure:"allow_schema_ids"`
	AllowSchemaIDsWildcard bool    `toml:"-" mapstructure:"-"`
	DatabaseURL           string   `toml:"database_url" mapstructure:"database_url"`
	DatabaseMaxConnections int     `toml:"database_max_connections" mapstructure:"database_max_connections"`
	WorkerPoolSize        int      `toml:"worker_pool_size" mapstructure:"worker_pool_size"`
	HTTPPort              int      `toml:"http_port" mapstructure:"http_port"`
	QUICPort              int      `toml:"quic_port" mapstructure:"quic_port"`
	PrivateKeyPath        string   `toml:"private_key_path" mapstructure:"private_key_path"`
	MDNS                  bool     `toml:"mdns" mapstructure:"mdns"`
	DirectNodeAddresses   []string `toml:"direct_node_addresses" mapstructure:"direct_node_addresses"`
	AllowPeerIDs          []string `toml:"allow_peer_ids" mapstructure:"allow_peer_ids"`
	BlockPeerIDs          []string `toml:"block_peer_ids" mapstructure:"block_peer_ids"`
	RelayAddresses        []string `toml:"relay_addresses" mapstructure:"relay_addresses"`
	RelayMode             bool     `toml:"relay_mode" mapstructure:"relay_mode"`
	BlobsBasePath         string   `toml:"blobs_base_path" mapstructure:"blobs_base_path"`

	// Additive
	NATSURL      string `toml:"nats_url" mapstructure:"nats_url"`
	OTELExporter string `toml:"otel_exporter" mapstructure:"otel_exporter"`
}

// Default returns a Config with conservative defaults for every setting
// that isn't otherwise specified.
func Default() *Config {
	return &Config{
		AllowSchemaIDs:         []string{"*"},
		AllowSchemaIDsWildcard: true,
		DatabaseURL:            "sqlite://aquadoggo.sqlite3",
		DatabaseMaxConnections: 32,
		WorkerPoolSize:         4,
		HTTPPort:               2020,
		QUICPort:               2022,
		BlobsBasePath:          "./blobs",
	}
}

// Load reads path (TOML) when path is non-empty, returning an error if the
// file is missing or malformed, then layers environment variable
// overrides (prefix AQUADOGGO_, e.g. AQUADOGGO_HTTP_PORT) on top via
// viper, and finally normalizes the allow_schema_ids wildcard.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("AQUADOGGO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindInt(v, "database_max_connections", &cfg.DatabaseMaxConnections)
	bindInt(v, "worker_pool_size", &cfg.WorkerPoolSize)
	bindInt(v, "http_port", &cfg.HTTPPort)
	bindInt(v, "quic_port", &cfg.QUICPort)
	bindString(v, "database_url", &cfg.DatabaseURL)
	bindString(v, "blobs_base_path", &cfg.BlobsBasePath)
	bindString(v, "nats_url", &cfg.NATSURL)
	bindString(v, "otel_exporter", &cfg.OTELExporter)

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func bindString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func (c *Config) normalize() {
	c.AllowSchemaIDsWildcard = len(c.AllowSchemaIDs) == 1 && c.AllowSchemaIDs[0] == "*"
}

// Validate enforces that allow_peer_ids and block_peer_ids are mutually
// exclusive and that worker_pool_size is sane.
func (c *Config) Validate() error {
	if len(c.AllowPeerIDs) > 0 && len(c.BlockPeerIDs) > 0 {
		return fmt.Errorf("config: allow_peer_ids and block_peer_ids are mutually exclusive")
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("config: worker_pool_size must be >= 1")
	}
	return nil
}

// SchemaAllowed reports whether schemaID may be served/replicated under
// this node's allow-list, honoring the "*" wildcard entry.
func (c *Config) SchemaAllowed(schemaID string) bool {
	if c.AllowSchemaIDsWildcard {
		return true
	}
	for _, id := range c.AllowSchemaIDs {
		if id == schemaID {
			return true
		}
	}
	return false
}

// PeerAllowed applies the allow/block list (mutually exclusive, enforced
// by Validate) to a candidate peer id.
func (c *Config) PeerAllowed(peerID string) bool {
	if len(c.AllowPeerIDs) > 0 {
		for _, id := range c.AllowPeerIDs {
			if id == peerID {
				return true
			}
		}
		return false
	}
	for _, id := range c.BlockPeerIDs {
		if id == peerID {
			return false
		}
	}
	return true
}
