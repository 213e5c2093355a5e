package memory

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the process-wide memory tunables. It is constructed once,
// injected by value at manager construction and read-only thereafter;
// nothing reads configuration from ambient globals.
type Config struct {
	// MaxItems caps the total item count per durable tier.
	MaxItems int `yaml:"max_items"`

	// EmbeddingDim is the embedding vector size.
	EmbeddingDim int `yaml:"embedding_dim"`

	// EmbeddingModel names the provider model.
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingProvider selects the provider explicitly ("openai",
	// "hash"); empty auto-detects from the environment.
	EmbeddingProvider string `yaml:"embedding_provider"`

	// EmbeddingCacheEntries bounds the embedding memo table.
	EmbeddingCacheEntries int64 `yaml:"embedding_cache_entries"`

	// WorkingMemoryTTL is the default time to live assigned to working
	// items stored without one. Decoded from time.ParseDuration notation
	// ("10m") by UnmarshalYAML.
	WorkingMemoryTTL time.Duration `yaml:"-"`

	// WorkingMemoryCapacity bounds the working tier's item count.
	WorkingMemoryCapacity int `yaml:"working_memory_capacity"`

	// SweepInterval is the period of the working tier's expiry sweep.
	SweepInterval time.Duration `yaml:"-"`

	// RedisAddr, when set, switches the durable relational backend from
	// in-process storage to Redis at host:port.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// VectorPersistPath, when set, persists the embedded vector index to
	// disk at this path.
	VectorPersistPath string `yaml:"vector_persist_path"`

	// SimilarityThreshold is the minimum vector similarity for a search
	// hit, in [0,1].
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// TopK is the default result count for searches.
	TopK int `yaml:"top_k"`
}

// DefaultConfig returns the standard tunables.
func DefaultConfig() Config {
	return Config{
		MaxItems:              10000,
		EmbeddingDim:          1536,
		EmbeddingModel:        "text-embedding-3-small",
		EmbeddingCacheEntries: 4096,
		WorkingMemoryTTL:      time.Hour,
		WorkingMemoryCapacity: 100,
		SweepInterval:         time.Minute,
		SimilarityThreshold:   0.7,
		TopK:                  10,
	}
}

// UnmarshalYAML accepts durations in time.ParseDuration notation ("30s",
// "10m"), which yaml cannot decode into time.Duration on its own.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type plain Config
	var aux struct {
		Plain            plain  `yaml:",inline"`
		WorkingMemoryTTL string `yaml:"working_memory_ttl"`
		SweepInterval    string `yaml:"sweep_interval"`
	}
	aux.Plain = plain(*c)
	if err := node.Decode(&aux); err != nil {
		return err
	}
	*c = Config(aux.Plain)
	if aux.WorkingMemoryTTL != "" {
		d, err := time.ParseDuration(aux.WorkingMemoryTTL)
		if err != nil {
			return fmt.Errorf("working_memory_ttl: %w", err)
		}
		c.WorkingMemoryTTL = d
	}
	if aux.SweepInterval != "" {
		d, err := time.ParseDuration(aux.SweepInterval)
		if err != nil {
			return fmt.Errorf("sweep_interval: %w", err)
		}
		c.SweepInterval = d
	}
	return nil
}

// LoadConfig reads a yaml config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg.withDefaults(), nil
}

// withDefaults fills zero-valued fields so a partially specified config is
// still usable.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxItems <= 0 {
		c.MaxItems = def.MaxItems
	}
	if c.EmbeddingDim <= 0 {
		c.EmbeddingDim = def.EmbeddingDim
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = def.EmbeddingModel
	}
	if c.EmbeddingCacheEntries <= 0 {
		c.EmbeddingCacheEntries = def.EmbeddingCacheEntries
	}
	if c.WorkingMemoryTTL <= 0 {
		c.WorkingMemoryTTL = def.WorkingMemoryTTL
	}
	if c.WorkingMemoryCapacity <= 0 {
		c.WorkingMemoryCapacity = def.WorkingMemoryCapacity
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = def.SimilarityThreshold
	}
	if c.TopK <= 0 {
		c.TopK = def.TopK
	}
	return c
}
