// Package config loads the recognizer configuration from
// defaults, an optional YAML file and CFG_ environment
// variables, in that order of precedence.
package config

import (
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/YewRongDe/HTR"
	"github.com/YewRongDe/HTR/anyconv"
)

// DefaultCharList is the character set of the IAM
// handwriting database.
const DefaultCharList = " !\"#&'()*+,-./0123456789:;?" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Decoders.
const (
	DecoderGreedy = "greedy"
	DecoderPrefix = "prefix"
)

// Checkpoint backends.
const (
	BackendDir   = "dir"
	BackendRedis = "redis"
)

// StageConfig describes one feature extractor stage.
type StageConfig struct {
	Kernel  int `koanf:"kernel"`
	Filters int `koanf:"filters"`
	PoolX   int `koanf:"poolx"`
	PoolY   int `koanf:"pooly"`
}

// ModelConfig defines the network and its training.
type ModelConfig struct {
	ImageWidth  int           `koanf:"imagewidth"`
	ImageHeight int           `koanf:"imageheight"`
	Stages      []StageConfig `koanf:"stages"`
	Hidden      int           `koanf:"hidden"`
	Layers      int           `koanf:"layers"`
	CharList    string        `koanf:"charlist"`
	Decoder     string        `koanf:"decoder"`
	BlankThresh float64       `koanf:"blankthresh"`
	MustRestore bool          `koanf:"mustrestore"`
	Seed        int64         `koanf:"seed"`
	Float64     bool          `koanf:"float64"`
	BatchSize   int           `koanf:"batchsize"`
}

// StageSpecs returns the configured stage table, or the
// default table when none is configured.
func (m *ModelConfig) StageSpecs() []anyconv.StageSpec {
	if len(m.Stages) == 0 {
		return anyconv.DefaultStages
	}
	res := make([]anyconv.StageSpec, len(m.Stages))
	for i, s := range m.Stages {
		res[i] = anyconv.StageSpec{
			Kernel:  s.Kernel,
			Filters: s.Filters,
			PoolX:   s.PoolX,
			PoolY:   s.PoolY,
		}
	}
	return res
}

// CheckpointConfig selects where snapshots are kept.
type CheckpointConfig struct {
	Backend string `koanf:"backend"`
	Dir     string `koanf:"dir"`
	Keep    int    `koanf:"keep"`
	Redis   struct {
		RedisOptions redis.Options `koanf:"redisoptions"`
		KeyPrefix    string        `koanf:"keyprefix"`
	} `koanf:"redis"`
}

// InfluxDBConfig defines the InfluxDB configuration.
type InfluxDBConfig struct {
	URL         string `koanf:"url"`
	Token       string `koanf:"token"`
	Org         string `koanf:"org"`
	Bucket      string `koanf:"bucket"`
	Measurement string `koanf:"measurement"`
}

// MetricsConfig selects the training metric sinks.
type MetricsConfig struct {
	Log      bool           `koanf:"log"`
	InfluxDB InfluxDBConfig `koanf:"influxdb"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Debug bool `koanf:"debug"`
}

// AppConfig is the complete configuration.
type AppConfig struct {
	Model      ModelConfig      `koanf:"model"`
	Checkpoint CheckpointConfig `koanf:"checkpoint"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
}

func defaults() map[string]any {
	return map[string]any{
		"model.imagewidth":                   128,
		"model.imageheight":                  32,
		"model.hidden":                       512,
		"model.layers":                       2,
		"model.charlist":                     DefaultCharList,
		"model.decoder":                      DecoderGreedy,
		"model.blankthresh":                  -1e-3,
		"model.seed":                         1,
		"model.batchsize":                    50,
		"checkpoint.backend":                 BackendDir,
		"checkpoint.dir":                     "model",
		"checkpoint.keep":                    1,
		"checkpoint.redis.keyprefix":         "htr",
		"checkpoint.redis.redisoptions.addr": "localhost:6379",
		"metrics.log":                        true,
		"metrics.influxdb.measurement":       "htr_train",
	}
}

// Load reads the configuration.
// An empty filePath skips the file.
func Load(filePath string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load %s", filePath)
		}
	}

	if err := k.Load(env.ProviderWithValue("CFG_", ".", func(s string, v string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "CFG_")), "_", ".")
		return key, v
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values that no
// component could work with.
//
// The stage table is checked against the image size when
// the feature extractor is built.
func Validate(cfg *AppConfig) error {
	m := &cfg.Model
	switch {
	case m.ImageWidth <= 0 || m.ImageHeight <= 0:
		return errors.Wrapf(htr.ErrConfig, "image size %dx%d", m.ImageWidth, m.ImageHeight)
	case m.Hidden <= 0:
		return errors.Wrapf(htr.ErrConfig, "hidden size %d", m.Hidden)
	case m.Layers <= 0:
		return errors.Wrapf(htr.ErrConfig, "layer count %d", m.Layers)
	case m.BatchSize < 0:
		return errors.Wrapf(htr.ErrConfig, "batch size %d", m.BatchSize)
	case m.Decoder != DecoderGreedy && m.Decoder != DecoderPrefix:
		return errors.Wrapf(htr.ErrConfig, "unknown decoder %q", m.Decoder)
	}
	for i, s := range m.Stages {
		if s.Kernel <= 0 || s.Filters <= 0 || s.PoolX <= 0 || s.PoolY <= 0 {
			return errors.Wrapf(htr.ErrConfig, "stage %d: %+v", i, s)
		}
	}

	c := &cfg.Checkpoint
	switch c.Backend {
	case BackendDir:
		if c.Dir == "" {
			return errors.Wrap(htr.ErrConfig, "empty checkpoint directory")
		}
	case BackendRedis:
		if c.Redis.RedisOptions.Addr == "" {
			return errors.Wrap(htr.ErrConfig, "empty redis address")
		}
	default:
		return errors.Wrapf(htr.ErrConfig, "unknown checkpoint backend %q", c.Backend)
	}
	if c.Keep < 1 {
		return errors.Wrapf(htr.ErrConfig, "checkpoint keep %d", c.Keep)
	}
	return nil
}
