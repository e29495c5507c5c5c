package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "VOICECHAT"

type Config struct {
	Mode       string `mapstructure:"mode"`
	LogLevel   string `mapstructure:"log_level"`
	Listen     string `mapstructure:"listen"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	Room       string `mapstructure:"room"`

	Signal      SignalConfig      `mapstructure:"signal"`
	Media       MediaConfig       `mapstructure:"media"`
	ICE         ICEConfig         `mapstructure:"ice"`
	Negotiation NegotiationConfig `mapstructure:"negotiation"`
}

type SignalConfig struct {
	URL          string        `mapstructure:"url"`
	Codec        string        `mapstructure:"codec"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	ReconnectMin time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax time.Duration `mapstructure:"reconnect_max"`
}

type MediaConfig struct {
	Audio         bool          `mapstructure:"audio"`
	Video         bool          `mapstructure:"video"`
	MuteByDefault bool          `mapstructure:"mute_by_default"`
	Retries       int           `mapstructure:"retries"`
	FrameInterval time.Duration `mapstructure:"frame_interval"`
}

type ICEConfig struct {
	StunURLs        []string `mapstructure:"stun_urls"`
	TurnURLs        []string `mapstructure:"turn_urls"`
	TurnUsername    string   `mapstructure:"turn_username"`
	TurnCredential  string   `mapstructure:"turn_credential"`
	LegacyDTLSSRTP  bool     `mapstructure:"legacy_dtls_srtp"`
	IncludeLoopback bool     `mapstructure:"include_loopback"`
}

type NegotiationConfig struct {
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("listen", ":8080")
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "voicechat-dev-secret")
	v.SetDefault("room", "")

	v.SetDefault("signal.url", "ws://localhost:5000/ConnectionHub")
	v.SetDefault("signal.codec", "json")
	v.SetDefault("signal.ping_period", "54s")
	v.SetDefault("signal.write_wait", "10s")
	v.SetDefault("signal.read_limit", 65536)
	v.SetDefault("signal.send_buffer", 32)
	v.SetDefault("signal.reconnect_min", "500ms")
	v.SetDefault("signal.reconnect_max", "30s")

	v.SetDefault("media.audio", true)
	v.SetDefault("media.video", false)
	v.SetDefault("media.mute_by_default", false)
	v.SetDefault("media.retries", 2)
	v.SetDefault("media.frame_interval", "20ms")

	v.SetDefault("ice.stun_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ice.turn_urls", []string{})
	v.SetDefault("ice.turn_username", "")
	v.SetDefault("ice.turn_credential", "")
	v.SetDefault("ice.legacy_dtls_srtp", true)
	v.SetDefault("ice.include_loopback", false)

	v.SetDefault("negotiation.stall_timeout", "15s")
}

// Source owns the viper instance behind a Config so it can be re-read when
// the file changes.
type Source struct {
	v    *viper.Viper
	file string
	read bool

	mu  sync.Mutex
	cfg *Config
}

// Open resolves the config file. An empty path means
// config/config.<CONFIG_ENV>.yaml, which may be absent; an explicit path
// must exist.
func Open(path string) (*Source, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := path
	if file == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		file = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(file)

	s := &Source{v: v, file: file}
	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Warn().Str("module", "config").Str("file", file).Msg("config file not found, using defaults")
	} else {
		s.read = true
		log.Info().Str("module", "config").Str("file", file).Msg("loaded config")
	}

	cfg, err := s.decode()
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Str("listen", cfg.Listen).
		Str("signal", cfg.Signal.URL).
		Msg("config ready")
	return s, nil
}

// Load is Open followed by Config.
func Load(path string) (*Config, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	return s.Config(), nil
}

// Set overrides one key, e.g. from a command line flag.
func (s *Source) Set(key string, value any) error {
	s.v.Set(key, value)
	cfg, err := s.decode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

func (s *Source) Config() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Source) decode() (*Config, error) {
	var cfg Config
	if err := s.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls fn with the new config every time the file is rewritten.
// Invalid edits are logged and the previous config is kept.
func (s *Source) Watch(fn func(*Config)) bool {
	if !s.read {
		return false
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := s.decode()
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("ignoring invalid config change")
			return
		}
		s.mu.Lock()
		s.cfg = cfg
		s.mu.Unlock()
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		fn(cfg)
	})
	s.v.WatchConfig()
	return true
}

var (
	ErrUnknownCodec = errors.New("unknown signal codec")
	ErrNoMedia      = errors.New("media: audio or video must be enabled")
)

func (c *Config) Validate() error {
	switch c.Signal.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCodec, c.Signal.Codec)
	}
	if c.Signal.URL == "" {
		return errors.New("signal.url must be set")
	}
	if !c.Media.Audio && !c.Media.Video {
		return ErrNoMedia
	}
	if c.Media.Retries < 0 {
		return fmt.Errorf("media.retries must not be negative, got %d", c.Media.Retries)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if _, err := c.ICE.Servers(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Debug() bool { return c.Mode == "debug" }

// Level is the parsed log level; Validate has already rejected bad values.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
