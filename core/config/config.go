package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/saveblush/sismo-relay/core/utils/logger"
)

var (
	CF = &Configs{}
)

var (
	filePath       = "./configs"
	fileExtension  = "yml"
	fileNameConfig = "config"
)

// DefaultTextQuery alert when CDMX reports a moderate/strong quake
// together with an in-progress hashtag
const DefaultTextQuery = `{
	"AND": [
		{"OR": ["CDMX: 🟡 MODERADO", "CDMX: 🔴 FUERTE", {"REGEX": "CDMX: (?:🟡|🔴) \\d+ seg."}]},
		{"OR": ["#Sismo en progreso", "#SASSLA"]}
	]
}`

// Environment environment
type Environment string

const (
	Develop    Environment = "develop"
	Production Environment = "prod"
)

// Production check is production
func (e Environment) Production() bool {
	return e == Production
}

type TwitterConfig struct {
	BaseURL        string        `mapstructure:"BASE_URL"`
	MonitorUsers   []string      `mapstructure:"MONITOR_USERS"`
	APIToken       []string      `mapstructure:"API_TOKEN"`
	TokenRateLimit int           `mapstructure:"TOKEN_RATE_LIMIT"`
	RateWindow     time.Duration `mapstructure:"RATE_WINDOW"`
	TextQuery      string        `mapstructure:"TEXT_QUERY"`
	PollInterval   time.Duration `mapstructure:"POLL_INTERVAL"`
	RecencyWindow  time.Duration `mapstructure:"RECENCY_WINDOW"`
	RetryDelay     time.Duration `mapstructure:"RETRY_DELAY"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

type AlertConfig struct {
	VerificationToken string        `mapstructure:"VERIFICATION_TOKEN"`
	Webhooks          []string      `mapstructure:"WEBHOOKS"`
	TestMode          bool          `mapstructure:"TEST_MODE"`
	DebounceWindow    time.Duration `mapstructure:"DEBOUNCE_WINDOW"`
	Workers           int           `mapstructure:"WORKERS"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

type Configs struct {
	App struct {
		Name        string      `mapstructure:"NAME"`
		Version     string      `mapstructure:"VERSION"`
		Port        int         `mapstructure:"PORT"`
		Environment Environment `mapstructure:"ENVIRONMENT"`
		LogLevel    string      `mapstructure:"LOG_LEVEL"`
		RateLimit   float64     `mapstructure:"RATE_LIMIT"`
		RateBurst   int         `mapstructure:"RATE_BURST"`
	} `mapstructure:"APP"`

	Twitter TwitterConfig `mapstructure:"TWITTER"`

	Alert AlertConfig `mapstructure:"ALERT"`
}

var (
	muHooks sync.Mutex
	hooks   []func(cf *Configs)
)

// OnChange register hook called with the reloaded config
func OnChange(fn func(cf *Configs)) {
	muHooks.Lock()
	defer muHooks.Unlock()

	hooks = append(hooks, fn)
}

// InitConfig init config
func InitConfig() error {
	v := newViper(filePath)
	cf, err := load(v)
	if err != nil {
		return err
	}
	CF = cf

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Log.Infof("config file changed: %s", e.Name)
		reloaded, err := load(v)
		if err != nil {
			logger.Log.Errorf("reload config error: %s", err)
			return
		}

		muHooks.Lock()
		defer muHooks.Unlock()
		for _, fn := range hooks {
			fn(reloaded)
		}
	})
	v.WatchConfig()

	return nil
}

// Load load config from a directory without watching it
func Load(path string) (*Configs, error) {
	return load(newViper(path))
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(fileNameConfig)
	v.SetConfigType(fileExtension)
	v.AutomaticEnv()

	// แปลง . dot เป็น _ underscore
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	return v
}

// setDefaults every key needs a default for AutomaticEnv to bind it
func setDefaults(v *viper.Viper) {
	v.SetDefault("APP.NAME", "sismo-relay")
	v.SetDefault("APP.VERSION", "dev")
	v.SetDefault("APP.PORT", 5000)
	v.SetDefault("APP.ENVIRONMENT", string(Develop))
	v.SetDefault("APP.LOG_LEVEL", "info")
	v.SetDefault("APP.RATE_LIMIT", 5)
	v.SetDefault("APP.RATE_BURST", 10)

	v.SetDefault("TWITTER.BASE_URL", "https://api.twitter.com")
	v.SetDefault("TWITTER.MONITOR_USERS", []string{})
	v.SetDefault("TWITTER.API_TOKEN", []string{})
	v.SetDefault("TWITTER.TOKEN_RATE_LIMIT", 0)
	v.SetDefault("TWITTER.RATE_WINDOW", time.Hour)
	v.SetDefault("TWITTER.TEXT_QUERY", DefaultTextQuery)
	v.SetDefault("TWITTER.POLL_INTERVAL", time.Second)
	v.SetDefault("TWITTER.RECENCY_WINDOW", 15*time.Second)
	v.SetDefault("TWITTER.RETRY_DELAY", time.Second)
	v.SetDefault("TWITTER.REQUEST_TIMEOUT", 10*time.Second)

	v.SetDefault("ALERT.VERIFICATION_TOKEN", "")
	v.SetDefault("ALERT.WEBHOOKS", []string{})
	v.SetDefault("ALERT.TEST_MODE", false)
	v.SetDefault("ALERT.DEBOUNCE_WINDOW", 15*time.Second)
	v.SetDefault("ALERT.WORKERS", 4)
	v.SetDefault("ALERT.REQUEST_TIMEOUT", 10*time.Second)
}

func load(v *viper.Viper) (*Configs, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			logger.Log.Errorf("read config file error: %s", err)
			return nil, err
		}
		logger.Log.Info("config file not found, using environment variables")
	}

	cf := &Configs{}
	if err := v.Unmarshal(cf); err != nil {
		logger.Log.Errorf("binding config error: %s", err)
		return nil, err
	}
	cf.normalize()

	if err := cf.Validate(); err != nil {
		return nil, err
	}

	return cf, nil
}

// normalize trim list entries from comma separated env values
func (cf *Configs) normalize() {
	cf.Twitter.MonitorUsers = cleanList(cf.Twitter.MonitorUsers)
	cf.Twitter.APIToken = cleanList(cf.Twitter.APIToken)
	cf.Alert.Webhooks = cleanList(cf.Alert.Webhooks)
	cf.Twitter.BaseURL = strings.TrimRight(cf.Twitter.BaseURL, "/")
}

// Validate validate config
func (cf *Configs) Validate() error {
	if len(cf.Twitter.APIToken) == 0 {
		return errors.New("TWITTER_API_TOKEN is required")
	}
	if len(cf.Twitter.MonitorUsers) == 0 {
		return errors.New("TWITTER_MONITOR_USERS is required")
	}
	if cf.Twitter.TokenRateLimit <= 0 {
		return fmt.Errorf("TWITTER_TOKEN_RATE_LIMIT must be positive, got %d", cf.Twitter.TokenRateLimit)
	}

	durations := map[string]time.Duration{
		"TWITTER_RATE_WINDOW":     cf.Twitter.RateWindow,
		"TWITTER_POLL_INTERVAL":   cf.Twitter.PollInterval,
		"TWITTER_RECENCY_WINDOW":  cf.Twitter.RecencyWindow,
		"TWITTER_RETRY_DELAY":     cf.Twitter.RetryDelay,
		"TWITTER_REQUEST_TIMEOUT": cf.Twitter.RequestTimeout,
		"ALERT_DEBOUNCE_WINDOW":   cf.Alert.DebounceWindow,
		"ALERT_REQUEST_TIMEOUT":   cf.Alert.RequestTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if cf.Alert.Workers <= 0 {
		return fmt.Errorf("ALERT_WORKERS must be positive, got %d", cf.Alert.Workers)
	}

	return nil
}

func cleanList(items []string) []string {
	res := []string{}
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				res = append(res, part)
			}
		}
	}

	return res
}
