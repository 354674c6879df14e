package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cuemby/leadercheck/pkg/probe"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// LEADERCHECK_PROBE_USER or LEADERCHECK_RETRY_DELAY
const EnvPrefix = "LEADERCHECK"

// DefaultSettingsFile is read when present and no --settings flag is given
const DefaultSettingsFile = "/etc/leadercheck/leadercheck.yaml"

// Settings holds the runtime configuration of a leadercheck invocation
type Settings struct {
	// Store is the INI file holding the expected leader per cluster
	Store string `mapstructure:"store"`

	// HistoryDB is the bbolt file recording past runs. It also serves as the
	// run lock between concurrent invocations. Its directory must be
	// writable by the user running the check; when it is not, runs go
	// unrecorded and unlocked.
	HistoryDB   string        `mapstructure:"history_db"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`

	// HistoryRetain is the number of runs kept in HistoryDB (0 keeps all)
	HistoryRetain int `mapstructure:"history_retain"`

	// MetricsTextfile, when set, receives a node_exporter textfile dump
	// after each one-shot run
	MetricsTextfile string `mapstructure:"metrics_textfile"`

	Log    LogSettings    `mapstructure:"log"`
	Probe  ProbeSettings  `mapstructure:"probe"`
	Retry  RetrySettings  `mapstructure:"retry"`
	Notify NotifySettings `mapstructure:"notify"`
	Watch  WatchSettings  `mapstructure:"watch"`
}

// LogSettings configures pkg/log
type LogSettings struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// ProbeSettings configures how the current leader is queried
type ProbeSettings struct {
	// Mode is "ssh" (query the expected leader remotely) or "local" (run the
	// query on this host)
	Mode          string        `mapstructure:"mode"`
	Command       string        `mapstructure:"command"`
	User          string        `mapstructure:"user"`
	Port          int           `mapstructure:"port"`
	KnownHosts    []string      `mapstructure:"known_hosts"`
	IdentityFiles []string      `mapstructure:"identity_files"`
	UseAgent      bool          `mapstructure:"use_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// RetrySettings configures the wait-and-reprobe policy used while the
// cluster reports no leader
type RetrySettings struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Delay      time.Duration `mapstructure:"delay"`
}

// NotifySettings configures alert delivery
type NotifySettings struct {
	Enabled            bool     `mapstructure:"enabled"`
	Relay              string   `mapstructure:"relay"`
	Sender             string   `mapstructure:"sender"`
	Domain             string   `mapstructure:"domain"`
	ChangeRecipients   []string `mapstructure:"change_recipients"`
	NoLeaderRecipients []string `mapstructure:"no_leader_recipients"`
}

// WatchSettings configures the long-running watch mode
type WatchSettings struct {
	// Schedule is a cron spec, e.g. "*/5 * * * *" or "@every 5m"
	Schedule string `mapstructure:"schedule"`

	// Listen is the address serving /metrics, /health and /ready
	Listen string `mapstructure:"listen"`

	// Clusters limits the watched clusters; empty watches every section
	Clusters []string `mapstructure:"clusters"`

	// RefreshInterval is how often the expected leader gauge is refreshed
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store", "/maint/nagios/etc/leader.conf")
	v.SetDefault("history_db", "/var/lib/leadercheck/history.db")
	v.SetDefault("lock_timeout", 5*time.Minute)
	v.SetDefault("history_retain", 1000)
	v.SetDefault("metrics_textfile", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("probe.mode", "ssh")
	v.SetDefault("probe.command", probe.DefaultCommand)
	v.SetDefault("probe.user", "root")
	v.SetDefault("probe.port", 22)
	v.SetDefault("probe.known_hosts", []string{})
	v.SetDefault("probe.identity_files", []string{})
	v.SetDefault("probe.use_agent", true)
	v.SetDefault("probe.timeout", 30*time.Second)

	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.delay", 30*time.Second)

	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.relay", "localhost:25")
	v.SetDefault("notify.sender", "leadercheck")
	v.SetDefault("notify.domain", "")
	v.SetDefault("notify.change_recipients", []string{"root"})
	v.SetDefault("notify.no_leader_recipients", []string{"root"})

	v.SetDefault("watch.schedule", "@every 5m")
	v.SetDefault("watch.listen", ":9273")
	v.SetDefault("watch.clusters", []string{})
	v.SetDefault("watch.refresh_interval", time.Minute)
}

// New returns a viper instance with defaults and environment overrides
// registered
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional settings file and decodes v into Settings. An
// explicitly named file must exist; the default file is optional.
func Load(v *viper.Viper, file string) (*Settings, error) {
	explicit := file != ""
	if !explicit {
		file = DefaultSettingsFile
	}

	if _, err := os.Stat(file); err == nil {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", file, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("settings file %s: %w", file, err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks settings that would otherwise fail late in a run
func (s *Settings) Validate() error {
	var errs []error

	if s.Store == "" {
		errs = append(errs, errors.New("store path is required"))
	}
	if s.Probe.Mode != string(probe.TypeSSH) && s.Probe.Mode != string(probe.TypeLocal) {
		errs = append(errs, fmt.Errorf("probe mode must be 'ssh' or 'local', got %q", s.Probe.Mode))
	}
	if strings.TrimSpace(s.Probe.Command) == "" {
		errs = append(errs, errors.New("probe command is required"))
	}
	if s.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry max_retries must be >= 0, got %d", s.Retry.MaxRetries))
	}
	if s.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must be >= 0, got %s", s.Retry.Delay))
	}
	if s.HistoryRetain < 0 {
		errs = append(errs, fmt.Errorf("history_retain must be >= 0, got %d", s.HistoryRetain))
	}
	if s.Notify.Enabled && s.Notify.Relay == "" {
		errs = append(errs, errors.New("notify relay is required when notifications are enabled"))
	}

	return errors.Join(errs...)
}
