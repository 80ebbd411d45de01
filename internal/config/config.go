package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings is the relay server configuration, read from WEBTAIL_* variables.
type Settings struct {
	Host           string `envconfig:"HOST" default:"localhost"`
	Port           int    `envconfig:"PORT" default:"8080"`
	FrontendOrigin string `envconfig:"FRONTEND_ORIGIN" default:"http://localhost:5173"`
	FrontendPath   string `envconfig:"FRONTEND_PATH" default:"./frontend/build"`
	RelayPath      string `envconfig:"RELAY_PATH" default:"/ws"`

	// Session tuning
	BroadcastCapacity int           `envconfig:"BROADCAST_CAPACITY" default:"100"`
	PingInterval      time.Duration `envconfig:"PING_INTERVAL" default:"1s"`
	SubscriberPoll    time.Duration `envconfig:"SUBSCRIBER_POLL" default:"1s"`
	DrainTimeout      time.Duration `envconfig:"DRAIN_TIMEOUT" default:"50ms"`

	// Logging
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogPath       string `envconfig:"LOG_PATH" default:""`
	LogMaxSize    int    `envconfig:"LOG_MAX_SIZE" default:"100"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	LogMaxAge     int    `envconfig:"LOG_MAX_AGE" default:"28"`
	LogCompress   bool   `envconfig:"LOG_COMPRESS" default:"false"`
}

// EnvPrefix is the prefix of every server environment variable.
const EnvPrefix = "WEBTAIL"

var Cfg Settings

// Load reads the environment into Cfg.
func Load() error {
	if err := envconfig.Process(EnvPrefix, &Cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if Cfg.Port <= 0 || Cfg.Port > 65535 {
		return fmt.Errorf("load config: port %d out of range", Cfg.Port)
	}
	return nil
}

// Addr returns the listen address.
func (s Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
