package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel  zapcore.Level
	Server    ServerConfig    `mapstructure:"server"`
	Client    ClientConfig    `mapstructure:"client"`
	Session   SessionConfig   `mapstructure:"session"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Port      uint            `mapstructure:"port"`
	HttpLog   bool            `mapstructure:"http_log"`
	DataDir   string          `mapstructure:"data_dir"`
}

// ServerConfig points at the home-automation add-on. When Host and Username are set
// the service logs in on startup.
type ServerConfig struct {
	Host                 string
	Port                 uint
	Path                 string
	Secure               bool
	Username             string
	Password             string
	AccessToken          string `mapstructure:"access_token"`
	ConnectTimeoutMillis uint32 `mapstructure:"connect_timeout_millis"`
}

type ClientConfig struct {
	Name        string
	VersionCode int `mapstructure:"version_code"`
}

type SessionConfig struct {
	AuthTimeoutMillis       uint32 `mapstructure:"auth_timeout_millis"`
	RequestStateDelayMillis uint32 `mapstructure:"request_state_delay_millis"`
	ResyncIntervalSeconds   uint32 `mapstructure:"resync_interval_seconds"`
}

type ReconnectConfig struct {
	Enable             bool
	InitialDelayMillis uint32 `mapstructure:"initial_delay_millis"`
	MaxDelayMillis     uint32 `mapstructure:"max_delay_millis"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c ServerConfig) ConnectTimeout() time.Duration {
	return millis(c.ConnectTimeoutMillis, 5000)
}

func (c ServerConfig) AutoLogin() bool {
	return c.Host != "" && c.Username != ""
}

func (c SessionConfig) AuthTimeout() time.Duration {
	return millis(c.AuthTimeoutMillis, 10000)
}

func (c SessionConfig) RequestStateDelay() time.Duration {
	return millis(c.RequestStateDelayMillis, 500)
}

func (c SessionConfig) ResyncInterval() time.Duration {
	return time.Duration(c.ResyncIntervalSeconds) * time.Second
}

func (c ReconnectConfig) InitialDelay() time.Duration {
	return millis(c.InitialDelayMillis, 1000)
}

func (c ReconnectConfig) MaxDelay() time.Duration {
	return millis(c.MaxDelayMillis, 60000)
}

func millis(value uint32, fallback uint32) time.Duration {
	if value == 0 {
		value = fallback
	}
	return time.Duration(value) * time.Millisecond
}

func (c Config) Validate() error {
	if c.Session.AuthTimeoutMillis > 0 && c.Session.AuthTimeoutMillis < 500 {
		return errors.New("config param session.auth_timeout_millis should be >= 500")
	}
	if c.Session.ResyncIntervalSeconds > 0 && c.Session.ResyncIntervalSeconds < 10 {
		return errors.New("config param session.resync_interval_seconds should be 0 or >= 10")
	}
	if c.Reconnect.Enable && c.Reconnect.MaxDelay() < c.Reconnect.InitialDelay() {
		return errors.New("config param reconnect.max_delay_millis must be >= reconnect.initial_delay_millis")
	}
	if c.Server.Host != "" && c.Server.Port == 0 {
		return errors.New("config param server.port is required when server.host is set")
	}
	if c.MQTT.Enable && c.MQTT.Host == "" {
		return errors.New("config param mqtt.host is required when mqtt is enabled")
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
