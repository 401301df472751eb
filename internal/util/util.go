package util

import (
	"github.com/berfenger/panelsense/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Server: config.ServerConfig{
			Host:                 "panel.test",
			Port:                 8099,
			ConnectTimeoutMillis: 1000,
		},
		Client: config.ClientConfig{
			Name:        "test-panel",
			VersionCode: 1,
		},
		Session: config.SessionConfig{
			AuthTimeoutMillis:       1000,
			RequestStateDelayMillis: 20,
		},
		Reconnect: config.ReconnectConfig{
			Enable:             false,
			InitialDelayMillis: 20,
			MaxDelayMillis:     200,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "panelsense",
		},
		Port: 8080,
	}
}

func TestLogger() *zap.Logger {
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	return zap.Must(logCfg.Build())
}
