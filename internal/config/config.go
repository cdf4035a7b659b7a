package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Engine    EngineConfig    `mapstructure:"engine"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	URL  string `mapstructure:"url"`
	Name string `mapstructure:"name"`
}

type BroadcastConfig struct {
	Driver string `mapstructure:"driver"` // redis, nats
	Prefix string `mapstructure:"prefix"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

type EngineConfig struct {
	ActionTimeoutSeconds  int `mapstructure:"actionTimeoutSeconds"`
	CommunityCloseMinutes int `mapstructure:"communityCloseMinutes"`
	TimeoutSweepMillis    int `mapstructure:"timeoutSweepMillis"`
	CloseSweepSeconds     int `mapstructure:"closeSweepSeconds"`
}

func (e EngineConfig) ActionTimeout() time.Duration {
	return time.Duration(e.ActionTimeoutSeconds) * time.Second
}

func (e EngineConfig) CommunityCloseDelay() time.Duration {
	return time.Duration(e.CommunityCloseMinutes) * time.Minute
}

func (e EngineConfig) TimeoutSweepInterval() time.Duration {
	return time.Duration(e.TimeoutSweepMillis) * time.Millisecond
}

func (e EngineConfig) CloseSweepInterval() time.Duration {
	return time.Duration(e.CloseSweepSeconds) * time.Second
}

var GlobalConfig *Config

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("broadcast.driver", "redis")
	viper.SetDefault("broadcast.prefix", "poker")
	viper.SetDefault("nats.name", "POKERTABLE_SERVICE")
	viper.SetDefault("jwt.expire", 72)
	viper.SetDefault("engine.actionTimeoutSeconds", 30)
	viper.SetDefault("engine.communityCloseMinutes", 240)
	viper.SetDefault("engine.timeoutSweepMillis", 1000)
	viper.SetDefault("engine.closeSweepSeconds", 30)
}

func LoadConfig(path string) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("POKER")
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
	GlobalConfig = &cfg
}
