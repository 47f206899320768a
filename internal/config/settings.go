package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// DBConfig points at the embedded device/role/allocation/setting store.
type DBConfig struct {
	Path     string `mapstructure:"path"`
	PoolSize int    `mapstructure:"pool_size"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	Pass string `mapstructure:"pass"`
}

// BinaryConfig controls where the supervised child binaries are found
// and which ports they bind to.
type BinaryConfig struct {
	AgentPort    int    `mapstructure:"agent_port"`
	EnginePort   int    `mapstructure:"engine_port"`
	AgentBinary  string `mapstructure:"agent_binary"`
	EngineBinary string `mapstructure:"engine_binary"`
}

type DiscoveryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

type Settings struct {
	Env       string          `mapstructure:"env"`
	Debug     bool            `mapstructure:"debug" default:"false"`
	DB        DBConfig        `mapstructure:"database"`
	RedisDB   RedisConfig     `mapstructure:"redis"`
	Binaries  BinaryConfig    `mapstructure:"binaries"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
}

// Default writable setting keys and their initial values (spec §6).
var DefaultRuntimeSettings = map[string]string{
	"auto_start_ollama":   "false",
	"ollama_host":         "http://127.0.0.1:11434",
	"mdns_enabled":        "true",
	"trust_local_network": "false",
	"backend_type":        "local",
	"backend_url":         "",
	"backend_model":       "",
	"backend_api_key":     "",
	"default_role":        "guest",
}

// AllowedSettingKeys is the closed set PUT /api/settings/{key} accepts.
var AllowedSettingKeys = map[string]bool{
	"auto_start_ollama":   true,
	"ollama_host":         true,
	"mdns_enabled":        true,
	"trust_local_network": true,
	"backend_type":        true,
	"backend_url":         true,
	"backend_model":       true,
	"backend_api_key":     true,
	"default_role":        true,
}

func Load() (*Settings, error) {
	if cfgPath := os.Getenv("SHAREDMEM_CONFIG"); cfgPath != "" {
		viper.SetConfigFile(cfgPath)
	} else {
		viper.SetConfigName("config_" + genEnv())
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/sharedmem")
	}

	applyDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &settings, nil
}

func applyDefaults() {
	viper.SetDefault("database.path", "./sharedmem.db")
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("binaries.agent_port", 8181)
	viper.SetDefault("binaries.engine_port", 8282)
	viper.SetDefault("binaries.agent_binary", "rpc-server")
	viper.SetDefault("binaries.engine_binary", "inference-server")
	viper.SetDefault("discovery.enabled", true)
	viper.SetDefault("discovery.service_name", "_sharedmem._tcp")
}

func genEnv() string {
	env := viper.GetString("ENV")
	if env == "" {
		return "dev"
	}
	return env
}

// ControllerPort resolves the HTTP listener port, honoring the PORT env
// var override described in spec §6.
func ControllerPort() int {
	if p := os.Getenv("PORT"); p != "" {
		var v int
		if _, err := fmt.Sscanf(p, "%d", &v); err == nil {
			return v
		}
	}
	return 8080
}
