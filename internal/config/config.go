package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	SoftDelete SoftDeleteConfig `mapstructure:"soft_delete"`
	JWTSecret  string           `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ConnString returns the PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// SoftDeleteConfig is the declarative soft-delete policy section. Default
// applies to every listed model; Models maps model names to either the
// boolean true ("use the default") or a full policy object replacing it.
type SoftDeleteConfig struct {
	Default ModelPolicyConfig `mapstructure:"default"`
	Models  map[string]any    `mapstructure:"models"`
}

// ModelPolicyConfig is one soft-delete policy as written in config.
//
// ValueScheme selects how the marker values are produced:
//   - "boolean":   false / true
//   - "timestamp": nil / time of deletion
//   - "expression": DeletedValue / NotDeletedValue are expr-lang programs
//     evaluated with `now` in scope (e.g. `now()`, `0`, `"gone"`).
type ModelPolicyConfig struct {
	Field                         string          `mapstructure:"field"`
	ValueScheme                   string          `mapstructure:"value_scheme"`
	DeletedValue                  string          `mapstructure:"deleted_value"`
	NotDeletedValue               string          `mapstructure:"not_deleted_value"`
	QueryOption                   string          `mapstructure:"query_option"`
	AllowToOneUpdates             bool            `mapstructure:"allow_to_one_updates"`
	AllowCompoundUniqueIndexWhere bool            `mapstructure:"allow_compound_unique_index_where"`
	NestModels                    map[string]bool `mapstructure:"nest_models"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("jwt_secret", "changeme-secret")
	viper.SetDefault("soft_delete.default.field", "deleted")
	viper.SetDefault("soft_delete.default.value_scheme", "boolean")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
