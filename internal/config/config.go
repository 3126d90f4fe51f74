package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`

	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	Import struct {
		Root        string `mapstructure:"root"`
		SampleLines int    `mapstructure:"sample_lines"`
	} `mapstructure:"import"`

	Workflow struct {
		MaxTurns          int `mapstructure:"max_turns"`
		MaxActionsPerTurn int `mapstructure:"max_actions_per_turn"`
	} `mapstructure:"workflow"`

	LLM struct {
		APIKey string `mapstructure:"api_key"`
		Model  string `mapstructure:"model"`
	} `mapstructure:"llm"`

	Auth struct {
		Issuer       string `mapstructure:"issuer"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURL  string `mapstructure:"redirect_url"`
	} `mapstructure:"auth"`

	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// IsDev reports whether the service runs in a development environment.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Environment, "dev")
}

// LoadConfig loads the configuration from a file and the environment. An
// explicit file path overrides the default search locations.
func LoadConfig(file string) (*Config, error) {
	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("environment", "dev")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("import.root", "./import")
	viper.SetDefault("import.sample_lines", 100)
	viper.SetDefault("workflow.max_turns", 10)
	viper.SetDefault("workflow.max_actions_per_turn", 32)
	viper.SetDefault("llm.model", "gemini-2.0-flash")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize the OIDC issuer url (strip trailing slash if any) so users
	// can paste the full URL from the provider's admin console.
	config.Auth.Issuer = strings.TrimRight(strings.TrimSpace(config.Auth.Issuer), "/")

	return &config, nil
}
