package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes the configuration from file and environment variables.
func Load(cfgFile string) {
	// explicit .env loading; a missing .env is fine
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search config in the working directory with name "shellog" (without extension).
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("shellog")
	}

	viper.SetEnvPrefix("SHELLOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// Set defaults
	viper.SetDefault("shell", defaultShell())
	viper.SetDefault("login_shell", false)
	viper.SetDefault("command_timeout", "10m")
	viper.SetDefault("sampling_interval", "1s")
	viper.SetDefault("log_dir", "shellog-logs")
	viper.SetDefault("verbose", false)
	viper.SetDefault("echo_output", true)
	viper.SetDefault("db.backend", "sqlite")
	viper.SetDefault("db.path", ".shellog.db")
	viper.SetDefault("db.url", "")
	viper.SetDefault("metrics_addr", "")

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// defaultShell mirrors what an interactive user would get: $SHELL when set,
// otherwise /bin/sh.
func defaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}
