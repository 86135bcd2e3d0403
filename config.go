package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Flag defaults come from a config file and the environment, so a bench
// setup can pin its retry and error budgets once: BBF_RETRIES=3, or
// "retries: 3" in ~/.config/bbf/config.yaml. Explicit flags still win.
func initDefaults() {
	viper.SetDefault("retries", 1)
	viper.SetDefault("max-errors", 1024)
	viper.SetDefault("stepping", 0)
	viper.SetDefault("rwtype", "os")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(dir, "bbf"))
	}
	viper.AddConfigPath("/etc/bbf")

	viper.SetEnvPrefix("bbf")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: ignoring config file: %v\n", err)
		}
	}
}
