package utils

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// LoadConfig reads <path>/.env (when present) and binds the process environment
// into viper so that APP_PORT is reachable as viper.GetString("app_port").
func LoadConfig(path string) {
	envFile := strings.TrimSuffix(path, "/") + "/.env"
	if err := godotenv.Load(envFile); err != nil {
		logrus.Debugf("[CONFIG] no .env file at %s, using process environment", envFile)
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}
