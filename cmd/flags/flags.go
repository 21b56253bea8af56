// SPDX-License-Identifier: Apache-2.0

package flags

import (
	"time"

	"github.com/spf13/viper"
)

func EnvFile() string {
	return viper.GetString("ENV_FILE")
}

func LogFormat() string {
	return viper.GetString("LOG_FORMAT")
}

func LogLevel() string {
	return viper.GetString("LOG_LEVEL")
}

func MaxRetries() int { return viper.GetInt("MAX_RETRIES") }

func Delay() time.Duration { return viper.GetDuration("DELAY") }

func AttemptTimeout() time.Duration { return viper.GetDuration("ATTEMPT_TIMEOUT") }

func Backoff() string {
	return viper.GetString("BACKOFF")
}

func ListenAddr() string {
	return viper.GetString("LISTEN_ADDR")
}

// IsSet reports whether the setting was given on the command line or in
// the environment, as opposed to falling back to its default.
func IsSet(key string) bool {
	return viper.IsSet(key)
}
