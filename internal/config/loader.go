package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/eval-hub/sim-hub/internal/constants"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type EnvMap struct {
	Env struct {
		Mappings map[string]string `mapstructure:"mappings,omitempty"`
	} `mapstructure:"env,omitempty"`
}

type SecretMap struct {
	Secrets struct {
		Dir      string            `mapstructure:"dir,omitempty"`
		Mappings map[string]string `mapstructure:"mappings,omitempty"`
	} `mapstructure:"secrets,omitempty"`
}

// readConfig locates and reads a configuration file using Viper. It searches for
// a file named "{name}.{ext}" in each of the given directories in order; the first
// found file is read. The returned Viper instance contains the parsed config and
// can be used for further unmarshaling or env binding.
//
// Parameters:
//   - logger: Logger for config load messages (success and failure).
//   - name: Config file base name without extension (e.g., "config").
//   - ext: Config file extension/type (e.g., "yaml"); used by Viper as config type.
//   - dirs: One or more directories to search for the file; first match wins.
//
// Returns:
//   - *viper.Viper: Viper instance with the config loaded, or a new Viper if no file was read.
//   - error: Non-nil if no config file was found in any dir or if reading failed.
func readConfig(logger *slog.Logger, name string, ext string, dirs ...string) (*viper.Viper, error) {
	logger.Info("Reading the configuration file", "file", fmt.Sprintf("%s.%s", name, ext), "dirs", fmt.Sprintf("%v", dirs))

	configValues := viper.New()

	configValues.SetConfigName(name) // name of config file (without extension)
	configValues.SetConfigType(ext)  // REQUIRED if the config file does not have the extension in the name
	for _, dir := range dirs {
		configValues.AddConfigPath(dir)
	}
	err := configValues.ReadInConfig() // Find and read the config file

	if err != nil {
		logger.Error("Failed to read the configuration file", "file", fmt.Sprintf("%s.%s", name, ext), "dirs", fmt.Sprintf("%v", dirs), "error", err.Error())
	} else {
		logger.Info("Read the configuration file", "file", configValues.ConfigFileUsed())
	}

	return configValues, err
}

// mergeOverride merges the operator provided configuration file (CONFIG_PATH) on top of
// the bundled one. The secrets section is replaced as a whole, the operator must not
// inherit mandatory secrets that only exist in the bundled deployment.
func mergeOverride(logger *slog.Logger, configValues *viper.Viper, path string) error {
	override := viper.New()
	override.SetConfigFile(path)
	if err := override.ReadInConfig(); err != nil {
		logger.Error("Failed to read the override configuration file", "file", path, "error", err.Error())
		return err
	}
	if err := configValues.MergeConfigMap(override.AllSettings()); err != nil {
		return err
	}
	if override.IsSet("secrets") {
		configValues.Set("secrets", override.Get("secrets"))
	}
	logger.Info("Merged the override configuration file", "file", path)
	return nil
}

// LoadConfig loads configuration using a two-tier system with Viper. This implements
// a loading strategy that supports cascading configuration values and multiple sources.
//
// Configuration loading order (later sources override earlier ones):
//  1. .env file in the working directory, if present
//  2. config.yaml (config/config.yaml) - Configuration loaded first
//  3. The file named by CONFIG_PATH, merged on top
//  4. Environment variables - Mapped via env.mappings configuration
//  5. Secrets from files - Mapped via secrets.mappings with secrets.dir
//
// Configuration supports:
//   - Environment variable mapping: Define in env.mappings (e.g., PORT: service.port)
//   - Secrets from files: Define in secrets.mappings with secrets.dir (e.g., db_password: database.password)
//   - Optional secrets: Append :optional to the secret file name to mark it as optional.
//     If an optional secret file doesn't exist, no error is logged and the configuration
//     continues loading without that secret value.
//
// Example configuration structure:
//
//	env:
//	  mappings:
//	    PORT: service.port
//	    OPENAI_API_KEY: llm.default.api_key
//	secrets:
//	  dir: /tmp
//	  mappings:
//	    db_password: database.password
//	    api_token:optional: llm.default.api_key
func LoadConfig(logger *slog.Logger, version string, build string, buildDate string, dirs ...string) (*Config, error) {
	// a missing .env file is the normal case outside of development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to load the .env file", "error", err.Error())
	}

	if len(dirs) == 0 {
		dirs = []string{"config", "./config", "../../config"}
	}
	configValues, err := readConfig(logger, "config", "yaml", dirs...)
	if err != nil {
		return nil, err
	}

	if configPath := os.Getenv(constants.EnvVarConfigPath); configPath != "" {
		if err := mergeOverride(logger, configValues, filepath.Clean(configPath)); err != nil {
			return nil, err
		}
	}

	// set up the environment variable mappings
	envMappings := EnvMap{}
	if err := configValues.Unmarshal(&envMappings); err != nil {
		return nil, err
	}
	for envName, field := range envMappings.Env.Mappings {
		if err := configValues.BindEnv(field, strings.ToUpper(envName)); err != nil {
			return nil, err
		}
		logger.Info("Mapped environment variable", "field_name", field, "env_name", strings.ToUpper(envName))
	}

	// set up the secrets from the secrets directory
	secrets := SecretMap{}
	if err := configValues.Unmarshal(&secrets); err != nil {
		return nil, err
	}
	if secrets.Secrets.Dir != "" {
		// check that the secrets directory exists
		if _, err := os.Stat(secrets.Secrets.Dir); !os.IsNotExist(err) {
			for fileName, fieldName := range secrets.Secrets.Mappings {
				// the secret file name can be optional by appending :optional to the file name
				optional := strings.HasSuffix(fileName, ":optional")
				if optional {
					fileName = strings.TrimSuffix(fileName, ":optional")
				}
				secret, err := getSecret(secrets.Secrets.Dir, fileName, optional)
				if err != nil {
					// log the error and fail the startup (by returning the error)
					logger.Error("Failed to read secret file", "file", fmt.Sprintf("%s/%s", secrets.Secrets.Dir, fileName), "error", err.Error())
					return nil, err
				}
				if secret != "" {
					configValues.Set(fieldName, secret)
				}
			}
		}
	}

	conf := Config{}
	if err := configValues.Unmarshal(&conf); err != nil {
		return nil, err
	}
	conf.applyDefaults()

	// set the version, build, and build date
	conf.Service.Version = version
	conf.Service.Build = build
	conf.Service.BuildDate = buildDate
	return &conf, nil
}

// getSecret reads a secret from a file and returns the value as a string.
// If the file does not exist and optional is true, it silently returns an empty string.
//
// Parameters:
//   - secretsDir: The directory containing the secret files
//   - secretName: The name of the secret file
//   - optional: If true, missing files are not an error
//
// Returns:
//   - string: The value of the secret without surrounding whitespace
//   - error: when the file can not be read
func getSecret(secretsDir string, secretName string, optional bool) (string, error) {
	// this is the full name of the secrets file to read
	secret, err := os.ReadFile(filepath.Join(secretsDir, secretName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && optional {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}
