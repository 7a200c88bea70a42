package utils

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	environmentKeySeparatorConstant       = "_"
	configurationKeySeparatorConstant     = "."
	listSeparatorConstant                 = ","
	embeddedConfigurationTemplateConstant = "failed to read embedded configuration: %w"
	configurationReadTemplateConstant     = "failed to read configuration file %s: %w"
	configurationSearchTemplateConstant   = "failed to read configuration: %w"
	configurationDecodeTemplateConstant   = "failed to decode configuration: %w"
	configurationInvalidTemplateConstant  = "invalid configuration: %w"
	environmentBindingTemplateConstant    = "failed to bind environment variables for %s: %w"
)

// ConfigurationMetadata describes where the effective configuration came from.
type ConfigurationMetadata struct {
	ConfigFileUsed string
}

// ConfigurationLoader layers embedded defaults, a configuration file, and environment
// variables into a typed configuration.
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	embeddedConfiguration     []byte
	embeddedConfigurationType string
	environmentAliases        map[string][]string
	validate                  *validator.Validate
}

// NewConfigurationLoader constructs a loader searching the given directories in order.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName:  configurationName,
		configurationType:  configurationType,
		environmentPrefix:  environmentPrefix,
		searchPaths:        append([]string{}, searchPaths...),
		environmentAliases: map[string][]string{},
		validate:           validator.New(validator.WithRequiredStructEnabled()),
	}
}

// SetEmbeddedConfiguration registers configuration content merged beneath any file.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(content []byte, configurationType string) {
	loader.embeddedConfiguration = append([]byte{}, content...)
	loader.embeddedConfigurationType = configurationType
}

// BindEnvironmentAlias lets unprefixed environment variables populate a configuration key,
// for example TELEGRAM_BOT_TOKEN for telegram.token. Prefixed variables still take precedence.
func (loader *ConfigurationLoader) BindEnvironmentAlias(key string, environmentVariables ...string) {
	loader.environmentAliases[key] = append(loader.environmentAliases[key], environmentVariables...)
}

// LoadConfiguration merges the configuration sources into target and validates the result.
// An explicit configuration file path replaces the search paths.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, target any) (ConfigurationMetadata, error) {
	configurationReader := viper.New()
	for key, value := range defaultValues {
		configurationReader.SetDefault(key, value)
	}

	if len(loader.embeddedConfiguration) > 0 {
		configurationReader.SetConfigType(loader.embeddedConfigurationType)
		if mergeError := configurationReader.MergeConfig(bytes.NewReader(loader.embeddedConfiguration)); mergeError != nil {
			return ConfigurationMetadata{}, fmt.Errorf(embeddedConfigurationTemplateConstant, mergeError)
		}
	}

	configurationReader.SetConfigName(loader.configurationName)
	configurationReader.SetConfigType(loader.configurationType)
	trimmedFilePath := strings.TrimSpace(configurationFilePath)
	if len(trimmedFilePath) > 0 {
		configurationReader.SetConfigFile(trimmedFilePath)
		if mergeError := configurationReader.MergeInConfig(); mergeError != nil {
			return ConfigurationMetadata{}, fmt.Errorf(configurationReadTemplateConstant, trimmedFilePath, mergeError)
		}
	} else {
		for _, searchPath := range loader.searchPaths {
			if len(strings.TrimSpace(searchPath)) > 0 {
				configurationReader.AddConfigPath(searchPath)
			}
		}
		if mergeError := configurationReader.MergeInConfig(); mergeError != nil {
			var notFoundError viper.ConfigFileNotFoundError
			if !errors.As(mergeError, &notFoundError) {
				return ConfigurationMetadata{}, fmt.Errorf(configurationSearchTemplateConstant, mergeError)
			}
		}
	}

	if len(loader.environmentPrefix) > 0 {
		configurationReader.SetEnvPrefix(loader.environmentPrefix)
	}
	configurationReader.SetEnvKeyReplacer(strings.NewReplacer(configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	configurationReader.AutomaticEnv()
	for key, environmentVariables := range loader.environmentAliases {
		bindingArguments := append([]string{key}, environmentVariables...)
		if bindError := configurationReader.BindEnv(bindingArguments...); bindError != nil {
			return ConfigurationMetadata{}, fmt.Errorf(environmentBindingTemplateConstant, key, bindError)
		}
	}

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(listSeparatorConstant),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if decodeError := configurationReader.Unmarshal(target, decodeHook); decodeError != nil {
		return ConfigurationMetadata{}, fmt.Errorf(configurationDecodeTemplateConstant, decodeError)
	}

	if validationError := loader.validate.Struct(target); validationError != nil {
		return ConfigurationMetadata{}, fmt.Errorf(configurationInvalidTemplateConstant, validationError)
	}

	return ConfigurationMetadata{ConfigFileUsed: configurationReader.ConfigFileUsed()}, nil
}
