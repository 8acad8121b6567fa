package cmd

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zerodaily/nexus/internal/config"
	"github.com/zerodaily/nexus/pkg/bytesize"
	"github.com/zerodaily/nexus/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing nexus configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  nexus config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, ./configs, /etc/nexus, $HOME/.nexus)
  - Environment variables (NEXUS_SERVER_PORT, NEXUS_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the NEXUS_ prefix and underscores for nesting.
Example: server.port -> NEXUS_SERVER_PORT`,
	RunE: runConfigDump,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the effective configuration after merging defaults, the config
file, and environment variables. Secrets are not printed; database DSNs may
contain credentials, so review before sharing.`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
	configCmd.AddCommand(configShowCmd)
}

// toMap converts a config struct to a map, formatting durations and sizes
// for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = strings.ToLower(fieldType.Name)
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case config.Duration:
			result[key] = duration.Format(time.Duration(v))
		case config.ByteSize:
			result[key] = bytesize.Format(bytesize.Size(v))
		default:
			switch {
			case field.Kind() == reflect.Struct:
				result[key] = toMap(field.Interface())
			case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Struct:
				items := make([]map[string]any, field.Len())
				for j := 0; j < field.Len(); j++ {
					items[j] = toMap(field.Index(j).Interface())
				}
				result[key] = items
			default:
				result[key] = v
			}
		}
	}

	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	v := viper.New()
	config.SetDefaults(v)

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling defaults: %w", err)
	}

	return printConfigYAML(&cfg)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return printConfigYAML(cfg)
}

func printConfigYAML(cfg *config.Config) error {
	out, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}
