package cmd

import (
	"encoding"
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing mediaxcode configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML format.

The output merges defaults, the config file and environment overrides.
Redirect it to a file to create a configuration template:

  mediaxcode config dump > config.yaml

Environment variables use the MEDIAXCODE_ prefix and underscores for nesting.
Example: ffmpeg.h264.crf -> MEDIAXCODE_FFMPEG_H264_CRF`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags.
// Durations and text marshalers (sizes, config durations) are rendered as
// their human-readable strings.
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
			key = fieldType.Name
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = fv.String()
		case encoding.TextMarshaler:
			text, err := fv.MarshalText()
			if err != nil {
				result[key] = fmt.Sprint(fv)
				continue
			}
			result[key] = string(text)
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# mediaxcode configuration")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# Duration format: 30s, 5m, 1h")
	fmt.Fprintln(out, "# Size format: 64MB, 1GiB")
	fmt.Fprintln(out, "# Empty codec tunables are not passed to ffmpeg; \"0\" is a real value.")
	fmt.Fprintln(out)
	fmt.Fprint(out, string(yamlData))
	return nil
}
