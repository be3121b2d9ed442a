package cmd

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AvaProtocol/ap-userop/core/config"
)

var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect the bundler configuration",
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration and signing address",
		Long: `Merge the built-in defaults, the --config file and the option flags,
connect to the configured network and derive the signing account from the
mnemonic file. The mnemonic itself is never printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			defer resolved.Close()

			out, err := json.MarshalIndent(map[string]any{
				"config":    resolved.Config,
				"network":   resolved.Endpoint.URL,
				"inProcess": resolved.Endpoint.InProcess,
				"address":   resolved.Identity.Address().Hex(),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
)

func init() {
	registerConfigFlags(configShowCmd.Flags())
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// registerConfigFlags adds one flag per recognized config key. Flags carry no
// default so that an unset flag never overrides the config file.
func registerConfigFlags(fs *pflag.FlagSet) {
	for _, f := range config.Fields() {
		usage := fmt.Sprintf("override the %q config key", f.Key)
		switch f.Kind {
		case reflect.Bool:
			fs.Bool(f.Key, false, usage)
		case reflect.Uint64:
			fs.Uint64(f.Key, 0, usage)
		case reflect.Slice:
			fs.StringSlice(f.Key, nil, usage)
		default:
			fs.String(f.Key, "", usage)
		}
	}
}

// rawOptions collects the config flags the user actually set, plus the config
// file path, as the raw option bag the resolver expects.
func rawOptions(fs *pflag.FlagSet) map[string]any {
	raw := map[string]any{}
	if configFile != "" {
		raw[config.ConfigFileOption] = configFile
	}

	fs.Visit(func(f *pflag.Flag) {
		if !config.IsRecognized(f.Name) {
			return
		}
		switch f.Value.Type() {
		case "bool":
			v, _ := fs.GetBool(f.Name)
			raw[f.Name] = v
		case "uint64":
			v, _ := fs.GetUint64(f.Name)
			raw[f.Name] = v
		case "stringSlice":
			v, _ := fs.GetStringSlice(f.Name)
			raw[f.Name] = v
		default:
			raw[f.Name] = f.Value.String()
		}
	})
	return raw
}

func resolveConfig(cmd *cobra.Command) (*config.Resolved, error) {
	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	rc := config.ContextFromEnv()
	rc.Logger = log
	return config.Resolve(cmd.Context(), rawOptions(cmd.Flags()), rc)
}
