package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/storyforge/internal/config"
)

// newConfigCmd creates the config command.
func newConfigCmd(g *globalFlags, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect storyforge configuration",
		Long: `Show the resolved configuration and where each value came from.

Resolution order (later wins):
  1. Built-in defaults
  2. User config      ~/.storyforge/config.yaml
  3. Project config   .storyforge/config.yaml (or --config)
  4. Environment      STORYFORGE_*
  5. Flags            --offline`,
	}
	cmd.AddCommand(newConfigShowCmd(g, v))
	cmd.AddCommand(newConfigGetCmd(g, v))
	cmd.AddCommand(newConfigPathCmd(g))
	cmd.AddCommand(newConfigInitCmd(g))
	return cmd
}

func newConfigShowCmd(g *globalFlags, v *viper.Viper) *cobra.Command {
	var withSource bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := loadConfig(g, v)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if withSource {
				return printSources(out, tc)
			}
			if g.jsonOut {
				flat, err := flatten(tc.Config)
				if err != nil {
					return err
				}
				return printJSON(out, flat)
			}
			data, err := yaml.Marshal(tc.Config)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&withSource, "source", false, "show where each value came from")
	return cmd
}

func newConfigGetCmd(g *globalFlags, v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Long: `Print one configuration value by its dotted path.

Example:
  storyforge config get remote.base_url
  storyforge config get database.sqlite.path`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := loadConfig(g, v)
			if err != nil {
				return err
			}
			flat, err := flatten(tc.Config)
			if err != nil {
				return err
			}
			val, ok := flat[args[0]]
			if !ok {
				return fmt.Errorf("unknown config key: %s", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), val)
			return nil
		},
	}
}

func newConfigPathCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if g.cfgFile != "" {
				fmt.Fprintf(out, "file:    %s\n", g.cfgFile)
				return nil
			}
			if home, err := os.UserHomeDir(); err == nil {
				fmt.Fprintf(out, "user:    %s\n", filepath.Join(home, config.Dir, config.ConfigFileName))
			}
			fmt.Fprintf(out, "project: %s\n", filepath.Join(config.Dir, config.ConfigFileName))
			return nil
		},
	}
}

func newConfigInitCmd(g *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default project config",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.cfgFile
			if path == "" {
				path = filepath.Join(config.Dir, config.ConfigFileName)
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Default().SaveTo(path); err != nil {
				return err
			}
			if !g.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func printSources(w io.Writer, tc *config.TrackedConfig) error {
	flat, err := flatten(tc.Config)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := newTable(w, "KEY", "VALUE", "SOURCE")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%v\t%s\n", k, orDash(fmt.Sprint(flat[k])), tc.GetTrackedSource(k))
	}
	return tw.Flush()
}

// flatten renders cfg as dotted YAML paths to leaf values.
func flatten(cfg *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]any); ok {
				walk(key, sub)
				continue
			}
			out[key] = val
		}
	}
	walk("", raw)
	return out, nil
}
