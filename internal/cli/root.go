// Package cli implements the storyforge command-line interface.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	cfgFile string
	verbose bool
	quiet   bool
	jsonOut bool
	offline bool
}

// NewRootCmd builds the command tree. Each call returns an independent tree
// with its own flag state.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "storyforge",
		Short: "Project factory cache and sync",
		Long: `storyforge keeps project factories (projects with their characters,
stories, scripts and storyboards) in a local store, syncs them from the
project API and serves them to tools.

Quick start:
  storyforge sync                   Pull projects from the remote API
  storyforge list                   List cached projects
  storyforge show <id>              Show one project
  storyforge serve                  Start the HTTP and WebSocket API`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initViper(v, g, cmd.ErrOrStderr())
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.cfgFile, "config", "", "config file (default is .storyforge/config.yaml)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "suppress non-essential output")
	pf.BoolVar(&g.jsonOut, "json", false, "output as JSON")
	pf.BoolVar(&g.offline, "offline", false, "never contact the remote API")
	_ = v.BindPFlag("offline", pf.Lookup("offline"))

	rootCmd.AddCommand(newListCmd(g, v))
	rootCmd.AddCommand(newShowCmd(g, v))
	rootCmd.AddCommand(newSearchCmd(g, v))
	rootCmd.AddCommand(newSyncCmd(g, v))
	rootCmd.AddCommand(newStoriesCmd(g, v))
	rootCmd.AddCommand(newCharacterContentCmd(g, v))
	rootCmd.AddCommand(newExportCmd(g, v))
	rootCmd.AddCommand(newImportCmd(g, v))
	rootCmd.AddCommand(newServeCmd(g, v))
	rootCmd.AddCommand(newConfigCmd(g, v))
	return rootCmd
}

// Execute runs the storyforge command tree and prints any error.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		verbose, _ := cmd.PersistentFlags().GetBool("verbose")
		PrintError(cmd.ErrOrStderr(), err, verbose)
	}
	return err
}

// initViper wires environment overrides for the global flags.
func initViper(v *viper.Viper, g *globalFlags, stderr io.Writer) {
	v.SetEnvPrefix("STORYFORGE")
	v.AutomaticEnv()
	if g.cfgFile != "" && g.verbose {
		fmt.Fprintln(stderr, "Using config file:", g.cfgFile)
	}
}
