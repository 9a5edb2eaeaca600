package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/storyforge/internal/archive"
	"github.com/randalmurphal/storyforge/internal/config"
	"github.com/randalmurphal/storyforge/internal/repository"
)

// archiveFlags override the configured archive location.
type archiveFlags struct {
	driver string
	dir    string
	bucket string
}

func (f *archiveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.driver, "driver", "", "archive driver: fs, s3 or memory (default from config)")
	cmd.Flags().StringVar(&f.dir, "dir", "", "archive directory for the fs driver")
	cmd.Flags().StringVar(&f.bucket, "bucket", "", "bucket for the s3 driver")
}

func (f *archiveFlags) open(ctx context.Context, cfg config.ArchiveConfig) (archive.Store, error) {
	if f.driver != "" {
		cfg.Driver = f.driver
	}
	if f.dir != "" {
		cfg.Dir = f.dir
	}
	if f.bucket != "" {
		cfg.S3.Bucket = f.bucket
	}
	return archive.Open(ctx, cfg)
}

// newExportCmd creates the export command.
func newExportCmd(g *globalFlags, v *viper.Viper) *cobra.Command {
	var af archiveFlags
	var sync bool
	cmd := &cobra.Command{
		Use:   "export [project-id...]",
		Short: "Export project factories to the archive",
		Long: `Write each project factory to the archive as one JSON entry per
component under projects/<id>/. With no ids every stored project is exported.

Example:
  storyforge export
  storyforge export p1 p2 --dir ./backup
  storyforge export --driver s3 --bucket story-archive --sync`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, v, func(ctx context.Context, a *app) error {
				if sync && a.repos.Mode == repository.ModeRemote {
					if _, err := a.repos.Projects.Refresh(ctx); err != nil {
						return err
					}
				}
				dst, err := af.open(ctx, a.cfg.Archive)
				if err != nil {
					return err
				}
				report, err := archive.Export(ctx, dst, a.repos.Store, args)
				if err != nil {
					return err
				}
				a.logger.Info("export finished", "exported", len(report.Done), "failed", len(report.Failed))
				return printReport(cmd.OutOrStdout(), g, "Exported", report)
			})
		},
	}
	af.register(cmd)
	cmd.Flags().BoolVar(&sync, "sync", false, "sync from the remote before exporting")
	return cmd
}

// newImportCmd creates the import command.
func newImportCmd(g *globalFlags, v *viper.Viper) *cobra.Command {
	var af archiveFlags
	var match string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import project factories from the archive",
		Long: `Read exported projects back into the store. --match is a glob over
archive keys of the form projects/<id>/basic.json and supports ** and {a,b}.

Example:
  storyforge import
  storyforge import --match 'projects/{p1,p2}/basic.json'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, v, func(ctx context.Context, a *app) error {
				src, err := af.open(ctx, a.cfg.Archive)
				if err != nil {
					return err
				}
				report, err := archive.Import(ctx, src, a.repos.Store, match)
				if err != nil {
					return err
				}
				a.logger.Info("import finished", "imported", len(report.Done), "failed", len(report.Failed))
				return printReport(cmd.OutOrStdout(), g, "Imported", report)
			})
		},
	}
	af.register(cmd)
	cmd.Flags().StringVar(&match, "match", archive.DefaultPattern, "glob selecting projects to import")
	return cmd
}

// reportView is the JSON shape of an archive report.
type reportView struct {
	Done   []string          `json:"done"`
	Failed map[string]string `json:"failed,omitempty"`
}

func printReport(out io.Writer, g *globalFlags, verb string, r archive.Report) error {
	view := reportView{Done: r.Done}
	if view.Done == nil {
		view.Done = []string{}
	}
	ids := make([]string, 0, len(r.Failed))
	for id, err := range r.Failed {
		if view.Failed == nil {
			view.Failed = make(map[string]string)
		}
		view.Failed[id] = err.Error()
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if g.jsonOut {
		if err := printJSON(out, view); err != nil {
			return err
		}
	} else if !g.quiet || len(ids) > 0 {
		st := newStyles(out)
		fmt.Fprintf(out, "%s %d projects\n", verb, len(view.Done))
		for _, id := range ids {
			fmt.Fprintf(out, "%s %s: %s\n", st.warn.Render("failed"), id, view.Failed[id])
		}
	}
	if len(ids) > 0 {
		return fmt.Errorf("%d of %d projects failed", len(ids), len(ids)+len(view.Done))
	}
	return nil
}
