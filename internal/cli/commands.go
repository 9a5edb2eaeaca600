package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	storyerrors "github.com/randalmurphal/storyforge/internal/errors"
	"github.com/randalmurphal/storyforge/internal/model"
	"github.com/randalmurphal/storyforge/internal/repository"
)

// newListCmd creates the list command.
func newListCmd(g *globalFlags, v *viper.Viper) *cobra.Command {
	var projectType, status, phase string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects",
		Long: `List cached projects, newest first.

Example:
  storyforge list
  storyforge list --type film
  storyforge list --status active --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, v, func(ctx context.Context, a *app) error {
				var (
					projects []model.Project
					err      error
				)
				switch {
				case projectType != "":
					projects, err = a.repos.Projects.ListByType(ctx, model.ProjectType(strings.ToUpper(projectType)))
				case status != "":
					projects, err = a.repos.Projects.ListByStatus(ctx, model.ProjectStatus(strings.ToUpper(status)))
				case phase != "":
					projects, err = a.repos.Projects.ListByPhase(ctx, model.ProductionPhase(strings.ToUpper(phase)))
				default:
					projects, err = a.repos.Projects.List(ctx)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if g.jsonOut {
					return printJSON(out, projects)
				}
				if len(projects) == 0 {
					fmt.Fprintln(out, "No projects found. Pull them with: storyforge sync")
					return nil
				}
				tw := newTable(out, "ID", "TYPE", "STATUS", "PHASE", "TITLE")
				for _, p := range projects {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, orDash(string(p.Type)), orDash(string(p.Status)), orDash(string(p.Phase)), truncate(p.Title, titleWidth(out, 60, 40)))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&projectType, "type", "", "filter by project type")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&phase, "phase", "", "filter by production phase")
	return cmd
}

// projectView is the show command's JSON shape.
type projectView struct {
	Project     model.Project    `json:"project"`
	Characters  int              `json:"characters"`
	Stories     int              `json:"stories"`
	Scripts     int              `json:"scripts"`
	Storyboards int              `json:"storyboards"`
	Platforms   []model.Platform `json:"platforms"`
}

// newShowCmd creates the show command.
func newShowCmd(g *globalFlags, v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project and its content counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, v, func(ctx context.Context, a *app) error {
				id := args[0]
				p, ok, err := a.repos.Projects.Get(ctx, id)
				if err != nil {
					return err
				}
				if !ok {
					return storyerrors.ErrProjectNotFound(id)
				}

				view := projectView{Project: p}
				chars, err := a.repos.Characters.GetCharacters(ctx, id)
				if err != nil {
					return err
				}
				stories, err := a.repos.Content.GetStories(ctx, id)
				if err != nil {
					return err
				}
				scripts, err := a.repos.Content.GetScripts(ctx, id)
				if err != nil {
					return err
				}
				boards, err := a.repos.Content.GetStoryboards(ctx, id)
				if err != nil {
					return err
				}
				if view.Platforms, err = a.repos.Distribution.ConnectedPlatformIDs(ctx, id); err != nil {
					return err
				}
				view.Characters, view.Stories, view.Scripts, view.Storyboards = len(chars), len(stories), len(scripts), len(boards)

				out := cmd.OutOrStdout()
				if g.jsonOut {
					return printJSON(out, view)
				}
				st := newStyles(out)
				fmt.Fprintln(out, st.title.Render(p.Title))
				fmt.Fprintf(out, "%s %s\n", st.label.Render("ID:    "), p.ID)
				fmt.Fprintf(out, "%s %s / %s / %s\n", st.label.Render("State: "), orDash(string(p.Type)), orDash(string(p.Status)), orDash(string(p.Phase)))
				if p.Description != "" {
					fmt.Fprintf(out, "%s %s\n", st.label.Render("About: "), p.Description)
				}
				fmt.Fprintf(out, "%s %d characters, %d stories, %d scripts, %d storyboards\n",
					st.label.Render("Holds: "), view.Characters, view.Stories, view.Scripts, view.Storyboards)
				if len(view.Platforms) > 0 {
					names := make([]string, len(view.Platforms))
					for i, pl := range view.Platforms {
						names[i] = string(pl)
					}
					fmt.Fprintf(out, "%s %s\n", st.label.Render("On:    "), strings.Join(names, ", "))
				}
				if len(p.Team) > 0 {
					fmt.Fprintf(out, "%s %d members\n", st.label.Render("Team:  "), len(p.Team))
				}
				return nil
			})
		},
	}
}

// searchView is the search command's JSON shape.
type searchView struct {
	Projects   []model.Project          `json:"projects"`
	Characters []model.Character        `json:"characters"`
	Content    []repository.ContentItem `json:"content"`
}

// newSearchCmd creates the search command.
func newSearchCmd(g *globalFlags, v *viper.Viper) *cobra.Command {
	var projectID string
	var kinds []string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search projects, characters and content",
		Long: `Search project titles, characters and story, script and storyboard
content. Matching is case-insensitive.

Example:
  storyforge search harbor
  storyforge search "the lights" --kind script --project p1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withApp(cmd, g, v, func(ctx context.Context, a *app) error {
				var view searchView
				var err error
				if projectID == "" && len(kinds) == 0 {
					if view.Projects, err = a.repos.Projects.Search(ctx, query); err != nil {
						return err
					}
					if view.Characters, err = a.repos.Characters.Search(ctx, query); err != nil {
						return err
					}
				}
				filter := repository.ContentFilter{ProjectID: projectID}
				for _, k := range kinds {
					filter.Kinds = append(filter.Kinds, model.ContentKind(strings.ToLower(k)))
				}
				if view.Content, err = a.repos.Content.SearchContent(ctx, query, filter); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if g.jsonOut {
					return printJSON(out, view)
				}
				if len(view.Projects)+len(view.Characters)+len(view.Content) == 0 {
					fmt.Fprintf(out, "No matches for %q\n", query)
					return nil
				}
				tw := newTable(out, "KIND", "ID", "PROJECT", "TITLE")
				width := titleWidth(out, 50, 50)
				for _, p := range view.Projects {
					fmt.Fprintf(tw, "project\t%s\t%s\t%s\n", p.ID, p.ID, truncate(p.Title, width))
				}
				for _, c := range view.Characters {
					fmt.Fprintf(tw, "character\t%s\t%s\t%s\n", c.ID, c.ProjectID, truncate(c.Name, width))
				}
				for _, it := range view.Content {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.Kind, it.ID, it.ProjectID, truncate(it.Title, width))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "only search content in this project")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "content kinds to search (story, script, storyboard)")
	return cmd
}

// newSyncCmd creates the sync command.
func newSyncCmd(g *globalFlags, v *viper.Viper) *cobra.Command {
	var progress bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull projects from the remote API into the store",
		Long: `Load stored projects, then fetch the remote project list and the
details of every project that changed. Unchanged projects are skipped using
conditional requests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAppOptions(cmd, g, v, appOptions{progress: progress}, func(ctx context.Context, a *app) error {
				report, err := a.repos.Projects.Refresh(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.jsonOut {
					return printJSON(out, report)
				}
				if g.quiet {
					return nil
				}
				st := newStyles(out)
				if report.Offline {
					fmt.Fprintln(out, st.warn.Render("Offline: loaded stored projects only"))
				}
				fmt.Fprintf(out, "Stored %d, listed %d, updated %d, unchanged %d, failed %d\n",
					report.Stored, report.Listed, report.Updated, report.Unchanged, report.Failed)
				if report.ListNotModified {
					fmt.Fprintln(out, st.dim.Render("Remote project list not modified"))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&progress, "progress", false, "print each change event to stderr")
	return cmd
}

// storyView pairs a story with its scripts.
type storyView struct {
	Story   model.Story    `json:"story"`
	Scripts []model.Script `json:"scripts"`
}

// newStoriesCmd creates the stories command.
func newStoriesCmd(g *globalFlags, v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stories <project-id>",
		Short: "List a project's stories and their scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, v, func(ctx context.Context, a *app) error {
				id := args[0]
				if _, ok, err := a.repos.Projects.Get(ctx, id); err != nil {
					return err
				} else if !ok {
					return storyerrors.ErrProjectNotFound(id)
				}
				stories, err := a.repos.Content.GetStories(ctx, id)
				if err != nil {
					return err
				}
				views := make([]storyView, 0, len(stories))
				for _, s := range stories {
					scripts, err := a.repos.Content.GetScriptsForStory(ctx, s.ID)
					if err != nil {
						return err
					}
					views = append(views, storyView{Story: s, Scripts: scripts})
				}

				out := cmd.OutOrStdout()
				if g.jsonOut {
					return printJSON(out, views)
				}
				if len(views) == 0 {
					fmt.Fprintln(out, "No stories")
					return nil
				}
				st := newStyles(out)
				for _, sv := range views {
					fmt.Fprintf(out, "%s %s\n", st.title.Render(sv.Story.Title), st.dim.Render("("+sv.Story.ID+")"))
					for _, sc := range sv.Scripts {
						boards, err := a.repos.Content.GetStoryboardsForScript(ctx, sc.ID)
						if err != nil {
							return err
						}
						fmt.Fprintf(out, "  %s v%d, %d storyboards\n", sc.Title, sc.Version, len(boards))
					}
				}
				return nil
			})
		},
	}
}

// newCharacterContentCmd creates the character-content command.
func newCharacterContentCmd(g *globalFlags, v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "character-content <character-id>",
		Short: "Show the stories, scripts and storyboards a character appears in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, v, func(ctx context.Context, a *app) error {
				id := args[0]
				c, ok, err := a.repos.Characters.GetCharacter(ctx, id)
				if err != nil {
					return err
				}
				if !ok {
					return storyerrors.ErrEntityNotFound("character", id)
				}
				content, err := a.repos.Content.GetCharacterContent(ctx, id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if g.jsonOut {
					return printJSON(out, content)
				}
				st := newStyles(out)
				fmt.Fprintln(out, st.title.Render(c.Name))
				section := func(name string, titles []string) {
					fmt.Fprintf(out, "%s (%d)\n", st.label.Render(name), len(titles))
					for _, t := range titles {
						fmt.Fprintf(out, "  %s\n", t)
					}
				}
				section("Stories", titlesOf(content.Stories, func(s model.Story) string { return s.Title }))
				section("Scripts", titlesOf(content.Scripts, func(s model.Script) string { return s.Title }))
				section("Storyboards", titlesOf(content.Storyboards, func(b model.Storyboard) string { return b.Title }))
				return nil
			})
		},
	}
}

func titlesOf[T any](items []T, title func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = title(it)
	}
	return out
}
