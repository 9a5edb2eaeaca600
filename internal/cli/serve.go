package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/storyforge/internal/api"
)

// newServeCmd creates the serve command for the API server.
func newServeCmd(g *globalFlags, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the storyforge HTTP API.

Endpoints:
  GET /api/projects                   project list (?type= ?status= ?phase= ?q=)
  GET /api/projects/{id}              one project
  GET /api/projects/{id}/stories      a project's stories
  GET /api/characters/{id}/content    content a character appears in
  GET /api/ws                         WebSocket; send {"type":"subscribe","topic":"project:<id>"}
  GET /metrics                        Prometheus metrics

When sync.on_start is set the project list is refreshed in the background
once the server starts.

Example:
  storyforge serve
  storyforge serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, v, func(ctx context.Context, a *app) error {
				addr := a.cfg.ServerAddr()
				if cmd.Flags().Changed("port") {
					port, _ := cmd.Flags().GetInt("port")
					addr = net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(port))
				}

				ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer cancel()

				if a.cfg.Sync.OnStart {
					reports := a.repos.Projects.StartSync(ctx)
					go func() {
						for r := range reports {
							a.logger.Info("startup sync finished", "updated", r.Updated, "failed", r.Failed, "offline", r.Offline)
						}
					}()
				}

				server := api.New(api.Config{
					Addr:    addr,
					Repos:   a.repos,
					Metrics: a.metrics,
					Logger:  a.logger,
				})
				if !g.quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s (Ctrl+C to stop)\n", addr)
				}
				return server.StartContext(ctx)
			})
		},
	}
	cmd.Flags().Int("port", 0, "port to listen on (default from config)")
	return cmd
}
