package cmds

import (
	"github.com/spf13/cobra"

	"github.com/go-go-golems/socratic/pkg/redisstream"
	"github.com/go-go-golems/socratic/pkg/webchat"
)

func newServeCommand(g *globals) *cobra.Command {
	var (
		addr     string
		useRedis bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if useRedis {
				cfg.Redis.Enabled = true
			}

			ctx := cmd.Context()
			backend, err := buildBackend(ctx, cfg)
			if err != nil {
				return err
			}
			tr, err := redisstream.Build(cfg.Redis)
			if err != nil {
				return err
			}
			srv, err := webchat.NewServer(ctx, webchat.ServerOptions{
				Addr:             cfg.Server.Addr,
				IdleTimeout:      cfg.Server.IdleTimeout,
				EvictionInterval: cfg.Server.EvictionInterval,
				Backend:          backend,
				SessionConfig:    cfg.SessionConfig(),
				Transport:        tr,
			})
			if err != nil {
				_ = tr.Close()
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&useRedis, "redis", false, "route timeline events through Redis Streams")
	return cmd
}
