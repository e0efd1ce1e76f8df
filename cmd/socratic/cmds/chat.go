package cmds

import (
	"context"
	"os"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/go-go-golems/socratic/pkg/chatrunner"
	"github.com/go-go-golems/socratic/pkg/events"
	"github.com/go-go-golems/socratic/pkg/redisstream"
	"github.com/go-go-golems/socratic/pkg/tutor"
	"github.com/go-go-golems/socratic/pkg/ui"
)

func newChatCommand(g *globals) *cobra.Command {
	var useRedis bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the tutor in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("chat needs an interactive terminal, use `socratic ask` for piped input")
			}
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if useRedis {
				cfg.Redis.Enabled = true
			}
			// the alt screen owns the terminal, logs go to a file
			if g.logFile == "" {
				if err := g.initLogging(cfg.UI.LogFile); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			backend, err := buildBackend(ctx, cfg)
			if err != nil {
				return err
			}
			tr, err := redisstream.Build(cfg.Redis)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			convID := uuid.NewString()
			topic := events.TopicForConv(convID)
			sub, owned, err := tr.Subscriber(ctx, "tui-"+convID, topic)
			if err != nil {
				return err
			}
			if owned {
				defer func() { _ = sub.Close() }()
			}
			msgs, err := sub.Subscribe(ctx, topic)
			if err != nil {
				return errors.Wrap(err, "subscribing to timeline events")
			}

			runner := chatrunner.NewRunner(convID,
				tutor.NewManager(backend, cfg.SessionConfig()),
				chatrunner.WithSink(events.NewWatermillSink(tr.Publisher)),
			)
			p := tea.NewProgram(
				ui.NewModel(ctx, runner, ui.WithClipboard(clipboard.WriteAll)),
				tea.WithAltScreen(),
				tea.WithContext(ctx),
			)

			log.Info().Str("component", "chat").Str("conv_id", convID).
				Str("backend", string(cfg.Model.Backend)).Bool("redis", tr.UsesRedis()).
				Msg("starting terminal chat")

			eg, gctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				ui.Forward(gctx, msgs, p)
				return nil
			})
			eg.Go(func() error {
				defer cancel()
				runner.Start(gctx)
				if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
					return errors.Wrap(err, "running terminal ui")
				}
				return nil
			})
			return eg.Wait()
		},
	}
	cmd.Flags().BoolVar(&useRedis, "redis", false, "publish timeline events through Redis Streams")
	return cmd
}
