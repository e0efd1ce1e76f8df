package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/socratic/pkg/tutor"
)

func newAskCommand(g *globals) *cobra.Command {
	var imagePath string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and stream the reply to stdout",
		Long:  "Ask one question and stream the reply to stdout. Without arguments the question is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "reading question from stdin")
				}
				text = string(b)
			}

			var att *tutor.Attachment
			if imagePath != "" {
				a, err := readAttachment(imagePath)
				if err != nil {
					return err
				}
				att = a
			}

			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			backend, err := buildBackend(ctx, cfg)
			if err != nil {
				return err
			}

			stream, err := tutor.NewManager(backend, cfg.SessionConfig()).Send(ctx, text, att)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for frag, err := range stream.Fragments() {
				if err != nil {
					fmt.Fprintln(out)
					return err
				}
				fmt.Fprint(out, frag)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "attach an image of the problem")
	return cmd
}

func readAttachment(path string) (*tutor.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return tutor.NewAttachment(data, mimetype.Detect(data).String())
}
