package cmds

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/socratic/pkg/config"
	"github.com/go-go-golems/socratic/pkg/tutor"
	"github.com/go-go-golems/socratic/pkg/tutor/gemini"
	"github.com/go-go-golems/socratic/pkg/tutor/scripted"
)

func buildBackend(ctx context.Context, cfg *config.Config) (tutor.Backend, error) {
	switch cfg.Model.Backend {
	case config.BackendScripted:
		return scripted.New(), nil
	case config.BackendGemini, config.BackendVertex:
		opts := gemini.Options{APIKey: cfg.Model.APIKey}
		if cfg.Model.Backend == config.BackendVertex {
			location := cfg.Model.Location
			if location == "" {
				location = "us-central1"
			}
			opts = gemini.Options{Vertex: true, Project: cfg.Model.Project, Location: location}
		}
		c, err := gemini.NewClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Model.Backend)
	}
}
