// Package gemini implements tutor.Backend on top of the Gemini chats API.
package gemini

import (
	"context"
	"iter"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/go-go-golems/socratic/pkg/tutor"
)

// Options selects the Gemini API or Vertex AI backend.
type Options struct {
	APIKey   string
	Vertex   bool
	Project  string
	Location string
}

// Client creates Gemini chat sessions.
type Client struct {
	client *genai.Client
}

var _ tutor.Backend = &Client{}

// NewClient builds a genai client for the Gemini API, or for Vertex AI when
// opts.Vertex is set.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	cfg := &genai.ClientConfig{}
	if opts.Vertex {
		if opts.Project == "" || opts.Location == "" {
			return nil, errors.New("vertex backend requires project and location")
		}
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = opts.Project
		cfg.Location = opts.Location
	} else {
		if opts.APIKey == "" {
			return nil, errors.New("gemini backend requires an API key")
		}
		cfg.Backend = genai.BackendGeminiAPI
		cfg.APIKey = opts.APIKey
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating genai client")
	}
	return &Client{client: client}, nil
}

// NewChat opens a chat with the system instruction and thinking budget from
// cfg. MaxOutputTokens is left unset.
func (c *Client) NewChat(ctx context.Context, cfg tutor.Config) (tutor.Chat, error) {
	budget := cfg.ThinkingBudget
	gcfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: &budget,
		},
	}

	chat, err := c.client.Chats.Create(ctx, cfg.Model, gcfg, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "creating chat for model %s", cfg.Model)
	}
	log.Debug().Str("component", "gemini").Str("model", cfg.Model).Int32("thinking_budget", budget).Msg("chat created")
	return &chatSession{chat: chat}, nil
}

type chatSession struct {
	chat *genai.Chat
}

func (s *chatSession) SendStream(ctx context.Context, req tutor.Request) iter.Seq2[string, error] {
	parts := toParts(req)
	return func(yield func(string, error) bool) {
		for resp, err := range s.chat.SendMessageStream(ctx, parts...) {
			if err != nil {
				yield("", errors.Wrap(err, "gemini stream"))
				return
			}
			if resp == nil {
				continue
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}
}

// toParts maps a request onto genai parts, keeping the text part first.
func toParts(req tutor.Request) []genai.Part {
	if req.IsPlainText() {
		return []genai.Part{{Text: req.Text}}
	}
	parts := make([]genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.IsText() {
			parts = append(parts, genai.Part{Text: p.Text})
			continue
		}
		parts = append(parts, genai.Part{
			InlineData: &genai.Blob{
				Data:     p.Attachment.Data,
				MIMEType: p.Attachment.MediaType,
			},
		})
	}
	return parts
}
