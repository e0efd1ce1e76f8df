package webchat

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/socratic/pkg/events"
	"github.com/go-go-golems/socratic/pkg/redisstream"
	"github.com/go-go-golems/socratic/pkg/tutor"
)

//go:embed static
var staticFS embed.FS

type ServerOptions struct {
	Addr             string
	IdleTimeout      time.Duration
	EvictionInterval time.Duration
	Backend          tutor.Backend
	SessionConfig    tutor.Config
	Transport        *redisstream.Transport
}

// Server drives the conversation manager and HTTP server lifecycle.
type Server struct {
	baseCtx   context.Context
	cm        *ConvManager
	hub       *StreamHub
	transport *redisstream.Transport
	httpSrv   *http.Server
}

func NewServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if opts.Backend == nil {
		return nil, errors.New("backend is nil")
	}
	if opts.Transport == nil {
		return nil, errors.New("transport is nil")
	}

	tr := opts.Transport
	cm := NewConvManager(ConvManagerOptions{
		BaseCtx:       ctx,
		Backend:       opts.Backend,
		SessionConfig: opts.SessionConfig,
		Publisher:     tr.Publisher,
		BuildSubscriber: func(ctx context.Context, convID string) (message.Subscriber, bool, error) {
			return tr.Subscriber(ctx, "conv-"+convID, events.TopicForConv(convID))
		},
		IdleTimeout: opts.IdleTimeout,
	})
	cm.SetEvictionConfig(opts.IdleTimeout, opts.EvictionInterval)

	hub, err := NewStreamHub(StreamHubConfig{BaseCtx: ctx, ConvManager: cm})
	if err != nil {
		return nil, err
	}
	s := &Server{baseCtx: ctx, cm: cm, hub: hub, transport: tr}
	s.httpSrv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) ConvManager() *ConvManager { return s.cm }

func (s *Server) HTTPServer() *http.Server { return s.httpSrv }

// Handler mounts the UI, the JSON API and the websocket endpoint.
func (s *Server) Handler() http.Handler {
	logger := log.With().Str("component", "webchat").Logger()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", NewChatHTTPHandler(s.baseCtx, s.cm, logger))
	mux.HandleFunc("POST /api/reset", NewResetHTTPHandler(s.cm, logger))
	mux.HandleFunc("GET /api/timeline", NewTimelineHTTPHandler(s.cm))
	mux.HandleFunc("GET /ws", NewWSHTTPHandler(s.hub, upgrader, logger))
	mux.HandleFunc("GET /healthz", healthzHandler)

	if staticSub, err := fs.Sub(staticFS, "static"); err == nil {
		mux.Handle("GET /", http.FileServer(http.FS(staticSub)))
	} else {
		logger.Warn().Err(err).Msg("static assets not available; UI handler disabled")
	}
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	eg, srvCtx := errgroup.WithContext(ctx)
	srvCtx, srvCancel := context.WithCancel(srvCtx)
	defer srvCancel()

	s.cm.StartEvictionLoop(srvCtx)

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		s.cm.Close()
		if err := s.transport.Close(); err != nil {
			log.Error().Err(err).Msg("transport close error")
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting socratic web server")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}
