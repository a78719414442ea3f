package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/wbrown/janus-generate/generate/annotations"
	"github.com/wbrown/janus-generate/generate/engine"
	"github.com/wbrown/janus-generate/generate/executor"
	"github.com/wbrown/janus-generate/generate/stream"
	"github.com/wbrown/janus-generate/internal/otel"
)

const serviceName = "generate"

// session is an engine together with the resources it holds open
type session struct {
	engine  *engine.Engine
	logger  *logrus.Logger
	closers []func() error
}

func newLogger(level string, w io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(lvl)
	return logger, nil
}

// openSession builds an engine from the resolved settings. Events go to
// logrus, to the colour formatter in verbose mode and to OpenTelemetry
// when an endpoint is configured.
func openSession(ctx context.Context, opts *RootOptions, errW io.Writer) (*session, error) {
	s, err := opts.settings()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(s.LogLevel, errW)
	if err != nil {
		return nil, err
	}
	sess := &session{logger: logger}

	cfg := engine.Config{BaseDir: s.Base}
	cfg.Options = executor.DefaultOptions()
	cfg.Options.Workers = s.Workers
	cfg.Options.MaxExecutionTime = s.Timeout
	cfg.Options.DebugTemplate = s.DebugTemplate
	if s.CacheSize > 0 {
		cfg.Options.CacheSize = s.CacheSize
	}

	if s.Mapping != "" {
		mapper, err := stream.LoadLocationMapping(s.Mapping)
		if err != nil {
			return nil, err
		}
		logger.WithField("entries", mapper.Len()).Debugf("loaded location mapping %s", s.Mapping)
		cfg.Mapping = mapper
	}

	if s.Store != "" {
		if err := os.MkdirAll(s.Store, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		store, err := stream.NewDocumentStore(s.Store)
		if err != nil {
			return nil, err
		}
		sess.closers = append(sess.closers, store.Close)
		cfg.Store = store
	}

	handlers := []annotations.Handler{annotations.LogrusHandler(logger)}
	if opts.Verbose {
		handlers = append(handlers, annotations.NewOutputFormatter(errW).Handle)
	}
	if s.OtelEndpoint != "" {
		shutdown, err := otel.Setup(ctx, s.OtelEndpoint, serviceName)
		if err != nil {
			sess.Close()
			return nil, fmt.Errorf("failed to set up tracing: %w", err)
		}
		sess.closers = append(sess.closers, func() error { return shutdown(context.Background()) })
		handlers = append(handlers, annotations.TraceHandler(ctx, otel.Tracer(serviceName)))
	}
	cfg.Handler = annotations.Multi(handlers...)

	eng, err := engine.New(cfg)
	if err != nil {
		sess.Close()
		return nil, err
	}
	sess.engine = eng
	return sess, nil
}

// Close releases the session resources in reverse order
func (s *session) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

func readQuery(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read query: %w", err)
	}
	return string(data), nil
}
