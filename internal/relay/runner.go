package relay

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gluk-w/webtail/internal/config"
)

// RunAll relays every source concurrently until ctx ends.
func RunAll(ctx context.Context, sources []config.Source, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		link := NewLink(src, logger)
		logger.Infow("starting link", "application", src.AppName.String(), "dir", src.LogFileDir, "pattern", src.LogFileNameRegex, "url", link.URL)
		g.Go(func() error {
			return link.Run(gctx)
		})
	}
	return g.Wait()
}
