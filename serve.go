package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Chikage0o0/onelist/internal/auth"
	"github.com/Chikage0o0/onelist/internal/config"
	"github.com/Chikage0o0/onelist/internal/files"
	"github.com/Chikage0o0/onelist/internal/graph"
	"github.com/Chikage0o0/onelist/internal/server"
	"github.com/Chikage0o0/onelist/internal/session"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE:  runServe,
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := buildLogger(cfg)
	holder := config.NewHolder(cfg, flagConfigPath)

	authenticator := auth.New(
		cfg.Server.ClientID,
		cfg.Server.ClientSecret,
		cfg.Server.Tenant,
		cfg.Server.RedirectPort,
		promptAuthURL,
		logger,
	)

	ctx := shutdownContext(context.Background(), logger)

	registry := session.NewRegistry()
	provider := session.NewProvider(ctx, registry, authenticator, holder.SaveRefreshToken, logger)

	// Establish the first session before accepting traffic. With a saved
	// refresh token this is silent; without one it prompts for a browser
	// login. Failure here means nothing can be served, so it is fatal.
	sess, err := authenticator.Refresh(ctx, cfg.Server.RefreshToken)
	if err != nil {
		return fmt.Errorf("establishing initial session: %w", err)
	}

	provider.Publish(sess)

	ttl, err := cfg.Cache.GetTTL()
	if err != nil {
		return err
	}

	listTTL, err := cfg.Cache.GetListTTL()
	if err != nil {
		return err
	}

	caches := files.NewCaches(ttl, listTTL)
	client := graph.NewClient(graph.DefaultBaseURL, defaultHTTPClient(), provider, logger)

	srv := server.New(server.Options{
		Listen:   cfg.Server.Listen,
		RootDir:  cfg.RootDir,
		SiteName: cfg.Server.SiteName,
		UseProxy: cfg.Server.UseProxy,
	}, client, caches, logger)

	logger.Info("starting",
		slog.String("version", version),
		slog.String("root_dir", cfg.RootDir),
		slog.String("listen", cfg.Server.Listen),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return session.NewScheduler(provider, logger).Run(gctx)
	})

	g.Go(func() error {
		return srv.Run(gctx)
	})

	g.Go(func() error {
		caches.RunSweepers(gctx, listTTL)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("shutdown complete")

	return nil
}

// promptAuthURL asks the user to complete an interactive login. Must stay
// visible even under --quiet, so it bypasses the logger.
func promptAuthURL(url string) {
	fmt.Fprintf(os.Stderr, "To sign in, open this URL in your browser:\n\n  %s\n\n", url)
}
