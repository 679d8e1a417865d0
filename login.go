package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Chikage0o0/onelist/internal/auth"
	"github.com/Chikage0o0/onelist/internal/config"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate interactively and save the refresh token",
		RunE:  runLogin,
	}
}

func runLogin(_ *cobra.Command, _ []string) error {
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

	sess, err := authenticator.Login(ctx)
	if err != nil {
		return err
	}

	if err := holder.SaveRefreshToken(sess.RefreshToken); err != nil {
		return fmt.Errorf("saving refresh token: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Login successful. Refresh token saved to %s.\n", holder.Path())

	return nil
}
