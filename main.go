package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spacearena/lead-pipeline/middlewares"
	"github.com/spacearena/lead-pipeline/utils"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const SHUTDOWN_TIMEOUT = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Campaign lead pipeline stage engine",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return utils.LoadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path of the .env file to load")

	root.AddCommand(newServeCmd(), newFunnelCmd(), newHistoryCmd())
	return root
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := utils.LoadConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, newLogger(cfg.Env))
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Env == utils.ENV_RELEASE {
				a.logger.Warn("[ATENÇÃO] Rodando em ambiente de PRODUÇÃO!")
			} else {
				a.logger.Info("ambiente atual", "env", a.cfg.Env)
			}

			server := &http.Server{
				Addr:              a.address(),
				Handler:           a.routes(middlewares.LaravelAuth(a.cfg.LaravelAPIURL, nil)),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("servidor iniciado", "port", a.cfg.Port)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
			defer cancel()
			a.logger.Info("encerrando servidor")
			return server.Shutdown(shutdownCtx)
		},
	}
}

func newFunnelCmd() *cobra.Command {
	var campaign string

	cmd := &cobra.Command{
		Use:   "funnel",
		Short: "Print the funnel snapshot of a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			campaignID, err := bson.ObjectIDFromHex(campaign)
			if err != nil {
				return fmt.Errorf("invalid campaign id %q: %w", campaign, err)
			}

			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			snapshot, err := a.funnel.ComputeFunnel(cmd.Context(), campaignID)
			if err != nil {
				return err
			}
			return printJSON(cmd, snapshot)
		},
	}
	cmd.Flags().StringVar(&campaign, "campaign", "", "campaign id")
	_ = cmd.MarkFlagRequired("campaign")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var campaign, contact string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stage history of an enrolled contact",
		RunE: func(cmd *cobra.Command, args []string) error {
			campaignID, err := bson.ObjectIDFromHex(campaign)
			if err != nil {
				return fmt.Errorf("invalid campaign id %q: %w", campaign, err)
			}
			contactID, err := bson.ObjectIDFromHex(contact)
			if err != nil {
				return fmt.Errorf("invalid contact id %q: %w", contact, err)
			}

			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.history.StageHistory(cmd.Context(), campaignID, contactID)
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		},
	}
	cmd.Flags().StringVar(&campaign, "campaign", "", "campaign id")
	cmd.Flags().StringVar(&contact, "contact", "", "enrolled contact id")
	_ = cmd.MarkFlagRequired("campaign")
	_ = cmd.MarkFlagRequired("contact")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
