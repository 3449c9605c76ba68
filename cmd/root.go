// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudgate/upload-gateway/internal/config"
	"github.com/cloudgate/upload-gateway/internal/gcsuploader"
	"github.com/cloudgate/upload-gateway/internal/httpclient"
	"github.com/cloudgate/upload-gateway/internal/logging"
	"github.com/cloudgate/upload-gateway/internal/metrics"
	"github.com/cloudgate/upload-gateway/internal/router"
	"github.com/cloudgate/upload-gateway/internal/serviceaccount"
	"github.com/cloudgate/upload-gateway/internal/slacknotifier"
	"github.com/cloudgate/upload-gateway/internal/tenant"
	"github.com/cloudgate/upload-gateway/internal/tokenprovider"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownGracePeriod = 20 * time.Second

// Execute runs the root command, returning the process exit code.
func Execute() int {
	var configPath string
	var stringLogLevel string

	logLevels := make([]string, len(logrus.AllLevels))
	for i, level := range logrus.AllLevels {
		logLevels[i] = level.String()
	}
	acceptedLogLevels := strings.Join(logLevels, ", ")

	rootCmd := &cobra.Command{
		Use:   "upload-gateway",
		Short: "upload-gateway is a multi-tenant HTTP upload gateway fronting Google Cloud Storage",
		Long: "upload-gateway authenticates callers against per-tenant API tokens, transcodes and streams " +
			"uploads to Google Cloud Storage, and optionally mirrors the resulting link into Slack.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logLevel, err := logrus.ParseLevel(stringLogLevel)
			if err != nil {
				return fmt.Errorf("not a valid log level. the accepted values are: %s", acceptedLogLevels)
			}
			l := logging.NewLogger(logLevel)
			cmd.SetContext(logging.IntoContext(cmd.Context(), l))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	rootCmd.PersistentFlags().StringVar(&stringLogLevel, "log-level", logrus.InfoLevel.String(),
		"Log level. Accepted values: "+acceptedLogLevels)
	rootCmd.Flags().StringVar(&configPath, "config", os.Getenv("UPLOADER_CONFIG_FILE"),
		"Path to the config file (YAML or JSON). Defaults to the UPLOADER_CONFIG_FILE environment variable.")

	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func run(ctx context.Context, configPath string) error {
	l := logging.FromContext(ctx)

	if configPath == "" {
		return fmt.Errorf("--config (or UPLOADER_CONFIG_FILE) must be specified")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	registry := metrics.NewRegistry()
	client := httpclient.New()

	tenants := make([]*tenant.Tenant, 0, len(cfg.Projects))
	for _, p := range cfg.Projects {
		t, err := buildTenant(client, registry, p)
		if err != nil {
			return fmt.Errorf("error building tenant for bucket %q: %w", p.GoogleStorageTarget.BucketName, err)
		}
		tenants = append(tenants, t)
	}

	app := router.NewApp(tenants, registry)

	addr := fmt.Sprintf(":%d", cfg.Settings.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: app.Handler(l),
		BaseContext: func(net.Listener) context.Context {
			return logging.IntoContext(context.Background(), l)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		l.WithField("addr", addr).Info("starting upload gateway")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("error serving http: %w", err)
	case sig := <-sigCh:
		l.WithField("signal", sig.String()).Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildTenant(client *http.Client, registry *metrics.Registry, p config.Project) (*tenant.Tenant, error) {
	sa, err := serviceaccount.Load(p.GoogleStorageTarget.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("error loading service account: %w", err)
	}

	tokens := tokenprovider.NewPreloadingProvider(client, sa, tokenprovider.Scope, registry, p.GoogleStorageTarget.BucketName)
	uploader := gcsuploader.New(client, tokens, p.GoogleStorageTarget.BucketName, registry)

	t := &tenant.Tenant{
		APIToken: p.APIToken,
		Uploader: uploader,
	}

	if p.SlackLinkDub != nil {
		t.Notifier = slacknotifier.New(
			p.SlackLinkDub.Token,
			p.SlackLinkDub.Targets,
			p.SlackLinkDub.QRCode,
			p.SlackLinkDub.DefaultTextBefore,
		)
	}

	return t, nil
}
