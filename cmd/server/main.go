// Command server starts the Lumino gateway HTTP service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lumino-gateway/internal/api"
	"lumino-gateway/internal/auth"
	"lumino-gateway/internal/automation"
	"lumino-gateway/internal/cache"
	"lumino-gateway/internal/catalog"
	"lumino-gateway/internal/config"
	"lumino-gateway/internal/observability/logging"
	"lumino-gateway/internal/observability/metrics"
	"lumino-gateway/internal/server"
	"lumino-gateway/internal/serverutil"
	"lumino-gateway/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	staticDir := flag.String("static-dir", "", "directory served under /static/")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.Config{}).Error("load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, cfg.LogLevel),
		Format: firstNonEmpty(*logFormat, cfg.LogFormat),
	})

	credentialsFile := strings.TrimSpace(cfg.FirebaseCredentialsFile)
	if credentialsFile == "" {
		logger.Error("FIREBASE_CREDENTIALS_FILE is required")
		os.Exit(1)
	}
	projectID, err := auth.ProjectIDFromCredentials(credentialsFile)
	if err != nil {
		logger.Error("read identity credentials", "error", err)
		os.Exit(1)
	}
	verifier, err := auth.NewTokenVerifier(auth.TokenVerifierConfig{ProjectID: projectID})
	if err != nil {
		logger.Error("build token verifier", "error", err)
		os.Exit(1)
	}

	automationClient, err := automation.NewClient(automation.ClientConfig{
		WebhookURL: cfg.N8NWebhookURL,
		Timeout:    cfg.N8NTimeout,
	})
	if err != nil {
		logger.Error("build automation client", "error", err)
		os.Exit(1)
	}

	catalogClient := catalog.NewClient(catalog.ClientConfig{
		BaseURL: cfg.HeyGenAPIURL,
		APIKey:  cfg.HeyGenAPIKey,
	})

	resolvedStaticDir := firstNonEmpty(*staticDir, cfg.StaticDir)
	images, err := storage.NewImageStore(storage.ImageStoreConfig{
		StaticDir:     resolvedStaticDir,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		logger.Error("prepare image store", "error", err)
		os.Exit(1)
	}

	recorder := metrics.Default()
	snapshots := cache.New(cfg.CatalogCacheTTL)

	handler := &api.Handler{
		Verifier:       verifier,
		Secret:         auth.NewSecretGate(cfg.N8NSecretKey),
		Catalog:        catalogClient,
		Automation:     automationClient,
		Images:         images,
		Cache:          snapshots,
		Metrics:        recorder,
		Logger:         logging.WithComponent(logger, "api"),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	srv, err := server.New(handler, server.Config{
		Addr:      firstNonEmpty(*addr, cfg.Addr),
		StaticDir: resolvedStaticDir,
		CORS:      server.CORSConfig{AllowedOrigins: cfg.AllowedOrigins},
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, cfg.TLSCertFile),
			KeyFile:  firstNonEmpty(*tlsKey, cfg.TLSKeyFile),
		},
		Logger:  logging.WithComponent(logger, "http"),
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warmCatalogs(ctx, logger, snapshots, catalogClient)

	certFile, keyFile := srv.TLSFiles()
	logger.Info("gateway listening", "addr", firstNonEmpty(*addr, cfg.Addr), "tls", certFile != "")

	if err := serverutil.Run(ctx, serverutil.Config{
		Server: srv.HTTPServer(),
		TLS:    serverutil.TLSConfig{CertFile: certFile, KeyFile: keyFile},
	}); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway shut down")
}

// warmCatalogs primes the snapshot cache so the first authenticated requests
// do not pay the upstream latency. Failures are logged and retried lazily by
// the read-through path.
func warmCatalogs(ctx context.Context, logger *slog.Logger, snapshots *cache.Store, client *catalog.Client) {
	warmCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	group, groupCtx := errgroup.WithContext(warmCtx)
	group.Go(func() error {
		_, err := snapshots.GetOrRefresh(groupCtx, catalog.KindVoices, client.Voices)
		return err
	})
	group.Go(func() error {
		_, err := snapshots.GetOrRefresh(groupCtx, catalog.KindAvatars, client.Avatars)
		return err
	})
	if err := group.Wait(); err != nil {
		logger.Warn("catalog warmup incomplete", "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
