package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/impulse-study/impulse/internal/backend"
	"github.com/impulse-study/impulse/internal/handler"
	appI18n "github.com/impulse-study/impulse/internal/i18n"
	"github.com/impulse-study/impulse/internal/model"
	"github.com/impulse-study/impulse/internal/terminal"
)

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "impulse",
		Short: "Physics study companion client for the Impulse quiz API",
	}

	serve := serveCmd()
	root.AddCommand(serve, playCmd(), statsCmd(), healthCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `impulse --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("api-url", backend.DefaultBaseURL, "Impulse backend base URL")
	f.Duration("timeout", 30*time.Second, "Backend request timeout")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web client",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.Duration("nudge-delay", 2*time.Second, "Delay between an answer and the follow-up motivation message")
	f.Duration("notice-ttl", 5*time.Second, "How long a motivation message stays visible")
	f.Duration("visitor-ttl", 30*time.Minute, "Idle time before a browser's quiz state is dropped")
	f.StringSlice("cors-origins", []string{"http://localhost:3000"}, "Origins allowed to read /api/state")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	return cmd
}

func playCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take the quiz in the terminal",
		RunE:  runPlay,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.Duration("nudge-delay", 2*time.Second, "Delay between an answer and the follow-up motivation message")
	f.Duration("notice-ttl", 5*time.Second, "How long a motivation message stays visible")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <session-id>",
		Short: "Print backend statistics for a session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runStats,
	}
	addCommonFlags(cmd)
	return cmd
}

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		RunE:  runHealth,
	}
	addCommonFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("IMPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("impulse")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/impulse")
	v.AddConfigPath("/etc/impulse")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// setup configures logging and i18n and builds the backend client.
func setup(cmd *cobra.Command) (*viper.Viper, *backend.Client, error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return nil, nil, fmt.Errorf("init i18n: %w", err)
	}

	client, err := backend.New(v.GetString("api-url"),
		backend.WithHTTPClient(&http.Client{Timeout: v.GetDuration("timeout")}),
		backend.WithLogger(slog.Default().With("component", "backend")),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create backend client: %w", err)
	}
	return v, client, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, client, err := setup(cmd)
	if err != nil {
		return err
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.ClientConfig{
		APIURL:        client.BaseURL(),
		Lang:          v.GetString("lang"),
		NudgeDelay:    v.GetDuration("nudge-delay"),
		NoticeTTL:     v.GetDuration("notice-ttl"),
		VisitorTTL:    v.GetDuration("visitor-ttl"),
		SecureCookies: v.GetBool("secure-cookies"),
		CORSOrigins:   v.GetStringSlice("cors-origins"),
		BasePath:      basePath,
	}

	h, err := handler.New(client, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}
	defer h.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepVisitors(ctx, h, cfg.VisitorTTL)

	addr := v.GetString("addr")
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), v.GetDuration("shutdown-timeout"))
		defer cancel()

		slog.Info("shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"api_url", cfg.APIURL,
		"lang", cfg.Lang,
		"nudge_delay", cfg.NudgeDelay,
		"notice_ttl", cfg.NoticeTTL,
		"visitor_ttl", cfg.VisitorTTL,
		"base_path", basePath,
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// sweepVisitors drops idle visitors until ctx ends.
func sweepVisitors(ctx context.Context, h *handler.Handler, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

func runPlay(cmd *cobra.Command, _ []string) error {
	v, client, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lang := v.GetString("lang")
	ctx = appI18n.WithLocalizer(ctx, lang, appI18n.NewLocalizer(lang))

	p := terminal.New(client, cmd.InOrStdin(), cmd.OutOrStdout(), terminal.Config{
		NudgeDelay: v.GetDuration("nudge-delay"),
		NoticeTTL:  v.GetDuration("notice-ttl"),
	})
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	_, client, err := setup(cmd)
	if err != nil {
		return err
	}

	report, err := client.GetSessionStats(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("session stats: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func runHealth(cmd *cobra.Command, _ []string) error {
	_, client, err := setup(cmd)
	if err != nil {
		return err
	}

	health, err := client.Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("health check %s: %w", client.BaseURL(), err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", health.Message, health.Version, client.BaseURL())
	return err
}
