// Rolelink - Discord bot that binds Roblox groups and items to server roles
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/rolelink/internal/api"
	"github.com/ashureev/rolelink/internal/config"
	"github.com/ashureev/rolelink/internal/discord"
	"github.com/ashureev/rolelink/internal/dispatch"
	"github.com/ashureev/rolelink/internal/gateway"
	"github.com/ashureev/rolelink/internal/middleware"
	"github.com/ashureev/rolelink/internal/prompt"
	"github.com/ashureev/rolelink/internal/roblox"
	"github.com/ashureev/rolelink/internal/store"
	"github.com/ashureev/rolelink/internal/wizards/bind"
	"github.com/ashureev/rolelink/internal/wizards/grouplock"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rolelink",
		Short:         "Discord bot that binds Roblox groups and items to server roles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRegisterCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the interactions endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := serve(cmd.Context(), cfg); err != nil {
				slog.Error("Server stopped with error", "error", err)
				return err
			}
			return nil
		},
	}
}

func newRegisterCmd() *cobra.Command {
	var guild string
	cmd := &cobra.Command{
		Use:   "register-commands",
		Short: "Overwrite the application's slash commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var guildID discord.Snowflake
			if guild != "" {
				if guildID, err = discord.ParseSnowflake(guild); err != nil {
					return err
				}
			}
			return registerCommands(cmd.Context(), cfg, guildID)
		},
	}
	cmd.Flags().StringVar(&guild, "guild", "", "register to one guild instead of globally")
	return cmd
}

// loadConfig reads .env and the environment and installs the JSON logger.
func loadConfig() (*config.Config, error) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return nil, err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))
	return cfg, nil
}

func newDiscordClient(cfg *config.Config) (*discord.Client, error) {
	appID, err := discord.ParseSnowflake(cfg.Discord.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("application id: %w", err)
	}
	return discord.NewClient(discord.ClientConfig{
		BaseURL:       cfg.Discord.APIURL,
		Token:         cfg.Discord.Token,
		ApplicationID: appID,
	}), nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "gateway", cfg.Discord.GatewayEnabled)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	rest, err := newDiscordClient(cfg)
	if err != nil {
		return err
	}
	key, err := discord.ParsePublicKey(cfg.Discord.PublicKey)
	if err != nil {
		return err
	}
	rbx := roblox.NewClient(roblox.Config{
		BaseURL:    cfg.Roblox.BaseURL,
		CacheTTL:   cfg.Roblox.CacheTTL,
		HTTPClient: &http.Client{Timeout: cfg.Roblox.Timeout},
	})

	reg := prompt.NewRegistry()
	svc := bind.NewService(rbx, rest, repo, slog.Default())
	if err := svc.Register(reg); err != nil {
		return err
	}
	locks := grouplock.NewService(rbx, repo, slog.Default())
	if err := locks.Register(reg); err != nil {
		return err
	}
	engine := prompt.NewEngine(reg, repo,
		prompt.WithTTL(cfg.Prompt.SessionTTL),
		prompt.WithLogger(slog.Default()),
	)
	router := dispatch.NewRouter(engine,
		dispatch.WithAutoDefer(cfg.Prompt.AutoDefer),
		dispatch.WithLogger(slog.Default()),
	)
	if err := router.Register(svc.Commands()...); err != nil {
		return err
	}
	if err := router.Register(locks.Commands()...); err != nil {
		return err
	}

	healthHandler := api.NewHealthHandler(repo)
	interactionHandler := api.NewInteractionHandler(router, rest)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	healthHandler.RegisterHealth(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.VerifySignature(key))
		interactionHandler.RegisterRoutes(r)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Interactions hold the request open for up to the callback window.
		WriteTimeout: api.CallbackWindow + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeperDone := store.StartSweeper(ctx, repo, cfg.SweepInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
		interactionHandler.Wait()
		return nil
	})
	if cfg.Discord.GatewayEnabled {
		gatewayURL := cfg.Discord.GatewayURL
		if u, err := rest.GatewayBot(ctx); err != nil {
			slog.Warn("Failed to fetch gateway URL, using configured one", "error", err)
		} else if u != "" {
			gatewayURL = u + "/?v=10&encoding=json"
		}
		gw := gateway.New(gateway.Config{
			URL:   gatewayURL,
			Token: cfg.Discord.Token,
		}, router, func(in *discord.Interaction) prompt.Host {
			return discord.NewRESTHost(rest, in)
		}, slog.Default())
		g.Go(func() error { return gw.Run(gctx) })
	}

	err = g.Wait()
	<-sweeperDone
	slog.Info("Server exited")
	return err
}

func registerCommands(ctx context.Context, cfg *config.Config, guildID discord.Snowflake) error {
	rest, err := newDiscordClient(cfg)
	if err != nil {
		return err
	}

	// Definitions only; the service never runs here.
	router := dispatch.NewRouter(nil)
	if err := router.Register(bind.NewService(nil, nil, nil, slog.Default()).Commands()...); err != nil {
		return err
	}
	if err := router.Register(grouplock.NewService(nil, nil, slog.Default()).Commands()...); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cmds, err := rest.BulkOverwriteCommands(ctx, guildID, router.Definitions())
	if err != nil {
		slog.Error("Failed to register commands", "error", err)
		return err
	}
	slog.Info("Commands registered", "count", len(cmds), "guild", guildID.String())
	return nil
}
