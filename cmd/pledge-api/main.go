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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/campaign"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/config"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/database"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/host"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/registry"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/scheduler"
	"github.com/MarcoPoloResearchLab/pledge/backend/internal/server"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pledge-api",
		Short: "Pledge crowdfunding backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newIssueTokenCommand(), newOutboxCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", defaults.GetString("log.file"), "Optional rotating log file")
	cmd.PersistentFlags().String("signing-secret", "", "Session and permit signing secret (overrides env)")
	cmd.PersistentFlags().String("registry-address", defaults.GetString("registry.address"), "Registry contract address")
	cmd.PersistentFlags().String("registry-owner", "", "Registry owner identity")
	cmd.PersistentFlags().Duration("sweep-interval", defaults.GetDuration("scheduler.sweep_interval"), "Expiry sweep interval")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.file", "log-file")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "registry.address", "registry-address")
	bindFlag(cmd, "registry.owner", "registry-owner")
	bindFlag(cmd, "scheduler.sweep_interval", "sweep-interval")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newIssueTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "issue-token <identity>",
		Short: "Print a session token for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				Issuer:        appConfig.Issuer,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueSessionToken(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_in=%d\n", token, expiresIn)
			return err
		},
	}
}

func newOutboxCommand() *cobra.Command {
	var after uint64
	var limit int
	command := &cobra.Command{
		Use:   "outbox",
		Short: "Print recorded outbound instructions as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			db, err := database.OpenSQLite(appConfig.DatabasePath, nil)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			store, err := ledger.NewStore(db)
			if err != nil {
				return err
			}
			entries, err := store.ListOutbox(after, limit)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			for _, entry := range entries {
				if err := encoder.Encode(map[string]any{
					"sequence": entry.Sequence,
					"kind":     entry.Kind,
					"source":   entry.Source,
					"height":   entry.Height,
					"payload":  json.RawMessage(entry.PayloadJSON),
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	command.Flags().Uint64Var(&after, "after", 0, "Only print entries after this sequence")
	command.Flags().IntVar(&limit, "limit", 100, "Maximum entries to print")
	return command
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := ledger.NewStore(db)
	if err != nil {
		return err
	}

	permits, err := auth.NewPermitAuthority(auth.PermitAuthorityConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Registry:      appConfig.Registry.Address,
		PermitTTL:     appConfig.PermitTTL,
	})
	if err != nil {
		return err
	}
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	campaigns, err := campaign.NewService(campaign.ServiceConfig{
		ViewingKeys: auth.NewViewingKeys(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	registries, err := registry.NewService(registry.ServiceConfig{Permits: permits, Logger: logger})
	if err != nil {
		return err
	}
	if err := registries.Bootstrap(store, ledger.RegistryConfig{
		Address:           appConfig.Registry.Address,
		Owner:             appConfig.Registry.Owner,
		CampaignCodeID:    appConfig.Registry.CampaignCodeID,
		CampaignCodeHash:  appConfig.Registry.CampaignCodeHash,
		Deadman:           appConfig.Registry.Deadman,
		CommissionNom:     appConfig.Registry.CommissionNom,
		CommissionDenom:   appConfig.Registry.CommissionDenom,
		CommissionAddress: appConfig.Registry.CommissionAddress,
		DefaultAsset:      appConfig.Registry.DefaultAsset,
	}); err != nil {
		return err
	}

	realtime := server.NewRealtimeDispatcher()
	executor, err := host.New(host.Config{
		Store:     store,
		Campaigns: campaigns,
		Registry:  registries,
		Publisher: realtime,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	height := host.ClockHeight(time.Now)

	sweeper, err := scheduler.NewSweeper(scheduler.SweeperConfig{
		Store:     store,
		Campaigns: campaigns,
		Height:    height,
		Interval:  appConfig.SweepInterval,
		Notifier:  realtime,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop() //nolint:errcheck

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Host:            executor,
		Campaigns:       campaigns,
		Registry:        registries,
		Sessions:        sessions,
		Permits:         permits,
		RegistryAddress: appConfig.Registry.Address,
		Height:          height,
		Realtime:        realtime,
		RateLimit:       rate.Limit(appConfig.RateLimit),
		RateBurst:       appConfig.RateBurst,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
