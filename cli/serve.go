package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/operatornetwork/opnet/common"
	"github.com/operatornetwork/opnet/config"
	"github.com/operatornetwork/opnet/httpapi"
	"github.com/operatornetwork/opnet/lifecycle"
	"github.com/operatornetwork/opnet/reconcile"
	"github.com/operatornetwork/opnet/reward"
	"github.com/operatornetwork/opnet/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the Operator Network API server",
	Long: `Start the HTTP API server.

The server connects to CouchDB for operation and profile persistence and
to Redis for the reward reconciliation queue, then exposes the lifecycle
transitions and read endpoints over HTTP with graceful shutdown on
SIGINT/SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	common.ConfigureLogger(cfg.Logging.Level, cfg.Logging.Format)
	log := common.Logger

	ctx := context.Background()

	couch, err := store.NewCouch(ctx, store.CouchConfig{
		URL:             cfg.Database.URL,
		Database:        cfg.Database.Database,
		Username:        cfg.Database.Username,
		Password:        cfg.Database.Password,
		CreateIfMissing: cfg.Database.CreateIfMissing,
	}, log)
	if err != nil {
		return err
	}
	defer couch.Close()

	queue, err := reconcile.NewQueue(ctx, reconcile.Config{
		RedisURL:  cfg.Redis.URL,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return err
	}
	defer queue.Close()

	settler := reward.NewSettler(couch, queue, log)
	engine := lifecycle.New(couch, settler, log)

	serverCfg := httpapi.DefaultServerConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port
	serverCfg.Debug = cfg.Server.Debug
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	serverCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout

	e := httpapi.NewEchoServer(serverCfg)
	e.GET("/healthz", httpapi.HealthCheckHandler("opnet", Version))

	handler := &httpapi.Handler{Engine: engine, Store: couch, Log: log}
	handler.RegisterRoutes(e)

	go func() {
		if err := httpapi.StartServer(e, serverCfg, log); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	return httpapi.GracefulShutdown(e, serverCfg.ShutdownTimeout, log)
}
