package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/AzielCF/az-wacrm/core/config"
	domainGateway "github.com/AzielCF/az-wacrm/domains/gateway"
	domainHealth "github.com/AzielCF/az-wacrm/domains/health"
	domainSession "github.com/AzielCF/az-wacrm/domains/session"
	domainWebhook "github.com/AzielCF/az-wacrm/domains/webhook"
	"github.com/AzielCF/az-wacrm/infrastructure/gateway"
	"github.com/AzielCF/az-wacrm/infrastructure/kvstore"
	"github.com/AzielCF/az-wacrm/infrastructure/session"
	"github.com/AzielCF/az-wacrm/infrastructure/valkey"
	"github.com/AzielCF/az-wacrm/infrastructure/whatsapp"
	"github.com/AzielCF/az-wacrm/pkg/msgworker"
	"github.com/AzielCF/az-wacrm/ui/rest"
	"github.com/AzielCF/az-wacrm/ui/websocket"
	"github.com/AzielCF/az-wacrm/usecase"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the webhook receiver and the instance API over http",
	RunE:  restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) error {
	cfg := coreconfig.Global

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	var pool *msgworker.WorkerPool
	if cfg.Webhook.Async {
		pool = msgworker.GetGlobalPool()
		defer msgworker.StopGlobalPool()
	}

	contacts := usecase.NewContactResolver(usecase.ContactConfig{
		TenantID:       cfg.App.TenantID,
		CountryCode:    cfg.CRM.CountryCode,
		DefaultOwnerID: cfg.CRM.DefaultOwnerID,
	}, be.repos.Leads, be.repos.Users, be.repos.Connections)

	// Exactly one of gw (hosted) and manager (self-hosted) is set.
	var (
		gw      domainGateway.IGatewayService
		sender  domainGateway.IMessageSender
		manager domainSession.IConnectionManager
		local   *session.Manager
		events  domainWebhook.IWebhookUsecase
	)

	if cfg.Gateway.SelfHosted() {
		bridge, err := whatsapp.Open(ctx, whatsapp.Options{
			Instance: cfg.Gateway.Instance,
			StoreURI: cfg.Session.StoreURI,
			LogLevel: cfg.Session.LogLevel,
			SQLKeys:  cfg.Session.SQLSignalKeys,
			Sink: func(event domainWebhook.Event) {
				dispatch(pool, events, event)
			},
		})
		if err != nil {
			return err
		}
		defer bridge.Close()

		local = session.NewManager(session.ManagerConfig{
			Instance:             cfg.Gateway.Instance,
			MaxReconnectAttempts: cfg.Session.MaxReconnectAttempts,
			ReconnectDelay:       cfg.Session.ReconnectDelay,
		}, bridge.Factory(), authStateFor(be.kv, cfg), be.repos.Connections)
		manager = local
		sender = bridge
	} else {
		evolution := gateway.NewFromConfig(*cfg)
		gw = evolution
		sender = evolution
	}

	instanceUsecase := usecase.NewInstanceService(usecase.InstanceConfig{
		Instance: cfg.Gateway.Instance,
		TenantID: cfg.App.TenantID,
	}, be.repos.Connections, gw, manager)
	sendUsecase := usecase.NewSendService(cfg.Gateway.Instance, sender, contacts, be.repos.Messages)

	var vkClient *valkey.Client
	if store, ok := be.kv.(*kvstore.ValkeyStore); ok {
		vkClient = store.Client()
	}
	hub := websocket.NewHub(vkClient, cfg.App.ServerID)
	go hub.Run(ctx)

	pushStatus := func(ctx context.Context) {
		status, err := instanceUsecase.GetStatus(ctx, "")
		if err != nil {
			logrus.Warnf("[WS] status lookup failed: %v", err)
			return
		}
		hub.BroadcastStatus(status)
	}

	events = usecase.WithConnectionNotifier(usecase.NewWebhookService(usecase.WebhookConfig{
		TenantID:        cfg.App.TenantID,
		DefaultInstance: cfg.Gateway.Instance,
		GatewayBaseURL:  cfg.Gateway.BaseURL,
	}, contacts, be.repos.Connections, be.repos.Messages, gw), func(ctx context.Context, _ string) {
		pushStatus(ctx)
	})

	if local != nil {
		local.OnTransition(func(tr domainSession.Transition) {
			logrus.WithField("instance", tr.Snapshot.Instance).Infof("[SESSION] %s -> %s", tr.From, tr.To)
			pushStatus(context.Background())
		})
	}

	healthUsecase := usecase.NewHealthService(map[domainHealth.EntityType]domainHealth.Probe{
		domainHealth.EntityDatabase: be.pingDatabase,
		domainHealth.EntityKVStore: func(ctx context.Context) (string, error) {
			if err := be.kv.Ping(ctx); err != nil {
				return "", err
			}
			if be.kvDegraded {
				return be.kv.Backend() + " (credentials do not survive a restart)", nil
			}
			return be.kv.Backend(), nil
		},
		domainHealth.EntityGateway: gatewayProbe(cfg, gw, manager),
		domainHealth.EntityWorkerPool: func(context.Context) (string, error) {
			if pool == nil {
				return "disabled, webhooks processed inline", nil
			}
			stats := pool.GetStats()
			return fmt.Sprintf("%d workers, %s processed, %s dropped, %s errors, up %s",
				stats.NumWorkers,
				humanize.Comma(stats.TotalProcessed),
				humanize.Comma(stats.TotalDropped),
				humanize.Comma(stats.TotalErrors),
				stats.Uptime.Truncate(time.Second),
			), nil
		},
	})
	healthUsecase.StartPeriodicChecks(ctx, time.Minute)

	app, apiGroup, err := rest.NewServer(rest.ServerOptions{
		AppName:            "WhatsApp CRM " + cfg.App.Version,
		BasePath:           cfg.App.BasePath,
		BasicAuth:          cfg.App.BasicAuth,
		CorsAllowedOrigins: cfg.App.CorsAllowedOrigins,
		Debug:              cfg.App.Debug,
		RateLimit:          1000,
	})
	if err != nil {
		return err
	}

	if !cfg.Gateway.SelfHosted() {
		webhook := rest.Webhook{Service: events, Pool: pool, DefaultInstance: cfg.Gateway.Instance}
		if cfg.Webhook.VerifyAPIKey {
			webhook.APIKey = cfg.Gateway.APIKey
		}
		rest.InitRestWebhook(app, cfg.App.BasePath+cfg.Webhook.Path, webhook)
	}
	rest.InitRestInstance(apiGroup, instanceUsecase)
	rest.InitRestSend(apiGroup, sendUsecase)
	rest.InitRestHealth(apiGroup, healthUsecase)
	rest.InitRestWorkerPool(apiGroup, pool)
	websocket.RegisterRoutes(apiGroup, hub, instanceUsecase)
	rest.NotFound(apiGroup)

	if local != nil {
		if err := local.Start(ctx); err != nil {
			logrus.Errorf("[SESSION] initial connect failed: %v", err)
		}
	} else if cfg.Webhook.PublicURL != "" {
		go func() {
			if err := gw.SetupWebhook(ctx, cfg.Gateway.Instance); err != nil {
				logrus.Warnf("[GATEWAY] webhook registration failed: %v", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if local != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := local.Stop(stopCtx); err != nil {
				logrus.Warnf("[SESSION] stop: %v", err)
			}
			cancel()
		}
		if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	logrus.Infof("[REST] listening on :%s (%s mode)", cfg.App.Port, cfg.Gateway.Mode)
	if err := app.Listen(":" + cfg.App.Port); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	return nil
}

// sinkDispatchWait bounds how long the socket's event loop waits for room in
// the pool. whatsmeow has no redelivery, so a short queue spike is waited out.
const sinkDispatchWait = 30 * time.Second

// dispatch hands an event to the keyed pool, or processes it inline when the
// pool is disabled.
func dispatch(pool *msgworker.WorkerPool, service domainWebhook.IWebhookUsecase, event domainWebhook.Event) {
	if service == nil {
		return
	}
	process := func(ctx context.Context) error {
		if err := service.ProcessEvent(ctx, event); err != nil {
			logrus.WithField("instance", event.Instance).Warnf("[WEBHOOK] %s rejected: %v", event.Event, err)
		}
		return nil
	}
	if pool == nil {
		_ = process(context.Background())
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkDispatchWait)
	defer cancel()
	if !pool.Dispatch(ctx, msgworker.Job{Key: event.Instance, Name: event.Event, Handler: process}) {
		logrus.WithField("instance", event.Instance).Errorf("[WEBHOOK] dispatch queue still full after %s, %s dropped", sinkDispatchWait, event.Event)
	}
}

func gatewayProbe(cfg *coreconfig.Config, gw domainGateway.IGatewayService, manager domainSession.IConnectionManager) domainHealth.Probe {
	return func(ctx context.Context) (string, error) {
		if manager != nil {
			snap := manager.Snapshot()
			if snap.State == domainSession.StateError {
				return "", errors.New(snap.LastError)
			}
			return fmt.Sprintf("local socket %s, state %s", snap.Instance, snap.State), nil
		}
		state, err := gw.CheckInstanceStatus(ctx, cfg.Gateway.Instance)
		if err != nil {
			return "", err
		}
		if !state.Exists {
			return fmt.Sprintf("instance %s not created yet", cfg.Gateway.Instance), nil
		}
		return fmt.Sprintf("instance %s is %s", cfg.Gateway.Instance, state.State), nil
	}
}
