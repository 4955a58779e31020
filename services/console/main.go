package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/opconsole/internal/api"
	"github.com/opconsole/internal/bridge"
	"github.com/opconsole/internal/config"
	"github.com/opconsole/internal/logger"
	"github.com/opconsole/internal/notify"
	"github.com/opconsole/internal/poller"
	"github.com/opconsole/internal/startup"
	"github.com/opconsole/internal/state"
	"github.com/opconsole/internal/storage"
	filestore "github.com/opconsole/internal/storage/file"
	memstore "github.com/opconsole/internal/storage/memory"
	"github.com/opconsole/internal/stream"
)

func main() {
	logger.SetPrefix("console")
	dev := flag.Bool("dev", false, "in-memory secrets store, no files or redis required")
	flag.Parse()

	logger.Info("starting console agent")
	cfg := config.Load()

	secrets, err := openSecrets(cfg, *dev)
	if err != nil {
		logger.Errorf("secrets store: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := secrets.Close(); err != nil {
			logger.Errorf("secrets store close: %v", err)
		}
	}()

	identity := state.NewIdentityStore(secrets)
	restoreCtx, restoreCancel := context.WithTimeout(context.Background(), 5*time.Second)
	identity.Restore(restoreCtx)
	restoreCancel()

	convs := state.NewConversationStore(cfg.Typing.ReceiverExpiry)
	feed := bridge.NewFeed(cfg.CORSAllowedOrigins)

	keys, err := notify.EnsureVAPIDKeys("")
	if err != nil {
		logger.Errorf("vapid keys: %v", err)
		os.Exit(1)
	}
	push := notify.NewWebPushSender(keys, cfg.VAPIDSubscriber, secrets)
	notifier := notify.NewService(secrets, push, func() notify.Player { return feed })

	streamClient := stream.NewClient(cfg.Broker, convs, notifier)
	streamClient.OnStateChange(func(st stream.State) {
		feed.Publish("stream_state", 0, st.String())
	})

	apiClient := api.NewClient(cfg.APIBaseURL, cfg.APITimeout, identity, func() {
		// Токен отозван сервером: рвём стрим и сообщаем рендереру.
		streamClient.Disconnect()
		feed.Publish("logout", 0, nil)
	})

	poll := poller.New(apiClient, convs, feed, cfg.Poll.ChatListInterval, cfg.Poll.ThreadInterval)
	convs.SetListener(func(topic string, chatID int64) {
		feed.Publish(topic, chatID, nil)
		if topic == state.TopicChat || topic == state.TopicChats {
			poll.Kick()
		}
	})

	pollCtx, pollCancel := context.WithCancel(context.Background())
	var pollWg sync.WaitGroup
	pollWg.Add(1)
	go func() {
		defer pollWg.Done()
		poll.Run(pollCtx)
	}()

	// Сессия сохранилась с прошлого запуска — подключаемся сразу.
	if token := identity.Token(); token != "" {
		if err := streamClient.Connect(token); err != nil {
			logger.Errorf("stream connect: %v", err)
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.APITimeout)
			defer cancel()
			if op, err := apiClient.Me(ctx); err != nil {
				logger.Errorf("restore profile: %v", err)
			} else {
				identity.SetUser(op)
			}
		}()
	}

	h := bridge.NewHandler(cfg, identity, convs, streamClient, apiClient, secrets, push, feed, keys.PublicKey)

	srv := &http.Server{
		Addr:         cfg.BridgeAddr,
		Handler:      h.Routes(cfg.CORSAllowedOrigins),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("bridge listening on %s", cfg.BridgeAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("bridge server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("bridge shutdown: %v", err)
	}
	logger.Info("bridge stopped accepting connections")
	streamClient.Disconnect()
	pollCancel()
	pollWg.Wait()
	logger.Info("poller stopped")
	srvWg.Wait()
	logger.Info("bridge goroutine exited")
}

// openSecrets выбирает хранилище токена и настроек по конфигу.
func openSecrets(cfg *config.Config, dev bool) (storage.SecretsStore, error) {
	if dev {
		logger.Info("dev mode: secrets in memory")
		return memstore.New(), nil
	}
	switch cfg.Storage.Driver {
	case "memory":
		return memstore.New(), nil
	case "redis":
		return startup.ConnectRedisWithRetry(cfg.Storage.RedisURL, 60*time.Second), nil
	default:
		return filestore.New(cfg.Storage.FilePath)
	}
}
