// Command fanout-api runs the REST surface that persists and
// publishes single-chat, group-chat and control messages (§4.5, §4.6,
// §6).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meshim/imcore/internal/authtoken"
	"github.com/meshim/imcore/internal/broker"
	"github.com/meshim/imcore/internal/config"
	"github.com/meshim/imcore/internal/fanout"
	"github.com/meshim/imcore/internal/gateway/codec"
	"github.com/meshim/imcore/internal/identity"
	"github.com/meshim/imcore/internal/logging"
	"github.com/meshim/imcore/internal/offlinequeue"
	"github.com/meshim/imcore/internal/sessionregistry"
	"github.com/meshim/imcore/internal/store"
	"github.com/meshim/imcore/internal/workerpool"
)

func main() {
	cfg := config.FromEnv()
	log := logging.Init(cfg.LogLevel, false)
	log = logging.For(log, "fanout-api")

	db, err := store.Open(cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("fanout-api: mysql connect failed")
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	verifier, err := authtoken.NewVerifier(cfg.AuthTokenKey, 1)
	if err != nil {
		log.Fatal().Err(err).Msg("fanout-api: auth verifier init failed")
	}

	var wireCodec codec.Codec
	switch cfg.GatewayTransport {
	case config.TransportJSON:
		wireCodec = codec.JSONCodec{}
	default:
		wireCodec = codec.BinaryCodec{}
	}

	identityStore := identity.NewHTTPStore(cfg.IdentityServiceURL, 2*time.Second)
	resolver := identity.New(identityStore, rdb, cfg.IdentityCacheTTL)

	registry := sessionregistry.New(store.NewSubscriptionStore(db), logging.For(log, "sessionregistry"))
	offline := offlinequeue.New(rdb, cfg.OfflineTTL)
	groups := fanout.NewHTTPGroupDirectory(cfg.GroupServiceURL, 2*time.Second)
	pool := workerpool.New(cfg.WorkerPoolSize, cfg.WorkerPoolBacklog)

	publisher, err := broker.NewPublisher(cfg.BrokerURL, logging.For(log, "broker"))
	if err != nil {
		log.Fatal().Err(err).Msg("fanout-api: broker publisher init failed")
	}
	defer publisher.Close()

	srv := fanout.NewServer(fanout.Deps{
		Messages:  store.NewMessageStore(db),
		Chats:     store.NewChatStore(db),
		Identity:  resolver,
		Registry:  registry,
		Publisher: publisher,
		Offline:   offline,
		Groups:    groups,
		Pool:      pool,
		Verifier:  verifier,
		Codec:     wireCodec,
		Log:       logging.For(log, "handler"),
	})

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("fanout-api: listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("fanout-api: listen failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("fanout-api: shutting down")
	pool.StopAndWait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("fanout-api: graceful shutdown failed")
	}
}
