// Command gateway runs the websocket connection edge (§4.2-§4.4):
// REGISTER/heartbeat handling, SessionMap membership and the broker
// consumer that dispatches inbound envelopes to local sinks.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meshim/imcore/internal/authtoken"
	"github.com/meshim/imcore/internal/broker"
	"github.com/meshim/imcore/internal/config"
	"github.com/meshim/imcore/internal/gateway"
	"github.com/meshim/imcore/internal/gateway/codec"
	"github.com/meshim/imcore/internal/logging"
	"github.com/meshim/imcore/internal/offlinequeue"
	"github.com/meshim/imcore/internal/sessionmap"
	"github.com/meshim/imcore/internal/sessionregistry"
	"github.com/meshim/imcore/internal/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.FromEnv()
	log := logging.Init(cfg.LogLevel, false)
	log = logging.For(log, "gateway")

	db, err := store.Open(cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("gateway: mysql connect failed")
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	verifier, err := authtoken.NewVerifier(cfg.AuthTokenKey, 1)
	if err != nil {
		log.Fatal().Err(err).Msg("gateway: auth verifier init failed")
	}

	var wireCodec codec.Codec
	switch cfg.GatewayTransport {
	case config.TransportJSON:
		wireCodec = codec.JSONCodec{}
	default:
		wireCodec = codec.BinaryCodec{}
	}

	sessions := sessionmap.New(cfg.MultiDeviceEnabled, logging.For(log, "sessionmap"))
	registry := sessionregistry.New(store.NewSubscriptionStore(db), logging.For(log, "sessionregistry"))
	offline := offlinequeue.New(rdb, cfg.OfflineTTL)

	consumer := broker.NewConsumer(cfg.BrokerURL, cfg.BrokerId, wireCodec, sessions, logging.For(log, "broker"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("gateway: broker consumer exited")
		}
	}()

	srv := gateway.NewServer(gateway.Deps{
		Sessions:         sessions,
		Registry:         registry,
		Offline:          offline,
		Verifier:         verifier,
		Codec:            wireCodec,
		Log:              logging.For(log, "session"),
		HandshakeTimeout: cfg.HandshakeTimeout,
		HeartBeatTimeout: cfg.HeartBeatInterval,
		SendBuffer:       64,
	})

	httpSrv := &http.Server{
		Addr:    cfg.GatewayAddr,
		Handler: srv,
	}

	go func() {
		log.Info().Str("addr", cfg.GatewayAddr).Msg("gateway: listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("gateway: listen failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("gateway: shutting down")
	cancel()
	consumer.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway: graceful shutdown failed")
	}
}
