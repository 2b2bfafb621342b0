package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	accesshandler "attestry/internal/access/handler"
	accessmetrics "attestry/internal/access/metrics"
	accessservice "attestry/internal/access/service"
	accessstore "attestry/internal/access/store"
	"attestry/internal/jwtauth"
	ledgerhandler "attestry/internal/ledger/handler"
	ledgermetrics "attestry/internal/ledger/metrics"
	ledgerservice "attestry/internal/ledger/service"
	ledgerstore "attestry/internal/ledger/store"
	"attestry/internal/platform/config"
	"attestry/internal/platform/httpserver"
	"attestry/internal/platform/logger"
	"attestry/internal/platform/postgres"
	platformredis "attestry/internal/platform/redis"
	httptransport "attestry/internal/transport/http"
	"attestry/pkg/domain"
	"attestry/pkg/platform/events"
	"attestry/pkg/platform/events/outbox"
	"attestry/pkg/platform/events/publisher"
	eventmemory "attestry/pkg/platform/events/store/memory"
	eventpostgres "attestry/pkg/platform/events/store/postgres"
	"attestry/pkg/platform/tx"
)

// main wires the stores, services, event log and relay, then runs the HTTP
// server until a signal arrives. Business logic lives in the internal
// services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	owner, err := domain.ParseIdentity(cfg.OwnerIdentity)
	if err != nil {
		log.Error("ATTESTRY_OWNER is missing or malformed", "error", err)
		os.Exit(1)
	}

	// Store selection: postgres when a DSN is configured, in-memory otherwise.
	var (
		db          *sql.DB
		accessStore accessservice.Store
		docStore    ledgerservice.DocumentStore
		eventStore  events.Store
		relaySource outbox.Source
		txRunner    tx.Runner = tx.NoopRunner{}
		health      []httptransport.HealthChecker
	)
	if cfg.Postgres.DSN != "" {
		db, err = postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pgAccess := accessstore.NewPostgres(db)
		pgDocs := ledgerstore.NewPostgres(db)
		pgEvents := eventpostgres.New(db)
		for _, ensure := range []func(context.Context) error{
			pgAccess.EnsureSchema, pgDocs.EnsureSchema, pgEvents.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				log.Error("failed to ensure schema", "error", err)
				os.Exit(1)
			}
		}

		accessStore = pgAccess
		docStore = pgDocs
		eventStore = pgEvents
		relaySource = pgEvents
		txRunner = tx.SQLRunner{DB: db}
		health = append(health, dbHealth{db})
	} else {
		accessStore = accessstore.NewInMemory()
		docStore = ledgerstore.NewInMemory()
		eventStore = eventmemory.NewInMemoryStore()
	}

	eventLog := publisher.NewPublisher(eventStore, publisher.WithLogger(log))
	defer eventLog.Close()

	accessSvc := accessservice.New(accessStore, eventLog,
		accessservice.WithLogger(log),
		accessservice.WithMetrics(accessmetrics.New()),
		accessservice.WithTxRunner(txRunner),
	)
	if err := accessSvc.Bootstrap(ctx, owner); err != nil {
		log.Error("failed to bootstrap owner", "error", err)
		os.Exit(1)
	}

	ledgerOpts := []ledgerservice.Option{
		ledgerservice.WithLogger(log),
		ledgerservice.WithMetrics(ledgermetrics.New()),
		ledgerservice.WithTxRunner(txRunner),
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		health = append(health, redisClient)
		ledgerOpts = append(ledgerOpts, ledgerservice.WithReader(
			ledgerstore.NewRedisCache(docStore, redisClient.Client, cfg.Redis.CacheTTL),
		))
	}

	ledgerSvc := ledgerservice.New(docStore, accessSvc, eventLog, ledgerOpts...)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:    log,
		Validator: jwtauth.NewValidator(cfg.JWTSigningKey),
		Access:    accesshandler.New(accessSvc, log),
		Ledger:    ledgerhandler.New(ledgerSvc, log),
		Events:    eventLog,
		Health:    health,
	})
	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.Kafka.Brokers != "" && relaySource != nil {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers),
			kgo.AllowAutoTopicCreation(),
		)
		if err != nil {
			log.Error("failed to create kafka client", "error", err)
			os.Exit(1)
		}
		defer kafkaClient.Close()

		if err := outbox.EnsureTopic(ctx, kafkaClient, cfg.Kafka.Topic, cfg.Kafka.Partitions); err != nil {
			log.Error("failed to ensure kafka topic", "error", err)
			os.Exit(1)
		}
		relay := outbox.New(relaySource, kafkaClient, cfg.Kafka.Topic, log)
		group.Go(func() error {
			if err := relay.Run(groupCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		log.Info("starting attestry", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

type dbHealth struct {
	db *sql.DB
}

func (h dbHealth) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}
