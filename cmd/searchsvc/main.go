package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	auctionApp "github.com/davicafu/auctionsearch/internal/auction/application"
	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	opsHttp "github.com/davicafu/auctionsearch/internal/auction/infra/inbound/http"
	"github.com/davicafu/auctionsearch/internal/auction/infra/outbound/analytics/clickhouse"
	itemCache "github.com/davicafu/auctionsearch/internal/auction/infra/outbound/cache"
	"github.com/davicafu/auctionsearch/internal/auction/infra/outbound/db/mongodb"
	"github.com/davicafu/auctionsearch/internal/auction/infra/outbound/db/postgres"
	"github.com/davicafu/auctionsearch/internal/auction/infra/outbound/db/sqlite"
	auctionClient "github.com/davicafu/auctionsearch/internal/auction/infra/outbound/http"
	"github.com/davicafu/auctionsearch/internal/config"
	infraEvents "github.com/davicafu/auctionsearch/internal/infra/events"
	"github.com/davicafu/auctionsearch/internal/metrics"
	sharedEvents "github.com/davicafu/auctionsearch/internal/shared/events"
	sharedCache "github.com/davicafu/auctionsearch/internal/shared/infra/platform/cache"
	"github.com/davicafu/auctionsearch/internal/shared/infra/retry"
	"github.com/davicafu/auctionsearch/internal/shared/infra/startup"
	"github.com/davicafu/auctionsearch/pkg/logger"
)

const itemCacheTTL = 10 * time.Minute

// projectionStore agrupa el repositorio elegido con su probe de arranque y su cierre.
type projectionStore struct {
	repo  auctionDomain.ItemRepository
	ready func(ctx context.Context) error
	close func()
}

// ---------------- Main ----------------
func main() {
	os.Exit(run())
}

// run arranca el servicio y retorna el código de salida; los defers liberan
// reader, almacén y logger antes de que main llame a os.Exit.
func run() int {
	cfg, cfgErr := config.LoadConfig()
	level := "info"
	if cfgErr == nil {
		level = cfg.LogLevel
	}
	if err := logger.Init(level); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := logger.Logger()
	defer logger.Sync()

	if cfgErr != nil {
		log.Error("❌ Configuración inválida", zap.Error(cfgErr))
		return 1
	}

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seq := startup.NewSequencer(log)

	// ---------------- Store ----------------
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("❌ No se pudo preparar el almacén de proyecciones", zap.Error(err))
		return 1
	}
	defer store.close()
	seq.Register("store:"+cfg.StoreDriver, store.ready)

	// ---------------- Cache ----------------
	var cacheInstance sharedCache.Cache
	var locker auctionDomain.Locker
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("⚠️ Redis no disponible, cache en memoria:", zap.Error(err))
		memCache := itemCache.NewInMemoryCache(itemCacheTTL, 3*itemCacheTTL)
		defer memCache.Stop()
		cacheInstance = memCache
		locker = itemCache.NewInMemoryLocker()
	} else {
		cacheInstance = itemCache.NewRedisCache(rdb, itemCacheTTL)
		locker = itemCache.NewRedisLocker(rdb)
		log.Info("✅ Redis conectado, cache habilitado")
	}
	cancelPing()

	// ---------------- Projector ----------------
	projectorOpts := []auctionApp.ProjectorOption{
		auctionApp.WithCache(cacheInstance),
		auctionApp.WithUpsertRetry(retry.Times(cfg.MessageRetryAttempts, cfg.MessageRetryInterval)),
		auctionApp.WithWriteTimeout(cfg.WriteTimeout),
	}
	if cfg.ClickHouseAddr != "" {
		journal, err := openJournal(ctx, cfg)
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, journal desactivado", zap.Error(err))
		} else {
			defer journal.Close()
			projectorOpts = append(projectorOpts, auctionApp.WithJournal(journal))
			log.Info("✅ ClickHouse conectado, journal habilitado")
		}
	}
	projector := auctionApp.NewProjector(auctionApp.NewMapper(), store.repo, log, projectorOpts...)
	defer projector.Close() // vacía la cola del journal antes de cerrar ClickHouse

	if cfg.SeedOnStartup {
		source := auctionClient.NewAuctionClient(cfg.AuctionServiceURL, nil)
		seq.SetSeeder(auctionApp.NewSeeder(source, store.repo, projector, locker, cfg.UpstreamRetryInterval, log))
	}

	// ---------------- Events ---------------
	var reader infraEvents.MessageReader
	var consumerOpts []infraEvents.ConsumerOption
	consumerOpts = append(consumerOpts, infraEvents.WithRedeliveryDelay(cfg.RedeliveryDelay))

	if cfg.UseKafka {
		log.Info("🚀 Usando Kafka como bus de eventos")

		dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
		kafkaReader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.KafkaBrokers,
			Topic:          cfg.KafkaTopic,
			GroupID:        cfg.KafkaGroupID,
			Dialer:         dialer,
			StartOffset:    kafka.FirstOffset,
			CommitInterval: 0, // commits síncronos tras persistir
			MinBytes:       1,
			MaxBytes:       10e6, // 10MB
		})
		defer kafkaReader.Close()
		reader = kafkaReader
		seq.Register("kafka", infraEvents.PingKafka(dialer, cfg.KafkaBrokers))

		if cfg.KafkaDLQTopic != "" {
			dlqWriter := &kafka.Writer{
				Addr:         kafka.TCP(cfg.KafkaBrokers...),
				Topic:        cfg.KafkaDLQTopic,
				Balancer:     &kafka.Hash{},
				RequiredAcks: kafka.RequireAll,
			}
			defer dlqWriter.Close()
			consumerOpts = append(consumerOpts, infraEvents.WithDeadLetters(infraEvents.NewKafkaPublisher(dlqWriter, log)))
		}
	} else {
		log.Info("⚡️Usando bus de eventos en memoria (canales de Go)")

		bus := infraEvents.NewInMemoryEventBus(cfg.KafkaTopic, 100)
		defer bus.Close()
		reader = bus

		go func() {
			select {
			case <-seq.Ready():
				publishSimulatedEvents(ctx, bus, log)
			case <-ctx.Done():
			}
		}()
	}

	consumer := infraEvents.NewConsumer(reader, projector, cfg.KafkaTopic, log, consumerOpts...)

	// ---------------- HTTP ----------------
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	opsHttp.RegisterOpsRoutes(router, opsHttp.NewHealthHandler(
		seq,
		func() string { return consumer.State().String() },
		store.repo,
	))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// ---------------- Run ----------------
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("🚀 Server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		policy := startup.Policy{
			Attempts: cfg.StartupAttempts,
			Interval: cfg.StartupInterval,
			Timeout:  5 * time.Second,
			Classify: retry.TransientOn(auctionDomain.ErrStoreUnavailable),
		}
		if err := seq.EnsureReady(gctx, policy); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return err
		}

		task := consumer.Start(gctx)
		<-gctx.Done()
		return task.Stop()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("🛑 Apagando servidor HTTP...")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		var fatal *startup.FatalInitError
		if errors.As(err, &fatal) {
			log.Error("❌ Arranque abortado", zap.String("dependency", fatal.Dependency), zap.Error(fatal.Err))
			return 1
		}
		log.Error("❌ Servicio detenido con error", zap.Error(err))
		return 1
	}
	log.Info("👋 Servicio detenido")
	return 0
}

// openStore construye el almacén elegido en STORE_DRIVER sin conectarse todavía:
// la conexión y el esquema los comprueba el secuenciador con su política de reintentos.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*projectionStore, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("mongo client: %w", err)
		}
		repo := mongodb.NewItemRepoMongoDB(client, cfg.MongoDB)
		return &projectionStore{
			repo: repo,
			ready: func(ctx context.Context) error {
				if err := repo.Ping(ctx); err != nil {
					return err
				}
				return repo.EnsureIndexes(ctx)
			},
			close: func() {
				disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := client.Disconnect(disconnectCtx); err != nil {
					log.Warn("⚠️ Error cerrando MongoDB", zap.Error(err))
				}
			},
		}, nil

	case config.StorePostgres:
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		repo := postgres.NewItemRepoPostgres(db)
		return &projectionStore{
			repo: repo,
			ready: func(ctx context.Context) error {
				if err := repo.Ping(ctx); err != nil {
					return err
				}
				return repo.InitSchema(ctx)
			},
			close: func() { db.Close() },
		}, nil

	case config.StoreSQLite:
		repo, db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &projectionStore{
			repo:  repo,
			ready: repo.Ping,
			close: func() { db.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func openJournal(ctx context.Context, cfg *config.Config) (*clickhouse.ItemJournal, error) {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	journal, err := clickhouse.NewItemJournal(initCtx, cfg.ClickHouseAddr, cfg.ClickHouseDB)
	if err != nil {
		return nil, err
	}
	if err := journal.InitSchema(initCtx); err != nil {
		journal.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return journal, nil
}

// publishSimulatedEvents publica una subasta creada y su actualización en el bus en memoria.
func publishSimulatedEvents(ctx context.Context, bus *infraEvents.InMemoryEventBus, log *zap.Logger) {
	now := time.Now().UTC()
	auction := sharedEvents.AuctionCreated{
		ID:           "simulated-auction",
		Title:        "Ford GT (simulada)",
		Make:         "Ford",
		Model:        "GT",
		Year:         2020,
		Status:       string(auctionDomain.AuctionLive),
		ReservePrice: 20000,
		AuctionEnd:   now.Add(72 * time.Hour),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	updated := sharedEvents.AuctionUpdated(auction)
	updated.Title = "Ford GT (simulada, actualizada)"
	updated.Mileage = 1200

	simulated := []struct {
		eventType string
		payload   interface{}
	}{
		{auctionDomain.AuctionCreated, auction},
		{auctionDomain.AuctionUpdated, updated},
	}
	for _, sim := range simulated {
		eventType := sim.eventType
		data, err := json.Marshal(sim.payload)
		if err != nil {
			log.Error("Fallo al serializar el evento simulado", zap.Error(err))
			return
		}
		evt := sharedEvents.DomainEvent{
			ID:         auction.ID,
			Type:       eventType,
			OccurredAt: time.Now().UTC(),
			Payload:    data,
		}
		if err := bus.Publish(ctx, evt); err != nil {
			log.Error("Fallo al publicar el evento simulado", zap.Error(err))
			continue
		}
		log.Info("✅ Evento simulado publicado", zap.String("event_type", eventType))
	}
}
