package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"chat-engine/internal/auth"
	"chat-engine/internal/cache"
	"chat-engine/internal/config"
	"chat-engine/internal/db"
	"chat-engine/internal/gateway"
	grpcclient "chat-engine/internal/grpc"
	"chat-engine/internal/handlers"
	"chat-engine/internal/logging"
	"chat-engine/internal/members"
	"chat-engine/internal/middleware"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/rabbitmq"
	"chat-engine/internal/repositories"
	"chat-engine/internal/services"
	"chat-engine/internal/telemetry"
	"chat-engine/internal/ws"
)

type stores struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	reads    repositories.ReadStateRepository
	database *sqlx.DB
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.L().Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: cfg.Service})
	log := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := observability.InitTracer(ctx, cfg.Service, cfg.Tracing.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("tracing disabled")
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				_ = shutdown(sctx)
			}()
		}
	}

	st, err := openStores(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	if st.database != nil {
		defer st.database.Close()
	}

	verifier, closeVerifier, err := buildVerifier(cfg.Auth)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build verifier")
	}
	defer closeVerifier()

	directory, closeDirectory, err := buildDirectory(cfg.Members, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build member directory")
	}
	defer closeDirectory()

	publisher := rabbitmq.NewPublisher(cfg.AMQP)
	defer publisher.Close()
	log.Info().Str("mode", rabbitmq.PublisherMode(publisher)).Str("reason", rabbitmq.PublisherNoopReason(publisher)).Msg("event publisher ready")
	events := telemetry.NewEmitter(publisher, cfg.Service, cfg.Env)

	roomDirectory := services.NewRoomDirectory(st.rooms, directory, events)
	messageStore := services.NewMessageStore(st.messages, st.rooms, directory, events, nil)
	readTracker := services.NewReadTracker(st.messages, st.reads, events)
	registry := ws.NewRegistry()

	gw := gateway.New(gateway.Deps{
		Verifier: verifier,
		Rooms:    roomDirectory,
		Messages: messageStore,
		Reads:    readTracker,
		Members:  directory,
		Registry: registry,
	}, cfg.Gateway)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Service))
	router.Use(logging.GinMiddleware(*log))
	router.Use(observability.HTTPMetricsMiddleware())

	checks := map[string]handlers.Check{}
	if st.database != nil {
		checks["database"] = st.database.PingContext
	}
	health := handlers.NewHealthHandler(checks)
	router.GET("/healthz", health.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	roomHandler := handlers.NewRoomHandler(roomDirectory, gw)
	messageHandler := handlers.NewMessageHandler(roomDirectory, messageStore)
	receiptHandler := handlers.NewReceiptHandler(roomDirectory, readTracker)
	wsHandler := handlers.NewWSHandler(gw, cfg.WebSocket)

	router.GET("/ws/chat", wsHandler.Handle)

	api := router.Group("/", middleware.AuthMiddleware(verifier))
	api.POST("/rooms/private", roomHandler.CreatePrivateRoom)
	api.POST("/rooms/group", roomHandler.CreateGroupRoom)
	api.GET("/rooms", roomHandler.ListRooms)
	api.GET("/rooms/:room_id", roomHandler.GetRoom)
	api.POST("/rooms/:room_id/invite", roomHandler.Invite)
	api.POST("/rooms/:room_id/leave", roomHandler.Leave)
	api.DELETE("/rooms/:room_id", roomHandler.DeleteRoom)
	api.GET("/rooms/:room_id/messages", messageHandler.ListMessages)
	api.GET("/rooms/:room_id/messages/recent", messageHandler.RecentMessages)
	api.GET("/rooms/:room_id/read-statuses", receiptHandler.ReadStatuses)
	api.GET("/rooms/:room_id/unread-count", receiptHandler.UnreadCount)
	api.PATCH("/messages/:message_id", messageHandler.EditMessage)
	api.DELETE("/messages/:message_id", messageHandler.DeleteMessage)
	api.POST("/messages/:message_id/restore", messageHandler.RestoreMessage)

	handlers.RegisterDebugRoutes(router, registry, publisher, cfg.Server.Debug)

	srv := &http.Server{Addr: cfg.Server.Addr(), Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("db", cfg.Database.Driver).Msg("chat engine listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		registry.Shutdown()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}
	log.Info().Msg("shutdown complete")
}

func openStores(ctx context.Context, cfg config.DatabaseConfig) (stores, error) {
	if cfg.Driver == "memory" {
		mem := repositories.NewMemoryStore(nil)
		return stores{rooms: mem, messages: mem, reads: mem}, nil
	}
	database, err := db.Connect(ctx, cfg)
	if err != nil {
		return stores{}, err
	}
	return stores{
		rooms:    repositories.NewRoomRepo(database),
		messages: repositories.NewMessageRepo(database),
		reads:    repositories.NewReadStateRepo(database),
		database: database,
	}, nil
}

func buildVerifier(cfg config.AuthConfig) (auth.Verifier, func(), error) {
	if cfg.Mode == "jwt" {
		return auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer), func() {}, nil
	}
	conn, err := grpcclient.Dial(cfg.GRPCAddress)
	if err != nil {
		return nil, nil, err
	}
	return grpcclient.NewAuthClient(conn), func() { conn.Close() }, nil
}

func buildDirectory(cfg config.MembersConfig, redisCfg config.RedisConfig) (members.Directory, func(), error) {
	if cfg.GRPCAddress == "" {
		static := members.NewStaticDirectory()
		for _, m := range cfg.Static {
			static.Put(models.Member{ID: m.ID, Name: m.Name, AvatarURL: m.AvatarURL})
		}
		logging.L().Warn().Int("members", len(cfg.Static)).Msg("no user service configured, using static member directory")
		return static, func() {}, nil
	}

	conn, err := grpcclient.Dial(cfg.GRPCAddress)
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){func() { conn.Close() }}

	var memberCache cache.MemberCache
	if redisCfg.Address != "" {
		rc, err := cache.NewRedisMemberCache(redisCfg)
		if err != nil {
			logging.L().Warn().Err(err).Msg("member cache disabled")
		} else {
			memberCache = rc
			closers = append(closers, func() { rc.Close() })
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return members.NewCachedDirectory(grpcclient.NewUserClient(conn), memberCache, cfg.CacheTTL), closeAll, nil
}
