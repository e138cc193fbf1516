package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/predio-auth/internal/config"
	"github.com/iliyamo/predio-auth/internal/database"
	"github.com/iliyamo/predio-auth/internal/handler"
	"github.com/iliyamo/predio-auth/internal/logs"
	"github.com/iliyamo/predio-auth/internal/queue"
	"github.com/iliyamo/predio-auth/internal/refreshtoken"
	"github.com/iliyamo/predio-auth/internal/repository"
	"github.com/iliyamo/predio-auth/internal/router"
	"github.com/iliyamo/predio-auth/internal/service"
	"github.com/iliyamo/predio-auth/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log, err := logs.New(logs.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		logrus.WithError(err).Fatal("init logger")
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if err := database.Migrate(db, cfg.DBDriver); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable: rate limiting is per process and the menu cache is off")
	} else {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	pages := repository.NewPageRepo(db)

	tokens, err := refreshStore(cfg, db, rdb)
	if err != nil {
		log.WithError(err).Fatal("refresh token store")
	}

	hasher, err := utils.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		log.WithError(err).Fatal("password hasher")
	}
	codec, err := utils.NewTokenCodec(cfg.JWTSecret)
	if err != nil {
		log.WithError(err).Fatal("token codec")
	}

	var events queue.Publisher = queue.NopPublisher{}
	if cfg.EventsEnabled {
		pub := queue.NewAMQPPublisher(cfg.AMQPURL, log, 256)
		pub.Start()
		defer pub.Close()
		events = pub
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AuditConsumer {
		go queue.RunAuditConsumer(ctx, cfg.AMQPURL, cfg.AuditLogPath, log)
	}

	menu := service.NewMenuService(pages, roles).
		WithCache(service.NewRedisMenuCache(config.LoadMenuCacheConfig(), rdb))
	auth := service.NewAuthenticator(users, hasher, codec, tokens, cfg.AccessTTL).
		WithMenu(menu).
		WithEvents(events)
	userSvc := service.NewUserService(users, hasher, tokens, cfg.MinUsername).WithEvents(events)
	roleSvc := service.NewRoleService(roles, menu)

	bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := service.EnsureAdmin(bootCtx, users, roles, hasher, cfg.BootstrapUser, cfg.BootstrapPass, log); err != nil {
		cancel()
		log.WithError(err).Fatal("bootstrap admin")
	}
	cancel()

	housekeeping := service.NewHousekeepingService(tokens, log, cfg.SweepEvery)
	housekeeping.Start()
	defer housekeeping.Stop()

	deps := router.Deps{
		Log:         log,
		Codec:       codec,
		RateLimit:   config.LoadRateLimitConfig(),
		Redis:       rdb,
		CORSOrigins: cfg.CORSOrigins,
		DB:          db,
		Auth:        handler.NewAuthHandler(auth, cfg.MinUsername, cfg.MinPassword),
		Account:     handler.NewAccountHandler(auth),
		Roles:       handler.NewRoleHandler(roleSvc),
		Users:       handler.NewUserHandler(userSvc),
		Pages:       handler.NewPageHandler(pages, users, menu),
	}
	if cfg.ReloadRoles {
		deps.Reload = users
	}
	e := router.New(deps)

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "refresh_store": cfg.RefreshStore}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown")
	}
}

// refreshStore selects the refresh token registry named by REFRESH_STORE.
func refreshStore(cfg config.Config, db *sql.DB, rdb *redis.Client) (refreshtoken.Registry, error) {
	switch cfg.RefreshStore {
	case "redis":
		if rdb == nil {
			return nil, errors.New("REFRESH_STORE=redis but redis is unavailable")
		}
		return refreshtoken.NewRedis(rdb, cfg.RefreshTTL, "rt"), nil
	case "sql":
		return repository.NewTokenRepo(db, cfg.RefreshTTL), nil
	default:
		return refreshtoken.NewMemory(cfg.RefreshTTL), nil
	}
}
