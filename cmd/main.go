package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"gatecheck/cmd/buildCFG"
	"gatecheck/internal/api/api"
	"gatecheck/internal/auth"
	rabbitReader "gatecheck/internal/consumerWorker"
	"gatecheck/internal/lifecycle"
	"gatecheck/internal/mailer"
	"gatecheck/internal/oracle"
	"gatecheck/internal/photos"
	"gatecheck/internal/rabbit"
	"gatecheck/internal/realtime"
	"gatecheck/internal/registry"
	"gatecheck/internal/repo"
	"gatecheck/internal/service"
	"gatecheck/internal/token"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	// .env is optional; in containers everything arrives as real env vars.
	if err := godotenv.Load(); err == nil {
		log.Info().Msg(".env loaded")
	}

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "'"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)
	port := serverCfg.Port

	var repository repo.Repository
	mode := buildCFG.StorageMode(cfg)
	switch mode {
	case "memory":
		repository = repo.NewMemoryRepository()
		log.Info().Msg("using in-memory storage")
	default:
		masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build DB config")
		}
		db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
		if err != nil {
			log.Fatal().Msgf("failed to connect to DB: %v", err)
		}
		if err := db.Master.Ping(); err != nil {
			log.Fatal().Msgf("DB ping failed: %v", err)
		}
		log.Info().Msg("Database connected successfully")

		repository, err = repo.NewRepository(db, &log)
		if err != nil {
			log.Fatal().Msgf("failed to initialize repository: %v", err)
		}
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatal().Err(err).Msg("cannot get working directory")
		}
		migrationPath := filepath.Join(cwd, "migrations/postgres")
		if err := repository.MigrateUp(migrationPath); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Msg("Migrations applied successfully")
	}

	var bus realtime.Bus
	var sessions auth.Store
	authCfg, err := buildCFG.BuildAuthConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load auth config")
	}
	if mode == "memory" {
		bus = realtime.NewLocalBus()
		sessions = auth.NewMemorySessions(authCfg.SessionTTL)
	} else {
		redisClient := realtime.NewRedisClient()
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Msgf("Redis ping failed: %v", err)
		}
		log.Info().Msg("Redis connected successfully")
		bus = realtime.NewRedisBus(redisClient, &log)
		sessions = auth.NewSessions(redisClient, authCfg.SessionTTL)
	}

	photoCfg := buildCFG.BuildPhotoConfig(cfg)
	photoStore, err := photos.NewDiskStore(photoCfg.Dir, photoCfg.BaseURL, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize photo store")
	}

	engine := lifecycle.NewEngine(repository, photoStore, bus, &log)
	reg := registry.New(repository, bus, &log)
	tokens := token.NewRegistry(repository, &log)

	oracleCfg := buildCFG.BuildOracleConfig(cfg)
	matcher := oracle.NewClient(oracleCfg.Endpoint, oracleCfg.APIKey, &log)

	mailCfg := buildCFG.BuildMailConfig(cfg)

	var rmq *rabbit.Client
	var reader *rabbitReader.Reader
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if mode != "memory" {
		rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
		}
		rmq, err = rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()

		reader = rabbitReader.NewReader(rmq, repository, engine)
		go reader.Start(workerCtx)
	}

	serviceInstance := service.NewService(service.Deps{
		Engine:   engine,
		Registry: reg,
		Tokens:   tokens,
		Repo:     repository,
		Sessions: sessions,
		Checker:  auth.NewStaticPassword(authCfg.PasswordHash),
		Matcher:  matcher,
		Bus:      bus,
		Rabbit:   rmq,
		Mail: mailer.Config{
			Host:      mailCfg.Host,
			Port:      mailCfg.Port,
			From:      mailCfg.From,
			Password:  mailCfg.Password,
			Organizer: mailCfg.Organizer,
		},
		Log: &log,
	})
	app := api.NewRouters(&api.Routers{
		Service:  serviceInstance,
		Sessions: sessions,
		PhotoDir: photoCfg.Dir,
	})

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", port)
		if err := app.Run(":" + port); err != nil {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	cancelWorkers()
	if reader != nil {
		reader.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if closer, ok := interface{}(app).(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(shutdownCtx); err != nil {
			log.Error().Msgf("Error shutting down server: %v", err)
		}
	}

	log.Info().Msg("Shutdown complete")
}
