package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AndeanRace/ChronoGate/config"
	"github.com/AndeanRace/ChronoGate/internal/broker/kafka"
	"github.com/AndeanRace/ChronoGate/internal/cache/rediscache"
	"github.com/AndeanRace/ChronoGate/internal/integrations/objstore"
	"github.com/AndeanRace/ChronoGate/internal/integrations/objstore/s3store"
	"github.com/AndeanRace/ChronoGate/internal/services/archive"
	"github.com/AndeanRace/ChronoGate/internal/services/checkpoints"
	"github.com/AndeanRace/ChronoGate/internal/storage/pgrace"
)

type chronoAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   chronoAPIOpts
	svc    *checkpoints.Service
	log    *slog.Logger

	closeLog func() error
	closeDB  func()
}

func mustBootstrapChronoAPI() *chronoAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("error al cargar la configuración, %v", err))
	}

	log, closeLog := config.SetupLogger(cfg.ChronoGate.LogFile, slog.LevelInfo)
	slog.SetDefault(log)

	httpAddr := cfg.ChronoGate.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	topic := cfg.Kafka.NotificationsTopicName
	if topic == "" {
		topic = "race.notifications"
	}
	cacheTTL := time.Duration(cfg.ChronoGate.StatusCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	recentWindow := time.Duration(cfg.ChronoGate.RecentWindowSeconds) * time.Second

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	recents := rediscache.NewRecentEvents(redisAddr, recentWindow)

	// El backup es de mejor esfuerzo: sin bucket el pipeline sigue andando.
	var backupStore objstore.Client
	if cfg.Backup.Bucket != "" {
		s3, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:     cfg.Backup.Endpoint,
			Region:       cfg.Backup.Region,
			Bucket:       cfg.Backup.Bucket,
			AccessKey:    cfg.Backup.AccessKey,
			SecretKey:    cfg.Backup.SecretKey,
			UsePathStyle: cfg.Backup.UsePathStyle,
		})
		if err != nil {
			log.Warn("backup store unavailable, running without archive", "err", err)
		} else {
			backupStore = s3
		}
	}

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers, topic)

	svc := checkpoints.New(st, archive.New(backupStore), producer, recents, rc, cacheTTL, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &chronoAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: chronoAPIOpts{
			httpAddr:    httpAddr,
			swaggerPath: os.Getenv("swaggerPath"),
		},
		svc:      svc,
		log:      log,
		closeLog: closeLog,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgrace.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgrace.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *chronoAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

func (a *chronoAPIApp) Run() error {
	return runChronoAPI(a.ctx, a.opts, a.svc, a.log)
}
