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
)

func main() {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("error al cargar la configuración, %v", err))
	}

	log, closeLog := config.SetupLogger(cfg.ChronoGate.LogFile, slog.LevelInfo)
	defer func() { _ = closeLog() }()
	slog.SetDefault(log)

	baseURL := cfg.ChronoGate.SimulatorAPIBaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	topic := cfg.Kafka.NotificationsTopicName
	if topic == "" {
		topic = "race.notifications"
	}
	group := cfg.ChronoGate.KafkaConsumerGroup
	if group == "" {
		group = "race-simulator"
	}

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers, topic)
	consumer := kafka.NewConsumer(brokers, topic, group)
	defer func() { _ = consumer.Close() }()

	sim := NewSimulator(simulatorOpts{
		apiBaseURL:   baseURL,
		runnerCount:  cfg.ChronoGate.SimulatorRunnerCount,
		sectionPace:  time.Duration(cfg.ChronoGate.SimulatorSectionPaceMs) * time.Millisecond,
		runnerJitter: time.Duration(cfg.ChronoGate.SimulatorRunnerJitterMs) * time.Millisecond,
	}, newAPIClient(baseURL), producer, consumer, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sim.Run(ctx); err != nil && err != context.Canceled {
		panic(err)
	}
}
