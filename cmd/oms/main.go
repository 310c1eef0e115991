package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os/signal"
	"syscall"

	"github.com/bhanukaranwal/SetuBond/config"
	"github.com/bhanukaranwal/SetuBond/pkg/api"
	"github.com/bhanukaranwal/SetuBond/pkg/infra"
	redis_wrapper "github.com/bhanukaranwal/SetuBond/pkg/infra/redis"
	kafkawrapper "github.com/bhanukaranwal/SetuBond/pkg/kafka_wrapper"
	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"github.com/bhanukaranwal/SetuBond/pkg/matching"
	"github.com/bhanukaranwal/SetuBond/pkg/oms"
	fixgateway "github.com/bhanukaranwal/SetuBond/pkg/oms/fix"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/repo"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/worker"
	"github.com/bhanukaranwal/SetuBond/pkg/projector"
	"go.uber.org/zap"
)

func main() {
	var configFile, pprofAddr string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.StringVar(&pprofAddr, "pprof", "", "Serve pprof on this address, e.g. localhost:6060")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel)).With(zap.String("service", cfg.ServiceName))
	zap.ReplaceGlobals(logger.Zap())
	defer logger.Sync() // nolint

	if pprofAddr != "" {
		go func() {
			_ = http.ListenAndServe(pprofAddr, nil)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(ctx, "oms stopped", zap.Error(err))
	}
	logger.Info(context.Background(), "exited cleanly")
}

func openStore(cfg *config.AppConfig, logger *logging.Logger) (repo.IRepo, error) {
	if cfg.OmsDB == nil || cfg.OmsDB.DataSource == "" {
		logger.Warn(context.Background(), "no oms_db configured, orders are kept in memory")
		return repo.NewInMemoryRepo(), nil
	}
	db, err := infra.GetMigrateTool().ConnectAndMigrate(cfg.OmsDB)
	if err != nil {
		return nil, err
	}
	return repo.NewRepo(db), nil
}

func run(ctx context.Context, cfg *config.AppConfig, logger *logging.Logger) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	hub := api.NewHub()
	sinks := []projector.Sink{hub}
	if cfg.Redis.Enabled {
		client, err := redis_wrapper.InitRedis(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close() // nolint
		sinks = append(sinks, projector.NewRedisSink(client))
	}
	if cfg.Kafka.Enabled {
		producer := kafkawrapper.NewProducer(cfg.Kafka.Producer)
		defer producer.Close() // nolint
		sinks = append(sinks, projector.NewKafkaSink(producer, cfg.Kafka.TradeTopic, cfg.Kafka.BookTopic))
	}
	proj := projector.New(logger, cfg.OMS.ProjectionBuffer, sinks...)
	go proj.Run(ctx)
	defer proj.Close()

	engine := matching.New(cfg.Engine, store, proj, logger)
	report, err := engine.Recover(ctx)
	if err != nil {
		return err
	}
	logger.Info(ctx, "books recovered",
		zap.Int("instruments", report.Instruments),
		zap.Int("orders", report.Orders),
		zap.Int("stops", report.Stops))

	o, err := oms.NewOMS(oms.Config{
		Instruments:     cfg.Instruments,
		Session:         cfg.Session,
		CleanerInterval: cfg.OMS.CleanerInterval,
		EventRetention:  cfg.OMS.EventRetention,
	}, engine, store, logger)
	if err != nil {
		return err
	}
	if cfg.Fix != nil && cfg.Fix.ConfigFilepath != "" {
		fixGateway := fixgateway.NewFixGateway(cfg.Fix, logger)
		fixGateway.AddOmsInstance(o)
		o.AddGateway(fixGateway)
	}
	if err := o.Start(ctx); err != nil {
		return err
	}
	defer o.Stop()

	go func() {
		_ = worker.NewExpiryWorker(cfg.Expiry, store, o, logger).Run(ctx)
	}()

	if cfg.Kafka.Enabled && cfg.Kafka.Intake.Topic != "" {
		cg, err := kafkawrapper.NewConsumerGroup(cfg.Kafka.Intake)
		if err != nil {
			return err
		}
		defer cg.Close() // nolint
		intake := worker.NewIntakeWorker(o, logger)
		go func() {
			if err := cg.Run(ctx, intake.Handle); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(ctx, "order intake stopped", zap.Error(err))
			}
		}()
	}

	return api.NewServer(cfg.HTTP, o, o, hub, logger).ListenAndServe(ctx)
}
