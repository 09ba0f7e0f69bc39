package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"conn-guard/internal/alert"
	"conn-guard/internal/api"
	"conn-guard/internal/client"
	"conn-guard/internal/enforcement"
	"conn-guard/internal/pipeline"
	"conn-guard/internal/report"
	"conn-guard/internal/rules"
	"conn-guard/internal/source"
	"conn-guard/internal/storage"
	"conn-guard/internal/utils"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the detection and enforcement loop",
	Long: `Run processes run.iterations windows (0 runs until interrupted), waiting
run.interval between windows. The run stops with an error when the record
source cannot be opened or read.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := utils.LoadConfig(configFile)
		if err != nil {
			return err
		}
		return runService(config)
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <traffic-file>",
	Short: "Process one window of a traffic file without blocking anything",
	Long: `Parse runs a single window over the file with the dry-run backend and
prints the IP,Antal tally to stdout. Detection settings come from --config
when the file exists, otherwise the defaults are used.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := utils.LoadConfig(configFile)
		if err != nil {
			config = utils.GetDefaultConfig()
		}
		config.Source.Type = "file"
		config.Source.Path = args[0]
		config.Enforcement.Backend = "dry_run"
		if err := config.Validate(); err != nil {
			return err
		}
		return parseOnce(config)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := utils.LoadConfig(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
		ports, _ := config.Detection.SuspiciousPorts.PortSet()
		fmt.Printf("VALID: source %s, %d suspicious port(s), max %d connection(s), backend %s\n",
			config.Source.Type, ports.Len(), config.Detection.MaxConnections, config.Enforcement.Backend)
		return nil
	},
}

// service holds what one run assembles, so it can be torn down in order
type service struct {
	runner     *pipeline.Runner
	src        source.Source
	dispatcher *alert.Dispatcher
	ledger     *report.Ledger
}

func (s *service) close(logger *logrus.Logger) {
	s.dispatcher.Stop()
	if err := s.src.Close(); err != nil {
		logger.Warnf("Failed to close record source: %v", err)
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			logger.Warnf("Failed to close ledger: %v", err)
		}
	}
}

func buildService(config *utils.Config, metrics *client.PrometheusMetrics, store *storage.Storage, logger *logrus.Logger) (*service, error) {
	src, err := utils.BuildSource(config, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create record source: %w", err)
	}

	engine := rules.NewEngine(logger)
	if err := utils.RegisterBuiltinRulesFromYAML(engine, config, logger); err != nil {
		src.Close()
		return nil, err
	}

	backend, err := utils.BuildBackend(config, logger)
	if err != nil {
		src.Close()
		return nil, err
	}
	coordinator := enforcement.NewCoordinator(backend, config.Enforcement.Timeout, logger)

	notifiers, err := utils.BuildNotifiers(config, logger)
	if err != nil {
		src.Close()
		return nil, err
	}
	dispatcher := alert.NewDispatcher(utils.DispatcherConfig(config), metrics, logger)
	for _, n := range notifiers {
		dispatcher.RegisterNotifier(n)
	}

	sinks := report.NewMultiSink()
	if config.Report.CSVPath != "" {
		sinks.Add(report.NewCSVSink(config.Report.CSVPath))
	}

	var ledger *report.Ledger
	if config.Enforcement.LedgerPath != "" {
		ledger, err = report.OpenLedger(config.Enforcement.LedgerPath)
		if err != nil {
			src.Close()
			return nil, err
		}
		sinks.Add(ledger)
	}

	if store != nil {
		dispatcher.RegisterNotifier(store)
		sinks.Add(store)
		store.SetRules(config.Rules)
	}

	processor := pipeline.NewProcessor(source.NewParser(config.Source.Delimiter), engine, coordinator, dispatcher, metrics, logger)
	runner := pipeline.NewRunner(src, processor, sinks, pipeline.WindowConfig{
		MaxRecords: config.Window.MaxRecords,
		Duration:   config.Window.Duration,
	}, metrics, logger)

	return &service{
		runner:     runner,
		src:        src,
		dispatcher: dispatcher,
		ledger:     ledger,
	}, nil
}

func runService(config *utils.Config) error {
	logger := utils.NewLoggerFromConfig(config.Logging)
	logger.Infof("conn-guard %s starting (source %s, backend %s)", getVersion(), config.Source.Type, config.Enforcement.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Stopping conn-guard...")
		cancel()
	}()

	var metrics *client.PrometheusMetrics
	if config.Metrics.Enabled {
		exporter := alert.NewPrometheusExporter(config.Metrics.Port, logger)
		metrics = exporter.GetMetrics()
		go func() {
			if err := exporter.Start(ctx); err != nil {
				logger.Errorf("Prometheus exporter error: %v", err)
			}
		}()
	}

	var store *storage.Storage
	if config.API.Enabled {
		store = storage.NewStorage(config.API.MaxAlerts, config.API.MaxReports, logger)
	}

	svc, err := buildService(config, metrics, store, logger)
	if err != nil {
		return err
	}
	defer svc.close(logger)

	firstID := uint64(1)
	if svc.ledger != nil {
		last, err := svc.ledger.LastWindowID()
		if err != nil {
			logger.Warnf("Failed to read last window id from ledger: %v", err)
		}
		firstID = last + 1
	}

	if store != nil {
		var history api.EnforcementHistory
		if svc.ledger != nil {
			history = svc.ledger
		}
		server := api.NewServer(config.API.Port, store, history, logger)
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Errorf("API server error: %v", err)
			}
		}()
	}

	svc.dispatcher.Start()

	if err := svc.runner.Run(ctx, config.Run.Iterations, config.Run.Interval, firstID); err != nil {
		logger.Errorf("Run stopped: %v", err)
		return err
	}

	logger.Info("conn-guard finished")
	return nil
}

func parseOnce(config *utils.Config) error {
	config.Alerting.Channels = utils.AlertChannelsYAML{Log: true}
	config.Report.CSVPath = ""
	config.Enforcement.LedgerPath = ""

	logger := utils.NewLoggerFromConfig(utils.LoggingConfig{Level: config.Logging.Level, Format: config.Logging.Format})

	svc, err := buildService(config, nil, nil, logger)
	if err != nil {
		return err
	}
	defer svc.close(logger)

	svc.dispatcher.Start()

	rep, err := svc.runner.RunWindow(context.Background(), 1)
	if err != nil {
		return err
	}

	return report.WriteCSV(os.Stdout, rep)
}
