package utils

import (
	"fmt"
	"os"

	"conn-guard/internal/alert"
	"conn-guard/internal/client"
	"conn-guard/internal/enforcement"
	"conn-guard/internal/model"
	"conn-guard/internal/rules"
	"conn-guard/internal/rules/builtin"
	"conn-guard/internal/source"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML (or JSON) file over the default configuration.
// Rules from rules_file replace configured rules of the same name.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = "configs/conn_guard.yaml"
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", filename, err)
	}

	if config.RulesFile != "" {
		extra, err := rules.LoadRules(config.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules file %s: %w", config.RulesFile, err)
		}
		config.MergeRules(extra)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// MergeRules replaces rules with the same name and appends the others
func (c *Config) MergeRules(extra []model.Rule) {
	for _, rule := range extra {
		if existing, ok := c.GetRuleConfigByName(rule.Name); ok {
			*existing = rule
			continue
		}
		c.Rules = append(c.Rules, rule)
	}
}

// RegisterBuiltinRulesFromYAML registers the port and rate rules. A rule
// missing from the rules list is registered with its defaults; a listed rule
// that is disabled is skipped.
func RegisterBuiltinRulesFromYAML(engine *rules.Engine, config *Config, logger *logrus.Logger) error {
	ports, err := config.Detection.SuspiciousPorts.PortSet()
	if err != nil {
		return fmt.Errorf("invalid suspicious_ports: %w", err)
	}

	portRule := model.Rule{Name: "suspicious_port", Enabled: true, Severity: "HIGH"}
	if rc, ok := config.GetRuleConfigByName(portRule.Name); ok {
		portRule = *rc
	}
	if portRule.Enabled {
		engine.RegisterRule(builtin.NewSuspiciousPortRule(true, portRule.Severity, ports, logger))
		logger.Infof("Registered rule: %s (%d suspicious ports)", portRule.Name, ports.Len())
	}

	rateRule := model.Rule{Name: "connection_rate", Enabled: true, Severity: "CRITICAL"}
	if rc, ok := config.GetRuleConfigByName(rateRule.Name); ok {
		rateRule = *rc
	}
	if rateRule.Enabled {
		maxConnections := config.Detection.MaxConnections
		if v, ok := rateRule.Threshold("max_connections"); ok && v > 0 {
			maxConnections = int(v)
		}
		engine.RegisterRule(builtin.NewConnectionRateRule(true, rateRule.Severity, maxConnections, logger))
		logger.Infof("Registered rule: %s (max %d connections per window)", rateRule.Name, maxConnections)
	}

	for _, rc := range config.Rules {
		if rc.Name != portRule.Name && rc.Name != rateRule.Name {
			logger.Warnf("Unknown rule type: %s", rc.Name)
		}
	}

	return nil
}

// BuildSource creates the record source named by source.type
func BuildSource(config *Config, metrics *client.PrometheusMetrics, logger *logrus.Logger) (source.Source, error) {
	sc := config.Source

	switch sc.Type {
	case "file":
		return source.NewFileSource(sc.Path), nil
	case "tail":
		return source.NewTailSource(sc.Path, sc.FromBeginning, sc.BufferSize, logger), nil
	case "pcap":
		return source.NewPcapSource(sc.Path), nil
	case "kafka":
		kafkaSource, err := source.NewKafkaSource(source.KafkaConfig{
			Brokers:         sc.Kafka.Brokers,
			Topic:           sc.Kafka.Topic,
			GroupID:         sc.Kafka.GroupID,
			AutoOffsetReset: sc.Kafka.AutoOffsetReset,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("kafka source: %w", err)
		}
		return kafkaSource, nil
	case "hubble":
		hubbleClient, err := client.NewHubbleGRPCClient(sc.Hubble.Server, metrics, logger)
		if err != nil {
			return nil, err
		}
		return client.NewHubbleSource(hubbleClient, sc.Hubble.Namespaces, sc.BufferSize), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", sc.Type)
	}
}

func BuildBackend(config *Config, logger *logrus.Logger) (enforcement.Backend, error) {
	return enforcement.NewBackend(config.Enforcement.Backend, config.Enforcement.Chain, config.Enforcement.UseSudo, logger)
}

// BuildNotifiers creates the notifiers of the enabled alert channels
func BuildNotifiers(config *Config, logger *logrus.Logger) ([]alert.Notifier, error) {
	ac := config.Alerting
	notifiers := make([]alert.Notifier, 0)

	if !ac.Enabled {
		return notifiers, nil
	}

	if ac.Channels.Log {
		notifiers = append(notifiers, alert.NewLogAlertNotifier(logger))
	}

	if ac.Channels.Telegram {
		if ac.Telegram.BotToken == "" || ac.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram channel needs bot_token and chat_id")
		}
		notifiers = append(notifiers, alert.NewTelegramNotifierWithTemplate(
			ac.Telegram.BotToken,
			ac.Telegram.ChatID,
			ac.Telegram.ParseMode,
			true,
			ac.Telegram.MessageTemplate,
			logger,
		))
	}

	if ac.Channels.Email {
		emailNotifier, err := alert.NewEmailNotifier(alert.EmailConfig{
			Host:      ac.Email.Host,
			Port:      ac.Email.Port,
			Username:  ac.Email.Username,
			Password:  ac.Email.Password,
			From:      ac.Email.From,
			To:        ac.Email.To,
			OnlyTypes: ac.Email.OnlyTypes,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("email channel: %w", err)
		}
		notifiers = append(notifiers, emailNotifier)
	}

	if ac.Channels.Alertmanager {
		if ac.Alertmanager.URL == "" {
			return nil, fmt.Errorf("alertmanager channel needs url")
		}
		notifiers = append(notifiers, alert.NewAlertmanagerNotifier(ac.Alertmanager.URL, ac.Alertmanager.ResolveTimeout, logger))
	}

	return notifiers, nil
}

func DispatcherConfig(config *Config) alert.DispatcherConfig {
	return alert.DispatcherConfig{
		QueueSize:          config.Alerting.QueueSize,
		MaxAlertsPerMinute: config.Alerting.MaxAlertsPerMinute,
		Cooldown:           config.Alerting.Cooldown,
	}
}
