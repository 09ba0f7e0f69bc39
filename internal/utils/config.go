package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"conn-guard/internal/model"
)

type Config struct {
	Application ApplicationConfig `yaml:"application"`
	Source      SourceConfig      `yaml:"source"`
	Detection   DetectionConfig   `yaml:"detection"`
	Window      WindowConfig      `yaml:"window"`
	Enforcement EnforcementConfig `yaml:"enforcement"`
	Report      ReportConfig      `yaml:"report"`
	Rules       []model.Rule      `yaml:"rules"`
	RulesFile   string            `yaml:"rules_file,omitempty"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	API         APIConfig         `yaml:"api"`
	Run         RunConfig         `yaml:"run"`
}

type ApplicationConfig struct {
	Name string `yaml:"name"`
}

// SourceConfig selects where traffic lines come from
type SourceConfig struct {
	// Type is one of file, tail, kafka, hubble, pcap
	Type          string           `yaml:"type"`
	Path          string           `yaml:"path"`
	Delimiter     string           `yaml:"delimiter"`
	FromBeginning bool             `yaml:"from_beginning"`
	BufferSize    int              `yaml:"buffer_size"`
	Kafka         KafkaYAMLConfig  `yaml:"kafka"`
	Hubble        HubbleYAMLConfig `yaml:"hubble"`
}

type KafkaYAMLConfig struct {
	Brokers         []string `yaml:"brokers"`
	Topic           string   `yaml:"topic"`
	GroupID         string   `yaml:"group_id"`
	AutoOffsetReset string   `yaml:"auto_offset_reset"`
}

type HubbleYAMLConfig struct {
	Server     string   `yaml:"server"`
	Namespaces []string `yaml:"namespaces"`
}

type DetectionConfig struct {
	SuspiciousPorts PortSetConfig `yaml:"suspicious_ports"`
	MaxConnections  int           `yaml:"max_connections"`
}

// PortSetConfig describes a port set as ranges ("1-1023" or "8080") plus
// single ports, minus the excluded ones
type PortSetConfig struct {
	Ranges  []string `yaml:"ranges"`
	Ports   []int    `yaml:"ports"`
	Exclude []int    `yaml:"exclude"`
}

type WindowConfig struct {
	MaxRecords int           `yaml:"max_records"`
	Duration   time.Duration `yaml:"duration"`
}

type EnforcementConfig struct {
	// Backend is one of ufw, iptables, dry_run
	Backend    string        `yaml:"backend"`
	Chain      string        `yaml:"chain"`
	UseSudo    bool          `yaml:"use_sudo"`
	Timeout    time.Duration `yaml:"timeout"`
	LedgerPath string        `yaml:"ledger_path"`
}

type ReportConfig struct {
	CSVPath string `yaml:"csv_path"`
}

type AlertingConfig struct {
	Enabled            bool                   `yaml:"enabled"`
	MaxAlertsPerMinute int                    `yaml:"max_alerts_per_minute"`
	Cooldown           time.Duration          `yaml:"cooldown"`
	QueueSize          int                    `yaml:"queue_size"`
	Channels           AlertChannelsYAML      `yaml:"channels"`
	Telegram           TelegramYAMLConfig     `yaml:"telegram"`
	Email              EmailYAMLConfig        `yaml:"email"`
	Alertmanager       AlertmanagerYAMLConfig `yaml:"alertmanager"`
}

type AlertChannelsYAML struct {
	Log          bool `yaml:"log"`
	Telegram     bool `yaml:"telegram"`
	Email        bool `yaml:"email"`
	Alertmanager bool `yaml:"alertmanager"`
}

type TelegramYAMLConfig struct {
	BotToken        string `yaml:"bot_token"`
	ChatID          string `yaml:"chat_id"`
	ParseMode       string `yaml:"parse_mode"`
	MessageTemplate string `yaml:"message_template,omitempty"`
}

type EmailYAMLConfig struct {
	Host      string   `yaml:"host"`
	Port      int      `yaml:"port"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	From      string   `yaml:"from"`
	To        []string `yaml:"to"`
	OnlyTypes []string `yaml:"only_types"`
}

type AlertmanagerYAMLConfig struct {
	URL            string        `yaml:"url"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Port       string `yaml:"port"`
	MaxAlerts  int    `yaml:"max_alerts"`
	MaxReports int    `yaml:"max_reports"`
}

// RunConfig drives the run-loop. Iterations 0 runs until interrupted.
type RunConfig struct {
	Iterations int           `yaml:"iterations"`
	Interval   time.Duration `yaml:"interval"`
}

var sourceTypes = map[string]bool{
	"file":   true,
	"tail":   true,
	"kafka":  true,
	"hubble": true,
	"pcap":   true,
}

var backendTypes = map[string]bool{
	"ufw":      true,
	"iptables": true,
	"dry_run":  true,
}

// Validate fills defaults and rejects values the engine cannot run with
func (c *Config) Validate() error {
	if c.Application.Name == "" {
		c.Application.Name = "conn-guard"
	}

	if c.Source.Type == "" {
		c.Source.Type = "file"
	}
	if !sourceTypes[c.Source.Type] {
		return fmt.Errorf("unknown source type %q", c.Source.Type)
	}
	switch c.Source.Type {
	case "file", "tail", "pcap":
		if c.Source.Path == "" {
			return fmt.Errorf("source path is required for %s source", c.Source.Type)
		}
	case "hubble":
		if c.Source.Hubble.Server == "" {
			c.Source.Hubble.Server = "localhost:4245"
		}
	}
	if c.Source.Delimiter == "" {
		c.Source.Delimiter = ","
	}
	if c.Source.BufferSize <= 0 {
		c.Source.BufferSize = 1000
	}

	if c.Detection.MaxConnections < 0 {
		return fmt.Errorf("max_connections cannot be negative")
	}
	if c.Detection.MaxConnections == 0 {
		c.Detection.MaxConnections = 2
	}
	if err := c.validateRateOverride(); err != nil {
		return err
	}
	if _, err := c.Detection.SuspiciousPorts.PortSet(); err != nil {
		return fmt.Errorf("invalid suspicious_ports: %w", err)
	}

	if c.Window.MaxRecords < 0 {
		return fmt.Errorf("window max_records cannot be negative")
	}
	if c.Window.Duration < 0 {
		return fmt.Errorf("window duration cannot be negative")
	}
	// Streaming sources never reach EOF, so their windows need a bound
	if c.Source.Type != "file" && c.Source.Type != "pcap" && c.Window.MaxRecords == 0 && c.Window.Duration == 0 {
		c.Window.Duration = 10 * time.Second
	}

	if c.Enforcement.Backend == "" {
		c.Enforcement.Backend = "dry_run"
	}
	if !backendTypes[c.Enforcement.Backend] {
		return fmt.Errorf("unknown enforcement backend %q", c.Enforcement.Backend)
	}
	if c.Enforcement.Chain == "" {
		c.Enforcement.Chain = "INPUT"
	}
	if c.Enforcement.Timeout <= 0 {
		c.Enforcement.Timeout = 10 * time.Second
	}

	for i := range c.Rules {
		if c.Rules[i].Severity == "" {
			c.Rules[i].Severity = "MEDIUM"
		}
	}

	if c.Alerting.MaxAlertsPerMinute < 0 {
		return fmt.Errorf("max_alerts_per_minute cannot be negative")
	}
	if c.Alerting.QueueSize <= 0 {
		c.Alerting.QueueSize = 100
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Metrics.Port == "" {
		c.Metrics.Port = "8080"
	}
	if c.API.Port == "" {
		c.API.Port = "5001"
	}

	if c.Run.Iterations < 0 {
		return fmt.Errorf("run iterations cannot be negative")
	}
	if c.Run.Interval < 0 {
		return fmt.Errorf("run interval cannot be negative")
	}

	return nil
}

// validateRateOverride applies the detection.max_connections rules to a
// connection_rate thresholds.max_connections override. An override of 0 is
// dropped, so the rule falls back to detection.max_connections.
func (c *Config) validateRateOverride() error {
	rc, ok := c.GetRuleConfigByName("connection_rate")
	if !ok {
		return nil
	}
	v, ok := rc.Threshold("max_connections")
	if !ok {
		if _, set := rc.Thresholds["max_connections"]; set {
			return fmt.Errorf("rule connection_rate: max_connections must be a number")
		}
		return nil
	}
	if v < 0 {
		return fmt.Errorf("rule connection_rate: max_connections cannot be negative")
	}
	if v != math.Trunc(v) {
		return fmt.Errorf("rule connection_rate: max_connections must be a whole number")
	}
	if v == 0 {
		delete(rc.Thresholds, "max_connections")
	}
	return nil
}

// PortSet expands the configuration into the set the port rule checks
func (p PortSetConfig) PortSet() (model.PortSet, error) {
	ports := model.NewPortSet()

	for _, r := range p.Ranges {
		from, to, err := parsePortRange(r)
		if err != nil {
			return nil, err
		}
		for port := range model.PortRange(from, to) {
			ports[port] = struct{}{}
		}
	}

	for _, port := range p.Ports {
		if err := checkPort(port); err != nil {
			return nil, err
		}
		ports[port] = struct{}{}
	}

	for _, port := range p.Exclude {
		delete(ports, port)
	}

	return ports, nil
}

func parsePortRange(r string) (int, int, error) {
	lo, hi, found := strings.Cut(strings.TrimSpace(r), "-")
	from, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port range %q", r)
	}
	to := from
	if found {
		to, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid port range %q", r)
		}
	}
	if err := checkPort(from); err != nil {
		return 0, 0, err
	}
	if err := checkPort(to); err != nil {
		return 0, 0, err
	}
	if from > to {
		return 0, 0, fmt.Errorf("invalid port range %q: start after end", r)
	}
	return from, to, nil
}

func checkPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", port)
	}
	return nil
}

// GetRuleConfigByName returns the rule override with the given name
func (c *Config) GetRuleConfigByName(name string) (*model.Rule, bool) {
	for i := range c.Rules {
		if c.Rules[i].Name == name {
			return &c.Rules[i], true
		}
	}
	return nil, false
}

// GetDefaultConfig returns the reference policy: ports 1-1023 except 22, 80
// and 443 are suspicious, more than 2 connections per window is too many,
// and three windows are run five seconds apart
func GetDefaultConfig() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name: "conn-guard",
		},
		Source: SourceConfig{
			Type:       "file",
			Path:       "traffic.log",
			Delimiter:  ",",
			BufferSize: 1000,
			Hubble: HubbleYAMLConfig{
				Server: "localhost:4245",
			},
		},
		Detection: DetectionConfig{
			SuspiciousPorts: PortSetConfig{
				Ranges:  []string{"1-1023"},
				Exclude: []int{22, 80, 443},
			},
			MaxConnections: 2,
		},
		Enforcement: EnforcementConfig{
			Backend: "dry_run",
			Chain:   "INPUT",
			Timeout: 10 * time.Second,
		},
		Report: ReportConfig{
			CSVPath: "ip_report.csv",
		},
		Rules: []model.Rule{
			{
				Name:        "suspicious_port",
				Enabled:     true,
				Severity:    "HIGH",
				Description: "Connection to a port outside the allowed services",
			},
			{
				Name:        "connection_rate",
				Enabled:     true,
				Severity:    "CRITICAL",
				Description: "Too many connections from one source in a window",
			},
		},
		Alerting: AlertingConfig{
			Enabled:   true,
			QueueSize: 100,
			Channels: AlertChannelsYAML{
				Log: true,
			},
			Telegram: TelegramYAMLConfig{
				ParseMode: "HTML",
			},
			Email: EmailYAMLConfig{
				Port:      587,
				OnlyTypes: []string{model.DetectionKind_PORT_ANOMALY.String()},
			},
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{
			Port: "8080",
		},
		API: APIConfig{
			Port:       "5001",
			MaxAlerts:  10000,
			MaxReports: 100,
		},
		Run: RunConfig{
			Iterations: 3,
			Interval:   5 * time.Second,
		},
	}
}
