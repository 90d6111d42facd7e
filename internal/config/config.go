package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

const (
	DriverBigtable = "bigtable"
	DriverPostgres = "postgres"
)

var (
	ErrUnknownDriver          = errors.New("unknown storage driver")
	ErrInvalidShortCodeLength = errors.New("short code length must be positive")
	ErrMissingBigtableTarget  = errors.New("bigtable project and instance are required")
)

type Config struct {
	Env             string `yaml:"env"`
	ShortCodeLength int    `yaml:"short_code_length"`
	ShortURLBase    string `yaml:"short_url_base"`
	HTTPServer      `yaml:"http_server"`
	Storage         `yaml:"storage"`
	Bigtable        `yaml:"bigtable"`
	Postgres        `yaml:"postgres"`
	OAuth2          `yaml:"oauth2"`
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:           8080,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   10 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// Storage selects the record store backend.
type Storage struct {
	Driver    string        `yaml:"driver"`
	OpTimeout time.Duration `yaml:"op_timeout"`
}

var defaultStorage = Storage{
	Driver:    DriverBigtable,
	OpTimeout: 5 * time.Second,
}

type Bigtable struct {
	Project      string `yaml:"project"`
	Instance     string `yaml:"instance"`
	Table        string `yaml:"table"`
	AppProfile   string `yaml:"app_profile"`
	EmulatorHost string `yaml:"emulator_host"`
	CreateTable  bool   `yaml:"create_table"`
}

var defaultBigtable = Bigtable{
	Table: "team2_url_shortener",
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type OAuth2 struct {
	Google OAuth2Client `yaml:"google"`
	GitHub OAuth2Client `yaml:"github"`
}

// OAuth2Client is a client registration. A client without an id is disabled.
type OAuth2Client struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

func (c *OAuth2Client) Enabled() bool {
	return c.ClientID != ""
}

// Load reads the YAML config at path. ${VAR} references are expanded from
// the environment before decoding.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read config file: %w", op, err)
	}

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.ShortCodeLength <= 0 {
		return ErrInvalidShortCodeLength
	}

	switch cfg.Storage.Driver {
	case DriverBigtable:
		if cfg.Bigtable.Project == "" || cfg.Bigtable.Instance == "" {
			return ErrMissingBigtableTarget
		}
	case DriverPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Storage.Driver)
	}

	return nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.ShortCodeLength = 7
	cfg.ShortURLBase = "http://localhost:8080"
	cfg.HTTPServer = defaultHTTPServer
	cfg.Storage = defaultStorage
	cfg.Bigtable = defaultBigtable
	cfg.Postgres = defaultPostgres
}
