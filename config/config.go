package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Dispatch       DispatchConfig       `yaml:"dispatch"`
	RequestService RequestServiceConfig `yaml:"request_service"`
	Database       DatabaseConfig       `yaml:"database"`
	Push           PushConfig           `yaml:"push"`
	WorkerPool     WorkerPoolConfig     `yaml:"worker_pool"`
	Events         EventsConfig         `yaml:"events"`
	Auth           AuthConfig           `yaml:"auth"`
	Log            LogConfig            `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DispatchConfig controls the emergency dispatch monitor.
type DispatchConfig struct {
	CriticalThreshold      int              `yaml:"critical_threshold"`
	RecoveryThreshold      int              `yaml:"recovery_threshold"`
	InitialLevel           int              `yaml:"initial_level"`
	ResetLevel             int              `yaml:"reset_level"`
	PollIntervalSeconds    int              `yaml:"poll_interval_seconds"`
	PollInterval           time.Duration    `yaml:"-"`
	CompletionWindowMinute int              `yaml:"completion_window_minutes"`
	CompletionWindow       time.Duration    `yaml:"-"`
	ActivityLimit          int              `yaml:"activity_limit"`
	MaxRoadDistanceKm      float64          `yaml:"max_road_distance_km"`
	RoadFactor             float64          `yaml:"road_factor"`
	RequestType            string           `yaml:"request_type"`
	ManualLocation         string           `yaml:"manual_location"` // "synthesized" or "reported"
	Reference              LocationConfig   `yaml:"reference"`
	Candidates             []LocationConfig `yaml:"candidates"`
}

// LocationConfig is a labelled coordinate.
type LocationConfig struct {
	Lat     float64 `yaml:"lat"`
	Lng     float64 `yaml:"lng"`
	Address string  `yaml:"address"`
	Area    string  `yaml:"area"`
}

// RequestServiceConfig describes the external emergency request service.
type RequestServiceConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	HTTPProxy      string `yaml:"http_proxy"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// EventsConfig configures dispatch event publication.
type EventsConfig struct {
	NatsURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// AuthConfig configures bearer-token verification on the API.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Manual location sources.
const (
	ManualLocationSynthesized = "synthesized"
	ManualLocationReported    = "reported"
)

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("could not load .env file: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Decode over prefilled levels so an explicit 0 survives ApplyDefaults.
	cfg := prefilled()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REQUEST_SERVICE_TOKEN"); v != "" {
		cfg.RequestService.Token = v
	}
	if v := os.Getenv("REQUEST_SERVICE_URL"); v != "" {
		cfg.RequestService.BaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("VAPID_PUBLIC_KEY"); v != "" {
		cfg.Push.PublicKey = v
	}
	if v := os.Getenv("VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.PrivateKey = v
	}
}

// DefaultLevel is the default initial and reset tank level.
const DefaultLevel = 100

func prefilled() Config {
	return Config{Dispatch: DispatchConfig{InitialLevel: DefaultLevel, ResetLevel: DefaultLevel}}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := prefilled()
	ApplyDefaults(&cfg)
	return &cfg
}

// ApplyDefaults fills every unset field with its default value. Tank levels,
// where 0 is a valid setting, are not touched; Load and Default prefill them.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	d := &cfg.Dispatch
	if d.CriticalThreshold <= 0 {
		d.CriticalThreshold = 35
	}
	if d.RecoveryThreshold <= 0 {
		d.RecoveryThreshold = 50
	}
	if d.PollIntervalSeconds <= 0 {
		d.PollIntervalSeconds = 10
	}
	d.PollInterval = time.Duration(d.PollIntervalSeconds) * time.Second
	if d.CompletionWindowMinute <= 0 {
		d.CompletionWindowMinute = 10
	}
	d.CompletionWindow = time.Duration(d.CompletionWindowMinute) * time.Minute
	if d.ActivityLimit <= 0 {
		d.ActivityLimit = 5
	}
	if d.MaxRoadDistanceKm <= 0 {
		d.MaxRoadDistanceKm = 30
	}
	if d.RoadFactor <= 0 {
		d.RoadFactor = 1.3
	}
	if d.RequestType == "" {
		d.RequestType = "Emergency Water Supply"
	}
	if d.ManualLocation == "" {
		d.ManualLocation = ManualLocationSynthesized
	}
	if d.Reference == (LocationConfig{}) {
		d.Reference = DefaultReference
	}
	if len(d.Candidates) == 0 {
		d.Candidates = append([]LocationConfig(nil), DefaultCandidates...)
	}

	if cfg.RequestService.TimeoutSeconds <= 0 {
		cfg.RequestService.TimeoutSeconds = 30
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "dispatch"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate reports configuration combinations the service cannot run with.
func (c *Config) Validate() error {
	d := c.Dispatch
	if d.CriticalThreshold >= d.RecoveryThreshold {
		return fmt.Errorf("dispatch.critical_threshold (%d) must be below dispatch.recovery_threshold (%d)",
			d.CriticalThreshold, d.RecoveryThreshold)
	}
	if d.RecoveryThreshold > 100 || d.ResetLevel > 100 || d.InitialLevel > 100 {
		return fmt.Errorf("dispatch levels must not exceed 100")
	}
	if d.ResetLevel < 0 || d.InitialLevel < 0 {
		return fmt.Errorf("dispatch levels must not be negative")
	}
	if d.ManualLocation != ManualLocationSynthesized && d.ManualLocation != ManualLocationReported {
		return fmt.Errorf("dispatch.manual_location must be %q or %q, got %q",
			ManualLocationSynthesized, ManualLocationReported, d.ManualLocation)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

// DefaultReference is the depot the synthetic incident sites are measured from.
var DefaultReference = LocationConfig{Lat: 6.9271, Lng: 79.8612, Address: "Central Water Depot", Area: "Colombo"}

// DefaultCandidates is the built-in catalog of plausible incident sites.
// Negombo and Kandy lie beyond the default road-distance limit.
var DefaultCandidates = []LocationConfig{
	{Lat: 6.8511, Lng: 79.8659, Address: "Galle Road, Dehiwala", Area: "Dehiwala-Mount Lavinia"},
	{Lat: 6.8649, Lng: 79.8997, Address: "High Level Road, Nugegoda", Area: "Nugegoda"},
	{Lat: 6.8905, Lng: 79.9015, Address: "Parliament Road, Kotte", Area: "Sri Jayawardenepura Kotte"},
	{Lat: 6.8480, Lng: 79.9265, Address: "Old Road, Maharagama", Area: "Maharagama"},
	{Lat: 6.9553, Lng: 79.9220, Address: "Kandy Road, Kelaniya", Area: "Kelaniya"},
	{Lat: 6.7730, Lng: 79.8816, Address: "Galle Road, Moratuwa", Area: "Moratuwa"},
	{Lat: 6.8993, Lng: 79.9181, Address: "Pannipitiya Road, Battaramulla", Area: "Battaramulla"},
	{Lat: 6.9333, Lng: 79.9833, Address: "Avissawella Road, Kaduwela", Area: "Kaduwela"},
	{Lat: 7.2008, Lng: 79.8737, Address: "Main Street, Negombo", Area: "Negombo"},
	{Lat: 7.2906, Lng: 80.6337, Address: "Dalada Veediya, Kandy", Area: "Kandy"},
}
