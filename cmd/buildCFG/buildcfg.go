package buildCFG

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
)

type ServerConfig struct {
	Port string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

type OracleConfig struct {
	Endpoint string
	APIKey   string
}

type AuthConfig struct {
	PasswordHash string
	SessionTTL   time.Duration
}

type PhotoConfig struct {
	Dir     string
	BaseURL string
}

type MailConfig struct {
	Host      string
	Port      string
	From      string
	Password  string
	Organizer string
}

// env returns the environment override for secrets that must not live in
// config.yaml.
func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
	}
	log.Info().Str("port", port).Msg("server config loaded")
	return ServerConfig{Port: port}
}

// StorageMode selects the repository backend: "postgres" or "memory".
func StorageMode(cfg *config.Config) string {
	mode := env("STORAGE_MODE", cfg.GetString("storage.mode"))
	if mode == "" {
		mode = "postgres"
	}
	return mode
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	host := cfg.GetString("database.host")
	port := cfg.GetString("database.port")
	user := cfg.GetString("database.user")
	name := cfg.GetString("database.name")
	password := env("DB_PASSWORD", cfg.GetString("database.password"))
	if host == "" || user == "" || name == "" {
		return "", nil, nil, fmt.Errorf("database config incomplete")
	}
	masterDSN := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: time.Duration(cfg.GetInt("database.conn_max_lifetime_sec")) * time.Second,
	}
	log.Info().Str("host", host).Str("db", name).Msg("database config loaded")
	return masterDSN, nil, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	url := env("RABBIT_URL", cfg.GetString("rabbit.url"))
	if url == "" {
		return RabbitConfig{}, fmt.Errorf("rabbit url is not configured")
	}
	rc := RabbitConfig{
		Url:      url,
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Exchange == "" {
		rc.Exchange = "gatecheck.delayed"
	}
	if rc.Queue == "" {
		rc.Queue = "gatecheck.sweep"
	}
	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("rabbit config loaded")
	return rc, nil
}

func BuildOracleConfig(cfg *config.Config) OracleConfig {
	return OracleConfig{
		Endpoint: cfg.GetString("oracle.endpoint"),
		APIKey:   env("ORACLE_API_KEY", cfg.GetString("oracle.api_key")),
	}
}

func BuildAuthConfig(cfg *config.Config) (AuthConfig, error) {
	hash := env("ORGANIZER_PASSWORD_HASH", cfg.GetString("auth.password_hash"))
	if hash == "" {
		return AuthConfig{}, fmt.Errorf("organizer password hash is not configured")
	}
	ttl := time.Duration(cfg.GetInt("auth.session_ttl_min")) * time.Minute
	if ttl == 0 {
		ttl = 12 * time.Hour
	}
	return AuthConfig{PasswordHash: hash, SessionTTL: ttl}, nil
}

func BuildPhotoConfig(cfg *config.Config) PhotoConfig {
	pc := PhotoConfig{
		Dir:     cfg.GetString("photos.dir"),
		BaseURL: cfg.GetString("photos.base_url"),
	}
	if pc.Dir == "" {
		pc.Dir = "./data/photos"
	}
	if pc.BaseURL == "" {
		pc.BaseURL = "/photos"
	}
	return pc
}

func BuildMailConfig(cfg *config.Config) MailConfig {
	return MailConfig{
		Host:      cfg.GetString("mail.host"),
		Port:      cfg.GetString("mail.port"),
		From:      cfg.GetString("mail.from"),
		Password:  env("MAIL_PASSWORD", cfg.GetString("mail.password")),
		Organizer: cfg.GetString("mail.organizer"),
	}
}
