package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del engine.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Chain    ChainConfig    `yaml:"chain"`
	Market   MarketConfig   `yaml:"market"`
	Risk     RiskConfig     `yaml:"risk"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// AppConfig controla el servidor HTTP y los intervalos de mantenimiento.
type AppConfig struct {
	Port                   int `yaml:"port"`
	CacheTTLSeconds        int `yaml:"cache_ttl_seconds"`
	PruneIntervalSeconds   int `yaml:"prune_interval_seconds"`
	BalanceIntervalSeconds int `yaml:"balance_interval_seconds"`
}

// ChainConfig contiene el RPC de Polygon y las credenciales del wallet.
type ChainConfig struct {
	RPCURL        string `yaml:"rpc_url"`
	PrivateKey    string `yaml:"private_key"`
	WalletAddress string `yaml:"wallet_address"`
	AllowlistPath string `yaml:"allowlist_path"`
}

// MarketConfig contiene los endpoints de los feeds de datos.
type MarketConfig struct {
	CLOBWsURL            string `yaml:"clob_ws_url"`
	GammaBase            string `yaml:"gamma_base"`
	PredictionDataURL    string `yaml:"predictiondata_url"`
	PredictionDataAPIKey string `yaml:"predictiondata_api_key"`
}

// RiskConfig controla el sizing y los umbrales de alerta.
type RiskConfig struct {
	EdgeThreshold  float64 `yaml:"edge_threshold"`
	KellyFraction  float64 `yaml:"kelly_fraction"`
	MaxTradeUsd    float64 `yaml:"max_trade_usd"`
	MaxExposureUsd float64 `yaml:"max_exposure_usd"`
	DrawdownAlert  float64 `yaml:"drawdown_alert"`
}

// TelegramConfig contiene las credenciales del bot de notificaciones.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML para las keys sensibles.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// CacheTTL devuelve el TTL de mercados trackeados como time.Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.App.CacheTTLSeconds) * time.Second
}

// PruneInterval devuelve cada cuánto se barren mercados stale.
func (c *Config) PruneInterval() time.Duration {
	return time.Duration(c.App.PruneIntervalSeconds) * time.Second
}

// BalanceInterval devuelve cada cuánto se registra el balance del wallet.
func (c *Config) BalanceInterval() time.Duration {
	return time.Duration(c.App.BalanceIntervalSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
// Las credenciales nunca deberían vivir en el YAML versionado.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALCHEMY_RPC"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := os.Getenv("WALLET_ADDRESS"); v != "" {
		cfg.Chain.WalletAddress = v
	}
	if v := os.Getenv("PREDICTIONDATA_API_KEY"); v != "" {
		cfg.Market.PredictionDataAPIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.App.Port <= 0 {
		cfg.App.Port = 8080
	}
	if cfg.App.CacheTTLSeconds <= 0 {
		cfg.App.CacheTTLSeconds = 3600
	}
	if cfg.App.PruneIntervalSeconds <= 0 {
		cfg.App.PruneIntervalSeconds = 300
	}
	if cfg.App.BalanceIntervalSeconds <= 0 {
		cfg.App.BalanceIntervalSeconds = 30
	}
	if cfg.Market.GammaBase == "" {
		cfg.Market.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Risk.EdgeThreshold <= 0 {
		cfg.Risk.EdgeThreshold = 0.02
	}
	if cfg.Risk.KellyFraction <= 0 {
		cfg.Risk.KellyFraction = 0.5
	}
	if cfg.Risk.MaxTradeUsd <= 0 {
		cfg.Risk.MaxTradeUsd = 50
	}
	if cfg.Risk.MaxExposureUsd <= 0 {
		cfg.Risk.MaxExposureUsd = 2000
	}
	if cfg.Risk.DrawdownAlert <= 0 {
		cfg.Risk.DrawdownAlert = 0.10
	}
	if cfg.Chain.AllowlistPath == "" {
		cfg.Chain.AllowlistPath = "config/approved-destinations.json"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyedge.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
