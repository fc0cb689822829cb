package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	Betting BettingConfig `yaml:"betting"`
	Awards  AwardsConfig  `yaml:"awards"`
	Riot    RiotConfig    `yaml:"riot"`
	Discord DiscordConfig `yaml:"discord"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// MonitorConfig controla los intervalos de sondeo y la elegibilidad de partidas.
type MonitorConfig struct {
	PresenceIntervalSeconds int   `yaml:"presence_interval_seconds"`
	StartIntervalSeconds    int   `yaml:"start_interval_seconds"`
	ActiveIntervalSeconds   int   `yaml:"active_interval_seconds"`
	FetchRetries            int   `yaml:"fetch_retries"`
	FetchBackoffSeconds     int   `yaml:"fetch_backoff_seconds"`
	MinPresent              int   `yaml:"min_present"`
	MinDurationMinutes      int   `yaml:"min_duration_minutes"`
	EligibleQueues          []int `yaml:"eligible_queues"` // vacío = todas
}

// BettingConfig controla la colocación de apuestas.
type BettingConfig struct {
	MinBet           int64              `yaml:"min_bet"`
	MaxWindowMinutes int                `yaml:"max_window_minutes"`
	BaseOdds         map[string]float64 `yaml:"base_odds"` // overrides por evento
}

// AwardsConfig son los umbrales absolutos de los criterios de blunder.
// Cero usa el default de producción.
type AwardsConfig struct {
	MaxKDA        float64 `yaml:"max_kda"`
	DeathsOver    int     `yaml:"deaths_over"`
	KillPartUnder float64 `yaml:"kill_part_under"`
	VisionUnder   int     `yaml:"vision_under"`
}

// RiotConfig apunta el client de datos de juego a la plataforma correcta.
// La API key se toma de RIOT_API_KEY, nunca del YAML.
type RiotConfig struct {
	Platform string `yaml:"platform"` // euw1, na1...
	Region   string `yaml:"region"`   // europe, americas...
	APIKey   string `yaml:"-"`
}

// DiscordConfig es el cableado del bot: token por DISCORD_TOKEN y, por guild,
// el canal de anuncios y los jugadores rastreados (id de Discord → puuid).
type DiscordConfig struct {
	Token  string                 `yaml:"-"`
	Guilds map[string]GuildConfig `yaml:"guilds"`
}

// GuildConfig es la configuración de un guild.
type GuildConfig struct {
	ChannelID string            `yaml:"channel_id"`
	Players   map[string]string `yaml:"players"`
}

// StorageConfig selecciona el driver del ledger.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite (default) | postgres
	DSN    string `yaml:"dsn"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML para las keys que correspondan.
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

// GuildIDs devuelve los guilds configurados, uno por monitor.
func (c *Config) GuildIDs() []string {
	ids := make([]string, 0, len(c.Discord.Guilds))
	for id := range c.Discord.Guilds {
		ids = append(ids, id)
	}
	return ids
}

// PresenceInterval devuelve el intervalo de sondeo de presencia.
func (c *MonitorConfig) PresenceInterval() time.Duration {
	return time.Duration(c.PresenceIntervalSeconds) * time.Second
}

// StartInterval devuelve el intervalo de sondeo de inicio de partida.
func (c *MonitorConfig) StartInterval() time.Duration {
	return time.Duration(c.StartIntervalSeconds) * time.Second
}

// ActiveInterval devuelve el intervalo de sondeo de fin de partida.
func (c *MonitorConfig) ActiveInterval() time.Duration {
	return time.Duration(c.ActiveIntervalSeconds) * time.Second
}

// FetchBackoff devuelve la espera fija entre intentos de fetch del registro.
func (c *MonitorConfig) FetchBackoff() time.Duration {
	return time.Duration(c.FetchBackoffSeconds) * time.Second
}

// MinDuration devuelve la duración mínima de una partida elegible.
func (c *MonitorConfig) MinDuration() time.Duration {
	return time.Duration(c.MinDurationMinutes) * time.Minute
}

// MaxWindow devuelve la ventana de colocación de apuestas.
func (c *BettingConfig) MaxWindow() time.Duration {
	return time.Duration(c.MaxWindowMinutes) * time.Minute
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RIOT_API_KEY"); v != "" {
		cfg.Riot.APIKey = v
	}
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
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
	if cfg.Monitor.PresenceIntervalSeconds <= 0 {
		cfg.Monitor.PresenceIntervalSeconds = 60
	}
	if cfg.Monitor.StartIntervalSeconds <= 0 {
		cfg.Monitor.StartIntervalSeconds = 120
	}
	if cfg.Monitor.ActiveIntervalSeconds <= 0 {
		cfg.Monitor.ActiveIntervalSeconds = 30
	}
	if cfg.Monitor.FetchRetries <= 0 {
		cfg.Monitor.FetchRetries = 3
	}
	if cfg.Monitor.FetchBackoffSeconds <= 0 {
		cfg.Monitor.FetchBackoffSeconds = 30
	}
	if cfg.Monitor.MinPresent < 2 {
		cfg.Monitor.MinPresent = 2
	}
	if cfg.Monitor.MinDurationMinutes <= 0 {
		cfg.Monitor.MinDurationMinutes = 10
	}
	if cfg.Betting.MinBet <= 0 {
		cfg.Betting.MinBet = 5
	}
	if cfg.Betting.MaxWindowMinutes <= 0 {
		cfg.Betting.MaxWindowMinutes = 5
	}
	if cfg.Riot.Platform == "" {
		cfg.Riot.Platform = "euw1"
	}
	if cfg.Riot.Region == "" {
		cfg.Riot.Region = "europe"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "gambot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
