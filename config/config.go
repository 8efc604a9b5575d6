package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps values that parse but make no sense.
var ErrInvalidConfig = errors.New("invalid config")

// Config es la configuración completa de polypnl.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Report   ReportConfig   `yaml:"report"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	DataBase       string `yaml:"data_base"`
	CLOBBase       string `yaml:"clob_base"`
	GammaBase      string `yaml:"gamma_base"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
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

// LedgerConfig ajusta el replay. Los importes van como string para no
// perder precisión.
type LedgerConfig struct {
	Dust                  string `yaml:"dust"`                     // cantidad tratada como cero
	ConversionMinUnitCost string `yaml:"conversion_min_unit_cost"` // coste medio mínimo de la fuente de una CONVERSION
}

// ReportConfig controla el reporte.
type ReportConfig struct {
	Timezone   string `yaml:"timezone"`    // IANA, para cortes diarios
	TopMarkets int    `yaml:"top_markets"` // 0 = todos
	Period     string `yaml:"period"`      // ALL | 1D | 1W | 1M
	Table      bool   `yaml:"table"`
	Format     string `yaml:"format"` // text | json
}

// AnalyzerConfig controla la orquestación.
type AnalyzerConfig struct {
	Wallets []string `yaml:"wallets"`
	Workers int      `yaml:"workers"` // 0 = NumCPU
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
// Un path vacío arranca solo con defaults y entorno.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Timeout devuelve el timeout HTTP como time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// Location devuelve la zona horaria del reporte.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Dust devuelve el umbral de polvo como decimal.
func (c *Config) Dust() decimal.Decimal {
	return decimal.RequireFromString(c.Ledger.Dust)
}

// ConversionMinUnitCost devuelve el umbral de fuente de conversión.
func (c *Config) ConversionMinUnitCost() decimal.Decimal {
	return decimal.RequireFromString(c.Ledger.ConversionMinUnitCost)
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLYPNL_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("POLYPNL_WALLETS"); v != "" {
		cfg.Analyzer.Wallets = SplitWallets(v)
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 15
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polypnl.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Ledger.Dust == "" {
		cfg.Ledger.Dust = "0.000000001"
	}
	if cfg.Ledger.ConversionMinUnitCost == "" {
		cfg.Ledger.ConversionMinUnitCost = "0.90"
	}
	if cfg.Report.Timezone == "" {
		cfg.Report.Timezone = "UTC"
	}
	if cfg.Report.Period == "" {
		cfg.Report.Period = "ALL"
	}
	if cfg.Report.Format == "" {
		cfg.Report.Format = "text"
	}
}

func (c *Config) validate() error {
	for name, v := range map[string]string{
		"ledger.dust":                     c.Ledger.Dust,
		"ledger.conversion_min_unit_cost": c.Ledger.ConversionMinUnitCost,
	} {
		d, err := decimal.NewFromString(v)
		if err != nil || !d.IsPositive() {
			return fmt.Errorf("%w: %s must be a positive decimal, got %q", ErrInvalidConfig, name, v)
		}
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("%w: report.timezone %q: %v", ErrInvalidConfig, c.Report.Timezone, err)
	}
	switch c.Report.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: report.format must be text or json, got %q", ErrInvalidConfig, c.Report.Format)
	}
	return nil
}

// SplitWallets parte una lista separada por comas, ignorando vacíos.
func SplitWallets(s string) []string {
	var out []string
	for _, w := range strings.Split(s, ",") {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, strings.ToLower(w))
		}
	}
	return out
}
