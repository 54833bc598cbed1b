// Package config handles process configuration: where the database is,
// how to reach the model, and the tunables of the prize engine.  It is
// shared by trzd and trzadmin.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/ts4z/trz/defaults"
	"github.com/ts4z/trz/extract"
	"github.com/ts4z/trz/paytable"
	"github.com/ts4z/trz/textutil"
)

var bindings = map[string][]string{
	"db_url":                {"TRZ_DB_URL", "DATABASE_URL"},
	"sql_connector":         {"TRZ_SQL_CONNECTOR"},
	"sqlite_path":           {"TRZ_SQLITE_PATH"},
	"listen_address":        {"TRZ_LISTEN_ADDRESS"},
	"allowed_origins":       {"TRZ_ALLOWED_ORIGINS"},
	"log_level":             {"TRZ_LOG_LEVEL"},
	"log_format":            {"TRZ_LOG_FORMAT"},
	"gemini_api_key":        {"TRZ_GEMINI_API_KEY", "GEMINI_API_KEY"},
	"gemini_model":          {"TRZ_GEMINI_MODEL"},
	"reference_slots":       {"TRZ_REFERENCE_SLOTS"},
	"estimated_lobby_kills": {"TRZ_ESTIMATED_LOBBY_KILLS"},
	"auto_profit_rate":      {"TRZ_AUTO_PROFIT_RATE"},
	"money_min":             {"TRZ_MONEY_MIN"},
	"money_max":             {"TRZ_MONEY_MAX"},
	"inter_call_delay":      {"TRZ_INTER_CALL_DELAY"},
	"ocr_delay":             {"TRZ_OCR_DELAY"},
	"rate_limit_calls":      {"TRZ_RATE_LIMIT_CALLS"},
	"rate_limit_window":     {"TRZ_RATE_LIMIT_WINDOW"},
	"time_zone":             {"TRZ_TIME_ZONE"},
	"report_cache_size":     {"TRZ_REPORT_CACHE_SIZE"},
	"settings_ttl":          {"TRZ_SETTINGS_TTL"},
}

func setDefaults() {
	viper.SetDefault("db_url", "")
	viper.SetDefault("sql_connector", "sqlite")
	viper.SetDefault("sqlite_path", "trz.db")
	viper.SetDefault("listen_address", ":8080")
	viper.SetDefault("allowed_origins", []string{"http://localhost:5173"})
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "console")
	viper.SetDefault("gemini_api_key", "")
	viper.SetDefault("gemini_model", extract.DefaultModel)
	viper.SetDefault("reference_slots", defaults.ReferenceSlots)
	viper.SetDefault("estimated_lobby_kills", defaults.EstimatedLobbyKills)
	viper.SetDefault("auto_profit_rate", defaults.AutoProfitRate.String())
	viper.SetDefault("money_min", textutil.DefaultMoneyPolicy.Min.String())
	viper.SetDefault("money_max", textutil.DefaultMoneyPolicy.Max.String())
	viper.SetDefault("inter_call_delay", 1300*time.Millisecond)
	viper.SetDefault("ocr_delay", 500*time.Millisecond)
	viper.SetDefault("rate_limit_calls", 5)
	viper.SetDefault("rate_limit_window", time.Minute)
	viper.SetDefault("time_zone", "America/Sao_Paulo")
	viper.SetDefault("report_cache_size", 256)
	viper.SetDefault("settings_ttl", 30*time.Second)
}

// Init loads .env if there is one, then ~/.trz.yaml, then the
// environment.  Missing files are not an error.
func Init() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("can't load .env")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	viper.SetConfigType("yaml")
	viper.SetConfigName(".trz")
	viper.AddConfigPath(home)
	viper.AutomaticEnv()
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := viper.BindEnv(args...); err != nil {
			log.Fatal().Err(err).Str("key", key).Msg("can't bind env")
		}
	}
	setDefaults()
	if err := viper.ReadInConfig(); err != nil {
		log.Debug().Err(err).Msg("no config file")
	}
	log.Info().
		Str("sql_connector", SQLConnector()).
		Str("listen_address", ListenAddress()).
		Bool("inference", GeminiAPIKey() != "").
		Msg("configuration loaded")
}

func DBURL() string {
	return viper.GetString("db_url")
}

func SQLConnector() string {
	return viper.GetString("sql_connector")
}

func SQLitePath() string {
	return viper.GetString("sqlite_path")
}

func ListenAddress() string {
	return viper.GetString("listen_address")
}

func AllowedOrigins() []string {
	return viper.GetStringSlice("allowed_origins")
}

func LogLevel() string {
	return viper.GetString("log_level")
}

// LogFormat is "console" or "json".
func LogFormat() string {
	return viper.GetString("log_format")
}

func GeminiAPIKey() string {
	return viper.GetString("gemini_api_key")
}

func GeminiModel() string {
	return viper.GetString("gemini_model")
}

func InterCallDelay() time.Duration {
	return viper.GetDuration("inter_call_delay")
}

func OCRDelay() time.Duration {
	return viper.GetDuration("ocr_delay")
}

func RateLimit() (calls int, window time.Duration) {
	return viper.GetInt("rate_limit_calls"), viper.GetDuration("rate_limit_window")
}

func ReportCacheSize() int {
	return viper.GetInt("report_cache_size")
}

func SettingsTTL() time.Duration {
	return viper.GetDuration("settings_ttl")
}

// Location is the zone used for default report labels.  An unknown zone
// falls back to UTC.
func Location() *time.Location {
	name := viper.GetString("time_zone")
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn().Err(err).Str("time_zone", name).Msg("unknown time zone, using UTC")
		return time.UTC
	}
	return loc
}

func decimalOr(key string, fallback decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(viper.GetString(key))
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("not a number, using default")
		return fallback
	}
	return d
}

// PrizePolicy is the scaling policy with any configured overrides.
func PrizePolicy() paytable.Policy {
	p := paytable.DefaultPolicy()
	if n := viper.GetInt("reference_slots"); n > 0 {
		p.ReferenceSlots = n
	}
	if n := viper.GetInt("estimated_lobby_kills"); n >= 0 {
		p.EstimatedLobbyKills = n
	}
	p.AutoProfitRate = decimalOr("auto_profit_rate", p.AutoProfitRate)
	return p
}

func MoneyPolicy() textutil.MoneyPolicy {
	return textutil.MoneyPolicy{
		Min: decimalOr("money_min", textutil.DefaultMoneyPolicy.Min),
		Max: decimalOr("money_max", textutil.DefaultMoneyPolicy.Max),
	}
}
