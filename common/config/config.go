package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s
}

func loadEnvUint(key string, result *uint) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = uint(n)
}

func loadEnvInt(key string, result *int) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = n
}

func loadEnvBool(key string, result *bool) {
	s, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	switch s {
	case "1", "true", "yes", "y", "TRUE", "True":
		*result = true
	case "0", "false", "no", "n", "FALSE", "False":
		*result = false
	}
}

/* Configuration */

/* Google Sheets Configuration */
type SheetsConfig struct {
	CredentialsFile string `json:"credentials_file"`
	SpreadsheetID   string `json:"spreadsheet_id"`
	SheetName       string `json:"sheet_name"`
	ReportPrefix    string `json:"report_prefix"`
}

func defaultSheetsConfig() SheetsConfig {
	return SheetsConfig{
		CredentialsFile: "credentials.json",
		SpreadsheetID:   "",
		SheetName:       "seguimiento",
		ReportPrefix:    "Informe_",
	}
}

func (s *SheetsConfig) loadFromEnv() {
	loadEnvString("GOOGLE_APPLICATION_CREDENTIALS", &s.CredentialsFile)
	loadEnvString("SPREADSHEET_ID", &s.SpreadsheetID)
	loadEnvString("SHEET_NAME", &s.SheetName)
	loadEnvString("DAILY_REPORT_PREFIX", &s.ReportPrefix)
}

/* Scraper Configuration */
type ScraperConfig struct {
	TrackingURL    string `json:"tracking_url"`
	Headless       bool   `json:"headless"`
	BlockResources bool   `json:"block_resources"`
	SlowMoMs       uint   `json:"slow_mo_ms"`
	UserAgent      string `json:"user_agent"`
	Locale         string `json:"locale"`
	Timezone       string `json:"timezone"`
}

func defaultScraperConfig() ScraperConfig {
	return ScraperConfig{
		TrackingURL:    "https://interrapidisimo.com/sigue-tu-envio/",
		Headless:       true,
		BlockResources: true,
		SlowMoMs:       0,
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		Locale:         "es-ES",
		Timezone:       "America/Bogota",
	}
}

func (s *ScraperConfig) loadFromEnv() {
	loadEnvString("TRACKING_URL", &s.TrackingURL)
	loadEnvBool("HEADLESS", &s.Headless)
	loadEnvBool("BLOCK_RESOURCES", &s.BlockResources)
	loadEnvUint("SLOW_MO_MS", &s.SlowMoMs)
	loadEnvString("SCRAPER_USER_AGENT", &s.UserAgent)
	loadEnvString("SCRAPER_LOCALE", &s.Locale)
	loadEnvString("TZ", &s.Timezone)
}

/* Status Dictionary Configuration */
type DictionaryConfig struct {
	VendorMapPath  string `json:"vendor_map_path"`
	CarrierMapPath string `json:"carrier_map_path"`
}

func defaultDictionaryConfig() DictionaryConfig {
	return DictionaryConfig{
		VendorMapPath:  "data/dropi_map.json",
		CarrierMapPath: "data/interrapidisimo_map.json",
	}
}

func (d *DictionaryConfig) loadFromEnv() {
	loadEnvString("DROPI_MAP_PATH", &d.VendorMapPath)
	loadEnvString("INTER_MAP_PATH", &d.CarrierMapPath)
}

/* PgSQL Configuration (optional run-history store) */
type PgSqlConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Database string `json:"database"`
	SslMode  string `json:"ssl_mode"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (p PgSqlConfig) ConnStr() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s", p.Host, p.Port, p.User, p.Password, p.Database, p.SslMode)
}

// Enabled reports whether a run-history database has been configured.
func (p PgSqlConfig) Enabled() bool {
	return p.Host != ""
}

func defaultPgSql() PgSqlConfig {
	return PgSqlConfig{
		Host:     "",
		Port:     5432,
		Database: "tracking",
		User:     "",
		Password: "",
		SslMode:  "disable",
	}
}

func (p *PgSqlConfig) loadFromEnv() {
	loadEnvString("POSTGRES_HOST", &p.Host)
	loadEnvUint("POSTGRES_PORT", &p.Port)
	loadEnvString("POSTGRES_DB_NAME", &p.Database)
	loadEnvString("POSTGRES_SSLMODE", &p.SslMode)
	loadEnvString("POSTGRES_USERNAME", &p.User)
	loadEnvString("POSTGRES_PASSWORD", &p.Password)
}

/* Redis Configuration (optional status cache) */
type RedisConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	TTL      time.Duration
}

func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:     "",
		Port:     6379,
		Password: "",
		DB:       0,
		TTL:      6 * time.Hour,
	}
}

func (r *RedisConfig) loadFromEnv() {
	loadEnvString("REDIS_HOST", &r.Host)
	loadEnvUint("REDIS_PORT", &r.Port)
	loadEnvString("REDIS_PASSWORD", &r.Password)
	loadEnvInt("REDIS_DB", &r.DB)

	var ttlMinutes int
	loadEnvInt("REDIS_STATUS_TTL_MINUTES", &ttlMinutes)
	if ttlMinutes > 0 {
		r.TTL = time.Duration(ttlMinutes) * time.Minute
	}
}

/* GCS Configuration (optional report upload) */
type GCSConfig struct {
	ProjectID       string
	CredentialsFile string
	Bucket          string
}

func (g GCSConfig) Enabled() bool {
	return g.Bucket != ""
}

func (g *GCSConfig) loadFromEnv() {
	g.ProjectID = getEnv("GCS_PROJECT_ID", "")
	g.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", "")
	g.Bucket = getEnv("GCS_REPORT_BUCKET", "")
}

func defaultGcsConfig() GCSConfig {
	return GCSConfig{
		ProjectID:       "",
		CredentialsFile: "",
		Bucket:          "",
	}
}

/* Logging Configuration */
type LogConfig struct {
	File  string `json:"file"`
	Level string `json:"level"`
}

func defaultLogConfig() LogConfig {
	return LogConfig{
		File:  "",
		Level: "info",
	}
}

func (l *LogConfig) loadFromEnv() {
	loadEnvString("LOG_FILE", &l.File)
	loadEnvString("LOG_LEVEL", &l.Level)
}

type Config struct {
	Sheets     SheetsConfig
	Scraper    ScraperConfig
	Dictionary DictionaryConfig
	PgSql      PgSqlConfig
	Redis      RedisConfig
	GCS        GCSConfig
	Log        LogConfig
}

func (c *Config) LoadFromEnv() {
	c.Sheets.loadFromEnv()
	c.Scraper.loadFromEnv()
	c.Dictionary.loadFromEnv()
	c.PgSql.loadFromEnv()
	c.Redis.loadFromEnv()
	c.GCS.loadFromEnv()
	c.Log.loadFromEnv()
}

func DefaultConfig() Config {
	return Config{
		Sheets:     defaultSheetsConfig(),
		Scraper:    defaultScraperConfig(),
		Dictionary: defaultDictionaryConfig(),
		PgSql:      defaultPgSql(),
		Redis:      defaultRedisConfig(),
		GCS:        defaultGcsConfig(),
		Log:        defaultLogConfig(),
	}
}
