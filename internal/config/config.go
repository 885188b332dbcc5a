package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/epgnorm/internal/category"
	"github.com/snapetech/epgnorm/internal/iptvorg"
	"github.com/snapetech/epgnorm/internal/window"
	"github.com/snapetech/epgnorm/internal/xmltv"
)

// Prefix is prepended to every variable name.
const Prefix = "EPGNORM_"

// Config holds source, pipeline, refresh and serve settings.
// Load from env; call LoadEnvFile(".env") first to use a .env file.
type Config struct {
	// Sources. URL wins over FILE when both are set.
	XMLTVURL  string
	XMLTVFile string
	M3UURL    string
	M3UFile   string
	// iptv-org directory
	IPTVOrgEnabled   bool
	IPTVOrgBaseURL   string
	IPTVOrgLanguages []string
	IPTVOrgCountries []string

	// Pipeline
	Parser         string // "structural" | "scan"
	Correlator     string // "exact" | "fuzzy"
	CapPerChannel  int    // <= 0 = unlimited
	MaxPrograms    int    // 0 = unlimited
	SortByStart    bool
	PastHorizon    string // duration, or "unbounded"
	FutureHorizon  string
	NaiveTZ        string // zone for timestamps without an offset; "local" = host zone
	DisplayTZ      string
	UnknownChannel string
	CategorySource string // "category" | "description" | "auto"
	LogoCountry    string
	LogoSuffix     string
	PreferLangs    string // comma-separated BCP 47 tags for multi-language text nodes
	AliasFile      string // epglink alias overrides (JSON)
	FailOnEmpty    bool

	// Fetch
	FetchTimeout    time.Duration
	MaxBytes        int64
	RateLimit       float64 // requests per second per host; 0 = unpaced
	HostConcurrency int
	StateFile       string // conditional-GET validators; "" = in memory

	// Refresh / persistence / serve
	CacheTTL        time.Duration
	RefreshInterval time.Duration
	DBPath          string
	SnapshotPath    string
	Addr            string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load reads config from environment.
func Load() *Config {
	c := &Config{
		XMLTVURL:         os.Getenv(Prefix + "XMLTV_URL"),
		XMLTVFile:        os.Getenv(Prefix + "XMLTV_FILE"),
		M3UURL:           os.Getenv(Prefix + "M3U_URL"),
		M3UFile:          os.Getenv(Prefix + "M3U_FILE"),
		IPTVOrgEnabled:   getEnvBool(Prefix+"IPTVORG_ENABLED", false),
		IPTVOrgBaseURL:   getEnv(Prefix+"IPTVORG_BASE_URL", iptvorg.DefaultBaseURL),
		IPTVOrgLanguages: getEnvList(Prefix+"IPTVORG_LANGUAGES", iptvorg.DefaultLanguages),
		IPTVOrgCountries: getEnvList(Prefix+"IPTVORG_COUNTRIES", iptvorg.DefaultCountries),
		Parser:           getEnv(Prefix+"PARSER", "structural"),
		Correlator:       getEnv(Prefix+"CORRELATOR", "exact"),
		CapPerChannel:    getEnvInt(Prefix+"CAP_PER_CHANNEL", 10),
		MaxPrograms:      getEnvInt(Prefix+"MAX_PROGRAMS", 0),
		SortByStart:      getEnvBool(Prefix+"SORT_BY_START", false),
		PastHorizon:      getEnv(Prefix+"PAST_HORIZON", "0s"),
		FutureHorizon:    getEnv(Prefix+"FUTURE_HORIZON", "unbounded"),
		NaiveTZ:          getEnv(Prefix+"NAIVE_TZ", "local"),
		DisplayTZ:        getEnv(Prefix+"DISPLAY_TZ", "Europe/Paris"),
		UnknownChannel:   getEnv(Prefix+"UNKNOWN_CHANNEL", "Inconnu"),
		CategorySource:   getEnv(Prefix+"CATEGORY_SOURCE", "auto"),
		LogoCountry:      getEnv(Prefix+"LOGO_COUNTRY", "france"),
		LogoSuffix:       getEnv(Prefix+"LOGO_SUFFIX", "fr"),
		PreferLangs:      getEnv(Prefix+"PREFER_LANGS", "fr"),
		AliasFile:        os.Getenv(Prefix + "ALIAS_FILE"),
		FailOnEmpty:      getEnvBool(Prefix+"FAIL_ON_EMPTY", false),
		FetchTimeout:     getEnvDuration(Prefix+"FETCH_TIMEOUT", 120*time.Second),
		MaxBytes:         getEnvInt64(Prefix+"MAX_BYTES", 100<<20),
		RateLimit:        getEnvFloat(Prefix+"RATE_LIMIT", 2),
		HostConcurrency:  getEnvInt(Prefix+"HOST_CONCURRENCY", 2),
		StateFile:        os.Getenv(Prefix + "STATE_FILE"),
		CacheTTL:         getEnvDuration(Prefix+"CACHE_TTL", 6*time.Hour),
		RefreshInterval:  getEnvDuration(Prefix+"REFRESH_INTERVAL", time.Hour),
		DBPath:           os.Getenv(Prefix + "DB_PATH"),
		SnapshotPath:     os.Getenv(Prefix + "SNAPSHOT_PATH"),
		Addr:             getEnv(Prefix+"ADDR", ":3001"),
		LogLevel:         getEnv(Prefix+"LOG_LEVEL", "info"),
		LogFormat:        getEnv(Prefix+"LOG_FORMAT", "text"),
		LogFile:          os.Getenv(Prefix + "LOG_FILE"),
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 120 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 100 << 20
	}
	if c.HostConcurrency <= 0 {
		c.HostConcurrency = 2
	}
	return c
}

// GuideSource returns the XMLTV URL, else the XMLTV file, else "".
func (c *Config) GuideSource() string {
	if c.XMLTVURL != "" {
		return c.XMLTVURL
	}
	return c.XMLTVFile
}

// PlaylistSource returns the M3U URL, else the M3U file, else "".
func (c *Config) PlaylistSource() string {
	if c.M3UURL != "" {
		return c.M3UURL
	}
	return c.M3UFile
}

// Window parses the two horizons.
func (c *Config) Window() (window.Window, error) {
	past, err := window.ParseHorizon(c.PastHorizon)
	if err != nil {
		return window.Window{}, err
	}
	future, err := window.ParseHorizon(c.FutureHorizon)
	if err != nil {
		return window.Window{}, err
	}
	return window.Window{Past: past, Future: future}, nil
}

// NaiveZone resolves NAIVE_TZ.
func (c *Config) NaiveZone() (*time.Location, error) {
	return xmltv.ParseZone(c.NaiveTZ)
}

// DisplayZone resolves DISPLAY_TZ.
func (c *Config) DisplayZone() (*time.Location, error) {
	return xmltv.ParseZone(c.DisplayTZ)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.GuideSource() == "" && c.PlaylistSource() == "" && !c.IPTVOrgEnabled {
		errs = append(errs, fmt.Errorf("no source: set %sXMLTV_URL, %sXMLTV_FILE, %sM3U_URL, %sM3U_FILE or %sIPTVORG_ENABLED",
			Prefix, Prefix, Prefix, Prefix, Prefix))
	}
	switch strings.ToLower(c.Parser) {
	case "structural", "scan", "resilient":
	default:
		errs = append(errs, fmt.Errorf("%sPARSER: unknown %q", Prefix, c.Parser))
	}
	switch strings.ToLower(c.Correlator) {
	case "exact", "fuzzy":
	default:
		errs = append(errs, fmt.Errorf("%sCORRELATOR: unknown %q", Prefix, c.Correlator))
	}
	if _, err := c.Window(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.NaiveZone(); err != nil {
		errs = append(errs, fmt.Errorf("%sNAIVE_TZ: %w", Prefix, err))
	}
	if _, err := c.DisplayZone(); err != nil {
		errs = append(errs, fmt.Errorf("%sDISPLAY_TZ: %w", Prefix, err))
	}
	if _, err := category.ParseSource(c.CategorySource); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("%sRATE_LIMIT must be >= 0", Prefix))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated value; empty items are dropped.
func getEnvList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
