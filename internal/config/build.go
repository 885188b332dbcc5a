package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/snapetech/epgnorm/internal/category"
	"github.com/snapetech/epgnorm/internal/epglink"
	"github.com/snapetech/epgnorm/internal/fetch"
	"github.com/snapetech/epgnorm/internal/httpclient"
	"github.com/snapetech/epgnorm/internal/iptvorg"
	"github.com/snapetech/epgnorm/internal/logo"
	"github.com/snapetech/epgnorm/internal/pipeline"
	"github.com/snapetech/epgnorm/internal/xmltv"
)

// PipelineOptions resolves the pipeline settings. Validate reports the same
// errors for every field at once; this stops at the first.
func (c *Config) PipelineOptions(log logrus.FieldLogger) (pipeline.Options, error) {
	naive, err := c.NaiveZone()
	if err != nil {
		return pipeline.Options{}, err
	}
	display, err := c.DisplayZone()
	if err != nil {
		return pipeline.Options{}, err
	}
	parser, err := xmltv.New(c.Parser, xmltv.Options{
		Codec:       xmltv.Codec{Zone: naive},
		PreferLangs: xmltv.ParseLangs(c.PreferLangs),
		Log:         log.WithField("component", "xmltv"),
	})
	if err != nil {
		return pipeline.Options{}, err
	}
	correlator, err := epglink.NewCorrelator(c.Correlator)
	if err != nil {
		return pipeline.Options{}, err
	}
	w, err := c.Window()
	if err != nil {
		return pipeline.Options{}, err
	}
	src, err := category.ParseSource(c.CategorySource)
	if err != nil {
		return pipeline.Options{}, err
	}
	aliases, err := c.Aliases()
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Parser:         parser,
		Correlator:     correlator,
		Window:         w,
		CapPerChannel:  c.CapPerChannel,
		MaxPrograms:    c.MaxPrograms,
		SortByStart:    c.SortByStart,
		UnknownChannel: c.UnknownChannel,
		CategorySource: src,
		Logos:          logo.NewResolver(c.LogoCountry, c.LogoSuffix),
		DisplayZone:    display,
		MaxBytes:       c.MaxBytes,
		FailOnEmpty:    c.FailOnEmpty,
		Aliases:        aliases,
		Log:            log.WithField("component", "pipeline"),
	}, nil
}

// Aliases loads ALIAS_FILE; no file means no overrides.
func (c *Config) Aliases() (epglink.AliasOverrides, error) {
	if c.AliasFile == "" {
		return epglink.AliasOverrides{}, nil
	}
	f, err := os.Open(c.AliasFile)
	if err != nil {
		return epglink.AliasOverrides{}, fmt.Errorf("alias file: %w", err)
	}
	defer f.Close()
	a, err := epglink.LoadAliasOverrides(f)
	if err != nil {
		return epglink.AliasOverrides{}, fmt.Errorf("alias file %s: %w", c.AliasFile, err)
	}
	return a, nil
}

// Fetcher builds the shared downloader with per-host pacing.
func (c *Config) Fetcher(log logrus.FieldLogger) *fetch.Fetcher {
	return &fetch.Fetcher{
		Client:   httpclient.WithTimeout(c.FetchTimeout),
		Limiter:  httpclient.NewHostLimiter(c.HostConcurrency, c.RateLimit),
		MaxBytes: c.MaxBytes,
		Log:      log.WithField("component", "fetch"),
	}
}

// IPTVOrg returns the directory client, or nil when IPTVORG_ENABLED is off.
func (c *Config) IPTVOrg(f *fetch.Fetcher, log logrus.FieldLogger) *iptvorg.Client {
	if !c.IPTVOrgEnabled {
		return nil
	}
	filter := iptvorg.DefaultFilter()
	filter.Languages = c.IPTVOrgLanguages
	filter.Countries = c.IPTVOrgCountries
	return &iptvorg.Client{
		BaseURL: c.IPTVOrgBaseURL,
		Fetcher: f,
		Filter:  filter,
		Log:     log.WithField("component", "iptvorg"),
	}
}
