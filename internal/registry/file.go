package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"danmustream/danmuservice/internal/domain"
)

// FileConfig is the on-disk shape of the provider registry. A provider without an
// enabled field is enabled.
//
//	cacheSeconds: 7200
//	providers:
//	  - key: netlify
//	    name: Netlify mirror
//	    api: https://danmu.example.netlify.app
//	    enabled: true
type FileConfig struct {
	CacheSeconds *int
	Providers    []domain.ProviderSite
}

// LoadFile reads a registry file. A missing file yields an empty config so that the
// service can still start from environment defaults.
func LoadFile(path string) (FileConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return FileConfig{}, nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("read registry file: %w", err)
	}
	return ParseFile(payload)
}

type fileDocument struct {
	CacheSeconds *int           `yaml:"cacheSeconds"`
	Providers    []fileProvider `yaml:"providers"`
}

type fileProvider struct {
	Key     string `yaml:"key"`
	Name    string `yaml:"name"`
	API     string `yaml:"api"`
	Token   string `yaml:"token"`
	Enabled *bool  `yaml:"enabled"`
}

func ParseFile(payload []byte) (FileConfig, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return FileConfig{}, fmt.Errorf("parse registry file: %w", err)
	}
	if doc.CacheSeconds != nil && *doc.CacheSeconds < 0 {
		return FileConfig{}, fmt.Errorf("parse registry file: cacheSeconds must be >= 0")
	}
	sites := make([]domain.ProviderSite, 0, len(doc.Providers))
	for index, entry := range doc.Providers {
		site := normalizeSite(domain.ProviderSite{
			Key:     entry.Key,
			Name:    entry.Name,
			API:     entry.API,
			Token:   entry.Token,
			Enabled: entry.Enabled == nil || *entry.Enabled,
		})
		if site.Key == "" {
			return FileConfig{}, fmt.Errorf("parse registry file: provider #%d has no key", index+1)
		}
		sites = append(sites, site)
	}
	return FileConfig{CacheSeconds: doc.CacheSeconds, Providers: sites}, nil
}

func normalizeSite(site domain.ProviderSite) domain.ProviderSite {
	site.Key = strings.TrimSpace(site.Key)
	site.Name = strings.TrimSpace(site.Name)
	site.API = strings.TrimRight(strings.TrimSpace(site.API), "/")
	site.Token = strings.TrimSpace(site.Token)
	return site
}
