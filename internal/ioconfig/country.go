package ioconfig

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/links"
)

// LoadCountry reads and validates the country configuration YAML.
func LoadCountry(path string) (*config.CountryConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, NewLoadError(path, err)
	}

	var cc config.CountryConfig
	if err := yaml.Unmarshal(raw, &cc); err != nil {
		return nil, NewLoadError(path, err)
	}
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	return &cc, nil
}

// linksDoc is the on-disk shape of the link definition file.
type linksDoc struct {
	Links []*links.Def `yaml:"links"`
}

// LoadLinks reads the link definitions named by the country config. An
// empty file name yields an empty table.
func LoadLinks(dir string, cc *config.CountryConfig) (*links.Table, error) {
	if cc.LinksFile == "" {
		return links.NewTable(nil)
	}
	path := filepath.Join(dir, cc.LinksFile)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, NewLoadError(path, err)
	}

	var doc linksDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, NewLoadError(path, err)
	}
	return links.NewTable(doc.Links)
}
