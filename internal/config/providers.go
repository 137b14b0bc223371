package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider describes the IMAP endpoint of one mail provider.
type Provider struct {
	Name     string `yaml:"name"`
	IMAPHost string `yaml:"imap_host"`
	IMAPPort int    `yaml:"imap_port"`
	SSL      *bool  `yaml:"ssl"`
}

// Security maps the provider's ssl flag onto a transport security mode.
// SSL defaults to on.
func (p *Provider) Security() Security {
	if p.SSL != nil && !*p.SSL {
		return SecurityNone
	}
	return SecurityTLS
}

type providersFile struct {
	Default   string              `yaml:"default"`
	Providers map[string]Provider `yaml:"providers"`
}

// builtinProviders covers the common providers when no config file exists.
func builtinProviders() map[string]Provider {
	return map[string]Provider{
		"gmx":     {Name: "GMX Mail", IMAPHost: "imap.gmx.net", IMAPPort: 993},
		"gmail":   {Name: "Gmail", IMAPHost: "imap.gmail.com", IMAPPort: 993},
		"outlook": {Name: "Outlook", IMAPHost: "outlook.office365.com", IMAPPort: 993},
	}
}

// searchPaths returns the provider config file locations, most specific
// first. An explicit path overrides the defaults.
func searchPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	paths := []string{}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mail-archive", "providers.yaml"))
	}
	return append(paths, "/etc/mail-archive/providers.yaml")
}

func readProvidersFile(explicit string) (*providersFile, error) {
	for _, path := range searchPaths(explicit) {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read provider config %s: %w", path, err)
		}

		var pf providersFile
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("failed to parse provider config %s: %w", path, err)
		}
		return &pf, nil
	}
	return nil, nil
}

// DefaultProvider returns the default provider name from the config file,
// or "gmx" when none is configured.
func DefaultProvider(configPath string) string {
	pf, err := readProvidersFile(configPath)
	if err == nil && pf != nil && pf.Default != "" {
		return pf.Default
	}
	return "gmx"
}

// LoadProvider resolves a provider by name from the config file, falling
// back to the builtin registry. The "custom" provider takes its endpoint
// from IMAP_HOST, IMAP_PORT and IMAP_SSL environment variables.
func LoadProvider(name, configPath string) (*Provider, error) {
	pf, err := readProvidersFile(configPath)
	if err != nil {
		return nil, err
	}

	var provider Provider
	var found bool

	if pf != nil {
		provider, found = pf.Providers[name]
		if !found {
			names := make([]string, 0, len(pf.Providers))
			for n := range pf.Providers {
				names = append(names, n)
			}
			sort.Strings(names)
			return nil, fmt.Errorf("unknown provider %q, available: %s", name, strings.Join(names, ", "))
		}
	} else {
		provider, found = builtinProviders()[name]
		if !found && name != "custom" {
			return nil, fmt.Errorf("unknown provider %q and no provider config file found", name)
		}
	}

	if name == "custom" {
		applyCustomEnv(&provider)
	}
	if provider.IMAPPort == 0 {
		provider.IMAPPort = 993
	}
	if provider.IMAPHost == "" {
		return nil, fmt.Errorf("provider %q has no IMAP host configured", name)
	}

	return &provider, nil
}

// applyCustomEnv overrides the custom provider's endpoint from the
// environment.
func applyCustomEnv(p *Provider) {
	if host := getEnv("IMAP_HOST", ""); host != "" {
		p.IMAPHost = host
	}
	p.IMAPPort = getEnvInt("IMAP_PORT", p.IMAPPort)
	if ssl := getEnv("IMAP_SSL", ""); ssl != "" {
		enabled := ssl == "true" || ssl == "1" || ssl == "yes"
		p.SSL = &enabled
	}
}
