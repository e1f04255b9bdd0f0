// Package config loads cmd/dnsproverd's YAML configuration, mirroring
// cmd/dnsscience-grpc/config.go's ConfigFile/LoadConfig shape.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML configuration for the proof-service daemon.
type File struct {
	Listen        string   `yaml:"listen"`
	MetricsListen string   `yaml:"metrics_listen"`
	APIKeys       []string `yaml:"api_keys"`
	TLSCert       string   `yaml:"tls_cert"`
	TLSKey        string   `yaml:"tls_key"`

	// Resolver is the trusted recursive resolver internal/transport
	// dials to build proofs ("host:port").
	Resolver string `yaml:"resolver"`

	// EnableCookies turns on RFC 7873 DNS Cookies on outbound queries.
	EnableCookies bool `yaml:"enable_cookies"`

	// Workers bounds internal/batch's concurrency for bulk operations.
	Workers int `yaml:"workers"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Defaults returns the built-in configuration used when no file and no
// flag overrides it.
func Defaults() File {
	return File{
		Listen:        ":8443",
		MetricsListen: ":9090",
		Resolver:      "127.0.0.1:53",
		Workers:       16,
	}
}

// Merge layers overrides over base: every non-empty string field and a
// non-zero Workers in overrides replace base's value, overrides' APIKeys
// are appended to base's, and EnableCookies can only be switched on, never
// off. Merging a file over Defaults() and then flags over that result gives
// flags over file over built-in defaults.
func Merge(base File, overrides File) File {
	if overrides.Listen != "" {
		base.Listen = overrides.Listen
	}
	if overrides.MetricsListen != "" {
		base.MetricsListen = overrides.MetricsListen
	}
	if len(overrides.APIKeys) > 0 {
		base.APIKeys = append(base.APIKeys, overrides.APIKeys...)
	}
	if overrides.TLSCert != "" {
		base.TLSCert = overrides.TLSCert
	}
	if overrides.TLSKey != "" {
		base.TLSKey = overrides.TLSKey
	}
	if overrides.Resolver != "" {
		base.Resolver = overrides.Resolver
	}
	if overrides.Workers != 0 {
		base.Workers = overrides.Workers
	}
	if overrides.EnableCookies {
		base.EnableCookies = true
	}
	return base
}
