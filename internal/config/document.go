package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tailscale/hujson"
)

// document mirrors one rule document before resolution.
// Params: sections decoded from TOML or JSON-with-comments.
// Returns: raw rule-set bodies kept as generic maps for key-presence checks.
type document struct {
	Service              ServiceConfig             `json:"service" toml:"service"`
	Config               Options                   `json:"config" toml:"config"`
	Endpoints            map[string]Endpoint       `json:"endpoints" toml:"endpoints"`
	Trainers             []string                  `json:"trainers" toml:"trainers"`
	Includes             map[string]map[string]any `json:"includes" toml:"includes"`
	RaidIncludes         map[string]map[string]any `json:"raid_includes" toml:"raid_includes"`
	NotificationSettings map[string]rawTarget      `json:"notification_settings" toml:"notification_settings"`
}

// rawTarget stores one `notification_settings.<name>` body.
type rawTarget struct {
	Enabled      *bool    `json:"enabled" toml:"enabled"`
	Includes     []string `json:"includes" toml:"includes"`
	Raids        []string `json:"raids" toml:"raids"`
	RaidIncludes []string `json:"raid_includes" toml:"raid_includes"`
	Endpoints    []string `json:"endpoints" toml:"endpoints"`
	Gym          bool     `json:"gym" toml:"gym"`
}

// formatFromPath maps file extension to document format.
func formatFromPath(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml", true
	case ".json":
		return "json", true
	case ".jsonc":
		return "jsonc", true
	default:
		return "", false
	}
}

// decodeDocument decodes one document body.
// Params: raw bytes and format name.
// Returns: decoded document or strict decode error.
func decodeDocument(body []byte, format string) (document, error) {
	var doc document
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "toml":
		decoder := toml.NewDecoder(bytes.NewReader(body))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&doc); err != nil {
			return document{}, err
		}
	case "json", "jsonc":
		standard, err := hujson.Standardize(body)
		if err != nil {
			return document{}, fmt.Errorf("parse json with comments: %w", err)
		}
		decoder := json.NewDecoder(bytes.NewReader(standard))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&doc); err != nil {
			return document{}, err
		}
	default:
		return document{}, fmt.Errorf("unsupported config format %q", format)
	}
	return doc, nil
}

// loadFile reads one rule document file.
// Params: file path; extension selects format.
// Returns: decoded document or read/decode error.
func loadFile(path string) (document, error) {
	format, ok := formatFromPath(path)
	if !ok {
		return document{}, fmt.Errorf("config file %q: unsupported extension", path)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return document{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	doc, err := decodeDocument(body, format)
	if err != nil {
		return document{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return doc, nil
}

// loadDir reads and merges document fragments from one directory.
// Params: directory containing .toml/.json/.jsonc fragments.
// Returns: merged document or load/duplicate-name error.
func loadDir(dir string) (document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return document{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := formatFromPath(entry.Name()); !ok {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return document{}, fmt.Errorf("no config files found in %q", dir)
	}
	sort.Strings(files)

	var merged document
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return document{}, err
		}
		if err := mergeDocument(&merged, fragment); err != nil {
			return document{}, fmt.Errorf("merge config file %q: %w", file, err)
		}
	}
	return merged, nil
}

// mergeDocument overlays one fragment onto destination.
// Params: destination document and next fragment.
// Returns: ConfigurationError on duplicate named entries.
func mergeDocument(dst *document, src document) error {
	if !reflect.ValueOf(src.Service).IsZero() {
		dst.Service = src.Service
	}
	if !reflect.ValueOf(src.Config).IsZero() {
		dst.Config = src.Config
	}
	dst.Trainers = append(dst.Trainers, src.Trainers...)

	var err error
	if dst.Endpoints, err = mergeNamed("endpoints", dst.Endpoints, src.Endpoints); err != nil {
		return err
	}
	if dst.Includes, err = mergeNamed("includes", dst.Includes, src.Includes); err != nil {
		return err
	}
	if dst.RaidIncludes, err = mergeNamed("raid_includes", dst.RaidIncludes, src.RaidIncludes); err != nil {
		return err
	}
	if dst.NotificationSettings, err = mergeNamed("notification_settings", dst.NotificationSettings, src.NotificationSettings); err != nil {
		return err
	}
	return nil
}

func mergeNamed[V any](section string, dst, src map[string]V) (map[string]V, error) {
	if len(src) == 0 {
		return dst, nil
	}
	if dst == nil {
		dst = make(map[string]V, len(src))
	}
	for name, value := range src {
		if _, exists := dst[name]; exists {
			return nil, configErrorf("duplicate %s name %q", section, name)
		}
		dst[name] = value
	}
	return dst, nil
}
