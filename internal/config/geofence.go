package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Geofence is one named area; points use orb's lon/lat order.
type Geofence struct {
	Name  string
	Shape orb.MultiPolygon
}

// Contains reports whether coordinate lies inside the fence.
func (g *Geofence) Contains(lat, lon float64) bool {
	if g == nil {
		return false
	}
	return planar.MultiPolygonContains(g.Shape, orb.Point{lon, lat})
}

// LoadGeofences reads named fences from a text or GeoJSON file.
// Params: path; `.geojson`/`.json` selects GeoJSON, anything else the `[Name]` + `lat,lon` text format.
// Returns: fences keyed by name.
func LoadGeofences(path string) (map[string]*Geofence, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geofence file %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return ParseGeoJSONFences(body)
	default:
		return ParseTextFences(body)
	}
}

// ParseTextFences parses `[Name]` headers followed by `lat,lon` lines.
// Params: file body.
// Returns: fences keyed by name or line-numbered error.
func ParseTextFences(body []byte) (map[string]*Geofence, error) {
	fences := make(map[string]*Geofence)
	var name string
	var ring orb.Ring

	flush := func() error {
		if name == "" {
			return nil
		}
		if len(ring) < 3 {
			return fmt.Errorf("geofence %q needs at least 3 points", name)
		}
		if _, exists := fences[name]; exists {
			return fmt.Errorf("duplicate geofence %q", name)
		}
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		fences[name] = &Geofence{Name: name, Shape: orb.MultiPolygon{orb.Polygon{ring}}}
		return nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if err := flush(); err != nil {
				return nil, err
			}
			name = strings.TrimSpace(line[1 : len(line)-1])
			ring = nil
			if name == "" {
				return nil, fmt.Errorf("line %d: empty geofence name", lineNo)
			}
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("line %d: point before first [name] header", lineNo)
		}
		latRaw, lonRaw, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("line %d: expected lat,lon", lineNo)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: latitude: %w", lineNo, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonRaw), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: longitude: %w", lineNo, err)
		}
		ring = append(ring, orb.Point{lon, lat})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return fences, nil
}

// ParseGeoJSONFences reads a FeatureCollection of (Multi)Polygons with a `name` property.
func ParseGeoJSONFences(body []byte) (map[string]*Geofence, error) {
	collection, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	fences := make(map[string]*Geofence, len(collection.Features))
	for i, feature := range collection.Features {
		name := strings.TrimSpace(feature.Properties.MustString("name", ""))
		if name == "" {
			return nil, fmt.Errorf("feature[%d]: name property is required", i)
		}
		if _, exists := fences[name]; exists {
			return nil, fmt.Errorf("duplicate geofence %q", name)
		}
		var shape orb.MultiPolygon
		switch geometry := feature.Geometry.(type) {
		case orb.Polygon:
			shape = orb.MultiPolygon{geometry}
		case orb.MultiPolygon:
			shape = geometry
		default:
			return nil, fmt.Errorf("feature %q: unsupported geometry %T", name, feature.Geometry)
		}
		fences[name] = &Geofence{Name: name, Shape: shape}
	}
	return fences, nil
}
