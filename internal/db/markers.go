package db

import (
	"sort"
	"sync"
)

// Severity of a diagnostic marker.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

// Marker is one diagnostic attached to a file.
type Marker struct {
	Path     string
	Severity Severity
	Line     int
	Message  string
}

// MarkerSink receives diagnostics. It is the only channel through which
// recoverable preprocessor and index problems are reported.
type MarkerSink interface {
	AddMarker(path string, sev Severity, line int, msg string)
	ClearMarkers(path string)
}

// MarkerCollector is a thread-safe in-memory MarkerSink.
type MarkerCollector struct {
	mu      sync.Mutex
	markers map[string][]Marker
}

// NewMarkerCollector creates an empty collector.
func NewMarkerCollector() *MarkerCollector {
	return &MarkerCollector{markers: make(map[string][]Marker)}
}

func (c *MarkerCollector) AddMarker(path string, sev Severity, line int, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers[path] = append(c.markers[path], Marker{Path: path, Severity: sev, Line: line, Message: msg})
}

func (c *MarkerCollector) ClearMarkers(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markers, path)
}

// Markers returns the markers recorded for path.
func (c *MarkerCollector) Markers(path string) []Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Marker(nil), c.markers[path]...)
}

// All returns every marker ordered by path then line.
func (c *MarkerCollector) All() []Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Marker
	for _, ms := range c.markers {
		out = append(out, ms...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// NopMarkerSink discards all markers.
type NopMarkerSink struct{}

func (NopMarkerSink) AddMarker(string, Severity, int, string) {}
func (NopMarkerSink) ClearMarkers(string)                     {}
