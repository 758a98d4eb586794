package cache

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// NetworkClass is a coarse classification of the client's connection.
type NetworkClass int

const (
	NetworkUnknown NetworkClass = iota
	NetworkVerySlow
	NetworkSlow
	NetworkModerate
	NetworkFast
)

func (n NetworkClass) String() string {
	switch n {
	case NetworkVerySlow:
		return "very-slow"
	case NetworkSlow:
		return "slow"
	case NetworkModerate:
		return "moderate"
	case NetworkFast:
		return "fast"
	default:
		return "unknown"
	}
}

// ParseNetworkClass accepts both class names and effective connection types
// ("slow-2g", "2g", "3g", "4g").
func ParseNetworkClass(s string) NetworkClass {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "slow-2g", "2g", "very-slow":
		return NetworkVerySlow
	case "slow":
		return NetworkSlow
	case "3g", "moderate":
		return NetworkModerate
	case "4g", "fast":
		return NetworkFast
	default:
		return NetworkUnknown
	}
}

// MemoryClass is a coarse classification of the client's device memory.
type MemoryClass int

const (
	MemoryUnknown MemoryClass = iota
	MemoryLow
	MemoryAmple
)

// ampleDeviceMemoryGB is the Device-Memory value at or above which a device counts as ample.
const ampleDeviceMemoryGB = 4.0

// EnvironmentProbe reports the conditions adaptive storage decisions depend on.
type EnvironmentProbe interface {
	NetworkClass() NetworkClass
	DeviceMemoryClass() MemoryClass
	SaveDataRequested() bool
}

// StaticProbe returns fixed values. It is the fallback when no request context is available.
type StaticProbe struct {
	Network  NetworkClass
	Memory   MemoryClass
	SaveData bool
}

func (p StaticProbe) NetworkClass() NetworkClass     { return p.Network }
func (p StaticProbe) DeviceMemoryClass() MemoryClass { return p.Memory }
func (p StaticProbe) SaveDataRequested() bool        { return p.SaveData }

// ClientHints derives a probe from the ECT, Downlink, Device-Memory and Save-Data
// request headers.
type ClientHints struct {
	ECT          string
	Downlink     float64 // Mbps, zero when absent
	DeviceMemory float64 // GiB, zero when absent
	SaveData     bool
}

// ClientHintsFromRequest reads client hint headers from r.
func ClientHintsFromRequest(r *http.Request) ClientHints {
	h := ClientHints{
		ECT:      r.Header.Get("ECT"),
		SaveData: strings.EqualFold(strings.TrimSpace(r.Header.Get("Save-Data")), "on"),
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(r.Header.Get("Downlink")), 64); err == nil {
		h.Downlink = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(r.Header.Get("Device-Memory")), 64); err == nil {
		h.DeviceMemory = v
	}
	return h
}

// Present reports whether any hint was supplied.
func (h ClientHints) Present() bool {
	return h.ECT != "" || h.Downlink > 0 || h.DeviceMemory > 0 || h.SaveData
}

func (h ClientHints) NetworkClass() NetworkClass {
	if c := ParseNetworkClass(h.ECT); c != NetworkUnknown {
		return c
	}
	switch {
	case h.Downlink <= 0:
		return NetworkUnknown
	case h.Downlink < 0.1:
		return NetworkVerySlow
	case h.Downlink < 0.7:
		return NetworkSlow
	case h.Downlink < 5:
		return NetworkModerate
	default:
		return NetworkFast
	}
}

func (h ClientHints) DeviceMemoryClass() MemoryClass {
	switch {
	case h.DeviceMemory <= 0:
		return MemoryUnknown
	case h.DeviceMemory >= ampleDeviceMemoryGB:
		return MemoryAmple
	default:
		return MemoryLow
	}
}

func (h ClientHints) SaveDataRequested() bool { return h.SaveData }

type probeKey struct{}

// WithProbe returns a context carrying p.
func WithProbe(ctx context.Context, p EnvironmentProbe) context.Context {
	return context.WithValue(ctx, probeKey{}, p)
}

// ProbeFromContext returns the probe stored by WithProbe, if any.
func ProbeFromContext(ctx context.Context) (EnvironmentProbe, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(probeKey{}).(EnvironmentProbe)
	return p, ok && p != nil
}
