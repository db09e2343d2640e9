// Package config holds the participant process configuration: the
// fields named in spec §6's CLI surface, loaded from YAML and
// validated before a participant joins a simulation.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vectorgrp/sil-kit-sub002/faults"
)

// DefaultRegistryURI is used when neither the config file nor an
// override flag specifies middleware.registryUri (spec §6).
const DefaultRegistryURI = "silkit://localhost:8500"

// BusControllerConfig names one bus controller instance to create at
// startup.
type BusControllerConfig struct {
	Name        string `yaml:"name" json:"name"`
	NetworkName string `yaml:"networkName" json:"networkName"`
}

// MiddlewareConfig is the transport-facing half of the configuration.
type MiddlewareConfig struct {
	RegistryURI string `yaml:"registryUri" json:"registryUri"`
}

// LoggingConfig selects the sink and level for the participant's Logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	Sink  string `yaml:"sink" json:"sink"` // "stdout" (default) or "noop"
}

// TracingConfig selects the OTLP endpoint observability.InitTracer dials.
// An empty Endpoint disables tracing.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// HealthcheckConfig controls the participant's liveness signal, the
// interval a supervising process expects a ParticipantStatus refresh at.
type HealthcheckConfig struct {
	IntervalMs int `yaml:"intervalMs" json:"intervalMs"`
}

// ParticipantConfig is the full configuration of one participant
// process (spec §6's CLI surface): participantName, registry URI,
// per-network-type controller tables, logger/tracer sinks, healthcheck.
type ParticipantConfig struct {
	ParticipantName string `yaml:"participantName" json:"participantName"`

	Middleware MiddlewareConfig `yaml:"middleware" json:"middleware"`

	CanControllers      []BusControllerConfig `yaml:"canControllers" json:"canControllers"`
	EthernetControllers []BusControllerConfig `yaml:"ethernetControllers" json:"ethernetControllers"`
	FlexrayControllers  []BusControllerConfig `yaml:"flexrayControllers" json:"flexrayControllers"`
	LinControllers      []BusControllerConfig `yaml:"linControllers" json:"linControllers"`

	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Tracing     TracingConfig     `yaml:"tracing" json:"tracing"`
	Healthcheck HealthcheckConfig `yaml:"healthcheck" json:"healthcheck"`
}

// DefaultParticipantConfig returns a ParticipantConfig with every field
// at its spec-mandated or otherwise sane default. ParticipantName is
// left empty: callers must set it, and Validate rejects the default as
// given.
func DefaultParticipantConfig() *ParticipantConfig {
	return &ParticipantConfig{
		Middleware:  MiddlewareConfig{RegistryURI: DefaultRegistryURI},
		Logging:     LoggingConfig{Level: "INFO", Sink: "stdout"},
		Healthcheck: HealthcheckConfig{IntervalMs: 5000},
	}
}

// Validate implements spec §6's CLI surface rule: participantName must
// be non-empty, and a blank registry URI is filled with the default
// rather than rejected.
func (c *ParticipantConfig) Validate() error {
	if c.ParticipantName == "" {
		return faults.NewConfigurationError("participantName must not be empty")
	}
	if c.Middleware.RegistryURI == "" {
		c.Middleware.RegistryURI = DefaultRegistryURI
	}
	return nil
}

// HealthcheckInterval returns Healthcheck.IntervalMs as a time.Duration.
func (c *ParticipantConfig) HealthcheckInterval() time.Duration {
	return time.Duration(c.Healthcheck.IntervalMs) * time.Millisecond
}

// ParseParticipantConfig decodes YAML bytes into a ParticipantConfig
// layered over the defaults, then validates it.
func ParseParticipantConfig(data []byte) (*ParticipantConfig, error) {
	c := DefaultParticipantConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, faults.NewConfigurationError(fmt.Sprintf("parsing participant config: %v", err))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadParticipantConfig reads and parses the YAML file at path.
func LoadParticipantConfig(path string) (*ParticipantConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.NewConfigurationError(fmt.Sprintf("reading participant config %s: %v", path, err))
	}
	return ParseParticipantConfig(data)
}

// =============================================================================
// GLOBAL CONFIG (set once by cmd/participant's bootstrap)
// =============================================================================

var (
	global   *ParticipantConfig
	globalMu sync.RWMutex
)

// Get returns the injected configuration, or DefaultParticipantConfig()
// if none has been set yet.
func Get() *ParticipantConfig {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return DefaultParticipantConfig()
	}
	return global
}

// Set installs c as the process-wide configuration.
func Set(c *ParticipantConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = c
}

// Reset clears the process-wide configuration (for tests).
func Reset() {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = nil
}
