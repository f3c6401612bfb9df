package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// BackendMode selects which backends a run exercises
type BackendMode int

const (
	// BackendModeBoth runs the comparative two-backend mode
	BackendModeBoth BackendMode = iota
	// BackendModeNetwork smoke-tests the network backend alone
	BackendModeNetwork
	// BackendModeLibrary smoke-tests the library backend alone
	BackendModeLibrary
)

func (m BackendMode) String() string {
	names := [...]string{"both", "network", "library"}

	return names[m]
}

// UnmarshalText implements `encoding.TextUnmarshaler`.
func (m *BackendMode) UnmarshalText(data []byte) error {
	switch strings.ToLower(string(data)) {
	case "both":
		*m = BackendModeBoth
	case "network":
		*m = BackendModeNetwork
	case "library":
		*m = BackendModeLibrary
	default:
		return fmt.Errorf("unknown backend mode: '%s', use one of both, network, library", string(data))
	}

	return nil
}

// UnmarshalYAML implements `yaml.Unmarshaler`.
func (m *BackendMode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var input string
	if err := unmarshal(&input); err != nil {
		return err
	}

	return m.UnmarshalText([]byte(input))
}

// Backends holds the backend selection and addresses
type Backends struct {
	Mode BackendMode `yaml:"mode" default:"both"`
	// Network is the reference nameserver, queried over raw UDP/TCP wire
	Network Upstream `yaml:"network"`
	// Library is the endpoint the resolver library under test is pointed at
	Library Upstream `yaml:"library"`
}

// NetworkEnabled returns true if the network backend participates in the run
func (b *Backends) NetworkEnabled() bool {
	return b.Mode == BackendModeBoth || b.Mode == BackendModeNetwork
}

// LibraryEnabled returns true if the library backend participates in the run
func (b *Backends) LibraryEnabled() bool {
	return b.Mode == BackendModeBoth || b.Mode == BackendModeLibrary
}

// Validate checks that every enabled backend has an address configured
func (b *Backends) Validate() error {
	var result *multierror.Error

	if b.NetworkEnabled() && b.Network.IsZero() {
		result = multierror.Append(result, fmt.Errorf("backend mode '%s' requires a network upstream", b.Mode))
	}

	if b.LibraryEnabled() && b.Library.IsZero() {
		result = multierror.Append(result, fmt.Errorf("backend mode '%s' requires a library upstream", b.Mode))
	}

	return result.ErrorOrNil()
}

// LogConfig logs the backend configuration
func (b *Backends) LogConfig(logger *logrus.Entry) {
	logger.Infof("Mode = %s", b.Mode)

	if b.NetworkEnabled() {
		logger.Infof("Network = %s", b.Network)
	}

	if b.LibraryEnabled() {
		logger.Infof("Library = %s", b.Library)
	}
}
