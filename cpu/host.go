package cpu

import (
	"errors"
	"fmt"
	"sync"
)

// ErrAlreadyInitialized is returned by a second Init without Cleanup.
var ErrAlreadyInitialized = errors.New("cpu: features already initialized")

// Source produces the raw /proc/cpuinfo style text describing the host.
type Source interface {
	CPUInfo() (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (string, error)

// CPUInfo implements Source.
func (f SourceFunc) CPUInfo() (string, error) { return f() }

// Text is a Source returning fixed text, used by tests and cross builds.
type Text string

// CPUInfo implements Source.
func (t Text) CPUInfo() (string, error) { return string(t), nil }

var host struct {
	sync.Mutex
	initialized bool
	features    Features
}

// Init probes src once and records the host snapshot.
func Init(src Source) error {
	host.Lock()
	defer host.Unlock()
	if host.initialized {
		return ErrAlreadyInitialized
	}
	text, err := src.CPUInfo()
	if err != nil {
		return fmt.Errorf("reading cpu info: %w", err)
	}
	host.features = ApplyQuirks(ParseCPUInfo(text))
	host.initialized = true
	return nil
}

// Initialized reports whether Init has completed.
func Initialized() bool {
	host.Lock()
	defer host.Unlock()
	return host.initialized
}

// Host returns the probed snapshot. It panics before Init.
func Host() Features {
	host.Lock()
	defer host.Unlock()
	if !host.initialized {
		panic("cpu: Host called before Init")
	}
	return host.features
}

// HostProvider is a Provider over the probed host snapshot.
type HostProvider struct{}

// Features implements Provider.
func (HostProvider) Features() Features { return Host() }

// Cleanup returns the lifecycle to the uninitialized state.
func Cleanup() {
	host.Lock()
	defer host.Unlock()
	host.initialized = false
	host.features = Features{}
}
