package asm

import "sync"

// RuntimeEntry describes a host runtime function callable from generated
// code. Address is the entry point generated code branches to.
type RuntimeEntry struct {
	Name    string
	Address uint64
	IsLeaf  bool
	// IsFloat marks leaf entries taking and returning doubles.
	IsFloat       bool
	ArgumentCount int
}

// Label returns the entry point as an external label.
func (e *RuntimeEntry) Label() *ExternalLabel {
	return NewExternalLabel(e.Name, e.Address)
}

// Stubs are the out-of-line code sequences macros call into.
type Stubs struct {
	// UpdateStoreBuffer records an old-to-new pointer store. It receives the
	// object in the first argument register. The write barrier macros save
	// the volatile registers around the call, so the stub may clobber them.
	UpdateStoreBuffer *ExternalLabel
	// CallToRuntime calls a non-leaf runtime entry whose address and
	// argument count are passed in the architecture's runtime registers.
	CallToRuntime *ExternalLabel
	// PrintStopMessage prints the message whose id is in the first argument
	// register.
	PrintStopMessage *ExternalLabel
}

var stopMessages struct {
	sync.Mutex
	messages []string
}

// RegisterStopMessage interns msg and returns the id generated code embeds
// in front of a stop trap. Ids start at 1.
func RegisterStopMessage(msg string) uint32 {
	stopMessages.Lock()
	defer stopMessages.Unlock()
	for i, m := range stopMessages.messages {
		if m == msg {
			return uint32(i + 1)
		}
	}
	stopMessages.messages = append(stopMessages.messages, msg)
	return uint32(len(stopMessages.messages))
}

// StopMessage returns the message registered under id.
func StopMessage(id uint32) (string, bool) {
	stopMessages.Lock()
	defer stopMessages.Unlock()
	if id == 0 || int(id) > len(stopMessages.messages) {
		return "", false
	}
	return stopMessages.messages[id-1], true
}
