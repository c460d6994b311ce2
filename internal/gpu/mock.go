package gpu

import "context"

// MockProbe is a Probe for tests. It always reports the same capability.
type MockProbe Capability

var _ Probe = MockProbe{}

// Detect implements Probe
func (p MockProbe) Detect(context.Context) Capability {
	return Capability(p)
}
