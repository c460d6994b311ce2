// Package gpu detects whether the local runtime can use hardware acceleration.
//
// Detection is advisory only. The runtime makes the final decision; this
// package exists so the chat can warn the user that inference will be slow.
package gpu

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Capability is the result of a probe
type Capability struct {
	Accelerated bool
	Device      string
	Backend     string
}

// String renders the capability for the probe command
func (c Capability) String() string {
	if !c.Accelerated {
		return "CPU only (no GPU acceleration detected)"
	}
	if c.Device == "" {
		return c.Backend
	}
	return c.Backend + ": " + c.Device
}

// Probe detects acceleration support
type Probe interface {
	Detect(ctx context.Context) Capability
}

// probeTimeout bounds each external tool invocation
const probeTimeout = 3 * time.Second

// SystemProbe inspects the host for NVIDIA, AMD ROCm and Apple Silicon GPUs
type SystemProbe struct {
	goos   string
	goarch string
	// run executes a tool and returns its stdout
	run func(ctx context.Context, name string, args ...string) (string, error)
	// exists reports whether a path is present
	exists func(path string) bool
}

// NewSystemProbe creates a probe for the current host
func NewSystemProbe() *SystemProbe {
	return &SystemProbe{
		goos:   runtime.GOOS,
		goarch: runtime.GOARCH,
		run:    runTool,
		exists: pathExists,
	}
}

func runTool(ctx context.Context, name string, args ...string) (string, error) {
	if _, err := exec.LookPath(name); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Detect implements Probe. Failures of individual checks are treated as
// "not present".
func (p *SystemProbe) Detect(ctx context.Context) Capability {
	if p.goos == "darwin" && p.goarch == "arm64" {
		return Capability{Accelerated: true, Device: "Apple Silicon", Backend: "Metal"}
	}

	if out, err := p.run(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader"); err == nil {
		if name := firstLine(out); name != "" {
			return Capability{Accelerated: true, Device: name, Backend: "CUDA"}
		}
	}

	if p.goos == "linux" && p.exists("/dev/kfd") {
		device := "AMD GPU"
		if out, err := p.run(ctx, "rocminfo"); err == nil {
			if name := rocmDevice(out); name != "" {
				device = name
			}
		}
		return Capability{Accelerated: true, Device: device, Backend: "ROCm"}
	}

	return Capability{Backend: "CPU"}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

// rocmDevice extracts the first GPU marketing name from rocminfo output
func rocmDevice(out string) string {
	var name string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "Marketing Name:"); ok {
			name = strings.TrimSpace(v)
			continue
		}
		if v, ok := strings.CutPrefix(line, "Device Type:"); ok && strings.TrimSpace(v) == "GPU" && name != "" {
			return name
		}
	}
	return ""
}
