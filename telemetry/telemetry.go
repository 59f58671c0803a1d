// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package telemetry reads accelerator state (memory usage, compute
// capability) for monitoring and configuration decisions.
//
// Reads never fail silently: every probe returns an explicit status, so a
// caller (or a test) can tell "no accelerator present" apart from "the read
// itself failed". Telemetry is advisory and must never interrupt a training
// run, so nothing in this package panics.
package telemetry

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Status of a telemetry read.
type Status int

const (
	// StatusOK: the reading is valid.
	StatusOK Status = iota

	// StatusUnavailable: there is no accelerator (or no tooling) to read
	// from. Not an error.
	StatusUnavailable

	// StatusError: the probe ran but the read failed; Result.Err says why.
	StatusError
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnavailable:
		return "unavailable"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Reading is one accelerator memory measurement.
type Reading struct {
	UsedBytes  uint64
	TotalBytes uint64
}

// UsedPercent returns the used fraction as a percentage, or 0 if the total
// is unknown.
func (r Reading) UsedPercent() float64 {
	if r.TotalBytes == 0 {
		return 0
	}
	return float64(r.UsedBytes) / float64(r.TotalBytes) * 100
}

// Result of a memory probe.
type Result struct {
	Status  Status
	Reading Reading
	Err     error
}

// Capability describes the accelerator, as needed for precision selection.
type Capability struct {
	// Present is false when there is no accelerator.
	Present bool

	// Major and Minor CUDA compute capability. BF16 needs Major >= 8
	// (Ampere); a T4 is 7.5.
	Major, Minor int

	Name          string
	TotalMemoryGB float64
}

// Probe reads accelerator device memory.
type Probe interface {
	// DeviceMemory reads the memory usage of device 0.
	DeviceMemory() Result
}

// NVML reads device state through the nvidia-smi tool, which is present
// wherever the NVIDIA driver is.
type NVML struct {
	// binary overrides the nvidia-smi path, for tests.
	binary string
}

// NewNVML creates an NVML probe.
func NewNVML() *NVML { return &NVML{} }

func (p *NVML) smiPath() (string, bool) {
	if p.binary != "" {
		return p.binary, true
	}
	found, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return "", false
	}
	return found, true
}

// DeviceMemory implements Probe.
func (p *NVML) DeviceMemory() Result {
	smi, ok := p.smiPath()
	if !ok {
		return Result{Status: StatusUnavailable}
	}
	out, err := exec.Command(smi,
		"--query-gpu=memory.used,memory.total",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		// nvidia-smi present but no device answers: the driver exits
		// non-zero, which still means "no accelerator" rather than a broken
		// read.
		if _, isExit := errors.Cause(err).(*exec.ExitError); isExit {
			return Result{Status: StatusUnavailable}
		}
		return Result{Status: StatusError, Err: errors.Wrap(err, "failed to run nvidia-smi")}
	}
	reading, err := parseMemoryLine(firstLine(string(out)))
	if err != nil {
		return Result{Status: StatusError, Err: err}
	}
	return Result{Status: StatusOK, Reading: reading}
}

// DeviceCapability reads the compute capability and name of device 0.
// A missing accelerator yields Capability{Present: false} and no error; an
// error means the read itself failed.
func (p *NVML) DeviceCapability() (Capability, error) {
	smi, ok := p.smiPath()
	if !ok {
		return Capability{}, nil
	}
	out, err := exec.Command(smi,
		"--query-gpu=compute_cap,name,memory.total",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		if _, isExit := errors.Cause(err).(*exec.ExitError); isExit {
			return Capability{}, nil
		}
		return Capability{}, errors.Wrap(err, "failed to run nvidia-smi")
	}
	return parseCapabilityLine(firstLine(string(out)))
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// parseMemoryLine parses one line of
// "nvidia-smi --query-gpu=memory.used,memory.total --format=csv,noheader,nounits",
// e.g. "3456, 15360" (MiB).
func parseMemoryLine(line string) (Reading, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 2 {
		return Reading{}, errors.Errorf("expected \"used, total\" from nvidia-smi, got %q", line)
	}
	used, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return Reading{}, errors.Wrapf(err, "bad used memory in nvidia-smi output %q", line)
	}
	total, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return Reading{}, errors.Wrapf(err, "bad total memory in nvidia-smi output %q", line)
	}
	const mib = 1024 * 1024
	return Reading{UsedBytes: used * mib, TotalBytes: total * mib}, nil
}

// parseCapabilityLine parses one line of
// "nvidia-smi --query-gpu=compute_cap,name,memory.total --format=csv,noheader,nounits",
// e.g. "7.5, Tesla T4, 15360".
func parseCapabilityLine(line string) (Capability, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return Capability{}, errors.Errorf("expected \"compute_cap, name, total\" from nvidia-smi, got %q", line)
	}
	capStr := strings.TrimSpace(fields[0])
	majorStr, minorStr, found := strings.Cut(capStr, ".")
	if !found {
		return Capability{}, errors.Errorf("bad compute capability %q in nvidia-smi output %q", capStr, line)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return Capability{}, errors.Wrapf(err, "bad compute capability %q", capStr)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return Capability{}, errors.Wrapf(err, "bad compute capability %q", capStr)
	}
	totalMiB, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return Capability{}, errors.Wrapf(err, "bad total memory in nvidia-smi output %q", line)
	}
	return Capability{
		Present:       true,
		Major:         major,
		Minor:         minor,
		Name:          strings.TrimSpace(fields[1]),
		TotalMemoryGB: totalMiB * 1024 * 1024 / 1e9,
	}, nil
}
