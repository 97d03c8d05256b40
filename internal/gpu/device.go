//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/core"
)

// Device errors.
var (
	// ErrNoGPU is returned when no compatible GPU adapter can be found.
	ErrNoGPU = errors.New("gpu: no compatible GPU found")

	// ErrNotInitialized is returned when a Device is used before Init.
	ErrNotInitialized = errors.New("gpu: device not initialized")

	// ErrDeviceLost is returned when the GPU device was lost and must be
	// reacquired. Per spec.md §7, this is fatal for the current run.
	ErrDeviceLost = errors.New("gpu: device lost")
)

// GPUInfo describes the adapter selected during Init.
type GPUInfo struct {
	Name       string
	Vendor     string
	DeviceType gputypes.DeviceType
	Backend    gputypes.Backend
	Driver     string
}

// String returns a human-readable description of the GPU.
func (g *GPUInfo) String() string {
	return fmt.Sprintf("%s (%s, %s)", g.Name, g.DeviceType, g.Backend)
}

// Device owns the process-wide GPU instance/adapter/device/queue handle.
// Per spec.md §9's "Global state" note and §4.8 step 1 ("create GPU
// device"), Init is the first thing pipeline.Run does and Close is the
// last, acquired and torn down exactly once per run; tests construct
// their own isolated Device rather than sharing a global.
//
// This module is the top-level host process, not a library awaiting a
// device from an embedder (see DESIGN.md's entry on this package for why
// that distinction matters), so Device acquires its own instance/
// adapter/device/queue from scratch rather than receiving one.
//
// Device is safe for concurrent use; GPU submission itself is still
// serialized through a single host thread (spec.md §5), but reading back
// GPUInfo may happen from any goroutine.
type Device struct {
	mu sync.RWMutex

	instance *core.Instance
	adapter  core.AdapterID
	device   core.DeviceID
	queue    core.QueueID

	info *GPUInfo

	initialized bool
}

// NewDevice creates an uninitialized Device. Call Init before use.
func NewDevice() *Device {
	return &Device{}
}

// Init acquires an instance, requests a high-performance adapter, creates
// a logical device, and retrieves its queue.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	d.instance = core.NewInstance(&gputypes.InstanceDescriptor{
		Backends: gputypes.BackendsPrimary,
	})

	adapterID, err := d.instance.RequestAdapter(&gputypes.RequestAdapterOptions{
		PowerPreference: gputypes.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoGPU, err)
	}
	d.adapter = adapterID
	d.info, _ = getGPUInfo(adapterID)
	logGPUInfo(adapterID, d.info)

	deviceID, err := createDevice(adapterID, "gsplat-device")
	if err != nil {
		return fmt.Errorf("gpu: device creation failed: %w", err)
	}
	d.device = deviceID

	queueID, err := getDeviceQueue(deviceID)
	if err != nil {
		_ = releaseDevice(deviceID)
		return fmt.Errorf("gpu: queue retrieval failed: %w", err)
	}
	d.queue = queueID

	d.initialized = true
	slogger().Info("gpu device initialized", "adapter", d.info.String())
	return nil
}

// Close releases the device and adapter, in reverse order of acquisition.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return
	}

	if !d.device.IsZero() {
		if err := releaseDevice(d.device); err != nil {
			slogger().Warn("gpu: error releasing device", "error", err)
		}
		d.device = core.DeviceID{}
	}
	if !d.adapter.IsZero() {
		if err := releaseAdapter(d.adapter); err != nil {
			slogger().Warn("gpu: error releasing adapter", "error", err)
		}
		d.adapter = core.AdapterID{}
	}

	d.instance = nil
	d.queue = core.QueueID{}
	d.info = nil
	d.initialized = false
	slogger().Info("gpu device closed")
}

// Reacquire reinitializes the device after a surface-lost recovery path;
// a device-lost error is fatal per spec.md §7 and must not call this.
func (d *Device) Reacquire() error {
	d.Close()
	return d.Init()
}

// IsInitialized reports whether Init has completed successfully.
func (d *Device) IsInitialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

// Info returns the selected adapter's description, or nil if uninitialized.
func (d *Device) Info() *GPUInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// Raw returns the underlying device ID for passing to lower-level HAL calls.
func (d *Device) Raw() core.DeviceID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.device
}

// Queue returns the command queue ID associated with this device.
func (d *Device) Queue() core.QueueID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.queue
}

// getGPUInfo retrieves adapter information from the instance.
func getGPUInfo(adapterID core.AdapterID) (*GPUInfo, error) {
	info, err := core.GetAdapterInfo(adapterID)
	if err != nil {
		return nil, fmt.Errorf("gpu: failed to get adapter info: %w", err)
	}
	return &GPUInfo{
		Name:       info.Name,
		Vendor:     info.Vendor,
		DeviceType: info.DeviceType,
		Backend:    info.Backend,
		Driver:     info.Driver,
	}, nil
}

// logGPUInfo logs the selected GPU at info level.
func logGPUInfo(_ core.AdapterID, info *GPUInfo) {
	if info == nil {
		return
	}
	slogger().Info("gpu adapter selected", "gpu", info.String(), "driver", info.Driver)
}

// createDevice creates a logical device from an adapter with default limits.
func createDevice(adapterID core.AdapterID, label string) (core.DeviceID, error) {
	desc := &gputypes.DeviceDescriptor{
		Label:            label,
		RequiredFeatures: nil,
		RequiredLimits:   gputypes.DefaultLimits(),
	}
	deviceID, err := core.RequestDevice(adapterID, desc)
	if err != nil {
		return core.DeviceID{}, fmt.Errorf("gpu: failed to create device: %w", err)
	}
	return deviceID, nil
}

// getDeviceQueue retrieves the queue associated with a device.
func getDeviceQueue(deviceID core.DeviceID) (core.QueueID, error) {
	queueID, err := core.GetDeviceQueue(deviceID)
	if err != nil {
		return core.QueueID{}, fmt.Errorf("gpu: failed to get device queue: %w", err)
	}
	return queueID, nil
}

// releaseDevice releases a device and its associated resources.
func releaseDevice(deviceID core.DeviceID) error {
	if deviceID.IsZero() {
		return nil
	}
	if err := core.DeviceDrop(deviceID); err != nil {
		return fmt.Errorf("gpu: failed to release device: %w", err)
	}
	return nil
}

// releaseAdapter releases an adapter.
func releaseAdapter(adapterID core.AdapterID) error {
	if adapterID.IsZero() {
		return nil
	}
	if err := core.AdapterDrop(adapterID); err != nil {
		return fmt.Errorf("gpu: failed to release adapter: %w", err)
	}
	return nil
}
