// Package registry maps target IQNs to the LUNs they export, backing the
// connection package's LUNSource and the target package's discovery
// responses. spec.md treats "the configured target" as a singleton; a real
// target daemon manages a handful of targets and LUNs, so this registry
// supplements that without touching the core protocol packages.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coregate/iscsid/internal/iscsi/connection"
	"github.com/coregate/iscsid/internal/iscsi/scsi"
	"github.com/coregate/iscsid/pkg/device"
)

// LUNEntry is one exported logical unit: its number and backing device.
type LUNEntry struct {
	Number   uint64
	Device   device.BlockDevice
	Identity scsi.Identity
}

// Target is one configured iSCSI target: its IQN and the LUNs it exports.
type Target struct {
	Name string
	LUNs []LUNEntry
}

// Registry owns the set of configured targets and the portals they are
// reachable on. Implementations must be safe for concurrent use: the
// connection package calls Lookup/LUNs/Portals from one goroutine per
// active connection.
type Registry interface {
	connection.LUNSource

	// AddTarget registers a target with an initial LUN set, replacing any
	// existing target of the same name.
	AddTarget(ctx context.Context, name string, luns []LUNEntry) error
	// RemoveTarget unregisters a target. Not an error if it doesn't exist.
	RemoveTarget(ctx context.Context, name string) error
	// Targets lists the configured target IQNs, sorted.
	Targets(ctx context.Context) ([]string, error)
	// AddPortal registers a listening address under a target's discovery
	// response.
	AddPortal(ctx context.Context, targetName, address string) error
}

// ErrTargetNotFound is returned by operations against an unregistered
// target name.
type ErrTargetNotFound struct{ Name string }

func (e *ErrTargetNotFound) Error() string {
	return fmt.Sprintf("registry: target %q not found", e.Name)
}

// MemRegistry is an in-memory Registry, the default for targets configured
// without a durable backend.
type MemRegistry struct {
	mu      sync.RWMutex
	targets map[string]*Target
	portals []connection.Portal
}

// NewMemRegistry returns an empty in-memory registry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{targets: make(map[string]*Target)}
}

func (r *MemRegistry) Lookup(targetName string, lun uint64) (device.BlockDevice, scsi.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.targets[targetName]
	if !ok {
		return nil, scsi.Identity{}, false
	}
	for _, entry := range t.LUNs {
		if entry.Number == lun {
			return entry.Device, entry.Identity, true
		}
	}
	return nil, scsi.Identity{}, false
}

func (r *MemRegistry) LUNs(targetName string) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.targets[targetName]
	if !ok {
		return nil
	}
	nums := make([]uint64, len(t.LUNs))
	for i, entry := range t.LUNs {
		nums[i] = entry.Number
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

func (r *MemRegistry) Portals() []connection.Portal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]connection.Portal, len(r.portals))
	copy(out, r.portals)
	return out
}

func (r *MemRegistry) AddTarget(ctx context.Context, name string, luns []LUNEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := make([]LUNEntry, len(luns))
	copy(cp, luns)
	r.targets[name] = &Target{Name: name, LUNs: cp}
	return nil
}

func (r *MemRegistry) RemoveTarget(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.targets, name)
	return nil
}

func (r *MemRegistry) Targets(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *MemRegistry) AddPortal(ctx context.Context, targetName, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.portals = append(r.portals, connection.Portal{TargetName: targetName, Address: address})
	return nil
}
