package storage

import (
	"fmt"
	"sort"

	"github.com/prn-tf/alexander-assets/internal/domain"
)

// Manager resolves disks by name.
type Manager struct {
	disks       map[string]Disk
	defaultName string
}

// NewManager creates a Manager. defaultName must be one of the given disks.
func NewManager(defaultName string, disks ...Disk) (*Manager, error) {
	m := &Manager{
		disks:       make(map[string]Disk, len(disks)),
		defaultName: defaultName,
	}
	for _, d := range disks {
		if _, dup := m.disks[d.Name()]; dup {
			return nil, fmt.Errorf("duplicate disk %q", d.Name())
		}
		m.disks[d.Name()] = d
	}
	if _, ok := m.disks[defaultName]; !ok {
		return nil, domain.NewDomainError(domain.ErrDiskNotFound, "default disk", defaultName)
	}
	return m, nil
}

// Disk returns the named disk.
func (m *Manager) Disk(name string) (Disk, error) {
	d, ok := m.disks[name]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrDiskNotFound, "unknown disk", name)
	}
	return d, nil
}

// Default returns the disk new blobs are written to.
func (m *Manager) Default() Disk {
	return m.disks[m.defaultName]
}

// DefaultName returns the name of the default disk.
func (m *Manager) DefaultName() string {
	return m.defaultName
}

// Names returns all configured disk names in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.disks))
	for name := range m.disks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
