package layout

import (
	"fmt"
	"strings"
)

// NodeSet holds the device nodes derived from a plan and a destination disk.
// Extra is the ESP under UEFI and the LVM partition under BIOS.
type NodeSet struct {
	Root  string
	Swap  string
	Extra string
}

// Nodes resolves the device nodes for a plan on the given disk. The mapping
// is deterministic: it depends only on the plan and the disk path.
func Nodes(plan Plan, disk string) NodeSet {
	var set NodeSet
	for _, part := range plan.Partitions {
		dev := PartitionDevice(disk, part.Index)
		switch part.Role {
		case RoleRoot:
			set.Root = dev
		case RoleSwap:
			set.Swap = dev
		case RoleESP, RoleLVM:
			set.Extra = dev
		}
	}
	return set
}

// PartitionDevice returns the device node for partition index on disk.
// NVMe/eMMC-style names get a "p" separator (/dev/nvme0n1p2), everything
// else a bare number (/dev/sda2).
func PartitionDevice(disk string, index int) string {
	base := EnsureDevPrefix(disk)
	name := strings.TrimPrefix(base, "/dev/")

	if strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") {
		return fmt.Sprintf("/dev/%sp%d", name, index)
	}
	return fmt.Sprintf("/dev/%s%d", name, index)
}

// BaseDisk takes a partition device like "/dev/nvme0n1p2" or "/dev/sda1"
// and returns the whole-disk device ("/dev/nvme0n1", "/dev/sda"). Used as
// the fallback when the kernel does not report a parent device.
func BaseDisk(dev string) string {
	if !strings.HasPrefix(dev, "/dev/") {
		return dev
	}

	s := dev
	for len(s) > 0 {
		last := s[len(s)-1]
		if last < '0' || last > '9' {
			break
		}
		s = s[:len(s)-1]
	}

	if strings.HasSuffix(s, "p") && (strings.Contains(s, "nvme") || strings.Contains(s, "mmcblk")) {
		s = s[:len(s)-1]
	}

	return s
}

// EnsureDevPrefix turns a bare device name ("sdb") into a full path.
func EnsureDevPrefix(name string) string {
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "/dev/") {
		return name
	}
	return "/dev/" + name
}

// LooksLikePartition reports whether the given /dev name appears to be a
// partition rather than a whole disk (e.g. /dev/sda1, /dev/nvme0n1p1).
func LooksLikePartition(dev string) bool {
	name := strings.TrimPrefix(EnsureDevPrefix(dev), "/dev/")
	if name == "" {
		return false
	}

	if strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") {
		idx := strings.LastIndex(name, "p")
		if idx > 0 && idx < len(name)-1 {
			for _, c := range name[idx+1:] {
				if c < '0' || c > '9' {
					return false
				}
			}
			return true
		}
		return false
	}

	last := name[len(name)-1]
	return last >= '0' && last <= '9'
}
