package layout

import (
	"fmt"
	"strings"
)

// BootMode selects which of the two fixed partition schemes is used. It is
// detected once from the firmware interface and immutable after the operator
// has confirmed it.
type BootMode int

const (
	BIOS BootMode = iota
	UEFI
)

func (m BootMode) String() string {
	if m == UEFI {
		return "uefi"
	}
	return "bios"
}

// ParseBootMode interprets an operator-supplied override. The second return
// value is false for anything that is not recognizably bios or uefi, in
// which case the caller keeps the detected value.
func ParseBootMode(s string) (BootMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bios", "legacy", "mbr":
		return BIOS, true
	case "uefi", "efi":
		return UEFI, true
	}
	return BIOS, false
}

// Role identifies what a planned partition is for.
type Role string

const (
	RoleBiosBoot Role = "bios_boot"
	RoleRoot     Role = "root"
	RoleSwap     Role = "swap"
	RoleESP      Role = "esp"
	RoleLVM      Role = "lvm"
)

// Partition is one entry of a partition plan. Offsets are in MiB from the
// start of the disk; ToDiskEnd marks the final partition, which always runs
// to 100% of the disk.
type Partition struct {
	Index     int
	StartMiB  uint64
	EndMiB    uint64 // meaningless when ToDiskEnd is set
	ToDiskEnd bool
	Role      Role
	FSType    string // parted filesystem hint; empty for the BIOS boot partition
	Flags     []string
}

// StartArg returns the partition start as a parted offset argument.
func (p Partition) StartArg() string {
	return fmt.Sprintf("%dMiB", p.StartMiB)
}

// EndArg returns the partition end as a parted offset argument.
func (p Partition) EndArg() string {
	if p.ToDiskEnd {
		return "100%"
	}
	return fmt.Sprintf("%dMiB", p.EndMiB)
}

// Plan is the ordered partition scheme for the destination disk. Once
// computed it is never modified.
type Plan struct {
	Mode       BootMode
	SwapGiB    uint64
	Partitions []Partition
}

const (
	// Root partition always ends at this mark, giving a fixed-size root in
	// both boot modes. Source root usage is not validated against it; the
	// preflight only warns when usage exceeds it.
	rootEndGiB = 37

	gib = uint64(1) << 30
	mib = uint64(1) << 20
)

// SwapGiB returns the planned swap size in GiB for a detected swap size in
// bytes: rounded up to the GiB with a 1 GiB floor.
func SwapGiB(swapSizeBytes uint64) uint64 {
	s := (swapSizeBytes + gib - 1) / gib
	if s < 1 {
		s = 1
	}
	return s
}

// Compute returns the fixed partition scheme for the given boot mode and
// detected swap size. Pure function; no device needs to exist.
//
// UEFI: root, swap, ESP (fat32, boot+esp) filling the rest of the disk.
// BIOS: 1 MiB bios_grub stub, root, swap, LVM partition filling the rest.
func Compute(mode BootMode, swapSizeBytes uint64) Plan {
	swapGiB := SwapGiB(swapSizeBytes)
	rootEnd := uint64(rootEndGiB) * 1024
	swapEnd := rootEnd + swapGiB*1024

	var parts []Partition
	switch mode {
	case UEFI:
		parts = []Partition{
			{Index: 1, StartMiB: 1, EndMiB: rootEnd, Role: RoleRoot, FSType: "ext4"},
			{Index: 2, StartMiB: rootEnd, EndMiB: swapEnd, Role: RoleSwap, FSType: "linux-swap"},
			{Index: 3, StartMiB: swapEnd, ToDiskEnd: true, Role: RoleESP, FSType: "fat32", Flags: []string{"boot", "esp"}},
		}
	default:
		parts = []Partition{
			{Index: 1, StartMiB: 1, EndMiB: 2, Role: RoleBiosBoot, Flags: []string{"bios_grub"}},
			{Index: 2, StartMiB: 2, EndMiB: rootEnd, Role: RoleRoot, FSType: "ext4"},
			{Index: 3, StartMiB: rootEnd, EndMiB: swapEnd, Role: RoleSwap, FSType: "linux-swap"},
			{Index: 4, StartMiB: swapEnd, ToDiskEnd: true, Role: RoleLVM, Flags: []string{"lvm"}},
		}
	}

	return Plan{Mode: mode, SwapGiB: swapGiB, Partitions: parts}
}

// Find returns the planned partition with the given role, if present.
func (p Plan) Find(role Role) (Partition, bool) {
	for _, part := range p.Partitions {
		if part.Role == role {
			return part, true
		}
	}
	return Partition{}, false
}

// RootSizeBytes is the fixed size of the planned root partition.
func (p Plan) RootSizeBytes() uint64 {
	root, ok := p.Find(RoleRoot)
	if !ok {
		return 0
	}
	return (root.EndMiB - root.StartMiB) * mib
}
