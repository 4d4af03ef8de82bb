package topology

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/karen20ced4/NVME-Migrate/internal/execute"
	"github.com/karen20ced4/NVME-Migrate/internal/layout"
	"github.com/karen20ced4/NVME-Migrate/internal/lvm"
)

// Snapshot describes the source system as found at the start of a run. It is
// captured once and read-only afterwards; every later stage works from it.
// Absent swap or an absent /home logical volume are valid states, not
// errors: SwapDevice/VGName are simply empty.
type Snapshot struct {
	BootMode      layout.BootMode `json:"boot_mode"`
	RootDevice    string          `json:"root_device"`
	RootDisk      string          `json:"root_disk"`
	SwapDevice    string          `json:"swap_device,omitempty"`
	SwapSizeBytes uint64          `json:"swap_size_bytes,omitempty"`
	VGName        string          `json:"vg_name,omitempty"`
	LVName        string          `json:"lv_name,omitempty"`
	HomeDevice    string          `json:"home_device,omitempty"`
	HomeFSType    string          `json:"home_fstype,omitempty"`
}

func (s Snapshot) HasSwap() bool   { return s.SwapDevice != "" }
func (s Snapshot) HasHomeLV() bool { return s.VGName != "" && s.LVName != "" }

// efiFirmwarePath is the firmware interface whose presence indicates UEFI.
var efiFirmwarePath = "/sys/firmware/efi"

// DetectBootMode checks for the UEFI firmware interface exposed by the
// kernel. The operator can still override the result.
func DetectBootMode() layout.BootMode {
	if _, err := os.Stat(efiFirmwarePath); err == nil {
		return layout.UEFI
	}
	return layout.BIOS
}

// Detect inspects the running system and returns a best-effort snapshot.
// Only the root device and its parent disk are mandatory.
func Detect(r execute.Runner) (*Snapshot, error) {
	snap := &Snapshot{BootMode: DetectBootMode()}

	rootDev, err := rootDevice(r)
	if err != nil {
		return nil, err
	}
	snap.RootDevice = rootDev
	snap.RootDisk = parentDisk(r, rootDev)

	if data, err := os.ReadFile("/proc/swaps"); err == nil {
		dev, size := parseSwaps(string(data))
		snap.SwapDevice = dev
		snap.SwapSizeBytes = size
	}

	detectHome(r, snap)

	return snap, nil
}

// rootDevice resolves the device backing the root mount, preferring findmnt
// and falling back to /proc/self/mounts.
func rootDevice(r execute.Runner) (string, error) {
	if out, err := r.Output("findmnt", "-n", "-o", "SOURCE", "/"); err == nil {
		dev := strings.TrimSpace(string(out))
		if dev != "" {
			return resolve(dev), nil
		}
	}

	data, err := os.ReadFile("/proc/self/mounts")
	if err != nil {
		return "", errors.New("cannot determine root device")
	}
	dev, err := parseRootDevice(string(data))
	if err != nil {
		return "", err
	}
	return resolve(dev), nil
}

// parentDisk resolves a partition device to its whole-disk parent. The
// kernel's parent lookup (lsblk PKNAME) handles device-mapper and virtual
// names; suffix stripping is the fallback when no parent is reported.
func parentDisk(r execute.Runner, dev string) string {
	if out, err := r.Output("lsblk", "-no", "PKNAME", dev); err == nil {
		name := strings.TrimSpace(string(out))
		// Nested devices report one line per layer; take the first.
		if i := strings.IndexByte(name, '\n'); i >= 0 {
			name = name[:i]
		}
		if name != "" {
			return "/dev/" + name
		}
	}
	return layout.BaseDisk(dev)
}

// detectHome fills in the VG/LV identity behind /home, when it is a logical
// volume. Nothing is set when /home is not a separate LVM mount.
func detectHome(r execute.Runner, snap *Snapshot) {
	out, err := r.Output("findmnt", "-n", "-o", "SOURCE,FSTYPE", "/home")
	if err != nil {
		return
	}
	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) == 0 {
		return
	}
	homeDev := resolve(fields[0])
	snap.HomeDevice = homeDev
	if len(fields) > 1 {
		snap.HomeFSType = fields[1]
	}

	lvs, err := lvm.NewClient(r).ListLVs()
	if err != nil {
		return
	}
	for _, lv := range lvs {
		if resolve(lv.Path) == homeDev {
			snap.VGName = lv.VGName
			snap.LVName = lv.Name
			return
		}
	}
}

// parseRootDevice finds the device mounted at "/" in /proc/self/mounts
// content.
func parseRootDevice(mounts string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(mounts))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if fields[1] == "/" {
			return fields[0], nil
		}
	}
	return "", errors.New("root mount not found")
}

// parseSwaps returns the first device entry of /proc/swaps and its size in
// bytes. The size column is KiB.
func parseSwaps(content string) (string, uint64) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Filename") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		kib, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			continue
		}
		return fields[0], kib * 1024
	}
	return "", 0
}

func resolve(dev string) string {
	if dev == "" {
		return ""
	}
	resolved, err := filepath.EvalSymlinks(dev)
	if err != nil {
		return dev
	}
	return resolved
}
