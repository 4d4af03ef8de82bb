package bootloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karen20ced4/NVME-Migrate/internal/execute"
	"github.com/karen20ced4/NVME-Migrate/internal/layout"
)

// fstabBackupFormat is the timestamp appended to a preserved fstab.
const fstabBackupFormat = "20060102-150405"

// FstabEntry is one line of the generated mount configuration.
type FstabEntry struct {
	Source     string
	Target     string
	FSType     string
	Options    string
	Dump, Pass int
}

// BuildFstab resolves UUIDs for the provisioned filesystems and returns the
// entries for the new root's /etc/fstab. Entries are UUID-keyed; the
// LVM-backed /home keeps its unchanged device path and is emitted as a
// comment placeholder by Render.
func BuildFstab(r execute.Runner, nodes layout.NodeSet, mode layout.BootMode) ([]FstabEntry, error) {
	rootUUID, err := FilesystemUUID(r, nodes.Root)
	if err != nil {
		return nil, err
	}

	entries := []FstabEntry{
		{Source: "UUID=" + rootUUID, Target: "/", FSType: "ext4", Options: "errors=remount-ro", Pass: 1},
	}

	if nodes.Swap != "" {
		swapUUID, err := FilesystemUUID(r, nodes.Swap)
		if err != nil {
			return nil, err
		}
		entries = append(entries, FstabEntry{
			Source: "UUID=" + swapUUID, Target: "none", FSType: "swap", Options: "sw",
		})
	}

	if mode == layout.UEFI {
		espUUID, err := FilesystemUUID(r, nodes.Extra)
		if err != nil {
			return nil, err
		}
		entries = append(entries, FstabEntry{
			Source: "UUID=" + espUUID, Target: "/boot/efi", FSType: "vfat", Options: "umask=0077", Pass: 1,
		})
	}

	return entries, nil
}

// RenderFstab produces the fstab file content. homeDevice, when set, is the
// unchanged LVM device path behind /home, preserved as a commented entry for
// the operator to re-enable after the volume group migration.
func RenderFstab(entries []FstabEntry, homeDevice string) string {
	var b strings.Builder
	b.WriteString("# /etc/fstab: static file system information.\n")
	b.WriteString("# Generated by nvme-migrate.\n")
	b.WriteString("# <file system> <mount point> <type> <options> <dump> <pass>\n")
	for _, e := range entries {
		opts := e.Options
		if opts == "" {
			opts = "defaults"
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%d\t%d\n", e.Source, e.Target, e.FSType, opts, e.Dump, e.Pass)
	}
	if homeDevice != "" {
		b.WriteString("# /home stays on its logical volume; device path is unchanged by the migration.\n")
		fmt.Fprintf(&b, "#%s\t/home\text4\tdefaults\t0\t2\n", homeDevice)
	}
	return b.String()
}

// WriteFstab writes the rendered fstab into the new root, preserving any
// existing file as a timestamped backup first.
func WriteFstab(r execute.Runner, newRoot string, nodes layout.NodeSet, mode layout.BootMode, homeDevice string) error {
	entries, err := BuildFstab(r, nodes, mode)
	if err != nil {
		return err
	}

	path := filepath.Join(newRoot, "etc", "fstab")
	if _, err := os.Stat(path); err == nil {
		backup := path + ".bak." + time.Now().Format(fstabBackupFormat)
		if err := os.Rename(path, backup); err != nil {
			return fmt.Errorf("back up existing fstab: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(RenderFstab(entries, homeDevice)), 0o644); err != nil {
		return fmt.Errorf("write fstab: %w", err)
	}
	return nil
}
