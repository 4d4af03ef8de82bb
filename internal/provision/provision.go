package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"

	"github.com/karen20ced4/NVME-Migrate/internal/execute"
	"github.com/karen20ced4/NVME-Migrate/internal/layout"
	"github.com/karen20ced4/NVME-Migrate/internal/mounts"
)

// nodeWaitRetries bounds the settle-and-retry loop for partition device
// nodes after the table is written.
const nodeWaitRetries = 10

// ErrCopyFailed marks a failure of the full-tree copy. The session leaves
// the new root mounted for inspection instead of tearing down.
var ErrCopyFailed = errors.New("system copy failed")

// topLevelDirs are created empty in the new root before the copy. Their
// live contents are either pseudo-filesystems or migrated separately.
var topLevelDirs = []string{"dev", "proc", "sys", "run", "tmp", "mnt", "media", "home"}

// copyExcludes keeps pseudo-filesystems, volatile trees and the separately
// migrated /home out of the file copy.
var copyExcludes = []string{
	"/dev/*", "/proc/*", "/sys/*", "/run/*", "/tmp/*", "/var/tmp/*",
	"/mnt/*", "/media/*", "/lost+found", "/home/*",
}

// CheckBlockDevice fails unless path exists and is a block device.
func CheckBlockDevice(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fmt.Errorf("cannot stat %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFBLK {
		return fmt.Errorf("%s is not a block device", path)
	}
	return nil
}

// RootUsageBytes returns the number of bytes in use on the root filesystem.
// Used by the preflight to warn when usage exceeds the fixed root size.
func RootUsageBytes() (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs("/", &st); err != nil {
		return 0, err
	}
	return (st.Blocks - st.Bfree) * uint64(st.Bsize), nil
}

// PartedCommands returns the parted invocations that realize a plan on the
// given disk. Split out of Provision so the command construction is testable
// without a device.
func PartedCommands(disk string, plan layout.Plan) [][]string {
	cmds := [][]string{
		{"parted", "-s", disk, "mklabel", "gpt"},
	}
	for _, part := range plan.Partitions {
		mkpart := []string{"parted", "-s", disk, "mkpart", string(part.Role)}
		if part.FSType != "" {
			mkpart = append(mkpart, part.FSType)
		}
		mkpart = append(mkpart, part.StartArg(), part.EndArg())
		cmds = append(cmds, mkpart)

		for _, flag := range part.Flags {
			cmds = append(cmds, []string{"parted", "-s", disk, "set", fmt.Sprint(part.Index), flag, "on"})
		}
	}
	return cmds
}

// Provision applies a plan to the destination disk and copies the live
// system into the new root: partition table, filesystems, mounts, full-tree
// copy, pseudo-filesystem binds. Destroys all data on the disk; callers must
// have confirmed with the operator before calling. Any failure is fatal to
// the session.
func Provision(r execute.Runner, disk string, plan layout.Plan, newRoot string, extraExcludes []string) (layout.NodeSet, error) {
	var nodes layout.NodeSet

	if err := CheckBlockDevice(disk); err != nil {
		return nodes, err
	}

	for _, cmd := range PartedCommands(disk, plan) {
		if err := r.Run(cmd[0], cmd[1:]...); err != nil {
			return nodes, fmt.Errorf("partitioning %s: %w", disk, err)
		}
	}

	nodes = layout.Nodes(plan, disk)
	for _, dev := range []string{nodes.Root, nodes.Swap, nodes.Extra} {
		if err := waitForNode(r, disk, dev); err != nil {
			return nodes, err
		}
	}

	if err := format(r, plan, nodes); err != nil {
		return nodes, err
	}

	if err := mounts.Mount(r, nodes.Root, newRoot); err != nil {
		return nodes, fmt.Errorf("mount new root: %w", err)
	}
	for _, dir := range topLevelDirs {
		if err := os.MkdirAll(filepath.Join(newRoot, dir), 0o755); err != nil {
			return nodes, fmt.Errorf("create %s in new root: %w", dir, err)
		}
	}

	if err := copyTree(r, newRoot, extraExcludes); err != nil {
		// The new root stays mounted for operator inspection.
		return nodes, err
	}

	if err := mounts.BindPseudo(r, newRoot); err != nil {
		return nodes, err
	}

	return nodes, nil
}

// waitForNode waits for a partition device node to appear, re-reading the
// partition table and settling udev between bounded retries.
func waitForNode(r execute.Runner, disk, dev string) error {
	attempt := 0
	check := func() error {
		attempt++
		if _, err := os.Stat(dev); err == nil {
			return nil
		}
		_ = r.Run("partprobe", disk)
		_ = r.Run("udevadm", "settle")
		return fmt.Errorf("device node %s not present (attempt %d)", dev, attempt)
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), nodeWaitRetries)
	if err := backoff.Retry(check, policy); err != nil {
		return fmt.Errorf("timed out waiting for %s: %w", dev, err)
	}
	return nil
}

// format creates the filesystems the plan asks for. The BIOS boot partition
// carries no filesystem; the LVM partition is initialized later by the
// volume-group extend.
func format(r execute.Runner, plan layout.Plan, nodes layout.NodeSet) error {
	if err := r.Run("mkfs.ext4", "-F", nodes.Root); err != nil {
		return fmt.Errorf("format root %s: %w", nodes.Root, err)
	}
	if err := r.Run("mkswap", nodes.Swap); err != nil {
		return fmt.Errorf("format swap %s: %w", nodes.Swap, err)
	}
	if plan.Mode == layout.UEFI {
		if err := r.Run("mkfs.vfat", "-F32", nodes.Extra); err != nil {
			return fmt.Errorf("format ESP %s: %w", nodes.Extra, err)
		}
	}
	return nil
}

// copyTree copies the live filesystem into the new root, preserving
// attributes and hardlinks and excluding everything that must not travel.
func copyTree(r execute.Runner, newRoot string, extraExcludes []string) error {
	args := []string{"-aAXH", "--numeric-ids", "--info=progress2"}
	for _, e := range copyExcludes {
		args = append(args, "--exclude="+e)
	}
	// The mount root itself would otherwise be copied into itself.
	args = append(args, "--exclude="+newRoot+"/*")
	for _, e := range extraExcludes {
		args = append(args, "--exclude="+e)
	}
	args = append(args, "/", newRoot+"/")

	if err := r.RunStreamed("rsync", args...); err != nil {
		return fmt.Errorf("%w: %v", ErrCopyFailed, err)
	}
	return nil
}
