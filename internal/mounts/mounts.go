package mounts

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/karen20ced4/NVME-Migrate/internal/execute"
	"github.com/karen20ced4/NVME-Migrate/internal/layout"
)

// pseudoFilesystems are bind-mounted into the new root so that bootloader
// installation can run in a chroot-equivalent context. Order matters:
// /dev/pts must follow /dev.
var pseudoFilesystems = []string{"/dev", "/dev/pts", "/proc", "/sys", "/run"}

// Mount mounts a device on target, creating the target directory first.
func Mount(r execute.Runner, dev, target string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create mountpoint %s: %w", target, err)
	}
	return r.Run("mount", dev, target)
}

// Bind bind-mounts src onto target inside the new root.
func Bind(r execute.Runner, src, target string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create mountpoint %s: %w", target, err)
	}
	return r.Run("mount", "--bind", src, target)
}

// BindPseudo bind-mounts the live pseudo-filesystems into the new root.
func BindPseudo(r execute.Runner, newRoot string) error {
	for _, src := range pseudoFilesystems {
		target := filepath.Join(newRoot, src)
		if err := Bind(r, src, target); err != nil {
			return err
		}
	}
	return nil
}

// MountEfivars mounts the firmware-variables filesystem inside the new
// root. The pseudo-filesystem binds are not recursive, so efivars does not
// travel with /sys and needs its own mount.
func MountEfivars(r execute.Runner, newRoot string) error {
	target := filepath.Join(newRoot, "sys/firmware/efi/efivars")
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create mountpoint %s: %w", target, err)
	}
	return r.Run("mount", "-t", "efivarfs", "efivarfs", target)
}

// Unmount unmounts a target, falling back to a lazy forced unmount when the
// normal one fails.
func Unmount(r execute.Runner, target string) error {
	if err := r.Run("umount", target); err != nil {
		return r.Run("umount", "-lf", target)
	}
	return nil
}

// IsMounted reports whether something is mounted at target.
func IsMounted(r execute.Runner, target string) bool {
	out, err := r.Output("findmnt", "-n", "-o", "TARGET", target)
	return err == nil && len(out) > 0
}

// Teardown unwinds every mount below the new root in strict reverse order of
// mounting. Every attempt is independent: a failed unmount is collected and
// the rest are still tried. The aggregate is informational only and never
// escalates past the step failure that triggered teardown.
func Teardown(r execute.Runner, newRoot string, mode layout.BootMode) error {
	targets := []string{
		filepath.Join(newRoot, "home"),
	}
	if mode == layout.UEFI {
		targets = append(targets,
			filepath.Join(newRoot, "boot/efi"),
			filepath.Join(newRoot, "sys/firmware/efi/efivars"),
		)
	}
	for i := len(pseudoFilesystems) - 1; i >= 0; i-- {
		targets = append(targets, filepath.Join(newRoot, pseudoFilesystems[i]))
	}
	targets = append(targets, newRoot)

	var result *multierror.Error
	for _, target := range targets {
		if !IsMounted(r, target) {
			continue
		}
		if err := Unmount(r, target); err != nil {
			result = multierror.Append(result, fmt.Errorf("unmount %s: %w", target, err))
		}
	}
	return result.ErrorOrNil()
}
