package bootloader

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/karen20ced4/NVME-Migrate/internal/execute"
	"github.com/karen20ced4/NVME-Migrate/internal/layout"
	"github.com/karen20ced4/NVME-Migrate/internal/mounts"
)

// Install puts a working bootloader on the destination disk, operating inside
// the new root via chroot. The pseudo-filesystems must already be bound.
// extraDev is the ESP partition under UEFI and is unused under BIOS, where
// grub targets the whole disk. Failure here is fatal: a destination that
// cannot boot invalidates the migration.
func Install(r execute.Runner, newRoot string, mode layout.BootMode, disk, extraDev string) error {
	if mode == layout.UEFI {
		return installUEFI(r, newRoot, extraDev)
	}
	return installBIOS(r, newRoot, disk)
}

func installUEFI(r execute.Runner, newRoot, espDev string) error {
	espMount := filepath.Join(newRoot, "boot/efi")
	if err := mounts.Mount(r, espDev, espMount); err != nil {
		return fmt.Errorf("mount ESP: %w", err)
	}

	// The /sys bind is not recursive, so the firmware-variables filesystem
	// has to be mounted separately or grub-install cannot write the NVRAM
	// boot entry from inside the chroot.
	if err := mounts.MountEfivars(r, newRoot); err != nil {
		return fmt.Errorf("mount efivars: %w", err)
	}

	// Carry over whatever the running system keeps on its ESP, so existing
	// loader entries survive.
	if entries, err := os.ReadDir("/boot/efi"); err == nil && len(entries) > 0 {
		if err := r.Run("rsync", "-a", "/boot/efi/", espMount+"/"); err != nil {
			return fmt.Errorf("copy existing ESP contents: %w", err)
		}
	}

	if err := chroot(r, newRoot, "update-initramfs", "-u", "-k", "all"); err != nil {
		return fmt.Errorf("regenerate initramfs: %w", err)
	}
	if err := chroot(r, newRoot, "grub-install", "--target=x86_64-efi",
		"--efi-directory=/boot/efi", "--bootloader-id=debian", "--recheck"); err != nil {
		return fmt.Errorf("grub-install (UEFI): %w", err)
	}
	if err := chroot(r, newRoot, "update-grub"); err != nil {
		return fmt.Errorf("update-grub: %w", err)
	}
	return nil
}

func installBIOS(r execute.Runner, newRoot, disk string) error {
	if err := chroot(r, newRoot, "update-initramfs", "-u", "-k", "all"); err != nil {
		return fmt.Errorf("regenerate initramfs: %w", err)
	}

	// Legacy install targets the whole disk, not a partition. One retry
	// after a forced grub-pc install covers systems that shipped without
	// the legacy loader package.
	if err := chroot(r, newRoot, "grub-install", "--target=i386-pc", "--recheck", disk); err != nil {
		log.Printf("grub-install failed (%v), installing grub-pc and retrying", err)
		if ierr := chrootEnv(r, newRoot, []string{"DEBIAN_FRONTEND=noninteractive"},
			"apt-get", "install", "-y", "grub-pc"); ierr != nil {
			return fmt.Errorf("install grub-pc package: %w", ierr)
		}
		if err := chroot(r, newRoot, "grub-install", "--target=i386-pc", "--recheck", disk); err != nil {
			return fmt.Errorf("grub-install (BIOS) after package install: %w", err)
		}
	}

	if err := chroot(r, newRoot, "update-grub"); err != nil {
		return fmt.Errorf("update-grub: %w", err)
	}
	return nil
}

func chroot(r execute.Runner, newRoot string, args ...string) error {
	return r.Run("chroot", append([]string{newRoot}, args...)...)
}

func chrootEnv(r execute.Runner, newRoot string, env []string, args ...string) error {
	// env stops option parsing at the first NAME=VALUE operand, so the
	// command follows the assignments directly.
	full := append([]string{newRoot, "env"}, env...)
	full = append(full, args...)
	return r.Run("chroot", full...)
}

// FilesystemUUID reads the filesystem UUID of a device via blkid.
func FilesystemUUID(r execute.Runner, dev string) (string, error) {
	out, err := r.Output("blkid", "-s", "UUID", "-o", "value", dev)
	if err != nil {
		return "", fmt.Errorf("read UUID of %s: %w", dev, err)
	}
	uuid := strings.TrimSpace(string(out))
	if uuid == "" {
		return "", fmt.Errorf("no UUID on %s", dev)
	}
	return uuid, nil
}
