package topology

import (
	"fmt"
	"strings"
	"testing"
)

type fakeRunner struct {
	outputs map[string]string
}

func (f *fakeRunner) key(name string, args []string) string {
	return name + " " + strings.Join(args, " ")
}

func (f *fakeRunner) Run(name string, args ...string) error { return nil }

func (f *fakeRunner) Output(name string, args ...string) ([]byte, error) {
	if out, ok := f.outputs[f.key(name, args)]; ok {
		return []byte(out), nil
	}
	return nil, fmt.Errorf("no output for %s", f.key(name, args))
}

func (f *fakeRunner) RunStreamed(name string, args ...string) error { return nil }

func TestParseSwaps(t *testing.T) {
	content := "Filename\t\t\t\tType\t\tSize\t\tUsed\t\tPriority\n" +
		"/dev/sda2                               partition\t2097148\t\t0\t\t-2\n"

	dev, size := parseSwaps(content)
	if dev != "/dev/sda2" {
		t.Errorf("device = %q", dev)
	}
	if size != 2097148*1024 {
		t.Errorf("size = %d", size)
	}
}

func TestParseSwapsEmpty(t *testing.T) {
	dev, size := parseSwaps("Filename\t\t\t\tType\t\tSize\t\tUsed\t\tPriority\n")
	if dev != "" || size != 0 {
		t.Errorf("expected no swap, got %q/%d", dev, size)
	}
}

func TestParseRootDevice(t *testing.T) {
	mounts := "sysfs /sys sysfs rw 0 0\n" +
		"/dev/nvme0n1p2 / ext4 rw,relatime 0 0\n" +
		"/dev/nvme0n1p1 /boot/efi vfat rw 0 0\n"

	dev, err := parseRootDevice(mounts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev != "/dev/nvme0n1p2" {
		t.Errorf("device = %q", dev)
	}

	if _, err := parseRootDevice("sysfs /sys sysfs rw 0 0\n"); err == nil {
		t.Errorf("expected error when no root mount present")
	}
}

func TestParentDiskUsesKernelParent(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{
		"lsblk -no PKNAME /dev/nvme0n1p2": "nvme0n1\n",
	}}
	if got := parentDisk(r, "/dev/nvme0n1p2"); got != "/dev/nvme0n1" {
		t.Errorf("parentDisk = %q", got)
	}
}

func TestParentDiskFallsBackToSuffixStripping(t *testing.T) {
	// lsblk knows nothing about the device; the numeric-suffix rule applies.
	r := &fakeRunner{outputs: map[string]string{}}
	if got := parentDisk(r, "/dev/sdc3"); got != "/dev/sdc" {
		t.Errorf("parentDisk = %q", got)
	}
	if got := parentDisk(r, "/dev/nvme1n1p3"); got != "/dev/nvme1n1" {
		t.Errorf("parentDisk = %q", got)
	}
}

func TestSnapshotPredicates(t *testing.T) {
	var snap Snapshot
	if snap.HasSwap() || snap.HasHomeLV() {
		t.Errorf("empty snapshot must report no swap and no home LV")
	}

	snap.SwapDevice = "/dev/sda2"
	snap.VGName = "vg0"
	if !snap.HasSwap() || snap.HasHomeLV() {
		t.Errorf("VG without LV name must not count as home LV")
	}

	snap.LVName = "home"
	if !snap.HasHomeLV() {
		t.Errorf("expected home LV")
	}
}
