package mounts

import (
	"fmt"
	"strings"
	"testing"

	"github.com/karen20ced4/NVME-Migrate/internal/layout"
)

// fakeRunner treats every target as mounted and can be told to fail umount
// for specific targets.
type fakeRunner struct {
	failUmount map[string]bool
	calls      []string
}

func (f *fakeRunner) Run(name string, args ...string) error {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	if name == "umount" {
		target := args[len(args)-1]
		if f.failUmount[target] {
			return fmt.Errorf("busy")
		}
	}
	return nil
}

func (f *fakeRunner) Output(name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if name == "findmnt" {
		// Report everything as mounted.
		return []byte(args[len(args)-1]), nil
	}
	return nil, nil
}

func (f *fakeRunner) RunStreamed(name string, args ...string) error {
	return f.Run(name, args...)
}

func (f *fakeRunner) umountTargets() []string {
	var targets []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, "umount ") && !strings.Contains(c, "-lf") {
			fields := strings.Fields(c)
			targets = append(targets, fields[len(fields)-1])
		}
	}
	return targets
}

func TestTeardownOrderUEFI(t *testing.T) {
	r := &fakeRunner{}
	if err := Teardown(r, "/mnt/newroot", layout.UEFI); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"/mnt/newroot/home",
		"/mnt/newroot/boot/efi",
		"/mnt/newroot/sys/firmware/efi/efivars",
		"/mnt/newroot/run",
		"/mnt/newroot/sys",
		"/mnt/newroot/proc",
		"/mnt/newroot/dev/pts",
		"/mnt/newroot/dev",
		"/mnt/newroot",
	}
	got := r.umountTargets()
	if len(got) != len(want) {
		t.Fatalf("unmounted %d targets, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: unmounted %s, want %s", i, got[i], want[i])
		}
	}
}

func TestTeardownContinuesPastFailures(t *testing.T) {
	r := &fakeRunner{failUmount: map[string]bool{
		"/mnt/newroot/proc": true,
		"/mnt/newroot/dev":  true,
	}}

	err := Teardown(r, "/mnt/newroot", layout.BIOS)
	if err == nil {
		t.Fatalf("expected aggregated error")
	}

	// The final root unmount must still have been attempted.
	targets := r.umountTargets()
	if targets[len(targets)-1] != "/mnt/newroot" {
		t.Fatalf("new root was not unmounted last: %v", targets)
	}

	// Failed targets get the lazy/forced fallback.
	var lazy int
	for _, c := range r.calls {
		if strings.Contains(c, "umount -lf") {
			lazy++
		}
	}
	if lazy != 2 {
		t.Errorf("expected 2 lazy unmount fallbacks, got %d", lazy)
	}
}
