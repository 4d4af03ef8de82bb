package lvm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeRunner serves canned output per command name and records every
// invocation.
type fakeRunner struct {
	outputs map[string][]byte
	fail    map[string]error
	calls   []string
}

func (f *fakeRunner) record(name string, args []string) string {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	return call
}

func (f *fakeRunner) Run(name string, args ...string) error {
	f.record(name, args)
	if err, ok := f.fail[name]; ok {
		return err
	}
	return nil
}

func (f *fakeRunner) Output(name string, args ...string) ([]byte, error) {
	f.record(name, args)
	if err, ok := f.fail[name]; ok {
		return nil, err
	}
	return f.outputs[name], nil
}

func (f *fakeRunner) RunStreamed(name string, args ...string) error {
	return f.Run(name, args...)
}

func (f *fakeRunner) called(prefix string) bool {
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

const pvsJSON = `{"report":[{"pv":[
  {"pv_name":"/dev/sda4","vg_name":"vg0","pv_uuid":"abc","pv_size":"500000000000","pv_free":"0"},
  {"pv_name":"/dev/nvme0n1p4","vg_name":"vg0","pv_uuid":"def","pv_size":"900000000000","pv_free":"900000000000"}
]}]}`

const vgsJSON = `{"report":[{"vg":[
  {"vg_name":"vg0","vg_size":"1400000000000","vg_free":"900000000000","vg_free_count":"214576"}
]}]}`

const lvsJSON = `{"report":[{"lv":[
  {"lv_name":"home","vg_name":"vg0","lv_path":"/dev/vg0/home"}
]}]}`

func TestListPVs(t *testing.T) {
	r := &fakeRunner{outputs: map[string][]byte{"pvs": []byte(pvsJSON)}}
	pvs, err := NewClient(r).ListPVs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pvs) != 2 {
		t.Fatalf("expected 2 PVs, got %d", len(pvs))
	}
	if pvs[0].Name != "/dev/sda4" || pvs[0].VGName != "vg0" {
		t.Errorf("unexpected first PV: %+v", pvs[0])
	}
	if pvs[1].Size != 900000000000 {
		t.Errorf("size not parsed: %+v", pvs[1])
	}
}

func TestGetVG(t *testing.T) {
	r := &fakeRunner{outputs: map[string][]byte{"vgs": []byte(vgsJSON)}}
	vg, err := NewClient(r).GetVG("vg0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vg.FreeExtents != 214576 {
		t.Errorf("free extents = %d", vg.FreeExtents)
	}

	if _, err := NewClient(r).GetVG("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIsVGMember(t *testing.T) {
	r := &fakeRunner{outputs: map[string][]byte{"pvs": []byte(pvsJSON)}}
	c := NewClient(r)

	member, err := c.IsVGMember("vg0", "/dev/nvme0n1p4")
	if err != nil || !member {
		t.Errorf("expected member, got %v/%v", member, err)
	}

	member, err = c.IsVGMember("vg0", "/dev/sdz1")
	if err != nil || member {
		t.Errorf("expected non-member, got %v/%v", member, err)
	}
}

func TestIdentifyOldPV(t *testing.T) {
	r := &fakeRunner{outputs: map[string][]byte{"pvs": []byte(pvsJSON)}}
	co := NewCoordinator(NewClient(r))

	pv, err := co.IdentifyOldPV("vg0", "/dev/sda")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pv != "/dev/sda4" {
		t.Errorf("old PV = %q", pv)
	}

	if _, err := co.IdentifyOldPV("vg0", "/dev/vdb"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRelocateRequiresMembership(t *testing.T) {
	// /dev/sdz9 is not a member and the confirmation declines the extend,
	// so no pvmove must be issued.
	r := &fakeRunner{outputs: map[string][]byte{"pvs": []byte(pvsJSON)}}
	co := NewCoordinator(NewClient(r))
	co.Confirm = func(string, bool) bool { return false }

	err := co.Relocate("vg0", "/dev/sda4", "/dev/sdz9")
	if err == nil {
		t.Fatalf("expected error for non-member PV")
	}
	if r.called("pvmove") {
		t.Fatalf("pvmove must not run before membership is established")
	}
}

func TestRelocateRunsOncePerSession(t *testing.T) {
	r := &fakeRunner{outputs: map[string][]byte{"pvs": []byte(pvsJSON)}}
	co := NewCoordinator(NewClient(r))

	if err := co.Relocate("vg0", "/dev/sda4", "/dev/nvme0n1p4"); err != nil {
		t.Fatalf("first relocate failed: %v", err)
	}
	if !r.called("pvmove") {
		t.Fatalf("expected pvmove to run")
	}
	if !r.called("vgreduce vg0 /dev/sda4") {
		t.Fatalf("expected vgreduce of the old PV")
	}

	if err := co.Relocate("vg0", "/dev/sda4", "/dev/nvme0n1p4"); err == nil {
		t.Fatalf("second relocate must be refused")
	}
}

func TestRelocateSurfacesRecoveryGuidance(t *testing.T) {
	r := &fakeRunner{
		outputs: map[string][]byte{"pvs": []byte(pvsJSON)},
		fail:    map[string]error{"pvmove": fmt.Errorf("interrupted")},
	}
	co := NewCoordinator(NewClient(r))

	err := co.Relocate("vg0", "/dev/sda4", "/dev/nvme0n1p4")
	var relErr *RelocationError
	if !errors.As(err, &relErr) {
		t.Fatalf("expected RelocationError, got %v", err)
	}
	if !strings.Contains(relErr.Recovery(), "pvmove --abort") {
		t.Errorf("recovery guidance missing abort instruction: %q", relErr.Recovery())
	}
	if r.called("vgreduce") {
		t.Errorf("vgreduce must not run after a failed pvmove")
	}
}

func TestGrowHomeSkipsWithoutFreeExtents(t *testing.T) {
	empty := `{"report":[{"vg":[{"vg_name":"vg0","vg_size":"1","vg_free":"0","vg_free_count":"0"}]}]}`
	r := &fakeRunner{outputs: map[string][]byte{"vgs": []byte(empty)}}
	co := NewCoordinator(NewClient(r))

	if err := co.GrowHome("vg0", "home", "ext4", "/home"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.called("lvextend") {
		t.Errorf("lvextend must not run without free extents")
	}
}

func TestGrowHomeUnknownFSTypeIsNotFatal(t *testing.T) {
	r := &fakeRunner{outputs: map[string][]byte{"vgs": []byte(vgsJSON)}}
	co := NewCoordinator(NewClient(r))

	if err := co.GrowHome("vg0", "home", "btrfs", "/home"); err != nil {
		t.Fatalf("unknown fstype should not be fatal: %v", err)
	}
	if !r.called("lvextend") {
		t.Errorf("lvextend should still run")
	}
	if r.called("resize2fs") || r.called("xfs_growfs") {
		t.Errorf("no filesystem resize should run for unknown fstype")
	}
}
