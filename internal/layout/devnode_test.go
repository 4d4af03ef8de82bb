package layout

import "testing"

func TestPartitionDevice(t *testing.T) {
	cases := []struct {
		disk  string
		index int
		want  string
	}{
		{"/dev/sda", 1, "/dev/sda1"},
		{"/dev/sdb", 3, "/dev/sdb3"},
		{"sdb", 2, "/dev/sdb2"},
		{"/dev/nvme0n1", 1, "/dev/nvme0n1p1"},
		{"/dev/nvme1n1", 4, "/dev/nvme1n1p4"},
		{"/dev/mmcblk0", 2, "/dev/mmcblk0p2"},
		{"/dev/vdb", 1, "/dev/vdb1"},
	}
	for _, c := range cases {
		if got := PartitionDevice(c.disk, c.index); got != c.want {
			t.Errorf("PartitionDevice(%q, %d) = %q, want %q", c.disk, c.index, got, c.want)
		}
	}
}

func TestNodesUEFI(t *testing.T) {
	plan := Compute(UEFI, 1<<30)
	nodes := Nodes(plan, "/dev/nvme1n1")

	if nodes.Root != "/dev/nvme1n1p1" {
		t.Errorf("root = %q", nodes.Root)
	}
	if nodes.Swap != "/dev/nvme1n1p2" {
		t.Errorf("swap = %q", nodes.Swap)
	}
	if nodes.Extra != "/dev/nvme1n1p3" {
		t.Errorf("extra (ESP) = %q", nodes.Extra)
	}
}

func TestNodesBIOS(t *testing.T) {
	plan := Compute(BIOS, 1<<30)
	nodes := Nodes(plan, "/dev/sdb")

	if nodes.Root != "/dev/sdb2" {
		t.Errorf("root = %q", nodes.Root)
	}
	if nodes.Swap != "/dev/sdb3" {
		t.Errorf("swap = %q", nodes.Swap)
	}
	if nodes.Extra != "/dev/sdb4" {
		t.Errorf("extra (LVM) = %q", nodes.Extra)
	}
}

func TestBaseDisk(t *testing.T) {
	cases := []struct {
		dev  string
		want string
	}{
		{"/dev/sda1", "/dev/sda"},
		{"/dev/sdb", "/dev/sdb"},
		{"/dev/nvme0n1p2", "/dev/nvme0n1"},
		{"/dev/mmcblk0p1", "/dev/mmcblk0"},
		{"/dev/vda3", "/dev/vda"},
		{"/dev/mapper/vg0-home", "/dev/mapper/vg0-home"},
	}
	for _, c := range cases {
		if got := BaseDisk(c.dev); got != c.want {
			t.Errorf("BaseDisk(%q) = %q, want %q", c.dev, got, c.want)
		}
	}
}

func TestLooksLikePartition(t *testing.T) {
	cases := []struct {
		dev  string
		want bool
	}{
		{"/dev/sda1", true},
		{"/dev/sda", false},
		{"/dev/nvme0n1", false},
		{"/dev/nvme0n1p1", true},
		{"/dev/mmcblk0", false},
		{"/dev/mmcblk0p3", true},
		{"sdb2", true},
	}
	for _, c := range cases {
		if got := LooksLikePartition(c.dev); got != c.want {
			t.Errorf("LooksLikePartition(%q) = %v, want %v", c.dev, got, c.want)
		}
	}
}
