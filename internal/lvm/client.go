package lvm

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/karen20ced4/NVME-Migrate/internal/execute"
)

// ErrNotFound is returned when a PV, VG or LV cannot be located.
var ErrNotFound = errors.New("not found")

// Client wraps the LVM command-line tools behind structured calls so the
// pipeline never parses tool output itself.
type Client struct {
	r execute.Runner
}

func NewClient(r execute.Runner) *Client {
	return &Client{r: r}
}

// PV is one physical volume as reported by pvs.
type PV struct {
	Name   string
	VGName string
	UUID   string
	Size   uint64
	Free   uint64
}

// VG is one volume group as reported by vgs.
type VG struct {
	Name        string
	Size        uint64
	Free        uint64
	FreeExtents uint64
}

// LV is one logical volume as reported by lvs.
type LV struct {
	Name   string
	VGName string
	Path   string
}

type pvReport struct {
	Report []struct {
		PV []struct {
			PVName string `json:"pv_name"`
			VGName string `json:"vg_name"`
			PVUUID string `json:"pv_uuid"`
			PVSize string `json:"pv_size"`
			PVFree string `json:"pv_free"`
		} `json:"pv"`
	} `json:"report"`
}

type vgReport struct {
	Report []struct {
		VG []struct {
			VGName      string `json:"vg_name"`
			VGSize      string `json:"vg_size"`
			VGFree      string `json:"vg_free"`
			VGFreeCount string `json:"vg_free_count"`
		} `json:"vg"`
	} `json:"report"`
}

type lvReport struct {
	Report []struct {
		LV []struct {
			LVName string `json:"lv_name"`
			VGName string `json:"vg_name"`
			LVPath string `json:"lv_path"`
		} `json:"lv"`
	} `json:"report"`
}

// ListPVs returns all physical volumes known to the volume manager.
func (c *Client) ListPVs() ([]PV, error) {
	out, err := c.r.Output("pvs", "--reportformat", "json", "--units", "b", "--nosuffix",
		"-o", "pv_name,vg_name,pv_uuid,pv_size,pv_free")
	if err != nil {
		return nil, err
	}

	var report pvReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, err
	}

	var pvs []PV
	for _, r := range report.Report {
		for _, pv := range r.PV {
			pvs = append(pvs, PV{
				Name:   pv.PVName,
				VGName: pv.VGName,
				UUID:   pv.PVUUID,
				Size:   parseSize(pv.PVSize),
				Free:   parseSize(pv.PVFree),
			})
		}
	}
	return pvs, nil
}

// GetVG returns a single volume group by name.
func (c *Client) GetVG(name string) (*VG, error) {
	out, err := c.r.Output("vgs", "--reportformat", "json", "--units", "b", "--nosuffix",
		"-o", "vg_name,vg_size,vg_free,vg_free_count", name)
	if err != nil {
		return nil, err
	}

	var report vgReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, err
	}

	for _, r := range report.Report {
		for _, vg := range r.VG {
			if vg.VGName == name {
				return &VG{
					Name:        vg.VGName,
					Size:        parseSize(vg.VGSize),
					Free:        parseSize(vg.VGFree),
					FreeExtents: parseSize(vg.VGFreeCount),
				}, nil
			}
		}
	}
	return nil, ErrNotFound
}

// ListLVs returns all logical volumes known to the volume manager.
func (c *Client) ListLVs() ([]LV, error) {
	out, err := c.r.Output("lvs", "--reportformat", "json",
		"-o", "lv_name,vg_name,lv_path")
	if err != nil {
		return nil, err
	}

	var report lvReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, err
	}

	var lvs []LV
	for _, r := range report.Report {
		for _, lv := range r.LV {
			lvs = append(lvs, LV{Name: lv.LVName, VGName: lv.VGName, Path: lv.LVPath})
		}
	}
	return lvs, nil
}

// FindPV returns the physical volume with the given device name.
func (c *Client) FindPV(name string) (*PV, error) {
	pvs, err := c.ListPVs()
	if err != nil {
		return nil, err
	}
	for i := range pvs {
		if pvs[i].Name == name {
			return &pvs[i], nil
		}
	}
	return nil, ErrNotFound
}

// IsVGMember reports whether the device is a physical volume belonging to
// the named volume group.
func (c *Client) IsVGMember(vgName, dev string) (bool, error) {
	pv, err := c.FindPV(dev)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return pv.VGName == vgName, nil
}

// CreatePV initializes a partition as a physical volume.
func (c *Client) CreatePV(dev string) error {
	return c.r.Run("pvcreate", "-y", dev)
}

// ExtendVG adds a physical volume to a volume group.
func (c *Client) ExtendVG(vgName, dev string) error {
	return c.r.Run("vgextend", vgName, dev)
}

// ExtendLVFull grows a logical volume to consume all free extents of its
// volume group.
func (c *Client) ExtendLVFull(lvPath string) error {
	return c.r.Run("lvextend", "-l", "+100%FREE", lvPath)
}

// Move relocates all allocated extents from one physical volume to another,
// live. Progress is streamed from pvmove itself; the call blocks until the
// relocation completes.
func (c *Client) Move(oldPV, newPV string) error {
	return c.r.RunStreamed("pvmove", "-i", "10", oldPV, newPV)
}

// ReduceVG removes a physical volume from a volume group.
func (c *Client) ReduceVG(vgName, dev string) error {
	return c.r.Run("vgreduce", vgName, dev)
}

// RemovePV wipes the physical volume label from a device.
func (c *Client) RemovePV(dev string) error {
	return c.r.Run("pvremove", "-y", dev)
}

// ResizeExtFS grows an ext2/3/4 filesystem online to fill its device.
func (c *Client) ResizeExtFS(dev string) error {
	return c.r.Run("resize2fs", dev)
}

// GrowXFS grows a mounted XFS filesystem to fill its device. XFS can only
// be grown while mounted.
func (c *Client) GrowXFS(mountpoint string) error {
	return c.r.Run("xfs_growfs", mountpoint)
}

// parseSize parses an lvm --units b --nosuffix numeric field. LVM still
// emits a "B" suffix in some report fields; tolerate both.
func parseSize(s string) uint64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "B"))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
