package lvm

import (
	"errors"
	"fmt"
	"log"
	"strings"
)

// Coordinator drives the volume-group side of a migration: extending the
// group onto the new disk, growing /home, and optionally relocating extents
// off the old disk. Relocation may run at most once per session.
type Coordinator struct {
	Client *Client

	// Confirm gates destructive or long-running decisions. When nil, every
	// gate answers its default.
	Confirm func(prompt string, def bool) bool

	relocated bool
}

func NewCoordinator(c *Client) *Coordinator {
	return &Coordinator{Client: c}
}

func (co *Coordinator) confirm(prompt string, def bool) bool {
	if co.Confirm == nil {
		return def
	}
	return co.Confirm(prompt, def)
}

// Extend registers the new partition as a physical volume and adds it to the
// volume group. Both underlying operations are atomic in the volume manager,
// so there is no partial state to roll back on failure.
func (co *Coordinator) Extend(vgName, newPV string) error {
	if err := co.Client.CreatePV(newPV); err != nil {
		return fmt.Errorf("pvcreate %s: %w", newPV, err)
	}
	if err := co.Client.ExtendVG(vgName, newPV); err != nil {
		return fmt.Errorf("vgextend %s %s: %w", vgName, newPV, err)
	}
	return nil
}

// GrowHome extends the /home logical volume over all free extents of the
// volume group and grows the filesystem on top of it. An unknown filesystem
// type is reported but not fatal: the operator resizes manually.
func (co *Coordinator) GrowHome(vgName, lvName, fsType, mountpoint string) error {
	vg, err := co.Client.GetVG(vgName)
	if err != nil {
		return fmt.Errorf("query volume group %s: %w", vgName, err)
	}
	if vg.FreeExtents == 0 {
		log.Printf("volume group %s has no free extents, skipping grow", vgName)
		return nil
	}

	lvPath := fmt.Sprintf("/dev/%s/%s", vgName, lvName)
	if err := co.Client.ExtendLVFull(lvPath); err != nil {
		return fmt.Errorf("lvextend %s: %w", lvPath, err)
	}

	switch {
	case strings.HasPrefix(fsType, "ext"):
		if err := co.Client.ResizeExtFS(lvPath); err != nil {
			return fmt.Errorf("resize2fs %s: %w", lvPath, err)
		}
	case fsType == "xfs":
		if err := co.Client.GrowXFS(mountpoint); err != nil {
			return fmt.Errorf("xfs_growfs %s: %w", mountpoint, err)
		}
	default:
		log.Printf("unknown filesystem type %q on %s; grow the filesystem manually", fsType, lvPath)
	}
	return nil
}

// IdentifyOldPV returns the physical volume living on the source disk: the
// one whose device path is prefixed by the root disk path. ErrNotFound when
// no such PV exists, so the caller can fall back to asking the operator.
func (co *Coordinator) IdentifyOldPV(vgName, rootDisk string) (string, error) {
	pvs, err := co.Client.ListPVs()
	if err != nil {
		return "", err
	}
	for _, pv := range pvs {
		if pv.VGName == vgName && strings.HasPrefix(pv.Name, rootDisk) {
			return pv.Name, nil
		}
	}
	return "", ErrNotFound
}

// Relocate moves all extents from oldPV to newPV live and removes oldPV
// from the volume group afterwards. newPV must already be a member of the
// group; if it is not, membership is established first behind a
// confirmation gate. Runs at most once per session.
func (co *Coordinator) Relocate(vgName, oldPV, newPV string) error {
	if co.relocated {
		return errors.New("extent relocation already ran in this session")
	}

	member, err := co.Client.IsVGMember(vgName, newPV)
	if err != nil {
		return fmt.Errorf("verify %s membership in %s: %w", newPV, vgName, err)
	}
	if !member {
		if !co.confirm(fmt.Sprintf("%s is not yet part of volume group %s. Add it now?", newPV, vgName), true) {
			return fmt.Errorf("%s is not a member of volume group %s", newPV, vgName)
		}
		if err := co.Extend(vgName, newPV); err != nil {
			return err
		}
	}

	co.relocated = true

	if err := co.Client.Move(oldPV, newPV); err != nil {
		return &RelocationError{OldPV: oldPV, Err: err}
	}

	if err := co.Client.ReduceVG(vgName, oldPV); err != nil {
		return fmt.Errorf("vgreduce %s %s: %w", vgName, oldPV, err)
	}
	if err := co.Client.RemovePV(oldPV); err != nil {
		return fmt.Errorf("pvremove %s: %w", oldPV, err)
	}
	return nil
}

// RelocationError wraps a pvmove failure. An interrupted pvmove loses no
// data; the operator aborts or resumes it manually.
type RelocationError struct {
	OldPV string
	Err   error
}

func (e *RelocationError) Error() string {
	return fmt.Sprintf("extent relocation from %s failed: %v", e.OldPV, e.Err)
}

func (e *RelocationError) Unwrap() error { return e.Err }

// Recovery returns operator guidance for an interrupted relocation.
func (e *RelocationError) Recovery() string {
	return fmt.Sprintf("The relocation can be aborted with 'pvmove --abort' (extents stay on %s)\n"+
		"or resumed by running 'pvmove' with no arguments. No data has been lost.", e.OldPV)
}
