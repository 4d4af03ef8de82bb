package session

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/karen20ced4/NVME-Migrate/internal/bootloader"
	"github.com/karen20ced4/NVME-Migrate/internal/config"
	"github.com/karen20ced4/NVME-Migrate/internal/execute"
	"github.com/karen20ced4/NVME-Migrate/internal/journal"
	"github.com/karen20ced4/NVME-Migrate/internal/layout"
	"github.com/karen20ced4/NVME-Migrate/internal/lvm"
	"github.com/karen20ced4/NVME-Migrate/internal/mounts"
	"github.com/karen20ced4/NVME-Migrate/internal/provision"
	"github.com/karen20ced4/NVME-Migrate/internal/topology"
	"github.com/karen20ced4/NVME-Migrate/internal/ui"
)

// Outcome is the terminal state of a migration session.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeAborted Outcome = "aborted"
	OutcomeFailed  Outcome = "failed"
)

// Options are the operator-supplied inputs of a run.
type Options struct {
	// Destination is the disk to migrate onto. Prompted for when empty.
	Destination string
	// BootModeOverride skips the interactive boot-mode prompt.
	BootModeOverride string
	// Relocate pre-answers the extent-relocation confirmation.
	Relocate bool
}

// baseTools must exist before any device is touched.
var baseTools = []string{
	"parted", "partprobe", "udevadm", "mkfs.ext4", "mkswap",
	"rsync", "mount", "umount", "findmnt", "lsblk", "blkid", "chroot",
}

// lvmTools are additionally required when a volume group was detected.
var lvmTools = []string{
	"pvs", "vgs", "lvs", "pvcreate", "vgextend", "lvextend",
	"resize2fs", "pvmove", "vgreduce", "pvremove",
}

// Session is one migration run: snapshot, plan, derived device nodes and a
// monotonically advancing step index. Sessions are created at process start
// and never persisted; every invocation re-detects from scratch.
type Session struct {
	cfg    *config.Config
	ui     *ui.UI
	runner execute.Runner
	hist   *journal.DB // nil when the journal is disabled

	snap  *topology.Snapshot
	plan  layout.Plan
	nodes layout.NodeSet
	dest  string
	step  int
	jid   string

	// injection points for tests
	checkBlock   func(string) error
	missingTools func([]string) []string
}

func New(cfg *config.Config, u *ui.UI, r execute.Runner, hist *journal.DB) *Session {
	return &Session{
		cfg:          cfg,
		ui:           u,
		runner:       r,
		hist:         hist,
		checkBlock:   provision.CheckBlockDevice,
		missingTools: execute.MissingTools,
	}
}

func (s *Session) advance(step, detail string) {
	s.step++
	log.Printf("step %d: %s", s.step, step)
	if s.hist != nil && s.jid != "" {
		if err := s.hist.RecordEvent(s.jid, step, detail); err != nil {
			log.Printf("journal: %v", err)
		}
	}
}

// Run executes the full pipeline. The returned Outcome distinguishes an
// operator abort (exit 0) from a failure (exit 1).
func (s *Session) Run(opts Options) (Outcome, error) {
	if s.snap == nil {
		snap, err := topology.Detect(s.runner)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("topology detection: %w", err)
		}
		s.snap = snap
	}

	s.applyBootModeOverride(opts.BootModeOverride)

	if err := s.chooseDestination(opts.Destination); err != nil {
		return OutcomeFailed, err
	}

	if err := s.preflight(); err != nil {
		return OutcomeFailed, err
	}

	s.plan = layout.Compute(s.snap.BootMode, s.snap.SwapSizeBytes)
	s.nodes = layout.Nodes(s.plan, s.dest)
	s.warnOnRootUsage()
	s.printSummary()

	s.ui.Dangerf("ALL DATA on %s will be destroyed.\n", s.dest)
	if !s.ui.Confirm(fmt.Sprintf("Write new partition table to %s and migrate?", s.dest), false) {
		s.ui.Println("Migration aborted; no changes were made.")
		return OutcomeAborted, nil
	}

	s.beginJournal()

	outcome, err := s.execute(opts)
	s.finishJournal(outcome, err)
	return outcome, err
}

// execute runs the destructive stages. Teardown is attempted after any
// failure past provisioning, except a copy failure, which leaves the new
// root mounted for operator inspection.
func (s *Session) execute(opts Options) (Outcome, error) {
	s.advance("provision", s.dest)
	nodes, err := provision.Provision(s.runner, s.dest, s.plan, s.cfg.MountRoot, s.cfg.ExtraExcludes)
	if err != nil {
		if errors.Is(err, provision.ErrCopyFailed) {
			s.ui.Warnf("Copy failed; %s is left mounted for inspection.\n", s.cfg.MountRoot)
			return OutcomeFailed, err
		}
		s.teardown()
		return OutcomeFailed, err
	}
	s.nodes = nodes

	s.advance("bootloader", s.snap.BootMode.String())
	if err := bootloader.Install(s.runner, s.cfg.MountRoot, s.snap.BootMode, s.dest, s.nodes.Extra); err != nil {
		s.teardown()
		return OutcomeFailed, err
	}
	if err := bootloader.WriteFstab(s.runner, s.cfg.MountRoot, s.nodes, s.snap.BootMode, s.snap.HomeDevice); err != nil {
		s.teardown()
		return OutcomeFailed, err
	}

	if s.snap.HasHomeLV() {
		if err := s.migrateVolumeGroup(opts); err != nil {
			s.teardown()
			return OutcomeFailed, err
		}
	} else {
		s.ui.Println("No /home logical volume detected; skipping volume group migration.")
	}

	s.advance("teardown", "")
	s.teardown()

	s.ui.Successf("Migration to %s completed.\n", s.dest)
	s.ui.Println("Keep the old disk untouched until the new one has booted successfully.")
	return OutcomeSuccess, nil
}

func (s *Session) migrateVolumeGroup(opts Options) error {
	co := lvm.NewCoordinator(lvm.NewClient(s.runner))
	co.Confirm = s.ui.Confirm

	// Under UEFI the extra partition doubles as the new physical volume
	// and is still mounted as the ESP; pvcreate would see a busy device.
	if s.snap.BootMode == layout.UEFI {
		espMount := filepath.Join(s.cfg.MountRoot, "boot/efi")
		if mounts.IsMounted(s.runner, espMount) {
			if err := mounts.Unmount(s.runner, espMount); err != nil {
				return fmt.Errorf("release ESP before volume group extend: %w", err)
			}
		}
	}

	s.advance("vg-extend", s.snap.VGName)
	if err := co.Extend(s.snap.VGName, s.nodes.Extra); err != nil {
		return fmt.Errorf("extend volume group: %w", err)
	}

	s.advance("lv-grow", s.snap.LVName)
	if err := co.GrowHome(s.snap.VGName, s.snap.LVName, s.snap.HomeFSType, "/home"); err != nil {
		return fmt.Errorf("grow /home: %w", err)
	}

	relocate := opts.Relocate ||
		s.ui.Confirm(fmt.Sprintf("Relocate all extents from the old disk to %s now? This can take a long time.", s.nodes.Extra), false)
	if !relocate {
		s.ui.Println("Extent relocation skipped; the old disk remains part of the volume group.")
		return nil
	}

	oldPV, err := co.IdentifyOldPV(s.snap.VGName, s.snap.RootDisk)
	if errors.Is(err, lvm.ErrNotFound) {
		oldPV = s.ui.Ask("Could not identify the old physical volume. Enter it manually (empty to skip)", "")
		if oldPV == "" {
			s.ui.Println("Extent relocation skipped.")
			return nil
		}
	} else if err != nil {
		return fmt.Errorf("identify old physical volume: %w", err)
	}

	s.advance("pv-relocate", oldPV)
	if err := co.Relocate(s.snap.VGName, oldPV, s.nodes.Extra); err != nil {
		var relErr *lvm.RelocationError
		if errors.As(err, &relErr) {
			s.ui.Warnf("%s\n%s\n", relErr.Error(), relErr.Recovery())
		}
		return err
	}
	return nil
}

// applyBootModeOverride lets the operator correct the detected boot mode. An
// unrecognized answer keeps the detected value.
func (s *Session) applyBootModeOverride(override string) {
	answer := override
	if answer == "" {
		answer = s.ui.Ask("Boot mode (bios/uefi)", s.snap.BootMode.String())
	}
	if mode, ok := layout.ParseBootMode(answer); ok {
		s.snap.BootMode = mode
	} else if strings.TrimSpace(answer) != "" && answer != s.snap.BootMode.String() {
		s.ui.Warnf("Unrecognized boot mode %q, keeping detected %s.\n", answer, s.snap.BootMode)
	}
}

// chooseDestination resolves and validates the destination disk. The
// destination matching the detected root disk is a hard precondition
// violation checked before anything destructive.
func (s *Session) chooseDestination(dest string) error {
	if dest == "" {
		dest = s.ui.Ask("Destination disk (e.g. nvme0n1, sdb)", "")
	}
	if dest == "" {
		return errors.New("no destination disk given")
	}
	s.dest = layout.EnsureDevPrefix(dest)

	if s.dest == s.snap.RootDisk {
		return fmt.Errorf("destination %s is the running system's disk; refusing to continue", s.dest)
	}
	if layout.LooksLikePartition(s.dest) {
		return fmt.Errorf("destination %s looks like a partition; give a whole disk", s.dest)
	}
	if err := s.checkBlock(s.dest); err != nil {
		return err
	}
	if out, err := s.runner.Output("findmnt", "-n", "-o", "TARGET", s.dest); err == nil && len(strings.TrimSpace(string(out))) > 0 {
		return fmt.Errorf("destination %s is mounted at %s; unmount it first", s.dest, strings.TrimSpace(string(out)))
	}
	return nil
}

// preflight verifies the required external tools exist before any device is
// touched.
func (s *Session) preflight() error {
	tools := append([]string{}, baseTools...)
	if s.snap.BootMode == layout.UEFI {
		tools = append(tools, "mkfs.vfat")
	}
	if s.snap.HasHomeLV() {
		tools = append(tools, lvmTools...)
	}
	if missing := s.missingTools(tools); len(missing) > 0 {
		return fmt.Errorf("missing required commands: %s", strings.Join(missing, ", "))
	}
	return nil
}

// warnOnRootUsage flags the latent gap between the fixed root size and the
// actual usage of the running root. The run is not refused.
func (s *Session) warnOnRootUsage() {
	used, err := provision.RootUsageBytes()
	if err != nil {
		return
	}
	if limit := s.plan.RootSizeBytes(); limit > 0 && used > limit {
		s.ui.Warnf("Root filesystem uses %s but the new root partition holds %s; the copy will not fit.\n",
			humanize.IBytes(used), humanize.IBytes(limit))
	}
}

func (s *Session) printSummary() {
	s.ui.Println()
	s.ui.Printf("Boot mode:        %s\n", s.snap.BootMode)
	s.ui.Printf("Source disk:      %s (root on %s)\n", s.snap.RootDisk, s.snap.RootDevice)
	if s.snap.HasSwap() {
		s.ui.Printf("Swap:             %s (%s)\n", s.snap.SwapDevice, humanize.IBytes(s.snap.SwapSizeBytes))
	} else {
		s.ui.Printf("Swap:             none (planning %d GiB)\n", s.plan.SwapGiB)
	}
	if s.snap.HasHomeLV() {
		s.ui.Printf("/home:            %s/%s on %s\n", s.snap.VGName, s.snap.LVName, s.snap.HomeDevice)
	} else {
		s.ui.Printf("/home:            no separate logical volume\n")
	}
	s.ui.Printf("Destination:      %s\n", s.dest)
	s.ui.Println()
	s.ui.Println("Planned partitions:")
	for _, p := range s.plan.Partitions {
		dev := layout.PartitionDevice(s.dest, p.Index)
		s.ui.Printf("  %-14s %-10s %8s .. %s\n", dev, p.Role, p.StartArg(), p.EndArg())
	}
	s.ui.Println()
}

func (s *Session) beginJournal() {
	if s.hist == nil {
		return
	}
	id, err := s.hist.BeginSession(s.snap.BootMode.String(), s.snap.RootDisk, s.dest)
	if err != nil {
		log.Printf("journal: %v", err)
		return
	}
	s.jid = id
}

func (s *Session) finishJournal(outcome Outcome, runErr error) {
	if s.hist == nil || s.jid == "" {
		return
	}
	failure := ""
	if runErr != nil {
		failure = runErr.Error()
	}
	if err := s.hist.FinishSession(s.jid, string(outcome), failure); err != nil {
		log.Printf("journal: %v", err)
	}
}

// teardown is best-effort: its failures are reported but never replace the
// step failure that triggered it.
func (s *Session) teardown() {
	if err := mounts.Teardown(s.runner, s.cfg.MountRoot, s.snap.BootMode); err != nil {
		log.Printf("teardown: %v", err)
	}
}
