package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/karen20ced4/NVME-Migrate/internal/execute"
	"github.com/karen20ced4/NVME-Migrate/internal/layout"
	"github.com/karen20ced4/NVME-Migrate/internal/topology"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the partition plan without touching any disk",
	Long: `Detect the source topology and print the partition scheme that a
migration would create on the destination disk. Nothing is written.`,
	Run: runPlan,
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show the detected source topology",
	Run:   runDetect,
}

func init() {
	planCmd.Flags().StringP("dest", "d", "/dev/nvme0n1", "destination disk used for device-node names")
	planCmd.Flags().String("boot-mode", "", "override detected boot mode (bios or uefi)")

	detectCmd.Flags().Bool("json", false, "Output as JSON")
}

func runPlan(cmd *cobra.Command, args []string) {
	dest, _ := cmd.Flags().GetString("dest")
	override, _ := cmd.Flags().GetString("boot-mode")

	snap, err := topology.Detect(execute.NewCommandRunner(false))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if mode, ok := layout.ParseBootMode(override); ok {
		snap.BootMode = mode
	}

	plan := layout.Compute(snap.BootMode, snap.SwapSizeBytes)
	dest = layout.EnsureDevPrefix(dest)

	fmt.Printf("Boot mode: %s, swap: %s, destination: %s\n\n",
		snap.BootMode, humanize.IBytes(snap.SwapSizeBytes), dest)
	fmt.Printf("%-16s %-10s %-10s %-10s %s\n", "DEVICE", "ROLE", "START", "END", "FLAGS")
	for _, p := range plan.Partitions {
		flags := "-"
		if len(p.Flags) > 0 {
			flags = fmt.Sprint(p.Flags)
		}
		fmt.Printf("%-16s %-10s %-10s %-10s %s\n",
			layout.PartitionDevice(dest, p.Index), p.Role, p.StartArg(), p.EndArg(), flags)
	}
}

func runDetect(cmd *cobra.Command, args []string) {
	jsonOut, _ := cmd.Flags().GetBool("json")

	snap, err := topology.Detect(execute.NewCommandRunner(false))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(snap)
		return
	}

	fmt.Printf("Boot mode:    %s\n", snap.BootMode)
	fmt.Printf("Root device:  %s\n", snap.RootDevice)
	fmt.Printf("Root disk:    %s\n", snap.RootDisk)
	if snap.HasSwap() {
		fmt.Printf("Swap:         %s (%s)\n", snap.SwapDevice, humanize.IBytes(snap.SwapSizeBytes))
	} else {
		fmt.Printf("Swap:         none\n")
	}
	if snap.HasHomeLV() {
		fmt.Printf("/home LV:     %s/%s (%s, %s)\n", snap.VGName, snap.LVName, snap.HomeDevice, snap.HomeFSType)
	} else {
		fmt.Printf("/home LV:     none\n")
	}
}
