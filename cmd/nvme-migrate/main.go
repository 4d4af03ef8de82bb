package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/karen20ced4/NVME-Migrate/internal/config"
	"github.com/karen20ced4/NVME-Migrate/internal/execute"
	"github.com/karen20ced4/NVME-Migrate/internal/journal"
	"github.com/karen20ced4/NVME-Migrate/internal/session"
	"github.com/karen20ced4/NVME-Migrate/internal/ui"
	"github.com/karen20ced4/NVME-Migrate/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "nvme-migrate",
	Short: "Live migration of a Debian system to a larger disk",
	Long: `nvme-migrate moves a running Debian root filesystem, swap and the
LVM-backed /home volume onto a second, larger disk without a rescue
environment. It detects the boot firmware mode and the source topology,
lays out an equivalent partition scheme on the destination, copies the
system across, installs a bootloader and optionally relocates the
volume group's extents off the old disk.`,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the full migration pipeline",
	Run: func(cmd *cobra.Command, args []string) {
		dest, _ := cmd.Flags().GetString("dest")
		bootMode, _ := cmd.Flags().GetString("boot-mode")
		relocate, _ := cmd.Flags().GetBool("relocate")
		yes, _ := cmd.Flags().GetBool("yes")
		verbose, _ := cmd.Flags().GetBool("verbose")

		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		if yes {
			cfg.AssumeYes = true
		}

		if os.Geteuid() != 0 {
			fmt.Fprintln(os.Stderr, "nvme-migrate must run as root: it repartitions disks and mounts filesystems")
			os.Exit(1)
		}

		var hist *journal.DB
		if cfg.JournalPath != "" {
			hist, err = journal.New(cfg.JournalPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: journal disabled: %v\n", err)
			} else {
				defer hist.Close()
			}
		}

		s := session.New(cfg, ui.New(cfg.AssumeYes), execute.NewCommandRunner(verbose), hist)
		outcome, err := s.Run(session.Options{
			Destination:      dest,
			BootModeOverride: bootMode,
			Relocate:         relocate,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		_ = outcome // success and operator abort both exit 0
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("nvme-migrate " + version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/nvme-migrate/config.yaml)")

	migrateCmd.Flags().StringP("dest", "d", "", "destination disk (e.g. nvme0n1, /dev/sdb)")
	migrateCmd.Flags().String("boot-mode", "", "override detected boot mode (bios or uefi)")
	migrateCmd.Flags().Bool("relocate", false, "relocate volume group extents without prompting")
	migrateCmd.Flags().BoolP("yes", "y", false, "answer every prompt with its default")
	migrateCmd.Flags().BoolP("verbose", "v", false, "log external command output")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
