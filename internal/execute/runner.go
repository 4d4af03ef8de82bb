package execute

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// Runner abstracts how external tools are invoked. The real implementation
// shells out; tests provide fakes so pipeline logic can be exercised without
// touching block devices.
type Runner interface {
	// Run executes a command and returns an error that includes the
	// command's trimmed output on failure.
	Run(name string, args ...string) error
	// Output executes a command and returns its stdout.
	Output(name string, args ...string) ([]byte, error)
	// RunStreamed executes a command with stdout/stderr connected to the
	// terminal. Used for long-running tools with their own progress
	// reporting (rsync, pvmove).
	RunStreamed(name string, args ...string) error
}

// CommandRunner is the Runner used in production. Every invocation is logged
// so a failed run leaves a trace of exactly what was executed.
type CommandRunner struct {
	Verbose bool
}

func NewCommandRunner(verbose bool) *CommandRunner {
	return &CommandRunner{Verbose: verbose}
}

func (r *CommandRunner) Run(name string, args ...string) error {
	log.Printf("exec: %s %s", name, strings.Join(args, " "))
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	if r.Verbose && len(out) > 0 {
		log.Printf("output: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *CommandRunner) Output(name string, args ...string) ([]byte, error) {
	if r.Verbose {
		log.Printf("exec: %s %s", name, strings.Join(args, " "))
	}
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return out, nil
}

func (r *CommandRunner) RunStreamed(name string, args ...string) error {
	log.Printf("exec: %s %s", name, strings.Join(args, " "))
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

// Available reports whether a command can be found in PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// MissingTools returns the subset of names not found in PATH.
func MissingTools(names []string) []string {
	var missing []string
	for _, n := range names {
		if !Available(n) {
			missing = append(missing, n)
		}
	}
	return missing
}
