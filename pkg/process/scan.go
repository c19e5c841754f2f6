package process

import (
	"context"
	"os"
	"strings"

	"github.com/core-tools/vms-deploy/pkg/errors"
	"github.com/core-tools/vms-deploy/pkg/logging"

	"github.com/shirou/gopsutil/v3/process"
)

// Info describes a running process found in the process table
type Info struct {
	PID     int32
	Name    string
	Cmdline string
}

// SnapshotFunc lists the current process table. The production
// implementation uses gopsutil; tests substitute a fixed listing.
type SnapshotFunc func(ctx context.Context) ([]Info, error)

// GopsutilSnapshot reads the live process table
func GopsutilSnapshot(ctx context.Context) ([]Info, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.NewDiscoveryError("failed to list processes", err)
	}

	infos := make([]Info, 0, len(procs))
	for _, p := range procs {
		// Processes can exit while we iterate; skip the ones we can no
		// longer inspect
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			continue
		}
		name, _ := p.NameWithContext(ctx)
		infos = append(infos, Info{PID: p.Pid, Name: name, Cmdline: cmdline})
	}

	return infos, nil
}

// Scanner finds processes by command-line pattern
type Scanner struct {
	snapshot SnapshotFunc
	logger   logging.Logger
}

// NewScanner creates a scanner over the live process table
func NewScanner(logger logging.Logger) *Scanner {
	return NewScannerWithSnapshot(GopsutilSnapshot, logger)
}

// NewScannerWithSnapshot creates a scanner over a custom process listing
func NewScannerWithSnapshot(snapshot SnapshotFunc, logger logging.Logger) *Scanner {
	return &Scanner{
		snapshot: snapshot,
		logger:   logger,
	}
}

// FindByCmdline returns processes whose command line contains the given
// pattern. The calling process itself is excluded from the result.
func (s *Scanner) FindByCmdline(ctx context.Context, pattern string) ([]Info, error) {
	if pattern == "" {
		return nil, errors.NewValidationError("cmdline pattern cannot be empty", nil)
	}

	infos, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	ownPID := int32(os.Getpid())

	var matches []Info
	for _, info := range infos {
		if info.PID == ownPID {
			continue
		}
		if strings.Contains(info.Cmdline, pattern) {
			matches = append(matches, info)
		}
	}

	s.logger.Debugf("Process scan complete, pattern: %q, matches: %d", pattern, len(matches))
	return matches, nil
}
