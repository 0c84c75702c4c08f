package sysinfo

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// Stats holds resource usage for the supervised engine process.
type Stats struct {
	// Resident set size in MB.
	RSSMB int
	// Open file descriptors.
	OpenFDs int
}

// Collect returns memory and descriptor stats for pid. Uses gopsutil, no
// external shelling. Fields degrade to zero on platforms that cannot report
// them.
func Collect(pid int) (Stats, error) {
	if pid <= 0 {
		return Stats{}, fmt.Errorf("invalid pid %d", pid)
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
		st.RSSMB = int(mi.RSS / (1024 * 1024))
	}
	if fds, err := proc.NumFDs(); err == nil {
		st.OpenFDs = int(fds)
	}
	return st, nil
}
