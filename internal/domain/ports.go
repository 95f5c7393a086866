package domain

const (
	// OutputCap is the maximum number of bytes of each output stream
	// retained in memory for a finished job. Longer streams keep only
	// their suffix.
	OutputCap = 64 * 1024

	// HistoryCap bounds the per-slot FIFO of finished jobs.
	HistoryCap = 50
)

// HelperProcess is one started helper script. Wait blocks until the
// process exits and returns the captured streams; it is safe to call
// from a single goroutine only.
type HelperProcess interface {
	PID() int
	Wait() (stdout, stderr []byte, err error)
}

// HelperLauncher spawns helper scripts as process-group leaders and can
// kill a whole group by its leader pid.
type HelperLauncher interface {
	Start(script string, args ...string) (HelperProcess, error)
	KillGroup(pid int) bool
}
