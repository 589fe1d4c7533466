package process

import (
	"context"
	"slices"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Alive reports whether pid names a running process. Zombies count as dead.
func Alive(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExistsWithContext(ctx, int32(pid))
	if err != nil || !ok {
		return false
	}
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	st, err := p.StatusWithContext(ctx)
	if err != nil {
		return true
	}
	return !slices.Contains(st, gopsproc.Zombie)
}
