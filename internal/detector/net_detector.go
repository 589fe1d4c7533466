package detector

import (
	"context"
	"fmt"

	gopsnet "github.com/shirou/gopsutil/v4/net"
)

// NetDetector reads the socket table through gopsutil and reports the
// owners of listening sockets on the port.
type NetDetector struct{}

func (NetDetector) PIDs(ctx context.Context, port int) ([]int, error) {
	conns, err := gopsnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("list tcp connections: %w", err)
	}
	var pids []int
	for _, c := range conns {
		if c.Pid <= 0 || c.Laddr.Port != uint32(port) {
			continue
		}
		if c.Status != "LISTEN" {
			continue
		}
		pids = append(pids, int(c.Pid))
	}
	return uniqueSorted(pids), nil
}

func (NetDetector) Describe() string { return "net:gopsutil" }
