// Package portpool hands out local ports to payload game servers.
//
// Pool is not safe for concurrent use. Ports are only allocated when a room
// starts and only released when it closes, so the pool lives under the room
// manager's lock rather than carrying one of its own.
package portpool

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Pool tracks a contiguous range of ports split into free and in-use sets.
type Pool struct {
	free   []int // sorted ascending
	inUse  map[int]struct{}
	logger *logrus.Logger
}

// New creates a pool covering first..last inclusive.
func New(first, last int, logger *logrus.Logger) (*Pool, error) {
	if first <= 0 || last > 65535 || first > last {
		return nil, fmt.Errorf("invalid port range %d-%d", first, last)
	}
	free := make([]int, 0, last-first+1)
	for p := first; p <= last; p++ {
		free = append(free, p)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pool{
		free:   free,
		inUse:  make(map[int]struct{}),
		logger: logger,
	}, nil
}

// Acquire removes and returns the lowest free port. ok is false when the pool
// is exhausted.
func (p *Pool) Acquire() (port int, ok bool) {
	if len(p.free) == 0 {
		return 0, false
	}
	port = p.free[0]
	p.free = p.free[1:]
	p.inUse[port] = struct{}{}
	return port, true
}

// Release returns port to the free set. Releasing a port that is not in use
// is logged and ignored.
func (p *Pool) Release(port int) bool {
	if _, ok := p.inUse[port]; !ok {
		p.logger.WithField("port", port).Warn("portpool: release of port that is not in use")
		return false
	}
	delete(p.inUse, port)
	i := sort.SearchInts(p.free, port)
	p.free = append(p.free, 0)
	copy(p.free[i+1:], p.free[i:])
	p.free[i] = port
	return true
}

// InUse reports whether port is currently allocated.
func (p *Pool) InUse(port int) bool {
	_, ok := p.inUse[port]
	return ok
}

// Available returns the number of free ports.
func (p *Pool) Available() int { return len(p.free) }

// Allocated returns the number of ports in use.
func (p *Pool) Allocated() int { return len(p.inUse) }
