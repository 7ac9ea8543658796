package mftp

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
)

// a session gives up after this many failed bind attempts even if the range
// has not been exhausted
const allocateMaxAttempts = 4

var errNoDataPort = errors.New("no free port for data connection")

// portPool tracks which ports of the passive range are held by live sessions.
// Allocation and release are linearizable; two sessions never hold the same
// port at once.
type portPool struct {
	mutex    sync.Mutex
	start    int
	end      int
	reserved map[int]struct{}
}

func newPortPool(r *portRange) *portPool {
	return &portPool{
		start:    r.Start,
		end:      r.End,
		reserved: make(map[int]struct{}),
	}
}

// allocate scans the range in ascending order, skipping reserved ports, and
// binds a reuse-enabled listener on the first free one. The returned port
// stays reserved until release is called. An exhausted range yields
// errNoDataPort; failed binds yield the last bind error instead.
func (p *portPool) allocate(bindAddr string) (*net.TCPListener, int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	tries := 0
	var lastErr error
	for port := p.start; port <= p.end && tries < allocateMaxAttempts; port++ {
		if _, taken := p.reserved[port]; taken {
			continue
		}
		tries++

		listener, err := listenTCPReuse(net.JoinHostPort(bindAddr, strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			continue
		}

		p.reserved[port] = struct{}{}
		return listener, port, nil
	}

	if lastErr != nil {
		return nil, 0, lastErr
	}
	return nil, 0, errNoDataPort
}

// release is idempotent; releasing an unreserved port is a no-op.
func (p *portPool) release(port int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.reserved, port)
}

func (p *portPool) reservedCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.reserved)
}

func listenTCPReuse(addr string) (*net.TCPListener, error) {
	lc := net.ListenConfig{Control: setReuseAddr}
	l, err := lc.Listen(context.Background(), "tcp4", addr)
	if err != nil {
		return nil, err
	}
	return l.(*net.TCPListener), nil
}
