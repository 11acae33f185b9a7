package relay

import (
	"fmt"
	"sync"

	"github.com/bluenviron/rtsprelay/pkg/liberrors"
)

// PortPool hands out even-numbered UDP port pairs {p, p+1} from a
// contiguous range. RTP uses the even port, RTCP the odd one above it.
type PortPool struct {
	mutex     sync.Mutex
	available map[int]struct{}
	ordered   []int
}

// NewPortPool builds a pool covering [start, start+count) truncated to
// even numbers. start must be even.
func NewPortPool(start int, count int) (*PortPool, error) {
	if start%2 != 0 {
		return nil, fmt.Errorf("port pool start must be even")
	}
	if count <= 0 {
		return nil, fmt.Errorf("port pool count must be positive")
	}

	p := &PortPool{
		available: make(map[int]struct{}),
	}

	for port := start; port < start+count; port += 2 {
		p.available[port] = struct{}{}
		p.ordered = append(p.ordered, port)
	}

	return p, nil
}

// Next reserves and returns the smallest available RTP port. The
// matching RTCP port is always Next()+1.
func (p *PortPool) Next() (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, port := range p.ordered {
		if _, ok := p.available[port]; ok {
			delete(p.available, port)
			return port, nil
		}
	}

	return 0, liberrors.ErrPoolExhausted{}
}

// Release returns a previously reserved RTP port (and its RTCP
// companion) to the pool. Releasing a port not obtained from this pool
// is a no-op.
func (p *PortPool) Release(port int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, o := range p.ordered {
		if o == port {
			p.available[port] = struct{}{}
			return
		}
	}
}

// Size returns the number of ports currently available, for diagnostics.
func (p *PortPool) Size() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.available)
}

// Capacity returns the total number of port pairs managed by the pool.
func (p *PortPool) Capacity() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.ordered)
}
