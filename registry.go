package relay

import (
	"log/slog"
	"net"
	"strconv"
	"sync"
)

// Registry is the process-wide map from mount path to Mount. It also
// mediates the Port Pool so that publish and subscribe servers share
// one source of RTP ports.
type Registry struct {
	pool *PortPool
	log  *slog.Logger

	mutex     sync.Mutex
	mounts    map[string]*Mount
	multicast *multicastAllocator
}

// NewRegistry builds an empty registry backed by pool.
func NewRegistry(pool *PortPool, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		pool:   pool,
		log:    log,
		mounts: make(map[string]*Mount),
	}
}

// AddMount creates and inserts a Mount at path. Fails if path is
// already mounted.
func (r *Registry) AddMount(path string, sdp []byte, hooks MountHooks) (*Mount, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.mounts[path]; ok {
		return nil, errConflict(path)
	}

	m := NewMount(path, sdp, hooks, r.log)
	if cfg, ok := r.nextMulticastConfigLocked(); ok {
		m.Multicast = cfg
	}
	r.mounts[path] = m

	r.log.Info("mount created", "path", path, "id", m.ID)

	return m, nil
}

// GetMount looks up the mount currently registered at path.
func (r *Registry) GetMount(path string) (*Mount, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	m, ok := r.mounts[path]
	return m, ok
}

// DeleteMount removes path from the registry without closing it; the
// caller is responsible for calling Mount.Close and returning its
// ports via ReturnRTPPort.
func (r *Registry) DeleteMount(path string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.mounts, path)
	r.log.Info("mount removed", "path", path)
}

// NextRTPPort reserves a port pair from the pool.
func (r *Registry) NextRTPPort() (int, error) {
	return r.pool.Next()
}

// ReturnRTPPort releases a port pair back to the pool.
func (r *Registry) ReturnRTPPort(port int) {
	r.pool.Release(port)
}

// Pool exposes the underlying Port Pool, e.g. for Mount.Setup calls
// that need to cycle through ports directly.
func (r *Registry) Pool() *PortPool {
	return r.pool
}

// Snapshot returns a point-in-time view of registered mounts, including
// each stream's best-effort diagnostic counters, for the admin status
// endpoint.
func (r *Registry) Snapshot() []MountSnapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]MountSnapshot, 0, len(r.mounts))
	for path, m := range r.mounts {
		out = append(out, MountSnapshot{
			Path:    path,
			ID:      m.ID,
			Streams: m.StreamSnapshots(),
		})
	}
	return out
}

// MountSnapshot is the admin-surface view of one mount.
type MountSnapshot struct {
	Path    string           `json:"path"`
	ID      string           `json:"id"`
	Streams []StreamSnapshot `json:"streams"`
}

// StreamSnapshot is the admin-surface view of one stream's diagnostic
// counters, sourced from internal/diagnostics.
type StreamSnapshot struct {
	ID       int     `json:"id"`
	Packets  uint64  `json:"packets"`
	Bytes    uint64  `json:"bytes"`
	RTCP     uint64  `json:"rtcp"`
	Lost     uint64  `json:"lost"`
	LossRate float64 `json:"lossRate"`
}

// EnableMulticast turns on per-mount multicast replication: every
// mount announced after this call is assigned a fresh multicast
// address drawn sequentially from baseIP, replicating to port/port+1
// via the interface reachable from sourceIP (nil picks automatically).
func (r *Registry) EnableMulticast(baseIP net.IP, port int, sourceIP net.IP) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.multicast = newMulticastAllocator(baseIP, port, sourceIP)
}

// nextMulticastConfigLocked draws the next multicast address for a
// newly announced mount. ok is false when multicast replication is
// disabled. Callers must already hold r.mutex.
func (r *Registry) nextMulticastConfigLocked() (*MulticastConfig, bool) {
	if r.multicast == nil {
		return nil, false
	}
	cfg := r.multicast.next()
	return &cfg, true
}

// multicastAllocator hands out sequential multicast addresses from a
// starting IP, one per announced mount, so co-located mounts don't
// collide on the same group.
type multicastAllocator struct {
	mutex  sync.Mutex
	nextIP net.IP
	port   int
	source net.IP
}

func newMulticastAllocator(baseIP net.IP, port int, source net.IP) *multicastAllocator {
	ip := make(net.IP, len(baseIP))
	copy(ip, baseIP)
	return &multicastAllocator{nextIP: ip, port: port, source: source}
}

func (a *multicastAllocator) next() MulticastConfig {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	ip := make(net.IP, len(a.nextIP))
	copy(ip, a.nextIP)
	cfg := MulticastConfig{
		RTPAddress: net.JoinHostPort(ip.String(), strconv.Itoa(a.port)),
		SourceIP:   a.source,
	}

	incrementIP(a.nextIP)
	return cfg
}

// incrementIP adds 1 to ip in place, carrying across octets.
func incrementIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			break
		}
	}
}
