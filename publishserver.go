package relay

import (
	"log/slog"
	"net"

	"golang.org/x/time/rate"

	"github.com/bluenviron/rtsprelay/pkg/auth"
	"github.com/bluenviron/rtsprelay/pkg/base"
	"github.com/bluenviron/rtsprelay/pkg/bytecounter"
	"github.com/bluenviron/rtsprelay/pkg/conn"
	"github.com/bluenviron/rtsprelay/pkg/headers"
	"github.com/bluenviron/rtsprelay/pkg/liberrors"
)

// PublishHooks are the admission callbacks invoked by the Publish
// Server while handling an incoming publisher connection.
type PublishHooks struct {
	// CheckMount, if set, may reject an ANNOUNCE outright (403).
	CheckMount func(req *base.Request) bool
	// MountNowEmpty, if set, fires when a mount's last subscriber
	// leaves (forwarded from MountHooks).
	MountNowEmpty func(m *Mount)
}

// PublishServerConfig configures a PublishServer.
type PublishServerConfig struct {
	Registry       *Registry
	Validator      *auth.Validator // nil disables authentication
	Hooks          PublishHooks
	RequestLimiter rate.Limit // requests/sec per connection; 0 disables
	RequestBurst   int
	Log            *slog.Logger
}

// PublishServer implements the RTSP state machine for publishers:
// OPTIONS, ANNOUNCE, SETUP, RECORD, TEARDOWN.
type PublishServer struct {
	cfg PublishServerConfig
	log *slog.Logger
}

// NewPublishServer builds a PublishServer from cfg.
func NewPublishServer(cfg PublishServerConfig) *PublishServer {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &PublishServer{cfg: cfg, log: log}
}

// Serve accepts connections on ln until it is closed.
func (ps *PublishServer) Serve(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		go ps.handleConn(nc)
	}
}

// frameRoute is the stream/role a published TCP-interleaved channel
// was bound to at SETUP.
type frameRoute struct {
	streamID int
	role     StreamRole
}

type publishConnState struct {
	mount     *Mount
	authValue string
	limiter   *rate.Limiter

	// routes maps an interleaved channel to the stream and role it was
	// assigned to at SETUP, so a published frame is fanned only to the
	// stream that claimed its channel pair, not to every stream on the
	// mount.
	routes map[int]frameRoute
}

func (ps *PublishServer) handleConn(nc net.Conn) {
	defer nc.Close()

	bc := bytecounter.New(nc, nil, nil, nil, nil)
	c := conn.NewConn(bc)

	st := &publishConnState{}
	if ps.cfg.RequestLimiter > 0 {
		st.limiter = rate.NewLimiter(ps.cfg.RequestLimiter, ps.cfg.RequestBurst)
	}

	defer func() {
		if st.mount != nil {
			ps.cleanupMount(st.mount)
		}
	}()

	for {
		recv, err := c.ReadInterleavedFrameOrRequest()
		if err != nil {
			return
		}

		switch v := recv.(type) {
		case *base.InterleavedFrame:
			if st.mount == nil {
				continue
			}
			ps.dispatchFrame(st, v)

		case *base.Request:
			if st.limiter != nil && !st.limiter.Allow() {
				c.WriteResponse(&base.Response{StatusCode: base.StatusServiceUnavailable}) //nolint:errcheck
				continue
			}

			res := ps.handleRequest(st, v)
			if err := c.WriteResponse(res); err != nil {
				return
			}
			if v.Method == base.Teardown && res.StatusCode == base.StatusOK {
				return
			}
		}
	}
}

func (ps *PublishServer) dispatchFrame(st *publishConnState, fr *base.InterleavedFrame) {
	route, ok := st.routes[fr.Channel]
	if !ok {
		return
	}

	if s, ok := st.mount.Stream(route.streamID); ok {
		s.Ingress(route.role, fr.Payload)
	}
}

func (ps *PublishServer) handleRequest(st *publishConnState, req *base.Request) *base.Response {
	switch req.Method {
	case base.Options:
		return &base.Response{
			StatusCode: base.StatusOK,
			Header: base.Header{
				"Public": base.HeaderValue{"OPTIONS, ANNOUNCE, SETUP, RECORD, TEARDOWN"},
			},
		}

	case base.Announce:
		return ps.handleAnnounce(st, req)

	case base.Setup:
		return ps.handleSetup(st, req)

	case base.Record:
		return ps.handleRecord(st, req)

	case base.Teardown:
		return ps.handleTeardown(st, req)

	default:
		return &base.Response{StatusCode: base.StatusNotImplemented}
	}
}

func (ps *PublishServer) authenticate(req *base.Request) (string, *base.Response) {
	if ps.cfg.Validator == nil {
		return "", nil
	}

	if err := ps.cfg.Validator.Validate(req); err != nil {
		return "", &base.Response{
			StatusCode: base.StatusUnauthorized,
			Header: base.Header{
				"WWW-Authenticate": ps.cfg.Validator.Challenge(),
			},
		}
	}

	return req.Header["Authorization"][0], nil
}

func (ps *PublishServer) handleAnnounce(st *publishConnState, req *base.Request) *base.Response {
	authValue, errRes := ps.authenticate(req)
	if errRes != nil {
		return errRes
	}

	if ps.cfg.Hooks.CheckMount != nil && !ps.cfg.Hooks.CheckMount(req) {
		return &base.Response{StatusCode: base.StatusForbidden}
	}

	path, _ := splitPathStreamID(req.URL.Path)

	mount, err := ps.cfg.Registry.AddMount(path, req.Content, MountHooks{
		MountNowEmpty: ps.cfg.Hooks.MountNowEmpty,
	})
	if err != nil {
		return &base.Response{StatusCode: base.StatusServiceUnavailable}
	}

	st.mount = mount
	st.authValue = authValue

	return &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Session": headers.Session{Session: mount.ID, Timeout: timeoutPtr(30)}.Write(),
		},
	}
}

func (ps *PublishServer) checkAuthMatch(st *publishConnState, req *base.Request) *base.Response {
	if ps.cfg.Validator == nil {
		return nil
	}

	v, ok := req.Header["Authorization"]
	if !ok || len(v) == 0 || v[0] != st.authValue {
		return &base.Response{
			StatusCode: base.StatusUnauthorized,
			Header: base.Header{
				"WWW-Authenticate": ps.cfg.Validator.Challenge(),
			},
		}
	}
	return nil
}

func (ps *PublishServer) handleSetup(st *publishConnState, req *base.Request) *base.Response {
	if st.mount == nil {
		return &base.Response{StatusCode: base.StatusSessionNotFound}
	}
	if res := ps.checkAuthMatch(st, req); res != nil {
		return res
	}

	var th headers.Transport
	if err := th.Read(req.Header["Transport"]); err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	_, streamID := splitPathStreamID(req.URL.Path)

	stream, err := st.mount.CreateStream(streamID)
	if err != nil {
		return &base.Response{StatusCode: base.StatusServiceUnavailable}
	}

	if th.Protocol == headers.TransportProtocolTCP {
		channels := [2]int{streamID * 2, streamID*2 + 1}
		if th.InterleavedIDs != nil {
			channels = *th.InterleavedIDs
		}

		if st.routes == nil {
			st.routes = make(map[int]frameRoute)
		}
		st.routes[channels[0]] = frameRoute{streamID: streamID, role: StreamRoleRTP}
		st.routes[channels[1]] = frameRoute{streamID: streamID, role: StreamRoleRTCP}

		resp := headers.Transport{
			Protocol:       headers.TransportProtocolTCP,
			InterleavedIDs: &channels,
		}

		return &base.Response{
			StatusCode: base.StatusOK,
			Header: base.Header{
				"Transport": resp.Write(),
				"Session":   headers.Session{Session: st.mount.ID, Timeout: timeoutPtr(30)}.Write(),
			},
		}
	}

	if err := stream.BindUDP(ps.cfg.Registry.Pool()); err != nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}

	rtpPort, rtcpPort := stream.Ports()
	resp := th
	resp.ServerPorts = &[2]int{rtpPort, rtcpPort}

	return &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Transport": resp.Write(),
			"Session":   headers.Session{Session: st.mount.ID, Timeout: timeoutPtr(30)}.Write(),
		},
	}
}

func (ps *PublishServer) handleRecord(st *publishConnState, req *base.Request) *base.Response {
	if st.mount == nil {
		return &base.Response{StatusCode: base.StatusSessionNotFound}
	}
	if res := ps.checkAuthMatch(st, req); res != nil {
		return res
	}

	var sess headers.Session
	if err := sess.Read(req.Header["Session"]); err != nil || sess.Session != st.mount.ID {
		return &base.Response{StatusCode: base.StatusSessionNotFound}
	}

	if rng, ok := req.Header["Range"]; ok && len(rng) > 0 {
		st.mount.RangeHeader = rng[0]
	}

	if err := st.mount.Setup(ps.cfg.Registry.Pool()); err != nil {
		if _, ok := err.(liberrors.ErrPoolExhausted); ok {
			return &base.Response{StatusCode: base.StatusInternalServerError}
		}
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}

	return &base.Response{StatusCode: base.StatusOK}
}

func (ps *PublishServer) handleTeardown(st *publishConnState, req *base.Request) *base.Response {
	if st.mount == nil {
		return &base.Response{StatusCode: base.StatusSessionNotFound}
	}
	if res := ps.checkAuthMatch(st, req); res != nil {
		return res
	}

	mount := st.mount
	st.mount = nil
	ps.cleanupMount(mount)

	return &base.Response{StatusCode: base.StatusOK}
}

func (ps *PublishServer) cleanupMount(m *Mount) {
	released := m.Close(ps.cfg.Registry.Pool())
	for _, port := range released {
		ps.cfg.Registry.ReturnRTPPort(port)
	}
	ps.cfg.Registry.DeleteMount(m.Path)
}

func timeoutPtr(v uint) *uint { return &v }
