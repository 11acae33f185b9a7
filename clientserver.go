package relay

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bluenviron/rtsprelay/pkg/auth"
	"github.com/bluenviron/rtsprelay/pkg/base"
	"github.com/bluenviron/rtsprelay/pkg/bytecounter"
	"github.com/bluenviron/rtsprelay/pkg/conn"
	"github.com/bluenviron/rtsprelay/pkg/headers"
)

// ClientHooks are the admission callbacks invoked by the Client Server
// while handling an incoming subscriber connection.
type ClientHooks struct {
	// CheckMount, if set, may reject DESCRIBE. A non-zero
	// statusCode overrides the default 403.
	CheckMount func(req *base.Request) (allow bool, statusCode int)
	// ClientGone fires when a subscriber's wrapper is closed by
	// TEARDOWN, keepalive expiry or the control connection closing,
	// carrying the mount it was attached to. SweepStalledWrappers
	// closes wrappers without calling it.
	ClientGone func(m *Mount)
}

// ClientServerConfig configures a ClientServer.
type ClientServerConfig struct {
	Registry          *Registry
	Validator         *auth.Validator // nil disables authentication
	Hooks             ClientHooks
	KeepaliveInterval time.Duration
	RequestLimiter    rate.Limit
	RequestBurst      int
	Log               *slog.Logger
}

// ClientServer implements the RTSP state machine for subscribers:
// OPTIONS, DESCRIBE, SETUP, PLAY, TEARDOWN.
type ClientServer struct {
	cfg ClientServerConfig
	log *slog.Logger

	mutex    sync.Mutex
	wrappers map[string]*SubscriberWrapper
}

// NewClientServer builds a ClientServer from cfg.
func NewClientServer(cfg ClientServerConfig) *ClientServer {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &ClientServer{
		cfg:      cfg,
		log:      log,
		wrappers: make(map[string]*SubscriberWrapper),
	}
}

// Serve accepts connections on ln until it is closed.
func (cs *ClientServer) Serve(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		go cs.handleConn(nc)
	}
}

// SweepStalledWrappers closes every wrapper whose mount is no longer in
// the registry (publisher gone). Intended to be called periodically,
// e.g. every second, by the host process.
func (cs *ClientServer) SweepStalledWrappers() {
	cs.mutex.Lock()
	var stale []*SubscriberWrapper
	for id, w := range cs.wrappers {
		if _, ok := cs.cfg.Registry.GetMount(w.Mount.Path); !ok {
			stale = append(stale, w)
			delete(cs.wrappers, id)
		}
	}
	cs.mutex.Unlock()

	for _, w := range stale {
		w.Close()
	}
}

func (cs *ClientServer) addWrapper(w *SubscriberWrapper) {
	cs.mutex.Lock()
	cs.wrappers[w.ID] = w
	cs.mutex.Unlock()
}

func (cs *ClientServer) getWrapper(id string) (*SubscriberWrapper, bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	w, ok := cs.wrappers[id]
	return w, ok
}

func (cs *ClientServer) dropWrapper(id string) {
	cs.mutex.Lock()
	delete(cs.wrappers, id)
	cs.mutex.Unlock()
}

type clientConnState struct {
	wrapper     *SubscriberWrapper
	interleaver *TCPInterleaver
	limiter     *rate.Limiter
	remoteIP    net.IP
}

func (cs *ClientServer) handleConn(nc net.Conn) {
	defer nc.Close()

	bc := bytecounter.New(nc, nil, nil, nil, nil)
	c := conn.NewConn(bc)

	st := &clientConnState{}
	if cs.cfg.RequestLimiter > 0 {
		st.limiter = rate.NewLimiter(cs.cfg.RequestLimiter, cs.cfg.RequestBurst)
	}
	if host, _, err := net.SplitHostPort(nc.RemoteAddr().String()); err == nil {
		st.remoteIP = net.ParseIP(host)
	}

	defer func() {
		if st.wrapper != nil {
			cs.dropWrapper(st.wrapper.ID)
			st.wrapper.Close()
			if cs.cfg.Hooks.ClientGone != nil {
				cs.cfg.Hooks.ClientGone(st.wrapper.Mount)
			}
		}
		if st.interleaver != nil {
			st.interleaver.Close()
		}
	}()

	for {
		recv, err := c.ReadInterleavedFrameOrRequest()
		if err != nil {
			return
		}

		switch v := recv.(type) {
		case *base.InterleavedFrame:
			// A subscriber is not expected to push media; per the
			// relay's documented behavior these frames are logged and
			// discarded, never relayed to the publisher.
			cs.log.Debug("discarding inbound interleaved frame from subscriber", "channel", v.Channel)

			if st.wrapper != nil {
				st.wrapper.Refresh()
			}

		case *base.Request:
			if st.limiter != nil && !st.limiter.Allow() {
				c.WriteResponse(&base.Response{StatusCode: base.StatusServiceUnavailable}) //nolint:errcheck
				continue
			}

			res := cs.handleRequest(st, v, c)
			if err := c.WriteResponse(res); err != nil {
				return
			}
			if v.Method == base.Teardown && res.StatusCode == base.StatusOK {
				return
			}
		}
	}
}

func (cs *ClientServer) authenticate(req *base.Request) *base.Response {
	if cs.cfg.Validator == nil {
		return nil
	}

	if err := cs.cfg.Validator.Validate(req); err != nil {
		return &base.Response{
			StatusCode: base.StatusUnauthorized,
			Header: base.Header{
				"WWW-Authenticate": cs.cfg.Validator.Challenge(),
			},
		}
	}

	return nil
}

func (cs *ClientServer) handleRequest(st *clientConnState, req *base.Request, c *conn.Conn) *base.Response {
	if errRes := cs.authenticate(req); errRes != nil {
		return errRes
	}

	switch req.Method {
	case base.Options:
		if _, ok := req.Header["Session"]; ok {
			var sessHeader headers.Session
			if err := sessHeader.Read(req.Header["Session"]); err != nil {
				return &base.Response{StatusCode: base.StatusSessionNotFound}
			}
			w, ok := cs.getWrapper(sessHeader.Session)
			if !ok {
				return &base.Response{StatusCode: base.StatusSessionNotFound}
			}
			if res := cs.checkWrapperAuth(w, authHeaderValue(req)); res != nil {
				return res
			}
			w.Refresh()
		} else if st.wrapper != nil {
			st.wrapper.Refresh()
		}
		return &base.Response{
			StatusCode: base.StatusOK,
			Header: base.Header{
				"Public": base.HeaderValue{"OPTIONS, DESCRIBE, SETUP, PLAY, TEARDOWN"},
			},
		}

	case base.Describe:
		return cs.handleDescribe(req)

	case base.Setup:
		return cs.handleSetup(st, req, c)

	case base.Play:
		return cs.handlePlay(st, req)

	case base.Teardown:
		return cs.handleTeardown(st, req)

	default:
		return &base.Response{StatusCode: base.StatusNotImplemented}
	}
}

func (cs *ClientServer) handleDescribe(req *base.Request) *base.Response {
	if cs.cfg.Hooks.CheckMount != nil {
		if allow, code := cs.cfg.Hooks.CheckMount(req); !allow {
			if code == 0 {
				code = int(base.StatusForbidden)
			}
			return &base.Response{StatusCode: base.StatusCode(code)}
		}
	}

	path, _ := splitPathStreamID(req.URL.Path)

	mount, ok := cs.cfg.Registry.GetMount(path)
	if !ok {
		return &base.Response{StatusCode: base.StatusNotFound}
	}

	return &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Content-Type": base.HeaderValue{"application/sdp"},
		},
		Body: mount.SDP,
	}
}

func (cs *ClientServer) handleSetup(st *clientConnState, req *base.Request, c *conn.Conn) *base.Response {
	var sessHeader headers.Session
	hasSession := sessHeader.Read(req.Header["Session"]) == nil && sessHeader.Session != ""

	path, streamID := splitPathStreamID(req.URL.Path)

	authValue := authHeaderValue(req)

	if !hasSession {
		mount, ok := cs.cfg.Registry.GetMount(path)
		if !ok {
			return &base.Response{StatusCode: base.StatusNotFound}
		}

		st.wrapper = NewSubscriberWrapper(mount, authValue, cs.cfg.Registry.Pool(), cs.cfg.KeepaliveInterval, cs.onWrapperExpire)
		cs.addWrapper(st.wrapper)
	} else {
		w, ok := cs.getWrapper(sessHeader.Session)
		if !ok {
			return &base.Response{StatusCode: base.StatusSessionNotFound}
		}
		if res := cs.checkWrapperAuth(w, authValue); res != nil {
			return res
		}
		st.wrapper = w
		w.Refresh()
	}

	stream, ok := st.wrapper.Mount.Stream(streamID)
	if !ok {
		var err error
		stream, err = st.wrapper.Mount.CreateStream(streamID)
		if err != nil {
			return &base.Response{StatusCode: base.StatusInternalServerError}
		}
	}

	var th headers.Transport
	if err := th.Read(req.Header["Transport"]); err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	var respTransport headers.Transport

	if th.Protocol == headers.TransportProtocolTCP {
		channels := [2]int{streamID * 2, streamID*2 + 1}
		if th.InterleavedIDs != nil {
			channels = *th.InterleavedIDs
		}

		if st.interleaver == nil {
			st.interleaver = NewTCPInterleaver(c, channels[0], channels[1], nil)
			st.interleaver.Start()
		}

		st.wrapper.AddTCPClient(streamID, stream, st.interleaver)

		respTransport = headers.Transport{
			Protocol:       headers.TransportProtocolTCP,
			InterleavedIDs: &channels,
		}
	} else {
		if th.ClientPorts == nil {
			return &base.Response{StatusCode: base.StatusBadRequest}
		}

		sess, err := st.wrapper.AddUDPClient(streamID, stream, st.remoteIP, th.ClientPorts[0], th.ClientPorts[1])
		if err != nil {
			return &base.Response{StatusCode: base.StatusInternalServerError}
		}

		rtpPort, rtcpPort := sess.ServerPorts()
		respTransport = th
		respTransport.ServerPorts = &[2]int{rtpPort, rtcpPort}
	}

	return &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Transport": respTransport.Write(),
			"Session":   headers.Session{Session: st.wrapper.ID, Timeout: timeoutPtr(30)}.Write(),
		},
	}
}

func (cs *ClientServer) handlePlay(st *clientConnState, req *base.Request) *base.Response {
	var sessHeader headers.Session
	if err := sessHeader.Read(req.Header["Session"]); err != nil {
		return &base.Response{StatusCode: base.StatusSessionNotFound}
	}

	w, ok := cs.getWrapper(sessHeader.Session)
	if !ok {
		return &base.Response{StatusCode: base.StatusSessionNotFound}
	}
	if res := cs.checkWrapperAuth(w, authHeaderValue(req)); res != nil {
		return res
	}

	w.Play()
	w.Refresh()

	res := &base.Response{StatusCode: base.StatusOK, Header: base.Header{}}
	if w.Mount.RangeHeader != "" {
		res.Header["Range"] = base.HeaderValue{w.Mount.RangeHeader}
	}
	return res
}

func (cs *ClientServer) handleTeardown(st *clientConnState, req *base.Request) *base.Response {
	var sessHeader headers.Session
	if err := sessHeader.Read(req.Header["Session"]); err != nil {
		return &base.Response{StatusCode: base.StatusSessionNotFound}
	}

	w, ok := cs.getWrapper(sessHeader.Session)
	if !ok {
		return &base.Response{StatusCode: base.StatusSessionNotFound}
	}
	if res := cs.checkWrapperAuth(w, authHeaderValue(req)); res != nil {
		return res
	}

	cs.dropWrapper(w.ID)
	w.Close()
	st.wrapper = nil

	if cs.cfg.Hooks.ClientGone != nil {
		cs.cfg.Hooks.ClientGone(w.Mount)
	}

	return &base.Response{StatusCode: base.StatusOK}
}

// authHeaderValue extracts the raw Authorization header value from req,
// or "" if absent.
func authHeaderValue(req *base.Request) string {
	if v, ok := req.Header["Authorization"]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

// checkWrapperAuth enforces the anti-hijack contract: a request that
// names an existing session must carry the same Authorization value the
// wrapper was created with.
func (cs *ClientServer) checkWrapperAuth(w *SubscriberWrapper, authValue string) *base.Response {
	if err := w.CheckAuthorization(authValue); err != nil {
		res := &base.Response{StatusCode: base.StatusUnauthorized}
		if cs.cfg.Validator != nil {
			res.Header = base.Header{"WWW-Authenticate": cs.cfg.Validator.Challenge()}
		}
		return res
	}
	return nil
}

func (cs *ClientServer) onWrapperExpire(w *SubscriberWrapper) {
	cs.dropWrapper(w.ID)
	if cs.cfg.Hooks.ClientGone != nil {
		cs.cfg.Hooks.ClientGone(w.Mount)
	}
}
