// Package conn contains a RTSP connection implementation shared by the
// publish and client servers: buffered reads that can distinguish a
// text request/response from an interleaved binary frame.
package conn

import (
	"bufio"
	"io"

	"github.com/bluenviron/rtsprelay/pkg/base"
)

const (
	readBufferSize = 4096
)

// Conn wraps a net.Conn (or any io.ReadWriter) with the buffering and
// framing needed to read RTSP requests/responses interleaved with
// binary RTP/RTCP frames.
type Conn struct {
	w  *bufio.Writer
	br *bufio.Reader
}

// NewConn allocates a Conn.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		w:  bufio.NewWriter(rw),
		br: bufio.NewReaderSize(rw, readBufferSize),
	}
}

// ReadRequest reads a Request.
func (c *Conn) ReadRequest() (*base.Request, error) {
	var req base.Request
	err := req.Read(c.br)
	return &req, err
}

// ReadResponse reads a Response.
func (c *Conn) ReadResponse() (*base.Response, error) {
	var res base.Response
	err := res.Read(c.br)
	return &res, err
}

// ReadInterleavedFrame reads an InterleavedFrame.
func (c *Conn) ReadInterleavedFrame() (*base.InterleavedFrame, error) {
	var fr base.InterleavedFrame
	err := fr.Read(c.br)
	return &fr, err
}

// ReadInterleavedFrameOrRequest reads an InterleavedFrame or a Request,
// whichever comes first on the wire.
func (c *Conn) ReadInterleavedFrameOrRequest() (interface{}, error) {
	b, err := c.br.Peek(1)
	if err != nil {
		return nil, err
	}

	if b[0] == base.InterleavedFrameMagicByte {
		return c.ReadInterleavedFrame()
	}

	return c.ReadRequest()
}

// ReadInterleavedFrameOrResponse reads an InterleavedFrame or a
// Response, whichever comes first on the wire.
func (c *Conn) ReadInterleavedFrameOrResponse() (interface{}, error) {
	b, err := c.br.Peek(1)
	if err != nil {
		return nil, err
	}

	if b[0] == base.InterleavedFrameMagicByte {
		return c.ReadInterleavedFrame()
	}

	return c.ReadResponse()
}

// ReadRequestIgnoreFrames reads a Request, discarding any interleaved
// frames encountered before it, for a reader that must tolerate a
// peer pushing RTP over the control channel between requests.
func (c *Conn) ReadRequestIgnoreFrames() (*base.Request, error) {
	for {
		recv, err := c.ReadInterleavedFrameOrRequest()
		if err != nil {
			return nil, err
		}

		if req, ok := recv.(*base.Request); ok {
			return req, nil
		}
	}
}

// ReadResponseIgnoreFrames reads a Response, discarding interleaved
// frames encountered before it.
func (c *Conn) ReadResponseIgnoreFrames() (*base.Response, error) {
	for {
		recv, err := c.ReadInterleavedFrameOrResponse()
		if err != nil {
			return nil, err
		}

		if res, ok := recv.(*base.Response); ok {
			return res, nil
		}
	}
}

// WriteRequest writes a request.
func (c *Conn) WriteRequest(req *base.Request) error {
	if err := req.Write(c.w); err != nil {
		return err
	}
	return c.w.Flush()
}

// WriteResponse writes a response.
func (c *Conn) WriteResponse(res *base.Response) error {
	if err := res.Write(c.w); err != nil {
		return err
	}
	return c.w.Flush()
}

// WriteInterleavedFrame writes an interleaved frame.
func (c *Conn) WriteInterleavedFrame(fr *base.InterleavedFrame) error {
	if err := fr.Write(c.w); err != nil {
		return err
	}
	return c.w.Flush()
}
