// Package relay implements a RTSP relay: it accepts published streams
// via ANNOUNCE/SETUP/RECORD and fans out their RTP/RTCP traffic to
// subscribing clients via DESCRIBE/SETUP/PLAY, over both plain UDP and
// TCP-interleaved transports.
package relay
