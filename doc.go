// Package netcore implements the network concurrency core of a
// TCP/UDP server fronting a Bloom-filter storage manager: a
// leader/followers thread pool wrapped around a single kernel event
// demultiplexer (epoll on Linux, kqueue on the BSD family), per-connection
// framing over a hand-rolled circular byte buffer with vectored
// readv/writev, and an adaptive output path that writes directly when the
// kernel socket buffer suffices and spills to a per-connection buffer
// when it doesn't.
//
// The command parser and Bloom-filter manager are external collaborators:
// this package hands them a framed command (via Conn.Scan) and a
// write-sink (via Conn.Send) through the Handler interface, and otherwise
// knows nothing about them.
package netcore
