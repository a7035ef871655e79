// Package rpc serves the leader's control socket: a non-blocking local
// stream socket carrying length-prefixed frames.
//
// Wire frame: ASCII decimal length, '\n', then exactly that many payload
// bytes. The reply is framed identically. One request is served per
// connection; the leader closes the fd once the reply is written.
package rpc

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/drpcorg/ptree/utils"
)

// MaxFrameLength caps a frame before its buffer is allocated.
const MaxFrameLength = 100_000_000

var (
	ErrFrameTooLong = errors.New("frame length over limit")
	ErrBadLength    = errors.New("non-digit in frame length")
	ErrShortRead    = errors.New("short read")
	ErrShortWrite   = errors.New("short write")
)

type State uint8

const (
	StateLength State = iota + 1
	StatePayload
	StateReady
	StateReply
	StateDone
	StateError
)

// Handler turns a request payload into a reply payload. A returned error
// moves the peer to the error state: the connection closes without a
// reply.
type Handler func(payload []byte) ([]byte, error)

// Peer is one accepted connection working through the frame state
// machine. Progress is whatever the fd allows within a tick; EAGAIN
// parks the peer until the next tick.
type Peer struct {
	Name   string
	fd     int
	state  State
	length int
	pos    int
	buf    []byte
	msg    string
}

func (p *Peer) State() State { return p.state }

type Server struct {
	path   string
	fd     int
	peers  []*Peer
	handle Handler
	log    utils.Logger

	// counters for the leader's collector
	Served     uint64
	PeerErrors uint64
}

// Listen binds the control socket at path in non-blocking mode. A stale
// socket file from a previous run is removed first.
func Listen(path string, handle Handler, log utils.Logger) (*Server, error) {
	_ = unix.Unlink(path)
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return nil, err
	}
	log.Info("rpc: listening", "path", path)
	return &Server{path: path, fd: fd, handle: handle, log: log}, nil
}

// Serve runs one cooperative tick: drain pending accepts, then advance
// every peer as far as its fd allows.
func (s *Server) Serve() {
	for {
		nfd, _, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			break
		}
		if err != nil {
			s.log.Error("rpc: accept failed", "err", err)
			break
		}
		peer := &Peer{
			Name:  uuid.Must(uuid.NewV7()).String(),
			fd:    nfd,
			state: StateLength,
		}
		s.peers = append(s.peers, peer)
		s.log.Debug("rpc: accepted peer", "peer", peer.Name)
	}

	live := s.peers[:0]
	for _, p := range s.peers {
		s.advance(p)
		switch p.state {
		case StateDone:
			unix.Close(p.fd)
			s.Served++
		case StateError:
			s.log.Warn("rpc: peer failed", "peer", p.Name, "msg", p.msg)
			// discard what the peer already sent, so the close reaches
			// it as EOF rather than a connection reset
			var junk [512]byte
			for {
				n, err := unix.Read(p.fd, junk[:])
				if err != nil || n <= 0 {
					break
				}
			}
			unix.Close(p.fd)
			s.PeerErrors++
		default:
			live = append(live, p)
		}
	}
	s.peers = live
}

// advance pushes one peer through the state machine until it parks on
// EAGAIN or reaches a terminal state.
func (s *Server) advance(p *Peer) {
	for {
		switch p.state {
		case StateLength:
			if !s.readLength(p) {
				return
			}
		case StatePayload:
			if !s.readPayload(p) {
				return
			}
		case StateReady:
			s.serveRequest(p)
		case StateReply:
			if !s.writeReply(p) {
				return
			}
		case StateDone, StateError:
			return
		}
	}
}

func (p *Peer) fail(msg string) {
	p.state = StateError
	p.msg = msg
}

// readLength drains the length prefix one byte at a time; '\n' commits.
// The cap is enforced while digits accumulate, before any allocation.
func (s *Server) readLength(p *Peer) bool {
	var one [1]byte
	for {
		n, err := unix.Read(p.fd, one[:])
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return false
		}
		if err != nil {
			p.fail(err.Error())
			return true
		}
		if n == 0 {
			p.fail(ErrShortRead.Error())
			return true
		}
		c := one[0]
		switch {
		case c >= '0' && c <= '9':
			p.length = p.length*10 + int(c-'0')
			if p.length > MaxFrameLength {
				p.fail(ErrFrameTooLong.Error())
				return true
			}
		case c == '\n':
			p.buf = make([]byte, p.length)
			p.pos = 0
			if p.length == 0 {
				p.state = StateReady
			} else {
				p.state = StatePayload
			}
			return true
		default:
			p.fail(ErrBadLength.Error())
			return true
		}
	}
}

func (s *Server) readPayload(p *Peer) bool {
	for p.pos < p.length {
		n, err := unix.Read(p.fd, p.buf[p.pos:p.length])
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return false
		}
		if err != nil {
			p.fail(err.Error())
			return true
		}
		if n == 0 {
			p.fail(ErrShortRead.Error())
			return true
		}
		p.pos += n
	}
	p.state = StateReady
	return true
}

func (s *Server) serveRequest(p *Peer) {
	defer func() {
		if r := recover(); r != nil {
			p.fail(fmt.Sprint("handler panic: ", r))
		}
	}()
	reply, err := s.handle(p.buf)
	if err != nil {
		p.fail(err.Error())
		return
	}
	framed := strconv.AppendInt(nil, int64(len(reply)), 10)
	framed = append(framed, '\n')
	framed = append(framed, reply...)
	p.buf = framed
	p.length = len(framed)
	p.pos = 0
	p.state = StateReply
}

func (s *Server) writeReply(p *Peer) bool {
	for p.pos < p.length {
		n, err := unix.Write(p.fd, p.buf[p.pos:])
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return false
		}
		if err != nil {
			p.fail(err.Error())
			return true
		}
		if n == 0 {
			p.fail(ErrShortWrite.Error())
			return true
		}
		p.pos += n
	}
	p.state = StateDone
	return true
}

// Peers reports how many connections are currently in flight.
func (s *Server) Peers() int {
	return len(s.peers)
}

// Close terminates every peer, stops listening and removes the socket
// file.
func (s *Server) Close() error {
	for _, p := range s.peers {
		unix.Close(p.fd)
	}
	s.peers = nil
	err := unix.Close(s.fd)
	_ = unix.Unlink(s.path)
	s.log.Info("rpc: closed", "path", s.path)
	return err
}
