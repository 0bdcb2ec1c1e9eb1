// Package reactor implements the worker's event loop: one edge-triggered
// epoll instance multiplexing the shared listening socket, every accepted
// client connection, and every upstream dial made on a client's behalf.
package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/avtobiff/ombud/common"
	"github.com/avtobiff/ombud/internal/cache"
	"github.com/avtobiff/ombud/internal/logger"
	"github.com/avtobiff/ombud/internal/metrics"
	"github.com/avtobiff/ombud/internal/netutil"
)

const bufLen = 8192

// client holds per-connection state for a control connection: the queue of
// service identifiers parsed off the wire but not yet serviced, and any
// relay bytes that couldn't be written without blocking. The queue exists
// so a packet containing several newline-terminated identifiers dispatches
// them in arrival order even though each may resolve to a cache hit or an
// upstream dial with different latency. writeBuf exists so a client that
// stalls reading its own socket never blocks the worker during an upstream
// relay: a short write queues the remainder here instead of retrying send()
// in a loop, and the rest drains on a later EPOLLOUT edge.
type client struct {
	fd       int
	pending  common.Queue[string]
	writeBuf []byte
}

// upstream holds the state of a dial made on a client's behalf.
type upstream struct {
	fd       int
	clientFd int
	key      string
}

// Reactor runs one worker's epoll loop.
type Reactor struct {
	epfd     int
	listenFd int
	store    *cache.Store
	metrics  metrics.Handle
	log      *slog.Logger

	clients   map[int]*client
	upstreams map[int]*upstream
}

// New creates a Reactor bound to an already-listening, non-blocking socket.
// workerIndex is attached to every log line this reactor emits, so
// interleaved output from several worker processes stays attributable.
func New(listenFd int, store *cache.Store, m metrics.Handle, workerIndex int) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}

	r := &Reactor{
		epfd:      epfd,
		listenFd:  listenFd,
		store:     store,
		metrics:   m,
		log:       logger.With("worker", workerIndex),
		clients:   make(map[int]*client),
		upstreams: make(map[int]*upstream),
	}

	if err := r.epollAdd(listenFd); err != nil {
		unix.Close(epfd)
		return nil, err
	}
	return r, nil
}

// epollAdd registers fd for edge-triggered readability only: the listener
// and upstream dials never need to be written to by the reactor.
func (r *Reactor) epollAdd(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// epollAddClient registers a client fd for both readability (further
// commands) and writability (resuming a backed-up relay), so a slow reader
// never forces the worker into a write() retry loop while relaying an
// upstream response; instead it waits on the very same epoll_wait every
// other connection waits on. Cache hits are streamed by Store.Sendfile
// instead, which retries on EAGAIN until the whole entry has been sent.
func (r *Reactor) epollAddClient(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (r *Reactor) epollDel(fd int) {
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Run drives the event loop until ctx is cancelled or epoll_wait fails.
func (r *Reactor) Run(ctx context.Context) error {
	events := make([]unix.EpollEvent, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.EpollWait(r.epfd, events, 1000)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			flags := events[i].Events
			switch {
			case fd == r.listenFd:
				r.doAccept()
			default:
				if _, ok := r.clients[fd]; ok {
					// A backed-up relay drains first: it was blocked on
					// writability, and draining it may free room for
					// the client's own next command to be read.
					if flags&unix.EPOLLOUT != 0 {
						r.flushClient(fd)
					}
					if flags&unix.EPOLLIN != 0 {
						r.doReadCmd(fd)
					}
				} else if _, ok := r.upstreams[fd]; ok {
					r.doReadRemote(fd)
				}
			}
		}
	}
}

// doAccept drains the accept queue: edge-triggered epoll only wakes once
// per batch of arrivals, so every accept must loop until EAGAIN.
func (r *Reactor) doAccept() {
	for {
		fd, err := netutil.Accept4(r.listenFd)
		if err != nil {
			if err != unix.EAGAIN {
				r.log.Warn("reactor: accept failed", "err", err)
			}
			return
		}

		c := &client{fd: fd, pending: common.NewLinkedListQueue[string]()}
		r.clients[fd] = c
		if err := r.epollAddClient(fd); err != nil {
			r.log.Warn("reactor: epoll_add client failed", "conn", fd, "err", err)
			unix.Close(fd)
			delete(r.clients, fd)
			continue
		}
		r.metrics.ConnectionOpened(context.Background())
	}
}

// doReadCmd drains one client's readable bytes, parses them into service
// identifiers, and dispatches each in order.
func (r *Reactor) doReadCmd(fd int) {
	c := r.clients[fd]
	buf := make([]byte, bufLen)

	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return
			}
			r.closeClient(fd)
			return
		}
		if n == 0 {
			r.closeClient(fd)
			return
		}

		for _, ident := range parseCommands(buf[:n]) {
			c.pending.Push(ident)
		}
		for !c.pending.IsEmpty() {
			r.dispatch(c, c.pending.Pop())
		}
	}
}

// parseCommands splits a read buffer into newline-terminated service
// identifiers, stripping a trailing \r. A trailing fragment with no
// terminating newline is an incomplete command and is dropped, matching the
// original's single-pass strtok parse.
func parseCommands(data []byte) []string {
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 {
		return nil
	}
	complete := lines[:len(lines)-1]
	cmds := make([]string, 0, len(complete))
	for _, l := range complete {
		if l = strings.TrimSuffix(l, "\r"); l != "" {
			cmds = append(cmds, l)
		}
	}
	return cmds
}

// dispatch serves identifier from cache if present, otherwise dials
// upstream and registers the dial for relay once it responds.
func (r *Reactor) dispatch(c *client, identifier string) {
	ctx := context.Background()
	connLog := r.log.With("conn", c.fd)

	host, port, err := splitHostPort(identifier)
	if err != nil {
		connLog.Warn("reactor: malformed identifier", "identifier", identifier, "err", err)
		r.metrics.CommandProcessed(ctx, metrics.OutcomeMalformed)
		return
	}

	key := cache.Key(identifier)
	if r.store.Lookup(key) {
		if _, err := r.store.Sendfile(c.fd, key); err != nil {
			connLog.Warn("reactor: sendfile failed", "identifier", identifier, "err", err)
		}
		r.metrics.CacheHit(ctx)
		r.metrics.CommandProcessed(ctx, metrics.OutcomeHit)
		return
	}

	r.metrics.CacheMiss(ctx)
	r.metrics.CommandProcessed(ctx, metrics.OutcomeMiss)

	ufd, err := dialUpstream(host, port)
	if err != nil {
		connLog.Warn("reactor: upstream dial failed", "host", host, "port", port, "err", err)
		r.metrics.UpstreamDialError(ctx)
		return
	}

	r.upstreams[ufd] = &upstream{fd: ufd, clientFd: c.fd, key: key}
	if err := r.epollAdd(ufd); err != nil {
		connLog.Warn("reactor: epoll_add upstream failed", "conn", ufd, "err", err)
		unix.Close(ufd)
		delete(r.upstreams, ufd)
	}
}

// doReadRemote reads one response chunk from an upstream dial, persists it
// to the cache, relays it back to the owning client, and tears the dial
// down. The original protocol expects one response per identifier, so a
// single read (rather than a loop to EOF) is sufficient.
func (r *Reactor) doReadRemote(fd int) {
	u := r.upstreams[fd]
	buf := make([]byte, bufLen)

	n, err := unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return
		}
		r.log.Warn("reactor: read upstream failed", "conn", fd, "err", err)
		r.closeUpstream(fd)
		return
	}

	// A zero-byte read is treated as end-of-response, not as nothing
	// happening: it still caches (and relays) a zero-byte entry, matching
	// do_read_remote's unconditional cache_write call.
	if err := r.store.Write(u.key, buf, n); err != nil {
		r.log.Warn("reactor: cache write failed", "conn", fd, "err", err)
	}
	r.relayToClient(u.clientFd, buf[:n])
	if n > 0 {
		r.metrics.BytesRelayed(context.Background(), int64(n))
	}

	r.closeUpstream(fd)
}

// relayToClient writes data to clientFd without ever blocking. If the
// client's socket can't absorb it all right now (a slow or stalled reader),
// whatever is left is appended to the client's writeBuf and drained later
// by flushClient on the EPOLLOUT edge that fires once the socket has room
// again. A client that has already fallen behind (non-empty writeBuf) gets
// this chunk appended behind what's already queued, preserving relay order.
func (r *Reactor) relayToClient(clientFd int, data []byte) {
	c, ok := r.clients[clientFd]
	if !ok {
		// Client disconnected before its relay arrived; nothing to do.
		return
	}

	if len(c.writeBuf) > 0 {
		c.writeBuf = append(c.writeBuf, data...)
		return
	}

	n, err := netutil.WriteNonBlocking(clientFd, data)
	if err != nil {
		// Matches the original: a relay error is logged but the client
		// connection stays open for further commands.
		r.log.Warn("reactor: relay to client failed", "conn", clientFd, "err", err)
		return
	}
	if n < len(data) {
		c.writeBuf = append([]byte(nil), data[n:]...)
	}
}

// flushClient resumes a relay that backed up in relayToClient, called when
// fd's EPOLLOUT edge fires to signal the socket has buffer space again.
func (r *Reactor) flushClient(fd int) {
	c, ok := r.clients[fd]
	if !ok || len(c.writeBuf) == 0 {
		return
	}

	n, err := netutil.WriteNonBlocking(fd, c.writeBuf)
	if err != nil {
		r.log.Warn("reactor: flush queued relay failed", "conn", fd, "err", err)
		c.writeBuf = nil
		return
	}
	c.writeBuf = c.writeBuf[n:]
}

func (r *Reactor) closeClient(fd int) {
	r.epollDel(fd)
	unix.Close(fd)
	delete(r.clients, fd)
	r.metrics.ConnectionClosed(context.Background())
}

func (r *Reactor) closeUpstream(fd int) {
	r.epollDel(fd)
	unix.Close(fd)
	delete(r.upstreams, fd)
}

// splitHostPort splits a service identifier on its rightmost colon, so a
// bracket-less IPv6-looking or multiply-colon-containing host still
// resolves the same way the original extract_host_port does.
func splitHostPort(identifier string) (host, port string, err error) {
	i := strings.LastIndexByte(identifier, ':')
	if i <= 0 || i == len(identifier)-1 {
		return "", "", fmt.Errorf("missing host:port separator in %q", identifier)
	}
	return identifier[:i], identifier[i+1:], nil
}

// dialUpstream opens an IPv4 TCP connection to host:port, matching the
// original's AF_INET-only connect_remote_host, then marks the new socket
// non-blocking for the reactor to read from.
func dialUpstream(host, port string) (int, error) {
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return -1, fmt.Errorf("invalid port %q", port)
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return -1, err
	}

	var lastErr error
	for _, addr := range addrs {
		ip := net.ParseIP(addr).To4()
		if ip == nil {
			continue
		}

		fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
		if err != nil {
			return -1, err
		}

		sa := &unix.SockaddrInet4{Port: p}
		copy(sa.Addr[:], ip)

		if err := unix.Connect(fd, sa); err != nil {
			unix.Close(fd)
			lastErr = err
			continue
		}
		if err := netutil.MakeNonblocking(fd); err != nil {
			unix.Close(fd)
			return -1, err
		}
		return fd, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no IPv4 address found for host %q", host)
	}
	return -1, lastErr
}
