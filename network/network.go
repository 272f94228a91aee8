package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("network: host not found")
	ErrClosed   = errors.New("network: connection closed")
)

// DefaultTimeout bounds DNS exchanges and dials when none is configured.
const DefaultTimeout = 5 * time.Second

// Resolver looks up A and AAAA records on one DNS server.
type Resolver struct {
	client *dns.Client
	server string
}

// NewResolver queries server, a host:port address. A zero timeout means
// DefaultTimeout.
func NewResolver(server string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		client: &dns.Client{Net: "udp", Timeout: timeout},
		server: server,
	}
}

// Server returns the DNS server address.
func (r *Resolver) Server() string {
	return r.server
}

// Resolve returns the addresses of host, IPv4 first. Literal addresses are
// returned as is without a query.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	if host == "" {
		return nil, ErrNotFound
	}

	// A failed AAAA query does not discard A answers. The A error wins
	// when nothing resolved.
	var ips []net.IP
	var firstErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := r.query(ctx, host, qtype)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ips = append(ips, found...)
	}
	if len(ips) > 0 {
		return ips, nil
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, host)
}

func (r *Resolver) query(ctx context.Context, host string, qtype uint16) ([]net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	reply, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return nil, fmt.Errorf("network: query %s: %w", host, err)
	}
	switch reply.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("network: query %s: %s", host, dns.RcodeToString[reply.Rcode])
	}

	var ips []net.IP
	for _, rr := range reply.Answer {
		switch a := rr.(type) {
		case *dns.A:
			ips = append(ips, a.A)
		case *dns.AAAA:
			ips = append(ips, a.AAAA)
		}
	}
	return ips, nil
}

// Manager dials TCP connections on behalf of guests and tracks them so a
// task's leftovers can be closed.
type Manager struct {
	resolver *Resolver
	logger   *zap.Logger
	conns    map[*Connection]struct{}
	dialer   net.Dialer
	timeout  time.Duration
	mu       sync.Mutex
}

// NewManager creates a connection manager. A zero timeout means
// DefaultTimeout; a nil logger disables logging.
func NewManager(resolver *Resolver, timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		resolver: resolver,
		logger:   logger,
		conns:    make(map[*Connection]struct{}),
		dialer:   net.Dialer{Timeout: timeout},
		timeout:  timeout,
	}
}

// Resolve resolves host with the manager's resolver.
func (m *Manager) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	return m.resolver.Resolve(ctx, host)
}

// Connect resolves host and dials the first address that accepts.
func (m *Manager) Connect(ctx context.Context, host string, port uint16) (*Connection, error) {
	ips, err := m.resolver.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, ip := range ips {
		address := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
		conn, err := m.dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			lastErr = err
			continue
		}

		c := &Connection{conn: conn, manager: m}
		m.mu.Lock()
		m.conns[c] = struct{}{}
		m.mu.Unlock()

		m.logger.Debug("connected", zap.String("host", host), zap.String("address", address))
		return c, nil
	}
	return nil, fmt.Errorf("network: connect %s: %w", host, lastErr)
}

// Len returns the number of open connections.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *Manager) forget(c *Connection) {
	m.mu.Lock()
	delete(m.conns, c)
	m.mu.Unlock()
}

// Connection is a TCP connection owned by a guest.
type Connection struct {
	conn    net.Conn
	manager *Manager
	mu      sync.Mutex
	closed  bool
}

func (c *Connection) netConn() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.conn, nil
}

// Send writes data and returns the number of bytes written.
func (c *Connection) Send(data []byte) (int, error) {
	conn, err := c.netConn()
	if err != nil {
		return 0, err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(c.manager.timeout)); err != nil {
		return 0, err
	}
	return conn.Write(data)
}

// Receive reads into buf. A peer that closed its end yields zero bytes.
func (c *Connection) Receive(buf []byte) (int, error) {
	conn, err := c.netConn()
	if err != nil {
		return 0, err
	}
	if err := conn.SetReadDeadline(time.Now().Add(c.manager.timeout)); err != nil {
		return 0, err
	}
	n, err := conn.Read(buf)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

// RemoteAddress returns the peer address.
func (c *Connection) RemoteAddress() string {
	return c.conn.RemoteAddr().String()
}

// Close closes the connection. Closing twice returns ErrClosed.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.mu.Unlock()

	c.manager.forget(c)
	return c.conn.Close()
}
