package transport

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/jabolina/sensor-mesh/internal/metrics"
	"github.com/jabolina/sensor-mesh/internal/protocol"
)

// ServerConfig carries the inbound server's tunables.
type ServerConfig struct {
	Host          string
	Port          int
	RecvTimeout   time.Duration
	AcceptTimeout time.Duration
	MaxFrameSize  int
}

// DefaultServerConfig holds the server's default tunables.
func DefaultServerConfig(host string, port int) ServerConfig {
	return ServerConfig{
		Host:          host,
		Port:          port,
		RecvTimeout:   time.Second,
		AcceptTimeout: time.Second,
		MaxFrameSize:  DefaultMaxFrameSize,
	}
}

// Server accepts TCP connections and, for each, decodes frames and
// hands the resulting messages to a Dispatcher. It never interprets
// message semantics itself: a connection is its own unit of failure,
// a decode failure only drops that one frame, and a dispatcher error
// is absorbed without affecting any other connection.
//
// Grounded on neo-go's listenTCP/handleConnection split (one
// goroutine accepting, one per connection) and on tcp_server.py's
// connection tracking for a bounded, cooperative shutdown.
type Server struct {
	cfg        ServerConfig
	dispatcher *protocol.Dispatcher
	log        logging.Logger

	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup

	stop    chan struct{}
	metrics *metrics.Registry
}

// WithMetrics attaches a metrics registry whose
// inbound_frames_decoded_total counter handleConnection increments
// from then on. Optional; nil leaves metrics untouched.
func (s *Server) WithMetrics(m *metrics.Registry) *Server {
	s.metrics = m
	return s
}

// NewServer constructs a Server bound to cfg.Host:cfg.Port. The
// socket isn't opened until Start is called.
func NewServer(cfg ServerConfig, dispatcher *protocol.Dispatcher, log logging.Logger) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        log,
		conns:      make(map[net.Conn]struct{}),
		stop:       make(chan struct{}),
	}
}

// Start binds the listening socket and launches the accept loop in
// its own goroutine. Start must only be called once.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return err
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener's address, useful when Port was 0
// (ephemeral port, as used by tests that bind to an ephemeral port).
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// acceptLoop renews an accept deadline every AcceptTimeout so the loop
// periodically wakes to re-check the stop signal even if no
// connection ever arrives, rather than relying solely on
// listener.Close() to unblock Accept.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	tcpLn, _ := s.listener.(*net.TCPListener)

	for {
		if tcpLn != nil {
			tcpLn.SetDeadline(time.Now().Add(s.cfg.AcceptTimeout))
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.log.Warnf("accept failed: %v", err)
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection is the "one logical task per connection": read a
// frame, decode it, dispatch it, repeat. Framing failures terminate
// the connection; decode failures are logged and the loop continues;
// dispatcher errors are swallowed.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(s.cfg.RecvTimeout))
		frame, err := ReadFrame(conn, s.cfg.MaxFrameSize)
		if err != nil {
			// A deadline expiring on an idle connection is not a
			// framing failure: ReadFrame returns it unwrapped so it
			// keeps satisfying net.Error, and the loop just goes
			// around to re-check the stop signal instead of dropping
			// the connection.
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			s.log.Warnf("dropping malformed frame from %s: %v", conn.RemoteAddr(), err)
			continue
		}
		if s.metrics != nil {
			s.metrics.InboundFramesDecoded.Inc()
		}

		if err := s.dispatcher.Dispatch(msg); err != nil {
			s.log.Errorf("handler error for kind %s from %s: %v", msg.Kind, msg.SenderID, err)
		}
	}
}

// Stop closes the listener, half-closes every live connection, and
// waits (bounded) for the accept loop and every connection handler to
// finish — a cooperative shutdown fence.
func (s *Server) Stop() {
	close(s.stop)
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		// Shutting down the read side wakes the handler's pending read
		// with EOF; the handler then closes the connection itself.
		if tc, ok := c.(*net.TCPConn); ok {
			tc.CloseRead()
		} else {
			c.Close()
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("server shutdown timed out waiting for connections to close")
	}
}

