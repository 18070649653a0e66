package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jabolina/sensor-mesh/internal/logging"
	"github.com/jabolina/sensor-mesh/internal/metrics"
)

// BackoffMode selects how the outbound worker grows its reconnect
// delay between attempts.
type BackoffMode string

const (
	BackoffExponential BackoffMode = "exponential"
	BackoffLinear      BackoffMode = "linear"
)

// ClientConfig carries the outbound client's tunables.
type ClientConfig struct {
	ConnectTimeout      time.Duration
	SendTimeout         time.Duration
	MaxFrameSize        int
	BackoffInitial      time.Duration
	BackoffMax          time.Duration
	BackoffMode         BackoffMode
	IdleProbeInterval   time.Duration
	TCPKeepAlive        bool
}

// DefaultClientConfig holds the outbound client's default tunables.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout:    2 * time.Second,
		SendTimeout:       2 * time.Second,
		MaxFrameSize:      DefaultMaxFrameSize,
		BackoffInitial:    500 * time.Millisecond,
		BackoffMax:        10 * time.Second,
		BackoffMode:       BackoffExponential,
		IdleProbeInterval: time.Second,
		TCPKeepAlive:      true,
	}
}

// ErrUnknownPeer is returned by Enqueue when peerID has no worker
// registered. The replication publisher retries once after a
// just-in-time registration; other callers surface it.
type ErrUnknownPeer struct {
	PeerID string
}

func (e *ErrUnknownPeer) Error() string {
	return fmt.Sprintf("transport: unknown peer_id: %s", e.PeerID)
}

// ErrDuplicatePeerWorker is returned by AddPeer when peerID already
// has a worker.
type ErrDuplicatePeerWorker struct {
	PeerID string
}

func (e *ErrDuplicatePeerWorker) Error() string {
	return fmt.Sprintf("transport: peer already exists: %s", e.PeerID)
}

// ErrPayloadTooLarge is returned by Enqueue when the serialized
// payload exceeds the configured maximum frame size.
type ErrPayloadTooLarge struct {
	Size, Max int
}

func (e *ErrPayloadTooLarge) Error() string {
	return fmt.Sprintf("transport: payload size %d exceeds maximum frame size %d", e.Size, e.Max)
}

// Framable is the "explicit bytes form" escape hatch: an object
// exposing ToBytes takes priority over generic JSON encoding when
// Client.Enqueue serializes it. protocol.Message implements this.
type Framable interface {
	ToBytes() ([]byte, error)
}

// Client owns one persistent outbound worker per peer.
type Client struct {
	cfg ClientConfig
	log logging.Logger

	mu      sync.Mutex
	workers map[string]*peerWorker

	metrics *metrics.Registry
}

// WithMetrics attaches a metrics registry whose
// outbound_frames_sent_total counter every peer worker increments from
// then on. Optional; nil leaves metrics untouched.
func (c *Client) WithMetrics(m *metrics.Registry) *Client {
	c.metrics = m
	return c
}

// NewClient builds an empty Client; workers are created lazily by
// AddPeer.
func NewClient(cfg ClientConfig, log logging.Logger) *Client {
	return &Client{
		cfg:     cfg,
		log:     log,
		workers: make(map[string]*peerWorker),
	}
}

// AddPeer starts a background worker maintaining a persistent
// outgoing connection to host:port under peerID. It fails with
// ErrDuplicatePeerWorker if peerID is already registered.
func (c *Client) AddPeer(peerID, host string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.workers[peerID]; exists {
		return &ErrDuplicatePeerWorker{PeerID: peerID}
	}

	w := newPeerWorker(peerID, host, port, c.cfg, c.log.With(map[string]interface{}{"peer": peerID}), c.metrics)
	c.workers[peerID] = w
	w.start()
	return nil
}

// HasPeer reports whether peerID already has a registered worker.
func (c *Client) HasPeer(peerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.workers[peerID]
	return ok
}

// RemovePeer stops and drops the worker for peerID along with any
// messages still queued for it.
func (c *Client) RemovePeer(peerID string) {
	c.mu.Lock()
	w, ok := c.workers[peerID]
	if ok {
		delete(c.workers, peerID)
	}
	c.mu.Unlock()

	if ok {
		w.stop()
	}
}

// Enqueue non-blockingly appends obj — a Framable or any
// JSON-encodable value — to peerID's FIFO send queue. Ordering is
// FIFO per peer; across reconnects, queued-but-unsent messages may be
// dropped, but messages that are sent are never reordered.
func (c *Client) Enqueue(peerID string, obj interface{}) error {
	c.mu.Lock()
	w, ok := c.workers[peerID]
	c.mu.Unlock()
	if !ok {
		return &ErrUnknownPeer{PeerID: peerID}
	}

	payload, err := serializeToBytes(obj)
	if err != nil {
		return err
	}
	if len(payload) > c.cfg.MaxFrameSize {
		return &ErrPayloadTooLarge{Size: len(payload), Max: c.cfg.MaxFrameSize}
	}

	w.enqueue(payload)
	return nil
}

// Stop stops every worker and discards all queued messages.
func (c *Client) Stop() {
	c.mu.Lock()
	workers := make([]*peerWorker, 0, len(c.workers))
	for _, w := range c.workers {
		workers = append(workers, w)
	}
	c.workers = make(map[string]*peerWorker)
	c.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
}

func serializeToBytes(obj interface{}) ([]byte, error) {
	if f, ok := obj.(Framable); ok {
		return f.ToBytes()
	}
	return json.Marshal(obj)
}

// peerWorkerState names the states of the per-peer connection state
// machine.
type peerWorkerState int

const (
	stateDisconnected peerWorkerState = iota
	stateConnected
	stateBackoff
	stateTerminated
)

// peerWorker is the background task owning exactly one outbound
// connection to a single peer, grounded on tcp_client.py's
// _PeerWorker (connect/backoff/drain-queue/idle-probe loop)
// translated into a goroutine driven by a plain state variable
// instead of Python threading primitives.
type peerWorker struct {
	peerID string
	host   string
	port   int
	cfg    ClientConfig
	log    logging.Logger

	queue *frameQueue
	stop_ chan struct{}
	done  chan struct{}

	connMu sync.Mutex
	conn   net.Conn

	metrics *metrics.Registry
}

func newPeerWorker(peerID, host string, port int, cfg ClientConfig, log logging.Logger, m *metrics.Registry) *peerWorker {
	return &peerWorker{
		peerID:  peerID,
		host:    host,
		port:    port,
		cfg:     cfg,
		log:     log,
		queue:   newFrameQueue(),
		stop_:   make(chan struct{}),
		done:    make(chan struct{}),
		metrics: m,
	}
}

func (w *peerWorker) start() {
	go w.run()
}

// enqueue never blocks the caller; the queue is bounded only by
// memory.
func (w *peerWorker) enqueue(payload []byte) {
	w.queue.push(payload)
}

func (w *peerWorker) stop() {
	select {
	case <-w.stop_:
	default:
		close(w.stop_)
	}
	w.closeConn()
	<-w.done
}

func (w *peerWorker) run() {
	defer close(w.done)
	defer w.closeConn()

	backoff := w.cfg.BackoffInitial
	state := stateDisconnected

	for {
		select {
		case <-w.stop_:
			return
		default:
		}

		switch state {
		case stateDisconnected:
			if w.connect() {
				state = stateConnected
				backoff = w.cfg.BackoffInitial
			} else {
				state = stateBackoff
			}
		case stateBackoff:
			if w.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff, w.cfg)
			state = stateDisconnected
		case stateConnected:
			if payload, ok := w.queue.pop(); ok {
				if w.sendFrame(payload) {
					continue
				}
				w.closeConn()
				state = stateDisconnected
			} else {
				if w.detectServerClosed() {
					w.closeConn()
					state = stateDisconnected
					continue
				}
				if w.sleep(w.cfg.IdleProbeInterval) {
					return
				}
			}
		}
	}
}

// sleep waits for d or the stop signal, whichever comes first,
// returning true if the worker should terminate.
func (w *peerWorker) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.stop_:
		return true
	case <-t.C:
		return false
	}
}

func nextBackoff(current time.Duration, cfg ClientConfig) time.Duration {
	var next time.Duration
	if cfg.BackoffMode == BackoffLinear {
		next = current + cfg.BackoffInitial
	} else {
		next = current * 2
	}
	if next > cfg.BackoffMax {
		next = cfg.BackoffMax
	}
	return next
}

func (w *peerWorker) connect() bool {
	select {
	case <-w.stop_:
		return false
	default:
	}

	dialer := net.Dialer{Timeout: w.cfg.ConnectTimeout}
	conn, err := dialer.Dial("tcp", net.JoinHostPort(w.host, portString(w.port)))
	if err != nil {
		w.log.Debugf("connect failed: %v", err)
		return false
	}

	if w.cfg.TCPKeepAlive {
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetKeepAlive(true)
		}
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
	return true
}

// sendFrame drains the current payload plus anything already queued,
// stopping at the first send failure.
func (w *peerWorker) sendFrame(first []byte) bool {
	payload := first
	for {
		if !w.writeOne(payload) {
			return false
		}
		next, ok := w.queue.pop()
		if !ok {
			return true
		}
		payload = next
	}
}

func (w *peerWorker) writeOne(payload []byte) bool {
	conn := w.getConn()
	if conn == nil {
		return false
	}

	conn.SetWriteDeadline(time.Now().Add(w.cfg.SendTimeout))
	frame := EncodeFrame(payload)
	if _, err := conn.Write(frame); err != nil {
		w.log.Warnf("send failed, dropping connection: %v", err)
		return false
	}
	if w.metrics != nil {
		w.metrics.OutboundFramesSent.Inc()
	}
	return true
}

// detectServerClosed performs an idle-closure probe: it reads at most
// one byte under a 10ms deadline. A deadline expiry means the
// connection is idle and still open; EOF or any other error means the
// remote has closed. The probe consumes what it reads rather than
// peeking, so a byte that does arrive is lost and is also treated as
// a closed connection.
func (w *peerWorker) detectServerClosed() bool {
	conn := w.getConn()
	if conn == nil {
		return true
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	var buf [1]byte
	n, err := conn.Read(buf[:])
	conn.SetReadDeadline(time.Time{})

	if n > 0 {
		// We consumed a byte we shouldn't have (no real peer of
		// this protocol sends unsolicited bytes to an idle outbound
		// connection); treat it the same as a closed connection so
		// the worker reconnects rather than silently desyncing.
		return true
	}
	if err == nil {
		return false
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return false
	}
	return true
}

func (w *peerWorker) getConn() net.Conn {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	return w.conn
}

func (w *peerWorker) closeConn() {
	w.connMu.Lock()
	conn := w.conn
	w.conn = nil
	w.connMu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func portString(port int) string {
	return fmt.Sprintf("%d", port)
}

// frameQueue is an unbounded, mutex-guarded FIFO of serialized frame
// payloads. push never blocks; pop is non-blocking and reports
// ok=false on an empty queue so the worker's state machine can fall
// through to the idle-probe branch.
type frameQueue struct {
	mu    sync.Mutex
	items [][]byte
}

func newFrameQueue() *frameQueue {
	return &frameQueue{}
}

func (q *frameQueue) push(payload []byte) {
	q.mu.Lock()
	q.items = append(q.items, payload)
	q.mu.Unlock()
}

func (q *frameQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}
