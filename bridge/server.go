package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopcua/opcua/ua"

	"tagsim/config"
	"tagsim/tag"
)

// remoteServer owns one OPC UA connection. The reconnect loop is the
// only goroutine that dials; writers just check the connected flag.
type remoteServer struct {
	cfg       config.OPCUAServer
	dial      DialFunc
	reconnect time.Duration
	logFn     LogFunc

	mu        sync.Mutex
	session   Session
	connected bool
	warned    map[string]bool // tags skipped for lack of a node id

	kick     chan struct{} // wakes the loop after a write failure
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newRemoteServer(cfg config.OPCUAServer, dial DialFunc, reconnect time.Duration, logFn LogFunc) *remoteServer {
	return &remoteServer{
		cfg:       cfg,
		dial:      dial,
		reconnect: reconnect,
		logFn:     logFn,
		warned:    make(map[string]bool),
		kick:      make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}
}

func (s *remoteServer) start() {
	s.wg.Add(1)
	go s.connectLoop()
}

func (s *remoteServer) stop() {
	close(s.stopChan)
	s.wg.Wait()

	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.connected = false
	s.mu.Unlock()
	if sess != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		sess.Close(ctx)
		cancel()
	}
}

// connectLoop dials until connected, then sleeps until the connection
// is reported dead or the bridge stops.
func (s *remoteServer) connectLoop() {
	defer s.wg.Done()
	for {
		if !s.isConnected() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			sess, err := s.dial(ctx, s.cfg)
			cancel()
			if err != nil {
				s.logFn("bridge: %s connect failed: %v (retry in %s)", s.cfg.Name, err, s.reconnect)
			} else {
				s.mu.Lock()
				s.session = sess
				s.connected = true
				s.mu.Unlock()
				s.logFn("bridge: %s connected to %s", s.cfg.Name, s.cfg.URL)
			}
		}
		select {
		case <-s.stopChan:
			return
		case <-s.kick:
		case <-time.After(s.reconnect):
		}
	}
}

func (s *remoteServer) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// write sends one value. Disconnected servers drop the update without
// error; the next connected write carries the current value anyway.
func (s *remoteServer) write(ctx context.Context, u tag.Update) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	sess := s.session
	s.mu.Unlock()

	nodeID, ok := s.resolveNode(u.Tag)
	if !ok {
		return nil
	}
	id, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return fmt.Errorf("bad node id %q: %w", nodeID, err)
	}
	v, err := ua.NewVariant(u.Value)
	if err != nil {
		return fmt.Errorf("variant for %s: %w", u.Tag, err)
	}
	req := &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{{
			NodeID:      id,
			AttributeID: ua.AttributeIDValue,
			Value: &ua.DataValue{
				EncodingMask: ua.DataValueValue,
				Value:        v,
			},
		}},
	}
	resp, err := sess.Write(ctx, req)
	if err != nil {
		s.markDisconnected(err)
		return err
	}
	for _, code := range resp.Results {
		if code != ua.StatusOK {
			return fmt.Errorf("write %s rejected: %s", u.Tag, code)
		}
	}
	return nil
}

// markDisconnected flags the connection dead and wakes the loop.
func (s *remoteServer) markDisconnected(err error) {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.connected = false
	s.mu.Unlock()
	s.logFn("bridge: %s write failed, reconnecting: %v", s.cfg.Name, err)
	if sess != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		sess.Close(ctx)
		cancel()
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// resolveNode maps a tag name to a node id. An explicit mapping always
// wins; otherwise a node id is synthesized under the base node when
// auto-create is on. Unmapped tags are skipped with a one-time warning.
func (s *remoteServer) resolveNode(tagName string) (string, bool) {
	if id, ok := s.cfg.NodeMapping[tagName]; ok {
		return id, true
	}
	if s.cfg.AutoCreateNodes {
		return fmt.Sprintf("ns=%d;s=%s%s", s.cfg.Namespace, s.cfg.BaseNode, tagName), true
	}
	s.mu.Lock()
	first := !s.warned[tagName]
	s.warned[tagName] = true
	s.mu.Unlock()
	if first {
		s.logFn("bridge: %s has no node mapping for tag %s, skipping", s.cfg.Name, tagName)
	}
	return "", false
}
