package opcua

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gopcua "github.com/gopcua/opcua"
	"github.com/gopcua/opcua/monitor"
	"github.com/gopcua/opcua/ua"

	"github.com/plcwire/uabridge/internal/infrastructure/config"
	"github.com/plcwire/uabridge/internal/infrastructure/logging"
	"github.com/plcwire/uabridge/internal/tags"
)

// Session timing constants.
const (
	// dialTimeout bounds a single connection attempt.
	dialTimeout = 30 * time.Second

	// writeCallTimeout bounds a single attribute write.
	writeCallTimeout = 10 * time.Second

	// watchdogInterval is how often the secure channel state is polled.
	// The monitor channel alone cannot detect a dead link on a quiet
	// server, so the session checks the client state as well.
	watchdogInterval = 5 * time.Second

	// eventBuffer sizes the session's outbound event channel.
	eventBuffer = 512
)

// Session owns the OPC UA client connection lifecycle: dial, subscribe,
// deliver notifications, detect failure, reconnect with backoff.
//
// Every registry node is monitored in one subscription. On reconnect the
// subscription is rebuilt from scratch from the registry, so the server's
// initial-value notifications re-seed downstream state; nothing is resumed.
//
// Thread Safety:
//   - Events() is consumed by one reader (the engine).
//   - Write() may be called from any goroutine.
type Session struct {
	cfg      config.OPCUAConfig
	registry *tags.Registry
	log      *logging.Logger

	events chan Event

	client   *gopcua.Client
	clientMu sync.RWMutex

	connected atomic.Bool

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession creates a session for the given endpoint and tag registry.
// No connection is attempted until Start.
func NewSession(cfg config.OPCUAConfig, registry *tags.Registry, log *logging.Logger) *Session {
	return &Session{
		cfg:      cfg,
		registry: registry,
		log:      log.With("component", "opcua"),
		events:   make(chan Event, eventBuffer),
		closed:   make(chan struct{}),
	}
}

// Start launches the connection supervisor goroutine.
func (s *Session) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Events returns the channel of session events. Closed after Close
// once the supervisor has exited.
func (s *Session) Events() <-chan Event {
	return s.events
}

// IsConnected reports whether a live session exists.
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

// Close shuts the session down. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	s.wg.Wait()
	close(s.events)
	return nil
}

// run is the connection supervisor: connect, serve until failure,
// back off, repeat. Backoff doubles from the configured initial delay
// up to the maximum and resets after any successful connection.
func (s *Session) run(ctx context.Context) {
	initial, maxDelay := s.cfg.Reconnect.Backoff()
	delay := initial

	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return
		case <-s.closed:
			s.teardown()
			return
		default:
		}

		s.emitState(StateConnecting)

		err := s.connectAndServe(ctx)
		wasConnected := s.connected.Load()
		s.teardown()

		if err == nil {
			// Clean shutdown requested.
			s.emitState(StateDisconnected)
			return
		}

		// A session that actually established resets the backoff; only
		// consecutive failed attempts escalate the delay.
		if wasConnected {
			delay = initial
		}

		s.emit(Event{Kind: EventSessionFault, Err: err})
		s.emitState(StateDisconnected)
		s.log.Warn("session lost, reconnecting", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// connectAndServe dials, subscribes to all registry nodes and pumps
// notifications until the session fails or shutdown is requested.
// A nil return means shutdown; any error triggers a reconnect.
func (s *Session) connectAndServe(ctx context.Context) error {
	opts, err := buildClientOptions(ctx, s.cfg)
	if err != nil {
		return err
	}

	client, err := gopcua.NewClient(s.cfg.Endpoint, opts...)
	if err != nil {
		return fmt.Errorf("%w: creating client: %w", ErrConnectFailed, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	err = client.Connect(dialCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	s.clientMu.Lock()
	s.client = client
	s.clientMu.Unlock()
	s.connected.Store(true)
	s.emitState(StateConnected)
	s.log.Info("connected", "endpoint", s.cfg.Endpoint, "tags", s.registry.Len())

	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()

	nm, err := monitor.NewNodeMonitor(client)
	if err != nil {
		return fmt.Errorf("%w: creating node monitor: %w", ErrConnectFailed, err)
	}

	nodeIDs := s.registry.NodeIDs()
	ch := make(chan *monitor.DataChangeMessage, len(nodeIDs)+16)

	sub, err := nm.ChanSubscribe(
		subCtx,
		&gopcua.SubscriptionParameters{
			Interval: s.cfg.GetPublishingInterval(),
		},
		ch,
		nodeIDs...,
	)
	if err != nil {
		return fmt.Errorf("%w: creating subscription: %w", ErrConnectFailed, err)
	}
	defer func() {
		_ = sub.Unsubscribe(context.Background())
	}()

	// Resubscription from scratch means item-level warnings repeat on
	// every reconnect; dedupe within one session only.
	warned := make(map[string]struct{})

	watchdog := time.NewTicker(watchdogInterval)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closed:
			return nil

		case <-watchdog.C:
			if client.State() != gopcua.Connected {
				s.emitState(StateDegraded)
				return fmt.Errorf("%w: secure channel state %v", ErrConnectFailed, client.State())
			}

		case dcm, ok := <-ch:
			if !ok {
				s.emitState(StateDegraded)
				return fmt.Errorf("%w: notification channel closed", ErrConnectFailed)
			}
			s.handleNotification(dcm, warned)
		}
	}
}

// handleNotification converts one monitor message into an Event.
func (s *Session) handleNotification(dcm *monitor.DataChangeMessage, warned map[string]struct{}) {
	if dcm.Error != nil {
		nodeID := ""
		if dcm.NodeID != nil {
			nodeID = dcm.NodeID.String()
		}
		if _, seen := warned[nodeID]; seen {
			return
		}
		warned[nodeID] = struct{}{}
		s.emit(Event{Kind: EventSubscriptionWarning, NodeID: nodeID, Err: dcm.Error})
		return
	}

	if dcm.NodeID == nil || dcm.Value == nil {
		return
	}

	s.emit(Event{
		Kind: EventDataChange,
		Data: DataChange{
			NodeID:     dcm.NodeID.String(),
			Value:      dcm.Value.Value(),
			SourceTime: dcm.SourceTimestamp,
			Status:     dcm.Status,
		},
	})
}

// Write sets the Value attribute of the tag's node.
//
// The variant is typed from the tag's declared type using the widths
// PLC servers conventionally expose: Boolean, Int16, Float, String.
// The canonical value must already be parsed (see ParsePayload).
func (s *Session) Write(ctx context.Context, def tags.Definition, value any) error {
	s.clientMu.RLock()
	client := s.client
	s.clientMu.RUnlock()

	if client == nil || !s.connected.Load() {
		return ErrNotConnected
	}

	wireValue, err := wireValue(def.Type, value)
	if err != nil {
		return err
	}

	variant, err := ua.NewVariant(wireValue)
	if err != nil {
		return fmt.Errorf("%w: building variant: %w", ErrWriteRejected, err)
	}

	nodeID, err := ua.ParseNodeID(def.NodeID)
	if err != nil {
		// Registry validation makes this unreachable in practice.
		return fmt.Errorf("%w: node id %q: %w", ErrWriteRejected, def.NodeID, err)
	}

	req := &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{
			{
				NodeID:      nodeID,
				AttributeID: ua.AttributeIDValue,
				Value: &ua.DataValue{
					EncodingMask: ua.DataValueValue,
					Value:        variant,
				},
			},
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, writeCallTimeout)
	defer cancel()

	resp, err := client.Write(callCtx, req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteRejected, err)
	}
	if len(resp.Results) > 0 && resp.Results[0] != ua.StatusOK {
		return fmt.Errorf("%w: status %v", ErrWriteRejected, resp.Results[0])
	}

	return nil
}

// wireValue narrows a canonical value to the wire type for the tag.
func wireValue(t tags.DataType, value any) (any, error) {
	switch t {
	case tags.TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: expected bool, got %T", ErrTypeMismatch, value)
		}
		return b, nil
	case tags.TypeInt:
		n, ok := value.(int64)
		if !ok {
			return nil, fmt.Errorf("%w: expected int64, got %T", ErrTypeMismatch, value)
		}
		return int16(n), nil
	case tags.TypeFloat:
		f, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: expected float64, got %T", ErrTypeMismatch, value)
		}
		return float32(f), nil
	case tags.TypeString:
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected string, got %T", ErrTypeMismatch, value)
		}
		return str, nil
	}
	return nil, fmt.Errorf("%w: unsupported data type %v", ErrTypeMismatch, t)
}

// teardown closes the current client, if any.
func (s *Session) teardown() {
	s.connected.Store(false)

	s.clientMu.Lock()
	client := s.client
	s.client = nil
	s.clientMu.Unlock()

	if client != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = client.Close(closeCtx)
		cancel()
	}
}

// emitState sends a state change event.
func (s *Session) emitState(state ConnState) {
	s.emit(Event{Kind: EventStateChange, State: state})
}

// emit delivers an event without ever blocking the session goroutine.
// If the engine has fallen this far behind, dropping is the lesser evil;
// the retained state topics resynchronize consumers anyway.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("event channel full, dropping event", "kind", ev.Kind)
	}
}
