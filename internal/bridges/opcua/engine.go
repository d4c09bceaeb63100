package opcua

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/plcwire/uabridge/internal/infrastructure/logging"
	"github.com/plcwire/uabridge/internal/infrastructure/mqtt"
	"github.com/plcwire/uabridge/internal/tags"
)

// engineQueueSize bounds the engine's event queue. Everything the engine
// reacts to flows through this one queue so that tag state is only ever
// touched by the consumer goroutine.
const engineQueueSize = 512

// drainGrace bounds the consumer's best-effort queue drain at shutdown.
const drainGrace = time.Second

// stopGrace is how long Stop waits for the goroutines to exit.
// Must exceed drainGrace so a full drain is never cut short.
const stopGrace = 2 * time.Second

// SessionSource is the slice of Session the engine depends on.
// Narrowed to an interface so tests can drive the engine directly.
type SessionSource interface {
	Events() <-chan Event
	Write(ctx context.Context, def tags.Definition, value any) error
	IsConnected() bool
}

// MQTTClient is the slice of the MQTT client the engine depends on.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte, retained bool) error) error
	IsConnected() bool
}

// Recorder receives bridge events for durable journaling. Optional.
type Recorder interface {
	Record(kind, tag, detail string)
}

// ValueSink receives published tag values for historical storage. Optional.
type ValueSink interface {
	RecordValue(path string, value any, ts time.Time)
}

// EngineConfig carries the engine's runtime settings.
type EngineConfig struct {
	TopicPrefix   string
	QoSState      byte
	QoSCommand    byte
	RetainStates  bool
	WriteTimeout  time.Duration
	SweepInterval time.Duration
}

// engineEventKind discriminates internal queue entries.
type engineEventKind int

const (
	evData engineEventKind = iota
	evCommand
	evSweep
	evSessionState
	evMQTTState
	evFault
	evWarning
)

// engineEvent is one entry in the engine queue.
type engineEvent struct {
	kind engineEventKind

	data    DataChange // evData
	topic   string     // evCommand
	payload []byte     // evCommand
	state   ConnState  // evSessionState
	mqttUp  bool       // evMQTTState
	err     error      // evFault, evWarning
	nodeID  string     // evWarning
}

// Counters exposes the engine's monotonic counters.
type Counters struct {
	Published        uint64 `json:"published"`
	CommandsAccepted uint64 `json:"commands_accepted"`
	CommandsRejected uint64 `json:"commands_rejected"`
	WriteTimeouts    uint64 `json:"write_timeouts"`
	SessionFaults    uint64 `json:"session_faults"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// Engine is the synchronization core between the OPC UA session and MQTT.
//
// All tag state lives in a map owned by a single consumer goroutine;
// notifications, commands, sweeps and connection events are funneled
// through one bounded queue, which makes per-tag processing strictly
// ordered without any per-tag locking.
type Engine struct {
	cfg      EngineConfig
	registry *tags.Registry
	session  SessionSource
	mqttc    MQTTClient
	topics   mqtt.Topics
	log      *logging.Logger

	recorder Recorder

	// sinkMu guards sink, which may be attached after Start once the
	// history backend comes up.
	sinkMu sync.RWMutex
	sink   ValueSink

	queue  chan engineEvent
	states map[string]*TagState

	// stateMu guards states for Snapshot readers. The consumer is the
	// only writer.
	stateMu sync.RWMutex

	// connMu guards the connectivity latch below.
	connMu       sync.Mutex
	opcState     ConnState
	mqttUp       bool
	availability string

	published        atomic.Uint64
	commandsAccepted atomic.Uint64
	commandsRejected atomic.Uint64
	writeTimeouts    atomic.Uint64
	sessionFaults    atomic.Uint64
	droppedEvents    atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewEngine wires an engine. Recorder and sink may be nil.
func NewEngine(cfg EngineConfig, registry *tags.Registry, session SessionSource, mqttc MQTTClient, log *logging.Logger) *Engine {
	states := make(map[string]*TagState, registry.Len())
	for _, def := range registry.All() {
		states[def.Path] = &TagState{Def: def, Phase: PhaseUnknown}
	}

	return &Engine{
		cfg:      cfg,
		registry: registry,
		session:  session,
		mqttc:    mqttc,
		topics:   mqtt.Topics{Prefix: cfg.TopicPrefix},
		log:      log.With("component", "engine"),
		queue:    make(chan engineEvent, engineQueueSize),
		states:   states,
		done:     make(chan struct{}),
	}
}

// SetRecorder attaches an event journal. Must be called before Start.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// SetValueSink attaches a value history sink. Safe to call at any
// time; values published before the sink is attached are not recorded.
func (e *Engine) SetValueSink(s ValueSink) {
	e.sinkMu.Lock()
	e.sink = s
	e.sinkMu.Unlock()
}

// Start subscribes to command topics and launches the pump, sweeper and
// consumer goroutines.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	err := e.mqttc.Subscribe(e.topics.CommandFilter(), e.cfg.QoSCommand, func(topic string, payload []byte, retained bool) error {
		// A retained command is a broker redelivery, not fresh operator
		// intent: the broker replays it on every subscribe, and this
		// client re-subscribes on every reconnect. Writing it to the PLC
		// would replay a stale setpoint, so it is dropped here.
		if retained {
			e.log.Debug("ignoring retained command", "topic", topic)
			return nil
		}
		e.enqueue(engineEvent{kind: evCommand, topic: topic, payload: payload})
		return nil
	})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribing to commands: %w", err)
	}

	// Seed connectivity with what we can see right now. Session state
	// arrives via events; MQTT must be connected already for Subscribe
	// to have succeeded.
	e.connMu.Lock()
	e.mqttUp = e.mqttc.IsConnected()
	e.connMu.Unlock()

	e.wg.Add(3)
	go e.pump(runCtx)
	go e.sweeper(runCtx)
	go e.consume(runCtx)

	return nil
}

// NotifyMQTTState feeds broker connectivity changes into the queue.
// Wire it to the MQTT client's connect/disconnect callbacks.
func (e *Engine) NotifyMQTTState(connected bool) {
	e.enqueue(engineEvent{kind: evMQTTState, mqttUp: connected})
}

// Stop shuts the engine down: goroutines are cancelled, the consumer is
// given a short grace period to drain, and the availability topic is
// flipped to offline while the broker connection still exists.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}

	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(stopGrace):
		e.log.Warn("engine stop timed out waiting for drain")
	}

	if e.mqttc.IsConnected() {
		if err := e.mqttc.Publish(e.topics.Availability(), []byte(mqtt.PayloadOffline), 1, true); err != nil {
			e.log.Warn("failed to publish offline availability", "error", err)
		}
	}
	close(e.done)
}

// enqueue adds an event to the queue, dropping (and counting) when full.
// Producers must never block: the paho and session goroutines cannot be
// held hostage to a slow consumer.
func (e *Engine) enqueue(ev engineEvent) {
	select {
	case e.queue <- ev:
	default:
		e.droppedEvents.Add(1)
		e.log.Warn("engine queue full, dropping event", "kind", ev.kind)
	}
}

// pump forwards session events into the engine queue.
func (e *Engine) pump(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.session.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case EventDataChange:
				e.enqueue(engineEvent{kind: evData, data: ev.Data})
			case EventStateChange:
				e.enqueue(engineEvent{kind: evSessionState, state: ev.State})
			case EventSessionFault:
				e.enqueue(engineEvent{kind: evFault, err: ev.Err})
			case EventSubscriptionWarning:
				e.enqueue(engineEvent{kind: evWarning, nodeID: ev.NodeID, err: ev.Err})
			}
		}
	}
}

// sweeper enqueues periodic deadline checks.
func (e *Engine) sweeper(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.enqueue(engineEvent{kind: evSweep})
		}
	}
}

// consume is the single goroutine that owns tag state.
func (e *Engine) consume(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			e.drainQueue()
			return
		case ev := <-e.queue:
			e.dispatch(ctx, ev)
		}
	}
}

// drainQueue processes whatever is already queued when shutdown is
// requested, bounded by drainGrace. Events still queued when the grace
// deadline passes are discarded.
func (e *Engine) drainQueue() {
	drainCtx, cancel := context.WithTimeout(context.Background(), drainGrace)
	defer cancel()

	deadline := time.Now().Add(drainGrace)
	for time.Now().Before(deadline) {
		select {
		case ev := <-e.queue:
			e.dispatch(drainCtx, ev)
		default:
			return
		}
	}
}

// dispatch routes one queue entry to its handler.
func (e *Engine) dispatch(ctx context.Context, ev engineEvent) {
	switch ev.kind {
	case evData:
		e.handleDataChange(ev.data)
	case evCommand:
		e.handleCommand(ctx, ev.topic, ev.payload)
	case evSweep:
		e.handleSweep(time.Now())
	case evSessionState:
		e.handleSessionState(ev.state)
	case evMQTTState:
		e.handleMQTTState(ev.mqttUp)
	case evFault:
		e.sessionFaults.Add(1)
		e.record("session_fault", "", ev.err.Error())
	case evWarning:
		e.log.Warn("subscription warning", "node", ev.nodeID, "error", ev.err)
		e.record("subscription_warning", ev.nodeID, ev.err.Error())
	}
}

// handleDataChange processes one monitored item notification.
//
// Ordering of concerns:
//  1. bad quality is reported and dropped
//  2. a pending write is always resolved (publish forced, pending cleared)
//  3. otherwise exact-equality change detection decides whether to publish
//
// Any good notification returns the tag to Synced, including the first
// one after a write timeout.
func (e *Engine) handleDataChange(d DataChange) {
	def, ok := e.registry.ByNode(d.NodeID)
	if !ok {
		// Only registry nodes are subscribed; anything else is a server quirk.
		e.log.Debug("notification for unregistered node", "node", d.NodeID)
		return
	}

	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	st := e.states[def.Path]

	if d.Status != ua.StatusOK {
		// Report once per bad streak, not per notification.
		if !st.BadQuality {
			st.BadQuality = true
			e.log.Warn("bad quality for tag", "tag", def.Path, "status", d.Status)
			e.record("bad_quality", def.Path, d.Status.Error())
		}
		return
	}
	st.BadQuality = false

	value, err := CoerceValue(def.Type, d.Value)
	if err != nil {
		e.log.Warn("dropping unconvertible value", "tag", def.Path, "error", err)
		e.record("type_mismatch", def.Path, err.Error())
		return
	}

	if st.Pending != nil {
		// Whatever the PLC reports while a write is outstanding settles
		// the write: equal confirms it, different overrides it. Either
		// way the value must go out even if it equals the last publish.
		confirmed := valuesEqual(st.Pending.Value, value)
		st.Pending = nil
		if !confirmed {
			e.log.Warn("write overridden by PLC", "tag", def.Path, "reported", FormatValue(value))
			e.record("write_overridden", def.Path, FormatValue(value))
		}
		st.Phase = PhaseSynced
		e.publishState(st, value, d.SourceTime)
		return
	}

	changed := !st.HasValue || !valuesEqual(st.LastValue, value)
	st.Phase = PhaseSynced
	if !changed {
		return
	}
	e.publishState(st, value, d.SourceTime)
}

// publishState pushes a canonical value to the tag's state topic.
//
// On publish failure the cached value is left untouched so the next
// identical notification retries instead of being swallowed as a
// duplicate.
func (e *Engine) publishState(st *TagState, value any, sourceTime time.Time) {
	payload := FormatValue(value)
	topic := e.topics.State(st.Def.Path)

	if err := e.mqttc.Publish(topic, []byte(payload), e.cfg.QoSState, e.cfg.RetainStates); err != nil {
		e.log.Warn("state publish failed", "tag", st.Def.Path, "error", err)
		e.record("publish_failed", st.Def.Path, err.Error())
		return
	}

	st.LastValue = value
	st.HasValue = true
	st.LastChange = time.Now()
	e.published.Add(1)

	e.sinkMu.RLock()
	sink := e.sink
	e.sinkMu.RUnlock()
	if sink != nil {
		ts := sourceTime
		if ts.IsZero() {
			ts = st.LastChange
		}
		sink.RecordValue(st.Def.Path, value, ts)
	}
}

// handleCommand processes one inbound MQTT command message.
func (e *Engine) handleCommand(ctx context.Context, topic string, payload []byte) {
	path, ok := e.topics.CommandPath(topic)
	if !ok {
		e.reject("", fmt.Sprintf("unparseable command topic %q", topic))
		return
	}

	def, ok := e.registry.ByPath(path)
	if !ok {
		e.reject(path, ErrUnknownTag.Error())
		return
	}

	if def.Mode != tags.ModeRW {
		e.reject(path, ErrReadOnlyTag.Error())
		return
	}

	value, err := ParsePayload(def.Type, string(payload))
	if err != nil {
		e.reject(path, err.Error())
		return
	}

	if err := e.session.Write(ctx, def, value); err != nil {
		e.log.Warn("write failed", "tag", path, "error", err)
		e.reject(path, err.Error())
		return
	}

	now := time.Now()
	e.stateMu.Lock()
	st := e.states[path]
	// A newer accepted command replaces any older pending write.
	st.Pending = &PendingWrite{
		Value:    value,
		Deadline: now.Add(e.cfg.WriteTimeout),
		IssuedAt: now,
	}
	st.Phase = PhaseWritePending
	e.stateMu.Unlock()

	e.commandsAccepted.Add(1)
	e.log.Info("write issued", "tag", path, "value", FormatValue(value))
}

// reject counts and journals a refused command.
func (e *Engine) reject(path, reason string) {
	e.commandsRejected.Add(1)
	e.log.Warn("command rejected", "tag", path, "reason", reason)
	e.record("command_rejected", path, reason)
}

// handleSweep expires pending writes whose deadline has passed.
// A timeout is reported exactly once; there is no retry. The tag keeps
// whatever value it last observed, returns to Synced and accepts
// further commands.
func (e *Engine) handleSweep(now time.Time) {
	e.stateMu.Lock()
	for _, st := range e.states {
		if st.Pending == nil || now.Before(st.Pending.Deadline) {
			continue
		}
		e.writeTimeouts.Add(1)
		e.log.Warn("write confirmation timed out",
			"tag", st.Def.Path,
			"value", FormatValue(st.Pending.Value),
			"issued_at", st.Pending.IssuedAt,
		)
		e.record("write_timeout", st.Def.Path, FormatValue(st.Pending.Value))
		st.Pending = nil
		st.Phase = PhaseSynced
	}
	e.stateMu.Unlock()

	// Availability retries piggyback on the sweep so a failed publish
	// heals without waiting for the next connectivity transition.
	e.evaluateAvailability()
}

// handleSessionState records OPC UA connectivity and re-evaluates
// availability.
func (e *Engine) handleSessionState(state ConnState) {
	e.connMu.Lock()
	prev := e.opcState
	e.opcState = state
	e.connMu.Unlock()

	if prev != state {
		e.log.Info("session state", "from", prev.String(), "to", state.String())
	}
	e.evaluateAvailability()
}

// handleMQTTState records broker connectivity and re-evaluates
// availability.
func (e *Engine) handleMQTTState(up bool) {
	e.connMu.Lock()
	e.mqttUp = up
	if !up {
		// The latch is broker-side state; when the connection drops we
		// no longer know what subscribers will see (the LWT may fire).
		e.availability = ""
	}
	e.connMu.Unlock()
	e.evaluateAvailability()
}

// evaluateAvailability publishes the retained availability payload when
// the computed value differs from the last successfully published one.
//
// "online" means both legs are up; anything else is "offline". Publishes
// only happen on transitions, so a healthy steady state is silent.
func (e *Engine) evaluateAvailability() {
	e.connMu.Lock()
	desired := mqtt.PayloadOffline
	if e.opcState == StateConnected && e.mqttUp {
		desired = mqtt.PayloadOnline
	}
	current := e.availability
	mqttUp := e.mqttUp
	e.connMu.Unlock()

	if desired == current || !mqttUp {
		return
	}

	err := e.mqttc.Publish(e.topics.Availability(), []byte(desired), 1, true)

	e.connMu.Lock()
	if err != nil {
		e.availability = ""
	} else {
		e.availability = desired
	}
	e.connMu.Unlock()

	if err != nil {
		e.log.Warn("availability publish failed", "desired", desired, "error", err)
		return
	}
	e.log.Info("availability", "state", desired)
	e.record("availability", "", desired)
}

// record forwards to the journal when one is attached.
func (e *Engine) record(kind, tag, detail string) {
	if e.recorder != nil {
		e.recorder.Record(kind, tag, detail)
	}
}
