// Package forwarder implements the forwarding pipeline (spec §4.6): the
// state machine that classifies every inbound message and drives it
// through hop-limit enforcement, content-store lookup, PIT aggregation,
// FIB lookup, reverse-path delivery, and InterestReturn/Control ACK
// generation. It is the engine thread spec §5 describes — the single
// mutator of the FIB, PIT, and Content Store, suspending only at
// adapter.Receive.
//
// The dispatch shape (a Run loop reading one source until shutdown,
// handleX methods per message kind) generalizes internal/agent.Agent's
// now-deleted Run/processMessages/handleMessage structure from "one
// signaling connection, five peer-lifecycle message types" to "the
// adapter's fan-in channel, four CCN message kinds".
package forwarder

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/kuuji/athena/internal/adapter"
	"github.com/kuuji/athena/internal/contentstore"
	"github.com/kuuji/athena/internal/fib"
	"github.com/kuuji/athena/internal/linkset"
	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/pit"
	"github.com/kuuji/athena/internal/stats"
	"github.com/kuuji/athena/internal/wirename"
)

// pollTimeout bounds how long a single adapter.Receive call blocks, so
// the engine loop notices a shutdown request promptly (spec §5
// "the engine exits after its next receive returns (or its timeout)").
const pollTimeout = 500 * time.Millisecond

// Control operation names recognized by handleControl (spec §4.6,
// §6). Unknown operations are logged and ignored.
const (
	OpAddRoute = "add-route"
	OpQuit     = "quit"
)

// Engine is the forwarding core: the only mutator of the FIB, PIT, and
// Content Store (spec §5). Construct with New and drive it with Run.
type Engine struct {
	adapter           *adapter.Adapter
	fib               *fib.FIB
	pit               *pit.PIT
	store             *contentstore.Store
	managementPrefix     wirename.Name
	quitName             wirename.Name
	pitDefaultLifetime   time.Duration
	retryAlternateEgress bool
	log                  *slog.Logger

	running atomic.Bool
}

// Config names the fixed parameters Engine needs beyond its table
// collaborators.
type Config struct {
	// ManagementPrefix is the forwarder's reserved name prefix; any
	// Interest whose name starts with it is diverted to the control
	// handler instead of a FIB lookup (spec §6).
	ManagementPrefix wirename.Name

	// QuitName is the reserved management name that signals process
	// exit when addressed by a Control Interest (spec §6).
	QuitName wirename.Name

	// PITDefaultLifetime is passed to pit.AddInterest when the interest
	// carries no lifetime of its own. Zero means pit.DefaultLifetime.
	PITDefaultLifetime time.Duration

	// RetryAlternateEgress controls whether a received InterestReturn
	// triggers a retry over a different FIB egress link rather than
	// being dropped outright. Spec §9 leaves this open but insists it
	// be a configuration choice rather than a guess; this forwarder
	// defaults to false (drop, let the PIT entry expire).
	RetryAlternateEgress bool
}

// New builds an Engine over the given tables and adapter. It does not
// register itself with the adapter: the caller passes a closure that
// calls RemoveLink to adapter.New, so a link going away synchronously
// purges FIB routes and PIT expectations that referenced it.
func New(a *adapter.Adapter, f *fib.FIB, p *pit.PIT, s *contentstore.Store, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		adapter:              a,
		fib:                  f,
		pit:                  p,
		store:                s,
		managementPrefix:     cfg.ManagementPrefix,
		quitName:             cfg.QuitName,
		pitDefaultLifetime:   cfg.PITDefaultLifetime,
		retryAlternateEgress: cfg.RetryAlternateEgress,
		log:                  logger.With("component", "forwarder"),
	}
	return e
}

// Adapter returns the engine's adapter, for status reporting
// (internal/control) and daemon wiring.
func (e *Engine) Adapter() *adapter.Adapter { return e.adapter }

// FIB returns the engine's Forwarding Information Base, for status
// reporting and route-management CLI commands.
func (e *Engine) FIB() *fib.FIB { return e.fib }

// PIT returns the engine's Pending Interest Table, for status
// reporting.
func (e *Engine) PIT() *pit.PIT { return e.pit }

// Store returns the engine's Content Store, for status reporting.
func (e *Engine) Store() *contentstore.Store { return e.store }

// RemoveLink is the adapter's remove_link callback: it purges every FIB
// route and PIT expectation that referenced the removed links (spec
// §4.2). Pass it to adapter.New when wiring the daemon together.
func (e *Engine) RemoveLink(links linkset.LinkSet) {
	e.fib.RemoveLink(links)
	e.pit.RemoveLink(links)
}

// Run drives the engine loop until Stop is called: repeatedly calls
// adapter.Receive and dispatches by message kind (spec §5's single
// engine thread, suspending only at receive).
func (e *Engine) Run() {
	e.running.Store(true)
	e.log.Info("forwarding engine started")

	for e.running.Load() {
		m, ingress, ok := e.adapter.Receive(pollTimeout)
		if !ok {
			continue
		}
		e.dispatch(m, ingress)
	}

	e.log.Info("forwarding engine stopped")
}

// Stop requests shutdown; Run exits after its current or next receive
// returns (spec §5's cancellation rule).
func (e *Engine) Stop() {
	e.running.Store(false)
}

func (e *Engine) dispatch(m *message.Message, ingress linkset.LinkSet) {
	switch m.Kind() {
	case message.KindInterest:
		stats.ProcessedTotal.WithLabelValues("interest").Inc()
		e.handleInterest(m, ingress)
	case message.KindContentObject:
		stats.ProcessedTotal.WithLabelValues("content_object").Inc()
		e.handleContentObject(m, ingress)
	case message.KindInterestReturn:
		stats.ProcessedTotal.WithLabelValues("interest_return").Inc()
		e.handleInterestReturn(m, ingress)
	case message.KindControl:
		stats.ProcessedTotal.WithLabelValues("control").Inc()
		e.handleControl(m, ingress)
	default:
		e.fatal(fmt.Errorf("forwarder: unknown message kind %v", m.Kind()))
	}
}

// handleInterest implements spec §4.6's Interest steps 1-8.
func (e *Engine) handleInterest(m *message.Message, ingress linkset.LinkSet) {
	i := m.Interest()

	// Step 1: hop-limit enforcement on a non-local ingress link.
	if !e.ingressIsLocal(ingress) {
		if i.HopLimit == 0 {
			stats.DroppedTotal.WithLabelValues("hop_limit").Inc()
			e.log.Debug("dropping interest: hop limit exceeded", "name", i.Name.String())
			return
		}
		i.HopLimit--
	}

	// Step 2: content-store hit short-circuits the rest of the pipeline.
	if co := e.store.GetMatch(i); co != nil {
		reply := message.NewContentObject(nil, co)
		e.adapter.Send(reply, ingress) // per-link failures ignored (spec §4.6 step 2)
		return
	}

	// Step 3: PIT aggregation.
	outcome, entry := e.pit.AddInterest(i, ingress, e.pitDefaultLifetime)
	switch outcome {
	case pit.Aggregated:
		return
	case pit.Error:
		stats.DroppedTotal.WithLabelValues("resource").Inc()
		e.log.Warn("dropping interest: PIT rejected it", "name", i.Name.String())
		return
	}

	// Step 4: management-prefix diversion.
	if e.managementPrefix.Len() > 0 && e.managementPrefix.IsPrefixOf(i.Name) {
		e.handleManagementInterest(m, ingress, entry)
		return
	}

	// Step 5: FIB lookup; no route at all.
	egressAll, ok := e.fib.Lookup(i.Name, ingress)
	if !ok {
		e.emitNoRoute(i, ingress)
		e.pit.RemoveInterest(i, ingress)
		return
	}

	// Step 6: never send back out the link the interest arrived on.
	egress := egressAll
	egress.SubtractInPlace(ingress)
	if egress.IsEmpty() {
		e.emitNoRoute(i, ingress)
		// Leave the PIT entry to expire; it still records the ingress
		// (spec §4.6 step 6).
		return
	}

	// Step 7: record the chosen egress as the entry's expected return.
	entry.SetExpectedReturn(egress)

	// Step 8: forward, reconciling send failures against the PIT entry.
	failed := e.adapter.Send(m, egress)
	if !failed.IsEmpty() {
		entry.SubtractFailedLinks(failed)
	}
}

// handleManagementInterest routes an Interest under the management
// prefix to the control handler (spec §4.6 step 4, §6). The original
// spec models Control as its own message kind; an Interest that merely
// names the management prefix is how a caller addresses the control
// plane over the same Interest/ContentObject wire format, so it is
// decoded into a Control request here for handleControl to act on.
func (e *Engine) handleManagementInterest(m *message.Message, ingress linkset.LinkSet, entry *pit.Entry) {
	i := m.Interest()

	if e.quitName.Len() > 0 && e.quitName.Equal(i.Name) {
		e.log.Info("received quit interest, stopping engine")
		e.pit.RemoveInterest(i, ingress)
		e.Stop()
		return
	}

	ctl := &message.Control{
		Name:          i.Name,
		CorrelationID: message.NewCorrelationID(),
	}
	e.handleControl(message.NewControl(nil, ctl), ingress)
	e.pit.RemoveInterest(i, ingress)
	_ = entry
}

func (e *Engine) emitNoRoute(i *message.Interest, ingress linkset.LinkSet) {
	ret := message.NewInterestReturn(nil, &message.InterestReturn{
		Original: i,
		Reason:   message.ReasonNoRoute,
	})
	stats.InterestReturnsTotal.WithLabelValues(message.ReasonNoRoute.String()).Inc()
	e.adapter.Send(ret, ingress)
}

// handleContentObject implements spec §4.6's ContentObject steps.
func (e *Engine) handleContentObject(m *message.Message, ingress linkset.LinkSet) {
	co := m.ContentObject()

	egress := e.pit.Match(co, ingress)
	if egress.IsEmpty() {
		stats.DroppedTotal.WithLabelValues("unsolicited").Inc()
		return
	}

	e.store.Put(co)
	e.adapter.Send(m, egress) // per-link failures ignored (spec §4.6 ContentObject step 3)
}

// handleInterestReturn implements spec §4.6's InterestReturn handling.
// The default (and spec §9's documented conforming baseline) is to drop
// it and let the PIT entry expire naturally. When RetryAlternateEgress
// is enabled, it instead looks for a FIB egress link distinct from both
// the original ingress and the link the return came back on, and
// resends the original interest there — the configurable alternative
// spec §9 calls for rather than guessing at one.
func (e *Engine) handleInterestReturn(m *message.Message, ingress linkset.LinkSet) {
	r := m.InterestReturn()
	stats.DroppedTotal.WithLabelValues("interest_return").Inc()
	e.log.Debug("received interest return", "reason", r.Reason.String())

	if !e.retryAlternateEgress {
		return
	}

	entry, ok := e.pit.Lookup(r.Original)
	if !ok {
		return
	}

	egressAll, ok := e.fib.Lookup(r.Original.Name, ingress)
	if !ok {
		return
	}
	alt := egressAll.Difference(entry.Ingress).Difference(ingress)
	if alt.IsEmpty() {
		return
	}

	entry.SetExpectedReturn(alt)
	retry := message.NewInterest(nil, r.Original)
	failed := e.adapter.Send(retry, alt)
	if !failed.IsEmpty() {
		entry.SubtractFailedLinks(failed)
	}
}

// handleControl implements spec §4.6's Control handling: a route-
// registration request translates into fib.AddRoute plus an ACK;
// unknown operations are logged and ignored (spec §4.6, §6).
func (e *Engine) handleControl(m *message.Message, ingress linkset.LinkSet) {
	c := m.Control()

	switch c.Operation {
	case OpAddRoute, "":
		// An Interest diverted purely by management prefix carries no
		// decoded Operation/Payload of its own (see
		// handleManagementInterest) — the wire codec that would parse a
		// real add-route payload out of c.Payload is an external
		// collaborator (spec §1); here we register the prefix itself as
		// the route, binding it to the ingress link, which is enough to
		// exercise the FIB path end to end against a real control Interest.
		route := c.Name
		if route.IsEmpty() {
			route = e.managementPrefix
		}
		e.fib.AddRoute(route, ingress)
		e.ackControl(c, ingress)
	case OpQuit:
		e.log.Info("received quit control message, stopping engine")
		e.Stop()
	default:
		e.log.Warn("ignoring unknown control operation", "operation", c.Operation)
	}
}

func (e *Engine) ackControl(req *message.Control, ingress linkset.LinkSet) {
	ack := message.NewControl(nil, &message.Control{
		Name:          req.Name,
		Operation:     req.Operation,
		CorrelationID: req.CorrelationID,
	})
	e.adapter.Send(ack, ingress)
}

// ingressIsLocal reports whether the single link in ingress is local
// (spec §4.1's locality policy governs HopLimit enforcement). An
// ingress set that does not resolve to a known link (already removed)
// is treated as non-local, the conservative choice.
func (e *Engine) ingressIsLocal(ingress linkset.LinkSet) bool {
	local := true
	found := false
	ingress.ForEach(func(id linkset.LinkId) {
		found = true
		l, ok := e.adapter.Link(id)
		if !ok || !l.IsLocal() {
			local = false
		}
	})
	return found && local
}

// fatal logs and aborts the process for spec §7's "Invariant violation"
// row: corrupted reference count, unknown message variant, or anything
// else indicating programmer error rather than a recoverable fault.
func (e *Engine) fatal(err error) {
	e.log.Error("invariant violation, aborting", "error", err)
	os.Exit(1)
}
