// Package agentcomm provides a high-level façade over the communication
// protocol, registry, queue and conversation index enabling rapid wiring of
// in-process multi-agent systems. Most applications interact with this
// package by:
//  1. Creating an AgentComm via New() (optionally from a config.Config)
//  2. Spawning one or more agents and registering their message handlers
//  3. Driving delivery with Process from a coordinating goroutine
//
// The façade delegates routing to protocol.Protocol while keeping setup
// concise. All defaults are safe for local development and testing.
package agentcomm

import (
	"context"

	"github.com/adgentic/agentcomm/agent"
	"github.com/adgentic/agentcomm/config"
	"github.com/adgentic/agentcomm/core"
	"github.com/adgentic/agentcomm/logging"
	"github.com/adgentic/agentcomm/protocol"
)

// Options configures the AgentComm instance.
type Options struct {
	// ProtocolConfig tunes the underlying protocol (queue capacity).
	ProtocolConfig protocol.Config

	// AgentBufferSize bounds each spawned agent's unhandled buffer.
	// Zero selects the agent package default.
	AgentBufferSize int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// AgentComm aggregates the protocol instance and per-instance defaults.
type AgentComm struct {
	opts     Options
	protocol *protocol.Protocol
}

// New creates an AgentComm with optional overrides.
func New(optFns ...func(o *Options)) *AgentComm {
	opts := Options{
		ProtocolConfig: protocol.DefaultConfig,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	p := protocol.New(func(o *protocol.Options) {
		o.Config = opts.ProtocolConfig
		o.Logger = opts.Logger
	})

	return &AgentComm{opts: opts, protocol: p}
}

// FromConfig wires an AgentComm from a loaded configuration, constructing a
// structured logger per its logging section.
func FromConfig(cfg *config.Config) *AgentComm {
	return New(func(o *Options) {
		o.ProtocolConfig.QueueCapacity = cfg.Protocol.QueueCapacity
		o.AgentBufferSize = cfg.Agent.ReceiveBufferSize
		o.Logger = logging.NewLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, nil)
	})
}

// Protocol exposes the underlying protocol for advanced use (subscriptions,
// metrics, direct registration of custom Receiver implementations).
func (c *AgentComm) Protocol() *protocol.Protocol { return c.protocol }

// Spawn creates and registers a communicating agent bound to this instance.
func (c *AgentComm) Spawn(agentID string) (*agent.Agent, error) {
	return agent.New(agentID, c.protocol, func(o *agent.Options) {
		o.BufferSize = c.opts.AgentBufferSize
		o.Logger = c.opts.Logger
	})
}

// Process drains up to max pending messages (all when max <= 0); see
// protocol.Protocol.Process.
func (c *AgentComm) Process(ctx context.Context, max int) (int, []*core.DeliveryError) {
	return c.protocol.Process(ctx, max)
}

// History returns the ordered messages of a conversation.
func (c *AgentComm) History(conversationID string) []*core.Message {
	return c.protocol.History(conversationID)
}

// Metrics returns a snapshot of the protocol counters.
func (c *AgentComm) Metrics() protocol.MetricsSnapshot {
	return c.protocol.Metrics()
}
