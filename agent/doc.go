// Package agent provides the per-agent façade over the communication
// protocol. An Agent is bound to one ID and one Protocol instance; it sends
// messages on the agent's behalf, dispatches deliveries to handlers keyed by
// message type, and buffers unhandled messages for later retrieval.
package agent
