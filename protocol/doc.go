// Package protocol implements the in-process communication core that lets
// independent agents exchange typed messages. A Protocol instance owns three
// pieces of state:
//
//   - an agent registry mapping IDs to Receiver handles
//   - a priority queue of pending messages (four FIFO bands, URGENT first)
//   - a conversation index retaining ordered per-conversation history
//
// Send is the single commit point by which a message enters the system; an
// explicit Process call drains the queue and delivers each message to its
// recipient with per-message failure isolation (at-most-once delivery, no
// automatic retries). Protocol instances are explicitly constructed and
// passed — there is no ambient global instance — so isolated instances can
// coexist, e.g. in tests.
package protocol
