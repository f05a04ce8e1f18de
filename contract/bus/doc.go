/*
Package bus holds the transport-agnostic contracts of the placeholder protocol:
the host event bus, its events and filters, the one-shot scheduler and the
outcome observer. Adapters implement EventBus; the placeholder package consumes it.
*/
package bus
