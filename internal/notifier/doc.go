// Package notifier fans a rendered message out to subscribers.
//
// Every recipient gets its own supervised delivery goroutine. Deliveries share
// one token bucket so a large audience cannot exceed the transport's send
// rate. Dispatch returns as soon as the deliveries are scheduled.
//
// # Dead recipients
//
// A delivery whose error wraps transport.ErrRecipientUnreachable removes the
// recipient from every category. Any other error is logged and dropped; there
// is no retry.
//
// # Status
//
// The dispatcher keeps a bounded in-memory summary of recent dispatches for
// operator views.
package notifier
