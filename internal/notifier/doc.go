// Package notifier delivers short operator alerts through a transport sender.
//
// Notify never blocks the caller: messages are queued and a single worker
// sends them in order, rate limited and retried with exponential backoff.
// A bounded history of delivered messages is kept for /status.
package notifier
