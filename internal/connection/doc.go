// Package connection keeps one logical WebSocket channel to a server alive.
//
// The Manager:
//   - Holds at most one live channel at a time
//   - Reconnects after drops with exponential backoff (300ms doubling to ~19s)
//   - Gives up after MaxAttempts consecutive failures and waits for Start or Reconnect
//   - Sends a liveness probe every HeartbeatInterval while open
//   - Suspends while the environment is in the background and resumes in the foreground
//   - Tears down channel, timers and listeners on Stop, shutdown and Close
//
// # States
//
//	Idle ──Start──▶ Connecting ──dial ok──▶ Open
//	                  │   ▲                   │
//	       dial error │   │ retry timer       │ probe failure / channel lost
//	                  ▼   │                   ▼
//	              WaitingToRetry ◀────────────┘
//
// Stop moves any state to Idle, passing through Closing while the channel
// close is acknowledged.
//
// # Concurrency
//
// Every command and channel event is applied by a single goroutine in
// arrival order. Subscription callbacks run on a second goroutine, in the
// order the events were produced, and may call Stop or Reconnect. A slow
// callback delays later callbacks but not connection handling.
package connection
