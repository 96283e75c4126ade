// Package lifecycle abstracts the host-environment signals a long-lived
// client reacts to.
//
// Two signals are modelled:
//   - visibility: the client moved to the foreground or background
//   - shutdown: the process is about to exit
//
// An Environment fans these out to registered Listeners. Manual is driven
// programmatically (tests, embedding UIs); OS maps process signals onto
// the same two notifications:
//
//	SIGUSR1          background
//	SIGUSR2          foreground
//	SIGINT, SIGTERM  shutdown
package lifecycle
