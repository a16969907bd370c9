// Package tcplisten provides TCP net.Listener with the options a tinyhttp
// server benefits from:
//
//   - SO_REUSEPORT lets several servers accept on the same address, so
//     accept load spreads over CPUs.
//   - TCP_DEFER_ACCEPT wakes Accept only when the request bytes arrive.
//   - TCP_FASTOPEN lets clients send the request in the SYN packet.
//
// Options unsupported by the platform are ignored.
package tcplisten

// Config provides options to enable on the returned listener.
type Config struct {
	// ReusePort enables SO_REUSEPORT.
	ReusePort bool

	// DeferAccept enables TCP_DEFER_ACCEPT.
	DeferAccept bool

	// FastOpen enables TCP_FASTOPEN.
	FastOpen bool

	// Backlog is the maximum number of pending TCP connections the listener
	// may queue before passing them to Accept.
	// See man 2 listen for details.
	//
	// By default system-level backlog value is used.
	Backlog int
}
