// Package tinyhttputil provides in-memory connections for serving and
// testing tinyhttp without sockets.
package tinyhttputil
