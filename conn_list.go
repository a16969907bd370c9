package tinyhttp

import (
	"net"
	"sync"
	"time"
)

// connList tracks the connections being served, so Shutdown can close the
// idle ones.
type connList struct {
	mtx       sync.Mutex
	firstItem *connListItem
	lastItem  *connListItem
}

type connListItem struct {
	nextItem *connListItem
	prevItem *connListItem
	c        net.Conn

	mtx  sync.Mutex
	idle bool
}

func (item *connListItem) setIdle(idle bool) {
	item.mtx.Lock()
	item.idle = idle
	item.mtx.Unlock()
}

func (l *connList) insert(c net.Conn) *connListItem {
	item := &connListItem{c: c}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.lastItem == nil {
		l.firstItem = item
		l.lastItem = item
	} else {
		l.lastItem.nextItem = item
		item.prevItem = l.lastItem
		l.lastItem = item
	}
	return item
}

func (l *connList) remove(item *connListItem) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if item.prevItem != nil {
		item.prevItem.nextItem = item.nextItem
	} else {
		l.firstItem = item.nextItem
	}
	if item.nextItem != nil {
		item.nextItem.prevItem = item.prevItem
	} else {
		l.lastItem = item.prevItem
	}
	item.prevItem = nil
	item.nextItem = nil
}

func (l *connList) forEach(f func(item *connListItem)) {
	var nextItem *connListItem

	l.mtx.Lock()
	defer l.mtx.Unlock()

	for item := l.firstItem; item != nil; item = nextItem {
		nextItem = item.nextItem
		f(item)
	}
}

// closeIdle wakes up connections waiting for the next request, so their
// keep-alive loop ends.
func (l *connList) closeIdle() {
	now := time.Now()
	l.forEach(func(item *connListItem) {
		item.mtx.Lock()
		if item.idle {
			_ = item.c.SetReadDeadline(now)
		}
		item.mtx.Unlock()
	})
}

// len returns the number of tracked connections.
func (l *connList) len() int {
	n := 0
	l.forEach(func(*connListItem) { n++ })
	return n
}
