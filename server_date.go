package tinyhttp

import (
	"sync"
	"sync/atomic"
	"time"
)

// serverDateUpdater refreshes the Date header value once a second while at
// least one server is serving.
type serverDateUpdater struct {
	mtx        sync.Mutex
	useCounter int32
	date       atomic.Value
	stopCh     chan struct{}

	slowPathBuffer   []byte
	slowPathLastTime time.Time
}

var serverDateUpdaterData = serverDateUpdater{
	slowPathLastTime: time.Now().AddDate(0, 0, -1),
}

// startServerDateUpdater must be paired with stopServerDateUpdater.
func startServerDateUpdater() {
	d := &serverDateUpdaterData
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.useCounter++
	if d.useCounter == 1 {
		d.stopCh = make(chan struct{})
		refreshServerDate()
		go updateServerDate(d.stopCh)
	}
}

func stopServerDateUpdater() {
	d := &serverDateUpdaterData
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.useCounter--
	if d.useCounter == 0 {
		close(d.stopCh)
		d.date.Store([]byte{})
	}
}

func updateServerDate(stopCh chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			refreshServerDate()
		}
	}
}

func refreshServerDate() {
	b := AppendHTTPDate(nil, time.Now())
	serverDateUpdaterData.date.Store(b)
}

func getServerDate() []byte {
	b, ok := serverDateUpdaterData.date.Load().([]byte)
	if ok && len(b) > 0 {
		return b
	}

	// Slow path, used when requests are served by ServeConn without Serve.
	d := &serverDateUpdaterData
	d.mtx.Lock()
	defer d.mtx.Unlock()

	now := time.Now()
	if now.After(d.slowPathLastTime) {
		d.slowPathLastTime = now.Add(time.Second)
		d.slowPathBuffer = AppendHTTPDate(nil, now)
	}
	return d.slowPathBuffer
}
