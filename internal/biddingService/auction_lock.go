package bidding

import (
	"context"
	"sync"
)

// auctionLocks hands out one serialization point per auction. Entries are
// reference counted and removed once nobody holds or waits on them, so idle
// auctions cost nothing.
type auctionLocks struct {
	mu    sync.Mutex
	locks map[string]*auctionLock
}

type auctionLock struct {
	token chan struct{}
	refs  int
}

func newAuctionLocks() *auctionLocks {
	return &auctionLocks{locks: make(map[string]*auctionLock)}
}

// acquire blocks until the caller owns auctionID or ctx is done
func (l *auctionLocks) acquire(ctx context.Context, auctionID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	lk, ok := l.locks[auctionID]
	if !ok {
		lk = &auctionLock{token: make(chan struct{}, 1)}
		l.locks[auctionID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.token <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.token
				l.release(auctionID, lk)
			})
		}, nil
	case <-ctx.Done():
		l.release(auctionID, lk)
		return nil, ctx.Err()
	}
}

func (l *auctionLocks) release(auctionID string, lk *auctionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, auctionID)
	}
}

// size reports how many auctions currently have a holder or waiter
func (l *auctionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
