package multipart

import (
	"time"

	"github.com/moby/locker"

	"github.com/hafiz-io/hafiz/cmn"
)

// keyLocker serializes mutations on a single upload_id, implementing
// cmn.NLP over github.com/moby/locker's named-lock map so concurrent
// UploadPart/Complete/Abort calls against the same upload never race.
type keyLocker struct {
	l    *locker.Locker
	name string
}

var _ cmn.NLP = (*keyLocker)(nil)

func newNLP(l *locker.Locker, name string) cmn.NLP {
	return &keyLocker{l: l, name: name}
}

func (k *keyLocker) Lock() { k.l.Lock(k.name) }

func (k *keyLocker) Unlock() { k.l.Unlock(k.name) }

// TryLock polls moby/locker's non-blocking TryLock until it succeeds or
// timeout elapses; moby/locker has no native timed variant.
func (k *keyLocker) TryLock(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if err := k.l.TryLock(k.name); err == nil {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
