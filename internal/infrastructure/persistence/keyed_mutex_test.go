package persistence

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	t.Run("serializes the same key", func(t *testing.T) {
		km := newKeyedMutex()
		key := uuid.New()

		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := km.Lock(key)
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				atomic.AddInt32(&inside, -1)
				unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxInside)
		assert.Equal(t, 0, km.size())
	})

	t.Run("different keys do not block", func(t *testing.T) {
		km := newKeyedMutex()
		unlockA := km.Lock(uuid.New())
		unlockB := km.Lock(uuid.New())

		assert.Equal(t, 2, km.size())
		unlockA()
		unlockB()
		assert.Equal(t, 0, km.size())
	})
}
