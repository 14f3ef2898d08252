package spin

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLock_MutualExclusion(t *testing.T) {
	var lock Lock
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				lock.Lock()
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8000, counter)
	assert.False(t, lock.Held())
}

func TestLock_TryLock(t *testing.T) {
	var lock Lock
	assert.True(t, lock.TryLock())
	assert.False(t, lock.TryLock())
	lock.Unlock()
	assert.True(t, lock.TryLock())
	lock.Unlock()
}

func TestLock_UnlockUnlocked(t *testing.T) {
	var lock Lock
	assert.Panics(t, func() { lock.Unlock() })
}
