package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTableLocks_SerializesSameTable(t *testing.T) {
	locks := newTableLocks()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "Widgets"
			if i%2 == 0 {
				name = "WIDGETS"
			}
			unlock := locks.Lock(ownerID, name)
			counter++
			unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, locks.locks, "released entries are removed")
}

func TestTableLocks_IndependentKeys(t *testing.T) {
	locks := newTableLocks()
	unlock := locks.Lock(ownerID, "Widgets")
	defer unlock()

	done := make(chan struct{})
	go func() {
		release := locks.Lock("owner-2", "Widgets")
		release()
		release = locks.Lock(ownerID, "Gadgets")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("locks on other scopes or tables should not block")
	}
}

func TestTableLocks_RenameHoldsBothNames(t *testing.T) {
	locks := newTableLocks()
	unlock := locks.Lock(ownerID, "Widgets", "Gadgets", "", "widgets")
	assert.Len(t, locks.locks, 2)

	acquired := make(chan struct{})
	go func() {
		release := locks.Lock(ownerID, "gadgets")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("the rename target should stay locked until release")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released")
	}
}
