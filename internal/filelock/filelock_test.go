package filelock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockUnlock(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), "test.lock"))
	require.NoError(t, lock.Lock())
	require.NoError(t, lock.Unlock())
}

func TestTryLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")
	lock1 := NewFileLock(lockPath)
	lock2 := NewFileLock(lockPath)

	acquired, err := lock1.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = lock2.TryLock()
	require.NoError(t, err)
	assert.False(t, acquired, "second TryLock should fail while lock is held")

	require.NoError(t, lock1.Unlock())

	acquired, err = lock2.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired, "TryLock should succeed after unlock")
	lock2.Unlock()
}

func TestConcurrentLocking(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "test.lock")
	counterPath := filepath.Join(tmpDir, "counter.txt")
	require.NoError(t, os.WriteFile(counterPath, []byte("0"), 0644))

	const goroutines = 5
	const iterations = 10

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				lock := NewFileLock(lockPath)
				if err := lock.Lock(); err != nil {
					t.Errorf("failed to acquire lock: %v", err)
					return
				}

				data, err := os.ReadFile(counterPath)
				if err != nil {
					t.Errorf("failed to read counter: %v", err)
					lock.Unlock()
					return
				}
				var counter int
				fmt.Sscanf(string(data), "%d", &counter)
				time.Sleep(time.Millisecond)
				counter++
				if err := os.WriteFile(counterPath, []byte(fmt.Sprintf("%d", counter)), 0644); err != nil {
					t.Errorf("failed to write counter: %v", err)
				}

				if err := lock.Unlock(); err != nil {
					t.Errorf("failed to release lock: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(counterPath)
	require.NoError(t, err)
	var finalCounter int
	fmt.Sscanf(string(data), "%d", &finalCounter)
	assert.Equal(t, goroutines*iterations, finalCounter, "lost update detected")
}

func TestAtomicWrite(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "state.json")

	require.NoError(t, AtomicWrite(targetPath, []byte("first")))
	require.NoError(t, AtomicWrite(targetPath, []byte("second")))

	content, err := os.ReadFile(targetPath)
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))

	info, err := os.Stat(targetPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestAtomicWriteCreatesDirectories(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "nested", "deeper", "state.json")
	require.NoError(t, AtomicWrite(targetPath, []byte("data")))

	content, err := os.ReadFile(targetPath)
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AtomicWrite(filepath.Join(dir, "state.json"), []byte("data")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestConcurrentAtomicWritesNeverTear(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "state.json")

	const goroutines = 10
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			if err := AtomicWrite(targetPath, []byte{byte('A' + id)}); err != nil {
				t.Errorf("AtomicWrite failed for goroutine %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	content, err := os.ReadFile(targetPath)
	require.NoError(t, err)
	assert.Len(t, content, 1, "file must hold exactly one complete write")
}

func TestLockAndWrite(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, LockAndWrite(targetPath, []byte("locked content")))

	content, err := os.ReadFile(targetPath)
	require.NoError(t, err)
	assert.Equal(t, "locked content", string(content))
}
