package keypool

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyFile(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys.txt")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeKeyFile(t, `AIzaSyAAA111
AIzaSyBBB222 b
AIzaSyCCC333 | billing enabled
AIzaSyAAA111
not a key line

# comment-ish garbage
`)

	p, err := Load(path, Options{})
	require.NoError(t, err)

	s := p.Snapshot()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Billing)
	assert.Equal(t, 3, s.Active)
	assert.Equal(t, 2, s.ActiveBilling)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.txt"), Options{})
	require.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeKeyFile(t, "nothing to see\n")
	_, err := Load(path, Options{})
	require.Error(t, err)
}

func TestAcquireBillingSubset(t *testing.T) {
	path := writeKeyFile(t, "AIzaSyAAA111\nAIzaSyBBB222 b\n")
	p, err := Load(path, Options{})
	require.NoError(t, err)

	// Two general acquires hand out both keys, each exactly once.
	first, err := p.Acquire(false)
	require.NoError(t, err)
	second, err := p.Acquire(false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AIzaSyAAA111", "AIzaSyBBB222"}, []string{first, second})

	// The billing pool only contains the marked key.
	key, err := p.Acquire(true)
	require.NoError(t, err)
	assert.Equal(t, "AIzaSyBBB222", key)
}

func TestRoundRobinFairness(t *testing.T) {
	path := writeKeyFile(t, "AIzaSyAAA111\nAIzaSyBBB222\nAIzaSyCCC333\n")
	p, err := Load(path, Options{})
	require.NoError(t, err)

	const rounds = 7
	counts := map[string]int{}
	for i := 0; i < rounds*3; i++ {
		key, err := p.Acquire(false)
		require.NoError(t, err)
		counts[key]++
	}

	require.Len(t, counts, 3)
	for key, n := range counts {
		assert.Equal(t, rounds, n, "key %s", key)
	}
}

func TestQuotaEvictionAndCooldown(t *testing.T) {
	path := writeKeyFile(t, "AIzaSyAAA111\n")
	notices := make(chan string, 8)
	p, err := Load(path, Options{Notify: func(m string) { notices <- m }})
	require.NoError(t, err)

	now := time.Now()
	p.now = func() time.Time { return now }

	for i := 0; i < DefaultQuotaThreshold; i++ {
		retry := p.HandleError("AIzaSyAAA111", ErrorQuota, false)
		assert.True(t, retry)
	}

	_, err = p.Acquire(false)
	assert.ErrorIs(t, err, ErrOutOfKeys)
	assert.Equal(t, 1, p.Snapshot().Exhausted)

	// Not yet rested long enough.
	now = now.Add(DefaultCooldown - time.Minute)
	_, err = p.Acquire(false)
	assert.ErrorIs(t, err, ErrOutOfKeys)

	// After the cooldown the key returns with a fresh counter.
	now = now.Add(2 * time.Minute)
	key, err := p.Acquire(false)
	require.NoError(t, err)
	assert.Equal(t, "AIzaSyAAA111", key)
	assert.Equal(t, 0, p.entries[key].quotaErrs)

	// Eviction fired exactly one notification.
	select {
	case notice := <-notices:
		assert.Contains(t, notice, "removed from rotation")
	case <-time.After(time.Second):
		t.Fatal("expected an eviction notification")
	}
	assert.Empty(t, notices)
}

func TestAuthErrorRemovesPermanently(t *testing.T) {
	path := writeKeyFile(t, "AIzaSyAAA111 b\nAIzaSyBBB222\n")
	p, err := Load(path, Options{})
	require.NoError(t, err)

	now := time.Now()
	p.now = func() time.Time { return now }

	retry := p.HandleError("AIzaSyAAA111", ErrorAuth, false)
	assert.True(t, retry)

	s := p.Snapshot()
	assert.Equal(t, 1, s.Removed)
	assert.Equal(t, 1, s.Active)
	assert.Equal(t, 0, s.ActiveBilling)

	// Removal outlives any cooldown.
	now = now.Add(10 * DefaultCooldown)
	for i := 0; i < 4; i++ {
		key, err := p.Acquire(false)
		require.NoError(t, err)
		assert.Equal(t, "AIzaSyBBB222", key)
	}
	_, err = p.Acquire(true)
	assert.ErrorIs(t, err, ErrOutOfBillingKeys)
}

func TestBillingExhaustionIsIndependent(t *testing.T) {
	path := writeKeyFile(t, "AIzaSyAAA111 b\n")
	p, err := Load(path, Options{})
	require.NoError(t, err)

	for i := 0; i < DefaultQuotaThreshold; i++ {
		p.HandleError("AIzaSyAAA111", ErrorQuota, true)
	}

	// Billing rotation is exhausted, general rotation still serves.
	_, err = p.Acquire(true)
	assert.ErrorIs(t, err, ErrOutOfBillingKeys)

	key, err := p.Acquire(false)
	require.NoError(t, err)
	assert.Equal(t, "AIzaSyAAA111", key)
}

func TestTransientErrorsDoNotEvict(t *testing.T) {
	path := writeKeyFile(t, "AIzaSyAAA111\n")
	p, err := Load(path, Options{})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		retry := p.HandleError("AIzaSyAAA111", ErrorTransient, false)
		assert.False(t, retry)
	}

	key, err := p.Acquire(false)
	require.NoError(t, err)
	assert.Equal(t, "AIzaSyAAA111", key)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "…ABC123", Redact("AIzaSyXYZABC123"))
	assert.Equal(t, "short", Redact("short"))
}
