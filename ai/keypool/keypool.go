// Package keypool manages the rotating set of Gemini API keys: round-robin
// acquisition, quota accounting with cooldown-based reactivation, and
// permanent eviction of invalid credentials.
package keypool

import (
	"bufio"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultCooldown is how long an exhausted key rests before it is
	// rotated back in.
	DefaultCooldown = 18 * time.Hour

	// DefaultQuotaThreshold is how many quota errors exhaust a key.
	DefaultQuotaThreshold = 3
)

var (
	// ErrOutOfKeys means the general pool has no active keys.
	ErrOutOfKeys = errors.New("no active API keys available")

	// ErrOutOfBillingKeys means no active billing-enabled keys remain.
	ErrOutOfBillingKeys = errors.New("no active billing API keys available")
)

var keyLine = regexp.MustCompile(`^(AIzaSy[A-Za-z0-9_-]+)(?:\s+(.*))?$`)

// ErrorKind classifies a provider failure for key accounting.
type ErrorKind int

const (
	// ErrorQuota is a per-key quota exhaustion (RESOURCE_EXHAUSTED).
	ErrorQuota ErrorKind = iota

	// ErrorAuth is an invalid or revoked credential.
	ErrorAuth

	// ErrorTransient is a provider-side failure unrelated to the key.
	ErrorTransient
)

// entry tracks one key. General and billing rotation rest independently:
// grounding quota is billed separately, so a key exhausted for billing work
// may still serve general requests, and vice versa.
type entry struct {
	key     string
	billing bool

	quotaErrs        int
	billingQuotaErrs int
	otherErrs        int

	exhaustedAt        time.Time
	billingExhaustedAt time.Time

	removed bool
}

// Pool hands out API keys round-robin and retires the ones that misbehave.
// A single mutex guards all state; acquisition is sub-millisecond.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry

	active        []*entry
	activeBilling []*entry

	index        uint64
	billingIndex uint64

	cooldown       time.Duration
	quotaThreshold int
	notify         func(message string)
	now            func() time.Time
}

// Options configure a Pool. Zero values select the defaults.
type Options struct {
	Cooldown       time.Duration
	QuotaThreshold int

	// Notify is called with a short plain-text message when a key leaves
	// rotation. Wired to the admin channel by the caller.
	Notify func(message string)
}

// Load reads the key file and builds a pool. Lines matching
// `AIzaSy[A-Za-z0-9_-]+` yield keys; a trailing `b` or `| billing enabled`
// marks the key billing-enabled. Both sets are shuffled once.
func Load(path string, opts Options) (*Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open key file %s", path)
	}
	defer f.Close()

	p := newPool(opts)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		m := keyLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, marker := m[1], strings.ToLower(strings.TrimSpace(m[2]))
		billing := marker == "b" || marker == "| billing enabled"

		if _, ok := p.entries[key]; ok {
			slog.Warn("duplicate API key in key file, skipping", "key", Redact(key))
			continue
		}

		e := &entry{key: key, billing: billing}
		p.entries[key] = e
		p.active = append(p.active, e)
		if billing {
			p.activeBilling = append(p.activeBilling, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read key file %s", path)
	}

	if len(p.active) == 0 {
		return nil, errors.Errorf("no API keys found in %s", path)
	}

	rand.Shuffle(len(p.active), func(i, j int) {
		p.active[i], p.active[j] = p.active[j], p.active[i]
	})
	rand.Shuffle(len(p.activeBilling), func(i, j int) {
		p.activeBilling[i], p.activeBilling[j] = p.activeBilling[j], p.activeBilling[i]
	})

	slog.Info("loaded API keys",
		"total", len(p.active), "billing", len(p.activeBilling))

	return p, nil
}

func newPool(opts Options) *Pool {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.QuotaThreshold <= 0 {
		opts.QuotaThreshold = DefaultQuotaThreshold
	}
	return &Pool{
		entries:        make(map[string]*entry),
		cooldown:       opts.Cooldown,
		quotaThreshold: opts.QuotaThreshold,
		notify:         opts.Notify,
		now:            time.Now,
	}
}

// Acquire returns the next key in rotation. billing restricts the choice to
// billing-enabled keys. Exhausted keys past the cooldown rejoin first.
func (p *Pool) Acquire(billing bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reactivateLocked()

	if billing {
		if len(p.activeBilling) == 0 {
			return "", ErrOutOfBillingKeys
		}
		e := p.activeBilling[p.billingIndex%uint64(len(p.activeBilling))]
		p.billingIndex++
		return e.key, nil
	}

	if len(p.active) == 0 {
		return "", ErrOutOfKeys
	}
	e := p.active[p.index%uint64(len(p.active))]
	p.index++
	return e.key, nil
}

// reactivateLocked returns rested keys to rotation with fresh counters.
func (p *Pool) reactivateLocked() {
	now := p.now()
	for _, e := range p.entries {
		if e.removed {
			continue
		}
		if !e.exhaustedAt.IsZero() && now.Sub(e.exhaustedAt) >= p.cooldown {
			e.exhaustedAt = time.Time{}
			e.quotaErrs = 0
			p.active = append(p.active, e)
			slog.Info("reactivating API key after cooldown", "key", Redact(e.key))
		}
		if e.billing && !e.billingExhaustedAt.IsZero() && now.Sub(e.billingExhaustedAt) >= p.cooldown {
			e.billingExhaustedAt = time.Time{}
			e.billingQuotaErrs = 0
			p.activeBilling = append(p.activeBilling, e)
			slog.Info("reactivating billing API key after cooldown", "key", Redact(e.key))
		}
	}
}

// HandleError records a provider failure against a key and reports whether
// the caller should rotate to another key and retry.
func (p *Pool) HandleError(key string, kind ErrorKind, billing bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		return false
	}

	switch kind {
	case ErrorQuota:
		p.handleQuotaLocked(e, billing)
		return true

	case ErrorAuth:
		if !e.removed {
			e.removed = true
			p.active = removeEntry(p.active, e)
			p.activeBilling = removeEntry(p.activeBilling, e)
			slog.Error("API key rejected as invalid, removing permanently", "key", Redact(key))
			p.notifyLocked(fmt.Sprintf("key %s permanently removed: credential rejected", Redact(key)))
		}
		return true

	default:
		e.otherErrs++
		return false
	}
}

func (p *Pool) handleQuotaLocked(e *entry, billing bool) {
	if billing {
		e.billingQuotaErrs++
		if e.billingQuotaErrs >= p.quotaThreshold && e.billingExhaustedAt.IsZero() {
			e.billingExhaustedAt = p.now()
			p.activeBilling = removeEntry(p.activeBilling, e)
			slog.Warn("API key reached billing quota threshold, resting",
				"key", Redact(e.key), "errors", e.billingQuotaErrs, "cooldown", p.cooldown)
			p.notifyLocked(fmt.Sprintf("key %s removed from billing rotation after %d quota errors",
				Redact(e.key), e.billingQuotaErrs))
		}
		return
	}

	e.quotaErrs++
	if e.quotaErrs >= p.quotaThreshold && e.exhaustedAt.IsZero() {
		e.exhaustedAt = p.now()
		p.active = removeEntry(p.active, e)
		slog.Warn("API key reached quota error threshold, resting",
			"key", Redact(e.key), "errors", e.quotaErrs, "cooldown", p.cooldown)
		p.notifyLocked(fmt.Sprintf("key %s removed from rotation after %d quota errors",
			Redact(e.key), e.quotaErrs))
	}
}

func (p *Pool) notifyLocked(message string) {
	if p.notify == nil {
		return
	}
	// Fired on a fresh goroutine: the notifier sends over the network and
	// must not hold the pool lock.
	go p.notify(message)
}

func removeEntry(list []*entry, target *entry) []*entry {
	for i, e := range list {
		if e == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Snapshot is a point-in-time view of pool health for the status surface.
type Snapshot struct {
	Total         int
	Billing       int
	Active        int
	ActiveBilling int
	Exhausted     int
	Removed       int
}

// Snapshot reports the pool state.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		Active:        len(p.active),
		ActiveBilling: len(p.activeBilling),
	}
	for _, e := range p.entries {
		s.Total++
		if e.billing {
			s.Billing++
		}
		switch {
		case e.removed:
			s.Removed++
		case !e.exhaustedAt.IsZero():
			s.Exhausted++
		}
	}
	return s
}

// Redact keeps only the tail of a key for logs and notifications.
func Redact(key string) string {
	if len(key) <= 6 {
		return key
	}
	return "…" + key[len(key)-6:]
}
