package aiquery

import (
	"errors"
	mathrand "math/rand"
	"sync"
	"time"
)

// ErrPoolEmpty indicates no API keys were configured. Fatal at startup.
var ErrPoolEmpty = errors.New("aiquery: credential pool is empty")

// Credential is one interchangeable API key for the AI provider.
type Credential struct {
	APIKey string
}

// CredentialPool hands out one credential per attempt. Picks are
// pseudo-random rather than round-robin so repeated failures don't
// deterministically retry the same dead key first. The key set is fixed
// at construction; the pool is safe for concurrent use.
type CredentialPool struct {
	creds []Credential

	mu  sync.Mutex
	rnd *mathrand.Rand
}

// NewCredentialPool builds a pool from the configured key list.
func NewCredentialPool(keys []string) (*CredentialPool, error) {
	creds := make([]Credential, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		creds = append(creds, Credential{APIKey: k})
	}
	if len(creds) == 0 {
		return nil, ErrPoolEmpty
	}
	return &CredentialPool{
		creds: creds,
		rnd:   mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Acquire returns a random credential from the pool.
func (p *CredentialPool) Acquire() Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creds[p.rnd.Intn(len(p.creds))]
}

// Shuffled returns the credentials in a fresh random order. A retry loop
// walking the slice consults every key exactly once before giving up.
func (p *CredentialPool) Shuffled() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Credential, len(p.creds))
	copy(out, p.creds)
	p.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Size reports the number of configured credentials; callers use it to
// bound retry loops.
func (p *CredentialPool) Size() int {
	return len(p.creds)
}
