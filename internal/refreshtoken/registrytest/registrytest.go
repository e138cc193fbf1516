// Package registrytest holds the behavioural suite every refresh token
// Registry backend must pass.
package registrytest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/predio-auth/internal/refreshtoken"
)

// TTL is the token lifetime factories must configure.
const TTL = time.Hour

// Clock is a manually advanced time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts at the current wall time so backends with native expiry
// keep the records alive.
func NewClock() *Clock { return &Clock{t: time.Now().UTC().Truncate(time.Millisecond)} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Factory returns an empty registry with TTL lifetime reading time from now.
type Factory func(t *testing.T, now func() time.Time) refreshtoken.Registry

// Run exercises reg through every Registry operation.
func Run(t *testing.T, newRegistry Factory) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		reg := newRegistry(t, NewClock().Now)
		tok, err := reg.Create(ctx, "alice")
		require.NoError(t, err)
		require.NotEmpty(t, tok)

		ok, err := reg.Validate(ctx, tok)
		require.NoError(t, err)
		require.True(t, ok)

		user, err := reg.UsernameFor(ctx, tok)
		require.NoError(t, err)
		require.Equal(t, "alice", user)

		require.NoError(t, reg.Revoke(ctx, tok))
		ok, err = reg.Validate(ctx, tok)
		require.NoError(t, err)
		require.False(t, ok)

		_, err = reg.UsernameFor(ctx, tok)
		require.ErrorIs(t, err, refreshtoken.ErrRefreshTokenInvalid)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		reg := newRegistry(t, NewClock().Now)
		tok, err := reg.Create(ctx, "bob")
		require.NoError(t, err)
		require.NoError(t, reg.Revoke(ctx, tok))
		require.NoError(t, reg.Revoke(ctx, tok))
		require.NoError(t, reg.Revoke(ctx, "never-issued"))
	})

	t.Run("multiple tokens per user", func(t *testing.T) {
		reg := newRegistry(t, NewClock().Now)
		t1, err := reg.Create(ctx, "carol")
		require.NoError(t, err)
		t2, err := reg.Create(ctx, "carol")
		require.NoError(t, err)
		require.NotEqual(t, t1, t2)

		n, err := reg.CountActive(ctx, "carol")
		require.NoError(t, err)
		require.Equal(t, 2, n)

		require.NoError(t, reg.Revoke(ctx, t1))
		ok, err := reg.Validate(ctx, t2)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("revoke all", func(t *testing.T) {
		reg := newRegistry(t, NewClock().Now)
		a1, _ := reg.Create(ctx, "dave")
		a2, _ := reg.Create(ctx, "dave")
		other, _ := reg.Create(ctx, "erin")

		require.NoError(t, reg.RevokeAll(ctx, "dave"))
		for _, tok := range []string{a1, a2} {
			ok, err := reg.Validate(ctx, tok)
			require.NoError(t, err)
			require.False(t, ok)
		}
		ok, err := reg.Validate(ctx, other)
		require.NoError(t, err)
		require.True(t, ok)

		n, err := reg.CountActive(ctx, "dave")
		require.NoError(t, err)
		require.Zero(t, n)
		require.NoError(t, reg.RevokeAll(ctx, "nobody"))
	})

	t.Run("expiry evicts lazily", func(t *testing.T) {
		clk := NewClock()
		reg := newRegistry(t, clk.Now)
		tok, err := reg.Create(ctx, "frank")
		require.NoError(t, err)

		clk.Advance(TTL - time.Second)
		ok, err := reg.Validate(ctx, tok)
		require.NoError(t, err)
		require.True(t, ok)

		clk.Advance(time.Second)
		_, err = reg.UsernameFor(ctx, tok)
		require.ErrorIs(t, err, refreshtoken.ErrRefreshTokenExpired)

		// evicted: now unknown rather than expired
		_, err = reg.UsernameFor(ctx, tok)
		require.ErrorIs(t, err, refreshtoken.ErrRefreshTokenInvalid)
	})

	t.Run("sweep removes exactly the expired set", func(t *testing.T) {
		clk := NewClock()
		reg := newRegistry(t, clk.Now)
		old1, _ := reg.Create(ctx, "gina")
		old2, _ := reg.Create(ctx, "hank")
		clk.Advance(30 * time.Minute)
		fresh, _ := reg.Create(ctx, "gina")

		clk.Advance(TTL - 30*time.Minute)
		n, err := reg.SweepExpired(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		n, err = reg.SweepExpired(ctx)
		require.NoError(t, err)
		require.Zero(t, n)

		for _, tok := range []string{old1, old2} {
			_, err := reg.UsernameFor(ctx, tok)
			require.ErrorIs(t, err, refreshtoken.ErrRefreshTokenInvalid)
		}
		user, err := reg.UsernameFor(ctx, fresh)
		require.NoError(t, err)
		require.Equal(t, "gina", user)

		active, err := reg.CountActive(ctx, "gina")
		require.NoError(t, err)
		require.Equal(t, 1, active)
	})

	t.Run("concurrent use", func(t *testing.T) {
		reg := newRegistry(t, NewClock().Now)
		const workers = 16
		var wg sync.WaitGroup
		tokens := make([]string, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tok, err := reg.Create(ctx, "shared")
				if err != nil {
					return
				}
				tokens[i] = tok
				_, _ = reg.Validate(ctx, tok)
			}(i)
		}
		wg.Wait()

		n, err := reg.CountActive(ctx, "shared")
		require.NoError(t, err)
		require.Equal(t, workers, n)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(tok string) {
				defer wg.Done()
				_ = reg.Revoke(ctx, tok)
			}(tokens[i])
		}
		wg.Wait()

		n, err = reg.CountActive(ctx, "shared")
		require.NoError(t, err)
		require.Zero(t, n)
	})
}
