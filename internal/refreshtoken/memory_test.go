package refreshtoken_test

import (
	"testing"
	"time"

	"github.com/iliyamo/predio-auth/internal/refreshtoken"
	"github.com/iliyamo/predio-auth/internal/refreshtoken/registrytest"
)

func TestMemoryRegistry(t *testing.T) {
	registrytest.Run(t, func(t *testing.T, now func() time.Time) refreshtoken.Registry {
		return refreshtoken.NewMemory(registrytest.TTL).WithClock(now)
	})
}
