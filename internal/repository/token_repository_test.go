package repository_test

import (
	"testing"
	"time"

	"github.com/iliyamo/predio-auth/internal/database/dbtest"
	"github.com/iliyamo/predio-auth/internal/refreshtoken"
	"github.com/iliyamo/predio-auth/internal/refreshtoken/registrytest"
	"github.com/iliyamo/predio-auth/internal/repository"
)

func TestTokenRepoRegistry(t *testing.T) {
	registrytest.Run(t, func(t *testing.T, now func() time.Time) refreshtoken.Registry {
		return repository.NewTokenRepo(dbtest.Open(t), registrytest.TTL).WithClock(now)
	})
}
