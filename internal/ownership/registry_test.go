package ownership

import (
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "vendcore/pkg/domain-errors"
)

type RegistrySuite struct {
	suite.Suite
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	registry, err := NewRegistry(DefaultTopology())
	s.Require().NoError(err)
	s.registry = registry
}

func (s *RegistrySuite) TestNewRegistry() {
	s.Run("rejects table in both partitions", func() {
		_, err := NewRegistry(Topology{
			Owned:  map[string]Service{"containers": ServiceMachines},
			Shared: map[string]SharedGrant{"containers": {Owner: ServiceMachines, ProjectionVersion: 1}},
		})
		s.Error(err)
	})

	s.Run("rejects shared grant without projection version", func() {
		_, err := NewRegistry(Topology{
			Shared: map[string]SharedGrant{"containers": {Owner: ServiceMachines}},
		})
		s.Error(err)
	})

	s.Run("rejects empty owner", func() {
		_, err := NewRegistry(Topology{Owned: map[string]Service{"users": ""}})
		s.Error(err)
	})
}

func (s *RegistrySuite) TestOwner() {
	s.Run("resolves exclusive tables", func() {
		owner, found := s.registry.Owner("controllers")
		s.True(found)
		s.Equal(ServiceMachines, owner)
	})

	s.Run("resolves shared tables to their owner", func() {
		owner, found := s.registry.Owner("containers")
		s.True(found)
		s.Equal(ServiceMachines, owner)
	})

	s.Run("unregistered table has no owner", func() {
		_, found := s.registry.Owner("legacy_sessions")
		s.False(found)
	})
}

// Every registered table has exactly one owner among the two services, and
// shared tables define an access mode for every non-owner.
func (s *RegistrySuite) TestPartitionTotality() {
	services := []Service{ServiceMachines, ServiceCommerce}
	for _, table := range s.registry.Tables() {
		owners := 0
		for _, svc := range services {
			if s.registry.OwnedBy(table, svc) {
				owners++
			}
			s.NotEqual(AccessMode(""), s.registry.Access(table, svc),
				"table %s must define an access mode for %s", table, svc)
		}
		s.Equal(1, owners, "table %s must have exactly one owner", table)
	}
}

func (s *RegistrySuite) TestAccess() {
	s.Run("owner gets read-write on shared table", func() {
		s.Equal(AccessReadWrite, s.registry.Access("containers", ServiceMachines))
	})

	s.Run("non-owner gets read-only on shared table", func() {
		s.Equal(AccessReadOnly, s.registry.Access("containers", ServiceCommerce))
	})

	s.Run("non-owner is denied on exclusive table", func() {
		s.Equal(AccessDenied, s.registry.Access("users", ServiceMachines))
	})

	s.Run("unregistered table is denied for everyone", func() {
		s.Equal(AccessDenied, s.registry.Access("legacy_sessions", ServiceCommerce))
		s.Equal(AccessDenied, s.registry.Access("legacy_sessions", ServiceMachines))
	})
}

func (s *RegistrySuite) TestAuthorizeWrite() {
	s.Run("owner passes", func() {
		s.NoError(s.registry.AuthorizeWrite("orders", ServiceCommerce))
	})

	s.Run("non-owner fails with ownership violation", func() {
		err := s.registry.AuthorizeWrite("orders", ServiceMachines)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeOwnershipViolation))
	})

	s.Run("shared table rejects the read-only consumer", func() {
		err := s.registry.AuthorizeWrite("containers", ServiceCommerce)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeOwnershipViolation))
	})

	s.Run("unregistered table fails closed", func() {
		err := s.registry.AuthorizeWrite("legacy_sessions", ServiceCommerce)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeOwnershipViolation))
	})
}

func (s *RegistrySuite) TestReadTarget() {
	s.Run("owner reads the base table", func() {
		target, err := s.registry.ReadTarget("containers", ServiceMachines)
		s.NoError(err)
		s.Equal("containers", target)
	})

	s.Run("read-only consumer reads the versioned projection", func() {
		target, err := s.registry.ReadTarget("containers", ServiceCommerce)
		s.NoError(err)
		s.Equal("containers_v1", target)
	})

	s.Run("denied consumer gets ownership violation", func() {
		_, err := s.registry.ReadTarget("users", ServiceMachines)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeOwnershipViolation))
	})
}

func (s *RegistrySuite) TestProjectionNames() {
	s.Equal("containers_v1", ProjectionName("containers", 1))
	s.Equal("products_v3", ProjectionName("products", 3))

	table, version, ok := ParseProjection("containers_v2")
	s.True(ok)
	s.Equal("containers", table)
	s.Equal(2, version)

	_, _, ok = ParseProjection("containers")
	s.False(ok)
	_, _, ok = ParseProjection("containers_vx")
	s.False(ok)
	_, _, ok = ParseProjection("_v1")
	s.False(ok)
}

func (s *RegistrySuite) TestGuard() {
	guard := NewGuard(s.registry, ServiceMachines)
	s.NoError(guard.AuthorizeWrite("devices"))
	s.Error(guard.AuthorizeWrite("payments"))

	target, err := guard.ReadTarget("products")
	s.NoError(err)
	s.Equal("products_v1", target)
}
