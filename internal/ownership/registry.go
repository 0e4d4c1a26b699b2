package ownership

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	dErrors "vendcore/pkg/domain-errors"
)

// Registry resolves table access against an injected topology. All lookups
// are pure and deterministic; the topology is copied at construction so the
// registry cannot be mutated underneath running adapters.
type Registry struct {
	owned  map[string]Service
	shared map[string]SharedGrant
}

// NewRegistry validates and indexes a topology. A table registered in both
// partitions is a configuration bug, not something to resolve at runtime.
func NewRegistry(topo Topology) (*Registry, error) {
	r := &Registry{
		owned:  make(map[string]Service, len(topo.Owned)),
		shared: make(map[string]SharedGrant, len(topo.Shared)),
	}
	for table, svc := range topo.Owned {
		if table == "" {
			return nil, fmt.Errorf("ownership topology contains an empty table name")
		}
		if svc == "" {
			return nil, fmt.Errorf("table %q has no owning service", table)
		}
		r.owned[table] = svc
	}
	for table, grant := range topo.Shared {
		if table == "" {
			return nil, fmt.Errorf("ownership topology contains an empty shared table name")
		}
		if grant.Owner == "" {
			return nil, fmt.Errorf("shared table %q has no owning service", table)
		}
		if grant.ProjectionVersion < 1 {
			return nil, fmt.Errorf("shared table %q needs a projection version >= 1", table)
		}
		if _, dup := r.owned[table]; dup {
			return nil, fmt.Errorf("table %q is registered as both owned and shared", table)
		}
		r.shared[table] = grant
	}
	return r, nil
}

// Owner returns the owning service for a table. ok is false for unregistered
// tables; any access to those must be rejected at the adapter boundary.
func (r *Registry) Owner(table string) (Service, bool) {
	if svc, found := r.owned[table]; found {
		return svc, true
	}
	if grant, found := r.shared[table]; found {
		return grant.Owner, true
	}
	return "", false
}

// OwnedBy reports whether service owns table. Pure and total: unregistered
// tables are owned by nobody.
func (r *Registry) OwnedBy(table string, service Service) bool {
	owner, found := r.Owner(table)
	return found && owner == service
}

// Access returns the mode a service holds on a table. Exclusive tables grant
// read-write to the owner and deny everyone else; shared tables grant
// read-only to non-owners, through the versioned projection.
func (r *Registry) Access(table string, service Service) AccessMode {
	if svc, found := r.owned[table]; found {
		if svc == service {
			return AccessReadWrite
		}
		return AccessDenied
	}
	if grant, found := r.shared[table]; found {
		if grant.Owner == service {
			return AccessReadWrite
		}
		return AccessReadOnly
	}
	return AccessDenied
}

// AuthorizeWrite gates every adapter write. It must run before the storage
// call is issued and is not bypassable by adapter configuration.
func (r *Registry) AuthorizeWrite(table string, service Service) error {
	owner, found := r.Owner(table)
	if !found {
		return dErrors.Newf(dErrors.CodeOwnershipViolation,
			"table %q is not registered in the ownership topology", table)
	}
	if owner != service {
		return dErrors.Newf(dErrors.CodeOwnershipViolation,
			"%s may not write table %q owned by %s", service, table, owner)
	}
	return nil
}

// AuthorizeRead gates adapter reads. Non-owners of shared tables pass, but
// are expected to address the projection, not the base table; ReadTarget
// resolves the correct name.
func (r *Registry) AuthorizeRead(table string, service Service) error {
	if r.Access(table, service) == AccessDenied {
		return dErrors.Newf(dErrors.CodeOwnershipViolation,
			"%s may not read table %q", service, table)
	}
	return nil
}

// ReadTarget returns the name a service should query: the base table for
// owners and exclusive tables, the versioned projection for read-only
// consumers of shared tables.
func (r *Registry) ReadTarget(table string, service Service) (string, error) {
	switch r.Access(table, service) {
	case AccessReadWrite:
		return table, nil
	case AccessReadOnly:
		grant := r.shared[table]
		return ProjectionName(table, grant.ProjectionVersion), nil
	default:
		return "", dErrors.Newf(dErrors.CodeOwnershipViolation,
			"%s may not read table %q", service, table)
	}
}

// ProjectionName builds the versioned read-only view name for a shared table.
func ProjectionName(table string, version int) string {
	return fmt.Sprintf("%s_v%d", table, version)
}

// ParseProjection splits a projection name into its base table and version.
// ok is false for names that do not follow the <table>_v<N> convention.
func ParseProjection(name string) (table string, version int, ok bool) {
	idx := strings.LastIndex(name, "_v")
	if idx <= 0 || idx+2 >= len(name) {
		return "", 0, false
	}
	v, err := strconv.Atoi(name[idx+2:])
	if err != nil || v < 1 {
		return "", 0, false
	}
	return name[:idx], v, true
}

// Tables lists every registered table, sorted, for migration audits.
func (r *Registry) Tables() []string {
	out := make([]string, 0, len(r.owned)+len(r.shared))
	for table := range r.owned {
		out = append(out, table)
	}
	for table := range r.shared {
		out = append(out, table)
	}
	sort.Strings(out)
	return out
}

// Guard binds a registry to one service identity so adapters carry a single
// value instead of repeating the pair on every call.
type Guard struct {
	registry *Registry
	service  Service
}

// NewGuard builds the write/read gate for one deployed service.
func NewGuard(registry *Registry, service Service) *Guard {
	return &Guard{registry: registry, service: service}
}

func (g *Guard) Service() Service { return g.service }

func (g *Guard) AuthorizeWrite(table string) error {
	return g.registry.AuthorizeWrite(table, g.service)
}

func (g *Guard) AuthorizeRead(table string) error {
	return g.registry.AuthorizeRead(table, g.service)
}

func (g *Guard) ReadTarget(table string) (string, error) {
	return g.registry.ReadTarget(table, g.service)
}
