// Package ownership answers, for any storage table, which service may write
// it and how other services may read it. Two independently deployed services
// share one physical database; this registry is what keeps their writes
// disciplined. The check is fail-closed: an unregistered table is accessible
// to nobody.
package ownership

// Service identifies a deployed service that owns tables.
type Service string

const (
	// ServiceMachines runs the hardware and vision side: controllers,
	// devices, capture pipelines.
	ServiceMachines Service = "machines-service"
	// ServiceCommerce runs the customer side: accounts, orders, payments.
	ServiceCommerce Service = "commerce-service"
)

// AccessMode is the level of access a service holds on a table.
type AccessMode string

const (
	AccessReadWrite AccessMode = "read-write"
	AccessReadOnly  AccessMode = "read-only"
	AccessDenied    AccessMode = "denied"
)

// SharedGrant registers a table both services touch. The owner gets
// read-write on the base table; every other service reads through the
// versioned projection <table>_v<N>, which the owner appends to (never
// mutates) on backward-incompatible schema changes.
type SharedGrant struct {
	Owner             Service
	ProjectionVersion int
}

// Topology is the full table partition. It is plain data so tests can
// substitute alternate layouts; production wiring uses DefaultTopology.
type Topology struct {
	// Owned maps exclusively owned tables to their owning service. No other
	// service may read or write them.
	Owned map[string]Service
	// Shared maps cross-service tables to their grant.
	Shared map[string]SharedGrant
}

// DefaultTopology is the production partition. It must track the schema
// migrations of the service that owns each table.
func DefaultTopology() Topology {
	return Topology{
		Owned: map[string]Service{
			"controllers":        ServiceMachines,
			"devices":            ServiceMachines,
			"machine_events":     ServiceMachines,
			"machines_audit_log": ServiceMachines,

			"users":              ServiceCommerce,
			"orders":             ServiceCommerce,
			"payments":           ServiceCommerce,
			"payment_methods":    ServiceCommerce,
			"commerce_events":    ServiceCommerce,
			"commerce_audit_log": ServiceCommerce,
		},
		Shared: map[string]SharedGrant{
			// Machines own container hardware state; commerce reads it to
			// decide availability.
			"containers": {Owner: ServiceMachines, ProjectionVersion: 1},
			// Commerce owns the product catalog; machines read it to label
			// detected items.
			"products": {Owner: ServiceCommerce, ProjectionVersion: 1},
		},
	}
}
