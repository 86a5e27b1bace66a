package rwsplit

// RoutingType is the routing decision pushed onto a Scope.
//
// Routing decision table:
//
//	  Statement            RoutingType
//	-------------------- --------------
//	| insert/update/...  | Master      |
//	| select ... for upd | Master      |
//	| select/show/...    | Slave       |
//	| /*MASTER*/ ...     | Master      |
//	| /*SLAVE(r1)*/ ...  | Slave (r1)  |
//	| anything else      | no change   |
type RoutingType uint32

const (
	Auto   RoutingType = iota // Let the resolver decide (replica unless consistency requires the primary).
	Master                    // The operation must be executed on the primary.
	Slave                     // The operation should be executed on a replica.
)

// String implements fmt.Stringer.
func (t RoutingType) String() string {
	switch t {
	case Auto:
		return "auto"
	case Master:
		return "master"
	case Slave:
		return "slave"
	default:
		return "unknown"
	}
}
