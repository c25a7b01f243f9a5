package accessor

// RelationKind is the cardinality of a declared relation.
type RelationKind int

const (
	RelationBelongsTo RelationKind = iota
	RelationHasMany
	RelationManyToMany
)

func (k RelationKind) String() string {
	switch k {
	case RelationBelongsTo:
		return "belongs-to"
	case RelationHasMany:
		return "has-many"
	case RelationManyToMany:
		return "many-to-many"
	default:
		return "unknown"
	}
}

// Relation is an explicit relation descriptor registered per entity at
// configuration time and looked up by name, replacing reflection over entity
// metadata. For many-to-many relations JoinTable, SourceColumn and
// TargetColumn identify the join rows Associate and Disassociate manage.
type Relation struct {
	Name         string
	Kind         RelationKind
	JoinTable    string
	SourceColumn string
	TargetColumn string
}

// relation finds a declared relation by name.
func (m Meta) relation(name string) (Relation, bool) {
	for _, r := range m.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}
