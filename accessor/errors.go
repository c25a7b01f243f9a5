package accessor

import "fmt"

// NotFoundError reports an existence check for an id that resolves to no row.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// RelationNotFoundError reports an association against a relation name the
// entity never declared.
type RelationNotFoundError struct {
	Entity   string
	Relation string
}

func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("relation %s not declared on %s", e.Relation, e.Entity)
}

// NotManyToManyError reports an association against a declared relation of
// the wrong kind.
type NotManyToManyError struct {
	Entity   string
	Relation string
}

func (e *NotManyToManyError) Error() string {
	return fmt.Sprintf("relation %s on %s is not many-to-many", e.Relation, e.Entity)
}
