package database

import (
	"context"
	"fmt"
)

// registrant is a table that can provision itself.
type registrant interface {
	Table
	Ensure(ctx context.Context, seeder Seeder) (bool, error)
}

// typeKey returns a comparable value unique to T, used as the directory key.
func typeKey[T any]() any {
	return (*T)(nil)
}

// CreateAndRegisterTable builds a wrapper bound to the session's schema,
// creates its table if absent and adds it to the controller's directory,
// keyed by T. A type can be registered once while its schema is attached;
// a second registration returns ErrAlreadyRegistered.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - s: Attachment session passed to the RegisterFunc
//   - newTable: Factory closure producing the wrapper from a binding
//
// Returns:
//   - T: The registered wrapper
//   - error: On duplicate registration or DDL failure
func CreateAndRegisterTable[T registrant](ctx context.Context, s *Session, newTable func(Binding) T) (T, error) {
	var zero T
	key := typeKey[T]()
	c := s.ctrl

	c.mu.Lock()
	for _, e := range c.tables {
		if e.key == key {
			c.mu.Unlock()
			return zero, fmt.Errorf("registering %T in %s: %w", zero, s.Schema(), ErrAlreadyRegistered)
		}
	}
	c.mu.Unlock()

	t := newTable(s.binding)
	if t.Schema() != s.Schema() {
		return zero, fmt.Errorf("registering %s: bound to schema %q, session is %q", t.Name(), t.Schema(), s.Schema())
	}

	var seeder Seeder
	if sd, ok := any(t).(Seeder); ok {
		seeder = sd
	}
	created, err := t.Ensure(ctx, seeder)
	if err != nil {
		return zero, err
	}

	c.mu.Lock()
	c.tables = append(c.tables, entry{key: key, table: t})
	c.mu.Unlock()

	s.attachment.Tables = append(s.attachment.Tables, t.Name())
	if created {
		s.attachment.Provisioned = append(s.attachment.Provisioned, t.Name())
	}
	return t, nil
}

// GetTable returns the registered wrapper of type T.
// It returns ErrTableNotRegistered when T was never registered or its schema
// is not attached; that is a programming error and should not be swallowed.
func GetTable[T Table](c *Controller) (T, error) {
	key := typeKey[T]()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.tables {
		if e.key == key {
			return e.table.(T), nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%T: %w", zero, ErrTableNotRegistered)
}

// MustGetTable is like GetTable but panics when T is not registered.
// Use it where a missing table can only be a wiring bug.
func MustGetTable[T Table](c *Controller) T {
	t, err := GetTable[T](c)
	if err != nil {
		panic(err)
	}
	return t
}
