// Package ambient binds query executors to the dynamic extent of a call
// chain so that a unit of work and everything it calls can share one
// database transaction without threading the handle through every signature.
//
// The binding rides on context.Context, which is the propagation primitive
// Go already routes through suspension points: a goroutine awaiting I/O keeps
// its context, callbacks derived from it keep the binding, and sibling chains
// driven by the same scheduler never observe it.
//
// # Usage
//
//	ctx = ambient.With(ctx, ambient.Binding{"default": tx})
//	// ... anything called with ctx resolves the transaction:
//	if ex, ok := ambient.ExecutorFor(ctx, "default"); ok {
//		// participate in the ambient transaction
//	}
//
// Bindings nest: an inner With merges its entries over the outer binding,
// shadowing only the connection names it carries. Exiting the inner call
// restores the outer view because the outer code still holds the outer
// context.
//
// Code below this package should not attach bindings directly; the
// transactional package owns binding lifecycles and ties them to scope
// commit/rollback/release ordering.
package ambient
