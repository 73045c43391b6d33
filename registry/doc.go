// Package registry holds child commands referenced by TYPE_COMMAND.
//
// A command can splice in another command by handle instead of repeating
// it inline. The registry owns those children:
//
//	reg := registry.New()
//	point, _ := reg.RegisterNamed("point", pointCmd)
//	line := command.NewBuilder().
//		Push().
//		PropStr("from").Child(int64(point)).
//		PropStr("to").Child(int64(point)).
//		Pop().
//		Command()
//
// Handles are small integers starting at 1, never addresses. A handle stays
// valid until its last reference is released; afterwards the slot is
// recycled. Registration validates the command, so every child reachable
// from a registered command is itself registered and well formed.
package registry
