// Package guest stages commands and data streams in the linear memory of a
// WebAssembly guest running under wazero.
//
// Buffers are stored behind an int32 length prefix so a guest needs only a
// pointer to find one:
//
//	mem := guest.WrapMemory(mod.ExportedMemory("memory"))
//	alloc := guest.WrapRealloc(ctx, mod.ExportedFunction("cabi_realloc"))
//	x := guest.NewExchange(c, mem, alloc)
//
//	cmdPtr, _ := x.PutCommand(cmd)
//	dataPtr, _ := x.Pickle(v, cmd)
//	// hand cmdPtr and dataPtr to the guest
//
// Guests without an allocator export can be given an Arena over a region
// they reserve for the host.
package guest
