// Package bind is the binding layer native code uses to drive the managed
// VM: scoped and global references, interned classes, declarative class
// definitions with overload selection, string and array marshaling, the
// exception bridge, thread attachment and opaque native contexts.
//
// A native library is declared with NewLibrary, given its native methods
// with Register and made loadable with Install. Loading it into a VM
// attaches the layer:
//
//	lib := bind.NewLibrary("demo", bind.DefaultOptions())
//	lib.Register("com/example/Counter", "next", "()I", next)
//	if err := lib.Install(); err != nil {
//		return err
//	}
//	err := v.LoadLibrary("demo")
//
// Every operation takes the calling thread's *Env. Misuse that the VM
// cannot recover from, such as using a local reference on another thread,
// is a contract violation: the process exits, or with AbortOnMisuse off the
// call panics with a *vm.ContractViolation.
package bind
