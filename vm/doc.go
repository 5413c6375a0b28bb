// Package vm implements the managed object runtime that mbind binds to.
//
// This package contains:
//   - Primitive kinds, values and type descriptors
//   - Classes, class loaders with parent-first delegation, virtual dispatch
//   - Heap objects: instances, strings, primitive and reference arrays
//   - Per-thread Envs with local frames, global and weak references
//   - Pending exceptions and critical regions
//   - Native libraries, name mangling and the native call frame
//   - Mark-sweep collection
//
// Method bodies are Go functions (MethodFunc). Native code reaches the VM
// through Env, whose reference and threading rules are enforced: breaking
// one is a contract violation reported through VM.Fatal.
package vm
