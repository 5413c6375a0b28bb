package bind

import (
	"sync/atomic"
	"time"

	"github.com/chazu/mbind/vm"
)

// Primitive is the set of Go element types of primitive arrays.
type Primitive interface {
	bool | uint16 | int8 | int16 | int32 | int64 | float32 | float64
}

func kindOf[T Primitive]() vm.Kind {
	var zero T
	return kindOfGo(any(zero))
}

func typeOf[T Primitive]() Type {
	return Type{kind: kindOf[T]()}
}

// AccessMode selects how a primitive array's elements are reached.
type AccessMode int

const (
	// AccessDefault pins in place when allowed and the array is at least
	// ArrayCopyThreshold elements long, and copies otherwise.
	AccessDefault AccessMode = iota
	// AccessCopy works on a copy published on release.
	AccessCopy
	// AccessCritical works on the array's own storage. No other VM call may
	// be made until the view is released.
	AccessCritical
)

func (m AccessMode) String() string {
	switch m {
	case AccessDefault:
		return "default"
	case AccessCopy:
		return "copy"
	case AccessCritical:
		return "critical"
	}
	return "unknown"
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

// ArrayStats counts array pins by path and the time views were held.
type ArrayStats struct {
	CriticalPins   int64
	CopyPins       int64
	CriticalTime   time.Duration
	CopyTime       time.Duration
	CopiedElements int64
}

type arrayCounters struct {
	criticalPins   atomic.Int64
	copyPins       atomic.Int64
	criticalNanos  atomic.Int64
	copyNanos      atomic.Int64
	copiedElements atomic.Int64
}

func (c *arrayCounters) record(critical bool, n int, held time.Duration) {
	if critical {
		c.criticalPins.Add(1)
		c.criticalNanos.Add(int64(held))
		return
	}
	c.copyPins.Add(1)
	c.copyNanos.Add(int64(held))
	c.copiedElements.Add(int64(n))
}

// ArrayStats returns the pin counters accumulated since Attach.
func (j *Jvm) ArrayStats() ArrayStats {
	return ArrayStats{
		CriticalPins:   j.stats.criticalPins.Load(),
		CopyPins:       j.stats.copyPins.Load(),
		CriticalTime:   time.Duration(j.stats.criticalNanos.Load()),
		CopyTime:       time.Duration(j.stats.copyNanos.Load()),
		CopiedElements: j.stats.copiedElements.Load(),
	}
}

// ---------------------------------------------------------------------------
// Local primitive arrays
// ---------------------------------------------------------------------------

// LocalArray is a local reference to a one-dimensional primitive array.
type LocalArray[T Primitive] struct {
	env *Env
	ref vm.Ref
}

// NewArray allocates a zeroed array of n elements.
func NewArray[T Primitive](env *Env, n int) (LocalArray[T], error) {
	a := LocalArray[T]{env: env}
	if err := env.live(); err != nil {
		return a, err
	}
	a.ref = env.raw.NewPrimitiveArray(kindOf[T](), n)
	if exc := Observe(env); exc != nil {
		return a, exc
	}
	return a, nil
}

// NewArrayFrom allocates an array holding a copy of src.
func NewArrayFrom[T Primitive](env *Env, src []T) (LocalArray[T], error) {
	a, err := NewArray[T](env, len(src))
	if err != nil {
		return a, err
	}
	if len(src) > 0 {
		env.raw.SetArrayRegion(a.ref, 0, src)
	}
	return a, nil
}

// WrapArray adopts a raw array reference. The array's element type must be
// T; a mismatch is a contract violation.
func WrapArray[T Primitive](env *Env, ref vm.Ref) LocalArray[T] {
	if !ref.IsNull() {
		td := env.raw.ArrayType(ref)
		if td.Dims != 1 || td.Elem != kindOf[T]() {
			env.fatal(vm.ContractWrongObject, "%s is not an array of %s", td, kindOf[T]())
		}
	}
	return LocalArray[T]{env: env, ref: ref}
}

// AsArray converts an array-typed result to a LocalArray.
func AsArray[T Primitive](v Value) LocalArray[T] {
	return WrapArray[T](v.env, v.j.Ref())
}

func (a LocalArray[T]) raw() vm.Ref { return a.ref }

// Def returns nil: arrays have no class definition.
func (a LocalArray[T]) Def() *ClassDef { return nil }

func (a LocalArray[T]) arrayType() Type { return ArrayOf(typeOf[T](), 1) }

// IsNull reports whether the reference is null.
func (a LocalArray[T]) IsNull() bool { return a.ref.IsNull() }

// Len returns the number of elements.
func (a LocalArray[T]) Len() int { return a.env.raw.GetArrayLength(a.ref) }

// Get returns element i. An index out of range is a contract violation.
func (a LocalArray[T]) Get(i int) T {
	buf := make([]T, 1)
	a.env.raw.GetArrayRegion(a.ref, i, buf)
	return buf[0]
}

// Set stores v at index i.
func (a LocalArray[T]) Set(i int, v T) {
	a.env.raw.SetArrayRegion(a.ref, i, []T{v})
}

// Copy returns an owned copy of the elements.
func (a LocalArray[T]) Copy() []T {
	buf := make([]T, a.Len())
	if len(buf) > 0 {
		a.env.raw.GetArrayRegion(a.ref, 0, buf)
	}
	return buf
}

// Write copies src into the array starting at start.
func (a LocalArray[T]) Write(start int, src []T) {
	a.env.raw.SetArrayRegion(a.ref, start, src)
}

// Release hands the raw reference to the caller.
func (a LocalArray[T]) Release() vm.Ref { return a.ref }

// Delete frees the local before its frame ends.
func (a LocalArray[T]) Delete() {
	if !a.ref.IsNull() {
		a.env.raw.DeleteLocalRef(a.ref)
	}
}

func (a LocalArray[T]) chooseMode(mode AccessMode, n int) bool {
	opts := a.env.jvm.opts
	switch mode {
	case AccessCritical:
		if !opts.AllowCriticalSections {
			log.Warningf("critical array access disabled; copying %d elements", n)
			return false
		}
		return true
	case AccessCopy:
		return false
	}
	return opts.AllowCriticalSections && n >= opts.ArrayCopyThreshold
}

// Pin opens a view of the elements. With writeBack false, changes made
// through a copy are discarded on release; a critical view always writes
// through.
func (a LocalArray[T]) Pin(mode AccessMode, writeBack bool) *ArrayView[T] {
	n := a.Len()
	v := &ArrayView[T]{arr: a, writeBack: writeBack, start: time.Now()}
	if a.chooseMode(mode, n) {
		v.critical = true
		v.data = a.env.raw.GetPrimitiveArrayCritical(a.ref).([]T)
	} else {
		v.data = a.env.raw.GetArrayElements(a.ref).([]T)
	}
	return v
}

// PinCritical is Pin with AccessCritical.
func (a LocalArray[T]) PinCritical(writeBack bool) *ArrayView[T] {
	return a.Pin(AccessCritical, writeBack)
}

// ArrayView is an open view of a primitive array's elements.
type ArrayView[T Primitive] struct {
	arr       LocalArray[T]
	data      []T
	critical  bool
	writeBack bool
	released  bool
	start     time.Time
}

// Data returns the elements. After Release it is nil.
func (v *ArrayView[T]) Data() []T { return v.data }

// Len returns the number of elements.
func (v *ArrayView[T]) Len() int { return len(v.data) }

// IsCopy reports whether the view is a copy rather than the array's own
// storage.
func (v *ArrayView[T]) IsCopy() bool { return !v.critical }

// Mode returns the path the view took.
func (v *ArrayView[T]) Mode() AccessMode {
	if v.critical {
		return AccessCritical
	}
	return AccessCopy
}

// Release closes the view, publishing a copy's changes when writeBack was
// requested. Releasing twice is a no-op.
func (v *ArrayView[T]) Release() {
	if v.released {
		return
	}
	v.released = true
	raw := v.arr.env.raw
	mode := vm.ReleaseDefault
	if !v.writeBack {
		mode = vm.ReleaseAbort
	}
	if v.critical {
		raw.ReleasePrimitiveArrayCritical(v.arr.ref, v.data, mode)
	} else {
		raw.ReleaseArrayElements(v.arr.ref, v.data, mode)
	}
	v.arr.env.jvm.stats.record(v.critical, len(v.data), time.Since(v.start))
	v.data = nil
}
