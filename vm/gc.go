package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Garbage collection
// ---------------------------------------------------------------------------

// GCStats holds statistics from a single collection.
type GCStats struct {
	Live        int
	Collected   int
	WeakCleared int
	Duration    time.Duration
	Timestamp   time.Time
}

func (vm *VM) track(obj *Object) {
	vm.heapMu.Lock()
	vm.heap[obj] = struct{}{}
	vm.heapMu.Unlock()
}

// HeapSize returns the number of live objects.
func (vm *VM) HeapSize() int {
	vm.heapMu.Lock()
	defer vm.heapMu.Unlock()
	return len(vm.heap)
}

// GC runs a stop-the-world mark-sweep collection. Roots are global
// references, the locals of every live frame on every attached thread, the
// receivers and arguments of running managed methods, pending exceptions,
// static fields, and class and loader mirrors. Unreachable objects are
// flagged collected and weak references to them are cleared.
//
// The caller must ensure no other attached thread is running managed code
// or native callbacks while GC runs.
func (vm *VM) GC() GCStats {
	vm.gcMu.Lock()
	defer vm.gcMu.Unlock()

	start := time.Now()
	marked := make(map[*Object]bool)
	var stack []*Object
	mark := func(obj *Object) {
		if obj != nil && !marked[obj] {
			marked[obj] = true
			stack = append(stack, obj)
		}
	}

	vm.refMu.Lock()
	for h := range vm.globals {
		mark(h.obj.Load())
	}
	vm.refMu.Unlock()

	vm.threads.Range(func(_, v any) bool {
		env := v.(*Env)
		for _, f := range env.frames {
			for _, h := range f.locals {
				if !h.deleted.Load() {
					mark(h.obj.Load())
				}
			}
		}
		for _, a := range env.activations {
			mark(a.this)
			for _, arg := range a.args {
				mark(arg.ref)
			}
		}
		mark(env.pending)
		return true
	})

	vm.eachClass(func(c *Class) {
		for _, s := range c.statics {
			mark(s.ref)
		}
		mark(c.mirror)
	})
	vm.loaders.Range(func(_, v any) bool {
		mark(v.(*ClassLoader).mirror)
		return true
	})

	for len(stack) > 0 {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		obj.references(mark)
	}

	stats := GCStats{Timestamp: start}
	vm.heapMu.Lock()
	for obj := range vm.heap {
		if marked[obj] {
			continue
		}
		obj.collected.Store(true)
		delete(vm.heap, obj)
		stats.Collected++
	}
	stats.Live = len(vm.heap)
	vm.heapMu.Unlock()

	vm.refMu.Lock()
	for h := range vm.weaks {
		if obj := h.obj.Load(); obj != nil && obj.collected.Load() {
			h.obj.Store(nil)
			stats.WeakCleared++
		}
	}
	vm.refMu.Unlock()

	stats.Duration = time.Since(start)
	log.Debugf("gc: %d live, %d collected, %d weak refs cleared in %s",
		stats.Live, stats.Collected, stats.WeakCleared, stats.Duration)
	return stats
}
