package vmtest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/chazu/mbind/vm"
)

// Call is one method arrival observed by a Recorder.
type Call struct {
	Method string
	Desc   string
	Args   []vm.Value
}

func (c Call) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return c.Method + "(" + strings.Join(parts, ", ") + ")"
}

// Recorder is a mock collaborator. Classes produced by Mock record every
// instance method call in arrival order and return the zero value of the
// method's return type.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// Mock returns a subclass of def named def.Name+"$Mock" whose instance
// methods are recorded instead of run. Constructors are inherited from the
// no-argument constructor of def.
func (r *Recorder) Mock(def *vm.ClassDef) *vm.ClassDef {
	mock := &vm.ClassDef{
		Name:  def.Name + "$Mock",
		Super: def.Name,
		Methods: []vm.MethodDef{
			{Name: "<init>", Desc: "()V", Impl: noop},
		},
	}
	for _, m := range def.Methods {
		if m.Static || m.Name == "<init>" {
			continue
		}
		_, ret, err := vm.ParseMethodDesc(m.Desc)
		if err != nil {
			continue
		}
		name, desc := m.Name, m.Desc
		mock.Methods = append(mock.Methods, vm.MethodDef{
			Name: name,
			Desc: desc,
			Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				r.record(Call{Method: name, Desc: desc, Args: append([]vm.Value(nil), args...)})
				return vm.ZeroValue(ret.Kind)
			},
		})
	}
	return mock
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

// Calls returns the recorded calls in arrival order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many times method arrived.
func (r *Recorder) Count(method string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Verify checks that the recorded method names match want exactly, in
// order.
func (r *Recorder) Verify(want ...string) error {
	calls := r.Calls()
	if len(calls) != len(want) {
		return fmt.Errorf("got %d call(s) %v, want %v", len(calls), calls, want)
	}
	for i, c := range calls {
		if c.Method != want[i] {
			return fmt.Errorf("call %d = %s, want %s", i, c, want[i])
		}
	}
	return nil
}

// VerifyArgs checks that call i received args equal to want. Primitive
// arguments compare by bits, references by identity.
func (r *Recorder) VerifyArgs(i int, want ...vm.Value) error {
	calls := r.Calls()
	if i >= len(calls) {
		return fmt.Errorf("no call %d (have %d)", i, len(calls))
	}
	got := calls[i].Args
	if len(got) != len(want) {
		return fmt.Errorf("call %d has %d argument(s), want %d", i, len(got), len(want))
	}
	for j := range want {
		if got[j].Kind() != want[j].Kind() || got[j].Bits() != want[j].Bits() || got[j].Object() != want[j].Object() {
			return fmt.Errorf("call %d argument %d = %s, want %s", i, j, got[j], want[j])
		}
	}
	return nil
}

// Reset forgets all recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
