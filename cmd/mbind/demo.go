package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/mbind/archive"
	"github.com/chazu/mbind/bind"
	"github.com/chazu/mbind/vm"
	"github.com/chazu/mbind/vm/vmtest"
)

var log = commonlog.GetLogger("mbind.demo")

const demoLibraryName = "mbind-demo"

// scenario is one end-to-end check run against a live binding layer.
type scenario struct {
	name string
	run  func(j *bind.Jvm, env *bind.Env) error
}

var scenarios = []scenario{
	{"builder round trip", demoBuilder},
	{"context token held by managed code", demoContext},
	{"critical vs regular array", demoArrays},
	{"rank-2 integer matrix", demoMatrix},
	{"exception raised from native", demoRaise},
	{"class-loader scoping", demoLoaders},
	{"attached worker threads", demoThreads},
}

// handleDemoCommand processes `mbind demo [-manifest dir]`. Options come from
// the manifest when one is found, otherwise the defaults apply.
func handleDemoCommand(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	dir := fs.String("manifest", "", "Directory to search for mbind.toml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := bind.DefaultOptions()
	if *dir != "" {
		m, err := loadManifest(*dir)
		if err != nil {
			return err
		}
		opts = m.Options()
		fmt.Fprintf(w, "Using options from %s\n", m.Dir)
	}

	failed, err := runDemo(opts, w)
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenario(s) failed", failed, len(scenarios))
	}
	return nil
}

// runDemo starts a VM, loads the demo library into it and runs every
// scenario, reporting each on w. It returns the number of failures.
func runDemo(opts bind.Options, w io.Writer) (int, error) {
	v := vm.NewVM()
	defer v.Destroy()
	if err := vmtest.Register(v); err != nil {
		return 0, err
	}
	if err := v.RegisterClass(demoNativesVMDef()); err != nil {
		return 0, err
	}

	if err := demoLibrary(demoLibraryName, opts).Install(); err != nil {
		return 0, err
	}
	if err := v.LoadLibrary(demoLibraryName); err != nil {
		return 0, err
	}
	j := bind.Current()
	guard, err := j.NewThreadGuard()
	if err != nil {
		j.Teardown()
		return 0, err
	}
	defer guard.Close()
	// Tear down while still attached so interned classes release their globals.
	defer j.Teardown()
	env := guard.Env()

	failed := 0
	for _, s := range scenarios {
		err := runScenario(j, env, s)
		if err != nil {
			failed++
			fmt.Fprintf(w, "FAIL  %s: %v\n", s.name, err)
			continue
		}
		fmt.Fprintf(w, "PASS  %s\n", s.name)
	}
	return failed, nil
}

// runScenario runs s inside its own local frame so each scenario starts
// from a clean local table.
func runScenario(j *bind.Jvm, env *bind.Env, s scenario) error {
	log.Debugf("running %s", s.name)
	_, err := bind.WithLocalFrame(env, 16, func(f *bind.Frame) error {
		return s.run(j, f.Env())
	})
	if exc := bind.Catch(env); exc != nil && err == nil {
		err = fmt.Errorf("left an exception pending: %w", exc)
	}
	return err
}

func demoBuilder(j *bind.Jvm, env *bind.Env) error {
	b, err := bind.New(env, builderDef)
	if err != nil {
		return err
	}
	cur := b
	for _, step := range []struct {
		method string
		val    int32
	}{{"setOne", 111}, {"setTwo", 222}, {"setThree", 333}} {
		next, err := cur.Call(step.method, step.val)
		if err != nil {
			return err
		}
		cur = next.Object()
	}
	built, err := cur.Call("build")
	if err != nil {
		return err
	}
	got, err := helperInts(built.Object())
	if err != nil {
		return err
	}
	if want := [3]int32{111, 222, 333}; got != want {
		return fmt.Errorf("built fields = %v, want %v", got, want)
	}
	return nil
}

// demoContext keeps a helper in a native context whose token lives in a
// managed ContextTest object. Every query crosses into native code with
// nothing but that token.
func demoContext(j *bind.Jvm, env *bind.Env) error {
	raw := env.Raw()
	holder := raw.Construct(raw.Resolve(nil, vmtest.ContextTest), "()V")
	if holder == nil {
		return pendingError(env, "construct "+vmtest.ContextTest)
	}
	raw.NewLocal(holder)
	call := func(name, desc string, args ...vm.Value) (vm.Value, error) {
		v := raw.Invoke(holder, name, desc, args...)
		if exc := bind.Catch(env); exc != nil {
			return v, fmt.Errorf("%s: %w", name, exc)
		}
		return v, nil
	}
	query := func(name string) (*vm.Object, error) {
		v, err := call(name, "()"+descHelper)
		return v.Object(), err
	}

	if _, err := call("open", "(I)V", vm.IntValue(555)); err != nil {
		return err
	}
	defer call("close", "()V")
	j.VM().GC()

	for i := 0; i < 4; i++ {
		q, err := query("query")
		if err != nil {
			return err
		}
		if q == nil {
			return fmt.Errorf("query %d returned null", i)
		}
		if got := vmtest.HelperInts(q)[0]; got != 555 {
			return fmt.Errorf("query %d intVal1 = %d, want 555", i, got)
		}
	}
	e, err := query("extract")
	if err != nil {
		return err
	}
	if e == nil || vmtest.HelperInts(e)[0] != 555 {
		return errors.New("extract did not return the stored helper")
	}
	if q, err := query("query"); err != nil || q != nil {
		return fmt.Errorf("query after extract = %v, %v; want null", q, err)
	}
	return nil
}

func demoArrays(j *bind.Jvm, env *bind.Env) error {
	before := j.ArrayStats()
	natives, err := bind.Static(env, demoNativesDef)
	if err != nil {
		return err
	}
	asserts, err := bind.Static(env, arrayHelpersDef)
	if err != nil {
		return err
	}

	for _, factor := range []int32{2, 3} {
		arr, err := bind.NewArrayFrom(env, iota32(10))
		if err != nil {
			return err
		}
		if _, err := natives.Call("scale", arr, factor); err != nil {
			return err
		}
		if _, err := asserts.Call("assertInt1D", 0, factor, arr); err != nil {
			return fmt.Errorf("scaled by %d: %w", factor, err)
		}
	}

	after := j.ArrayStats()
	copies, criticals := after.CopyPins-before.CopyPins, after.CriticalPins-before.CriticalPins
	if copies+criticals != 2 {
		return fmt.Errorf("pins = %d copy + %d critical, want 2", copies, criticals)
	}
	if j.Options().AllowCriticalSections && criticals != 1 {
		return fmt.Errorf("critical pins = %d, want 1", criticals)
	}
	return nil
}

func demoMatrix(j *bind.Jvm, env *bind.Env) error {
	src := make([][]int32, 3)
	for i := range src {
		src[i] = make([]int32, 6)
		for k := range src[i] {
			src[i][k] = int32(6*i + k)
		}
	}
	m, err := bind.NewArray2From(env, src)
	if err != nil {
		return err
	}

	counter := int32(0)
	for i := 0; i < m.Rows(); i++ {
		row := m.Row(i)
		view := row.Pin(bind.AccessDefault, false)
		for k, got := range view.Data() {
			if got != counter {
				view.Release()
				return fmt.Errorf("arr[%d][%d] = %d, want %d", i, k, got, counter)
			}
			counter++
		}
		view.Release()
		row.Delete()
	}

	asserts, err := bind.Static(env, arrayHelpersDef)
	if err != nil {
		return err
	}
	_, err = asserts.Call("assertInt2D", 0, m)
	return err
}

func demoRaise(j *bind.Jvm, env *bind.Env) error {
	natives, err := bind.Static(env, demoNativesDef)
	if err != nil {
		return err
	}
	const msg = "Test failed with unmet requirements"
	_, err = natives.Call("raise", "Exception", msg)

	want := &bind.ManagedException{ClassName: "java/lang/Exception", Message: msg}
	if !errors.Is(err, want) {
		return fmt.Errorf("call returned %v, want %v", err, want)
	}
	if bind.Catch(env) == nil {
		return errors.New("exception was not pending after the call")
	}
	return nil
}

func demoLoaders(j *bind.Jvm, env *bind.Env) error {
	src, err := archive.NewSource(vmtest.HelperArchive(), vmtest.HelperIntrinsics())
	if err != nil {
		return err
	}
	v := j.VM()
	l := v.NewClassLoader("remote", v.BootLoader(), src)

	local, err := env.ClassOf(helperClassDef)
	if err != nil {
		return err
	}
	remote, err := env.FindInLoader(l, vmtest.HelperClass)
	if err != nil {
		return err
	}
	if local.Same(remote) {
		return errors.New("default and remote loaders resolved the same class")
	}

	sub, err := env.FindInLoader(l, vmtest.HelperSubclass)
	if err != nil {
		return err
	}
	for _, c := range []struct {
		cls  *bind.Class
		def  *bind.ClassDef
		want int32
	}{
		{remote, helperClassDef, 7},
		{sub, helperSubclassDef, -7},
	} {
		o, err := bind.NewOf(env, c.cls, c.def, 7)
		if err != nil {
			return err
		}
		got, err := bind.CallAs[int32](o, "getValue")
		if err != nil {
			return err
		}
		if got != c.want {
			return fmt.Errorf("%s.getValue = %d, want %d", c.def.Name, got, c.want)
		}
	}
	return nil
}

// demoThreads builds helpers from several goroutines, each attached for the
// duration of its work through a thread guard.
func demoThreads(j *bind.Jvm, env *bind.Env) error {
	const workers = 4
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = j.WithAttachedThread(func(env *bind.Env) error {
				h, err := bind.New(env, helperDef, int32(i))
				if err != nil {
					return err
				}
				if _, err := h.Call("increment", int32(10)); err != nil {
					return err
				}
				got, err := helperInts(h)
				if err != nil {
					return err
				}
				if got[0] != int32(i)+10 {
					return fmt.Errorf("worker %d: intVal1 = %d, want %d", i, got[0], i+10)
				}
				return nil
			})
		}(i)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// pendingError turns the pending exception into an error, or reports what
// failed when nothing is pending.
func pendingError(env *bind.Env, what string) error {
	if exc := bind.Catch(env); exc != nil {
		return fmt.Errorf("%s: %w", what, exc)
	}
	return errors.New(what + " failed")
}

func helperInts(o bind.LocalObject) ([3]int32, error) {
	var out [3]int32
	for i, name := range []string{"intVal1", "intVal2", "intVal3"} {
		v, err := o.Get(name)
		if err != nil {
			return out, err
		}
		out[i] = v.Int()
	}
	return out, nil
}

func iota32(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}
