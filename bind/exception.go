package bind

import (
	"errors"
	"strings"

	"github.com/chazu/mbind/vm"
)

// ManagedException is a snapshot of a managed throwable. It is how a pending
// exception surfaces as a Go error.
type ManagedException struct {
	ClassName string
	Message   string
	Cause     *ManagedException
}

func (e *ManagedException) Error() string {
	name := strings.ReplaceAll(e.ClassName, "/", ".")
	if e.Message == "" {
		return name
	}
	return name + ": " + e.Message
}

// Unwrap returns the cause, if any.
func (e *ManagedException) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is matches another ManagedException by class name.
func (e *ManagedException) Is(target error) bool {
	t, ok := target.(*ManagedException)
	return ok && t.ClassName == e.ClassName && (t.Message == "" || t.Message == e.Message)
}

const maxCauseDepth = 16

func snapshot(obj *vm.Object, depth int) *ManagedException {
	if obj == nil {
		return nil
	}
	name, msg, cause := vm.ThrowableInfo(obj)
	exc := &ManagedException{ClassName: name, Message: msg}
	if cause != nil && cause != obj && depth < maxCauseDepth {
		exc.Cause = snapshot(cause, depth+1)
	}
	return exc
}

// Observe returns the pending exception without clearing it, or nil.
func Observe(env *Env) *ManagedException {
	if !env.raw.ExceptionCheck() {
		return nil
	}
	return snapshot(env.raw.Pending(), 0)
}

// Catch returns the pending exception and clears it, or nil.
func Catch(env *Env) *ManagedException {
	exc := Observe(env)
	if exc != nil {
		env.raw.ExceptionClear()
		log.Debugf("caught %v", exc)
	}
	return exc
}

func qualifyException(className string) string {
	if !strings.ContainsAny(className, "/.") {
		return "java/lang/" + className
	}
	return className
}

// Raise marks a new exception of the named class pending. A name without a
// package is taken from java/lang.
func Raise(env *Env, className, msg string) error {
	if err := env.live(); err != nil {
		return err
	}
	cls, err := env.Find(qualifyException(className))
	if err != nil {
		return err
	}
	return env.raw.ThrowNew(cls.global, msg)
}

// RaiseExisting marks an already built throwable pending.
func RaiseExisting(env *Env, o Object) error {
	if err := env.live(); err != nil {
		return err
	}
	if o == nil || o.raw().IsNull() {
		return errors.New("raise: null throwable")
	}
	env.raw.Throw(o.raw())
	return nil
}

const descCauseCtor = "(Ljava/lang/String;Ljava/lang/Throwable;)V"

// newThrowable builds me and its cause chain through the (String, Throwable)
// constructor and returns a local reference to the outermost throwable.
func newThrowable(env *Env, me *ManagedException, depth int) (vm.Ref, error) {
	var cause vm.Ref
	if me.Cause != nil && depth < maxCauseDepth {
		c, err := newThrowable(env, me.Cause, depth+1)
		if err != nil {
			return vm.Ref{}, err
		}
		defer env.raw.DeleteLocalRef(c)
		cause = c
	}
	cls, err := env.Find(qualifyException(me.ClassName))
	if err != nil {
		return vm.Ref{}, err
	}
	ctor, err := env.jvm.members.method(cls.raw, "<init>", descCauseCtor, false)
	if err != nil {
		return vm.Ref{}, err
	}
	msg := env.raw.NewStringUTF(me.Message)
	defer env.raw.DeleteLocalRef(msg)
	obj := env.raw.NewObject(cls.global, ctor, vm.JRef(msg), vm.JRef(cause))
	if env.raw.ExceptionCheck() {
		return vm.Ref{}, Catch(env)
	}
	return obj, nil
}

// raiseError turns a Go error returned by a native method into a pending
// exception. An exception already pending wins. A *ManagedException keeps
// its class and its cause chain.
func raiseError(env *Env, err error) {
	if env.raw.ExceptionCheck() {
		return
	}
	var me *ManagedException
	if errors.As(err, &me) {
		if me.Cause == nil {
			if rerr := Raise(env, me.ClassName, me.Message); rerr == nil {
				return
			}
		} else if t, rerr := newThrowable(env, me, 0); rerr == nil {
			env.raw.Throw(t)
			env.raw.DeleteLocalRef(t)
			return
		} else {
			log.Debugf("building %v with its cause: %v", me, rerr)
		}
	}
	if rerr := Raise(env, "java/lang/RuntimeException", err.Error()); rerr != nil {
		log.Errorf("raising %v: %v", err, rerr)
	}
}

// ---------------------------------------------------------------------------
// Custom exceptions
// ---------------------------------------------------------------------------

// ExceptionDef describes java/lang/Exception. Custom exception definitions
// declare the same (String) constructor.
var ExceptionDef = &ClassDef{
	Name:         "java/lang/Exception",
	Constructors: []Constructor{Ctor(), Ctor(String)},
	Methods: []Method{
		Fn("getMessage", String),
		Fn("getCause", Named("java/lang/Throwable")),
	},
}

// LocalException is a local reference to a throwable built on the native
// side.
type LocalException struct {
	LocalObject
}

// NewException constructs an instance of def with msg as its message.
func NewException(env *Env, def *ClassDef, msg string) (LocalException, error) {
	obj, err := New(env, def, msg)
	return LocalException{obj}, err
}

// AsException binds a reference to a throwable, for example one returned by
// a factory method.
func AsException(o LocalObject) LocalException {
	if o.def == nil {
		o.def = ExceptionDef
	}
	return LocalException{o}
}

// Throw marks the exception pending.
func (e LocalException) Throw() error {
	return RaiseExisting(e.env, e.LocalObject)
}

// Message returns the exception's message.
func (e LocalException) Message() string {
	if _, m := e.def.method(false, "getMessage"); m == nil {
		return snapshot(e.env.raw.Deref(e.ref), 0).Message
	}
	v, err := e.Call("getMessage")
	if err != nil {
		return ""
	}
	return v.Text()
}

// Snapshot returns the exception as a Go error value without raising it.
func (e LocalException) Snapshot() *ManagedException {
	return snapshot(e.env.raw.Deref(e.ref), 0)
}
