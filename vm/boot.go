package vm

import "strings"

// ---------------------------------------------------------------------------
// Core classes defined by the boot loader
// ---------------------------------------------------------------------------

const (
	descString    = "Ljava/lang/String;"
	descObject    = "Ljava/lang/Object;"
	descThrowable = "Ljava/lang/Throwable;"
)

// throwableSubclasses lists the core exception hierarchy as (name, super).
var throwableSubclasses = [][2]string{
	{"java/lang/Exception", "java/lang/Throwable"},
	{"java/lang/Error", "java/lang/Throwable"},
	{"java/lang/RuntimeException", "java/lang/Exception"},
	{"java/lang/ClassNotFoundException", "java/lang/Exception"},
	{"java/lang/InstantiationException", "java/lang/Exception"},
	{"java/lang/NullPointerException", "java/lang/RuntimeException"},
	{"java/lang/IllegalStateException", "java/lang/RuntimeException"},
	{"java/lang/IllegalArgumentException", "java/lang/RuntimeException"},
	{"java/lang/ArrayIndexOutOfBoundsException", "java/lang/RuntimeException"},
	{"java/lang/ArrayStoreException", "java/lang/RuntimeException"},
	{"java/lang/NegativeArraySizeException", "java/lang/RuntimeException"},
	{"java/lang/LinkageError", "java/lang/Error"},
	{"java/lang/NoClassDefFoundError", "java/lang/LinkageError"},
	{"java/lang/NoSuchMethodError", "java/lang/LinkageError"},
	{"java/lang/NoSuchFieldError", "java/lang/LinkageError"},
	{"java/lang/UnsatisfiedLinkError", "java/lang/LinkageError"},
	{"java/lang/AbstractMethodError", "java/lang/LinkageError"},
}

func bootClassNames() []string {
	names := []string{"java/lang/Integer", "java/util/List", "java/util/ArrayList"}
	for _, pair := range throwableSubclasses {
		names = append(names, pair[0])
	}
	return names
}

func bootSource() *MapSource {
	defs := []*ClassDef{
		objectDef(),
		stringDef(),
		classDef(),
		classLoaderDef(),
		ThrowableDef("java/lang/Throwable", "java/lang/Object"),
		integerDef(),
		listDef(),
		arrayListDef(),
	}
	for _, pair := range throwableSubclasses {
		defs = append(defs, ThrowableDef(pair[0], pair[1]))
	}
	return NewMapSource(defs...)
}

func objectDef() *ClassDef {
	return &ClassDef{
		Name: "java/lang/Object",
		Methods: []MethodDef{
			{Name: "<init>", Desc: "()V", Impl: func(env *Env, this *Object, args []Value) Value {
				return Void
			}},
			{Name: "hashCode", Desc: "()I", Impl: func(env *Env, this *Object, args []Value) Value {
				return IntValue(int32(this.id))
			}},
			{Name: "equals", Desc: "(" + descObject + ")Z", Impl: func(env *Env, this *Object, args []Value) Value {
				return BooleanValue(this == args[0].ref)
			}},
			{Name: "getClass", Desc: "()Ljava/lang/Class;", Impl: func(env *Env, this *Object, args []Value) Value {
				return RefValue(env.vm.ClassMirror(this.class))
			}},
			{Name: "toString", Desc: "()" + descString, Impl: func(env *Env, this *Object, args []Value) Value {
				return RefValue(env.vm.NewStringObject(this.String()))
			}},
		},
	}
}

func stringDef() *ClassDef {
	return &ClassDef{
		Name: "java/lang/String",
		Methods: []MethodDef{
			{Name: "length", Desc: "()I", Impl: func(env *Env, this *Object, args []Value) Value {
				return IntValue(int32(len(this.chars)))
			}},
			{Name: "equals", Desc: "(" + descObject + ")Z", Impl: func(env *Env, this *Object, args []Value) Value {
				other := args[0].ref
				if other == nil || !other.IsString() || len(other.chars) != len(this.chars) {
					return BooleanValue(false)
				}
				for i, c := range this.chars {
					if other.chars[i] != c {
						return BooleanValue(false)
					}
				}
				return BooleanValue(true)
			}},
			{Name: "toString", Desc: "()" + descString, Impl: func(env *Env, this *Object, args []Value) Value {
				return RefValue(this)
			}},
		},
	}
}

func classDef() *ClassDef {
	return &ClassDef{
		Name: "java/lang/Class",
		Methods: []MethodDef{
			{Name: "getName", Desc: "()" + descString, Impl: func(env *Env, this *Object, args []Value) Value {
				return RefValue(env.vm.NewStringObject(strings.ReplaceAll(this.mirror.Name, "/", ".")))
			}},
			{Name: "getClassLoader", Desc: "()Ljava/lang/ClassLoader;", Impl: func(env *Env, this *Object, args []Value) Value {
				return RefValue(this.mirror.Loader.mirror)
			}},
			{Name: "getSuperclass", Desc: "()Ljava/lang/Class;", Impl: func(env *Env, this *Object, args []Value) Value {
				if this.mirror.Superclass == nil {
					return Null
				}
				return RefValue(env.vm.ClassMirror(this.mirror.Superclass))
			}},
		},
	}
}

func classLoaderDef() *ClassDef {
	return &ClassDef{
		Name: "java/lang/ClassLoader",
		Methods: []MethodDef{
			{Name: "loadClass", Desc: "(" + descString + ")Ljava/lang/Class;", Impl: func(env *Env, this *Object, args []Value) Value {
				name := args[0].ref
				if name == nil {
					env.throwNew("java/lang/NullPointerException", "class name")
					return Null
				}
				binary := strings.ReplaceAll(name.GoString(), ".", "/")
				c, err := this.loader.LoadClass(binary)
				if err != nil {
					env.throwNew("java/lang/ClassNotFoundException", name.GoString())
					return Null
				}
				return RefValue(env.vm.ClassMirror(c))
			}},
			{Name: "getParent", Desc: "()Ljava/lang/ClassLoader;", Impl: func(env *Env, this *Object, args []Value) Value {
				if this.loader.Parent == nil {
					return Null
				}
				return RefValue(this.loader.Parent.mirror)
			}},
		},
	}
}

// ThrowableDef returns the definition of a throwable class with the usual
// constructors. Throwable itself declares the message and cause fields.
func ThrowableDef(name, super string) *ClassDef {
	def := &ClassDef{
		Name:  name,
		Super: super,
		Methods: []MethodDef{
			{Name: "<init>", Desc: "()V", Impl: func(env *Env, this *Object, args []Value) Value {
				return Void
			}},
			{Name: "<init>", Desc: "(" + descString + ")V", Impl: func(env *Env, this *Object, args []Value) Value {
				this.SetField("message", args[0])
				return Void
			}},
			{Name: "<init>", Desc: "(" + descString + descThrowable + ")V", Impl: func(env *Env, this *Object, args []Value) Value {
				this.SetField("message", args[0])
				this.SetField("cause", args[1])
				return Void
			}},
		},
	}
	if name == "java/lang/Throwable" {
		def.Fields = []FieldDef{
			{Name: "message", Desc: descString},
			{Name: "cause", Desc: descThrowable},
		}
		def.Methods = append(def.Methods,
			MethodDef{Name: "getMessage", Desc: "()" + descString, Impl: func(env *Env, this *Object, args []Value) Value {
				return this.GetField("message")
			}},
			MethodDef{Name: "getCause", Desc: "()" + descThrowable, Impl: func(env *Env, this *Object, args []Value) Value {
				return this.GetField("cause")
			}},
		)
	}
	return def
}

func integerDef() *ClassDef {
	return &ClassDef{
		Name:   "java/lang/Integer",
		Fields: []FieldDef{{Name: "value", Desc: "I"}},
		Methods: []MethodDef{
			{Name: "<init>", Desc: "(I)V", Impl: func(env *Env, this *Object, args []Value) Value {
				this.SetField("value", args[0])
				return Void
			}},
			{Name: "intValue", Desc: "()I", Impl: func(env *Env, this *Object, args []Value) Value {
				return this.GetField("value")
			}},
			{Name: "valueOf", Desc: "(I)Ljava/lang/Integer;", Static: true, Impl: func(env *Env, this *Object, args []Value) Value {
				c := env.Resolve(nil, "java/lang/Integer")
				return RefValue(env.Construct(c, "(I)V", args[0]))
			}},
			{Name: "equals", Desc: "(" + descObject + ")Z", Impl: func(env *Env, this *Object, args []Value) Value {
				other := args[0].ref
				return BooleanValue(other != nil && other.class == this.class &&
					other.GetField("value").Int() == this.GetField("value").Int())
			}},
		},
	}
}

func listDef() *ClassDef {
	return &ClassDef{
		Name:      "java/util/List",
		Interface: true,
		Methods: []MethodDef{
			{Name: "size", Desc: "()I", Abstract: true},
			{Name: "get", Desc: "(I)" + descObject, Abstract: true},
			{Name: "add", Desc: "(" + descObject + ")Z", Abstract: true},
		},
	}
}

func arrayListDef() *ClassDef {
	return &ClassDef{
		Name:       "java/util/ArrayList",
		Interfaces: []string{"java/util/List"},
		Fields: []FieldDef{
			{Name: "elementData", Desc: "[" + descObject},
			{Name: "size", Desc: "I"},
		},
		Methods: []MethodDef{
			{Name: "<init>", Desc: "()V", Impl: func(env *Env, this *Object, args []Value) Value {
				this.SetField("elementData", RefValue(env.vm.NewObjectArrayObject(env.vm.ObjectClass, 4)))
				return Void
			}},
			{Name: "size", Desc: "()I", Impl: func(env *Env, this *Object, args []Value) Value {
				return this.GetField("size")
			}},
			{Name: "get", Desc: "(I)" + descObject, Impl: func(env *Env, this *Object, args []Value) Value {
				i := int(args[0].Int())
				if i < 0 || i >= int(this.GetField("size").Int()) {
					env.throwNew("java/lang/ArrayIndexOutOfBoundsException", "list index")
					return Null
				}
				return RefValue(this.GetField("elementData").ref.elems[i])
			}},
			{Name: "add", Desc: "(" + descObject + ")Z", Impl: func(env *Env, this *Object, args []Value) Value {
				data := this.GetField("elementData").ref
				n := int(this.GetField("size").Int())
				if n == len(data.elems) {
					grown := env.vm.NewObjectArrayObject(env.vm.ObjectClass, 2*n+1)
					copy(grown.elems, data.elems)
					data = grown
					this.SetField("elementData", RefValue(data))
				}
				data.elems[n] = args[0].ref
				this.SetField("size", IntValue(int32(n+1)))
				return BooleanValue(true)
			}},
		},
	}
}
