package depgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cilscope/internal/metadata"
)

type fakeAssembly struct {
	name  string
	refs  []string
	types []*metadata.TypeDef
	err   error
}

func (a *fakeAssembly) Name() string { return a.name }

func (a *fakeAssembly) References() []metadata.AssemblyRef {
	out := make([]metadata.AssemblyRef, len(a.refs))
	for i, r := range a.refs {
		out[i] = metadata.AssemblyRef{Name: r}
	}
	return out
}

func (a *fakeAssembly) Types() ([]*metadata.TypeDef, error) { return a.types, a.err }

type fakeLoader struct {
	asms  map[string]*fakeAssembly
	loads []string
}

func (l *fakeLoader) Load(name string) (Assembly, error) {
	l.loads = append(l.loads, name)
	a, ok := l.asms[name]
	if !ok {
		return nil, metadata.ErrAssemblyNotFound
	}
	return a, nil
}

func named(asm, ns, name string) *metadata.Type {
	return &metadata.Type{Kind: metadata.TypeNamed, Namespace: ns, Name: name, Assembly: asm}
}

func class(t, base *metadata.Type, ifaces ...*metadata.Type) *metadata.TypeDef {
	return &metadata.TypeDef{Type: t, Base: base, Interfaces: ifaces, Flags: metadata.TypePublic}
}

func iface(t *metadata.Type, bases ...*metadata.Type) *metadata.TypeDef {
	return &metadata.TypeDef{Type: t, Interfaces: bases, Flags: metadata.TypePublic | metadata.TypeInterface}
}

func generic(of *metadata.Type, args ...*metadata.Type) *metadata.Type {
	return &metadata.Type{Kind: metadata.TypeGenericInst, Of: of, Args: args}
}

var object = named("mscorlib", "System", "Object")

func TestBuildAssemblyWalk(t *testing.T) {
	root := &fakeAssembly{name: "App", refs: []string{"Lib", "System.Runtime", "Missing"}}
	lib := &fakeAssembly{name: "Lib", refs: []string{"App", "system.core"}}
	ld := &fakeLoader{asms: map[string]*fakeAssembly{"Lib": lib}}

	r, err := NewBuilder(Config{Exclude: []string{"System."}}, ld, nil).Build(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"App", "Lib", "System.Runtime", "Missing", "system.core"}, r.Assemblies.Keys())
	assert.Equal(t, []string{"Lib", "Missing"}, ld.loads)
	assert.True(t, r.Assemblies.HasEdge("Lib", "App"))
	assert.True(t, r.Assemblies.HasEdge("Lib", "system.core"))

	sys, _ := r.Assemblies.Vertex("System.Runtime")
	assert.True(t, sys.Excluded)
	assert.False(t, sys.IsLoaded())
	missing, _ := r.Assemblies.Vertex("Missing")
	assert.ErrorIs(t, missing.LoadErr, metadata.ErrAssemblyNotFound)

	var loaded []string
	for _, v := range r.LoadedAssemblies() {
		loaded = append(loaded, v.Name())
	}
	assert.Equal(t, []string{"App", "Lib"}, loaded)

	require.Len(t, r.Cycles(), 1)
	assert.Equal(t, Cycle{Graph: GraphAssemblies, Path: []string{"App", "Lib", "App"}}, r.Cycles()[0])
}

func TestBuildNilLoader(t *testing.T) {
	root := &fakeAssembly{name: "App", refs: []string{"Lib"}}
	r, err := NewBuilder(Config{}, nil, nil).Build(root)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Assemblies.VertexCount())
	assert.Len(t, r.LoadedAssemblies(), 1)
	assert.Empty(t, r.Cycles())
}

func TestBuildNoRoot(t *testing.T) {
	_, err := NewBuilder(Config{}, nil, nil).Build(nil)
	assert.ErrorIs(t, err, ErrNoRoot)
}

func TestBuildTypes(t *testing.T) {
	animal := named("App", "Zoo", "Animal")
	dog := named("App", "Zoo", "Dog")
	box := named("App", "Zoo", "Box`1")
	nested := &metadata.Type{Kind: metadata.TypeNamed, Name: "Inner", Declaring: dog, Assembly: "App"}
	closure := named("App", "Zoo", "<>c__DisplayClass0")
	gen := named("App", "Zoo", "Cache")
	iAnimal := named("App", "Zoo", "IAnimal")
	iPet := named("App", "Zoo", "IPet")

	root := &fakeAssembly{name: "App", types: []*metadata.TypeDef{
		class(named("App", "", "<Module>"), nil),
		class(animal, object, iAnimal),
		class(dog, animal, iPet),
		{Type: box, Base: object, GenericParams: []string{"T"}},
		class(nested, object),
		class(closure, object),
		{Type: gen, Base: object, CompilerGenerated: true},
		iface(iAnimal),
		iface(iPet, iAnimal, named("mscorlib", "System", "IDisposable")),
	}}

	r, err := NewBuilder(Config{}, nil, nil).Build(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"Zoo.Animal", "Zoo.Dog", "App.Box`1"}, r.Classes.Keys())
	assert.Equal(t, []string{"Zoo.IAnimal", "Zoo.IPet"}, r.Interfaces.Keys())
	assert.True(t, r.Classes.HasEdge("Zoo.Dog", "Zoo.Animal"))
	assert.Equal(t, 1, r.Classes.EdgeCount())
	assert.True(t, r.Interfaces.HasEdge("Zoo.IPet", "Zoo.IAnimal"))
	assert.Equal(t, 1, r.Interfaces.EdgeCount())
	assert.Empty(t, r.Cycles())
}

func TestBuildGenericBaseAndCycle(t *testing.T) {
	a := named("App", "N", "A")
	b := named("App", "N", "B`1")
	root := &fakeAssembly{name: "App", types: []*metadata.TypeDef{
		class(a, generic(b, a)),
		{Type: b, Base: a, GenericParams: []string{"T"}},
	}}
	r, err := NewBuilder(Config{}, nil, nil).Build(root)
	require.NoError(t, err)
	assert.True(t, r.Classes.HasEdge("N.A", "App.B`1"))
	assert.True(t, r.Classes.HasEdge("App.B`1", "N.A"))
	cycles := r.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, GraphClasses, cycles[0].Graph)
}

func TestBuildTypesErrorKeepsPartial(t *testing.T) {
	root := &fakeAssembly{
		name:  "App",
		types: []*metadata.TypeDef{class(named("App", "N", "A"), object)},
		err:   errors.New("bad row"),
	}
	r, err := NewBuilder(Config{}, nil, nil).Build(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"N.A"}, r.Classes.Keys())
}

func TestDescriptors(t *testing.T) {
	widget := named("App", "UI", "Widget")
	color := named("App", "UI", "Color")
	list := named("mscorlib", "System.Collections.Generic", "List`1")
	action := named("mscorlib", "System", "Action`1")
	exc := named("mscorlib", "System", "Exception")

	def := class(widget, object)
	def.Fields = []*metadata.Field{
		{Name: "Count", Type: metadata.Primitive(metadata.ElemI4), Flags: metadata.FieldPublic},
		{Name: "Tint", Type: color, Flags: metadata.FieldPublic},
		{Name: "hidden", Type: color},
		{Name: "Shared", Type: &metadata.Type{Kind: metadata.TypeSZArray, Of: color}, Flags: metadata.FieldPublic | metadata.FieldStatic},
	}
	def.Properties = []*metadata.Property{
		{Name: "Children", Type: generic(list, widget), Public: true},
		{Name: "Errors", Type: generic(list, exc), Public: true},
	}
	def.Events = []*metadata.Event{
		{Name: "Failed", Type: generic(action, exc), Public: true},
		{Name: "Changed", Type: generic(action, color), Public: true},
	}
	def.Methods = []*metadata.Method{
		{Name: "Paint", Flags: metadata.MethodPublic, Sig: &metadata.MethodSig{
			Return: metadata.Primitive(metadata.ElemVoid),
			Params: []*metadata.Type{{Kind: metadata.TypeByRef, Of: color}},
		}},
		{Name: "get_Children", Flags: metadata.MethodPublic | metadata.MethodSpecialName, Sig: &metadata.MethodSig{Return: color}},
		{Name: "Size", Flags: metadata.MethodPublic, Sig: &metadata.MethodSig{Return: metadata.Primitive(metadata.ElemI4)}},
	}
	root := &fakeAssembly{name: "App", types: []*metadata.TypeDef{def, class(color, object)}}

	r, err := NewBuilder(Config{Exclude: []string{"system."}}, nil, nil).Build(root)
	require.NoError(t, err)
	cv, ok := r.Classes.Vertex("UI.Widget")
	require.True(t, ok)

	names := func(ms []Member) []string {
		var out []string
		for _, m := range ms {
			out = append(out, m.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Tint", "Shared"}, names(cv.Fields))
	assert.True(t, cv.Fields[1].Static)
	assert.Equal(t, []string{"Children"}, names(cv.Properties))
	assert.Equal(t, []string{"Changed"}, names(cv.Events))
	assert.Equal(t, []string{"Paint"}, names(cv.Methods))
	assert.Equal(t, []string{"UI.Color"}, cv.Methods[0].Dependencies)

	deps := r.TypeDependencies()
	assert.Contains(t, deps, Dependency{Class: "UI.Widget", Member: "Tint", Type: "UI.Color"})
	assert.Contains(t, deps, Dependency{Class: "UI.Widget", Member: "Changed", Type: "UI.Color"})
	for _, d := range deps {
		assert.NotEqual(t, d.Class, d.Type)
	}
}

func TestDefaultRelevance(t *testing.T) {
	rel := DefaultRelevance([]string{"System."})
	mine := named("Lib", "My", "Thing")
	repo := named("Lib", "My", "Repo`1")
	list := named("mscorlib", "System.Collections.Generic", "List`1")

	tests := []struct {
		name     string
		typ      *metadata.Type
		relevant bool
		deps     []string
	}{
		{"primitive", metadata.Primitive(metadata.ElemString), false, nil},
		{"named", mine, true, []string{"My.Thing"}},
		{"excluded", named("mscorlib", "System", "Uri"), false, nil},
		{"excluded generic of excluded", generic(list, metadata.Primitive(metadata.ElemI4)), false, nil},
		{"excluded generic of mine", generic(list, mine), true, []string{"My.Thing"}},
		{"own generic", generic(repo, mine), true, []string{"Lib.Repo`1", "My.Thing"}},
		{"array of byref", &metadata.Type{Kind: metadata.TypeByRef, Of: &metadata.Type{Kind: metadata.TypeSZArray, Of: mine}}, true, []string{"My.Thing"}},
		{"generic param", &metadata.Type{Kind: metadata.TypeVar}, false, nil},
		{"compiler named", named("Lib", "My", "<Items>d__4"), false, nil},
		{"nested", &metadata.Type{Kind: metadata.TypeNamed, Name: "Inner", Declaring: mine}, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relevant, deps := rel(tt.typ)
			assert.Equal(t, tt.relevant, relevant)
			assert.Equal(t, tt.deps, deps)
		})
	}
}

func TestTypeKey(t *testing.T) {
	k, ok := TypeKey(named("MyLib", "Data", "Repository`1"))
	assert.True(t, ok)
	assert.Equal(t, "MyLib.Repository`1", k)

	k, ok = TypeKey(generic(named("MyLib", "Data", "Repository`1"), named("MyLib", "Data", "User")))
	assert.True(t, ok)
	assert.Equal(t, "MyLib.Repository`1", k)

	k, _ = TypeKey(named("MyLib", "Data", "User"))
	assert.Equal(t, "Data.User", k)

	_, ok = TypeKey(&metadata.Type{Kind: metadata.TypeMVar})
	assert.False(t, ok)
}

func TestResultLattice(t *testing.T) {
	root := &fakeAssembly{name: "App", refs: []string{"Lib"}}
	r, err := NewBuilder(Config{}, nil, nil).Build(root)
	require.NoError(t, err)
	lg := r.Lattice(GraphAssemblies)
	require.NotNil(t, lg)
	assert.Equal(t, []string{"App", "Lib"}, lg.Nodes)
	assert.Len(t, lg.Edges, 1)
	assert.Nil(t, r.Lattice("nope"))
}
