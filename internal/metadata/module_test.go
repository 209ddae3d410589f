package metadata

import (
	"errors"
	"strings"
	"testing"

	"cilscope/internal/cilfmt"
)

func TestModuleManifest(t *testing.T) {
	s := newSample(t)
	if got := s.m.Name(); got != "Lib" {
		t.Errorf("Name = %q, want Lib", got)
	}
	if got := s.m.Version().String(); got != "1.2.3.4" {
		t.Errorf("Version = %q", got)
	}
	refs := s.m.References()
	if len(refs) != 1 || refs[0].Name != "mscorlib" {
		t.Fatalf("References = %v", refs)
	}
	if got := refs[0].String(); got != "mscorlib, Version=4.0.0.0" {
		t.Errorf("ref String = %q", got)
	}
	if !s.m.IsSameAssembly("lib") || s.m.IsSameAssembly("mscorlib") {
		t.Error("IsSameAssembly is not a case-insensitive name match")
	}
}

func TestResolveTypeDef(t *testing.T) {
	s := newSample(t)
	w, err := s.m.ResolveType(tok(tabTypeDef, 2))
	if err != nil {
		t.Fatal(err)
	}
	if w.FullName() != "Demo.Widget" || w.Assembly != "Lib" || w.ValueType {
		t.Errorf("Widget = %+v", w)
	}
	p, _ := s.m.ResolveType(tok(tabTypeDef, 3))
	if !p.ValueType {
		t.Error("Point should be a value type")
	}
	in, _ := s.m.ResolveType(tok(tabTypeDef, 4))
	if in.FullName() != "Demo.Widget+Inner" || in.Declaring != w {
		t.Errorf("Inner = %s, declaring %v", in.FullName(), in.Declaring)
	}
	again, _ := s.m.ResolveType(tok(tabTypeDef, 2))
	if again != w {
		t.Error("TypeDef resolution is not cached")
	}
}

func TestResolveTypeRef(t *testing.T) {
	s := newSample(t)
	obj, err := s.m.ResolveType(tok(tabTypeRef, 1))
	if err != nil {
		t.Fatal(err)
	}
	if obj != Primitive(ElemObject) {
		t.Errorf("System.Object = %+v, want the object primitive", obj)
	}
	c, _ := s.m.ResolveType(tok(tabTypeRef, 4))
	if c.FullName() != "System.Console" || c.Assembly != "mscorlib" {
		t.Errorf("Console = %s in %q", c.FullName(), c.Assembly)
	}
}

func TestResolveTypeSpec(t *testing.T) {
	s := newSample(t)
	ts, err := s.m.ResolveType(tok(tabTypeSpec, 1))
	if err != nil {
		t.Fatal(err)
	}
	if ts.Kind != TypeGenericInst || ts.Of.Name != "List`1" || len(ts.Args) != 1 || ts.Args[0] != Primitive(ElemI4) {
		t.Errorf("TypeSpec = %s", ts.FullName())
	}
}

func TestResolveTypeErrors(t *testing.T) {
	s := newSample(t)
	tests := []struct {
		name string
		tok  cilfmt.Token
		want error
	}{
		{"row out of range", tok(tabTypeDef, 99), ErrTokenRange},
		{"nil row", tok(tabTypeRef, 0), ErrTokenRange},
		{"wrong kind", tok(tabField, 1), ErrWrongKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.m.ResolveType(tt.tok)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, cilfmt.ErrResolution) {
				t.Errorf("err = %v is not a resolution error", err)
			}
		})
	}
}

func TestResolveMethodDef(t *testing.T) {
	s := newSample(t)
	md, err := s.m.ResolveMethod(tok(tabMethodDef, 1))
	if err != nil {
		t.Fatal(err)
	}
	if md.FullName() != "Demo.Widget::Run" {
		t.Errorf("FullName = %q", md.FullName())
	}
	if !md.Sig.HasThis || len(md.Sig.Params) != 2 || md.Sig.Return != Primitive(ElemVoid) {
		t.Errorf("Sig = %+v", md.Sig)
	}
	if strings.Join(md.ParamNames, ",") != "n,label" {
		t.Errorf("ParamNames = %v", md.ParamNames)
	}
	pick, _ := s.m.ResolveMethod(tok(tabMethodDef, 3))
	if len(pick.GenericParams) != 1 || pick.GenericParams[0] != "U" {
		t.Errorf("Pick generic params = %v", pick.GenericParams)
	}
}

func TestResolveMemberRef(t *testing.T) {
	s := newSample(t)
	wl, err := s.m.ResolveMethod(tok(tabMemberRef, 1))
	if err != nil {
		t.Fatal(err)
	}
	if wl.FullName() != "System.Console::WriteLine" || wl.Sig.HasThis {
		t.Errorf("WriteLine = %s", wl.FullName())
	}
	f, err := s.m.ResolveField(tok(tabMemberRef, 2))
	if err != nil {
		t.Fatal(err)
	}
	if f.Name != "X" || f.Declaring.Name != "Point" || f.Type != Primitive(ElemI4) {
		t.Errorf("field ref = %+v", f)
	}
	if _, err := s.m.ResolveField(tok(tabMemberRef, 1)); !errors.Is(err, ErrWrongKind) {
		t.Errorf("method ref as field: err = %v", err)
	}
	mem, err := s.m.ResolveMember(tok(tabMemberRef, 2))
	if err != nil || mem.MemberKind() != MemberField {
		t.Errorf("ResolveMember = %v, %v", mem, err)
	}
}

func TestResolveMethodSpec(t *testing.T) {
	s := newSample(t)
	md, err := s.m.ResolveMethod(tok(tabMethodSpec, 1))
	if err != nil {
		t.Fatal(err)
	}
	if md.Name != "Pick" || len(md.GenericArgs) != 1 || md.GenericArgs[0] != Primitive(ElemString) {
		t.Errorf("MethodSpec = %+v", md)
	}
	base, _ := s.m.ResolveMethod(tok(tabMethodDef, 3))
	if base.GenericArgs != nil {
		t.Error("instantiation leaked into the generic definition")
	}
}

func TestResolveStringAndSignature(t *testing.T) {
	s := newSample(t)
	got, err := s.m.ResolveString(s.hello)
	if err != nil || got != "hello" {
		t.Errorf("ResolveString = %q, %v", got, err)
	}
	b, err := s.m.ResolveSignature(cilfmt.MakeToken(cilfmt.KindSignature, 1))
	if err != nil || len(b) != 5 {
		t.Errorf("ResolveSignature = %x, %v", b, err)
	}
	if _, err := s.m.ResolveLocal(0); !errors.Is(err, ErrNoScope) {
		t.Errorf("ResolveLocal without scope: %v", err)
	}
}

func TestTypes(t *testing.T) {
	s := newSample(t)
	defs, err := s.m.Types()
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 5 {
		t.Fatalf("len(Types) = %d, want 5", len(defs))
	}
	byName := map[string]*TypeDef{}
	for _, d := range defs {
		byName[d.FullName()] = d
	}

	w := byName["Demo.Widget"]
	if w == nil || !w.IsPublic() || w.IsNested() {
		t.Fatalf("Widget = %+v", w)
	}
	if w.Base != Primitive(ElemObject) {
		t.Errorf("Widget base = %v", w.Base)
	}
	if len(w.Interfaces) != 1 || w.Interfaces[0].FullName() != "System.IDisposable" {
		t.Errorf("Widget interfaces = %v", w.Interfaces)
	}
	if len(w.Fields) != 1 || len(w.Methods) != 3 {
		t.Errorf("Widget members: %d fields, %d methods", len(w.Fields), len(w.Methods))
	}

	in := byName["Demo.Widget+Inner"]
	if in == nil || !in.CompilerGenerated || !in.IsNested() {
		t.Errorf("Inner = %+v", in)
	}
	if byName["Demo.Widget"].CompilerGenerated {
		t.Error("Widget marked compiler generated")
	}

	box := byName["Demo.Box`1"]
	if box == nil || !box.IsGeneric() || box.GenericParams[0] != "T" {
		t.Fatalf("Box = %+v", box)
	}
	if len(box.Properties) != 1 {
		t.Fatalf("Box properties = %v", box.Properties)
	}
	p := box.Properties[0]
	if p.Name != "Value" || !p.Public || p.Static || p.Type.Kind != TypeVar {
		t.Errorf("Value property = %+v", p)
	}
}

func TestScopeParams(t *testing.T) {
	s := newSample(t)
	run, _ := s.m.ResolveMethod(tok(tabMethodDef, 1))
	sc := s.m.Scope(run, nil)

	this, err := sc.ResolveParam(0)
	if err != nil || !this.IsThis || this.Name != "this" || this.Type.Name != "Widget" {
		t.Errorf("arg 0 = %+v, %v", this, err)
	}
	n, err := sc.ResolveParam(1)
	if err != nil || n.Name != "n" || n.Type != Primitive(ElemI4) {
		t.Errorf("arg 1 = %+v, %v", n, err)
	}
	if _, err := sc.ResolveParam(3); !errors.Is(err, ErrNoParam) {
		t.Errorf("arg 3: %v", err)
	}
	if _, err := sc.ResolveLocal(0); !errors.Is(err, ErrNoScope) {
		t.Errorf("local without body: %v", err)
	}
}

func TestScopeLocals(t *testing.T) {
	s := newSample(t)
	run, _ := s.m.ResolveMethod(tok(tabMethodDef, 1))
	locals, err := s.m.locals(cilfmt.MakeToken(cilfmt.KindSignature, 1))
	if err != nil {
		t.Fatal(err)
	}
	sc := s.m.Scope(run, &Body{Locals: locals})
	v1, err := sc.ResolveLocal(1)
	if err != nil || !v1.Pinned || v1.Type != Primitive(ElemString) {
		t.Errorf("V_1 = %+v, %v", v1, err)
	}
	if _, err := sc.ResolveLocal(2); !errors.Is(err, ErrNoLocal) {
		t.Errorf("V_2: %v", err)
	}
}

func TestStaticParamNaming(t *testing.T) {
	md := &Method{
		Name:       "F",
		Sig:        &MethodSig{Return: Primitive(ElemVoid), Params: []*Type{Primitive(ElemI4), Primitive(ElemI8)}},
		ParamNames: []string{"a", ""},
	}
	sc := (&Module{}).Scope(md, nil)
	p0, err := sc.ResolveParam(0)
	if err != nil || p0.Name != "a" || p0.IsThis {
		t.Errorf("arg 0 = %+v, %v", p0, err)
	}
	p1, err := sc.ResolveParam(1)
	if err != nil || p1.Name != "A_1" {
		t.Errorf("arg 1 = %+v, %v", p1, err)
	}
}

func TestValueTypeThis(t *testing.T) {
	decl := &Type{Kind: TypeNamed, Name: "P", ValueType: true}
	md := &Method{Name: "M", Declaring: decl, Sig: &MethodSig{HasThis: true, Return: Primitive(ElemVoid)}}
	p, err := (&Module{}).Scope(md, nil).ResolveParam(0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Type.Kind != TypeByRef || p.Type.Of != decl {
		t.Errorf("this type = %s, want P&", p.Type.FullName())
	}
}

func TestInfo(t *testing.T) {
	s := newSample(t)
	inf := s.m.Info()
	if inf.Name != "Lib" || inf.Version != "1.2.3.4" || inf.Types != 5 || inf.Methods != 5 {
		t.Errorf("Info = %+v", inf)
	}
	if len(inf.References) != 1 {
		t.Errorf("References = %v", inf.References)
	}
}

func TestPublicKeyToken(t *testing.T) {
	if publicKeyToken(nil) != nil {
		t.Error("empty key should have no token")
	}
	tok := publicKeyToken([]byte{1, 2, 3})
	if len(tok) != 8 {
		t.Fatalf("len = %d", len(tok))
	}
}
