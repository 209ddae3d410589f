package metadata

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"cilscope/internal/cilfmt"
)

// fixture assembles metadata tables and heaps in memory.
type fixture struct {
	rows  [numTables][][]uint32
	strs  []byte
	blobs []byte
	us    []byte
	sidx  map[string]uint32
}

func newFixture() *fixture {
	return &fixture{strs: []byte{0}, blobs: []byte{0}, us: []byte{0}, sidx: map[string]uint32{"": 0}}
}

func (f *fixture) str(s string) uint32 {
	if off, ok := f.sidx[s]; ok {
		return off
	}
	off := uint32(len(f.strs))
	f.strs = append(append(f.strs, s...), 0)
	f.sidx[s] = off
	return off
}

func (f *fixture) blob(b ...byte) uint32 {
	off := uint32(len(f.blobs))
	f.blobs, _ = cilfmt.AppendCompressedUint32(f.blobs, uint32(len(b)))
	f.blobs = append(f.blobs, b...)
	return off
}

func (f *fixture) userString(s string) cilfmt.Token {
	off := uint32(len(f.us))
	units := utf16.Encode([]rune(s))
	f.us, _ = cilfmt.AppendCompressedUint32(f.us, uint32(len(units)*2+1))
	for _, u := range units {
		f.us = binary.LittleEndian.AppendUint16(f.us, u)
	}
	f.us = append(f.us, 0)
	return cilfmt.MakeToken(cilfmt.KindString, off)
}

// add appends a row and returns its rid.
func (f *fixture) add(tab int, cols ...uint32) uint32 {
	if len(cols) != len(schemas[tab]) {
		panic("fixture: wrong column count for " + tableNames[tab])
	}
	f.rows[tab] = append(f.rows[tab], cols)
	return uint32(len(f.rows[tab]))
}

func (f *fixture) tables() *tables {
	t := &tables{}
	for tab, rows := range f.rows {
		t.rows[tab] = uint32(len(rows))
		t.ncols[tab] = len(schemas[tab])
		for _, r := range rows {
			t.cells[tab] = append(t.cells[tab], r...)
		}
	}
	return t
}

func (f *fixture) module(t *testing.T) *Module {
	t.Helper()
	m, err := newModule(f.tables(), f.strs, f.blobs, f.us)
	if err != nil {
		t.Fatalf("newModule: %v", err)
	}
	return m
}

func cidx(kind, tab int, rid uint32) uint32 { return encodeCoded(kind, tab, rid) }

// sample builds a small assembly "Lib" referencing mscorlib:
//
//	TypeDef 1  <Module>
//	TypeDef 2  public class Demo.Widget : IDisposable  { int32 count; Run(int32 n, string label); .ctor() }
//	TypeDef 3  public struct Demo.Point                { int32 X; }
//	TypeDef 4  Demo.Widget+Inner                       [CompilerGenerated]
//	TypeDef 5  public class Demo.Box`1<T>              { T Get(); property T Value; }
//	TypeSpec 1 List<int32>
//	MemberRef 1 System.Console::WriteLine(string), 2 Demo.Point::X, 3 CompilerGeneratedAttribute::.ctor
//	MethodSpec 1 Widget::Pick<string>
type sample struct {
	f *fixture
	m *Module

	hello cilfmt.Token
}

func newSample(t *testing.T) *sample {
	t.Helper()
	f := newFixture()
	s := &sample{f: f}

	f.add(tabModule, 0, f.str("Lib.dll"), 0, 0, 0)
	f.add(tabAssembly, 0x8004, 1, 2, 3, 4, 0, 0, f.str("Lib"), 0)
	corlib := f.add(tabAssemblyRef, 4, 0, 0, 0, 0,
		f.blob(0xb7, 0x7a, 0x5c, 0x56, 0x19, 0x34, 0xe0, 0x89), f.str("mscorlib"), 0, 0)

	scope := cidx(cResolutionScope, tabAssemblyRef, corlib)
	object := f.add(tabTypeRef, scope, f.str("Object"), f.str("System"))
	valueType := f.add(tabTypeRef, scope, f.str("ValueType"), f.str("System"))
	list := f.add(tabTypeRef, scope, f.str("List`1"), f.str("System.Collections.Generic"))
	console := f.add(tabTypeRef, scope, f.str("Console"), f.str("System"))
	generated := f.add(tabTypeRef, scope, f.str("CompilerGeneratedAttribute"), f.str("System.Runtime.CompilerServices"))
	disposable := f.add(tabTypeRef, scope, f.str("IDisposable"), f.str("System"))

	extObject := cidx(cTypeDefOrRef, tabTypeRef, object)
	f.add(tabTypeDef, 0, f.str("<Module>"), 0, 0, 1, 1)
	widget := f.add(tabTypeDef, TypePublic, f.str("Widget"), f.str("Demo"), extObject, 1, 1)
	point := f.add(tabTypeDef, TypePublic|TypeSealed, f.str("Point"), f.str("Demo"),
		cidx(cTypeDefOrRef, tabTypeRef, valueType), 2, 4)
	inner := f.add(tabTypeDef, TypeNestedPublic, f.str("Inner"), 0, extObject, 3, 4)
	box := f.add(tabTypeDef, TypePublic, f.str("Box`1"), f.str("Demo"), extObject, 3, 4)

	f.add(tabField, FieldPublic, f.str("count"), f.blob(0x06, 0x08))
	f.add(tabField, FieldPublic, f.str("X"), f.blob(0x06, 0x08))

	// Widget::Run(int32 n, string label), Widget::.ctor(), Widget::Pick<T>(), Box`1::Get(), Box`1::get_Value()
	f.add(tabMethodDef, 0, 0, MethodPublic, f.str("Run"), f.blob(0x20, 0x02, 0x01, 0x08, 0x0e), 1)
	f.add(tabMethodDef, 0, 0, MethodPublic|MethodSpecialName, f.str(".ctor"), f.blob(0x20, 0x00, 0x01), 3)
	pick := f.add(tabMethodDef, 0, 0, MethodPublic|MethodStatic, f.str("Pick"), f.blob(0x10, 0x01, 0x00, 0x1e, 0x00), 3)
	f.add(tabMethodDef, 0, 0, MethodPublic, f.str("Get"), f.blob(0x20, 0x00, 0x13, 0x00), 3)
	getValue := f.add(tabMethodDef, 0, 0, MethodPublic|MethodSpecialName, f.str("get_Value"), f.blob(0x20, 0x00, 0x13, 0x00), 3)
	f.add(tabParam, 0, 1, f.str("n"))
	f.add(tabParam, 0, 2, f.str("label"))

	f.add(tabNestedClass, inner, widget)
	f.add(tabInterfaceImpl, widget, cidx(cTypeDefOrRef, tabTypeRef, disposable))
	f.add(tabGenericParam, 0, 0, cidx(cTypeOrMethodDef, tabTypeDef, box), f.str("T"))
	f.add(tabGenericParam, 0, 0, cidx(cTypeOrMethodDef, tabMethodDef, pick), f.str("U"))

	f.add(tabMemberRef, cidx(cMemberRefParent, tabTypeRef, console), f.str("WriteLine"), f.blob(0x00, 0x01, 0x01, 0x0e))
	f.add(tabMemberRef, cidx(cMemberRefParent, tabTypeDef, point), f.str("X"), f.blob(0x06, 0x08))
	ctor := f.add(tabMemberRef, cidx(cMemberRefParent, tabTypeRef, generated), f.str(".ctor"), f.blob(0x20, 0x00, 0x01))
	f.add(tabCustomAttribute, cidx(cHasCustomAttribute, tabTypeDef, inner), cidx(cCustomAttributeType, tabMemberRef, ctor), 0)

	f.add(tabTypeSpec, f.blob(0x15, 0x12, byte(cidx(cTypeDefOrRef, tabTypeRef, list)), 0x01, 0x08))
	f.add(tabMethodSpec, cidx(cMethodDefOrRef, tabMethodDef, pick), f.blob(0x0a, 0x01, 0x0e))
	f.add(tabStandAloneSig, f.blob(0x07, 0x02, 0x08, 0x45, 0x0e))

	prop := f.add(tabProperty, 0, f.str("Value"), f.blob(0x28, 0x00, 0x13, 0x00))
	f.add(tabPropertyMap, box, prop)
	f.add(tabMethodSemantics, 0x0002, getValue, cidx(cHasSemantics, tabProperty, prop))

	s.hello = f.userString("hello")
	s.m = f.module(t)
	return s
}

func tok(tab int, rid uint32) cilfmt.Token { return tokenFor(tab, rid) }
