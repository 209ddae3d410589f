package metadata

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"cilscope/internal/cilfmt"
)

// Module is a loaded assembly manifest module. It implements Provider for
// tokens that do not need a method scope.
type Module struct {
	img     *Image
	t       *tables
	strs    stringHeap
	blobs   blobHeap
	us      userStringHeap
	guids   guidHeap
	name    string
	version Version
	culture string
	pubKey  []byte
	refs    []AssemblyRef

	fieldOwner  []uint32 // field rid -> TypeDef rid
	methodOwner []uint32 // method rid -> TypeDef rid
	enclosing   map[uint32]uint32
	interfaces  map[uint32][]uint32 // TypeDef rid -> TypeDefOrRef coded values
	attrs       map[uint32][]uint32 // HasCustomAttribute coded value -> CustomAttribute rows
	semantics   map[uint32][]uint32 // HasSemantics coded value -> MethodSemantics rows
	generics    map[uint32][]string // TypeOrMethodDef coded value -> parameter names
	propMap     map[uint32]uint32   // TypeDef rid -> PropertyMap row
	eventMap    map[uint32]uint32   // TypeDef rid -> EventMap row

	typeDefs    []*Type
	typeRefs    []*Type
	typeSpecs   []*Type
	specBusy    []bool
	fields      []*Field
	methods     []*Method
	memberRefs  []Member
	methodSpecs []*Method
	defs        []*TypeDef
}

// Open reads the assembly at path.
func Open(path string) (*Module, error) {
	img, err := OpenImage(path)
	if err != nil {
		return nil, err
	}
	m, err := Load(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse reads an assembly from memory.
func Parse(data []byte) (*Module, error) {
	img, err := ParseImage(data)
	if err != nil {
		return nil, err
	}
	return Load(img)
}

// Load decodes the metadata streams of img.
func Load(img *Image) (*Module, error) {
	raw, ok := img.Stream("#~")
	if !ok {
		raw, ok = img.Stream("#-")
	}
	if !ok {
		return nil, fmt.Errorf("%w: no tables stream", ErrBadMetadata)
	}
	t, err := parseTables(raw)
	if err != nil {
		return nil, err
	}
	m := &Module{img: img, t: t}
	if b, ok := img.Stream("#Strings"); ok {
		m.strs = stringHeap(b)
	}
	if b, ok := img.Stream("#Blob"); ok {
		m.blobs = blobHeap(b)
	}
	if b, ok := img.Stream("#US"); ok {
		m.us = userStringHeap(b)
	}
	if b, ok := img.Stream("#GUID"); ok {
		m.guids = guidHeap(b)
	}
	if err := m.index(); err != nil {
		return nil, err
	}
	return m, nil
}

// newModule wires a module around already decoded tables and heaps.
func newModule(t *tables, strs, blobs, us []byte) (*Module, error) {
	m := &Module{img: &Image{}, t: t, strs: strs, blobs: blobs, us: us}
	if err := m.index(); err != nil {
		return nil, err
	}
	return m, nil
}

// index builds the reverse maps the resolvers need and reads the manifest.
func (m *Module) index() error {
	t := m.t
	m.typeDefs = make([]*Type, t.rows[tabTypeDef]+1)
	m.typeRefs = make([]*Type, t.rows[tabTypeRef]+1)
	m.typeSpecs = make([]*Type, t.rows[tabTypeSpec]+1)
	m.specBusy = make([]bool, t.rows[tabTypeSpec]+1)
	m.fields = make([]*Field, t.rows[tabField]+1)
	m.methods = make([]*Method, t.rows[tabMethodDef]+1)
	m.memberRefs = make([]Member, t.rows[tabMemberRef]+1)
	m.methodSpecs = make([]*Method, t.rows[tabMethodSpec]+1)
	m.fieldOwner = make([]uint32, t.rows[tabField]+1)
	m.methodOwner = make([]uint32, t.rows[tabMethodDef]+1)

	for rid := uint32(1); rid <= t.rows[tabTypeDef]; rid++ {
		lo, hi := m.listRange(tabTypeDef, rid, 4, tabField, tabFieldPtr)
		for i := lo; i < hi; i++ {
			if f := m.deref(tabFieldPtr, i); t.has(tabField, f) {
				m.fieldOwner[f] = rid
			}
		}
		lo, hi = m.listRange(tabTypeDef, rid, 5, tabMethodDef, tabMethodPtr)
		for i := lo; i < hi; i++ {
			if md := m.deref(tabMethodPtr, i); t.has(tabMethodDef, md) {
				m.methodOwner[md] = rid
			}
		}
	}

	m.enclosing = make(map[uint32]uint32, t.rows[tabNestedClass])
	for rid := uint32(1); rid <= t.rows[tabNestedClass]; rid++ {
		m.enclosing[t.get(tabNestedClass, rid, 0)] = t.get(tabNestedClass, rid, 1)
	}
	m.interfaces = make(map[uint32][]uint32)
	for rid := uint32(1); rid <= t.rows[tabInterfaceImpl]; rid++ {
		cls := t.get(tabInterfaceImpl, rid, 0)
		m.interfaces[cls] = append(m.interfaces[cls], t.get(tabInterfaceImpl, rid, 1))
	}
	m.attrs = make(map[uint32][]uint32)
	for rid := uint32(1); rid <= t.rows[tabCustomAttribute]; rid++ {
		p := t.get(tabCustomAttribute, rid, 0)
		m.attrs[p] = append(m.attrs[p], rid)
	}
	m.semantics = make(map[uint32][]uint32)
	for rid := uint32(1); rid <= t.rows[tabMethodSemantics]; rid++ {
		a := t.get(tabMethodSemantics, rid, 2)
		m.semantics[a] = append(m.semantics[a], rid)
	}
	m.propMap = make(map[uint32]uint32)
	for rid := uint32(1); rid <= t.rows[tabPropertyMap]; rid++ {
		m.propMap[t.get(tabPropertyMap, rid, 0)] = rid
	}
	m.eventMap = make(map[uint32]uint32)
	for rid := uint32(1); rid <= t.rows[tabEventMap]; rid++ {
		m.eventMap[t.get(tabEventMap, rid, 0)] = rid
	}

	type gp struct {
		num  uint16
		name string
	}
	byOwner := make(map[uint32][]gp)
	for rid := uint32(1); rid <= t.rows[tabGenericParam]; rid++ {
		name, err := m.strs.get(t.get(tabGenericParam, rid, 3))
		if err != nil {
			return err
		}
		owner := t.get(tabGenericParam, rid, 2)
		byOwner[owner] = append(byOwner[owner], gp{uint16(t.get(tabGenericParam, rid, 0)), name})
	}
	m.generics = make(map[uint32][]string, len(byOwner))
	for owner, ps := range byOwner {
		sort.Slice(ps, func(i, j int) bool { return ps[i].num < ps[j].num })
		names := make([]string, len(ps))
		for i, p := range ps {
			names[i] = p.name
		}
		m.generics[owner] = names
	}

	return m.readManifest()
}

func (m *Module) readManifest() error {
	t := m.t
	var err error
	if t.rows[tabAssembly] > 0 {
		m.version = Version{
			Major:    uint16(t.get(tabAssembly, 1, 1)),
			Minor:    uint16(t.get(tabAssembly, 1, 2)),
			Build:    uint16(t.get(tabAssembly, 1, 3)),
			Revision: uint16(t.get(tabAssembly, 1, 4)),
		}
		if m.pubKey, err = m.blobs.get(t.get(tabAssembly, 1, 6)); err != nil {
			return err
		}
		if m.name, err = m.strs.get(t.get(tabAssembly, 1, 7)); err != nil {
			return err
		}
		if m.culture, err = m.strs.get(t.get(tabAssembly, 1, 8)); err != nil {
			return err
		}
	} else if t.rows[tabModule] > 0 {
		// Netmodule without a manifest: fall back to the module name.
		name, err := m.strs.get(t.get(tabModule, 1, 1))
		if err != nil {
			return err
		}
		m.name = strings.TrimSuffix(strings.TrimSuffix(name, ".dll"), ".netmodule")
	}

	m.refs = make([]AssemblyRef, 0, t.rows[tabAssemblyRef])
	for rid := uint32(1); rid <= t.rows[tabAssemblyRef]; rid++ {
		ref, err := m.assemblyRef(rid)
		if err != nil {
			return err
		}
		m.refs = append(m.refs, ref)
	}
	return nil
}

func (m *Module) assemblyRef(rid uint32) (AssemblyRef, error) {
	t := m.t
	ref := AssemblyRef{Version: Version{
		Major:    uint16(t.get(tabAssemblyRef, rid, 0)),
		Minor:    uint16(t.get(tabAssemblyRef, rid, 1)),
		Build:    uint16(t.get(tabAssemblyRef, rid, 2)),
		Revision: uint16(t.get(tabAssemblyRef, rid, 3)),
	}}
	key, err := m.blobs.get(t.get(tabAssemblyRef, rid, 5))
	if err != nil {
		return ref, err
	}
	if t.get(tabAssemblyRef, rid, 4)&assemblyFlagPublicKey != 0 {
		key = publicKeyToken(key)
	}
	ref.PublicKeyToken = key
	if ref.Name, err = m.strs.get(t.get(tabAssemblyRef, rid, 6)); err != nil {
		return ref, err
	}
	if ref.Culture, err = m.strs.get(t.get(tabAssemblyRef, rid, 7)); err != nil {
		return ref, err
	}
	return ref, nil
}

// Name returns the assembly's short name.
func (m *Module) Name() string { return m.name }

// Version returns the assembly version.
func (m *Module) Version() Version { return m.version }

// Path returns the file the module was read from, if any.
func (m *Module) Path() string { return m.img.Path }

// References lists the assemblies this module references.
func (m *Module) References() []AssemblyRef { return m.refs }

// IsSameAssembly reports whether asm names this module's assembly.
func (m *Module) IsSameAssembly(asm string) bool { return strings.EqualFold(asm, m.name) }

// listRange returns the [lo, hi) run a list column of row rid designates in
// the target table (or its Ptr indirection table when present).
func (m *Module) listRange(tab int, rid uint32, col int, target, ptr int) (uint32, uint32) {
	t := m.t
	n := t.rows[target]
	if t.rows[ptr] > 0 {
		n = t.rows[ptr]
	}
	lo := t.get(tab, rid, col)
	hi := n + 1
	if rid < t.rows[tab] {
		hi = t.get(tab, rid+1, col)
	}
	if hi > n+1 {
		hi = n + 1
	}
	if lo == 0 || lo > hi {
		lo = hi
	}
	return lo, hi
}

// deref follows a Ptr table when one is present.
func (m *Module) deref(ptr int, i uint32) uint32 {
	if m.t.rows[ptr] > 0 && m.t.has(ptr, i) {
		return m.t.get(ptr, i, 0)
	}
	return i
}

// encodeCoded builds the raw coded-index value for (tab, rid).
func encodeCoded(kind, tab int, rid uint32) uint32 {
	ci := codedIndexes[kind]
	for tag, tt := range ci.tables {
		if tt == tab {
			return rid<<ci.bits | uint32(tag)
		}
	}
	return 0
}

// rawTypeName reads namespace and name of a TypeDef or TypeRef row without
// building a Type.
func (m *Module) rawTypeName(tab int, rid uint32) (ns, name string) {
	if !m.t.has(tab, rid) {
		return "", ""
	}
	switch tab {
	case tabTypeDef:
		name, _ = m.strs.get(m.t.get(tabTypeDef, rid, 1))
		ns, _ = m.strs.get(m.t.get(tabTypeDef, rid, 2))
	case tabTypeRef:
		name, _ = m.strs.get(m.t.get(tabTypeRef, rid, 1))
		ns, _ = m.strs.get(m.t.get(tabTypeRef, rid, 2))
	}
	return ns, name
}

func rangeErr(tab int, rid uint32) error {
	return fmt.Errorf("%w: %s row %d", ErrTokenRange, tableNames[tab], rid)
}

// ResolveType resolves a TypeDef, TypeRef or TypeSpec token.
func (m *Module) ResolveType(tok cilfmt.Token) (*Type, error) {
	switch tok.Kind() {
	case cilfmt.KindTypeDef:
		return m.typeDef(tok.RID())
	case cilfmt.KindTypeRef:
		return m.typeRef(tok.RID())
	case cilfmt.KindTypeSpec:
		return m.typeSpec(tok.RID())
	}
	return nil, fmt.Errorf("%w: %s is not a type token", ErrWrongKind, tok)
}

func (m *Module) typeDef(rid uint32) (*Type, error) {
	if !m.t.has(tabTypeDef, rid) {
		return nil, rangeErr(tabTypeDef, rid)
	}
	if t := m.typeDefs[rid]; t != nil {
		return t, nil
	}
	ns, name := m.rawTypeName(tabTypeDef, rid)
	enc, nested := m.enclosing[rid]
	if !nested && ns == "System" {
		if e, ok := systemPrimitives[name]; ok {
			m.typeDefs[rid] = Primitive(e)
			return m.typeDefs[rid], nil
		}
	}
	t := &Type{
		Kind:      TypeNamed,
		Namespace: ns,
		Name:      name,
		Assembly:  m.name,
		Token:     tokenFor(tabTypeDef, rid),
		ValueType: m.extendsValueType(rid, ns, name),
	}
	m.typeDefs[rid] = t
	if nested {
		if d, err := m.typeDef(enc); err == nil && d != t {
			t.Declaring = d
		}
	}
	return t, nil
}

// extendsValueType reports whether TypeDef rid derives directly from
// System.ValueType or System.Enum. System.Enum itself is a class.
func (m *Module) extendsValueType(rid uint32, ns, name string) bool {
	ext := m.t.get(tabTypeDef, rid, 3)
	if ext == 0 {
		return false
	}
	tab, r, err := decodeCoded(cTypeDefOrRef, ext)
	if err != nil || tab == tabTypeSpec {
		return false
	}
	bns, bname := m.rawTypeName(tab, r)
	if bns != "System" || (bname != "ValueType" && bname != "Enum") {
		return false
	}
	return !(ns == "System" && name == "Enum")
}

func (m *Module) typeRef(rid uint32) (*Type, error) {
	if !m.t.has(tabTypeRef, rid) {
		return nil, rangeErr(tabTypeRef, rid)
	}
	if t := m.typeRefs[rid]; t != nil {
		return t, nil
	}
	ns, name := m.rawTypeName(tabTypeRef, rid)
	scope := m.t.get(tabTypeRef, rid, 0)
	t := &Type{
		Kind:      TypeNamed,
		Namespace: ns,
		Name:      name,
		Assembly:  m.name,
		Token:     tokenFor(tabTypeRef, rid),
	}
	if scope == 0 {
		m.typeRefs[rid] = t
		return t, nil
	}
	stab, srid, err := decodeCoded(cResolutionScope, scope)
	if err != nil {
		return nil, fmt.Errorf("TypeRef %d: %w", rid, err)
	}
	if stab != tabTypeRef && ns == "System" {
		if e, ok := systemPrimitives[name]; ok {
			m.typeRefs[rid] = Primitive(e)
			return m.typeRefs[rid], nil
		}
	}
	m.typeRefs[rid] = t
	switch stab {
	case tabAssemblyRef:
		if int(srid) >= 1 && int(srid) <= len(m.refs) {
			t.Assembly = m.refs[srid-1].Name
		}
	case tabTypeRef:
		if srid != rid {
			if d, err := m.typeRef(srid); err == nil {
				t.Declaring = d
				t.Assembly = d.Assembly
			}
		}
	}
	return t, nil
}

func (m *Module) typeSpec(rid uint32) (*Type, error) {
	if !m.t.has(tabTypeSpec, rid) {
		return nil, rangeErr(tabTypeSpec, rid)
	}
	if t := m.typeSpecs[rid]; t != nil {
		return t, nil
	}
	if m.specBusy[rid] {
		return nil, fmt.Errorf("%w: TypeSpec %d refers to itself", ErrBadSignature, rid)
	}
	m.specBusy[rid] = true
	defer func() { m.specBusy[rid] = false }()

	b, err := m.blobs.get(m.t.get(tabTypeSpec, rid, 0))
	if err != nil {
		return nil, err
	}
	t, err := DecodeType(cilfmt.NewStream(b), m)
	if err != nil {
		return nil, fmt.Errorf("TypeSpec %d: %w", rid, err)
	}
	m.typeSpecs[rid] = t
	return t, nil
}

func (m *Module) resolveCoded(kind int, v uint32) (*Type, error) {
	tab, rid, err := decodeCoded(kind, v)
	if err != nil {
		return nil, err
	}
	return m.ResolveType(tokenFor(tab, rid))
}

// ResolveField resolves a FieldDef token or a MemberRef naming a field.
func (m *Module) ResolveField(tok cilfmt.Token) (*Field, error) {
	switch tok.Kind() {
	case cilfmt.KindFieldDef:
		return m.field(tok.RID())
	case cilfmt.KindMemberRef:
		mem, err := m.memberRef(tok.RID())
		if err != nil {
			return nil, err
		}
		if f, ok := mem.(*Field); ok {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not a field", ErrWrongKind, tok)
}

func (m *Module) field(rid uint32) (*Field, error) {
	if !m.t.has(tabField, rid) {
		return nil, rangeErr(tabField, rid)
	}
	if f := m.fields[rid]; f != nil {
		return f, nil
	}
	name, err := m.strs.get(m.t.get(tabField, rid, 1))
	if err != nil {
		return nil, err
	}
	b, err := m.blobs.get(m.t.get(tabField, rid, 2))
	if err != nil {
		return nil, err
	}
	ft, err := DecodeFieldSig(b, m)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", name, err)
	}
	f := &Field{
		Token: tokenFor(tabField, rid),
		Name:  name,
		Type:  ft,
		Flags: uint16(m.t.get(tabField, rid, 0)),
	}
	if owner := m.fieldOwner[rid]; owner != 0 {
		f.Declaring, _ = m.typeDef(owner)
	}
	m.fields[rid] = f
	return f, nil
}

// ResolveMethod resolves a MethodDef, MethodSpec, or MemberRef naming a method.
func (m *Module) ResolveMethod(tok cilfmt.Token) (*Method, error) {
	switch tok.Kind() {
	case cilfmt.KindMethodDef:
		return m.method(tok.RID())
	case cilfmt.KindMethodSpec:
		return m.methodSpec(tok.RID())
	case cilfmt.KindMemberRef:
		mem, err := m.memberRef(tok.RID())
		if err != nil {
			return nil, err
		}
		if md, ok := mem.(*Method); ok {
			return md, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not a method", ErrWrongKind, tok)
}

func (m *Module) method(rid uint32) (*Method, error) {
	if !m.t.has(tabMethodDef, rid) {
		return nil, rangeErr(tabMethodDef, rid)
	}
	if md := m.methods[rid]; md != nil {
		return md, nil
	}
	t := m.t
	name, err := m.strs.get(t.get(tabMethodDef, rid, 3))
	if err != nil {
		return nil, err
	}
	b, err := m.blobs.get(t.get(tabMethodDef, rid, 4))
	if err != nil {
		return nil, err
	}
	sig, err := DecodeMethodSig(b, m)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", name, err)
	}
	md := &Method{
		Token:         tokenFor(tabMethodDef, rid),
		Name:          name,
		Sig:           sig,
		RVA:           t.get(tabMethodDef, rid, 0),
		ImplFlags:     uint16(t.get(tabMethodDef, rid, 1)),
		Flags:         uint16(t.get(tabMethodDef, rid, 2)),
		ParamNames:    make([]string, sig.ParamCount()),
		GenericParams: m.generics[encodeCoded(cTypeOrMethodDef, tabMethodDef, rid)],
	}
	lo, hi := m.listRange(tabMethodDef, rid, 5, tabParam, tabParamPtr)
	for i := lo; i < hi; i++ {
		p := m.deref(tabParamPtr, i)
		if !t.has(tabParam, p) {
			continue
		}
		seq := int(t.get(tabParam, p, 1))
		if seq >= 1 && seq <= len(md.ParamNames) {
			md.ParamNames[seq-1], _ = m.strs.get(t.get(tabParam, p, 2))
		}
	}
	if owner := m.methodOwner[rid]; owner != 0 {
		md.Declaring, _ = m.typeDef(owner)
	}
	m.methods[rid] = md
	return md, nil
}

func (m *Module) memberRef(rid uint32) (Member, error) {
	if !m.t.has(tabMemberRef, rid) {
		return nil, rangeErr(tabMemberRef, rid)
	}
	if mem := m.memberRefs[rid]; mem != nil {
		return mem, nil
	}
	t := m.t
	name, err := m.strs.get(t.get(tabMemberRef, rid, 1))
	if err != nil {
		return nil, err
	}
	b, err := m.blobs.get(t.get(tabMemberRef, rid, 2))
	if err != nil {
		return nil, err
	}
	ptab, prid, err := decodeCoded(cMemberRefParent, t.get(tabMemberRef, rid, 0))
	if err != nil {
		return nil, err
	}
	var decl *Type
	switch ptab {
	case tabTypeDef, tabTypeRef, tabTypeSpec:
		if decl, err = m.ResolveType(tokenFor(ptab, prid)); err != nil {
			return nil, fmt.Errorf("member %s: parent: %w", name, err)
		}
	case tabMethodDef:
		md, err := m.method(prid)
		if err != nil {
			return nil, fmt.Errorf("member %s: parent: %w", name, err)
		}
		decl = md.Declaring
	}

	tok := tokenFor(tabMemberRef, rid)
	var mem Member
	if IsFieldSig(b) {
		ft, err := DecodeFieldSig(b, m)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", name, err)
		}
		mem = &Field{Token: tok, Name: name, Type: ft, Declaring: decl}
	} else {
		sig, err := DecodeMethodSig(b, m)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", name, err)
		}
		mem = &Method{Token: tok, Name: name, Sig: sig, Declaring: decl}
	}
	m.memberRefs[rid] = mem
	return mem, nil
}

func (m *Module) methodSpec(rid uint32) (*Method, error) {
	if !m.t.has(tabMethodSpec, rid) {
		return nil, rangeErr(tabMethodSpec, rid)
	}
	if md := m.methodSpecs[rid]; md != nil {
		return md, nil
	}
	tab, r, err := decodeCoded(cMethodDefOrRef, m.t.get(tabMethodSpec, rid, 0))
	if err != nil {
		return nil, err
	}
	base, err := m.ResolveMethod(tokenFor(tab, r))
	if err != nil {
		return nil, fmt.Errorf("MethodSpec %d: %w", rid, err)
	}
	b, err := m.blobs.get(m.t.get(tabMethodSpec, rid, 1))
	if err != nil {
		return nil, err
	}
	args, err := DecodeMethodSpec(b, m)
	if err != nil {
		return nil, fmt.Errorf("MethodSpec %d: %w", rid, err)
	}
	inst := *base
	inst.Token = tokenFor(tabMethodSpec, rid)
	inst.GenericArgs = args
	m.methodSpecs[rid] = &inst
	return &inst, nil
}

// ResolveMember resolves any type, method, field, or MemberRef token.
func (m *Module) ResolveMember(tok cilfmt.Token) (Member, error) {
	switch tok.Kind() {
	case cilfmt.KindTypeDef, cilfmt.KindTypeRef, cilfmt.KindTypeSpec:
		return m.ResolveType(tok)
	case cilfmt.KindMethodDef, cilfmt.KindMethodSpec:
		return m.ResolveMethod(tok)
	case cilfmt.KindFieldDef:
		return m.field(tok.RID())
	case cilfmt.KindMemberRef:
		return m.memberRef(tok.RID())
	}
	return nil, fmt.Errorf("%w: %s is not a member", ErrWrongKind, tok)
}

// ResolveString returns the user string a String token designates.
func (m *Module) ResolveString(tok cilfmt.Token) (string, error) {
	if tok.Kind() != cilfmt.KindString {
		return "", fmt.Errorf("%w: %s is not a string", ErrWrongKind, tok)
	}
	return m.us.get(tok.RID())
}

// ResolveSignature returns the blob of a StandAloneSig token.
func (m *Module) ResolveSignature(tok cilfmt.Token) ([]byte, error) {
	if tok.Kind() != cilfmt.KindSignature {
		return nil, fmt.Errorf("%w: %s is not a signature", ErrWrongKind, tok)
	}
	if !m.t.has(tabStandAloneSig, tok.RID()) {
		return nil, rangeErr(tabStandAloneSig, tok.RID())
	}
	return m.blobs.get(m.t.get(tabStandAloneSig, tok.RID(), 0))
}

// ResolveLocal needs a method scope; see Scope.
func (m *Module) ResolveLocal(int) (*Local, error) { return nil, ErrNoScope }

// ResolveParam needs a method scope; see Scope.
func (m *Module) ResolveParam(int) (*Param, error) { return nil, ErrNoScope }

// Types returns descriptors for every TypeDef row, including <Module>.
// Rows whose members fail to decode are still returned; their errors are
// joined into the result error.
func (m *Module) Types() ([]*TypeDef, error) {
	n := m.t.rows[tabTypeDef]
	if m.defs != nil {
		return m.defs, nil
	}
	defs := make([]*TypeDef, 0, n)
	var errs []error
	for rid := uint32(1); rid <= n; rid++ {
		d, err := m.typeDefinition(rid)
		if err != nil {
			errs = append(errs, err)
		}
		if d != nil {
			defs = append(defs, d)
		}
	}
	m.defs = defs
	return defs, errors.Join(errs...)
}

// TypeDef returns the descriptor for one TypeDef token.
func (m *Module) TypeDef(tok cilfmt.Token) (*TypeDef, error) {
	if tok.Kind() != cilfmt.KindTypeDef {
		return nil, fmt.Errorf("%w: %s is not a TypeDef", ErrWrongKind, tok)
	}
	return m.typeDefinition(tok.RID())
}

func (m *Module) typeDefinition(rid uint32) (*TypeDef, error) {
	t, err := m.typeDef(rid)
	if err != nil {
		return nil, err
	}
	tt := m.t
	d := &TypeDef{
		Token:         tokenFor(tabTypeDef, rid),
		Type:          t,
		Flags:         tt.get(tabTypeDef, rid, 0),
		GenericParams: m.generics[encodeCoded(cTypeOrMethodDef, tabTypeDef, rid)],
	}
	var errs []error
	if ext := tt.get(tabTypeDef, rid, 3); ext != 0 {
		if d.Base, err = m.resolveCoded(cTypeDefOrRef, ext); err != nil {
			errs = append(errs, fmt.Errorf("base: %w", err))
		}
	}
	for _, v := range m.interfaces[rid] {
		it, err := m.resolveCoded(cTypeDefOrRef, v)
		if err != nil {
			errs = append(errs, fmt.Errorf("interface: %w", err))
			continue
		}
		d.Interfaces = append(d.Interfaces, it)
	}
	for cur, seen := rid, 0; cur != 0 && seen < 64; cur, seen = m.enclosing[cur], seen+1 {
		if m.hasGeneratedAttr(cur) {
			d.CompilerGenerated = true
			break
		}
	}

	lo, hi := m.listRange(tabTypeDef, rid, 4, tabField, tabFieldPtr)
	for i := lo; i < hi; i++ {
		f, err := m.field(m.deref(tabFieldPtr, i))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		d.Fields = append(d.Fields, f)
	}
	lo, hi = m.listRange(tabTypeDef, rid, 5, tabMethodDef, tabMethodPtr)
	for i := lo; i < hi; i++ {
		md, err := m.method(m.deref(tabMethodPtr, i))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		d.Methods = append(d.Methods, md)
	}
	if pm, ok := m.propMap[rid]; ok {
		lo, hi := m.listRange(tabPropertyMap, pm, 1, tabProperty, tabPropertyPtr)
		for i := lo; i < hi; i++ {
			p, err := m.property(m.deref(tabPropertyPtr, i), t)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			d.Properties = append(d.Properties, p)
		}
	}
	if em, ok := m.eventMap[rid]; ok {
		lo, hi := m.listRange(tabEventMap, em, 1, tabEvent, tabEventPtr)
		for i := lo; i < hi; i++ {
			e, err := m.event(m.deref(tabEventPtr, i), t)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			d.Events = append(d.Events, e)
		}
	}
	if len(errs) > 0 {
		return d, fmt.Errorf("type %s: %w", t.FullName(), errors.Join(errs...))
	}
	return d, nil
}

// accessors returns the methods bound to a property or event.
func (m *Module) accessors(tab int, rid uint32) []*Method {
	var out []*Method
	for _, row := range m.semantics[encodeCoded(cHasSemantics, tab, rid)] {
		if md, err := m.method(m.t.get(tabMethodSemantics, row, 1)); err == nil {
			out = append(out, md)
		}
	}
	return out
}

func (m *Module) property(rid uint32, decl *Type) (*Property, error) {
	if !m.t.has(tabProperty, rid) {
		return nil, rangeErr(tabProperty, rid)
	}
	name, err := m.strs.get(m.t.get(tabProperty, rid, 1))
	if err != nil {
		return nil, err
	}
	b, err := m.blobs.get(m.t.get(tabProperty, rid, 2))
	if err != nil {
		return nil, err
	}
	pt, instance, err := DecodePropertySig(b, m)
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", name, err)
	}
	p := &Property{Name: name, Type: pt, Declaring: decl, Static: !instance}
	for _, acc := range m.accessors(tabProperty, rid) {
		if acc.IsPublic() {
			p.Public = true
		}
	}
	return p, nil
}

func (m *Module) event(rid uint32, decl *Type) (*Event, error) {
	if !m.t.has(tabEvent, rid) {
		return nil, rangeErr(tabEvent, rid)
	}
	name, err := m.strs.get(m.t.get(tabEvent, rid, 1))
	if err != nil {
		return nil, err
	}
	e := &Event{Name: name, Declaring: decl}
	if v := m.t.get(tabEvent, rid, 2); v != 0 {
		if e.Type, err = m.resolveCoded(cTypeDefOrRef, v); err != nil {
			return nil, fmt.Errorf("event %s: %w", name, err)
		}
	}
	for _, acc := range m.accessors(tabEvent, rid) {
		if acc.IsPublic() {
			e.Public = true
		}
		if acc.IsStatic() {
			e.Static = true
		}
	}
	return e, nil
}

// Methods returns every MethodDef of the module in table order.
func (m *Module) Methods() ([]*Method, error) {
	out := make([]*Method, 0, m.t.rows[tabMethodDef])
	var errs []error
	for rid := uint32(1); rid <= m.t.rows[tabMethodDef]; rid++ {
		md, err := m.method(rid)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, md)
	}
	return out, errors.Join(errs...)
}

// RowCount returns the number of rows in the table a token kind names.
func (m *Module) RowCount(k cilfmt.Kind) int {
	if int(k) >= numTables {
		return 0
	}
	return m.t.rowCount(int(k))
}
