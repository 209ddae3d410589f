package metadata

import (
	"fmt"

	"cilscope/internal/cilfmt"
)

// Table ids (II.22).
const (
	tabModule                 = 0x00
	tabTypeRef                = 0x01
	tabTypeDef                = 0x02
	tabFieldPtr               = 0x03
	tabField                  = 0x04
	tabMethodPtr              = 0x05
	tabMethodDef              = 0x06
	tabParamPtr               = 0x07
	tabParam                  = 0x08
	tabInterfaceImpl          = 0x09
	tabMemberRef              = 0x0A
	tabConstant               = 0x0B
	tabCustomAttribute        = 0x0C
	tabFieldMarshal           = 0x0D
	tabDeclSecurity           = 0x0E
	tabClassLayout            = 0x0F
	tabFieldLayout            = 0x10
	tabStandAloneSig          = 0x11
	tabEventMap               = 0x12
	tabEventPtr               = 0x13
	tabEvent                  = 0x14
	tabPropertyMap            = 0x15
	tabPropertyPtr            = 0x16
	tabProperty               = 0x17
	tabMethodSemantics        = 0x18
	tabMethodImpl             = 0x19
	tabModuleRef              = 0x1A
	tabTypeSpec               = 0x1B
	tabImplMap                = 0x1C
	tabFieldRVA               = 0x1D
	tabEncLog                 = 0x1E
	tabEncMap                 = 0x1F
	tabAssembly               = 0x20
	tabAssemblyProcessor      = 0x21
	tabAssemblyOS             = 0x22
	tabAssemblyRef            = 0x23
	tabAssemblyRefProcessor   = 0x24
	tabAssemblyRefOS          = 0x25
	tabFile                   = 0x26
	tabExportedType           = 0x27
	tabManifestResource       = 0x28
	tabNestedClass            = 0x29
	tabGenericParam           = 0x2A
	tabMethodSpec             = 0x2B
	tabGenericParamConstraint = 0x2C
	numTables                 = 0x2D
)

// Coded index kinds (II.24.2.6).
const (
	cTypeDefOrRef = iota
	cHasConstant
	cHasCustomAttribute
	cHasFieldMarshal
	cHasDeclSecurity
	cMemberRefParent
	cHasSemantics
	cMethodDefOrRef
	cMemberForwarded
	cImplementation
	cCustomAttributeType
	cResolutionScope
	cTypeOrMethodDef
)

const unused = -1

type codedIndex struct {
	bits   uint
	tables []int
}

var codedIndexes = [...]codedIndex{
	cTypeDefOrRef:        {2, []int{tabTypeDef, tabTypeRef, tabTypeSpec}},
	cHasConstant:         {2, []int{tabField, tabParam, tabProperty}},
	cHasCustomAttribute:  {5, []int{tabMethodDef, tabField, tabTypeRef, tabTypeDef, tabParam, tabInterfaceImpl, tabMemberRef, tabModule, tabDeclSecurity, tabProperty, tabEvent, tabStandAloneSig, tabModuleRef, tabTypeSpec, tabAssembly, tabAssemblyRef, tabFile, tabExportedType, tabManifestResource, tabGenericParam, tabGenericParamConstraint, tabMethodSpec}},
	cHasFieldMarshal:     {1, []int{tabField, tabParam}},
	cHasDeclSecurity:     {2, []int{tabTypeDef, tabMethodDef, tabAssembly}},
	cMemberRefParent:     {3, []int{tabTypeDef, tabTypeRef, tabModuleRef, tabMethodDef, tabTypeSpec}},
	cHasSemantics:        {1, []int{tabEvent, tabProperty}},
	cMethodDefOrRef:      {1, []int{tabMethodDef, tabMemberRef}},
	cMemberForwarded:     {1, []int{tabField, tabMethodDef}},
	cImplementation:      {2, []int{tabFile, tabAssemblyRef, tabExportedType}},
	cCustomAttributeType: {3, []int{unused, unused, tabMethodDef, tabMemberRef, unused}},
	cResolutionScope:     {2, []int{tabModule, tabModuleRef, tabAssemblyRef, tabTypeRef}},
	cTypeOrMethodDef:     {1, []int{tabTypeDef, tabMethodDef}},
}

type colKind uint8

const (
	colU16 colKind = iota
	colU32
	colString
	colGUID
	colBlob
	colIndex // simple index into another table
	colCoded
)

type column struct {
	kind colKind
	ref  int // table id for colIndex, coded kind for colCoded
}

var (
	u16  = column{kind: colU16}
	u32  = column{kind: colU32}
	str  = column{kind: colString}
	guid = column{kind: colGUID}
	blob = column{kind: colBlob}
)

func idx(t int) column   { return column{kind: colIndex, ref: t} }
func coded(c int) column { return column{kind: colCoded, ref: c} }

// schemas lists every table's columns in physical order (II.22.2-39).
var schemas = [numTables][]column{
	tabModule:                 {u16, str, guid, guid, guid},
	tabTypeRef:                {coded(cResolutionScope), str, str},
	tabTypeDef:                {u32, str, str, coded(cTypeDefOrRef), idx(tabField), idx(tabMethodDef)},
	tabFieldPtr:               {idx(tabField)},
	tabField:                  {u16, str, blob},
	tabMethodPtr:              {idx(tabMethodDef)},
	tabMethodDef:              {u32, u16, u16, str, blob, idx(tabParam)},
	tabParamPtr:               {idx(tabParam)},
	tabParam:                  {u16, u16, str},
	tabInterfaceImpl:          {idx(tabTypeDef), coded(cTypeDefOrRef)},
	tabMemberRef:              {coded(cMemberRefParent), str, blob},
	tabConstant:               {u16, coded(cHasConstant), blob},
	tabCustomAttribute:        {coded(cHasCustomAttribute), coded(cCustomAttributeType), blob},
	tabFieldMarshal:           {coded(cHasFieldMarshal), blob},
	tabDeclSecurity:           {u16, coded(cHasDeclSecurity), blob},
	tabClassLayout:            {u16, u32, idx(tabTypeDef)},
	tabFieldLayout:            {u32, idx(tabField)},
	tabStandAloneSig:          {blob},
	tabEventMap:               {idx(tabTypeDef), idx(tabEvent)},
	tabEventPtr:               {idx(tabEvent)},
	tabEvent:                  {u16, str, coded(cTypeDefOrRef)},
	tabPropertyMap:            {idx(tabTypeDef), idx(tabProperty)},
	tabPropertyPtr:            {idx(tabProperty)},
	tabProperty:               {u16, str, blob},
	tabMethodSemantics:        {u16, idx(tabMethodDef), coded(cHasSemantics)},
	tabMethodImpl:             {idx(tabTypeDef), coded(cMethodDefOrRef), coded(cMethodDefOrRef)},
	tabModuleRef:              {str},
	tabTypeSpec:               {blob},
	tabImplMap:                {u16, coded(cMemberForwarded), str, idx(tabModuleRef)},
	tabFieldRVA:               {u32, idx(tabField)},
	tabEncLog:                 {u32, u32},
	tabEncMap:                 {u32},
	tabAssembly:               {u32, u16, u16, u16, u16, u32, blob, str, str},
	tabAssemblyProcessor:      {u32},
	tabAssemblyOS:             {u32, u32, u32},
	tabAssemblyRef:            {u16, u16, u16, u16, u32, blob, str, str, blob},
	tabAssemblyRefProcessor:   {u32, idx(tabAssemblyRef)},
	tabAssemblyRefOS:          {u32, u32, u32, idx(tabAssemblyRef)},
	tabFile:                   {u32, str, blob},
	tabExportedType:           {u32, u32, str, str, coded(cImplementation)},
	tabManifestResource:       {u32, u32, str, coded(cImplementation)},
	tabNestedClass:            {idx(tabTypeDef), idx(tabTypeDef)},
	tabGenericParam:           {u16, u16, coded(cTypeOrMethodDef), str},
	tabMethodSpec:             {coded(cMethodDefOrRef), blob},
	tabGenericParamConstraint: {idx(tabGenericParam), coded(cTypeDefOrRef)},
}

var tableNames = [numTables]string{
	"Module", "TypeRef", "TypeDef", "FieldPtr", "Field", "MethodPtr", "MethodDef", "ParamPtr",
	"Param", "InterfaceImpl", "MemberRef", "Constant", "CustomAttribute", "FieldMarshal",
	"DeclSecurity", "ClassLayout", "FieldLayout", "StandAloneSig", "EventMap", "EventPtr",
	"Event", "PropertyMap", "PropertyPtr", "Property", "MethodSemantics", "MethodImpl",
	"ModuleRef", "TypeSpec", "ImplMap", "FieldRVA", "EncLog", "EncMap", "Assembly",
	"AssemblyProcessor", "AssemblyOS", "AssemblyRef", "AssemblyRefProcessor", "AssemblyRefOS",
	"File", "ExportedType", "ManifestResource", "NestedClass", "GenericParam", "MethodSpec",
	"GenericParamConstraint",
}

// Heap size flags in the #~ header.
const (
	heapStringsWide = 0x01
	heapGUIDWide    = 0x02
	heapBlobWide    = 0x04
	heapExtraData   = 0x40
)

// tables holds every row of every table, decoded to column values.
type tables struct {
	rows  [numTables]uint32
	ncols [numTables]int
	cells [numTables][]uint32
}

// parseTables decodes a #~ (or uncompressed #-) stream (II.24.2.6).
func parseTables(data []byte) (*tables, error) {
	s := cilfmt.NewStream(data)
	if err := s.Skip(6); err != nil { // reserved, major, minor
		return nil, fmt.Errorf("%w: tables header: %v", ErrBadMetadata, err)
	}
	heapSizes, err := s.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: tables header: %v", ErrBadMetadata, err)
	}
	if err := s.Skip(1); err != nil {
		return nil, fmt.Errorf("%w: tables header: %v", ErrBadMetadata, err)
	}
	valid, err := s.ReadUint64()
	if err != nil {
		return nil, fmt.Errorf("%w: tables header: %v", ErrBadMetadata, err)
	}
	if _, err := s.ReadUint64(); err != nil { // sorted
		return nil, fmt.Errorf("%w: tables header: %v", ErrBadMetadata, err)
	}
	if valid>>numTables != 0 {
		return nil, fmt.Errorf("%w: present-table mask 0x%x", ErrUnsupported, valid)
	}

	t := &tables{}
	for i := 0; i < numTables; i++ {
		if valid&(1<<i) == 0 {
			continue
		}
		n, err := s.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: row counts: %v", ErrBadMetadata, err)
		}
		t.rows[i] = n
	}
	if heapSizes&heapExtraData != 0 {
		if err := s.Skip(4); err != nil {
			return nil, fmt.Errorf("%w: tables header: %v", ErrBadMetadata, err)
		}
	}

	widths := t.columnWidths(heapSizes)
	for i := 0; i < numTables; i++ {
		n := t.rows[i]
		if n == 0 {
			continue
		}
		cols := schemas[i]
		rowSize := 0
		for _, w := range widths[i] {
			rowSize += w
		}
		if uint64(n)*uint64(rowSize) > uint64(s.Remaining()) {
			return nil, fmt.Errorf("%w: %s table (%d rows) overruns stream", ErrBadMetadata, tableNames[i], n)
		}
		t.ncols[i] = len(cols)
		t.cells[i] = make([]uint32, int(n)*len(cols))
		for r := 0; r < int(n); r++ {
			for c := range cols {
				v, err := s.ReadUintN(widths[i][c])
				if err != nil {
					return nil, fmt.Errorf("%w: %s row %d: %v", ErrBadMetadata, tableNames[i], r+1, err)
				}
				t.cells[i][r*len(cols)+c] = v
			}
		}
	}
	return t, nil
}

// columnWidths computes each column's byte width from heap flags and row counts.
func (t *tables) columnWidths(heapSizes byte) [numTables][]int {
	var out [numTables][]int
	for i, cols := range schemas {
		out[i] = make([]int, len(cols))
		for c, col := range cols {
			out[i][c] = t.width(col, heapSizes)
		}
	}
	return out
}

func (t *tables) width(col column, heapSizes byte) int {
	switch col.kind {
	case colU16:
		return 2
	case colU32:
		return 4
	case colString:
		return wideIf(heapSizes&heapStringsWide != 0)
	case colGUID:
		return wideIf(heapSizes&heapGUIDWide != 0)
	case colBlob:
		return wideIf(heapSizes&heapBlobWide != 0)
	case colIndex:
		return wideIf(t.rows[col.ref] > 0xFFFF)
	case colCoded:
		ci := codedIndexes[col.ref]
		var maxRows uint32
		for _, tab := range ci.tables {
			if tab != unused && t.rows[tab] > maxRows {
				maxRows = t.rows[tab]
			}
		}
		return wideIf(maxRows >= 1<<(16-ci.bits))
	}
	return 2
}

func wideIf(wide bool) int {
	if wide {
		return 4
	}
	return 2
}

// get returns column col of 1-based row rid.
func (t *tables) get(tab int, rid uint32, col int) uint32 {
	return t.cells[tab][int(rid-1)*t.ncols[tab]+col]
}

// has reports whether rid is a valid row of tab.
func (t *tables) has(tab int, rid uint32) bool {
	return rid >= 1 && rid <= t.rows[tab]
}

// decodeCoded splits a coded index value into table id and row.
func decodeCoded(kind int, v uint32) (tab int, rid uint32, err error) {
	ci := codedIndexes[kind]
	tag := v & (1<<ci.bits - 1)
	if int(tag) >= len(ci.tables) || ci.tables[tag] == unused {
		return 0, 0, fmt.Errorf("%w: coded index tag %d", ErrBadMetadata, tag)
	}
	return ci.tables[tag], v >> ci.bits, nil
}

// tokenFor builds the token for row rid of table tab.
func tokenFor(tab int, rid uint32) cilfmt.Token {
	return cilfmt.Token(uint32(tab)<<24 | rid)
}

// rowCount returns the number of rows in tab.
func (t *tables) rowCount(tab int) int { return int(t.rows[tab]) }
