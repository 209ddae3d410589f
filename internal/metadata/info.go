package metadata

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"cilscope/internal/cilfmt"
)

// assemblyFlagPublicKey marks a full public key in AssemblyRef.PublicKeyOrToken.
const assemblyFlagPublicKey = 0x0001

// publicKeyToken derives the 8-byte token from a full public key: the last
// eight bytes of its SHA-1 hash, reversed.
func publicKeyToken(key []byte) []byte {
	if len(key) == 0 {
		return nil
	}
	sum := sha1.Sum(key)
	tok := make([]byte, 8)
	for i := range tok {
		tok[i] = sum[len(sum)-1-i]
	}
	return tok
}

// infoAttributes maps the assembly-level attribute types Info reports to their
// keys in Info.Attributes.
var infoAttributes = map[string]string{
	"AssemblyTitleAttribute":                "Title",
	"AssemblyDescriptionAttribute":          "Description",
	"AssemblyCompanyAttribute":              "Company",
	"AssemblyProductAttribute":              "Product",
	"AssemblyCopyrightAttribute":            "Copyright",
	"AssemblyConfigurationAttribute":        "Configuration",
	"AssemblyInformationalVersionAttribute": "InformationalVersion",
	"AssemblyFileVersionAttribute":          "FileVersion",
	"TargetFrameworkAttribute":              "TargetFramework",
}

// generatedAttributes mark compiler-generated types.
var generatedAttributes = map[string]bool{
	"System.Runtime.CompilerServices.CompilerGeneratedAttribute": true,
	"System.CodeDom.Compiler.GeneratedCodeAttribute":             true,
}

// Info summarizes an assembly manifest.
type Info struct {
	Name           string            `json:"name"`
	Version        string            `json:"version"`
	Culture        string            `json:"culture,omitempty"`
	PublicKeyToken string            `json:"public_key_token,omitempty"`
	RuntimeVersion string            `json:"runtime_version"`
	EntryPoint     string            `json:"entry_point,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	References     []string          `json:"references"`
	Types          int               `json:"types"`
	Methods        int               `json:"methods"`
}

// Info reads the manifest summary of the module.
func (m *Module) Info() *Info {
	inf := &Info{
		Name:           m.name,
		Version:        m.version.String(),
		Culture:        m.culture,
		PublicKeyToken: hex.EncodeToString(publicKeyToken(m.pubKey)),
		RuntimeVersion: m.img.RuntimeVersion,
		Attributes:     make(map[string]string),
		References:     make([]string, 0, len(m.refs)),
		Types:          m.t.rowCount(tabTypeDef),
		Methods:        m.t.rowCount(tabMethodDef),
	}
	for _, r := range m.refs {
		inf.References = append(inf.References, r.String())
	}
	if ep := m.img.EntryPointToken; ep.Kind() == cilfmt.KindMethodDef && !ep.IsNil() {
		if md, err := m.ResolveMethod(ep); err == nil {
			inf.EntryPoint = md.FullName()
		}
	}
	if m.t.rows[tabAssembly] > 0 {
		for _, row := range m.attrs[encodeCoded(cHasCustomAttribute, tabAssembly, 1)] {
			ns, name := m.attrTypeName(row)
			key, ok := infoAttributes[name]
			if !ok || !strings.HasPrefix(ns, "System") {
				continue
			}
			if v, ok := m.attrString(row); ok {
				inf.Attributes[key] = v
			}
		}
	}
	return inf
}

// attrTypeName returns the namespace and name of the attribute type a
// CustomAttribute row constructs.
func (m *Module) attrTypeName(row uint32) (ns, name string) {
	tab, rid, err := decodeCoded(cCustomAttributeType, m.t.get(tabCustomAttribute, row, 1))
	if err != nil {
		return "", ""
	}
	switch tab {
	case tabMethodDef:
		if m.t.has(tabMethodDef, rid) {
			return m.rawTypeName(tabTypeDef, m.methodOwner[rid])
		}
	case tabMemberRef:
		if !m.t.has(tabMemberRef, rid) {
			return "", ""
		}
		ptab, prid, err := decodeCoded(cMemberRefParent, m.t.get(tabMemberRef, rid, 0))
		if err != nil {
			return "", ""
		}
		return m.rawTypeName(ptab, prid)
	}
	return "", ""
}

// hasGeneratedAttr reports whether TypeDef rid carries a compiler-generated
// marker attribute.
func (m *Module) hasGeneratedAttr(rid uint32) bool {
	for _, row := range m.attrs[encodeCoded(cHasCustomAttribute, tabTypeDef, rid)] {
		ns, name := m.attrTypeName(row)
		if generatedAttributes[ns+"."+name] {
			return true
		}
	}
	return false
}

// attrString decodes the single string argument of an attribute blob: the
// 0x0001 prolog followed by a SerString (II.23.3).
func (m *Module) attrString(row uint32) (string, bool) {
	b, err := m.blobs.get(m.t.get(tabCustomAttribute, row, 2))
	if err != nil || len(b) < 3 || b[0] != 0x01 || b[1] != 0x00 {
		return "", false
	}
	if b[2] == 0xFF {
		return "", false
	}
	n, w, err := cilfmt.DecodeCompressedUint32(b[2:])
	if err != nil || 2+w+int(n) > len(b) {
		return "", false
	}
	v := b[2+w : 2+w+int(n)]
	if !utf8.Valid(v) {
		return "", false
	}
	return string(v), true
}
