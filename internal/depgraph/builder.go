// Package depgraph builds the assembly reference graph and the class and
// interface inheritance graphs of a root assembly and everything it loads.
package depgraph

import (
	"errors"

	"github.com/tliron/commonlog"

	"cilscope/internal/graph"
	"cilscope/internal/metadata"
)

// ErrNoRoot is returned by Build when the root assembly is nil.
var ErrNoRoot = errors.New("depgraph: no root assembly")

// Config controls which assemblies are expanded and which members are kept.
type Config struct {
	// Exclude lists case-insensitive name prefixes. Matching assemblies get
	// a vertex but are never loaded; matching namespaces are ignored by the
	// default relevance policy.
	Exclude []string
	// Relevance filters class member descriptors. Nil selects
	// DefaultRelevance(Exclude).
	Relevance Relevance
}

// Builder walks assembly references from a root and classifies the types of
// every loaded assembly.
type Builder struct {
	cfg     Config
	exclude prefixes
	loader  Loader
	log     commonlog.Logger
}

// NewBuilder returns a builder. loader may be nil, in which case only the
// root is loaded. A nil log selects the package logger.
func NewBuilder(cfg Config, loader Loader, log commonlog.Logger) *Builder {
	if cfg.Relevance == nil {
		cfg.Relevance = DefaultRelevance(cfg.Exclude)
	}
	if log == nil {
		log = commonlog.GetLogger("cilscope.depgraph")
	}
	return &Builder{cfg: cfg, exclude: prefixes(cfg.Exclude), loader: loader, log: log}
}

// Build constructs the three graphs. Load failures are recorded on the
// assembly vertex and do not stop the build.
func (b *Builder) Build(root Assembly) (*Result, error) {
	if root == nil {
		return nil, ErrNoRoot
	}
	r := &Result{
		Root:       root.Name(),
		Assemblies: graph.New[string, *AssemblyVertex](),
		Classes:    graph.New[string, *ClassVertex](),
		Interfaces: graph.New[string, *InterfaceVertex](),
	}
	if err := b.walkAssemblies(r, root); err != nil {
		return nil, err
	}
	for _, av := range r.LoadedAssemblies() {
		b.addTypes(r, av)
	}
	if err := b.linkClasses(r); err != nil {
		return nil, err
	}
	if err := b.linkInterfaces(r); err != nil {
		return nil, err
	}
	b.log.Infof("%s: %d assemblies (%d loaded), %d classes, %d interfaces",
		r.Root, r.Assemblies.VertexCount(), len(r.LoadedAssemblies()),
		r.Classes.VertexCount(), r.Interfaces.VertexCount())
	return r, nil
}

func (b *Builder) walkAssemblies(r *Result, root Assembly) error {
	first := &AssemblyVertex{Ref: metadata.AssemblyRef{Name: root.Name()}, Assembly: root}
	r.Assemblies.AddVertex(first)
	work := []*AssemblyVertex{first}
	for len(work) > 0 {
		av := work[len(work)-1]
		work = work[:len(work)-1]
		for _, ref := range av.Assembly.References() {
			next := &AssemblyVertex{Ref: ref}
			added := r.Assemblies.AddVertex(next)
			if _, err := r.Assemblies.AddEdge(av.Name(), ref.Name); err != nil {
				return err
			}
			if !added {
				continue
			}
			if b.exclude.match(ref.Name) {
				next.Excluded = true
				b.log.Debugf("skip %s", ref.Name)
				continue
			}
			if b.loader == nil {
				continue
			}
			a, err := b.loader.Load(ref.Name)
			if err != nil {
				next.LoadErr = err
				b.log.Warningf("load %s: %s", ref.Name, err)
				continue
			}
			next.Assembly = a
			work = append(work, next)
		}
	}
	return nil
}

func (b *Builder) addTypes(r *Result, av *AssemblyVertex) {
	defs, err := av.Assembly.Types()
	if err != nil {
		b.log.Warningf("%s: %s", av.Name(), err)
	}
	for _, d := range defs {
		if skipType(d) {
			continue
		}
		key, ok := TypeKey(d.Type)
		if !ok {
			continue
		}
		if d.IsInterface() {
			r.Interfaces.AddVertex(&InterfaceVertex{key: key, Assembly: av.Name(), Def: d})
			continue
		}
		cv := &ClassVertex{key: key, Assembly: av.Name(), Def: d}
		b.describe(cv)
		r.Classes.AddVertex(cv)
	}
}

// describe fills the member descriptors of a class.
func (b *Builder) describe(cv *ClassVertex) {
	d := cv.Def
	for _, f := range d.Fields {
		if !f.IsPublic() {
			continue
		}
		if m, ok := b.member(f.Name, f.IsStatic(), f.Type); ok {
			cv.Fields = append(cv.Fields, m)
		}
	}
	for _, p := range d.Properties {
		if !p.Public {
			continue
		}
		if m, ok := b.member(p.Name, p.Static, p.Type); ok {
			cv.Properties = append(cv.Properties, m)
		}
	}
	for _, e := range d.Events {
		if !e.Public {
			continue
		}
		if m, ok := b.member(e.Name, e.Static, e.Type); ok {
			cv.Events = append(cv.Events, m)
		}
	}
	for _, md := range d.Methods {
		if !md.IsPublic() || md.Flags&metadata.MethodSpecialName != 0 || md.Sig == nil {
			continue
		}
		if m, ok := b.method(md); ok {
			cv.Methods = append(cv.Methods, m)
		}
	}
}

func (b *Builder) member(name string, static bool, t *metadata.Type) (Member, bool) {
	if t == nil {
		return Member{}, false
	}
	relevant, deps := b.cfg.Relevance(t)
	if !relevant {
		return Member{}, false
	}
	return Member{Name: name, Static: static, Type: t.FullName(), Dependencies: deps}, true
}

// method keeps a method when its return type or any parameter is relevant.
func (b *Builder) method(md *metadata.Method) (Member, bool) {
	m := Member{Name: md.Name, Static: md.IsStatic(), Type: md.Sig.Return.FullName()}
	seen := make(map[string]bool)
	types := append([]*metadata.Type{md.Sig.Return}, md.Sig.Params...)
	for _, t := range types {
		if t == nil {
			continue
		}
		relevant, deps := b.cfg.Relevance(t)
		if !relevant {
			continue
		}
		for _, k := range deps {
			if !seen[k] {
				seen[k] = true
				m.Dependencies = append(m.Dependencies, k)
			}
		}
	}
	return m, len(m.Dependencies) > 0
}

func (b *Builder) linkClasses(r *Result) error {
	for _, cv := range r.Classes.Vertices() {
		base := cv.Def.Base
		if base == nil || base.FullName() == "System.Object" {
			continue
		}
		key, ok := TypeKey(base)
		if !ok || !r.Classes.ContainsKey(key) {
			continue
		}
		if _, err := r.Classes.AddEdge(cv.Key(), key); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) linkInterfaces(r *Result) error {
	for _, iv := range r.Interfaces.Vertices() {
		for _, it := range iv.Def.Interfaces {
			key, ok := TypeKey(it)
			if !ok || !r.Interfaces.ContainsKey(key) {
				continue
			}
			if _, err := r.Interfaces.AddEdge(iv.Key(), key); err != nil {
				return err
			}
		}
	}
	return nil
}
