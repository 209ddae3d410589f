package render

// Theme holds colors for graph rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Edge colors by call kind.
	EdgeCall       string // call, jmp
	EdgeVirtual    string // callvirt
	EdgeNewobj     string // newobj
	EdgeFnPtr      string // ldftn, ldvirtftn
	EdgeIndirect   string // calli
	EdgeUnresolved string // target token did not resolve

	// Node accents.
	StubFill     string // excluded or unloaded vertices, terminating blocks
	ExternalText string // external / unresolved targets
	EntryBorder  string // entry blocks and entry points
	CycleColor   string // vertices and edges on a reported cycle

	// Cluster styling.
	ClusterBorder string // subgraph cluster border
	ClusterLabel  string // subgraph cluster label text
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EdgeCall:       "#424242", // dark gray
	EdgeVirtual:    "#0B3D91", // NASA blue
	EdgeNewobj:     "#00695C", // teal
	EdgeFnPtr:      "#E65100", // deep orange
	EdgeIndirect:   "#9E9E9E", // gray
	EdgeUnresolved: "#FC3D21", // NASA red

	StubFill:     "#ECEFF1", // blue-gray 50
	ExternalText: "#9E9E9E",
	EntryBorder:  "#0B3D91",
	CycleColor:   "#FC3D21",

	ClusterBorder: "#BDBDBD",
	ClusterLabel:  "#757575",
}
