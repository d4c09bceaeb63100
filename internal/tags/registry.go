package tags

import (
	"fmt"
	"os"
	"strings"

	"github.com/gopcua/opcua/ua"
	"gopkg.in/yaml.v3"
)

// DataType is the declared value type of a tag.
// Inbound MQTT payloads and outbound OPC UA variants are coerced to it.
type DataType int

const (
	TypeBool DataType = iota
	TypeInt
	TypeFloat
	TypeString
)

// String returns the canonical name of the data type.
func (t DataType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// ParseDataType converts a tag file type string into a DataType.
// Accepts the aliases the original tag files used (boolean, real, double, ...).
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return TypeBool, nil
	case "int", "integer", "int16", "dint":
		return TypeInt, nil
	case "float", "real", "double", "number":
		return TypeFloat, nil
	case "string", "str":
		return TypeString, nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %q", ErrInvalidDefinition, s)
	}
}

// Mode declares how a tag may be used.
type Mode int

const (
	// ModeRead tags flow PLC → MQTT only. Inbound commands are rejected.
	ModeRead Mode = iota

	// ModeRW tags additionally accept command messages and issue OPC UA writes.
	ModeRW
)

// String returns the tag file section name for the mode.
func (m Mode) String() string {
	if m == ModeRW {
		return "rw"
	}
	return "read"
}

// Definition describes one configured tag: a logical slash-separated path,
// the OPC UA node it maps to, its value type, and its access mode.
type Definition struct {
	Path   string
	NodeID string
	Type   DataType
	Mode   Mode
}

// Registry is the immutable, process-lifetime tag table.
//
// Two lookup maps are built at load time because the two inbound streams
// arrive keyed differently: OPC UA notifications carry node ids, MQTT
// commands carry tag paths. No mutation happens after Load, so concurrent
// reads need no locking.
type Registry struct {
	byPath map[string]Definition
	byNode map[string]Definition
	all    []Definition
}

// tagFile mirrors the YAML tag definition file:
//
//	read:
//	  - { path: "Istwerte/Temp_Halle", node: "ns=3;s=\"DB_HMI\".\"Temp\"", type: float }
//	rw:
//	  - { path: "Sollwert/Temp_Halle", node: "ns=3;s=\"DB_HMI\".\"Soll\"", type: float }
type tagFile struct {
	Read []tagEntry `yaml:"read"`
	RW   []tagEntry `yaml:"rw"`
}

type tagEntry struct {
	Path string `yaml:"path"`
	Node string `yaml:"node"`
	Type string `yaml:"type"`
}

// Load reads and validates the tag definition file.
// Absence or malformation of the file is fatal at startup;
// there is no runtime reload path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tag file: %w", err)
	}

	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("tag file %s: %w", path, err)
	}
	return reg, nil
}

// Parse builds a Registry from raw YAML tag definitions.
func Parse(data []byte) (*Registry, error) {
	var file tagFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}

	defs := make([]Definition, 0, len(file.Read)+len(file.RW))
	for _, e := range file.Read {
		def, err := buildDefinition(e, ModeRead)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	for _, e := range file.RW {
		def, err := buildDefinition(e, ModeRW)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return NewRegistry(defs)
}

// buildDefinition validates a single tag file entry.
func buildDefinition(e tagEntry, mode Mode) (Definition, error) {
	path := strings.Trim(strings.TrimSpace(e.Path), "/")
	if path == "" {
		return Definition{}, fmt.Errorf("%w: tag with empty path (node %q)", ErrInvalidDefinition, e.Node)
	}

	node := strings.TrimSpace(e.Node)
	if node == "" {
		return Definition{}, fmt.Errorf("%w: tag %q has empty node id", ErrInvalidDefinition, path)
	}

	// Reject node ids the OPC UA stack cannot address. For rw tags this is
	// the write-capable reference check: a write needs a parseable NodeID.
	if _, err := ua.ParseNodeID(node); err != nil {
		return Definition{}, fmt.Errorf("%w: tag %q node id %q: %w", ErrInvalidDefinition, path, node, err)
	}

	typ, err := ParseDataType(e.Type)
	if err != nil {
		return Definition{}, fmt.Errorf("tag %q: %w", path, err)
	}

	return Definition{Path: path, NodeID: node, Type: typ, Mode: mode}, nil
}

// NewRegistry builds the lookup maps from validated definitions.
// Duplicate paths and duplicate node ids are rejected: both lookup
// directions must be unambiguous.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{
		byPath: make(map[string]Definition, len(defs)),
		byNode: make(map[string]Definition, len(defs)),
		all:    make([]Definition, 0, len(defs)),
	}

	for _, def := range defs {
		if _, exists := r.byPath[def.Path]; exists {
			return nil, fmt.Errorf("%w: duplicate path %q", ErrInvalidDefinition, def.Path)
		}
		if prev, exists := r.byNode[def.NodeID]; exists {
			return nil, fmt.Errorf("%w: node %q mapped by both %q and %q",
				ErrInvalidDefinition, def.NodeID, prev.Path, def.Path)
		}
		r.byPath[def.Path] = def
		r.byNode[def.NodeID] = def
		r.all = append(r.all, def)
	}

	return r, nil
}

// ByPath returns the definition for a logical tag path.
func (r *Registry) ByPath(path string) (Definition, bool) {
	def, ok := r.byPath[path]
	return def, ok
}

// ByNode returns the definition for an OPC UA node id.
func (r *Registry) ByNode(nodeID string) (Definition, bool) {
	def, ok := r.byNode[nodeID]
	return def, ok
}

// All returns the definitions in file order.
// The returned slice must not be modified.
func (r *Registry) All() []Definition {
	return r.all
}

// NodeIDs returns every node id in file order, for subscription setup.
func (r *Registry) NodeIDs() []string {
	ids := make([]string, len(r.all))
	for i, def := range r.all {
		ids[i] = def.NodeID
	}
	return ids
}

// Len returns the number of registered tags.
func (r *Registry) Len() int {
	return len(r.all)
}

// Writable returns the number of rw tags.
func (r *Registry) Writable() int {
	n := 0
	for _, def := range r.all {
		if def.Mode == ModeRW {
			n++
		}
	}
	return n
}
