// Package measurement defines the immutable data model that flows through
// the pipeline: points, buffers, resources, consumers and attributes.
package measurement

import "time"

// ResourceKind tags the variant held by a Resource or Consumer.
type ResourceKind int

const (
	LocalMachine ResourceKind = iota
	CpuPackage
	Gpu
	ControlGroup
	Custom
)

func (k ResourceKind) String() string {
	switch k {
	case LocalMachine:
		return "local_machine"
	case CpuPackage:
		return "cpu_package"
	case Gpu:
		return "gpu"
	case ControlGroup:
		return "control_group"
	default:
		return "custom"
	}
}

// Resource identifies what a measurement was taken on. It has the same
// shape as Consumer (which identifies who consumed it) by design: both are
// "what thing in the host topology does this point refer to".
type Resource struct {
	Kind ResourceKind
	ID   string // e.g. package index, GPU index, or cgroup path
}

// Consumer identifies who a measurement is attributed to. Same shape as
// Resource; kept as a distinct type so call sites can't accidentally swap
// resource and consumer.
type Consumer struct {
	Kind ResourceKind
	ID   string
}

func NewResource(kind ResourceKind, id string) Resource { return Resource{Kind: kind, ID: id} }
func NewConsumer(kind ResourceKind, id string) Consumer { return Consumer{Kind: kind, ID: id} }

// ValueType tags the numeric representation of a Value.
type ValueType int

const (
	ValueU64 ValueType = iota
	ValueF64
)

// Value is a tagged numeric measurement. Exactly one of the two fields is
// meaningful, selected by Type.
type Value struct {
	Type ValueType
	U64  uint64
	F64  float64
}

func U64(v uint64) Value { return Value{Type: ValueU64, U64: v} }
func F64(v float64) Value { return Value{Type: ValueF64, F64: v} }

// AsF64 returns the value widened to float64, regardless of its tagged type.
// Used by the time-series alignment engine, which always interpolates in
// float64 space.
func (v Value) AsF64() float64 {
	if v.Type == ValueU64 {
		return float64(v.U64)
	}
	return v.F64
}

// AttributeType tags the variant held by an AttributeValue.
type AttributeType int

const (
	AttrU64 AttributeType = iota
	AttrF64
	AttrString
	AttrBool
)

// AttributeValue is a tagged attribute payload.
type AttributeValue struct {
	Type AttributeType
	U64  uint64
	F64  float64
	Str  string
	Bool bool
}

func AttrValueU64(v uint64) AttributeValue  { return AttributeValue{Type: AttrU64, U64: v} }
func AttrValueF64(v float64) AttributeValue { return AttributeValue{Type: AttrF64, F64: v} }
func AttrValueStr(v string) AttributeValue  { return AttributeValue{Type: AttrString, Str: v} }
func AttrValueBool(v bool) AttributeValue   { return AttributeValue{Type: AttrBool, Bool: v} }

// Attribute is an ordered (name, value) pair. Points keep attributes as an
// ordered slice rather than a map so that insertion order is preserved for
// deterministic output serialization.
type Attribute struct {
	Name  string
	Value AttributeValue
}

// Point is an immutable measurement record. Transforms are the only stage
// permitted to mutate Value and Attributes after a point leaves its source;
// they must never reorder points within a buffer.
type Point struct {
	Timestamp time.Time
	MetricID  uint32
	Resource  Resource
	Consumer  Consumer
	Value     Value
	Attributes []Attribute
}

// WithAttribute returns a copy of the point with an additional attribute
// appended, preserving existing attribute order.
func (p Point) WithAttribute(name string, value AttributeValue) Point {
	attrs := make([]Attribute, len(p.Attributes), len(p.Attributes)+1)
	copy(attrs, p.Attributes)
	p.Attributes = append(attrs, Attribute{Name: name, Value: value})
	return p
}
