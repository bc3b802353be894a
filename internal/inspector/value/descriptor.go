package value

import "strconv"

// DescriptorKind says how a property is stored on its owner
type DescriptorKind int

const (
	DescriptorData DescriptorKind = iota
	DescriptorGetter
	DescriptorSetter
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorData:
		return "data"
	case DescriptorGetter:
		return "getter"
	case DescriptorSetter:
		return "setter"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (k DescriptorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *DescriptorKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "getter":
		*k = DescriptorGetter
	case "setter":
		*k = DescriptorSetter
	default:
		*k = DescriptorData
	}
	return nil
}

// Key names a property. Index keys are used for array elements, set
// members, map entries and element child nodes.
type Key struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Index   int    `json:"index,omitempty" yaml:"index,omitempty" toml:"index,omitempty"`
	IsIndex bool   `json:"isIndex,omitempty" yaml:"isIndex,omitempty" toml:"isIndex,omitempty"`
}

// NameKey builds a named key
func NameKey(name string) Key { return Key{Name: name} }

// IndexKey builds an index key
func IndexKey(i int) Key { return Key{Index: i, IsIndex: true} }

// String renders the key for display and object serialization
func (k Key) String() string {
	if k.IsIndex {
		return strconv.Itoa(k.Index)
	}
	return k.Name
}

// PropertyDescriptor is one property or entry of a composite value.
//
// Exactly one of Value and Ref is meaningful: Ref is a lazy reference to an
// object whose shape has not been described yet.
type PropertyDescriptor struct {
	Key   Key            `json:"key" yaml:"key" toml:"key"`
	Kind  DescriptorKind `json:"kind" yaml:"kind" toml:"kind"`
	Value *RemoteValue   `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	Ref   ObjectID       `json:"ref,omitempty" yaml:"ref,omitempty" toml:"ref,omitempty"`

	// EntryKey is set for map entries only
	EntryKey *RemoteValue `json:"entryKey,omitempty" yaml:"entryKey,omitempty" toml:"entryKey,omitempty"`
}

// Resolved returns the described value, treating a lazy reference as a
// plain object with that identity.
func (d PropertyDescriptor) Resolved() RemoteValue {
	if d.Value != nil {
		return *d.Value
	}
	if d.Ref != "" {
		return Object(d.Ref, "")
	}
	return Undefined()
}

// Data builds a data property descriptor
func Data(key Key, v RemoteValue) PropertyDescriptor {
	return PropertyDescriptor{Key: key, Kind: DescriptorData, Value: &v}
}

// Lazy builds a data property descriptor holding an unresolved reference
func Lazy(key Key, ref ObjectID) PropertyDescriptor {
	return PropertyDescriptor{Key: key, Kind: DescriptorData, Ref: ref}
}

// Accessor builds a getter descriptor whose placeholder carries ref
func Accessor(key Key, ref ObjectID) PropertyDescriptor {
	v := Getter(ref)
	return PropertyDescriptor{Key: key, Kind: DescriptorGetter, Value: &v}
}

// SetterOnly builds a descriptor for a property with a setter and no getter
func SetterOnly(key Key) PropertyDescriptor {
	v := Undefined()
	return PropertyDescriptor{Key: key, Kind: DescriptorSetter, Value: &v}
}

// Entry builds a map entry descriptor at insertion position i
func Entry(i int, key, val RemoteValue) PropertyDescriptor {
	return PropertyDescriptor{Key: IndexKey(i), Kind: DescriptorData, Value: &val, EntryKey: &key}
}
