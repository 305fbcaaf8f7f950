package ldifion

import (
	"strings"
	"unicode/utf8"
)

// Value is a single attribute value. It is either UTF-8 text or raw binary
// bytes; the distinction is a property of the value itself and determines how
// it is rendered (plain vs. base64 in LDIF, string vs. blob in Ion).
type Value struct {
	data   string
	binary bool
}

// TextValue returns a text value holding s.
func TextValue(s string) Value {
	return Value{data: s}
}

// BinaryValue returns a binary value holding a copy of b.
func BinaryValue(b []byte) Value {
	return Value{data: string(b), binary: true}
}

// valueFromBytes classifies decoded bytes: valid UTF-8 becomes text,
// everything else stays binary.
func valueFromBytes(b []byte) Value {
	if utf8.Valid(b) {
		return TextValue(string(b))
	}
	return BinaryValue(b)
}

// String returns the value payload as a string. For binary values this is the
// raw byte sequence and may not be valid UTF-8.
func (v Value) String() string { return v.data }

// Bytes returns the value payload as a byte slice.
func (v Value) Bytes() []byte { return []byte(v.data) }

// IsBinary reports whether the value is binary rather than text.
func (v Value) IsBinary() bool { return v.binary }

// isBlank reports whether the value is text that is empty or whitespace only.
// Binary values are never blank.
func (v Value) isBlank() bool {
	return !v.binary && strings.TrimSpace(v.data) == ""
}

// Attribute is one named attribute with its values in source order.
// Duplicate values are significant and are kept.
type Attribute struct {
	Name   string
	Values []Value
}

// Attributes is an ordered multimap of attribute names to values. Names keep
// the order of their first occurrence; values for a repeated name append in
// source order. Name matching is case-insensitive, the first-seen spelling is
// kept.
type Attributes []Attribute

// Add appends values to the attribute named name, creating it at the end of
// the list on first occurrence.
func (a *Attributes) Add(name string, values ...Value) {
	for i := range *a {
		if strings.EqualFold((*a)[i].Name, name) {
			(*a)[i].Values = append((*a)[i].Values, values...)
			return
		}
	}
	*a = append(*a, Attribute{Name: name, Values: values})
}

// Get returns the values stored under name, or nil if absent.
func (a Attributes) Get(name string) []Value {
	for i := range a {
		if strings.EqualFold(a[i].Name, name) {
			return a[i].Values
		}
	}
	return nil
}

// Equal reports whether two attribute lists are identical, including name
// order and value order.
func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || len(a[i].Values) != len(b[i].Values) {
			return false
		}
		for j := range a[i].Values {
			if a[i].Values[j] != b[i].Values[j] {
				return false
			}
		}
	}
	return true
}

// ModifyOp is the operation of a single modification within a modify change
// record.
type ModifyOp int

const (
	ModifyAdd ModifyOp = iota
	ModifyDelete
	ModifyReplace
	ModifyIncrement
)

// String returns the document-format spelling (ADD, DELETE, REPLACE,
// INCREMENT).
func (op ModifyOp) String() string {
	switch op {
	case ModifyAdd:
		return "ADD"
	case ModifyDelete:
		return "DELETE"
	case ModifyReplace:
		return "REPLACE"
	case ModifyIncrement:
		return "INCREMENT"
	}
	return "UNKNOWN"
}

// ldifKeyword returns the RFC2849 spelling (add, delete, replace, increment).
func (op ModifyOp) ldifKeyword() string {
	return strings.ToLower(op.String())
}

// parseModifyOp resolves either spelling to a ModifyOp.
func parseModifyOp(s string) (ModifyOp, bool) {
	switch strings.ToLower(s) {
	case "add":
		return ModifyAdd, true
	case "delete":
		return ModifyDelete, true
	case "replace":
		return ModifyReplace, true
	case "increment":
		return ModifyIncrement, true
	}
	return 0, false
}

// Modification is one step of a modify change record. Steps apply in list
// order; reordering changes the meaning of the record.
type Modification struct {
	Op        ModifyOp
	Attribute string
	Values    []string
}

// Equal reports whether two modifications are identical.
func (m Modification) Equal(o Modification) bool {
	if m.Op != o.Op || m.Attribute != o.Attribute || len(m.Values) != len(o.Values) {
		return false
	}
	for i := range m.Values {
		if m.Values[i] != o.Values[i] {
			return false
		}
	}
	return true
}

// Record is one LDIF block or one top-level document struct: either a full
// entry snapshot or one of the four change-record kinds. Records are plain
// transient values; a decoder builds one per block and an encoder consumes it,
// nothing is shared across records.
type Record interface {
	// RecordDN returns the distinguished name the record applies to.
	RecordDN() string
	// Equal reports whether the other record has the same kind and payload.
	Equal(Record) bool

	isRecord()
}

// Entry is a full directory entry snapshot.
type Entry struct {
	DN         string
	Attributes Attributes
}

// AddChange requests creation of an entry.
type AddChange struct {
	DN         string
	Attributes Attributes
}

// DeleteChange requests removal of an entry.
type DeleteChange struct {
	DN string
}

// ModifyChange requests an ordered sequence of attribute modifications.
type ModifyChange struct {
	DN            string
	Modifications []Modification
}

// ModifyDNChange renames an entry and optionally moves it below a new
// superior. NewSuperior is nil when absent; absence survives round-trips.
type ModifyDNChange struct {
	DN           string
	NewRDN       string
	DeleteOldRDN bool
	NewSuperior  *string
}

func (e *Entry) RecordDN() string          { return e.DN }
func (c *AddChange) RecordDN() string      { return c.DN }
func (c *DeleteChange) RecordDN() string   { return c.DN }
func (c *ModifyChange) RecordDN() string   { return c.DN }
func (c *ModifyDNChange) RecordDN() string { return c.DN }

func (*Entry) isRecord()          {}
func (*AddChange) isRecord()      {}
func (*DeleteChange) isRecord()   {}
func (*ModifyChange) isRecord()   {}
func (*ModifyDNChange) isRecord() {}

// Equal reports whether other is an Entry with the same DN and attributes.
func (e *Entry) Equal(other Record) bool {
	o, ok := other.(*Entry)
	return ok && e.DN == o.DN && e.Attributes.Equal(o.Attributes)
}

// Equal reports whether other is an AddChange with the same DN and attributes.
func (c *AddChange) Equal(other Record) bool {
	o, ok := other.(*AddChange)
	return ok && c.DN == o.DN && c.Attributes.Equal(o.Attributes)
}

// Equal reports whether other is a DeleteChange with the same DN.
func (c *DeleteChange) Equal(other Record) bool {
	o, ok := other.(*DeleteChange)
	return ok && c.DN == o.DN
}

// Equal reports whether other is a ModifyChange with the same DN and the same
// modifications in the same order.
func (c *ModifyChange) Equal(other Record) bool {
	o, ok := other.(*ModifyChange)
	if !ok || c.DN != o.DN || len(c.Modifications) != len(o.Modifications) {
		return false
	}
	for i := range c.Modifications {
		if !c.Modifications[i].Equal(o.Modifications[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether other is a ModifyDNChange with the same rename,
// including presence or absence of the new superior.
func (c *ModifyDNChange) Equal(other Record) bool {
	o, ok := other.(*ModifyDNChange)
	if !ok || c.DN != o.DN || c.NewRDN != o.NewRDN || c.DeleteOldRDN != o.DeleteOldRDN {
		return false
	}
	if (c.NewSuperior == nil) != (o.NewSuperior == nil) {
		return false
	}
	return c.NewSuperior == nil || *c.NewSuperior == *o.NewSuperior
}
