package ldifion

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/amazon-ion/ion-go/ion"
)

// docField enumerates the known top-level field names of a document record.
// Dispatching on a closed tag set keeps unknown names on one explicit path:
// they are logged and skipped, never interpreted.
type docField int

const (
	fieldUnknown docField = iota
	fieldDN
	fieldChangeType
	fieldAttributes
	fieldModifications
	fieldNewDN
)

func docFieldOf(name string) docField {
	switch name {
	case "dn":
		return fieldDN
	case "changeType":
		return fieldChangeType
	case "attributes":
		return fieldAttributes
	case "modifications":
		return fieldModifications
	case "newDn":
		return fieldNewDN
	}
	return fieldUnknown
}

// IonReader decodes a stream of Ion text into records, one top-level struct
// per record. The discriminator is the presence of the changeType field; its
// absence selects a plain entry. Unknown fields at any level are logged at
// debug and ignored. A struct whose shape does not match its change type is
// reported as a *RecordError and decoding resumes at the next top-level
// struct.
type IonReader struct {
	r ion.Reader

	// Logger receives unknown-field notices. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewIonReader returns a reader decoding from in.
func NewIonReader(in io.Reader) *IonReader {
	return &IonReader{r: ion.NewReader(in)}
}

func (ir *IonReader) logger() *slog.Logger {
	if ir.Logger != nil {
		return ir.Logger
	}
	return slog.Default()
}

// Records returns a lazy, single-pass sequence of decode outcomes, with the
// same error contract as LDIFReader.Records: *RecordError values are
// per-record and recoverable, anything else ends the stream.
func (ir *IonReader) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		c := &ionCursor{r: ir.r}
		for c.r.Next() {
			if c.r.Type() != ion.StructType || c.r.IsNull() {
				cause := fmt.Errorf("%w: top-level value is %v, not a struct", ErrMalformedBlock, c.r.Type())
				if !yield(nil, recordErr(cause, nil)) {
					return
				}
				continue
			}

			rec, err := ir.readRecord(c)
			if err != nil {
				if !IsRecordError(err) {
					yield(nil, fmt.Errorf("ldifion: ion read: %w", err))
					return
				}
				// Resync to the top level before continuing.
				for c.depth > 0 {
					if serr := c.stepOut(); serr != nil {
						yield(nil, fmt.Errorf("ldifion: ion read: %w", serr))
						return
					}
				}
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := c.r.Err(); err != nil {
			yield(nil, fmt.Errorf("ldifion: ion read: %w", err))
		}
	}
}

// ionCursor tracks container depth so a failed record can be abandoned from
// any nesting level.
type ionCursor struct {
	r     ion.Reader
	depth int
}

func (c *ionCursor) stepIn() error {
	if err := c.r.StepIn(); err != nil {
		return err
	}
	c.depth++
	return nil
}

func (c *ionCursor) stepOut() error {
	if err := c.r.StepOut(); err != nil {
		return err
	}
	c.depth--
	return nil
}

// readRecord parses the top-level struct the reader is positioned on. Shape
// violations come back as *RecordError, Ion library failures as plain errors.
func (ir *IonReader) readRecord(c *ionCursor) (Record, error) {
	var (
		dn, changeType string
		attrs          Attributes
		haveAttrs      bool
		mods           []Modification
		haveMods       bool
		newRDN         string
		deleteOld      *bool
		newSuperior    *string
		haveNewDN      bool
	)

	if err := c.stepIn(); err != nil {
		return nil, err
	}
	for c.r.Next() {
		name, err := fieldNameOf(c.r)
		if err != nil {
			return nil, err
		}

		var cause error
		switch docFieldOf(name) {
		case fieldDN:
			dn, cause = stringValueOf(c.r)
		case fieldChangeType:
			changeType, cause = stringValueOf(c.r)
		case fieldAttributes:
			attrs, cause = ir.readAttributes(c)
			haveAttrs = cause == nil
		case fieldModifications:
			mods, cause = ir.readModifications(c)
			haveMods = cause == nil
		case fieldNewDN:
			newRDN, deleteOld, newSuperior, cause = ir.readNewDN(c)
			haveNewDN = cause == nil
		default:
			ir.logger().Debug("document_field_skipped",
				slog.String("field", name),
				slog.String("dn", dn))
			// Next() moves past the unvisited value.
		}
		if cause != nil {
			return nil, wrapShape(cause, dn, changeType)
		}
	}
	if err := c.r.Err(); err != nil {
		return nil, err
	}
	if err := c.stepOut(); err != nil {
		return nil, err
	}

	shape := func(cause error) error { return wrapShape(cause, dn, changeType) }
	if dn == "" {
		return nil, shape(ErrMissingDN)
	}

	switch changeType {
	case "":
		if !haveAttrs {
			return nil, shape(fmt.Errorf("%w: attributes", ErrMissingField))
		}
		return &Entry{DN: dn, Attributes: attrs}, nil
	case "add":
		if !haveAttrs {
			return nil, shape(fmt.Errorf("%w: attributes", ErrMissingField))
		}
		return &AddChange{DN: dn, Attributes: attrs}, nil
	case "delete":
		return &DeleteChange{DN: dn}, nil
	case "modify":
		if !haveMods {
			return nil, shape(fmt.Errorf("%w: modifications", ErrMissingField))
		}
		return &ModifyChange{DN: dn, Modifications: mods}, nil
	case "moddn", "modrdn":
		if !haveNewDN {
			return nil, shape(fmt.Errorf("%w: newDn", ErrMissingField))
		}
		if newRDN == "" || deleteOld == nil {
			return nil, shape(fmt.Errorf("%w: newDn needs newrdn and deleteoldrdn", ErrMissingField))
		}
		return &ModifyDNChange{DN: dn, NewRDN: newRDN, DeleteOldRDN: *deleteOld, NewSuperior: newSuperior}, nil
	default:
		return nil, shape(fmt.Errorf("%w: %q", ErrUnknownChangeType, changeType))
	}
}

// readAttributes parses the attributes struct: attribute name to list of
// string or blob values. A null in a value list, or a null list, stands for a
// single empty value (the inverse of the writer's blank collapse).
func (ir *IonReader) readAttributes(c *ionCursor) (Attributes, error) {
	if c.r.Type() != ion.StructType || c.r.IsNull() {
		return nil, fmt.Errorf("%w: attributes is not a struct", ErrMalformedBlock)
	}
	if err := c.stepIn(); err != nil {
		return nil, err
	}

	var attrs Attributes
	for c.r.Next() {
		name, err := fieldNameOf(c.r)
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("%w: attribute without a name", ErrMalformedBlock)
		}
		if c.r.IsNull() {
			attrs.Add(name, TextValue(""))
			continue
		}
		if c.r.Type() != ion.ListType {
			return nil, fmt.Errorf("%w: values of %q are not a list", ErrMalformedBlock, name)
		}

		if err := c.stepIn(); err != nil {
			return nil, err
		}
		var values []Value
		for c.r.Next() {
			switch {
			case c.r.IsNull():
				values = append(values, TextValue(""))
			case c.r.Type() == ion.StringType:
				s, err := stringValueOf(c.r)
				if err != nil {
					return nil, err
				}
				values = append(values, TextValue(s))
			case c.r.Type() == ion.BlobType:
				b, err := c.r.ByteValue()
				if err != nil {
					return nil, err
				}
				values = append(values, BinaryValue(b))
			default:
				return nil, fmt.Errorf("%w: value of %q is %v, not string or blob", ErrMalformedBlock, name, c.r.Type())
			}
		}
		if err := c.stepOut(); err != nil {
			return nil, err
		}
		attrs.Add(name, values...)
	}
	if err := c.stepOut(); err != nil {
		return nil, err
	}
	return attrs, nil
}

// readModifications parses the ordered modifications list of a modify record.
func (ir *IonReader) readModifications(c *ionCursor) ([]Modification, error) {
	if c.r.Type() != ion.ListType || c.r.IsNull() {
		return nil, fmt.Errorf("%w: modifications is not a list", ErrMalformedBlock)
	}
	if err := c.stepIn(); err != nil {
		return nil, err
	}

	var mods []Modification
	for c.r.Next() {
		if c.r.Type() != ion.StructType || c.r.IsNull() {
			return nil, fmt.Errorf("%w: modification is not a struct", ErrMalformedBlock)
		}
		if err := c.stepIn(); err != nil {
			return nil, err
		}

		var mod Modification
		var haveOp bool
		for c.r.Next() {
			name, err := fieldNameOf(c.r)
			if err != nil {
				return nil, err
			}
			switch name {
			case "operation":
				s, err := stringValueOf(c.r)
				if err != nil {
					return nil, err
				}
				op, ok := parseModifyOp(s)
				if !ok {
					return nil, fmt.Errorf("%w: unknown modify operation %q", ErrMalformedBlock, s)
				}
				mod.Op = op
				haveOp = true
			case "attribute":
				mod.Attribute, err = stringValueOf(c.r)
				if err != nil {
					return nil, err
				}
			case "values":
				if c.r.IsNull() {
					continue
				}
				if c.r.Type() != ion.ListType {
					return nil, fmt.Errorf("%w: modification values are not a list", ErrMalformedBlock)
				}
				if err := c.stepIn(); err != nil {
					return nil, err
				}
				for c.r.Next() {
					s, err := stringValueOf(c.r)
					if err != nil {
						return nil, err
					}
					mod.Values = append(mod.Values, s)
				}
				if err := c.stepOut(); err != nil {
					return nil, err
				}
			default:
				ir.logger().Debug("document_field_skipped",
					slog.String("field", name),
					slog.String("within", "modification"))
			}
		}
		if err := c.stepOut(); err != nil {
			return nil, err
		}

		if !haveOp || mod.Attribute == "" {
			return nil, fmt.Errorf("%w: modification needs operation and attribute", ErrMissingField)
		}
		mods = append(mods, mod)
	}
	if err := c.stepOut(); err != nil {
		return nil, err
	}
	return mods, nil
}

// readNewDN parses the newDn struct of a moddn record.
func (ir *IonReader) readNewDN(c *ionCursor) (string, *bool, *string, error) {
	if c.r.Type() != ion.StructType || c.r.IsNull() {
		return "", nil, nil, fmt.Errorf("%w: newDn is not a struct", ErrMalformedBlock)
	}
	if err := c.stepIn(); err != nil {
		return "", nil, nil, err
	}

	var (
		newRDN      string
		deleteOld   *bool
		newSuperior *string
	)
	for c.r.Next() {
		name, err := fieldNameOf(c.r)
		if err != nil {
			return "", nil, nil, err
		}
		switch name {
		case "newrdn":
			newRDN, err = stringValueOf(c.r)
			if err != nil {
				return "", nil, nil, err
			}
		case "deleteoldrdn":
			if c.r.Type() != ion.BoolType || c.r.IsNull() {
				return "", nil, nil, fmt.Errorf("%w: deleteoldrdn is not a boolean", ErrInvalidBoolean)
			}
			b, err := c.r.BoolValue()
			if err != nil {
				return "", nil, nil, err
			}
			deleteOld = b
		case "newsuperior":
			s, err := stringValueOf(c.r)
			if err != nil {
				return "", nil, nil, err
			}
			newSuperior = &s
		default:
			ir.logger().Debug("document_field_skipped",
				slog.String("field", name),
				slog.String("within", "newDn"))
		}
	}
	if err := c.stepOut(); err != nil {
		return "", nil, nil, err
	}
	return newRDN, deleteOld, newSuperior, nil
}

// wrapShape turns a shape violation into the per-record error tier, carrying
// a short rendering of the record identity for logging.
func wrapShape(cause error, dn, changeType string) error {
	if IsRecordError(cause) {
		return cause
	}
	if !isShapeCause(cause) {
		return cause
	}
	var lines []string
	if dn != "" {
		lines = append(lines, "dn: "+dn)
	}
	if changeType != "" {
		lines = append(lines, "changeType: "+changeType)
	}
	return recordErr(cause, lines)
}

// isShapeCause distinguishes record-shape problems from Ion library errors.
func isShapeCause(err error) bool {
	for _, target := range []error{ErrMissingDN, ErrUnknownChangeType, ErrInvalidBoolean, ErrMalformedBlock, ErrMissingField} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// fieldNameOf returns the current field name, or "" when absent.
func fieldNameOf(r ion.Reader) (string, error) {
	tok, err := r.FieldName()
	if err != nil {
		return "", err
	}
	if tok == nil || tok.Text == nil {
		return "", nil
	}
	return *tok.Text, nil
}

// stringValueOf returns the current string value; Ion null reads as "".
func stringValueOf(r ion.Reader) (string, error) {
	if r.IsNull() {
		return "", nil
	}
	if r.Type() != ion.StringType {
		return "", fmt.Errorf("%w: expected a string, got %v", ErrMalformedBlock, r.Type())
	}
	s, err := r.StringValue()
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", nil
	}
	return *s, nil
}
