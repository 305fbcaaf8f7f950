package ldifion

import (
	"bytes"
	"fmt"
	"io"

	"github.com/amazon-ion/ion-go/ion"
)

// IonWriter renders records as Ion text, one top-level struct per record,
// newline-separated. Fields are written in a fixed order (dn first, then
// attributes or changeType plus its variant fields) so a document is
// self-describing regardless of how a reader visits it. Binary values become
// Ion blobs, which keeps them distinguishable from text at decode time.
//
// Each record is staged in its own buffer and only committed to the output
// once fully encoded; a failed record leaves no partial struct behind.
type IonWriter struct {
	out     io.Writer
	written int
}

// NewIonWriter returns a writer emitting to out.
func NewIonWriter(out io.Writer) *IonWriter {
	return &IonWriter{out: out}
}

// WriteRecord encodes one record and appends it to the output.
func (w *IonWriter) WriteRecord(rec Record) error {
	if rec == nil || rec.RecordDN() == "" {
		return ErrMissingDN
	}

	var buf bytes.Buffer
	iw := ion.NewTextWriter(&buf)
	if err := writeIonRecord(iw, rec); err != nil {
		return err
	}
	if err := iw.Finish(); err != nil {
		return fmt.Errorf("ldifion: ion encode: %w", err)
	}

	if w.written > 0 {
		if _, err := io.WriteString(w.out, "\n"); err != nil {
			return err
		}
	}
	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return err
	}
	w.written++
	return nil
}

func writeIonRecord(iw ion.Writer, rec Record) error {
	if err := iw.BeginStruct(); err != nil {
		return err
	}
	if err := writeIonString(iw, "dn", rec.RecordDN()); err != nil {
		return err
	}

	switch r := rec.(type) {
	case *Entry:
		if err := fieldName(iw, "attributes"); err != nil {
			return err
		}
		if err := writeIonAttributes(iw, r.Attributes); err != nil {
			return err
		}
	case *AddChange:
		if err := writeIonString(iw, "changeType", "add"); err != nil {
			return err
		}
		if err := fieldName(iw, "attributes"); err != nil {
			return err
		}
		if err := writeIonAttributes(iw, r.Attributes); err != nil {
			return err
		}
	case *DeleteChange:
		if err := writeIonString(iw, "changeType", "delete"); err != nil {
			return err
		}
	case *ModifyChange:
		if err := writeIonString(iw, "changeType", "modify"); err != nil {
			return err
		}
		if err := writeIonModifications(iw, r.Modifications); err != nil {
			return err
		}
	case *ModifyDNChange:
		if err := writeIonString(iw, "changeType", "moddn"); err != nil {
			return err
		}
		if err := writeIonNewDN(iw, r); err != nil {
			return err
		}
	default:
		return fmt.Errorf("ldifion: unsupported record type %T", rec)
	}

	return iw.EndStruct()
}

// writeIonAttributes writes the attribute multimap as a struct of lists. An
// attribute whose values are all empty or blank collapses to a single null;
// in a mixed list only the non-blank values are written. Binary values are
// written as blobs and never collapse.
func writeIonAttributes(iw ion.Writer, attrs Attributes) error {
	if err := iw.BeginStruct(); err != nil {
		return err
	}
	for _, attr := range attrs {
		if err := fieldName(iw, attr.Name); err != nil {
			return err
		}
		if err := iw.BeginList(); err != nil {
			return err
		}

		wroteValue := false
		for _, val := range attr.Values {
			if val.IsBinary() {
				if err := iw.WriteBlob(val.Bytes()); err != nil {
					return err
				}
				wroteValue = true
			} else if !val.isBlank() {
				if err := iw.WriteString(val.String()); err != nil {
					return err
				}
				wroteValue = true
			}
		}
		if !wroteValue {
			if err := iw.WriteNull(); err != nil {
				return err
			}
		}

		if err := iw.EndList(); err != nil {
			return err
		}
	}
	return iw.EndStruct()
}

func writeIonModifications(iw ion.Writer, mods []Modification) error {
	if err := fieldName(iw, "modifications"); err != nil {
		return err
	}
	if err := iw.BeginList(); err != nil {
		return err
	}
	for _, mod := range mods {
		if err := iw.BeginStruct(); err != nil {
			return err
		}
		if err := writeIonString(iw, "operation", mod.Op.String()); err != nil {
			return err
		}
		if err := writeIonString(iw, "attribute", mod.Attribute); err != nil {
			return err
		}
		if err := fieldName(iw, "values"); err != nil {
			return err
		}
		if err := iw.BeginList(); err != nil {
			return err
		}
		for _, val := range mod.Values {
			if err := iw.WriteString(val); err != nil {
				return err
			}
		}
		if err := iw.EndList(); err != nil {
			return err
		}
		if err := iw.EndStruct(); err != nil {
			return err
		}
	}
	return iw.EndList()
}

func writeIonNewDN(iw ion.Writer, change *ModifyDNChange) error {
	if err := fieldName(iw, "newDn"); err != nil {
		return err
	}
	if err := iw.BeginStruct(); err != nil {
		return err
	}
	if err := writeIonString(iw, "newrdn", change.NewRDN); err != nil {
		return err
	}
	if err := fieldName(iw, "deleteoldrdn"); err != nil {
		return err
	}
	if err := iw.WriteBool(change.DeleteOldRDN); err != nil {
		return err
	}
	if change.NewSuperior != nil {
		if err := writeIonString(iw, "newsuperior", *change.NewSuperior); err != nil {
			return err
		}
	}
	return iw.EndStruct()
}

func fieldName(iw ion.Writer, name string) error {
	return iw.FieldName(ion.NewSymbolTokenFromString(name))
}

func writeIonString(iw ion.Writer, name, val string) error {
	if err := fieldName(iw, name); err != nil {
		return err
	}
	return iw.WriteString(val)
}
