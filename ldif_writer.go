package ldifion

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// LDIFWriter renders records as RFC2849 text with LF line endings. Every
// record is followed by exactly one blank line. The choice between plain and
// base64 rendering is a deterministic function of the value: binary payloads
// and text that is unsafe under RFC2849 go through base64, everything else is
// written verbatim, so decoding the output yields the original record.
type LDIFWriter struct {
	w *bufio.Writer
}

// NewLDIFWriter returns a writer emitting to w. Call Flush when done.
func NewLDIFWriter(w io.Writer) *LDIFWriter {
	return &LDIFWriter{w: bufio.NewWriter(w)}
}

// WriteRecord writes one record as a blank-line terminated LDIF block.
func (w *LDIFWriter) WriteRecord(rec Record) error {
	if rec == nil || rec.RecordDN() == "" {
		return ErrMissingDN
	}

	switch r := rec.(type) {
	case *Entry:
		w.writeLine("dn", TextValue(r.DN))
		w.writeAttributes(r.Attributes)
	case *AddChange:
		w.writeLine("dn", TextValue(r.DN))
		w.writeLine("changetype", TextValue("add"))
		w.writeAttributes(r.Attributes)
	case *DeleteChange:
		w.writeLine("dn", TextValue(r.DN))
		w.writeLine("changetype", TextValue("delete"))
	case *ModifyChange:
		w.writeLine("dn", TextValue(r.DN))
		w.writeLine("changetype", TextValue("modify"))
		for _, mod := range r.Modifications {
			w.writeLine(mod.Op.ldifKeyword(), TextValue(mod.Attribute))
			for _, val := range mod.Values {
				w.writeLine(mod.Attribute, TextValue(val))
			}
			w.w.WriteString("-\n")
		}
	case *ModifyDNChange:
		w.writeLine("dn", TextValue(r.DN))
		w.writeLine("changetype", TextValue("moddn"))
		w.writeLine("newrdn", TextValue(r.NewRDN))
		if r.DeleteOldRDN {
			w.writeLine("deleteoldrdn", TextValue("1"))
		} else {
			w.writeLine("deleteoldrdn", TextValue("0"))
		}
		if r.NewSuperior != nil {
			w.writeLine("newsuperior", TextValue(*r.NewSuperior))
		}
	default:
		return fmt.Errorf("ldifion: unsupported record type %T", rec)
	}

	w.w.WriteByte('\n')
	return w.w.Flush()
}

// Flush writes any buffered output to the underlying writer.
func (w *LDIFWriter) Flush() error { return w.w.Flush() }

func (w *LDIFWriter) writeAttributes(attrs Attributes) {
	for _, attr := range attrs {
		for _, val := range attr.Values {
			w.writeLine(attr.Name, val)
		}
	}
}

// writeLine emits one "name: value" or "name:: base64" line.
func (w *LDIFWriter) writeLine(name string, val Value) {
	if needsBase64(val) {
		w.w.WriteString(name)
		w.w.WriteString(":: ")
		w.w.WriteString(base64.StdEncoding.EncodeToString(val.Bytes()))
	} else if s := val.String(); s == "" {
		w.w.WriteString(name)
		w.w.WriteByte(':')
	} else {
		w.w.WriteString(name)
		w.w.WriteString(": ")
		w.w.WriteString(s)
	}
	w.w.WriteByte('\n')
}

// needsBase64 applies the RFC2849 safe-string rules: binary payloads, a
// leading space, colon or '<', an embedded NUL, CR or LF, any non-ASCII byte
// or a trailing space force base64 rendering.
func needsBase64(val Value) bool {
	if val.IsBinary() {
		return true
	}
	s := val.String()
	if s == "" {
		return false
	}
	switch s[0] {
	case ' ', ':', '<':
		return true
	}
	if s[len(s)-1] == ' ' {
		return true
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0 || c == '\r' || c == '\n' || c >= 0x80 {
			return true
		}
	}
	return false
}

// MarshalLDIF renders records into a single LDIF document.
func MarshalLDIF(records ...Record) (string, error) {
	var sb strings.Builder
	w := NewLDIFWriter(&sb)
	for _, rec := range records {
		if err := w.WriteRecord(rec); err != nil {
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
