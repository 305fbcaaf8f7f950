package ldifion

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"iter"
	"strings"
	"unicode/utf8"
)

// LDIFReader decodes an RFC2849 stream into records. The stream is consumed
// in a single pass: blocks are separated by blank lines, continuation lines
// (one leading space) are unfolded, comment lines are dropped and both CRLF
// and LF endings are accepted.
//
// A structurally broken block is reported as a *RecordError carrying its raw
// lines; the reader then moves on to the next block, so one bad block never
// aborts the stream. Only a genuine read error ends iteration early.
type LDIFReader struct {
	s          *bufio.Scanner
	firstBlock bool
}

// NewLDIFReader returns a reader decoding from r. The reader is not
// restartable; Records may be consumed once.
func NewLDIFReader(r io.Reader) *LDIFReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &LDIFReader{s: s, firstBlock: true}
}

// Records returns a lazy, single-pass sequence of decode outcomes. Each pair
// is either a record or an error: a *RecordError stands for one skipped block
// and iteration continues, any other error is a stream failure and iteration
// stops.
func (r *LDIFReader) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			raw, err := r.nextBlock()
			if err != nil {
				yield(nil, fmt.Errorf("ldifion: read: %w", err))
				return
			}
			if raw == nil {
				return
			}

			logical := unfold(raw)
			if r.firstBlock {
				r.firstBlock = false
				// RFC2849 allows a leading version-spec.
				if len(logical) > 0 && strings.HasPrefix(strings.ToLower(logical[0]), "version:") {
					logical = logical[1:]
					if len(logical) == 0 {
						continue
					}
				}
			}

			rec, perr := parseBlock(logical)
			if perr != nil {
				if !yield(nil, recordErr(perr, raw)) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// nextBlock gathers the physical, comment-stripped lines of the next block.
// It returns nil, nil at end of stream.
func (r *LDIFReader) nextBlock() ([]string, error) {
	var lines []string
	inComment := false
	for r.s.Scan() {
		line := strings.TrimSuffix(r.s.Text(), "\r")
		if line == "" {
			if len(lines) > 0 {
				return lines, nil
			}
			inComment = false
			continue
		}
		if strings.HasPrefix(line, "#") {
			inComment = true
			continue
		}
		if inComment && strings.HasPrefix(line, " ") {
			// Folded continuation of a comment line.
			continue
		}
		inComment = false
		lines = append(lines, line)
	}
	if err := r.s.Err(); err != nil {
		return nil, err
	}
	if len(lines) > 0 {
		return lines, nil
	}
	return nil, nil
}

// unfold joins RFC2849 continuation lines: a line starting with a single
// space is appended, without that space, to the previous logical line.
func unfold(raw []string) []string {
	var logical []string
	for _, line := range raw {
		if strings.HasPrefix(line, " ") && len(logical) > 0 {
			logical[len(logical)-1] += line[1:]
			continue
		}
		logical = append(logical, line)
	}
	return logical
}

// parseBlock turns the logical lines of one block into a record.
func parseBlock(lines []string) (Record, error) {
	if len(lines) == 0 {
		return nil, ErrMalformedBlock
	}

	name, dnVal, err := splitAttrLine(lines[0])
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(name, "dn") {
		return nil, fmt.Errorf("%w: first line is not a dn", ErrMalformedBlock)
	}
	if dnVal.IsBinary() {
		return nil, fmt.Errorf("%w: dn is not valid UTF-8", ErrMalformedBlock)
	}
	dn := dnVal.String()
	if dn == "" {
		return nil, ErrMissingDN
	}

	body := lines[1:]
	if len(body) > 0 {
		if n, v, err := splitAttrLine(body[0]); err == nil && strings.EqualFold(n, "changetype") {
			return parseChangeRecord(dn, v.String(), body[1:])
		}
	}

	attrs, err := parseAttrLines(body)
	if err != nil {
		return nil, err
	}
	return &Entry{DN: dn, Attributes: attrs}, nil
}

// parseChangeRecord branches on the changetype value.
func parseChangeRecord(dn, changeType string, body []string) (Record, error) {
	switch strings.ToLower(changeType) {
	case "add":
		attrs, err := parseAttrLines(body)
		if err != nil {
			return nil, err
		}
		return &AddChange{DN: dn, Attributes: attrs}, nil
	case "delete":
		if len(body) > 0 {
			return nil, fmt.Errorf("%w: delete record has trailing lines", ErrMalformedBlock)
		}
		return &DeleteChange{DN: dn}, nil
	case "modify":
		mods, err := parseModifications(body)
		if err != nil {
			return nil, err
		}
		return &ModifyChange{DN: dn, Modifications: mods}, nil
	case "modrdn", "moddn":
		return parseModifyDN(dn, body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChangeType, changeType)
	}
}

// parseAttrLines collects attr/value pairs into an ordered multimap.
func parseAttrLines(lines []string) (Attributes, error) {
	var attrs Attributes
	for _, line := range lines {
		name, val, err := splitAttrLine(line)
		if err != nil {
			return nil, err
		}
		attrs.Add(name, val)
	}
	return attrs, nil
}

// parseModifications parses the operation groups of a modify record: each
// group is "<op>: <attribute>", then value lines for that attribute, then a
// lone "-". The final separator may be omitted at end of block.
func parseModifications(lines []string) ([]Modification, error) {
	var mods []Modification
	i := 0
	for i < len(lines) {
		opName, attrVal, err := splitAttrLine(lines[i])
		if err != nil {
			return nil, err
		}
		op, ok := parseModifyOp(opName)
		if !ok {
			return nil, fmt.Errorf("%w: unknown modify operation %q", ErrMalformedBlock, opName)
		}
		attrName := attrVal.String()
		if attrName == "" {
			return nil, fmt.Errorf("%w: modify operation without attribute", ErrMalformedBlock)
		}
		i++

		mod := Modification{Op: op, Attribute: attrName}
		for i < len(lines) {
			if lines[i] == "-" {
				i++
				break
			}
			name, val, err := splitAttrLine(lines[i])
			if err != nil {
				return nil, err
			}
			if !strings.EqualFold(name, attrName) {
				return nil, fmt.Errorf("%w: value line %q does not match operation attribute %q", ErrMalformedBlock, name, attrName)
			}
			mod.Values = append(mod.Values, val.String())
			i++
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

// parseModifyDN parses the fixed newrdn / deleteoldrdn / optional newsuperior
// sequence shared by the modrdn and moddn changetypes.
func parseModifyDN(dn string, lines []string) (Record, error) {
	if len(lines) < 2 || len(lines) > 3 {
		return nil, fmt.Errorf("%w: moddn record needs newrdn and deleteoldrdn", ErrMalformedBlock)
	}

	name, val, err := splitAttrLine(lines[0])
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(name, "newrdn") || val.String() == "" {
		return nil, fmt.Errorf("%w: expected newrdn line", ErrMalformedBlock)
	}
	newRDN := val.String()

	name, val, err = splitAttrLine(lines[1])
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(name, "deleteoldrdn") {
		return nil, fmt.Errorf("%w: expected deleteoldrdn line", ErrMalformedBlock)
	}
	var deleteOld bool
	switch val.String() {
	case "0":
		deleteOld = false
	case "1":
		deleteOld = true
	default:
		return nil, fmt.Errorf("%w: deleteoldrdn is %q", ErrInvalidBoolean, val.String())
	}

	change := &ModifyDNChange{DN: dn, NewRDN: newRDN, DeleteOldRDN: deleteOld}
	if len(lines) == 3 {
		name, val, err = splitAttrLine(lines[2])
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(name, "newsuperior") {
			return nil, fmt.Errorf("%w: expected newsuperior line", ErrMalformedBlock)
		}
		superior := val.String()
		change.NewSuperior = &superior
	}
	return change, nil
}

// splitAttrLine splits one logical "name: value" line. A "::" separator marks
// a base64 value, which decodes to text when the bytes are valid UTF-8 and to
// a binary value otherwise. An empty value ("attr:") is kept as the empty
// string.
func splitAttrLine(line string) (string, Value, error) {
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return "", Value{}, fmt.Errorf("%w: line %q has no attribute separator", ErrMalformedBlock, line)
	}
	name := line[:idx]
	if strings.ContainsAny(name, " \t") {
		return "", Value{}, fmt.Errorf("%w: invalid attribute name %q", ErrMalformedBlock, name)
	}
	rest := line[idx+1:]

	switch {
	case strings.HasPrefix(rest, ":"):
		encoded := strings.TrimSpace(rest[1:])
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return "", Value{}, fmt.Errorf("%w: attribute %q: %v", ErrInvalidBase64, name, err)
		}
		return name, valueFromBytes(decoded), nil
	case strings.HasPrefix(rest, "<"):
		return "", Value{}, fmt.Errorf("%w: URL value references are not supported", ErrMalformedBlock)
	default:
		val := strings.TrimLeft(rest, " ")
		if !utf8.ValidString(val) {
			return "", Value{}, fmt.Errorf("%w: value of %q is not valid UTF-8", ErrMalformedBlock, name)
		}
		return name, TextValue(val), nil
	}
}
