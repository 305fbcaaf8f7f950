package ldifion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeIon(t *testing.T, records ...Record) string {
	t.Helper()
	var sb strings.Builder
	w := NewIonWriter(&sb)
	for _, rec := range records {
		require.NoError(t, w.WriteRecord(rec))
	}
	return sb.String()
}

func TestIonWriterEntry(t *testing.T) {
	out := encodeIon(t, &Entry{
		DN: "cn=bob,dc=orga,dc=com",
		Attributes: Attributes{
			{Name: "mail", Values: []Value{TextValue("bob@orga.com")}},
		},
	})

	assert.Contains(t, out, `dn:"cn=bob,dc=orga,dc=com"`)
	assert.Contains(t, out, `mail:["bob@orga.com"]`)
	assert.NotContains(t, out, "changeType")

	recs, errs := collect(NewIonReader(strings.NewReader(out)).Records())
	require.Empty(t, errs)
	require.Len(t, recs, 1)
	_, ok := recs[0].(*Entry)
	assert.True(t, ok)
}

func TestIonWriterFieldOrder(t *testing.T) {
	out := encodeIon(t, &ModifyChange{
		DN: "cn=a,dc=orga,dc=com",
		Modifications: []Modification{
			{Op: ModifyDelete, Attribute: "description", Values: []string{"old"}},
			{Op: ModifyAdd, Attribute: "description", Values: []string{"new"}},
			{Op: ModifyReplace, Attribute: "mail", Values: []string{"a@orga.com"}},
		},
	})

	// dn leads, changeType precedes the variant payload, and modifications
	// appear in source order.
	dn := strings.Index(out, "dn:")
	ct := strings.Index(out, "changeType:")
	mods := strings.Index(out, "modifications:")
	require.True(t, dn >= 0 && ct >= 0 && mods >= 0, out)
	assert.Less(t, dn, ct)
	assert.Less(t, ct, mods)

	del := strings.Index(out, `"DELETE"`)
	add := strings.Index(out, `"ADD"`)
	repl := strings.Index(out, `"REPLACE"`)
	require.True(t, del >= 0 && add >= 0 && repl >= 0, out)
	assert.Less(t, del, add)
	assert.Less(t, add, repl)
}

func TestIonWriterBlankCollapse(t *testing.T) {
	out := encodeIon(t, &Entry{
		DN: "cn=a,dc=orga,dc=com",
		Attributes: Attributes{
			{Name: "allBlank", Values: []Value{TextValue(""), TextValue("  ")}},
			{Name: "mixed", Values: []Value{TextValue(""), TextValue("kept")}},
			{Name: "plain", Values: []Value{TextValue("x")}},
		},
	})

	// Blank-only lists collapse to a single null; mixed lists drop blanks.
	assert.Contains(t, out, "allBlank:[null]")
	assert.Contains(t, out, `mixed:["kept"]`)
	assert.Contains(t, out, `plain:["x"]`)
}

func TestIonWriterBinaryBlob(t *testing.T) {
	payload := []byte{0x00, 0x01, 0x02}
	out := encodeIon(t, &Entry{
		DN: "cn=a,dc=orga,dc=com",
		Attributes: Attributes{
			{Name: "photo", Values: []Value{BinaryValue(payload)}},
		},
	})

	assert.Contains(t, out, "{{AAEC}}")

	recs, errs := collect(NewIonReader(strings.NewReader(out)).Records())
	require.Empty(t, errs)
	photo := recs[0].(*Entry).Attributes.Get("photo")[0]
	assert.True(t, photo.IsBinary())
	assert.Equal(t, payload, photo.Bytes())
}

func TestIonWriterChangeRecords(t *testing.T) {
	superior := "ou=expeople,dc=example,dc=com"
	out := encodeIon(t,
		&AddChange{DN: "cn=new,dc=orga,dc=com", Attributes: Attributes{
			{Name: "objectClass", Values: []Value{TextValue("person")}},
		}},
		&DeleteChange{DN: "cn=old,dc=orga,dc=com"},
		&ModifyDNChange{DN: "cn=b,dc=orga,dc=com", NewRDN: "cn=c", DeleteOldRDN: true, NewSuperior: &superior},
		&ModifyDNChange{DN: "cn=b,dc=orga,dc=com", NewRDN: "cn=c", DeleteOldRDN: false},
	)

	// One record per line, newline separated.
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)

	assert.Contains(t, lines[0], `changeType:"add"`)
	assert.Contains(t, lines[1], `changeType:"delete"`)
	assert.NotContains(t, lines[1], "attributes")
	assert.Contains(t, lines[2], `changeType:"moddn"`)
	assert.Contains(t, lines[2], "deleteoldrdn:true")
	assert.Contains(t, lines[2], `newsuperior:"ou=expeople,dc=example,dc=com"`)
	assert.Contains(t, lines[3], "deleteoldrdn:false")
	assert.NotContains(t, lines[3], "newsuperior")
}

func TestIonWriterRejectsMissingDN(t *testing.T) {
	var sb strings.Builder
	w := NewIonWriter(&sb)
	err := w.WriteRecord(&DeleteChange{})
	assert.ErrorIs(t, err, ErrMissingDN)
	assert.Empty(t, sb.String())
}
