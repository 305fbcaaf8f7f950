package ldifion

import (
	"encoding/base64"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains a record sequence into separate record and error slices.
func collect(seq iter.Seq2[Record, error]) ([]Record, []error) {
	var recs []Record
	var errs []error
	for rec, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, errs
}

func decodeLDIF(t *testing.T, src string) []Record {
	t.Helper()
	recs, errs := collect(NewLDIFReader(strings.NewReader(src)).Records())
	require.Empty(t, errs)
	return recs
}

func TestLDIFReaderEntry(t *testing.T) {
	src := "dn: cn=bob@orga.com,ou=diffusion_list,dc=orga,dc=com\n" +
		"description: Some description\n" +
		"someOtherAttribute: perhaps\n" +
		"description: Some other description\n" +
		"someOtherAttribute: perhapsAgain\n\n"

	recs := decodeLDIF(t, src)
	require.Len(t, recs, 1)

	entry, ok := recs[0].(*Entry)
	require.True(t, ok)
	assert.Equal(t, "cn=bob@orga.com,ou=diffusion_list,dc=orga,dc=com", entry.DN)

	require.Len(t, entry.Attributes, 2)
	assert.Equal(t, "description", entry.Attributes[0].Name)
	descriptions := entry.Attributes[0].Values
	require.Len(t, descriptions, 2)
	assert.Equal(t, "Some description", descriptions[0].String())
	assert.Equal(t, "Some other description", descriptions[1].String())
}

func TestLDIFReaderFoldingAndComments(t *testing.T) {
	src := "# a comment line\n" +
		"#  folded comment\n" +
		" continuation of the comment\n" +
		"dn: cn=bob,dc=orga,dc=com\n" +
		"description: a value split\n" +
		"  over two lines\n\n"

	recs := decodeLDIF(t, src)
	require.Len(t, recs, 1)
	entry := recs[0].(*Entry)
	values := entry.Attributes.Get("description")
	require.Len(t, values, 1)
	assert.Equal(t, "a value split over two lines", values[0].String())
}

func TestLDIFReaderCRLFAndVersionLine(t *testing.T) {
	src := "version: 1\r\ndn: cn=bob,dc=orga,dc=com\r\nmail: bob@orga.com\r\n\r\n"

	recs := decodeLDIF(t, src)
	require.Len(t, recs, 1)
	assert.Equal(t, "bob@orga.com", recs[0].(*Entry).Attributes.Get("mail")[0].String())
}

func TestLDIFReaderBase64Values(t *testing.T) {
	binary := []byte{0xff, 0x00, 0x01}
	src := "dn:: " + base64.StdEncoding.EncodeToString([]byte("cn=böb,dc=orga,dc=com")) + "\n" +
		"photo:: " + base64.StdEncoding.EncodeToString(binary) + "\n" +
		"note:: " + base64.StdEncoding.EncodeToString([]byte("plain text")) + "\n\n"

	recs := decodeLDIF(t, src)
	require.Len(t, recs, 1)
	entry := recs[0].(*Entry)
	assert.Equal(t, "cn=böb,dc=orga,dc=com", entry.DN)

	photo := entry.Attributes.Get("photo")[0]
	assert.True(t, photo.IsBinary())
	assert.Equal(t, binary, photo.Bytes())

	// Base64 that decodes to valid UTF-8 becomes text.
	note := entry.Attributes.Get("note")[0]
	assert.False(t, note.IsBinary())
	assert.Equal(t, "plain text", note.String())
}

func TestLDIFReaderEmptyValue(t *testing.T) {
	src := "dn: cn=bob,dc=orga,dc=com\nmail:\nmail: second\n\n"

	recs := decodeLDIF(t, src)
	values := recs[0].(*Entry).Attributes.Get("mail")
	require.Len(t, values, 2)
	assert.Equal(t, "", values[0].String())
	assert.Equal(t, "second", values[1].String())
}

func TestLDIFReaderChangeRecords(t *testing.T) {
	src := "dn: cn=new,dc=orga,dc=com\n" +
		"changetype: add\n" +
		"objectClass: person\n" +
		"cn: new\n" +
		"\n" +
		"dn: cn=old,dc=orga,dc=com\n" +
		"changetype: delete\n" +
		"\n" +
		"dn: cn=triss@orga.com,ou=diffusion_list,dc=orga,dc=com\n" +
		"changetype: modrdn\n" +
		"newrdn: cn=triss@orga.com\n" +
		"deleteoldrdn: 0\n" +
		"newsuperior: ou=expeople,dc=example,dc=com\n" +
		"\n" +
		"dn: cn=triss@orga.com,ou=diffusion_list,dc=orga,dc=com\n" +
		"changetype: moddn\n" +
		"newrdn: cn=triss@orga.com\n" +
		"deleteoldrdn: 1\n\n"

	recs := decodeLDIF(t, src)
	require.Len(t, recs, 4)

	add, ok := recs[0].(*AddChange)
	require.True(t, ok)
	assert.Equal(t, "cn=new,dc=orga,dc=com", add.DN)
	assert.Equal(t, "person", add.Attributes.Get("objectClass")[0].String())

	del, ok := recs[1].(*DeleteChange)
	require.True(t, ok)
	assert.Equal(t, "cn=old,dc=orga,dc=com", del.DN)

	// modrdn and moddn are the same change kind.
	moddn, ok := recs[2].(*ModifyDNChange)
	require.True(t, ok)
	assert.Equal(t, "cn=triss@orga.com", moddn.NewRDN)
	assert.False(t, moddn.DeleteOldRDN)
	require.NotNil(t, moddn.NewSuperior)
	assert.Equal(t, "ou=expeople,dc=example,dc=com", *moddn.NewSuperior)

	bare, ok := recs[3].(*ModifyDNChange)
	require.True(t, ok)
	assert.True(t, bare.DeleteOldRDN)
	assert.Nil(t, bare.NewSuperior)
}

func TestLDIFReaderModifyOrdering(t *testing.T) {
	src := "dn: cn=triss@orga.com,ou=diffusion_list,dc=orga,dc=com\n" +
		"changetype: modify\n" +
		"delete: description\n" +
		"description: Some description 3\n" +
		"-\n" +
		"add: description\n" +
		"description: Some description 4\n" +
		"-\n" +
		"replace: someOtherAttribute\n" +
		"someOtherAttribute: Loves herself more\n" +
		"-\n" +
		"increment: uidNumber\n" +
		"uidNumber: -4\n" +
		"-\n\n"

	recs := decodeLDIF(t, src)
	require.Len(t, recs, 1)

	mod, ok := recs[0].(*ModifyChange)
	require.True(t, ok)

	want := []Modification{
		{Op: ModifyDelete, Attribute: "description", Values: []string{"Some description 3"}},
		{Op: ModifyAdd, Attribute: "description", Values: []string{"Some description 4"}},
		{Op: ModifyReplace, Attribute: "someOtherAttribute", Values: []string{"Loves herself more"}},
		{Op: ModifyIncrement, Attribute: "uidNumber", Values: []string{"-4"}},
	}
	require.Len(t, mod.Modifications, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(mod.Modifications[i]), "modification %d", i)
	}
}

func TestLDIFReaderModifyWithoutFinalSeparator(t *testing.T) {
	src := "dn: cn=a,dc=orga,dc=com\n" +
		"changetype: modify\n" +
		"replace: mail\n" +
		"mail: new@orga.com\n\n"

	recs := decodeLDIF(t, src)
	mod := recs[0].(*ModifyChange)
	require.Len(t, mod.Modifications, 1)
	assert.Equal(t, ModifyReplace, mod.Modifications[0].Op)
}

func TestLDIFReaderRecoversFromBadBlocks(t *testing.T) {
	src := "dn: cn=a,dc=orga,dc=com\n" +
		"description: first\n" +
		"\n" +
		"dn: cn=b,dc=orga,dc=com\n" +
		"changetype: bogus\n" +
		"\n" +
		"dn: cn=c,dc=orga,dc=com\n" +
		"changetype: delete\n\n"

	recs, errs := collect(NewLDIFReader(strings.NewReader(src)).Records())
	require.Len(t, recs, 2)
	require.Len(t, errs, 1)

	assert.Equal(t, "cn=a,dc=orga,dc=com", recs[0].RecordDN())
	assert.Equal(t, "cn=c,dc=orga,dc=com", recs[1].RecordDN())

	require.True(t, IsRecordError(errs[0]))
	assert.ErrorIs(t, errs[0], ErrUnknownChangeType)

	var re *RecordError
	require.ErrorAs(t, errs[0], &re)
	assert.Contains(t, re.Lines, "changetype: bogus")
}

func TestLDIFReaderMalformedBlocks(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"no dn line", "description: x\n\n", ErrMalformedBlock},
		{"empty dn", "dn:\nmail: x\n\n", ErrMissingDN},
		{"no separator", "dn: cn=a\njust words\n\n", ErrMalformedBlock},
		{"bad base64", "dn: cn=a\nphoto:: !!!\n\n", ErrInvalidBase64},
		{"delete with trailing lines", "dn: cn=a\nchangetype: delete\nmail: x\n\n", ErrMalformedBlock},
		{"bad deleteoldrdn", "dn: cn=a\nchangetype: moddn\nnewrdn: cn=b\ndeleteoldrdn: yes\n\n", ErrInvalidBoolean},
		{"moddn missing lines", "dn: cn=a\nchangetype: moddn\nnewrdn: cn=b\n\n", ErrMalformedBlock},
		{"modify unknown op", "dn: cn=a\nchangetype: modify\nappend: mail\n-\n\n", ErrMalformedBlock},
		{"modify value attribute mismatch", "dn: cn=a\nchangetype: modify\nadd: mail\nphone: 123\n-\n\n", ErrMalformedBlock},
		{"url reference", "dn: cn=a\nphoto:< file:///img.jpg\n\n", ErrMalformedBlock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, errs := collect(NewLDIFReader(strings.NewReader(tt.src)).Records())
			assert.Empty(t, recs)
			require.Len(t, errs, 1)
			assert.True(t, IsRecordError(errs[0]))
			assert.ErrorIs(t, errs[0], tt.want)
		})
	}
}

func TestLDIFReaderEmptyInput(t *testing.T) {
	recs, errs := collect(NewLDIFReader(strings.NewReader("")).Records())
	assert.Empty(t, recs)
	assert.Empty(t, errs)

	recs, errs = collect(NewLDIFReader(strings.NewReader("\n\n\n")).Records())
	assert.Empty(t, recs)
	assert.Empty(t, errs)
}

func TestLDIFReaderMissingTrailingBlankLine(t *testing.T) {
	recs := decodeLDIF(t, "dn: cn=a,dc=orga,dc=com\nmail: x")
	require.Len(t, recs, 1)
	assert.Equal(t, "x", recs[0].(*Entry).Attributes.Get("mail")[0].String())
}
