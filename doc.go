// Package ldifion converts directory data between the LDIF interchange
// format (RFC2849) and Amazon Ion text documents, and replays directory
// changes against an LDAP server via go-ldap.
//
// The core of the package is a bidirectional transcoder built from four
// symmetric pieces: LDIFReader and IonReader decode a stream into Record
// values, LDIFWriter and IonWriter render Record values back into text. A
// Record is either a full entry snapshot or one of the four change-record
// kinds (add, delete, modify, moddn). Decoders are lazy and single-pass;
// one malformed block is reported as a *RecordError and skipped, it never
// aborts the rest of the stream.
//
// # Transcoding
//
//	store := ldifion.NewMemoryStorage()
//	in := store.Put([]byte("dn: cn=bob,dc=orga,dc=com\ndescription: Some description\n"))
//
//	t := ldifion.NewTranscoder(store)
//	result, err := t.LDIFToIon([]string{in})
//	if err != nil {
//		log.Fatal(err)
//	}
//	out, _ := store.Get(result.Outputs[0])
//	fmt.Printf("found=%d translated=%d\n%s\n", result.Found, result.Translated, out)
//
// # Directory operations
//
//	client, err := ldifion.New(&ldifion.Config{
//		Server: "ldaps://ldap.example.com:636",
//		BaseDN: "dc=example,dc=com",
//	}, "cn=admin,dc=example,dc=com", "password")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	res, err := client.Search(ldifion.SearchParams{
//		Filter:   "(|(sn=melusine*)(sn=metatron*))",
//		PageSize: 500,
//	})
//
// Search stores its matches as LDIF through the same Storage abstraction the
// transcoder uses; ApplyChanges, AddEntries and DeleteEntries read LDIF units
// back and replay them against the server one record at a time.
//
// Values are binary-safe end to end: a value that is not valid UTF-8 is
// rendered as a base64 "::" line in LDIF and as a blob in Ion, and
// round-trips to the identical byte sequence.
package ldifion
