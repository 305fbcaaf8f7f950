package ldifion

import (
	"github.com/go-ldap/ldap/v3"
)

// Directory is the protocol seam between this library and a live LDAP
// server. *ldap.Conn satisfies it; tests substitute a mock. The transcoding
// core never touches it.
type Directory interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(req *ldap.SearchRequest, pageSize uint32) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
	Del(req *ldap.DelRequest) error
	Modify(req *ldap.ModifyRequest) error
	ModifyDN(req *ldap.ModifyDNRequest) error
}

var _ Directory = (*ldap.Conn)(nil)
