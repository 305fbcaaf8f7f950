package ldifion

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Scope selects how deep a search descends below the base DN. The zero value
// searches the whole subtree.
type Scope int

const (
	// ScopeSubtree considers the base entry and all entries below it.
	ScopeSubtree Scope = iota
	// ScopeBase considers only the entry named by the base DN.
	ScopeBase
	// ScopeSingleLevel considers only immediate subordinates of the base
	// entry.
	ScopeSingleLevel
)

func (s Scope) ldapScope() int {
	switch s {
	case ScopeBase:
		return ldap.ScopeBaseObject
	case ScopeSingleLevel:
		return ldap.ScopeSingleLevel
	}
	return ldap.ScopeWholeSubtree
}

// SearchParams describes one directory search.
type SearchParams struct {
	// BaseDN is the search base. Defaults to Config.BaseDN.
	BaseDN string
	// Filter is the LDAP filter. Defaults to "(objectClass=*)". Embedded
	// newlines and their indentation are stripped, so multi-line filters
	// from configuration files work unchanged.
	Filter string
	// Scope bounds the search depth.
	Scope Scope
	// Attributes selects the attributes to retrieve. Defaults to all user
	// attributes ("*").
	Attributes []string
	// SizeLimit caps the number of returned entries. When set, a server-side
	// size-limit-exceeded result is not an error: the truncated entry set is
	// kept.
	SizeLimit int
	// PageSize, when positive, retrieves the result set in RFC2696 pages of
	// this size so large trees survive server result limits.
	PageSize uint32
}

// SearchResult reports one completed search.
type SearchResult struct {
	// Ref is the storage reference of the LDIF rendering of all matched
	// entries, in server order.
	Ref string
	// EntriesFound is the number of matched entries.
	EntriesFound int
	// Elapsed is the wall-clock search duration.
	Elapsed time.Duration
}

var filterFolds = regexp.MustCompile(`\n\s*`)

// Search runs a directory search and stores the matching entries as LDIF.
func (l *LDAP) Search(params SearchParams) (*SearchResult, error) {
	return l.SearchContext(context.Background(), params)
}

// SearchContext runs a directory search with context, storing the matching
// entries as LDIF.
func (l *LDAP) SearchContext(ctx context.Context, params SearchParams) (*SearchResult, error) {
	conn, err := l.GetConnectionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return l.searchDirectory(ctx, conn, params)
}

func (l *LDAP) searchDirectory(ctx context.Context, dir Directory, params SearchParams) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	baseDN := params.BaseDN
	if baseDN == "" {
		baseDN = l.config.BaseDN
	}
	filter := filterFolds.ReplaceAllString(params.Filter, "")
	if filter == "" {
		filter = "(objectClass=*)"
	}
	attributes := params.Attributes
	if len(attributes) == 0 {
		attributes = []string{"*"}
	}

	req := ldap.NewSearchRequest(
		baseDN,
		params.Scope.ldapScope(),
		ldap.NeverDerefAliases,
		params.SizeLimit,
		0,
		false,
		filter,
		attributes,
		nil,
	)

	start := time.Now()
	var result *ldap.SearchResult
	var err error
	if params.PageSize > 0 {
		result, err = dir.SearchWithPaging(req, params.PageSize)
	} else {
		result, err = dir.Search(req)
	}
	elapsed := time.Since(start)
	if err != nil {
		// A capped search that hits its cap still carries the entries the
		// server returned before giving up.
		truncated := params.SizeLimit > 0 && ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded)
		if !truncated || result == nil {
			l.logger.Error("ldap_search_failed",
				slog.String("base_dn", baseDN),
				slog.String("filter", filter),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("ldifion: search %q under %q: %w", filter, baseDN, err)
		}
		l.logger.Warn("ldap_search_truncated",
			slog.String("base_dn", baseDN),
			slog.Int("size_limit", params.SizeLimit))
	}

	records := make([]Record, 0, len(result.Entries))
	for _, entry := range result.Entries {
		records = append(records, entryFromLDAP(entry))
	}
	rendered, err := MarshalLDIF(records...)
	if err != nil {
		return nil, err
	}

	wc, ref, err := l.storage.Create()
	if err != nil {
		return nil, fmt.Errorf("ldifion: create result unit: %w", err)
	}
	if _, err := wc.Write([]byte(rendered)); err != nil {
		wc.Close()
		return nil, fmt.Errorf("ldifion: write result unit: %w", err)
	}
	if err := wc.Close(); err != nil {
		return nil, fmt.Errorf("ldifion: close result unit: %w", err)
	}

	l.logger.Info("ldap_search_done",
		slog.String("base_dn", baseDN),
		slog.String("filter", filter),
		slog.Int("entries_found", len(records)),
		slog.Duration("duration", elapsed))

	return &SearchResult{Ref: ref, EntriesFound: len(records), Elapsed: elapsed}, nil
}

// entryFromLDAP converts a protocol entry into a record, preserving server
// attribute order and classifying each value as text or binary.
func entryFromLDAP(entry *ldap.Entry) *Entry {
	rec := &Entry{DN: entry.DN}
	for _, attr := range entry.Attributes {
		values := make([]Value, 0, len(attr.ByteValues))
		for _, b := range attr.ByteValues {
			values = append(values, valueFromBytes(b))
		}
		rec.Attributes.Add(attr.Name, values...)
	}
	return rec
}
