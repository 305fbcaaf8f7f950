package ldifion

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ApplyResult reports one change replay run. Requested counts records read
// from the inputs that map to a directory request; Applied counts requests
// the server accepted.
type ApplyResult struct {
	Requested int
	Applied   int
	Elapsed   time.Duration
}

// replayMode selects which record kinds a replay run accepts and how they map
// to directory requests.
type replayMode int

const (
	replayChanges replayMode = iota
	replayAdds
	replayDeletes
)

func (m replayMode) String() string {
	switch m {
	case replayAdds:
		return "add"
	case replayDeletes:
		return "delete"
	}
	return "modify"
}

// ApplyChanges reads LDIF change records from the input units and replays
// them against the directory in source order.
func (l *LDAP) ApplyChanges(inputs []string) (*ApplyResult, error) {
	return l.ApplyChangesContext(context.Background(), inputs)
}

// ApplyChangesContext reads LDIF change records from the input units and
// replays them against the directory in source order. Add, delete, modify and
// moddn records are all accepted; plain entries are logged and skipped.
func (l *LDAP) ApplyChangesContext(ctx context.Context, inputs []string) (*ApplyResult, error) {
	conn, err := l.GetConnectionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return l.replay(ctx, conn, inputs, replayChanges)
}

// AddEntries reads LDIF entries from the input units and adds each one to the
// directory.
func (l *LDAP) AddEntries(inputs []string) (*ApplyResult, error) {
	return l.AddEntriesContext(context.Background(), inputs)
}

// AddEntriesContext reads LDIF entries from the input units and adds each one
// to the directory. Plain entries and add change records are accepted.
func (l *LDAP) AddEntriesContext(ctx context.Context, inputs []string) (*ApplyResult, error) {
	conn, err := l.GetConnectionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return l.replay(ctx, conn, inputs, replayAdds)
}

// DeleteEntries reads LDIF entries from the input units and deletes the entry
// named by each DN.
func (l *LDAP) DeleteEntries(inputs []string) (*ApplyResult, error) {
	return l.DeleteEntriesContext(context.Background(), inputs)
}

// DeleteEntriesContext reads LDIF entries from the input units and deletes
// the entry named by each DN. Plain entries and delete change records are
// accepted.
func (l *LDAP) DeleteEntriesContext(ctx context.Context, inputs []string) (*ApplyResult, error) {
	conn, err := l.GetConnectionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return l.replay(ctx, conn, inputs, replayDeletes)
}

// replay drives the per-unit, per-record loop shared by the three operations.
// A unit that cannot be opened is logged and skipped; a record that cannot be
// decoded or that the server rejects is logged and skipped; neither aborts
// the run.
func (l *LDAP) replay(ctx context.Context, dir Directory, inputs []string, mode replayMode) (*ApplyResult, error) {
	res := &ApplyResult{}
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	for _, ref := range inputs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rc, err := l.storage.Open(ref)
		if err != nil {
			l.logger.Error("replay_unit_open_failed",
				slog.String("mode", mode.String()),
				slog.String("unit", ref),
				slog.String("error", err.Error()))
			continue
		}

		l.replayUnit(ctx, dir, rc, mode, res)
		rc.Close()
	}

	l.logger.Info("replay_done",
		slog.String("mode", mode.String()),
		slog.Int("requested", res.Requested),
		slog.Int("applied", res.Applied),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

func (l *LDAP) replayUnit(ctx context.Context, dir Directory, rc io.Reader, mode replayMode, res *ApplyResult) {
	for rec, err := range NewLDIFReader(rc).Records() {
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.Warn("replay_record_unreadable",
				slog.String("mode", mode.String()),
				slog.String("error", err.Error()))
			if !IsRecordError(err) {
				return
			}
			continue
		}

		apply, ok := l.requestFor(rec, mode)
		if !ok {
			l.logger.Warn("replay_record_skipped",
				slog.String("mode", mode.String()),
				slog.String("dn", rec.RecordDN()))
			continue
		}

		res.Requested++
		if err := apply(dir); err != nil {
			l.logger.Warn("replay_request_rejected",
				slog.String("mode", mode.String()),
				slog.String("dn", rec.RecordDN()),
				slog.String("error", err.Error()))
			continue
		}
		res.Applied++
	}
}

// requestFor maps one record to a directory request under the given mode.
// The bool result is false for record kinds the mode does not accept.
func (l *LDAP) requestFor(rec Record, mode replayMode) (func(Directory) error, bool) {
	switch mode {
	case replayAdds:
		switch r := rec.(type) {
		case *Entry:
			req := addRequest(r.DN, r.Attributes)
			return func(d Directory) error { return d.Add(req) }, true
		case *AddChange:
			req := addRequest(r.DN, r.Attributes)
			return func(d Directory) error { return d.Add(req) }, true
		}
	case replayDeletes:
		switch rec.(type) {
		case *Entry, *DeleteChange:
			req := ldap.NewDelRequest(rec.RecordDN(), nil)
			return func(d Directory) error { return d.Del(req) }, true
		}
	case replayChanges:
		switch r := rec.(type) {
		case *AddChange:
			req := addRequest(r.DN, r.Attributes)
			return func(d Directory) error { return d.Add(req) }, true
		case *DeleteChange:
			req := ldap.NewDelRequest(r.DN, nil)
			return func(d Directory) error { return d.Del(req) }, true
		case *ModifyChange:
			req := modifyRequest(r)
			return func(d Directory) error { return d.Modify(req) }, true
		case *ModifyDNChange:
			req := modifyDNRequest(r)
			return func(d Directory) error { return d.ModifyDN(req) }, true
		}
	}
	return nil, false
}

func addRequest(dn string, attrs Attributes) *ldap.AddRequest {
	req := ldap.NewAddRequest(dn, nil)
	for _, attr := range attrs {
		values := make([]string, 0, len(attr.Values))
		for _, val := range attr.Values {
			values = append(values, val.String())
		}
		req.Attribute(attr.Name, values)
	}
	return req
}

func modifyRequest(change *ModifyChange) *ldap.ModifyRequest {
	req := ldap.NewModifyRequest(change.DN, nil)
	for _, mod := range change.Modifications {
		switch mod.Op {
		case ModifyAdd:
			req.Add(mod.Attribute, mod.Values)
		case ModifyDelete:
			req.Delete(mod.Attribute, mod.Values)
		case ModifyReplace:
			req.Replace(mod.Attribute, mod.Values)
		case ModifyIncrement:
			value := ""
			if len(mod.Values) > 0 {
				value = mod.Values[0]
			}
			req.Increment(mod.Attribute, value)
		}
	}
	return req
}

func modifyDNRequest(change *ModifyDNChange) *ldap.ModifyDNRequest {
	superior := ""
	if change.NewSuperior != nil {
		superior = *change.NewSuperior
	}
	return ldap.NewModifyDNRequest(change.DN, change.NewRDN, change.DeleteOldRDN, superior)
}
