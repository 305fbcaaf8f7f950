package ldifion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"
)

// Transcoder drives per-unit conversion between LDIF and the Ion document
// format. Each input unit is decoded record by record and every record is
// re-encoded immediately; a unit shares no state with any other unit, so
// callers may transcode different units concurrently with separate
// Transcoders or the same one (the Transcoder itself is stateless between
// calls).
type Transcoder struct {
	storage Storage
	logger  *slog.Logger
}

// TranscoderOption configures a Transcoder.
type TranscoderOption func(*Transcoder)

// WithTranscoderLogger sets the structured logger used for per-record and
// per-unit diagnostics. Defaults to slog.Default().
func WithTranscoderLogger(logger *slog.Logger) TranscoderOption {
	return func(t *Transcoder) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTranscoder returns a transcoder reading and writing units through
// storage.
func NewTranscoder(storage Storage, opts ...TranscoderOption) *Transcoder {
	t := &Transcoder{storage: storage, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Result aggregates one transcoding run. Found counts blocks that were
// either parsed into a record or flagged as a record error; Translated counts
// records that were successfully re-encoded. Outputs holds the references of
// produced units in input order; failed units are absent from Outputs and
// listed in Failed instead.
type Result struct {
	Outputs    []string
	Found      int
	Translated int
	Failed     []string
}

// LDIFToIon converts each LDIF input unit into an Ion document unit.
func (t *Transcoder) LDIFToIon(inputs []string) (*Result, error) {
	return t.LDIFToIonContext(context.Background(), inputs)
}

// LDIFToIonContext converts each LDIF input unit into an Ion document unit,
// checking ctx between units.
func (t *Transcoder) LDIFToIonContext(ctx context.Context, inputs []string) (*Result, error) {
	return t.run(ctx, "ldif_to_ion", inputs, t.ldifToIonUnit)
}

// IonToLDIF converts each Ion document unit into an LDIF unit.
func (t *Transcoder) IonToLDIF(inputs []string) (*Result, error) {
	return t.IonToLDIFContext(context.Background(), inputs)
}

// IonToLDIFContext converts each Ion document unit into an LDIF unit,
// checking ctx between units.
func (t *Transcoder) IonToLDIFContext(ctx context.Context, inputs []string) (*Result, error) {
	return t.run(ctx, "ion_to_ldif", inputs, t.ionToLDIFUnit)
}

// run applies unitFn to every input in order. A unit failure (open error,
// stream error, or a non-empty unit with zero translated records) excludes
// that unit from the outputs and never aborts the others. A run over a
// non-empty input list that produces no output at all fails with
// ErrNothingTranslated.
func (t *Transcoder) run(ctx context.Context, origin string, inputs []string, unitFn func(io.Reader, io.Writer) (int, int, error)) (*Result, error) {
	res := &Result{}
	for _, ref := range inputs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		start := time.Now()
		found, translated, out, err := t.runUnit(ref, unitFn)
		res.Found += found
		res.Translated += translated
		if err != nil {
			t.logger.Error("transcode_unit_failed",
				slog.String("origin", origin),
				slog.String("unit", ref),
				slog.String("error", err.Error()))
			res.Failed = append(res.Failed, ref)
			continue
		}

		outRef, err := t.store(out)
		if err != nil {
			t.logger.Error("transcode_unit_store_failed",
				slog.String("origin", origin),
				slog.String("unit", ref),
				slog.String("error", err.Error()))
			res.Failed = append(res.Failed, ref)
			continue
		}
		res.Outputs = append(res.Outputs, outRef)

		t.logger.Debug("transcode_unit_done",
			slog.String("origin", origin),
			slog.String("unit", ref),
			slog.String("output", outRef),
			slog.Int("found", found),
			slog.Int("translated", translated),
			slog.Duration("duration", time.Since(start)))
	}

	if len(inputs) > 0 && len(res.Outputs) == 0 {
		return res, ErrNothingTranslated
	}
	return res, nil
}

// runUnit transcodes one unit into memory. The output is committed to
// storage by the caller only when the whole unit succeeds, so a failed unit
// leaves nothing behind.
func (t *Transcoder) runUnit(ref string, unitFn func(io.Reader, io.Writer) (int, int, error)) (int, int, []byte, error) {
	rc, err := t.storage.Open(ref)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("open unit: %w", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	found, translated, err := unitFn(rc, &buf)
	if err != nil {
		return found, translated, nil, err
	}
	if found > 0 && translated == 0 {
		return found, translated, nil, fmt.Errorf("no record of %d translated", found)
	}
	return found, translated, buf.Bytes(), nil
}

func (t *Transcoder) store(content []byte) (string, error) {
	wc, ref, err := t.storage.Create()
	if err != nil {
		return "", fmt.Errorf("create output unit: %w", err)
	}
	if _, err := wc.Write(content); err != nil {
		wc.Close()
		return "", fmt.Errorf("write output unit: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("close output unit: %w", err)
	}
	return ref, nil
}

func (t *Transcoder) ldifToIonUnit(in io.Reader, out io.Writer) (int, int, error) {
	r := NewLDIFReader(in)
	w := NewIonWriter(out)
	return t.transcodeRecords(r.Records(), w.WriteRecord)
}

func (t *Transcoder) ionToLDIFUnit(in io.Reader, out io.Writer) (int, int, error) {
	r := NewIonReader(in)
	r.Logger = t.logger
	w := NewLDIFWriter(out)
	return t.transcodeRecords(r.Records(), w.WriteRecord)
}

// transcodeRecords is the inner decode-then-encode loop. Record-tier decode
// failures count as found, are logged and skipped; encode failures likewise.
// Only a stream-level error stops the loop and fails the unit.
func (t *Transcoder) transcodeRecords(records iter.Seq2[Record, error], write func(Record) error) (int, int, error) {
	found, translated := 0, 0
	for rec, err := range records {
		if err != nil {
			var re *RecordError
			if !errors.As(err, &re) {
				return found, translated, err
			}
			found++
			t.logger.Warn("record_skipped",
				slog.String("error", re.Err.Error()),
				slog.String("content", strings.Join(re.Lines, "\n")))
			continue
		}

		found++
		if err := write(rec); err != nil {
			t.logger.Warn("record_encode_failed",
				slog.String("dn", rec.RecordDN()),
				slog.String("error", err.Error()))
			continue
		}
		translated++
	}
	return found, translated, nil
}
