package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"cmodel/internal/config"
	"cmodel/internal/exposure"
	"cmodel/internal/fit"
	"cmodel/internal/image"
	"cmodel/internal/storage"
)

// referenceSource supplies forced-photometry references. Satisfied by
// *refcat.Catalog.
type referenceSource interface {
	Reference(objectID int64) (fit.Result, error)
}

// Measurer implements Processor: it loads a bundle, measures every
// source in it, and persists the records. One object failing, even by
// panic, never aborts the rest of the bundle.
type Measurer struct {
	log   *slog.Logger
	store *storage.Store
	alg   *fit.Algorithm
	diag  config.Diagnostics
	refs  referenceSource
}

// NewMeasurer builds the standard processor. refs may be nil when
// forced jobs are not expected.
func NewMeasurer(logger *slog.Logger, store *storage.Store, alg *fit.Algorithm, diag config.Diagnostics, refs referenceSource) *Measurer {
	return &Measurer{log: logger, store: store, alg: alg, diag: diag, refs: refs}
}

// Process measures all sources in the job's bundle.
func (m *Measurer) Process(ctx context.Context, job Job) Result {
	res := Result{Job: job}

	forced := job.Type == JobForced
	if forced && m.refs == nil {
		res.Error = fmt.Errorf("forced job without a reference catalog")
		return res
	}

	bundle, err := exposure.Load(job.BundlePath)
	if err != nil {
		res.Error = err
		return res
	}
	exp := bundle.Exposure()

	for _, src := range bundle.Sources {
		if ctx.Err() != nil {
			res.Error = ctx.Err()
			return res
		}
		rec := m.measureObject(src, exp, forced, job.ID)
		if m.store != nil {
			if err := m.store.WriteMeasurement(rec); err != nil {
				m.log.Error("measurement write failed", "object_id", src.ID, "error", err)
			}
		}
		res.Records = append(res.Records, rec)
		res.Measured++
		if rec.Flags&fit.FlagFailed != 0 {
			res.Failed++
		}
	}
	return res
}

// measureObject runs one object through the fit, reducing any panic
// to a failed record.
func (m *Measurer) measureObject(src exposure.Source, exp *image.Exposure, forced bool, jobID string) (rec storage.MeasurementRecord) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("measurement panicked", "object_id", src.ID, "panic", r)
			rec = storage.MeasurementRecord{
				ObjectID: src.ID,
				JobID:    jobID,
				Forced:   forced,
				Flags:    fit.FlagFailed,
			}
		}
	}()

	in := fit.Inputs{
		Exposure:   exp,
		Footprint:  src.FootprintSpans(),
		PSF:        src.MultiGaussian(),
		Center:     src.Center(),
		Moments:    src.Moments(),
		ApproxFlux: src.ApproxFlux,
	}

	var out fit.Result
	if forced {
		ref, err := m.refs.Reference(src.ID)
		if err != nil {
			m.log.Warn("no reference for object", "object_id", src.ID, "error", err)
			return storage.MeasurementRecord{ObjectID: src.ID, JobID: jobID, Forced: true, Flags: fit.FlagNoShape | fit.FlagFailed}
		}
		out = m.alg.ApplyForced(in, ref)
	} else {
		out = m.alg.Apply(in)
	}

	m.writeTraces(src.ID, out)
	return storage.RecordFromResult(src.ID, jobID, forced, out)
}

// writeTraces persists optimizer histories for allowlisted objects.
func (m *Measurer) writeTraces(objectID int64, res fit.Result) {
	if !m.diag.Enabled || m.store == nil || !m.traceWanted(objectID) {
		return
	}
	for stage, sr := range map[string]fit.StageResult{
		"initial": res.Initial,
		"exp":     res.Exp,
		"dev":     res.Dev,
	} {
		if len(sr.History) == 0 {
			continue
		}
		trace := make([]storage.TraceRecord, 0, len(sr.History))
		for _, it := range sr.History {
			trace = append(trace, storage.TraceRecord{
				ObjectID:    objectID,
				Stage:       stage,
				Iteration:   it.N,
				Objective:   it.Objective,
				TrustRadius: it.TrustRadius,
				Accepted:    it.Accepted,
				Parameters:  it.Parameters,
			})
		}
		if err := m.store.WriteTrace(objectID, stage, trace); err != nil {
			m.log.Error("trace write failed", "object_id", objectID, "stage", stage, "error", err)
		}
	}
}

// traceWanted checks the allowlist; an empty list traces nothing.
func (m *Measurer) traceWanted(objectID int64) bool {
	for _, id := range m.diag.IDs {
		if id == objectID {
			return true
		}
	}
	return false
}
