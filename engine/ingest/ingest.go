// Package ingest processes raw document extractions into the reconciliation
// engine. Documents arrive either over NATS or synchronously from the API;
// both paths run the same pipeline: validate, near-duplicate check,
// reconcile, then project the result to the graph and vector stores.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/clearhaul/fleetcomply/engine/domain"
	"github.com/clearhaul/fleetcomply/engine/extract"
	"github.com/clearhaul/fleetcomply/engine/graph"
	"github.com/clearhaul/fleetcomply/engine/reconcile"
	"github.com/clearhaul/fleetcomply/engine/semantic"
	"github.com/clearhaul/fleetcomply/pkg/fn"
	"github.com/clearhaul/fleetcomply/pkg/metrics"
	"github.com/clearhaul/fleetcomply/pkg/natsutil"
	"github.com/clearhaul/fleetcomply/pkg/ollama"
	"github.com/clearhaul/fleetcomply/pkg/resilience"
)

const (
	// Subject carries raw document extractions from OCR providers.
	Subject = "compliance.documents"
	// DLQSubject receives extractions that kept failing.
	DLQSubject = "compliance.documents.dlq"
	// MaxRetries before a message lands on the DLQ.
	MaxRetries = 3
)

// Deps wires the processor. Embedder, Index, and Snapshots are optional:
// without them the pipeline skips near-duplicate detection and projection.
type Deps struct {
	Validator *extract.Validator
	Engine    *reconcile.Engine
	Embedder  ollama.Embedder
	Index     *semantic.DocumentIndex
	Snapshots *graph.SnapshotStore
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Outcome is the result of processing one extraction.
type Outcome struct {
	Result    reconcile.AddResult `json:"result"`
	Report    extract.Report      `json:"report"`
	Duplicate *semantic.Match     `json:"duplicate,omitempty"`
}

// Processor runs the document pipeline.
type Processor struct {
	deps     Deps
	breaker  *resilience.Breaker
	pipeline fn.Stage[*domain.RawExtraction, Outcome]
	log      *slog.Logger
}

// NewProcessor builds a Processor from its dependencies.
func NewProcessor(deps Deps) *Processor {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Processor{
		deps:    deps,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		log:     log,
	}
	logReport := fn.TapStage(func(_ context.Context, env *envelope) {
		log.Debug("ingest: extraction assessed",
			"file_name", env.raw.FileName,
			"status", env.report.Status,
			"confidence", env.report.Confidence,
		)
	})
	p.pipeline = fn.Then(
		fn.TracedStage("ingest.validate", fn.Then(p.validateStage(), logReport)),
		fn.Then(
			fn.TracedStage("ingest.dedupe", p.dedupeStage()),
			fn.Then(
				fn.TracedStage("ingest.reconcile", p.reconcileStage()),
				fn.TracedStage("ingest.project", p.projectStage()),
			),
		),
	)
	return p
}

// envelope carries a document through the pipeline stages.
type envelope struct {
	raw       *domain.RawExtraction
	report    extract.Report
	embedding []float32
	duplicate *semantic.Match
	result    reconcile.AddResult
}

func (p *Processor) validateStage() fn.Stage[*domain.RawExtraction, *envelope] {
	return func(_ context.Context, raw *domain.RawExtraction) fn.Result[*envelope] {
		if raw == nil {
			return fn.Errf[*envelope]("nil extraction payload")
		}
		return fn.Ok(&envelope{raw: raw, report: p.deps.Validator.Validate(raw)})
	}
}

// dedupeStage embeds the document text and asks the vector index whether an
// almost identical document already exists for the same VIN. Index errors
// degrade to "not a duplicate"; a rescan slipping through is just a
// duplicate-submission conflict downstream.
func (p *Processor) dedupeStage() fn.Stage[*envelope, *envelope] {
	return func(ctx context.Context, env *envelope) fn.Result[*envelope] {
		if p.deps.Embedder == nil || p.deps.Index == nil {
			return fn.Ok(env)
		}
		if env.raw.Text == "" || env.report.CleanVIN == "" {
			return fn.Ok(env)
		}
		vec, err := p.deps.Embedder.Embed(ctx, env.raw.Text)
		if err != nil {
			p.log.Warn("ingest: embed failed, skipping duplicate check", "error", err)
			return fn.Ok(env)
		}
		env.embedding = vec
		match, dup, err := p.deps.Index.NearDuplicate(ctx, env.report.CleanVIN, vec)
		if err != nil {
			p.log.Warn("ingest: near-duplicate check failed", "error", err)
			return fn.Ok(env)
		}
		if dup {
			env.duplicate = &match
		}
		return fn.Ok(env)
	}
}

func (p *Processor) reconcileStage() fn.Stage[*envelope, *envelope] {
	return func(_ context.Context, env *envelope) fn.Result[*envelope] {
		if env.duplicate != nil {
			return fn.Ok(env)
		}
		env.result = p.deps.Engine.AddDocument(env.raw, env.report)
		if !env.result.Success {
			return fn.Err[*envelope](domain.NewValidationError("vin", env.raw.FileName, domain.ErrNoVIN))
		}
		return fn.Ok(env)
	}
}

// projectStage pushes the updated aggregate to Neo4j and the document
// embedding to Qdrant. Projection failures are logged and counted, not
// propagated: the engine already holds the truth, and replaying a snapshot
// later converges.
func (p *Processor) projectStage() fn.Stage[*envelope, Outcome] {
	return func(ctx context.Context, env *envelope) fn.Result[Outcome] {
		out := Outcome{Result: env.result, Report: env.report, Duplicate: env.duplicate}
		if env.duplicate != nil {
			return fn.Ok(out)
		}

		if p.deps.Snapshots != nil {
			vehicle, err := p.deps.Engine.GetVehicle(env.result.VehicleVIN)
			if err == nil {
				err = p.breaker.Call(ctx, func(ctx context.Context) error {
					return p.deps.Snapshots.SaveSnapshot(ctx, vehicle)
				})
			}
			if err != nil {
				p.counter("snapshot_failures_total").Inc()
				p.log.Warn("ingest: snapshot projection failed", "vin", env.result.VehicleVIN, "error", err)
			}
		}

		if p.deps.Index != nil && env.embedding != nil {
			err := p.deps.Index.Index(ctx, semantic.DocumentVector{
				DocumentID:   env.result.DocumentID,
				VIN:          env.result.VehicleVIN,
				DocumentType: string(domain.InferDocumentType(env.raw.DocumentType, env.raw.FileName)),
				FileName:     env.raw.FileName,
				Embedding:    env.embedding,
			})
			if err != nil {
				p.counter("index_failures_total").Inc()
				p.log.Warn("ingest: embedding index failed", "document_id", env.result.DocumentID, "error", err)
			}
		}
		return fn.Ok(out)
	}
}

// Process runs one extraction through the pipeline.
func (p *Processor) Process(ctx context.Context, raw *domain.RawExtraction) (Outcome, error) {
	start := time.Now()
	result := p.pipeline(ctx, raw)
	out, err := result.Unwrap()

	if p.deps.Metrics != nil {
		p.deps.Metrics.Histogram("document_processing_seconds", "Pipeline latency.", nil).Since(start)
		switch {
		case err != nil:
			p.counter(metrics.WithLabels("documents_processed_total", "status", "failed")).Inc()
		case out.Duplicate != nil:
			p.counter(metrics.WithLabels("documents_processed_total", "status", "duplicate")).Inc()
		default:
			p.counter(metrics.WithLabels("documents_processed_total", "status", "ok")).Inc()
		}
	}
	return out, err
}

func (p *Processor) counter(name string) *metrics.Counter {
	if p.deps.Metrics == nil {
		return &metrics.Counter{}
	}
	return p.deps.Metrics.Counter(name, "")
}

// dlqMessage wraps a failed extraction for the dead-letter queue.
type dlqMessage struct {
	Raw     json.RawMessage `json:"raw"`
	Error   string          `json:"error"`
	Retries int             `json:"retries"`
}

// StartConsumer subscribes the processor to the document subject. Failed
// messages are republished with an incremented retry count; after MaxRetries
// they move to the DLQ.
func StartConsumer(nc *nats.Conn, p *Processor) (*nats.Subscription, error) {
	return natsutil.SubscribeMsg(nc, Subject, func(ctx context.Context, msg *nats.Msg) {
		var raw domain.RawExtraction
		if err := json.Unmarshal(msg.Data, &raw); err != nil {
			p.log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		out, err := p.Process(ctx, &raw)
		if err == nil {
			if out.Duplicate != nil {
				p.log.Info("ingest: near-duplicate skipped",
					"file_name", raw.FileName,
					"matched_document", out.Duplicate.DocumentID,
					"score", out.Duplicate.Score,
				)
			} else {
				p.log.Info("ingest: document processed",
					"vin", out.Result.VehicleVIN,
					"document_id", out.Result.DocumentID,
					"conflicts", len(out.Result.Conflicts),
				)
			}
			return
		}

		retries := natsutil.RetryCount(msg) + 1
		p.log.Error("ingest: pipeline failed",
			"error", err,
			"file_name", raw.FileName,
			"retry", retries,
		)
		if retries >= MaxRetries {
			dlq := dlqMessage{Raw: msg.Data, Error: err.Error(), Retries: retries}
			if err := natsutil.Publish(ctx, nc, DLQSubject, dlq); err != nil {
				p.log.Error("ingest: DLQ publish failed", "error", err)
			}
			return
		}
		if err := natsutil.Republish(ctx, nc, msg, retries); err != nil {
			p.log.Error("ingest: retry publish failed", "error", err)
		}
	})
}

// String implements fmt.Stringer for logging.
func (o Outcome) String() string {
	if o.Duplicate != nil {
		return fmt.Sprintf("duplicate of %s", o.Duplicate.DocumentID)
	}
	return fmt.Sprintf("vin=%s document=%s", o.Result.VehicleVIN, o.Result.DocumentID)
}
