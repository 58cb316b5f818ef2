// Package orchestrator drives a feature request from submission through
// generation to the spec document and component registry.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kalambet/evodash/internal/apperr"
	"github.com/kalambet/evodash/internal/discovery"
	"github.com/kalambet/evodash/internal/generator"
	"github.com/kalambet/evodash/internal/opslog"
	"github.com/kalambet/evodash/internal/specstore"
	"github.com/kalambet/evodash/internal/storage"
)

// MaxDescriptionLength is counted in Unicode code points.
const MaxDescriptionLength = 2000

const instrumentationName = "github.com/kalambet/evodash/internal/orchestrator"

var componentName = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

type RequestLog interface {
	CreateFeatureRequest(description string) (storage.FeatureRequest, error)
	UpdateFeatureRequest(id string, status storage.RequestStatus, files []string, errMsg string) error
}

type Generator interface {
	Generate(ctx context.Context, description string) (generator.Result, error)
}

type SpecWriter interface {
	Write(mutate func(*specstore.Document) error) (specstore.Document, error)
}

type Refresher interface {
	Refresh(ctx context.Context) ([]discovery.Feature, error)
}

// Processing summarises the generator outcome for the caller.
type Processing struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	GeneratedFiles []string `json:"generatedFiles,omitempty"`
}

type SubmitResult struct {
	FeatureRequest storage.FeatureRequest `json:"featureRequest"`
	Processing     Processing             `json:"processing"`
}

type Orchestrator struct {
	requests  RequestLog
	generator Generator
	spec      SpecWriter
	registry  Refresher
	ops       *opslog.Log
	logger    *slog.Logger

	tracer  trace.Tracer
	counter metric.Int64Counter
}

// New wires an orchestrator. spec and registry may be nil.
func New(requests RequestLog, gen Generator, spec SpecWriter, registry Refresher, ops *opslog.Log, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if ops == nil {
		ops = opslog.New(opslog.DefaultCapacity)
	}
	o := &Orchestrator{
		requests:  requests,
		generator: gen,
		spec:      spec,
		registry:  registry,
		ops:       ops,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
	}
	counter, err := otel.Meter(instrumentationName).Int64Counter("evodash.feature_requests",
		metric.WithDescription("Feature requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("creating feature request counter", "error", err)
	}
	o.counter = counter
	return o
}

// ValidateDescription rejects blank descriptions and ones longer than
// MaxDescriptionLength code points.
func ValidateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return apperr.Validation("description is required")
	}
	if n := utf8.RuneCountInString(description); n > MaxDescriptionLength {
		return apperr.Validation("description must be at most %d characters, got %d", MaxDescriptionLength, n).
			WithDetail("length", n)
	}
	return nil
}

// Submit validates description, records a pending request, runs the
// generator and records the outcome. A generator failure is reported in
// the result, not as an error; errors are validation or storage failures.
//
// Once the request is recorded it runs to completion even if ctx is
// cancelled; only the generator timeout ends a run early.
func (o *Orchestrator) Submit(ctx context.Context, description string) (SubmitResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Submit",
		trace.WithAttributes(attribute.Int("description.length", utf8.RuneCountInString(description))))
	defer span.End()

	if err := ValidateDescription(description); err != nil {
		o.ops.Warn(opslog.KindRequestRejected, "", err.Error())
		o.count(ctx, "rejected")
		span.SetStatus(codes.Error, "validation failed")
		return SubmitResult{}, err
	}

	fr, err := o.requests.CreateFeatureRequest(description)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return SubmitResult{}, apperr.Wrap(apperr.CodeStore, "recording feature request", err)
	}
	span.SetAttributes(attribute.String("request.id", fr.ID))
	o.ops.Info(opslog.KindRequestReceived, fr.ID, summarize(description))
	o.logger.Info("feature request received", "id", fr.ID)

	ctx = context.WithoutCancel(ctx)
	o.ops.Info(opslog.KindGeneratorStarted, fr.ID, "generator invoked")
	res, genErr := o.generator.Generate(ctx, description)

	if genErr != nil || !res.Success {
		msg := res.Message
		if msg == "" && genErr != nil {
			msg = genErr.Error()
		}
		fr.Status = storage.StatusFailed
		fr.Error = msg
		fr.UpdatedAt = time.Now().UTC()
		if err := o.requests.UpdateFeatureRequest(fr.ID, storage.StatusFailed, nil, msg); err != nil {
			span.RecordError(err)
			return SubmitResult{}, apperr.Wrap(apperr.CodeStore, "updating feature request", err)
		}
		o.ops.Error(opslog.KindRequestFailed, fr.ID, msg)
		o.logger.Warn("feature request failed", "id", fr.ID, "error", msg)
		o.count(ctx, "failed")
		span.SetStatus(codes.Error, msg)
		return SubmitResult{
			FeatureRequest: fr,
			Processing:     Processing{Success: false, Message: msg},
		}, nil
	}

	files := res.Files
	if files == nil {
		files = []string{}
	}
	if err := o.requests.UpdateFeatureRequest(fr.ID, storage.StatusCompleted, files, ""); err != nil {
		span.RecordError(err)
		return SubmitResult{}, apperr.Wrap(apperr.CodeStore, "updating feature request", err)
	}
	fr.Status = storage.StatusCompleted
	fr.GeneratedComponents = files
	fr.UpdatedAt = time.Now().UTC()
	o.ops.Info(opslog.KindRequestCompleted, fr.ID, fmt.Sprintf("generated %d file(s)", len(files)))
	o.logger.Info("feature request completed", "id", fr.ID, "files", len(files))

	o.recordSpec(ctx, fr, description)
	o.refresh(ctx, fr.ID)

	o.count(ctx, "completed")
	span.SetAttributes(attribute.Int("files.count", len(files)))
	return SubmitResult{
		FeatureRequest: fr,
		Processing:     Processing{Success: true, Message: res.Message, GeneratedFiles: files},
	}, nil
}

// recordSpec adds every generated component to the spec document. Failures
// are logged; the request stays completed.
func (o *Orchestrator) recordSpec(ctx context.Context, fr storage.FeatureRequest, description string) {
	if o.spec == nil {
		return
	}
	components := componentsOf(fr.GeneratedComponents)
	if len(components) == 0 {
		return
	}

	now := time.Now().UTC()
	doc, err := o.spec.Write(func(d *specstore.Document) error {
		for name, path := range components {
			d.PutFeature(name, specstore.FeatureSpec{
				Description: summarize(description),
				Component:   path,
				Status:      specstore.FeatureActive,
				RequestID:   fr.ID,
				CreatedAt:   now,
			})
		}
		return nil
	})
	if err != nil {
		o.logger.Warn("recording features in spec failed", "id", fr.ID, "error", err)
		o.ops.Warn(opslog.KindSpecUpdated, fr.ID, "spec update failed: "+err.Error())
		trace.SpanFromContext(ctx).RecordError(err)
		return
	}
	o.ops.Info(opslog.KindSpecUpdated, fr.ID, fmt.Sprintf("spec v%s records %d component(s)", doc.Version, len(components)))
}

func (o *Orchestrator) refresh(ctx context.Context, requestID string) {
	if o.registry == nil {
		return
	}
	features, err := o.registry.Refresh(ctx)
	if err != nil {
		o.logger.Warn("refreshing component registry failed", "error", err)
		return
	}
	o.ops.Info(opslog.KindRegistryRefresh, requestID, fmt.Sprintf("%d component(s) registered", len(features)))
}

func (o *Orchestrator) count(ctx context.Context, outcome string) {
	if o.counter == nil {
		return
	}
	o.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// componentsOf maps component names to paths for generated .tsx/.jsx files.
func componentsOf(files []string) map[string]string {
	out := make(map[string]string)
	for _, f := range files {
		ext := filepath.Ext(f)
		if ext != ".tsx" && ext != ".jsx" {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(f), ext)
		if !componentName.MatchString(name) {
			continue
		}
		out[name] = filepath.ToSlash(f)
	}
	return out
}

// summarize returns the first line of s, truncated for log and spec use.
func summarize(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if utf8.RuneCountInString(s) > 200 {
		r := []rune(s)
		s = string(r[:200]) + "…"
	}
	return s
}
