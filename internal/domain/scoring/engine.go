package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/proscore/internal/platform/fhir"
)

const tracerName = "github.com/ehr/proscore/internal/domain/scoring"

// DefaultLoaderTimeout bounds a single definition lookup through the loader.
const DefaultLoaderTimeout = 10 * time.Second

// Summary is the scored history of one questionnaire.
type Summary struct {
	ResponseData  []ResponseSummaryRow `json:"responseData"`
	ChartData     []ChartPoint         `json:"chartData"`
	Questionnaire *fhir.Questionnaire  `json:"questionnaire,omitempty"`
	Config        *Config              `json:"config"`
	Error         string               `json:"error,omitempty"`
}

// Engine ties grouping, definition resolution and summarization together.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	registry      *Registry
	loader        DefinitionLoader
	logger        zerolog.Logger
	tracer        trace.Tracer
	loaderTimeout time.Duration
	groupOpts     GroupOptions
}

// Option configures an Engine.
type Option func(*Engine)

// WithLoaderTimeout bounds each loader call. Zero disables the bound.
func WithLoaderTimeout(d time.Duration) Option {
	return func(e *Engine) { e.loaderTimeout = d }
}

// WithCompletedOnly controls whether only completed responses are scored.
func WithCompletedOnly(only bool) Option {
	return func(e *Engine) { e.groupOpts.CompletedOnly = only }
}

// WithTracer overrides the global tracer provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine creates an engine. A nil registry scores every questionnaire
// generically; a nil loader restricts definitions to the bundle.
func NewEngine(reg *Registry, loader DefinitionLoader, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		registry:      reg,
		loader:        loader,
		logger:        logger.With().Str("component", "scoring").Logger(),
		tracer:        otel.Tracer(tracerName),
		loaderTimeout: DefaultLoaderTimeout,
		groupOpts:     GroupOptions{CompletedOnly: true},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Registry returns the engine's instrument registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) lookup(ref string) *Config {
	return e.registry.Lookup(ref)
}

// SummarizeQuestionnaireSync summarizes ref using only definitions found in
// the bundle. hosts optionally supplies host responses for a derived
// questionnaire. It returns nil when the questionnaire cannot be summarized.
func (e *Engine) SummarizeQuestionnaireSync(c *fhir.Collection, ref string, hosts ...*fhir.QuestionnaireResponse) *Summary {
	if c == nil {
		c = &fhir.Collection{}
	}
	cfg := e.lookup(ref)
	def := NewBundleIndex(c.Questionnaires).Find(ref, cfg)
	return e.summarize(c, cfg, def, ForQuestionnaire(c.Responses, cfg, e.groupOpts), hosts)
}

// SummarizeQuestionnaire is SummarizeQuestionnaireSync with definitions
// also resolved through the loader. Loader failures are returned.
func (e *Engine) SummarizeQuestionnaire(ctx context.Context, c *fhir.Collection, ref string, hosts ...*fhir.QuestionnaireResponse) (*Summary, error) {
	ctx, span := e.tracer.Start(ctx, "scoring.SummarizeQuestionnaire",
		trace.WithAttributes(attribute.String("questionnaire.ref", ref)))
	defer span.End()

	if c == nil {
		c = &fhir.Collection{}
	}
	cfg := e.lookup(ref)
	def, err := e.resolveDefinition(ctx, NewBundleIndex(c.Questionnaires), ref, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s := e.summarize(c, cfg, def, ForQuestionnaire(c.Responses, cfg, e.groupOpts), hosts)
	if s != nil {
		span.SetAttributes(attribute.Int("summary.rows", len(s.ResponseData)))
	}
	return s, nil
}

type summaryJob struct {
	ref       string
	cfg       *Config
	responses []*fhir.QuestionnaireResponse
}

// SummarizeAll summarizes every questionnaire referenced in the bundle, plus
// every registered derived questionnaire whose hosts are present. Definitions
// are resolved concurrently, one per group; summarization then runs
// sequentially. Groups without a usable definition are left out.
func (e *Engine) SummarizeAll(ctx context.Context, c *fhir.Collection) (map[string]*Summary, error) {
	ctx, span := e.tracer.Start(ctx, "scoring.SummarizeAll")
	defer span.End()

	if c == nil {
		c = &fhir.Collection{}
	}
	groups := Group(c.Responses, e.groupOpts)
	keys := GroupKeys(groups)
	jobs := make([]summaryJob, 0, len(keys))
	for _, k := range keys {
		jobs = append(jobs, summaryJob{ref: k, cfg: e.lookup(k), responses: groups[k]})
	}
	if e.registry != nil {
		for _, d := range e.registry.Derived() {
			if anyKeyMatches(keys, d) {
				continue
			}
			if len(HostResponses(c.Responses, d.DeriveFrom.HostIDs, e.groupOpts)) == 0 {
				continue
			}
			jobs = append(jobs, summaryJob{
				ref: fhir.FormatReference("Questionnaire", d.DeriveFrom.TargetQuestionnaireID),
				cfg: d,
			})
		}
	}
	span.SetAttributes(attribute.Int("summary.groups", len(jobs)))

	idx := NewBundleIndex(c.Questionnaires)
	defs := make([]*fhir.Questionnaire, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i := range jobs {
		g.Go(func() error {
			q, err := e.resolveDefinition(gctx, idx, jobs[i].ref, jobs[i].cfg)
			if err != nil {
				return err
			}
			defs[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make(map[string]*Summary, len(jobs))
	for i, j := range jobs {
		if s := e.summarize(c, j.cfg, defs[i], j.responses, nil); s != nil {
			out[j.ref] = s
		} else {
			e.logger.Debug().Str("ref", j.ref).Msg("no definition for questionnaire, summary omitted")
		}
	}
	return out, nil
}

func anyKeyMatches(keys []string, cfg *Config) bool {
	for _, k := range keys {
		if Matches(k, cfg) {
			return true
		}
	}
	return false
}

// DeriveFromBundle runs the derivation builder over the bundle's responses
// to hostIDs, or over every response when hostIDs is empty.
func (e *Engine) DeriveFromBundle(c *fhir.Collection, hostIDs []string, opts DeriveOptions) []*fhir.QuestionnaireResponse {
	if c == nil {
		return nil
	}
	hosts := c.Responses
	if len(hostIDs) > 0 {
		hosts = HostResponses(c.Responses, hostIDs, e.groupOpts)
	}
	return DeriveSingleLinkResponses(hosts, opts)
}

// resolveDefinition looks in the bundle first and then asks the loader.
func (e *Engine) resolveDefinition(ctx context.Context, idx *BundleIndex, ref string, cfg *Config) (*fhir.Questionnaire, error) {
	if q := idx.Find(ref, cfg); q != nil {
		return q, nil
	}
	if e.loader == nil {
		return nil, nil
	}

	ctx, span := e.tracer.Start(ctx, "scoring.resolveDefinition",
		trace.WithAttributes(attribute.String("questionnaire.ref", ref)))
	defer span.End()

	if e.loaderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.loaderTimeout)
		defer cancel()
	}
	start := time.Now()
	q, err := e.loader.LoadQuestionnaire(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn().Err(err).Str("ref", ref).Msg("questionnaire definition loader failed")
		return nil, fmt.Errorf("load questionnaire %s: %w", ref, err)
	}
	span.SetAttributes(attribute.Bool("questionnaire.found", q != nil))
	e.logger.Debug().
		Str("ref", ref).
		Bool("found", q != nil).
		Dur("duration", time.Since(start)).
		Msg("questionnaire definition resolved")
	return q, nil
}

// summarize builds one Summary. It returns nil when there is neither a
// definition nor enough configuration to score without one.
func (e *Engine) summarize(c *fhir.Collection, cfg *Config, def *fhir.Questionnaire, direct, hosts []*fhir.QuestionnaireResponse) *Summary {
	responses := direct
	if len(responses) == 0 && cfg.DeriveFrom != nil {
		if len(hosts) == 0 {
			hosts = HostResponses(c.Responses, cfg.DeriveFrom.HostIDs, e.groupOpts)
		}
		if len(hosts) == 0 {
			return &Summary{
				ResponseData:  []ResponseSummaryRow{},
				ChartData:     []ChartPoint{},
				Questionnaire: def,
				Config:        cfg,
				Error:         ErrNoHostResponses.Error(),
			}
		}
		responses = DeriveSingleLinkResponses(hosts, cfg.deriveOptions())
		if def == nil && len(cfg.QuestionLinkIDs) == 0 {
			cfg.QuestionLinkIDs = []string{cfg.DeriveFrom.LinkID}
		}
	}
	if def == nil && !cfg.scorableWithoutDefinition() {
		return nil
	}
	rows := Summarize(responses, def, cfg, patientOf(c))
	return &Summary{
		ResponseData:  rows,
		ChartData:     ChartSeries(rows),
		Questionnaire: def,
		Config:        cfg,
	}
}

func (c *Config) deriveOptions() DeriveOptions {
	d := c.DeriveFrom
	mode := d.MatchMode
	if mode == "" {
		mode = c.mode()
	}
	return DeriveOptions{
		LinkID:                  d.LinkID,
		TargetQuestionnaireID:   d.TargetQuestionnaireID,
		MatchMode:               mode,
		NormalizeAnswerToCoding: d.NormalizeAnswerToCoding,
	}
}

func patientOf(c *fhir.Collection) *PatientContext {
	if c == nil {
		return nil
	}
	return &PatientContext{Conditions: c.Conditions}
}
