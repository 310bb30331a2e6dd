package pipeline

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// State names the orchestrator's position in the fallback chain.
type State string

const (
	StateStart        State = "start"
	StateEnhancing    State = "enhancing"
	StateSynthesizing State = "synthesizing"
	StateFallingBack  State = "falling_back"
	StateDelivering   State = "delivering"
	StateDone         State = "done"
)

// maxToolCalls caps external tool invocations per request:
// enhancement 1, synthesis 1, ascii fallback 2. No stage is ever retried;
// a failed call is resolved by that stage's local fallback.
const maxToolCalls = 4

// EventSink receives stage-transition events. Implementations must not block
// the pipeline; publish failures are theirs to log.
type EventSink interface {
	PublishStage(ctx context.Context, requestID, stage, status, detail string)
}

// Archiver stores a successfully generated image outside the pipeline.
// Archive failures never affect the run.
type Archiver interface {
	ArchiveImage(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// RunResult is the full trace of one orchestration run. Every run terminates
// at StateDone with a delivery outcome; there is no dead-end failure state.
type RunResult struct {
	Outcome     DeliveryOutcome
	Enhancement *EnhancementResult
	Image       *ImageResult
	Art         *AsciiArtResult
	ArchiveURL  string
	ToolCalls   int
	// ValidationFailed is set when the request was rejected before any stage
	// ran (blank prompt); the delivered payload asks the user to re-prompt.
	ValidationFailed bool
}

// Delivered reports whether the transport accepted the final payload.
func (r RunResult) Delivered() bool {
	return r.Outcome.Delivered
}

// Orchestrator sequences enhance → synthesize → (conditional) ascii fallback
// → deliver for one request at a time. Instances are stateless across runs;
// concurrent requests may share one orchestrator because all per-run state
// lives on the stack.
type Orchestrator struct {
	enhancer    Enhancer
	synthesizer Synthesizer
	fallback    Fallback
	dispatcher  Dispatcher
	events      EventSink // optional
	archiver    Archiver  // optional
}

// NewOrchestrator wires the four stages. events and archiver may be nil.
func NewOrchestrator(enhancer Enhancer, synthesizer Synthesizer, fallback Fallback, dispatcher Dispatcher, events EventSink, archiver Archiver) *Orchestrator {
	return &Orchestrator{
		enhancer:    enhancer,
		synthesizer: synthesizer,
		fallback:    fallback,
		dispatcher:  dispatcher,
		events:      events,
		archiver:    archiver,
	}
}

// Run executes one request through the fallback chain using the configured
// dispatcher.
func (o *Orchestrator) Run(ctx context.Context, req Request) RunResult {
	return o.RunWith(ctx, req, o.dispatcher)
}

// RunWith executes one request, delivering through the given dispatcher.
func (o *Orchestrator) RunWith(ctx context.Context, req Request, dispatcher Dispatcher) RunResult {
	logger := log.With().
		Str("request_id", req.ID.String()).
		Str("destination", req.Destination).
		Logger()
	logger.Info().
		Int("width", req.Width).
		Int("height", req.Height).
		Str("style", req.Style).
		Msg("Pipeline run starting")

	var res RunResult

	// Validation happens before any stage so a blank prompt never costs an
	// external call.
	if strings.TrimSpace(req.OriginalPrompt) == "" {
		logger.Warn().Msg("Blank prompt rejected at validation")
		res.ValidationFailed = true
		o.publish(ctx, req, StateDelivering, "validation_failed", ReasonEmptyPrompt)
		reply := Reply{Text: "Please send a prompt describing the image you want, e.g. \"a cat in a garden\"."}
		res.Outcome = dispatcher.Deliver(ctx, req.Destination, reply)
		o.publish(ctx, req, StateDone, deliveryStatus(res.Outcome), res.Outcome.PayloadPreview)
		return res
	}

	// Start → Enhancing: always taken; failure degrades to the template
	// prompt, it never halts the run.
	o.publish(ctx, req, StateEnhancing, "started", "")
	enh := o.enhancer.Enhance(ctx, req.OriginalPrompt, req.Style)
	res.Enhancement = &enh
	res.ToolCalls++
	o.publish(ctx, req, StateEnhancing, stageStatus(enh.Succeeded), enh.FailureReason)

	// Enhancing → Synthesizing: always taken with the enhanced prompt.
	o.publish(ctx, req, StateSynthesizing, "started", "")
	img := o.synthesizer.Synthesize(ctx, enh.EnhancedPrompt, req.Width, req.Height)
	res.Image = &img
	res.ToolCalls++
	o.publish(ctx, req, StateSynthesizing, stageStatus(img.Succeeded), img.FailureReason)

	var reply Reply
	if img.Succeeded {
		res.ArchiveURL = o.archive(ctx, req, img)
		reply = Reply{
			Text:        req.OriginalPrompt,
			ImageBase64: img.ImageBase64,
			MimeType:    img.MimeType,
		}
	} else {
		// Synthesizing → FallingBack: the ascii stage gets the ORIGINAL user
		// prompt as its subject, not the enhanced one.
		logger.Info().Str("reason", img.FailureReason).Msg("Image synthesis failed, falling back to ascii art")
		o.publish(ctx, req, StateFallingBack, "started", img.FailureReason)
		if res.ToolCalls+2 > maxToolCalls {
			logger.Error().Int("tool_calls", res.ToolCalls).Msg("Tool budget exhausted, substituting placeholders")
			art := AsciiArtResult{
				Art:          PlaceholderArt(req.OriginalPrompt),
				Caption:      PlaceholderCaption(req.OriginalPrompt),
				SourcePrompt: req.OriginalPrompt,
			}
			res.Art = &art
		} else {
			art := o.fallback.Describe(ctx, req.OriginalPrompt)
			res.Art = &art
			res.ToolCalls += 2
		}
		o.publish(ctx, req, StateFallingBack, stageStatus(res.Art.Succeeded), res.Art.FailureReason)
		reply = Reply{Text: res.Art.Art + "\n\n" + res.Art.Caption}
	}

	// FallingBack → Delivering never blocks: the ascii stage's own failure
	// already produced a deliverable placeholder.
	o.publish(ctx, req, StateDelivering, "started", "")
	res.Outcome = dispatcher.Deliver(ctx, req.Destination, reply)
	o.publish(ctx, req, StateDone, deliveryStatus(res.Outcome), res.Outcome.PayloadPreview)

	logger.Info().
		Bool("delivered", res.Outcome.Delivered).
		Bool("image", img.Succeeded).
		Int("tool_calls", res.ToolCalls).
		Msg("Pipeline run complete")

	return res
}

// archive stores the generated image when an archiver is configured.
func (o *Orchestrator) archive(ctx context.Context, req Request, img ImageResult) string {
	if o.archiver == nil {
		return ""
	}
	data, err := img.Bytes()
	if err != nil {
		log.Error().Err(err).Str("request_id", req.ID.String()).Msg("Decoding image for archive failed")
		return ""
	}
	url, err := o.archiver.ArchiveImage(ctx, req.ID.String(), data, img.MimeType)
	if err != nil {
		log.Error().Err(err).Str("request_id", req.ID.String()).Msg("Image archive failed")
		return ""
	}
	log.Info().Str("request_id", req.ID.String()).Str("archive_url", url).Msg("Image archived")
	return url
}

func (o *Orchestrator) publish(ctx context.Context, req Request, state State, status, detail string) {
	if o.events == nil {
		return
	}
	o.events.PublishStage(ctx, req.ID.String(), string(state), status, detail)
}

func stageStatus(succeeded bool) string {
	if succeeded {
		return "succeeded"
	}
	return "failed"
}

func deliveryStatus(outcome DeliveryOutcome) string {
	if outcome.Delivered {
		return "delivered"
	}
	return "delivery_failed"
}
