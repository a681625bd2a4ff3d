package conversation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	convmodel "github.com/zhouzirui/callsim/backend/internal/model/conversation"
	"github.com/zhouzirui/callsim/backend/internal/model/persona"
	"github.com/zhouzirui/callsim/backend/internal/service/ai"
	"github.com/zhouzirui/callsim/backend/internal/service/session"
	"github.com/zhouzirui/callsim/backend/internal/service/speech"
	"github.com/zhouzirui/callsim/backend/internal/service/transcript"
)

const recordTimeout = 5 * time.Second

// Sink delivers outbound events to one client. Only the orchestrator goroutine calls Send.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// Phase is the orchestrator state for one connection.
type Phase int

const (
	PhaseAwaitingStart Phase = iota
	PhaseIdle
	PhaseGenerating
	PhaseStreaming
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingStart:
		return "awaiting_start"
	case PhaseIdle:
		return "idle"
	case PhaseGenerating:
		return "generating_text"
	case PhaseStreaming:
		return "streaming_audio"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Options wires the orchestrator collaborators.
type Options struct {
	Personas    persona.Store
	Registry    *session.Registry
	Generator   ai.Generator
	Synthesizer speech.Synthesizer
	Recorder    transcript.Recorder
	Metrics     *Metrics
	// MaxTurns > 0 ends a session once that many turns were recorded.
	MaxTurns int
}

// Service creates one Orchestrator per client connection.
type Service struct {
	opts Options
	now  func() time.Time
}

// NewService validates the collaborators and fills optional ones.
func NewService(opts Options) (*Service, error) {
	if opts.Personas == nil {
		return nil, errors.New("conversation: persona store is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("conversation: session registry is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("conversation: generator is required")
	}
	if opts.Synthesizer == nil {
		opts.Synthesizer = speech.SilentSynthesizer{}
	}
	if opts.Recorder == nil {
		opts.Recorder = transcript.Discard{}
	}
	if opts.Metrics == nil {
		metrics, err := NewMetrics(nil)
		if err != nil {
			return nil, err
		}
		opts.Metrics = metrics
	}
	if opts.MaxTurns < 0 {
		opts.MaxTurns = 0
	}

	return &Service{
		opts: opts,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// NewOrchestrator returns an orchestrator in AWAITING_START bound to sink.
func (s *Service) NewOrchestrator(sink Sink) *Orchestrator {
	return &Orchestrator{
		svc:     s,
		sink:    sink,
		phase:   PhaseAwaitingStart,
		results: make(chan generationResult, 1),
		audio:   make(chan audioEvent),
	}
}

type generationResult struct {
	token   uint64
	text    string
	err     error
	elapsed time.Duration
}

type audioEvent struct {
	token   uint64
	chunk   []byte
	done    bool
	outcome speech.Outcome
}

// Orchestrator is the state machine of one connection. All state is owned by the
// goroutine running Run; backend calls run in helper goroutines and report back over
// channels tagged with the turn token, so replies for an abandoned turn are dropped.
type Orchestrator struct {
	svc  *Service
	sink Sink

	phase   Phase
	session *convmodel.Session
	persona persona.Persona

	seq        uint64
	inflight   uint64
	turnCtx    context.Context
	cancelTurn context.CancelFunc
	speaking   convmodel.Turn

	results chan generationResult
	audio   chan audioEvent
}

// Phase reports the current state. Only safe from the Run goroutine or after Run returns.
func (o *Orchestrator) Phase() Phase {
	return o.phase
}

// SessionID returns the bound session id, empty before start_session.
func (o *Orchestrator) SessionID() string {
	if o.session == nil {
		return ""
	}
	return o.session.ID
}

// Run consumes raw inbound frames until the channel closes or ctx is cancelled, either
// of which is a transport close. It returns an error only when the sink fails.
func (o *Orchestrator) Run(ctx context.Context, frames <-chan []byte) error {
	defer o.release(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-frames:
			if !ok {
				return nil
			}
			if err := o.handleFrame(ctx, raw); err != nil {
				return err
			}
		case res := <-o.results:
			if err := o.handleGeneration(ctx, res); err != nil {
				return err
			}
		case ev := <-o.audio:
			if err := o.handleAudio(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) handleFrame(ctx context.Context, raw []byte) error {
	msg, err := decodeInbound(raw)
	if err != nil {
		return o.reject(ctx, err)
	}

	switch msg.kind {
	case TypeStartSession:
		return o.startSession(ctx, msg.start)
	case TypeOperatorSpeech:
		return o.operatorSpeech(ctx, msg.speech)
	case TypeEndSession:
		return o.endSession(ctx)
	}
	return nil
}

func (o *Orchestrator) startSession(ctx context.Context, req StartSessionPayload) error {
	switch o.phase {
	case PhaseAwaitingStart:
	case PhaseEnded:
		return o.reject(ctx, newProtocolError(CodeSessionNotFound, "session %s already ended", o.session.ID))
	default:
		return o.reject(ctx, newProtocolError(CodeSessionAlreadyStarted, "session %s already started", o.session.ID))
	}

	p, ok := o.svc.opts.Personas.FindByID(req.PersonaID)
	if !ok {
		return o.reject(ctx, newProtocolError(CodeUnknownPersona, "unknown persona: %s", req.PersonaID))
	}

	sess, err := o.svc.opts.Registry.Create(req.OperatorID, p.ID)
	if err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	o.session = sess
	o.persona = p
	o.phase = PhaseIdle
	o.svc.opts.Metrics.sessionStarted(ctx)

	log.Printf("[orchestrator] session started session=%s persona=%s operator=%s", sess.ID, p.ID, req.OperatorID)
	o.record(ctx, "start", func(rctx context.Context) error {
		return o.svc.opts.Recorder.StartSession(rctx, transcript.SessionRecord{
			ID:         sess.ID,
			OperatorID: sess.OperatorID,
			PersonaID:  sess.PersonaID,
			Status:     convmodel.StatusActive,
			StartedAt:  sess.CreatedAt,
		})
	})

	if err := o.send(ctx, TypeSessionStarted, SessionStartedPayload{
		SessionID: sess.ID,
		Persona:   PersonaInfo{Name: p.Name, VoiceID: p.VoiceID},
	}); err != nil {
		return err
	}

	// 开场白：人物先开口，不带任何历史
	return o.beginGeneration(ctx, ai.Request{
		System:   ai.BuildOpeningPrompt(p),
		Messages: ai.OpeningMessages(),
	})
}

func (o *Orchestrator) operatorSpeech(ctx context.Context, req OperatorSpeechPayload) error {
	switch o.phase {
	case PhaseIdle:
	case PhaseGenerating, PhaseStreaming:
		return o.reject(ctx, newProtocolError(CodeSessionBusy, "persona turn still in progress (%s)", o.phase))
	default:
		return o.reject(ctx, newProtocolError(CodeSessionNotFound, "no active session"))
	}

	// 失败的生成不会推进到 audio_complete，这里补一次上限检查
	if o.maxTurnsReached() {
		return o.end(ctx, ReasonMaxTurns)
	}

	turn, err := o.session.AppendTurn(convmodel.RoleOperator, req.Transcript, o.svc.now())
	if err != nil {
		return o.reject(ctx, newProtocolError(CodeSessionNotFound, "%v", err))
	}
	o.turnAppended(ctx, turn)

	history, err := ai.HistoryMessages(o.session.Turns())
	if err != nil {
		return fmt.Errorf("map history: %w", err)
	}
	return o.beginGeneration(ctx, ai.Request{
		System:   ai.BuildTurnPrompt(o.persona, o.session.TurnCount()+1),
		Messages: history,
	})
}

func (o *Orchestrator) endSession(ctx context.Context) error {
	switch o.phase {
	case PhaseEnded:
		log.Printf("[orchestrator] end_session ignored, session=%s already ended", o.session.ID)
		return nil
	case PhaseAwaitingStart:
		return o.reject(ctx, newProtocolError(CodeSessionNotFound, "no active session"))
	}

	reason := ReasonUserRequested
	if o.maxTurnsReached() {
		reason = ReasonMaxTurns
	}
	return o.end(ctx, reason)
}

func (o *Orchestrator) beginGeneration(ctx context.Context, req ai.Request) error {
	o.phase = PhaseGenerating
	turnCtx, token := o.startTurn(ctx)

	if err := o.send(ctx, TypePersonaThinking, struct{}{}); err != nil {
		return err
	}

	go o.generate(turnCtx, token, req)
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, token uint64, req ai.Request) {
	start := time.Now()
	text, err := o.svc.opts.Generator.Generate(ctx, req)
	res := generationResult{token: token, text: text, err: err, elapsed: time.Since(start)}

	select {
	case o.results <- res:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) handleGeneration(ctx context.Context, res generationResult) error {
	if res.token != o.inflight || o.phase != PhaseGenerating {
		log.Printf("[orchestrator] discarding generation result of abandoned turn, session=%s", o.SessionID())
		return nil
	}

	if res.err != nil {
		code := GenerationCode(res.err)
		o.svc.opts.Metrics.generationDone(ctx, res.elapsed, code)
		log.Printf("[orchestrator] generation failed session=%s code=%s: %v", o.session.ID, code, res.err)

		o.finishTurn()
		o.phase = PhaseIdle
		return o.sendError(ctx, code, "failed to generate response: "+res.err.Error())
	}
	o.svc.opts.Metrics.generationDone(ctx, res.elapsed, "")

	turn, err := o.session.AppendTurn(convmodel.RolePersona, res.text, o.svc.now())
	if err != nil {
		o.finishTurn()
		o.phase = PhaseIdle
		return nil
	}
	o.turnAppended(ctx, turn)

	o.phase = PhaseStreaming
	o.speaking = turn
	go o.stream(o.turnCtx, res.token, turn.Content, o.persona.VoiceID)
	return nil
}

func (o *Orchestrator) stream(ctx context.Context, token uint64, text, voiceID string) {
	outcome := speech.Pump(ctx, o.svc.opts.Synthesizer, text, voiceID, func(chunk []byte) error {
		select {
		case o.audio <- audioEvent{token: token, chunk: chunk}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	select {
	case o.audio <- audioEvent{token: token, done: true, outcome: outcome}:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) handleAudio(ctx context.Context, ev audioEvent) error {
	if ev.token != o.inflight || o.phase != PhaseStreaming {
		return nil
	}

	turn := o.speaking
	if !ev.done {
		return o.send(ctx, TypeAudioChunk, AudioChunkPayload{
			Audio:      base64.StdEncoding.EncodeToString(ev.chunk),
			TurnNumber: turn.Number,
		})
	}

	if ev.outcome.Partial() {
		o.svc.opts.Metrics.audioPartialFailure(ctx)
		log.Printf("[orchestrator] audio degraded session=%s turn=%d chunks=%d: %v", o.session.ID, turn.Number, ev.outcome.Chunks, ev.outcome.Err)
	} else {
		log.Printf("[orchestrator] sent %d audio chunks session=%s turn=%d", ev.outcome.Chunks, o.session.ID, turn.Number)
	}

	o.finishTurn()
	o.phase = PhaseIdle
	if err := o.send(ctx, TypeAudioComplete, AudioCompletePayload{
		Transcript: turn.Content,
		TurnNumber: turn.Number,
	}); err != nil {
		return err
	}

	if o.maxTurnsReached() {
		return o.end(ctx, ReasonMaxTurns)
	}
	return nil
}

// end moves the session to ENDED and deregisters it. Any in-flight turn is abandoned.
func (o *Orchestrator) end(ctx context.Context, reason string) error {
	if o.phase == PhaseGenerating || o.phase == PhaseStreaming {
		log.Printf("[orchestrator] abandoning in-flight turn (%s) session=%s", o.phase, o.session.ID)
	}
	o.finishTurn()

	o.session.End()
	o.svc.opts.Registry.Remove(o.session.ID)
	o.phase = PhaseEnded

	total := o.session.TurnCount()
	o.svc.opts.Metrics.sessionEnded(ctx, reason)
	o.record(ctx, "end", func(rctx context.Context) error {
		return o.svc.opts.Recorder.EndSession(rctx, o.session.ID, reason, total, o.svc.now())
	})
	log.Printf("[orchestrator] session ended session=%s reason=%s turns=%d", o.session.ID, reason, total)

	return o.send(ctx, TypeSessionEnded, SessionEndedPayload{
		Reason:     reason,
		TotalTurns: total,
		SessionID:  o.session.ID,
	})
}

// release runs once the transport is gone: no events can be sent any more.
func (o *Orchestrator) release(ctx context.Context) {
	o.finishTurn()
	if o.session == nil || o.phase == PhaseEnded {
		return
	}

	o.session.End()
	o.svc.opts.Registry.Remove(o.session.ID)
	o.phase = PhaseEnded

	total := o.session.TurnCount()
	detached := context.WithoutCancel(ctx)
	o.svc.opts.Metrics.sessionEnded(detached, ReasonDisconnected)
	o.record(detached, "end", func(rctx context.Context) error {
		return o.svc.opts.Recorder.EndSession(rctx, o.session.ID, ReasonDisconnected, total, o.svc.now())
	})
	log.Printf("[orchestrator] connection closed, session=%s dropped after %d turns", o.session.ID, total)
}

func (o *Orchestrator) startTurn(ctx context.Context) (context.Context, uint64) {
	o.seq++
	o.inflight = o.seq
	o.turnCtx, o.cancelTurn = context.WithCancel(ctx)
	return o.turnCtx, o.inflight
}

func (o *Orchestrator) finishTurn() {
	if o.cancelTurn != nil {
		o.cancelTurn()
	}
	o.cancelTurn = nil
	o.turnCtx = nil
	o.inflight = 0
}

func (o *Orchestrator) maxTurnsReached() bool {
	limit := o.svc.opts.MaxTurns
	return limit > 0 && o.session != nil && o.session.TurnCount() >= limit
}

func (o *Orchestrator) turnAppended(ctx context.Context, turn convmodel.Turn) {
	o.svc.opts.Metrics.turnAppended(ctx, turn.Role.String())
	o.record(ctx, "append", func(rctx context.Context) error {
		return o.svc.opts.Recorder.AppendTurn(rctx, o.session.ID, turn)
	})
}

// record calls the transcript recorder. Failures are logged and never change state.
func (o *Orchestrator) record(ctx context.Context, op string, fn func(context.Context) error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := fn(rctx); err != nil {
		log.Printf("[orchestrator] transcript %s failed session=%s: %v", op, o.SessionID(), err)
	}
}

func (o *Orchestrator) reject(ctx context.Context, err error) error {
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		perr = newProtocolError(CodeInvalidMessage, "%v", err)
	}
	o.svc.opts.Metrics.protocolError(ctx, perr.Code)
	log.Printf("[orchestrator] rejected event session=%s phase=%s: %v", o.SessionID(), o.phase, perr)
	return o.sendError(ctx, perr.Code, perr.Message)
}

func (o *Orchestrator) sendError(ctx context.Context, code, message string) error {
	return o.send(ctx, TypeError, ErrorPayload{Code: code, Message: message, Recoverable: true})
}

func (o *Orchestrator) send(ctx context.Context, eventType string, payload any) error {
	if err := o.sink.Send(ctx, Event{Type: eventType, Payload: payload}); err != nil {
		return fmt.Errorf("send %s: %w", eventType, err)
	}
	return nil
}
