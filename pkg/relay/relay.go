package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/woffyai/woffyd/pkg/config"
	"github.com/woffyai/woffyd/pkg/instructions"
)

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model    string `json:"model"`
	Messages []Turn `json:"messages"`
	// WoffyMode defaults to true when omitted.
	WoffyMode *bool `json:"woffy_mode,omitempty"`
	Stream    bool  `json:"stream,omitempty"`
}

func (r Request) Mode() string {
	return instructions.ModeFor(r.WoffyMode == nil || *r.WoffyMode)
}

func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return &ValidationError{Message: "messages must contain at least one message"}
	}
	for i, m := range r.Messages {
		switch m.Role {
		case openai.ChatMessageRoleSystem, openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant:
		default:
			return &ValidationError{Message: fmt.Sprintf("messages[%d].role must be one of system, user, assistant", i)}
		}
	}
	return nil
}

type InstructionSource interface {
	Get(mode string) string
}

type ModelCatalog interface {
	Contains(apiName string) bool
}

// Upstream is the subset of *openai.Client the relay drives.
type Upstream interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

type Observer interface {
	ObserveUpstream(model string, stream bool, elapsed time.Duration, err error)
	ObserveUsage(model string, promptTokens, completionTokens int)
	ObserveFragment()
}

// Sink receives a streamed reply. Open is called once the upstream stream
// is established; Done is always the last call after a successful Open.
type Sink interface {
	Open() error
	Content(fragment string) error
	Fail(message string) error
	Done() error
}

type Options struct {
	Model         string
	ModelPolicy   string
	MaxTokens     int
	PrependPolicy string
	Timeout       time.Duration
	Catalog       ModelCatalog
	Observer      Observer
}

type Relay struct {
	instructions InstructionSource
	upstream     Upstream
	opts         Options
	logger       *log.Logger
}

// New wires a relay. A nil upstream means no credentials are configured:
// every call then fails with ErrConfiguration without touching the network.
func New(prompts InstructionSource, upstream Upstream, opts Options) *Relay {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = config.DefaultMaxTokens
	}
	if opts.MaxTokens > config.MaxMaxTokens {
		opts.MaxTokens = config.MaxMaxTokens
	}
	if opts.ModelPolicy == "" {
		opts.ModelPolicy = config.ModelPolicyFixed
	}
	if opts.PrependPolicy == "" {
		opts.PrependPolicy = config.PrependNonEmpty
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	return &Relay{
		instructions: prompts,
		upstream:     upstream,
		opts:         opts,
		logger:       log.WithPrefix("relay"),
	}
}

func (r *Relay) Configured() bool {
	return r.upstream != nil
}

func (r *Relay) Complete(ctx context.Context, req Request) (Turn, error) {
	creq, err := r.prepare(req)
	if err != nil {
		return Turn{}, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := r.upstream.CreateChatCompletion(ctx, creq)
	err = wrapUpstreamError(err)
	r.opts.Observer.ObserveUpstream(creq.Model, false, time.Since(start), err)
	if err != nil {
		r.logger.Error("upstream chat completion failed", "model", creq.Model, "err", err)
		return Turn{}, err
	}
	r.opts.Observer.ObserveUsage(creq.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if len(resp.Choices) == 0 {
		r.logger.Error("no choices in completion response", "model", creq.Model, "id", resp.ID)
		return Turn{}, ErrInvalidUpstreamResponse
	}
	msg := resp.Choices[0].Message
	if msg.Role == "" && msg.Content == "" {
		r.logger.Error("empty message in completion choice", "model", creq.Model, "id", resp.ID)
		return Turn{}, ErrInvalidUpstreamResponse
	}
	role := msg.Role
	if role == "" {
		role = openai.ChatMessageRoleAssistant
	}
	r.logger.Info("chat completion relayed", "model", creq.Model, "chars", len(msg.Content))
	return Turn{Role: role, Content: msg.Content}, nil
}

// Stream relays the reply fragment by fragment. Errors returned before
// sink.Open was called left the sink untouched, so the caller can still
// answer with a plain error response. After Open, an upstream failure is
// reported in-band with Fail followed by Done.
func (r *Relay) Stream(ctx context.Context, req Request, sink Sink) error {
	creq, err := r.prepare(req)
	if err != nil {
		return err
	}
	creq.Stream = true
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	stream, err := r.upstream.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		err = wrapUpstreamError(err)
		r.opts.Observer.ObserveUpstream(creq.Model, true, time.Since(start), err)
		r.logger.Error("upstream stream open failed", "model", creq.Model, "err", err)
		return err
	}
	defer stream.Close()

	if err := sink.Open(); err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	fragments := 0
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			r.opts.Observer.ObserveUpstream(creq.Model, true, time.Since(start), nil)
			r.logger.Info("chat stream relayed", "model", creq.Model, "fragments", fragments)
			return sink.Done()
		}
		if err != nil {
			wrapped := wrapUpstreamError(err)
			r.opts.Observer.ObserveUpstream(creq.Model, true, time.Since(start), wrapped)
			if errors.Is(err, context.Canceled) {
				r.logger.Info("chat stream cancelled", "model", creq.Model, "fragments", fragments)
			} else {
				r.logger.Error("upstream stream failed", "model", creq.Model, "fragments", fragments, "err", err)
			}
			_ = sink.Fail(wrapped.Error())
			_ = sink.Done()
			return wrapped
		}
		if chunk.Usage != nil {
			r.opts.Observer.ObserveUsage(creq.Model, chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		fragment := chunk.Choices[0].Delta.Content
		if fragment == "" {
			continue
		}
		if err := sink.Content(fragment); err != nil {
			// The caller is gone; returning closes the upstream body.
			r.logger.Info("chat stream aborted by caller", "model", creq.Model, "fragments", fragments, "err", err)
			return fmt.Errorf("write event: %w", err)
		}
		fragments++
		r.opts.Observer.ObserveFragment()
	}
}

// UpstreamModels lists the model ids the provider offers.
func (r *Relay) UpstreamModels(ctx context.Context) ([]string, error) {
	if r.upstream == nil {
		return nil, ErrConfiguration
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	list, err := r.upstream.ListModels(ctx)
	if err != nil {
		r.logger.Error("list upstream models failed", "err", err)
		return nil, wrapUpstreamError(err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if id := strings.TrimSpace(m.ID); id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Relay) prepare(req Request) (openai.ChatCompletionRequest, error) {
	if r.upstream == nil {
		r.logger.Error("chat request rejected: upstream api key not configured")
		return openai.ChatCompletionRequest{}, ErrConfiguration
	}
	if err := req.Validate(); err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	model, err := r.resolveModel(req.Model)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	mode := req.Mode()
	instruction := ""
	if r.instructions != nil {
		instruction = r.instructions.Get(mode)
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if instruction != "" || r.opts.PrependPolicy == config.PrependAlways {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: instruction})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	r.logger.Info("chat request", "mode", mode, "model", model, "messages", len(msgs), "stream", req.Stream, "instruction", instruction != "")
	creq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if completionTokenCapOnly(model) {
		creq.MaxCompletionTokens = r.opts.MaxTokens
	} else {
		creq.MaxTokens = r.opts.MaxTokens
	}
	return creq, nil
}

// completionTokenCapOnly reports models that reject max_tokens and take
// max_completion_tokens instead. The prefixes match the ones go-openai
// refuses to send with MaxTokens.
func completionTokenCapOnly(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func (r *Relay) resolveModel(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if r.opts.ModelPolicy == config.ModelPolicyAllowlist {
		if requested == "" || requested == r.opts.Model {
			return r.opts.Model, nil
		}
		if r.opts.Catalog != nil && r.opts.Catalog.Contains(requested) {
			return requested, nil
		}
		return "", &ValidationError{Message: fmt.Sprintf("model %q is not in the configured model list", requested)}
	}
	if requested != "" && requested != r.opts.Model {
		r.logger.Debug("caller model ignored under fixed policy", "requested", requested, "model", r.opts.Model)
	}
	return r.opts.Model, nil
}

func (r *Relay) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.Timeout > 0 {
		return context.WithTimeout(ctx, r.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

type noopObserver struct{}

func (noopObserver) ObserveUpstream(string, bool, time.Duration, error) {}
func (noopObserver) ObserveUsage(string, int, int)                      {}
func (noopObserver) ObserveFragment()                                   {}
