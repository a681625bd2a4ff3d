package ai

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"github.com/zhouzirui/callsim/backend/internal/model/conversation"
)

type fakeChatModel struct {
	mu        sync.Mutex
	reply     string
	err       error
	delay     time.Duration
	input     []*schema.Message
	maxTokens int
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{}, opts...)

	f.mu.Lock()
	f.input = input
	if options.MaxTokens != nil {
		f.maxTokens = *options.MaxTokens
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func newTestService(t *testing.T, fake *fakeChatModel, opts Options) *Service {
	t.Helper()
	svc, err := NewServiceWithModel(context.Background(), fake, opts)
	if err != nil {
		t.Fatalf("NewServiceWithModel err: %v", err)
	}
	return svc
}

func TestGenerateSendsSystemAndHistory(t *testing.T) {
	fake := &fakeChatModel{reply: "  Yeah, who's this?  "}
	svc := newTestService(t, fake, Options{MaxTokens: 256})

	history, err := HistoryMessages([]conversation.Turn{
		{Number: 1, Role: conversation.RolePersona, Content: "Hello?"},
		{Number: 2, Role: conversation.RoleOperator, Content: "Hi, I'm calling about your portfolio."},
	})
	if err != nil {
		t.Fatalf("HistoryMessages err: %v", err)
	}

	text, err := svc.Generate(context.Background(), Request{System: "be {curt}", Messages: history})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if text != "Yeah, who's this?" {
		t.Fatalf("unexpected text %q", text)
	}

	if len(fake.input) != 3 {
		t.Fatalf("expected system + 2 history messages, got %d", len(fake.input))
	}
	if fake.input[0].Role != schema.System || fake.input[0].Content != "be {curt}" {
		t.Fatalf("unexpected system message: %+v", fake.input[0])
	}
	if fake.input[1].Role != schema.Assistant || fake.input[2].Role != schema.User {
		t.Fatalf("unexpected history roles: %s %s", fake.input[1].Role, fake.input[2].Role)
	}
	if fake.maxTokens != 256 {
		t.Fatalf("expected max tokens 256, got %d", fake.maxTokens)
	}
}

func TestGenerateRequestMaxTokensOverrides(t *testing.T) {
	fake := &fakeChatModel{reply: "ok"}
	svc := newTestService(t, fake, Options{MaxTokens: 256})

	if _, err := svc.Generate(context.Background(), Request{System: "s", Messages: OpeningMessages(), MaxTokens: 64}); err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if fake.maxTokens != 64 {
		t.Fatalf("expected max tokens 64, got %d", fake.maxTokens)
	}
}

func TestGenerateErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		fake *fakeChatModel
		opts Options
		want error
	}{
		{name: "empty completion", fake: &fakeChatModel{reply: "   "}, want: ErrBackendRejected},
		{name: "timeout", fake: &fakeChatModel{reply: "late", delay: time.Second}, opts: Options{Timeout: 20 * time.Millisecond}, want: ErrBackendTimeout},
		{name: "policy rejection", fake: &fakeChatModel{err: &arkmodel.APIError{Message: "blocked", HTTPStatusCode: http.StatusBadRequest}}, want: ErrBackendRejected},
		{name: "rate limited", fake: &fakeChatModel{err: &arkmodel.APIError{Message: "slow down", HTTPStatusCode: http.StatusTooManyRequests}}, want: ErrBackendUnavailable},
		{name: "server error", fake: &fakeChatModel{err: &arkmodel.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}}, want: ErrBackendUnavailable},
		{name: "network", fake: &fakeChatModel{err: errors.New("connection refused")}, want: ErrBackendUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, tc.fake, tc.opts)
			_, err := svc.Generate(context.Background(), Request{System: "s", Messages: OpeningMessages()})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestBackendRoleIsExhaustive(t *testing.T) {
	if role, err := BackendRole(conversation.RoleOperator); err != nil || role != schema.User {
		t.Fatalf("operator should map to user, got %s %v", role, err)
	}
	if role, err := BackendRole(conversation.RolePersona); err != nil || role != schema.Assistant {
		t.Fatalf("persona should map to assistant, got %s %v", role, err)
	}
	if _, err := BackendRole(conversation.Role(0)); err == nil {
		t.Fatal("zero role must not map")
	}
}

func TestOpeningMessages(t *testing.T) {
	msgs := OpeningMessages()
	if len(msgs) != 1 || msgs[0].Role != schema.User || msgs[0].Content != OpeningInstruction {
		t.Fatalf("unexpected opening messages: %+v", msgs)
	}
}
