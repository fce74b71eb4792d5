package provider

import (
	"context"
	"sync/atomic"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// FakeAnswer is the fixed reply of the fake backend.
const FakeAnswer = "This is a fake LLM answer."

// FakeChatModel is a deterministic in-process chat model. It always answers
// with the same text, which makes generation testable without a model server.
type FakeChatModel struct {
	answer string
	// calls counts Generate and Stream invocations.
	calls atomic.Int64
	// last holds the most recent input messages.
	last atomic.Pointer[[]*schema.Message]
}

var _ model.BaseChatModel = (*FakeChatModel)(nil)

// NewFakeChatModel returns a FakeChatModel that replies with answer.
func NewFakeChatModel(answer string) *FakeChatModel {
	return &FakeChatModel{answer: answer}
}

// Generate returns the fixed answer as an assistant message.
func (m *FakeChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.record(input)
	return schema.AssistantMessage(m.answer, nil), nil
}

// Stream returns the fixed answer as a single-chunk stream.
func (m *FakeChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.record(input)
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(m.answer, nil)}), nil
}

// Calls reports how many times the model was invoked.
func (m *FakeChatModel) Calls() int64 { return m.calls.Load() }

// LastInput returns the messages of the most recent call, or nil.
func (m *FakeChatModel) LastInput() []*schema.Message {
	if p := m.last.Load(); p != nil {
		return *p
	}
	return nil
}

func (m *FakeChatModel) record(input []*schema.Message) {
	m.calls.Add(1)
	cp := append([]*schema.Message(nil), input...)
	m.last.Store(&cp)
}
