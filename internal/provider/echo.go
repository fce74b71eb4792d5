package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
)

// EchoPrefix is prepended to the question by the echo chain.
const EchoPrefix = "echo: "

// Echo is a single-step chain that answers with the question itself. It
// exercises the chain runtime without any model and backs the smoke-test
// endpoint.
type Echo struct {
	chain compose.Runnable[string, string]
}

// NewEcho compiles the echo chain.
func NewEcho(ctx context.Context) (*Echo, error) {
	chain, err := compose.NewChain[string, string]().
		AppendLambda(compose.InvokableLambda(func(_ context.Context, question string) (string, error) {
			return EchoPrefix + question, nil
		})).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider: compile echo chain: %w", err)
	}
	return &Echo{chain: chain}, nil
}

// Answer returns "echo: " + question.
func (e *Echo) Answer(ctx context.Context, question string) (string, error) {
	return e.chain.Invoke(ctx, question)
}
