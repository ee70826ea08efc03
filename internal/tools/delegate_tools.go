package tools

import (
	"context"
	"errors"
	"fmt"
)

// PromptRunner runs a saved prompt for an account and returns its output.
type PromptRunner func(ctx context.Context, call Call, args CallPromptArgs) (string, error)

// ImageAnalyzer answers a question about an image.
type ImageAnalyzer func(ctx context.Context, call Call, args ImageAnalysisArgs) (string, error)

// Replier posts a reply to a conversation on the support platform.
type Replier func(ctx context.Context, call Call, args IntercomReplyToArgs) (string, error)

// ErrNotConfigured is returned by delegate tools with no collaborator wired.
var ErrNotConfigured = errors.New("tool is not configured")

// CallPromptTool runs another saved prompt through a PromptRunner.
type CallPromptTool struct {
	Run PromptRunner
}

// Name returns the tool name.
func (t CallPromptTool) Name() string {
	return NameCallPrompt
}

// Execute validates arguments and delegates to Run.
func (t CallPromptTool) Execute(ctx context.Context, call Call) (*Result, error) {
	args, err := decodeArgs[CallPromptArgs](call)
	if err != nil {
		return nil, err
	}
	if args.PromptID, err = requireString("prompt_id", args.PromptID); err != nil {
		return nil, err
	}
	if t.Run == nil {
		return nil, fmt.Errorf("%s: %w", NameCallPrompt, ErrNotConfigured)
	}
	out, err := t.Run(ctx, call, args)
	if err != nil {
		return nil, err
	}
	return &Result{Output: out}, nil
}

// ImageAnalysisTool describes images through an ImageAnalyzer.
type ImageAnalysisTool struct {
	Analyze ImageAnalyzer
}

// Name returns the tool name.
func (t ImageAnalysisTool) Name() string {
	return NameImageAnalysis
}

// Execute validates arguments and delegates to Analyze.
func (t ImageAnalysisTool) Execute(ctx context.Context, call Call) (*Result, error) {
	args, err := decodeArgs[ImageAnalysisArgs](call)
	if err != nil {
		return nil, err
	}
	if args.ImageURL, err = requireString("image_url", args.ImageURL); err != nil {
		return nil, err
	}
	if t.Analyze == nil {
		return nil, fmt.Errorf("%s: %w", NameImageAnalysis, ErrNotConfigured)
	}
	out, err := t.Analyze(ctx, call, args)
	if err != nil {
		return nil, err
	}
	return &Result{Output: out}, nil
}

// IntercomReplyToTool replies to a support conversation through a Replier.
type IntercomReplyToTool struct {
	Reply Replier
}

// Name returns the tool name.
func (t IntercomReplyToTool) Name() string {
	return NameIntercomReplyTo
}

// Execute validates arguments and delegates to Reply.
func (t IntercomReplyToTool) Execute(ctx context.Context, call Call) (*Result, error) {
	args, err := decodeArgs[IntercomReplyToArgs](call)
	if err != nil {
		return nil, err
	}
	if args.ConversationID, err = requireString("conversation_id", args.ConversationID); err != nil {
		return nil, err
	}
	if args.Message, err = requireString("message", args.Message); err != nil {
		return nil, err
	}
	if t.Reply == nil {
		return nil, fmt.Errorf("%s: %w", NameIntercomReplyTo, ErrNotConfigured)
	}
	out, err := t.Reply(ctx, call, args)
	if err != nil {
		return nil, err
	}
	return &Result{Output: out}, nil
}
