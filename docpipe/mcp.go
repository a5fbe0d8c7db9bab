package docpipe

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/audioscribe/guard"
	"github.com/hazyhaar/audioscribe/kit"
)

// MCP tool names.
const (
	ToolExtract  = "docx_extract"
	ToolValidate = "docx_validate"
	ToolEstimate = "docx_estimate"
)

// ToolMiddleware returns the middleware wrapped around one tool, innermost
// after logging and recovery.
type ToolMiddleware func(tool string) kit.Middleware

// PathRequest is the decoded argument of every tool.
type PathRequest struct {
	Path string `json:"path"`
}

// RegisterMCP registers the docx_extract, docx_validate and docx_estimate
// tools on srv. Each takes a "path" argument naming a local .docx file,
// resolved against Config.Root.
func (p *Pipeline) RegisterMCP(srv *mcp.Server, wrap ...ToolMiddleware) {
	p.registerPathTool(srv, ToolExtract, wrap,
		"Extract plain text and formatting ranges (bold, italic, underline, headings, quotes) from a .docx file.",
		func(ctx context.Context, path string) (any, error) { return p.Extract(ctx, path) })
	p.registerPathTool(srv, ToolValidate, wrap,
		"Check that a .docx file is readable and summarise its paragraphs and styles.",
		func(ctx context.Context, path string) (any, error) { return p.Validate(ctx, path) })
	p.registerPathTool(srv, ToolEstimate, wrap,
		"Estimate the formatting complexity and processing time of a .docx file.",
		func(ctx context.Context, path string) (any, error) { return p.Estimate(ctx, path) })
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (p *Pipeline) registerPathTool(srv *mcp.Server, name string, wrap []ToolMiddleware, description string, run func(context.Context, string) (any, error)) {
	tool := &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Path of the .docx file"},
		}, []string{"path"}),
	}

	mws := []kit.Middleware{kit.Logging(p.logger, name), kit.Recovery(p.logger)}
	for _, w := range wrap {
		mws = append(mws, w(name))
	}
	endpoint := kit.Chain(mws...)(func(ctx context.Context, req any) (any, error) {
		return run(ctx, req.(*PathRequest).Path)
	})

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r PathRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Path == "" {
			return nil, errors.New("path is required")
		}
		path, err := guard.ResolvePath(p.cfg.Root, r.Path)
		if err != nil {
			return nil, err
		}
		r.Path = path
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
