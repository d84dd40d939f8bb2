// Package mcp exposes the terminology bridge as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/medisutra/bridge/internal/domain/terminology"
)

// Terminology is the part of the terminology service the tools call.
type Terminology interface {
	SearchAll(ctx context.Context, query string, limit int) (*terminology.SearchResults, error)
	TranslateEnriched(ctx context.Context, sourceSystem, sourceCode, targetSystem string) ([]*terminology.EnrichedMapping, error)
	ResolveMappings(ctx context.Context, system, code string) ([]*terminology.EnrichedMapping, error)
	GetCode(ctx context.Context, kind terminology.Kind, code string) (interface{}, error)
}

// ServerConfig contains configuration for creating an MCP server.
type ServerConfig struct {
	Name    string
	Version string
	Svc     Terminology
}

// CreateServer creates the MCP server with the terminology tools registered.
func CreateServer(cfg ServerConfig) *mcp.Server {
	if cfg.Name == "" {
		cfg.Name = "namaste-bridge"
	}
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Svc != nil {
		RegisterTools(s, cfg.Svc)
	}
	return s
}

// RegisterTools adds search_terminology, translate_code, resolve_mappings
// and lookup_code to server.
func RegisterTools(server *mcp.Server, svc Terminology) {
	h := &Handlers{svc: svc}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_terminology",
		Description: "Search NAMASTE, ICD-11 and TM2 codes by code, title or description",
	}, h.Search)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "translate_code",
		Description: "Translate a code from one system (NAMASTE, ICD-11, TM2) into another using the stored mappings",
	}, h.Translate)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_mappings",
		Description: "List every active mapping from a code, with titles for both ends",
	}, h.Resolve)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "lookup_code",
		Description: "Fetch one NAMASTE, ICD-11 or TM2 record as JSON",
	}, h.Lookup)
}

type SearchArgument struct {
	Query string `json:"query" jsonschema:"Text to search for"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results per code system (default 50)"`
}

type TranslateArgument struct {
	SourceSystem string `json:"sourceSystem" jsonschema:"Source system: NAMASTE, ICD-11 or TM2"`
	SourceCode   string `json:"sourceCode" jsonschema:"Code in the source system"`
	TargetSystem string `json:"targetSystem" jsonschema:"Target system: NAMASTE, ICD-11 or TM2"`
}

type CodeArgument struct {
	System string `json:"system" jsonschema:"Code system: NAMASTE, ICD-11 or TM2"`
	Code   string `json:"code" jsonschema:"Code in that system"`
}

// Handlers implements the tool callbacks.
type Handlers struct {
	svc Terminology
}

func (h *Handlers) Search(ctx context.Context, _ *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}
	res, err := h.svc.SearchAll(ctx, args.Query, args.Limit)
	if err != nil {
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}
	if res.Total() == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", args.Query)), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for '%s':\n", res.Total(), args.Query)
	if len(res.NamasteCodes) > 0 {
		sb.WriteString("\n## NAMASTE\n")
		for _, c := range res.NamasteCodes {
			fmt.Fprintf(&sb, "- %s %s (%s, %s)\n", c.Code, c.Title, c.System, c.Category)
		}
	}
	if len(res.ICDCodes) > 0 {
		sb.WriteString("\n## ICD-11\n")
		for _, c := range res.ICDCodes {
			fmt.Fprintf(&sb, "- %s %s\n", c.Code, c.Title)
		}
	}
	if len(res.TM2Codes) > 0 {
		sb.WriteString("\n## TM2\n")
		for _, c := range res.TM2Codes {
			fmt.Fprintf(&sb, "- %s %s\n", c.Code, c.Title)
		}
	}
	return textResult(sb.String()), nil, nil
}

func (h *Handlers) Translate(ctx context.Context, _ *mcp.CallToolRequest, args TranslateArgument) (*mcp.CallToolResult, any, error) {
	src := terminology.NormalizeSystem(args.SourceSystem)
	tgt := terminology.NormalizeSystem(args.TargetSystem)
	mappings, err := h.svc.TranslateEnriched(ctx, src, strings.TrimSpace(args.SourceCode), tgt)
	if err != nil {
		return errorResult(fmt.Sprintf("Translate failed: %s", err)), nil, nil
	}
	if len(mappings) == 0 {
		return textResult(fmt.Sprintf("No %s mapping found for %s %s", tgt, src, args.SourceCode)), nil, nil
	}
	return textResult(formatMappings(fmt.Sprintf("%s %s -> %s", src, args.SourceCode, tgt), mappings)), nil, nil
}

func (h *Handlers) Resolve(ctx context.Context, _ *mcp.CallToolRequest, args CodeArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.System) == "" || strings.TrimSpace(args.Code) == "" {
		return errorResult("system and code are required"), nil, nil
	}
	system := terminology.NormalizeSystem(args.System)
	mappings, err := h.svc.ResolveMappings(ctx, system, strings.TrimSpace(args.Code))
	if err != nil {
		return errorResult(fmt.Sprintf("Resolve failed: %s", err)), nil, nil
	}
	if len(mappings) == 0 {
		return textResult(fmt.Sprintf("No mappings found for %s %s", system, args.Code)), nil, nil
	}
	return textResult(formatMappings(fmt.Sprintf("Mappings from %s %s", system, args.Code), mappings)), nil, nil
}

func (h *Handlers) Lookup(ctx context.Context, _ *mcp.CallToolRequest, args CodeArgument) (*mcp.CallToolResult, any, error) {
	kind, err := terminology.ParseKind(args.System)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	rec, err := h.svc.GetCode(ctx, kind, strings.TrimSpace(args.Code))
	if errors.Is(err, terminology.ErrNotFound) {
		return errorResult(fmt.Sprintf("%s code %s not found", kind, args.Code)), nil, nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Lookup failed: %s", err)), nil, nil
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return textResult(string(data)), nil, nil
}

func formatMappings(heading string, mappings []*terminology.EnrichedMapping) string {
	var sb strings.Builder
	sb.WriteString(heading)
	sb.WriteString(":\n")
	for _, m := range mappings {
		title := m.TargetTitle
		if title == "" {
			title = "(no title)"
		}
		fmt.Fprintf(&sb, "- %s %s: %s [%s, confidence %s]\n", m.TargetSystem, m.TargetCode, title, m.MappingType, m.Confidence)
	}
	return sb.String()
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}, IsError: true}
}
