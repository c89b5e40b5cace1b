// Package mcp exposes the AI agent's tools over the Model Context Protocol,
// so external assistants can search and create tickets the same way the
// in-app agent does.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/autocrm-inc/autocrm/internal/application/assistant"
	"github.com/autocrm-inc/autocrm/internal/domain/knowledge"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

const defaultSearchK = 5

// ToolRunner is the part of assistant.Tools the server exposes.
type ToolRunner interface {
	SearchTickets(ctx context.Context, q string) string
	SearchUsers(ctx context.Context, q string) string
	CreateTicket(ctx context.Context, in assistant.CreateTicketInput) string
}

type KnowledgeSearcher interface {
	SearchKnowledge(ctx context.Context, q string, k int) ([]knowledge.Chunk, error)
}

// Server wraps the agent tools as MCP tools. knowledge and pipeline may be
// nil, in which case their tools are not registered.
type Server struct {
	server    *gomcp.Server
	tools     ToolRunner
	knowledge KnowledgeSearcher
	pipeline  assistant.Pipeline
	logger    logger.Interface
}

func NewServer(tools ToolRunner, knowledge KnowledgeSearcher, pipeline assistant.Pipeline, version string, log logger.Interface) *Server {
	if version == "" {
		version = "dev"
	}
	if log == nil {
		log = logger.NewNop()
	}

	s := &Server{
		tools:     tools,
		knowledge: knowledge,
		pipeline:  pipeline,
		logger:    log.Named("mcp"),
	}
	s.server = gomcp.NewServer(&gomcp.Implementation{Name: "autocrm", Version: version}, nil)
	s.registerTools()
	return s
}

// Run serves on stdio until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying server, for other transports and tests.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

type searchInput struct {
	Query string `json:"query" jsonschema:"search terms; every term must match"`
}

type searchKnowledgeInput struct {
	Query string `json:"query" jsonschema:"the question to find relevant knowledge base passages for"`
	K     int    `json:"k,omitempty" jsonschema:"number of passages to return, default 5"`
}

type askInput struct {
	Message string `json:"message" jsonschema:"the customer message to answer"`
}

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "search_tickets",
		Description: "Search support tickets by title. Returns matching tickets with status, priority and customer.",
	}, s.handleSearchTickets)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "search_users",
		Description: "Search users by email. Returns matching users with their role.",
	}, s.handleSearchUsers)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_ticket",
		Description: "Create a support ticket for a customer. Status is one of open, pending, resolved; priority one of low, medium, high.",
	}, s.handleCreateTicket)

	if s.knowledge != nil {
		gomcp.AddTool(s.server, &gomcp.Tool{
			Name:        "search_knowledge",
			Description: "Find the knowledge base passages most similar to a question.",
		}, s.handleSearchKnowledge)
	}

	if s.pipeline != nil {
		gomcp.AddTool(s.server, &gomcp.Tool{
			Name:        "ask",
			Description: "Answer a customer message the way the support agent would.",
		}, s.handleAsk)
	}
}

func (s *Server) handleSearchTickets(ctx context.Context, _ *gomcp.CallToolRequest, in searchInput) (*gomcp.CallToolResult, any, error) {
	return toolResult(s.tools.SearchTickets(ctx, in.Query)), nil, nil
}

func (s *Server) handleSearchUsers(ctx context.Context, _ *gomcp.CallToolRequest, in searchInput) (*gomcp.CallToolResult, any, error) {
	return toolResult(s.tools.SearchUsers(ctx, in.Query)), nil, nil
}

func (s *Server) handleCreateTicket(ctx context.Context, _ *gomcp.CallToolRequest, in assistant.CreateTicketInput) (*gomcp.CallToolResult, any, error) {
	out := s.tools.CreateTicket(ctx, in)
	if strings.HasPrefix(out, "Failed") {
		return errorResult(out), nil, nil
	}
	return textResult(out), nil, nil
}

func (s *Server) handleSearchKnowledge(ctx context.Context, _ *gomcp.CallToolRequest, in searchKnowledgeInput) (*gomcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Query) == "" {
		return errorResult("query is required"), nil, nil
	}
	k := in.K
	if k <= 0 {
		k = defaultSearchK
	}
	chunks, err := s.knowledge.SearchKnowledge(ctx, in.Query, k)
	if err != nil {
		s.logger.Warnw("knowledge search failed", "error", err)
		return errorResult(fmt.Sprintf("searching knowledge base: %s", err)), nil, nil
	}
	b, err := json.Marshal(chunks)
	if err != nil {
		return nil, nil, err
	}
	return textResult(string(b)), nil, nil
}

func (s *Server) handleAsk(ctx context.Context, _ *gomcp.CallToolRequest, in askInput) (*gomcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Message) == "" {
		return errorResult("message is required"), nil, nil
	}
	reply, err := s.pipeline.Respond(ctx, in.Message)
	if err != nil || reply == "" {
		s.logger.Warnw("assistant reply failed", "error", err)
		return textResult(assistant.Apology), nil, nil
	}
	return textResult(reply), nil, nil
}

// toolResult marks JSON error documents from the tools as failed calls.
func toolResult(out string) *gomcp.CallToolResult {
	var r assistant.ToolResult
	if json.Unmarshal([]byte(out), &r) == nil && r.Type == assistant.ResultError {
		return errorResult(r.Message)
	}
	return textResult(out)
}

func textResult(text string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: text}},
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
