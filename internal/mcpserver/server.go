// Package mcpserver exposes stored moments to MCP clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/user/momentcast/internal/types"
)

// Store is the part of the moment store the tools need.
type Store interface {
	Get(ctx context.Context, id types.MomentID) (*types.Moment, error)
	ListRecent(ctx context.Context, limit int) ([]*types.Moment, error)
	ListBySession(ctx context.Context, sessionID types.SessionID, limit int) ([]*types.Moment, error)
	UpdatePosts(ctx context.Context, id types.MomentID, posts types.Posts) (*types.Moment, error)
	MarkPublished(ctx context.Context, id types.MomentID, platform, remoteID string) (*types.Moment, error)
}

const defaultLimit = 20

type Server struct {
	store Store
	mcp   *server.MCPServer
}

func New(store Store, version string) *Server {
	s := &Server{
		store: store,
		mcp:   server.NewMCPServer("momentcast", version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("list_recent_moments",
		mcp.WithDescription("List the most recent hot moments across all sessions, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of moments (default 20)")),
	), s.listRecent)

	s.mcp.AddTool(mcp.NewTool("list_session_moments",
		mcp.WithDescription("List the hot moments of one transcript session, newest first."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of moments (default 20)")),
	), s.listSession)

	s.mcp.AddTool(mcp.NewTool("get_moment",
		mcp.WithDescription("Fetch one moment with its text, social drafts and captures."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Moment identifier")),
	), s.getMoment)

	s.mcp.AddTool(mcp.NewTool("update_posts",
		mcp.WithDescription("Replace some of a moment's social drafts. Omitted fields keep their value."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Moment identifier")),
		mcp.WithArray("twitter", mcp.Description("Thread, one tweet per entry"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("facebook", mcp.Description("Facebook post")),
		mcp.WithString("linkedin", mcp.Description("LinkedIn post")),
		mcp.WithString("article", mcp.Description("Article body as HTML")),
	), s.updatePosts)

	s.mcp.AddTool(mcp.NewTool("mark_published",
		mcp.WithDescription("Record that a moment was published to a platform."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Moment identifier")),
		mcp.WithString("platform", mcp.Required(), mcp.Description("twitter, facebook, linkedin or article")),
		mcp.WithString("remote_id", mcp.Description("Identifier of the post on the platform")),
	), s.markPublished)

	return s
}

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func limitArg(req mcp.CallToolRequest) int {
	n := req.GetInt("limit", defaultLimit)
	if n <= 0 {
		return defaultLimit
	}
	return n
}

func (s *Server) listRecent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	moments, err := s.store.ListRecent(ctx, limitArg(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summaries(moments))
}

func (s *Server) listSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	moments, err := s.store.ListBySession(ctx, types.SessionID(id), limitArg(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summaries(moments))
}

func (s *Server) getMoment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.store.Get(ctx, types.MomentID(id))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(m)
}

func (s *Server) updatePosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.store.Get(ctx, types.MomentID(id))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	posts := m.Posts
	args := req.GetArguments()
	if raw, ok := args["twitter"]; ok {
		thread, err := stringList(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		posts.Twitter = thread
	}
	if v, ok := args["facebook"].(string); ok {
		posts.Facebook = v
	}
	if v, ok := args["linkedin"].(string); ok {
		posts.LinkedIn = v
	}
	if v, ok := args["article"].(string); ok {
		posts.Article = v
	}

	updated, err := s.store.UpdatePosts(ctx, m.ID, posts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(updated)
}

func (s *Server) markPublished(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	platform, err := req.RequireString("platform")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.store.MarkPublished(ctx, types.MomentID(id), strings.ToLower(platform), req.GetString("remote_id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(m)
}

func stringList(raw any) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("twitter must be an array of strings")
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("twitter must be an array of strings")
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

type summary struct {
	ID        types.MomentID  `json:"id"`
	SessionID types.SessionID `json:"session_id"`
	Title     string          `json:"title"`
	Preview   string          `json:"preview"`
	Captures  int             `json:"captures"`
	Published []string        `json:"published,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func summaries(moments []*types.Moment) []summary {
	out := make([]summary, 0, len(moments))
	for _, m := range moments {
		sum := summary{
			ID:        m.ID,
			SessionID: m.SessionID,
			Title:     m.Title,
			Preview:   preview(m.Text, 160),
			Captures:  len(m.Captures),
			CreatedAt: m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		for platform, st := range m.PublishedTo {
			if st.Published {
				sum.Published = append(sum.Published, platform)
			}
		}
		out = append(out, sum)
	}
	return out
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n-1]) + "…"
}
