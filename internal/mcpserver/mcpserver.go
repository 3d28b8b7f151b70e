// Package mcpserver exposes the tagger pipeline as MCP tools so agents can
// resolve addressees without going through the REST API.
//
// Two tools are registered by [New]:
//   - "extract_addressee": resolves the addressee of a transcript.
//   - "extract_entities":  lists the named entities of a transcript.
//
// [Server.Handler] serves them over the MCP streamable HTTP transport.
package mcpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voicetagger/internal/tagger"
	"github.com/MrWong99/voicetagger/pkg/nlp"
)

const implementationName = "voicetagger"

// extractArgs is the input of both tools.
type extractArgs struct {
	// Text is the transcript to analyse.
	Text string `json:"text" jsonschema:"transcribed voice-note text"`
}

// addresseeResult is the output of "extract_addressee".
type addresseeResult struct {
	// Addressee is the resolved name exactly as written, or empty.
	Addressee string `json:"addressee" jsonschema:"resolved addressee as it appears in the text; empty when not found"`

	// Found distinguishes a real match from the empty Addressee.
	Found bool `json:"found" jsonschema:"whether an addressee was found"`

	// Stage names the resolver stage that produced the match.
	Stage string `json:"stage" jsonschema:"resolver stage: pattern, entity, fallback or none"`

	// Contact is the matching roster contact, when one exists.
	Contact string `json:"contact,omitempty" jsonschema:"canonical roster contact matching the addressee"`
}

// entitiesResult is the output of "extract_entities".
type entitiesResult struct {
	Entities []nlp.Entity `json:"entities" jsonschema:"named entities in document order"`
}

// Server owns the MCP server and its tool registrations.
type Server struct {
	svc    *tagger.Service
	mcp    *mcp.Server
	logger *slog.Logger
}

// New builds a [Server] over svc and registers its tools.
func New(svc *tagger.Service, version string) *Server {
	s := &Server{
		svc: svc,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    implementationName,
			Version: version,
		}, nil),
		logger: slog.Default().With("component", "mcp"),
	}
	s.registerTools()
	return s
}

// MCP returns the underlying SDK server, for callers that bring their own
// transport.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Handler returns an http.Handler speaking the MCP streamable HTTP transport.
// Every session shares the same server and tools.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "extract_addressee",
		Description: "Find who a short voice-note transcript is addressed to. Tries direct-address phrases (\"Hey John\"), then person names, then likely proper nouns.",
	}, s.extractAddressee)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "extract_entities",
		Description: "List the named entities (people, organisations, places) in a transcript.",
	}, s.extractEntities)
}

func (s *Server) extractAddressee(ctx context.Context, _ *mcp.CallToolRequest, args extractArgs) (*mcp.CallToolResult, addresseeResult, error) {
	out, err := s.svc.Extract(ctx, args.Text)
	if err != nil {
		s.logger.WarnContext(ctx, "extract_addressee failed", "err", err)
		return nil, addresseeResult{}, err
	}
	res := addresseeResult{
		Found:   out.Result.Found(),
		Stage:   out.Result.Stage.String(),
		Contact: out.Contact,
	}
	if res.Found {
		res.Addressee = out.Result.Name
	}
	s.logger.DebugContext(ctx, "extract_addressee", "stage", res.Stage, "found", res.Found)
	return nil, res, nil
}

func (s *Server) extractEntities(ctx context.Context, _ *mcp.CallToolRequest, args extractArgs) (*mcp.CallToolResult, entitiesResult, error) {
	ents, err := s.svc.Entities(ctx, args.Text)
	if err != nil {
		s.logger.WarnContext(ctx, "extract_entities failed", "err", err)
		return nil, entitiesResult{}, err
	}
	if ents == nil {
		ents = []nlp.Entity{}
	}
	return nil, entitiesResult{Entities: ents}, nil
}
