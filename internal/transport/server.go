// Package transport exposes the orchestrator over HTTP: a fasthttp
// tool-call API and a websocket event stream.
package transport

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/challenge-runtime/internal/orchestrator"
	"github.com/park285/challenge-runtime/pkg/challengedto"
)

// Server routes POST /tools/{name} to orchestrator operations. Tool
// failures travel inside the envelope with HTTP 200; only transport
// level problems use other status codes.
type Server struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
	srv    *fasthttp.Server
}

func NewServer(orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{orch: orch, logger: logger}
	s.srv = &fasthttp.Server{
		Handler:      s.handle,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Name:         "challenged",
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("tool server listening", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error { return s.srv.Shutdown() }

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())

	if path == "/healthz" {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString(`{"status":"ok"}`)
		ctx.SetContentType("application/json")
		return
	}

	name, ok := strings.CutPrefix(path, "/tools/")
	if !ok || name == "" {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	if !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}

	env := s.dispatch(ctx, name, ctx.PostBody())
	raw, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("encode envelope failed", zap.String("tool", name), zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func (s *Server) dispatch(ctx context.Context, name string, body []byte) challengedto.Envelope {
	switch name {
	case "start_challenge":
		req, derr := decode[challengedto.StartChallengeRequest](body)
		if derr != nil {
			return challengedto.Fail(derr, nil)
		}
		return s.orch.StartChallenge(ctx, req)
	case "challenge_move":
		req, derr := decode[challengedto.MoveRequest](body)
		if derr != nil {
			return challengedto.Fail(derr, nil)
		}
		return s.orch.ChallengeMove(ctx, req)
	case "challenge_state":
		req, derr := decode[challengedto.SessionRequest](body)
		if derr != nil {
			return challengedto.Fail(derr, nil)
		}
		return s.orch.ChallengeState(ctx, req)
	case "get_achievements":
		req, derr := decode[challengedto.AchievementsRequest](body)
		if derr != nil {
			return challengedto.Fail(derr, nil)
		}
		return s.orch.GetAchievements(ctx, req)
	case "complete_challenge":
		req, derr := decode[challengedto.SessionRequest](body)
		if derr != nil {
			return challengedto.Fail(derr, nil)
		}
		return s.orch.CompleteChallenge(ctx, req)
	case "resign_challenge":
		req, derr := decode[challengedto.SessionRequest](body)
		if derr != nil {
			return challengedto.Fail(derr, nil)
		}
		return s.orch.ResignChallenge(ctx, req)
	case "get_replay":
		req, derr := decode[challengedto.ReplayRequest](body)
		if derr != nil {
			return challengedto.Fail(derr, nil)
		}
		return s.orch.GetReplay(ctx, req)
	case "list_replays":
		req, derr := decode[challengedto.ListReplaysRequest](body)
		if derr != nil {
			return challengedto.Fail(derr, nil)
		}
		return s.orch.ListReplays(ctx, req)
	default:
		return challengedto.Fail(challengedto.NewError(challengedto.CodeValidation,
			"unknown tool "+name), nil)
	}
}

func decode[T any](body []byte) (T, *challengedto.DomainError) {
	var req T
	if len(body) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, challengedto.NewError(challengedto.CodeValidation, "request body is not valid JSON")
	}
	return req, nil
}
