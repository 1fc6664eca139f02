package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/progcompcl/ide/core"
	"github.com/progcompcl/ide/internal/logx"
	"github.com/progcompcl/ide/schema"
)

type compilePayload struct {
	Code     string `json:"code"`
	Filename string `json:"filename"`
	Stdin    string `json:"stdin"`
	Wait     bool   `json:"wait"`
}

type assemblyPayload struct {
	Code   string `json:"code"`
	Triple string `json:"triple"`
	Opt    string `json:"opt"`
	Wait   bool   `json:"wait"`
}

type acceptedResponse struct {
	SessionID  schema.SessionID   `json:"session_id"`
	Mode       schema.CompileMode `json:"mode"`
	Generation schema.Generation  `json:"generation"`
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session *core.Session)

// withSession resolves {id} and binds the session logger to the request.
func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := schema.SessionID(r.PathValue("id"))
		session, err := s.registry.Get(id)
		if err != nil {
			logx.WithSession(r.Context(), id).Debug("http session lookup failed", "err", err)
			writeError(w, statusFor(err), err)
			return
		}
		log := logx.WithSession(r.Context(), id)
		ctx := logx.ContextWithSessionLogger(r.Context(), log, id)
		next(w, r.WithContext(ctx), session)
	}
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	// Sessions outlive the request that opened them.
	session, err := s.registry.Open(context.WithoutCancel(r.Context()))
	if err != nil {
		logx.Ctx(r.Context()).Warn("http session open failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": session.ID()})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.registry.List()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, session *core.Session) {
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := schema.SessionID(r.PathValue("id"))
	if err := s.registry.Close(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request, session *core.Session) {
	var payload compilePayload
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes), &payload); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	req := schema.CompileRequest{
		SourceCode: payload.Code,
		Filename:   payload.Filename,
		Stdin:      payload.Stdin,
		Mode:       schema.ModeRun,
	}
	s.submit(w, r, session, req, payload.Wait)
}

func (s *Server) handleAssembly(w http.ResponseWriter, r *http.Request, session *core.Session) {
	var payload assemblyPayload
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes), &payload); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	req := schema.CompileRequest{
		SourceCode: payload.Code,
		Mode:       schema.ModeAssembly,
		Options: &schema.AssemblyOptions{
			TargetTriple:      strings.TrimSpace(payload.Triple),
			OptimizationLevel: strings.TrimSpace(payload.Opt),
		},
	}
	s.submit(w, r, session, req, payload.Wait)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, session *core.Session, req schema.CompileRequest, wait bool) {
	log := logx.WithRequest(logx.Ctx(r.Context()), req)
	pending, err := session.Compile(context.WithoutCancel(r.Context()), req)
	if err != nil {
		log.Info("http compile rejected", "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	if !wait {
		writeJSON(w, http.StatusAccepted, acceptedResponse{
			SessionID:  session.ID(),
			Mode:       pending.Mode,
			Generation: pending.Generation,
		})
		return
	}
	result, err := pending.Wait(r.Context())
	if err != nil {
		if r.Context().Err() != nil {
			log.Debug("http compile wait abandoned", "err", err)
			return
		}
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, session *core.Session) {
	if err := session.Reset(context.WithoutCancel(r.Context())); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id": session.ID(),
		"generation": session.Generation(),
	})
}

// sessionFromPath extracts the session id for request logging.
func sessionFromPath(r *http.Request) string {
	rest, ok := strings.CutPrefix(r.URL.Path, "/api/sessions/")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}
