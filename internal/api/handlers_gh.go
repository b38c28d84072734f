package api

import (
	"net/http"
	"strconv"

	"github.com/org/gitgateway/pkg/models"
)

// ghExecuteRequest carries a raw gh argument list. The arguments are parsed
// and evaluated like any other command; this endpoint grants nothing the
// convenience endpoints below do not.
type ghExecuteRequest struct {
	Args []string `json:"args"`
	// Repo is an optional owner/name hint used when the arguments carry no
	// -R/--repo flag.
	Repo string `json:"repo,omitempty"`
}

// GhExecuteHandler handles POST /v1/gh/execute.
func (s *Server) GhExecuteHandler(w http.ResponseWriter, r *http.Request) {
	var req ghExecuteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Args) == 0 {
		writeError(w, http.StatusBadRequest, "args must not be empty")
		return
	}
	var hint models.RepoRef
	if req.Repo != "" {
		hint = splitRepo(req.Repo)
		if hint.IsZero() {
			writeError(w, http.StatusBadRequest, "repo must be owner/name")
			return
		}
	}
	s.execute(w, r, "gh", req.Args, hint)
}

type prCreateRequest struct {
	Repo  string `json:"repo"`
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
	Head  string `json:"head"`
	Base  string `json:"base,omitempty"`
	Draft bool   `json:"draft,omitempty"`
}

// PRCreateHandler handles POST /v1/gh/pr/create.
func (s *Server) PRCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req prCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ref := splitRepo(req.Repo)
	if ref.IsZero() {
		writeError(w, http.StatusBadRequest, "repo must be owner/name")
		return
	}
	if req.Title == "" || req.Head == "" {
		writeError(w, http.StatusBadRequest, "title and head are required")
		return
	}

	args := []string{"pr", "create", "--repo", ref.String(),
		"--title", req.Title, "--body", req.Body, "--head", req.Head}
	if req.Base != "" {
		args = append(args, "--base", req.Base)
	}
	if req.Draft {
		args = append(args, "--draft")
	}
	s.execute(w, r, "gh", args, ref)
}

type prCommentRequest struct {
	Repo   string `json:"repo"`
	Number int    `json:"number"`
	Body   string `json:"body"`
}

// PRCommentHandler handles POST /v1/gh/pr/comment.
func (s *Server) PRCommentHandler(w http.ResponseWriter, r *http.Request) {
	var req prCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ref := splitRepo(req.Repo)
	if ref.IsZero() || req.Number <= 0 || req.Body == "" {
		writeError(w, http.StatusBadRequest, "repo, number, and body are required")
		return
	}

	args := []string{"pr", "comment", strconv.Itoa(req.Number),
		"--repo", ref.String(), "--body", req.Body}
	s.execute(w, r, "gh", args, ref)
}

type prCloseRequest struct {
	Repo         string `json:"repo"`
	Number       int    `json:"number"`
	Comment      string `json:"comment,omitempty"`
	DeleteBranch bool   `json:"delete_branch,omitempty"`
}

// PRCloseHandler handles POST /v1/gh/pr/close.
func (s *Server) PRCloseHandler(w http.ResponseWriter, r *http.Request) {
	var req prCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ref := splitRepo(req.Repo)
	if ref.IsZero() || req.Number <= 0 {
		writeError(w, http.StatusBadRequest, "repo and number are required")
		return
	}

	args := []string{"pr", "close", strconv.Itoa(req.Number), "--repo", ref.String()}
	if req.Comment != "" {
		args = append(args, "--comment", req.Comment)
	}
	if req.DeleteBranch {
		args = append(args, "--delete-branch")
	}
	s.execute(w, r, "gh", args, ref)
}
