package api

import (
	"net/http"
	"strings"
)

// gitRequest is the body for both git endpoints. The remote URL is built
// server-side from the repo field; the sandbox never supplies a URL, which
// rules out pushes to arbitrary hosts.
type gitRequest struct {
	Repo    string   `json:"repo"`
	Refspec string   `json:"refspec,omitempty"`
	Flags   []string `json:"flags,omitempty"`
}

// GitPushHandler handles POST /v1/git/push.
func (s *Server) GitPushHandler(w http.ResponseWriter, r *http.Request) {
	s.handleGit(w, r, "push")
}

// GitFetchHandler handles POST /v1/git/fetch.
func (s *Server) GitFetchHandler(w http.ResponseWriter, r *http.Request) {
	s.handleGit(w, r, "fetch")
}

func (s *Server) handleGit(w http.ResponseWriter, r *http.Request, op string) {
	var req gitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ref := splitRepo(req.Repo)
	if ref.IsZero() {
		writeError(w, http.StatusBadRequest, "repo must be owner/name")
		return
	}
	// A non-flag entry would land in argv as a positional and displace the
	// server-built URL from the remote position.
	for _, f := range req.Flags {
		if !strings.HasPrefix(f, "-") {
			writeError(w, http.StatusBadRequest, "flags must begin with \"-\"")
			return
		}
	}

	args := append([]string{op}, req.Flags...)
	args = append(args, "https://github.com/"+ref.Owner+"/"+ref.Name+".git")
	if req.Refspec != "" {
		args = append(args, req.Refspec)
	}
	s.execute(w, r, "git", args, ref)
}
