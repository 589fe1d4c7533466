package client

import "github.com/loykin/railspreview"

// Wire types are the facade's result types.
type (
	LaunchResult = railspreview.LaunchResult
	StopResult   = railspreview.StopResult
	CloneResult  = railspreview.CloneResult
	Status       = railspreview.Status
	Event        = railspreview.Event
)

// StartRequest is the body of POST /api/start.
type StartRequest struct {
	Repo string `json:"repo"`
}

// CloneRequest is the body of POST /api/clone.
type CloneRequest struct {
	RepoURL string `json:"repo_url"`
}

// ErrorResponse is returned by the API for rejected requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

type reposResponse struct {
	Repos []string `json:"repos"`
}
