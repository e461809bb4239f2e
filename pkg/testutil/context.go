package testutil

import (
	"net/http"

	id "scholarship/pkg/domain"
	"scholarship/pkg/requestcontext"
)

// WithActor adds an authenticated actor to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithActor(req *http.Request, actor id.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// AsStudent, AsVerifier and AsAdmin are shorthands for WithActor.
func AsStudent(req *http.Request, userID id.UserID) *http.Request {
	return WithActor(req, id.Actor{ID: userID, Role: id.RoleStudent})
}

func AsVerifier(req *http.Request, userID id.UserID) *http.Request {
	return WithActor(req, id.Actor{ID: userID, Role: id.RoleVerifier})
}

func AsAdmin(req *http.Request, userID id.UserID) *http.Request {
	return WithActor(req, id.Actor{ID: userID, Role: id.RoleAdmin})
}
