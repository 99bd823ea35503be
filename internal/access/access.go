// Package access answers "may this principal act on this resource" for
// jobs and chats. It holds no state of its own; both checks are single
// set-membership queries against the relational store, and the job check
// is backed by the same SQL condition the job listing filters with.
package access

import (
	"context"

	"github.com/OpenFieldOps/open-job-api/internal/store"
)

// Resolver gates job and chat actions.
type Resolver struct {
	store store.DataStore
}

// NewResolver creates a Resolver over the given store.
func NewResolver(s store.DataStore) *Resolver {
	return &Resolver{store: s}
}

// CanAccessJob reports whether the user created the job or appears in its
// operator-assignment set.
func (r *Resolver) CanAccessJob(ctx context.Context, userID, jobID int64) (bool, error) {
	return r.store.UserHasJobAccess(ctx, userID, jobID)
}

// CanAccessChat reports whether a (chat, user) membership row exists.
// Membership is the sole authorization predicate for chat actions.
func (r *Resolver) CanAccessChat(ctx context.Context, userID, chatID int64) (bool, error) {
	return r.store.UserIsChatMember(ctx, userID, chatID)
}
