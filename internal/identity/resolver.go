// Package identity translates source-side principals (mail addresses, Entra
// object ids, GitHub logins) into local user records, creating them lazily.
package identity

import (
	"context"
	"fmt"
	"strings"

	"ideagraph/internal/domain"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/logging"
	"ideagraph/internal/store"
)

// Principal is the external identity carried by an inbound event. At least
// one of Email, ObjectID, or GitHubLogin must be set.
type Principal struct {
	Email       string
	UPN         string
	DisplayName string
	ObjectID    string
	GitHubLogin string
}

// Resolver resolves principals against the user table.
type Resolver struct {
	store  *store.Store
	logger logging.Logger
}

// NewResolver creates an identity resolver.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s, logger: logging.NewComponentLogger("identity")}
}

// Resolve returns the local user for a principal, creating one idempotently
// when absent. Lookup prefers the external object id, then normalized
// email/UPN, then GitHub login. When an existing row lacks the object id and
// the principal carries one, the row is patched.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (*domain.User, error) {
	email := normalize(firstNonEmpty(p.Email, p.UPN))
	objectID := strings.TrimSpace(firstNonEmpty(p.ObjectID, p.GitHubLogin))

	if objectID != "" {
		user, err := r.store.GetUserByExternalID(ctx, objectID)
		if err == nil {
			return user, nil
		}
		if !store.IsNotFound(err) {
			return nil, fmt.Errorf("lookup by object id: %w", err)
		}
	}

	if email != "" {
		user, err := r.store.GetUserByEmail(ctx, email)
		if err == nil {
			if objectID != "" && user.ExternalObjectID == "" {
				if patchErr := r.store.SetUserExternalID(ctx, user.ID, objectID); patchErr != nil {
					r.logger.Warn("could not patch object id onto %s: %v", user.Login, patchErr)
				} else {
					user.ExternalObjectID = objectID
				}
			}
			if objectID != "" && user.ExternalObjectID != "" && user.ExternalObjectID != objectID {
				return nil, &igerrors.LookupConflict{Key: objectID, OtherKey: user.ExternalObjectID}
			}
			return user, nil
		}
		if !store.IsNotFound(err) {
			return nil, fmt.Errorf("lookup by email: %w", err)
		}
	}

	if email == "" && objectID == "" {
		return nil, fmt.Errorf("principal carries no usable key")
	}

	user := &domain.User{
		Login:            firstNonEmpty(email, objectID),
		Email:            email,
		DisplayName:      strings.TrimSpace(p.DisplayName),
		AuthKind:         domain.AuthFederated,
		ExternalObjectID: objectID,
		Role:             "user",
		Active:           true,
	}
	if err := r.store.CreateUser(ctx, user); err != nil {
		// A concurrent tick may have created the row between lookup and
		// insert; retry the lookup once.
		if existing, lookupErr := r.lookupAgain(ctx, objectID, email); lookupErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create federated user: %w", err)
	}
	r.logger.Info("created federated user %s (object id %s)", user.Login, logging.SecretInfo(objectID))
	return user, nil
}

// ResolveOrUnknown resolves a principal, falling back to the synthetic
// "unknown" user on lookup conflicts so the pipeline never blocks.
func (r *Resolver) ResolveOrUnknown(ctx context.Context, p Principal) *domain.User {
	user, err := r.Resolve(ctx, p)
	if err == nil {
		return user
	}
	r.logger.Warn("identity resolution failed, using synthetic user: %v", err)
	unknown, lookupErr := r.store.GetUserByLogin(ctx, domain.UnknownUserLogin)
	if lookupErr == nil {
		return unknown
	}
	unknown = &domain.User{
		Login:    domain.UnknownUserLogin,
		AuthKind: domain.AuthLocal,
		Role:     "user",
		Active:   true,
	}
	if createErr := r.store.CreateUser(ctx, unknown); createErr != nil {
		// Another goroutine may have won the race.
		if existing, err := r.store.GetUserByLogin(ctx, domain.UnknownUserLogin); err == nil {
			return existing
		}
		r.logger.Error("cannot create synthetic user: %v", createErr)
	}
	return unknown
}

func (r *Resolver) lookupAgain(ctx context.Context, objectID, email string) (*domain.User, error) {
	if objectID != "" {
		if user, err := r.store.GetUserByExternalID(ctx, objectID); err == nil {
			return user, nil
		}
	}
	if email != "" {
		if user, err := r.store.GetUserByEmail(ctx, email); err == nil {
			return user, nil
		}
	}
	return nil, store.ErrNotFound
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
