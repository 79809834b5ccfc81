// Package identity verifies bearer credentials and manages identity records.
//
// Two implementations exist: Firebase (production) and Local (shared-secret
// JWTs for development and tests). Both produce a domain.Session exactly once
// per request; handlers never re-derive claims.
package identity

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"djtunez-api/domain"
)

// Firebase verifies ID tokens and manages user records through the identity
// provider's admin surface.
type Firebase struct {
	client *auth.Client
}

// Config selects the identity project. CredentialsFile may be empty, in which
// case application-default credentials are used.
type Config struct {
	ProjectID       string
	CredentialsFile string
}

// NewFirebase builds the production identity provider.
func NewFirebase(ctx context.Context, cfg Config) (*Firebase, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &Firebase{client: client}, nil
}

// VerifySession validates the Authorization header and returns the verified
// session, with the role claim collapsed onto the closed domain role set.
func (f *Firebase) VerifySession(ctx context.Context, authHeader string) (domain.Session, error) {
	token, err := bearerTokenFromHeader(authHeader)
	if err != nil {
		return domain.Session{}, err
	}
	decoded, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return domain.Session{}, err
	}
	s := domain.Session{UID: decoded.UID, Role: domain.RoleFan}
	if email, ok := decoded.Claims["email"].(string); ok {
		s.Email = email
	}
	if name, ok := decoded.Claims["name"].(string); ok {
		s.Name = name
	}
	if role, ok := decoded.Claims["role"].(string); ok {
		s.Role = domain.ParseRole(role)
	}
	return s, nil
}

// GrantDJRole stamps role=dj on the user's custom claims, preserving any
// other claims already present.
func (f *Firebase) GrantDJRole(ctx context.Context, uid string) error {
	user, err := f.client.GetUser(ctx, uid)
	if err != nil {
		return err
	}
	claims := map[string]any{}
	for k, v := range user.CustomClaims {
		claims[k] = v
	}
	claims["role"] = string(domain.RoleDJ)
	return f.client.SetCustomUserClaims(ctx, uid, claims)
}

// DeleteUser removes the identity record and revokes all sessions. Called
// last in the account-deletion cascade so in-flight store operations keep a
// valid credential.
func (f *Firebase) DeleteUser(ctx context.Context, uid string) error {
	return f.client.DeleteUser(ctx, uid)
}
