package auth

import (
	"context"
	"errors"

	"utshob.org/internal/identity"
	"utshob.org/internal/obs"
	"utshob.org/internal/session"
)

// DenyReason classifies an authorization failure.
type DenyReason string

const (
	DenyNoCredential        DenyReason = "no_credential"
	DenyMalformedCredential DenyReason = "malformed_credential"
	DenyExpiredCredential   DenyReason = "expired_credential"
	DenyInsufficientRole    DenyReason = "insufficient_role"
	DenyInactiveAccount     DenyReason = "inactive_account"
)

// Redirect targets for denials. Routes never reach the handler once a
// Decision is denied.
const (
	StaffLoginPath     = "/admin/login"
	StaffDashboardPath = "/admin/dashboard"
	EndUserLoginPath   = "/login"
)

// Decision is the tagged outcome of one authorization check.
type Decision struct {
	Authorized bool
	// Account is the store-fresh record for staff principals. End-user
	// principals have no local staff account; Email/Role identify them.
	Account *Account
	Email   string
	Role    Role

	Reason DenyReason
	// ClearSession instructs the HTTP layer to destroy the session. An
	// authenticated-but-forbidden staff session is kept.
	ClearSession bool
	// SessionUpdated is set when a transparent refresh rotated the end-user
	// credential; the HTTP layer must persist the session.
	SessionUpdated bool
	RedirectTo     string
	Flash          string
}

// Guard resolves a request's session credential, validates or refreshes it,
// and checks the resolved role against the route's allowed set.
//
// The staff role is read from the token, not the store, so promotions and
// demotions take effect at the next login when the token is reissued. The
// active flag and explicit permission sets are read from the store on every
// check and are therefore fresh per request.
type Guard struct {
	issuer   *Issuer
	provider identity.Provider
	store    CredentialStore
}

// NewGuard constructs the guard. The identity provider may be nil when the
// end-user path is disabled; end-user sessions then fail closed.
func NewGuard(issuer *Issuer, provider identity.Provider, store CredentialStore) (*Guard, error) {
	if issuer == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	if store == nil {
		return nil, errors.New("auth: credential store is required")
	}
	return &Guard{issuer: issuer, provider: provider, store: store}, nil
}

// Authorize is the sole entry point route handlers depend on. It walks the
// per-request state machine: credential present → validating → (refresh once
// for expired end-user tokens) → active check → role gate. Widening the
// allowed set never turns an authorized outcome into a denial.
func (g *Guard) Authorize(ctx context.Context, sess *session.Session, allowed []Role) Decision {
	endUserRoute := RoleAllowed(RoleEndUser, allowed)

	if sess == nil || !sess.HasCredential() {
		return g.deny(sess, Decision{
			Reason:     DenyNoCredential,
			RedirectTo: loginPathFor(endUserRoute),
		})
	}

	switch sess.Kind {
	case session.KindStaff:
		return g.authorizeStaff(ctx, sess, allowed)
	case session.KindEndUser:
		return g.authorizeEndUser(ctx, sess, endUserRoute)
	default:
		return g.deny(sess, Decision{
			Reason:       DenyMalformedCredential,
			ClearSession: true,
			RedirectTo:   loginPathFor(endUserRoute),
			Flash:        "Invalid session. Please login again.",
		})
	}
}

func (g *Guard) authorizeStaff(ctx context.Context, sess *session.Session, allowed []Role) Decision {
	claims, err := g.issuer.Verify(sess.Token)
	switch {
	case errors.Is(err, ErrTokenExpired):
		// Staff tokens have no refresh path.
		return g.deny(sess, Decision{
			Reason:       DenyExpiredCredential,
			ClearSession: true,
			RedirectTo:   StaffLoginPath,
			Flash:        "Session expired. Please login again.",
		})
	case err != nil:
		return g.deny(sess, Decision{
			Reason:       DenyMalformedCredential,
			ClearSession: true,
			RedirectTo:   StaffLoginPath,
			Flash:        "Invalid token. Please login again.",
		})
	}

	// Deactivation takes effect immediately even while the token is still
	// unexpired, so the account's current record is re-read every request.
	account, err := g.store.FindByEmail(ctx, claims.Email)
	if err != nil || account == nil || !account.Active {
		return g.deny(sess, Decision{
			Reason:       DenyInactiveAccount,
			ClearSession: true,
			RedirectTo:   StaffLoginPath,
			Flash:        "Your account has been deactivated. Please contact an admin.",
		})
	}

	if !RoleAllowed(claims.Role, allowed) {
		// Valid admin session, wrong route: keep the session.
		return g.deny(sess, Decision{
			Reason:     DenyInsufficientRole,
			Email:      claims.Email,
			Role:       claims.Role,
			RedirectTo: StaffDashboardPath,
			Flash:      "Insufficient permissions",
		})
	}

	obs.ObserveAuthDecision(string(session.KindStaff), "authorized")
	return Decision{
		Authorized: true,
		Account:    account,
		Email:      claims.Email,
		Role:       claims.Role,
	}
}

func (g *Guard) authorizeEndUser(ctx context.Context, sess *session.Session, endUserRoute bool) Decision {
	if !endUserRoute {
		// A participant session never satisfies a staff route.
		return g.deny(sess, Decision{
			Reason:     DenyInsufficientRole,
			RedirectTo: EndUserLoginPath,
			Flash:      "Insufficient permissions",
		})
	}
	if g.provider == nil {
		return g.deny(sess, Decision{
			Reason:       DenyMalformedCredential,
			ClearSession: true,
			RedirectTo:   EndUserLoginPath,
			Flash:        "Login is temporarily unavailable.",
		})
	}

	info, err := g.provider.VerifyAccessToken(ctx, sess.Token)
	refreshed := false
	if errors.Is(err, identity.ErrExpiredToken) && sess.RefreshToken != "" {
		// Single refresh attempt; a second expiry is a refresh failure.
		creds, rerr := g.provider.Refresh(ctx, sess.RefreshToken)
		if rerr != nil {
			return g.deny(sess, Decision{
				Reason:       DenyNoCredential,
				ClearSession: true,
				RedirectTo:   EndUserLoginPath,
				Flash:        "Session expired. Please login again.",
			})
		}
		sess.Token = creds.AccessToken
		if creds.RefreshToken != "" {
			sess.RefreshToken = creds.RefreshToken
		}
		refreshed = true
		info, err = g.provider.VerifyAccessToken(ctx, sess.Token)
	}
	if err != nil {
		// Invalid token, exhausted refresh, or provider outage: fail closed.
		return g.deny(sess, Decision{
			Reason:       DenyMalformedCredential,
			ClearSession: true,
			RedirectTo:   EndUserLoginPath,
			Flash:        "Please login again.",
		})
	}

	sess.Email = info.Email
	sess.EmailVerified = info.EmailVerified

	obs.ObserveAuthDecision(string(session.KindEndUser), "authorized")
	return Decision{
		Authorized:     true,
		Email:          info.Email,
		Role:           RoleEndUser,
		SessionUpdated: refreshed,
	}
}

func (g *Guard) deny(sess *session.Session, d Decision) Decision {
	kind := "anonymous"
	if sess != nil && sess.Kind != "" {
		kind = string(sess.Kind)
	}
	obs.ObserveAuthDecision(kind, string(d.Reason))
	return d
}

// HasPermission answers fine-grained in-handler checks beyond coarse role
// gating. Admin holds every capability, including ones absent from the static
// policy table. Other roles are resolved with a store point read each call:
// one extra lookup buys freshness, since an account's grants may be edited
// between requests.
func (g *Guard) HasPermission(ctx context.Context, email string, role Role, capability string) bool {
	if role == RoleAdmin {
		return true
	}
	account, err := g.store.FindByEmail(ctx, email)
	if err != nil || account == nil || !account.Active {
		return false
	}
	return account.HasCapability(capability)
}

func loginPathFor(endUserRoute bool) string {
	if endUserRoute {
		return EndUserLoginPath
	}
	return StaffLoginPath
}
