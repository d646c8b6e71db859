// Package identity decides whether an incoming sign-in may proceed and which
// local user it belongs to.
package identity

import (
	"context"
	"errors"
	"time"

	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/app/system/normalize"
	"github.com/dalemusser/stratabook/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Error codes carried by redirect decisions to /auth/error?error=<code>.
const (
	ErrCodeUnverifiedEmail  = "unverified-email"
	ErrCodeNewEmailConflict = "new-email-conflict"
	ErrCodeUseIdentityLogin = "use-identity-login"
)

// ErrorPath is the path redirect decisions point to.
const ErrorPath = "/auth/error"

// Outcome of a sign-in decision.
type Outcome int

const (
	Deny Outcome = iota
	Allow
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "deny"
	}
}

// Decision is the result of SignIn. User is set on Allow when the sign-in
// resolved to a stored user. RedirectTo is set on Redirect. Reason is a
// short machine-readable code for logs and audit.
type Decision struct {
	Outcome    Outcome
	User       *models.User
	RedirectTo string
	Reason     string
}

func allow(u *models.User, reason string) Decision {
	return Decision{Outcome: Allow, User: u, Reason: reason}
}

func deny(reason string) Decision {
	return Decision{Outcome: Deny, Reason: reason}
}

func redirectTo(code string) Decision {
	return Decision{Outcome: Redirect, RedirectTo: ErrorPath + "?error=" + code, Reason: code}
}

// Profile is the identity asserted by the provider.
type Profile struct {
	Email         string
	Name          string
	EmailVerified bool
	Image         string
}

// Account describes how the user authenticated.
type Account struct {
	Provider          string // google, facebook, email
	ProviderAccountID string
	Type              string // oauth or email
}

// Directory is the user storage the reconciler works against.
type Directory interface {
	UsernameChecker
	GetByProvider(ctx context.Context, provider, providerID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailTakenByOther(ctx context.Context, email string, excludeID primitive.ObjectID) (bool, error)
	UpdateEmail(ctx context.Context, id primitive.ObjectID, email string) error
	ClaimInvited(ctx context.Context, id primitive.ObjectID, c userstore.Claim) error
	MarkEmailVerified(ctx context.Context, id primitive.ObjectID, at time.Time) error
	Create(ctx context.Context, u models.User) (models.User, error)
}

// AccountLinker records provider accounts against users.
type AccountLinker interface {
	Link(ctx context.Context, a models.Account) error
}

// Reconciler implements the sign-in decision policy.
type Reconciler struct {
	users      Directory
	accounts   AccountLinker
	selfHosted bool
	log        *zap.Logger
	now        func() time.Time
}

// NewReconciler creates a Reconciler. With selfHosted set, a verified
// local or magic-link user may be signed in by an OAuth identity asserting
// the same email.
func NewReconciler(users Directory, accounts AccountLinker, selfHosted bool, log *zap.Logger) *Reconciler {
	return &Reconciler{
		users:      users,
		accounts:   accounts,
		selfHosted: selfHosted,
		log:        log,
		now:        time.Now,
	}
}

// SignIn decides the outcome of a sign-in attempt. Errors from storage are
// logged and end in Deny.
func (rc *Reconciler) SignIn(ctx context.Context, p Profile, a Account) Decision {
	provider := normalize.Provider(a.Provider)

	// 1. Magic-link sign-ins already proved ownership of the email.
	if provider == ProviderEmail {
		return allow(nil, "email-provider")
	}

	// 2. Only OAuth accounts are reconciled.
	if a.Type != AccountTypeOAuth {
		return deny("unsupported-account-type")
	}

	// 3. Both an email and a name are required.
	email := normalize.Email(p.Email)
	name := normalize.Name(p.Name)
	if email == "" || name == "" {
		return deny("missing-email-or-name")
	}

	// 4. Only known providers; Google must vouch for the email.
	tag, ok := ProviderFor(provider)
	if !ok {
		return deny("unknown-provider")
	}
	if tag == models.IdentityProviderGoogle && !p.EmailVerified {
		return redirectTo(ErrCodeUnverifiedEmail)
	}

	// 5. Known provider identity.
	existing, err := rc.users.GetByProvider(ctx, tag, a.ProviderAccountID)
	switch {
	case err == nil:
		return rc.signInLinked(ctx, existing, email, provider, a)
	case !errors.Is(err, userstore.ErrNotFound):
		return rc.fail("lookup by provider", err)
	}

	// 6. Known email.
	byEmail, err := rc.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return rc.signInByEmail(ctx, byEmail, name, tag, provider, a)
	case !errors.Is(err, userstore.ErrNotFound):
		return rc.fail("lookup by email", err)
	}

	return rc.createUser(ctx, email, name, tag, provider, a)
}

func (rc *Reconciler) signInLinked(ctx context.Context, u *models.User, email, provider string, a Account) Decision {
	if u.Email == email {
		// Found by provider already; a failed link is not fatal.
		if err := rc.link(ctx, u.ID, provider, a); err != nil {
			rc.log.Warn("account link failed for known identity",
				zap.String("user_id", u.ID.Hex()),
				zap.String("provider", provider),
				zap.Error(err))
		}
		return allow(u, "linked")
	}

	taken, err := rc.users.EmailTakenByOther(ctx, email, u.ID)
	if err != nil {
		return rc.fail("check email owner", err)
	}
	if taken {
		return redirectTo(ErrCodeNewEmailConflict)
	}
	if err := rc.users.UpdateEmail(ctx, u.ID, email); err != nil {
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			return redirectTo(ErrCodeNewEmailConflict)
		}
		return rc.fail("update email", err)
	}
	rc.log.Info("user email updated from provider",
		zap.String("user_id", u.ID.Hex()),
		zap.String("provider", provider))
	u.Email = email
	return allow(u, "email-updated")
}

func (rc *Reconciler) signInByEmail(ctx context.Context, u *models.User, name, tag, provider string, a Account) Decision {
	if rc.selfHosted && u.EmailVerified != nil && models.IsEmailProven(u.IdentityProvider) {
		if err := rc.link(ctx, u.ID, provider, a); err != nil {
			return rc.fail("link account", err)
		}
		return allow(u, "self-hosted-merge")
	}

	if u.IsInvitedPlaceholder() {
		username, err := GenerateUsername(ctx, rc.users, name)
		if err != nil {
			return rc.fail("generate username", err)
		}
		now := rc.now().UTC()
		err = rc.users.ClaimInvited(ctx, u.ID, userstore.Claim{
			Username:   username,
			Name:       name,
			Provider:   tag,
			ProviderID: a.ProviderAccountID,
			VerifiedAt: now,
		})
		if errors.Is(err, userstore.ErrNotFound) || userstore.IsDuplicate(err) {
			return redirectTo(ErrCodeUseIdentityLogin)
		}
		if err != nil {
			return rc.fail("claim invitation", err)
		}
		if err := rc.link(ctx, u.ID, provider, a); err != nil {
			return rc.fail("link account", err)
		}
		u.Username = &username
		u.Name = name
		u.IdentityProvider = tag
		u.IdentityProviderID = &a.ProviderAccountID
		u.EmailVerified = &now
		return allow(u, "invitation-claimed")
	}

	return redirectTo(ErrCodeUseIdentityLogin)
}

func (rc *Reconciler) createUser(ctx context.Context, email, name, tag, provider string, a Account) Decision {
	username, err := GenerateUsername(ctx, rc.users, name)
	if err != nil {
		return rc.fail("generate username", err)
	}
	now := rc.now().UTC()
	providerID := a.ProviderAccountID

	created, err := rc.users.Create(ctx, models.User{
		Email:              email,
		Name:               name,
		Username:           &username,
		Role:               models.RoleUser,
		IdentityProvider:   tag,
		IdentityProviderID: &providerID,
		EmailVerified:      &now,
	})
	if err != nil {
		if userstore.IsDuplicate(err) {
			return redirectTo(ErrCodeUseIdentityLogin)
		}
		return rc.fail("create user", err)
	}
	if err := rc.link(ctx, created.ID, provider, a); err != nil {
		return rc.fail("link account", err)
	}
	return allow(&created, "created")
}

func (rc *Reconciler) link(ctx context.Context, userID primitive.ObjectID, provider string, a Account) error {
	return rc.accounts.Link(ctx, models.Account{
		UserID:            userID,
		Type:              a.Type,
		Provider:          provider,
		ProviderAccountID: a.ProviderAccountID,
	})
}

func (rc *Reconciler) fail(op string, err error) Decision {
	rc.log.Error("sign-in reconciliation failed", zap.String("op", op), zap.Error(err))
	return deny("internal-error")
}

// ResolveEmailUser returns the user a verified magic-link sign-in belongs
// to, creating a MAGIC user when none exists. Invitation placeholders are
// claimed with a generated username.
func (rc *Reconciler) ResolveEmailUser(ctx context.Context, email string) (*models.User, error) {
	email = normalize.Email(email)
	now := rc.now().UTC()

	u, err := rc.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if u.IsInvitedPlaceholder() {
			name := u.Name
			if name == "" {
				name = localPart(email)
			}
			username, err := GenerateUsername(ctx, rc.users, name)
			if err != nil {
				return nil, err
			}
			if err := rc.users.ClaimInvited(ctx, u.ID, userstore.Claim{
				Username:   username,
				Name:       name,
				Provider:   models.IdentityProviderMagic,
				VerifiedAt: now,
			}); err != nil && !errors.Is(err, userstore.ErrNotFound) {
				return nil, err
			}
			return rc.reload(ctx, email)
		}
		if u.EmailVerified == nil {
			if err := rc.users.MarkEmailVerified(ctx, u.ID, now); err != nil {
				return nil, err
			}
			u.EmailVerified = &now
		}
		return u, nil
	case !errors.Is(err, userstore.ErrNotFound):
		return nil, err
	}

	name := localPart(email)
	username, err := GenerateUsername(ctx, rc.users, name)
	if err != nil {
		return nil, err
	}
	created, err := rc.users.Create(ctx, models.User{
		Email:            email,
		Name:             name,
		Username:         &username,
		Role:             models.RoleUser,
		IdentityProvider: models.IdentityProviderMagic,
		EmailVerified:    &now,
	})
	if userstore.IsDuplicate(err) {
		// Lost a race with a concurrent sign-in for the same email.
		return rc.reload(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (rc *Reconciler) reload(ctx context.Context, email string) (*models.User, error) {
	return rc.users.GetByEmail(ctx, email)
}

func localPart(email string) string {
	for i := 0; i < len(email); i++ {
		if email[i] == '@' {
			return email[:i]
		}
	}
	return email
}
