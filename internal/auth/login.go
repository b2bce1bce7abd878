// ABOUTME: Login pipeline shared by every login route: resolve, verify, issue
// ABOUTME: Schedules credential upgrades, last-login stamps and audit writes off the response path

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codecafelab/aicaller-gateway/internal/background"
	"github.com/codecafelab/aicaller-gateway/internal/store"
)

// JobSubmitter accepts fire-and-forget work. *background.Queue implements it.
type JobSubmitter interface {
	Submit(job background.Job) error
}

// LoginRecorder receives login and upgrade outcomes for metrics.
type LoginRecorder interface {
	LoginAttempt(route, outcome string)
	CredentialUpgrade(outcome string)
}

// LoginServiceConfig wires a LoginService.
type LoginServiceConfig struct {
	Resolver *Resolver
	Verifier *PasswordVerifier
	Issuer   *TokenIssuer
	Writer   store.CredentialWriter
	Audit    store.AuditStore // optional
	Jobs     JobSubmitter
	Recorder LoginRecorder // optional
	Logger   *slog.Logger

	// AllowEmptyClientUserPassword restores the historical behaviour where a
	// sub-user with no stored password logs in with any password. Refused in
	// production by config validation.
	AllowEmptyClientUserPassword bool

	Now func() time.Time
}

// LoginService authenticates principals and issues session tokens.
type LoginService struct {
	resolver   *Resolver
	verifier   *PasswordVerifier
	issuer     *TokenIssuer
	writer     store.CredentialWriter
	audit      store.AuditStore
	jobs       JobSubmitter
	recorder   LoginRecorder
	logger     *slog.Logger
	allowEmpty bool
	now        func() time.Time
}

// NewLoginService validates cfg and builds a service.
func NewLoginService(cfg LoginServiceConfig) (*LoginService, error) {
	switch {
	case cfg.Resolver == nil:
		return nil, errors.New("login service: resolver is required")
	case cfg.Verifier == nil:
		return nil, errors.New("login service: verifier is required")
	case cfg.Issuer == nil:
		return nil, errors.New("login service: issuer is required")
	case cfg.Writer == nil:
		return nil, errors.New("login service: credential writer is required")
	case cfg.Jobs == nil:
		return nil, errors.New("login service: job submitter is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &LoginService{
		resolver:   cfg.Resolver,
		verifier:   cfg.Verifier,
		issuer:     cfg.Issuer,
		writer:     cfg.Writer,
		audit:      cfg.Audit,
		jobs:       cfg.Jobs,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger.With("component", "login"),
		allowEmpty: cfg.AllowEmptyClientUserPassword,
		now:        cfg.Now,
	}, nil
}

// LoginRequest is one login attempt.
type LoginRequest struct {
	Email      string
	Password   string
	RemoteAddr string

	// Route labels metrics and audit entries ("login", "client_admin", "client_user").
	Route string

	// Kinds restricts and orders the tables searched; empty means ResolutionOrder.
	Kinds []PrincipalKind
}

// LoginResult is a successful login.
type LoginResult struct {
	Principal *Principal
	Token     string
	Claims    *Claims
}

// Login runs the pipeline. Failures are ErrMissingCredentials,
// ErrInvalidCredentials (unknown email and wrong password alike), a
// *StoreError, or a token signing error.
func (s *LoginService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrMissingCredentials
	}

	p, err := s.resolver.Resolve(ctx, email, req.Kinds...)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			s.verifier.DummyCompare(req.Password)
			s.logger.Info("login failed: no matching principal", "email", email, "route", req.Route)
			s.fail(req, email, nil, "unknown_principal")
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, ErrPrincipalNotFound)
		}
		s.logger.Error("login lookup failed", "email", email, "route", req.Route, "error", err)
		s.record(req.Route, "error")
		return nil, err
	}

	result := s.checkPassword(p, req.Password)
	if !result.Valid {
		s.logger.Info("login failed: password mismatch", "email", email, "type", p.Kind, "id", p.ID)
		s.fail(req, email, p, "password_mismatch")
		return nil, ErrInvalidCredentials
	}

	if result.UpgradeNeeded {
		s.scheduleUpgrade(p, req.Password)
	}

	token, claims, err := s.issuer.Issue(p)
	if err != nil {
		s.logger.Error("issuing session token failed", "type", p.Kind, "id", p.ID, "error", err)
		s.record(req.Route, "error")
		return nil, fmt.Errorf("issuing session token: %w", err)
	}

	s.scheduleLastLogin(p)
	s.scheduleAudit(&store.AuditEntry{
		Action:        store.AuditLoginSucceeded,
		PrincipalType: string(p.Kind),
		PrincipalID:   p.ID,
		Email:         email,
		RemoteAddr:    req.RemoteAddr,
		Detail:        map[string]any{"route": req.Route},
	})
	s.record(req.Route, "success")
	s.logger.Info("login succeeded", "type", p.Kind, "id", p.ID, "route", req.Route)

	return &LoginResult{Principal: p, Token: token, Claims: claims}, nil
}

// checkPassword applies the empty-credential policy, then the verifier.
func (s *LoginService) checkPassword(p *Principal, password string) VerifyResult {
	if p.Credential == "" {
		if p.Kind == KindClientUser && s.allowEmpty {
			s.logger.Warn("client user has no stored password; accepting any password because legacy_allow_empty_client_user_password is set",
				"id", p.ID,
				"client_id", p.ClientID)
			return VerifyResult{Valid: true}
		}
		s.verifier.DummyCompare(password)
		return VerifyResult{}
	}
	return s.verifier.Verify(password, p.Credential)
}

// scheduleUpgrade replaces a matched legacy credential with a bcrypt hash.
// The write is guarded by the old value, so racing upgrades cannot clobber
// a newer password.
func (s *LoginService) scheduleUpgrade(p *Principal, password string) {
	owner := p.Kind.Owner()
	id := p.ID
	expected := p.Credential

	job := background.Job{
		Name: "credential_upgrade",
		Key:  fmt.Sprintf("credential_upgrade:%s:%d", owner, id),
		Run: func(ctx context.Context) error {
			hashed, err := s.verifier.Hash(password)
			if err != nil {
				s.recordUpgrade("failed")
				return fmt.Errorf("hashing legacy credential for %s %d: %w", owner, id, err)
			}

			err = s.writer.ReplaceCredential(ctx, owner, id, expected, hashed)
			if errors.Is(err, store.ErrCredentialChanged) {
				s.logger.Info("credential already changed, skipping upgrade", "table", owner, "id", id)
				s.recordUpgrade("skipped")
				return nil
			}
			if err != nil {
				s.recordUpgrade("failed")
				return fmt.Errorf("upgrading credential for %s %d: %w", owner, id, err)
			}

			s.recordUpgrade("upgraded")
			s.logger.Info("upgraded legacy credential to bcrypt", "table", owner, "id", id)
			if s.audit != nil {
				if err := s.audit.AppendAuditLog(ctx, &store.AuditEntry{
					Action:        store.AuditCredentialUpgraded,
					PrincipalType: string(p.Kind),
					PrincipalID:   id,
					Email:         p.Email,
				}); err != nil {
					s.logger.Warn("recording credential upgrade failed", "error", err)
				}
			}
			return nil
		},
	}

	if err := s.jobs.Submit(job); err != nil {
		s.logger.Debug("credential upgrade not queued", "table", owner, "id", id, "reason", err)
	}
}

func (s *LoginService) scheduleLastLogin(p *Principal) {
	if p.Kind == KindClient {
		return
	}
	owner := p.Kind.Owner()
	id := p.ID
	at := s.now()

	_ = s.jobs.Submit(background.Job{
		Name: "last_login",
		Run: func(ctx context.Context) error {
			return s.writer.TouchLastLogin(ctx, owner, id, at)
		},
	})
}

func (s *LoginService) scheduleAudit(entry *store.AuditEntry) {
	if s.audit == nil {
		return
	}
	entry.Timestamp = s.now().UTC()

	_ = s.jobs.Submit(background.Job{
		Name: "audit",
		Run: func(ctx context.Context) error {
			return s.audit.AppendAuditLog(ctx, entry)
		},
	})
}

// fail records a rejected login.
func (s *LoginService) fail(req LoginRequest, email string, p *Principal, reason string) {
	s.record(req.Route, "invalid")

	entry := &store.AuditEntry{
		Action:     store.AuditLoginFailed,
		Email:      email,
		RemoteAddr: req.RemoteAddr,
		Detail:     map[string]any{"route": req.Route, "reason": reason},
	}
	if p != nil {
		entry.PrincipalType = string(p.Kind)
		entry.PrincipalID = p.ID
	}
	s.scheduleAudit(entry)
}

func (s *LoginService) record(route, outcome string) {
	if s.recorder != nil {
		s.recorder.LoginAttempt(route, outcome)
	}
}

func (s *LoginService) recordUpgrade(outcome string) {
	if s.recorder != nil {
		s.recorder.CredentialUpgrade(outcome)
	}
}
