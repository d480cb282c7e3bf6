package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-proposal/internal/agent"
	"github.com/noah-isme/backend-proposal/internal/common"
)

const (
	defaultAccessTTL = 8 * time.Hour
	nameClaim        = "name"
	departmentClaim  = "department"

	httpStatusUnauthorized = http.StatusUnauthorized
)

// Directory is the agent-roster lookup consulted at login.
type Directory interface {
	Verify(id, passcode string) (agent.Agent, error)
	Lookup(id string) (agent.Agent, bool)
}

// Service issues and validates agent session tokens.
type Service struct {
	directory Directory
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	clockSkew time.Duration
}

// Config configures the auth service.
type Config struct {
	Directory      Directory
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
}

// Claims is the identity carried by a valid access token.
type Claims struct {
	AgentID    string
	Name       string
	Department string
}

// LoginResult bundles token material returned after a successful login.
type LoginResult struct {
	Agent        agent.Agent `json:"agent"`
	AccessToken  string      `json:"access_token"`
	AccessExpiry time.Time   `json:"access_token_expires_at"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Directory == nil {
		return nil, errors.New("auth: directory is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-proposal"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "proposal-agents"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}
	return &Service{
		directory: cfg.Directory,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow overrides the clock, mainly for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login checks the agent against the roster and issues an access token.
func (s *Service) Login(_ context.Context, agentID, passcode string) (LoginResult, error) {
	id := strings.TrimSpace(agentID)
	if id == "" {
		return LoginResult{}, common.NewAppError(common.CodeValidation, "agent_id is required", http.StatusBadRequest, nil)
	}
	a, err := s.directory.Verify(id, passcode)
	if err != nil {
		return LoginResult{}, common.NewAppError("NOT_AUTHORIZED", "agent is not authorized", httpStatusUnauthorized, err)
	}
	token, expiresAt, err := s.signAccessToken(a)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	return LoginResult{Agent: a, AccessToken: token, AccessExpiry: expiresAt}, nil
}

// Me returns the roster entry for an authenticated agent that is still active.
func (s *Service) Me(_ context.Context, agentID string) (agent.Agent, error) {
	a, ok := s.directory.Lookup(agentID)
	if !ok || !a.Active() {
		return agent.Agent{}, common.NewAppError("NOT_AUTHORIZED", "agent is not authorized", httpStatusUnauthorized, agent.ErrNotAuthorized)
	}
	return a, nil
}

// ParseAccessToken validates an access token and returns its claims.
func (s *Service) ParseAccessToken(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, common.NewAppError(common.CodeUnauthorized, "missing token", httpStatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, common.NewAppError(common.CodeUnauthorized, "invalid token", httpStatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return Claims{}, common.NewAppError(common.CodeUnauthorized, "invalid token", httpStatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, common.NewAppError(common.CodeUnauthorized, "invalid token", httpStatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return Claims{}, common.NewAppError(common.CodeUnauthorized, "invalid token", httpStatusUnauthorized, err)
	}
	claims := Claims{AgentID: parsed.Subject()}
	if v, ok := parsed.Get(nameClaim); ok {
		claims.Name, _ = v.(string)
	}
	if v, ok := parsed.Get(departmentClaim); ok {
		claims.Department, _ = v.(string)
	}
	return claims, nil
}

// Authorize validates token and re-checks the roster, so an agent deactivated after
// login is refused even while the token is unexpired. The roster name wins over the
// name claim.
func (s *Service) Authorize(token string) (Claims, error) {
	claims, err := s.ParseAccessToken(token)
	if err != nil {
		return Claims{}, err
	}
	a, ok := s.directory.Lookup(claims.AgentID)
	if !ok || !a.Active() {
		return Claims{}, common.NewAppError("NOT_AUTHORIZED", "agent is not authorized", httpStatusUnauthorized, agent.ErrNotAuthorized)
	}
	claims.Name = a.Name
	claims.Department = a.Department
	return claims, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", fmt.Errorf("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(a agent.Agent) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(a.ID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(nameClaim, a.Name)
	if a.Department != "" {
		builder = builder.Claim(departmentClaim, a.Department)
	}
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}
