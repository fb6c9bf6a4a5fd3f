package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/store"
)

const (
	defaultTokenTTL = 8 * time.Hour
	defaultResetTTL = time.Hour

	tenantClaim = "tenant"
	roleClaim   = "role"
)

// Service coordinates registration, login, and password management. Users are
// identified by (tenant, phone); email is optional and only used for resets.
type Service struct {
	users     store.UserStore
	secret    []byte
	tokenTTL  time.Duration
	resetTTL  time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	clockSkew time.Duration
	sender    common.EmailSender
	baseURL   string
	logger    zerolog.Logger
}

// Config configures the auth service.
type Config struct {
	Users         store.UserStore
	Secret        string
	TokenTTL      time.Duration
	ResetTokenTTL time.Duration
	Issuer        string
	Audience      string
	ClockSkew     time.Duration
	Sender        common.EmailSender
	FrontendBase  string
	Logger        zerolog.Logger
}

// Claims is the validated content of an access token.
type Claims struct {
	UserID     string
	TenantSlug string
	Role       string
}

// LoginResult bundles the token material returned after a successful login.
type LoginResult struct {
	User      model.User `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Name        string
	Phone       string
	Email       string
	Password    string
	Role        string
	Address     model.Address
	FarmProfile model.FarmProfile
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Users == nil {
		return nil, errors.New("auth: user store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	resetTTL := cfg.ResetTokenTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "village-market"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "village-market-app"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}
	sender := cfg.Sender
	if sender == nil {
		sender = common.NopEmailSender{}
	}

	return &Service{
		users:    cfg.Users,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		resetTTL: resetTTL,
		now:      time.Now,
		signer:   jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		sender:    sender,
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.FrontendBase), "/"),
		logger:    cfg.Logger,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

var registerRoles = map[string]bool{
	model.RoleFarmer: true,
	model.RoleDealer: true,
	model.RoleBuyer:  true,
}

// Register creates a new user inside the given tenant.
func (s *Service) Register(ctx context.Context, tenantSlug string, in RegisterInput) (model.User, error) {
	if strings.TrimSpace(tenantSlug) == "" {
		return model.User{}, common.NewAppError(common.CodeTenantRequired, "tenant is required", http.StatusBadRequest, nil)
	}
	if strings.TrimSpace(in.Name) == "" {
		return model.User{}, common.ValidationError("name is required")
	}
	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		return model.User{}, common.ValidationError("phone is required")
	}
	if len(in.Password) < 6 {
		return model.User{}, common.ValidationError("password must be at least 6 characters")
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = model.RoleBuyer
	}
	if !registerRoles[role] {
		return model.User{}, common.ValidationError("invalid role: " + role)
	}

	hash, err := argon2id.CreateHash(in.Password, argon2id.DefaultParams)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.users.Create(ctx, model.User{
		TenantSlug:   tenantSlug,
		Name:         strings.TrimSpace(in.Name),
		Phone:        phone,
		Email:        strings.TrimSpace(strings.ToLower(in.Email)),
		PasswordHash: hash,
		Role:         role,
		Address:      in.Address,
		FarmProfile:  in.FarmProfile,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return model.User{}, common.ConflictError(common.CodeConflict, "phone is already registered in this village")
		}
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// Login verifies (tenant, phone, password) and issues a signed token.
func (s *Service) Login(ctx context.Context, tenantSlug, phone, password string) (LoginResult, error) {
	if strings.TrimSpace(tenantSlug) == "" {
		return LoginResult{}, common.NewAppError(common.CodeTenantRequired, "tenant is required", http.StatusBadRequest, nil)
	}
	phone = strings.TrimSpace(phone)
	if phone == "" || password == "" {
		return LoginResult{}, invalidCredentials()
	}

	user, err := s.users.GetByPhone(ctx, tenantSlug, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, invalidCredentials()
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}
	return s.issueFor(user, password)
}

// AdminLogin verifies admin credentials by email, independent of any tenant
// context, and issues a role-bearing token.
func (s *Service) AdminLogin(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return LoginResult{}, invalidCredentials()
	}
	user, err := s.users.GetByEmail(ctx, "", email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, invalidCredentials()
		}
		return LoginResult{}, fmt.Errorf("lookup admin: %w", err)
	}
	if user.Role != model.RoleAdmin {
		return LoginResult{}, invalidCredentials()
	}
	return s.issueFor(user, password)
}

func (s *Service) issueFor(user model.User, password string) (LoginResult, error) {
	ok, err := argon2id.ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalidCredentials()
	}
	token, expiresAt, err := s.signToken(user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign token: %w", err)
	}
	return LoginResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Me fetches the current authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (model.User, error) {
	if strings.TrimSpace(userID) == "" {
		return model.User{}, unauthorized(nil)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, unauthorized(err)
	}
	return user, nil
}

// Forgot stores a reset token on the matching user and mails the reset link.
// The outcome is indistinguishable whether or not the email exists.
func (s *Service) Forgot(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil
	}
	user, err := s.users.GetByEmail(ctx, "", email)
	if err != nil {
		// Avoid disclosing whether the email exists.
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("password reset lookup failed")
		}
		return nil
	}

	token, err := generateResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	expiresAt := s.now().Add(s.resetTTL)
	if err := s.users.SetResetToken(ctx, user.ID, token, expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s&email=%s", s.baseURL, token, email)
	if err := s.sender.Send(user.Email, "Reset your password", "Use this link to reset your password: "+link); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("reset email send failed")
	}
	return nil
}

// Reset validates (email, token) and updates the user's password. The stored
// token is cleared on success.
func (s *Service) Reset(ctx context.Context, email, token, newPassword string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	token = strings.TrimSpace(token)
	if email == "" || token == "" {
		return common.NewAppError("INVALID_TOKEN", "invalid or expired token", http.StatusBadRequest, nil)
	}
	if len(newPassword) < 6 {
		return common.ValidationError("password must be at least 6 characters")
	}

	user, err := s.users.GetByResetToken(ctx, email, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return common.NewAppError("INVALID_TOKEN", "invalid or expired token", http.StatusBadRequest, nil)
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	hash, err := argon2id.CreateHash(newPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.sender.Send(user.Email, "Password changed", "Your password was just changed."); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("confirmation email send failed")
	}
	return nil
}

// ParseAccessToken validates an access token and returns its claims.
func (s *Service) ParseAccessToken(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, unauthorized(nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, unauthorized(err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return Claims{}, unauthorized(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return Claims{}, unauthorized(err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return Claims{}, unauthorized(err)
	}
	claims := Claims{UserID: parsed.Subject()}
	if v, ok := parsed.Get(tenantClaim); ok {
		claims.TenantSlug, _ = v.(string)
	}
	if v, ok := parsed.Get(roleClaim); ok {
		claims.Role, _ = v.(string)
	}
	return claims, nil
}

func (s *Service) signToken(user model.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	builder := jwt.NewBuilder().
		Subject(user.ID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(tenantClaim, user.TenantSlug).
		Claim(roleClaim, user.Role)
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

func generateResetToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func invalidCredentials() *common.AppError {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid phone or password", http.StatusUnauthorized, nil)
}

func unauthorized(err error) *common.AppError {
	return common.NewAppError(common.CodeUnauthorized, "missing or invalid token", http.StatusUnauthorized, err)
}
