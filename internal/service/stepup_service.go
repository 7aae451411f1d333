package service

import (
	"context"
	"fmt"
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const stepUpNonceScope = "stepup"

// StepUpService mints short-lived HS256 tokens bound to one transfer
// challenge. Each token id is consumed through the nonce store on first
// use.
type StepUpService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	nonces ports.NonceStore
	log    zerolog.Logger
	now    func() time.Time
}

func NewStepUpService(secret string, ttl time.Duration, issuer string, nonces ports.NonceStore, log zerolog.Logger) *StepUpService {
	return &StepUpService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		nonces: nonces,
		log:    log,
		now:    time.Now,
	}
}

// Issue returns a token confirming transfers from sender to recipient of
// up to amount.
func (s *StepUpService) Issue(_ context.Context, ch ports.StepUpChallenge) (string, time.Time, error) {
	if ch.SenderID == "" || ch.RecipientID == "" {
		return "", time.Time{}, apperror.Validation("sender_id and recipient_id are required")
	}
	if !ch.Amount.IsPositive() {
		return "", time.Time{}, apperror.ErrInvalidAmount()
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub": ch.SenderID,
		"rcp": ch.RecipientID,
		"amt": ch.Amount.String(),
		"typ": tokenTypeStepUp,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"iss": s.issuer,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("signing step-up token: %w", err))
	}
	return token, expiresAt, nil
}

func stepUpInvalid() *apperror.AppError {
	return apperror.ErrStepUpRequired(domain.ReasonStepUpInvalid)
}

// Verify checks the token against the challenge and burns its id.
func (s *StepUpService) Verify(ctx context.Context, tokenString string, ch ports.StepUpChallenge) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		s.log.Debug().Err(err).Msg("step-up token rejected")
		return stepUpInvalid()
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return stepUpInvalid()
	}
	if typ, _ := claims["typ"].(string); typ != tokenTypeStepUp {
		return stepUpInvalid()
	}
	if sub, _ := claims["sub"].(string); sub != ch.SenderID {
		return stepUpInvalid()
	}
	if rcp, _ := claims["rcp"].(string); rcp != ch.RecipientID {
		return stepUpInvalid()
	}
	amtStr, _ := claims["amt"].(string)
	confirmed, err := decimal.NewFromString(amtStr)
	if err != nil || ch.Amount.GreaterThan(confirmed) {
		return stepUpInvalid()
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return stepUpInvalid()
	}

	fresh, err := s.nonces.CheckAndSet(ctx, stepUpNonceScope, jti, s.ttl)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("consuming step-up token: %w", err))
	}
	if !fresh {
		s.log.Warn().Str("jti", jti).Str("sender_id", ch.SenderID).Msg("step-up token replayed")
		return stepUpInvalid()
	}
	return nil
}
