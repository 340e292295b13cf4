package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tutorwise/config"
	"tutorwise/internal/auth"
	"tutorwise/internal/domain"
	"tutorwise/internal/metrics"
	"tutorwise/internal/models"
	"tutorwise/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	CanEarn     bool
	CanRefer    bool
}

// ProfileService creates actors and runs signup-time attribution.
type ProfileService struct {
	db        *gorm.DB
	cfg       *config.Config
	actors    *repository.ActorRepository
	referrals *repository.ReferralRepository
	signups   *repository.SignupEventRepository
	codes     *ReferralCodeService
	resolver  *AttributionResolver
	log       *zap.Logger
	nowFn     func() time.Time
}

func NewProfileService(
	db *gorm.DB,
	cfg *config.Config,
	codes *ReferralCodeService,
	resolver *AttributionResolver,
	log *zap.Logger,
) *ProfileService {
	return &ProfileService{
		db:        db,
		cfg:       cfg,
		actors:    repository.NewActorRepository(db),
		referrals: repository.NewReferralRepository(db),
		signups:   repository.NewSignupEventRepository(db),
		codes:     codes,
		resolver:  resolver,
		log:       log,
		nowFn:     time.Now,
	}
}

// Register creates the actor, issues its referral code and binds attribution.
// Attribution problems never fail the signup.
func (s *ProfileService) Register(ctx context.Context, in RegisterInput, sc SignupContext) (*models.Actor, string, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || len(in.Password) < 8 {
		return nil, "", fmt.Errorf("%w: email and a password of at least 8 characters are required", domain.ErrInvalidCreds)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	a := &models.Actor{
		Email:             email,
		PasswordHash:      string(hash),
		DisplayName:       in.DisplayName,
		CanEarn:           in.CanEarn,
		CanRefer:          in.CanRefer,
		AttributionMethod: domain.AttributionNone,
	}
	if err := s.actors.Create(ctx, a); err != nil {
		return nil, "", err
	}
	// Every actor owns a code from creation, whether or not it may refer today.
	if _, err := s.codes.GetOrCreateCode(ctx, a.ID); err != nil {
		s.log.Error("referral code not issued", zap.Uint("actor_id", a.ID), zap.Error(err))
	}

	sc.ActorID = a.ID
	if _, _, err := s.Attribute(ctx, sc); err != nil {
		s.log.Error("attribution failed, signup kept organic", zap.Uint("actor_id", a.ID), zap.Error(err))
	}

	if fresh, err := s.actors.GetByID(ctx, a.ID); err == nil {
		a = fresh
	}
	token, err := auth.GenerateAccessToken(&s.cfg.JWT, a.ID, a.Email, a.IsAdmin)
	if err != nil {
		return a, "", err
	}
	return a, token, nil
}

func (s *ProfileService) Login(ctx context.Context, email, password string) (*models.Actor, string, error) {
	a, err := s.actors.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, domain.ErrActorNotFound) {
		return nil, "", domain.ErrInvalidCreds
	}
	if err != nil {
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, "", domain.ErrInvalidCreds
	}
	token, err := auth.GenerateAccessToken(&s.cfg.JWT, a.ID, a.Email, a.IsAdmin)
	if err != nil {
		return nil, "", err
	}
	return a, token, nil
}

// Attribute resolves and stores who referred sc.ActorID. It runs once per
// actor; later calls return the stored binding with changed=false.
func (s *ProfileService) Attribute(ctx context.Context, sc SignupContext) (Binding, bool, error) {
	a, err := s.actors.GetByID(ctx, sc.ActorID)
	if err != nil {
		return Binding{}, false, err
	}
	existing := Binding{ReferrerID: a.ReferredByActorID, Method: a.AttributionMethod, AttributedAt: a.AttributedAt}
	if existing.AttributedAt != nil || existing.ReferrerID != nil {
		return existing, false, nil
	}

	res, err := s.resolver.Resolve(ctx, sc)
	if err != nil {
		return existing, false, err
	}
	next, changed := Bind(existing, res, s.nowFn().UTC())
	if !changed {
		return existing, false, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.actors.WithTx(tx).BindAttribution(ctx, a.ID, next.ReferrerID, next.Method, *next.AttributedAt)
		if err != nil {
			return err
		}
		if !ok {
			changed = false
			return nil
		}
		if err := s.referrals.WithTx(tx).CreateAttributionRecord(ctx, &models.AttributionRecord{
			ActorID:         a.ID,
			ReferrerActorID: next.ReferrerID,
			Method:          next.Method,
			Code:            res.Code,
			Version:         next.Version,
		}); err != nil {
			return err
		}
		return s.signups.WithTx(tx).Create(ctx, &models.SignupEvent{
			ActorID:           a.ID,
			ClaimedCode:       truncate(res.Code, 64),
			CodeOwnerActorID:  res.CodeOwnerID,
			ReferrerActorID:   next.ReferrerID,
			Method:            next.Method,
			ClientIP:          truncate(sc.ClientIP, 45),
			DeviceFingerprint: truncate(sc.DeviceFingerprint, 128),
			UserAgent:         truncate(sc.UserAgent, 512),
			CreatedAt:         *next.AttributedAt,
		})
	})
	if err != nil {
		return existing, false, err
	}
	if !changed {
		return existing, false, nil
	}

	metrics.AttributionsResolved.WithLabelValues(next.Method).Inc()
	fields := []zap.Field{zap.Uint("actor_id", a.ID), zap.String("method", next.Method)}
	if next.ReferrerID != nil {
		fields = append(fields, zap.Uint("referrer_id", *next.ReferrerID))
	}
	if res.Code != "" && next.ReferrerID == nil {
		fields = append(fields, zap.String("discarded_code", res.Code))
	}
	s.log.Info("attribution bound", fields...)
	return next, true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Referred lists the actors directly attributed to referrerID, newest first.
func (s *ProfileService) Referred(ctx context.Context, referrerID uint, limit, offset int) ([]models.Actor, error) {
	return s.actors.ListReferredBy(ctx, referrerID, limit, offset)
}

func (s *ProfileService) Get(ctx context.Context, actorID uint) (*models.Actor, error) {
	return s.actors.GetByID(ctx, actorID)
}
