package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"tutorwise/config"
	"tutorwise/internal/cache"
	"tutorwise/internal/domain"
	"tutorwise/internal/metrics"
	"tutorwise/internal/models"
	"tutorwise/internal/repository"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCodeLength = 16

// CodeGenerator draws uniformly random codes from a fixed alphabet.
type CodeGenerator struct {
	alphabet []byte
	length   int
	rand     io.Reader
}

func NewCodeGenerator(alphabet string, length int) (*CodeGenerator, error) {
	if len(alphabet) < 2 || len(alphabet) > 256 {
		return nil, fmt.Errorf("%w: alphabet needs 2-256 symbols", domain.ErrInvalidCodeConfig)
	}
	seen := make(map[byte]bool, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		if seen[alphabet[i]] {
			return nil, fmt.Errorf("%w: duplicate symbol %q", domain.ErrInvalidCodeConfig, alphabet[i])
		}
		seen[alphabet[i]] = true
	}
	if length < 4 || length > maxCodeLength {
		return nil, fmt.Errorf("%w: length must be between 4 and %d", domain.ErrInvalidCodeConfig, maxCodeLength)
	}
	return &CodeGenerator{alphabet: []byte(alphabet), length: length, rand: rand.Reader}, nil
}

// Draw returns one random code. Bytes at or above the largest multiple of the
// alphabet size are discarded so every symbol is equally likely.
func (g *CodeGenerator) Draw() (string, error) {
	n := len(g.alphabet)
	limit := 256 - (256 % n)
	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)
	for len(out) < g.length {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, g.alphabet[int(b)%n])
			if len(out) == g.length {
				break
			}
		}
	}
	return string(out), nil
}

// ReferralCodeService issues and resolves referral codes.
type ReferralCodeService struct {
	gen        *CodeGenerator
	maxRetries int
	repo       *repository.ReferralRepository
	cache      *cache.Client
	log        *zap.Logger
	memo       *lru.Cache[uint, string]
}

func NewReferralCodeService(
	cfg *config.AttributionConfig,
	repo *repository.ReferralRepository,
	codeCache *cache.Client,
	log *zap.Logger,
) (*ReferralCodeService, error) {
	gen, err := NewCodeGenerator(cfg.CodeAlphabet, cfg.CodeLength)
	if err != nil {
		return nil, err
	}
	retries := cfg.MaxCodeRetries
	if retries <= 0 {
		retries = 20
	}
	memoSize := cfg.CodeMemoSize
	if memoSize <= 0 {
		memoSize = 10000
	}
	memo, err := lru.New[uint, string](memoSize)
	if err != nil {
		return nil, err
	}
	return &ReferralCodeService{
		gen:        gen,
		maxRetries: retries,
		repo:       repo,
		cache:      codeCache,
		log:        log,
		memo:       memo,
	}, nil
}

// GenerateCode returns a code that no actor has ever held. The check includes
// tombstoned codes. The unique index still decides on insert.
func (s *ReferralCodeService) GenerateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		code, err := s.gen.Draw()
		if err != nil {
			return "", fmt.Errorf("draw referral code: %w", err)
		}
		exists, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		metrics.ReferralCodeCollisions.Inc()
	}
	s.log.Error("referral code space exhausted", zap.Int("retries", s.maxRetries))
	return "", domain.ErrCodeSpaceExhausted
}

// GetOrCreateCode returns the actor's code, generating it on first use.
func (s *ReferralCodeService) GetOrCreateCode(ctx context.Context, actorID uint) (string, error) {
	if code, ok := s.memo.Get(actorID); ok {
		return code, nil
	}

	existing, err := s.repo.GetByOwner(ctx, actorID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		s.memo.Add(actorID, existing.Code)
		return existing.Code, nil
	}

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		code, err := s.GenerateCode(ctx)
		if err != nil {
			return "", err
		}
		rc := models.ReferralCode{OwnerActorID: actorID, Code: code}
		err = s.repo.Create(ctx, &rc)
		if err == nil {
			metrics.ReferralCodesIssued.Inc()
			s.memo.Add(actorID, code)
			return code, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", err
		}
		// Either the code was taken between check and insert, or a concurrent
		// request already gave this actor a code.
		existing, err := s.repo.GetByOwner(ctx, actorID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			s.memo.Add(actorID, existing.Code)
			return existing.Code, nil
		}
		metrics.ReferralCodeCollisions.Inc()
	}
	return "", domain.ErrCodeSpaceExhausted
}

// ResolveCode returns the live owner of code. Lookups are exact-case.
func (s *ReferralCodeService) ResolveCode(ctx context.Context, code string) (uint, bool, error) {
	if code == "" || len(code) > maxCodeLength {
		return 0, false, nil
	}
	owner, hit, err := s.cache.CodeOwner(ctx, code)
	if err != nil {
		s.log.Warn("code cache read failed", zap.Error(err))
	}
	if hit {
		metrics.CodeCacheLookups.WithLabelValues("hit").Inc()
		return owner, true, nil
	}
	metrics.CodeCacheLookups.WithLabelValues("miss").Inc()

	rc, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return 0, false, err
	}
	if rc == nil {
		return 0, false, nil
	}
	if err := s.cache.SetCodeOwner(ctx, code, rc.OwnerActorID); err != nil {
		s.log.Warn("code cache write failed", zap.Error(err))
	}
	return rc.OwnerActorID, true, nil
}

// RetireCode tombstones the actor's code. The value is never issued again.
func (s *ReferralCodeService) RetireCode(ctx context.Context, actorID uint) error {
	rc, err := s.repo.GetByOwner(ctx, actorID)
	if err != nil || rc == nil {
		return err
	}
	if err := s.repo.Tombstone(ctx, actorID); err != nil {
		return err
	}
	s.memo.Remove(actorID)
	if err := s.cache.ForgetCode(ctx, rc.Code); err != nil {
		s.log.Warn("code cache delete failed", zap.Error(err))
	}
	return nil
}
