package service

import (
	"context"
	"fmt"
	"strconv"

	"tutorwise/internal/domain"
	"tutorwise/internal/models"
	"tutorwise/internal/repository"

	"go.uber.org/zap"
)

// EffectiveReferralRecipient decides who receives the tier-1 referral share.
// A listing delegate takes the share only when the listing owner is the direct
// referrer being credited; in every other case the direct referrer keeps it.
func EffectiveReferralRecipient(directReferrer *uint, listingOwner uint, delegate *uint) (*uint, bool) {
	if directReferrer == nil {
		return nil, false
	}
	if delegate == nil || *delegate == listingOwner {
		return directReferrer, false
	}
	if *directReferrer != listingOwner {
		return directReferrer, false
	}
	return delegate, true
}

// DelegateOf returns the listing's usable delegate, ignoring self-delegation.
func DelegateOf(l *models.RevenueListing) *uint {
	if l.DelegateCommissionToActorID == nil || *l.DelegateCommissionToActorID == l.OwnerActorID {
		return nil
	}
	return l.DelegateCommissionToActorID
}

type DelegationService struct {
	listings *repository.ListingRepository
	actors   *repository.ActorRepository
	audit    *repository.AuditRepository
	log      *zap.Logger
}

func NewDelegationService(
	listings *repository.ListingRepository,
	actors *repository.ActorRepository,
	audit *repository.AuditRepository,
	log *zap.Logger,
) *DelegationService {
	return &DelegationService{listings: listings, actors: actors, audit: audit, log: log}
}

// ResolveDelegate returns the delegate configured on the listing, or nil.
func (s *DelegationService) ResolveDelegate(ctx context.Context, listingID uint) (*uint, error) {
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	return DelegateOf(l), nil
}

// SetDelegate lets the listing owner set or clear (nil) the delegate.
func (s *DelegationService) SetDelegate(ctx context.Context, listingID, callerID uint, delegateID *uint) error {
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return err
	}
	if l.OwnerActorID != callerID {
		return domain.ErrNotListingOwner
	}
	if delegateID != nil {
		if *delegateID == l.OwnerActorID {
			return domain.ErrSelfDelegation
		}
		if _, err := s.actors.GetByID(ctx, *delegateID); err != nil {
			return fmt.Errorf("delegate: %w", err)
		}
	}
	if err := s.listings.SetDelegate(ctx, listingID, delegateID); err != nil {
		return err
	}

	meta := "cleared"
	if delegateID != nil {
		meta = "delegate_actor_id=" + strconv.FormatUint(uint64(*delegateID), 10)
	}
	if err := s.audit.Log(ctx, &models.AuditLog{
		ActorID:    &callerID,
		Action:     "listing.delegate_set",
		Resource:   "listing",
		ResourceID: strconv.FormatUint(uint64(listingID), 10),
		Metadata:   meta,
	}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
	return nil
}
