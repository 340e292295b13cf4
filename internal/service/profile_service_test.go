package service

import (
	"context"
	"testing"

	"tutorwise/internal/domain"
	"tutorwise/internal/models"
	"tutorwise/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_BindsReferrerFromQuery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	referrer, _, err := env.profiles.Register(ctx, RegisterInput{Email: "ref@example.com", Password: "password1", CanRefer: true}, SignupContext{})
	require.NoError(t, err)
	code, err := env.codes.GetOrCreateCode(ctx, referrer.ID)
	require.NoError(t, err)

	newcomer, token, err := env.profiles.Register(ctx,
		RegisterInput{Email: "New@Example.com", Password: "password1", CanEarn: true},
		SignupContext{QueryCode: code, ClientIP: "10.0.0.1", DeviceFingerprint: "fp-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "new@example.com", newcomer.Email)
	require.NotNil(t, newcomer.ReferredByActorID)
	assert.Equal(t, referrer.ID, *newcomer.ReferredByActorID)
	assert.Equal(t, domain.AttributionURLParameter, newcomer.AttributionMethod)
	assert.NotNil(t, newcomer.AttributedAt)

	var rec models.AttributionRecord
	require.NoError(t, env.db.Where("actor_id = ?", newcomer.ID).First(&rec).Error)
	assert.Equal(t, code, rec.Code)
	assert.Equal(t, 1, rec.Version)

	var ev models.SignupEvent
	require.NoError(t, env.db.Where("actor_id = ?", newcomer.ID).First(&ev).Error)
	assert.Equal(t, "10.0.0.1", ev.ClientIP)
	assert.Equal(t, "fp-1", ev.DeviceFingerprint)
}

func TestRegister_CookieAndUnknownCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	referrer, _, err := env.profiles.Register(ctx, RegisterInput{Email: "ref@example.com", Password: "password1", CanRefer: true}, SignupContext{})
	require.NoError(t, err)
	code, err := env.codes.GetOrCreateCode(ctx, referrer.ID)
	require.NoError(t, err)
	cookie, _, err := env.signer.Sign(code, domain.CookieSourceLink)
	require.NoError(t, err)

	viaCookie, _, err := env.profiles.Register(ctx, RegisterInput{Email: "c@example.com", Password: "password1"},
		SignupContext{CookieValue: cookie, ManualEntry: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, domain.AttributionCookie, viaCookie.AttributionMethod)

	organic, _, err := env.profiles.Register(ctx, RegisterInput{Email: "o@example.com", Password: "password1"},
		SignupContext{QueryCode: "Missing"})
	require.NoError(t, err)
	assert.Nil(t, organic.ReferredByActorID)
	assert.Equal(t, domain.AttributionNone, organic.AttributionMethod)
	assert.NotNil(t, organic.AttributedAt)
}

func TestRegister_IssuesCodeToEveryActor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	earner, _, err := env.profiles.Register(ctx, RegisterInput{Email: "earner@example.com", Password: "password1", CanEarn: true}, SignupContext{})
	require.NoError(t, err)
	assert.False(t, earner.CanRefer)

	var rc models.ReferralCode
	require.NoError(t, env.db.Where("owner_actor_id = ?", earner.ID).First(&rc).Error)
	assert.Len(t, rc.Code, env.cfg.Attribution.CodeLength)

	code, err := env.codes.GetOrCreateCode(ctx, earner.ID)
	require.NoError(t, err)
	assert.Equal(t, rc.Code, code)
}

func TestAttribute_WriteOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	r1 := testutil.CreateActor(t, env.db, "r1@example.com", nil)
	r2 := testutil.CreateActor(t, env.db, "r2@example.com", nil)
	c1, err := env.codes.GetOrCreateCode(ctx, r1.ID)
	require.NoError(t, err)
	c2, err := env.codes.GetOrCreateCode(ctx, r2.ID)
	require.NoError(t, err)
	a := testutil.CreateActor(t, env.db, "a@example.com", nil)

	b, changed, err := env.profiles.Attribute(ctx, SignupContext{ActorID: a.ID, ManualEntry: c1})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, r1.ID, *b.ReferrerID)

	b, changed, err = env.profiles.Attribute(ctx, SignupContext{ActorID: a.ID, QueryCode: c2})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, r1.ID, *b.ReferrerID)
	assert.Equal(t, domain.AttributionManualEntry, b.Method)
}

func TestAttribute_OwnCodeIsOrganicAndRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := testutil.CreateActor(t, env.db, "a@example.com", nil)
	code, err := env.codes.GetOrCreateCode(ctx, a.ID)
	require.NoError(t, err)

	b, changed, err := env.profiles.Attribute(ctx, SignupContext{ActorID: a.ID, QueryCode: code})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Nil(t, b.ReferrerID)
	assert.Equal(t, domain.AttributionNone, b.Method)

	var ev models.SignupEvent
	require.NoError(t, env.db.Where("actor_id = ?", a.ID).First(&ev).Error)
	require.NotNil(t, ev.CodeOwnerActorID)
	assert.Equal(t, a.ID, *ev.CodeOwnerActorID)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.profiles.Register(ctx, RegisterInput{Email: "a@example.com", Password: "password1"}, SignupContext{})
	require.NoError(t, err)

	_, token, err := env.profiles.Login(ctx, "A@example.com", "password1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, _, err = env.profiles.Login(ctx, "a@example.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCreds)

	_, _, err = env.profiles.Login(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, domain.ErrInvalidCreds)

	_, _, err = env.profiles.Register(ctx, RegisterInput{Email: "a@example.com", Password: "password1"}, SignupContext{})
	assert.ErrorIs(t, err, domain.ErrEmailExists)
}

func TestSetDelegate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := testutil.CreateActor(t, env.db, "owner@example.com", nil)
	other := testutil.CreateActor(t, env.db, "other@example.com", nil)
	l := testutil.CreateListing(t, env.db, owner.ID, nil)

	assert.ErrorIs(t, env.delegation.SetDelegate(ctx, l.ID, owner.ID, &owner.ID), domain.ErrSelfDelegation)
	assert.ErrorIs(t, env.delegation.SetDelegate(ctx, l.ID, other.ID, &other.ID), domain.ErrNotListingOwner)
	assert.ErrorIs(t, env.delegation.SetDelegate(ctx, l.ID, owner.ID, testutil.Ptr(uint(999))), domain.ErrActorNotFound)

	require.NoError(t, env.delegation.SetDelegate(ctx, l.ID, owner.ID, &other.ID))
	d, err := env.delegation.ResolveDelegate(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, *d)

	require.NoError(t, env.delegation.SetDelegate(ctx, l.ID, owner.ID, nil))
	d, err = env.delegation.ResolveDelegate(ctx, l.ID)
	require.NoError(t, err)
	assert.Nil(t, d)

	// A self-delegation written behind the service's back is ignored.
	require.NoError(t, env.db.Model(&models.RevenueListing{}).Where("id = ?", l.ID).
		Update("delegate_commission_to_actor_id", owner.ID).Error)
	d, err = env.delegation.ResolveDelegate(ctx, l.ID)
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = env.delegation.ResolveDelegate(ctx, 424242)
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
}
