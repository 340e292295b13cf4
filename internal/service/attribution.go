package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"tutorwise/internal/auth"
	"tutorwise/internal/domain"
)

// SignupContext carries the attribution signals seen at profile creation.
type SignupContext struct {
	ActorID           uint
	QueryCode         string // value of the referral query parameter
	CookieValue       string // raw signed attribution cookie
	ManualEntry       string // free-text "who referred you"
	ClientIP          string
	DeviceFingerprint string
	UserAgent         string
}

// AttributionSource extracts a candidate referral code from one signal.
type AttributionSource interface {
	Method() string
	Lookup(sc SignupContext) (code string, found bool)
}

type queryParamSource struct{}

func (queryParamSource) Method() string { return domain.AttributionURLParameter }

func (queryParamSource) Lookup(sc SignupContext) (string, bool) {
	code := strings.TrimSpace(sc.QueryCode)
	return code, code != ""
}

type cookieSource struct {
	signer *auth.CookieSigner
}

func (cookieSource) Method() string { return domain.AttributionCookie }

// Lookup treats a cookie that fails verification exactly like a missing one.
func (s cookieSource) Lookup(sc SignupContext) (string, bool) {
	if sc.CookieValue == "" {
		return "", false
	}
	claims, err := s.signer.Verify(sc.CookieValue)
	if err != nil {
		return "", false
	}
	return claims.Code, true
}

type manualEntrySource struct{}

func (manualEntrySource) Method() string { return domain.AttributionManualEntry }

func (manualEntrySource) Lookup(sc SignupContext) (string, bool) {
	code := ParseManualCode(sc.ManualEntry)
	return code, code != ""
}

// ParseManualCode accepts a bare code or a pasted referral link such as
// https://host/a/Abc1234 or https://host/signup?ref=Abc1234.
func ParseManualCode(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "/") && !strings.Contains(raw, "?") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if ref := u.Query().Get("ref"); ref != "" {
		return ref
	}
	path := u.Path
	if u.Host == "" && u.Scheme == "" && !strings.HasPrefix(path, "/") {
		// "host/a/code" without scheme parses as a relative path.
		path = "/" + path
	}
	idx := strings.LastIndex(path, "/a/")
	if idx < 0 {
		return ""
	}
	code := strings.Trim(path[idx+3:], "/")
	if strings.Contains(code, "/") {
		return ""
	}
	return code
}

// DefaultAttributionSources returns the resolution chain in priority order.
func DefaultAttributionSources(signer *auth.CookieSigner) []AttributionSource {
	return []AttributionSource{
		queryParamSource{},
		cookieSource{signer: signer},
		manualEntrySource{},
	}
}

// Resolution is the outcome of attribution for one signup.
type Resolution struct {
	ReferrerID  *uint
	Method      string
	Code        string // code that was claimed, even if discarded
	CodeOwnerID *uint  // owner of Code, even when it is the actor itself
}

// CodeResolver maps a referral code to its owner.
type CodeResolver interface {
	ResolveCode(ctx context.Context, code string) (ownerID uint, found bool, err error)
}

type AttributionResolver struct {
	sources []AttributionSource
	codes   CodeResolver
}

func NewAttributionResolver(codes CodeResolver, sources ...AttributionSource) *AttributionResolver {
	return &AttributionResolver{sources: sources, codes: codes}
}

// Resolve walks the sources in order. The first source that yields a code
// decides the outcome: if that code is unknown or belongs to the actor the
// result is organic, and later sources are not consulted.
func (r *AttributionResolver) Resolve(ctx context.Context, sc SignupContext) (Resolution, error) {
	for _, src := range r.sources {
		code, found := src.Lookup(sc)
		if !found {
			continue
		}
		res := Resolution{Method: domain.AttributionNone, Code: code}
		owner, ok, err := r.codes.ResolveCode(ctx, code)
		if err != nil {
			return Resolution{}, err
		}
		if !ok {
			return res, nil
		}
		res.CodeOwnerID = &owner
		if owner == sc.ActorID {
			return res, nil
		}
		res.ReferrerID = &owner
		res.Method = src.Method()
		return res, nil
	}
	return Resolution{Method: domain.AttributionNone}, nil
}

// Binding is the stored, write-once attribution of an actor.
type Binding struct {
	ReferrerID   *uint
	Method       string
	AttributedAt *time.Time
	Version      int
}

// Bind decides the new binding given the stored one and a fresh resolution.
// Once attributed, organic or not, the binding never changes.
func Bind(existing Binding, candidate Resolution, at time.Time) (Binding, bool) {
	if existing.AttributedAt != nil || existing.ReferrerID != nil {
		return existing, false
	}
	method := candidate.Method
	if candidate.ReferrerID == nil {
		method = domain.AttributionNone
	}
	return Binding{
		ReferrerID:   candidate.ReferrerID,
		Method:       method,
		AttributedAt: &at,
		Version:      existing.Version + 1,
	}, true
}
