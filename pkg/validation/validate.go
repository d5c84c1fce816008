package validation

import (
	"context"
	"strings"

	"parley/pkg/logger"
	"parley/pkg/transport"
)

// Reason codes surfaced with denials. Presentation maps these to copy; the
// core only guarantees they are stable.
const (
	ReasonEmptyBody   = "empty_body"
	ReasonTooLong     = "body_too_long"
	ReasonBlockedTerm = "blocked_term"
)

// Rules holds the locally enforced content constraints.
type Rules struct {
	MaxBodyLen   int
	BlockedTerms []string
}

// Local is a rules-driven content validator that runs without any network
// round trip. It implements transport.Validator.
type Local struct {
	rules Rules
}

func NewLocal(r Rules) *Local {
	if r.MaxBodyLen <= 0 {
		r.MaxBodyLen = 4000
	}
	return &Local{rules: r}
}

func (l *Local) Validate(_ context.Context, req transport.ValidationRequest) (transport.ValidationResult, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return deny(ReasonEmptyBody, "message body is empty"), nil
	}
	if len(req.Body) > l.rules.MaxBodyLen {
		return deny(ReasonTooLong, "message body exceeds the allowed length"), nil
	}
	lower := strings.ToLower(body)
	for _, term := range l.rules.BlockedTerms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(lower, t) {
			logger.Info("content_denied", "sender", req.SenderID, "reason", ReasonBlockedTerm)
			return deny(ReasonBlockedTerm, "message contains a blocked term"), nil
		}
	}
	return transport.ValidationResult{Allowed: true}, nil
}

func deny(code, detail string) transport.ValidationResult {
	return transport.ValidationResult{Allowed: false, ReasonCode: code, Detail: detail}
}

// Chain runs validators in order and denies on the first denial. A
// validator error fails open for that link: content moderation must not
// block sending when the moderation service itself is down.
type Chain []transport.Validator

func (c Chain) Validate(ctx context.Context, req transport.ValidationRequest) (transport.ValidationResult, error) {
	for _, v := range c {
		res, err := v.Validate(ctx, req)
		if err != nil {
			logger.Warn("validator_unavailable", "error", err)
			continue
		}
		if !res.Allowed {
			return res, nil
		}
	}
	return transport.ValidationResult{Allowed: true}, nil
}
