package validation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"parley/pkg/transport"
)

func validate(t *testing.T, v transport.Validator, body string) transport.ValidationResult {
	t.Helper()
	res, err := v.Validate(context.Background(), transport.ValidationRequest{
		Body:           body,
		SenderID:       "s1",
		ConversationID: "general",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return res
}

func TestLocalAllowsPlainText(t *testing.T) {
	v := NewLocal(Rules{MaxBodyLen: 100})
	if res := validate(t, v, "hello there"); !res.Allowed {
		t.Fatalf("denied: %+v", res)
	}
}

func TestLocalDeniesEmptyBody(t *testing.T) {
	v := NewLocal(Rules{})
	for _, body := range []string{"", "   ", "\n\t"} {
		res := validate(t, v, body)
		if res.Allowed || res.ReasonCode != ReasonEmptyBody {
			t.Fatalf("body %q: %+v", body, res)
		}
	}
}

func TestLocalDeniesOverlongBody(t *testing.T) {
	v := NewLocal(Rules{MaxBodyLen: 10})
	res := validate(t, v, strings.Repeat("x", 11))
	if res.Allowed || res.ReasonCode != ReasonTooLong {
		t.Fatalf("result = %+v", res)
	}
	if res := validate(t, v, strings.Repeat("x", 10)); !res.Allowed {
		t.Fatalf("body at the limit denied: %+v", res)
	}
}

func TestLocalDeniesBlockedTermsCaseInsensitive(t *testing.T) {
	v := NewLocal(Rules{BlockedTerms: []string{"spoiler", " junk "}})
	for _, body := range []string{"big SPOILER ahead", "some Junk inside"} {
		res := validate(t, v, body)
		if res.Allowed || res.ReasonCode != ReasonBlockedTerm {
			t.Fatalf("body %q: %+v", body, res)
		}
	}
	if res := validate(t, v, "clean message"); !res.Allowed {
		t.Fatalf("clean body denied: %+v", res)
	}
}

func TestLocalDefaultsMaxLen(t *testing.T) {
	v := NewLocal(Rules{})
	if res := validate(t, v, strings.Repeat("x", 4000)); !res.Allowed {
		t.Fatalf("default limit too small: %+v", res)
	}
	if res := validate(t, v, strings.Repeat("x", 4001)); res.Allowed {
		t.Fatalf("default limit not enforced")
	}
}

type stubValidator struct {
	res transport.ValidationResult
	err error
}

func (s stubValidator) Validate(context.Context, transport.ValidationRequest) (transport.ValidationResult, error) {
	return s.res, s.err
}

func TestChainStopsAtFirstDenial(t *testing.T) {
	c := Chain{
		stubValidator{res: transport.ValidationResult{Allowed: true}},
		stubValidator{res: transport.ValidationResult{Allowed: false, ReasonCode: "first_denial"}},
		stubValidator{res: transport.ValidationResult{Allowed: false, ReasonCode: "second_denial"}},
	}
	res := validate(t, c, "anything")
	if res.Allowed || res.ReasonCode != "first_denial" {
		t.Fatalf("result = %+v", res)
	}
}

func TestChainFailsOpenOnValidatorError(t *testing.T) {
	c := Chain{
		stubValidator{err: errors.New("remote moderation down")},
		stubValidator{res: transport.ValidationResult{Allowed: true}},
	}
	if res := validate(t, c, "anything"); !res.Allowed {
		t.Fatalf("chain did not fail open: %+v", res)
	}

	// even a chain of nothing but broken validators allows
	broken := Chain{stubValidator{err: errors.New("down")}}
	if res := validate(t, broken, "anything"); !res.Allowed {
		t.Fatalf("broken chain denied: %+v", res)
	}
}

func TestEmptyChainAllows(t *testing.T) {
	if res := validate(t, Chain{}, "anything"); !res.Allowed {
		t.Fatalf("empty chain denied: %+v", res)
	}
}
