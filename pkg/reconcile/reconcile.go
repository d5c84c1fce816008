// Package reconcile merges the local optimistic pending set with the
// authoritative stream snapshot into one deduplicated, order-stable view.
// The only matching rule is client id equality.
package reconcile

import (
	"sort"

	"parley/pkg/models"
)

// Reconcile produces the conversation view from the local pending set and a
// full authoritative snapshot. It is a pure function: identical inputs
// always yield an identically ordered view, so repeated deliveries of an
// unchanged snapshot never reorder anything.
func Reconcile(localPending []models.Message, authoritative []models.Message) models.ConversationView {
	// stable authoritative order: server timestamp, then ids as tiebreak
	auth := append([]models.Message(nil), authoritative...)
	sort.SliceStable(auth, func(i, j int) bool {
		ki, kj := auth[i].OrderKey(), auth[j].OrderKey()
		if ki != kj {
			return ki < kj
		}
		if auth[i].AuthoritativeID != auth[j].AuthoritativeID {
			return auth[i].AuthoritativeID < auth[j].AuthoritativeID
		}
		return auth[i].ClientID < auth[j].ClientID
	})

	pendingByClient := make(map[string]models.Message, len(localPending))
	for _, p := range localPending {
		if p.ClientID != "" {
			pendingByClient[p.ClientID] = p
		}
	}

	matched := make(map[string]bool)
	seenAuth := make(map[string]bool)
	view := make(models.ConversationView, 0, len(auth)+len(localPending))
	for _, a := range auth {
		// the stream is at-least-once; drop duplicate deliveries
		if a.AuthoritativeID != "" {
			if seenAuth[a.AuthoritativeID] {
				continue
			}
			seenAuth[a.AuthoritativeID] = true
		}
		if a.ClientID != "" {
			if matched[a.ClientID] {
				continue
			}
			if p, ok := pendingByClient[a.ClientID]; ok {
				// one merged entry replaces both records: local content,
				// authoritative identity and timestamp
				view = append(view, p.Acknowledged(a.AuthoritativeID, a.CreatedServerMs))
				matched[a.ClientID] = true
				continue
			}
		}
		view = append(view, a)
	}

	// unmatched local records trail the authoritative set, ordered among
	// themselves by local creation time
	rest := make([]models.Message, 0, len(localPending))
	for _, p := range localPending {
		if p.ClientID == "" || !matched[p.ClientID] {
			rest = append(rest, p)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].CreatedLocalMs != rest[j].CreatedLocalMs {
			return rest[i].CreatedLocalMs < rest[j].CreatedLocalMs
		}
		return rest[i].ClientID < rest[j].ClientID
	})
	return append(view, rest...)
}

// MatchedClientIDs returns the client ids of pending records that the
// snapshot confirms, so the lifecycle engine can retire them.
func MatchedClientIDs(localPending []models.Message, authoritative []models.Message) []string {
	if len(localPending) == 0 {
		return nil
	}
	pending := make(map[string]struct{}, len(localPending))
	for _, p := range localPending {
		if p.ClientID != "" {
			pending[p.ClientID] = struct{}{}
		}
	}
	var out []string
	seen := make(map[string]bool)
	for _, a := range authoritative {
		if a.ClientID == "" || seen[a.ClientID] {
			continue
		}
		if _, ok := pending[a.ClientID]; ok {
			out = append(out, a.ClientID)
			seen[a.ClientID] = true
		}
	}
	return out
}
