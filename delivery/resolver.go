package delivery

import (
	"github.com/google/uuid"

	"github.com/pypeaday/soonish-sub002/event"
)

// GapReason classifies why a selector failed to resolve.
type GapReason string

const (
	GapChannelMissing  GapReason = "channel_missing"
	GapChannelInactive GapReason = "channel_inactive"
	GapChannelForeign  GapReason = "channel_foreign"
	GapTagUnmatched    GapReason = "tag_unmatched"
)

// Gap records a selector that resolved to nothing. Gaps are reported, never
// raised: the rest of the subscription's channels still get delivery.
type Gap struct {
	SubscriptionID uuid.UUID
	SelectorID     uuid.UUID
	ChannelID      *uuid.UUID
	Tag            string
	Reason         GapReason
}

// Resolution is the outcome of resolving one subscription's selectors.
type Resolution struct {
	Channels []event.Channel
	Gaps     []Gap
}

// Resolve maps a subscription's selectors onto the owner's channels.
//
// Channel selectors pin one channel; tag selectors match every active
// channel whose folded tag equals the folded selector tag. Duplicate matches
// collapse: a channel reached by several selectors receives one delivery.
// channels must be the full channel list of the subscription's owner,
// including deactivated rows, so inactive references classify correctly.
func Resolve(sub event.Subscription, selectors []event.Selector, channels []event.Channel) Resolution {
	byID := make(map[uuid.UUID]event.Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}

	var res Resolution
	seen := make(map[uuid.UUID]struct{})

	include := func(ch event.Channel) {
		if _, dup := seen[ch.ID]; dup {
			return
		}
		seen[ch.ID] = struct{}{}
		res.Channels = append(res.Channels, ch)
	}

	gap := func(sel event.Selector, reason GapReason) {
		res.Gaps = append(res.Gaps, Gap{
			SubscriptionID: sub.ID,
			SelectorID:     sel.ID,
			ChannelID:      sel.ChannelID,
			Tag:            sel.Tag,
			Reason:         reason,
		})
	}

	for _, sel := range selectors {
		if sel.ByTag() {
			tag := event.NormalizeTag(sel.Tag)
			matched := false
			for _, ch := range channels {
				if !ch.Active || ch.Tag == "" {
					continue
				}
				if event.NormalizeTag(ch.Tag) == tag {
					include(ch)
					matched = true
				}
			}
			if !matched {
				gap(sel, GapTagUnmatched)
			}
			continue
		}

		ch, ok := byID[*sel.ChannelID]
		switch {
		case !ok:
			gap(sel, GapChannelMissing)
		case ch.UserID != sub.UserID:
			gap(sel, GapChannelForeign)
		case !ch.Active:
			gap(sel, GapChannelInactive)
		default:
			include(ch)
		}
	}

	return res
}
