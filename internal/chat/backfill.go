package chat

import (
	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/model"
)

// backfillKey identifies one participant entry of one conversation.
type backfillKey struct {
	conversationID string
	participantID  string
}

// missingOrganization reports whether a cached organisation name needs a
// lookup.
func (s *Sync) missingOrganization(name string) bool {
	return name == "" || s.placeholders[name]
}

// scheduleBackfill starts a directory lookup for every participant entry
// whose organisation name is missing. A lookup is skipped while one for
// the same entry is running, and after one already settled the same
// cached value. Runs on the loop.
func (s *Sync) scheduleBackfill(w *watch) {
	if s.dir == nil {
		return
	}
	for _, c := range s.convs {
		for _, pid := range c.Participants {
			current := c.ParticipantsInfo[pid].OrganizationName
			if !s.missingOrganization(current) {
				continue
			}
			key := backfillKey{conversationID: c.ID, participantID: pid}
			if s.inflight[key] {
				continue
			}
			if prev, ok := s.settled[key]; ok && prev == current {
				continue
			}
			s.inflight[key] = true
			s.loop.Defer(func() {
				go s.backfill(w, key, current)
			})
		}
	}
}

// backfill looks up the authoritative organisation name and patches the
// cached one. Runs off the loop; failures are logged and counted only.
// The entry is marked settled for current only when the lookup succeeded
// and the patch either succeeded or was not needed, so a failed attempt
// is retried on the next snapshot.
func (s *Sync) backfill(w *watch, key backfillKey, current string) {
	settled := false
	defer s.loop.Post(func() {
		if w != s.watch {
			return
		}
		delete(s.inflight, key)
		if settled {
			s.settled[key] = current
		}
	})

	logger := s.logger.With("conversation", key.conversationID, "participant", key.participantID)

	if err := s.limiter.Wait(w.ctx); err != nil {
		return
	}
	name, err := s.dir.OrganizationName(w.ctx, key.participantID)
	if err != nil {
		if w.ctx.Err() == nil {
			logger.Warn("organization lookup failed", "error", err)
		}
		return
	}
	if name == "" || name == current {
		settled = true
		return
	}

	field := docstore.FieldPath("participantsInfo", key.participantID, "organizationName")
	_, err = s.store.Update(w.ctx, model.ConversationPath(key.conversationID), docstore.Fields{field: name})
	if err != nil {
		if w.ctx.Err() == nil {
			logger.Warn("organization backfill failed", "error", err)
			s.metrics.RecordBackfillPatch(false)
		}
		return
	}
	settled = true
	s.metrics.RecordBackfillPatch(true)
	logger.Debug("organization backfilled", "organization", name)
}
