package sharedctx

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskmesh/coordkit/config"
)

// conflictSeverity is fixed: overlap detection cannot judge semantic
// impact, so every conflict is reported at the same level.
const conflictSeverity = "medium"

// detectConflictLocked checks the new record's paths against recent
// update records for the same context. Records within the conflict
// window that share at least one path are collected as conflicting
// changes. Returns nil when no overlap exists.
func (s *Store) detectConflictLocked(obj *Object, record *ChangeRecord) *Conflict {
	newPaths := record.paths()
	cutoff := record.ChangedAt.Add(-s.conflictWindow)

	var overlapping []ChangeRecord
	for _, prior := range s.history[obj.ID] {
		if prior.ChangeType != ChangeUpdate {
			continue
		}
		if prior.ChangedAt.Before(cutoff) {
			continue
		}
		for _, ch := range prior.Changes {
			if newPaths[ch.Path] {
				overlapping = append(overlapping, *prior)
				break
			}
		}
	}
	if len(overlapping) == 0 {
		return nil
	}

	agents := map[string]bool{record.ChangedBy: true}
	for _, prior := range overlapping {
		agents[prior.ChangedBy] = true
	}

	conflict := &Conflict{
		ID:                 uuid.New().String(),
		ContextID:          obj.ID,
		ConflictingChanges: overlapping,
		DetectedAt:         record.ChangedAt,
		Status:             ConflictDetected,
		Severity:           conflictSeverity,
		AffectedAgents:     sortedKeys(agents),
	}
	s.conflicts[obj.ID] = append(s.conflicts[obj.ID], conflict)
	s.log.ConflictDetected(conflict.ID, obj.ID, len(overlapping))
	return conflict
}

// resolveConflict applies the team's conflict policy to a freshly
// detected conflict. The triggering write has already been committed;
// strategies here only record bookkeeping, they take no corrective
// action against the object.
func (s *Store) resolveConflict(obj *Object, conflict *Conflict) {
	team, policy, ok := s.teamPolicy(obj)

	s.mu.Lock()
	defer s.mu.Unlock()

	conflict.Status = ConflictResolving

	if !ok {
		// No team settings: close out as manually resolved.
		s.closeConflictLocked(conflict, config.StrategyManual, "")
		return
	}

	strategy := policy.DefaultStrategy
	if override, found := policy.StrategyByContextType[obj.Type]; found {
		strategy = override
	}
	if policy.EscalationThreshold > 0 && len(conflict.ConflictingChanges) >= policy.EscalationThreshold {
		strategy = config.StrategyEscalateToHuman
	}

	switch strategy {
	case config.StrategyLastWriteWins:
		// The already-applied update stands.
		s.closeConflictLocked(conflict, strategy, team)
	case config.StrategyPriorityAgent:
		// Bookkeeping only: no priority comparison or rollback happens.
		// The configured agent is recorded as the resolver.
		resolvedBy := policy.PriorityAgent
		if resolvedBy == "" {
			resolvedBy = team
		}
		s.closeConflictLocked(conflict, strategy, resolvedBy)
	case config.StrategyEscalateToHuman:
		// Escalated conflicts stay open for a human to resolve.
		conflict.Status = ConflictEscalated
	default:
		s.closeConflictLocked(conflict, config.StrategyManual, team)
	}
}

// closeConflictLocked marks a conflict resolved and stamps the outcome.
func (s *Store) closeConflictLocked(conflict *Conflict, strategy, resolvedBy string) {
	conflict.Status = ConflictResolved
	conflict.Resolution = &Resolution{
		Strategy:   strategy,
		ResolvedBy: resolvedBy,
		ResolvedAt: time.Now(),
	}
}

// teamPolicy resolves the conflict policy for an object's team. The
// team is the lexically first key of the object's team access map;
// objects without team access have no policy.
func (s *Store) teamPolicy(obj *Object) (string, config.TeamConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := sortedKeys(obj.Access.TeamAccess)
	if len(keys) == 0 {
		return "", config.TeamConfig{}, false
	}
	team := keys[0]
	policy, ok := s.teams[team]
	if !ok {
		return team, config.TeamConfig{}, false
	}
	return team, policy, true
}
