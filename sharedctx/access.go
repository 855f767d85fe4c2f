package sharedctx

import (
	"time"

	"github.com/google/uuid"

	coorderr "github.com/taskmesh/coordkit/errors"
)

// HasAccess reports whether an agent holds at least the required level
// on a context. Rules are checked in order: creator/updater always has
// full access, then explicit per-agent access, then per-team access,
// then the object's default. The first matching rule wins.
func (s *Store) HasAccess(contextID, agentID string, required AccessLevel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[contextID]
	if !ok {
		return false
	}
	return s.hasAccessLocked(obj, agentID, required)
}

func (s *Store) hasAccessLocked(obj *Object, agentID string, required AccessLevel) bool {
	s.expireGrantsLocked(obj, time.Now())

	if agentID == obj.CreatedBy || agentID == obj.UpdatedBy {
		return true
	}
	if level, ok := obj.Access.AgentAccess[agentID]; ok {
		return level.Satisfies(required)
	}
	for _, teamID := range sortedKeys(obj.Access.TeamAccess) {
		if s.membership.IsMember(agentID, teamID) {
			return obj.Access.TeamAccess[teamID].Satisfies(required)
		}
	}
	return obj.Access.DefaultAccess.Satisfies(required)
}

// expireGrantsLocked drops the per-agent entries mirrored by grants
// whose expiry has lapsed. An entry is only removed when its level
// matches the expired grant and no other active grant still covers the
// agent, so entries set directly at create time at a different level
// survive.
func (s *Store) expireGrantsLocked(obj *Object, now time.Time) {
	for _, g := range s.grants[obj.ID] {
		if g.Revoked || g.ExpiresAt == nil || g.ExpiresAt.After(now) {
			continue
		}
		level, ok := obj.Access.AgentAccess[g.GrantedTo]
		if ok && level == g.AccessLevel && !s.hasActiveGrantLocked(obj.ID, g.GrantedTo, now) {
			delete(obj.Access.AgentAccess, g.GrantedTo)
		}
	}
}

func (s *Store) hasActiveGrantLocked(contextID, agentID string, now time.Time) bool {
	for _, g := range s.grants[contextID] {
		if g.GrantedTo == agentID && !g.Revoked && (g.ExpiresAt == nil || g.ExpiresAt.After(now)) {
			return true
		}
	}
	return false
}

// GrantAccess gives an agent an explicit level on a context. The
// granter must hold ADMIN. The grant is recorded and mirrored into the
// object's per-agent access map.
func (s *Store) GrantAccess(contextID, granterID, granteeID string, level AccessLevel, expiresAt *time.Time) (*Grant, error) {
	if level.rank() == 0 {
		return nil, coorderr.InvalidInput("unknown access level " + string(level))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[contextID]
	if !ok || s.deleting[contextID] {
		return nil, coorderr.NotFound("context", contextID)
	}
	if !s.hasAccessLocked(obj, granterID, AccessAdmin) {
		return nil, coorderr.PermissionDenied(granterID, string(AccessAdmin),
			coorderr.WithEntityID(contextID))
	}

	grant := &Grant{
		ID:          uuid.New().String(),
		ContextID:   contextID,
		GrantedTo:   granteeID,
		GrantedBy:   granterID,
		AccessLevel: level,
		GrantedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}
	s.grants[contextID] = append(s.grants[contextID], grant)

	if obj.Access.AgentAccess == nil {
		obj.Access.AgentAccess = make(map[string]AccessLevel)
	}
	obj.Access.AgentAccess[granteeID] = level

	g := *grant
	return &g, nil
}

// RevokeAccess revokes an agent's explicit grant on a context. The
// revoker must hold ADMIN. Both the grant record and the object's
// per-agent entry are cleared; the agent falls back to team and default
// access.
func (s *Store) RevokeAccess(contextID, revokerID, granteeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[contextID]
	if !ok || s.deleting[contextID] {
		return coorderr.NotFound("context", contextID)
	}
	if !s.hasAccessLocked(obj, revokerID, AccessAdmin) {
		return coorderr.PermissionDenied(revokerID, string(AccessAdmin),
			coorderr.WithEntityID(contextID))
	}

	found := false
	now := time.Now()
	for _, grant := range s.grants[contextID] {
		if grant.GrantedTo == granteeID && !grant.Revoked {
			grant.Revoked = true
			grant.RevokedAt = &now
			grant.RevokedBy = revokerID
			found = true
		}
	}
	if !found {
		return coorderr.NotFound("grant for agent", granteeID,
			coorderr.WithEntityID(contextID))
	}

	delete(obj.Access.AgentAccess, granteeID)
	return nil
}

// Grants returns all grants recorded for a context, revoked included.
func (s *Store) Grants(contextID string) []Grant {
	s.mu.Lock()
	defer s.mu.Unlock()

	grants := make([]Grant, 0, len(s.grants[contextID]))
	for _, g := range s.grants[contextID] {
		grants = append(grants, *g)
	}
	return grants
}
