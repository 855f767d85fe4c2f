package sharedctx

import (
	coorderr "github.com/taskmesh/coordkit/errors"
)

// GetVersion reconstructs a context object at a historical version by
// replaying its change log. Replay is flat path assignment: nested
// paths are last-write-wins per path, not a structural merge. Versions
// before 1, past the object's history, or at or after a recorded
// deletion are not found.
func (s *Store) GetVersion(id string, version int) (*Object, error) {
	if version < 1 {
		return nil, coorderr.NotFound("context version", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if obj, ok := s.objects[id]; ok && obj.Version == version {
		return obj.Clone(), nil
	}

	records := s.history[id]
	if len(records) == 0 {
		return nil, coorderr.NotFound("context", id)
	}

	base := createSnapshot(records[0])
	if base == nil {
		return nil, coorderr.Internal("context history is missing its create snapshot",
			coorderr.WithEntityID(id))
	}
	if version == 1 {
		return base, nil
	}
	if base.Data == nil {
		base.Data = make(map[string]any)
	}

	reached := 1
	for _, record := range records[1:] {
		if record.VersionTo > version {
			break
		}
		if record.ChangeType == ChangeDelete {
			return nil, coorderr.NotFound("context version", id)
		}
		for _, ch := range record.Changes {
			base.Data[ch.Path] = ch.NewValue
		}
		base.Version = record.VersionTo
		base.UpdatedAt = record.ChangedAt
		base.UpdatedBy = record.ChangedBy
		reached = record.VersionTo
	}
	if reached < version {
		return nil, coorderr.NotFound("context version", id)
	}
	return base, nil
}

// createSnapshot extracts the full-object snapshot embedded in a create
// record.
func createSnapshot(record *ChangeRecord) *Object {
	if record.ChangeType != ChangeCreate || len(record.Changes) == 0 {
		return nil
	}
	obj, ok := record.Changes[0].NewValue.(*Object)
	if !ok {
		return nil
	}
	return obj.Clone()
}
