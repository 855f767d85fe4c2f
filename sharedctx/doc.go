// Package sharedctx implements the versioned shared context store.
//
// # Overview
//
// Context objects are arbitrary typed records under optimistic
// versioning: writes are never locked out, every accepted mutation
// bumps the version by exactly one and appends an immutable change
// record. Conflicts between concurrent edits are detected after the
// fact by comparing overlapping field paths within a sliding window,
// then resolved per the owning team's policy. Historical versions are
// reconstructed by replaying the change log from the create snapshot.
//
// # Usage
//
//	store := sharedctx.NewStore(sharedctx.StoreConfig{
//	    Notifier: notifier,
//	    Teams:    cfg.Teams,
//	})
//
//	obj, _ := store.Create("design_doc",
//	    map[string]any{"status": "draft"},
//	    sharedctx.AccessControl{DefaultAccess: sharedctx.AccessEdit},
//	    "agent-a")
//
//	store.Update(obj.ID, map[string]any{"status": "review"}, "agent-b", "")
//	past, _ := store.GetVersion(obj.ID, 1)
//
// # Access model
//
// Levels order READ_ONLY < COMMENT < SUGGEST < EDIT < ADMIN. The
// creator and last updater always have full access; explicit agent
// grants are checked next, then team access, then the object default.
// Updates require EDIT, deletes and grant management require ADMIN.
package sharedctx
