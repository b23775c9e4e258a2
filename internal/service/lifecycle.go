package service

import (
	"timetracker/internal/model"
	"timetracker/pkg/apperror"
)

// Operations guarded by the lifecycle rules.
const (
	opEdit    = "edit entry"
	opSubmit  = "submit entry"
	opApprove = "approve entry"
	opReturn  = "return entry"
	opDelete  = "delete entry"
)

// guard is the outcome of a lifecycle check. A non-nil deny means the caller
// lacks rights; a non-nil err means the entry is in the wrong state.
type guard struct {
	deny bool
	err  error
}

func allow() guard                { return guard{} }
func deny() guard                 { return guard{deny: true} }
func wrongState(msg string) guard { return guard{err: apperror.InvalidState(msg)} }

// checkOperation applies the transition table:
//
//	(new)            -> draft     owner
//	draft            -> pending   owner
//	pending          -> approved  admin
//	pending|approved -> draft     admin
//	draft|pending    -> deleted   owner or admin
//	approved         -> deleted   admin
//
// Non-admins never touch approved entries; that is checked first so the
// error does not depend on ownership.
func checkOperation(actor Actor, entry *model.TimeEntry, op string) guard {
	if entry.Status == model.StatusApproved && !actor.IsAdmin() {
		return deny()
	}

	switch op {
	case opEdit:
		if actor.IsAdmin() {
			return allow()
		}
		if !actor.Owns(entry) {
			return deny()
		}
		if entry.Status != model.StatusDraft {
			return wrongState("entry has been submitted and can no longer be edited")
		}
		return allow()

	case opSubmit:
		if !actor.Owns(entry) {
			return deny()
		}
		if entry.Status != model.StatusDraft {
			return wrongState("entry is already " + string(entry.Status))
		}
		return allow()

	case opApprove:
		if !actor.IsAdmin() {
			return deny()
		}
		if entry.Status != model.StatusPending {
			return wrongState("only pending entries can be approved, entry is " + string(entry.Status))
		}
		return allow()

	case opReturn:
		if !actor.IsAdmin() {
			return deny()
		}
		if entry.Status == model.StatusDraft {
			return wrongState("entry is already a draft")
		}
		return allow()

	case opDelete:
		if actor.IsAdmin() || actor.Owns(entry) {
			return allow()
		}
		return deny()
	}
	return deny()
}
