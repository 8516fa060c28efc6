package api

import (
	"net/http"

	"github.com/hackgods/clinic-scheduling/internal/access"
)

// Action names one operation on a resource. Policy documents use the same names.
type Action string

const (
	ActionList             Action = "list"
	ActionCreate           Action = "create"
	ActionRetrieve         Action = "retrieve"
	ActionUpdate           Action = "update"
	ActionPartialUpdate    Action = "partial_update"
	ActionDestroy          Action = "destroy"
	ActionCancel           Action = "cancel"
	ActionComplete         Action = "complete"
	ActionMarkNoShow       Action = "mark_no_show"
	ActionCheckConflicts   Action = "check_conflicts"
	ActionPreviewConflicts Action = "preview_conflicts"
	ActionUpcoming         Action = "upcoming"
	ActionByProvider       Action = "by_provider"
	ActionByPatient        Action = "by_patient"
)

// actionHandler does the work for one action and reports failures as errors;
// the resource turns them into responses.
type actionHandler func(w http.ResponseWriter, r *http.Request) error

// Authorizer is satisfied by *access.Policy.
type Authorizer interface {
	Authorize(principal access.Principal, resource, action string) error
}

type resource struct {
	name     string
	policy   Authorizer
	handlers map[Action]actionHandler
	errs     errorWriter
}

// dispatch looks the handler up when the request arrives and authorizes the
// caller before running it.
func (res *resource) dispatch(action Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := res.handlers[action]
		if !ok {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "This action is not available.")
			return
		}

		principal := access.PrincipalFromContext(r.Context())
		if err := res.policy.Authorize(principal, res.name, string(action)); err != nil {
			res.errs.write(w, r, err)
			return
		}

		if err := h(w, r); err != nil {
			res.errs.write(w, r, err)
		}
	}
}
