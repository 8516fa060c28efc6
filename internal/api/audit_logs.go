package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/audit"
)

// AuditReader is satisfied by *audit.Recorder.
type AuditReader interface {
	Get(ctx context.Context, id uuid.UUID) (*audit.Entry, error)
	List(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error)
}

func auditLogHandlers(reader AuditReader) map[Action]actionHandler {
	return map[Action]actionHandler{
		ActionList: func(w http.ResponseWriter, r *http.Request) error {
			q := r.URL.Query()
			e := &requestError{}

			f := audit.Filter{
				Action:    audit.Action(q.Get("action")),
				ModelName: q.Get("model_name"),
				Limit:     intParam(e, q.Get("limit"), "limit", 20),
				Offset:    intParam(e, q.Get("offset"), "offset", 0),
			}
			if raw := q.Get("user"); raw != "" {
				f.UserID = optionalUUID(e, "user", &raw)
			}
			if err := e.orNil(); err != nil {
				return err
			}

			entries, total, err := reader.List(r.Context(), f)
			if err != nil {
				return err
			}

			results := make([]AuditEntryResponse, 0, len(entries))
			for i := range entries {
				results = append(results, toAuditEntryResponse(&entries[i]))
			}
			writeJSON(w, http.StatusOK, ListResponse[AuditEntryResponse]{
				Results: results,
				Count:   total,
				Limit:   f.Limit,
				Offset:  f.Offset,
			})
			return nil
		},

		ActionRetrieve: func(w http.ResponseWriter, r *http.Request) error {
			id, err := pathUUID(r, "id")
			if err != nil {
				return err
			}
			entry, err := reader.Get(r.Context(), id)
			if err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, toAuditEntryResponse(entry))
			return nil
		},
	}
}
