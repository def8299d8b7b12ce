package adminapi

import (
	"context"
	"encoding/hex"
	"net/http"

	"github.com/coregate/iscsid/internal/iscsi/connection"
)

// TargetView is the subset of internal/iscsi/target.Server the admin API
// consumes. Defined here, not in the target package, so adminapi depends
// only on the interface and target need not know adminapi exists.
type TargetView interface {
	ActiveConnections() uint32
	IsShuttingDown() bool
	Sessions() []connection.SessionSnapshot
}

// Catalog is the subset of internal/iscsi/registry.Registry the admin API
// consumes: the list of configured target IQNs.
type Catalog interface {
	Targets(ctx context.Context) ([]string, error)
}

type healthHandler struct {
	target TargetView
}

func (h *healthHandler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.target == nil {
		unavailable(w, "target not initialized")
		return
	}
	if h.target.IsShuttingDown() {
		unavailable(w, "target is shutting down")
		return
	}
	ok(w, map[string]interface{}{
		"service":            "iscsid",
		"active_connections": h.target.ActiveConnections(),
	})
}

type sessionsHandler struct {
	target TargetView
}

// sessionView is the JSON-facing shape of a connection.SessionSnapshot;
// ISID is hex-encoded since it has no natural string form.
type sessionView struct {
	ConnID        string `json:"conn_id"`
	RemoteAddr    string `json:"remote_addr"`
	InitiatorName string `json:"initiator_name,omitempty"`
	TargetName    string `json:"target_name,omitempty"`
	ISID          string `json:"isid,omitempty"`
	TSIH          uint16 `json:"tsih,omitempty"`
	Stage         string `json:"stage"`
}

func toSessionView(s connection.SessionSnapshot) sessionView {
	isid := ""
	if s.InitiatorName != "" {
		isid = hex.EncodeToString(s.ISID[:])
	}
	return sessionView{
		ConnID:        s.ConnID,
		RemoteAddr:    s.RemoteAddr,
		InitiatorName: s.InitiatorName,
		TargetName:    s.TargetName,
		ISID:          isid,
		TSIH:          s.TSIH,
		Stage:         s.Stage.String(),
	}
}

func (h *sessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	snapshots := h.target.Sessions()
	views := make([]sessionView, 0, len(snapshots))
	for _, s := range snapshots {
		views = append(views, toSessionView(s))
	}
	ok(w, views)
}

type targetsHandler struct {
	catalog Catalog
}

func (h *targetsHandler) list(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		ok(w, []string{})
		return
	}
	names, err := h.catalog.Targets(r.Context())
	if err != nil {
		internalError(w, "failed to list targets")
		return
	}
	ok(w, names)
}
