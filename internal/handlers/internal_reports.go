package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// ReportHandlers serves read-only order snapshots to internal reporting jobs. The /internal
// group is expected to carry the OIDC service-token guard.
type ReportHandlers struct {
	reports services.ReportService
}

// NewReportHandlers constructs internal report handlers.
func NewReportHandlers(reports services.ReportService) *ReportHandlers {
	return &ReportHandlers{reports: reports}
}

// Routes registers /internal/reports endpoints.
func (h *ReportHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/reports/orders", h.orderSnapshots)
	r.Post("/reports/orders:export", h.exportOrders)
}

type snapshotListResponse struct {
	Items []orderSnapshotPayload `json:"items"`
	Count int                    `json:"count"`
}

type reportExportResponse struct {
	Location  string `json:"location"`
	Rows      int    `json:"rows"`
	CreatedAt string `json:"created_at"`
}

func (h *ReportHandlers) orderSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		writeUnavailable(ctx, w, "report")
		return
	}
	filter, ok := parseReportFilter(w, r)
	if !ok {
		return
	}

	snapshots, err := h.reports.OrderSnapshots(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := snapshotListResponse{Items: make([]orderSnapshotPayload, 0, len(snapshots)), Count: len(snapshots)}
	for _, snapshot := range snapshots {
		resp.Items = append(resp.Items, buildSnapshotPayload(snapshot))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *ReportHandlers) exportOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		writeUnavailable(ctx, w, "report")
		return
	}
	filter, ok := parseReportFilter(w, r)
	if !ok {
		return
	}

	export, err := h.reports.ExportOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, reportExportResponse{
		Location:  export.Location,
		Rows:      export.Rows,
		CreatedAt: formatTime(export.CreatedAt),
	})
}

func parseReportFilter(w http.ResponseWriter, r *http.Request) (services.ReportFilter, bool) {
	ctx := r.Context()
	query := r.URL.Query()
	from, to, err := parseDateRange(query.Get("from"), query.Get("to"))
	if err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return services.ReportFilter{}, false
	}
	if from == nil || to == nil {
		writeInvalidRequest(ctx, w, "from and to are required")
		return services.ReportFilter{}, false
	}
	statuses, err := parseOrderStatuses(query["status"])
	if err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return services.ReportFilter{}, false
	}
	return services.ReportFilter{From: *from, To: *to, Statuses: statuses}, true
}
