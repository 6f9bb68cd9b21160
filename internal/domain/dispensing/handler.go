package dispensing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rebekz/simRS-sub002/internal/domain/prescription"
	"github.com/rebekz/simRS-sub002/internal/platform/auth"
	"github.com/rebekz/simRS-sub002/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	tech := api.Group("/dispensing", auth.RequireRole("pharmacist", "technician"))
	tech.POST("", h.Admit)
	tech.GET("", h.List)
	tech.GET("/queue", h.Queue)
	tech.GET("/:id", h.Get)
	tech.POST("/:id/claim", h.Claim)
	tech.POST("/:id/release", h.Release)
	tech.POST("/:id/hold", h.Hold)
	tech.POST("/:id/cancel", h.Cancel)
	tech.POST("/:id/scans", h.RecordScan)
	tech.GET("/:id/scans", h.ListScans)
	tech.POST("/:id/ready", h.Ready)
	tech.POST("/:id/finalize", h.Finalize)

	// The second check and its reopen are pharmacist-only.
	rph := api.Group("/dispensing", auth.RequireRole("pharmacist"))
	rph.POST("/:id/verify", h.Verify)
	rph.POST("/:id/reopen", h.Reopen)
	rph.GET("/:id/verifications", h.ListVerifications)
}

// httpError maps workflow errors onto status codes: 404 unknown, 409 lost
// races and cancelled entries, 422 refused operations, 400 everything else.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, prescription.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrEntryCancelled),
		errors.Is(err, ErrOpenEntryExists),
		errors.Is(err, ErrAlreadyVerified):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrStockUnavailable),
		errors.Is(err, ErrMissingOverrideJustification),
		errors.Is(err, ErrNotYetVerified),
		errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

type admitRequest struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	Priority       Priority  `json:"priority"`
}

func (h *Handler) Admit(c echo.Context) error {
	var req admitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PrescriptionID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "prescription_id is required")
	}
	if req.Priority == "" {
		req.Priority = PriorityRoutine
	}
	entry, err := h.svc.Admit(c.Request().Context(), req.PrescriptionID, req.Priority)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) List(c echo.Context) error {
	params := pagination.FromContext(c)
	var status *Status
	if s := c.QueryParam("status"); s != "" {
		st := Status(s)
		if !st.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status filter")
		}
		status = &st
	}
	entries, total, err := h.svc.ListEntries(c.Request().Context(), status, params.Limit, params.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, params.Limit, params.Offset))
}

func (h *Handler) Queue(c echo.Context) error {
	entries, err := h.svc.Queue(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	entry, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

type claimRequest struct {
	WorkerID uuid.UUID `json:"worker_id"`
}

func (h *Handler) Claim(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	var req claimRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	workerID := req.WorkerID
	if workerID == uuid.Nil {
		// Default to the authenticated user.
		if uid, perr := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); perr == nil {
			workerID = uid
		}
	}
	if workerID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "worker_id is required")
	}
	entry, err := h.svc.Claim(c.Request().Context(), id, workerID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) Release(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	entry, err := h.svc.Release(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

type reasonRequest struct {
	ActorID uuid.UUID `json:"actor_id"`
	Reason  string    `json:"reason"`
}

func (h *Handler) Hold(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.svc.Hold(c.Request().Context(), id, req.ActorID, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.svc.Cancel(c.Request().Context(), id, req.ActorID, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) RecordScan(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	var in ScanInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.RecordScan(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ListScans(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	recs, err := h.svc.Scans(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) Verify(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	var in VerifyInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.VerifierID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "verifier_id is required")
	}
	rec, err := h.svc.Verify(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Reopen(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	entry, err := h.svc.Reopen(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) ListVerifications(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	recs, err := h.svc.Verifications(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) Ready(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	entry, err := h.svc.Ready(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

type finalizeRequest struct {
	DispenserID uuid.UUID `json:"dispenser_id"`
	IsRefill    bool      `json:"is_refill"`
}

func (h *Handler) Finalize(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	var req finalizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DispenserID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "dispenser_id is required")
	}
	entry, err := h.svc.Finalize(c.Request().Context(), id, req.DispenserID, req.IsRefill)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func entryID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}
	return id, nil
}
