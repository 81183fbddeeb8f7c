package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dossiers/dossiers/internal/platform/auth"
	"github.com/dossiers/dossiers/internal/platform/collection"
	"github.com/dossiers/dossiers/internal/platform/i18n"
	"github.com/dossiers/dossiers/pkg/pagination"
)

type Handler struct {
	svc           *Service
	defaultLocale string
}

func NewHandler(svc *Service, defaultLocale string) *Handler {
	if !i18n.IsSupported(defaultLocale) {
		defaultLocale = i18n.Fallback
	}
	return &Handler{svc: svc, defaultLocale: defaultLocale}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleRegistrar))
	readGroup.GET("/collections/patients", h.DescribeCollection)
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/patients/by-patient-id/:patientId", h.GetPatientByPatientID)
	readGroup.GET("/patients/:id", h.GetPatient)
	readGroup.GET("/patients/:id/labels", h.GetLabels)
	readGroup.POST("/patients/labels", h.FormLabels)
	readGroup.GET("/patients/:id/prescription", h.DownloadPrescription)
	readGroup.POST("/patients/prescription", h.DownloadFormPrescription)

	// Nurses record care entries, so they write too.
	writeGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleRegistrar))
	writeGroup.POST("/patients", h.CreatePatient)
	writeGroup.PUT("/patients/:id", h.UpdatePatient)
	writeGroup.PATCH("/patients/:id", h.PatchPatient)

	deleteGroup := api.Group("", auth.RequireRole(auth.RoleRegistrar))
	deleteGroup.DELETE("/patients/:id", h.DeletePatient)
}

func (h *Handler) DescribeCollection(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Schema().Describe(h.locale(c)))
}

func (h *Handler) CreatePatient(c echo.Context) error {
	doc, err := bindDocument(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Create(c.Request().Context(), doc)
	if err != nil {
		return h.httpError(c, err)
	}
	setETag(c, p)
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.httpError(c, err)
	}
	setETag(c, p)
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPatientByPatientID(c echo.Context) error {
	p, err := h.svc.GetByPatientID(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return h.httpError(c, err)
	}
	setETag(c, p)
	return c.JSON(http.StatusOK, p)
}

// ListPatients lists patients, filtered by the name and patientId query
// parameters when given.
func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := SearchParams{
		Name:      strings.TrimSpace(c.QueryParam("name")),
		PatientID: strings.TrimSpace(c.QueryParam("patientId")),
	}
	patients, total, err := h.svc.Search(c.Request().Context(), params, c.QueryParam("sort"), pg.Limit, pg.Offset)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	return h.save(c, h.svc.Update)
}

func (h *Handler) PatchPatient(c echo.Context) error {
	return h.save(c, h.svc.Patch)
}

type saveFunc func(ctx context.Context, id uuid.UUID, doc map[string]any, version int) (*Patient, error)

func (h *Handler) save(c echo.Context, fn saveFunc) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	doc, err := bindDocument(c)
	if err != nil {
		return err
	}
	version, err := requestVersion(c, doc)
	if err != nil {
		return err
	}
	p, err := fn(c.Request().Context(), id, doc, version)
	if err != nil {
		return h.httpError(c, err)
	}
	setETag(c, p)
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return h.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetLabels(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	labels, err := h.svc.Labels(c.Request().Context(), id, h.locale(c))
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, labels)
}

// FormLabels labels the rows of the form state in the request body.
func (h *Handler) FormLabels(c echo.Context) error {
	doc, err := bindDocument(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.svc.FormLabels(doc, h.locale(c)))
}

// DownloadPrescription exports the stored treatment named by the path
// query parameter, e.g. ?path=treatments.0.downloadPrescription.
func (h *Handler) DownloadPrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	f, err := h.svc.Prescription(c.Request().Context(), id, c.QueryParam("path"), h.locale(c))
	if err != nil {
		return h.httpError(c, err)
	}
	return sendFile(c, f)
}

// FormPrescriptionRequest carries unsaved form state and the path of the
// export button that was pressed.
type FormPrescriptionRequest struct {
	Path string         `json:"path"`
	Data map[string]any `json:"data"`
}

func (h *Handler) DownloadFormPrescription(c echo.Context) error {
	var req FormPrescriptionRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	f, err := h.svc.PrescriptionFromForm(c.Request().Context(), req.Path, req.Data, h.locale(c))
	if err != nil {
		return h.httpError(c, err)
	}
	return sendFile(c, f)
}

func sendFile(c echo.Context, f *PrescriptionFile) error {
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": f.Filename}))
	return c.Blob(http.StatusOK, "application/pdf", f.Data)
}

// locale picks the response locale: an explicit ?locale= wins over
// Accept-Language.
func (h *Handler) locale(c echo.Context) string {
	if l := c.QueryParam("locale"); i18n.IsSupported(l) {
		return l
	}
	return i18n.Negotiate(c.Request().Header.Get("Accept-Language"), h.defaultLocale)
}

// ValidationResponse is the body of a 400 caused by invalid field values.
type ValidationResponse struct {
	Message string                  `json:"message"`
	Errors  []collection.FieldError `json:"errors"`
}

func (h *Handler) httpError(c echo.Context, err error) error {
	var verr *collection.ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, ValidationResponse{
			Message: "validation failed",
			Errors:  verr.Errors,
		})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrDuplicatePatientID):
		return echo.NewHTTPError(http.StatusConflict, "patientId must be unique")
	case errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrPathMissing), errors.Is(err, ErrPathMalformed):
		return echo.NewHTTPError(http.StatusBadRequest, ExportMessage(err, h.locale(c)))
	case errors.Is(err, ErrTreatmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ExportMessage(err, h.locale(c)))
	case errors.Is(err, ErrRenderFailed):
		return echo.NewHTTPError(http.StatusInternalServerError, ExportMessage(err, h.locale(c))).SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// bindDocument decodes a JSON object body into the document form the
// collection runtime works on.
func bindDocument(c echo.Context) (map[string]any, error) {
	var doc map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "request body is empty")
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
	}
	if doc == nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
	}
	return doc, nil
}

// requestVersion reads the expected version from If-Match, falling back to
// the versionId of the body. Zero means the caller did not ask for a check.
func requestVersion(c echo.Context, doc map[string]any) (int, error) {
	if tag := c.Request().Header.Get("If-Match"); tag != "" && tag != "*" {
		v, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(tag, "W/"), `"`))
		if err != nil {
			return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid If-Match header")
		}
		return v, nil
	}
	if f, ok := collection.ToFloat(doc["versionId"]); ok {
		return int(f), nil
	}
	return 0, nil
}

func setETag(c echo.Context, p *Patient) {
	c.Response().Header().Set("ETag", fmt.Sprintf(`W/"%d"`, p.VersionID))
}
