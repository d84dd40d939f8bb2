package csvimport

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Handler provides the NAMASTE import endpoints.
type Handler struct {
	importer *Importer
}

func NewHandler(importer *Importer) *Handler {
	return &Handler{importer: importer}
}

// RegisterRoutes registers import routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/import")
	g.POST("/csv", h.ImportCSV)
	g.POST("/validate", h.ValidateCSV)
	g.POST("/xlsx", h.ImportXLSX)
	g.GET("/template", h.Template)
}

// ImportCSV handles POST /api/v1/import/csv. Records are stored only when
// every row is valid; otherwise the result is returned with 400.
func (h *Handler) ImportCSV(c echo.Context) error {
	content, err := readUpload(c)
	if err != nil {
		return err
	}
	res, err := h.importer.ImportCSV(c.Request().Context(), content, false)
	return respond(c, res, err)
}

// ValidateCSV handles POST /api/v1/import/validate. Nothing is stored.
func (h *Handler) ValidateCSV(c echo.Context) error {
	content, err := readUpload(c)
	if err != nil {
		return err
	}
	res, err := h.importer.ImportCSV(c.Request().Context(), content, true)
	if err != nil {
		return parseError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// ImportXLSX handles POST /api/v1/import/xlsx
func (h *Handler) ImportXLSX(c echo.Context) error {
	content, err := readUpload(c)
	if err != nil {
		return err
	}
	res, err := h.importer.ImportXLSX(c.Request().Context(), content, false)
	return respond(c, res, err)
}

// Template handles GET /api/v1/import/template[?format=xlsx]
func (h *Handler) Template(c echo.Context) error {
	if c.QueryParam("format") == "xlsx" {
		data, err := GenerateTemplateXLSX()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="namaste_template.xlsx"`)
		return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="namaste_template.csv"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", GenerateTemplate())
}

func respond(c echo.Context, res *ImportResult, err error) error {
	if err != nil {
		if res != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return parseError(err)
	}
	if !res.Success {
		return c.JSON(http.StatusBadRequest, res)
	}
	return c.JSON(http.StatusOK, res)
}

func parseError(err error) error {
	if errors.Is(err, ErrEmptyFile) || errors.Is(err, ErrNoDataRows) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, "malformed file: "+err.Error())
}

// readUpload returns the "file" field of a multipart upload and the raw
// request body for any other content type.
func readUpload(c echo.Context) ([]byte, error) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "failed to open uploaded file")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "failed to read uploaded file")
		}
		return data, nil
	}
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(data) == 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	return data, nil
}
