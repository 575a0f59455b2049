package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"buildingmap/internal/engine"
	"buildingmap/internal/models"
	"buildingmap/internal/spatial"
)

const (
	defaultPageSize = 10000
	maxPageSize     = 100000
)

type Handler struct {
	loader    *engine.Loader
	rowFields []string
}

func NewHandler(loader *engine.Loader, rowFields []string) *Handler {
	return &Handler{loader: loader, rowFields: rowFields}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/status", h.GetStatus)
	api.POST("/load", h.PostLoad)
	api.POST("/reload", h.PostReload)
	api.GET("/buildings/:index", h.GetBuilding)
	api.GET("/buildings/:index/geometry", h.GetGeometry)
	api.GET("/attributes", h.GetAttributes)
	api.GET("/viewport", h.GetViewport)
	api.GET("/summary", h.GetSummary)
}

// --- HELPERS ---

func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *Handler) dataset() (*engine.Dataset, error) {
	ds, ok := h.loader.Dataset()
	if !ok {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "dataset is "+h.loader.Current().State.String())
	}
	return ds, nil
}

func rowIndex(c echo.Context, ds *engine.Dataset) (int, error) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "index must be an integer")
	}
	if err := ds.Accessor.CheckIndex(i); err != nil {
		return 0, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return i, nil
}

func statusOf(s engine.Snapshot) models.Status {
	st := models.Status{State: s.State.String(), LoadID: s.LoadID}
	if !s.StartedAt.IsZero() {
		started := s.StartedAt
		st.StartedAt = &started
	}
	if s.Err != nil {
		st.Error = s.Err.Error()
	}
	if ds := s.Dataset; ds != nil {
		loaded := ds.LoadedAt
		st.LoadedAt = &loaded
		st.Rows = ds.NumRows()
		st.Fields = ds.Table.FieldNames()
		st.Format = string(ds.Table.Format())
		st.Container = ds.Table.Container()
		st.Fingerprint = strconv.FormatUint(ds.Table.Fingerprint(), 16)
		st.Extrusion = ds.Accessor.HasElevations()
		st.Styling = ds.Accessor.HasCategories()
	}
	return st
}

func boundsOf(b spatial.Bounds) models.Bounds {
	return models.Bounds{MinLon: b.MinLon, MinLat: b.MinLat, MaxLon: b.MaxLon, MaxLat: b.MaxLat}
}

// --- HANDLERS ---

func (h *Handler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, statusOf(h.loader.Current()))
}

// starts the initial load; no-op once a load has been attempted
func (h *Handler) PostLoad(c echo.Context) error {
	snap := h.loader.Start(context.WithoutCancel(c.Request().Context()))
	return c.JSON(http.StatusAccepted, statusOf(snap))
}

// explicit operator reload, runs in the background
func (h *Handler) PostReload(c echo.Context) error {
	if h.loader.Current().State == engine.Unloaded {
		return h.PostLoad(c)
	}
	snap := h.loader.StartReload(context.WithoutCancel(c.Request().Context()))
	return c.JSON(http.StatusAccepted, statusOf(snap))
}

func (h *Handler) GetBuilding(c echo.Context) error {
	ds, err := h.dataset()
	if err != nil {
		return err
	}
	i, err := rowIndex(c, ds)
	if err != nil {
		return err
	}

	fields, err := ds.Row(i, h.rowFields)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.Building{
		Index:     i,
		Elevation: ds.Accessor.ElevationAt(i),
		FillColor: ds.Accessor.StyleAt(i).RGBA(),
		Fields:    fields,
	})
}

func (h *Handler) GetGeometry(c echo.Context) error {
	ds, err := h.dataset()
	if err != nil {
		return err
	}
	i, err := rowIndex(c, ds)
	if err != nil {
		return err
	}

	geom, err := ds.Geometry(i)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, models.Geometry{Index: i, Field: ds.GeometryField(), Geometry: geom})
}

// paged elevations and fill colors, in row order, for bulk upload to a renderer
func (h *Handler) GetAttributes(c echo.Context) error {
	ds, err := h.dataset()
	if err != nil {
		return err
	}
	total := ds.NumRows()
	limit, offset := getPaginationParams(c, defaultPageSize)

	page := models.AttributePage{Offset: offset, Limit: limit, Total: total}
	if offset >= total {
		page.Elevations = []float64{}
		page.FillColors = [][4]uint8{}
		return c.JSON(http.StatusOK, page)
	}

	end := offset + limit
	if end > total {
		end = total
	}
	page.Elevations = make([]float64, 0, end-offset)
	page.FillColors = make([][4]uint8, 0, end-offset)
	for i := offset; i < end; i++ {
		page.Elevations = append(page.Elevations, ds.Accessor.ElevationAt(i))
		page.FillColors = append(page.FillColors, ds.Accessor.StyleAt(i).RGBA())
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) GetViewport(c echo.Context) error {
	ds, err := h.dataset()
	if err != nil {
		return err
	}
	if ds.Index == nil {
		return echo.NewHTTPError(http.StatusNotFound, "dataset has no geometry index")
	}

	var b spatial.Bounds
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"min_lon", &b.MinLon}, {"min_lat", &b.MinLat},
		{"max_lon", &b.MaxLon}, {"max_lat", &b.MaxLat},
	} {
		v, err := strconv.ParseFloat(c.QueryParam(p.name), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return echo.NewHTTPError(http.StatusBadRequest, p.name+" must be a number")
		}
		*p.dst = v
	}
	if b.IsEmpty() {
		return echo.NewHTTPError(http.StatusBadRequest, "min bounds exceed max bounds")
	}

	rows := ds.Index.Query(b)
	return c.JSON(http.StatusOK, models.Viewport{Bounds: boundsOf(b), Indices: rows, Total: len(rows)})
}

func (h *Handler) GetSummary(c echo.Context) error {
	ds, err := h.dataset()
	if err != nil {
		return err
	}

	s := ds.Summary()
	out := models.Summary{TotalBuildings: s.TotalBuildings, Categories: make([]models.CategoryStat, 0, len(s.Categories))}
	for _, cs := range s.Categories {
		out.Categories = append(out.Categories, models.CategoryStat{
			Category:      cs.Category,
			Buildings:     cs.Buildings,
			MeanElevation: cs.MeanElevation,
			FillColor:     cs.Style.RGBA(),
		})
	}
	if ds.Index != nil && !ds.Index.Extent().IsEmpty() {
		ext := boundsOf(ds.Index.Extent())
		out.Extent = &ext
	}
	return c.JSON(http.StatusOK, out)
}

// errorHandler maps engine errors that escape a handler onto HTTP codes.
func errorHandler(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		var oor *engine.IndexOutOfRangeError
		if errors.As(err, &oor) {
			return echo.NewHTTPError(http.StatusNotFound, oor.Error())
		}
		return err
	}
}
