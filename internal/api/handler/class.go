package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dimahwang88/force-sub-app/internal/application"
	"github.com/dimahwang88/force-sub-app/internal/domain/class"
)

type ClassHandler struct {
	service ClassServiceInterface
}

func NewClassHandler(s ClassServiceInterface) *ClassHandler {
	return &ClassHandler{service: s}
}

type CreateClassRequest struct {
	Name            string    `json:"name" validate:"required" example:"Brazilian Jiu-Jitsu Fundamentals"`
	Instructor      string    `json:"instructor" validate:"required" example:"Marcus Silva"`
	Description     string    `json:"description" example:"基本のガードとパスガードを学ぶクラス"`
	Location        string    `json:"location" example:"Mat Room 1"`
	Level           string    `json:"level" validate:"required" example:"beginner"`
	StartAt         time.Time `json:"start_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0" example:"60"`
	TotalSpots      int       `json:"total_spots" validate:"required,gt=0" example:"20"`
}

type UpdateClassRequest struct {
	Name            string    `json:"name" validate:"required"`
	Instructor      string    `json:"instructor" validate:"required"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	Level           string    `json:"level" validate:"required"`
	StartAt         time.Time `json:"start_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
	Version         int       `json:"version" validate:"required,gt=0"`
}

type ClassResponse struct {
	ID              string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name            string    `json:"name" example:"Brazilian Jiu-Jitsu Fundamentals"`
	Instructor      string    `json:"instructor" example:"Marcus Silva"`
	Description     string    `json:"description"`
	Location        string    `json:"location" example:"Mat Room 1"`
	Level           string    `json:"level" example:"beginner"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	DurationMinutes int       `json:"duration_minutes" example:"60"`
	TotalSpots      int       `json:"total_spots" example:"20"`
	AvailableSpots  int       `json:"available_spots" example:"12"`
	IsFull          bool      `json:"is_full" example:"false"`
	Version         int       `json:"version" example:"1"`
}

type SpotsResponse struct {
	ClassID        string `json:"class_id"`
	AvailableSpots int    `json:"available_spots" example:"12"`
}

func toClassResponse(c *class.GymClass) ClassResponse {
	return ClassResponse{
		ID:              c.ID,
		Name:            c.Name,
		Instructor:      c.Instructor,
		Description:     c.Description,
		Location:        c.Location,
		Level:           string(c.Level),
		StartAt:         c.StartAt,
		EndAt:           c.EndAt(),
		DurationMinutes: c.DurationMinutes,
		TotalSpots:      c.TotalSpots,
		AvailableSpots:  c.AvailableSpots(),
		IsFull:          c.IsFull(),
		Version:         c.Version,
	}
}

// Create godoc
// @Summary クラスを作成
// @Description 新しいクラスをスケジュールに登録します
// @Tags classes
// @Accept json
// @Produce json
// @Param request body CreateClassRequest true "クラス情報"
// @Success 201 {object} ClassResponse
// @Failure 400 {object} map[string]string
// @Router /classes [post]
func (h *ClassHandler) Create(c echo.Context) error {
	var req CreateClassRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	created, err := h.service.CreateClass(c.Request().Context(), application.CreateClassInput{
		Name:            req.Name,
		Instructor:      req.Instructor,
		Description:     req.Description,
		Location:        req.Location,
		Level:           req.Level,
		StartAt:         req.StartAt,
		DurationMinutes: req.DurationMinutes,
		TotalSpots:      req.TotalSpots,
	})
	if err != nil {
		if errors.Is(err, class.ErrInvalidLevel) || errors.Is(err, class.ErrClassNameRequired) ||
			errors.Is(err, class.ErrInstructorRequired) || errors.Is(err, class.ErrInvalidDuration) ||
			errors.Is(err, class.ErrInvalidTotalSpots) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, toClassResponse(created))
}

// GetByID godoc
// @Summary クラスを取得
// @Description 指定IDのクラスを取得します
// @Tags classes
// @Produce json
// @Param id path string true "クラスID"
// @Success 200 {object} ClassResponse
// @Failure 404 {object} map[string]string
// @Router /classes/{id} [get]
func (h *ClassHandler) GetByID(c echo.Context) error {
	id := c.Param("id")
	cl, err := h.service.GetClass(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, class.ErrClassNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toClassResponse(cl))
}

// List godoc
// @Summary クラス一覧を取得
// @Description クラス一覧を開始時刻順に取得します。date指定で日別表示
// @Tags classes
// @Produce json
// @Param date query string false "日付 (YYYY-MM-DD)"
// @Param limit query int false "取得件数 (デフォルト: 20)"
// @Param offset query int false "オフセット"
// @Success 200 {array} ClassResponse
// @Failure 400 {object} map[string]string
// @Router /classes [get]
func (h *ClassHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		classes []*class.GymClass
		err     error
	)

	if dateStr := c.QueryParam("date"); dateStr != "" {
		date, parseErr := time.Parse("2006-01-02", dateStr)
		if parseErr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "日付の形式が不正です (YYYY-MM-DD)")
		}
		classes, err = h.service.ListClassesByDate(ctx, date)
	} else {
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))
		classes, err = h.service.ListClasses(ctx, limit, offset)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := make([]ClassResponse, len(classes))
	for i, cl := range classes {
		resp[i] = toClassResponse(cl)
	}
	return c.JSON(http.StatusOK, resp)
}

// Update godoc
// @Summary クラス情報を更新
// @Description クラスのメタデータを更新します（定員・予約数は対象外）
// @Tags classes
// @Accept json
// @Produce json
// @Param id path string true "クラスID"
// @Param request body UpdateClassRequest true "更新情報"
// @Success 200 {object} ClassResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "バージョン競合"
// @Router /classes/{id} [put]
func (h *ClassHandler) Update(c echo.Context) error {
	id := c.Param("id")
	var req UpdateClassRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	updated, err := h.service.UpdateClass(c.Request().Context(), application.UpdateClassInput{
		ID:              id,
		Name:            req.Name,
		Instructor:      req.Instructor,
		Description:     req.Description,
		Location:        req.Location,
		Level:           req.Level,
		StartAt:         req.StartAt,
		DurationMinutes: req.DurationMinutes,
		Version:         req.Version,
	})
	if err != nil {
		switch {
		case errors.Is(err, class.ErrClassNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, class.ErrOptimisticLockConflict):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, class.ErrInvalidLevel), errors.Is(err, class.ErrClassNameRequired),
			errors.Is(err, class.ErrInstructorRequired), errors.Is(err, class.ErrInvalidDuration):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, toClassResponse(updated))
}

// GetAvailableSpots godoc
// @Summary 空き数を取得
// @Description クラスの現在の空き数を取得します（キャッシュあり）
// @Tags classes
// @Produce json
// @Param id path string true "クラスID"
// @Success 200 {object} SpotsResponse
// @Failure 404 {object} map[string]string
// @Router /classes/{id}/spots [get]
func (h *ClassHandler) GetAvailableSpots(c echo.Context) error {
	id := c.Param("id")
	spots, err := h.service.CountAvailableSpots(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, class.ErrClassNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, SpotsResponse{ClassID: id, AvailableSpots: spots})
}
