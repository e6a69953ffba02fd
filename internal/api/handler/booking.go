package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dimahwang88/force-sub-app/internal/application"
	"github.com/dimahwang88/force-sub-app/internal/domain/booking"
	"github.com/dimahwang88/force-sub-app/internal/domain/class"
)

type BookingHandler struct {
	service BookingServiceInterface
}

func NewBookingHandler(s BookingServiceInterface) *BookingHandler {
	return &BookingHandler{service: s}
}

type CreateBookingRequest struct {
	ClassID string `json:"class_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
}

type BookingResponse struct {
	ID                   string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UserID               string    `json:"user_id" example:"user-123"`
	ClassID              string    `json:"class_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	ClassName            string    `json:"class_name" example:"Brazilian Jiu-Jitsu Fundamentals"`
	Instructor           string    `json:"instructor" example:"Marcus Silva"`
	ClassStartAt         time.Time `json:"class_start_at"`
	ClassDurationMinutes int       `json:"class_duration_minutes" example:"60"`
	ClassLevel           string    `json:"class_level" example:"beginner"`
	Location             string    `json:"location" example:"Mat Room 1"`
	Status               string    `json:"status" example:"confirmed"`
	BookedAt             time.Time `json:"booked_at"`
}

type UserBookingsResponse struct {
	Upcoming []BookingResponse `json:"upcoming"`
	Past     []BookingResponse `json:"past"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID: b.ID, UserID: b.UserID, ClassID: b.ClassID,
		ClassName: b.ClassName, Instructor: b.Instructor,
		ClassStartAt:         b.ClassStartAt,
		ClassDurationMinutes: b.ClassDurationMinutes,
		ClassLevel:           b.ClassLevel, Location: b.Location,
		Status: string(b.Status), BookedAt: b.BookedAt,
	}
}

func toBookingResponses(bookings []*booking.Booking) []BookingResponse {
	resp := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = toBookingResponse(b)
	}
	return resp
}

// Create godoc
// @Summary クラスを予約
// @Description 空きがあればクラスを予約します（定員・二重予約チェックは原子的に実行）
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body CreateBookingRequest true "予約情報"
// @Success 201 {object} BookingResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string "クラスが存在しない"
// @Failure 409 {object} map[string]string "満席または予約済み"
// @Router /bookings [post]
func (h *BookingHandler) Create(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	b, err := h.service.Reserve(c.Request().Context(), application.ReserveInput{
		ClassID: req.ClassID,
		UserID:  userID,
	})
	if err != nil {
		switch {
		case errors.Is(err, class.ErrClassFull), errors.Is(err, booking.ErrAlreadyBooked):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, class.ErrClassNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, booking.ErrUserIDRequired), errors.Is(err, booking.ErrClassIDRequired):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// GetByID godoc
// @Summary 予約を取得
// @Description 指定IDの予約を取得します
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} map[string]string
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetByID(c echo.Context) error {
	id := c.Param("id")
	b, err := h.service.GetBooking(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// GetUserBookings godoc
// @Summary ユーザーの予約一覧を取得
// @Description 確定予約をクラス開始時刻順に「これから」と「過去」に分けて返します
// @Tags bookings
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Success 200 {object} UserBookingsResponse
// @Failure 401 {object} map[string]string
// @Router /bookings [get]
func (h *BookingHandler) GetUserBookings(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	upcoming, past, err := h.service.ListUserBookings(c.Request().Context(), userID, time.Now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, UserBookingsResponse{
		Upcoming: toBookingResponses(upcoming),
		Past:     toBookingResponses(past),
	})
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 予約をキャンセルし、クラスの空きを1つ戻します
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 400 {object} map[string]string "既にキャンセル済み"
// @Failure 404 {object} map[string]string
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c echo.Context) error {
	id := c.Param("id")
	b, err := h.service.Cancel(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrBookingNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, booking.ErrBookingAlreadyCancelled):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}
