package handler

import (
	"context"
	"time"

	"github.com/dimahwang88/force-sub-app/internal/application"
	"github.com/dimahwang88/force-sub-app/internal/domain/booking"
	"github.com/dimahwang88/force-sub-app/internal/domain/class"
)

// ClassServiceInterface はクラスサービスのインターフェース
type ClassServiceInterface interface {
	CreateClass(ctx context.Context, input application.CreateClassInput) (*class.GymClass, error)
	GetClass(ctx context.Context, id string) (*class.GymClass, error)
	ListClassesByDate(ctx context.Context, date time.Time) ([]*class.GymClass, error)
	ListClasses(ctx context.Context, limit, offset int) ([]*class.GymClass, error)
	UpdateClass(ctx context.Context, input application.UpdateClassInput) (*class.GymClass, error)
	CountAvailableSpots(ctx context.Context, classID string) (int, error)
}

// BookingServiceInterface は予約サービスのインターフェース
type BookingServiceInterface interface {
	Reserve(ctx context.Context, input application.ReserveInput) (*booking.Booking, error)
	Cancel(ctx context.Context, bookingID string) (*booking.Booking, error)
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	FindConfirmedBooking(ctx context.Context, userID, classID string) (*booking.Booking, error)
	ListUserBookings(ctx context.Context, userID string, now time.Time) (upcoming, past []*booking.Booking, err error)
	ReconcileCapacity(ctx context.Context) (int64, error)
}
