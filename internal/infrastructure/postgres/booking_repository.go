package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dimahwang88/force-sub-app/internal/domain/booking"
	"github.com/dimahwang88/force-sub-app/internal/domain/transaction"
)

type bookingRow struct {
	ID                   string    `db:"id"`
	UserID               string    `db:"user_id"`
	ClassID              string    `db:"class_id"`
	ClassName            string    `db:"class_name"`
	Instructor           string    `db:"instructor"`
	ClassStartAt         time.Time `db:"class_start_at"`
	ClassDurationMinutes int       `db:"class_duration_minutes"`
	ClassLevel           string    `db:"class_level"`
	Location             string    `db:"location"`
	Status               string    `db:"status"`
	BookedAt             time.Time `db:"booked_at"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

func (r *bookingRow) toEntity() *booking.Booking {
	return &booking.Booking{
		ID: r.ID, UserID: r.UserID, ClassID: r.ClassID,
		ClassName: r.ClassName, Instructor: r.Instructor,
		ClassStartAt:         r.ClassStartAt,
		ClassDurationMinutes: r.ClassDurationMinutes,
		ClassLevel:           r.ClassLevel, Location: r.Location,
		Status: booking.Status(r.Status), BookedAt: r.BookedAt,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const bookingColumns = `id, user_id, class_id, class_name, instructor, class_start_at, class_duration_minutes, class_level, location, status, booked_at, created_at, updated_at`

type BookingRepository struct{ db *sqlx.DB }

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create は予約を挿入する
// (user_id, class_id) の確定予約に対する部分一意インデックスにより、
// 同一ユーザーの二重予約はトランザクション内で原子的に拒否される
func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("不正なトランザクション型です")
	}

	query := `INSERT INTO bookings (user_id, class_id, class_name, instructor, class_start_at, class_duration_minutes, class_level, location, status, booked_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	err := sqlxTx.QueryRowContext(ctx, query,
		b.UserID, b.ClassID, b.ClassName, b.Instructor,
		b.ClassStartAt, b.ClassDurationMinutes, b.ClassLevel, b.Location,
		string(b.Status), b.BookedAt, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return booking.ErrAlreadyBooked
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *BookingRepository) GetConfirmedByUserAndClass(ctx context.Context, userID, classID string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 AND class_id = $2 AND status = 'confirmed' LIMIT 1`
	if err := r.db.GetContext(ctx, &row, query, userID, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *BookingRepository) ListConfirmedByUser(ctx context.Context, userID string) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 AND status = 'confirmed' ORDER BY class_start_at`
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i, row := range rows {
		result[i] = row.toEntity()
	}
	return result, nil
}

// MarkCancelled は status = 'confirmed' の行のみをキャンセル状態に更新する
// 条件付きUPDATEのため、並行する重複キャンセルのうち成立するのは1回だけ
func (r *BookingRepository) MarkCancelled(ctx context.Context, tx transaction.Tx, id string) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("不正なトランザクション型です")
	}

	query := `UPDATE bookings SET status = 'cancelled', updated_at = NOW() WHERE id = $1 AND status = 'confirmed'`
	result, err := sqlxTx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("予約キャンセルに失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// 0件更新: 予約が存在しないのか、既にキャンセル済みなのかを判定する
		var status string
		if err := sqlxTx.GetContext(ctx, &status, `SELECT status FROM bookings WHERE id = $1`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return booking.ErrBookingNotFound
			}
			return fmt.Errorf("予約キャンセルに失敗: %w", err)
		}
		return booking.ErrBookingAlreadyCancelled
	}
	return nil
}

var _ booking.Repository = (*BookingRepository)(nil)
