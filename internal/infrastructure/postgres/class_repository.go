package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dimahwang88/force-sub-app/internal/domain/class"
	"github.com/dimahwang88/force-sub-app/internal/domain/transaction"
)

type classRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	Instructor      string    `db:"instructor"`
	Description     string    `db:"description"`
	Location        string    `db:"location"`
	Level           string    `db:"level"`
	StartAt         time.Time `db:"start_at"`
	DurationMinutes int       `db:"duration_minutes"`
	TotalSpots      int       `db:"total_spots"`
	BookedCount     int       `db:"booked_count"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
	Version         int       `db:"version"`
}

func (r *classRow) toEntity() *class.GymClass {
	return &class.GymClass{
		ID: r.ID, Name: r.Name, Instructor: r.Instructor,
		Description: r.Description, Location: r.Location,
		Level: class.Level(r.Level), StartAt: r.StartAt,
		DurationMinutes: r.DurationMinutes,
		TotalSpots:      r.TotalSpots, BookedCount: r.BookedCount,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, Version: r.Version,
	}
}

const classColumns = `id, name, instructor, description, location, level, start_at, duration_minutes, total_spots, booked_count, created_at, updated_at, version`

type ClassRepository struct{ db *sqlx.DB }

func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) Create(ctx context.Context, c *class.GymClass) error {
	query := `INSERT INTO classes (name, instructor, description, location, level, start_at, duration_minutes, total_spots, booked_count, created_at, updated_at, version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query,
		c.Name, c.Instructor, c.Description, c.Location, string(c.Level),
		c.StartAt, c.DurationMinutes, c.TotalSpots, c.BookedCount,
		c.CreatedAt, c.UpdatedAt, c.Version,
	).Scan(&c.ID); err != nil {
		return fmt.Errorf("クラス作成に失敗: %w", err)
	}
	return nil
}

func (r *ClassRepository) GetByID(ctx context.Context, id string) (*class.GymClass, error) {
	var row classRow
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, class.ErrClassNotFound
		}
		return nil, fmt.Errorf("クラス取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *ClassRepository) ListByDateRange(ctx context.Context, from, to time.Time) ([]*class.GymClass, error) {
	var rows []classRow
	query := `SELECT ` + classColumns + ` FROM classes WHERE start_at >= $1 AND start_at < $2 ORDER BY start_at`
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("クラス一覧取得に失敗: %w", err)
	}
	classes := make([]*class.GymClass, len(rows))
	for i, row := range rows {
		classes[i] = row.toEntity()
	}
	return classes, nil
}

func (r *ClassRepository) List(ctx context.Context, limit, offset int) ([]*class.GymClass, error) {
	var rows []classRow
	query := `SELECT ` + classColumns + ` FROM classes ORDER BY start_at LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("クラス一覧取得に失敗: %w", err)
	}
	classes := make([]*class.GymClass, len(rows))
	for i, row := range rows {
		classes[i] = row.toEntity()
	}
	return classes, nil
}

// Update はカタログのメタデータのみを更新する
// booked_count は予約トランザクション専用のため SET 句に含めない
func (r *ClassRepository) Update(ctx context.Context, c *class.GymClass) error {
	query := `UPDATE classes
	SET name = $1, instructor = $2, description = $3, location = $4, level = $5,
	    start_at = $6, duration_minutes = $7, updated_at = $8, version = version + 1
	WHERE id = $9 AND version = $10`
	result, err := r.db.ExecContext(ctx, query,
		c.Name, c.Instructor, c.Description, c.Location, string(c.Level),
		c.StartAt, c.DurationMinutes, time.Now(), c.ID, c.Version,
	)
	if err != nil {
		return fmt.Errorf("クラス更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// 行が存在しないのか、バージョン競合なのかを判定する
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM classes WHERE id = $1)`, c.ID); err != nil {
			return fmt.Errorf("クラス更新に失敗: %w", err)
		}
		if !exists {
			return class.ErrClassNotFound
		}
		return class.ErrOptimisticLockConflict
	}
	c.Version++
	return nil
}

// IncrementBooked は booked_count < total_spots の場合のみカウンターを進める
// 条件付き単一行UPDATEのため、同一クラスへの並行予約は行ロックで直列化され、
// 満席を超えるインクリメントは起こらない
func (r *ClassRepository) IncrementBooked(ctx context.Context, tx transaction.Tx, id string) (*class.GymClass, error) {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return nil, fmt.Errorf("不正なトランザクション型です")
	}

	var row classRow
	query := `UPDATE classes
	SET booked_count = booked_count + 1, updated_at = NOW()
	WHERE id = $1 AND booked_count < total_spots
	RETURNING ` + classColumns
	err := sqlxTx.GetContext(ctx, &row, query, id)
	if err == nil {
		return row.toEntity(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("予約数の加算に失敗: %w", err)
	}

	// 0件更新: 満席か、クラス自体が存在しないかを同一トランザクション内で判定する
	var exists bool
	if err := sqlxTx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM classes WHERE id = $1)`, id); err != nil {
		return nil, fmt.Errorf("クラス存在確認に失敗: %w", err)
	}
	if !exists {
		return nil, class.ErrClassNotFound
	}
	return nil, class.ErrClassFull
}

// DecrementBooked は booked_count > 0 の場合のみカウンターを戻す
// 0件更新は床値ガードとして扱い、エラーにしない（カウンターは負にならない）
func (r *ClassRepository) DecrementBooked(ctx context.Context, tx transaction.Tx, id string) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("不正なトランザクション型です")
	}

	query := `UPDATE classes
	SET booked_count = booked_count - 1, updated_at = NOW()
	WHERE id = $1 AND booked_count > 0`
	if _, err := sqlxTx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("予約数の減算に失敗: %w", err)
	}
	return nil
}

// RepairBookedCounts は確定予約の実数から booked_count を再計算する
// クラッシュ等でカウンターと台帳がずれた場合の修復用
func (r *ClassRepository) RepairBookedCounts(ctx context.Context) (int64, error) {
	query := `UPDATE classes c
	SET booked_count = sub.cnt, updated_at = NOW()
	FROM (
		SELECT cl.id, COUNT(b.id) AS cnt
		FROM classes cl
		LEFT JOIN bookings b ON b.class_id = cl.id AND b.status = 'confirmed'
		GROUP BY cl.id
	) sub
	WHERE c.id = sub.id AND c.booked_count <> sub.cnt`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("予約数の修復に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("予約数の修復に失敗: %w", err)
	}
	return rows, nil
}

var _ class.Repository = (*ClassRepository)(nil)
