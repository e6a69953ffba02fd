package e2e

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_HealthCheck はヘルスチェックをテスト
func TestE2E_HealthCheck(t *testing.T) {
	server := getTestServer(t)

	rec := server.Request("GET", "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	err := json.Unmarshal(rec.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp["status"])
}

// TestE2E_CompleteBookingJourney は完全な予約ジャーニーをテスト
// クラス作成 → 空き確認 → 予約 → 一覧確認 → キャンセル → 空き回復
func TestE2E_CompleteBookingJourney(t *testing.T) {
	server := getTestServer(t)

	userID := "e2e-user-yamada"
	var classID, bookingID string

	// 1. クラス作成
	t.Run("クラス作成", func(t *testing.T) {
		body := map[string]interface{}{
			"name":             "ブラジリアン柔術 基礎",
			"instructor":       "山田太郎",
			"description":      "ガードの基本を学ぶ",
			"location":         "第1マットルーム",
			"level":            "beginner",
			"start_at":         time.Now().Add(24 * time.Hour).Format(time.RFC3339),
			"duration_minutes": 60,
			"total_spots":      10,
		}
		rec := server.Request("POST", "/api/v1/classes", body, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		classID = resp["id"].(string)
		require.NotEmpty(t, classID)
		assert.Equal(t, float64(10), resp["available_spots"])
	})

	// 2. 空き数確認
	t.Run("空き数確認", func(t *testing.T) {
		rec := server.Request("GET", "/api/v1/classes/"+classID+"/spots", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, float64(10), resp["available_spots"])
	})

	// 3. 予約作成
	t.Run("予約作成", func(t *testing.T) {
		body := map[string]interface{}{"class_id": classID}
		rec := server.Request("POST", "/api/v1/bookings", body, map[string]string{"X-User-ID": userID})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		bookingID = resp["id"].(string)
		assert.Equal(t, "confirmed", resp["status"])
		assert.Equal(t, "ブラジリアン柔術 基礎", resp["class_name"])
	})

	// 4. 二重予約は拒否される
	t.Run("二重予約は409", func(t *testing.T) {
		body := map[string]interface{}{"class_id": classID}
		rec := server.Request("POST", "/api/v1/bookings", body, map[string]string{"X-User-ID": userID})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	// 5. 空き数が減っている
	t.Run("予約後の空き数", func(t *testing.T) {
		rec := server.Request("GET", "/api/v1/classes/"+classID+"/spots", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, float64(9), resp["available_spots"])
	})

	// 6. 予約一覧（これから）に含まれる
	t.Run("予約一覧", func(t *testing.T) {
		rec := server.Request("GET", "/api/v1/bookings", nil, map[string]string{"X-User-ID": userID})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Upcoming []map[string]interface{} `json:"upcoming"`
			Past     []map[string]interface{} `json:"past"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Upcoming, 1)
		assert.Empty(t, resp.Past)
		assert.Equal(t, bookingID, resp.Upcoming[0]["id"])
	})

	// 7. キャンセルで空きが戻る
	t.Run("キャンセル", func(t *testing.T) {
		rec := server.Request("POST", "/api/v1/bookings/"+bookingID+"/cancel", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "cancelled", resp["status"])

		rec = server.Request("GET", "/api/v1/classes/"+classID+"/spots", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var spots map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spots))
		assert.Equal(t, float64(10), spots["available_spots"])
	})

	// 8. 重複キャンセルは拒否される
	t.Run("重複キャンセルは400", func(t *testing.T) {
		rec := server.Request("POST", "/api/v1/bookings/"+bookingID+"/cancel", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// TestE2E_CapacityLimit は定員を超えて予約できないことをテスト
func TestE2E_CapacityLimit(t *testing.T) {
	server := getTestServer(t)

	// 定員2のクラスを作成
	body := map[string]interface{}{
		"name":             "少人数クラス",
		"instructor":       "佐藤次郎",
		"level":            "advanced",
		"start_at":         time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"duration_minutes": 90,
		"total_spots":      2,
	}
	rec := server.Request("POST", "/api/v1/classes", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	classID := created["id"].(string)

	// 3人が順番に予約。3人目は満席
	bookBody := map[string]interface{}{"class_id": classID}

	rec = server.Request("POST", "/api/v1/bookings", bookBody, map[string]string{"X-User-ID": "e2e-user-1"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = server.Request("POST", "/api/v1/bookings", bookBody, map[string]string{"X-User-ID": "e2e-user-2"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = server.Request("POST", "/api/v1/bookings", bookBody, map[string]string{"X-User-ID": "e2e-user-3"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// TestE2E_ConcurrentBookings は並行予約で定員超過が起きないことをテスト
func TestE2E_ConcurrentBookings(t *testing.T) {
	server := getTestServer(t)

	body := map[string]interface{}{
		"name":             "人気クラス",
		"instructor":       "鈴木三郎",
		"level":            "all levels",
		"start_at":         time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"duration_minutes": 60,
		"total_spots":      5,
	}
	rec := server.Request("POST", "/api/v1/classes", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	classID := created["id"].(string)

	const numUsers = 20
	var successCount int32
	var wg sync.WaitGroup
	for i := 0; i < numUsers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			uid := "e2e-concurrent-" + string(rune('a'+n))
			bookBody := map[string]interface{}{"class_id": classID}
			rec := server.Request("POST", "/api/v1/bookings", bookBody, map[string]string{"X-User-ID": uid})
			if rec.Code == http.StatusCreated {
				atomic.AddInt32(&successCount, 1)
			}
		}(i)
	}
	wg.Wait()

	// 分散ロックの競合で弾かれるリクエストもあるため、成功数は定員以下
	// 定員超過だけは決して起きない
	assert.LessOrEqual(t, successCount, int32(5))
	assert.Greater(t, successCount, int32(0))

	rec = server.Request("GET", "/api/v1/classes/"+classID+"/spots", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var spots map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spots))
	assert.Equal(t, float64(5-successCount), spots["available_spots"])
}
