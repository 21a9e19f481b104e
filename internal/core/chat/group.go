package chat

import (
	"sort"
)

// newerFirst created_at 由新到舊，相同時間以 id 由大到小
func newerFirst(a, b ChatRecord) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func sortRecords(records []ChatRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return newerFirst(records[i], records[j])
	})
}

// groupSessions 將紀錄彙整為 session 列表
// 標題取自 (created_at, id) 最大的紀錄；結果依 createdAt 由新到舊，相同時以 session id 排序
func groupSessions(records []ChatRecord) []SessionSummary {
	latest := make(map[string]ChatRecord)
	for _, record := range records {
		current, ok := latest[record.SessionID]
		if !ok || newerFirst(record, current) {
			latest[record.SessionID] = record
		}
	}

	sessions := make([]SessionSummary, 0, len(latest))
	for sessionID, record := range latest {
		sessions = append(sessions, SessionSummary{
			ID:        sessionID,
			Name:      titleOrDefault(record.Title),
			CreatedAt: record.CreatedAt,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions
}

// normalizeLimit 將查詢筆數限制在 1..MaxRecentLimit
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}
