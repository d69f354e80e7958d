package server

import (
	"encoding/json"
	"net/http"
)

// HandleRooms 使用默认管理器列出房间
func HandleRooms(w http.ResponseWriter, r *http.Request) {
	GetRoomManager().HandleRooms(w, r)
}

// HandleMetrics 使用默认管理器输出指标
func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	GetRoomManager().HandleMetrics(w, r)
}

// HandleRooms 列出所有房间实例
// GET /admin/rooms
func (m *RoomManager) HandleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"rooms": m.Rooms()})
}

// HandleMetrics 输出指定房间的运行指标；不带 room 时输出全部
// GET /metrics?room=extreme_bevy#1
func (m *RoomManager) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	w.Header().Set("Content-Type", "application/json")
	if roomID == "" {
		all := make(map[string]any)
		for _, info := range m.Rooms() {
			if room, ok := m.Room(info.ID); ok {
				all[info.ID] = room.Metrics().Snapshot()
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"rooms": all})
		return
	}
	room, ok := m.Room(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	payload := map[string]any{
		"room":    roomID,
		"tick":    room.Tick(),
		"metrics": room.Metrics().Snapshot(),
	}
	_ = json.NewEncoder(w).Encode(payload)
}
