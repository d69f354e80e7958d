package server

import (
	"fmt"
	"sync"
)

// RoomManager 管理房间实例的生命周期与分配
//
// 同名房间可有多个实例：带容量的实例坐满后封闭，新来的对端进入下一个实例。
// 满员列表广播之前有人离开，实例重新开放。
type RoomManager struct {
	mu    sync.Mutex
	rooms map[string]*roomSlot
	order []string // 创建顺序
	seq   map[string]int
}

type roomSlot struct {
	room   *Room
	active int
	sealed bool
}

// RoomInfo 房间概要，用于管理接口
type RoomInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Peers    int    `json:"peers"`
	Sealed   bool   `json:"sealed"`
	Tick     int64  `json:"tick"`
}

var (
	defaultManager *RoomManager
	once           sync.Once
)

// GetRoomManager 单例房间管理器
func GetRoomManager() *RoomManager {
	once.Do(func() {
		defaultManager = NewRoomManager()
	})
	return defaultManager
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[string]*roomSlot),
		seq:   make(map[string]int),
	}
}

// Assign 为新对端选择房间：同名、同容量、未封闭的第一个实例，否则新建并开始 Tick
func (m *RoomManager) Assign(name string, capacity int) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	var slot *roomSlot
	for _, id := range m.order {
		s := m.rooms[id]
		if s.room.Name == name && s.room.Capacity == capacity && !s.sealed {
			slot = s
			break
		}
	}
	if slot == nil {
		m.seq[name]++
		id := fmt.Sprintf("%s#%d", name, m.seq[name])
		slot = &roomSlot{room: NewRoom(id, name, capacity)}
		m.rooms[id] = slot
		m.order = append(m.order, id)
		slot.room.StartTicker()
	}
	slot.active++
	if capacity > 0 && slot.active >= capacity {
		slot.sealed = true
	}
	return slot.room
}

// Release 对端断开后调用；房间空了即停止并移除
func (m *RoomManager) Release(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rooms[r.ID]
	if !ok || s.room != r {
		return
	}
	s.active--
	if s.active > 0 {
		// 满员列表尚未发出时，没有人能建立会话，空出的位置可以再分配
		if s.sealed && s.active < s.room.Capacity && !r.Filled() {
			s.sealed = false
		}
		return
	}
	delete(m.rooms, r.ID)
	for i, id := range m.order {
		if id == r.ID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	r.Stop()
}

// Room 按实例标识查找
func (m *RoomManager) Room(id string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rooms[id]
	if !ok {
		return nil, false
	}
	return s.room, true
}

// Rooms 按创建顺序列出所有房间
func (m *RoomManager) Rooms() []RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoomInfo, 0, len(m.order))
	for _, id := range m.order {
		s := m.rooms[id]
		out = append(out, RoomInfo{
			ID:       id,
			Name:     s.room.Name,
			Capacity: s.room.Capacity,
			Peers:    s.active,
			Sealed:   s.sealed,
			Tick:     s.room.Tick(),
		})
	}
	return out
}

// Close 停止所有房间
func (m *RoomManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		m.rooms[id].room.Stop()
	}
	m.rooms = make(map[string]*roomSlot)
	m.order = nil
}
