package chatclient

// seenSet 固定容量的已處理事件 id, 滿了先進先出
type seenSet struct {
	capacity int
	order    []string
	ids      map[string]struct{}
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 100
	}
	return &seenSet{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		ids:      make(map[string]struct{}, capacity),
	}
}

// Seen 回傳 id 是否已處理過, 未處理過則記錄
func (s *seenSet) Seen(id string) bool {
	if _, ok := s.ids[id]; ok {
		return true
	}
	if len(s.order) == s.capacity {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
	s.order = append(s.order, id)
	s.ids[id] = struct{}{}
	return false
}

func (s *seenSet) Len() int {
	return len(s.order)
}
