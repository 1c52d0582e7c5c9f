package model

// NurseIndex 护士 db id 与内部索引的双向映射（每次排班构建一次）
type NurseIndex struct {
	byDBID map[string]int
	dbIDs  []string
}

// NewNurseIndex 根据已排序护士列表构建索引
func NewNurseIndex(nurses []*Nurse) *NurseIndex {
	idx := &NurseIndex{
		byDBID: make(map[string]int, len(nurses)),
		dbIDs:  make([]string, len(nurses)),
	}
	for i, n := range nurses {
		idx.byDBID[n.DBID] = i
		idx.dbIDs[i] = n.DBID
	}
	return idx
}

// Index 根据 db id 查找内部索引
func (x *NurseIndex) Index(dbID string) (int, bool) {
	i, ok := x.byDBID[dbID]
	return i, ok
}

// DBID 根据内部索引查找 db id
func (x *NurseIndex) DBID(idx int) (string, bool) {
	if idx < 0 || idx >= len(x.dbIDs) {
		return "", false
	}
	return x.dbIDs[idx], true
}

// Len 护士数量
func (x *NurseIndex) Len() int {
	return len(x.dbIDs)
}
