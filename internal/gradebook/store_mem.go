package gradebook

import (
	"context"
	"sort"
	"sync"
	"time"

	syncx "github.com/coachdiary/gradebook/internal/sync"
)

// MemStore keeps everything in process memory. Transactions are serialized;
// a failed one restores the snapshot taken when it began.
type MemStore struct {
	mu   sync.Mutex
	data memData
}

type memData struct {
	seq       int64
	standards map[int64]Standard
	levels    map[int64]Level
	students  map[int64]Student
	results   map[int64]Result
	events    []syncx.Event
}

func NewMemStore() *MemStore {
	return &MemStore{data: memData{
		standards: map[int64]Standard{},
		levels:    map[int64]Level{},
		students:  map[int64]Student{},
		results:   map[int64]Result{},
	}}
}

func (d memData) clone() memData {
	c := memData{
		seq:       d.seq,
		standards: make(map[int64]Standard, len(d.standards)),
		levels:    make(map[int64]Level, len(d.levels)),
		students:  make(map[int64]Student, len(d.students)),
		results:   make(map[int64]Result, len(d.results)),
		events:    append([]syncx.Event(nil), d.events...),
	}
	for k, v := range d.standards {
		c.standards[k] = v
	}
	for k, v := range d.levels {
		c.levels[k] = v
	}
	for k, v := range d.students {
		c.students[k] = v
	}
	for k, v := range d.results {
		c.results[k] = v
	}
	return c
}

func (d *memData) next() int64 {
	d.seq++
	return d.seq
}

func (m *MemStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.data.clone()
	if err := fn(&memTx{d: &m.data}); err != nil {
		m.data = snap
		return err
	}
	return nil
}

// PutStudent inserts or replaces a student. A zero ID gets a fresh one.
func (m *MemStore) PutStudent(s Student) Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.data.next()
	}
	m.data.students[s.ID] = s
	return s
}

// Results returns a copy of every stored result ordered by ID.
func (m *MemStore) Results() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Result, 0, len(m.data.results))
	for _, r := range m.data.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemStore) Events() []syncx.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]syncx.Event(nil), m.data.events...)
}

type memTx struct{ d *memData }

func (t *memTx) GetStandard(_ context.Context, id int64) (Standard, error) {
	s, ok := t.d.standards[id]
	if !ok {
		return Standard{}, ErrNotFound
	}
	return s, nil
}

func (t *memTx) FindStandardByName(_ context.Context, name string) (Standard, error) {
	for _, s := range t.d.standards {
		if s.Name == name {
			return s, nil
		}
	}
	return Standard{}, ErrNotFound
}

func (t *memTx) CreateStandardIfAbsent(ctx context.Context, s Standard) (Standard, bool, error) {
	if cur, err := t.FindStandardByName(ctx, s.Name); err == nil {
		return cur, false, nil
	}
	s.ID = t.d.next()
	s.Levels = nil
	t.d.standards[s.ID] = s
	return s, true, nil
}

func (t *memTx) UpdateStandard(_ context.Context, s Standard) error {
	if _, ok := t.d.standards[s.ID]; !ok {
		return ErrNotFound
	}
	for id, o := range t.d.standards {
		if id != s.ID && o.Name == s.Name {
			return ErrConflict
		}
	}
	s.Levels = nil
	t.d.standards[s.ID] = s
	return nil
}

func (t *memTx) ListStandardsByOwner(_ context.Context, ownerID int64) ([]Standard, error) {
	var out []Standard
	for _, s := range t.d.standards {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) ListLevels(_ context.Context, standardID int64) ([]Level, error) {
	var out []Level
	for _, l := range t.d.levels {
		if l.StandardID == standardID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].Gender < out[j].Gender
	})
	return out, nil
}

func (t *memTx) GetLevel(_ context.Context, id int64) (Level, error) {
	l, ok := t.d.levels[id]
	if !ok {
		return Level{}, ErrNotFound
	}
	return l, nil
}

func (t *memTx) FindLevel(_ context.Context, standardID int64, number int, g Gender) (Level, error) {
	for _, l := range t.d.levels {
		if l.StandardID == standardID && l.Number == number && l.Gender == g {
			return l, nil
		}
	}
	return Level{}, ErrLevelNotFound
}

func (t *memTx) InsertLevel(ctx context.Context, l Level) (Level, error) {
	if _, ok := t.d.standards[l.StandardID]; !ok {
		return Level{}, ErrNotFound
	}
	if _, err := t.FindLevel(ctx, l.StandardID, l.Number, l.Gender); err == nil {
		return Level{}, ErrConflict
	}
	if l.Thresholds != nil {
		th := *l.Thresholds
		l.Thresholds = &th
	}
	l.ID = t.d.next()
	t.d.levels[l.ID] = l
	return l, nil
}

func (t *memTx) DeleteLevel(_ context.Context, id int64) error {
	if _, ok := t.d.levels[id]; !ok {
		return ErrNotFound
	}
	delete(t.d.levels, id)
	for rid, r := range t.d.results {
		if r.LevelID != nil && *r.LevelID == id {
			r.LevelID = nil
			t.d.results[rid] = r
		}
	}
	return nil
}

func (t *memTx) GetStudent(_ context.Context, id int64) (Student, error) {
	s, ok := t.d.students[id]
	if !ok {
		return Student{}, ErrNotFound
	}
	return s, nil
}

func (t *memTx) ListEligibleStudents(_ context.Context, ownerID int64, g Gender, minClass int) ([]Student, error) {
	var out []Student
	for _, s := range t.d.students {
		if s.TeacherID == ownerID && s.Gender == g && s.ClassNumber >= minClass {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) FindResult(_ context.Context, studentID, standardID, levelID int64) (Result, error) {
	for _, r := range t.d.results {
		if r.StudentID == studentID && r.StandardID == standardID && r.LevelID != nil && *r.LevelID == levelID {
			return r, nil
		}
	}
	return Result{}, ErrNotFound
}

func (t *memTx) InsertPlaceholders(ctx context.Context, rs []Result) (int, error) {
	n := 0
	for _, r := range rs {
		if r.LevelID == nil {
			continue
		}
		if _, err := t.FindResult(ctx, r.StudentID, r.StandardID, *r.LevelID); err == nil {
			continue
		}
		r.ID = t.d.next()
		r.Value, r.Grade = nil, nil
		r.RecordedAt = time.Time{}
		t.d.results[r.ID] = r
		n++
	}
	return n, nil
}

func (t *memTx) UpsertResult(ctx context.Context, r Result) (Result, error) {
	if r.LevelID == nil {
		return Result{}, ErrInvalidLevel
	}
	if cur, err := t.FindResult(ctx, r.StudentID, r.StandardID, *r.LevelID); err == nil {
		r.ID = cur.ID
	} else {
		r.ID = t.d.next()
	}
	t.d.results[r.ID] = r
	return r, nil
}

// RelinkOrphans attaches at most one orphan per student, the newest.
func (t *memTx) RelinkOrphans(_ context.Context, lvl Level) (int, error) {
	latest := map[int64]int64{}
	for id, r := range t.d.results {
		if r.LevelID != nil || r.StandardID != lvl.StandardID || r.LevelNumber != lvl.Number || r.LevelGender != lvl.Gender {
			continue
		}
		if id > latest[r.StudentID] {
			latest[r.StudentID] = id
		}
	}
	for _, id := range latest {
		r := t.d.results[id]
		levelID := lvl.ID
		r.LevelID = &levelID
		t.d.results[id] = r
	}
	return len(latest), nil
}

func (t *memTx) ListResults(_ context.Context, studentID int64) ([]Result, error) {
	var out []Result
	for _, r := range t.d.results {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) AppendEvent(_ context.Context, e syncx.Event) error {
	e.Seq = int64(len(t.d.events) + 1)
	e.CreatedAt = time.Now().Unix()
	t.d.events = append(t.d.events, e)
	return nil
}
