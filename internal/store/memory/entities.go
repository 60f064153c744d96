package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shaibs3/ResearchGraph/internal/model"
)

func (m *InMemoryProvider) UpsertEntity(ctx context.Context, in model.EntityInput) (int64, error) {
	if in.Type == "" {
		return 0, fmt.Errorf("entity type is required: %w", model.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.findEntityLocked(in); existing != nil {
		if in.Detail != "" {
			existing.Detail = in.Detail
		}
		if len(in.JSON) > 0 {
			existing.JSON = cloneBytes(in.JSON)
		}
		if len(in.Embedding) > 0 {
			existing.Embedding = cloneVector(in.Embedding)
		}
		return existing.ID, nil
	}

	if in.ParentID != nil {
		if _, ok := m.entities[*in.ParentID]; !ok {
			return 0, fmt.Errorf("parent entity %d: %w", *in.ParentID, model.ErrNotFound)
		}
	}
	return m.insertEntityLocked(in), nil
}

func (m *InMemoryProvider) findEntityLocked(in model.EntityInput) *model.Entity {
	kind := in.KeyKind()
	if kind == model.KeyNone {
		return nil
	}
	for _, id := range m.entityOrder {
		e := m.entities[id]
		if e.Type != in.Type {
			continue
		}
		switch kind {
		case model.KeyTypeNameURL:
			if e.Name == in.Name && e.URL == in.URL {
				return e
			}
		case model.KeyTypeURL:
			if e.Name == "" && e.URL == in.URL {
				return e
			}
		case model.KeyTypeName:
			if e.URL == "" && e.Name == in.Name {
				return e
			}
		}
	}
	return nil
}

func (m *InMemoryProvider) insertEntityLocked(in model.EntityInput) int64 {
	id := m.nextEntityID
	m.nextEntityID++
	e := &model.Entity{
		ID:        id,
		Type:      in.Type,
		Name:      in.Name,
		URL:       in.URL,
		Detail:    in.Detail,
		JSON:      cloneBytes(in.JSON),
		Embedding: cloneVector(in.Embedding),
		CreatedAt: m.now(),
	}
	if in.ParentID != nil {
		parent := *in.ParentID
		e.ParentID = &parent
	}
	m.entities[id] = e
	m.entityOrder = append(m.entityOrder, id)
	return id
}

func copyEntity(e *model.Entity) model.Entity {
	out := *e
	out.JSON = cloneBytes(e.JSON)
	out.Embedding = cloneVector(e.Embedding)
	if e.ParentID != nil {
		p := *e.ParentID
		out.ParentID = &p
	}
	return out
}

func (m *InMemoryProvider) GetEntity(ctx context.Context, id int64) (*model.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %d: %w", id, model.ErrNotFound)
	}
	out := copyEntity(e)
	return &out, nil
}

func (m *InMemoryProvider) GetByURL(ctx context.Context, url string, typ model.EntityType) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for _, id := range m.entityOrder {
		e := m.entities[id]
		if e.URL != url {
			continue
		}
		if typ != "" && e.Type != typ {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *InMemoryProvider) SetEntityEmbedding(ctx context.Context, id int64, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return fmt.Errorf("entity %d: %w", id, model.ErrNotFound)
	}
	e.Embedding = cloneVector(embedding)
	return nil
}

func (m *InMemoryProvider) AddOrUpdateTag(ctx context.Context, in model.TagInput) (int, error) {
	if in.Name == "" {
		return 0, fmt.Errorf("tag name is required: %w", model.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[in.EntityID]; !ok {
		return 0, fmt.Errorf("entity %d: %w", in.EntityID, model.ErrNotFound)
	}

	tags := m.tags[in.EntityID]
	first, maxInstance := -1, 0
	for i, t := range tags {
		if t.Name != in.Name {
			continue
		}
		if t.Instance == 1 {
			first = i
		}
		if t.Instance > maxInstance {
			maxInstance = t.Instance
		}
	}

	switch {
	case first < 0:
		m.tags[in.EntityID] = append(tags, model.Tag{
			EntityID: in.EntityID, Name: in.Name, Instance: 1, Value: in.Value, Embedding: cloneVector(in.Embedding),
		})
		return 1, nil
	case !in.AddAnother:
		tags[first].Value = in.Value
		if len(in.Embedding) > 0 {
			tags[first].Embedding = cloneVector(in.Embedding)
		}
		return 1, nil
	default:
		instance := maxInstance + 1
		m.tags[in.EntityID] = append(tags, model.Tag{
			EntityID: in.EntityID, Name: in.Name, Instance: instance, Value: in.Value, Embedding: cloneVector(in.Embedding),
		})
		return instance, nil
	}
}

func (m *InMemoryProvider) ListTags(ctx context.Context, entityID int64, name string) ([]model.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Tag
	for _, t := range m.tags[entityID] {
		if name != "" && t.Name != name {
			continue
		}
		t.Embedding = cloneVector(t.Embedding)
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Instance < out[j].Instance
	})
	return out, nil
}

func (m *InMemoryProvider) Link(ctx context.Context, link model.Link) error {
	if link.Type == "" {
		return fmt.Errorf("link type is required: %w", model.ErrInvalidArgument)
	}
	if link.Strength == 0 {
		link.Strength = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range []int64{link.FromID, link.ToID} {
		if _, ok := m.entities[id]; !ok {
			return fmt.Errorf("entity %d: %w", id, model.ErrNotFound)
		}
	}
	for _, l := range m.links {
		if l.FromID == link.FromID && l.ToID == link.ToID && l.Type == link.Type {
			return nil
		}
	}
	m.links = append(m.links, link)
	return nil
}

func (m *InMemoryProvider) ListLinks(ctx context.Context, fromID int64) ([]model.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Link
	for _, l := range m.links {
		if l.FromID == fromID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *InMemoryProvider) AddParagraph(ctx context.Context, paperID int64, content string, embedding []float32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[paperID]; !ok {
		return 0, fmt.Errorf("paper %d: %w", paperID, model.ErrNotFound)
	}
	for _, id := range m.entityOrder {
		e := m.entities[id]
		if e.Type == model.EntityParagraph && e.ParentID != nil && *e.ParentID == paperID && e.Detail == content {
			return id, nil
		}
	}
	parent := paperID
	return m.insertEntityLocked(model.EntityInput{
		Type:      model.EntityParagraph,
		Detail:    content,
		Embedding: embedding,
		ParentID:  &parent,
	}), nil
}

func (m *InMemoryProvider) DeleteParagraphs(ctx context.Context, paperID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[int64]bool)
	kept := m.entityOrder[:0]
	for _, id := range m.entityOrder {
		e := m.entities[id]
		if e.Type == model.EntityParagraph && e.ParentID != nil && *e.ParentID == paperID {
			removed[id] = true
			delete(m.entities, id)
			delete(m.tags, id)
			continue
		}
		kept = append(kept, id)
	}
	m.entityOrder = kept
	if len(removed) == 0 {
		return 0, nil
	}
	links := m.links[:0]
	for _, l := range m.links {
		if !removed[l.FromID] && !removed[l.ToID] {
			links = append(links, l)
		}
	}
	m.links = links
	for taskID, tes := range m.taskEntities {
		keptTE := tes[:0]
		for _, te := range tes {
			if !removed[te.EntityID] {
				keptTE = append(keptTE, te)
			}
		}
		m.taskEntities[taskID] = keptTE
	}
	return len(removed), nil
}

func (m *InMemoryProvider) summaryLocked(id int64) string {
	for _, t := range m.tags[id] {
		if t.Name == "summary" && t.Instance == 1 {
			return t.Value
		}
	}
	return ""
}

func (m *InMemoryProvider) EntitiesWithSummaries(ctx context.Context, ids []int64) ([]model.EntitySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []model.EntitySummary
	for _, id := range m.entityOrder {
		e := m.entities[id]
		if e.Name == "" || (len(ids) > 0 && !wanted[id]) {
			continue
		}
		out = append(out, model.EntitySummary{ID: id, Name: e.Name, URL: e.URL, Summary: m.summaryLocked(id)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *InMemoryProvider) UntaggedEntities(ctx context.Context, typ model.EntityType, tagName string, limit int) ([]model.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Entity
	for _, id := range m.entityOrder {
		e := m.entities[id]
		if e.Type != typ {
			continue
		}
		tagged := false
		for _, t := range m.tags[id] {
			if t.Name == tagName {
				tagged = true
				break
			}
		}
		if tagged {
			continue
		}
		out = append(out, copyEntity(e))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type scored struct {
	id   int64
	dist float64
}

func rankScored(items []scored, k int) []int64 {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].dist != items[j].dist {
			return items[i].dist < items[j].dist
		}
		return items[i].id < items[j].id
	})
	if k > 0 && len(items) > k {
		items = items[:k]
	}
	ids := make([]int64, len(items))
	for i, s := range items {
		ids[i] = s.id
	}
	return ids
}

func matchesKeywords(e *model.Entity, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	text := strings.ToLower(e.Name + " " + e.Detail)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if !strings.Contains(text, kw) {
			return false
		}
	}
	return true
}

func (m *InMemoryProvider) RankEntities(ctx context.Context, q model.VectorQuery) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []scored
	for _, id := range m.entityOrder {
		e := m.entities[id]
		if len(e.Embedding) == 0 {
			continue
		}
		if q.EntityType != "" && e.Type != q.EntityType {
			continue
		}
		if !matchesKeywords(e, q.Keywords) {
			continue
		}
		items = append(items, scored{id: id, dist: l2(q.Vector, e.Embedding)})
	}
	return rankScored(items, q.K), nil
}

func (m *InMemoryProvider) RankTags(ctx context.Context, q model.TagQuery) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	best := make(map[int64]float64)
	for _, id := range m.entityOrder {
		for _, t := range m.tags[id] {
			if len(t.Embedding) == 0 || (q.TagName != "" && t.Name != q.TagName) {
				continue
			}
			d := l2(q.Vector, t.Embedding)
			if cur, ok := best[id]; !ok || d < cur {
				best[id] = d
			}
		}
	}
	items := make([]scored, 0, len(best))
	for id, d := range best {
		items = append(items, scored{id: id, dist: d})
	}
	return rankScored(items, q.K), nil
}

// l2 is the Euclidean distance; the shorter vector is zero-padded.
func l2(a, b []float32) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = float64(a[i])
		}
		if i < len(b) {
			y = float64(b[i])
		}
		sum += (x - y) * (x - y)
	}
	return math.Sqrt(sum)
}
