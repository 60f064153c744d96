package model

import (
	"encoding/json"
	"time"
)

// EntityType classifies a node in the knowledge graph.
type EntityType string

const (
	EntityPaper          EntityType = "paper"
	EntityAuthor         EntityType = "author"
	EntityTable          EntityType = "table"
	EntitySource         EntityType = "source"
	EntityParagraph      EntityType = "paragraph"
	EntityJSONData       EntityType = "json_data"
	EntityProfile        EntityType = "profile"
	EntityScholarProfile EntityType = "google_scholar_profile"
)

func (t EntityType) String() string {
	return string(t)
}

// LinkType classifies a directed edge between two entities.
type LinkType string

const (
	LinkAuthor LinkType = "author"
	LinkSource LinkType = "source"
)

// Entity is a typed node. Name, URL and Detail are empty when absent.
type Entity struct {
	ID        int64           `json:"id"`
	Type      EntityType      `json:"type"`
	Name      string          `json:"name,omitempty"`
	URL       string          `json:"url,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	JSON      json.RawMessage `json:"json,omitempty"`
	Embedding []float32       `json:"-"`
	ParentID  *int64          `json:"parent_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// EntityInput carries the fields accepted by an entity upsert.
type EntityInput struct {
	Type      EntityType
	Name      string
	URL       string
	Detail    string
	JSON      json.RawMessage
	Embedding []float32
	// ParentID is honoured only when the entity is created.
	ParentID *int64
}

// KeyKind reports which columns identify the entity for upsert purposes.
func (in EntityInput) KeyKind() EntityKey {
	switch {
	case in.Name != "" && in.URL != "":
		return KeyTypeNameURL
	case in.URL != "":
		return KeyTypeURL
	case in.Name != "":
		return KeyTypeName
	default:
		return KeyNone
	}
}

// EntityKey names the identity columns used to match an existing entity.
type EntityKey int

const (
	KeyNone EntityKey = iota
	KeyTypeNameURL
	KeyTypeURL
	KeyTypeName
)

// Tag is one instance of a named attribute on an entity.
type Tag struct {
	EntityID  int64     `json:"entity_id"`
	Name      string    `json:"name"`
	Instance  int       `json:"instance"`
	Value     string    `json:"value"`
	Embedding []float32 `json:"-"`
}

// TagInput describes an add_or_update_tag call.
type TagInput struct {
	EntityID int64
	Name     string
	Value    string
	// AddAnother appends a new instance at max(instance)+1 instead of
	// overwriting instance 1.
	AddAnother bool
	Embedding  []float32
}

// Link is a directed, typed edge. Uniqueness is (FromID, ToID, Type).
type Link struct {
	FromID   int64    `json:"from_id"`
	ToID     int64    `json:"to_id"`
	Type     LinkType `json:"link_type"`
	Strength float64  `json:"strength"`
}

// EntitySummary pairs an entity with its first summary tag.
type EntitySummary struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

// VectorQuery ranks entities by ascending distance to Vector.
type VectorQuery struct {
	Vector     []float32
	K          int
	EntityType EntityType
	// Keywords must all match the entity text (AND).
	Keywords []string
}

// TagQuery ranks entities by the distance of one of their tags to Vector.
type TagQuery struct {
	Vector  []float32
	K       int
	TagName string
}
