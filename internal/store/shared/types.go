package shared

// DbType selects a GraphProvider implementation.
type DbType string

const (
	DbTypePostgres DbType = "postgres"
	DbTypeMemory   DbType = "memory"
)

func (t DbType) String() string {
	return string(t)
}

func (t DbType) IsValid() bool {
	switch t {
	case DbTypePostgres, DbTypeMemory:
		return true
	default:
		return false
	}
}

// DbProviderConfig is the JSON document passed to the provider factory.
type DbProviderConfig struct {
	DbType       DbType                 `json:"db_type"`
	ExtraDetails map[string]interface{} `json:"extra_details"`
}

// EmbeddingDim reads extra_details.embedding_dim, falling back to def.
func (c DbProviderConfig) EmbeddingDim(def int) int {
	switch v := c.ExtraDetails["embedding_dim"].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return def
}
