package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// VectorLiteral renders an embedding as a pgvector text literal. A nil or
// empty embedding renders as SQL NULL.
func VectorLiteral(embedding []float32, dim int) (interface{}, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if dim > 0 && len(embedding) != dim {
		return nil, fmt.Errorf("embedding length %d does not match dimension %d", len(embedding), dim)
	}
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]", nil
}

// ParseVector reads a pgvector text value back into a slice.
func ParseVector(raw sql.NullString) ([]float32, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	body := strings.TrimSuffix(strings.TrimPrefix(raw.String, "["), "]")
	if body == "" {
		return nil, nil
	}
	fields := strings.Split(body, ",")
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %d: %w", i, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

// NullString maps "" to SQL NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NullJSON maps an empty payload to SQL NULL.
func NullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// IsIntegrityViolation reports SQLSTATE class 23 errors, which are never
// worth retrying.
func IsIntegrityViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	return false
}
