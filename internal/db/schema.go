package db

import "fmt"

// DefaultEmbeddingDim matches the embedding oracle's output width.
const DefaultEmbeddingDim = 1536

// Schema returns the DDL for the graph and task tables. Vector columns are
// sized to dim. The frontier tables are migrated separately through GORM.
func Schema(dim int) string {
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS entities (
    entity_id      BIGSERIAL PRIMARY KEY,
    entity_type    TEXT NOT NULL,
    entity_name    TEXT,
    entity_url     TEXT,
    entity_detail  TEXT,
    entity_json    JSONB,
    entity_embed   vector(%[1]d),
    entity_parent  BIGINT REFERENCES entities(entity_id) ON DELETE CASCADE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (entity_type, entity_name, entity_url)
);
CREATE INDEX IF NOT EXISTS idx_entities_url ON entities(entity_url);
CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(entity_parent);
CREATE INDEX IF NOT EXISTS idx_entities_text_fts ON entities
    USING gin (to_tsvector('english', COALESCE(entity_name, '') || ' ' || COALESCE(entity_detail, '')));

CREATE TABLE IF NOT EXISTS entity_tags (
    entity_id           BIGINT NOT NULL REFERENCES entities(entity_id) ON DELETE CASCADE,
    tag_name            TEXT NOT NULL,
    entity_tag_instance INTEGER NOT NULL DEFAULT 1 CHECK (entity_tag_instance >= 1),
    tag_value           TEXT,
    tag_embed           vector(%[1]d),
    PRIMARY KEY (entity_id, tag_name, entity_tag_instance)
);

CREATE TABLE IF NOT EXISTS entity_link (
    from_id         BIGINT NOT NULL REFERENCES entities(entity_id) ON DELETE CASCADE,
    to_id           BIGINT NOT NULL REFERENCES entities(entity_id) ON DELETE CASCADE,
    link_type       TEXT NOT NULL,
    entity_strength DOUBLE PRECISION NOT NULL DEFAULT 1,
    PRIMARY KEY (from_id, to_id, link_type)
);

CREATE TABLE IF NOT EXISTS projects (
    project_id          BIGSERIAL PRIMARY KEY,
    project_name        TEXT NOT NULL,
    project_description TEXT,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS project_tasks (
    task_id                BIGSERIAL PRIMARY KEY,
    project_id             BIGINT NOT NULL REFERENCES projects(project_id) ON DELETE CASCADE,
    task_name              TEXT NOT NULL,
    task_description       TEXT,
    task_schema            TEXT,
    task_description_embed vector(%[1]d),
    task_context           JSONB,
    task_status            TEXT NOT NULL DEFAULT 'created',
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_project_tasks_project ON project_tasks(project_id);

CREATE TABLE IF NOT EXISTS task_dependencies (
    source_task_id           BIGINT NOT NULL REFERENCES project_tasks(task_id) ON DELETE CASCADE,
    dependent_task_id        BIGINT NOT NULL REFERENCES project_tasks(task_id) ON DELETE CASCADE,
    relationship_description TEXT,
    data_schema              TEXT,
    data_flow                TEXT NOT NULL,
    PRIMARY KEY (source_task_id, dependent_task_id)
);
CREATE INDEX IF NOT EXISTS idx_task_dependencies_dependent ON task_dependencies(dependent_task_id);

CREATE TABLE IF NOT EXISTS task_entities (
    task_id         BIGINT NOT NULL REFERENCES project_tasks(task_id) ON DELETE CASCADE,
    entity_id       BIGINT NOT NULL REFERENCES entities(entity_id) ON DELETE CASCADE,
    feedback_rating DOUBLE PRECISION,
    PRIMARY KEY (task_id, entity_id)
);

CREATE TABLE IF NOT EXISTS task_queue (
    task_id          BIGSERIAL PRIMARY KEY,
    task_name        TEXT NOT NULL,
    task_scope       TEXT,
    task_prompt      TEXT,
    task_description TEXT
);

CREATE TABLE IF NOT EXISTS assessment_criteria (
    criteria_id      BIGSERIAL PRIMARY KEY,
    criteria_name    TEXT NOT NULL,
    criteria_prompt  TEXT,
    criteria_scope   TEXT,
    criteria_promise DOUBLE PRECISION NOT NULL DEFAULT 1
);
`, dim)
}
