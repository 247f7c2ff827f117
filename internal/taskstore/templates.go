package taskstore

import (
	"database/sql"
	"fmt"
	"strings"
)

const templateSelectColumns = `SELECT id, key, name, script_body, created_at, updated_at`

// CreateTemplate inserts a template, auto-generating key from name
// when key is empty: lowercased, spaces replaced with underscores,
// with a numeric suffix to disambiguate collisions.
func (s *Store) CreateTemplate(key, name, scriptBody string) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	scriptBody = strings.TrimSpace(scriptBody)
	if name == "" {
		return nil, validationErr("name", "is required")
	}
	if scriptBody == "" {
		return nil, validationErr("script_body", "is required")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		var err error
		key, err = s.uniqueTemplateKeyLocked(slugify(name))
		if err != nil {
			return nil, err
		}
	}

	now := s.nowString()
	res, err := s.db.Exec(`INSERT INTO templates (key, name, script_body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		key, name, scriptBody, now, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, &NameConflictError{Field: "key", Value: key}
		}
		return nil, fmt.Errorf("inserting template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Template{ID: id, Key: key, Name: name, ScriptBody: scriptBody, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *Store) uniqueTemplateKeyLocked(base string) (string, error) {
	candidate := base
	for n := 1; ; n++ {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(1) FROM templates WHERE key = ?`, candidate).Scan(&count); err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
}

func slugify(name string) string {
	lower := strings.ToLower(name)
	return strings.ReplaceAll(lower, " ", "_")
}

// UpdateTemplate updates name/script_body; returns nil, nil if id is missing.
func (s *Store) UpdateTemplate(id int64, name, scriptBody string) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getTemplateLocked(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	if name = strings.TrimSpace(name); name != "" {
		existing.Name = name
	}
	if scriptBody = strings.TrimSpace(scriptBody); scriptBody != "" {
		existing.ScriptBody = scriptBody
	}
	existing.UpdatedAt = s.nowString()

	_, err = s.db.Exec(`UPDATE templates SET name = ?, script_body = ?, updated_at = ? WHERE id = ?`,
		existing.Name, existing.ScriptBody, existing.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("updating template: %w", err)
	}
	return existing, nil
}

// DeleteTemplate removes a template. Returns false if it did not exist.
func (s *Store) DeleteTemplate(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListTemplates returns all templates ordered by id ascending.
func (s *Store) ListTemplates() ([]*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(templateSelectColumns + ` FROM templates ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTemplate returns nil if id does not exist.
func (s *Store) GetTemplate(id int64) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getTemplateLocked(id)
}

func (s *Store) getTemplateLocked(id int64) (*Template, error) {
	row := s.db.QueryRow(templateSelectColumns+` FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func scanTemplate(sc scanner) (*Template, error) {
	var t Template
	if err := sc.Scan(&t.ID, &t.Key, &t.Name, &t.ScriptBody, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// ExportTemplates returns a key -> {name, script_body} map of every
// template.
func (s *Store) ExportTemplates() (map[string]TemplateExport, error) {
	templates, err := s.ListTemplates()
	if err != nil {
		return nil, err
	}
	out := make(map[string]TemplateExport, len(templates))
	for _, t := range templates {
		out[t.Key] = TemplateExport{Name: t.Name, ScriptBody: t.ScriptBody}
	}
	return out, nil
}

// TemplateExport is the {name, script_body} shape used by export/import.
type TemplateExport struct {
	Name       string `json:"name"`
	ScriptBody string `json:"script_body"`
}

// ImportTemplates upserts the given key -> export map, inserting new
// keys and updating existing ones by key. Returns counts.
func (s *Store) ImportTemplates(data map[string]TemplateExport) (inserted, updated int, err error) {
	for key, exp := range data {
		s.mu.Lock()
		existing, getErr := s.getTemplateByKeyLocked(key)
		s.mu.Unlock()
		if getErr != nil {
			return inserted, updated, getErr
		}
		if existing == nil {
			if _, createErr := s.CreateTemplate(key, exp.Name, exp.ScriptBody); createErr != nil {
				return inserted, updated, createErr
			}
			inserted++
			continue
		}
		if _, updateErr := s.UpdateTemplate(existing.ID, exp.Name, exp.ScriptBody); updateErr != nil {
			return inserted, updated, updateErr
		}
		updated++
	}
	return inserted, updated, nil
}

func (s *Store) getTemplateByKeyLocked(key string) (*Template, error) {
	row := s.db.QueryRow(templateSelectColumns+` FROM templates WHERE key = ?`, key)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}
