// help отдаёт разделы справки бота из JSON-файла. Файл можно править
// на работающем боте: содержимое кэшируется с коротким TTL и
// перечитывается на лету. Битый файл не роняет справку — отдаётся
// последняя удачно прочитанная версия.
package help

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"consultbot/internal/models"
	logctx "consultbot/internal/pkg/log"
)

// Токены видимости раздела.
const (
	visibleAll           = "all"
	visibleGuest         = "guest"
	visibleStudent       = "student"
	visibleTeacher       = "teacher"
	visibleTeacherActive = "teacher_active"
	visibleNonTeacher    = "non_teacher"
)

// Section — пункт меню справки.
type Section struct {
	Key   string
	Title string
}

type sectionSpec struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Visible []string `json:"visible"`
}

type document struct {
	Sections []sectionSpec     `json:"sections"`
	Content  map[string]string `json:"content"`
}

// Content — загрузчик справки с кэшем и фолбэком на последнюю
// удачно прочитанную версию.
type Content struct {
	path string
	ttl  time.Duration

	mu       sync.Mutex
	cache    *document
	cachedAt time.Time
	lastGood *document
}

// New создаёт загрузчик справки поверх JSON-файла path.
// ttl — время жизни кэша; ноль означает перечитывание на каждый запрос.
func New(path string, ttl time.Duration) *Content {
	return &Content{path: path, ttl: ttl}
}

// Sections возвращает разделы, видимые пользователю с данной ролью.
// Пустая role означает гостя; teacherStatus учитывается только
// для преподавателей.
func (c *Content) Sections(ctx context.Context, role, teacherStatus string) []Section {
	doc := c.load(ctx)

	var sections []Section
	for _, sec := range doc.Sections {
		tokens := sec.Visible
		if len(tokens) == 0 {
			tokens = []string{visibleAll}
		}
		if !visible(tokens, role, teacherStatus) {
			continue
		}

		title := sec.Title
		if title == "" {
			title = sec.Key
		}
		sections = append(sections, Section{Key: sec.Key, Title: title})
	}

	return sections
}

// SectionText возвращает текст раздела; пустая строка — раздела нет.
func (c *Content) SectionText(ctx context.Context, key string) string {
	return c.load(ctx).Content[key]
}

func visible(tokens []string, role, teacherStatus string) bool {
	for _, token := range tokens {
		switch token {
		case visibleAll:
			return true
		case visibleGuest:
			if role == "" {
				return true
			}
		case visibleStudent:
			if role == models.RoleStudent {
				return true
			}
		case visibleTeacher:
			if role == models.RoleTeacher {
				return true
			}
		case visibleTeacherActive:
			if role == models.RoleTeacher && teacherStatus == models.TeacherStatusActive {
				return true
			}
		case visibleNonTeacher:
			if role != "" && role != models.RoleTeacher {
				return true
			}
		}
	}
	return false
}

func (c *Content) load(ctx context.Context) *document {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache != nil && time.Since(c.cachedAt) < c.ttl {
		return c.cache
	}

	doc, err := readDocument(c.path)
	if err != nil {
		logctx.From(ctx).Warn("help_content_load_failed",
			slog.String("path", c.path),
			slog.String("error", err.Error()),
		)
		if c.lastGood != nil {
			c.cache = c.lastGood
			c.cachedAt = time.Now()
			return c.lastGood
		}
		return &document{Content: map[string]string{}}
	}

	c.cache = doc
	c.cachedAt = time.Now()
	c.lastGood = doc
	return doc
}

func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Файл могут сохранить с BOM.
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Content == nil {
		doc.Content = map[string]string{}
	}

	return &doc, nil
}
