package summaries

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"grouplog-digest/internal/domain"
)

const (
	headerSources   = "Summary for: "
	headerGenerated = "Generated at: "
	headerModel     = "Model: "
	bodyMarker      = "=== Summary ==="
)

// Store хранит последнюю сводку каждой группы в файле {slug}-summary.txt.
type Store struct {
	dir string
}

// NewStore создаёт файловое хранилище сводок.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save целиком заменяет сводку группы: запись идёт во временный файл, затем rename.
func (s *Store) Save(ctx context.Context, a domain.SummaryArtifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("summaries: mkdir: %w", err)
	}
	path := filepath.Join(s.dir, domain.SummaryFilename(a.Group.Slug))
	tmp, err := os.CreateTemp(s.dir, ".summary-*.tmp")
	if err != nil {
		return "", fmt.Errorf("summaries: temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.WriteString(Render(a)); err != nil {
		cleanup()
		return "", fmt.Errorf("summaries: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("summaries: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("summaries: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("summaries: rename: %w", err)
	}
	return path, nil
}

// Render возвращает содержимое файла сводки.
func Render(a domain.SummaryArtifact) string {
	var b strings.Builder
	b.WriteString(headerSources + strings.Join(a.Sources(), ", ") + "\n")
	b.WriteString(headerGenerated + a.GeneratedAt.Format(time.RFC3339Nano) + "\n")
	b.WriteString(headerModel + a.Model + "\n\n")
	b.WriteString(bodyMarker + "\n\n")
	b.WriteString(strings.TrimRight(a.Text, "\n"))
	b.WriteString("\n")
	return b.String()
}

// Load читает ранее сохранённую сводку. Файлы без заголовка целиком считаются текстом сводки.
func (s *Store) Load(ctx context.Context, path string, groups []domain.TargetGroup) (domain.SummaryArtifact, error) {
	if err := ctx.Err(); err != nil {
		return domain.SummaryArtifact{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.SummaryArtifact{}, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
		}
		return domain.SummaryArtifact{}, fmt.Errorf("summaries: read: %w", err)
	}
	a := parse(string(data))
	a.Group = domain.GroupForSlug(groups, domain.SlugFromFilename(path))
	a.Path = path
	if a.GeneratedAt.IsZero() {
		if info, err := os.Stat(path); err == nil {
			a.GeneratedAt = info.ModTime()
		}
	}
	return a, nil
}

func parse(content string) domain.SummaryArtifact {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.Contains(content, bodyMarker) {
		return domain.SummaryArtifact{Text: strings.TrimSpace(content)}
	}
	var (
		a      domain.SummaryArtifact
		body   strings.Builder
		inBody bool
	)
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if inBody {
			body.WriteString(line)
			body.WriteByte('\n')
			continue
		}
		switch {
		case line == bodyMarker:
			inBody = true
		case strings.HasPrefix(line, headerSources):
			for _, name := range strings.Split(strings.TrimPrefix(line, headerSources), ",") {
				if name = strings.TrimSpace(name); name != "" {
					a.SourceNames = append(a.SourceNames, name)
				}
			}
		case strings.HasPrefix(line, headerGenerated):
			if t, err := time.Parse(time.RFC3339Nano, strings.TrimPrefix(line, headerGenerated)); err == nil {
				a.GeneratedAt = t
			}
		case strings.HasPrefix(line, headerModel):
			a.Model = strings.TrimPrefix(line, headerModel)
		}
	}
	a.Text = strings.TrimSpace(body.String())
	return a
}
