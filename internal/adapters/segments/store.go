package segments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
	"grouplog-digest/internal/infra/metrics"
)

// Store хранит дневные сегменты журналов групп в одном каталоге.
// Реализует domain.SegmentWriter, domain.SegmentReader и domain.LogCatalog.
type Store struct {
	dir string
	loc *time.Location
	now func() time.Time
	log zerolog.Logger

	dirMu    sync.Mutex
	dirReady bool

	// locks сериализует дозапись по slug группы: в каждый момент пишется только сегмент
	// текущих суток, поэтому карта не растёт со сменой дат.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore создаёт хранилище сегментов. loc задаёт календарные сутки сегмента.
func NewStore(dir string, loc *time.Location, logger zerolog.Logger) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		dir:   dir,
		loc:   loc,
		now:   time.Now,
		log:   logger,
		locks: make(map[string]*sync.Mutex),
	}
}

// Dir возвращает каталог журналов.
func (s *Store) Dir() string { return s.dir }

// Append дозаписывает строку в сегмент группы за текущие сутки и синхронизирует файл на диск.
func (s *Store) Append(ctx context.Context, group domain.TargetGroup, entry domain.LogEntry) (err error) {
	start := time.Now()
	path := filepath.Join(s.dir, domain.SegmentFilename(group.Slug, s.now().In(s.loc)))
	defer func() {
		metrics.ObserveAppend(start, err)
		if err != nil {
			err = &domain.WriteError{Path: path, Err: err}
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDir(); err != nil {
		return err
	}
	line := domain.FormatLogLine(entry)

	mu := s.groupLock(group.Slug)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("lock: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return err
	}
	_ = unlockFile(f)
	return f.Close()
}

func (s *Store) ensureDir() error {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	if s.dirReady {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	s.dirReady = true
	return nil
}

func (s *Store) groupLock(slug string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[slug]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[slug] = mu
	}
	return mu
}

// DiscoverLatest выбирает для каждой группы сегмент с наибольшей датой.
// При совпадении дат побеждает лексикографически большее имя файла.
// Отсутствующий каталог даёт пустой результат, нечитаемый — ошибку.
func (s *Store) DiscoverLatest(ctx context.Context, groups []domain.TargetGroup) (map[string]domain.LogSegment, error) {
	entries, err := s.readDir(ctx)
	if err != nil {
		return nil, err
	}
	bySlug := slugIndex(groups)
	latest := make(map[string]domain.LogSegment)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		slug, date, ok := domain.ParseSegmentFilename(e.Name())
		if !ok {
			continue
		}
		group, known := bySlug[slug]
		if !known {
			continue
		}
		cur, seen := latest[slug]
		if seen && (date.Before(cur.Date) || (date.Equal(cur.Date) && e.Name() <= cur.Filename())) {
			continue
		}
		latest[slug] = domain.LogSegment{Group: group, Date: date, Path: filepath.Join(s.dir, e.Name())}
	}
	return latest, nil
}

// ResolveExplicit проверяет явно указанный файл. Имя может не следовать соглашению,
// тогда группа определяется по имени файла без расширения.
func (s *Store) ResolveExplicit(ctx context.Context, path string, groups []domain.TargetGroup) (domain.LogSegment, error) {
	if err := ctx.Err(); err != nil {
		return domain.LogSegment{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.LogSegment{}, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
		}
		return domain.LogSegment{}, err
	}
	if !info.Mode().IsRegular() {
		return domain.LogSegment{}, fmt.Errorf("%s: not a regular file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return domain.LogSegment{}, err
	}
	_ = f.Close()

	seg := domain.LogSegment{
		Group: domain.GroupForSlug(groups, domain.SlugFromFilename(path)),
		Path:  path,
	}
	if _, date, ok := domain.ParseSegmentFilename(filepath.Base(path)); ok {
		seg.Date = date
	}
	return seg, nil
}

// Status перечисляет все сегменты настроенных групп, недавно изменённые — первыми.
// Нечитаемые сегменты пропускаются с предупреждением.
func (s *Store) Status(ctx context.Context, groups []domain.TargetGroup) ([]domain.SegmentStat, error) {
	entries, err := s.readDir(ctx)
	if err != nil {
		return nil, err
	}
	bySlug := slugIndex(groups)
	stats := make([]domain.SegmentStat, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		slug, _, ok := domain.ParseSegmentFilename(e.Name())
		if !ok {
			continue
		}
		group, known := bySlug[slug]
		if !known {
			continue
		}
		stat, err := s.stat(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.log.Warn().Err(err).Str("file", e.Name()).Msg("segments: сегмент пропущен")
			continue
		}
		stat.Group = group
		stats = append(stats, stat)
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if !stats[i].ModifiedAt.Equal(stats[j].ModifiedAt) {
			return stats[i].ModifiedAt.After(stats[j].ModifiedAt)
		}
		return stats[i].Filename > stats[j].Filename
	})
	return stats, nil
}

func (s *Store) stat(path string) (domain.SegmentStat, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.SegmentStat{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return domain.SegmentStat{}, err
	}
	lines, err := countLines(f)
	if err != nil {
		return domain.SegmentStat{}, err
	}
	return domain.SegmentStat{
		Filename:   info.Name(),
		SizeBytes:  info.Size(),
		CreatedAt:  birthTime(path, info),
		ModifiedAt: info.ModTime(),
		LineCount:  lines,
	}, nil
}

// ReadSnapshot читает сегмент в пределах размера на момент начала чтения.
// Для файлов журнала незавершённая последняя строка отбрасывается: она попадёт в следующий запуск.
func (s *Store) ReadSnapshot(ctx context.Context, seg domain.LogSegment) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(seg.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", seg.Path, domain.ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(f, info.Size()))
	if err != nil {
		return nil, err
	}
	if _, _, ok := domain.ParseSegmentFilename(seg.Filename()); ok && len(data) > 0 && data[len(data)-1] != '\n' {
		data = data[:bytes.LastIndexByte(data, '\n')+1]
	}
	return data, nil
}

// ReadNamed читает файл журнала по имени. Имя должно быть заранее проверено.
func (s *Store) ReadNamed(ctx context.Context, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(filename)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", filename, domain.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func (s *Store) readDir(ctx context.Context) ([]os.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log dir %s: %w", s.dir, err)
	}
	return entries, nil
}

func slugIndex(groups []domain.TargetGroup) map[string]domain.TargetGroup {
	idx := make(map[string]domain.TargetGroup, len(groups))
	for _, g := range groups {
		if _, dup := idx[g.Slug]; !dup {
			idx[g.Slug] = g
		}
	}
	return idx
}

// countLines считает строки, включая последнюю без завершающего перевода строки.
func countLines(r io.Reader) (int, error) {
	buf := make([]byte, 32*1024)
	count := 0
	var last byte = '\n'
	for {
		n, err := r.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		count++
	}
	return count, nil
}
