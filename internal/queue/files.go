package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/flowrun/internal/domain"
)

// Имена файлов протокола.
const (
	jobSuffix       = ".json"
	claimedSuffix   = ".processing"
	stopSuffix      = ".stop"
	resultSuffix    = ".result.json"
	consumingSuffix = ".consuming"
	tempSuffix      = ".tmp"
)

func (q *Queue) jobPath(id string) string     { return filepath.Join(q.inbox, id+jobSuffix) }
func (q *Queue) claimedPath(id string) string { return filepath.Join(q.inbox, id+claimedSuffix) }
func (q *Queue) stopPath(id string) string    { return filepath.Join(q.inbox, id+stopSuffix) }
func (q *Queue) resultPath(id string) string  { return filepath.Join(q.outbox, id+resultSuffix) }

// validateID не пускает в имена файлов разделители путей.
func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidJobID, id)
	}
	return nil
}

// jobIDFromName возвращает ID задачи для имени файла в inbox
// или "", если файл не является ожидающей задачей.
func jobIDFromName(name string) string {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, jobSuffix) || strings.HasSuffix(name, resultSuffix) {
		return ""
	}
	return strings.TrimSuffix(name, jobSuffix)
}

// writeJSONAtomic пишет JSON во временный файл и переименовывает его,
// чтобы читатель никогда не видел частично записанный файл.
func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp := tempName(path)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// writeJSONExclusive атомарно создаёт файл, только если его ещё нет.
// Если файл уже существует, возвращает ErrResultExists.
func writeJSONExclusive(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp := tempName(path)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	defer os.Remove(tmp)

	// link, в отличие от rename, не заменяет существующий файл.
	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrResultExists
		}
		return fmt.Errorf("link result file: %w", err)
	}
	return nil
}

// tempName — скрытое имя временного файла рядом с path.
func tempName(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+tempSuffix)
}

// readJob читает job-файл.
func readJob(path string) (*domain.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	return &job, nil
}

// exists сообщает, существует ли файл.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
