package ephemeris

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DataFileExt is the extension of Swiss Ephemeris binary files
const DataFileExt = ".se1"

var (
	ErrPathMissing         = errors.New("ephemeris path does not exist")
	ErrNotDirectory        = errors.New("ephemeris path is not a directory")
	ErrNoDataFiles         = errors.New("no ephemeris data files found")
	ErrRequiredFileMissing = errors.New("required ephemeris file missing")
	ErrFileChanged         = errors.New("ephemeris file changed since load")
)

// File describes one staged data file
type File struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	SHA256  string    `json:"sha256"`
	ModTime time.Time `json:"mod_time"`
}

// Dataset is the read-only ephemeris data directory as found at startup.
// It is never modified after Load returns.
type Dataset struct {
	path     string
	files    []File
	checksum string
	loadedAt time.Time
}

// Load inspects the directory at path. When required is empty at least one
// .se1 file must be present; otherwise every named file must be present.
func Load(path string, required []string) (*Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPathMissing, path)
		}
		return nil, fmt.Errorf("failed to stat ephemeris path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ephemeris path: %w", err)
	}

	present := make(map[string]bool, len(entries))
	var files []File
	dataFiles := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		f, err := describe(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		present[f.Name] = true
		if strings.EqualFold(filepath.Ext(f.Name), DataFileExt) {
			dataFiles++
		}
	}

	required = requiredNames(required)

	var missing []string
	for _, name := range required {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrRequiredFileMissing, strings.Join(missing, ", "))
	}
	if len(required) == 0 && dataFiles == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDataFiles, path)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	return &Dataset{
		path:     path,
		files:    files,
		checksum: aggregate(files),
		loadedAt: time.Now(),
	}, nil
}

// requiredNames trims names and drops blanks, so a list like "," counts as
// no requirement at all.
func requiredNames(names []string) []string {
	var out []string
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Verify re-checks that every file seen at load time is still in place with
// the same size.
func (d *Dataset) Verify() error {
	for _, f := range d.files {
		info, err := os.Stat(filepath.Join(d.path, f.Name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrRequiredFileMissing, f.Name)
			}
			return fmt.Errorf("failed to stat %s: %w", f.Name, err)
		}
		if info.Size() != f.Size {
			return fmt.Errorf("%w: %s size %d, expected %d", ErrFileChanged, f.Name, info.Size(), f.Size)
		}
	}
	return nil
}

// Path returns the dataset directory
func (d *Dataset) Path() string { return d.path }

// Files returns a copy of the file list, sorted by name
func (d *Dataset) Files() []File {
	out := make([]File, len(d.files))
	copy(out, d.files)
	return out
}

// TotalBytes returns the combined size of all files
func (d *Dataset) TotalBytes() int64 {
	var n int64
	for _, f := range d.files {
		n += f.Size
	}
	return n
}

// Checksum identifies the dataset contents
func (d *Dataset) Checksum() string { return d.checksum }

// LoadedAt returns when the dataset was inspected
func (d *Dataset) LoadedAt() time.Time { return d.loadedAt }

func describe(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return File{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return File{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return File{
		Name:    info.Name(),
		Size:    info.Size(),
		SHA256:  hex.EncodeToString(h.Sum(nil)),
		ModTime: info.ModTime().UTC(),
	}, nil
}

// aggregate hashes "name:sha256\n" for each file in name order
func aggregate(files []File) string {
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s:%s\n", f.Name, f.SHA256)
	}
	return hex.EncodeToString(h.Sum(nil))
}
