// Package recordio reads and writes case record files. Locations are local
// paths or s3://bucket/key URLs; files ending in .xlsx are read as
// spreadsheets with a header row, everything else as a JSON array.
package recordio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/judgment-cli/internal/model"
)

// ObjectStore reads and writes whole objects.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// Location is a parsed record file location.
type Location struct {
	Bucket string
	Key    string
	Path   string
}

// IsS3 reports whether the location is an S3 object.
func (l Location) IsS3() bool { return l.Bucket != "" }

func (l Location) name() string {
	if l.IsS3() {
		return l.Key
	}
	return l.Path
}

// String returns the location as given.
func (l Location) String() string {
	if l.IsS3() {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Path
}

// ParseLocation parses a local path or an s3://bucket/key URL.
func ParseLocation(loc string) (Location, error) {
	if loc == "" {
		return Location{}, eris.New("recordio: empty location")
	}
	rest, ok := strings.CutPrefix(loc, "s3://")
	if !ok {
		return Location{Path: loc}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, eris.Errorf("recordio: invalid s3 location %q", loc)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// IO reads and writes record files. The object store is only needed for
// s3:// locations.
type IO struct {
	objects ObjectStore
}

// New creates an IO. objects may be nil.
func New(objects ObjectStore) *IO {
	return &IO{objects: objects}
}

// Read loads the records at loc.
func (r *IO) Read(ctx context.Context, loc string) ([]model.CaseRecord, error) {
	l, err := ParseLocation(loc)
	if err != nil {
		return nil, err
	}
	data, err := r.readAll(ctx, l)
	if err != nil {
		return nil, err
	}

	var recs []model.CaseRecord
	if isXLSX(l.name()) {
		recs, err = DecodeXLSX(data, "")
	} else {
		recs, err = DecodeJSON(bytes.NewReader(data))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "recordio: read %s", loc)
	}
	zap.L().Info("recordio: loaded records", zap.String("location", loc), zap.Int("records", len(recs)))
	return recs, nil
}

// Write stores records at loc as an indented JSON array.
func (r *IO) Write(ctx context.Context, loc string, records []model.CaseRecord) error {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, records); err != nil {
		return err
	}
	if err := r.WriteBytes(ctx, loc, buf.Bytes(), "application/json"); err != nil {
		return err
	}
	zap.L().Info("recordio: wrote records", zap.String("location", loc), zap.Int("records", len(records)))
	return nil
}

// WriteBytes stores data at loc. Local files are replaced atomically.
func (r *IO) WriteBytes(ctx context.Context, loc string, data []byte, contentType string) error {
	l, err := ParseLocation(loc)
	if err != nil {
		return err
	}
	if l.IsS3() {
		if r.objects == nil {
			return eris.Errorf("recordio: no object store configured for %s", loc)
		}
		err = r.objects.Put(ctx, l.Bucket, l.Key, data, contentType)
	} else {
		err = writeFileAtomic(l.Path, data)
	}
	return eris.Wrapf(err, "recordio: write %s", loc)
}

func (r *IO) readAll(ctx context.Context, l Location) ([]byte, error) {
	if !l.IsS3() {
		data, err := os.ReadFile(l.Path)
		return data, eris.Wrapf(err, "recordio: read %s", l.Path)
	}
	if r.objects == nil {
		return nil, eris.Errorf("recordio: no object store configured for %s", l)
	}
	return r.objects.Get(ctx, l.Bucket, l.Key)
}

// DecodeJSON reads a JSON array of records.
func DecodeJSON(rd io.Reader) ([]model.CaseRecord, error) {
	var recs []model.CaseRecord
	if err := json.NewDecoder(rd).Decode(&recs); err != nil {
		return nil, eris.Wrap(err, "recordio: decode json")
	}
	return recs, nil
}

// EncodeJSON writes records as a JSON array indented by four spaces.
// Non-ASCII and HTML characters are written literally.
func EncodeJSON(w io.Writer, records []model.CaseRecord) error {
	if records == nil {
		records = []model.CaseRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return eris.Wrap(enc.Encode(records), "recordio: encode json")
}

// writeFileAtomic writes through a temp file in the target directory so a
// failed write never truncates an existing output.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func isXLSX(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}
