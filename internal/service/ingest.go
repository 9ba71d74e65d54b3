package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/paulmach/orb/geojson"
)

var (
	// ErrNotFeatureCollection is returned for GeoJSON whose top-level type
	// is not FeatureCollection.
	ErrNotFeatureCollection = errors.New("not a GeoJSON FeatureCollection")

	// ErrUnsupportedExtension marks files whose extension is not recognised.
	ErrUnsupportedExtension = errors.New("unsupported file extension")
)

// File is one input file of an ingestion batch.
type File interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// BytesFile is an in-memory File.
type BytesFile struct {
	FileName string
	Data     []byte
}

func (f BytesFile) Name() string { return f.FileName }

func (f BytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

// MultipartFile adapts an uploaded form file.
type MultipartFile struct {
	Header *multipart.FileHeader
}

func (f MultipartFile) Name() string { return f.Header.Filename }

func (f MultipartFile) Open() (io.ReadCloser, error) { return f.Header.Open() }

// Ingest statuses.
const (
	StatusAdded   = "added"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// IngestResult reports what happened to one file.
type IngestResult struct {
	File    string
	Status  string
	LayerID string
	Kind    Kind
	Err     error
}

// Saver persists the current state.
type Saver interface {
	Save(ctx context.Context) error
}

// Ingester classifies files by extension and adds them to the registry.
type Ingester struct {
	registry *Registry
	saver    Saver
	bus      *EventBus
	logger   *log.Logger
}

// NewIngester creates an ingester. saver and bus may be nil.
func NewIngester(reg *Registry, saver Saver, bus *EventBus, logger *log.Logger) *Ingester {
	if logger == nil {
		logger = log.Default()
	}
	return &Ingester{registry: reg, saver: saver, bus: bus, logger: logger}
}

// HandleFiles processes files one after another. A failing file never stops
// the batch; its error is logged and reported in its result. After the
// batch the state is saved once.
func (in *Ingester) HandleFiles(ctx context.Context, files []File) []IngestResult {
	results := make([]IngestResult, 0, len(files))
	for _, f := range files {
		res := in.handleOne(ctx, f)
		switch res.Status {
		case StatusFailed:
			in.logger.Warn("invalid file", "file", res.File, "err", res.Err)
		case StatusSkipped:
			in.logger.Debug("skipping file", "file", res.File, "reason", res.Err)
		}
		results = append(results, res)
	}

	if in.saver != nil {
		if err := in.saver.Save(ctx); err != nil {
			in.logger.Error("saving snapshot", "err", err)
		}
	}
	return results
}

func (in *Ingester) handleOne(ctx context.Context, f File) (res IngestResult) {
	res.File = f.Name()
	defer func() {
		if p := recover(); p != nil {
			res.Status, res.LayerID = StatusFailed, ""
			res.Err = fmt.Errorf("panic while ingesting: %v", p)
		}
	}()

	if err := ctx.Err(); err != nil {
		return failed(res, err)
	}

	name := DisplayName(res.File)
	switch strings.ToLower(filepath.Ext(res.File)) {
	case ".geojson", ".json":
		res.Kind = KindVector
		data, err := readFile(f)
		if err != nil {
			return failed(res, err)
		}
		doc, err := ParseDocument(data)
		if err != nil {
			return failed(res, err)
		}
		res.LayerID = in.registry.AddVector(name, doc)

	case ".tif", ".tiff":
		res.Kind = KindRaster
		rc, err := f.Open()
		if err != nil {
			return failed(res, err)
		}
		defer rc.Close()

		in.bus.Publish(Event{Resource: ResourceRaster, Action: ActionLoading})
		id, err := in.registry.AddRaster(ctx, name, rc)
		in.bus.Publish(Event{Resource: ResourceRaster, Action: ActionLoaded, ID: id})
		if err != nil {
			return failed(res, err)
		}
		res.LayerID = id

	default:
		res.Status, res.Err = StatusSkipped, ErrUnsupportedExtension
		return res
	}

	res.Status = StatusAdded
	return res
}

func failed(res IngestResult, err error) IngestResult {
	res.Status, res.Err = StatusFailed, err
	return res
}

func readFile(f File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ParseDocument parses data and accepts it only when its top-level type is
// FeatureCollection. The returned document keeps a copy of data.
func ParseDocument(data []byte) (*Document, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parsing json: %w", err)
	}
	if head.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w (type %q)", ErrNotFeatureCollection, head.Type)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}
	return &Document{Raw: bytes.Clone(data), Collection: fc}, nil
}

// DisplayName strips the directory and the last extension from a file name.
func DisplayName(fileName string) string {
	base := filepath.Base(fileName)
	if ext := filepath.Ext(base); len(ext) > 1 {
		return strings.TrimSuffix(base, ext)
	}
	return base
}
