package vector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rcliao/hybrid-memory/internal/model"
)

const (
	IndexFile = "vector_index.bin"
	IDMapFile = "id_map.json"

	fileMagic   = "HMVI"
	fileVersion = 1
	buildIDLen  = 26
)

// ErrCorrupt marks an artifact pair that could not be read back consistently.
var ErrCorrupt = errors.New("vector index artifact corrupt")

type idMapFile struct {
	BuildID    string       `json:"build_id"`
	Generation int64        `json:"generation"`
	Dimension  int          `json:"dimension"`
	Slots      int          `json:"slots"`
	Entries    []idMapEntry `json:"entries"`
}

type idMapEntry struct {
	Slot int   `json:"slot"`
	ID   int64 `json:"id"`
}

// Persist writes the index and its id map to dir, stamped with generation.
// Both files go through temp files and renames so a reader never sees a half-written file.
func (x *Index) Persist(dir string, generation int64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create index dir: %w", model.ErrIndex, err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.generation = generation

	binTmp := filepath.Join(dir, IndexFile+".tmp")
	mapTmp := filepath.Join(dir, IDMapFile+".tmp")

	if err := x.writeVectorsLocked(binTmp); err != nil {
		os.Remove(binTmp)
		return fmt.Errorf("%w: write vectors: %w", model.ErrIndex, err)
	}
	if err := x.writeIDMapLocked(mapTmp); err != nil {
		os.Remove(binTmp)
		os.Remove(mapTmp)
		return fmt.Errorf("%w: write id map: %w", model.ErrIndex, err)
	}
	if err := os.Rename(binTmp, filepath.Join(dir, IndexFile)); err != nil {
		return fmt.Errorf("%w: commit vectors: %w", model.ErrIndex, err)
	}
	if err := os.Rename(mapTmp, filepath.Join(dir, IDMapFile)); err != nil {
		return fmt.Errorf("%w: commit id map: %w", model.ErrIndex, err)
	}
	return nil
}

func (x *Index) writeVectorsLocked(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	header := []interface{}{
		[]byte(fileMagic),
		uint32(fileVersion),
		uint32(x.dim),
		uint32(len(x.slots)),
		x.generation,
		[]byte(padBuildID(x.buildID)),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			f.Close()
			return err
		}
	}
	for _, vec := range x.slots {
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (x *Index) writeIDMapLocked(path string) error {
	m := idMapFile{
		BuildID:    x.buildID,
		Generation: x.generation,
		Dimension:  x.dim,
		Slots:      len(x.slots),
		Entries:    make([]idMapEntry, 0, len(x.slotToID)),
	}
	for slot := range x.slots {
		if id, ok := x.slotToID[slot]; ok {
			m.Entries = append(m.Entries, idMapEntry{Slot: slot, ID: id})
		}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads the artifact pair from dir. It always returns a usable index:
// when the pair is missing, corrupt or of another dimension, the returned
// index is empty and err says why.
func Load(dir string, dim int) (*Index, error) {
	x, err := load(dir, dim)
	if err != nil {
		return New(dim), err
	}
	return x, nil
}

func load(dir string, dim int) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(dir, IDMapFile))
	if err != nil {
		return nil, err
	}
	var m idMapFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: id map: %w", ErrCorrupt, err)
	}
	if m.Dimension != dim {
		return nil, fmt.Errorf("%w: artifact has %d, want %d", model.ErrDimensionMismatch, m.Dimension, dim)
	}

	f, err := os.Open(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	r := bufio.NewReader(f)

	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != fileMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	var version, fileDim, slots uint32
	var generation int64
	for _, v := range []interface{}{&version, &fileDim, &slots, &generation} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("%w: header: %w", ErrCorrupt, err)
		}
	}
	idBuf := make([]byte, buildIDLen)
	if _, err := io.ReadFull(r, idBuf); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrCorrupt, err)
	}
	if version != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	if int(fileDim) != dim {
		return nil, fmt.Errorf("%w: artifact has %d, want %d", model.ErrDimensionMismatch, fileDim, dim)
	}
	if int(slots) != m.Slots || generation != m.Generation || string(idBuf) != padBuildID(m.BuildID) {
		return nil, fmt.Errorf("%w: vector file and id map disagree", ErrCorrupt)
	}
	header := int64(len(fileMagic) + 3*4 + 8 + buildIDLen)
	if need := int64(slots) * int64(dim) * 4; need > info.Size()-header {
		return nil, fmt.Errorf("%w: %d slots need %d bytes, file has %d", ErrCorrupt, slots, need, info.Size()-header)
	}

	x := New(dim)
	x.buildID = m.BuildID
	x.generation = m.Generation
	x.slots = make([][]float32, slots)
	for i := range x.slots {
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("%w: slot %d: %w", ErrCorrupt, i, err)
		}
		x.slots[i] = vec
	}

	for _, e := range m.Entries {
		if e.Slot < 0 || e.Slot >= len(x.slots) {
			return nil, fmt.Errorf("%w: slot %d out of range", ErrCorrupt, e.Slot)
		}
		if _, dup := x.idToSlot[e.ID]; dup {
			return nil, fmt.Errorf("%w: id %d mapped twice", ErrCorrupt, e.ID)
		}
		x.slotToID[e.Slot] = e.ID
		x.idToSlot[e.ID] = e.Slot
	}
	return x, nil
}

func padBuildID(id string) string {
	if len(id) >= buildIDLen {
		return id[:buildIDLen]
	}
	return id + string(make([]byte, buildIDLen-len(id)))
}
