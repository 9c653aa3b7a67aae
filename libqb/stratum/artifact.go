package stratum

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/gogo/protobuf/proto"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"github.com/qbound/qbound/libqb/metrics"
	"github.com/qbound/qbound/qbound"
)

/***

Artifact file format:

	"QBA1"              magic
	family              byte
	n, m, count         varint
	count records:
		key             varint length + bytes
		value           varint (values and minimals families only)
	checksum            8 bytes, little-endian xxhash64 of everything above

The minimals registry is a single artifact with stratum (0,0) whose record values are the registry's k.

***/

var artifactMagic = []byte("QBA1")

const checksumLen = 8

// ReloadOutcome says where a reloaded artifact came from.
type ReloadOutcome int

const (
	Missing     ReloadOutcome = iota // neither file exists (cold)
	FromPrimary                      // primary decoded
	FromBackup                       // primary missing or corrupt, backup decoded
	Lost                             // files exist but none decoded (treated as cold)
)

var outcomeNames = []string{"missing", "primary", "backup", "lost"}

func (outcome ReloadOutcome) String() string {
	return outcomeNames[outcome]
}

// artifact is the decoded content of one artifact file.
type artifact struct {
	Family  qbound.Family
	Stratum qbound.Stratum
	Keys    []qbound.Key
	Values  []int // parallel to Keys when the family carries values
}

func hasValues(fam qbound.Family) bool {
	return fam == qbound.FamilyValues || fam == qbound.FamilyMinimals
}

func (a *artifact) Marshal() []byte {
	hdr := make([]byte, 0, 32+16*len(a.Keys))
	hdr = append(hdr, artifactMagic...)
	hdr = append(hdr, byte(a.Family))

	buf := proto.NewBuffer(hdr)
	buf.EncodeVarint(uint64(a.Stratum.N))
	buf.EncodeVarint(uint64(a.Stratum.M))
	buf.EncodeVarint(uint64(len(a.Keys)))
	withValues := hasValues(a.Family)
	for i, key := range a.Keys {
		buf.EncodeStringBytes(string(key))
		if withValues {
			buf.EncodeVarint(uint64(a.Values[i]))
		}
	}

	body := buf.Bytes()
	return binary.LittleEndian.AppendUint64(body, xxhash.Sum64(body))
}

func (a *artifact) Unmarshal(data []byte) error {
	hdrLen := len(artifactMagic) + 1
	if len(data) < hdrLen+checksumLen {
		return errors.Wrap(qbound.ErrUnmarshal, "artifact truncated")
	}

	body := data[:len(data)-checksumLen]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(data[len(body):]) {
		return errors.Wrap(qbound.ErrUnmarshal, "artifact checksum mismatch")
	}
	if !bytes.Equal(body[:len(artifactMagic)], artifactMagic) {
		return errors.Wrap(qbound.ErrUnmarshal, "bad artifact magic")
	}
	a.Family = qbound.Family(body[len(artifactMagic)])

	buf := proto.NewBuffer(body[hdrLen:])
	var hdr [3]uint64
	for i := range hdr {
		x, err := buf.DecodeVarint()
		if err != nil {
			return errors.Wrap(qbound.ErrUnmarshal, "artifact header")
		}
		hdr[i] = x
	}
	if hdr[0] > qbound.MaxVertices || hdr[1] > qbound.MaxEdges || hdr[2] > uint64(len(body)) {
		return errors.Wrapf(qbound.ErrUnmarshal, "artifact header %v out of range", hdr)
	}
	a.Stratum = qbound.Stratum{N: int(hdr[0]), M: int(hdr[1])}
	count := int(hdr[2])
	if !a.Stratum.Valid() {
		return errors.Wrapf(qbound.ErrUnmarshal, "artifact header %v count %d", a.Stratum, count)
	}

	withValues := hasValues(a.Family)
	a.Keys = make([]qbound.Key, count)
	a.Values = nil
	if withValues {
		a.Values = make([]int, count)
	}
	for i := 0; i < count; i++ {
		key, err := buf.DecodeStringBytes()
		if err != nil {
			return errors.Wrapf(qbound.ErrUnmarshal, "artifact record %d", i)
		}
		a.Keys[i] = qbound.Key(key)
		if withValues {
			x, err := buf.DecodeVarint()
			if err != nil {
				return errors.Wrapf(qbound.ErrUnmarshal, "artifact record %d value", i)
			}
			a.Values[i] = int(x)
		}
	}
	return nil
}

// writeArtifact writes the primary and then the backup, each through a synced temp file renamed into place.
func writeArtifact(a *artifact, primary, backup string) error {
	data := a.Marshal()
	for _, path := range []string{primary, backup} {
		if err := writeFileAtomic(path, data); err != nil {
			return err
		}
	}
	metrics.Checkpoints.WithLabelValues(a.Family.String()).Inc()
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp artifact")
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "writing artifact %s", path)
	}
	return nil
}

func readArtifact(path string, fam qbound.Family, s qbound.Stratum) (*artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	a := &artifact{}
	err = a.Unmarshal(data)
	if err == nil && (a.Family != fam || a.Stratum != s) {
		err = errors.Wrapf(qbound.ErrUnmarshal, "artifact holds %s %v, want %s %v", a.Family, a.Stratum, fam, s)
	}
	if err != nil {
		return nil, &qbound.StorageCorruptionError{Path: path, Err: err}
	}
	return a, nil
}

// reloadArtifact reads the primary, falling back to the backup.
// err is set only for the Lost outcome and holds why each file was rejected.
func reloadArtifact(fam qbound.Family, s qbound.Stratum, primary, backup string) (*artifact, ReloadOutcome, error) {
	outcome, a, err := reloadPair(fam, s, primary, backup)
	metrics.ArtifactReloads.WithLabelValues(outcome.String()).Inc()
	return a, outcome, err
}

func reloadPair(fam qbound.Family, s qbound.Stratum, primary, backup string) (ReloadOutcome, *artifact, error) {
	a, primaryErr := readArtifact(primary, fam, s)
	if primaryErr == nil {
		return FromPrimary, a, nil
	}
	primaryExists := !errors.Is(primaryErr, fs.ErrNotExist)
	if primaryExists {
		klog.Warningf("%s %v: primary unreadable, trying backup: %v", fam, s, primaryErr)
	}

	a, backupErr := readArtifact(backup, fam, s)
	if backupErr == nil {
		return FromBackup, a, nil
	}
	backupExists := !errors.Is(backupErr, fs.ErrNotExist)

	if !primaryExists && !backupExists {
		return Missing, nil, nil
	}

	var lost error
	if primaryExists {
		lost = multierror.Append(lost, primaryErr)
	}
	if backupExists {
		lost = multierror.Append(lost, backupErr)
	}
	klog.Errorf("DATA LOSS: %s %v unrecoverable, treating as cold: %v", fam, s, lost)
	return Lost, nil, lost
}
