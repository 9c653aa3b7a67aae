package stratum

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
	"github.com/qbound/qbound/qbound"
)

const (
	artifactExt  = ".qba"
	backupSuffix = "-backup"
	registryBase = "minimals"
)

var artifactNameRE = regexp.MustCompile(`^([a-z]+)_(\d+)_verts_(\d+)_edges(-backup)?\.qba$`)

func artifactBase(fam qbound.Family, s qbound.Stratum) string {
	return fmt.Sprintf("%s_%d_verts_%d_edges", fam, s.N, s.M)
}

func (st *Store) familyDir(fam qbound.Family) string {
	return filepath.Join(st.dir, fam.String())
}

// artifactPaths returns the primary and backup file paths for a stratum artifact.
func (st *Store) artifactPaths(fam qbound.Family, s qbound.Stratum) (primary, backup string) {
	base := filepath.Join(st.familyDir(fam), artifactBase(fam, s))
	return base + artifactExt, base + backupSuffix + artifactExt
}

func (st *Store) registryPaths() (primary, backup string) {
	base := filepath.Join(st.familyDir(qbound.FamilyMinimals), registryBase)
	return base + artifactExt, base + backupSuffix + artifactExt
}

// ResumeFrontier returns the stratum a family's resume starts from: the largest vertex count with any artifact,
// then the smallest edge count among that vertex count's artifacts.  Primary and backup names both count.
//
// found is false when the family has no artifacts (a cold start).
func (st *Store) ResumeFrontier(fam qbound.Family) (frontier qbound.Stratum, found bool, err error) {
	entries, err := os.ReadDir(st.familyDir(fam))
	if err != nil {
		if os.IsNotExist(err) {
			err = nil
		}
		return
	}

	for _, entry := range entries {
		s, ok := parseArtifactName(fam, entry.Name())
		if !ok || s.N > st.maxVerts {
			continue
		}
		switch {
		case !found:
			frontier, found = s, true
		case s.N > frontier.N:
			frontier = s
		case s.N == frontier.N && s.M < frontier.M:
			frontier = s
		}
	}
	return
}

func parseArtifactName(fam qbound.Family, name string) (qbound.Stratum, bool) {
	match := artifactNameRE.FindStringSubmatch(name)
	if match == nil || match[1] != fam.String() {
		return qbound.Stratum{}, false
	}
	n, errN := strconv.Atoi(match[2])
	m, errM := strconv.Atoi(match[3])
	s := qbound.Stratum{N: n, M: m}
	if errN != nil || errM != nil || !s.Valid() {
		return qbound.Stratum{}, false
	}
	return s, true
}

var allFamilies = []qbound.Family{qbound.FamilyValues, qbound.FamilySeen, qbound.FamilyCompleted, qbound.FamilyMinimals}

// removeStaleTemps deletes temp files left by writes that were killed before their rename.
func (st *Store) removeStaleTemps() (removed int, err error) {
	for _, fam := range allFamilies {
		stale, globErr := filepath.Glob(filepath.Join(st.familyDir(fam), "*"+artifactExt+".*.tmp"))
		if globErr != nil {
			return removed, globErr
		}
		for _, path := range stale {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return removed, errors.Wrap(rmErr, "removing stale temp artifact")
			}
			removed++
		}
	}
	return removed, nil
}

func (st *Store) makeDirs() error {
	for _, fam := range allFamilies {
		if err := os.MkdirAll(st.familyDir(fam), 0o755); err != nil {
			return errors.Wrapf(err, "creating %s directory", fam)
		}
	}
	return nil
}
