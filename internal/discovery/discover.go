package discovery

import (
	"cmp"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
)

// Discover lists every site under root. Each immediate, non-hidden
// subdirectory is a site; its audio files are collected recursively.
// Sites without matching files are returned with Empty set.
func Discover(fsys afero.Fs, root string, extensions []string) ([]Site, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := normalizeExtensions(extensions)

	root = filepath.Clean(root)
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, errors.New(err).
			Component("discovery").
			Category(errors.CategoryConfiguration).
			Context("audio_root", root).
			Build()
	}
	if !info.IsDir() {
		return nil, errors.Newf("audio root %s is not a directory", root).
			Component("discovery").
			Category(errors.CategoryConfiguration).
			Build()
	}

	entries, err := afero.ReadDir(fsys, root)
	if err != nil {
		return nil, errors.New(err).
			Component("discovery").
			Category(errors.CategoryConfiguration).
			Context("audio_root", root).
			Build()
	}

	log := GetLogger()
	var sites []Site
	for _, entry := range entries {
		name := entry.Name()
		if isHidden(name) {
			continue
		}
		if !entry.IsDir() {
			log.Debug("ignoring file outside any site folder", logger.String("name", name))
			continue
		}

		sitePath := filepath.Join(root, name)
		id, err := SiteID(sitePath)
		if err != nil {
			log.Warn("skipping folder without usable site id", logger.String("path", sitePath), logger.Error(err))
			continue
		}

		files, err := listAudio(fsys, sitePath, exts)
		if err != nil {
			// An unreadable site behaves like an empty one; the orchestrator reports it.
			log.Warn("failed to list site audio",
				logger.String("site", id),
				logger.Error(errors.New(err).
					Component("discovery").
					Category(errors.CategoryDiscovery).
					SiteContext(id).
					Build()))
			files = nil
		}

		sites = append(sites, Site{
			ID:    id,
			Path:  sitePath,
			Files: files,
			Empty: len(files) == 0,
		})
	}

	slices.SortStableFunc(sites, func(a, b Site) int {
		if c := cmp.Compare(strings.ToLower(a.ID), strings.ToLower(b.ID)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return sites, nil
}

// listAudio walks sitePath and returns matching files ordered by key.
func listAudio(fsys afero.Fs, sitePath string, exts map[string]struct{}) ([]AudioFile, error) {
	var files []AudioFile

	err := afero.Walk(fsys, sitePath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == sitePath {
			return nil
		}
		if isHidden(info.Name()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(info.Name()))]; !ok {
			return nil
		}

		rel, err := filepath.Rel(sitePath, p)
		if err != nil {
			return err
		}
		files = append(files, AudioFile{
			Path: p,
			Key:  NormalizeKey(path.Clean(filepath.ToSlash(rel))),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(files, func(a, b AudioFile) int {
		return strings.Compare(a.Key, b.Key)
	})
	return files, nil
}

func normalizeExtensions(extensions []string) map[string]struct{} {
	out := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
