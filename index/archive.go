package index

import (
	"archive/zip"
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go-osu-download/internal/models"
)

// ItemFromArchive builds an Item from a downloaded .osz. Member names are
// always collected; song metadata comes from the [Metadata] section of the
// first difficulty file that has one.
func ItemFromArchive(setID, path string) (Item, error) {
	item := Item{
		ID:            models.EntryKey(setID),
		Type:          "beatmapset",
		SetID:         setID,
		Name:          setID,
		FilePath:      path,
		DirectoryPath: filepath.Dir(path),
	}
	if info, err := os.Stat(path); err == nil {
		item.FileSizeKB = float64(info.Size()) / 1024
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return item, fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		item.Files = append(item.Files, f.Name)
		if !strings.EqualFold(filepath.Ext(f.Name), ".osu") {
			continue
		}
		md, err := readMetadata(f)
		if err != nil {
			continue
		}
		if v := md["Version"]; v != "" {
			item.Versions = append(item.Versions, v)
		}
		if item.Title == "" && md["Title"] != "" {
			item.Title = md["Title"]
			item.Artist = md["Artist"]
			item.Creator = md["Creator"]
			item.Source = md["Source"]
			item.Tags = strings.Fields(md["Tags"])
		}
	}
	sort.Strings(item.Versions)
	if item.Title != "" {
		item.Name = item.Artist + " - " + item.Title
	}
	return item, nil
}

// readMetadata collects Key:Value pairs from the [Metadata] section.
func readMetadata(f *zip.File) (map[string]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	md := map[string]string{}
	inSection := false
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") {
			if inSection {
				break
			}
			inSection = line == "[Metadata]"
			continue
		}
		if !inSection {
			continue
		}
		if key, value, ok := strings.Cut(line, ":"); ok {
			md[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return md, sc.Err()
}
