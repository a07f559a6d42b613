package index

import (
	"errors"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "osu.bleve"

// Item is one indexed beatmapset archive. Fields are searchable by their
// JSON tag names (e.g. '+artist:camellia' or '+versions:insane').
type Item struct {
	ID            string    `json:"id"`   // s_<set id>
	Type          string    `json:"type"` // always "beatmapset"
	SetID         string    `json:"setId"`
	Name          string    `json:"name"` // "Artist - Title"
	Title         string    `json:"title,omitempty"`
	Artist        string    `json:"artist,omitempty"`
	Creator       string    `json:"creator,omitempty"`
	Source        string    `json:"source,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Versions      []string  `json:"versions,omitempty"` // difficulty names
	Files         []string  `json:"files,omitempty"`    // archive member names
	FilePath      string    `json:"filePath"`
	DirectoryPath string    `json:"directoryPath,omitempty"`
	FileSizeKB    float64   `json:"fileSizeKB,omitempty"`
	Blake3        string    `json:"blake3,omitempty"`
	NoVideo       bool      `json:"noVideo"`
	DownloadedAt  time.Time `json:"downloadedAt,omitempty"`

	// Populated by the 'torrent' command
	TorrentPath string `json:"torrentPath,omitempty"`
	MagnetLink  string `json:"magnetLink,omitempty"`
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	index, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		log.Infof("Creating new index at: %s", indexPath)
		index, err = bleve.New(indexPath, bleve.NewIndexMapping())
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		log.Debugf("Opened existing index at: %s", indexPath)
	}
	return index, nil
}

// IndexItem adds or updates an item in the Bleve index.
func IndexItem(index bleve.Index, item Item) error {
	return index.Index(item.ID, item)
}

// SearchIndex performs a query-string search and returns up to limit hits
// with all stored fields.
func SearchIndex(index bleve.Index, query string, limit int) (*bleve.SearchResult, error) {
	req := bleve.NewSearchRequest(bleve.NewQueryStringQuery(query))
	if limit > 0 {
		req.Size = limit
	}
	req.Fields = []string{"*"}
	return index.Search(req)
}

// DeleteIndex removes the index directory. Use with caution!
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Infof("Deleting index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}
