// Package audit provides a searchable in-memory index over context
// change records.
package audit

import (
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/taskmesh/coordkit/errors"
	"github.com/taskmesh/coordkit/sharedctx"
)

// Journal indexes every accepted change record for full-text search.
// The index lives entirely in memory and follows the process lifetime,
// like the rest of the coordination state.
type Journal struct {
	mu    sync.RWMutex
	index bleve.Index
}

// Entry is a search hit from the journal.
type Entry struct {
	ID         string    `json:"id"`
	ContextID  string    `json:"context_id"`
	ChangeType string    `json:"change_type"`
	ChangedBy  string    `json:"changed_by"`
	ChangedAt  time.Time `json:"changed_at"`
	Paths      string    `json:"paths"`
	Reason     string    `json:"reason"`
}

// NewJournal creates an empty in-memory journal.
func NewJournal() (*Journal, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, errors.Wrap(err, "create audit index")
	}
	return &Journal{index: index}, nil
}

// buildIndexMapping maps the journal entry fields: keywords for exact
// filters, analyzed text for the reason and touched paths.
func buildIndexMapping() mapping.IndexMapping {
	entryMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	dateFieldMapping := bleve.NewDateTimeFieldMapping()

	entryMapping.AddFieldMappingsAt("context_id", keywordFieldMapping)
	entryMapping.AddFieldMappingsAt("change_type", keywordFieldMapping)
	entryMapping.AddFieldMappingsAt("changed_by", keywordFieldMapping)
	entryMapping.AddFieldMappingsAt("changed_at", dateFieldMapping)
	entryMapping.AddFieldMappingsAt("paths", textFieldMapping)
	entryMapping.AddFieldMappingsAt("reason", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = entryMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Record indexes a change record. Implements sharedctx.Recorder.
func (j *Journal) Record(record sharedctx.ChangeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	paths := make([]string, 0, len(record.Changes))
	for _, ch := range record.Changes {
		paths = append(paths, ch.Path)
	}

	entry := Entry{
		ID:         record.ID,
		ContextID:  record.ContextID,
		ChangeType: string(record.ChangeType),
		ChangedBy:  record.ChangedBy,
		ChangedAt:  record.ChangedAt,
		Paths:      strings.Join(paths, " "),
		Reason:     record.Reason,
	}
	if err := j.index.Index(record.ID, entry); err != nil {
		return errors.Wrap(err, "index change record")
	}
	return nil
}

// Search runs a full-text query over reasons and touched paths.
func (j *Journal) Search(queryText string, limit int) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	matchQuery := bleve.NewMatchQuery(queryText)
	return j.search(bleve.NewSearchRequest(matchQuery), limit)
}

// ByAgent returns entries authored by one agent, most recent first.
func (j *Journal) ByAgent(agentID string, limit int) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	termQuery := bleve.NewTermQuery(agentID)
	termQuery.SetField("changed_by")
	return j.search(bleve.NewSearchRequest(termQuery), limit)
}

// ByContext returns entries for one context object, most recent first.
func (j *Journal) ByContext(contextID string, limit int) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	termQuery := bleve.NewTermQuery(contextID)
	termQuery.SetField("context_id")
	return j.search(bleve.NewSearchRequest(termQuery), limit)
}

// search executes a prepared request and maps hits back to entries.
func (j *Journal) search(req *bleve.SearchRequest, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	req.Size = limit
	req.Fields = []string{"context_id", "change_type", "changed_by", "changed_at", "paths", "reason"}
	req.SortBy([]string{"-changed_at"})

	results, err := j.index.Search(req)
	if err != nil {
		return nil, errors.Wrap(err, "search audit index")
	}

	entries := make([]Entry, 0, len(results.Hits))
	for _, hit := range results.Hits {
		entry := Entry{ID: hit.ID}
		if v, ok := hit.Fields["context_id"].(string); ok {
			entry.ContextID = v
		}
		if v, ok := hit.Fields["change_type"].(string); ok {
			entry.ChangeType = v
		}
		if v, ok := hit.Fields["changed_by"].(string); ok {
			entry.ChangedBy = v
		}
		if v, ok := hit.Fields["changed_at"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				entry.ChangedAt = ts
			}
		}
		if v, ok := hit.Fields["paths"].(string); ok {
			entry.Paths = v
		}
		if v, ok := hit.Fields["reason"].(string); ok {
			entry.Reason = v
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close releases the index.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.index.Close()
}
