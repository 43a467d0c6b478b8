// Package models defines the core data structures used throughout the application.
package models

import (
	"time"
)

// ReferenceType classifies a bibliographic reference.
type ReferenceType string

const (
	TypeJournalArticle  ReferenceType = "journal_article"
	TypeBook            ReferenceType = "book"
	TypeConferencePaper ReferenceType = "conference_paper"
	TypeReport          ReferenceType = "report"
	TypeWebpage         ReferenceType = "webpage"
	TypeOther           ReferenceType = "other"
)

// ParseReferenceType maps free-form type labels onto a ReferenceType.
func ParseReferenceType(s string) ReferenceType {
	switch s {
	case "journal_article", "journal", "article":
		return TypeJournalArticle
	case "book":
		return TypeBook
	case "conference_paper", "conference", "proceedings":
		return TypeConferencePaper
	case "report":
		return TypeReport
	case "webpage", "website", "web":
		return TypeWebpage
	default:
		return TypeOther
	}
}

// IsAcademic reports whether the type is normally indexed by the identifier registry.
func (t ReferenceType) IsAcademic() bool {
	return t == TypeJournalArticle || t == TypeConferencePaper
}

// RawReference is one caller-supplied citation string and its input position.
type RawReference struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ReferenceRecord is the structured view of one input citation.
// Records are created once per input string and treated as read-only afterwards.
type ReferenceRecord struct {
	RawText       string        `json:"raw_text"`
	Title         string        `json:"title,omitempty"`
	Authors       []string      `json:"authors,omitempty"`
	Year          int           `json:"year,omitempty"`
	Journal       string        `json:"journal,omitempty"`
	Publisher     string        `json:"publisher,omitempty"`
	DOI           string        `json:"doi,omitempty"`
	URL           string        `json:"url,omitempty"`
	Type          ReferenceType `json:"type"`
	OriginalIndex int           `json:"original_index"`
}

// HasIdentifier reports whether the record carries a persistent identifier.
func (r ReferenceRecord) HasIdentifier() bool {
	return r.DOI != ""
}

// FirstAuthor returns the first listed author or an empty string.
func (r ReferenceRecord) FirstAuthor() string {
	if len(r.Authors) == 0 {
		return ""
	}
	return r.Authors[0]
}

// EvidenceItem is one web search hit considered as support for a reference.
type EvidenceItem struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// VerificationStatus is the verdict for one reference.
type VerificationStatus string

const (
	StatusVerified  VerificationStatus = "verified"
	StatusAmbiguous VerificationStatus = "ambiguous"
	StatusNotFound  VerificationStatus = "not_found"
	StatusError     VerificationStatus = "error"
	StatusPending   VerificationStatus = "pending"
)

// Cacheable reports whether a result with this status is a settled verdict.
func (s VerificationStatus) Cacheable() bool {
	return s == StatusVerified || s == StatusAmbiguous || s == StatusNotFound
}

// SourceType indicates which authority produced the verdict.
type SourceType string

const (
	SourceIdentifierRegistry SourceType = "identifier_registry"
	SourceWebEvidence        SourceType = "web_evidence"
	SourceError              SourceType = "error"
)

// ConfidenceLevel is the discretised confidence band.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// LevelFor converts a numeric confidence into its band.
func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.8:
		return ConfidenceHigh
	case confidence >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// EvidenceSummary is a condensed view of a scored web result.
type EvidenceSummary struct {
	URL     string   `json:"url"`
	Score   float64  `json:"score"`
	Matches []string `json:"matches,omitempty"`
}

// SupportingDetails carries the canonical publication facts behind a verdict.
type SupportingDetails struct {
	Authors       []string          `json:"authors,omitempty"`
	Title         string            `json:"title,omitempty"`
	Year          int               `json:"year,omitempty"`
	Journal       string            `json:"journal,omitempty"`
	Publisher     string            `json:"publisher,omitempty"`
	CitationCount int               `json:"citation_count,omitempty"`
	Evidence      []EvidenceSummary `json:"evidence,omitempty"`
}

// VerificationResult is the externally visible verdict for one reference.
type VerificationResult struct {
	Index             int                `json:"index"`
	ReferenceText     string             `json:"reference"`
	Status            VerificationStatus `json:"status"`
	Confidence        float64            `json:"confidence"`
	ConfidenceLevel   ConfidenceLevel    `json:"confidence_level"`
	Source            SourceType         `json:"source"`
	Identifier        string             `json:"doi,omitempty"`
	Message           string             `json:"message"`
	SupportingDetails *SupportingDetails `json:"details,omitempty"`
}

// EventType identifies a verification stream event.
type EventType string

const (
	EventStart              EventType = "start"
	EventExtractionComplete EventType = "extraction_complete"
	EventResult             EventType = "result"
	EventError              EventType = "error"
	EventComplete           EventType = "complete"
)

// Progress reports how many references have been resolved so far.
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Event is one value of the verification stream.
type Event struct {
	Type      EventType           `json:"type"`
	Message   string              `json:"message,omitempty"`
	Total     int                 `json:"total,omitempty"`
	Count     int                 `json:"count,omitempty"`
	Processed int                 `json:"processed,omitempty"`
	Data      *VerificationResult `json:"data,omitempty"`
	Progress  *Progress           `json:"progress,omitempty"`
}

// RunSummary aggregates the outcome of one verification run.
type RunSummary struct {
	ID               string    `json:"id"`
	Total            int       `json:"total"`
	Processed        int       `json:"processed"`
	Verified         int       `json:"verified"`
	Ambiguous        int       `json:"ambiguous"`
	NotFound         int       `json:"not_found"`
	Errors           int       `json:"errors"`
	Pending          int       `json:"pending"`
	CacheHits        int       `json:"cache_hits"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	Status           string    `json:"status"` // completed, timed_out, extraction_failed
	CreatedAt        time.Time `json:"created_at"`
}

// Count adds a result to the per-status tallies.
func (s *RunSummary) Count(r VerificationResult) {
	s.Processed++
	switch r.Status {
	case StatusVerified:
		s.Verified++
	case StatusAmbiguous:
		s.Ambiguous++
	case StatusNotFound:
		s.NotFound++
	case StatusError:
		s.Errors++
	case StatusPending:
		s.Pending++
	}
}

// RunRecord is a stored run together with its results ordered by index.
type RunRecord struct {
	Summary RunSummary           `json:"summary"`
	Results []VerificationResult `json:"results"`
}

// VerifyRequest is the request body for verification endpoints.
type VerifyRequest struct {
	References []string `json:"references"`
}

// VerifyResponse is the response body of the non-streaming verification endpoint.
type VerifyResponse struct {
	Run     RunSummary           `json:"run"`
	Results []VerificationResult `json:"results"`
}

// AuditLog records one authenticated API request.
type AuditLog struct {
	ID           string    `json:"id"`
	KeyID        string    `json:"key_id"`
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	RequestSize  int64     `json:"request_size"`
	ResponseCode int       `json:"response_code"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}
