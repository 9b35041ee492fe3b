// Package handler implements the HTTP-facing search workflow: resume
// upload, match runs, refinement and result retrieval.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/steph-grigors/ai-job-matcher/internal/config"
	"github.com/steph-grigors/ai-job-matcher/internal/fetcher"
	"github.com/steph-grigors/ai-job-matcher/internal/parser"
	"github.com/steph-grigors/ai-job-matcher/internal/refiner"
	"github.com/steph-grigors/ai-job-matcher/internal/session"
	"github.com/steph-grigors/ai-job-matcher/internal/storage"
	"github.com/steph-grigors/ai-job-matcher/internal/storage/models"
	"github.com/steph-grigors/ai-job-matcher/internal/types"
)

// EventSearchCompleted is the outbox event type emitted after a match run.
const EventSearchCompleted = "search.completed"

// ErrNoKeywords means neither the request nor the profile yields search
// keywords to run with.
var ErrNoKeywords = errors.New("no search keywords in request or profile")

// TextExtractor extracts plain text from an uploaded resume.
type TextExtractor interface {
	ExtractFromBytes(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error)
}

// ProfileStructurer turns resume text into a structured profile.
type ProfileStructurer interface {
	StructureProfile(ctx context.Context, text string) (*types.ResumeProfile, error)
}

// ListingFetcher retrieves the candidate listing set.
type ListingFetcher interface {
	Search(ctx context.Context, params fetcher.SearchParams) ([]*types.JobListing, error)
}

// ListingMatcher ranks listings against a profile.
type ListingMatcher interface {
	Match(ctx context.Context, profile *types.ResumeProfile, listings []*types.JobListing) ([]types.MatchResult, error)
}

// ResultRefiner narrows existing results from a free-text instruction.
type ResultRefiner interface {
	Refine(ctx context.Context, instruction string, results []types.MatchResult, listings map[string]*types.JobListing) (*refiner.Outcome, error)
}

// SearchHandler coordinates the pipeline components for one HTTP API.
type SearchHandler struct {
	extractor  TextExtractor
	structurer ProfileStructurer
	fetcher    ListingFetcher
	matcher    ListingMatcher
	refiner    ResultRefiner
	sessions   *session.Registry
	store      *storage.Storage
	mqCfg      *config.RabbitMQConfig
	logger     zerolog.Logger
}

// NewSearchHandler wires the handler. store may carry nil components;
// persistence and object storage are then skipped.
func NewSearchHandler(
	extractor TextExtractor,
	structurer ProfileStructurer,
	listingFetcher ListingFetcher,
	listingMatcher ListingMatcher,
	resultRefiner ResultRefiner,
	sessions *session.Registry,
	store *storage.Storage,
	mqCfg *config.RabbitMQConfig,
	logger zerolog.Logger,
) *SearchHandler {
	return &SearchHandler{
		extractor:  extractor,
		structurer: structurer,
		fetcher:    listingFetcher,
		matcher:    listingMatcher,
		refiner:    resultRefiner,
		sessions:   sessions,
		store:      store,
		mqCfg:      mqCfg,
		logger:     logger,
	}
}

// UploadResponse is returned after a successful resume upload.
type UploadResponse struct {
	SessionID string               `json:"session_id"`
	Profile   *types.ResumeProfile `json:"profile"`
	ResumeURI string               `json:"resume_uri,omitempty"`
}

// RunRequest is the body of a match run.
type RunRequest struct {
	Keywords   string `json:"keywords"`
	Location   string `json:"location,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

// RunResponse is returned after a completed match run.
type RunResponse struct {
	SessionID    string              `json:"session_id"`
	ListingCount int                 `json:"listing_count"`
	Results      []types.MatchResult `json:"results"`
}

// RefineRequest is the body of a refinement call.
type RefineRequest struct {
	Instruction string `json:"instruction"`
}

// RefineResponse is returned after a refinement.
type RefineResponse struct {
	SessionID   string              `json:"session_id"`
	Interpreted bool                `json:"interpreted"`
	Results     []types.MatchResult `json:"results"`
}

// ResultsResponse is the current state of a session's results.
type ResultsResponse struct {
	SessionID string               `json:"session_id"`
	Profile   *types.ResumeProfile `json:"profile"`
	Results   []types.MatchResult  `json:"results"`
	Listings  []*types.JobListing  `json:"listings,omitempty"`
}

// HandleUpload extracts and structures the uploaded resume, stores the
// original PDF when object storage is available and opens a session.
func (h *SearchHandler) HandleUpload(ctx context.Context, data []byte, filename string) (*UploadResponse, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", parser.ErrExtractionFailure)
	}

	text, _, err := h.extractor.ExtractFromBytes(ctx, data, filename)
	if err != nil {
		return nil, newSearchError("", "extract", err)
	}

	profile, err := h.structurer.StructureProfile(ctx, text)
	if err != nil {
		return nil, newSearchError("", "structure", err)
	}

	resumeURI := ""
	if h.store != nil && h.store.MinIO != nil {
		objectName := fmt.Sprintf("%d-%s", time.Now().UnixNano(), filename)
		uri, upErr := h.store.MinIO.UploadResume(ctx, objectName, data, "application/pdf")
		if upErr != nil {
			h.logger.Warn().Err(upErr).Msg("resume object upload failed, continuing without archive")
		} else {
			resumeURI = uri
		}
	}

	sess, err := h.sessions.Create(profile, resumeURI)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	h.logger.Info().Str("session_id", sess.ID).Int("resume_chars", len(text)).Msg("resume processed")
	return &UploadResponse{SessionID: sess.ID, Profile: profile, ResumeURI: resumeURI}, nil
}

// HandleRun fetches listings for the request, ranks them against the
// session profile and stores the outcome on the session.
func (h *SearchHandler) HandleRun(ctx context.Context, sessionID string, req RunRequest) (*RunResponse, error) {
	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	// The request only overrides; the profile fills in what it leaves out.
	keywords := strings.TrimSpace(req.Keywords)
	if keywords == "" {
		keywords = keywordsFromProfile(sess.Profile)
	}
	if keywords == "" {
		return nil, newSearchError(sessionID, "fetch", ErrNoKeywords)
	}
	location := strings.TrimSpace(req.Location)
	if location == "" && sess.Profile != nil {
		location = sess.Profile.Preferences.Location
	}

	// Tie the run to the session so an abandon cancels in-flight work.
	runCtx, cancel := sess.BeginRun(ctx)
	defer cancel()

	listings, err := h.fetcher.Search(runCtx, fetcher.SearchParams{
		Keywords:   keywords,
		Location:   location,
		MaxResults: req.MaxResults,
	})
	if err != nil {
		return nil, newSearchError(sessionID, "fetch", err)
	}

	results, err := h.matcher.Match(runCtx, sess.Profile, listings)
	if err != nil {
		return nil, newSearchError(sessionID, "match", err)
	}

	if err := h.sessions.Update(sessionID, func(s *session.Session) {
		s.Listings = listings
		s.Results = results
		s.Keywords = keywords
		s.Location = location
	}); err != nil {
		return nil, err
	}

	h.persistSearch(ctx, sess, RunRequest{Keywords: keywords, Location: location, MaxResults: req.MaxResults}, listings, results)

	return &RunResponse{
		SessionID:    sessionID,
		ListingCount: len(listings),
		Results:      results,
	}, nil
}

// keywordsFromProfile derives search keywords when the request carries
// none: the first target title, or the leading skills as a fallback.
func keywordsFromProfile(profile *types.ResumeProfile) string {
	if profile == nil {
		return ""
	}
	for _, title := range profile.TargetTitles {
		if t := strings.TrimSpace(title); t != "" {
			return t
		}
	}
	const maxSkills = 3
	skills := profile.Skills
	if len(skills) > maxSkills {
		skills = skills[:maxSkills]
	}
	return strings.TrimSpace(strings.Join(skills, " "))
}

// persistSearch writes the audit record and completion event. Failures
// are logged; bookkeeping never breaks the interactive path.
func (h *SearchHandler) persistSearch(ctx context.Context, sess *session.Session, req RunRequest, listings []*types.JobListing, results []types.MatchResult) {
	if h.store == nil || h.store.MySQL == nil {
		return
	}

	resultsJSON, err := json.Marshal(results)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal results for search record failed")
		return
	}

	topScore := 0.0
	if len(results) > 0 {
		topScore = results[0].FinalScore
	}
	record := &models.SearchRecord{
		SessionID:    sess.ID,
		Keywords:     req.Keywords,
		Location:     req.Location,
		ResumeURI:    sess.ResumeURI,
		ListingCount: len(listings),
		ResultCount:  len(results),
		TopScore:     topScore,
		Results:      datatypes.JSON(resultsJSON),
	}

	var event *models.OutboxMessage
	if h.mqCfg != nil && h.mqCfg.EventsExchange != "" {
		payload, marshalErr := json.Marshal(map[string]interface{}{
			"event":         EventSearchCompleted,
			"session_id":    sess.ID,
			"keywords":      req.Keywords,
			"location":      req.Location,
			"listing_count": len(listings),
			"result_count":  len(results),
			"top_score":     topScore,
			"completed_at":  time.Now().UTC().Format(time.RFC3339),
		})
		if marshalErr != nil {
			h.logger.Error().Err(marshalErr).Msg("marshal search completed event failed")
		} else {
			event = &models.OutboxMessage{
				EventType:  EventSearchCompleted,
				Exchange:   h.mqCfg.EventsExchange,
				RoutingKey: h.mqCfg.SearchCompletedKey,
				Payload:    datatypes.JSON(payload),
				Status:     models.OutboxStatusPending,
			}
		}
	}

	if err := h.store.MySQL.SaveSearchWithOutbox(ctx, record, event); err != nil {
		h.logger.Error().Err(err).Str("session_id", sess.ID).Msg("persist search record failed")
	}
}

// HandleRefine applies a refinement instruction to the session's current
// results. It never re-fetches listings.
func (h *SearchHandler) HandleRefine(ctx context.Context, sessionID string, req RefineRequest) (*RefineResponse, error) {
	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if len(sess.Results) == 0 {
		return nil, fmt.Errorf("session %s has no results to refine", sessionID)
	}

	outcome, err := h.refiner.Refine(ctx, req.Instruction, sess.Results, sess.ListingByID())
	if err != nil {
		return nil, newSearchError(sessionID, "refine", err)
	}

	if outcome.Interpreted {
		if err := h.sessions.Update(sessionID, func(s *session.Session) {
			s.Results = outcome.Results
		}); err != nil {
			return nil, err
		}
	}

	return &RefineResponse{
		SessionID:   sessionID,
		Interpreted: outcome.Interpreted,
		Results:     outcome.Results,
	}, nil
}

// HandleResults returns the session's current state.
func (h *SearchHandler) HandleResults(sessionID string, includeListings bool) (*ResultsResponse, error) {
	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	resp := &ResultsResponse{
		SessionID: sessionID,
		Profile:   sess.Profile,
		Results:   sess.Results,
	}
	if includeListings {
		resp.Listings = sess.Listings
	}
	return resp, nil
}

// HandleDelete closes a session. Unknown ids are not an error.
func (h *SearchHandler) HandleDelete(sessionID string) {
	h.sessions.Delete(sessionID)
}

// IsNotFound reports whether err means the session does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, session.ErrSessionNotFound)
}
