package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/japaniel/kotoba/pkg/entry"
)

func (s *Server) handleWord(w http.ResponseWriter, r *http.Request) {
	text := wordParam(r)
	if text == "" {
		textError(w, http.StatusBadRequest, "please provide a word")
		return
	}
	typeParam := r.URL.Query().Get("type")
	if typeParam == "" {
		textError(w, http.StatusBadRequest, "please provide a type")
		return
	}
	t, err := entry.ParseType(typeParam)
	if err != nil {
		textError(w, http.StatusBadRequest, "unrecognized word type")
		return
	}
	e, err := s.lx.GetEntry(text, t)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.writeJSON(w, e)
}

func (s *Server) handleAllWords(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.lx.Summaries())
}

func (s *Server) handleRandomWord(w http.ResponseWriter, r *http.Request) {
	e, err := s.lx.RandomEntry()
	if err != nil {
		if errors.Is(err, entry.ErrNotFound) {
			textError(w, http.StatusNotFound, "no words known yet")
			return
		}
		s.respondErr(w, err)
		return
	}
	s.writeJSON(w, e)
}

func (s *Server) handleAddWord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		textError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	characters, attrs, err := parseEntryForm(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	e, err := s.lx.AddEntry(characters, attrs)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.writeJSON(w, e)
}

func (s *Server) handleModifyWord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		textError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	characters, attrs, err := parseEntryForm(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if ra, ok := attrs.(entry.RadicalAttrs); ok && len(ra.Meanings) > 0 {
		textError(w, http.StatusBadRequest, "cannot add meanings to radicals; there should be one primary meaning only")
		return
	}
	e, err := s.lx.ModifyEntry(characters, attrs)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.writeJSON(w, e)
}

func (s *Server) handleRemoveWord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		textError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	t, err := entry.ParseType(r.FormValue("type"))
	if err != nil {
		textError(w, http.StatusBadRequest, "unrecognized word type")
		return
	}
	characters := strings.TrimSpace(r.FormValue("jp"))
	if characters == "" {
		textError(w, http.StatusBadRequest, "please provide a word")
		return
	}
	if err := s.lx.RemoveEntry(characters, t); err != nil {
		s.respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "removed %s\n", characters)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	// The sync holds the connection until every item is processed; this is
	// an administrative route, not a hot path.
	res, err := s.cfg.Syncer.Run(r.Context())
	if err != nil {
		s.logf("sync failed: %v", err)
		if res != nil {
			// Partial progress is still persisted; report it with the error.
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(res)
			return
		}
		textError(w, http.StatusBadGateway, "sync failed: "+err.Error())
		return
	}
	s.writeJSON(w, res)
}

func (s *Server) handleImportArticle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		textError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	rawURL := strings.TrimSpace(r.FormValue("url"))
	if rawURL == "" {
		textError(w, http.StatusBadRequest, "please provide a url")
		return
	}
	report, err := s.cfg.Articles.FromURL(r.Context(), rawURL)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.writeJSON(w, report)
}

// parseEntryForm reads the shared add/modify form shape: jp, type, and
// per-type attribute fields holding JSON-encoded lists.
func parseEntryForm(r *http.Request) (string, entry.Attrs, error) {
	characters := strings.TrimSpace(r.FormValue("jp"))
	if characters == "" {
		return "", nil, badRequest("please provide a word")
	}
	t, err := entry.ParseType(r.FormValue("type"))
	if err != nil {
		return "", nil, err
	}

	switch t {
	case entry.Radical:
		a := entry.RadicalAttrs{}
		if a.Meanings, err = jsonList(r, "en"); err != nil {
			return "", nil, err
		}
		if a.Notes, err = jsonList(r, "notes"); err != nil {
			return "", nil, err
		}
		if a.Sources, err = jsonList(r, "sources"); err != nil {
			return "", nil, err
		}
		return characters, a, nil

	case entry.Kanji:
		a := entry.KanjiAttrs{}
		if a.Meanings, err = jsonList(r, "en"); err != nil {
			return "", nil, err
		}
		if a.Readings, err = jsonList(r, "known-readings"); err != nil {
			return "", nil, err
		}
		if a.Notes, err = jsonList(r, "notes"); err != nil {
			return "", nil, err
		}
		if a.Sources, err = jsonList(r, "sources"); err != nil {
			return "", nil, err
		}
		if a.RadicalComposition, err = jsonList(r, "radical-composition"); err != nil {
			return "", nil, err
		}
		if a.KnownVocabulary, err = jsonList(r, "known-vocabulary"); err != nil {
			return "", nil, err
		}
		return characters, a, nil

	default:
		a := entry.VocabularyAttrs{}
		if a.Meanings, err = jsonList(r, "en"); err != nil {
			return "", nil, err
		}
		if a.Readings, err = jsonList(r, "known-readings"); err != nil {
			return "", nil, err
		}
		if a.Notes, err = jsonList(r, "notes"); err != nil {
			return "", nil, err
		}
		if a.Sources, err = jsonList(r, "sources"); err != nil {
			return "", nil, err
		}
		if a.KanjiComposition, err = jsonList(r, "kanji-composition"); err != nil {
			return "", nil, err
		}
		if a.WordClasses, err = jsonList(r, "word-classes"); err != nil {
			return "", nil, err
		}
		if raw := strings.TrimSpace(r.FormValue("sentences")); raw != "" {
			if err := json.Unmarshal([]byte(raw), &a.Sentences); err != nil {
				return "", nil, badRequest("field sentences must be a JSON array of sentence objects")
			}
		}
		if raw := strings.TrimSpace(r.FormValue("pitch-accents")); raw != "" {
			if err := json.Unmarshal([]byte(raw), &a.PitchAccents); err != nil {
				return "", nil, badRequest("field pitch-accents must be a JSON array of accent objects")
			}
		}
		return characters, a, nil
	}
}

func jsonList(r *http.Request, field string) ([]string, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, badRequest("field " + field + " must be a JSON string array")
	}
	return out, nil
}

type httpError struct {
	status int
	msg    string
}

func (e httpError) Error() string { return e.msg }

func badRequest(msg string) error { return httpError{status: http.StatusBadRequest, msg: msg} }

// respondErr maps domain errors to status codes. Validation failures are
// 400s, missing entries 404, upstream trouble 502, everything else 500.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	var he httpError
	switch {
	case errors.As(err, &he):
		textError(w, he.status, he.msg)
	case errors.Is(err, entry.ErrInvalidType):
		textError(w, http.StatusBadRequest, "unrecognized word type")
	case errors.Is(err, entry.ErrDuplicateEntry):
		textError(w, http.StatusBadRequest, "this word already exists")
	case errors.Is(err, entry.ErrNotFound):
		textError(w, http.StatusNotFound, "word isn't known yet")
	case errors.Is(err, entry.ErrUpstreamSync):
		textError(w, http.StatusBadGateway, err.Error())
	default:
		s.logf("internal error: %v", err)
		textError(w, http.StatusInternalServerError, "internal error")
	}
}

func textError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, msg)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already written; log and move on.
		s.logf("encode response: %v", err)
	}
}
