package main

import (
	"net/http"

	"github.com/mgranvik/ladle/internal/domain"
)

// Panel providers append their identifiers as query parameters on the
// study entry link. The consent form carries them through to the start
// request as hidden fields, so check the form first and fall back to
// the query string.
func panelInfo(r *http.Request) domain.PanelInfo {
	get := func(key string) string {
		if v := r.PostFormValue(key); v != "" {
			return v
		}
		return r.URL.Query().Get(key)
	}

	return domain.PanelInfo{
		PanelID:        get("PROLIFIC_PID"),
		StudyID:        get("STUDY_ID"),
		PanelSessionID: get("SESSION_ID"),
	}
}
