package gateway

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/scoreboard/go/internal/match"
	"github.com/rs/zerolog/log"
)

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Description string  `xml:"description"`
	PubDate     string  `xml:"pubDate"`
	GUID        rssGUID `xml:"guid"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// buildFeed renders a one-item feed describing the current match.
func buildFeed(s match.Snapshot, link string) rssFeed {
	updated := time.UnixMilli(s.Timestamp).UTC().Format(time.RFC1123Z)
	return rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:         "Live Soccer Score",
			Link:          link,
			Description:   "Live scoreboard feed",
			LastBuildDate: updated,
			Items: []rssItem{{
				Title:       fmt.Sprintf("%s vs %s", s.TeamA, s.TeamB),
				Description: fmt.Sprintf("%s %d - %d %s | %s (%s)", s.TeamA, s.ScoreA, s.ScoreB, s.TeamB, s.Time, s.Status),
				PubDate:     updated,
				GUID: rssGUID{
					Value: itemGUID(link, s.DisplaySettings.LastUpdate),
				},
			}},
		},
	}
}

// itemGUID is stable for a given state revision so readers only surface
// an item once per update.
func itemGUID(link string, lastUpdate time.Time) string {
	name := fmt.Sprintf("%s#%d", link, lastUpdate.UnixMilli())
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// HandleRSS handles GET /api/rss
func (h *StateHandler) HandleRSS(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	feed := buildFeed(h.snapshots.Snapshot(), fmt.Sprintf("%s://%s/", scheme, r.Host))

	data, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("failed to encode RSS feed")
		writeError(w, h.clock, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(data)
}
