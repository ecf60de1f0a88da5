package balldontlie

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gameJSON(id int) string {
	return fmt.Sprintf(`{"id":%d,"date":"2024-01-0%d","home_team":{"abbreviation":"BOS"},"visitor_team":{"abbreviation":"NYK"},"home_team_score":100,"visitor_team_score":90}`, id, id)
}

func TestFetchGamesFollowsPages(t *testing.T) {
	var seen []pageCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		seen = append(seen, pageCall{page: q.Get("page"), perPage: q.Get("per_page"), end: q.Get("end_date"), auth: r.Header.Get("Authorization")})

		page, _ := strconv.Atoi(q.Get("page"))
		next := "null"
		if page < 2 {
			next = strconv.Itoa(page + 1)
		}
		fmt.Fprintf(w, `{"data":[%s],"meta":{"next_page":%s}}`, gameJSON(page+1), next)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithPerPage(25), WithAPIKey("secret"))
	end := "2024-02-01"
	games, err := c.FetchGames(context.Background(), "2024-01-01", &end)
	require.NoError(t, err)
	require.Len(t, games, 3)

	assert.Equal(t, "BOS", games[0]["home_team_abbreviation"])
	assert.Equal(t, "NYK", games[2]["visitor_team_abbreviation"])

	require.Len(t, seen, 3)
	for i, s := range seen {
		assert.Equal(t, strconv.Itoa(i), s.page)
		assert.Equal(t, "25", s.perPage)
		assert.Equal(t, "2024-02-01", s.end)
		assert.Equal(t, "secret", s.auth)
	}
}

type pageCall struct {
	page, perPage, end, auth string
}

func TestFetchGamesOmitsEndDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["end_date"]; ok {
			t.Errorf("end_date should be omitted")
		}
		fmt.Fprint(w, `{"data":[],"meta":{"next_page":null}}`)
	}))
	defer srv.Close()

	games, err := New(WithBaseURL(srv.URL)).FetchGames(context.Background(), "2024-01-01", nil)
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestFetchGamesFailsOnStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "slow down")
	}))
	defer srv.Close()

	_, err := New(WithBaseURL(srv.URL)).FetchGames(context.Background(), "2024-01-01", nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no retry expected")
}

func TestFlattenRecord(t *testing.T) {
	in := map[string]any{
		"id": 1.0,
		"home_team": map[string]any{
			"abbreviation": "BOS",
			"conference":   map[string]any{"name": "East"},
		},
		"tags": []any{"a"},
	}
	got := FlattenRecord(in)
	assert.Equal(t, "BOS", got["home_team_abbreviation"])
	assert.Equal(t, "East", got["home_team_conference_name"])
	assert.Equal(t, []any{"a"}, got["tags"])
	assert.Len(t, got, 4)

	again := FlattenRecord(got)
	assert.Equal(t, got, again)
}
